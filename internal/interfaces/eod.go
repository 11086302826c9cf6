package interfaces

import (
	"time"

	"oi-tracker/internal/types"
)

type EodExporter interface {
	ExportDay(t time.Time, history map[string][]types.Snapshot) (csvPath string, err error)
}
