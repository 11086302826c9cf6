package eod

import (
	"time"

	"oi-tracker/internal/interfaces"
)

// NewExporter writes day files under dataDir/eod, named by the date in loc
// (the trading calendar's zone). A nil loc means IST.
func NewExporter(dataDir string, loc *time.Location) interfaces.EodExporter {
	if dataDir == "" {
		dataDir = "data"
	}
	if loc == nil {
		loc = ist
	}
	return &historyExporter{dataDir: dataDir, loc: loc}
}
