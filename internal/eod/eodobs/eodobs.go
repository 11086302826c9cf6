package eodobs

import (
	"context"
	"time"

	"oi-tracker/internal/interfaces"
	"oi-tracker/internal/logger"
	"oi-tracker/internal/trace"
	"oi-tracker/internal/types"
)

type observableEodExporter struct {
	exporter interfaces.EodExporter
}

var _ interfaces.EodExporter = (*observableEodExporter)(nil)

func Wrap(exporter interfaces.EodExporter) interfaces.EodExporter {
	return &observableEodExporter{
		exporter: exporter,
	}
}

func (oee *observableEodExporter) ExportDay(t time.Time, history map[string][]types.Snapshot) (string, error) {
	ctx := context.Background()
	ctx, span := trace.StartSpan(ctx, "eod.ExportDay")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting EOD history export",
		"date", t.Format("2006-01-02"),
		"symbols", len(history),
	)

	csvPath, err := oee.exporter.ExportDay(t, history)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "EOD history export failed", err,
			"date", t.Format("2006-01-02"),
		)
		return "", err
	}

	if csvPath == "" {
		logger.InfoSkip(ctx, 1, "No snapshots recorded, EOD export skipped",
			"date", t.Format("2006-01-02"),
		)
		return "", nil
	}

	logger.InfoSkip(ctx, 1, "EOD history exported successfully",
		"date", t.Format("2006-01-02"),
		"csv_path", csvPath,
	)

	return csvPath, nil
}
