package eod

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"oi-tracker/internal/types"
)

type historyExporter struct {
	dataDir string
	loc     *time.Location
}

var csvHeaders = []string{
	"symbol", "timestamp", "underlying_value",
	"max_pe_oi_strike", "max_pe_coi_strike", "max_ce_oi_strike", "max_ce_coi_strike",
	"total_pe_oi", "total_ce_oi", "pc_ratio",
}

// ExportDay writes every snapshot in history to the day file for t,
// symbols alphabetically and snapshots in arrival order. It returns "" when
// there is nothing to write.
func (e *historyExporter) ExportDay(t time.Time, history map[string][]types.Snapshot) (string, error) {
	keys := make([]string, 0, len(history))
	rows := 0
	for k, snaps := range history {
		if len(snaps) == 0 {
			continue
		}
		keys = append(keys, k)
		rows += len(snaps)
	}
	if rows == 0 {
		return "", nil
	}
	sort.Strings(keys)

	outPath := eodCSVPath(e.dataDir, t, e.loc)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(csvHeaders); err != nil {
		return "", err
	}
	for _, k := range keys {
		for _, s := range history[k] {
			rec := []string{
				s.Symbol,
				s.Timestamp,
				strconv.FormatFloat(s.UnderlyingValue, 'f', 2, 64),
				formatStrike(s.MaxPutOI),
				formatStrike(s.MaxPutCOI),
				formatStrike(s.MaxCallOI),
				formatStrike(s.MaxCallCOI),
				strconv.FormatFloat(s.TotalPutOI, 'f', 0, 64),
				strconv.FormatFloat(s.TotalCallOI, 'f', 0, 64),
				fmt.Sprintf("%.2f", s.PutCallRatio),
			}
			if err := w.Write(rec); err != nil {
				return "", err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}
