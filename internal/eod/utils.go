package eod

import (
	"path/filepath"
	"strconv"
	"time"
)

var ist = time.FixedZone("IST", 19800)

func eodCSVPath(dir string, t time.Time, loc *time.Location) string {
	dateStr := t.In(loc).Format("2006-01-02")
	return filepath.Join(dir, "eod", dateStr+".csv")
}

func formatStrike(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
