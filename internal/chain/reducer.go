package chain

import (
	"errors"
	"math"
	"sort"

	"oi-tracker/internal/types"
)

var (
	ErrMissingTimestamp = errors.New("option chain has no timestamp")
	ErrMalformedChain   = errors.New("malformed option chain")
)

// WindowSide is the number of strikes kept on each side of the underlying.
const WindowSide = 10

// Reduce derives a Snapshot from raw. It performs no I/O.
func Reduce(raw *types.RawChain, symbol string) (types.Snapshot, error) {
	if raw == nil || raw.Records == nil {
		return types.Snapshot{}, ErrMalformedChain
	}
	if raw.Records.Timestamp == "" {
		return types.Snapshot{}, ErrMissingTimestamp
	}
	if raw.Records.UnderlyingValue == nil {
		return types.Snapshot{}, ErrMalformedChain
	}
	underlying := *raw.Records.UnderlyingValue

	snap := types.Snapshot{
		Symbol:          symbol,
		Timestamp:       raw.Records.Timestamp,
		UnderlyingValue: underlying,
	}

	var data []types.StrikeEntry
	if raw.Filtered != nil {
		data = raw.Filtered.Data
		if raw.Filtered.PE != nil {
			snap.TotalPutOI = raw.Filtered.PE.TotOI
		}
		if raw.Filtered.CE != nil {
			snap.TotalCallOI = raw.Filtered.CE.TotOI
		}
	}

	var putOI, putCOI, callOI, callCOI maxTracker
	for _, e := range StrikeWindow(data, underlying) {
		if e.PE != nil {
			putOI.offer(e.StrikePrice, e.PE.OpenInterest)
			putCOI.offer(e.StrikePrice, e.PE.ChangeInOpenInterest)
		}
		if e.CE != nil {
			callOI.offer(e.StrikePrice, e.CE.OpenInterest)
			callCOI.offer(e.StrikePrice, e.CE.ChangeInOpenInterest)
		}
	}
	snap.MaxPutOI = putOI.strike
	snap.MaxPutCOI = putCOI.strike
	snap.MaxCallOI = callOI.strike
	snap.MaxCallCOI = callCOI.strike

	snap.PutCallRatio = PutCallRatio(snap.TotalPutOI, snap.TotalCallOI)
	return snap, nil
}

// StrikeWindow returns up to WindowSide strikes at or below underlying
// (nearest first, descending) followed by up to WindowSide strikes above it
// (nearest first, ascending). Equal strikes keep their input order.
func StrikeWindow(data []types.StrikeEntry, underlying float64) []types.StrikeEntry {
	var below, above []types.StrikeEntry
	for _, e := range data {
		if e.StrikePrice <= underlying {
			below = append(below, e)
		} else {
			above = append(above, e)
		}
	}

	sort.SliceStable(below, func(i, j int) bool { return below[i].StrikePrice > below[j].StrikePrice })
	sort.SliceStable(above, func(i, j int) bool { return above[i].StrikePrice < above[j].StrikePrice })

	if len(below) > WindowSide {
		below = below[:WindowSide]
	}
	if len(above) > WindowSide {
		above = above[:WindowSide]
	}

	window := make([]types.StrikeEntry, 0, len(below)+len(above))
	window = append(window, below...)
	return append(window, above...)
}

// PutCallRatio is put/call rounded to two decimals, or 0 when either side is zero.
func PutCallRatio(put, call float64) float64 {
	if put == 0 || call == 0 {
		return 0
	}
	return math.Round(put/call*100) / 100
}

// maxTracker keeps the first strike holding the strictly greatest positive value.
type maxTracker struct {
	value  float64
	strike *float64
}

func (m *maxTracker) offer(strike, value float64) {
	if value > m.value {
		s := strike
		m.value = value
		m.strike = &s
	}
}
