package types

import "time"

type Kind string

const (
	KindIndex  Kind = "INDEX"
	KindEquity Kind = "EQUITY"
)

type Instrument struct {
	Symbol string `json:"symbol"`
	Kind   Kind   `json:"kind"`
}

func (i Instrument) IsIndex() bool { return i.Kind == KindIndex }

// Snapshot is the reduced analytics view of one option-chain payload.
// Strike fields are nil when no strike in the window had a positive value.
type Snapshot struct {
	Symbol          string   `json:"symbol"`
	Timestamp       string   `json:"timestamp"`
	UnderlyingValue float64  `json:"underlyingValue"`
	MaxPutOI        *float64 `json:"maxPEOI"`
	MaxPutCOI       *float64 `json:"maxPECOI"`
	MaxCallOI       *float64 `json:"maxCEOI"`
	MaxCallCOI      *float64 `json:"maxCECOI"`
	TotalPutOI      float64  `json:"totalPEOI"`
	TotalCallOI     float64  `json:"totalCEOI"`
	PutCallRatio    float64  `json:"pcRatio"`
}

// RefreshOutcome classifies what happened to one instrument in a refresh cycle.
type RefreshOutcome string

const (
	OutcomeUpdated   RefreshOutcome = "updated"
	OutcomeDuplicate RefreshOutcome = "duplicate"
	OutcomeNoData    RefreshOutcome = "no_data"
	OutcomeInvalid   RefreshOutcome = "invalid"
)

type InstrumentResult struct {
	Symbol  string         `json:"symbol"`
	Outcome RefreshOutcome `json:"outcome"`
	Error   string         `json:"error,omitempty"`
}

type RefreshReport struct {
	SessionValid bool               `json:"sessionValid"`
	Results      []InstrumentResult `json:"results"`
	StartedAt    int64              `json:"startedAt"`
	DurationMS   int64              `json:"durationMs"`
}

// Updated returns the number of instruments that recorded a new snapshot.
func (r RefreshReport) Updated() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == OutcomeUpdated {
			n++
		}
	}
	return n
}

// SessionStatus is a point-in-time view of the upstream session.
type SessionStatus struct {
	Valid      bool       `json:"valid"`
	ID         string     `json:"id,omitempty"`
	UserAgent  string     `json:"userAgent,omitempty"`
	AcquiredAt *time.Time `json:"acquiredAt,omitempty"`
	Expiry     *time.Time `json:"expiry,omitempty"`
}

// TrackerStatus summarizes the service for the health endpoint.
type TrackerStatus struct {
	Session               SessionStatus     `json:"session"`
	InWindow              bool              `json:"inWindow"`
	UpdatesRunning        bool              `json:"updatesRunning"`
	SessionRefreshRunning bool              `json:"sessionRefreshRunning"`
	DataStatus            map[string]string `json:"dataStatus"`
	LastUpdated           map[string]string `json:"lastUpdated"`
	LastRefresh           *RefreshReport    `json:"lastRefresh,omitempty"`
}
