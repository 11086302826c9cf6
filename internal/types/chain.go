package types

// RawChain mirrors the option-chain JSON served by the upstream. Every
// nested object is a pointer so that absent sections are distinguishable
// from zero values.
type RawChain struct {
	Records  *RawRecords  `json:"records"`
	Filtered *RawFiltered `json:"filtered"`
}

type RawRecords struct {
	Timestamp       string   `json:"timestamp"`
	UnderlyingValue *float64 `json:"underlyingValue"`
	ExpiryDates     []string `json:"expiryDates,omitempty"`
}

type RawFiltered struct {
	Data []StrikeEntry `json:"data"`
	CE   *SideTotals   `json:"CE"`
	PE   *SideTotals   `json:"PE"`
}

type StrikeEntry struct {
	StrikePrice float64    `json:"strikePrice"`
	ExpiryDate  string     `json:"expiryDate,omitempty"`
	CE          *OptionLeg `json:"CE"`
	PE          *OptionLeg `json:"PE"`
}

type OptionLeg struct {
	OpenInterest         float64 `json:"openInterest"`
	ChangeInOpenInterest float64 `json:"changeinOpenInterest"`
}

type SideTotals struct {
	TotOI  float64 `json:"totOI"`
	TotVol float64 `json:"totVol"`
}
