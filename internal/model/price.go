package model

import "time"

// PricePoint is a single price sample as produced by a tick source.
// Time is epoch milliseconds; Price is in quote currency.
type PricePoint struct {
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
}

// TS returns the sample time as time.Time (UTC).
func (p PricePoint) TS() time.Time {
	return time.UnixMilli(p.Time).UTC()
}

// ChartPoint extends PricePoint with the indicator values computed on the
// tick that produced it. Indicator fields are pointers: nil means the
// indicator was not yet available (warm-up).
type ChartPoint struct {
	Time     int64    `json:"time"`
	Price    float64  `json:"price"`
	FastMA   *float64 `json:"fastMA,omitempty"`
	SlowMA   *float64 `json:"slowMA,omitempty"`
	RiskLine *float64 `json:"riskLine,omitempty"`
}

// Candle is an OHLC candle returned by the exchange historical-data API.
type Candle struct {
	Time   int64   `json:"time"` // bucket start, epoch seconds
	Low    float64 `json:"low"`
	High   float64 `json:"high"`
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}
