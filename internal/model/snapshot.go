package model

import "encoding/json"

// Snapshot is the engine state broadcast to observers after every tick.
// It is always built from a fully-updated engine state, never mid-mutation.
type Snapshot struct {
	IsRunning             bool         `json:"isRunning"`
	IsLive                bool         `json:"isLive"`
	Settings              Settings     `json:"settings"`
	Account               Account      `json:"account"`
	CurrentPrice          float64      `json:"currentPrice"`
	Trades                []Trade      `json:"trades"`
	OpenPositions         []Position   `json:"openPositions"`
	ChartHistory          []ChartPoint `json:"chartHistory"`
	Profit                float64      `json:"profit"`
	LowWatermark          float64      `json:"lowWatermark"`
	HighWatermark         float64      `json:"highWatermark"`
	ReplayProgressPercent float64      `json:"replayProgressPercent"`
}

// JSON returns the encoded snapshot, ignoring errors for hot-path usage.
func (s *Snapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
