package gateway

import (
	"encoding/json"

	"cryptobot/internal/model"
)

// controlMessage is the inbound message format. Type selects the
// operation; the remaining fields are per-type payloads.
type controlMessage struct {
	Type       string             `json:"type"`
	Settings   json.RawMessage    `json:"settings,omitempty"`
	ReplayData []model.PricePoint `json:"replayData,omitempty"`
	IsLive     bool               `json:"isLive,omitempty"`
	TOTP       string             `json:"totp,omitempty"`
	Ping       int64              `json:"ping,omitempty"`
}

// outbound is the envelope for every message the gateway sends.
type outbound struct {
	Type     string          `json:"type"`
	Data     *model.Snapshot `json:"data,omitempty"`
	Message  string          `json:"message,omitempty"`
	Action   string          `json:"action,omitempty"`
	Ping     int64           `json:"ping,omitempty"`
	ServerTS int64           `json:"server_ts,omitempty"`
}

func marshalEnvelope(env outbound) []byte {
	data, _ := json.Marshal(env)
	return data
}
