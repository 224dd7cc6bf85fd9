package model

import "fmt"

// Settings is the engine configuration. It is treated as an immutable
// value: updates build a new Settings and swap it wholesale, so the tick
// loop never observes a half-applied change.
type Settings struct {
	TradingPair            string  `json:"tradingPair"`
	DipsSensitivity        float64 `json:"dipsSensitivity"` // 0..100, lower = longer MA periods
	RiskLevel              float64 `json:"riskLevel"`       // 0..100, 50 = buy at trend average
	StopLossPercentage     float64 `json:"stopLossPercentage"`
	SellTriggerPercentage  float64 `json:"sellTriggerPercentage"` // 0 disables take-profit
	InitialBalance         float64 `json:"initialBalance"`
	TradeAmountPercentage  float64 `json:"tradeAmountPercentage"` // % of quote per buy
	MaxConcurrentPositions int     `json:"maxConcurrentPositions"`
	TickIntervalMs         int     `json:"tickIntervalMs"` // live tick period
	ReplaySpeedMs          int     `json:"replaySpeedMs"`  // backtest tick period
	NotifyOnBuy            bool    `json:"notifyOnBuy"`
	NotifyOnSell           bool    `json:"notifyOnSell"`
}

// DefaultSettings returns the settings used when a start request omits a field.
func DefaultSettings() Settings {
	return Settings{
		TradingPair:            "BTC-USD",
		DipsSensitivity:        50,
		RiskLevel:              50,
		StopLossPercentage:     5,
		SellTriggerPercentage:  0,
		InitialBalance:         1000,
		TradeAmountPercentage:  50,
		MaxConcurrentPositions: 1,
		TickIntervalMs:         60000,
		ReplaySpeedMs:          50,
	}
}

// Validate rejects settings the engine cannot run with.
func (s Settings) Validate() error {
	if s.TradingPair == "" {
		return fmt.Errorf("settings: tradingPair is required")
	}
	if s.DipsSensitivity < 0 || s.DipsSensitivity > 100 {
		return fmt.Errorf("settings: dipsSensitivity %v outside [0,100]", s.DipsSensitivity)
	}
	if s.RiskLevel < 0 || s.RiskLevel > 100 {
		return fmt.Errorf("settings: riskLevel %v outside [0,100]", s.RiskLevel)
	}
	if s.InitialBalance <= 0 {
		return fmt.Errorf("settings: initialBalance must be positive")
	}
	if s.TradeAmountPercentage <= 0 || s.TradeAmountPercentage > 100 {
		return fmt.Errorf("settings: tradeAmountPercentage %v outside (0,100]", s.TradeAmountPercentage)
	}
	if s.MaxConcurrentPositions < 1 {
		return fmt.Errorf("settings: maxConcurrentPositions must be at least 1")
	}
	return nil
}

// TickInterval returns the tick period in milliseconds for the given mode,
// falling back to one minute for live and 50ms for replay.
func (s Settings) TickInterval(live bool) int {
	if live {
		if s.TickIntervalMs > 0 {
			return s.TickIntervalMs
		}
		return 60000
	}
	if s.ReplaySpeedMs > 0 {
		return s.ReplaySpeedMs
	}
	return 50
}

// SettingsPatch is a partial settings update from the control channel.
// Nil fields are left unchanged by Apply.
type SettingsPatch struct {
	TradingPair            *string  `json:"tradingPair,omitempty"`
	DipsSensitivity        *float64 `json:"dipsSensitivity,omitempty"`
	RiskLevel              *float64 `json:"riskLevel,omitempty"`
	StopLossPercentage     *float64 `json:"stopLossPercentage,omitempty"`
	SellTriggerPercentage  *float64 `json:"sellTriggerPercentage,omitempty"`
	InitialBalance         *float64 `json:"initialBalance,omitempty"`
	TradeAmountPercentage  *float64 `json:"tradeAmountPercentage,omitempty"`
	MaxConcurrentPositions *int     `json:"maxConcurrentPositions,omitempty"`
	TickIntervalMs         *int     `json:"tickIntervalMs,omitempty"`
	ReplaySpeedMs          *int     `json:"replaySpeedMs,omitempty"`
	NotifyOnBuy            *bool    `json:"notifyOnBuy,omitempty"`
	NotifyOnSell           *bool    `json:"notifyOnSell,omitempty"`
}

// Apply shallow-merges the patch into a copy of s and returns the copy.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.TradingPair != nil {
		s.TradingPair = *p.TradingPair
	}
	if p.DipsSensitivity != nil {
		s.DipsSensitivity = *p.DipsSensitivity
	}
	if p.RiskLevel != nil {
		s.RiskLevel = *p.RiskLevel
	}
	if p.StopLossPercentage != nil {
		s.StopLossPercentage = *p.StopLossPercentage
	}
	if p.SellTriggerPercentage != nil {
		s.SellTriggerPercentage = *p.SellTriggerPercentage
	}
	if p.InitialBalance != nil {
		s.InitialBalance = *p.InitialBalance
	}
	if p.TradeAmountPercentage != nil {
		s.TradeAmountPercentage = *p.TradeAmountPercentage
	}
	if p.MaxConcurrentPositions != nil {
		s.MaxConcurrentPositions = *p.MaxConcurrentPositions
	}
	if p.TickIntervalMs != nil {
		s.TickIntervalMs = *p.TickIntervalMs
	}
	if p.ReplaySpeedMs != nil {
		s.ReplaySpeedMs = *p.ReplaySpeedMs
	}
	if p.NotifyOnBuy != nil {
		s.NotifyOnBuy = *p.NotifyOnBuy
	}
	if p.NotifyOnSell != nil {
		s.NotifyOnSell = *p.NotifyOnSell
	}
	return s
}
