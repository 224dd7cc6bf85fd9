// Package engine implements the tick state machine: one price sample per
// tick flows through indicator computation, the sell-then-buy decision
// rules, and ledger bookkeeping, followed by a state broadcast.
//
// The engine is not goroutine-safe. The session controller owns it and
// serializes Start/Stop/UpdateSettings/ExecuteTick; the only concurrent
// member is the in-flight guard that protects live mode from overlapping
// price fetches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"cryptobot/internal/history"
	"cryptobot/internal/indicator"
	"cryptobot/internal/ledger"
	"cryptobot/internal/metrics"
	"cryptobot/internal/model"
)

// Trade reasons recorded on the trade log and surfaced to notifications.
const (
	ReasonStopLoss    = "Stop Loss"
	ReasonSellTrigger = "Sell Trigger"
	ReasonCrossover   = "MACD Crossover"
)

// thresholdTol absorbs float rounding in percentage threshold math so a
// price landing exactly on the boundary (entry*1.10 at a 10% trigger)
// still fires.
const thresholdTol = 1e-9

// ErrAlreadyRunning is returned by Start when a run is in progress.
var ErrAlreadyRunning = errors.New("engine already running")

// Effects receives fire-and-forget side-effect requests for executed
// trades. Implementations must never block the tick loop.
type Effects interface {
	// TradeExecuted is called once per fill. notify requests a
	// notification; live requests a real market order.
	TradeExecuted(pair string, t model.Trade, notify, live bool)
}

// Config wires the engine's collaborators. All fields are optional
// except Emit in any deployment that has observers.
type Config struct {
	HistoryCapacity int              // chart history bound, default history.DefaultCapacity
	Effects         Effects          // side-effect sink, may be nil
	Metrics         *metrics.Metrics // may be nil
	Emit            func(*model.Snapshot)
}

// Engine is the per-session trading state machine.
type Engine struct {
	cfg    Config
	ledger *ledger.Ledger
	hist   *history.Ring

	settings model.Settings
	source   model.TickSource
	isLive   bool
	running  bool

	currentPrice  float64
	lowWatermark  float64
	highWatermark float64

	// Guards live mode against overlapping fetches. A tick that finds
	// the flag set skips entirely: no queueing, no error.
	inFlight atomic.Bool
}

// New creates an idle engine.
func New(cfg Config) *Engine {
	cap := cfg.HistoryCapacity
	if cap <= 0 {
		cap = history.DefaultCapacity
	}
	return &Engine{
		cfg:    cfg,
		ledger: ledger.New(),
		hist:   history.New(cap),
	}
}

// Running reports whether a run is in progress.
func (e *Engine) Running() bool { return e.running }

// Settings returns the currently active settings value.
func (e *Engine) Settings() model.Settings { return e.settings }

// Start resets all state, seeds the chart history from the source's
// first sample, and transitions to Running. A live source that cannot
// produce an initial price fails the start and the engine stays Idle.
// An empty replay series is tolerated: the run simply produces zero
// ticks before auto-stopping.
func (e *Engine) Start(ctx context.Context, settings model.Settings, source model.TickSource, isLive bool) error {
	if e.running {
		return ErrAlreadyRunning
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	e.settings = settings
	e.source = source
	e.isLive = isLive

	e.ledger.Reset(settings.InitialBalance)
	e.hist.Reset()
	e.currentPrice = 0
	e.lowWatermark = settings.InitialBalance
	e.highWatermark = settings.InitialBalance

	seed, ok, err := source.Seed(ctx)
	if err != nil {
		return fmt.Errorf("engine: initial price: %w", err)
	}
	if ok {
		e.currentPrice = seed.Price
		e.hist.Append(model.ChartPoint{Time: seed.Time, Price: seed.Price})
	}

	e.running = true
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.EngineRunning.Set(1)
	}
	log.Printf("[engine] started pair=%s live=%v balance=%.2f", settings.TradingPair, isLive, settings.InitialBalance)
	e.broadcast()
	return nil
}

// Stop transitions to Idle and broadcasts the terminal snapshot.
// Safe to call at any time; a second call is a no-op.
func (e *Engine) Stop() {
	if !e.running {
		return
	}
	e.running = false
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.EngineRunning.Set(0)
	}
	log.Printf("[engine] stopped pair=%s trades=%d", e.settings.TradingPair, len(e.ledger.Trades()))
	e.broadcast()
}

// UpdateSettings swaps in a patched settings value while Running.
// Has no effect when Idle: the next Start supplies authoritative settings.
func (e *Engine) UpdateSettings(patch model.SettingsPatch) {
	if !e.running {
		return
	}
	e.settings = patch.Apply(e.settings)
	log.Printf("[engine] settings updated pair=%s", e.settings.TradingPair)
}

// ExecuteTick runs one evaluation cycle: acquire a price, update
// indicators, evaluate sells then buys, broadcast. No-op when Idle.
func (e *Engine) ExecuteTick(ctx context.Context) {
	if !e.running {
		return
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.SkippedTicks.Inc()
		}
		return
	}
	defer e.inFlight.Store(false)

	p, err := e.source.Next(ctx)
	if errors.Is(err, model.ErrExhausted) {
		// Expected terminal condition for replays.
		e.Stop()
		return
	}
	if err != nil {
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.FetchErrors.Inc()
		}
		log.Printf("[engine] price fetch failed, skipping tick: %v", err)
		return
	}

	if e.cfg.Metrics != nil {
		timer := e.cfg.Metrics.TickTimer()
		defer timer.ObserveDuration()
		e.cfg.Metrics.TicksTotal.Inc()
	}
	e.processPoint(p)
}

func (e *Engine) processPoint(p model.PricePoint) {
	s := e.settings

	// Indicators over the rolling history including this sample.
	prices := append(e.hist.Prices(), p.Price)
	fastPeriod, slowPeriod := indicator.Periods(s.DipsSensitivity)
	fast, fastOK := indicator.SMA(prices, fastPeriod, fastPeriod)
	slow, slowOK := indicator.SMA(prices, slowPeriod, slowPeriod)
	trend, trendOK := indicator.SMA(prices, indicator.TrendPeriod, indicator.TrendMinPoints)

	var riskLine *float64
	if trendOK {
		v := indicator.RiskLine(trend, s.RiskLevel)
		riskLine = &v
	}

	// Previous MAs come from what is currently the last chart point.
	prev, havePrev := e.hist.Last()

	point := model.ChartPoint{Time: p.Time, Price: p.Price, RiskLine: riskLine}
	if fastOK {
		point.FastMA = &fast
	}
	if slowOK {
		point.SlowMA = &slow
	}
	e.hist.Append(point)
	e.currentPrice = p.Price

	if !fastOK || !slowOK || !havePrev || prev.FastMA == nil || prev.SlowMA == nil {
		// Warm-up: no trade decision possible yet.
		e.broadcast()
		return
	}
	prevFast, prevSlow := *prev.FastMA, *prev.SlowMA

	sold := e.evaluateSell(p, fast, slow, prevFast, prevSlow)
	if !sold {
		e.evaluateBuy(p, fast, slow, prevFast, prevSlow, riskLine)
	}

	value := e.ledger.Account().Value(p.Price)
	if value < e.lowWatermark {
		e.lowWatermark = value
	}
	if value > e.highWatermark {
		e.highWatermark = value
	}

	e.broadcast()
}

// evaluateSell applies the fixed-priority sell rules: stop-loss, then
// sell-trigger, then bearish crossover. Positions are scanned in FIFO
// order and at most one is closed per tick.
func (e *Engine) evaluateSell(p model.PricePoint, fast, slow, prevFast, prevSlow float64) bool {
	s := e.settings
	open := e.ledger.OpenPositions()

	for i, pos := range open {
		if p.Price <= pos.Price*(1-s.StopLossPercentage/100)*(1+thresholdTol) {
			return e.closeAt(i, p, ReasonStopLoss)
		}
	}

	if s.SellTriggerPercentage > 0 {
		for i, pos := range open {
			if p.Price >= pos.Price*(1+s.SellTriggerPercentage/100)*(1-thresholdTol) {
				return e.closeAt(i, p, ReasonSellTrigger)
			}
		}
	}

	// Bearish crossover is a global signal: it always closes the oldest
	// open position, not whichever position performed worst.
	if fast < slow && prevFast >= prevSlow && len(open) > 0 {
		return e.closeAt(0, p, ReasonCrossover)
	}
	return false
}

// evaluateBuy opens a position on a bullish crossover under the risk
// line, subject to the capacity and dust guards. Only reached when no
// sell occurred this tick.
func (e *Engine) evaluateBuy(p model.PricePoint, fast, slow, prevFast, prevSlow float64, riskLine *float64) {
	s := e.settings
	if !(fast > slow && prevFast <= prevSlow) {
		return
	}
	if e.ledger.OpenCount() >= s.MaxConcurrentPositions {
		return
	}
	if riskLine == nil || p.Price >= *riskLine {
		return
	}

	trade, ok := e.ledger.OpenPosition(p.Price, s.TradeAmountPercentage, p.Time, ReasonCrossover)
	if !ok {
		// Insufficient balance or dust-sized spend; a normal decision
		// outcome, silently skipped.
		return
	}
	log.Printf("[engine] BUY %.6f @ %.2f (%s)", trade.Amount, trade.Price, trade.Reason)
	e.recordFill(trade, s.NotifyOnBuy)
}

func (e *Engine) closeAt(index int, p model.PricePoint, reason string) bool {
	trade, ok := e.ledger.ClosePosition(index, p.Price, p.Time, reason)
	if !ok {
		return false
	}
	log.Printf("[engine] SELL %.6f @ %.2f (%s)", trade.Amount, trade.Price, trade.Reason)
	e.recordFill(trade, e.settings.NotifyOnSell)
	return true
}

func (e *Engine) recordFill(t model.Trade, notify bool) {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.TradesTotal.WithLabelValues(string(t.Type)).Inc()
	}
	if e.cfg.Effects != nil {
		e.cfg.Effects.TradeExecuted(e.settings.TradingPair, t, notify, e.isLive)
	}
}

// Snapshot builds the full engine state for observers. It is always
// derived from fully-updated state, never mid-mutation.
func (e *Engine) Snapshot() *model.Snapshot {
	acc := e.ledger.Account()
	snap := &model.Snapshot{
		IsRunning:     e.running,
		IsLive:        e.isLive,
		Settings:      e.settings,
		Account:       acc,
		CurrentPrice:  e.currentPrice,
		Trades:        e.ledger.Trades(),
		OpenPositions: e.ledger.OpenPositions(),
		ChartHistory:  e.hist.Points(),
		Profit:        acc.Value(e.currentPrice) - e.settings.InitialBalance,
		LowWatermark:  e.lowWatermark,
		HighWatermark: e.highWatermark,
	}
	if e.source != nil {
		snap.ReplayProgressPercent = e.source.Progress()
	}
	return snap
}

func (e *Engine) broadcast() {
	if e.cfg.Emit != nil {
		e.cfg.Emit(e.Snapshot())
	}
}
