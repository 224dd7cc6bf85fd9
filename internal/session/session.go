// Package session owns one engine's lifecycle: start/stop, tick
// scheduling, config hot-swap while running, and fan-out of state
// snapshots to subscribed observers.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"cryptobot/internal/engine"
	"cryptobot/internal/marketdata/live"
	"cryptobot/internal/marketdata/replay"
	"cryptobot/internal/metrics"
	"cryptobot/internal/model"
	"cryptobot/internal/scheduler"
)

// MaxObservers caps concurrent snapshot subscriptions to protect
// resource-constrained hosts.
const MaxObservers = 10

// ErrTooManyObservers is returned by Subscribe past the observer cap.
var ErrTooManyObservers = errors.New("session: observer limit reached")

// ErrNoPriceProvider is returned by Start when a live-feed run is
// requested but no exchange client is configured.
var ErrNoPriceProvider = errors.New("session: no price provider configured")

// StartRequest carries everything needed to begin a run. A non-nil
// ReplayData selects backtest mode; otherwise the session feeds from the
// live price provider. IsLive additionally forwards fills as real orders.
type StartRequest struct {
	Settings   model.Settings
	ReplayData []model.PricePoint
	IsLive     bool
}

// Config wires a session's collaborators.
type Config struct {
	Prices          model.PriceFetcher // nil disables live-feed runs
	Effects         engine.Effects
	Metrics         *metrics.Metrics
	SnapshotCache   model.SnapshotCache          // optional
	SettingsStore   model.SettingsStore          // optional
	NewScheduler    func() scheduler.Scheduler   // default scheduler.NewTimer
	HistoryCapacity int
	TickTimeout     time.Duration // per-tick fetch budget, default 15s
}

// Session is one independently owned trading session. Multiple sessions
// (for example per trading pair) share no mutable state.
type Session struct {
	cfg Config

	mu      sync.Mutex // serializes engine access: commands and ticks
	eng     *engine.Engine
	sched   scheduler.Scheduler
	started bool // a run has ever been started in this process

	obsMu     sync.Mutex
	observers map[int]chan *model.Snapshot
	nextObsID int

	ctx     context.Context
	cacheCh chan *model.Snapshot
}

// New creates an idle session.
func New(cfg Config) *Session {
	if cfg.NewScheduler == nil {
		cfg.NewScheduler = func() scheduler.Scheduler { return scheduler.NewTimer() }
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 15 * time.Second
	}
	s := &Session{
		cfg:       cfg,
		observers: make(map[int]chan *model.Snapshot),
		ctx:       context.Background(),
		cacheCh:   make(chan *model.Snapshot, 1),
	}
	s.eng = engine.New(engine.Config{
		HistoryCapacity: cfg.HistoryCapacity,
		Effects:         cfg.Effects,
		Metrics:         cfg.Metrics,
		Emit:            s.publish,
	})
	return s
}

// Run services background work (snapshot cache writes) until ctx is
// done, then stops the session. Call in its own goroutine.
func (s *Session) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case snap := <-s.cacheCh:
			if s.cfg.SnapshotCache == nil {
				continue
			}
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.cfg.SnapshotCache.SaveSnapshot(saveCtx, snap); err != nil {
				log.Printf("[session] snapshot cache write failed: %v", err)
			}
			cancel()
		}
	}
}

// Start begins a run. Returns engine.ErrAlreadyRunning when one is in
// progress, or the engine's startup error (e.g. no initial live price).
func (s *Session) Start(ctx context.Context, req StartRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	isReplay := req.ReplayData != nil
	var source model.TickSource
	if isReplay {
		source = replay.New(req.ReplayData)
	} else {
		if s.cfg.Prices == nil {
			return ErrNoPriceProvider
		}
		source = live.New(s.cfg.Prices, req.Settings.TradingPair)
	}

	if err := s.eng.Start(ctx, req.Settings, source, req.IsLive); err != nil {
		return err
	}
	s.started = true
	if s.cfg.SettingsStore != nil {
		if err := s.cfg.SettingsStore.SaveSettings(ctx, req.Settings); err != nil {
			log.Printf("[session] settings save failed: %v", err)
		}
	}

	interval := time.Duration(req.Settings.TickInterval(!isReplay)) * time.Millisecond
	s.sched = s.cfg.NewScheduler()
	s.sched.Start(interval, s.tick)
	log.Printf("[session] run started pair=%s replay=%v interval=%s", req.Settings.TradingPair, isReplay, interval)
	return nil
}

// tick runs one engine cycle, then cancels the schedule if the engine
// auto-stopped (replay exhaustion).
func (s *Session) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.eng.Running() {
		return
	}
	tickCtx, cancel := context.WithTimeout(s.ctx, s.cfg.TickTimeout)
	s.eng.ExecuteTick(tickCtx)
	cancel()
	if !s.eng.Running() && s.sched != nil {
		s.sched.Stop()
	}
}

// Stop cancels the tick schedule and stops the engine. Idempotent and
// safe to call at any point; in-flight side effects may still complete.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		s.sched.Stop()
	}
	s.eng.Stop()
}

// UpdateSettings applies a partial settings update to a running engine.
// No effect while idle.
func (s *Session) UpdateSettings(patch model.SettingsPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eng.UpdateSettings(patch)
}

// Running reports whether the engine is currently running.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng.Running()
}

// GetSnapshot returns the current engine state. Before the first run of
// this process it falls back to the cached last snapshot, if any.
func (s *Session) GetSnapshot(ctx context.Context) *model.Snapshot {
	s.mu.Lock()
	started := s.started
	snap := s.eng.Snapshot()
	s.mu.Unlock()

	if !started && s.cfg.SnapshotCache != nil {
		if cached, err := s.cfg.SnapshotCache.LoadSnapshot(ctx); err == nil && cached != nil {
			cached.IsRunning = false
			return cached
		}
	}
	return snap
}

// Subscribe registers an observer and returns its id and snapshot
// channel. Slow observers miss snapshots rather than blocking the tick
// loop. Subscriptions beyond MaxObservers are rejected explicitly.
func (s *Session) Subscribe() (int, <-chan *model.Snapshot, error) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	if len(s.observers) >= MaxObservers {
		return 0, nil, ErrTooManyObservers
	}
	s.nextObsID++
	id := s.nextObsID
	ch := make(chan *model.Snapshot, 16)
	s.observers[id] = ch
	return id, ch, nil
}

// Unsubscribe removes an observer and closes its channel.
func (s *Session) Unsubscribe(id int) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	if ch, ok := s.observers[id]; ok {
		delete(s.observers, id)
		close(ch)
	}
}

// ObserverCount returns the number of subscribed observers.
func (s *Session) ObserverCount() int {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	return len(s.observers)
}

// publish fans a snapshot out to all observers and queues it for the
// cache writer. Full observer channels are skipped, never awaited.
func (s *Session) publish(snap *model.Snapshot) {
	s.obsMu.Lock()
	for _, ch := range s.observers {
		select {
		case ch <- snap:
		default:
		}
	}
	s.obsMu.Unlock()

	// Latest-wins cache queue: replace any pending entry.
	select {
	case s.cacheCh <- snap:
	default:
		select {
		case <-s.cacheCh:
		default:
		}
		select {
		case s.cacheCh <- snap:
		default:
		}
	}
}
