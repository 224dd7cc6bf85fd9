package engine

import (
	"context"
	"errors"
	"testing"

	"cryptobot/internal/marketdata/replay"
	"cryptobot/internal/model"
)

// stubSource is an appendable tick source so tests can interleave ticks
// with ledger inspection and new price samples.
type stubSource struct {
	pts []model.PricePoint
	i   int
}

func (s *stubSource) push(price float64) {
	s.pts = append(s.pts, model.PricePoint{Time: int64(len(s.pts)+1) * 1000, Price: price})
}

func (s *stubSource) Seed(ctx context.Context) (model.PricePoint, bool, error) {
	if len(s.pts) == 0 {
		return model.PricePoint{}, false, nil
	}
	return s.pts[0], true, nil
}

func (s *stubSource) Next(ctx context.Context) (model.PricePoint, error) {
	if s.i >= len(s.pts) {
		return model.PricePoint{}, model.ErrExhausted
	}
	p := s.pts[s.i]
	s.i++
	return p, nil
}

func (s *stubSource) Progress() float64 { return 0 }

// failingSource models a live source whose initial fetch fails.
type failingSource struct{ err error }

func (f *failingSource) Seed(ctx context.Context) (model.PricePoint, bool, error) {
	return model.PricePoint{}, false, f.err
}
func (f *failingSource) Next(ctx context.Context) (model.PricePoint, error) {
	return model.PricePoint{}, f.err
}
func (f *failingSource) Progress() float64 { return 0 }

// recordingEffects captures TradeExecuted calls.
type recordingEffects struct {
	fills  []model.Trade
	notify []bool
	live   []bool
}

func (r *recordingEffects) TradeExecuted(pair string, t model.Trade, notify, liveFlag bool) {
	r.fills = append(r.fills, t)
	r.notify = append(r.notify, notify)
	r.live = append(r.live, liveFlag)
}

func testSettings() model.Settings {
	s := model.DefaultSettings()
	s.DipsSensitivity = 100 // fast=5, slow=15: short warm-up
	s.RiskLevel = 50
	s.StopLossPercentage = 5
	s.SellTriggerPercentage = 0
	s.InitialBalance = 1000
	s.TradeAmountPercentage = 50
	s.MaxConcurrentPositions = 1
	return s
}

func points(prices ...float64) []model.PricePoint {
	out := make([]model.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = model.PricePoint{Time: int64(i+1) * 1000, Price: p}
	}
	return out
}

// runAll ticks until the engine stops or the bound is hit, checking the
// per-tick invariants along the way.
func runAll(t *testing.T, e *Engine, bound int) {
	t.Helper()
	ctx := context.Background()
	prevTrades := len(e.ledger.Trades())
	for i := 0; i < bound && e.Running(); i++ {
		e.ExecuteTick(ctx)

		if got := e.ledger.OpenCount(); got > e.settings.MaxConcurrentPositions {
			t.Fatalf("tick %d: open positions %d exceeds cap %d", i, got, e.settings.MaxConcurrentPositions)
		}
		acc := e.ledger.Account()
		if acc.Quote < 0 || acc.Base < 0 {
			t.Fatalf("tick %d: negative balance %+v", i, acc)
		}
		if n := len(e.ledger.Trades()); n-prevTrades > 1 {
			t.Fatalf("tick %d: %d trades in one tick, max is 1", i, n-prevTrades)
		} else {
			prevTrades = n
		}
	}
}

func TestStartRejectsWhenRunning(t *testing.T) {
	e := New(Config{})
	ctx := context.Background()
	if err := e.Start(ctx, testSettings(), replay.New(points(100)), false); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := e.Start(ctx, testSettings(), replay.New(points(100)), false); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second start: got %v, want ErrAlreadyRunning", err)
	}
}

func TestStartLiveFetchFailureStaysIdle(t *testing.T) {
	e := New(Config{})
	src := &failingSource{err: errors.New("network down")}
	if err := e.Start(context.Background(), testSettings(), src, true); err == nil {
		t.Fatal("expected start to fail without an initial price")
	}
	if e.Running() {
		t.Error("engine must remain idle after a failed start")
	}
}

func TestEmptyReplayProducesZeroTicks(t *testing.T) {
	e := New(Config{})
	ctx := context.Background()
	if err := e.Start(ctx, testSettings(), replay.New(nil), false); err != nil {
		t.Fatalf("start on empty series: %v", err)
	}
	if !e.Running() {
		t.Fatal("expected running after start")
	}
	e.ExecuteTick(ctx) // immediate exhaustion
	if e.Running() {
		t.Error("expected auto-stop on empty series")
	}
	if got := len(e.ledger.Trades()); got != 0 {
		t.Errorf("trades: got %d, want 0", got)
	}
}

func TestReplayExhaustionAutoStopsAtTickNPlusOne(t *testing.T) {
	series := points(100, 101, 102, 103, 104)
	e := New(Config{})
	ctx := context.Background()
	if err := e.Start(ctx, testSettings(), replay.New(series), false); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < len(series); i++ {
		e.ExecuteTick(ctx)
		if !e.Running() {
			t.Fatalf("tick %d: stopped before exhaustion", i+1)
		}
	}
	e.ExecuteTick(ctx) // tick N+1 hits exhaustion
	if e.Running() {
		t.Error("expected stop at tick N+1")
	}
	e.ExecuteTick(ctx) // further ticks are no-ops, must not panic
}

func TestWarmupGatingNoTrades(t *testing.T) {
	// Series shorter than the slow period (15): every tick returns
	// before trade evaluation.
	s := testSettings()
	prices := make([]float64, 10)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	e := New(Config{})
	if err := e.Start(context.Background(), s, replay.New(points(prices...)), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	runAll(t, e, 20)
	if got := len(e.ledger.Trades()); got != 0 {
		t.Errorf("trades during warm-up: got %d, want 0", got)
	}
}

func TestIncreasingPricesNeverBuyAboveRiskLine(t *testing.T) {
	// Strictly increasing series: the price outruns the trend average,
	// so every sample sits at or above the risk line and no buy fires.
	s := model.DefaultSettings()
	s.DipsSensitivity = 50
	s.RiskLevel = 50
	s.MaxConcurrentPositions = 1
	s.StopLossPercentage = 5

	prices := make([]float64, 101)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	e := New(Config{})
	if err := e.Start(context.Background(), s, replay.New(points(prices...)), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	runAll(t, e, len(prices)+2)

	buys := 0
	for _, tr := range e.ledger.Trades() {
		if tr.Type == model.SideBuy {
			buys++
		} else if buys == 0 {
			t.Error("SELL recorded before any BUY")
		}
	}
	if buys > 1 {
		t.Errorf("buys: got %d, want at most 1", buys)
	}
}

func TestStopLossClosesFirstQualifyingPosition(t *testing.T) {
	src := &stubSource{}
	for i := 0; i < 16; i++ {
		// Declining warm-up keeps the fast MA under the slow MA, so a
		// further drop cannot read as a bearish crossover and the only
		// rule able to close the position is the stop-loss.
		src.push(1015 - float64(i))
	}
	eff := &recordingEffects{}
	e := New(Config{Effects: eff})
	s := testSettings()
	s.NotifyOnSell = true
	if err := e.Start(context.Background(), s, src, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	runAll(t, e, 16)

	// Enter a position at 1000 directly on the ledger.
	if _, ok := e.ledger.OpenPosition(1000, 50, 16000, "test entry"); !ok {
		t.Fatal("seed position failed")
	}

	// 960 is above the 5% stop line (950): no sell yet.
	src.push(960)
	e.ExecuteTick(context.Background())
	if e.ledger.OpenCount() != 1 {
		t.Fatal("position closed above the stop line")
	}

	// 950 breaches entry*(1-5%): first qualifying position closes.
	src.push(950)
	e.ExecuteTick(context.Background())
	if e.ledger.OpenCount() != 0 {
		t.Fatal("expected stop-loss close")
	}
	trades := e.ledger.Trades()
	last := trades[len(trades)-1]
	if last.Type != model.SideSell || last.Reason != ReasonStopLoss {
		t.Errorf("last trade: got %s %q, want SELL %q", last.Type, last.Reason, ReasonStopLoss)
	}
	if last.Price != 950 {
		t.Errorf("sell price: got %v, want 950", last.Price)
	}
	if n := len(eff.fills); n == 0 || !eff.notify[n-1] {
		t.Error("sell fill should request a notification when the toggle is on")
	}
}

func TestSellTriggerTakeProfit(t *testing.T) {
	src := &stubSource{}
	for i := 0; i < 16; i++ {
		src.push(100)
	}
	e := New(Config{})
	s := testSettings()
	s.StopLossPercentage = 50 // out of the way
	s.SellTriggerPercentage = 10
	if err := e.Start(context.Background(), s, src, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	runAll(t, e, 16)
	e.ledger.OpenPosition(100, 50, 16000, "test entry")

	src.push(109) // below the 10% trigger at 110
	e.ExecuteTick(context.Background())
	if e.ledger.OpenCount() != 1 {
		t.Fatal("sold below the trigger line")
	}

	// Exactly entry*1.10. The boundary itself must fire even though the
	// threshold product rounds to 110.00000000000001.
	src.push(110)
	e.ExecuteTick(context.Background())
	trades := e.ledger.Trades()
	last := trades[len(trades)-1]
	if last.Type != model.SideSell || last.Reason != ReasonSellTrigger {
		t.Errorf("last trade: got %s %q, want SELL %q", last.Type, last.Reason, ReasonSellTrigger)
	}
}

func TestSellTriggerZeroDisablesCheck(t *testing.T) {
	src := &stubSource{}
	for i := 0; i < 16; i++ {
		src.push(100)
	}
	e := New(Config{})
	s := testSettings()
	s.StopLossPercentage = 90
	s.SellTriggerPercentage = 0
	if err := e.Start(context.Background(), s, src, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	runAll(t, e, 16)
	e.ledger.OpenPosition(100, 50, 16000, "test entry")

	// A 3x spike would trip any take-profit, but 0 disables the check
	// entirely. The jump is a bullish, not bearish, signal so the
	// crossover rule cannot sell either.
	src.push(300)
	e.ExecuteTick(context.Background())
	if e.ledger.OpenCount() != 1 {
		t.Error("position closed although sell trigger is disabled")
	}
}

func TestBearishCrossoverClosesOldestPosition(t *testing.T) {
	src := &stubSource{}
	for i := 0; i < 30; i++ {
		src.push(100 + float64(i)) // rising: fast above slow
	}
	e := New(Config{})
	s := testSettings()
	s.StopLossPercentage = 90 // entries far below market, stop can't fire
	s.MaxConcurrentPositions = 5
	if err := e.Start(context.Background(), s, src, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	runAll(t, e, 30)

	e.ledger.OpenPosition(50, 10, 100, "older entry")
	e.ledger.OpenPosition(50, 10, 200, "newer entry")

	// Sharp decline until the fast MA crosses under the slow MA.
	price := 129.0
	for i := 0; i < 20 && len(e.ledger.Trades()) < 3; i++ {
		price -= 8
		src.push(price)
		e.ExecuteTick(context.Background())
	}

	trades := e.ledger.Trades()
	last := trades[len(trades)-1]
	if last.Type != model.SideSell || last.Reason != ReasonCrossover {
		t.Fatalf("last trade: got %s %q, want SELL %q", last.Type, last.Reason, ReasonCrossover)
	}
	if e.ledger.OpenCount() != 1 {
		t.Fatalf("open count: got %d, want 1", e.ledger.OpenCount())
	}
	remaining, _ := e.ledger.Position(0)
	if remaining.Time != 200 {
		t.Errorf("crossover sell must close the oldest position; remaining time=%d, want 200", remaining.Time)
	}
}

func TestBullishCrossoverBuysUnderRiskLine(t *testing.T) {
	// Decline then sharp recovery: the fast MA crosses above the slow
	// MA while the price is still under the (generous) risk line.
	prices := make([]float64, 0, 60)
	p := 200.0
	for i := 0; i < 30; i++ {
		prices = append(prices, p)
		p--
	}
	for i := 0; i < 20; i++ {
		p += 3
		prices = append(prices, p)
	}

	eff := &recordingEffects{}
	e := New(Config{Effects: eff})
	s := testSettings()
	s.RiskLevel = 90 // risk line 20% above the trend average
	s.StopLossPercentage = 50
	s.NotifyOnBuy = true
	if err := e.Start(context.Background(), s, replay.New(points(prices...)), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	runAll(t, e, len(prices)+2)

	var buys []model.Trade
	for _, tr := range e.ledger.Trades() {
		if tr.Type == model.SideBuy {
			buys = append(buys, tr)
		}
	}
	if len(buys) != 1 {
		t.Fatalf("buys: got %d, want 1", len(buys))
	}
	if buys[0].Reason != ReasonCrossover {
		t.Errorf("buy reason: got %q, want %q", buys[0].Reason, ReasonCrossover)
	}
	if len(eff.fills) == 0 || !eff.notify[0] {
		t.Error("buy fill should request a notification when the toggle is on")
	}
	if eff.live[0] {
		t.Error("paper run must not request a live order")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	var snaps []*model.Snapshot
	e := New(Config{Emit: func(s *model.Snapshot) { snaps = append(snaps, s) }})
	if err := e.Start(context.Background(), testSettings(), replay.New(points(100, 101)), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	e.ExecuteTick(context.Background())

	e.Stop()
	afterFirst := *e.Snapshot()
	n := len(snaps)
	e.Stop() // no-op
	afterSecond := *e.Snapshot()

	if afterFirst.IsRunning || afterSecond.IsRunning {
		t.Error("snapshots after stop must report not running")
	}
	if len(snaps) != n {
		t.Error("second stop must not broadcast again")
	}
	if afterFirst.CurrentPrice != afterSecond.CurrentPrice || len(afterFirst.Trades) != len(afterSecond.Trades) {
		t.Error("double stop changed terminal state")
	}
}

func TestUpdateSettingsOnlyWhileRunning(t *testing.T) {
	e := New(Config{})
	risk := 75.0
	patch := model.SettingsPatch{RiskLevel: &risk}

	e.UpdateSettings(patch) // idle: no effect
	if e.Settings().RiskLevel == risk {
		t.Error("idle update must not apply")
	}

	if err := e.Start(context.Background(), testSettings(), replay.New(points(100)), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	e.UpdateSettings(patch)
	if e.Settings().RiskLevel != risk {
		t.Error("running update must apply")
	}
	// Untouched fields survive the merge.
	if e.Settings().InitialBalance != 1000 {
		t.Errorf("initialBalance: got %v, want 1000", e.Settings().InitialBalance)
	}
}

func TestSnapshotBroadcastEveryTick(t *testing.T) {
	var snaps []*model.Snapshot
	e := New(Config{Emit: func(s *model.Snapshot) { snaps = append(snaps, s) }})
	series := points(100, 101, 102)
	if err := e.Start(context.Background(), testSettings(), replay.New(series), false); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("initial snapshots: got %d, want 1", len(snaps))
	}
	for i := 0; i < 3; i++ {
		e.ExecuteTick(context.Background())
	}
	// 1 initial + 3 ticks
	if len(snaps) != 4 {
		t.Fatalf("snapshots: got %d, want 4", len(snaps))
	}
	e.ExecuteTick(context.Background()) // exhaustion -> terminal snapshot
	last := snaps[len(snaps)-1]
	if last.IsRunning {
		t.Error("terminal snapshot must report not running")
	}
	if last.ReplayProgressPercent != 100 {
		t.Errorf("terminal progress: got %v, want 100", last.ReplayProgressPercent)
	}
}
