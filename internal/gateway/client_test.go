package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cryptobot/internal/scheduler"
	"cryptobot/internal/session"

	"github.com/pquerna/otp/totp"
)

func newTestClient(t *testing.T, totpSecret string) *client {
	t.Helper()
	// Manual scheduler: nothing ticks unless the test drives it.
	sess := session.New(session.Config{
		NewScheduler: func() scheduler.Scheduler { return scheduler.NewManual() },
	})
	g := New(sess, nil, totpSecret)
	id, _, err := sess.Subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return newClient(g, nil, id)
}

func nextEnvelope(t *testing.T, c *client) outbound {
	t.Helper()
	select {
	case raw := <-c.send:
		var env outbound
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("bad envelope %s: %v", raw, err)
		}
		return env
	default:
		t.Fatal("no queued message")
		return outbound{}
	}
}

func TestGetStateReturnsSnapshot(t *testing.T) {
	c := newTestClient(t, "")
	c.handleMessage([]byte(`{"type":"getState"}`))
	env := nextEnvelope(t, c)
	if env.Type != "state" || env.Data == nil {
		t.Errorf("envelope: got %+v, want state with data", env)
	}
	if env.Data.IsRunning {
		t.Error("idle session must report not running")
	}
}

func TestStartStopFlow(t *testing.T) {
	c := newTestClient(t, "")
	c.handleMessage([]byte(`{
		"type": "start",
		"settings": {"tradingPair": "ETH-USD"},
		"replayData": [{"time": 1000, "price": 100}, {"time": 2000, "price": 101}]
	}`))
	env := nextEnvelope(t, c)
	if env.Type != "ack" || env.Action != "start" {
		t.Fatalf("start response: got %+v", env)
	}
	if !c.gw.session.Running() {
		t.Fatal("session should be running")
	}
	snap := c.gw.session.GetSnapshot(context.Background())
	if snap.Settings.TradingPair != "ETH-USD" {
		t.Errorf("pair: got %q, want ETH-USD", snap.Settings.TradingPair)
	}
	// Unset fields fall back to defaults, not zero values.
	if snap.Settings.InitialBalance != 1000 {
		t.Errorf("initialBalance: got %v, want default 1000", snap.Settings.InitialBalance)
	}

	c.handleMessage([]byte(`{"type":"stop"}`))
	env = nextEnvelope(t, c)
	if env.Type != "ack" || env.Action != "stop" {
		t.Fatalf("stop response: got %+v", env)
	}
	if c.gw.session.Running() {
		t.Error("session should be stopped")
	}
}

func TestStartWhileRunningReportsError(t *testing.T) {
	c := newTestClient(t, "")
	start := []byte(`{"type":"start","replayData":[{"time":1000,"price":100}]}`)
	c.handleMessage(start)
	nextEnvelope(t, c) // ack
	c.handleMessage(start)
	env := nextEnvelope(t, c)
	if env.Type != "error" {
		t.Errorf("second start: got %+v, want error", env)
	}
}

func TestMalformedAndUnknownMessages(t *testing.T) {
	c := newTestClient(t, "")

	c.handleMessage([]byte(`{not json`))
	if env := nextEnvelope(t, c); env.Type != "error" {
		t.Errorf("malformed: got %+v", env)
	}

	c.handleMessage([]byte(`{"type":"selfDestruct"}`))
	if env := nextEnvelope(t, c); env.Type != "error" {
		t.Errorf("unknown type: got %+v", env)
	}
}

func TestUpdateSettingsRequiresPayload(t *testing.T) {
	c := newTestClient(t, "")
	c.handleMessage([]byte(`{"type":"updateSettings"}`))
	if env := nextEnvelope(t, c); env.Type != "error" {
		t.Errorf("missing payload: got %+v", env)
	}
}

func TestPingPong(t *testing.T) {
	c := newTestClient(t, "")
	c.handleMessage([]byte(`{"ping": 42}`))
	env := nextEnvelope(t, c)
	if env.Type != "pong" || env.Ping != 42 {
		t.Errorf("pong: got %+v", env)
	}
	if env.ServerTS == 0 {
		t.Error("pong must carry a server timestamp")
	}
}

func TestTOTPGuard(t *testing.T) {
	const secret = "JBSWY3DPEHPK3PXP"
	c := newTestClient(t, secret)

	c.handleMessage([]byte(`{"type":"stop"}`))
	if env := nextEnvelope(t, c); env.Type != "error" {
		t.Errorf("missing code: got %+v", env)
	}

	c.handleMessage([]byte(`{"type":"stop","totp":"000000"}`))
	if env := nextEnvelope(t, c); env.Type != "error" {
		t.Errorf("bad code: got %+v", env)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	c.handleMessage([]byte(`{"type":"stop","totp":"` + code + `"}`))
	if env := nextEnvelope(t, c); env.Type != "ack" {
		t.Errorf("valid code: got %+v", env)
	}

	// Read-only messages bypass the guard.
	c.handleMessage([]byte(`{"type":"getState"}`))
	if env := nextEnvelope(t, c); env.Type != "state" {
		t.Errorf("getState with guard: got %+v", env)
	}
}
