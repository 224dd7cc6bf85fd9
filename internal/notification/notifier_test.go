package notification

import (
	"context"
	"errors"
	"testing"
)

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Send(ctx context.Context, a Alert) error {
	s.calls++
	return s.err
}

func TestMultiPartialFailureContinues(t *testing.T) {
	wantErr := errors.New("channel down")
	failing := &stubNotifier{err: wantErr}
	healthy := &stubNotifier{}
	m := Multi{failing, healthy}

	err := m.Send(context.Background(), Alert{Level: AlertInfo, Title: "t", Message: "m"})
	if !errors.Is(err, wantErr) {
		t.Errorf("err: got %v, want %v", err, wantErr)
	}
	if healthy.calls != 1 {
		t.Errorf("healthy channel calls: got %d, want 1", healthy.calls)
	}
}

func TestMultiAllHealthy(t *testing.T) {
	a, b := &stubNotifier{}, &stubNotifier{}
	if err := (Multi{a, b}).Send(context.Background(), Alert{Level: AlertInfo}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls: got %d, %d, want 1, 1", a.calls, b.calls)
	}
}
