// Package notification provides trade alert delivery to external
// channels (Telegram, webhooks). Delivery is fire-and-forget from the
// engine's perspective: the side-effect worker calls Send off the tick
// loop and logs failures.
package notification

import (
	"context"
	"log"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// TradeEvent carries the structured fields of an executed fill for
// channels that deliver machine-readable payloads.
type TradeEvent struct {
	Pair   string  `json:"pair"`
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
	Time   int64   `json:"time"`
}

// Alert represents a notification to be sent. Trade is nil for alerts
// that are not fills.
type Alert struct {
	Level   AlertLevel  `json:"level"`
	Title   string      `json:"title"`
	Message string      `json:"message"`
	Trade   *TradeEvent `json:"trade,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them. Used in development
// and whenever no channel is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to several notifiers. Partial failure does not
// abort delivery to the remaining notifiers; the first error is returned.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			log.Printf("[notify] channel failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
