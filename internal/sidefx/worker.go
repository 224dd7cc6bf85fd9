// Package sidefx drains fire-and-forget side effects of executed trades:
// journal writes, notifications, and live order placement. The engine
// enqueues without blocking; failures and latency here never delay the
// next scheduled tick.
package sidefx

import (
	"context"
	"fmt"
	"log"

	"cryptobot/internal/metrics"
	"cryptobot/internal/model"
	"cryptobot/internal/notification"
)

// Request is one executed trade awaiting side-effect processing.
type Request struct {
	Pair   string
	Trade  model.Trade
	Notify bool
	Live   bool
}

// Worker consumes trade requests from a bounded queue. When the queue is
// full the request is dropped and counted; the tick loop is never
// backpressured.
type Worker struct {
	queue    chan Request
	notifier notification.Notifier
	orders   model.OrderPlacer  // nil = paper trading only
	journal  model.TradeJournal // nil = no persistence
	metrics  *metrics.Metrics   // may be nil
}

// NewWorker creates a side-effect worker with the given queue capacity.
func NewWorker(bufferSize int, notifier notification.Notifier, orders model.OrderPlacer, journal model.TradeJournal, m *metrics.Metrics) *Worker {
	if notifier == nil {
		notifier = notification.NewLogNotifier()
	}
	return &Worker{
		queue:    make(chan Request, bufferSize),
		notifier: notifier,
		orders:   orders,
		journal:  journal,
		metrics:  m,
	}
}

// TradeExecuted enqueues a trade for side-effect processing. Non-blocking;
// drops on a full queue. Satisfies the engine's Effects interface.
func (w *Worker) TradeExecuted(pair string, t model.Trade, notify, live bool) {
	select {
	case w.queue <- Request{Pair: pair, Trade: t, Notify: notify, Live: live}:
	default:
		if w.metrics != nil {
			w.metrics.SideEffectDrops.Inc()
		}
		log.Printf("[sidefx] queue full, dropping effects for trade %d", t.ID)
	}
}

// Run drains the queue until ctx is cancelled. In-flight effects from the
// last tick are allowed to complete after the session stops.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-w.queue:
			if !ok {
				return
			}
			w.process(ctx, req)
		}
	}
}

func (w *Worker) process(ctx context.Context, req Request) {
	if w.journal != nil {
		if err := w.journal.RecordTrade(req.Pair, req.Trade); err != nil {
			w.countError("journal")
			log.Printf("[sidefx] journal write failed: %v", err)
		}
	}

	if req.Notify {
		alert := notification.Alert{
			Level: notification.AlertInfo,
			Title: fmt.Sprintf("%s executed", req.Trade.Type),
			Message: fmt.Sprintf("%s %s %.6f @ %.2f (%s)",
				req.Pair, req.Trade.Type, req.Trade.Amount, req.Trade.Price, req.Trade.Reason),
			Trade: &notification.TradeEvent{
				Pair:   req.Pair,
				Side:   string(req.Trade.Type),
				Price:  req.Trade.Price,
				Amount: req.Trade.Amount,
				Reason: req.Trade.Reason,
				Time:   req.Trade.Time,
			},
		}
		if err := w.notifier.Send(ctx, alert); err != nil {
			w.countError("notify")
			log.Printf("[sidefx] notification failed: %v", err)
		}
	}

	if req.Live && w.orders != nil {
		orderID, err := w.orders.PlaceMarketOrder(ctx, req.Pair, req.Trade.Type, req.Trade.Amount)
		if err != nil {
			w.countError("order")
			log.Printf("[sidefx] order placement failed: %v", err)
			return
		}
		log.Printf("[sidefx] placed %s order %s: %.6f %s", req.Trade.Type, orderID, req.Trade.Amount, req.Pair)
	}
}

func (w *Worker) countError(kind string) {
	if w.metrics != nil {
		w.metrics.SideEffectErrors.WithLabelValues(kind).Inc()
	}
}
