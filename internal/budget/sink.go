package budget

import (
	"context"
	"sync"

	"rimborsi/internal/core"
	applog "rimborsi/internal/log"
)

// EventSink receives budget events. Publish is fire-and-forget: sinks handle
// their own delivery failures.
type EventSink interface {
	Publish(ctx context.Context, ev core.BudgetExceededEvent)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, ev core.BudgetExceededEvent)

func (f SinkFunc) Publish(ctx context.Context, ev core.BudgetExceededEvent) { f(ctx, ev) }

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, core.BudgetExceededEvent) {}

// Fanout delivers each event to all sinks in order.
func Fanout(sinks ...EventSink) EventSink {
	return SinkFunc(func(ctx context.Context, ev core.BudgetExceededEvent) {
		for _, s := range sinks {
			if s != nil {
				s.Publish(ctx, ev)
			}
		}
	})
}

// LogSink writes each event as a structured warning.
func LogSink(logger *applog.Logger) EventSink {
	sl := applog.NewStructuredLogger(logger)
	return SinkFunc(sl.LogBudgetExceeded)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []core.BudgetExceededEvent
}

func (r *Recorder) Publish(_ context.Context, ev core.BudgetExceededEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []core.BudgetExceededEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.BudgetExceededEvent(nil), r.events...)
}
