package notify

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/wpphub/internal/metrics"
	"go.uber.org/zap"
)

// Event names delivered to sinks.
const (
	EventStatus          = "status"
	EventMessageReceived = "message_received"
	EventMessageSent     = "message_sent"
	EventBroadcastDone   = "broadcast_completed"
)

// Event is the JSON document delivered to every sink.
type Event struct {
	Event        string    `json:"event"`
	ConnectionID string    `json:"connectionId"`
	Timestamp    time.Time `json:"timestamp"`
	Data         any       `json:"data,omitempty"`
}

// Sink delivers one event to an external system.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt Event) error
}

// Fanout hands every event to all sinks in the background. Failures are
// logged and counted, never returned to the caller.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewFanout creates a fan-out over sinks. timeout bounds each delivery.
func NewFanout(logger *zap.Logger, m *metrics.Metrics, timeout time.Duration, sinks ...Sink) *Fanout {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fanout{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Notify schedules delivery of evt to every sink and returns immediately.
func (f *Fanout) Notify(ctx context.Context, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	base := context.WithoutCancel(ctx)
	for _, s := range f.sinks {
		f.wg.Add(1)
		go func(s Sink) {
			defer f.wg.Done()
			dctx, cancel := context.WithTimeout(base, f.timeout)
			defer cancel()
			err := s.Deliver(dctx, evt)
			f.metrics.Notification(s.Name(), err)
			if err != nil {
				f.logger.Warn("notification delivery failed",
					zap.String("sink", s.Name()),
					zap.String("event", evt.Event),
					zap.String("connection", evt.ConnectionID),
					zap.Error(err))
			}
		}(s)
	}
}

// Wait blocks until all in-flight deliveries finish.
func (f *Fanout) Wait() {
	f.wg.Wait()
}
