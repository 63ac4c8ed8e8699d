package monitor

import (
	"context"
	"time"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/metrics"
	"github.com/matheus3301/wpphub/internal/status"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the health service name that reports whether any connection is up.
const Service = "wpphub.connections"

// ConnectionService returns the health service name of one connection: its id.
func ConnectionService(id string) string {
	return id
}

// Counter reports how many connections sit in each status.
type Counter interface {
	CountByStatus() map[string]int
}

// HealthSetter is satisfied by *health.Server.
type HealthSetter interface {
	SetServingStatus(service string, servingStatus healthpb.HealthCheckResponse_ServingStatus)
}

// Monitor follows status events on the bus and keeps the session gauges and
// the health server in step with the registry.
type Monitor struct {
	counter  Counter
	bus      *bus.Bus
	metrics  *metrics.Metrics
	health   HealthSetter
	logger   *zap.Logger
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a monitor. interval is the period of the full resync that
// catches connections removed without a final status event; zero disables it.
func New(counter Counter, b *bus.Bus, m *metrics.Metrics, h HealthSetter, logger *zap.Logger, interval time.Duration) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		counter:  counter,
		bus:      b,
		metrics:  m,
		health:   h,
		logger:   logger,
		interval: interval,
	}
}

// Start subscribes to status events.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	ch, unsub := m.bus.Subscribe(bus.Kinds(bus.KindStatus), 256)
	m.refresh()

	go func() {
		defer close(m.done)
		defer unsub()
		var tick <-chan time.Time
		if m.interval > 0 {
			t := time.NewTicker(m.interval)
			defer t.Stop()
			tick = t.C
		}
		for {
			select {
			case evt := <-ch:
				m.handleEvent(evt)
			case <-tick:
				m.refresh()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the monitor and waits for its loop to exit.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Monitor) handleEvent(evt bus.Event) {
	change, ok := evt.Payload.(status.StatusChange)
	if ok && evt.ConnectionID != "" && m.health != nil {
		serving := healthpb.HealthCheckResponse_NOT_SERVING
		if change.To == status.Connected {
			serving = healthpb.HealthCheckResponse_SERVING
		}
		m.health.SetServingStatus(ConnectionService(evt.ConnectionID), serving)
	}
	m.refresh()
}

func (m *Monitor) refresh() {
	counts := m.counter.CountByStatus()
	m.metrics.SetSessions(counts)
	if m.health == nil {
		return
	}
	serving := healthpb.HealthCheckResponse_NOT_SERVING
	if counts[string(status.Connected)] > 0 {
		serving = healthpb.HealthCheckResponse_SERVING
	}
	m.health.SetServingStatus(Service, serving)
	m.logger.Debug("connection status refreshed", zap.Any("counts", counts))
}
