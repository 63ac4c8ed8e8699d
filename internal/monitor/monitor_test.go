package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/metrics"
	"github.com/matheus3301/wpphub/internal/status"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *fakeCounter) set(counts map[string]int) {
	c.mu.Lock()
	c.counts = counts
	c.mu.Unlock()
}

func (c *fakeCounter) CountByStatus() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

type fakeHealth struct {
	mu       sync.Mutex
	statuses map[string]healthpb.HealthCheckResponse_ServingStatus
}

func (h *fakeHealth) SetServingStatus(service string, s healthpb.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.statuses == nil {
		h.statuses = make(map[string]healthpb.HealthCheckResponse_ServingStatus)
	}
	h.statuses[service] = s
}

func (h *fakeHealth) get(service string) healthpb.HealthCheckResponse_ServingStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statuses[service]
}

func waitStatus(t *testing.T, h *fakeHealth, service string, want healthpb.HealthCheckResponse_ServingStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.get(service) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s = %v, want %v", service, h.get(service), want)
}

func TestMonitorTracksStatusEvents(t *testing.T) {
	b := bus.New()
	counter := &fakeCounter{counts: map[string]int{"connecting": 1}}
	h := &fakeHealth{}
	m := New(counter, b, metrics.New(), h, nil, 0)
	m.Start(context.Background())
	defer m.Stop()

	if got := h.get(Service); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("initial %s = %v, want NOT_SERVING", Service, got)
	}

	counter.set(map[string]int{"connected": 1})
	b.Publish(bus.Event{
		Kind:         bus.KindStatus,
		ConnectionID: "acme",
		Payload:      status.StatusChange{From: status.Connecting, To: status.Connected},
	})
	waitStatus(t, h, Service, healthpb.HealthCheckResponse_SERVING)
	waitStatus(t, h, ConnectionService("acme"), healthpb.HealthCheckResponse_SERVING)

	counter.set(map[string]int{"reconnecting": 1})
	b.Publish(bus.Event{
		Kind:         bus.KindStatus,
		ConnectionID: "acme",
		Payload:      status.StatusChange{From: status.Connected, To: status.Disconnected},
	})
	waitStatus(t, h, Service, healthpb.HealthCheckResponse_NOT_SERVING)
	waitStatus(t, h, ConnectionService("acme"), healthpb.HealthCheckResponse_NOT_SERVING)
}

func TestMonitorPeriodicRefresh(t *testing.T) {
	counter := &fakeCounter{}
	h := &fakeHealth{}
	m := New(counter, bus.New(), nil, h, nil, 10*time.Millisecond)
	m.Start(context.Background())
	defer m.Stop()

	counter.set(map[string]int{"connected": 2})
	waitStatus(t, h, Service, healthpb.HealthCheckResponse_SERVING)
}

func TestMonitorStopWithoutStart(t *testing.T) {
	m := New(&fakeCounter{}, bus.New(), nil, nil, nil, 0)
	m.Stop()
}

func TestMonitorWithoutHealthServer(t *testing.T) {
	b := bus.New()
	m := New(&fakeCounter{}, b, nil, nil, nil, 0)
	m.Start(context.Background())
	b.Publish(bus.Event{Kind: bus.KindStatus, ConnectionID: "acme", Payload: status.StatusChange{To: status.Connected}})
	m.Stop()
}
