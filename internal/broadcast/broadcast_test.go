package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/notify"
	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/wa"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu     sync.Mutex
	state  status.State
	fail   map[string]error
	sent   []string
	bodies []string
}

func (f *fakeSender) Status() status.State { return f.state }

func (f *fakeSender) SendMessage(_ context.Context, to, body string, _ *wa.Attachment) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[to]; err != nil {
		if errors.Is(err, session.ErrPersistence) {
			f.sent = append(f.sent, to)
			f.bodies = append(f.bodies, body)
		}
		return nil, err
	}
	f.sent = append(f.sent, to)
	f.bodies = append(f.bodies, body)
	return &store.Message{Counterparty: to, Body: body}, nil
}

type memJobs struct {
	mu        sync.Mutex
	snapshots []store.BroadcastJob
	persisted []store.BroadcastJob
}

func (m *memJobs) UpsertBroadcastJob(j *store.BroadcastJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, *j)
	return nil
}

func (m *memJobs) GetBroadcastJob(id string) (*store.BroadcastJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.persisted {
		if j.ID == id {
			return &j, nil
		}
	}
	return nil, nil
}

func (m *memJobs) ListBroadcastJobs(int) ([]store.BroadcastJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.BroadcastJob(nil), m.persisted...), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, evt notify.Event) {
	n.mu.Lock()
	n.events = append(n.events, evt)
	n.mu.Unlock()
}

func newCoordinator(t *testing.T, sender *fakeSender, mutate func(*Options)) (*Coordinator, *memJobs, *bus.Bus, *recordingNotifier) {
	t.Helper()
	jobs := &memJobs{}
	b := bus.New()
	n := &recordingNotifier{}
	opts := Options{
		Lookup: func(id string) (Sender, bool) {
			if id != "acme" || sender == nil {
				return nil, false
			}
			return sender, true
		},
		Store:        jobs,
		Bus:          b,
		Notifier:     n,
		Logger:       zap.NewNop(),
		DefaultDelay: time.Millisecond,
		JitterMin:    time.Millisecond,
		JitterMax:    3 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c := New(opts)
	t.Cleanup(c.Stop)
	return c, jobs, b, n
}

func recipients(numbers ...string) []Recipient {
	out := make([]Recipient, len(numbers))
	for i, n := range numbers {
		out[i] = Recipient{Number: n}
	}
	return out
}

// collect reads broadcast updates until a terminal snapshot arrives.
func collect(t *testing.T, ch <-chan bus.Event) []store.BroadcastJob {
	t.Helper()
	var out []store.BroadcastJob
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			job := evt.Payload.(store.BroadcastJob)
			out = append(out, job)
			if job.Status != StatusRunning {
				return out
			}
		case <-timeout:
			t.Fatalf("timed out, got %d updates", len(out))
		}
	}
}

func TestRunProgressIsMonotonic(t *testing.T) {
	sender := &fakeSender{
		state: status.Connected,
		fail:  map[string]error{"6282222": errors.New("boom")},
	}
	c, jobs, b, n := newCoordinator(t, sender, nil)
	ch, unsub := b.Subscribe(bus.Kinds(bus.KindBroadcastUpdate), 32)
	defer unsub()

	job, err := c.Run(context.Background(), Request{
		ConnectionID: "acme",
		Recipients:   recipients("6281111", "6282222", "6283333"),
		Message:      "Promo hari ini",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if job.Total != 3 || job.Status != StatusRunning || job.Mode != string(ModeFixed) {
		t.Fatalf("job = %+v", job)
	}

	updates := collect(t, ch)
	// created + one per recipient + final
	if len(updates) != 5 {
		t.Fatalf("got %d updates, want 5: %+v", len(updates), updates)
	}
	prev := -1
	for _, u := range updates {
		done := u.Sent + u.Failed
		if done < prev {
			t.Errorf("progress went backwards: %+v", updates)
		}
		prev = done
	}
	final := updates[len(updates)-1]
	if final.Status != StatusCompleted || final.Sent != 2 || final.Failed != 1 || final.EndTime == nil {
		t.Errorf("final = %+v", final)
	}

	sender.mu.Lock()
	if len(sender.sent) != 2 || sender.sent[0] != "6281111" || sender.sent[1] != "6283333" {
		t.Errorf("sent = %v", sender.sent)
	}
	sender.mu.Unlock()

	jobs.mu.Lock()
	if len(jobs.snapshots) != 5 {
		t.Errorf("persisted %d snapshots, want 5", len(jobs.snapshots))
	}
	jobs.mu.Unlock()

	n.mu.Lock()
	if len(n.events) != 1 || n.events[0].Event != notify.EventBroadcastDone {
		t.Errorf("notifications = %+v", n.events)
	}
	n.mu.Unlock()
}

func TestRunPerRecipientMessages(t *testing.T) {
	sender := &fakeSender{state: status.Connected}
	c, _, b, _ := newCoordinator(t, sender, nil)
	ch, unsub := b.Subscribe(bus.Kinds(bus.KindBroadcastUpdate), 32)
	defer unsub()

	_, err := c.Run(context.Background(), Request{
		ConnectionID: "acme",
		Recipients: []Recipient{
			{Number: "6281111", Message: "Halo Budi"},
			{Number: "6282222"},
		},
		Message: "Halo semua",
		Mode:    ModeSlow,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	collect(t, ch)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.bodies) != 2 || sender.bodies[0] != "Halo Budi" || sender.bodies[1] != "Halo semua" {
		t.Errorf("bodies = %v", sender.bodies)
	}
}

func TestPersistenceFailureCountsAsSent(t *testing.T) {
	sender := &fakeSender{
		state: status.Connected,
		fail:  map[string]error{"6281111": session.ErrPersistence},
	}
	c, _, b, _ := newCoordinator(t, sender, nil)
	ch, unsub := b.Subscribe(bus.Kinds(bus.KindBroadcastUpdate), 32)
	defer unsub()

	if _, err := c.Run(context.Background(), Request{ConnectionID: "acme", Recipients: recipients("6281111"), Message: "x y"}); err != nil {
		t.Fatal(err)
	}
	updates := collect(t, ch)
	if final := updates[len(updates)-1]; final.Sent != 1 || final.Failed != 0 {
		t.Errorf("final = %+v", final)
	}
}

func TestRunValidation(t *testing.T) {
	connected := &fakeSender{state: status.Connected}
	offline := &fakeSender{state: status.Reconnecting}

	cases := []struct {
		name   string
		sender *fakeSender
		req    Request
	}{
		{"unknown connection", connected, Request{ConnectionID: "other", Recipients: recipients("6281111"), Message: "hi"}},
		{"not connected", offline, Request{ConnectionID: "acme", Recipients: recipients("6281111"), Message: "hi"}},
		{"no recipients", connected, Request{ConnectionID: "acme", Message: "hi"}},
		{"empty body", connected, Request{ConnectionID: "acme", Recipients: recipients("6281111"), Message: "  "}},
		{"blank number", connected, Request{ConnectionID: "acme", Recipients: recipients(""), Message: "hi"}},
		{"bad mode", connected, Request{ConnectionID: "acme", Recipients: recipients("6281111"), Message: "hi", Mode: "fast"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, jobs, _, _ := newCoordinator(t, tc.sender, nil)
			_, err := c.Run(context.Background(), tc.req)
			if !errors.Is(err, session.ErrInvalidRequest) {
				t.Fatalf("Run() error = %v, want ErrInvalidRequest", err)
			}
			if got, _ := c.Jobs(0); len(got) != 0 {
				t.Errorf("no job should be created, got %+v", got)
			}
			if len(jobs.snapshots) != 0 {
				t.Error("nothing should be persisted")
			}
		})
	}
}

func TestStopCancelsPendingRecipients(t *testing.T) {
	sender := &fakeSender{state: status.Connected}
	c, _, b, _ := newCoordinator(t, sender, func(o *Options) { o.DefaultDelay = time.Hour })
	ch, unsub := b.Subscribe(bus.Kinds(bus.KindBroadcastUpdate), 32)
	defer unsub()

	if _, err := c.Run(context.Background(), Request{ConnectionID: "acme", Recipients: recipients("6281111", "6282222"), Message: "hi"}); err != nil {
		t.Fatal(err)
	}
	c.Stop()

	updates := collect(t, ch)
	final := updates[len(updates)-1]
	if final.Status != StatusCancelled || final.Sent != 0 {
		t.Errorf("final = %+v", final)
	}
	if _, err := c.Run(context.Background(), Request{ConnectionID: "acme", Recipients: recipients("6281111"), Message: "hi"}); err == nil {
		t.Error("Run after Stop should fail")
	}
}

func TestJobsMergesPersistedNewestFirst(t *testing.T) {
	sender := &fakeSender{state: status.Connected}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	c, jobs, b, _ := newCoordinator(t, sender, func(o *Options) {
		o.Now = func() time.Time { return now }
	})
	jobs.persisted = []store.BroadcastJob{
		{ID: "old", Status: StatusCompleted, StartTime: now.Add(-time.Hour)},
		{ID: "older", Status: StatusCompleted, StartTime: now.Add(-2 * time.Hour)},
	}
	ch, unsub := b.Subscribe(bus.Kinds(bus.KindBroadcastUpdate), 32)
	defer unsub()

	job, err := c.Run(context.Background(), Request{ConnectionID: "acme", Recipients: recipients("6281111"), Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	collect(t, ch)

	list, err := c.Jobs(10)
	if err != nil {
		t.Fatalf("Jobs() error = %v", err)
	}
	if len(list) != 3 || list[0].ID != job.ID || list[1].ID != "old" || list[2].ID != "older" {
		t.Errorf("Jobs() = %+v", list)
	}
	if got, ok, err := c.Job(job.ID); err != nil || !ok || got.Status != StatusCompleted {
		t.Errorf("Job() = %+v, %v, %v", got, ok, err)
	}
	if got, ok, err := c.Job("old"); err != nil || !ok || got.ID != "old" {
		t.Errorf("Job(old) from store = %+v, %v, %v", got, ok, err)
	}
	if _, ok, err := c.Job("missing"); err != nil || ok {
		t.Errorf("Job(missing) = %v, %v", ok, err)
	}
}

func TestSlowModeDelayWithinWindow(t *testing.T) {
	c := New(Options{JitterMin: 2 * time.Second, JitterMax: 7 * time.Second})
	defer c.Stop()
	for i := 0; i < 200; i++ {
		d := c.delay(Request{Mode: ModeSlow})
		if d < 2*time.Second || d > 7*time.Second {
			t.Fatalf("delay = %v, outside [2s, 7s]", d)
		}
	}
	if d := c.delay(Request{Mode: ModeFixed, Delay: 3 * time.Second}); d != 3*time.Second {
		t.Errorf("fixed delay = %v, want 3s", d)
	}
}
