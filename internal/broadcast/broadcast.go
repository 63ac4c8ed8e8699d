// Package broadcast sends one message to many recipients of a connection,
// pacing the sends and reporting progress after every attempt.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/metrics"
	"github.com/matheus3301/wpphub/internal/notify"
	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/wa"
	"go.uber.org/zap"
)

// Job statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Mode selects how recipients are paced.
type Mode string

const (
	// ModeFixed waits the same delay before every recipient.
	ModeFixed Mode = "fixed"
	// ModeSlow waits a random delay within the jitter window.
	ModeSlow Mode = "slow"
)

// Sender is the part of a session a broadcast needs.
type Sender interface {
	Status() status.State
	SendMessage(ctx context.Context, recipient, body string, att *wa.Attachment) (*store.Message, error)
}

// Lookup resolves a connection id to its live session.
type Lookup func(id string) (Sender, bool)

// JobStore persists job snapshots.
type JobStore interface {
	UpsertBroadcastJob(j *store.BroadcastJob) error
	ListBroadcastJobs(limit int) ([]store.BroadcastJob, error)
	GetBroadcastJob(id string) (*store.BroadcastJob, error)
}

// Notifier receives the completion event.
type Notifier interface {
	Notify(ctx context.Context, evt notify.Event)
}

// Recipient is one target. An empty Message falls back to the request body.
type Recipient struct {
	Number  string `json:"number"`
	Message string `json:"message,omitempty"`
}

// Request describes a broadcast.
type Request struct {
	ConnectionID string
	Recipients   []Recipient
	Message      string
	Attachment   *wa.Attachment
	// Delay overrides the default fixed delay when positive.
	Delay time.Duration
	Mode  Mode
}

// Options configures a Coordinator.
type Options struct {
	Lookup       Lookup
	Store        JobStore
	Bus          *bus.Bus
	Notifier     Notifier
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	DefaultDelay time.Duration
	JitterMin    time.Duration
	JitterMax    time.Duration
	Now          func() time.Time
}

// Coordinator runs broadcast jobs. Each job processes its recipients serially
// in its own goroutine.
type Coordinator struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*store.BroadcastJob
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Bus == nil {
		opts.Bus = bus.New()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		opts:   opts,
		logger: opts.Logger,
		now:    now,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*store.BroadcastJob),
	}
}

// Run validates req, creates the job and starts processing it. Validation
// failures return session.ErrInvalidRequest and never create a job.
func (c *Coordinator) Run(ctx context.Context, req Request) (store.BroadcastJob, error) {
	sender, err := c.validate(&req)
	if err != nil {
		return store.BroadcastJob{}, err
	}
	if err := ctx.Err(); err != nil {
		return store.BroadcastJob{}, err
	}
	if c.ctx.Err() != nil {
		return store.BroadcastJob{}, errors.New("broadcast coordinator stopped")
	}

	job := &store.BroadcastJob{
		ID:           uuid.NewString(),
		ConnectionID: req.ConnectionID,
		Status:       StatusRunning,
		Mode:         string(req.Mode),
		Total:        len(req.Recipients),
		StartTime:    c.now(),
	}
	c.mu.Lock()
	c.jobs[job.ID] = job
	snap := *job
	c.mu.Unlock()

	c.logger.Info("broadcast started",
		zap.String("job", job.ID),
		zap.String("connection", job.ConnectionID),
		zap.Int("recipients", job.Total),
		zap.String("mode", job.Mode))
	c.publish(snap)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.process(job.ID, sender, req)
	}()
	return snap, nil
}

func (c *Coordinator) validate(req *Request) (Sender, error) {
	if req.Mode == "" {
		req.Mode = ModeFixed
	}
	if req.Mode != ModeFixed && req.Mode != ModeSlow {
		return nil, fmt.Errorf("%w: unknown mode %q", session.ErrInvalidRequest, req.Mode)
	}
	if len(req.Recipients) == 0 {
		return nil, fmt.Errorf("%w: no recipients", session.ErrInvalidRequest)
	}
	for i, r := range req.Recipients {
		if strings.TrimSpace(r.Number) == "" {
			return nil, fmt.Errorf("%w: recipient %d has no number", session.ErrInvalidRequest, i)
		}
		if strings.TrimSpace(r.Message) == "" && strings.TrimSpace(req.Message) == "" && req.Attachment == nil {
			return nil, fmt.Errorf("%w: message is empty for %s", session.ErrInvalidRequest, r.Number)
		}
	}
	sender, ok := c.lookup(req.ConnectionID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown connection %s", session.ErrInvalidRequest, req.ConnectionID)
	}
	if st := sender.Status(); st != status.Connected {
		return nil, fmt.Errorf("%w: connection %s is %s", session.ErrInvalidRequest, req.ConnectionID, st)
	}
	return sender, nil
}

func (c *Coordinator) lookup(id string) (Sender, bool) {
	if c.opts.Lookup == nil {
		return nil, false
	}
	return c.opts.Lookup(id)
}

func (c *Coordinator) process(jobID string, sender Sender, req Request) {
	// In-flight sends are never interrupted; Stop only skips recipients not yet started.
	sendCtx := context.WithoutCancel(c.ctx)

	for i, r := range req.Recipients {
		if !c.wait(req) {
			c.finish(jobID, StatusCancelled)
			c.logger.Info("broadcast cancelled", zap.String("job", jobID), zap.Int("remaining", len(req.Recipients)-i))
			return
		}

		body := r.Message
		if strings.TrimSpace(body) == "" {
			body = req.Message
		}
		_, err := sender.SendMessage(sendCtx, r.Number, body, req.Attachment)
		if errors.Is(err, session.ErrPersistence) {
			// Delivered; only the ledger write failed.
			err = nil
		}
		c.opts.Metrics.BroadcastAttempt(err)
		if err != nil {
			c.logger.Warn("broadcast recipient failed",
				zap.String("job", jobID),
				zap.String("to", r.Number),
				zap.Error(err))
		}
		c.record(jobID, err == nil)
	}
	c.finish(jobID, StatusCompleted)
}

// wait blocks for the pacing delay. It reports false when the coordinator stopped.
func (c *Coordinator) wait(req Request) bool {
	d := c.delay(req)
	if d <= 0 {
		return c.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Coordinator) delay(req Request) time.Duration {
	if req.Mode == ModeSlow {
		lo, hi := c.opts.JitterMin, c.opts.JitterMax
		if hi <= lo {
			return lo
		}
		return lo + rand.N(hi-lo+1)
	}
	if req.Delay > 0 {
		return req.Delay
	}
	return c.opts.DefaultDelay
}

func (c *Coordinator) record(jobID string, ok bool) {
	c.mu.Lock()
	job := c.jobs[jobID]
	if ok {
		job.Sent++
	} else {
		job.Failed++
	}
	snap := *job
	c.mu.Unlock()
	c.publish(snap)
}

func (c *Coordinator) finish(jobID, final string) {
	c.mu.Lock()
	job := c.jobs[jobID]
	end := c.now()
	job.Status = final
	job.EndTime = &end
	snap := *job
	c.mu.Unlock()

	c.publish(snap)
	c.logger.Info("broadcast finished",
		zap.String("job", snap.ID),
		zap.String("status", snap.Status),
		zap.Int("sent", snap.Sent),
		zap.Int("failed", snap.Failed))
	if c.opts.Notifier != nil {
		c.opts.Notifier.Notify(context.WithoutCancel(c.ctx), notify.Event{
			Event:        notify.EventBroadcastDone,
			ConnectionID: snap.ConnectionID,
			Timestamp:    end,
			Data:         snap,
		})
	}
}

// publish persists snap and announces it on the bus.
func (c *Coordinator) publish(snap store.BroadcastJob) {
	if c.opts.Store != nil {
		if err := c.opts.Store.UpsertBroadcastJob(&snap); err != nil {
			c.logger.Warn("persist broadcast job", zap.String("job", snap.ID), zap.Error(err))
		}
	}
	c.opts.Bus.Publish(bus.Event{
		Kind:         bus.KindBroadcastUpdate,
		ConnectionID: snap.ConnectionID,
		Timestamp:    c.now(),
		Payload:      snap,
	})
}

// Job returns the snapshot of id, from memory for jobs of this process and
// from the store otherwise.
func (c *Coordinator) Job(id string) (store.BroadcastJob, bool, error) {
	c.mu.Lock()
	job, ok := c.jobs[id]
	var snap store.BroadcastJob
	if ok {
		snap = *job
	}
	c.mu.Unlock()
	if ok || c.opts.Store == nil {
		return snap, ok, nil
	}

	persisted, err := c.opts.Store.GetBroadcastJob(id)
	if err != nil {
		return store.BroadcastJob{}, false, fmt.Errorf("get broadcast job: %w", err)
	}
	if persisted == nil {
		return store.BroadcastJob{}, false, nil
	}
	return *persisted, true, nil
}

// Jobs returns job snapshots newest first: those of this process merged with
// persisted ones from earlier runs.
func (c *Coordinator) Jobs(limit int) ([]store.BroadcastJob, error) {
	byID := make(map[string]store.BroadcastJob)
	if c.opts.Store != nil {
		persisted, err := c.opts.Store.ListBroadcastJobs(limit)
		if err != nil {
			return nil, fmt.Errorf("list broadcast jobs: %w", err)
		}
		for _, j := range persisted {
			byID[j.ID] = j
		}
	}
	c.mu.Lock()
	for id, j := range c.jobs {
		byID[id] = *j
	}
	c.mu.Unlock()

	out := make([]store.BroadcastJob, 0, len(byID))
	for _, j := range byID {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stop cancels recipients that have not started yet and waits for running
// jobs to settle.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}
