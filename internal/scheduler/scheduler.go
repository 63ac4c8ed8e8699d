// Package scheduler fires messages at a future time, optionally every month,
// and builds reminder schedules from tabular billing data.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wpphub/internal/metrics"
	"github.com/matheus3301/wpphub/internal/paths"
	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/wa"
	"go.uber.org/zap"
)

// Sender is the part of a session a scheduled task needs.
type Sender interface {
	SendMessage(ctx context.Context, recipient, body string, att *wa.Attachment) (*store.Message, error)
}

// Lookup resolves a connection id to its live session.
type Lookup func(id string) (Sender, bool)

// TaskStore persists scheduled tasks.
type TaskStore interface {
	InsertTask(t *store.Task) error
	GetTask(id string) (*store.Task, error)
	ListTasks() ([]store.Task, error)
	DeleteTask(id string) (bool, error)
	RescheduleTask(id string, fireAt time.Time) (bool, error)
}

// ReminderOptions controls how imported rows become tasks.
type ReminderOptions struct {
	// Offsets are days relative to the due date.
	Offsets  []int
	Hour     int
	Template string
}

// Options configures a Scheduler.
type Options struct {
	Lookup   Lookup
	Store    TaskStore
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Location *time.Location
	Reminder ReminderOptions
	Now      func() time.Time
}

// Scheduler arms one timer per persisted task.
type Scheduler struct {
	opts   Options
	logger *zap.Logger
	loc    *time.Location
	now    func() time.Time
	tmpl   *template.Template

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// New creates a Scheduler. It fails if the reminder template does not parse.
// An empty template renders empty reminders, so imports will skip every row.
func New(opts Options) (*Scheduler, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	tmpl, err := template.New("reminder").Option("missingkey=zero").Parse(opts.Reminder.Template)
	if err != nil {
		return nil, fmt.Errorf("parse reminder template: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		opts:   opts,
		logger: opts.Logger,
		loc:    loc,
		now:    now,
		tmpl:   tmpl,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[string]*time.Timer),
	}, nil
}

// Start arms every persisted task. Recurring tasks whose time passed move to
// their next occurrence; overdue one-shot tasks are kept but not fired.
func (s *Scheduler) Start(context.Context) error {
	tasks, err := s.opts.Store.ListTasks()
	if err != nil {
		return fmt.Errorf("load scheduled tasks: %w", err)
	}
	now := s.now()
	armed := 0
	for i := range tasks {
		t := tasks[i]
		if !t.FireAt.After(now) {
			if !t.Recurring {
				s.logger.Warn("scheduled task overdue, not firing",
					zap.String("task", t.ID),
					zap.Time("fire_at", t.FireAt))
				continue
			}
			if !s.advance(&t, now) {
				continue
			}
		}
		s.arm(t)
		armed++
	}
	s.logger.Info("scheduler started", zap.Int("tasks", len(tasks)), zap.Int("armed", armed))
	return nil
}

// Stop disarms every timer and waits for fires in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Add persists a task and arms it. A fireAt in the past fires right away.
func (s *Scheduler) Add(_ context.Context, connID, recipient, body string, fireAt time.Time, recurring bool) (*store.Task, error) {
	if err := paths.ValidateID(connID); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrInvalidRequest, err)
	}
	if _, err := wa.ParseRecipient(recipient); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrInvalidRequest, err)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: message is empty", session.ErrInvalidRequest)
	}
	if fireAt.IsZero() {
		return nil, fmt.Errorf("%w: fire time is missing", session.ErrInvalidRequest)
	}

	t := &store.Task{
		ID:           uuid.NewString(),
		ConnectionID: connID,
		Recipient:    recipient,
		Body:         body,
		FireAt:       fireAt,
		Recurring:    recurring,
		CreatedAt:    s.now(),
	}
	if err := s.opts.Store.InsertTask(t); err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrPersistence, err)
	}
	s.arm(*t)
	s.logger.Info("task scheduled",
		zap.String("task", t.ID),
		zap.String("connection", connID),
		zap.Time("fire_at", fireAt),
		zap.Bool("recurring", recurring))
	return t, nil
}

// Delete disarms and removes a task. Unknown ids are not an error.
func (s *Scheduler) Delete(id string) error {
	s.disarm(id)
	if _, err := s.opts.Store.DeleteTask(id); err != nil {
		return fmt.Errorf("%w: %w", session.ErrPersistence, err)
	}
	return nil
}

// List returns every persisted task ordered by fire time.
func (s *Scheduler) List() ([]store.Task, error) {
	return s.opts.Store.ListTasks()
}

func (s *Scheduler) arm(t store.Task) {
	d := t.FireAt.Sub(s.now())
	if d < 0 {
		d = 0
	}
	id := t.ID

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.timers[id]; ok {
		old.Stop()
	}
	s.timers[id] = time.AfterFunc(d, func() { s.fire(id) })
}

func (s *Scheduler) disarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	task, err := s.opts.Store.GetTask(id)
	if err != nil {
		s.logger.Error("load scheduled task", zap.String("task", id), zap.Error(err))
		return
	}
	if task == nil {
		// Deleted after the timer fired.
		return
	}

	err = s.send(task)
	s.opts.Metrics.ScheduledFire(err)
	if err != nil {
		s.logger.Warn("scheduled send failed",
			zap.String("task", id),
			zap.String("connection", task.ConnectionID),
			zap.Error(err))
	} else {
		s.logger.Info("scheduled message sent", zap.String("task", id), zap.String("to", task.Recipient))
	}

	switch {
	case task.Recurring:
		if s.advance(task, s.now()) {
			s.arm(*task)
		}
	case err == nil:
		if _, err := s.opts.Store.DeleteTask(id); err != nil {
			s.logger.Error("delete fired task", zap.String("task", id), zap.Error(err))
		}
	}
}

func (s *Scheduler) send(t *store.Task) error {
	sender, ok := s.lookup(t.ConnectionID)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrUnknownConnection, t.ConnectionID)
	}
	// A send already on the wire finishes even if Stop runs meanwhile.
	_, err := sender.SendMessage(context.WithoutCancel(s.ctx), t.Recipient, t.Body, nil)
	if errors.Is(err, session.ErrPersistence) {
		return nil
	}
	return err
}

func (s *Scheduler) lookup(id string) (Sender, bool) {
	if s.opts.Lookup == nil {
		return nil, false
	}
	return s.opts.Lookup(id)
}

// advance moves a recurring task to its next monthly occurrence after now and
// persists the new time.
func (s *Scheduler) advance(t *store.Task, now time.Time) bool {
	next := nextMonthly(t.FireAt.In(s.loc), now)
	if next.IsZero() {
		s.logger.Error("no next occurrence for recurring task", zap.String("task", t.ID))
		return false
	}
	ok, err := s.opts.Store.RescheduleTask(t.ID, next)
	if err != nil {
		s.logger.Error("reschedule task", zap.String("task", t.ID), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	t.FireAt = next
	return true
}
