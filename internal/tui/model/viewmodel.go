package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/matheus3301/wpphub/internal/client"
	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/store"
)

// Backend is the part of the daemon API the monitor uses. *client.Client implements it.
type Backend interface {
	Health(ctx context.Context) (*client.Health, error)
	Connections(ctx context.Context) ([]session.Info, error)
	Broadcasts(ctx context.Context, limit int) ([]store.BroadcastJob, error)
	Messages(ctx context.Context, id string, q client.MessageQuery) ([]store.Message, error)
	QR(ctx context.Context, id string) (*client.QR, error)
	Start(ctx context.Context, id string) (*session.Info, error)
	Disconnect(ctx context.Context, id string) error
	Reinit(ctx context.Context, id string) (*session.Info, error)
	Send(ctx context.Context, id, number, message string, file *client.File) (*store.Message, error)
}

// Snapshot is what the monitor draws on each refresh.
type Snapshot struct {
	Reachable   bool
	Health      client.Health
	Connections []session.Info
	Broadcasts  []store.BroadcastJob
}

// ViewModel caches daemon state between polls.
type ViewModel struct {
	backend Backend

	mu       sync.RWMutex
	snap     Snapshot
	active   string
	messages []store.Message
}

func NewViewModel(b Backend) *ViewModel {
	return &ViewModel{backend: b}
}

// Refresh polls health, connections and broadcasts. An unreachable daemon
// clears the connection list and is reported as an error.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	var snap Snapshot
	h, err := vm.backend.Health(ctx)
	if err != nil {
		vm.mu.Lock()
		vm.snap = Snapshot{}
		vm.mu.Unlock()
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	snap.Reachable = true
	snap.Health = *h

	var errs []error
	if snap.Connections, err = vm.backend.Connections(ctx); err != nil {
		errs = append(errs, fmt.Errorf("list connections: %w", err))
	}
	if snap.Broadcasts, err = vm.backend.Broadcasts(ctx, 50); err != nil {
		errs = append(errs, fmt.Errorf("list broadcasts: %w", err))
	}

	vm.mu.Lock()
	vm.snap = snap
	vm.mu.Unlock()
	return errors.Join(errs...)
}

// Snapshot returns the last polled state.
func (vm *ViewModel) Snapshot() Snapshot {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.snap
}

// LoadMessages fetches the latest messages of id and makes it the active connection.
func (vm *ViewModel) LoadMessages(ctx context.Context, id string) error {
	msgs, err := vm.backend.Messages(ctx, id, client.MessageQuery{Limit: 200})
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.active = id
	vm.messages = msgs
	vm.mu.Unlock()
	return nil
}

// Active returns the connection whose messages are loaded.
func (vm *ViewModel) Active() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// Messages returns the loaded messages, newest first.
func (vm *ViewModel) Messages() []store.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

func (vm *ViewModel) QR(ctx context.Context, id string) (*client.QR, error) {
	return vm.backend.QR(ctx, id)
}

func (vm *ViewModel) Start(ctx context.Context, id string) error {
	_, err := vm.backend.Start(ctx, id)
	return err
}

func (vm *ViewModel) Disconnect(ctx context.Context, id string) error {
	return vm.backend.Disconnect(ctx, id)
}

func (vm *ViewModel) Reinit(ctx context.Context, id string) error {
	_, err := vm.backend.Reinit(ctx, id)
	return err
}

// Send parses "<number> <message>" and sends it from the active connection.
func (vm *ViewModel) Send(ctx context.Context, input string) (*store.Message, error) {
	id := vm.Active()
	if id == "" {
		return nil, errors.New("no connection selected")
	}
	number, text, ok := strings.Cut(strings.TrimSpace(input), " ")
	text = strings.TrimSpace(text)
	if !ok || text == "" {
		return nil, errors.New("usage: <number> <message>")
	}
	rec, err := vm.backend.Send(ctx, id, number, text, nil)
	if err != nil {
		return nil, err
	}
	return rec, vm.LoadMessages(ctx, id)
}
