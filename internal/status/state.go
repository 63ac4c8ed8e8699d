// Package status holds the per-connection lifecycle state machine.
package status

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/wpphub/internal/bus"
)

type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	WaitingForQR State = "waiting_for_qr"
	Connected    State = "connected"
	Reconnecting State = "reconnecting"
	LoggedOut    State = "logged_out"
)

// All lists every state in lifecycle order.
var All = []State{Disconnected, Connecting, WaitingForQR, Connected, Reconnecting, LoggedOut}

// next maps a state to the states it may move to. A state missing here has no
// way out.
var next = map[State][]State{
	Disconnected: {Connecting, Reconnecting, LoggedOut},
	Connecting:   {WaitingForQR, Connected, Disconnected, LoggedOut},
	WaitingForQR: {Connected, Disconnected, LoggedOut},
	Connected:    {Disconnected, LoggedOut},
	Reconnecting: {Connecting, Disconnected, LoggedOut},
}

// ErrTransition matches every rejected transition.
var ErrTransition = errors.New("invalid state transition")

// TransitionError reports a move the table does not allow.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrTransition }

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	return slices.Contains(next[from], to)
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return len(next[s]) == 0 }

// StatusChange is the payload of bus.KindStatus events.
type StatusChange struct {
	From   State  `json:"from"`
	To     State  `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// Machine is the state of one connection. Accepted transitions are published
// on the bus while the lock is held, so subscribers see them in order.
type Machine struct {
	mu    sync.RWMutex
	id    string
	state State
	bus   *bus.Bus
}

// NewMachine starts in Disconnected. b may be nil.
func NewMachine(connectionID string, b *bus.Bus) *Machine {
	return &Machine{id: connectionID, state: Disconnected, bus: b}
}

func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transition moves to to, or returns a *TransitionError and leaves the state
// unchanged.
func (m *Machine) Transition(to State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	m.state = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:         bus.KindStatus,
			ConnectionID: m.id,
			Payload:      StatusChange{From: from, To: to, Reason: reason},
		})
	}
	return nil
}
