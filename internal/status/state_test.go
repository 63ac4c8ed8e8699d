package status

import (
	"errors"
	"testing"

	"github.com/matheus3301/wpphub/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine("acme", nil)
	if m.Current() != Disconnected {
		t.Errorf("initial state = %s, want disconnected", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Disconnected, Connecting},
		{Connecting, WaitingForQR},
		{Connecting, Connected},
		{Connecting, Disconnected},
		{WaitingForQR, Connected},
		{WaitingForQR, Disconnected},
		{Connected, Disconnected},
		{Connected, LoggedOut},
		{Disconnected, Reconnecting},
		{Reconnecting, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine("acme", nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to, ""); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine("acme", nil)
	err := m.Transition(Connected, "")
	if !errors.Is(err, ErrTransition) {
		t.Fatalf("Transition(disconnected -> connected) error = %v, want ErrTransition", err)
	}
	var te *TransitionError
	if !errors.As(err, &te) || te.From != Disconnected || te.To != Connected {
		t.Errorf("error = %#v", err)
	}
	if m.Current() != Disconnected {
		t.Errorf("state changed to %s after a rejected transition", m.Current())
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range All {
		if got, want := s.Terminal(), s == LoggedOut; got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestLoggedOutIsTerminal(t *testing.T) {
	for _, to := range All {
		m := NewMachine("acme", nil)
		walkTo(t, m, LoggedOut)
		if err := m.Transition(to, ""); err == nil {
			t.Errorf("Transition(logged_out -> %s) should fail", to)
		}
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.Kinds(bus.KindStatus), 10)
	defer unsub()

	m := NewMachine("acme", b)
	if err := m.Transition(Connecting, "start"); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.ConnectionID != "acme" {
		t.Errorf("event connection = %q, want acme", evt.ConnectionID)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Disconnected || change.To != Connecting || change.Reason != "start" {
		t.Errorf("change = %+v", change)
	}
}

// walkTo drives the machine from disconnected along a valid path.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Disconnected: {},
		Connecting:   {Connecting},
		WaitingForQR: {Connecting, WaitingForQR},
		Connected:    {Connecting, Connected},
		Reconnecting: {Connecting, Disconnected, Reconnecting},
		LoggedOut:    {Connecting, Connected, LoggedOut},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s, ""); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
