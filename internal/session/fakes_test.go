package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/notify"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/wa"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

type sentMessage struct {
	To         string
	Body       string
	Attachment *wa.Attachment
}

// fakeSocket records calls and lets tests inject whatsmeow events.
type fakeSocket struct {
	mu          sync.Mutex
	handlers    []func(any)
	connectErr  error
	sendErr     error
	connects    int
	disconnects int
	loggedIn    bool
	logouts     int
	wiped       bool
	closed      bool
	sent        []sentMessage
	lids        map[string]types.JID
}

func (f *fakeSocket) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	return f.connectErr
}

func (f *fakeSocket) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakeSocket) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return errors.New("not connected")
}

func (f *fakeSocket) IsLoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *fakeSocket) AddEventHandler(h func(any)) {
	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	f.mu.Unlock()
}

func (f *fakeSocket) SendText(_ context.Context, to types.JID, text string) (wa.SendResult, error) {
	return f.send(to, text, nil)
}

func (f *fakeSocket) SendMedia(_ context.Context, to types.JID, att wa.Attachment, caption string) (wa.SendResult, error) {
	return f.send(to, caption, &att)
}

func (f *fakeSocket) send(to types.JID, body string, att *wa.Attachment) (wa.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return wa.SendResult{}, f.sendErr
	}
	f.sent = append(f.sent, sentMessage{To: to.User, Body: body, Attachment: att})
	return wa.SendResult{ID: "3EB0TEST", Timestamp: time.UnixMilli(1700000000000)}, nil
}

func (f *fakeSocket) PhoneNumber() string { return "6280000" }

func (f *fakeSocket) ResolveLID(_ context.Context, jid types.JID) types.JID {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pn, ok := f.lids[jid.User]; ok {
		return pn
	}
	return jid
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) Wipe(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wiped = true
	return nil
}

func (f *fakeSocket) emit(evt any) {
	f.mu.Lock()
	handlers := slices.Clone(f.handlers)
	f.mu.Unlock()
	for _, h := range handlers {
		h(evt)
	}
}

func (f *fakeSocket) snapshot() (connects int, sent []sentMessage, wiped, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, append([]sentMessage(nil), f.sent...), f.wiped, f.closed
}

type fakeStore struct {
	mu       sync.Mutex
	messages []store.Message
	events   []string
	err      error
}

func (s *fakeStore) InsertMessage(m *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	m.ID = int64(len(s.messages) + 1)
	s.messages = append(s.messages, *m)
	return nil
}

func (s *fakeStore) RecordConnectionEvent(_, kind, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, kind)
	return nil
}

func (s *fakeStore) all() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Message(nil), s.messages...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *fakeNotifier) Notify(_ context.Context, evt notify.Event) {
	n.mu.Lock()
	n.events = append(n.events, evt)
	n.mu.Unlock()
}

func (n *fakeNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		out = append(out, e.Event)
	}
	return out
}

type replierFunc func(ctx context.Context, text string) (string, error)

func (f replierFunc) Reply(ctx context.Context, text string) (string, error) { return f(ctx, text) }

type harness struct {
	session  *Session
	socket   *fakeSocket
	store    *fakeStore
	notifier *fakeNotifier
	bus      *bus.Bus
	sockets  int
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		socket:   &fakeSocket{},
		store:    &fakeStore{},
		notifier: &fakeNotifier{},
		bus:      bus.New(),
	}
	opts := Options{
		ID: "acme",
		NewSocket: func(context.Context, string) (Socket, error) {
			h.sockets++
			return h.socket, nil
		},
		Store:    h.store,
		Notifier: h.notifier,
		Bus:      h.bus,
		Logger:   zap.NewNop(),
		Floor:    20 * time.Millisecond,
		Ceiling:  80 * time.Millisecond,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.session = New(opts)
	t.Cleanup(h.session.Close)
	return h
}

// connected drives the harness session to the connected state.
func (h *harness) connected(t *testing.T) {
	t.Helper()
	if err := h.session.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	h.socket.emit(&events.Connected{})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
