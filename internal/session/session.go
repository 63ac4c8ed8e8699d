package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/metrics"
	"github.com/matheus3301/wpphub/internal/notify"
	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/wa"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

// Socket is the live network handle of one connection. wa.Adapter implements it.
type Socket interface {
	Connect() error
	Disconnect()
	Logout(ctx context.Context) error
	IsLoggedIn() bool
	AddEventHandler(h func(any))
	SendText(ctx context.Context, to types.JID, text string) (wa.SendResult, error)
	SendMedia(ctx context.Context, to types.JID, att wa.Attachment, caption string) (wa.SendResult, error)
	PhoneNumber() string
	// ResolveLID maps a hidden-user address to its phone-number JID when known.
	ResolveLID(ctx context.Context, jid types.JID) types.JID
	Close() error
	Wipe(ctx context.Context) error
}

// SocketFactory opens the persisted auth state of id, or creates a fresh one.
type SocketFactory func(ctx context.Context, id string) (Socket, error)

// MessageStore is the ledger the session appends to.
type MessageStore interface {
	InsertMessage(m *store.Message) error
	RecordConnectionEvent(connectionID, kind, detail string) error
}

// ReplySource answers inbound text. An empty reply means no answer.
type ReplySource interface {
	Reply(ctx context.Context, text string) (string, error)
}

// Notifier receives out-of-band events. It must not block.
type Notifier interface {
	Notify(ctx context.Context, evt notify.Event)
}

// Options holds a session's collaborators and tunables.
type Options struct {
	ID         string
	NewSocket  SocketFactory
	Store      MessageStore
	Replier    ReplySource
	Notifier   Notifier
	Bus        *bus.Bus
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Floor      time.Duration
	Ceiling    time.Duration
	ReplyDelay time.Duration
	Now        func() time.Time
}

// Info is a point-in-time view of a session.
type Info struct {
	ID                   string       `json:"id"`
	Status               status.State `json:"status"`
	Phone                string       `json:"phone,omitempty"`
	LastDisconnectReason string       `json:"lastDisconnectReason,omitempty"`
	ReconnectDelayMs     int64        `json:"reconnectDelayMs"`
	HasQR                bool         `json:"hasQr"`
}

// Session owns one connection: its socket, credentials, QR and reconnect policy.
type Session struct {
	id      string
	opts    Options
	machine *status.Machine
	backoff *Backoff
	logger  *zap.Logger
	now     func() time.Time

	// ctx lives until Close or Destroy and bounds background work.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	socket     Socket
	reconnect  *time.Timer
	qr         string
	qrCode     string
	lastReason string
	closed     bool
}

// New creates a disconnected session. Call Connect to bring it up.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Bus == nil {
		opts.Bus = bus.New()
	}
	if opts.Floor <= 0 {
		opts.Floor = time.Second
	}
	if opts.Ceiling <= 0 {
		opts.Ceiling = 30 * time.Second
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:      opts.ID,
		opts:    opts,
		machine: status.NewMachine(opts.ID, opts.Bus),
		backoff: NewBackoff(opts.Floor, opts.Ceiling),
		logger:  opts.Logger.With(zap.String("connection", opts.ID)),
		now:     now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ID returns the connection id.
func (s *Session) ID() string { return s.id }

// Status returns the live state.
func (s *Session) Status() status.State { return s.machine.Current() }

// QR returns the pending pairing QR as a PNG data URL and its raw code, or empty strings.
func (s *Session) QR() (dataURL, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qr, s.qrCode
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:                   s.id,
		Status:               s.machine.Current(),
		LastDisconnectReason: s.lastReason,
		ReconnectDelayMs:     s.backoff.Current().Milliseconds(),
		HasQR:                s.qr != "",
	}
	if s.socket != nil {
		info.Phone = s.socket.PhoneNumber()
	}
	return info
}

// Connect opens the socket. It is a no-op while connecting, waiting for a QR
// scan or connected. Bring-up failures are handled like a close: a reconnect
// is scheduled and ErrConnectionInit is returned.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	switch s.machine.Current() {
	case status.Connecting, status.WaitingForQR, status.Connected:
		s.mu.Unlock()
		return nil
	case status.LoggedOut:
		s.mu.Unlock()
		return ErrLoggedOut
	}
	s.stopReconnectLocked()
	s.transitionLocked(status.Connecting, "")

	sock := s.socket
	var err error
	if sock == nil {
		sock, err = s.opts.NewSocket(ctx, s.id)
		if err == nil {
			s.socket = sock
			sock.AddEventHandler(s.handleEvent)
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.handleClose(false, fmt.Sprintf("open auth state: %v", err))
		return fmt.Errorf("%w: %w", ErrConnectionInit, err)
	}
	if err := sock.Connect(); err != nil {
		s.handleClose(false, fmt.Sprintf("connect: %v", err))
		return fmt.Errorf("%w: %w", ErrConnectionInit, err)
	}
	return nil
}

// Close stops reconnecting and closes the socket, keeping credentials on disk.
func (s *Session) Close() {
	sock := s.shutdown("closed")
	if sock != nil {
		if err := sock.Close(); err != nil {
			s.logger.Warn("close socket", zap.Error(err))
		}
	}
}

// Destroy logs out (best effort), stops reconnecting and wipes credentials.
func (s *Session) Destroy(ctx context.Context) error {
	sock := s.shutdown("destroyed")
	if sock == nil {
		return nil
	}
	if sock.IsLoggedIn() {
		if err := sock.Logout(ctx); err != nil {
			s.logger.Debug("logout during teardown failed", zap.Error(err))
		}
	}
	if err := sock.Wipe(ctx); err != nil {
		return fmt.Errorf("wipe auth state: %w", err)
	}
	return nil
}

func (s *Session) shutdown(reason string) Socket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stopReconnectLocked()
	s.cancel()
	s.qr, s.qrCode = "", ""
	if st := s.machine.Current(); st != status.Disconnected && st != status.LoggedOut {
		s.transitionLocked(status.Disconnected, reason)
	}
	sock := s.socket
	s.socket = nil
	return sock
}

func (s *Session) transitionLocked(to status.State, reason string) {
	if err := s.machine.Transition(to, reason); err != nil {
		s.logger.Debug("ignored transition", zap.Error(err))
	}
}

func (s *Session) currentSocket() Socket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.socket
}

func (s *Session) stopReconnectLocked() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
}

func (s *Session) reconnectNow() {
	s.mu.Lock()
	s.reconnect = nil
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	if err := s.Connect(s.ctx); err != nil {
		s.logger.Warn("reconnect attempt failed", zap.Error(err))
	}
}

func (s *Session) record(kind, detail string) {
	if s.opts.Store == nil {
		return
	}
	if err := s.opts.Store.RecordConnectionEvent(s.id, kind, detail); err != nil {
		s.logger.Warn("record connection event", zap.String("kind", kind), zap.Error(err))
	}
}

func (s *Session) notify(event string, data any) {
	if s.opts.Notifier == nil {
		return
	}
	s.opts.Notifier.Notify(s.ctx, notify.Event{
		Event:        event,
		ConnectionID: s.id,
		Timestamp:    s.now(),
		Data:         data,
	})
}

func (s *Session) notifyStatus(st status.State, reason string) {
	s.notify(notify.EventStatus, map[string]any{
		"status": st,
		"reason": reason,
	})
}
