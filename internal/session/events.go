package session

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/wa"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// QRPayload is published with qr_code events.
type QRPayload struct {
	QR   string `json:"qr"`
	Code string `json:"code"`
}

func (s *Session) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		s.handleMessage(evt)
	case *wa.QRCode:
		s.handleQR(evt.Code)
	case *wa.QRTimeout:
		s.handleClose(false, "qr code expired")
	case *wa.QRError:
		s.handleClose(false, fmt.Sprintf("pairing failed: %v", evt.Err))
	case *events.PairSuccess:
		s.logger.Info("device paired", zap.String("jid", evt.ID.String()), zap.String("platform", evt.Platform))
		s.record("paired", evt.ID.String())
	case *events.Connected:
		s.handleOpen()
	case *events.Disconnected:
		s.handleClose(false, "connection closed")
	case *events.KeepAliveTimeout:
		s.handleKeepAliveTimeout(evt)
	case *events.StreamReplaced:
		s.handleClose(false, "stream replaced")
	case *events.TemporaryBan:
		s.handleClose(false, fmt.Sprintf("temporary ban: %s", evt.String()))
	case *events.ConnectFailure:
		reason := fmt.Sprintf("connect failure: %s %s", evt.Reason, evt.Message)
		s.handleClose(evt.Reason.IsLoggedOut(), reason)
	case *events.LoggedOut:
		s.handleClose(true, fmt.Sprintf("logged out: %s", evt.Reason.String()))
	}
}

// keepAliveLimit is how long keepalives may keep failing before the socket
// is considered dead. The library only enforces this itself when its own
// auto-reconnect is on.
var keepAliveLimit = whatsmeow.KeepAliveMaxFailTime

func (s *Session) handleKeepAliveTimeout(evt *events.KeepAliveTimeout) {
	if evt.LastSuccess.IsZero() || time.Since(evt.LastSuccess) <= keepAliveLimit {
		s.logger.Debug("keepalive failed", zap.Int("errors", evt.ErrorCount))
		return
	}
	s.mu.Lock()
	sock := s.socket
	live := s.machine.Current() == status.Connected
	s.mu.Unlock()
	if !live {
		return
	}
	if sock != nil {
		sock.Disconnect()
	}
	s.handleClose(false, "keepalive timeout")
}

func renderQR(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func (s *Session) handleQR(code string) {
	dataURL, err := renderQR(code)
	if err != nil {
		s.logger.Error("render QR code", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.qr, s.qrCode = dataURL, code
	if s.machine.Current() != status.WaitingForQR {
		s.transitionLocked(status.WaitingForQR, "")
	}
	s.mu.Unlock()

	s.logger.Info("QR code issued")
	s.opts.Bus.Publish(bus.Event{
		Kind:         bus.KindQRCode,
		ConnectionID: s.id,
		Timestamp:    s.now(),
		Payload:      QRPayload{QR: dataURL, Code: code},
	})
}

func (s *Session) handleOpen() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopReconnectLocked()
	s.backoff.Reset()
	s.qr, s.qrCode = "", ""
	s.lastReason = ""
	switch s.machine.Current() {
	case status.Connected:
		s.mu.Unlock()
		return
	case status.Disconnected, status.Reconnecting:
		s.transitionLocked(status.Connecting, "")
	}
	s.transitionLocked(status.Connected, "")
	phone := ""
	if s.socket != nil {
		phone = s.socket.PhoneNumber()
	}
	s.mu.Unlock()

	s.logger.Info("connected", zap.String("phone", phone))
	s.record("connected", phone)
	s.notifyStatus(status.Connected, "")
}

// handleClose applies the close policy. A logout is terminal and wipes the
// credentials; anything else schedules one reconnect after the backoff delay.
func (s *Session) handleClose(loggedOut bool, reason string) {
	s.mu.Lock()
	if s.closed || s.machine.Current() == status.LoggedOut {
		s.mu.Unlock()
		return
	}
	s.lastReason = reason
	s.qr, s.qrCode = "", ""

	if loggedOut {
		s.stopReconnectLocked()
		s.transitionLocked(status.LoggedOut, reason)
		sock := s.socket
		s.socket = nil
		s.mu.Unlock()

		s.logger.Warn("logged out, wiping credentials", zap.String("reason", reason))
		s.record("logged_out", reason)
		s.notifyStatus(status.LoggedOut, reason)
		if sock != nil {
			if err := sock.Wipe(s.ctx); err != nil {
				s.logger.Error("wipe auth state", zap.Error(err))
			}
		}
		return
	}

	if s.reconnect != nil {
		// A reconnect is already pending.
		s.mu.Unlock()
		s.record("closed", reason)
		return
	}
	if s.machine.Current() != status.Disconnected {
		s.transitionLocked(status.Disconnected, reason)
	}
	delay := s.backoff.Next()
	s.reconnect = time.AfterFunc(delay, s.reconnectNow)
	s.transitionLocked(status.Reconnecting, reason)
	s.mu.Unlock()

	s.logger.Warn("connection closed, reconnect scheduled",
		zap.String("reason", reason),
		zap.Duration("delay", delay))
	s.record("closed", reason)
	s.notifyStatus(status.Reconnecting, reason)
}
