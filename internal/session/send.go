package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/notify"
	"github.com/matheus3301/wpphub/internal/status"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/wa"
	"go.uber.org/zap"
)

// SendMessage delivers body, or att with body as caption, to recipient. On
// success the outgoing record is persisted, published and notified. It never retries.
func (s *Session) SendMessage(ctx context.Context, recipient, body string, att *wa.Attachment) (*store.Message, error) {
	if strings.TrimSpace(body) == "" && att == nil {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidRequest)
	}
	to, err := wa.ParseRecipient(recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	s.mu.Lock()
	sock := s.socket
	st := s.machine.Current()
	s.mu.Unlock()
	if st != status.Connected || sock == nil {
		return nil, fmt.Errorf("%w: connection %s is %s", ErrNotConnected, s.id, st)
	}

	rec := &store.Message{
		ConnectionID: s.id,
		Direction:    store.Outgoing,
		Counterparty: wa.Address(to),
		Body:         body,
		MessageType:  "text",
	}
	var res wa.SendResult
	if att != nil {
		res, err = sock.SendMedia(ctx, to, *att, body)
		rec.AttachmentName = att.Name
		rec.MessageType = "document"
		if att.IsImage() {
			rec.MessageType = "image"
		}
	} else {
		res, err = sock.SendText(ctx, to, body)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	rec.ExternalID = res.ID
	ts := res.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	rec.Timestamp = ts.UnixMilli()

	var persistErr error
	if s.opts.Store != nil {
		if err := s.opts.Store.InsertMessage(rec); err != nil {
			s.logger.Error("persist outgoing message", zap.String("to", rec.Counterparty), zap.Error(err))
			persistErr = fmt.Errorf("%w: %w", ErrPersistence, err)
		} else {
			s.opts.Metrics.MessageRecorded(string(store.Outgoing))
		}
	}

	s.opts.Bus.Publish(bus.Event{
		Kind:         bus.KindOutgoingMessage,
		ConnectionID: s.id,
		Timestamp:    ts,
		Payload:      *rec,
	})
	s.notify(notify.EventMessageSent, *rec)

	return rec, persistErr
}
