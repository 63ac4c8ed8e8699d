package session

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/notify"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/wa"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// normalize turns an inbound event into a ledger record. Own echoes, groups
// and status or broadcast channels yield false.
func (s *Session) normalize(evt *events.Message) (*store.Message, bool) {
	info := evt.Info
	if info.IsFromMe || info.IsGroup || wa.IsGroupOrStatus(info.Chat) {
		return nil, false
	}

	sender := info.Sender
	if wa.IsLID(sender) {
		if !info.SenderAlt.IsEmpty() {
			sender = info.SenderAlt
		} else if sock := s.currentSocket(); sock != nil {
			sender = sock.ResolveLID(s.ctx, sender)
		}
	}

	ts := info.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	return &store.Message{
		ConnectionID:   s.id,
		Direction:      store.Incoming,
		Counterparty:   wa.Address(sender),
		DisplayName:    info.PushName,
		Body:           wa.ExtractBody(evt.Message),
		AttachmentName: wa.AttachmentName(evt.Message),
		MessageType:    wa.DetectMessageType(evt.Message),
		ExternalID:     info.ID,
		Timestamp:      ts.UnixMilli(),
	}, true
}

func (s *Session) handleMessage(evt *events.Message) {
	rec, ok := s.normalize(evt)
	if !ok {
		return
	}

	if s.opts.Store != nil {
		if err := s.opts.Store.InsertMessage(rec); err != nil {
			s.logger.Error("persist incoming message", zap.String("from", rec.Counterparty), zap.Error(err))
		} else {
			s.opts.Metrics.MessageRecorded(string(store.Incoming))
		}
	}

	s.opts.Bus.Publish(bus.Event{
		Kind:         bus.KindNewMessage,
		ConnectionID: s.id,
		Timestamp:    time.UnixMilli(rec.Timestamp),
		Payload:      *rec,
	})
	s.notify(notify.EventMessageReceived, *rec)

	if shouldAutoReply(rec.Body) {
		go s.autoReply(rec.Counterparty, rec.Body)
	}
}

// shouldAutoReply skips one-character bodies. Placeholder bodies such as
// "[Image]" are skipped too: media without a caption has no text a rule or
// the generative fallback could answer.
func shouldAutoReply(body string) bool {
	if utf8.RuneCountInString(body) <= 1 {
		return false
	}
	return !wa.IsPlaceholder(body)
}

func (s *Session) autoReply(to, body string) {
	if s.opts.Replier == nil {
		return
	}
	reply, err := s.opts.Replier.Reply(s.ctx, body)
	if err != nil {
		s.logger.Warn("reply source failed", zap.String("from", to), zap.Error(err))
	}
	if strings.TrimSpace(reply) == "" {
		return
	}

	if s.opts.ReplyDelay > 0 {
		t := time.NewTimer(s.opts.ReplyDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.ctx.Done():
			return
		}
	}
	if _, err := s.SendMessage(s.ctx, to, reply, nil); err != nil {
		s.logger.Warn("auto-reply send failed", zap.String("to", to), zap.Error(err))
	}
}
