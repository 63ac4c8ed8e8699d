package wa

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
)

// NoContent is the body of a message no extraction rule understood.
const NoContent = "[No Content]"

const maxWrapDepth = 8

// Unwrap peels ephemeral, view-once and document-with-caption envelopes
// until it reaches the message that carries the content.
func Unwrap(msg *waE2E.Message) *waE2E.Message {
	for i := 0; msg != nil && i < maxWrapDepth; i++ {
		var inner *waE2E.Message
		switch {
		case msg.GetEphemeralMessage() != nil:
			inner = msg.GetEphemeralMessage().GetMessage()
		case msg.GetViewOnceMessage() != nil:
			inner = msg.GetViewOnceMessage().GetMessage()
		case msg.GetViewOnceMessageV2() != nil:
			inner = msg.GetViewOnceMessageV2().GetMessage()
		case msg.GetViewOnceMessageV2Extension() != nil:
			inner = msg.GetViewOnceMessageV2Extension().GetMessage()
		case msg.GetDocumentWithCaptionMessage() != nil:
			inner = msg.GetDocumentWithCaptionMessage().GetMessage()
		}
		if inner == nil {
			return msg
		}
		msg = inner
	}
	return msg
}

type bodyRule struct {
	name    string
	match   func(*waE2E.Message) bool
	extract func(*waE2E.Message) string
}

var placeholders = map[string]struct{}{NoContent: {}}

func placeholder(s string) func(*waE2E.Message) string {
	placeholders[s] = struct{}{}
	return func(*waE2E.Message) string { return s }
}

// bodyRules are evaluated top to bottom; the first match wins.
var bodyRules = []bodyRule{
	{"conversation",
		func(m *waE2E.Message) bool { return m.GetConversation() != "" },
		func(m *waE2E.Message) string { return m.GetConversation() }},
	{"extended_text",
		func(m *waE2E.Message) bool { return m.GetExtendedTextMessage().GetText() != "" },
		func(m *waE2E.Message) string { return m.GetExtendedTextMessage().GetText() }},
	{"image_caption",
		func(m *waE2E.Message) bool { return m.GetImageMessage().GetCaption() != "" },
		func(m *waE2E.Message) string { return m.GetImageMessage().GetCaption() }},
	{"video_caption",
		func(m *waE2E.Message) bool { return m.GetVideoMessage().GetCaption() != "" },
		func(m *waE2E.Message) string { return m.GetVideoMessage().GetCaption() }},
	{"document_caption",
		func(m *waE2E.Message) bool { return m.GetDocumentMessage().GetCaption() != "" },
		func(m *waE2E.Message) string { return m.GetDocumentMessage().GetCaption() }},
	{"document_filename",
		func(m *waE2E.Message) bool { return m.GetDocumentMessage().GetFileName() != "" },
		func(m *waE2E.Message) string { return m.GetDocumentMessage().GetFileName() }},
	{"sticker",
		func(m *waE2E.Message) bool { return m.GetStickerMessage() != nil },
		placeholder("[Sticker]")},
	{"audio",
		func(m *waE2E.Message) bool { return m.GetAudioMessage() != nil },
		placeholder("[Audio]")},
	{"image",
		func(m *waE2E.Message) bool { return m.GetImageMessage() != nil },
		placeholder("[Image]")},
	{"video",
		func(m *waE2E.Message) bool { return m.GetVideoMessage() != nil },
		placeholder("[Video]")},
	{"document",
		func(m *waE2E.Message) bool { return m.GetDocumentMessage() != nil },
		placeholder("[Document]")},
	{"contact",
		func(m *waE2E.Message) bool { return m.GetContactMessage() != nil || m.GetContactsArrayMessage() != nil },
		placeholder("[Contact]")},
	{"location",
		func(m *waE2E.Message) bool { return m.GetLocationMessage() != nil || m.GetLiveLocationMessage() != nil },
		placeholder("[Location]")},
	{"revoked",
		func(m *waE2E.Message) bool {
			return m.GetProtocolMessage() != nil && m.GetProtocolMessage().GetType() == waE2E.ProtocolMessage_REVOKE
		},
		placeholder("[Message Revoked]")},
}

// ExtractBody unwraps msg and returns its display body.
func ExtractBody(msg *waE2E.Message) string {
	msg = Unwrap(msg)
	if msg == nil {
		return NoContent
	}
	for _, r := range bodyRules {
		if r.match(msg) {
			return r.extract(msg)
		}
	}
	return NoContent
}

// AttachmentName returns the file name of a document message, if any.
func AttachmentName(msg *waE2E.Message) string {
	return Unwrap(msg).GetDocumentMessage().GetFileName()
}

// DetectMessageType classifies the unwrapped content of msg.
func DetectMessageType(msg *waE2E.Message) string {
	msg = Unwrap(msg)
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil || msg.GetContactsArrayMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil || msg.GetLiveLocationMessage() != nil:
		return "location"
	case msg.GetProtocolMessage() != nil:
		return "protocol"
	default:
		return "unknown"
	}
}

// IsPlaceholder reports whether body is one of the bracketed markers ExtractBody
// uses for content without text.
func IsPlaceholder(body string) bool {
	_, ok := placeholders[body]
	return ok
}
