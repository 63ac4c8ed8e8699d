package wa

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// ParseRecipient turns a phone number ("+62 811-11", "6281111") or a full JID into a user JID.
func ParseRecipient(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty recipient")
	}
	if strings.Contains(s, "@") {
		jid, err := types.ParseJID(s)
		if err != nil {
			return types.JID{}, fmt.Errorf("parse JID %q: %w", s, err)
		}
		return jid.ToNonAD(), nil
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return types.JID{}, fmt.Errorf("invalid character %q in phone number %q", r, s)
		}
	}
	digits := b.String()
	if len(digits) < 5 || len(digits) > 20 {
		return types.JID{}, fmt.Errorf("phone number %q must have 5 to 20 digits", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

// Address renders a JID the way records and notifications carry it: the bare
// number for phone-number users, the full JID otherwise.
func Address(jid types.JID) string {
	jid = jid.ToNonAD()
	if jid.Server == types.DefaultUserServer {
		return jid.User
	}
	return jid.String()
}

// IsLID reports whether jid is a privacy-preserving alias.
func IsLID(jid types.JID) bool {
	return jid.Server == types.HiddenUserServer || jid.Server == types.HostedLIDServer
}

// IsGroupOrStatus reports whether chat is a group, a broadcast list, the status
// channel or a newsletter.
func IsGroupOrStatus(chat types.JID) bool {
	switch chat.Server {
	case types.GroupServer, types.BroadcastServer, types.NewsletterServer:
		return true
	}
	return false
}
