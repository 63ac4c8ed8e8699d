package bus

import "time"

// Event kinds pushed to realtime subscribers.
const (
	KindStatus          = "status"
	KindQRCode          = "qr_code"
	KindNewMessage      = "new_message"
	KindOutgoingMessage = "new_outgoing_message"
	KindBroadcastUpdate = "broadcast_update"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind         string
	ConnectionID string
	Timestamp    time.Time
	Payload      any
}
