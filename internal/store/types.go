package store

import "time"

// Direction tells whether a message was received or sent.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Message is one ledger entry. Entries are append-only.
type Message struct {
	ID             int64     `json:"id"`
	ConnectionID   string    `json:"connectionId"`
	Direction      Direction `json:"direction"`
	Counterparty   string    `json:"counterparty"`
	DisplayName    string    `json:"displayName,omitempty"`
	Body           string    `json:"body"`
	AttachmentName string    `json:"attachmentName,omitempty"`
	MessageType    string    `json:"messageType"`
	GroupName      string    `json:"groupName,omitempty"`
	ExternalID     string    `json:"externalId"`
	Timestamp      int64     `json:"timestamp"` // unix ms
}

// Task is a persisted scheduled send.
type Task struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connectionId"`
	Recipient    string    `json:"recipient"`
	Body         string    `json:"body"`
	FireAt       time.Time `json:"fireAt"`
	Recurring    bool      `json:"recurring"`
	CreatedAt    time.Time `json:"createdAt"`
}

// KeywordReply maps a keyword to a canned response. Position defines match order.
type KeywordReply struct {
	ID       int64  `json:"id"`
	Keyword  string `json:"keyword"`
	Response string `json:"response"`
	Position int    `json:"position"`
}

// BroadcastJob is the persisted snapshot of a broadcast run.
type BroadcastJob struct {
	ID           string     `json:"id"`
	ConnectionID string     `json:"connectionId"`
	Status       string     `json:"status"`
	Mode         string     `json:"mode"`
	Total        int        `json:"total"`
	Sent         int        `json:"sent"`
	Failed       int        `json:"failed"`
	StartTime    time.Time  `json:"startTime"`
	EndTime      *time.Time `json:"endTime,omitempty"`
}

// ConnectionEvent is a diagnostic record of a connection lifecycle event.
type ConnectionEvent struct {
	ID           int64  `json:"id"`
	ConnectionID string `json:"connectionId"`
	Kind         string `json:"kind"`
	Detail       string `json:"detail"`
	CreatedAt    int64  `json:"createdAt"`
}

// WebhookSettings is the notification target.
type WebhookSettings struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}
