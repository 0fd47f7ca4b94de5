package schema

import (
	"gorm.io/datatypes"
	"time"
)

// Action is one low-level call inside a relay batch. The relay executes the
// whole batch atomically on behalf of the treasury; any action failing fails
// the batch unless AllowFailure is set.
type Action struct {
	To           string `json:"to"` // target contract, hex address
	Value        string `json:"value"`
	Data         string `json:"data"` // abi-encoded calldata, hex
	AllowFailure bool   `json:"allowFailure"`
}

type Batch struct {
	BatchId string   `json:"batchId"`
	Actions []Action `json:"actions"`
}

// BatchReceipt is journaled to the local kv store after every successful
// relay execution.
type BatchReceipt struct {
	BatchId   string   `json:"batchId"`
	Op        string   `json:"op"` // e.g. "createStream"
	Username  string   `json:"username"`
	Actions   []Action `json:"actions"`
	Timestamp int64    `json:"timestamp"` // unix s
}

const (
	EventStreamCreated     = "stream_created"
	EventStreamEdited      = "stream_edited"
	EventStreamCancelled   = "stream_cancelled"
	EventStreamPaidOut     = "stream_paid_out"
	EventStreamMigrated    = "stream_migrated"
	EventStreamExpired     = "stream_expired"
	EventScheduleCreated   = "schedule_created"
	EventScheduleEdited    = "schedule_edited"
	EventScheduleCancelled = "schedule_cancelled"
	EventSchedulePaidOut   = "schedule_paid_out"
)

// Event is published to kafka and mirrored into the event_logs table.
type Event struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Token     string `json:"token,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	BatchId   string `json:"batchId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type EventLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	Type     string            `gorm:"index:event01" json:"type"`
	Username string            `gorm:"index:event02" json:"username"`
	Payload  datatypes.JSONMap `json:"payload"`
}
