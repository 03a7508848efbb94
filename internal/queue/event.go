// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

// AuditQueue is the durable queue entry audit events are published to.
const AuditQueue = "entries.audit"

// Audit actions.
const (
    ActionEntryCreated  = "entry.created"
    ActionEntryUpdated  = "entry.updated"
    ActionEntryDeleted  = "entry.deleted"
    ActionEntriesImport = "entries.imported"
)

// EntryEvent is published after an entry mutation succeeds. It carries
// enough context for downstream consumers to log or audit the change
// without querying the primary database.
type EntryEvent struct {
    Action     string `json:"action"`
    EntryID    uint64 `json:"entry_id,omitempty"`
    EntryName  string `json:"entry_name,omitempty"`
    UserID     uint64 `json:"user_id"`
    Username   string `json:"username"`
    BatchID    string `json:"batch_id,omitempty"`
    Succeeded  int    `json:"succeeded,omitempty"`
    Failed     int    `json:"failed,omitempty"`
    OccurredAt string `json:"occurred_at"`
}
