/*
Package notify decouples bulk notification fan-out from request handling.

PURPOSE:
  An admin bulk-reassigning a few hundred overdue loans should not wait
  on a few hundred SMS sends. Producers persist QueuedNotification rows
  and return; the Worker drains them on a short interval and talks to
  the gateway.

LIFECYCLE:
  pending → processing → sent
  pending → processing → failed      (retried on a later tick)
  failed (attempts >= ceiling) → dead (terminal, manual intervention)

  Rows are never deleted, only status-transitioned, for audit.
*/
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NotificationStatus is the queue state of one work item.
type NotificationStatus string

const (
	StatusPending    NotificationStatus = "pending"
	StatusProcessing NotificationStatus = "processing"
	StatusSent       NotificationStatus = "sent"
	StatusFailed     NotificationStatus = "failed"

	// StatusDead marks an item that exhausted its retry ceiling. The
	// worker never picks these up again; requeueing is a manual action.
	StatusDead NotificationStatus = "dead"
)

// QueuedNotification is one durable work item.
type QueuedNotification struct {
	ID        string
	Recipient string
	Message   string
	Status    NotificationStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New builds a pending notification with a fresh id.
func New(recipient, message string) QueuedNotification {
	now := time.Now().UTC()
	return QueuedNotification{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Message:   message,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Gateway is the external SMS/notification collaborator. A send failure
// is isolated to its item; it never aborts the batch.
type Gateway interface {
	Send(ctx context.Context, recipient, message string) error
}

// Queue is the durable store the worker drains. Implemented by
// store/sqlite.
type Queue interface {
	// Enqueue persists a new pending item.
	Enqueue(ctx context.Context, n QueuedNotification) error

	// ClaimBatch atomically selects up to limit deliverable items
	// (pending, or failed with attempts below maxAttempts) oldest-first
	// and marks them processing.
	ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]QueuedNotification, error)

	// MarkSent finalizes a delivered item.
	MarkSent(ctx context.Context, id string) error

	// MarkFailed records a delivery failure, bumping the attempt count
	// and moving the item to dead once it reaches maxAttempts.
	MarkFailed(ctx context.Context, id, sendErr string, maxAttempts int) error
}
