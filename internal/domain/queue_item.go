package domain

import "time"

// Status tracks the lifecycle of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// DefaultMaxAttempts bounds how many times one queue item is claimed before
// it stays failed until an administrator intervenes.
const DefaultMaxAttempts = 3

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSent, StatusFailed:
		return true
	}
	return false
}

// CanTransition encodes the queue state machine:
//
//	pending    -> processing
//	processing -> sent | failed
//	failed     -> pending   (explicit retry only)
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusSent || to == StatusFailed
	case StatusFailed:
		return to == StatusPending
	}
	return false
}

// QueueItem is one durable unit of delivery work derived from a Subscription.
type QueueItem struct {
	ID             string     `json:"id"`
	SubscriptionID string     `json:"subscription_id"`
	ProductID      string     `json:"product_id"`
	Email          string     `json:"email"`
	Status         Status     `json:"status"`
	Attempts       int        `json:"attempts"`
	MaxAttempts    int        `json:"max_attempts"`
	LastError      *string    `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
}

// Claimable reports whether ClaimBatch may select this item.
func (q *QueueItem) Claimable() bool {
	return q.Status == StatusPending && q.Attempts < q.MaxAttempts
}

// Exhausted reports a failed item that has used every attempt.
func (q *QueueItem) Exhausted() bool {
	return q.Status == StatusFailed && q.Attempts >= q.MaxAttempts
}

// StatusSummary is the per-status count shown on the admin console.
type StatusSummary struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// Add increments the counter for status by n.
func (s *StatusSummary) Add(status Status, n int) {
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusProcessing:
		s.Processing += n
	case StatusSent:
		s.Sent += n
	case StatusFailed:
		s.Failed += n
	default:
		return
	}
	s.Total += n
}

// QueueFilter holds query parameters for paginated queue listing.
type QueueFilter struct {
	Status *Status
	Page   int
	Limit  int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps paging to sane bounds.
func (f *QueueFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
}

// ProcessResult aggregates one Queue Processor invocation.
type ProcessResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// AlreadyDelivered counts items closed without a send because their
	// subscription was delivered by another path.
	AlreadyDelivered int      `json:"already_delivered,omitempty"`
	Skipped          bool     `json:"skipped,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}

// RetryResult reports an admin retry: how many failed items were re-armed
// and the processing pass that followed. Processing is nil when nothing
// was re-armed.
type RetryResult struct {
	Retried    int64          `json:"retried"`
	Processing *ProcessResult `json:"processing,omitempty"`
}

// RestockResult reports what one restock trigger did.
type RestockResult struct {
	Triggered bool `json:"triggered"`
	Enqueued  int  `json:"enqueued"`
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
}
