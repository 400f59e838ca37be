package models

import "time"

// Publication is one row of the event publication ledger: a single
// listener invocation attempt for a published event. CompletedAt is nil
// until the listener returns without error; nothing else is ever mutated.
type Publication struct {
	ID          string     `json:"id"`
	EventType   string     `json:"event_type"`
	ListenerID  string     `json:"listener_id"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Incomplete reports whether the listener invocation was never recorded
// as finished.
func (p Publication) Incomplete() bool {
	return p.CompletedAt == nil
}
