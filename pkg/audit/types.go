package audit

import "context"

// Entry records a single actor-attributed action for the audit trail.
type Entry struct {
	EntryID   string `json:"entry_id"`
	Timestamp int64  `json:"timestamp"`
	Action    string `json:"action"`
	Actor     string `json:"actor"`
	LeadID    string `json:"lead_id"`
	BuilderID string `json:"builder_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Details   string `json:"details,omitempty"`
	Error     string `json:"error_message,omitempty"`
	Status    string `json:"status"` // "success" or "error"
}

// Logger writes audit entries to storage. Failures are best-effort
// observability and must never fail the primary mutation.
type Logger interface {
	Log(ctx context.Context, entry *Entry) error
	LogAsync(entry *Entry)
	Close() error
}

// Nop is a Logger that discards everything. Useful in tests.
type Nop struct{}

func (Nop) Log(context.Context, *Entry) error { return nil }
func (Nop) LogAsync(*Entry)                   {}
func (Nop) Close() error                      { return nil }
