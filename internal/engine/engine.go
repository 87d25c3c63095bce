// Package engine owns the sprint lifecycle and winner-determination rules.
// All authoritative state lives in the store; time-based transitions are
// derived lazily from stored timestamps and the engine clock, never from
// background timers. Mutations are serialized per lead.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/bridgeit/bridgeit/internal/config"
	"github.com/bridgeit/bridgeit/internal/db"
	"github.com/bridgeit/bridgeit/pkg/audit"
	"github.com/bridgeit/bridgeit/pkg/metrics"
)

// AuditProvider runs a best-effort compliance deep audit for a lead.
// Implementations must not block the caller beyond dispatch.
type AuditProvider interface {
	Run(ctx context.Context, lead *db.Lead)
}

type Engine struct {
	store    *db.DB
	auditLog audit.Logger
	deep     AuditProvider
	cfg      config.SprintConfig
	metrics  *metrics.Metrics
	strategy WinnerStrategy
	now      func() time.Time

	mu        sync.Mutex
	leadLocks map[string]*sync.Mutex
}

type Option func(*Engine)

// WithClock overrides the engine clock. Tests use this to pin time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithDeepAudit(p AuditProvider) Option {
	return func(e *Engine) { e.deep = p }
}

// WithStrategy overrides the winner strategy selected from config.
func WithStrategy(s WinnerStrategy) Option {
	return func(e *Engine) { e.strategy = s }
}

func New(store *db.DB, auditLog audit.Logger, cfg config.SprintConfig, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		auditLog:  auditLog,
		cfg:       cfg,
		now:       time.Now,
		leadLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.auditLog == nil {
		e.auditLog = audit.Nop{}
	}
	if e.strategy == nil {
		if cfg.ScoringMode == "voting" {
			e.strategy = &VotingStrategy{store: store}
		} else {
			e.strategy = &QualityStrategy{}
		}
	}
	return e
}

// Store exposes the underlying store for read-only callers (api, mcp).
func (e *Engine) Store() *db.DB {
	return e.store
}

// lockLead serializes mutating operations per lead. Two concurrent callers
// cannot both pass a capacity or finalization check for the same sprint.
func (e *Engine) lockLead(leadID string) func() {
	e.mu.Lock()
	lock, ok := e.leadLocks[leadID]
	if !ok {
		lock = &sync.Mutex{}
		e.leadLocks[leadID] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// record appends an audit entry for a completed mutation. Log failures are
// swallowed by the logger; they never roll back the mutation.
func (e *Engine) record(action, actor, leadID, builderID, reason string, err error) {
	entry := &audit.Entry{
		Action:    action,
		Actor:     actor,
		LeadID:    leadID,
		BuilderID: builderID,
		Reason:    reason,
		Timestamp: e.now().Unix(),
	}
	if err != nil {
		entry.Error = err.Error()
		entry.Status = "error"
	}
	e.auditLog.LogAsync(entry)
}
