// Package store defines the optional durable history interfaces for
// completed observing sessions and raised alerts. spec.md section 6
// only requires a session log to be written as a single JSON file on
// safe shutdown (internal/session already does that) and explicitly
// says alert history is in-memory only; this package is a domain-stack
// enrichment (SPEC_FULL.md section 1.2) that a deployment may opt into
// for longer-lived, queryable history, exactly as vigil's triage engine
// opts into internal/triage/pgstore instead of memstore when a database
// URL is configured. Grounded on vigil's internal/triage.Store
// interface shape and internal/triage/{pgstore,memstore}'s split.
package store

import (
	"context"
	"time"
)

// SessionRecord is one completed observing session, mirroring
// internal/session.State's persisted fields (spec.md section 6).
type SessionRecord struct {
	ID               string
	StartedAt        time.Time
	EndedAt          time.Time
	ImagesCaptured   int
	TotalExposureSec float64
	ErrorCount       int
	LastError        string
	TargetName       string
}

// AlertRecord is one raised alert, mirroring internal/alerts.Alert's
// fields that are meaningful after the fact.
type AlertRecord struct {
	ID             string
	Level          string
	Source         string
	Message        string
	At             time.Time
	Acknowledged   bool
	AcknowledgedBy string
	AcknowledgedAt time.Time
}

// History is the persistence interface this package's stores implement.
type History interface {
	PutSession(ctx context.Context, rec *SessionRecord) error
	ListSessions(ctx context.Context, limit int) ([]*SessionRecord, error)

	PutAlert(ctx context.Context, rec *AlertRecord) error
	ListAlerts(ctx context.Context, limit int) ([]*AlertRecord, error)
}
