package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// VoteSummaryStore persists per-market vote totals derived from snapshots.
type VoteSummaryStore interface {
	ReplaceForAccount(ctx context.Context, accountID string, version uint64, summaries []MarketVoteSummary) error
	LatestVersion(ctx context.Context, accountID string) (uint64, error)
	ListByAccount(ctx context.Context, accountID string) ([]MarketVoteSummary, error)
}

// SubmissionStore persists submitted governance transactions.
type SubmissionStore interface {
	Create(ctx context.Context, s Submission) error
	UpdateStatus(ctx context.Context, id string, status SubmissionStatus, txHash, errMsg string) error
	GetByID(ctx context.Context, id string) (Submission, error)
	ListRecent(ctx context.Context, accountID string, opts ListOpts) ([]Submission, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
