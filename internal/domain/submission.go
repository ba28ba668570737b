package domain

import "time"

// ActionKind names a governance action that results in a transaction.
type ActionKind string

const (
	ActionVote       ActionKind = "vote"
	ActionDownvote   ActionKind = "downvote"
	ActionLock       ActionKind = "lock"
	ActionClaim      ActionKind = "claim"
	ActionCreatePair ActionKind = "create_pair"
)

// SubmissionStatus tracks a transaction from build to ledger inclusion.
type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionConfirmed SubmissionStatus = "confirmed"
	SubmissionFailed    SubmissionStatus = "failed"
)

// Submission is one transaction sent to the ledger on behalf of an account.
type Submission struct {
	ID          string
	AccountID   string
	Action      ActionKind
	TxHash      string
	EnvelopeXDR string
	Status      SubmissionStatus
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
