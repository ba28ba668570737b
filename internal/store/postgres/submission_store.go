package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/govledger/internal/domain"
)

// SubmissionStore implements domain.SubmissionStore.
type SubmissionStore struct {
	pool *pgxpool.Pool
}

// NewSubmissionStore creates a new SubmissionStore backed by the given pool.
func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

// Create inserts a new submission.
func (s *SubmissionStore) Create(ctx context.Context, sub domain.Submission) error {
	const query = `
		INSERT INTO submissions (
			id, account_id, action, tx_hash, envelope_xdr, status, error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		sub.ID, sub.AccountID, string(sub.Action), sub.TxHash, sub.EnvelopeXDR,
		string(sub.Status), sub.Error, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create submission %s: %w", sub.ID, err)
	}
	return nil
}

// UpdateStatus records a status transition. An empty txHash keeps the hash
// already stored.
func (s *SubmissionStore) UpdateStatus(ctx context.Context, id string, status domain.SubmissionStatus, txHash, errMsg string) error {
	const query = `
		UPDATE submissions
		   SET status = $1,
		       tx_hash = COALESCE(NULLIF($2, ''), tx_hash),
		       error = $3,
		       updated_at = NOW()
		 WHERE id = $4`

	tag, err := s.pool.Exec(ctx, query, string(status), txHash, errMsg, id)
	if err != nil {
		return fmt.Errorf("postgres: update submission %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const submissionSelectCols = `id, account_id, action, tx_hash, envelope_xdr, status, error, created_at, updated_at`

func scanSubmission(row interface{ Scan(dest ...any) error }) (domain.Submission, error) {
	var sub domain.Submission
	var action, status string
	err := row.Scan(
		&sub.ID, &sub.AccountID, &action, &sub.TxHash, &sub.EnvelopeXDR,
		&status, &sub.Error, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return domain.Submission{}, err
	}
	sub.Action = domain.ActionKind(action)
	sub.Status = domain.SubmissionStatus(status)
	return sub, nil
}

// GetByID returns one submission or domain.ErrNotFound.
func (s *SubmissionStore) GetByID(ctx context.Context, id string) (domain.Submission, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+submissionSelectCols+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Submission{}, domain.ErrNotFound
		}
		return domain.Submission{}, fmt.Errorf("postgres: get submission %s: %w", id, err)
	}
	return sub, nil
}

// ListRecent returns the account's submissions, newest first.
func (s *SubmissionStore) ListRecent(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Submission, error) {
	query, args := listQuery(
		`SELECT `+submissionSelectCols+` FROM submissions WHERE account_id = $1`,
		[]any{accountID}, "created_at", opts,
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list submissions: %w", err)
	}
	defer rows.Close()

	var out []domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan submission: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list submissions rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.SubmissionStore = (*SubmissionStore)(nil)
