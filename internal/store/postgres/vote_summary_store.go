package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/govledger/internal/domain"
)

// VoteSummaryStore implements domain.VoteSummaryStore. Each account's rows
// are replaced together so readers see one snapshot version at a time.
type VoteSummaryStore struct {
	pool *pgxpool.Pool
}

// NewVoteSummaryStore creates a new VoteSummaryStore backed by the given pool.
func NewVoteSummaryStore(pool *pgxpool.Pool) *VoteSummaryStore {
	return &VoteSummaryStore{pool: pool}
}

// ReplaceForAccount swaps the account's summaries for those derived from
// snapshot version. Versions older than the stored one are ignored.
func (s *VoteSummaryStore) ReplaceForAccount(ctx context.Context, accountID string, version uint64, summaries []domain.MarketVoteSummary) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin replace summaries: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var stored *int64
	err = tx.QueryRow(ctx,
		`SELECT MAX(snapshot_version) FROM vote_summaries WHERE account_id = $1`, accountID,
	).Scan(&stored)
	if err != nil {
		return fmt.Errorf("postgres: read summary version %s: %w", accountID, err)
	}
	if stored != nil && uint64(*stored) > version {
		return nil
	}

	if _, err := tx.Exec(ctx, `DELETE FROM vote_summaries WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("postgres: delete summaries %s: %w", accountID, err)
	}

	const insert = `
		INSERT INTO vote_summaries (
			account_id, market_address, direction, total, by_asset,
			latest_claim_back, vote_count, snapshot_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	batch := &pgx.Batch{}
	for _, sm := range summaries {
		byAsset, err := encodeByAsset(sm.ByAsset)
		if err != nil {
			return fmt.Errorf("postgres: marshal summary %s: %w", sm.MarketAddress, err)
		}
		var latest *time.Time
		if !sm.LatestClaimBack.IsZero() {
			t := sm.LatestClaimBack
			latest = &t
		}
		batch.Queue(insert,
			accountID, sm.MarketAddress, string(sm.Direction), sm.Total.String(),
			byAsset, latest, sm.Votes, int64(version),
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert summaries %s: %w", accountID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit summaries %s: %w", accountID, err)
	}
	return nil
}

// LatestVersion returns the snapshot version of the stored summaries, or 0
// when none are stored.
func (s *VoteSummaryStore) LatestVersion(ctx context.Context, accountID string) (uint64, error) {
	var version int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(snapshot_version), 0) FROM vote_summaries WHERE account_id = $1`, accountID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("postgres: latest summary version %s: %w", accountID, err)
	}
	return uint64(version), nil
}

// ListByAccount returns the stored summaries, largest total first.
func (s *VoteSummaryStore) ListByAccount(ctx context.Context, accountID string) ([]domain.MarketVoteSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT market_address, direction, total::text, by_asset, latest_claim_back, vote_count
		  FROM vote_summaries
		 WHERE account_id = $1
		 ORDER BY total DESC, market_address`, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list summaries %s: %w", accountID, err)
	}
	defer rows.Close()

	var out []domain.MarketVoteSummary
	for rows.Next() {
		sm := domain.MarketVoteSummary{AccountID: accountID}
		var direction, total string
		var byAsset []byte
		var latest *time.Time
		if err := rows.Scan(&sm.MarketAddress, &direction, &total, &byAsset, &latest, &sm.Votes); err != nil {
			return nil, fmt.Errorf("postgres: scan summary: %w", err)
		}
		sm.Direction = domain.Direction(direction)
		if sm.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("postgres: parse total %q: %w", total, err)
		}
		if sm.ByAsset, err = decodeByAsset(byAsset); err != nil {
			return nil, fmt.Errorf("postgres: parse by_asset: %w", err)
		}
		if latest != nil {
			sm.LatestClaimBack = latest.UTC()
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list summaries rows: %w", err)
	}
	return out, nil
}

// encodeByAsset stores amounts as decimal strings to keep full precision.
func encodeByAsset(m map[domain.RecognizedAsset]decimal.Decimal) ([]byte, error) {
	plain := make(map[string]string, len(m))
	for k, v := range m {
		plain[string(k)] = v.String()
	}
	return json.Marshal(plain)
}

func decodeByAsset(raw []byte) (map[domain.RecognizedAsset]decimal.Decimal, error) {
	out := make(map[domain.RecognizedAsset]decimal.Decimal)
	if len(raw) == 0 {
		return out, nil
	}
	var plain map[string]string
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	for k, v := range plain {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", k, err)
		}
		out[domain.RecognizedAsset(k)] = d
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.VoteSummaryStore = (*VoteSummaryStore)(nil)
