// Package wal keeps a local, append-only journal of submissions for runs
// without a database.
package wal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vadiminshakov/gowal"

	"github.com/alanyoungcy/govledger/internal/domain"
)

const (
	defaultJournalDir = "./wal/submissions"
	journalSegment    = 1000
	journalMaxSegs    = 100

	keyCreate = "submission_create_"
	keyUpdate = "submission_update_"
)

type statusUpdate struct {
	ID     string                  `json:"id"`
	Status domain.SubmissionStatus `json:"status"`
	TxHash string                  `json:"tx_hash,omitempty"`
	Error  string                  `json:"error,omitempty"`
	At     time.Time               `json:"at"`
}

// SubmissionJournal implements domain.SubmissionStore on a write-ahead log.
// Creates and status updates are separate entries; reads fold them.
type SubmissionJournal struct {
	mu  sync.RWMutex
	wal *gowal.Wal
}

// Open opens or creates the journal under dir.
func Open(dir string) (*SubmissionJournal, error) {
	if dir == "" {
		dir = defaultJournalDir
	}
	w, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "submissions_",
		SegmentThreshold: journalSegment,
		MaxSegments:      journalMaxSegs,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", dir, err)
	}
	return &SubmissionJournal{wal: w}, nil
}

func (j *SubmissionJournal) append(key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wal: marshal %s: %w", key, err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.wal.Write(j.wal.CurrentIndex()+1, key, payload); err != nil {
		return fmt.Errorf("wal: write %s: %w", key, err)
	}
	return nil
}

// Create records a new submission.
func (j *SubmissionJournal) Create(_ context.Context, s domain.Submission) error {
	return j.append(keyCreate+s.ID, s)
}

// UpdateStatus records a status transition for an existing submission.
func (j *SubmissionJournal) UpdateStatus(ctx context.Context, id string, status domain.SubmissionStatus, txHash, errMsg string) error {
	if _, err := j.GetByID(ctx, id); err != nil {
		return err
	}
	return j.append(keyUpdate+id, statusUpdate{
		ID: id, Status: status, TxHash: txHash, Error: errMsg, At: time.Now().UTC(),
	})
}

// GetByID returns the folded state of one submission.
func (j *SubmissionJournal) GetByID(_ context.Context, id string) (domain.Submission, error) {
	all, err := j.fold()
	if err != nil {
		return domain.Submission{}, err
	}
	s, ok := all[id]
	if !ok {
		return domain.Submission{}, domain.ErrNotFound
	}
	return s, nil
}

// ListRecent returns the account's submissions, newest first.
func (j *SubmissionJournal) ListRecent(_ context.Context, accountID string, opts domain.ListOpts) ([]domain.Submission, error) {
	all, err := j.fold()
	if err != nil {
		return nil, err
	}
	var out []domain.Submission
	for _, s := range all {
		if s.AccountID != accountID {
			continue
		}
		if opts.Since != nil && s.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && s.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// fold replays the log into the latest state of every submission.
func (j *SubmissionJournal) fold() (map[string]domain.Submission, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make(map[string]domain.Submission)
	for idx := uint64(1); idx <= j.wal.CurrentIndex(); idx++ {
		key, payload, err := j.wal.Get(idx)
		if err != nil || key == "" {
			continue
		}
		switch {
		case strings.HasPrefix(key, keyCreate):
			var s domain.Submission
			if err := json.Unmarshal(payload, &s); err != nil {
				return nil, fmt.Errorf("wal: decode %s: %w", key, err)
			}
			out[s.ID] = s
		case strings.HasPrefix(key, keyUpdate):
			var u statusUpdate
			if err := json.Unmarshal(payload, &u); err != nil {
				return nil, fmt.Errorf("wal: decode %s: %w", key, err)
			}
			s, ok := out[u.ID]
			if !ok {
				continue
			}
			s.Status, s.Error, s.UpdatedAt = u.Status, u.Error, u.At
			if u.TxHash != "" {
				s.TxHash = u.TxHash
			}
			out[u.ID] = s
		}
	}
	return out, nil
}

// Close closes the underlying log.
func (j *SubmissionJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Close()
}

// Compile-time interface check.
var _ domain.SubmissionStore = (*SubmissionJournal)(nil)
