package wal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/govledger/internal/domain"
)

func submission(id, account string, at time.Time) domain.Submission {
	return domain.Submission{
		ID:        id,
		AccountID: account,
		Action:    domain.ActionVote,
		Status:    domain.SubmissionPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestSubmissionJournal_FoldsUpdates(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, j.Create(ctx, submission("s1", "GACC", base)))
	require.NoError(t, j.UpdateStatus(ctx, "s1", domain.SubmissionSubmitted, "hash1", ""))
	require.NoError(t, j.UpdateStatus(ctx, "s1", domain.SubmissionConfirmed, "", ""))

	got, err := j.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionConfirmed, got.Status)
	assert.Equal(t, "hash1", got.TxHash)

	assert.ErrorIs(t, j.UpdateStatus(ctx, "missing", domain.SubmissionFailed, "", "x"), domain.ErrNotFound)
	_, err = j.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubmissionJournal_ListRecent(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, j.Create(ctx, submission(id, "GACC", base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, j.Create(ctx, submission("other", "GOTHER", base)))

	all, err := j.ListRecent(ctx, "GACC", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)

	page, err := j.ListRecent(ctx, "GACC", domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	since := base.Add(90 * time.Minute)
	recent, err := j.ListRecent(ctx, "GACC", domain.ListOpts{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "c", recent[0].ID)
}

func TestSubmissionJournal_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	j, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, j.Create(ctx, submission("s1", "GACC", time.Now().UTC())))
	require.NoError(t, j.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "GACC", got.AccountID)
}
