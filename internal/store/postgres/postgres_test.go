package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/govledger/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://x", Host: "ignored"},
			want: "postgres://x",
		},
		{
			name: "defaults",
			cfg:  ClientConfig{Host: "db", Database: "govledger", User: "u", Password: "p"},
			want: "postgres://u:p@db:5432/govledger?sslmode=disable",
		},
		{
			name: "custom port and ssl",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "g", User: "u", Password: "p", SSLMode: "require"},
			want: "postgres://u:p@db:6543/g?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DSN(tt.cfg))
		})
	}
}

func TestListQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args := listQuery(`SELECT * FROM submissions WHERE account_id = $1`, []any{"GACC"}, "created_at",
		domain.ListOpts{Since: &since, Limit: 10, Offset: 20})

	assert.Equal(t,
		`SELECT * FROM submissions WHERE account_id = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`, q)
	assert.Equal(t, []any{"GACC", since, 10, 20}, args)

	q, args = listQuery(`SELECT * FROM audit_log WHERE TRUE`, nil, "created_at", domain.ListOpts{})
	assert.Equal(t, `SELECT * FROM audit_log WHERE TRUE ORDER BY created_at DESC`, q)
	assert.Empty(t, args)
}

func TestByAssetEncoding(t *testing.T) {
	in := map[domain.RecognizedAsset]decimal.Decimal{
		domain.AssetAQUA:      decimal.RequireFromString("1234.5678901"),
		domain.AssetUpvoteICE: decimal.RequireFromString("0.0000001"),
	}
	raw, err := encodeByAsset(in)
	require.NoError(t, err)

	out, err := decodeByAsset(raw)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, in[domain.AssetAQUA].Equal(out[domain.AssetAQUA]))
	assert.True(t, in[domain.AssetUpvoteICE].Equal(out[domain.AssetUpvoteICE]))

	empty, err := decodeByAsset(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMigrationFiles(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql"}, names)
}
