package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/govledger/internal/domain"
)

// multipartThreshold is the encoded size above which snapshots are uploaded
// in parts.
const multipartThreshold = 16 * 1024 * 1024

// SnapshotArchiver stores each published balance snapshot as JSON at
// {prefix}/{account}/{version}.json and keeps {prefix}/{account}/latest.json
// pointing at the newest one.
type SnapshotArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader // optional, needed only by Latest
	prefix string
}

// NewSnapshotArchiver creates an archiver. An empty prefix means "snapshots".
func NewSnapshotArchiver(writer domain.BlobWriter, reader domain.BlobReader, prefix string) *SnapshotArchiver {
	if prefix == "" {
		prefix = "snapshots"
	}
	return &SnapshotArchiver{writer: writer, reader: reader, prefix: prefix}
}

type archivedPredicate struct {
	Kind      domain.PredicateKind `json:"kind"`
	NotBefore *time.Time           `json:"not_before,omitempty"`
}

type archivedClaimant struct {
	Destination string            `json:"destination"`
	Predicate   archivedPredicate `json:"predicate"`
}

type archivedRecord struct {
	ID                 string             `json:"id"`
	Asset              string             `json:"asset"`
	Amount             string             `json:"amount"`
	Sponsor            string             `json:"sponsor"`
	Claimants          []archivedClaimant `json:"claimants"`
	LastModifiedLedger uint32             `json:"last_modified_ledger"`
	PagingToken        string             `json:"paging_token"`
}

type archivedSnapshot struct {
	AccountID string           `json:"account_id"`
	Version   uint64           `json:"version"`
	FetchedAt time.Time        `json:"fetched_at"`
	Records   []archivedRecord `json:"records"`
}

type latestPointer struct {
	Path    string    `json:"path"`
	Version uint64    `json:"version"`
	At      time.Time `json:"at"`
}

// SnapshotPath returns the object key for one snapshot version.
func (a *SnapshotArchiver) SnapshotPath(accountID string, version uint64) string {
	return path.Join(a.prefix, accountID, fmt.Sprintf("%d.json", version))
}

func (a *SnapshotArchiver) latestPath(accountID string) string {
	return path.Join(a.prefix, accountID, "latest.json")
}

// Archive uploads snap and moves the latest pointer to it. It returns the
// object key written.
func (a *SnapshotArchiver) Archive(ctx context.Context, snap *domain.BalanceSnapshot) (string, error) {
	if snap == nil {
		return "", fmt.Errorf("s3blob: archive: nil snapshot")
	}
	body, err := json.Marshal(encodeSnapshot(snap))
	if err != nil {
		return "", fmt.Errorf("s3blob: archive: marshal: %w", err)
	}

	key := a.SnapshotPath(snap.AccountID, snap.Version)
	if len(body) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(body), minPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(body), "application/json")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive %s: %w", key, err)
	}

	ptr, err := json.Marshal(latestPointer{Path: key, Version: snap.Version, At: snap.FetchedAt})
	if err != nil {
		return "", fmt.Errorf("s3blob: archive: marshal pointer: %w", err)
	}
	if err := a.writer.Put(ctx, a.latestPath(snap.AccountID), bytes.NewReader(ptr), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive pointer: %w", err)
	}
	return key, nil
}

// Latest loads the newest archived snapshot for accountID, or
// domain.ErrNotFound when nothing was archived yet.
func (a *SnapshotArchiver) Latest(ctx context.Context, accountID string) (*domain.BalanceSnapshot, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("s3blob: latest: no reader configured")
	}
	var ptr latestPointer
	if err := a.readJSON(ctx, a.latestPath(accountID), &ptr); err != nil {
		return nil, err
	}
	var doc archivedSnapshot
	if err := a.readJSON(ctx, ptr.Path, &doc); err != nil {
		return nil, err
	}
	return decodeSnapshot(doc)
}

// LatestVersion returns the version the latest pointer names, or 0 when
// nothing was archived for accountID.
func (a *SnapshotArchiver) LatestVersion(ctx context.Context, accountID string) (uint64, error) {
	if a.reader == nil {
		return 0, fmt.Errorf("s3blob: latest version: no reader configured")
	}
	var ptr latestPointer
	if err := a.readJSON(ctx, a.latestPath(accountID), &ptr); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return ptr.Version, nil
}

func (a *SnapshotArchiver) readJSON(ctx context.Context, key string, v any) error {
	rc, err := a.reader.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("s3blob: decode %s: %w", key, err)
	}
	return nil
}

func encodeSnapshot(snap *domain.BalanceSnapshot) archivedSnapshot {
	doc := archivedSnapshot{
		AccountID: snap.AccountID,
		Version:   snap.Version,
		FetchedAt: snap.FetchedAt,
		Records:   make([]archivedRecord, 0, len(snap.Records)),
	}
	for _, r := range snap.Records {
		rec := archivedRecord{
			ID:                 r.ID,
			Asset:              r.Asset.String(),
			Amount:             r.Amount.String(),
			Sponsor:            r.Sponsor,
			LastModifiedLedger: r.LastModifiedLedger,
			PagingToken:        r.PagingToken,
		}
		for _, c := range r.Claimants {
			p := archivedPredicate{Kind: c.Predicate.Kind}
			if c.Predicate.Kind == domain.PredicateNotBefore {
				t := c.Predicate.NotBefore
				p.NotBefore = &t
			}
			rec.Claimants = append(rec.Claimants, archivedClaimant{Destination: c.Destination, Predicate: p})
		}
		doc.Records = append(doc.Records, rec)
	}
	return doc
}

func decodeSnapshot(doc archivedSnapshot) (*domain.BalanceSnapshot, error) {
	snap := &domain.BalanceSnapshot{
		AccountID: doc.AccountID,
		Version:   doc.Version,
		FetchedAt: doc.FetchedAt,
		Records:   make([]domain.BalanceRecord, 0, len(doc.Records)),
	}
	for _, r := range doc.Records {
		asset, err := domain.ParseAsset(r.Asset)
		if err != nil {
			return nil, fmt.Errorf("s3blob: record %s: %w", r.ID, err)
		}
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("s3blob: record %s amount: %w", r.ID, err)
		}
		rec := domain.BalanceRecord{
			ID:                 r.ID,
			Asset:              asset,
			Amount:             amount,
			Sponsor:            r.Sponsor,
			LastModifiedLedger: r.LastModifiedLedger,
			PagingToken:        r.PagingToken,
		}
		for _, c := range r.Claimants {
			p := domain.Predicate{Kind: c.Predicate.Kind}
			if c.Predicate.NotBefore != nil {
				p = domain.NotBefore(*c.Predicate.NotBefore)
			}
			rec.Claimants = append(rec.Claimants, domain.Claimant{Destination: c.Destination, Predicate: p})
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap, nil
}
