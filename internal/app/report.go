package app

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/govledger/internal/accounting"
	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/alanyoungcy/govledger/internal/service"
)

// report is the status-mode view of one account.
type report struct {
	AccountID    string
	GeneratedAt  time.Time
	Version      uint64
	FetchedAt    time.Time
	Records      int
	Markets      []domain.MarketVoteSummary
	Claimable    []domain.Vote
	Locks        []domain.Lock
	LockTotal    decimal.Decimal
	Bribes       []domain.BribeClaim
	Boost        *accounting.Boost
	LastArchived *time.Time
}

func buildReport(engine *accounting.Engine, snap *domain.BalanceSnapshot, accountID string, now time.Time) report {
	r := report{AccountID: accountID, GeneratedAt: now}
	if snap != nil {
		r.Version = snap.Version
		r.FetchedAt = snap.FetchedAt
		r.Records = snap.Len()
	}
	r.Markets = engine.MarketSummaries(accountID)
	r.Claimable = engine.ClaimableVotes(accountID, now)
	r.Locks = engine.Locks(accountID)
	r.LockTotal = engine.LockTotal(accountID)
	r.Bribes = engine.BribeClaims(accountID)
	return r
}

// Write renders the report as aligned text.
func (r report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "account\t%s\n", r.AccountID)
	fmt.Fprintf(tw, "snapshot\tv%d, %d records, fetched %s\n", r.Version, r.Records, r.FetchedAt.Format(time.RFC3339))
	if r.LastArchived != nil {
		fmt.Fprintf(tw, "archived\t%s\n", r.LastArchived.Format(time.RFC3339))
	}

	fmt.Fprintf(tw, "\nMARKET\tDIRECTION\tTOTAL\tVOTES\tLATEST CLAIM-BACK\n")
	for _, m := range r.Markets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", m.MarketAddress, m.Direction, m.Total, m.Votes, formatTime(m.LatestClaimBack))
	}

	if len(r.Claimable) > 0 {
		fmt.Fprintf(tw, "\nCLAIMABLE VOTE\tMARKET\tASSET\tAMOUNT\n")
		for _, v := range r.Claimable {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.SourceRecordID, v.MarketAddress, v.Asset, v.Amount)
		}
	}

	fmt.Fprintf(tw, "\nLOCK\tAMOUNT\tUNTIL\tCLAIMABLE\n")
	for _, l := range r.Locks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", l.SourceRecordID, l.Amount, formatTime(l.LockUntil), !l.LockUntil.After(r.GeneratedAt))
	}
	fmt.Fprintf(tw, "total\t%s\n", r.LockTotal)

	if len(r.Bribes) > 0 {
		fmt.Fprintf(tw, "\nBRIBE\tCOLLECTOR\tASSET\tAMOUNT\n")
		for _, b := range r.Bribes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.SourceRecordID, b.CollectorAddress, b.Asset, b.Amount)
		}
	}

	if r.Boost != nil {
		fmt.Fprintf(tw, "\nboost\t%s (multiplier %s, time %s, value %s)\n",
			r.Boost.Boost.StringFixed(4),
			r.Boost.Multiplier.StringFixed(4),
			r.Boost.TimeLockMultiplier.StringFixed(4),
			r.Boost.ValueLockMultiplier.StringFixed(4),
		)
	}
	return tw.Flush()
}

// writeActionResult prints one line per submission and the new market key,
// if any.
func writeActionResult(w io.Writer, kind domain.ActionKind, res service.ActionResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range res.Submissions {
		line := fmt.Sprintf("%s\t%s\t%s\t%s", kind, s.ID, s.Status, s.TxHash)
		if s.Error != "" {
			line += "\t" + s.Error
		}
		fmt.Fprintln(tw, line)
	}
	if res.MarketKey != nil {
		fmt.Fprintf(tw, "market up\t%s\n", res.MarketKey.Up)
		fmt.Fprintf(tw, "market down\t%s\n", res.MarketKey.Down)
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
