package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/alanyoungcy/govledger/internal/txbuild"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// Notification event names emitted by the action workflow.
const (
	EventSubmissionConfirmed = "submission_confirmed"
	EventSubmissionFailed    = "submission_failed"
)

// Submitter sends signed transactions to the ledger.
type Submitter interface {
	Submit(ctx context.Context, tx *txnbuild.Transaction) (string, error)
}

// Approver revises transactions that move regulated assets.
type Approver interface {
	Approve(ctx context.Context, envelope string) (string, error)
}

// EventNotifier delivers operator notifications.
type EventNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Action is a governance request from the account owner.
type Action struct {
	Kind      domain.ActionKind
	Market    string // market address to vote on (up or down key)
	Amount    decimal.Decimal
	Unlock    time.Time
	Asset     domain.Asset
	BalanceID string        // claim
	Trustline *domain.Asset // claim: trust this asset first
	Base      domain.Asset  // create pair
	Counter   domain.Asset  // create pair
}

// ActionResult reports what was submitted.
type ActionResult struct {
	Submissions []domain.Submission
	MarketKey   *domain.MarketKey
}

// ActionServiceConfig wires the action workflow. Locks, Submissions, Audit,
// Bus and Notifier are optional. Without an Approver, transactions touching
// RestrictedAssets are refused.
type ActionServiceConfig struct {
	Signer           *keypair.Full
	Passphrase       string
	Build            txbuild.BuildOptions
	RestrictedAssets []domain.Asset
	LockTTL          time.Duration

	Assembler   *txbuild.Assembler
	Accounts    domain.AccountLoader
	Submitter   Submitter
	Poller      *TxPoller
	Approver    Approver
	Locks       domain.LockManager
	Submissions domain.SubmissionStore
	Audit       domain.AuditStore
	Bus         domain.SignalBus
	Notifier    EventNotifier
	Logger      *slog.Logger
}

// ActionService turns governance actions into confirmed ledger transactions:
// reload account, assemble, check signing weight, obtain approval when
// needed, sign, submit, and wait for confirmation.
type ActionService struct {
	cfg    ActionServiceConfig
	logger *slog.Logger
}

// NewActionService creates an ActionService.
func NewActionService(cfg ActionServiceConfig) *ActionService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &ActionService{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "action_service")),
	}
}

// AccountID returns the address actions are performed for.
func (s *ActionService) AccountID() string {
	return s.cfg.Signer.Address()
}

// Execute performs a. Submissions for one account are serialized through the
// lock manager so sequence numbers never collide.
func (s *ActionService) Execute(ctx context.Context, a Action) (ActionResult, error) {
	account := s.AccountID()
	if s.cfg.Locks != nil {
		unlock, err := s.cfg.Locks.Acquire(ctx, "submit:"+account, s.cfg.LockTTL)
		if err != nil {
			return ActionResult{}, fmt.Errorf("action %s: %w", a.Kind, err)
		}
		defer unlock()
	}

	switch a.Kind {
	case domain.ActionVote, domain.ActionDownvote:
		ops, err := s.cfg.Assembler.Vote(account, a.Market, a.Amount, a.Unlock, a.Asset)
		if err != nil {
			return ActionResult{}, err
		}
		return s.single(ctx, a.Kind, ops)
	case domain.ActionLock:
		ops, err := s.cfg.Assembler.Lock(account, a.Amount, a.Unlock, a.Asset)
		if err != nil {
			return ActionResult{}, err
		}
		return s.single(ctx, a.Kind, ops)
	case domain.ActionClaim:
		ops, err := s.cfg.Assembler.Claim(a.BalanceID, a.Trustline)
		if err != nil {
			return ActionResult{}, err
		}
		return s.single(ctx, a.Kind, ops)
	case domain.ActionCreatePair:
		return s.createPair(ctx, a)
	default:
		return ActionResult{}, fmt.Errorf("action %q: unsupported", a.Kind)
	}
}

func (s *ActionService) single(ctx context.Context, kind domain.ActionKind, ops []txnbuild.Operation) (ActionResult, error) {
	sub, err := s.submit(ctx, kind, ops)
	if sub.ID == "" {
		return ActionResult{}, err
	}
	return ActionResult{Submissions: []domain.Submission{sub}}, err
}

// createPair submits the up and down sub-transactions one after the other.
// Each is signed by its own new key and then by the account.
func (s *ActionService) createPair(ctx context.Context, a Action) (ActionResult, error) {
	plan, err := s.cfg.Assembler.MarketPair(s.AccountID(), a.Base, a.Counter)
	if err != nil {
		return ActionResult{}, err
	}
	key := plan.Key(a.Base, a.Counter)
	res := ActionResult{MarketKey: &key}

	for _, sub := range []txbuild.SubPlan{plan.Up, plan.Down} {
		done, err := s.submit(ctx, domain.ActionCreatePair, sub.Operations, sub.Keypair)
		if done.ID != "" {
			res.Submissions = append(res.Submissions, done)
		}
		if err != nil {
			return res, err
		}
	}
	s.logger.Info("market pair created",
		slog.String("up", key.Up),
		slog.String("down", key.Down),
	)
	return res, nil
}

func (s *ActionService) submit(ctx context.Context, kind domain.ActionKind, ops []txnbuild.Operation, cosigners ...*keypair.Full) (domain.Submission, error) {
	account := s.AccountID()

	// The sequence number must be fresh for every transaction.
	state, err := s.cfg.Accounts.LoadAccount(ctx, account)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("action %s: load account: %w", kind, err)
	}
	if err := txbuild.CheckSigningWeight(ops, state.Profile); err != nil {
		return domain.Submission{}, fmt.Errorf("action %s: %w", kind, err)
	}

	tx, err := txbuild.NewTransaction(state, ops, s.cfg.Build)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("action %s: %w", kind, err)
	}
	// Restricted assets never reach the network without approval.
	if txbuild.TouchesAsset(ops, s.cfg.RestrictedAssets) {
		if s.cfg.Approver == nil {
			return domain.Submission{}, fmt.Errorf("action %s: %w: no approval server configured", kind, domain.ErrApprovalRejected)
		}
		if tx, err = s.approve(ctx, tx); err != nil {
			return domain.Submission{}, fmt.Errorf("action %s: %w", kind, err)
		}
	}

	signers := append(cosigners, s.cfg.Signer)
	signed, err := txbuild.Sign(tx, s.cfg.Passphrase, signers...)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("action %s: %w", kind, err)
	}
	envelope, err := signed.Base64()
	if err != nil {
		return domain.Submission{}, fmt.Errorf("action %s: encode: %w", kind, err)
	}

	now := time.Now().UTC()
	sub := domain.Submission{
		ID:          uuid.New().String(),
		AccountID:   account,
		Action:      kind,
		EnvelopeXDR: envelope,
		Status:      domain.SubmissionPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if s.cfg.Submissions != nil {
		if err := s.cfg.Submissions.Create(ctx, sub); err != nil {
			s.logger.Warn("record submission", slog.String("error", err.Error()))
		}
	}

	hash, err := s.cfg.Submitter.Submit(ctx, signed)
	if err != nil {
		s.transition(ctx, &sub, domain.SubmissionFailed, "", err)
		return sub, fmt.Errorf("action %s: %w", kind, err)
	}
	s.transition(ctx, &sub, domain.SubmissionSubmitted, hash, nil)

	if s.cfg.Poller != nil {
		if _, err := s.cfg.Poller.Wait(ctx, hash); err != nil {
			s.transition(ctx, &sub, domain.SubmissionFailed, hash, err)
			return sub, fmt.Errorf("action %s: %w", kind, err)
		}
	}
	s.transition(ctx, &sub, domain.SubmissionConfirmed, hash, nil)
	return sub, nil
}

func (s *ActionService) approve(ctx context.Context, tx *txnbuild.Transaction) (*txnbuild.Transaction, error) {
	envelope, err := tx.Base64()
	if err != nil {
		return nil, fmt.Errorf("encode for approval: %w", err)
	}
	revised, err := s.cfg.Approver.Approve(ctx, envelope)
	if err != nil {
		return nil, err
	}
	return txbuild.FromBase64(revised)
}

// transition records a status change everywhere it is observed: the
// submission store, the bus, the audit log, the notifier and the log.
func (s *ActionService) transition(ctx context.Context, sub *domain.Submission, status domain.SubmissionStatus, hash string, cause error) {
	sub.Status = status
	sub.TxHash = hash
	sub.UpdatedAt = time.Now().UTC()
	if cause != nil {
		sub.Error = cause.Error()
	}

	attrs := []any{
		slog.String("id", sub.ID),
		slog.String("action", string(sub.Action)),
		slog.String("status", string(status)),
		slog.String("hash", hash),
	}
	if cause != nil {
		s.logger.Warn("submission failed", append(attrs, slog.String("error", cause.Error()))...)
	} else {
		s.logger.Info("submission updated", attrs...)
	}

	if s.cfg.Submissions != nil {
		if err := s.cfg.Submissions.UpdateStatus(ctx, sub.ID, status, hash, sub.Error); err != nil {
			s.logger.Warn("update submission", slog.String("error", err.Error()))
		}
	}

	ev := domain.SubmissionEvent{
		ID:        sub.ID,
		AccountID: sub.AccountID,
		Action:    sub.Action,
		Status:    status,
		TxHash:    hash,
		Error:     sub.Error,
	}
	if s.cfg.Bus != nil {
		if payload, err := json.Marshal(ev); err == nil {
			if err := s.cfg.Bus.Publish(ctx, domain.ChannelSubmissions, payload); err != nil {
				s.logger.Warn("publish submission event", slog.String("error", err.Error()))
			}
			if err := s.cfg.Bus.StreamAppend(ctx, domain.StreamSubmissions, payload); err != nil {
				s.logger.Warn("append submission stream", slog.String("error", err.Error()))
			}
		}
	}

	if status != domain.SubmissionConfirmed && status != domain.SubmissionFailed {
		return
	}
	if s.cfg.Audit != nil {
		detail := map[string]any{"id": sub.ID, "action": sub.Action, "hash": hash, "account": sub.AccountID}
		if cause != nil {
			detail["error"] = sub.Error
		}
		if err := s.cfg.Audit.Log(ctx, "submission_"+string(status), detail); err != nil {
			s.logger.Warn("audit log", slog.String("error", err.Error()))
		}
	}
	if s.cfg.Notifier != nil {
		event, title := EventSubmissionConfirmed, fmt.Sprintf("%s confirmed", sub.Action)
		msg := fmt.Sprintf("tx %s", hash)
		if status == domain.SubmissionFailed {
			event, title = EventSubmissionFailed, fmt.Sprintf("%s failed", sub.Action)
			msg = sub.Error
		}
		if err := s.cfg.Notifier.Notify(ctx, event, title, msg); err != nil {
			s.logger.Warn("notify", slog.String("error", err.Error()))
		}
	}
}

// IsUserError reports whether err comes from the request itself rather than
// the network, so retrying the same request cannot help.
func IsUserError(err error) bool {
	return errors.Is(err, domain.ErrInsufficientSigningWeight) ||
		errors.Is(err, domain.ErrApprovalRejected) ||
		errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrInvalidAddress) ||
		errors.Is(err, domain.ErrUnknownOperation)
}
