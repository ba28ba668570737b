package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/govledger/internal/accounting"
	"github.com/alanyoungcy/govledger/internal/domain"
	"github.com/alanyoungcy/govledger/internal/server"
	"github.com/alanyoungcy/govledger/internal/server/handler"
	"github.com/alanyoungcy/govledger/internal/server/ws"
	"github.com/alanyoungcy/govledger/internal/service"
	"github.com/alanyoungcy/govledger/internal/txbuild"
)

// ledgerView is the read side shared by every mode: the balance store, the
// accounting engine over it, and the market directory feeding the engine.
type ledgerView struct {
	store     *service.BalanceStore
	engine    *accounting.Engine
	directory *service.MarketDirectory
}

func (a *App) newLedgerView(deps *Dependencies) ledgerView {
	store := service.NewBalanceStore(service.BalanceStoreConfig{
		Source:   deps.Ledger,
		Streamer: deps.Ledger,
		Bus:      deps.SignalBus,
		MaxPages: a.cfg.Governance.MaxPages,
		Logger:   a.logger,
	})
	engine := accounting.NewEngine(
		accounting.NewClassifier(deps.Assets),
		store,
		a.cfg.Governance.BribeAddresses,
	)
	directory := service.NewMarketDirectory(
		deps.Directory,
		deps.MarketKeyCache,
		a.cfg.Governance.DirectoryTTL.Duration,
		a.logger,
		engine,
	)
	return ledgerView{store: store, engine: engine, directory: directory}
}

// load fetches the directory and the account's balances, then names any
// market the directory listing missed.
func (a *App) load(ctx context.Context, v ledgerView, accountID string) error {
	if _, err := v.directory.Keys(ctx); err != nil {
		a.logger.WarnContext(ctx, "market directory unavailable", slog.String("error", err.Error()))
	}
	if err := v.store.Refresh(ctx, accountID); err != nil {
		return fmt.Errorf("load balances: %w", err)
	}
	a.resolveMarkets(ctx, v, accountID)
	return nil
}

func (a *App) resolveMarkets(ctx context.Context, v ledgerView, accountID string) {
	addrs := v.engine.KeysResemblingMarketAddresses(accountID)
	if len(addrs) == 0 {
		return
	}
	if _, err := v.directory.Resolve(ctx, addrs); err != nil && ctx.Err() == nil {
		a.logger.WarnContext(ctx, "resolve market addresses failed",
			slog.Int("addresses", len(addrs)),
			slog.String("error", err.Error()),
		)
	}
}

func (a *App) priceService(deps *Dependencies) *service.PriceService {
	return service.NewPriceService(
		deps.Ledger,
		deps.PriceCache,
		deps.Assets.GovernanceToken(),
		domain.NativeAsset,
		a.cfg.Governance.PriceInterval.Duration*2,
		a.logger,
	)
}

func (a *App) boostService(deps *Dependencies, v ledgerView, prices *service.PriceService) *service.BoostService {
	calc := accounting.NewBoostCalculator(accounting.BoostParams{
		MaxLockPeriod: a.cfg.Governance.MaxLockPeriod.Duration,
		MaxBoost:      a.cfg.Governance.MaxBoost,
	})
	return service.NewBoostService(v.engine, calc, deps.Ledger, prices, deps.Assets.GovernanceToken())
}

// WatchMode keeps the account's snapshot live, announces claimable balances,
// persists snapshots and serves the read API until ctx is cancelled.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode", slog.String("account", deps.AccountID))

	v := a.newLedgerView(deps)

	var sink *service.SnapshotSink
	if deps.VoteSummaries != nil || deps.Archiver != nil {
		var archiver service.SnapshotArchiver
		if deps.Archiver != nil {
			archiver = deps.Archiver
		}
		sink = service.NewSnapshotSink(v.store, v.engine, deps.VoteSummaries, archiver, a.logger)
		if err := sink.Resume(ctx, deps.AccountID); err != nil {
			a.logger.WarnContext(ctx, "could not read persisted snapshot version", slog.String("error", err.Error()))
		}
	}

	if err := a.load(ctx, v, deps.AccountID); err != nil {
		// Live updates retry on the next balance effect.
		a.logger.WarnContext(ctx, "initial load failed", slog.String("error", err.Error()))
	}

	stop, err := v.store.SubscribeToLiveUpdates(ctx, deps.AccountID)
	if err != nil {
		return fmt.Errorf("watch mode: %w", err)
	}
	defer stop()
	defer v.store.Clear()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return v.directory.Run(ctx) })

	// New balances may point at markets the directory has not listed.
	g.Go(func() error {
		events, unsubscribe := v.store.Subscribe(4)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if !ev.Cleared {
					a.resolveMarkets(ctx, v, deps.AccountID)
				}
			}
		}
	})

	watcher := service.NewClaimWatcher(v.engine, v.store, deps.AccountID, deps.SignalBus, deps.Notifier,
		a.cfg.Governance.ClaimCheckInterval.Duration, a.logger)
	g.Go(func() error { return watcher.Run(ctx) })

	if sink != nil {
		g.Go(func() error { return sink.Run(ctx) })
	}

	prices := a.priceService(deps)
	if deps.PriceCache != nil {
		g.Go(func() error { return prices.Run(ctx, a.cfg.Governance.PriceInterval.Duration) })
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, v, a.boostService(deps, v, prices))
	}

	return g.Wait()
}

// startHTTPServer registers the read API and, when a bus is available, the
// WebSocket hub, then serves until ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, v ledgerView, boost handler.BoostReporter) {
	startedAt := time.Now().UTC()

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, ws.Config{
			Mode:           a.cfg.Mode,
			AccountID:      deps.AccountID,
			StartedAt:      startedAt,
			AllowedOrigins: a.cfg.Server.CORSOrigins,
		}, a.logger, ws.Channels...)
		g.Go(func() error { return hub.Run(ctx) })
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger, deps.Checks),
		Status:   handler.NewStatusHandler(a.cfg.Mode, deps.AccountID, v.store, startedAt),
		Accounts: handler.NewAccountHandler(v.engine, v.store, boost, a.logger),
	}
	if deps.Submissions != nil {
		handlers.Submissions = handler.NewSubmissionHandler(deps.Submissions, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error { return srv.Start() })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// StatusMode loads the account once and writes a report of its votes, locks,
// claimable balances and boost.
func (a *App) StatusMode(ctx context.Context, deps *Dependencies) error {
	v := a.newLedgerView(deps)
	if err := a.load(ctx, v, deps.AccountID); err != nil {
		return fmt.Errorf("status mode: %w", err)
	}

	rep := buildReport(v.engine, v.store.Snapshot(), deps.AccountID, time.Now().UTC())

	b, err := a.boostService(deps, v, a.priceService(deps)).Report(ctx, deps.AccountID, rep.GeneratedAt)
	if err != nil {
		a.logger.WarnContext(ctx, "boost unavailable", slog.String("error", err.Error()))
	} else {
		rep.Boost = &b
	}

	if deps.Archiver != nil {
		last, err := deps.Archiver.Latest(ctx, deps.AccountID)
		switch {
		case err == nil:
			rep.LastArchived = &last.FetchedAt
		case errors.Is(err, domain.ErrNotFound):
		default:
			a.logger.WarnContext(ctx, "read archived snapshot", slog.String("error", err.Error()))
		}
	}

	return rep.Write(a.out)
}

// ActionMode performs the one governance action named by mode and reports
// the resulting submissions.
func (a *App) ActionMode(ctx context.Context, deps *Dependencies, mode string) error {
	if deps.Signer == nil {
		return fmt.Errorf("%s: no signing key configured", mode)
	}

	v := a.newLedgerView(deps)
	action, err := a.request.toAction(ctx, mode, deps.Assets, v.directory, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", mode, err)
	}

	svc := service.NewActionService(service.ActionServiceConfig{
		Signer:     deps.Signer,
		Passphrase: a.cfg.Stellar.NetworkPassphrase,
		Build: txbuild.BuildOptions{
			BaseFee: a.cfg.Stellar.BaseFee,
			Timeout: a.cfg.Stellar.TxTimeout.Duration,
		},
		RestrictedAssets: deps.Restricted,
		Assembler:        txbuild.NewAssembler(a.cfg.Governance.MarketKeyFunding),
		Accounts:         deps.Ledger,
		Submitter:        deps.Ledger,
		Poller:           service.NewTxPoller(deps.Ledger, a.logger, service.WithPollMaxAttempts(a.cfg.Stellar.PollAttempts)),
		Approver:         deps.Approver,
		Locks:            deps.LockManager,
		Submissions:      deps.Submissions,
		Audit:            deps.AuditStore,
		Bus:              deps.SignalBus,
		Notifier:         deps.Notifier,
		Logger:           a.logger,
	})

	res, err := svc.Execute(ctx, action)
	if werr := writeActionResult(a.out, action.Kind, res); werr != nil {
		a.logger.WarnContext(ctx, "write action result", slog.String("error", werr.Error()))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", mode, err)
	}
	return nil
}
