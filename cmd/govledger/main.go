// Command govledger watches a governance account's claimable balances and
// performs governance actions (vote, downvote, lock, claim, create-pair) for
// it. It loads configuration, validates it, sets up signal handling, and runs
// the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alanyoungcy/govledger/internal/app"
	"github.com/alanyoungcy/govledger/internal/config"
	"github.com/alanyoungcy/govledger/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file (empty: environment only)")
	mode := flag.String("mode", "", "override the configured mode (watch, status, vote, downvote, lock, claim, create-pair)")
	encryptKey := flag.String("encrypt-key", "", "write account.secret_seed encrypted with account.key_password to this path and exit")

	var req app.ActionRequest
	var unlock string
	flag.StringVar(&req.Market, "market", "", "vote/downvote: market address (either key of the pair)")
	flag.StringVar(&req.Amount, "amount", "", "vote/downvote/lock: amount")
	flag.StringVar(&unlock, "unlock", "", "vote/downvote/lock: unlock date (2006-01-02 or RFC3339)")
	flag.IntVar(&req.Days, "days", 0, "vote/downvote/lock: unlock after this many days")
	flag.StringVar(&req.Asset, "asset", "", "vote: asset name or CODE:ISSUER (default AQUA)")
	flag.StringVar(&req.BalanceID, "balance", "", "claim: claimable balance id")
	flag.StringVar(&req.Trustline, "trustline", "", "claim: asset to trust before claiming")
	flag.StringVar(&req.Base, "base", "", "create-pair: base asset")
	flag.StringVar(&req.Counter, "counter", "", "create-pair: counter asset")
	flag.Parse()

	// Logs go to stderr; stdout carries reports.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if *encryptKey != "" {
		if err := writeEncryptedKey(*encryptKey, cfg.Account.SecretSeed, cfg.Account.KeyPassword); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		logger.Info("encrypted key written", slog.String("path", *encryptKey))
		return
	}

	if unlock != "" {
		if req.Unlock, err = parseDate(unlock); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: -unlock: %v\n", err)
			os.Exit(2)
		}
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("govledger starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger, app.WithActionRequest(req))
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			application.Close()
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("govledger stopped")
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

func writeEncryptedKey(path, seed, password string) error {
	if seed == "" || password == "" {
		return errors.New("encrypt-key: account.secret_seed and account.key_password are required")
	}
	data, err := crypto.EncryptSeed(seed, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("encrypt-key: %w", err)
	}
	return nil
}
