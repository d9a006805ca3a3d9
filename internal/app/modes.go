package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polycopy/internal/buffer"
	"github.com/alanyoungcy/polycopy/internal/chain"
	"github.com/alanyoungcy/polycopy/internal/crypto"
	"github.com/alanyoungcy/polycopy/internal/domain"
	"github.com/alanyoungcy/polycopy/internal/feed"
	"github.com/alanyoungcy/polycopy/internal/pipeline"
	"github.com/alanyoungcy/polycopy/internal/platform/polymarket"
	"github.com/alanyoungcy/polycopy/internal/sizing"
)

const (
	// executorLockKey guards the claim-and-settle loop: at most one
	// instance per Redis runs it. The lock auto-extends while held.
	executorLockKey = "executor"
	executorLockTTL = 30 * time.Second
)

// pipelineOptions selects which halves of the pipeline a mode runs.
type pipelineOptions struct {
	ingest bool // poll the data API and mirror activities into the store
	dryRun bool // size and log decisions without submitting orders
}

// CopyMode runs the full pipeline: ingest trader activity, claim it, size it,
// and execute copies on the CLOB.
func (a *App) CopyMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting copy mode")
	return a.runPipeline(ctx, deps, pipelineOptions{ingest: true})
}

// MonitorMode runs the full pipeline without submitting orders: every sizing
// decision is logged and notified, nothing reaches the exchange.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode (dry run)")
	return a.runPipeline(ctx, deps, pipelineOptions{ingest: true, dryRun: true})
}

// ExecuteMode runs the settle side only: it claims and executes whatever
// unclaimed rows the store holds, leaving ingestion to another instance.
func (a *App) ExecuteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting execute mode")
	return a.runPipeline(ctx, deps, pipelineOptions{})
}

// runPipeline builds the shared pipeline and runs it until the context is
// cancelled. All modes claim rows, so all of them take the executor lock.
func (a *App) runPipeline(ctx context.Context, deps *Dependencies, opts pipelineOptions) error {
	unlock, err := deps.LockManager.Acquire(ctx, executorLockKey, executorLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("app: another instance is already running against this Redis: %w", err)
		}
		return fmt.Errorf("app: acquire executor lock: %w", err)
	}
	defer unlock()

	dataClient := polymarket.NewDataClient(a.cfg.Polymarket.DataHost, deps.RateLimiter)

	balances, err := chain.NewBalanceReader(ctx, a.cfg.Chain.RPCURL, a.cfg.Chain.USDCContract)
	if err != nil {
		return fmt.Errorf("app: chain balance reader: %w", err)
	}
	defer balances.Close()

	engine, err := sizing.New(a.cfg.Strategy)
	if err != nil {
		return fmt.Errorf("app: sizing engine: %w", err)
	}

	// Postgres and Redis were pinged during wiring; probe the two remote
	// surfaces the loops depend on so misconfiguration shows up at startup.
	a.probeConnectivity(ctx, dataClient, balances)

	// The order backend is only built when orders will actually be placed.
	var backend domain.OrderBackend
	var clob *polymarket.ClobClient
	if !opts.dryRun {
		clob, backend, err = a.buildBackend(ctx)
		if err != nil {
			return fmt.Errorf("app: order backend: %w", err)
		}
	}

	settler := pipeline.NewSettler(
		deps.ActivityStore,
		deps.PositionStore,
		backend,
		balances,
		dataClient,
		deps.Snapshots,
		engine,
		deps.Notifier,
		pipeline.SettlerConfig{
			OwnAddress: a.cfg.Wallet.ProxyAddress,
			DryRun:     opts.dryRun,
			RetryLimit: a.cfg.Strategy.RetryLimit,
		},
		a.logger,
	)

	var buf *buffer.Buffer
	if agg := a.cfg.Copy.Aggregation; agg.Enabled {
		buf = buffer.New(
			time.Duration(agg.WindowSeconds)*time.Second,
			agg.MinTotalUsd,
		)
	}

	tooOld := time.Duration(a.cfg.Copy.TooOldHours) * time.Hour

	executor := pipeline.NewExecutor(
		deps.ActivityStore,
		settler,
		buf,
		pipeline.ExecutorConfig{
			Traders:      a.cfg.Copy.TraderAddresses,
			PollInterval: time.Duration(a.cfg.Copy.PollIntervalMs) * time.Millisecond,
			TooOld:       tooOld,
		},
		a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return executor.Run(gctx)
	})

	if opts.ingest {
		ingestor := pipeline.NewIngestor(
			dataClient,
			dataClient,
			deps.ActivityStore,
			deps.PositionStore,
			pipeline.IngestorConfig{
				Traders:       a.cfg.Copy.TraderAddresses,
				FetchInterval: time.Duration(a.cfg.Copy.FetchIntervalMs) * time.Millisecond,
				TooOld:        tooOld,
			},
			a.logger,
		)

		// First contact with a trader finalizes their visible history so
		// only trades from now on get copied.
		if err := ingestor.Bootstrap(ctx); err != nil {
			return fmt.Errorf("app: bootstrap: %w", err)
		}

		g.Go(func() error {
			return ingestor.Run(gctx)
		})

		if a.cfg.Copy.LiveFeed && a.cfg.Polymarket.WsHost != "" {
			liveFeed := feed.NewActivityFeed(
				a.cfg.Polymarket.WsHost,
				a.cfg.Copy.TraderAddresses,
				ingestor,
				a.logger,
			)
			g.Go(func() error {
				defer liveFeed.Close()
				return liveFeed.Run(gctx)
			})
		}
	}

	if deps.ActivityArchiver != nil {
		archiver := pipeline.NewArchiver(
			deps.ActivityArchiver,
			deps.ActivityStore,
			a.cfg.S3.ArchiveRetentionDays,
			a.logger,
		)
		g.Go(func() error {
			return archiver.RunCron(gctx, a.cfg.S3.ArchiveCron)
		})
	}

	err = g.Wait()

	// Best-effort sweep of any resting orders before the process exits.
	// FOK copies never rest, but a crash between sign and post can leave
	// strays behind.
	if clob != nil {
		cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if cErr := clob.CancelAll(cancelCtx); cErr != nil {
			a.logger.Warn("cancel open orders on shutdown failed",
				slog.String("error", cErr.Error()),
			)
		}
		cancel()
	}

	return err
}

// probeConnectivity exercises the data API and the chain RPC once. Failures
// are warnings, not fatal: both paths are retried naturally by the loops.
func (a *App) probeConnectivity(ctx context.Context, dataClient *polymarket.DataClient, balances *chain.BalanceReader) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := dataClient.Positions(probeCtx, a.cfg.Wallet.ProxyAddress); err != nil {
		a.logger.Warn("data api probe failed", slog.String("error", err.Error()))
	}
	if _, err := balances.QuoteBalance(probeCtx, a.cfg.Wallet.ProxyAddress); err != nil {
		a.logger.Warn("chain rpc probe failed", slog.String("error", err.Error()))
	}
}

// buildBackend loads the signing key, derives L2 API credentials, and
// assembles the live order backend.
func (a *App) buildBackend(ctx context.Context) (*polymarket.ClobClient, domain.OrderBackend, error) {
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load key: %w", err)
	}

	signer, err := crypto.NewSigner(key, a.cfg.Polymarket.ChainID)
	if err != nil {
		return nil, nil, fmt.Errorf("signer: %w", err)
	}

	clob := polymarket.NewClobClient(a.cfg.Polymarket.ClobHost, signer)
	if err := clob.DeriveAPIKey(ctx); err != nil {
		return nil, nil, fmt.Errorf("derive api key: %w", err)
	}
	a.logger.InfoContext(ctx, "clob api credentials derived",
		slog.String("address", signer.Address().Hex()),
	)

	backend := polymarket.NewBackend(clob, signer, polymarket.BackendConfig{
		ProxyAddress:  a.cfg.Wallet.ProxyAddress,
		SignatureType: a.cfg.Polymarket.SignatureType,
		MaxSlippage:   a.cfg.Strategy.MaxPriceSlippage,
	})
	return clob, backend, nil
}
