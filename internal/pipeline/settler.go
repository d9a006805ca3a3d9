package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polycopy/internal/domain"
	"github.com/alanyoungcy/polycopy/internal/sizing"
)

// Notifier is the slice of the notification system the settler uses.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SettlerConfig carries the operator identity and the switches that separate
// monitoring from live execution.
type SettlerConfig struct {
	OwnAddress string // proxy wallet whose balance and positions are ours
	DryRun     bool   // log and notify decisions without submitting orders
	RetryLimit int    // submissions retried on transient errors
}

// Settler turns a claimed activity (single or aggregated) into an order
// decision and, unless dry-running, an order. Whatever happens downstream,
// every claimed constituent ends terminal: settlement failures are logged
// and notified, never retried on a later poll.
type Settler struct {
	store    domain.ActivityStore
	posStore domain.PositionStore
	backend  domain.OrderBackend
	balances domain.BalanceSource
	posSrc   domain.PositionSource
	cache    domain.SnapshotCache
	engine   *sizing.Engine
	notifier Notifier
	cfg      SettlerConfig
	logger   *slog.Logger
}

// NewSettler creates a Settler. cache and notifier may be nil.
func NewSettler(
	store domain.ActivityStore,
	posStore domain.PositionStore,
	backend domain.OrderBackend,
	balances domain.BalanceSource,
	posSrc domain.PositionSource,
	cache domain.SnapshotCache,
	engine *sizing.Engine,
	notifier Notifier,
	cfg SettlerConfig,
	logger *slog.Logger,
) *Settler {
	return &Settler{
		store:    store,
		posStore: posStore,
		backend:  backend,
		balances: balances,
		posSrc:   posSrc,
		cache:    cache,
		engine:   engine,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Settle executes one activity whose constituents (ids) are already claimed.
// The ids are marked processed no matter how execution goes; an error return
// only reports what went wrong.
func (s *Settler) Settle(ctx context.Context, act domain.Activity, ids []int64) error {
	defer s.finalize(ctx, ids)

	in, err := s.gatherInputs(ctx, act)
	if err != nil {
		return fmt.Errorf("pipeline: settle %s: %w", act.Market(), err)
	}

	switch act.Side {
	case domain.SideSell:
		return s.settleSell(ctx, act, in)
	default:
		return s.settleBuy(ctx, act, in)
	}
}

// settleInputs is everything the sizing decision needs, fetched concurrently.
type settleInputs struct {
	ownBalance      float64
	ownPositions    []domain.Position
	traderPositions []domain.Position
}

// gatherInputs fetches the operator balance, operator positions, and trader
// positions in parallel, reading through the snapshot cache. A trader
// positions fetch failure falls back to the ingestor's stored snapshot.
func (s *Settler) gatherInputs(ctx context.Context, act domain.Activity) (settleInputs, error) {
	var in settleInputs
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		bal, err := s.fetchBalance(gctx)
		if err != nil {
			return fmt.Errorf("own balance: %w", err)
		}
		in.ownBalance = bal
		return nil
	})

	g.Go(func() error {
		pos, err := s.fetchPositions(gctx, s.cfg.OwnAddress)
		if err != nil {
			return fmt.Errorf("own positions: %w", err)
		}
		in.ownPositions = pos
		return nil
	})

	g.Go(func() error {
		pos, err := s.fetchPositions(gctx, act.TraderAddress)
		if err != nil {
			snap, snapErr := s.posStore.ListByWallet(gctx, act.TraderAddress)
			if snapErr != nil {
				return fmt.Errorf("trader positions: %w", errors.Join(err, snapErr))
			}
			s.logger.Warn("using stored position snapshot",
				slog.String("trader", act.TraderAddress),
				slog.String("error", err.Error()),
			)
			pos = snap
		}
		in.traderPositions = pos
		return nil
	})

	if err := g.Wait(); err != nil {
		return settleInputs{}, err
	}
	return in, nil
}

func (s *Settler) fetchBalance(ctx context.Context) (float64, error) {
	if s.cache != nil {
		if bal, err := s.cache.GetBalance(ctx, s.cfg.OwnAddress); err == nil {
			return bal, nil
		}
	}
	bal, err := s.balances.QuoteBalance(ctx, s.cfg.OwnAddress)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.SetBalance(ctx, s.cfg.OwnAddress, bal); err != nil {
			s.logger.Warn("balance cache write failed", slog.String("error", err.Error()))
		}
	}
	return bal, nil
}

func (s *Settler) fetchPositions(ctx context.Context, address string) ([]domain.Position, error) {
	if s.cache != nil {
		if pos, err := s.cache.GetPositions(ctx, address); err == nil {
			return pos, nil
		}
	}
	pos, err := s.posSrc.Positions(ctx, address)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetPositions(ctx, address, pos); err != nil {
			s.logger.Warn("position cache write failed", slog.String("error", err.Error()))
		}
	}
	return pos, nil
}

// settleBuy sizes a copy of a BUY in quote terms and submits it.
func (s *Settler) settleBuy(ctx context.Context, act domain.Activity, in settleInputs) error {
	var currentUsd float64
	if own := domain.FindByCondition(in.ownPositions, act.ConditionID); own != nil {
		currentUsd = own.CurrentValue
	}

	decision := s.engine.Size(sizing.Input{
		Side:                 string(act.Side),
		TradeUsdcSize:        act.UsdcSize,
		Price:                act.Price,
		OwnBalance:           in.ownBalance,
		TraderPortfolioValue: domain.PortfolioValue(in.traderPositions),
		CurrentPositionUsd:   currentUsd,
	})

	s.logger.Info("sizing decision",
		slog.String("trader", act.TraderAddress),
		slog.String("market", act.Market()),
		slog.String("side", string(act.Side)),
		slog.Float64("observed_usd", act.UsdcSize),
		slog.Float64("copy_usd", decision.AmountUsd),
		slog.String("reasoning", decision.Reasoning),
	)

	if decision.AmountUsd <= 0 {
		return nil
	}

	return s.submit(ctx, act, domain.OrderRequest{
		Side:   domain.SideBuy,
		Asset:  act.Asset,
		Amount: decision.AmountUsd,
		Price:  act.Price,
	})
}

// settleSell mirrors the fraction of the position the trader unloaded: if
// they sold 40% of their stake, we sell 40% of ours, scaled by the tier
// multiplier for the observed notional.
func (s *Settler) settleSell(ctx context.Context, act domain.Activity, in settleInputs) error {
	own := findByAsset(in.ownPositions, act.Asset)
	if own == nil || own.Size <= 0 {
		s.logger.Info("no position to sell",
			slog.String("market", act.Market()),
			slog.String("trader", act.TraderAddress),
		)
		return nil
	}

	// The trader's remaining position plus what they just sold is the
	// stake the sale came out of.
	fraction := 1.0
	if trader := findByAsset(in.traderPositions, act.Asset); trader != nil {
		base := trader.Size + act.Size
		if base > 0 {
			fraction = act.Size / base
		}
	}

	tokens := own.Size * fraction * s.engine.Multiplier(act.UsdcSize)
	tokens = math.Min(tokens, own.Size)
	if tokens <= 0 {
		return nil
	}

	s.logger.Info("sell decision",
		slog.String("trader", act.TraderAddress),
		slog.String("market", act.Market()),
		slog.Float64("fraction", fraction),
		slog.Float64("tokens", tokens),
	)

	return s.submit(ctx, act, domain.OrderRequest{
		Side:   domain.SideSell,
		Asset:  act.Asset,
		Amount: tokens,
		Price:  act.Price,
	})
}

// submit places the order through the backend with bounded retries. Slippage
// and empty-book rejections are final; insufficient funds aborts immediately
// and alerts the operator.
func (s *Settler) submit(ctx context.Context, act domain.Activity, req domain.OrderRequest) error {
	if s.cfg.DryRun {
		s.logger.Info("dry run, order not submitted",
			slog.String("market", act.Market()),
			slog.String("side", string(req.Side)),
			slog.Float64("amount", req.Amount),
		)
		return nil
	}

	var lastErr error
	attempts := s.cfg.RetryLimit + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		receipt, err := s.backend.SubmitOrder(ctx, req)
		if err == nil {
			s.logger.Info("order filled",
				slog.String("market", act.Market()),
				slog.String("side", string(req.Side)),
				slog.String("order_id", receipt.OrderID),
				slog.Float64("amount", receipt.FilledAmount),
				slog.Float64("avg_price", receipt.AvgFillPrice),
			)
			s.invalidateCache(ctx)
			s.notify(ctx, "trade_executed", "Trade executed", fmt.Sprintf(
				"%s %s on %s: %.2f @ %.4f (copying %s)",
				req.Side, fmtAmount(req), act.Market(),
				receipt.FilledAmount, receipt.AvgFillPrice, act.TraderAddress,
			))
			return nil
		}
		lastErr = err

		switch {
		case errors.Is(err, domain.ErrInsufficientFunds):
			s.notify(ctx, "error", "Insufficient funds", fmt.Sprintf(
				"order for %s aborted: %v", act.Market(), err,
			))
			return fmt.Errorf("pipeline: submit %s: %w", act.Market(), err)
		case errors.Is(err, domain.ErrSlippageExceeded),
			errors.Is(err, domain.ErrEmptyOrderBook):
			s.logger.Warn("order not executable",
				slog.String("market", act.Market()),
				slog.String("error", err.Error()),
			)
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}

		s.logger.Warn("order submission failed",
			slog.String("market", act.Market()),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	s.notify(ctx, "error", "Order failed", fmt.Sprintf(
		"order for %s failed after %d attempts: %v", act.Market(), attempts, lastErr,
	))
	return fmt.Errorf("pipeline: submit %s: %w", act.Market(), lastErr)
}

// finalize marks every constituent processed. Failures here are logged, not
// returned: the claim already guarantees no other worker will re-execute.
func (s *Settler) finalize(ctx context.Context, ids []int64) {
	for _, id := range ids {
		if err := s.store.MarkProcessed(ctx, id); err != nil {
			s.logger.Error("mark processed failed",
				slog.Int64("id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Settler) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, s.cfg.OwnAddress); err != nil {
		s.logger.Warn("cache invalidation failed", slog.String("error", err.Error()))
	}
}

func (s *Settler) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.Warn("notification failed", slog.String("error", err.Error()))
	}
}

func findByAsset(positions []domain.Position, asset string) *domain.Position {
	for i := range positions {
		if positions[i].Asset == asset {
			return &positions[i]
		}
	}
	return nil
}

func fmtAmount(req domain.OrderRequest) string {
	if req.Side == domain.SideBuy {
		return fmt.Sprintf("$%.2f", req.Amount)
	}
	return fmt.Sprintf("%.2f tokens", req.Amount)
}
