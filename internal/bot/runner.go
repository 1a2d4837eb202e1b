// internal/bot/runner.go
package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PietroScorza/copytrade-bot/internal/bundle"
	"github.com/PietroScorza/copytrade-bot/internal/config"
	"github.com/PietroScorza/copytrade-bot/internal/decoder"
	"github.com/PietroScorza/copytrade-bot/internal/dex"
	"github.com/PietroScorza/copytrade-bot/internal/dex/raydium"
	"github.com/PietroScorza/copytrade-bot/internal/engine"
	"github.com/PietroScorza/copytrade-bot/internal/events"
	"github.com/PietroScorza/copytrade-bot/internal/ingest"
	"github.com/PietroScorza/copytrade-bot/internal/journal"
	"github.com/PietroScorza/copytrade-bot/internal/position"
	"github.com/PietroScorza/copytrade-bot/internal/wallet"
)

const eventBusBuffer = 1024

// Runner wires the pipeline together and owns its lifecycle.
type Runner struct {
	logger     *zap.Logger
	cfg        *config.Config
	bus        *events.Bus
	journal    *journal.Journal
	feed       *ingest.Feed
	engine     *engine.Engine
	shutdownCh chan os.Signal
}

// NewRunner builds every component from configuration. Nothing touches the
// network until Run.
func NewRunner(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	monitored, err := solana.PublicKeyFromBase58(cfg.MonitoredWallet)
	if err != nil {
		return nil, fmt.Errorf("invalid monitored_wallet: %w", err)
	}

	w, err := wallet.New(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	logger.Info("wallet loaded", zap.Stringer("pubkey", w.PublicKey))

	pools, err := poolsFromConfig(cfg.Pools)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(logger, eventBusBuffer)

	jnl, err := journal.New(cfg.JournalFile, logger)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	jnl.Attach(bus)

	store := position.NewStore(logger)
	decider := engine.NewDecider(store, engine.DecisionConfig{
		MonitoredWallet:      monitored,
		BuyAmountLamports:    cfg.BuyAmountLamports,
		MaxBuyAmountLamports: cfg.MaxBuyAmountLamports,
		SlippageBps:          cfg.SlippageBps,
		Tiers:                tiersFromConfig(cfg.Tiers),
		EmergencyMirror:      cfg.EmergencyMirror,
	}, logger)

	registry := dex.DefaultRegistry(logger, raydium.NewStaticPoolResolver(pools))
	builder := bundle.NewBuilder(w, registry, bundle.NewRPCBlockhashProvider(cfg.RPCURL), bundle.BuilderConfig{
		Tips: bundle.TipConfig{
			Normal:    cfg.TipNormalLamports,
			Emergency: cfg.TipEmergencyLamports,
			Max:       cfg.TipMaxLamports,
		},
		SlippageBps:                   cfg.SlippageBps,
		ComputeUnitLimit:              cfg.ComputeUnitLimit,
		ComputeUnitPriceMicroLamports: cfg.ComputeUnitPrice,
	}, logger)

	submitter := bundle.NewSubmitter(bundle.SubmitterConfig{
		BlockEngineURL:    cfg.BlockEngineURL,
		SubmitTimeout:     time.Duration(cfg.SubmitTimeoutMs) * time.Millisecond,
		RequestsPerSecond: cfg.SubmitRPS,
	}, builder, logger)

	feed := ingest.NewFeed(ingest.Config{
		WSEndpoint:      cfg.WebSocketURL,
		MonitoredWallet: monitored,
	}, bus, logger)

	eng := engine.New(feed.Transactions(), decoder.New(logger), decider, builder, submitter, bus, cfg.Workers, logger)

	return &Runner{
		logger:     logger,
		cfg:        cfg,
		bus:        bus,
		journal:    jnl,
		feed:       feed,
		engine:     eng,
		shutdownCh: make(chan os.Signal, 1),
	}, nil
}

// Run starts the feed and the pipeline and blocks until a signal arrives or
// a component fails.
func (r *Runner) Run(ctx context.Context) error {
	signal.Notify(r.shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case sig := <-r.shutdownCh:
			r.logger.Info("signal received, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-runCtx.Done():
		}
	}()

	r.logger.Info("starting copy-trading pipeline",
		zap.String("monitored_wallet", r.cfg.MonitoredWallet),
		zap.Int("workers", r.cfg.Workers))

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error { return r.feed.Run(gCtx) })
	g.Go(func() error { return r.engine.Run(gCtx) })

	err := g.Wait()
	r.shutdown()
	return err
}

func (r *Runner) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.bus.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("event bus shutdown incomplete", zap.Error(err))
	}
	if err := r.journal.Close(); err != nil {
		r.logger.Warn("journal close failed", zap.Error(err))
	}
	r.logger.Info("pipeline stopped")
}

func tiersFromConfig(tiers []config.TierConfig) []engine.Tier {
	out := make([]engine.Tier, len(tiers))
	for i, t := range tiers {
		out[i] = engine.Tier{Multiplier: t.Multiplier, SellPercent: t.SellPercent}
	}
	return out
}

// poolsFromConfig parses the static Raydium pool table. Every key must be a
// valid base58 public key; a typo here is a startup error, not a trade-time
// surprise.
func poolsFromConfig(pools []config.PoolConfig) (map[solana.PublicKey]*raydium.Pool, error) {
	out := make(map[solana.PublicKey]*raydium.Pool, len(pools))
	for i, p := range pools {
		mint, err := solana.PublicKeyFromBase58(p.Mint)
		if err != nil {
			return nil, fmt.Errorf("pool %d: invalid mint: %w", i, err)
		}

		pool := &raydium.Pool{}
		fields := []struct {
			name string
			raw  string
			dst  *solana.PublicKey
		}{
			{"amm_id", p.AmmID, &pool.AmmID},
			{"amm_authority", p.AmmAuthority, &pool.AmmAuthority},
			{"amm_open_orders", p.AmmOpenOrders, &pool.AmmOpenOrders},
			{"amm_target_orders", p.AmmTargetOrders, &pool.AmmTargetOrders},
			{"pool_coin_vault", p.PoolCoinVault, &pool.PoolCoinVault},
			{"pool_pc_vault", p.PoolPcVault, &pool.PoolPcVault},
			{"serum_program", p.SerumProgram, &pool.SerumProgram},
			{"serum_market", p.SerumMarket, &pool.SerumMarket},
			{"serum_bids", p.SerumBids, &pool.SerumBids},
			{"serum_asks", p.SerumAsks, &pool.SerumAsks},
			{"serum_event_queue", p.SerumEventQueue, &pool.SerumEventQueue},
			{"serum_coin_vault", p.SerumCoinVault, &pool.SerumCoinVault},
			{"serum_pc_vault", p.SerumPcVault, &pool.SerumPcVault},
			{"serum_vault_signer", p.SerumVaultSigner, &pool.SerumVaultSigner},
		}
		for _, f := range fields {
			pk, err := solana.PublicKeyFromBase58(f.raw)
			if err != nil {
				return nil, fmt.Errorf("pool %d (%s): invalid %s: %w", i, p.Mint, f.name, err)
			}
			*f.dst = pk
		}
		out[mint] = pool
	}
	return out, nil
}
