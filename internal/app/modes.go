package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TemamAb/ainex-sub000/internal/chain"
	"github.com/TemamAb/ainex-sub000/internal/config"
	"github.com/TemamAb/ainex-sub000/internal/crypto"
	"github.com/TemamAb/ainex-sub000/internal/domain"
	"github.com/TemamAb/ainex-sub000/internal/executor"
	"github.com/TemamAb/ainex-sub000/internal/feed"
	"github.com/TemamAb/ainex-sub000/internal/ledger"
	"github.com/TemamAb/ainex-sub000/internal/notify"
	"github.com/TemamAb/ainex-sub000/internal/optimizer"
	"github.com/TemamAb/ainex-sub000/internal/platform/aave"
	"github.com/TemamAb/ainex-sub000/internal/platform/balancer"
	"github.com/TemamAb/ainex-sub000/internal/platform/dydx"
	"github.com/TemamAb/ainex-sub000/internal/platform/etherscan"
	"github.com/TemamAb/ainex-sub000/internal/platform/sushiswap"
	"github.com/TemamAb/ainex-sub000/internal/platform/uniswap"
	"github.com/TemamAb/ainex-sub000/internal/risk"
	"github.com/TemamAb/ainex-sub000/internal/scanner"
	"github.com/TemamAb/ainex-sub000/internal/server"
	"github.com/TemamAb/ainex-sub000/internal/server/handler"
	"github.com/TemamAb/ainex-sub000/internal/server/ws"
	"github.com/TemamAb/ainex-sub000/internal/strategy"
)

// channelRisk is the event bus channel carrying breaker transitions.
const channelRisk = "risk"

// PipelineMode runs the full loop: feed, scanner, strategy workers, risk gate,
// executor, and settlement ledger, plus the optimizer, reconciler, archive
// export, and the HTTP API.
func (a *App) PipelineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting pipeline mode")

	g, ctx := errgroup.WithContext(ctx)

	// Signing identity.
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("pipeline mode: load key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex, a.cfg.Chain.ChainID)
	if err != nil {
		return fmt.Errorf("pipeline mode: signer: %w", err)
	}

	// Chain access.
	chainClient, err := chain.New(ctx, chain.ClientConfig{
		RPCURL:        a.cfg.Chain.RPCURL,
		ChainID:       a.cfg.Chain.ChainID,
		RetryAttempts: a.cfg.Chain.RetryAttempts,
		RetryDelay:    a.cfg.Chain.RetryDelay.Duration,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("pipeline mode: chain client: %w", err)
	}
	defer chainClient.Close()
	gasOracle := chain.NewGasOracle(chainClient, a.cfg.Chain.GasCacheTTL.Duration)

	pools := buildPools(a.cfg.Pools)

	// Risk gate with audit trail, live events, and operator alerts.
	gate := risk.New(a.riskConfig(), deps.RiskEvents, a.logger)
	gate.SetEventHook(a.riskEventHook(ctx, deps))

	// Settlement ledger, rebuilt from today's finalized records.
	led := ledger.New(deps.Settlements, gate, deps.Bus, deps.Notifier, a.logger)
	if err := led.Hydrate(ctx); err != nil {
		return fmt.Errorf("pipeline mode: hydrate ledger: %w", err)
	}

	// Optimizer: config baseline unless a newer stored snapshot exists.
	opt := optimizer.New(a.optimizerConfig(), initialParams(a.cfg), led, deps.Params, deps.Bus, deps.Locks, a.logger)
	if err := opt.Seed(ctx); err != nil {
		a.logger.WarnContext(ctx, "param seed failed, using config baseline",
			slog.String("error", err.Error()))
	}
	if a.cfg.Optimizer.Enabled {
		g.Go(func() error {
			return opt.Run(ctx)
		})
	}

	// Flash-loan providers and swap venues.
	providers, err := a.buildProviders(chainClient)
	if err != nil {
		return fmt.Errorf("pipeline mode: %w", err)
	}
	funding := strategy.NewProviderSet(providers, deps.QuoteCache, a.logger)

	venues, err := a.buildVenues(chainClient, pools)
	if err != nil {
		return fmt.Errorf("pipeline mode: %w", err)
	}

	// Scanner with live-tuned thresholds.
	sc := scanner.New(a.scannerConfig(), pools, opt, a.logger)
	g.Go(func() error {
		return sc.Run(ctx)
	})

	// Executor.
	submitter, err := chain.NewSubmitter(chainClient, signer, a.cfg.Chain.AggregatorContract, a.logger)
	if err != nil {
		return fmt.Errorf("pipeline mode: submitter: %w", err)
	}
	exec := executor.NewExecutor(executor.Config{
		MaxInflight:    a.cfg.Executor.MaxInflight,
		QueueSize:      a.cfg.Executor.QueueSize,
		SubmitRetries:  a.cfg.Executor.SubmitRetries,
		RetryBackoff:   a.cfg.Executor.RetryBackoff.Duration,
		MaxRetryDelay:  a.cfg.Executor.MaxRetryDelay.Duration,
		DedupTTL:       a.cfg.Executor.DedupTTL.Duration,
		ConfirmTimeout: a.cfg.Chain.ConfirmTimeout.Duration,
		ConfirmPoll:    a.cfg.Chain.ConfirmPoll.Duration,
	}, executor.Deps{
		Submitter: submitter,
		Nonces:    executor.NewNonceManager(chainClient),
		Gas:       gasOracle,
		Observer:  gate,
		Funding:   funding,
		Ledger:    led,
	}, a.logger)
	g.Go(func() error {
		return exec.Run(ctx)
	})

	// Strategy workers consuming the scanner queue.
	registry, err := a.buildRegistry()
	if err != nil {
		return fmt.Errorf("pipeline mode: %w", err)
	}
	orch := strategy.NewOrchestrator(strategy.Config{
		Workers:    a.cfg.Strategy.Workers,
		PlanTTL:    a.cfg.Strategy.PlanTTL.Duration,
		Aggregator: a.cfg.Chain.AggregatorContract,
	}, registry, strategy.Deps{
		Source:     sc.Queue(),
		Snapshots:  sc,
		Params:     opt,
		Gate:       gate,
		Funding:    funding,
		Venues:     venues,
		Pools:      pools,
		Gas:        gasOracle,
		Dispatcher: exec,
	}, a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	// Market data feed drives the scanner.
	feedSvc := a.buildFeed(deps, pools)
	feedSvc.OnTick(sc.HandleTick)
	g.Go(func() error {
		return feedSvc.Run(ctx)
	})

	// Reconciliation of unknown outcomes against the block explorer.
	if a.cfg.Verifier.Enabled && a.cfg.Verifier.EtherscanURL != "" {
		verifier := etherscan.New(a.cfg.Verifier.EtherscanURL, a.cfg.Verifier.APIKey, deps.RateLimiter, a.logger)
		recon := ledger.NewReconciler(ledger.ReconcilerConfig{
			Tick:        a.cfg.Verifier.ReconcileTick.Duration,
			Age:         a.cfg.Verifier.ReconcileAge.Duration,
			GiveUpAfter: a.cfg.Verifier.GiveUpAfter.Duration,
		}, led, deps.Settlements, verifier, a.logger)
		g.Go(func() error {
			return recon.Run(ctx)
		})
	}

	// Scheduled export of aged rows to cold storage.
	if deps.Archiver != nil {
		runner := ledger.NewArchiveRunner(deps.Archiver, a.cfg.S3.ArchiveRetentionDays, a.logger)
		g.Go(func() error {
			return runner.RunCron(ctx, a.cfg.S3.ArchiveCron)
		})
	}

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, apiDeps{
			scanner:  sc,
			planner:  orch,
			executor: exec,
			gate:     gate,
			ledger:   led,
			params:   opt,
			opps:     sc,
		})
	}

	return g.Wait()
}

// ScanMode runs detection only: the feed drives the scanner and every
// candidate is logged instead of planned. Nothing signs or submits.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode, detection only")

	g, ctx := errgroup.WithContext(ctx)

	pools := buildPools(a.cfg.Pools)

	sc := scanner.New(a.scannerConfig(), pools, nil, a.logger)
	g.Go(func() error {
		return sc.Run(ctx)
	})

	// Drain the queue so detection keeps flowing; here the log line is the
	// product.
	g.Go(func() error {
		for {
			opp, err := sc.Queue().Pop(ctx)
			if err != nil {
				return err
			}
			a.logger.InfoContext(ctx, "opportunity detected",
				slog.String("id", opp.ID),
				slog.String("pair", opp.Pair.String()),
				slog.String("source", string(opp.SourceVenue)),
				slog.String("dest", string(opp.DestVenue)),
				slog.Float64("spread_bps", opp.SpreadBps),
				slog.Float64("expected_gross_profit", opp.ExpectedGrossProfit),
				slog.Float64("confidence", opp.Confidence),
			)
		}
	})

	feedSvc := a.buildFeed(deps, pools)
	feedSvc.OnTick(sc.HandleTick)
	g.Go(func() error {
		return feedSvc.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, apiDeps{scanner: sc, opps: sc})
	}

	return g.Wait()
}

// MonitorMode serves the read-only API over the shared stores plus the
// operator breaker endpoints. The gate instance here starts clean; executed
// positions live with the pipeline instance that owns them.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	gate := risk.New(a.riskConfig(), deps.RiskEvents, a.logger)
	gate.SetEventHook(a.riskEventHook(ctx, deps))

	led := ledger.New(deps.Settlements, gate, deps.Bus, deps.Notifier, a.logger)
	if err := led.Hydrate(ctx); err != nil {
		return fmt.Errorf("monitor mode: hydrate ledger: %w", err)
	}

	opt := optimizer.New(a.optimizerConfig(), initialParams(a.cfg), led, deps.Params, deps.Bus, deps.Locks, a.logger)
	if err := opt.Seed(ctx); err != nil {
		a.logger.WarnContext(ctx, "param seed failed, showing config baseline",
			slog.String("error", err.Error()))
	}

	// The server always runs here; a monitor without the API serves nothing.
	a.startServer(ctx, g, deps, apiDeps{gate: gate, ledger: led, params: opt})

	return g.Wait()
}

// apiDeps carries the per-mode stage handles the HTTP layer exposes. Nil
// fields drop the corresponding routes.
type apiDeps struct {
	scanner  handler.ScannerStats
	planner  handler.PlannerStats
	executor handler.ExecutorStats
	gate     handler.RiskGate
	ledger   handler.SettlementSource
	params   handler.ParamSource
	opps     handler.OpportunitySource
}

// pingerFunc adapts a plain probe function to the health handler's Pinger.
type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// startServer adds the HTTP server and WebSocket hub goroutines to the given
// errgroup. The server is shut down gracefully when the context is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, api apiDeps) {
	health := handler.NewHealthHandler(a.logger)
	if deps.Redis != nil {
		health.AddDependency("redis", pingerFunc(deps.Redis.Ping))
	}
	if deps.PG != nil {
		health.AddDependency("postgres", pingerFunc(deps.PG.Pool().Ping))
	}
	if deps.S3 != nil {
		health.AddDependency("s3", pingerFunc(deps.S3.Health))
	}

	handlers := server.Handlers{
		Health: health,
		Status: handler.NewStatusHandler(a.cfg.Mode, time.Now().UTC(), api.scanner, api.planner, api.executor),
	}
	if api.gate != nil {
		handlers.Risk = handler.NewRiskHandler(api.gate, deps.RiskEvents, a.logger)
	}
	if api.ledger != nil {
		handlers.Settlements = handler.NewSettlementHandler(api.ledger, a.logger)
	}
	if api.params != nil {
		handlers.Params = handler.NewParamHandler(api.params, a.logger)
	}
	if api.opps != nil {
		handlers.Opportunities = handler.NewOpportunityHandler(api.opps)
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		OperatorKey: a.cfg.Server.OperatorKey,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "api server listening",
			slog.Int("port", a.cfg.Server.Port))
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// riskEvent is the JSON shape published to the event bus for breaker
// transitions.
type riskEvent struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Reason    string         `json:"reason"`
	Actor     string         `json:"actor"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// riskEventHook bridges gate transitions onto the event bus and the operator
// alert channels.
func (a *App) riskEventHook(ctx context.Context, deps *Dependencies) func(domain.RiskEvent) {
	return func(ev domain.RiskEvent) {
		payload, err := json.Marshal(riskEvent{
			ID:        ev.ID,
			Kind:      string(ev.Kind),
			Reason:    ev.Reason,
			Actor:     ev.Actor,
			Detail:    ev.Detail,
			CreatedAt: ev.CreatedAt,
		})
		if err == nil {
			if pubErr := deps.Bus.Publish(ctx, channelRisk, payload); pubErr != nil {
				a.logger.Warn("risk event publish failed", slog.String("error", pubErr.Error()))
			}
		}

		var event, title string
		switch ev.Kind {
		case domain.RiskEventTrip:
			event, title = notify.EventBreakerTripped, "Circuit breaker tripped"
		case domain.RiskEventHalt:
			event, title = notify.EventBreakerTripped, "Emergency halt"
		case domain.RiskEventReset:
			event, title = notify.EventBreakerReset, "Circuit breaker reset"
		default:
			return
		}
		msg := ev.Reason
		if ev.Actor != "" && ev.Actor != "auto" {
			msg = fmt.Sprintf("%s (by %s)", ev.Reason, ev.Actor)
		}
		if err := deps.Notifier.Notify(ctx, event, title, msg); err != nil {
			a.logger.Warn("risk alert failed", slog.String("error", err.Error()))
		}
	}
}

// riskConfig maps the config block onto the gate's tunables.
func (a *App) riskConfig() risk.Config {
	return risk.Config{
		DailyLossCap:        a.cfg.Risk.DailyLossCap,
		MaxPositionSize:     a.cfg.Risk.MaxPositionSize,
		MaxOpenPositions:    a.cfg.Risk.MaxOpenPositions,
		PoolConcentration:   a.cfg.Risk.PoolConcentration,
		MinNetProfit:        a.cfg.Risk.MinNetProfit,
		ConsecutiveFailures: a.cfg.Risk.ConsecutiveFailures,
		GasCeilingGwei:      a.cfg.Risk.GasCeilingGwei,
		SlippageCeilingBps:  a.cfg.Risk.SlippageCeilingBps,
	}
}

func (a *App) scannerConfig() scanner.Config {
	return scanner.Config{
		SpreadThresholdBps: a.cfg.Scanner.SpreadThresholdBps,
		FeeGasFloorBps:     a.cfg.Scanner.FeeGasFloorBps,
		QueueSize:          a.cfg.Scanner.QueueSize,
		OpportunityTTL:     a.cfg.Scanner.OpportunityTTL.Duration,
		VolatilityWindow:   a.cfg.Scanner.VolatilityWindow.Duration,
		MinLiquidity:       a.cfg.Scanner.MinLiquidity,
		ConfidenceFloor:    a.cfg.Scanner.ConfidenceFloor,
	}
}

func (a *App) optimizerConfig() optimizer.Config {
	return optimizer.Config{
		Interval:       a.cfg.Optimizer.Interval.Duration,
		HistoryWindow:  a.cfg.Optimizer.HistoryWindow,
		MinSpreadBps:   a.cfg.Optimizer.MinSpreadBps,
		MaxSpreadBps:   a.cfg.Optimizer.MaxSpreadBps,
		MinSlippageBps: a.cfg.Optimizer.MinSlippageBps,
		MaxSlippageBps: a.cfg.Optimizer.MaxSlippageBps,
		MaxPositionCap: a.cfg.Risk.MaxPositionSize,
	}
}

// buildPools converts the configured pool list to domain pools.
func buildPools(cfgs []config.PoolConfig) []domain.Pool {
	pools := make([]domain.Pool, 0, len(cfgs))
	for _, p := range cfgs {
		pools = append(pools, domain.Pool{
			ID:      p.ID,
			Venue:   domain.Venue(p.Venue),
			Pair:    domain.Pair{Base: p.Base, Quote: p.Quote},
			Address: p.Address,
			FeeBps:  p.FeeBps,
		})
	}
	return pools
}

// buildFeed wires the venue websocket stream plus per-venue subgraph snapshot
// sources into one feed service.
func (a *App) buildFeed(deps *Dependencies, pools []domain.Pool) *feed.Service {
	wsClient := feed.NewWSClient(
		a.cfg.Feed.WSHost,
		pools,
		a.cfg.Feed.ReconnectBackoff.Duration,
		a.cfg.Feed.MaxBackoff.Duration,
	)
	svc := feed.NewService(wsClient, deps.PriceCache, deps.Bus, pools, a.cfg.Feed.StaleAfter.Duration, a.logger)
	if v := a.cfg.Venues.Uniswap; v.Enabled && v.GraphURL != "" {
		svc.AddSource(domain.VenueUniswapV3, uniswap.NewGraphClient(v.GraphURL).PoolSnapshots)
	}
	if v := a.cfg.Venues.Sushiswap; v.Enabled && v.GraphURL != "" {
		svc.AddSource(domain.VenueSushiswap, sushiswap.NewGraphClient(v.GraphURL).PairSnapshots)
	}
	return svc
}

// buildProviders constructs the enabled flash-loan providers.
func (a *App) buildProviders(client *chain.Client) ([]domain.LoanProvider, error) {
	var providers []domain.LoanProvider
	if p := a.cfg.Providers.Aave; p.Enabled {
		prov, err := aave.New(aave.Config{
			Pool:       p.Contract,
			Aggregator: a.cfg.Chain.AggregatorContract,
			FeeBps:     p.FeeBps,
			QuoteTTL:   p.QuoteTTL.Duration,
			GasBorrow:  p.GasBorrow,
			GasRepay:   p.GasRepay,
		}, client, a.logger)
		if err != nil {
			return nil, fmt.Errorf("build providers: aave: %w", err)
		}
		providers = append(providers, prov)
	}
	if p := a.cfg.Providers.Balancer; p.Enabled {
		prov, err := balancer.New(balancer.Config{
			Vault:      p.Contract,
			Aggregator: a.cfg.Chain.AggregatorContract,
			QuoteTTL:   p.QuoteTTL.Duration,
			GasBorrow:  p.GasBorrow,
			GasRepay:   p.GasRepay,
		}, client, a.logger)
		if err != nil {
			return nil, fmt.Errorf("build providers: balancer: %w", err)
		}
		providers = append(providers, prov)
	}
	if p := a.cfg.Providers.Dydx; p.Enabled {
		prov, err := dydx.New(dydx.Config{
			SoloMargin: p.Contract,
			Aggregator: a.cfg.Chain.AggregatorContract,
			QuoteTTL:   p.QuoteTTL.Duration,
			GasBorrow:  p.GasBorrow,
			GasRepay:   p.GasRepay,
		}, client, a.logger)
		if err != nil {
			return nil, fmt.Errorf("build providers: dydx: %w", err)
		}
		providers = append(providers, prov)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("build providers: no flash-loan provider enabled")
	}
	return providers, nil
}

// buildVenues constructs the enabled swap venue clients.
func (a *App) buildVenues(client *chain.Client, pools []domain.Pool) ([]domain.SwapVenue, error) {
	var venues []domain.SwapVenue
	if v := a.cfg.Venues.Uniswap; v.Enabled {
		venue, err := uniswap.New(uniswap.Config{
			Router:     v.Router,
			Quoter:     v.Quoter,
			Aggregator: a.cfg.Chain.AggregatorContract,
		}, pools, client, a.logger)
		if err != nil {
			return nil, fmt.Errorf("build venues: uniswap: %w", err)
		}
		venues = append(venues, venue)
	}
	if v := a.cfg.Venues.Sushiswap; v.Enabled {
		venue, err := sushiswap.New(sushiswap.Config{
			Router:     v.Router,
			Aggregator: a.cfg.Chain.AggregatorContract,
		}, client, a.logger)
		if err != nil {
			return nil, fmt.Errorf("build venues: sushiswap: %w", err)
		}
		venues = append(venues, venue)
	}
	if len(venues) == 0 {
		return nil, fmt.Errorf("build venues: no swap venue enabled")
	}
	return venues, nil
}

// buildRegistry registers every strategy that is both enabled and named in
// strategy.active.
func (a *App) buildRegistry() (*strategy.Registry, error) {
	active := make(map[string]bool, len(a.cfg.Strategy.Active))
	for _, name := range a.cfg.Strategy.Active {
		active[strings.ToLower(strings.TrimSpace(name))] = true
	}

	reg := strategy.NewRegistry()
	if c := a.cfg.Strategy.CrossPool; c.Enabled && active["cross_pool"] {
		reg.Register(strategy.NewCrossPool(strategy.CrossPoolConfig{
			MinSpreadBps:  c.MinSpreadBps,
			MaxTradeSize:  c.MaxTradeSize,
			LiquidityFrac: c.LiquidityFrac,
		}, a.logger))
	}
	if c := a.cfg.Strategy.Sweep; c.Enabled && active["liquidity_sweep"] {
		reg.Register(strategy.NewLiquiditySweep(strategy.SweepConfig{
			MinSpreadBps: c.MinSpreadBps,
			MaxHops:      c.MaxHops,
			SizePerHop:   c.SizePerHop,
		}, a.logger))
	}
	if c := a.cfg.Strategy.Bridged; c.Enabled && active["bridged_asset"] {
		reg.Register(strategy.NewBridgedAsset(strategy.BridgedConfig{
			MinSpreadBps:  c.MinSpreadBps,
			BridgeFeeBps:  c.BridgeFeeBps,
			WrappedAssets: c.WrappedAssets,
		}, a.logger))
	}
	if c := a.cfg.Strategy.Liquidation; c.Enabled && active["liquidation_capture"] {
		reg.Register(strategy.NewLiquidationCapture(strategy.LiquidationConfig{
			MinBonusBps:    c.MinBonusBps,
			MaxDebtSize:    c.MaxDebtSize,
			HealthCritical: c.HealthCritical,
		}, a.logger))
	}
	if len(reg.List()) == 0 {
		return nil, fmt.Errorf("build registry: no strategy both enabled and active")
	}
	return reg, nil
}

// initialParams derives the version-1 parameter snapshot from the config
// baseline, weighting active strategies equally.
func initialParams(cfg *config.Config) domain.ParamSnapshot {
	weights := make(map[string]float64, len(cfg.Strategy.Active))
	if n := len(cfg.Strategy.Active); n > 0 {
		for _, name := range cfg.Strategy.Active {
			weights[name] = 1.0 / float64(n)
		}
	}
	return domain.ParamSnapshot{
		Version:            1,
		StrategyWeights:    weights,
		SpreadThresholdBps: cfg.Scanner.SpreadThresholdBps,
		SlippageCeilingBps: cfg.Risk.SlippageCeilingBps,
		MaxPositionSize:    cfg.Risk.MaxPositionSize,
		MinNetProfit:       cfg.Risk.MinNetProfit,
		GeneratedAt:        time.Now().UTC(),
	}
}
