package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/cryptoarb/arbot/internal/alerts"
	"github.com/cryptoarb/arbot/internal/bus"
	"github.com/cryptoarb/arbot/internal/config"
	"github.com/cryptoarb/arbot/internal/control"
	"github.com/cryptoarb/arbot/internal/db"
	"github.com/cryptoarb/arbot/internal/detector"
	"github.com/cryptoarb/arbot/internal/exchange"
	"github.com/cryptoarb/arbot/internal/execution"
	"github.com/cryptoarb/arbot/internal/ledger"
	"github.com/cryptoarb/arbot/internal/marketstate"
	"github.com/cryptoarb/arbot/internal/metrics"
	"github.com/cryptoarb/arbot/internal/risk"
	"github.com/cryptoarb/arbot/internal/types"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Info().Msg("Starting ArBot arbitrage engine")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}
	store := config.NewStore(cfg)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	database, err := db.New(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("database unavailable, running without durable persistence")
	} else {
		defer database.Close()
	}

	book := ledger.New(database)
	market := marketstate.New(marketstate.DefaultConfig())
	market.SetColdCache(buildColdCache(ctx, &store.Get().Redis))

	cbManager := risk.NewCircuitBreakerManager()

	connectors, err := buildConnectors(store.Get(), market, cbManager)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build exchange connectors")
	}
	connectAll(ctx, connectors, store.Get())

	observer := marketstate.NewObserver(market, store.Get().Arbot.System.Exchanges)
	exposure := ledger.NewExposure(book, medianUSDPrice(observer))

	riskMgr := risk.NewManager(riskLimitsFrom(store.Get().Arbot.RiskLimits), exposure, observer, exposure.CurrentEquity())

	alertMgr := buildAlerts(cbManager)

	eventBus, err := bus.Connect(bus.Config{URL: store.Get().Arbot.Bus.URL, Prefix: store.Get().Arbot.Bus.Prefix})
	if err != nil {
		log.Warn().Err(err).Msg("event bus unavailable, signals will not be published externally")
	} else {
		defer eventBus.Close()
	}

	halt := &execution.HaltSwitch{}
	execCfg := store.Get().Arbot.Execution
	orderTimeout := time.Duration(execCfg.OrderTimeoutSeconds) * time.Second
	maxLatency := time.Duration(execCfg.MaxLatencyMS) * time.Millisecond

	onPnL := func(pnl decimal.Decimal) {
		riskMgr.RecordPnL(pnl)
	}

	mode := execution.Mode(store.Get().Arbot.System.ExecutionMode)
	var engine *execution.Engine
	switch mode {
	case execution.ModeLive:
		engine = execution.NewLive(connectors, book, exposure, database, orderTimeout, maxLatency, onPnL, halt)
	default:
		engine = execution.NewPaper(connectors, book, exposure, database, orderTimeout, maxLatency, onPnL, halt)
	}

	spatial, triangular, cooldowns := buildDetectors(store.Get(), market)

	controlSrv := control.New(store.Get().Arbot.Control.Port, engine, riskMgr, database, func() error {
		return store.Reload("")
	})
	if err := controlSrv.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start control server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go runLoop(ctx, spatial, triangular, riskMgr, engine, eventBus, alertMgr, cooldowns, store, done)

	persistenceDone := make(chan struct{})
	go runPersistenceLoop(ctx, database, book, observer, string(mode), persistenceDone)

	metricsUpdater := metrics.NewUpdater(database, database.Pool(), string(mode), 30*time.Second)
	go metricsUpdater.Start(ctx)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	stop()
	<-done
	<-persistenceDone
	metricsUpdater.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := controlSrv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down control server")
	}

	log.Info().Msg("ArBot shutdown complete")
}

// runLoop scans both detectors on a fixed tick, routes every signal through
// risk, and executes whatever the risk pipeline approves. It exits once ctx
// is cancelled, closing done on the way out.
func runLoop(ctx context.Context, spatial *detector.SpatialDetector, triangular *detector.TriangularDetector, riskMgr *risk.Manager, engine *execution.Engine, eventBus *bus.Bus, alertMgr *alerts.Manager, cooldowns *detector.CooldownTracker, store *config.Store, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mode := store.Get().Arbot.System.ExecutionMode
			signals := append(spatial.Scan(), triangular.Scan()...)
			for _, signal := range signals {
				metrics.SignalsDetected.WithLabelValues(string(signal.Strategy)).Inc()
				handleSignal(ctx, signal, mode, riskMgr, engine, eventBus, alertMgr, cooldowns)
			}

			if riskMgr.BreakerState().Tripped() {
				metrics.CircuitBreakerState.Set(1)
			} else {
				metrics.CircuitBreakerState.Set(0)
			}
		}
	}
}

func handleSignal(ctx context.Context, signal *types.Signal, mode string, riskMgr *risk.Manager, engine *execution.Engine, eventBus *bus.Bus, alertMgr *alerts.Manager, cooldowns *detector.CooldownTracker) {
	if eventBus != nil {
		eventBus.PublishSignalDetected(signal)
	}

	decision := riskMgr.Evaluate(signal, mode)
	if !decision.Approved {
		log.Debug().Str("reason", decision.Reason).Msg("signal rejected by risk pipeline")
		metrics.SignalsRejected.WithLabelValues(decision.Reason).Inc()
		if eventBus != nil {
			eventBus.PublishRiskRejected(signal, decision.Reason)
		}
		return
	}

	if signal.Strategy == types.StrategySpatial && len(signal.Legs) == 2 {
		cooldowns.RecordFire(signal.Legs[0].Exchange, signal.Legs[1].Exchange, signal.Legs[0].Symbol)
	}

	outcome, err := engine.Execute(ctx, signal, decision)
	if err != nil {
		log.Error().Err(err).Str("signal_id", signal.ID.String()).Msg("execution failed")
		if alertMgr != nil {
			_ = alertMgr.Send(ctx, alerts.Alert{
				Title:    "execution failed",
				Message:  err.Error(),
				Severity: alerts.SeverityCritical,
			})
		}
		return
	}

	if eventBus != nil {
		eventBus.PublishOutcome(outcome)
	}
}

func buildConnectors(cfg *config.Config, market *marketstate.State, cbManager *risk.CircuitBreakerManager) (connectorRegistry, error) {
	reg := connectorRegistry{conns: make(map[string]exchange.Connector)}

	for _, name := range cfg.Arbot.System.Exchanges {
		exCfg, ok := cfg.Exchanges[name]
		if !ok {
			return connectorRegistry{}, fmt.Errorf("exchange %q listed in arbot.system.exchanges has no exchanges.%s config block", name, name)
		}

		switch name {
		case "binance":
			rest, err := exchange.NewBinanceExchange(exchange.BinanceConfig{
				APIKey:    exCfg.APIKey,
				SecretKey: exCfg.SecretKey,
				Testnet:   exCfg.Testnet,
			})
			if err != nil {
				return connectorRegistry{}, fmt.Errorf("binance: %w", err)
			}
			rest.SetCircuitBreaker(cbManager.Exchange())
			reg.conns[name] = exchange.NewBinanceConnector(rest, market)
		default:
			fees := exchange.FeeSchedule{
				Maker: decimal.NewFromFloat(exCfg.Fees.Maker),
				Taker: decimal.NewFromFloat(exCfg.Fees.Taker),
			}
			reg.conns[name] = exchange.NewSimConnector(name, fees, market)
		}
	}

	if len(reg.conns) == 0 {
		return reg, fmt.Errorf("no exchanges configured under arbot.system.exchanges")
	}
	return reg, nil
}

// connectAll connects and subscribes every configured connector, logging
// (rather than failing startup on) a single exchange's connect error so one
// bad credential doesn't take down the whole engine.
func connectAll(ctx context.Context, reg connectorRegistry, cfg *config.Config) {
	for name, conn := range reg.conns {
		depth := 20
		if exCfg, ok := cfg.Exchanges[name]; ok && exCfg.WebSocket.Depth > 0 {
			depth = exCfg.WebSocket.Depth
		}

		if err := conn.Connect(ctx); err != nil {
			log.Error().Err(err).Str("exchange", name).Msg("exchange connect failed")
			continue
		}
		if err := conn.Subscribe(ctx, cfg.Arbot.System.Symbols, depth); err != nil {
			log.Error().Err(err).Str("exchange", name).Msg("exchange subscribe failed")
			continue
		}
		log.Info().Str("exchange", name).Msg("exchange connected and subscribed")
	}
}

// connectorRegistry is the concrete execution.Connectors implementation:
// a static map built once at startup from configuration, since the set of
// connected exchanges doesn't change at runtime.
type connectorRegistry struct {
	conns map[string]exchange.Connector
}

func (r connectorRegistry) Get(name string) (exchange.Connector, bool) {
	c, ok := r.conns[name]
	return c, ok
}

func buildDetectors(cfg *config.Config, market *marketstate.State) (*detector.SpatialDetector, *detector.TriangularDetector, *detector.CooldownTracker) {
	sys := cfg.Arbot.System
	det := cfg.Arbot.Detector

	sizer := detector.Sizer{
		MaxPositionPerCoinUSD: decimal.NewFromFloat(cfg.Arbot.RiskLimits.MaxPositionPerCoinUSD),
		MinDepthUSD:           decimal.NewFromFloat(det.Spatial.MinDepthUSD),
	}

	feeLookup := func(exchangeName string) decimal.Decimal {
		if exCfg, ok := cfg.Exchanges[exchangeName]; ok {
			return decimal.NewFromFloat(exCfg.Fees.Taker)
		}
		return decimal.Zero
	}

	cooldowns := detector.NewCooldownTracker(time.Duration(cfg.Arbot.RiskLimits.CooldownMinutes) * time.Minute)

	spatial := detector.NewSpatialDetector(
		detector.SpatialConfig{
			Enabled:      det.Spatial.Enabled,
			MinSpreadPct: decimal.NewFromFloat(det.Spatial.MinSpreadPct),
			MinDepthUSD:  decimal.NewFromFloat(det.Spatial.MinDepthUSD),
			MaxLatencyMS: det.Spatial.MaxLatencyMS,
		},
		market,
		sys.Exchanges,
		sys.Symbols,
		feeLookup,
		cooldowns.Blocked,
		sizer,
	)

	var paths []detector.Path
	for _, exchangeName := range sys.Exchanges {
		paths = append(paths, detector.BuildPaths(exchangeName, sys.Symbols)...)
	}
	triangular := detector.NewTriangularDetector(
		detector.TriangularConfig{
			Enabled:      det.Triangular.Enabled,
			MinProfitPct: decimal.NewFromFloat(det.Triangular.MinProfitPct),
			Paths:        paths,
		},
		market,
		feeLookup,
		sizer,
	)

	return spatial, triangular, cooldowns
}

func riskLimitsFrom(c config.RiskLimitsConfig) risk.Limits {
	return risk.Limits{
		MaxPositionPerCoinUSD:      decimal.NewFromFloat(c.MaxPositionPerCoinUSD),
		MaxPositionPerExchangeUSD:  decimal.NewFromFloat(c.MaxPositionPerExchangeUSD),
		MaxTotalExposureUSD:        decimal.NewFromFloat(c.MaxTotalExposureUSD),
		WarningThresholdPct:        decimal.NewFromFloat(c.WarningThresholdPct),
		MaxDrawdownPct:             decimal.NewFromFloat(c.MaxDrawdownPct),
		MaxDailyLossUSD:            decimal.NewFromFloat(c.MaxDailyLossUSD),
		MaxDailyLossPct:            decimal.NewFromFloat(c.MaxDailyLossPct),
		PriceDeviationThresholdPct: decimal.NewFromFloat(c.PriceDeviationThresholdPct),
		MaxSpreadPct:               decimal.NewFromFloat(c.MaxSpreadPct),
		SpreadStdThreshold:         decimal.NewFromFloat(c.SpreadStdThreshold),
		FlashCrashPct:              decimal.NewFromFloat(c.FlashCrashPct),
		ConsecutiveLossLimit:       c.ConsecutiveLossLimit,
		CooldownMinutes:            c.CooldownMinutes,
	}
}

func medianUSDPrice(observer *marketstate.Observer) func(string) decimal.Decimal {
	return func(asset string) decimal.Decimal {
		if asset == "USDT" || asset == "USD" || asset == "USDC" {
			return decimal.NewFromInt(1)
		}
		if price, ok := observer.MedianPrice(asset + "/USDT"); ok {
			return price
		}
		return decimal.Zero
	}
}

// buildAlerts wires Telegram delivery behind the shared alert-delivery
// circuit breaker and a one-per-minute-per-category throttle when
// credentials are present in the environment, otherwise falls back to
// console output.
func buildAlerts(cbManager *risk.CircuitBreakerManager) *alerts.Manager {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	chatIDs := os.Getenv("TELEGRAM_CHAT_IDS")
	if token == "" || chatIDs == "" {
		return alerts.NewManager(alerts.NewConsoleAlerter())
	}

	var ids []int64
	for _, raw := range strings.Split(chatIDs, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			log.Warn().Str("value", raw).Msg("invalid TELEGRAM_CHAT_IDS entry, skipping")
			continue
		}
		ids = append(ids, id)
	}

	telegram, err := alerts.NewTelegramAlerter(token, ids, cbManager.AlertDelivery())
	if err != nil {
		log.Warn().Err(err).Msg("telegram alerter unavailable, falling back to console")
		return alerts.NewManager(alerts.NewConsoleAlerter())
	}
	throttled := alerts.NewThrottle(telegram, rate.Every(time.Minute))
	return alerts.NewManager(throttled, alerts.NewConsoleAlerter())
}
