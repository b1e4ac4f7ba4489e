package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lv-tradecore/internal/bridge"
	"lv-tradecore/internal/config"
	"lv-tradecore/internal/cutoff"
	"lv-tradecore/internal/db"
	"lv-tradecore/internal/groups"
	"lv-tradecore/internal/health"
	"lv-tradecore/internal/httpserver"
	"lv-tradecore/internal/ledger"
	"lv-tradecore/internal/logging"
	"lv-tradecore/internal/margin"
	"lv-tradecore/internal/marketdata"
	"lv-tradecore/internal/orders"
	"lv-tradecore/internal/portfolio"
	"lv-tradecore/internal/store"
	"lv-tradecore/internal/swap"
	"lv-tradecore/internal/telemetry"
	"lv-tradecore/internal/triggers"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logging.Component("main")

	startedAt := time.Now()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	var src groups.Source
	var pinger health.Pinger
	switch cfg.StoreDriver {
	case "memory":
		mem := store.NewMemory()
		static := groups.NewStaticSource()
		if cfg.SeedFile != "" {
			sd, err := loadSeed(cfg.SeedFile)
			if err != nil {
				log.WithError(err).Fatal("load seed")
			}
			sd.apply(static, mem)
			log.WithField("accounts", len(sd.Accounts)).WithField("groups", len(sd.Groups)).Info("seed loaded")
		}
		st, src = mem, static
	default:
		pool, err := db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			log.WithError(err).Fatal("connect database")
		}
		defer pool.Close()
		st, src = store.NewPG(pool), groups.NewPGSource(pool)
		pinger = pool
	}

	metrics, err := telemetry.New()
	if err != nil {
		log.WithError(err).Fatal("create metrics")
	}
	bus := marketdata.NewBus()
	debouncer := marketdata.NewDebouncer(cfg.Risk.Debounce)
	defer debouncer.Close()
	quoteSub := debouncer.Subscribe()
	pendingSub := debouncer.Subscribe()
	stopsSub := debouncer.Subscribe()
	quotes := marketdata.NewCache(cfg.Risk.QuoteMaxAge, debouncer)
	configCache := groups.NewCache(src, cfg.Risk.ConfigTTL)
	calc := margin.NewCalculator(cfg.AccountCurrency, quotes)

	var adapter bridge.Adapter = bridge.NewDisabledAdapter()
	if cfg.Bridge.Enabled() {
		adapter = bridge.NewHTTPAdapter(bridge.HTTPConfig{
			URL:           cfg.Bridge.URL,
			ServiceSecret: cfg.Bridge.ServiceSecret,
			Timeout:       cfg.Bridge.Timeout,
			MaxAttempts:   cfg.Bridge.MaxAttempts,
			Backoff:       cfg.Bridge.Backoff,
			RatePerSecond: cfg.Bridge.RatePerSecond,
			Burst:         cfg.Bridge.Burst,
		})
	}

	orderSvc := orders.NewService(orders.Deps{
		Store:   st,
		Config:  configCache,
		Prices:  quotes,
		Calc:    calc,
		Ledger:  ledger.NewService(),
		Bridge:  adapter,
		Bus:     bus,
		Metrics: metrics,
	})
	engine := portfolio.NewEngine(st, portfolio.NewPricer(configCache, quotes, calc), configCache, bus,
		cfg.Risk.ValuationInterval, cfg.Risk.ValuationTTL, cfg.Risk.MarginCallLevel)
	orderSvc.SetInvalidator(engine)
	worker := triggers.NewWorker(st, configCache, quotes, orderSvc, cfg.Risk.TriggerEpsilon)
	controller := cutoff.NewController(st, engine, configCache, orderSvc, metrics, cfg.Risk.CutoffLevel, cfg.Risk.CutoffInterval)
	swapJob := swap.NewJob(st, configCache, quotes, engine, cfg.Risk.SwapHourUTC)

	tokens := httpserver.NewTokenParser(cfg.JWTSecret, cfg.JWTIssuer)
	limiter := httpserver.NewRateLimiter(cfg.HTTPRate, cfg.HTTPBurst)
	router := httpserver.NewRouter(httpserver.RouterDeps{
		OrderHandler:   orders.NewHandler(orderSvc),
		AccountHandler: httpserver.NewAccountHandler(st, engine),
		PriceHandler:   httpserver.NewPriceHandler(quotes),
		HealthHandler:  health.NewHandler(pinger, quotes, startedAt),
		Tokens:         tokens,
		Limiter:        limiter,
		InternalToken:  cfg.InternalToken,
		WSHandler:      httpserver.NewWSHandler(bus, tokens, engine, cfg.WebSocketOrigin),
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return marketdata.RunPublisher(gctx, quotes, quoteSub, bus) })
	g.Go(func() error { return worker.RunPending(gctx, pendingSub) })
	g.Go(func() error { return worker.RunStops(gctx, stopsSub) })
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return controller.Run(gctx) })
	g.Go(func() error { return swapJob.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				limiter.Prune(now)
			}
		}
	})
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).WithField("store", cfg.StoreDriver).
			WithField("bridge", cfg.Bridge.Enabled()).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("shutdown complete")
}
