package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sniper-trading-bot/config"
	"sniper-trading-bot/internal/ai"
	"sniper-trading-bot/internal/analysis"
	"sniper-trading-bot/internal/api"
	"sniper-trading-bot/internal/auth"
	"sniper-trading-bot/internal/database"
	"sniper-trading-bot/internal/events"
	"sniper-trading-bot/internal/exchange"
	"sniper-trading-bot/internal/hedging"
	"sniper-trading-bot/internal/logging"
	"sniper-trading-bot/internal/marketdata"
	"sniper-trading-bot/internal/notification"
	"sniper-trading-bot/internal/orders"
	"sniper-trading-bot/internal/positions"
	"sniper-trading-bot/internal/risk"
	"sniper-trading-bot/internal/scheduler"
	"sniper-trading-bot/internal/strategy"
	"sniper-trading-bot/internal/vault"
	"sniper-trading-bot/internal/weighting"
)

func main() {
	// .env is optional; environment variables win either way
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.SetDefault(logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		Component:   "app",
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
	}))
	logger := logging.Default()
	logger.Info("Starting sniper trading bot")

	eventBus := events.NewEventBus()

	if cfg.NotificationConfig.Enabled {
		notifier := notification.NewManager()
		notifier.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
			BotToken: cfg.NotificationConfig.Telegram.BotToken,
			ChatID:   cfg.NotificationConfig.Telegram.ChatID,
			Enabled:  cfg.NotificationConfig.Telegram.Enabled,
		}))
		notifier.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
			WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
			Enabled:    cfg.NotificationConfig.Discord.Enabled,
		}))
		notifier.SubscribeBus(eventBus)
	}

	// Exchange credentials: Vault when enabled, config/env otherwise
	bybitKey, bybitSecret := cfg.BybitConfig.APIKey, cfg.BybitConfig.SecretKey
	mexcKey, mexcSecret := cfg.MexcConfig.APIKey, cfg.MexcConfig.SecretKey
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			log.Fatalf("Failed to create vault client: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if creds, err := vaultClient.GetCredentials(ctx, "bybit", cfg.BybitConfig.TestNet); err == nil {
			bybitKey, bybitSecret = creds.APIKey, creds.SecretKey
		} else {
			logger.Warn("Vault lookup for bybit failed, using config credentials", "error", err.Error())
		}
		if creds, err := vaultClient.GetCredentials(ctx, "mexc", false); err == nil {
			mexcKey, mexcSecret = creds.APIKey, creds.SecretKey
		}
		cancel()
	}

	// Exchange clients
	bybit := exchange.NewBybitClient(bybitKey, bybitSecret, cfg.BybitConfig.BaseURL)
	mexc := exchange.NewMexcClient(mexcKey, mexcSecret, cfg.MexcConfig.SpotURL)
	mexcFutures := exchange.NewMexcFuturesClient(mexcKey, mexcSecret, cfg.MexcConfig.FuturesURL)
	exchanges := []exchange.Exchange{bybit, mexc, mexcFutures}

	marketData := marketdata.NewService(exchanges, 60*time.Second, 5*time.Second)

	// Position persistence: Redis-backed with in-memory fallback
	var store *positions.RedisStore
	if cfg.RedisConfig.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
		store = positions.NewRedisStore(redisClient)
	}
	cache := positions.NewCache(store)
	cache.Restore()
	cache.SetClosedCallback(func(pos positions.PositionUpdateData) {
		eventBus.PublishTradeClosed(pos.Symbol, "VENUE_CLOSED", pos.UnrealizedPnL)
	})

	ordersLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	orderMgr := orders.NewManager(exchanges, cache, ordersLogger)

	riskMgr := risk.NewManager(&risk.Config{
		MaxRiskPerTrade:    cfg.RiskConfig.MaxRiskPerTrade,
		MaxDailyDrawdown:   cfg.RiskConfig.MaxDailyDrawdown,
		MaxOpenPositions:   cfg.RiskConfig.MaxOpenPositions,
		StopLossPercentMax: cfg.RiskConfig.StopLossPercentMax,
		ATRMultiplier:      cfg.RiskConfig.ATRMultiplier,
	}, marketData)

	// AI oracle is optional; strategies degrade to technical-only
	var oracle *ai.Oracle
	if cfg.AIConfig.Enabled && cfg.AIConfig.Endpoint != "" {
		oracle = ai.NewOracle(ai.NewClient(&ai.ClientConfig{
			Endpoint:    cfg.AIConfig.Endpoint,
			APIKey:      cfg.AIConfig.APIKey,
			Model:       cfg.AIConfig.Model,
			MaxTokens:   cfg.AIConfig.MaxTokens,
			Temperature: cfg.AIConfig.Temperature,
			Timeout:     time.Duration(cfg.AIConfig.TimeoutSec) * time.Second,
			ScanTimeout: time.Duration(cfg.AIConfig.ScanTimeout) * time.Second,
		}))
	}

	confirmer := analysis.NewConfirmer(marketData)
	regime := analysis.NewRegimeClassifier(marketData)
	weights := weighting.NewService()

	sniperExchange := cfg.SniperConfig.Exchange

	registry := strategy.NewRegistry()
	mustRegister(registry, "sniper", strategy.NewSniperStrategy(
		nil, marketData, riskMgr, orderMgr, cache, oracle, confirmer, weights, sniperExchange))
	mustRegister(registry, "default", strategy.NewDefaultStrategy(
		nil, marketData, riskMgr, cache, sniperExchange))
	mustRegister(registry, "ma_crossover", strategy.NewMACrossoverStrategy(marketData, cache, sniperExchange))
	mustRegister(registry, "rsi", strategy.NewRSIStrategy(marketData, cache, sniperExchange))
	mustRegister(registry, "fibonacci", strategy.NewFibonacciStrategy(marketData, cache, sniperExchange))
	mustRegister(registry, "news", strategy.NewNewsSentimentStrategy(marketData, cache, oracle, sniperExchange))

	var hedgingSvc *hedging.Service
	if cfg.HedgingConfig.Enabled {
		hedgingSvc = hedging.NewService(&hedging.Config{
			LossThresholdPct: cfg.HedgingConfig.LossThresholdPercent,
			ATRPctThreshold:  cfg.HedgingConfig.VolatilityATRPercent,
			Ratio:            cfg.HedgingConfig.HedgeRatio,
			Cooldown:         time.Duration(cfg.HedgingConfig.CooldownMinutes) * time.Minute,
			Expiry:           time.Duration(cfg.HedgingConfig.ExpiryHours) * time.Hour,
		}, cache, orderMgr, marketData, regime, oracle, sniperExchange)
		hedgingSvc.SetEventBus(eventBus)
	}

	executor := scheduler.NewExecutor(registry, marketData, riskMgr, orderMgr, cache)
	executor.SetEventBus(eventBus)
	sched := scheduler.NewScheduler(&scheduler.Config{
		SniperFixedRate:    time.Duration(cfg.SniperConfig.FixedRateMs) * time.Millisecond,
		DefaultFixedRate:   time.Duration(cfg.DefaultConfig.FixedRateMs) * time.Millisecond,
		HedgingFixedRate:   time.Duration(cfg.HedgingConfig.FixedRateMs) * time.Millisecond,
		SniperSymbols:      cfg.SniperConfig.Symbols,
		SniperInterval:     cfg.SniperConfig.Interval,
		SniperStrategyID:   "sniper",
		SniperExchange:     sniperExchange,
		DefaultSymbols:     cfg.DefaultConfig.Symbols,
		DefaultInterval:    cfg.DefaultConfig.Interval,
		DefaultStrategyID:  "default",
		DefaultExchangeMap: cfg.DefaultConfig.ExchangeMap,
		Workers:            cfg.SniperConfig.Workers,
		DrainWait:          time.Duration(cfg.SniperConfig.DrainWaitSec) * time.Second,
	}, executor, hedgingSvc)

	// Private WS keeps the position cache live; each (re)connect triggers a
	// REST reconcile so missed pushes converge
	ws := exchange.NewBybitPrivateWS(bybitKey, bybitSecret, cfg.BybitConfig.WSBaseURL)
	ws.SetPositionUpdateCallback(cache.ApplyWSUpdate)
	ws.SetConnectedCallback(func() {
		venuePositions, err := bybit.GetPositions()
		if err != nil {
			logger.Error("Post-connect reconcile failed", "error", err.Error())
			return
		}
		cache.Reconcile(bybit.Name(), venuePositions)
	})
	if err := ws.Start(); err != nil {
		logger.Error("Position stream failed to start", "error", err.Error())
	}

	// Optional persistence
	var repo *database.Repository
	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(ctx); err != nil {
			cancel()
			log.Fatalf("Failed to run migrations: %v", err)
		}
		cancel()
		repo = database.NewRepository(db)
		subscribePersistence(eventBus, repo, weights)
	}

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
		ProductionMode: cfg.LoggingConfig.Level != "DEBUG",
		ReadTimeout:    time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
	}, sched, cache, hedgingSvc, orderMgr, repo, eventBus)

	if cfg.AuthConfig.Enabled {
		server.EnableAuth(
			auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.AccessTokenDuration),
			auth.NewPasswordManager(auth.DefaultBcryptCost, cfg.AuthConfig.MinPasswordLength),
			cfg.AuthConfig.AdminUser,
			cfg.AuthConfig.AdminPasswordHash,
		)
	}

	sched.Run()

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("API server stopped", "error", err.Error())
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", "error", err.Error())
	}
	sched.Shutdown()
	ws.Stop()
	if db != nil {
		db.Close()
	}
	logger.Info("Shutdown complete")
}

func mustRegister(registry *strategy.Registry, id string, s strategy.Strategy) {
	if err := registry.Register(id, s); err != nil {
		log.Fatalf("Failed to register strategy %s: %v", id, err)
	}
}

// subscribePersistence mirrors bus events into PostgreSQL
func subscribePersistence(eventBus *events.EventBus, repo *database.Repository, weights *weighting.Service) {
	eventBus.Subscribe(events.EventSignalGenerated, func(ev events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = repo.SaveSignal(ctx, &database.SignalRecord{
			StrategyName: asString(ev.Data["strategy"]),
			Symbol:       asString(ev.Data["symbol"]),
			Tier:         asString(ev.Data["tier"]),
			EntryPrice:   asFloat(ev.Data["price"]),
		})
	})
	eventBus.Subscribe(events.EventTradeClosed, func(ev events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = repo.SaveClosedPosition(ctx, &database.ClosedPositionRecord{
			Symbol:      asString(ev.Data["symbol"]),
			ExitReason:  asString(ev.Data["reason"]),
			RealizedPnL: asFloat(ev.Data["pnl"]),
		})

		outcome := "LOSS"
		if asFloat(ev.Data["pnl"]) > 0 {
			outcome = "WIN"
		}
		w := weights.GetWeights()
		_ = repo.RecordPerformance(ctx, &database.PerformanceRecord{
			Symbol:         asString(ev.Data["symbol"]),
			Outcome:        outcome,
			TechnicalScore: w.Technical,
			SentimentScore: w.Sentiment,
			AIScore:        w.AI,
		})
	})
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	f, _ := v.(float64)
	return f
}
