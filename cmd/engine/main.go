// Command engine runs the four-bot-version crypto-futures signal and
// paper-trading fleet: one Scanner, Signal Engine, Position Monitor and
// Paper Trader per bot version (V1-V4), sharing a single Market-Data
// Client, cache and sentiment provider. Wiring order is logger -> db/cache
// -> vault/exchange client -> shared services -> per-bot config and
// services -> start -> wait-for-signal -> graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"cryptosignals/engine/internal/binance"
	"cryptosignals/engine/internal/cache"
	"cryptosignals/engine/internal/circuit"
	"cryptosignals/engine/internal/config"
	"cryptosignals/engine/internal/correlation"
	"cryptosignals/engine/internal/engine"
	"cryptosignals/engine/internal/learner"
	"cryptosignals/engine/internal/logging"
	"cryptosignals/engine/internal/marketdata"
	"cryptosignals/engine/internal/papertrader"
	"cryptosignals/engine/internal/position"
	"cryptosignals/engine/internal/scanner"
	"cryptosignals/engine/internal/sentiment"
	"cryptosignals/engine/internal/store"
	"cryptosignals/engine/internal/vault"
)

// botVersions is the fixed fleet this binary runs.
var botVersions = []engine.BotVersion{engine.BotV1, engine.BotV2, engine.BotV3, engine.BotV4}

// noopSetupDisabler satisfies engine.SetupDisabler and is passed to the
// Signal Engine of every bot version, V4 included: every setup stays
// enabled.
type noopSetupDisabler struct{}

func (noopSetupDisabler) IsDisabled(ctx context.Context, bot engine.BotVersion, symbol string, mode engine.Mode, setupType string) bool {
	return false
}

// symbolClusters is the static correlation-cluster map the V4
// Correlation Guard checks candidate symbols against. No dynamic classifier in the repo
// produces this grouping, so it's hand-maintained here.
var symbolClusters = map[string]string{
	"BTCUSDT":  "blue_chip",
	"ETHUSDT":  "blue_chip",
	"BNBUSDT":  "large_cap",
	"SOLUSDT":  "large_cap",
	"AVAXUSDT": "large_cap",
	"LINKUSDT": "mid_cap",
	"ADAUSDT":  "mid_cap",
	"DOGEUSDT": "meme",
}

func main() {
	log := logging.New(&logging.Config{
		Level:      getEnvOrDefault("LOG_LEVEL", "info"),
		Output:     "stdout",
		Component:  "engine",
		JSONFormat: getEnvOrDefault("LOG_FORMAT", "text") == "json",
	})

	if err := run(log); err != nil {
		log.Fatal("engine exited", "error", err)
	}
}

func run(log *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.New(store.Config{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvIntOrDefault("DB_PORT", 5432),
		User:     getEnvOrDefault("DB_USER", "cryptosignals"),
		Password: os.Getenv("DB_PASSWORD"),
		Database: getEnvOrDefault("DB_NAME", "cryptosignals"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}, log)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Pool.Close()
	repo := store.NewRepository(db)

	cacheSvc := cache.New(cache.Config{
		Address:  getEnvOrDefault("REDIS_ADDRESS", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvIntOrDefault("REDIS_DB", 0),
		PoolSize: getEnvIntOrDefault("REDIS_POOL_SIZE", 10),
	}, log)

	vaultClient, err := vault.NewClient(vault.Config{
		Enabled:    getEnvOrDefault("VAULT_ENABLED", "false") == "true",
		Address:    os.Getenv("VAULT_ADDR"),
		Token:      os.Getenv("VAULT_TOKEN"),
		TLSEnabled: getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true",
		CACert:     os.Getenv("VAULT_CACERT"),
	})
	if err != nil {
		return fmt.Errorf("creating vault client: %w", err)
	}

	exchangeCreds, err := vaultClient.GetCredentials(ctx, "shared")
	if err != nil {
		log.Warn("no stored exchange credentials, running unauthenticated market data", "error", err)
	}

	futuresClient := binance.NewFuturesClient(exchangeCreds.APIKey, exchangeCreds.SecretKey, exchangeCreds.IsTestnet)
	mdClient := marketdata.NewClient(marketdata.NewBinanceAdapter(futuresClient))

	sentimentCfg := sentiment.DefaultConfig()
	sentimentCfg.CryptoPanicAPIKey = os.Getenv("CRYPTOPANIC_API_KEY")
	sentimentProvider := sentiment.NewProvider(sentimentCfg, cacheSvc, log)
	sentimentProvider.Start(ctx)
	defer sentimentProvider.Stop()

	guard := correlation.New(symbolClusters)

	var scanners []*scanner.Scanner
	var monitors []*position.Monitor

	for _, bot := range botVersions {
		path := fmt.Sprintf("configs/%s.yaml", lowerBotVersion(bot))
		cfg, err := config.Load(string(bot), path)
		if err != nil {
			return fmt.Errorf("loading %s config: %w", bot, err)
		}

		botLog := log.WithComponent(fmt.Sprintf("engine.%s", bot))

		var learn *learner.Learner
		var breaker *circuit.CircuitBreaker
		if bot == engine.BotV4 {
			learn = learner.New(repo, cacheSvc, botLog)
			if err := learn.LoadCache(ctx, bot); err != nil {
				botLog.Warn("learner cache load failed, starting cold", "error", err)
			}
			breaker = circuit.NewCircuitBreaker(circuit.DefaultCircuitBreakerConfig())
		}

		eng := engine.New(sentimentProvider, noopSetupDisabler{}, engineLearner(learn), botLog)
		for _, mode := range []engine.Mode{engine.ModeScalping, engine.ModeSwing} {
			if _, ok := cfg.Modes[string(mode)]; !ok {
				continue
			}
			layerCfg, err := engine.BuildLayerConfig(bot, mode, cfg)
			if err != nil {
				return fmt.Errorf("building %s/%s layer config: %w", bot, mode, err)
			}
			eng.SetConfig(bot, mode, layerCfg)
		}

		stream := position.NewMarkPriceStream(exchangeCreds.IsTestnet, botLog)
		var posLearner position.Learner
		if learn != nil {
			posLearner = learn
		}
		monitor := position.New(bot, repo, posLearner, stream, botLog)
		monitors = append(monitors, monitor)

		trader := papertrader.New(bot, cfg, repo, monitor, breaker, correlationGuardFor(bot, guard), botLog)

		sc := scanner.New(bot, cfg, mdClient, eng, trader, repo, botLog)
		scanners = append(scanners, sc)
	}

	for _, m := range monitors {
		go m.RunBackupLoop(ctx)
	}
	for _, sc := range scanners {
		sc.Start(ctx)
	}

	log.Info("engine fleet started", "bots", len(scanners))

	<-ctx.Done()
	log.Info("shutting down")

	for _, sc := range scanners {
		sc.Stop()
	}

	return nil
}

// engineLearner returns nil as the typed engine.LearningModifier when no
// Adaptive Learner is wired (V1-V3), since a bare nil *learner.Learner
// would otherwise satisfy the interface with a non-nil interface value
// wrapping a nil pointer.
func engineLearner(l *learner.Learner) engine.LearningModifier {
	if l == nil {
		return nil
	}
	return l
}

// correlationGuardFor applies the V4-only collaborator rule papertrader.New
// documents: pass nil for V1-V3.
func correlationGuardFor(bot engine.BotVersion, guard *correlation.Guard) *correlation.Guard {
	if bot != engine.BotV4 {
		return nil
	}
	return guard
}

func lowerBotVersion(bot engine.BotVersion) string {
	switch bot {
	case engine.BotV1:
		return "v1"
	case engine.BotV2:
		return "v2"
	case engine.BotV3:
		return "v3"
	default:
		return "v4"
	}
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
