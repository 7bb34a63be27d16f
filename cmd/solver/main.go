package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/mr-tron/base58"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/obscuraswap/solver/internal/codec"
	"github.com/obscuraswap/solver/internal/config"
	"github.com/obscuraswap/solver/internal/history"
	"github.com/obscuraswap/solver/internal/ledger"
	"github.com/obscuraswap/solver/internal/registry"
	"github.com/obscuraswap/solver/internal/router"
	"github.com/obscuraswap/solver/internal/solver"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

func decodeSeed(s string) ([32]byte, error) {
	var seed [32]byte
	raw, err := base58.Decode(s)
	if err != nil {
		return seed, fmt.Errorf("decode seed: %w", err)
	}
	if len(raw) != 32 {
		return seed, fmt.Errorf("seed must be 32 bytes, got %d", len(raw))
	}
	copy(seed[:], raw)
	return seed, nil
}

// main is the entry point for the settlement daemon. It wires the Redis
// order ledger, the key registry, the swap router and the fill sinks,
// then runs the polling loop until interrupted.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	loadEnv(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	if cfg.SolverWallet == "" {
		logger.Fatal("SOLVER_WALLET is required")
	}
	identity, err := solana.PublicKeyFromBase58(cfg.SolverWallet)
	if err != nil {
		logger.WithError(err).Fatal("invalid SOLVER_WALLET")
	}

	var keypair *codec.Keypair
	if cfg.EncryptionKeySeed == "" {
		logger.Fatal("ENCRYPTION_KEY_SEED is required, traders encrypt against a stable key")
	}
	seed, err := decodeSeed(cfg.EncryptionKeySeed)
	if err != nil {
		logger.WithError(err).Fatal("invalid ENCRYPTION_KEY_SEED")
	}
	keypair, err = codec.DeriveKeypair(seed)
	if err != nil {
		logger.WithError(err).Fatal("failed to derive encryption keypair")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	rclient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rclient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}

	orderLedger, err := ledger.NewRedisLedger(rclient, identity)
	if err != nil {
		logger.WithError(err).Fatal("failed to create order ledger")
	}

	keyRegistry, err := registry.NewRedisRegistry(rclient)
	if err != nil {
		logger.WithError(err).Fatal("failed to create key registry")
	}

	swapRouter := router.NewJupiterRouter(cfg.JupiterBaseURL, cfg.JupiterAPIKey)

	maxImpact, err := decimal.NewFromString(cfg.MaxPriceImpactPct)
	if err != nil {
		logger.WithError(err).Fatal("invalid MAX_PRICE_IMPACT_PCT")
	}

	solverCfg := solver.DefaultConfig()
	solverCfg.PollInterval = cfg.PollInterval
	solverCfg.MaxSlippageBps = uint16(cfg.MaxSlippageBps)
	solverCfg.MaxPriceImpactPct = maxImpact
	solverCfg.QuoteRetries = cfg.QuoteRetries
	solverCfg.RetryBackoff = cfg.RetryBackoff
	solverCfg.ProcessedMaxAge = cfg.ProcessedMaxAge

	s := solver.New(identity, orderLedger, keyRegistry, swapRouter, keypair, solverCfg, logger)

	// Fill sinks are best effort. ClickHouse is only attached when an
	// address is configured, the pub/sub fan-out always is.
	var store history.FillStore
	if cfg.ClickHouseAddr != "" {
		ch, err := history.NewClickHouseStore(ctx, history.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			logger.WithError(err).Warn("failed to connect to ClickHouse, fills will not be persisted")
		} else {
			if err := ch.EnsureSchema(ctx); err != nil {
				logger.WithError(err).Fatal("failed to ensure ClickHouse schema")
			}
			store = ch
			defer ch.Close()
		}
	}

	publisher, err := history.NewRedisPublisher(rclient, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create fill publisher")
	}
	defer publisher.Close()

	s = s.WithRecorder(history.NewRecorder(store, publisher, logger))

	logger.WithFields(logrus.Fields{
		"solver":         identity.String(),
		"encryption_key": keypair.PublicBase58(),
		"poll_interval":  cfg.PollInterval,
	}).Info("solver starting")

	if err := s.Start(ctx); err != nil && err != context.Canceled {
		logger.WithError(err).Fatal("solver stopped")
	}
}
