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
	"github.com/sirupsen/logrus"

	"github.com/obscuraswap/solver/internal/codec"
	"github.com/obscuraswap/solver/internal/config"
	"github.com/obscuraswap/solver/internal/history"
	"github.com/obscuraswap/solver/internal/ledger"
	"github.com/obscuraswap/solver/internal/registry"
	"github.com/obscuraswap/solver/internal/router"
	"github.com/obscuraswap/solver/internal/server"
	"github.com/obscuraswap/solver/internal/tier"
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

// main is the entry point for the API server
// It initializes all dependencies and starts the HTTP server with graceful shutdown
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

	encKey, err := solverEncryptionKey(cfg.EncryptionKeySeed)
	if err != nil {
		logger.WithError(err).Fatal("invalid ENCRYPTION_KEY_SEED")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

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

	publisher, err := history.NewRedisPublisher(rclient, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create fill reader")
	}
	defer publisher.Close()

	// ClickHouse holds the full history; the Redis recent list is the
	// fallback when no analytics store is configured.
	var fills server.FillSource = publisher
	if cfg.ClickHouseAddr != "" {
		ch, err := history.NewClickHouseStore(ctx, history.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			logger.WithError(err).Warn("failed to connect to ClickHouse, serving fills from Redis")
		} else {
			fills = ch
			defer ch.Close()
		}
	}

	// The tier table is static configuration; a malformed table must
	// never make it past startup.
	tiers := tier.DefaultTable()
	if err := tiers.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid tier table")
	}

	h := &server.Handlers{
		Ledger:         orderLedger,
		Registry:       keyRegistry,
		Tiers:          tiers,
		SolverIdentity: identity,
		SolverEncKey:   encKey,
		Fills:          fills,
		Router:         router.NewJupiterRouter(cfg.JupiterBaseURL, cfg.JupiterAPIKey),
		DevMode:        cfg.APIDevMode,
		Logger:         logger,
	}

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:    cfg.APIAddr,
			DevMode: cfg.APIDevMode,
			APIKey:  cfg.APIKey,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithField("addr", cfg.APIAddr).Info("api server starting")
	if err := srv.Start(); err != nil {
		// "http: Server closed" is expected during graceful shutdown
		if err.Error() == "http: Server closed" {
			return
		}
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		fmt.Println(err)
	}
}

// solverEncryptionKey derives the public X25519 key traders encrypt
// against, from the same seed the solver daemon runs with.
func solverEncryptionKey(seedB58 string) ([32]byte, error) {
	var key [32]byte
	if seedB58 == "" {
		return key, fmt.Errorf("ENCRYPTION_KEY_SEED is required")
	}
	raw, err := base58.Decode(seedB58)
	if err != nil {
		return key, err
	}
	if len(raw) != 32 {
		return key, fmt.Errorf("seed must be 32 bytes, got %d", len(raw))
	}
	var seed [32]byte
	copy(seed[:], raw)
	kp, err := codec.DeriveKeypair(seed)
	if err != nil {
		return key, err
	}
	return kp.Public, nil
}
