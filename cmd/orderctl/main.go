package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/mr-tron/base58"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/obscuraswap/solver/internal/codec"
	"github.com/obscuraswap/solver/internal/config"
	"github.com/obscuraswap/solver/internal/ledger"
	"github.com/obscuraswap/solver/internal/order"
	"github.com/obscuraswap/solver/internal/registry"
	"github.com/obscuraswap/solver/internal/tier"
	"github.com/obscuraswap/solver/internal/trader"
)

func loadEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))
}

func decode32(name, s string) ([32]byte, error) {
	var out [32]byte
	raw, err := base58.Decode(s)
	if err != nil {
		return out, fmt.Errorf("decode %s: %w", name, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("%s must be 32 bytes, got %d", name, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func main() {
	loadEnv()

	mode := flag.String("mode", "status", "submit | cancel | claim | status | list")
	id := flag.Uint64("id", 0, "order id")
	inMint := flag.String("in", "", "input mint address")
	outMint := flag.String("out", "", "output mint address")
	amt := flag.Uint64("amt", 0, "input amount in base units")
	minOut := flag.Uint64("min-out", 0, "minimum acceptable output in base units")
	slippageBps := flag.Uint("slippage-bps", 50, "slippage tolerance in bps")
	deadline := flag.Duration("deadline", 5*time.Minute, "order validity window")
	orderType := flag.String("type", "market", "market | limit | twap | iceberg | dark")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg := config.Load()

	wallet, err := solana.PublicKeyFromBase58(os.Getenv("TRADER_WALLET"))
	if err != nil {
		fmt.Println("invalid TRADER_WALLET:", err)
		os.Exit(1)
	}
	seed, err := decode32("TRADER_KEY_SEED", os.Getenv("TRADER_KEY_SEED"))
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	keypair, err := codec.DeriveKeypair(seed)
	if err != nil {
		fmt.Println("failed to derive trader keypair:", err)
		os.Exit(1)
	}
	solverKey, err := decode32("SOLVER_ENC_PUBKEY", os.Getenv("SOLVER_ENC_PUBKEY"))
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	oracleKeyRaw, err := base58.Decode(cfg.OraclePubkey)
	if err != nil || len(oracleKeyRaw) != ed25519.PublicKeySize {
		fmt.Println("invalid ORACLE_PUBKEY")
		os.Exit(1)
	}
	solverWallet, err := solana.PublicKeyFromBase58(cfg.SolverWallet)
	if err != nil {
		fmt.Println("invalid SOLVER_WALLET:", err)
		os.Exit(1)
	}

	rclient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rclient.Ping(ctx).Err(); err != nil {
		fmt.Println("failed to connect to Redis:", err)
		os.Exit(1)
	}

	orderLedger, err := ledger.NewRedisLedger(rclient, solverWallet)
	if err != nil {
		fmt.Println("failed to create order ledger:", err)
		os.Exit(1)
	}
	keyRegistry, err := registry.NewRedisRegistry(rclient)
	if err != nil {
		fmt.Println("failed to create key registry:", err)
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	client, err := trader.NewClient(orderLedger, keyRegistry, trader.Config{
		Wallet:       wallet,
		Keypair:      keypair,
		SolverPubKey: solverKey,
		Oracle:       tier.NewOracleClient(cfg.OracleBaseURL, cfg.OracleAPIKey),
		OracleKey:    ed25519.PublicKey(oracleKeyRaw),
		Table:        tier.DefaultTable(),
	}, logger)
	if err != nil {
		fmt.Println("failed to create trader client:", err)
		os.Exit(1)
	}

	switch *mode {
	case "submit":
		if *inMint == "" || *outMint == "" || *amt == 0 || *minOut == 0 {
			fmt.Println("submit requires -in, -out, -amt and -min-out")
			os.Exit(2)
		}
		in, err := solana.PublicKeyFromBase58(*inMint)
		if err != nil {
			fmt.Println("invalid -in mint:", err)
			os.Exit(2)
		}
		out, err := solana.PublicKeyFromBase58(*outMint)
		if err != nil {
			fmt.Println("invalid -out mint:", err)
			os.Exit(2)
		}
		typ, err := order.ParseType(*orderType)
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}
		o, err := client.SubmitOrder(ctx, trader.SubmitParams{
			OrderID:     *id,
			InputMint:   in,
			OutputMint:  out,
			InputAmount: *amt,
			OrderType:   typ,
			Terms: codec.OrderTerms{
				MinOutputAmount: *minOut,
				SlippageBps:     uint16(*slippageBps),
				Deadline:        time.Now().Add(*deadline).Unix(),
			},
		})
		if err != nil {
			fmt.Println("submit failed:", err)
			os.Exit(1)
		}
		fmt.Printf("submitted order=%d tier=%d fee_bps=%d status=%s\n",
			o.OrderID, o.UserTier, o.FeeBpsApplied, o.Status)

	case "cancel":
		o, err := client.Cancel(ctx, *id)
		if err != nil {
			fmt.Println("cancel failed:", err)
			os.Exit(1)
		}
		fmt.Printf("cancelled order=%d status=%s\n", o.OrderID, o.Status)

	case "claim":
		amount, err := client.Claim(ctx, *id)
		if err != nil {
			fmt.Println("claim failed:", err)
			os.Exit(1)
		}
		fmt.Printf("claimed order=%d amount=%d\n", *id, amount)

	case "status":
		o, err := client.Order(ctx, *id)
		if err != nil {
			fmt.Println("lookup failed:", err)
			os.Exit(1)
		}
		fmt.Printf("order=%d status=%s type=%s in=%d out=%d fee=%d tier=%d\n",
			o.OrderID, o.Status, o.OrderType, o.InputAmount, o.OutputAmount,
			o.FeeAmount, o.UserTier)
		if o.FailReason != "" {
			fmt.Println("fail_reason:", o.FailReason)
		}

	case "list":
		orders, err := client.Orders(ctx)
		if err != nil {
			fmt.Println("list failed:", err)
			os.Exit(1)
		}
		for _, o := range orders {
			fmt.Printf("order=%d status=%s type=%s in=%d out=%d\n",
				o.OrderID, o.Status, o.OrderType, o.InputAmount, o.OutputAmount)
		}

	default:
		fmt.Println("invalid -mode (use submit|cancel|claim|status|list)")
		os.Exit(2)
	}
}
