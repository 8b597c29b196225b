package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/synthvault/params"
	"github.com/uhyunpark/synthvault/pkg/api"
	"github.com/uhyunpark/synthvault/pkg/fixed"
	"github.com/uhyunpark/synthvault/pkg/oracle"
	"github.com/uhyunpark/synthvault/pkg/token"
	"github.com/uhyunpark/synthvault/pkg/util"
	"github.com/uhyunpark/synthvault/pkg/vault"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	// Setup logging (write to both console and file)
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "data/vaultd.log"
	}

	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Asset ledgers ----
	usdc := token.New("USD Coin", "USDC")
	weth := token.New("Wrapped Ether", "WETH")
	vaultAddr := common.HexToAddress(cfg.Vault.Address)

	// Devnet seeding: reserve for the vault, working balances for listed accounts
	if reserve, err := fixed.Parse(cfg.Dev.ReserveMint); err == nil && reserve.Sign() > 0 {
		usdc.Mint(vaultAddr, reserve)
		weth.Mint(vaultAddr, reserve)
		sugar.Infow("reserve_minted", "vault", vaultAddr.Hex(), "amount", reserve)
	}
	if len(cfg.Dev.MintAccounts) > 0 {
		amount, err := fixed.Parse(cfg.Dev.MintAmount)
		if err != nil || amount.Sign() <= 0 {
			sugar.Fatalw("bad_dev_mint_amount", "amount", cfg.Dev.MintAmount)
		}
		for _, raw := range cfg.Dev.MintAccounts {
			if !common.IsHexAddress(raw) {
				sugar.Fatalw("bad_dev_mint_account", "address", raw)
			}
			addr := common.HexToAddress(raw)
			usdc.Mint(addr, amount)
			sugar.Infow("dev_account_funded", "address", addr.Hex(), "amount", amount)
		}
	}

	// ---- Price source ----
	initialPrice, err := fixed.Parse(cfg.Oracle.InitialPrice)
	if err != nil || initialPrice.Sign() <= 0 {
		sugar.Fatalw("bad_initial_price", "price", cfg.Oracle.InitialPrice)
	}

	var priceSource vault.PriceSource
	var settableFeed *oracle.Feed
	if cfg.Oracle.FeedURL != "" {
		wsFeed := oracle.NewWSFeed(cfg.Oracle.FeedURL, initialPrice, sugar)
		go wsFeed.Run(ctx)
		priceSource = wsFeed
		sugar.Infow("price_feed_external", "url", cfg.Oracle.FeedURL)
	} else {
		settableFeed = oracle.NewFeed(initialPrice)
		priceSource = settableFeed
		sugar.Infow("price_feed_settable", "initial_price", initialPrice)
	}

	// ---- Vault ----
	v, err := vault.New(usdc, weth, priceSource, vaultAddr, cfg.Vault.DBPath)
	if err != nil {
		sugar.Fatalw("vault_open_failed", "db_path", cfg.Vault.DBPath, "err", err)
	}
	defer v.Close()
	v.SetLogger(sugar)

	if err := v.VerifyIntegrity(); err != nil {
		sugar.Fatalw("ledger_integrity_failed_on_load", "err", err)
	}
	sugar.Infow("vault_loaded",
		"db_path", cfg.Vault.DBPath,
		"total_synthetic_locked", v.SyntheticAmountLocked())

	// ---- API Server ----
	apiServer := api.NewServer(v, settableFeed, api.Config{
		OpLogPath:         cfg.API.OpLogFile,
		RequireSignatures: cfg.API.RequireSignatures,
		AllowedOrigins:    cfg.API.AllowedOrigins,
	}, sugar)

	go func() {
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("vaultd_started",
		"api_addr", cfg.API.Addr,
		"require_signatures", cfg.API.RequireSignatures)

	<-ctx.Done()
	sugar.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
}
