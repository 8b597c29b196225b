// Package params holds node configuration loaded from the environment.
package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Vault struct {
	// DBPath is the Pebble directory holding the persisted ledger
	DBPath string

	// Address is the vault's own address on the asset ledgers
	Address string
}

type Oracle struct {
	// FeedURL points at an external websocket price stream. Empty means
	// the node runs the in-process settable feed instead.
	FeedURL string

	// InitialPrice seeds the price source before any update arrives
	InitialPrice string
}

type API struct {
	Addr              string
	OpLogFile         string
	RequireSignatures bool
	AllowedOrigins    []string
}

type Dev struct {
	// MintAccounts get MintAmount of collateral on startup so a fresh
	// devnet is immediately usable. Ignored when empty.
	MintAccounts []string
	MintAmount   string

	// ReserveMint seeds the vault's own collateral reserve, backing
	// profit withdrawals on devnet
	ReserveMint string
}

type Config struct {
	Vault   Vault
	Oracle  Oracle
	API     API
	Dev     Dev
	LogFile string
}

func Default() Config {
	return Config{
		Vault: Vault{
			DBPath:  "data/vaultdb",
			Address: "0x000000000000000000000000000000000000Fa17",
		},
		Oracle: Oracle{
			InitialPrice: "2000",
		},
		API: API{
			Addr:           ":8080",
			OpLogFile:      "data/operations.log",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Dev: Dev{
			MintAmount:  "5000",
			ReserveMint: "100000000",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Vault.DBPath = getEnv("DB_PATH", cfg.Vault.DBPath)
	cfg.Vault.Address = getEnv("VAULT_ADDRESS", cfg.Vault.Address)

	cfg.Oracle.FeedURL = getEnv("PRICE_FEED_URL", cfg.Oracle.FeedURL)
	cfg.Oracle.InitialPrice = getEnv("INITIAL_PRICE", cfg.Oracle.InitialPrice)

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	cfg.API.OpLogFile = getEnv("OP_LOG_FILE", cfg.API.OpLogFile)
	if v := os.Getenv("REQUIRE_SIGNATURES"); v != "" {
		cfg.API.RequireSignatures = v == "true"
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = splitList(origins)
	}

	if accounts := os.Getenv("DEV_MINT_ACCOUNTS"); accounts != "" {
		cfg.Dev.MintAccounts = splitList(accounts)
	}
	cfg.Dev.MintAmount = getEnv("DEV_MINT_AMOUNT", cfg.Dev.MintAmount)
	cfg.Dev.ReserveMint = getEnv("DEV_RESERVE_MINT", cfg.Dev.ReserveMint)

	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv returns the environment variable's value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
