package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/uhyunpark/swapsettle/pkg/script"
)

type Storage struct {
	// Backend is "pebble" or "memory". Memory loses all state on exit and is
	// meant for tests and local runs.
	Backend string
	DataDir string
	// JournalFile receives one line per settlement event. Empty disables it.
	JournalFile string
}

type Settlement struct {
	FillRetries     int
	RequireMakerSig bool
}

type Node struct {
	APIAddr        string
	AllowedOrigins []string
	LogFile        string
	LogLevel       string
	Network        script.Network
	ScriptVersion  script.Version
}

type Config struct {
	Storage    Storage
	Settlement Settlement
	Node       Node
}

func Default() Config {
	return Config{
		Storage: Storage{
			Backend: "pebble",
			DataDir: "data/settler",
		},
		Settlement: Settlement{
			FillRetries: 3,
		},
		Node: Node{
			APIAddr:        ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
			LogFile:        "data/settler.log",
			LogLevel:       "info",
			Network:        script.Testnet,
			ScriptVersion:  script.PlutusV3,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Storage.Backend = strings.ToLower(getEnv("STORE", cfg.Storage.Backend))
	cfg.Storage.DataDir = getEnv("DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.JournalFile = getEnv("JOURNAL_FILE", cfg.Storage.JournalFile)

	if retries := os.Getenv("FILL_RETRY_LIMIT"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil && n > 0 {
			cfg.Settlement.FillRetries = n
		}
	}
	if req := os.Getenv("REQUIRE_MAKER_SIG"); req != "" {
		cfg.Settlement.RequireMakerSig = req == "true"
	}

	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)

	// Origins from comma-separated list
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Node.AllowedOrigins = strings.Split(origins, ",")
	}
	if n := os.Getenv("NETWORK"); n != "" {
		if network, err := script.ParseNetwork(n); err == nil {
			cfg.Node.Network = network
		}
	}
	if v := os.Getenv("SCRIPT_VERSION"); v != "" {
		if version, err := script.ParseVersion(v); err == nil {
			cfg.Node.ScriptVersion = version
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
