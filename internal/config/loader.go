package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CONWAY_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// FromEnv returns a Config built from defaults and CONWAY_* environment
// variables only, for callers that construct the client without a TOML file
// (the process-wide default client does this).
func FromEnv() *Config {
	cfg := Defaults()
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)
	return &cfg
}

// applyEnvOverrides reads well-known CONWAY_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject endpoints and secrets at deploy time without touching the
// TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Node ──
	setStr(&cfg.Node.EndpointURL, "CONWAY_NODE_URL")
	setStr(&cfg.Node.ApplicationID, "CONWAY_APP_ID")
	setStr(&cfg.Node.SubscriptionURL, "CONWAY_SUBSCRIPTION_URL")
	setStr(&cfg.Node.EventsURL, "CONWAY_EVENTS_URL")
	setStr(&cfg.Node.RPCURL, "CONWAY_RPC_URL")

	// ── Wallet ──
	setStr(&cfg.Wallet.Address, "CONWAY_WALLET_ADDRESS")

	// ── Sync ──
	setDuration(&cfg.Sync.PollInterval, "CONWAY_SYNC_POLL_INTERVAL")
	setDuration(&cfg.Sync.Debounce, "CONWAY_SYNC_DEBOUNCE")
	setInt(&cfg.Sync.PageSize, "CONWAY_SYNC_PAGE_SIZE")
	setDuration(&cfg.Sync.AutoRefresh, "CONWAY_SYNC_AUTO_REFRESH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CONWAY_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CONWAY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CONWAY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CONWAY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CONWAY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CONWAY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CONWAY_REDIS_TLS_ENABLED")

	// ── Store ──
	setStr(&cfg.Store.DSN, "CONWAY_STORE_DSN")
	setStr(&cfg.Store.Host, "CONWAY_STORE_HOST")
	setInt(&cfg.Store.Port, "CONWAY_STORE_PORT")
	setStr(&cfg.Store.Database, "CONWAY_STORE_DATABASE")
	setStr(&cfg.Store.User, "CONWAY_STORE_USER")
	setStr(&cfg.Store.Password, "CONWAY_STORE_PASSWORD")
	setStr(&cfg.Store.SSLMode, "CONWAY_STORE_SSLMODE")
	setInt(&cfg.Store.PoolMaxConns, "CONWAY_STORE_POOL_MAX_CONNS")
	setInt(&cfg.Store.PoolMinConns, "CONWAY_STORE_POOL_MIN_CONNS")
	setBool(&cfg.Store.RunMigrations, "CONWAY_STORE_RUN_MIGRATIONS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CONWAY_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "CONWAY_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "CONWAY_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "CONWAY_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "CONWAY_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "CONWAY_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "CONWAY_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "CONWAY_ARCHIVE_FORCE_PATH_STYLE")
	setDuration(&cfg.Archive.Interval, "CONWAY_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "CONWAY_ARCHIVE_RETENTION_DAYS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CONWAY_MODE")
	setStr(&cfg.LogLevel, "CONWAY_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
