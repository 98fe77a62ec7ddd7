// Package config defines the top-level configuration for the ConwayBets sync
// client and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CONWAY_* environment variables.
type Config struct {
	Node     NodeConfig     `toml:"node"`
	Wallet   WalletConfig   `toml:"wallet"`
	Sync     SyncConfig     `toml:"sync"`
	Redis    RedisConfig    `toml:"redis"`
	Store    StoreConfig    `toml:"store"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// NodeConfig holds the Conway node endpoints and application identity.
// EndpointURL and ApplicationID are required; client construction fails fast
// without them.
type NodeConfig struct {
	// EndpointURL is the GraphQL query/mutation endpoint of the node.
	EndpointURL string `toml:"endpoint_url"`

	// ApplicationID identifies the ConwayBets application on the node.
	ApplicationID string `toml:"application_id"`

	// SubscriptionURL is the GraphQL-over-WebSocket endpoint. Empty means
	// it is derived from EndpointURL by swapping the scheme to ws/wss.
	SubscriptionURL string `toml:"subscription_url"`

	// EventsURL is the base URL of the per-market server-sent-event streams.
	// Empty means it is derived from EndpointURL.
	EventsURL string `toml:"events_url"`

	// RPCURL is the chain RPC endpoint handed to the connection on Connect.
	RPCURL string `toml:"rpc_url"`
}

// WalletConfig identifies the local account. The client never touches key
// material; it only needs the address the external wallet provider reports.
type WalletConfig struct {
	Address string `toml:"address"`
}

// SyncConfig tunes the live-update and feed machinery. Poll interval and
// debounce window are configuration, not hardcoded constants.
type SyncConfig struct {
	// PollInterval is the fallback polling cadence per subscribed topic.
	PollInterval duration `toml:"poll_interval"`

	// Debounce is the window in which rapid filter/refresh calls coalesce.
	Debounce duration `toml:"debounce"`

	// PageSize is the feed page size for market list queries.
	PageSize int `toml:"page_size"`

	// AutoRefresh re-runs the feed refresh on this interval; zero disables it.
	AutoRefresh duration `toml:"auto_refresh"`
}

// RedisConfig holds Redis connection parameters for the market cache.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// StoreConfig holds PostgreSQL connection parameters for the mirror read model.
type StoreConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ArchiveConfig holds S3-compatible object storage parameters for resolved-
// market history archival.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	Interval       duration `toml:"interval"`
	RetentionDays  int      `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "300ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "300ms".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Node: NodeConfig{
			RPCURL: "http://localhost:8080",
		},
		Sync: SyncConfig{
			PollInterval: duration{5 * time.Second},
			Debounce:     duration{300 * time.Millisecond},
			PageSize:     20,
			AutoRefresh:  duration{0},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
		},
		Store: StoreConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "conwaybets",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Region:         "us-east-1",
			Bucket:         "conwaybets-history",
			UseSSL:         false,
			ForcePathStyle: true,
			Interval:       duration{time.Hour},
			RetentionDays:  90,
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"watch":  true,
	"mirror": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a combined
// error describing every problem found. The node endpoint and application ID
// are required unconditionally so a misconfigured process fails at startup,
// not on first use.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, mirror)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Node — required for every mode.
	if strings.TrimSpace(c.Node.EndpointURL) == "" {
		errs = append(errs, "node: endpoint_url must not be empty")
	}
	if strings.TrimSpace(c.Node.ApplicationID) == "" {
		errs = append(errs, "node: application_id must not be empty")
	}
	if strings.TrimSpace(c.Node.RPCURL) == "" {
		errs = append(errs, "node: rpc_url must not be empty")
	}

	// Sync
	if c.Sync.PollInterval.Duration <= 0 {
		errs = append(errs, "sync: poll_interval must be > 0")
	}
	if c.Sync.Debounce.Duration < 0 {
		errs = append(errs, "sync: debounce must be >= 0")
	}
	if c.Sync.PageSize < 1 {
		errs = append(errs, "sync: page_size must be >= 1")
	}
	if c.Sync.AutoRefresh.Duration < 0 {
		errs = append(errs, "sync: auto_refresh must be >= 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Store — only required for mirror mode.
	if strings.ToLower(c.Mode) == "mirror" {
		if strings.TrimSpace(c.Store.DSN) == "" {
			if c.Store.Host == "" {
				errs = append(errs, "store: host must not be empty (or set store.dsn)")
			}
			if c.Store.Port <= 0 || c.Store.Port > 65535 {
				errs = append(errs, fmt.Sprintf("store: port must be 1-65535, got %d", c.Store.Port))
			}
			if c.Store.Database == "" {
				errs = append(errs, "store: database must not be empty")
			}
		}
		if c.Store.PoolMaxConns < 1 {
			errs = append(errs, "store: pool_max_conns must be >= 1")
		}
		if c.Store.PoolMinConns < 0 {
			errs = append(errs, "store: pool_min_conns must be >= 0")
		}
		if c.Store.PoolMinConns > c.Store.PoolMaxConns {
			errs = append(errs, "store: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty when enabled")
		}
		if c.Archive.Region == "" {
			errs = append(errs, "archive: region must not be empty when enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0 when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
