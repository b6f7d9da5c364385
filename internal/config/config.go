package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env        string `yaml:"env"`
	ListenAddr string `yaml:"listen_addr"`

	DatabaseURL string `yaml:"database_url"`

	Redis RedisConfig `yaml:"redis"`

	AMQPURL string `yaml:"amqp_url"`

	Indexer IndexerConfig `yaml:"indexer"`

	RefreshWorkers      int           `yaml:"refresh_workers"`
	RefreshPollInterval time.Duration `yaml:"refresh_poll_interval"`

	PermissionConcurrency int `yaml:"permission_concurrency"`

	Chains ChainsConfig `yaml:"chains"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type IndexerConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

type ChainsConfig struct {
	// RPCURLs maps chain id to an RPC endpoint for that chain.
	RPCURLs      map[int64]string `yaml:"rpc_urls"`
	SyncAttempts int              `yaml:"sync_attempts"`
	SyncInterval time.Duration    `yaml:"sync_interval"`
}

func Default() Config {
	return Config{
		Env:        "development",
		ListenAddr: ":8080",
		Redis: RedisConfig{
			TTL: 30 * time.Second,
		},
		Indexer: IndexerConfig{
			URL:          "https://gapapi.karmahq.xyz",
			Timeout:      10 * time.Second,
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
		},
		RefreshWorkers:        0,
		RefreshPollInterval:   500 * time.Millisecond,
		PermissionConcurrency: 8,
		Chains: ChainsConfig{
			RPCURLs:      map[int64]string{},
			SyncAttempts: 10,
			SyncInterval: 500 * time.Millisecond,
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and environment variables, in increasing precedence.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := overrideFromEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func overrideFromEnv(cfg *Config) error {
	cfg.Env = getenv("APP_ENV", cfg.Env)
	cfg.ListenAddr = getenv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.AMQPURL = getenv("AMQP_URL", cfg.AMQPURL)

	cfg.Redis.Addr = getenv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Indexer.URL = getenv("INDEXER_URL", cfg.Indexer.URL)

	var err error
	if cfg.Redis.DB, err = getenvInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}
	if cfg.Redis.TTL, err = getenvDuration("CACHE_TTL", cfg.Redis.TTL); err != nil {
		return err
	}
	if cfg.Indexer.Timeout, err = getenvDuration("INDEXER_TIMEOUT", cfg.Indexer.Timeout); err != nil {
		return err
	}
	if cfg.Indexer.MaxAttempts, err = getenvInt("INDEXER_MAX_ATTEMPTS", cfg.Indexer.MaxAttempts); err != nil {
		return err
	}
	if cfg.RefreshWorkers, err = getenvInt("REFRESH_WORKERS", cfg.RefreshWorkers); err != nil {
		return err
	}
	if cfg.PermissionConcurrency, err = getenvInt("PERMISSION_CONCURRENCY", cfg.PermissionConcurrency); err != nil {
		return err
	}
	if cfg.Chains.SyncAttempts, err = getenvInt("CHAIN_SYNC_ATTEMPTS", cfg.Chains.SyncAttempts); err != nil {
		return err
	}
	if cfg.Chains.SyncInterval, err = getenvDuration("CHAIN_SYNC_INTERVAL", cfg.Chains.SyncInterval); err != nil {
		return err
	}
	if v := os.Getenv("CHAIN_RPC_URLS"); v != "" {
		urls, err := ParseRPCURLs(v)
		if err != nil {
			return err
		}
		cfg.Chains.RPCURLs = urls
	}
	return nil
}

func (c Config) Validate() error {
	if c.Indexer.URL == "" {
		return fmt.Errorf("indexer url is required")
	}
	if c.Indexer.MaxAttempts < 1 {
		return fmt.Errorf("indexer max attempts must be at least 1, got %d", c.Indexer.MaxAttempts)
	}
	if c.PermissionConcurrency < 1 {
		return fmt.Errorf("permission concurrency must be at least 1, got %d", c.PermissionConcurrency)
	}
	if c.Chains.SyncAttempts < 1 {
		return fmt.Errorf("chain sync attempts must be at least 1, got %d", c.Chains.SyncAttempts)
	}
	if c.RefreshWorkers > 0 && c.DatabaseURL == "" {
		return fmt.Errorf("refresh workers need DATABASE_URL")
	}
	return nil
}

// ParseRPCURLs reads "chainID=url" pairs separated by commas.
func ParseRPCURLs(v string) (map[int64]string, error) {
	out := map[int64]string{}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, url, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("CHAIN_RPC_URLS: malformed entry %q", pair)
		}
		chainID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("CHAIN_RPC_URLS: chain id %q: %w", id, err)
		}
		out[chainID] = strings.TrimSpace(url)
	}
	return out, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return out, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return out, nil
}
