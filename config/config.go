package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig  `json:"server"`
	Monerod MonerodConfig `json:"monerod"`
	P2Pool  P2PoolConfig  `json:"p2pool"`
	Polling PollingConfig `json:"polling"`
	Cache   CacheConfig   `json:"cache"`
	Redis   RedisConfig   `json:"redis"`
	Discord DiscordConfig `json:"discord"`
	Version VersionConfig `json:"version"`
	Log     LogConfig     `json:"log"`
}

type ServerConfig struct {
	Port           int      `json:"port"`
	Host           string   `json:"host"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type MonerodConfig struct {
	RPCURL   string `json:"rpc_url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Timeout  int    `json:"timeout_seconds"`
	// Total tries per RPC call, the first included; 1 disables retries.
	Attempts int `json:"rpc_attempts"`
	// Blocks sampled by the weighted hashrate estimator.
	HashrateBlockCount int `json:"hashrate_block_count"`
}

type P2PoolConfig struct {
	APIURL   string `json:"api_url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Timeout  int    `json:"timeout_seconds"`
}

type PollingConfig struct {
	// Background cache warmer interval; 0 keeps the cache purely demand-driven.
	StatsInterval int `json:"stats_interval_seconds"`
}

type CacheConfig struct {
	TTL int `json:"ttl_seconds"`
	// How long the Redis mirror keeps the last good snapshot.
	MirrorRetention int `json:"mirror_retention_seconds"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
	UseTLS   bool   `json:"use_tls"`
}

type DiscordConfig struct {
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

type VersionConfig struct {
	CurrentStable string `json:"current_stable"`
	MinSupported  string `json:"min_supported"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "text" or "json"
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           3001,
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"*"},
		},
		Monerod: MonerodConfig{
			RPCURL:             "http://127.0.0.1:18081",
			Timeout:            10,
			Attempts:           1,
			HashrateBlockCount: 10,
		},
		P2Pool: P2PoolConfig{
			APIURL:  "http://127.0.0.1:3333/api",
			Timeout: 10,
		},
		Polling: PollingConfig{
			StatsInterval: 0,
		},
		Cache: CacheConfig{
			TTL:             30,
			MirrorRetention: 600,
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
			DB:      0,
			Enabled: false,
		},
		Version: VersionConfig{
			CurrentStable: "0.18.4.0",
			MinSupported:  "0.18.3.1",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := Default()

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config/config.json"
	}

	if err := loadFile(cfg, configPath); err != nil {
		return nil, err
	}

	// Environment overrides the config file
	loadEnv(cfg)

	// Command-line flags override everything
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	var serverPort int
	var serverHost string

	fs.IntVar(&serverPort, "port", 0, "Server port")
	fs.StringVar(&serverHost, "host", "", "Server host")

	_ = fs.Parse(os.Args[1:])

	if isFlagPassed(fs, "port") {
		cfg.Server.Port = serverPort
	}
	if isFlagPassed(fs, "host") {
		cfg.Server.Host = serverHost
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open config file %s: %w", path, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the clients cannot work with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Monerod.RPCURL) == "" {
		return fmt.Errorf("monerod rpc url is required")
	}
	if strings.TrimSpace(c.P2Pool.APIURL) == "" {
		return fmt.Errorf("p2pool api url is required")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %d", c.Cache.TTL)
	}
	if c.Monerod.HashrateBlockCount < 2 {
		return fmt.Errorf("hashrate block count must be at least 2, got %d", c.Monerod.HashrateBlockCount)
	}
	return nil
}

func isFlagPassed(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func envInt(name string, dst *int) {
	if val := os.Getenv(name); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			*dst = p
		}
	}
}

func envString(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(name); val != "" {
		*dst = val == "true" || val == "1"
	}
}

func loadEnv(cfg *Config) {
	// Server configuration
	envInt("SERVER_PORT", &cfg.Server.Port)
	envString("SERVER_HOST", &cfg.Server.Host)
	if val := os.Getenv("ALLOWED_ORIGINS"); val != "" {
		parts := strings.Split(val, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.Server.AllowedOrigins = parts
	}

	// monerod
	envString("MONEROD_RPC_URL", &cfg.Monerod.RPCURL)
	envString("MONEROD_RPC_USER", &cfg.Monerod.Username)
	envString("MONEROD_RPC_PASSWORD", &cfg.Monerod.Password)
	envInt("MONEROD_TIMEOUT", &cfg.Monerod.Timeout)
	envInt("MONEROD_RPC_ATTEMPTS", &cfg.Monerod.Attempts)
	envInt("HASHRATE_BLOCK_COUNT", &cfg.Monerod.HashrateBlockCount)

	// p2pool
	envString("P2POOL_API_URL", &cfg.P2Pool.APIURL)
	envString("P2POOL_API_USER", &cfg.P2Pool.Username)
	envString("P2POOL_API_PASSWORD", &cfg.P2Pool.Password)
	envInt("P2POOL_TIMEOUT", &cfg.P2Pool.Timeout)

	// Cache / polling
	envInt("CACHE_TTL", &cfg.Cache.TTL)
	envInt("CACHE_MIRROR_RETENTION", &cfg.Cache.MirrorRetention)
	envInt("STATS_INTERVAL", &cfg.Polling.StatsInterval)

	// Redis
	envString("REDIS_ADDRESS", &cfg.Redis.Address)
	envString("REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("REDIS_DB", &cfg.Redis.DB)
	envBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	envBool("REDIS_USE_TLS", &cfg.Redis.UseTLS)

	// Discord
	envString("DISCORD_BOT_TOKEN", &cfg.Discord.BotToken)
	envString("DISCORD_CHANNEL_ID", &cfg.Discord.ChannelID)

	// Version grading
	envString("MONEROD_STABLE_VERSION", &cfg.Version.CurrentStable)
	envString("MONEROD_MIN_VERSION", &cfg.Version.MinSupported)

	// Logging
	envString("LOG_LEVEL", &cfg.Log.Level)
	envString("LOG_FORMAT", &cfg.Log.Format)
}

// Helper methods for duration conversion
func (c *Config) MonerodTimeoutDuration() time.Duration {
	return time.Duration(c.Monerod.Timeout) * time.Second
}

func (c *Config) P2PoolTimeoutDuration() time.Duration {
	return time.Duration(c.P2Pool.Timeout) * time.Second
}

func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Second
}

func (c *Config) MirrorRetentionDuration() time.Duration {
	return time.Duration(c.Cache.MirrorRetention) * time.Second
}

func (c *Config) StatsIntervalDuration() time.Duration {
	return time.Duration(c.Polling.StatsInterval) * time.Second
}
