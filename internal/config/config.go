package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingSession is returned by ValidatePublisher when no session credential
// is configured. The publisher cannot read the announcement channel without it.
var ErrMissingSession = errors.New("telegram.session_token is not set")

// Config is the root configuration structure shared by both pipeline stages.
type Config struct {
	General  GeneralConfig  `yaml:"general"`
	Telegram TelegramConfig `yaml:"telegram"`
	Broker   BrokerConfig   `yaml:"broker"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
	LogFile     string `yaml:"log_file"`   // optional rotated file, in addition to stdout
}

type TelegramConfig struct {
	BotToken        string `yaml:"bot_token"`
	ChatID          string `yaml:"chat_id"` // numeric id or @channel
	SessionToken    string `yaml:"session_token"`
	ChannelID       int64  `yaml:"channel_id"`
	ChannelUsername string `yaml:"channel_username"`
	APIEndpoint     string `yaml:"api_endpoint"` // format string: bot%s/%s
	PollTimeoutS    int    `yaml:"poll_timeout_s"`
	MaxRetries      int    `yaml:"max_retries"`
}

type BrokerConfig struct {
	Kind  string      `yaml:"kind"` // redis|kafka
	Topic string      `yaml:"topic"`
	Redis RedisConfig `yaml:"redis"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type LedgerConfig struct {
	WSEndpoint       string `yaml:"ws_endpoint"`
	RPCEndpoint      string `yaml:"rpc_endpoint"`
	TimeoutMs        int    `yaml:"timeout_ms"`
	MaxRetries       int    `yaml:"max_retries"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	PingIntervalS    int    `yaml:"ping_interval_s"`
	StaleTimeoutS    int    `yaml:"stale_timeout_s"` // no validated transaction for this long marks the stream degraded
	MaxReconnects    int    `yaml:"max_reconnects"` // failed connects before a one minute cooldown, 0 = unlimited
}

type WatcherConfig struct {
	WatchTTLMinutes int `yaml:"watch_ttl_minutes"` // 0 keeps watches until matched
	SweepIntervalS  int `yaml:"sweep_interval_s"`
}

type ArchiveConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DSN            string `yaml:"dsn"`
	Database       string `yaml:"database"`
	BatchSize      int    `yaml:"batch_size"`
	FlushIntervalS int    `yaml:"flush_interval_s"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoadDotEnv loads KEY=VALUE pairs from a dotenv file into the process
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data and decodes it as YAML.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	// Settings where an explicit 0 is meaningful are preset, so the YAML value
	// replaces the default only when the key is present.
	cfg := &Config{}
	cfg.Telegram.MaxRetries = 3
	cfg.Ledger.MaxRetries = 3
	cfg.Watcher.WatchTTLMinutes = 24 * 60

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "launchwatch-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Telegram.APIEndpoint == "" {
		cfg.Telegram.APIEndpoint = "https://api.telegram.org/bot%s/%s"
	}
	if cfg.Telegram.PollTimeoutS == 0 {
		cfg.Telegram.PollTimeoutS = 60
	}
	if cfg.Broker.Kind == "" {
		cfg.Broker.Kind = "redis"
	}
	if cfg.Broker.Topic == "" {
		cfg.Broker.Topic = "newtokens"
	}
	if cfg.Broker.Redis.Addr == "" {
		cfg.Broker.Redis.Addr = "localhost:6379"
	}
	if len(cfg.Broker.Kafka.Brokers) == 0 {
		cfg.Broker.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Broker.Kafka.GroupID == "" {
		cfg.Broker.Kafka.GroupID = "pool-watcher"
	}
	if cfg.Ledger.WSEndpoint == "" {
		cfg.Ledger.WSEndpoint = "wss://s1.ripple.com/"
	}
	if cfg.Ledger.RPCEndpoint == "" {
		cfg.Ledger.RPCEndpoint = "https://s1.ripple.com:51234/"
	}
	if cfg.Ledger.TimeoutMs == 0 {
		cfg.Ledger.TimeoutMs = 10000
	}
	if cfg.Ledger.ReconnectDelayMs == 0 {
		cfg.Ledger.ReconnectDelayMs = 1000
	}
	if cfg.Ledger.PingIntervalS == 0 {
		cfg.Ledger.PingIntervalS = 30
	}
	if cfg.Ledger.StaleTimeoutS == 0 {
		cfg.Ledger.StaleTimeoutS = 60
	}
	if cfg.Watcher.SweepIntervalS == 0 {
		cfg.Watcher.SweepIntervalS = 60
	}
	if cfg.Archive.Database == "" {
		cfg.Archive.Database = "launchwatch"
	}
	if cfg.Archive.BatchSize == 0 {
		cfg.Archive.BatchSize = 100
	}
	if cfg.Archive.FlushIntervalS == 0 {
		cfg.Archive.FlushIntervalS = 5
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// ValidatePublisher checks the settings the launch publisher cannot run without.
// A missing session credential is reported as ErrMissingSession.
func (c *Config) ValidatePublisher() error {
	if c.Telegram.SessionToken == "" {
		return ErrMissingSession
	}
	if c.Telegram.ChannelID == 0 && c.Telegram.ChannelUsername == "" {
		return fmt.Errorf("telegram: channel_id or channel_username is required")
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	return c.validateBroker()
}

// ValidateWatcher checks the settings the pool watcher cannot run without.
func (c *Config) ValidateWatcher() error {
	if err := c.validateNotify(); err != nil {
		return err
	}
	if err := c.validateBroker(); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Ledger.WSEndpoint, "ws://") && !strings.HasPrefix(c.Ledger.WSEndpoint, "wss://") {
		return fmt.Errorf("ledger: ws_endpoint must be a ws:// or wss:// url, got %q", c.Ledger.WSEndpoint)
	}
	if c.Ledger.RPCEndpoint == "" {
		return fmt.Errorf("ledger: rpc_endpoint is required")
	}
	if c.Ledger.MaxRetries < 0 {
		return fmt.Errorf("ledger: max_retries must not be negative")
	}
	if c.Watcher.WatchTTLMinutes < 0 {
		return fmt.Errorf("watcher: watch_ttl_minutes must not be negative")
	}
	return nil
}

func (c *Config) validateNotify() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram: bot_token is required")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram: chat_id is required")
	}
	if c.Telegram.MaxRetries < 0 {
		return fmt.Errorf("telegram: max_retries must not be negative")
	}
	return nil
}

func (c *Config) validateBroker() error {
	switch c.Broker.Kind {
	case "redis", "kafka":
	default:
		return fmt.Errorf("broker: unknown kind %q (want redis or kafka)", c.Broker.Kind)
	}
	if c.Broker.Topic == "" {
		return fmt.Errorf("broker: topic is required")
	}
	return c.validateArchive()
}

func (c *Config) validateArchive() error {
	if c.Archive.Enabled && c.Archive.DSN == "" {
		return fmt.Errorf("archive: dsn is required when archive is enabled")
	}
	return nil
}
