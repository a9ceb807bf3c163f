package infra

import (
	"errors"
	"fmt"
	"os"
	"time"

	"exchange_go/internal/domain"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. EXCHANGE_SERVER_ADDR.
const EnvPrefix = "EXCHANGE_"

// Config는 애플리케이션의 모든 설정을 담습니다.
// YAML 파일을 읽은 뒤 .env 와 환경 변수로 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name" env:"NAME"`
		Version string `yaml:"version" env:"VERSION"`
	} `yaml:"app" envPrefix:"APP_"`

	Server struct {
		Addr            string `yaml:"addr" env:"ADDR"`
		ShutdownTimeout string `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	} `yaml:"server" envPrefix:"SERVER_"`

	Engine struct {
		MatchInterval string `yaml:"match_interval" env:"MATCH_INTERVAL"`
		InboxSize     int    `yaml:"inbox_size" env:"INBOX_SIZE"`
		DumpPath      string `yaml:"dump_path" env:"DUMP_PATH"`
	} `yaml:"engine" envPrefix:"ENGINE_"`

	Storage struct {
		DSN string `yaml:"dsn" env:"DSN"`
	} `yaml:"storage" envPrefix:"STORAGE_"`

	Feed struct {
		PingInterval string `yaml:"ping_interval" env:"PING_INTERVAL"`
		SendBuffer   int    `yaml:"send_buffer" env:"SEND_BUFFER"`
	} `yaml:"feed" envPrefix:"FEED_"`

	// Reserves seeds the pool reserves at startup, token -> amount.
	Reserves map[string]decimal.Decimal `yaml:"reserves"`

	Logging struct {
		Level string `yaml:"level" env:"LEVEL"`
		Dir   string `yaml:"dir" env:"DIR"`
	} `yaml:"logging" envPrefix:"LOG_"`

	// parsed by Validate
	matchInterval   time.Duration
	shutdownTimeout time.Duration
	pingInterval    time.Duration
}

// DefaultConfig returns the settings used when no file overrides them.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "exchange"
	cfg.App.Version = "dev"
	cfg.Server.Addr = ":8080"
	cfg.Server.ShutdownTimeout = "10s"
	cfg.Engine.MatchInterval = "1s"
	cfg.Engine.InboxSize = 1024
	cfg.Engine.DumpPath = "panic_dump.json"
	cfg.Storage.DSN = ":memory:"
	cfg.Feed.PingInterval = "30s"
	cfg.Feed.SendBuffer = 64
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다. path 가 비어 있으면 기본값에서 시작합니다.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// overrideWithEnv loads .env if present, then applies EXCHANGE_* variables.
// Unset variables leave the file values alone.
func overrideWithEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// Validate checks configuration validity and parses duration strings.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return &domain.ConfigError{Field: "server.addr", Err: errors.New("must not be empty")}
	}

	var err error
	if c.shutdownTimeout, err = parsePositiveDuration("server.shutdown_timeout", c.Server.ShutdownTimeout); err != nil {
		return err
	}
	if c.matchInterval, err = parsePositiveDuration("engine.match_interval", c.Engine.MatchInterval); err != nil {
		return err
	}
	if c.pingInterval, err = parsePositiveDuration("feed.ping_interval", c.Feed.PingInterval); err != nil {
		return err
	}

	if c.Engine.InboxSize <= 0 {
		return &domain.ConfigError{Field: "engine.inbox_size", Err: errors.New("must be positive")}
	}
	if c.Feed.SendBuffer <= 0 {
		return &domain.ConfigError{Field: "feed.send_buffer", Err: errors.New("must be positive")}
	}
	if c.Storage.DSN == "" {
		return &domain.ConfigError{Field: "storage.dsn", Err: errors.New("must not be empty")}
	}

	for token, amount := range c.Reserves {
		if token == "" || !amount.IsPositive() {
			return &domain.ConfigError{
				Field: "reserves." + token,
				Err:   fmt.Errorf("%w: %s", domain.ErrInvalidAmount, amount),
			}
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}

	return nil
}

func parsePositiveDuration(field, s string) (time.Duration, error) {
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, &domain.ConfigError{Field: field, Err: err}
	}
	if d <= 0 {
		return 0, &domain.ConfigError{Field: field, Err: errors.New("must be positive")}
	}
	return d, nil
}

// MatchInterval is the period of the matching loop. Valid after Validate.
func (c *Config) MatchInterval() time.Duration { return c.matchInterval }

// ShutdownTimeout bounds graceful HTTP shutdown. Valid after Validate.
func (c *Config) ShutdownTimeout() time.Duration { return c.shutdownTimeout }

// PingInterval is the websocket keepalive period. Valid after Validate.
func (c *Config) PingInterval() time.Duration { return c.pingInterval }
