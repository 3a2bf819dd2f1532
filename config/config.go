package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "./config/config.yaml"

type HTTP struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	AllowedOrigins []string      `yaml:"allowedOrigins"`
}

type GRPC struct {
	Addr          string        `yaml:"addr"` // пусто: gRPC выключен
	DeadlineGuard time.Duration `yaml:"deadlineGuard"`
	Reflection    bool          `yaml:"reflection"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // roomchat
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Store struct {
	Driver       string        `yaml:"driver"` // postgres|memory
	HistoryLimit int           `yaml:"historyLimit"`
	Timeout      time.Duration `yaml:"timeout"`
}

type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"maxConns"`
	MinConns        int32         `yaml:"minConns"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime"`
	MigrateOnStart  bool          `yaml:"migrateOnStart"`
}

type Auth struct {
	PublicKeyPath string        `yaml:"publicKeyPath"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
}

type WS struct {
	PingPeriod time.Duration `yaml:"pingPeriod"`
	WriteWait  time.Duration `yaml:"writeWait"`
	ReadLimit  int64         `yaml:"readLimit"`
	SendBuffer int           `yaml:"sendBuffer"`
}

type RateLimit struct {
	RedisAddr     string        `yaml:"redisAddr"` // пусто: лимитер выключен
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	Limit         int           `yaml:"limit"`
	Window        time.Duration `yaml:"window"`
}

type Chat struct {
	MaxMessageLength int       `yaml:"maxMessageLength"`
	RateLimit        RateLimit `yaml:"rateLimit"`
}

type Rooms struct {
	SecretCost int `yaml:"secretCost"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Store    Store    `yaml:"store"`
	Postgres Postgres `yaml:"postgres"`
	Auth     Auth     `yaml:"auth"`
	WS       WS       `yaml:"ws"`
	Chat     Chat     `yaml:"chat"`
	Rooms    Rooms    `yaml:"rooms"`

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// ResolvePath: явный путь, затем CONFIG_PATH, затем DefaultPath.
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(ResolvePath(path))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Auth.PublicKeyPath == "" {
		return errors.New("auth.publicKeyPath is required")
	}

	switch c.Store.Driver {
	case "":
		c.Store.Driver = "postgres"
	case "postgres", "memory":
	default:
		return fmt.Errorf("store.driver %q: want postgres or memory", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}

	rl := &c.Chat.RateLimit
	if rl.RedisAddr != "" {
		if rl.Limit <= 0 {
			rl.Limit = 10
		}
		if rl.Window <= 0 {
			rl.Window = 10 * time.Second
		}
	}

	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "roomchat"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.Logging.Backend != "std" && c.Logging.Backend != "zap" {
		return fmt.Errorf("logging.backend %q: want std or zap", c.Logging.Backend)
	}

	setDuration(&c.HTTP.ReadTimeout, 10*time.Second)
	setDuration(&c.HTTP.WriteTimeout, 15*time.Second)
	setDuration(&c.HTTP.IdleTimeout, 60*time.Second)
	setDuration(&c.HTTP.RequestTimeout, 30*time.Second)
	setDuration(&c.GRPC.DeadlineGuard, 10*time.Second)
	setDuration(&c.Store.Timeout, 5*time.Second)
	setDuration(&c.Auth.ClockSkew, 30*time.Second)
	setDuration(&c.ShutdownTimeout, 10*time.Second)

	if c.Store.HistoryLimit <= 0 {
		c.Store.HistoryLimit = 50
	}
	if c.Chat.MaxMessageLength <= 0 {
		c.Chat.MaxMessageLength = 2000
	}
	if c.Rooms.SecretCost <= 0 {
		c.Rooms.SecretCost = 10
	}
	return nil
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}
