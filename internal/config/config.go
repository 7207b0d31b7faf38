// Package config loads the server configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Server struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Engine struct {
	Tick         time.Duration `yaml:"tick"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type Storage struct {
	DataDir string `yaml:"data_dir"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size"`
}

type Archive struct {
	MySQLDSN    string `yaml:"mysql_dsn"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type Notify struct {
	Buffer       int           `yaml:"buffer"`
	Timeout      time.Duration `yaml:"timeout"`
	RabbitURL    string        `yaml:"rabbitmq_url"`
	Exchange     string        `yaml:"exchange"`
	KafkaBrokers string        `yaml:"kafka_brokers"`
	KafkaTopic   string        `yaml:"kafka_topic"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Config is the full server configuration. Empty connection strings disable
// the matching integration.
type Config struct {
	Server  Server  `yaml:"server"`
	Engine  Engine  `yaml:"engine"`
	Storage Storage `yaml:"storage"`
	Redis   Redis   `yaml:"redis"`
	Archive Archive `yaml:"archive"`
	Notify  Notify  `yaml:"notify"`
	Log     Log     `yaml:"log"`
}

func Default() Config {
	return Config{
		Server: Server{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":50051",
			ShutdownTimeout: 5 * time.Second,
		},
		Engine: Engine{
			Tick:         time.Second,
			PollInterval: 500 * time.Millisecond,
		},
		Storage: Storage{DataDir: "data"},
		Redis:   Redis{PoolSize: 100},
		Notify: Notify{
			Buffer:  1024,
			Timeout: 5 * time.Second,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("server.http_addr is required"))
	}
	if c.Engine.Tick <= 0 {
		errs = append(errs, errors.New("engine.tick must be positive"))
	}
	if c.Engine.PollInterval <= 0 {
		errs = append(errs, errors.New("engine.poll_interval must be positive"))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is required"))
	}
	if c.Notify.Buffer <= 0 {
		errs = append(errs, errors.New("notify.buffer must be positive"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
