// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"inspector-rotation/internal/scheduler"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Backends selectable with store_backend.
const (
	BackendEtcd   = "etcd"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds all configuration for the service.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	StoreBackend      string        `mapstructure:"store_backend" validate:"oneof=etcd sqlite memory"`
	EtcdEndpoints     []string      `mapstructure:"etcd_endpoints" validate:"required_if=StoreBackend etcd"`
	EtcdTimeout       time.Duration `mapstructure:"etcd_timeout" validate:"gt=0"`
	SQLitePath        string        `mapstructure:"sqlite_path" validate:"required_if=StoreBackend sqlite"`
	HttpListenAddr    string        `mapstructure:"http_listen_addr" validate:"required"`
	LeaderElectionTTL time.Duration `mapstructure:"leader_election_ttl" validate:"gte=1s"`
	LockTimeout       time.Duration `mapstructure:"lock_timeout" validate:"gt=0"`
	HistoryLimit      int           `mapstructure:"history_limit" validate:"gte=1"`
	SweepSchedule     string        `mapstructure:"sweep_schedule" validate:"required,cron"`
	TraceStdout       bool          `mapstructure:"trace_stdout"`
}

// Load loads configuration from file and environment variables.
// paths overrides the directories searched for config.yaml.
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetDefault("store_backend", BackendEtcd)
	v.SetDefault("etcd_endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd_timeout", "5s")
	v.SetDefault("sqlite_path", "./data/assign.db")
	v.SetDefault("http_listen_addr", ":8080")
	v.SetDefault("leader_election_ttl", "10s")
	v.SetDefault("lock_timeout", "5s")
	v.SetDefault("history_limit", 50)
	v.SetDefault("sweep_schedule", "*/30 * * * * *")
	v.SetDefault("trace_stdout", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./configs", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// ASSIGN_STORE_BACKEND, ASSIGN_ETCD_ENDPOINTS, ...
	v.SetEnvPrefix("assign")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints, including that the sweep schedule parses.
func (c *Config) Validate() error {
	validate := validator.New()
	_ = validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := scheduler.Parser.Parse(fl.Field().String())
		return err == nil
	})
	return validate.Struct(c)
}
