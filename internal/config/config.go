package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	AuthSecret string        `mapstructure:"auth_secret"`
	InstanceID string        `mapstructure:"instance_id"`

	Redis    Redis    `mapstructure:"redis"`
	Database Database `mapstructure:"database"`
	SFU      SFU      `mapstructure:"sfu"`
	Limits   Limits   `mapstructure:"limits"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Database struct {
	DSN string `mapstructure:"dsn"`
}

type SFU struct {
	Enabled     bool     `mapstructure:"enabled"`
	Workers     int      `mapstructure:"workers"`
	STUNServers []string `mapstructure:"stun_servers"`
}

// Limits hold the per-event rate-limit windows of the messaging subsystem.
type Limits struct {
	ChatMax         int           `mapstructure:"chat_max"`
	ChatWindow      time.Duration `mapstructure:"chat_window"`
	TelemetryMax    int           `mapstructure:"telemetry_max"`
	TelemetryWindow time.Duration `mapstructure:"telemetry_window"`
	QueueCap        int           `mapstructure:"queue_cap"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("auth_secret", "")
	v.SetDefault("instance_id", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.dsn", "")

	v.SetDefault("sfu.enabled", true)
	v.SetDefault("sfu.workers", 4)
	v.SetDefault("sfu.stun_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("limits.chat_max", 10)
	v.SetDefault("limits.chat_window", "60s")
	v.SetDefault("limits.telemetry_max", 1)
	v.SetDefault("limits.telemetry_window", "5s")
	v.SetDefault("limits.queue_cap", 100)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
