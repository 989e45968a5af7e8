package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

type Config struct {
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	UpstreamBaseURL  string        `envconfig:"UPSTREAM_BASE_URL" required:"true"`
	UpstreamAPIToken string        `envconfig:"UPSTREAM_API_TOKEN"`
	UpstreamTimeout  time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"10s"`

	CDNBaseURL      string `envconfig:"DDRAGON_CDN_URL" default:"https://ddragon.leagueoflegends.com/cdn"`
	PlaceholderIcon string `envconfig:"PLACEHOLDER_ICON" default:"/placeholder.svg"`

	SessionTTL           time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	TransformConcurrency int           `envconfig:"TRANSFORM_CONCURRENCY" default:"8"`
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.UpstreamBaseURL == "" {
		return nil, fmt.Errorf("UPSTREAM_BASE_URL is required")
	}

	if cfg.TransformConcurrency < 1 {
		cfg.TransformConcurrency = 1
	}

	logger.Info().
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Str("upstream_base_url", cfg.UpstreamBaseURL).
		Dur("upstream_timeout", cfg.UpstreamTimeout).
		Str("cdn_base_url", cfg.CDNBaseURL).
		Dur("session_ttl", cfg.SessionTTL).
		Msg("configuration loaded")

	return &cfg, nil
}
