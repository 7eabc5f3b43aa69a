// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultHubURL is Google's public WebSub hub used by YouTube feeds.
const DefaultHubURL = "https://pubsubhubbub.appspot.com/subscribe"

var defaultFilterKeywords = []string{"#short", "shorts", "trailer", "clip", "reaction"}

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	HostURL          string
	HubURL           string
	YouTubeAPIKey    string
	DatabasePath     string
	RedisURL         string
	ListenAddr       string
	LogLevel         string

	WorkerConcurrency  int
	FilterKeywords     []string
	MinDurationSeconds int
	MaxDurationSeconds int
	RequireHD          bool

	RenewalInterval  time.Duration
	RenewalLookahead time.Duration
	Retention        time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	hostURL := strings.TrimSuffix(os.Getenv("HOST_URL"), "/")
	if hostURL == "" {
		return nil, fmt.Errorf("HOST_URL is required (public callback base, e.g. https://example.com)")
	}

	cfg := &Config{
		TelegramBotToken: token,
		HostURL:          hostURL,
		HubURL:           envOrDefault("HUB_URL", DefaultHubURL),
		YouTubeAPIKey:    os.Getenv("YOUTUBE_API_KEY"),
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/relay.db"),
		RedisURL:         os.Getenv("REDIS_URL"),
		ListenAddr:       envOrDefault("LISTEN_ADDR", ":3000"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		FilterKeywords:   defaultFilterKeywords,
		RequireHD:        false,
	}

	var err error
	if cfg.WorkerConcurrency, err = envInt("WORKER_CONCURRENCY", 5); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if cfg.MinDurationSeconds, err = envInt("MIN_DURATION_SECONDS", 210); err != nil {
		return nil, err
	}
	if cfg.MaxDurationSeconds, err = envInt("MAX_DURATION_SECONDS", 0); err != nil {
		return nil, err
	}
	if cfg.MaxDurationSeconds != 0 && cfg.MaxDurationSeconds <= cfg.MinDurationSeconds {
		return nil, fmt.Errorf("MAX_DURATION_SECONDS must exceed MIN_DURATION_SECONDS")
	}

	if raw := os.Getenv("FILTER_KEYWORDS"); raw != "" {
		var keywords []string
		for _, s := range strings.Split(raw, ",") {
			s = strings.ToLower(strings.TrimSpace(s))
			if s == "" {
				continue
			}
			keywords = append(keywords, s)
		}
		cfg.FilterKeywords = keywords
	}

	if raw := os.Getenv("REQUIRE_HD"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUIRE_HD %q: %w", raw, err)
		}
		cfg.RequireHD = v
	}

	renewalHours, err := envInt("RENEWAL_INTERVAL_HOURS", 6)
	if err != nil {
		return nil, err
	}
	lookaheadHours, err := envInt("RENEWAL_LOOKAHEAD_HOURS", 48)
	if err != nil {
		return nil, err
	}
	retentionDays, err := envInt("RETENTION_DAYS", 7)
	if err != nil {
		return nil, err
	}
	cfg.RenewalInterval = time.Duration(renewalHours) * time.Hour
	cfg.RenewalLookahead = time.Duration(lookaheadHours) * time.Hour
	cfg.Retention = time.Duration(retentionDays) * 24 * time.Hour

	return cfg, nil
}

// CallbackURL is the webhook endpoint registered with the hub.
func (c *Config) CallbackURL() string {
	return c.HostURL + "/webhook"
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
