package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var configEnvVars = []string{
	"TELEGRAM_BOT_TOKEN", "HOST_URL", "HUB_URL", "YOUTUBE_API_KEY",
	"DATABASE_PATH", "REDIS_URL", "LISTEN_ADDR", "LOG_LEVEL",
	"WORKER_CONCURRENCY", "FILTER_KEYWORDS", "MIN_DURATION_SECONDS",
	"MAX_DURATION_SECONDS", "REQUIRE_HD", "RENEWAL_INTERVAL_HOURS",
	"RENEWAL_LOOKAHEAD_HOURS", "RETENTION_DAYS",
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{"HOST_URL": "https://example.com"},
			wantErr: true,
		},
		{
			name:    "missing host url",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok"},
			wantErr: true,
		},
		{
			name: "defaults applied",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"HOST_URL":           "https://example.com/",
			},
			want: &Config{
				TelegramBotToken:   "tok",
				HostURL:            "https://example.com",
				HubURL:             DefaultHubURL,
				DatabasePath:       "./data/relay.db",
				ListenAddr:         ":3000",
				LogLevel:           "info",
				WorkerConcurrency:  5,
				FilterKeywords:     []string{"#short", "shorts", "trailer", "clip", "reaction"},
				MinDurationSeconds: 210,
				RenewalInterval:    6 * time.Hour,
				RenewalLookahead:   48 * time.Hour,
				Retention:          7 * 24 * time.Hour,
			},
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":      "tok",
				"HOST_URL":                "https://relay.example.com",
				"HUB_URL":                 "https://hub.example.com/subscribe",
				"YOUTUBE_API_KEY":         "yt-key",
				"DATABASE_PATH":           "/tmp/relay.db",
				"REDIS_URL":               "redis://localhost:6379/0",
				"LISTEN_ADDR":             ":8080",
				"LOG_LEVEL":               "debug",
				"WORKER_CONCURRENCY":      "2",
				"FILTER_KEYWORDS":         " Shorts , Trailer ,",
				"MIN_DURATION_SECONDS":    "60",
				"MAX_DURATION_SECONDS":    "3600",
				"REQUIRE_HD":              "true",
				"RENEWAL_INTERVAL_HOURS":  "12",
				"RENEWAL_LOOKAHEAD_HOURS": "24",
				"RETENTION_DAYS":          "14",
			},
			want: &Config{
				TelegramBotToken:   "tok",
				HostURL:            "https://relay.example.com",
				HubURL:             "https://hub.example.com/subscribe",
				YouTubeAPIKey:      "yt-key",
				DatabasePath:       "/tmp/relay.db",
				RedisURL:           "redis://localhost:6379/0",
				ListenAddr:         ":8080",
				LogLevel:           "debug",
				WorkerConcurrency:  2,
				FilterKeywords:     []string{"shorts", "trailer"},
				MinDurationSeconds: 60,
				MaxDurationSeconds: 3600,
				RequireHD:          true,
				RenewalInterval:    12 * time.Hour,
				RenewalLookahead:   24 * time.Hour,
				Retention:          14 * 24 * time.Hour,
			},
		},
		{
			name: "invalid concurrency",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"HOST_URL":           "https://example.com",
				"WORKER_CONCURRENCY": "zero",
			},
			wantErr: true,
		},
		{
			name: "max duration below min",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN":   "tok",
				"HOST_URL":             "https://example.com",
				"MIN_DURATION_SECONDS": "300",
				"MAX_DURATION_SECONDS": "200",
			},
			wantErr: true,
		},
		{
			name: "invalid require_hd",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"HOST_URL":           "https://example.com",
				"REQUIRE_HD":         "sometimes",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range configEnvVars {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCallbackURL(t *testing.T) {
	cfg := &Config{HostURL: "https://relay.example.com"}
	if got, want := cfg.CallbackURL(), "https://relay.example.com/webhook"; got != want {
		t.Errorf("CallbackURL() = %q, want %q", got, want)
	}
}
