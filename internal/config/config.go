// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the mediafetch configuration.
//
// Precedence: defaults < YAML file < MEDIAFETCH_* environment.
package config

import (
	"time"

	"github.com/ManuGH/mediafetch/internal/progress"
	"github.com/ManuGH/mediafetch/internal/telemetry"
	"github.com/ManuGH/mediafetch/internal/transcode"
	"github.com/ManuGH/mediafetch/internal/ytdlp"
)

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	WorkDir    string `yaml:"workDir"`
	OutboxDir  string `yaml:"outboxDir"`
	LogLevel   string `yaml:"logLevel"`
	LogService string `yaml:"logService"`

	Downloader DownloaderConfig   `yaml:"downloader"`
	Transcoder transcode.Settings `yaml:"transcoder"`
	Delivery   DeliveryConfig     `yaml:"delivery"`
	Progress   ProgressConfig     `yaml:"progress"`
	Sources    SourcesConfig      `yaml:"sources"`
	Jobs       JobsConfig         `yaml:"jobs"`
	API        APIConfig          `yaml:"api"`
	Telemetry  telemetry.Config   `yaml:"telemetry"`

	// Version is injected at build time, never read from file.
	Version string `yaml:"-"`
}

// DownloaderConfig configures the yt-dlp invocation and retry loop.
type DownloaderConfig struct {
	Bin            string        `yaml:"bin"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	AttemptTimeout time.Duration `yaml:"attemptTimeout"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	SearchPrefix   string        `yaml:"searchPrefix"`
}

// DeliveryConfig holds the size ceiling of the delivery channel.
type DeliveryConfig struct {
	MaxBytes int64 `yaml:"maxBytes"`
}

// ProgressConfig configures the progress throttle.
type ProgressConfig struct {
	Throttle time.Duration `yaml:"throttle"`
}

// SourcesConfig maps source domains to cookie jars and identity headers.
type SourcesConfig struct {
	Cookies    []ytdlp.CookieRule   `yaml:"cookies"`
	Identities []ytdlp.IdentityRule `yaml:"identities"`
}

// JobsConfig configures the dispatcher.
type JobsConfig struct {
	MaxConcurrent int           `yaml:"maxConcurrent"`
	Retention     time.Duration `yaml:"retention"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	ListenAddr      string        `yaml:"listenAddr"`
	Token           string        `yaml:"token"`
	SubmitRateLimit int           `yaml:"submitRateLimit"` // requests per window per IP
	SubmitWindow    time.Duration `yaml:"submitWindow"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	TrustedProxies  []string      `yaml:"trustedProxies"` // CIDRs allowed to set X-Forwarded-For
}

// Defaults returns the documented default configuration.
func Defaults() AppConfig {
	return AppConfig{
		WorkDir:    "./temp",
		OutboxDir:  "./outbox",
		LogLevel:   "info",
		LogService: "mediafetch",
		Downloader: DownloaderConfig{
			Bin:            ytdlp.DefaultBin,
			MaxAttempts:    3,
			AttemptTimeout: 300 * time.Second,
			PollInterval:   500 * time.Millisecond,
			SearchPrefix:   ytdlp.DefaultSearchPrefix,
		},
		Transcoder: transcode.DefaultSettings(),
		Delivery:   DeliveryConfig{MaxBytes: transcode.DefaultMaxBytes},
		Progress:   ProgressConfig{Throttle: progress.DefaultThrottle},
		Sources: SourcesConfig{
			Cookies:    ytdlp.DefaultCookies(),
			Identities: ytdlp.DefaultIdentities(),
		},
		Jobs: JobsConfig{
			MaxConcurrent: 4,
			Retention:     time.Hour,
		},
		API: APIConfig{
			ListenAddr:      ":8088",
			SubmitRateLimit: 30,
			SubmitWindow:    time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Telemetry: telemetry.Config{
			ServiceName:  "mediafetch",
			Environment:  "production",
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
