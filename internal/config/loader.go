// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvWorkDir          = "MEDIAFETCH_WORK_DIR"
	EnvOutboxDir        = "MEDIAFETCH_OUTBOX_DIR"
	EnvYtdlpBin         = "MEDIAFETCH_YTDLP_BIN"
	EnvMaxAttempts      = "MEDIAFETCH_MAX_ATTEMPTS"
	EnvAttemptTimeout   = "MEDIAFETCH_ATTEMPT_TIMEOUT"
	EnvPollInterval     = "MEDIAFETCH_POLL_INTERVAL"
	EnvSearchPrefix     = "MEDIAFETCH_SEARCH_PREFIX"
	EnvFfmpegBin        = "MEDIAFETCH_FFMPEG_BIN"
	EnvTranscodeTimeout = "MEDIAFETCH_TRANSCODE_TIMEOUT"
	EnvMaxBytes         = "MEDIAFETCH_MAX_BYTES"
	EnvProgressThrottle = "MEDIAFETCH_PROGRESS_THROTTLE"
	EnvMaxConcurrent    = "MEDIAFETCH_MAX_CONCURRENT"
	EnvListenAddr       = "MEDIAFETCH_LISTEN_ADDR"
	EnvAPIToken         = "MEDIAFETCH_API_TOKEN"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogService       = "LOG_SERVICE"
	EnvOTelEnabled      = "MEDIAFETCH_OTEL_ENABLED"
	EnvOTelExporter     = "MEDIAFETCH_OTEL_EXPORTER"
	EnvOTelEndpoint     = "MEDIAFETCH_OTEL_ENDPOINT"
	EnvOTelSampling     = "MEDIAFETCH_OTEL_SAMPLING_RATE"
)

// Loader builds an AppConfig from defaults, an optional file and the environment.
type Loader struct {
	path     string
	version  string
	consumed []string
}

// NewLoader creates a loader. An empty path means environment-only.
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version}
}

// Path returns the config file path.
func (l *Loader) Path() string { return l.path }

// Load returns the merged configuration. It does not validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	if l.path != "" {
		if err := loadFile(l.path, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("config file %s: %w", l.path, err)
		}
	}
	applyEnv(&cfg)
	l.consumed = consumedEnv()
	cfg.Version = l.version
	cfg.Telemetry.ServiceVersion = l.version
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.LogService
	}
	return cfg, nil
}

// ConsumedEnv lists the environment variables that overrode a value during
// the last Load.
func (l *Loader) ConsumedEnv() []string {
	return slices.Clone(l.consumed)
}

var envKeys = []string{
	EnvWorkDir, EnvOutboxDir, EnvYtdlpBin, EnvMaxAttempts, EnvAttemptTimeout,
	EnvPollInterval, EnvSearchPrefix, EnvFfmpegBin, EnvTranscodeTimeout, EnvMaxBytes,
	EnvProgressThrottle, EnvMaxConcurrent, EnvListenAddr, EnvAPIToken, EnvLogLevel,
	EnvLogService, EnvOTelEnabled, EnvOTelExporter, EnvOTelEndpoint, EnvOTelSampling,
}

func consumedEnv() []string {
	var keys []string
	for _, k := range envKeys {
		if _, ok := lookup(k); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// loadFile decodes path over cfg with strict parsing: unknown keys and
// multiple documents are rejected.
func loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	cfg.WorkDir = ParseString(EnvWorkDir, cfg.WorkDir)
	cfg.OutboxDir = ParseString(EnvOutboxDir, cfg.OutboxDir)
	cfg.LogLevel = ParseString(EnvLogLevel, cfg.LogLevel)
	cfg.LogService = ParseString(EnvLogService, cfg.LogService)

	cfg.Downloader.Bin = ParseString(EnvYtdlpBin, cfg.Downloader.Bin)
	cfg.Downloader.MaxAttempts = ParseInt(EnvMaxAttempts, cfg.Downloader.MaxAttempts)
	cfg.Downloader.AttemptTimeout = ParseDuration(EnvAttemptTimeout, cfg.Downloader.AttemptTimeout)
	cfg.Downloader.PollInterval = ParseDuration(EnvPollInterval, cfg.Downloader.PollInterval)
	cfg.Downloader.SearchPrefix = ParseString(EnvSearchPrefix, cfg.Downloader.SearchPrefix)

	cfg.Transcoder.Bin = ParseString(EnvFfmpegBin, cfg.Transcoder.Bin)
	cfg.Transcoder.Timeout = ParseDuration(EnvTranscodeTimeout, cfg.Transcoder.Timeout)
	cfg.Delivery.MaxBytes = ParseInt64(EnvMaxBytes, cfg.Delivery.MaxBytes)
	cfg.Progress.Throttle = ParseDuration(EnvProgressThrottle, cfg.Progress.Throttle)

	cfg.Jobs.MaxConcurrent = ParseInt(EnvMaxConcurrent, cfg.Jobs.MaxConcurrent)
	cfg.API.ListenAddr = ParseString(EnvListenAddr, cfg.API.ListenAddr)
	cfg.API.Token = ParseString(EnvAPIToken, cfg.API.Token)

	cfg.Telemetry.Enabled = ParseBool(EnvOTelEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = ParseString(EnvOTelExporter, cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = ParseString(EnvOTelEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(EnvOTelSampling, cfg.Telemetry.SamplingRate)
}
