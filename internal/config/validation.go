// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"net"
	"time"

	"github.com/ManuGH/mediafetch/internal/validate"
)

// Validate checks cfg and reports every problem at once. Directories are
// created when missing.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.WritableDirectory("workDir", cfg.WorkDir, false)
	v.WritableDirectory("outboxDir", cfg.OutboxDir, false)
	v.LogLevel("logLevel", cfg.LogLevel)

	v.NotEmpty("downloader.bin", cfg.Downloader.Bin)
	v.Range("downloader.maxAttempts", cfg.Downloader.MaxAttempts, 1, 10)
	v.DurationRange("downloader.attemptTimeout", cfg.Downloader.AttemptTimeout, time.Second, 6*time.Hour)
	v.DurationRange("downloader.pollInterval", cfg.Downloader.PollInterval, 10*time.Millisecond, 5*time.Second)
	v.NotEmpty("downloader.searchPrefix", cfg.Downloader.SearchPrefix)

	v.NotEmpty("transcoder.bin", cfg.Transcoder.Bin)
	v.Range("transcoder.maxWidth", cfg.Transcoder.MaxWidth, 16, 7680)
	v.Range("transcoder.crf", cfg.Transcoder.CRF, 0, 51)
	v.OneOf("transcoder.preset", cfg.Transcoder.Preset, []string{
		"ultrafast", "superfast", "veryfast", "faster", "fast", "medium", "slow", "slower", "veryslow",
	})
	v.NotEmpty("transcoder.audioBitrate", cfg.Transcoder.AudioBitrate)
	v.NotEmpty("transcoder.audioOnlyBitrate", cfg.Transcoder.AudioOnlyBitrate)
	v.DurationRange("transcoder.timeout", cfg.Transcoder.Timeout, time.Second, 6*time.Hour)

	v.Positive64("delivery.maxBytes", cfg.Delivery.MaxBytes)
	v.DurationRange("progress.throttle", cfg.Progress.Throttle, 0, time.Minute)

	for i, c := range cfg.Sources.Cookies {
		v.NotEmpty(fmt.Sprintf("sources.cookies[%d].domain", i), c.Domain)
		v.NotEmpty(fmt.Sprintf("sources.cookies[%d].file", i), c.File)
	}
	for i, id := range cfg.Sources.Identities {
		v.NotEmpty(fmt.Sprintf("sources.identities[%d].domain", i), id.Domain)
		if id.Referer != "" {
			v.URL(fmt.Sprintf("sources.identities[%d].referer", i), id.Referer, []string{"http", "https"})
		}
	}

	v.Range("jobs.maxConcurrent", cfg.Jobs.MaxConcurrent, 1, 256)
	v.DurationRange("jobs.retention", cfg.Jobs.Retention, time.Minute, 7*24*time.Hour)

	v.ListenAddr("api.listenAddr", cfg.API.ListenAddr)
	v.Positive("api.submitRateLimit", cfg.API.SubmitRateLimit)
	v.DurationRange("api.submitWindow", cfg.API.SubmitWindow, time.Second, time.Hour)
	for i, p := range cfg.API.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				v.AddError(fmt.Sprintf("api.trustedProxies[%d]", i), "must be an IP or CIDR", p)
			}
		}
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.ExporterType, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
	}

	return v.Err()
}

// CheckBinaries verifies the external tools resolve on PATH.
func CheckBinaries(cfg AppConfig) error {
	v := validate.New()
	v.Executable("downloader.bin", cfg.Downloader.Bin)
	v.Executable("transcoder.bin", cfg.Transcoder.Bin)
	return v.Err()
}
