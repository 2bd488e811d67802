// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mediafetch/internal/config"
	"github.com/ManuGH/mediafetch/internal/log"
	"github.com/ManuGH/mediafetch/internal/validate"
)

// PerformStartupChecks validates the environment before the daemon starts
// accepting jobs.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	for _, dir := range []struct{ name, path string }{
		{"work", cfg.WorkDir},
		{"outbox", cfg.OutboxDir},
	} {
		if err := checkDir(logger, dir.path); err != nil {
			return fmt.Errorf("%s directory check failed: %w", dir.name, err)
		}
	}

	for _, bin := range []string{cfg.Downloader.Bin, cfg.Transcoder.Bin} {
		path, err := exec.LookPath(bin)
		if err != nil {
			return fmt.Errorf("binary not found (%s): %w", bin, err)
		}
		logger.Info().Str("bin", bin).Str(log.FieldPath, path).Msg("✓ External tool available")
	}

	checkAdvisories(logger, cfg)
	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	if err := validate.ProbeWritable(path); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	logger.Info().Str(log.FieldPath, path).Msg("✓ Directory is writable")
	return nil
}

// checkAdvisories logs conditions that degrade behavior without blocking startup.
func checkAdvisories(logger zerolog.Logger, cfg config.AppConfig) {
	for _, c := range cfg.Sources.Cookies {
		if _, err := os.Stat(c.File); err != nil {
			logger.Warn().
				Str("domain", c.Domain).
				Str("file", c.File).
				Msg("cookie file missing; downloads for this domain run without cookies")
		}
	}
	if cfg.API.Token == "" {
		logger.Warn().Msg("API token not configured; job submission is unauthenticated")
	}
	if filepath.Clean(cfg.WorkDir) == filepath.Clean(cfg.OutboxDir) {
		logger.Warn().Msg("work and outbox directories are the same; cleanup may race delivery")
	}
}
