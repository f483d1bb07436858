package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchStudios reloads studios.yaml on change and calls onUpdate with the
// latest config. The initial load happens before the watch loop starts and
// its error is returned; later reload errors are logged and the previous
// config stays in effect.
func WatchStudios(ctx context.Context, path string, interval time.Duration, logger zerolog.Logger, onUpdate func(*StudiosConfig)) error {
	if path == "" {
		path = "configs/studios.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger = logger.With().Str("component", "studios_watch").Str("path", path).Logger()

	cfg, err := LoadStudiosConfig(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				lastMod = info.ModTime()
				cfg, err := LoadStudiosConfig(path)
				if err != nil {
					logger.Warn().Err(err).Msg("Ignoring invalid studios config")
					continue
				}
				logger.Info().Int("studios", len(cfg.Studios)).Msg("Studios config reloaded")
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}
