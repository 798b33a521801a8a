package config

import (
	"errors"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchMetering re-reads the metering section whenever the config file at
// path changes and hands valid results to apply. Invalid reloads are logged
// and skipped so the previous policy stays in force.
func WatchMetering(path string, logger *zap.Logger, apply func(MeteringConfig)) error {
	if path == "" {
		return errors.New("config path is required to watch")
	}
	if apply == nil {
		return errors.New("apply callback is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	v, err := newViper(path)
	if err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("metering policy reloaded",
			zap.String("file", e.Name),
			zap.Bool("enabled", cfg.Metering.Enabled),
			zap.Int64("threshold", cfg.Metering.Threshold),
		)
		apply(cfg.Metering)
	})
	v.WatchConfig()
	return nil
}
