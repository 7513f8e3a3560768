package config

import (
	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
)

// Validate fails fast on required keys. Adapter credentials (SMTP, Notion) are
// optional: the runners that need them refuse work at call time instead.
func (c *Config) Validate() error {
	if c.Remote.URL == "" {
		return lferrors.ConfigRequired("LEADFORGE_REMOTE_URL")
	}
	if c.Remote.ServiceKey == "" {
		return lferrors.ConfigRequired("LEADFORGE_REMOTE_SERVICE_KEY")
	}
	if c.AI.APIKey == "" {
		return lferrors.ConfigRequired("LEADFORGE_AI_API_KEY")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return lferrors.New(lferrors.CategoryConfig, lferrors.SeverityFatal, "server port out of range").
			WithContext("port", c.Server.Port)
	}
	if c.Server.AdminPort == c.Server.Port {
		return lferrors.New(lferrors.CategoryConfig, lferrors.SeverityFatal, "admin port must differ from API port")
	}
	if c.Queue.HighWaterMark < 1 {
		return lferrors.New(lferrors.CategoryConfig, lferrors.SeverityFatal, "queue high-water mark must be positive")
	}
	if c.Events.Enabled && c.Events.NATSURL == "" {
		return lferrors.ConfigRequired("LEADFORGE_NATS_URL")
	}
	return nil
}

// Reloadable is the subset of configuration that the file watcher may swap at
// runtime. Everything else requires a restart.
type Reloadable struct {
	HighWaterMark   int
	AIMaxConcurrent int
	AIRatePerSecond float64
}

// ReloadableFrom extracts the hot-swappable settings.
func ReloadableFrom(c *Config) Reloadable {
	return Reloadable{
		HighWaterMark:   c.Queue.HighWaterMark,
		AIMaxConcurrent: c.AI.MaxConcurrent,
		AIRatePerSecond: c.AI.RatePerSecond,
	}
}
