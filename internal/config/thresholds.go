// Package config provides configuration management for the stillness session service.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// applyThresholdOverlay loads abuse threshold overrides from YAML files based
// on the environment. It first loads defaults.yaml, then overlays
// environment-specific configuration (local.yaml, nonprod.yaml, or prod.yaml).
// The files are optional; absent files leave the envconfig values untouched.
func (c *Config) applyThresholdOverlay() error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("defaults")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}

	var envConfigFile string
	switch c.Environment.Environment {
	case Local:
		envConfigFile = "local"
	case NonProd:
		envConfigFile = "nonprod"
	case Prod:
		envConfigFile = "prod"
	default:
		envConfigFile = "local"
	}

	envViper := viper.New()
	envViper.SetConfigType("yaml")
	envViper.SetConfigName(envConfigFile)
	envViper.AddConfigPath("./configs")
	envViper.AddConfigPath("../configs")
	envViper.AddConfigPath("../../configs")

	if err := envViper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	if err := v.MergeConfigMap(envViper.AllSettings()); err != nil {
		return err
	}

	c.overlayLimits(v)
	return nil
}

// overlayLimits copies any threshold keys present in the merged YAML settings
// onto the Limits section. Only keys that are set in the files override the
// environment-derived values.
func (c *Config) overlayLimits(v *viper.Viper) {
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}

	setInt("limits.requests_per_minute", &c.Limits.RequestsPerMinute)
	setInt("limits.sessions_per_day", &c.Limits.SessionsPerDay)
	setInt("limits.rapid_fire_attempts", &c.Limits.RapidFireAttempts)
	setInt("limits.violation_warn_count", &c.Limits.ViolationWarnCount)
	setInt("limits.violation_block_count", &c.Limits.ViolationBlockCount)
	setInt("limits.scraping_attempts", &c.Limits.ScrapingAttempts)
	setInt("limits.probing_kinds", &c.Limits.ProbingKinds)
	setDuration("limits.block_duration", &c.Limits.BlockDuration)
	setDuration("limits.violation_window", &c.Limits.ViolationWindow)
	setDuration("limits.rate_window", &c.Limits.RateWindow)

	if v.IsSet("limits.daily_limit_per_source") {
		c.Limits.DailyLimitPerSource = v.GetBool("limits.daily_limit_per_source")
	}
}
