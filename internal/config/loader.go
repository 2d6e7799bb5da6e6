// Package config loads the mastermindcached daemon's YAML configuration
// file and translates it into domain.Options. This is the daemon's
// ambient concern only: the core engine (internal/facade, the root
// mastermind package) never parses a config file itself, it only consumes
// the domain.Options this package produces.
//
// Grounded on wibus-wee-mcpv/internal/infra/catalog/loader.go: a
// viper.Viper seeded with SetDefault calls, a mapstructure-tagged raw
// struct decoded from it (the SetDefault calls supply the defaults), then a
// normalize step that collects validation errors instead of failing on the
// first one.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mastermindcache/internal/domain"
)

func newDaemonViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDaemonDefaults(v)
	return v
}

func setDaemonDefaults(v *viper.Viper) {
	v.SetDefault("updatePeriodSeconds", int(domain.DefaultUpdatePeriod/time.Second))
	v.SetDefault("enqueueTimeoutMillis", int(domain.DefaultEnqueueTimeout/time.Millisecond))
	v.SetDefault("reconnectTimeoutMillis", int(domain.DefaultReconnectTimeout/time.Millisecond))
	v.SetDefault("workerName", domain.DefaultWorkerName)
	v.SetDefault("cachePath", "")
	v.SetDefault("warningTimeSeconds", 0)
	v.SetDefault("expireTimeSeconds", 0)
	v.SetDefault("autoStart", true)
}

type rawConfig struct {
	Remotes                string `mapstructure:"remotes"`
	UpdatePeriodSeconds    int    `mapstructure:"updatePeriodSeconds"`
	CachePath              string `mapstructure:"cachePath"`
	WarningTimeSeconds     int    `mapstructure:"warningTimeSeconds"`
	ExpireTimeSeconds      int    `mapstructure:"expireTimeSeconds"`
	WorkerName             string `mapstructure:"workerName"`
	EnqueueTimeoutMillis   int    `mapstructure:"enqueueTimeoutMillis"`
	ReconnectTimeoutMillis int    `mapstructure:"reconnectTimeoutMillis"`
	AutoStart              bool   `mapstructure:"autoStart"`
	MetricsListenAddress   string `mapstructure:"metricsListenAddress"`
}

// DaemonConfig holds the daemon-only settings that do not belong on
// domain.Options (it is an ambient concern of cmd/mastermindcached, not a
// core construction parameter).
type DaemonConfig struct {
	Options              domain.Options
	MetricsListenAddress string
}

// Load reads the YAML file at path and translates it into a DaemonConfig.
// An empty path is an error: the daemon always needs a remotes list.
func Load(path string) (DaemonConfig, error) {
	if path == "" {
		return DaemonConfig{}, errors.New("config path is required")
	}

	v := newDaemonViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return DaemonConfig{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return DaemonConfig{}, fmt.Errorf("decode config: %w", err)
	}

	return normalize(raw)
}

func normalize(raw rawConfig) (DaemonConfig, error) {
	var errs []string

	if strings.TrimSpace(raw.Remotes) == "" {
		errs = append(errs, "remotes is required")
	}

	if raw.UpdatePeriodSeconds <= 0 {
		errs = append(errs, "updatePeriodSeconds must be > 0")
	}
	if raw.WarningTimeSeconds < 0 {
		errs = append(errs, "warningTimeSeconds must be >= 0")
	}
	if raw.ExpireTimeSeconds < 0 {
		errs = append(errs, "expireTimeSeconds must be >= 0")
	}
	if raw.WarningTimeSeconds > 0 && raw.ExpireTimeSeconds > 0 && raw.ExpireTimeSeconds < raw.WarningTimeSeconds {
		errs = append(errs, "expireTimeSeconds must be >= warningTimeSeconds")
	}
	if raw.EnqueueTimeoutMillis <= 0 {
		errs = append(errs, "enqueueTimeoutMillis must be > 0")
	}
	if raw.ReconnectTimeoutMillis <= 0 {
		errs = append(errs, "reconnectTimeoutMillis must be > 0")
	}

	if len(errs) > 0 {
		return DaemonConfig{}, errors.New(strings.Join(errs, "; "))
	}

	opts := domain.Options{
		Remotes:          raw.Remotes,
		UpdatePeriod:     time.Duration(raw.UpdatePeriodSeconds) * time.Second,
		CachePath:        raw.CachePath,
		WarningTime:      time.Duration(raw.WarningTimeSeconds) * time.Second,
		ExpireTime:       time.Duration(raw.ExpireTimeSeconds) * time.Second,
		WorkerName:       raw.WorkerName,
		EnqueueTimeout:   time.Duration(raw.EnqueueTimeoutMillis) * time.Millisecond,
		ReconnectTimeout: time.Duration(raw.ReconnectTimeoutMillis) * time.Millisecond,
		AutoStart:        raw.AutoStart,
	}

	return DaemonConfig{Options: opts, MetricsListenAddress: raw.MetricsListenAddress}, nil
}
