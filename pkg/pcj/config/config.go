// Package config loads the pcj.* configuration keys enumerated in the
// specification through viper, with sane defaults so a node can start
// without any configuration at all.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	KeyNetworkChunkSize       = "pcj.network.chunk.size"
	KeyNetworkWorkersCount    = "pcj.network.workers.count"
	KeyNetworkShutdownTimeout = "pcj.network.shutdown.timeout"
	KeyAliveTimeout           = "pcj.alive.timeout"
	KeyDiagnosticsAddr        = "pcj.diagnostics.addr"
	KeyLogLevel               = "pcj.log.level"
)

// Config holds the resolved runtime configuration. It is a plain
// snapshot taken once at bootstrap; nothing in the core reads viper
// directly afterwards.
type Config struct {
	NetworkChunkSize       int
	NetworkWorkersCount    int
	NetworkShutdownTimeout time.Duration
	AliveTimeout           time.Duration
	DiagnosticsAddr        string
	LogLevel               string
}

// Load builds a Config from defaults, an optional file, and the
// PCJ_-prefixed environment. filePath may be empty.
func Load(filePath string, defaultWorkers int) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PCJ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyNetworkChunkSize, 16384)
	v.SetDefault(KeyNetworkWorkersCount, defaultWorkers)
	v.SetDefault(KeyNetworkShutdownTimeout, 10*time.Second)
	v.SetDefault(KeyAliveTimeout, 0)
	v.SetDefault(KeyDiagnosticsAddr, "")
	v.SetDefault(KeyLogLevel, "info")

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return &Config{
		NetworkChunkSize:       v.GetInt(KeyNetworkChunkSize),
		NetworkWorkersCount:    v.GetInt(KeyNetworkWorkersCount),
		NetworkShutdownTimeout: v.GetDuration(KeyNetworkShutdownTimeout),
		AliveTimeout:           v.GetDuration(KeyAliveTimeout),
		DiagnosticsAddr:        v.GetString(KeyDiagnosticsAddr),
		LogLevel:               v.GetString(KeyLogLevel),
	}, nil
}

// Default returns the configuration that would result from Load("", workers)
// without touching the environment; used by tests and the in-process
// testing harness.
func Default(workers int) *Config {
	return &Config{
		NetworkChunkSize:       16384,
		NetworkWorkersCount:    workers,
		NetworkShutdownTimeout: 10 * time.Second,
		AliveTimeout:           0,
		DiagnosticsAddr:        "",
		LogLevel:               "info",
	}
}
