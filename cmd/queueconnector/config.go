package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "QUEUECONNECTOR_"

// FileConfig is the layout of the connector's YAML configuration file.
type FileConfig struct {
	LogLevel string            `yaml:"log_level"`
	HTTPPort string            `yaml:"http_port"`
	Source   map[string]string `yaml:"source"`
	Sink     map[string]string `yaml:"sink"`
	Runner   RunnerFileConfig  `yaml:"runner"`
}

// RunnerFileConfig holds the scheduler settings.
type RunnerFileConfig struct {
	BackoffIncrement time.Duration `yaml:"backoff_increment"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

func defaultFileConfig() *FileConfig {
	return &FileConfig{
		LogLevel: "info",
		HTTPPort: ":8080",
		Source:   map[string]string{},
		Sink:     map[string]string{},
		Runner: RunnerFileConfig{
			BackoffIncrement: time.Second,
			MaxBackoff:       5 * time.Second,
			ShutdownTimeout:  15 * time.Second,
		},
	}
}

// loadFileConfig reads the YAML file at path, if any, and overlays environment
// variables from environ:
//
//	QUEUECONNECTOR_SOURCE_<KEY>  source key (lowercased)
//	QUEUECONNECTOR_SINK_<KEY>    sink key (lowercased)
//	QUEUECONNECTOR_LOG_LEVEL
//	QUEUECONNECTOR_HTTP_PORT
func loadFileConfig(path string, environ []string) (*FileConfig, error) {
	cfg := defaultFileConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if cfg.Source == nil {
			cfg.Source = map[string]string{}
		}
		if cfg.Sink == nil {
			cfg.Sink = map[string]string{}
		}
	}
	applyEnv(cfg, environ)
	return cfg, nil
}

func applyEnv(cfg *FileConfig, environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) {
			continue
		}
		name = strings.TrimPrefix(name, envPrefix)
		switch {
		case name == "LOG_LEVEL":
			cfg.LogLevel = value
		case name == "HTTP_PORT":
			cfg.HTTPPort = value
		case strings.HasPrefix(name, "SOURCE_"):
			cfg.Source[strings.ToLower(strings.TrimPrefix(name, "SOURCE_"))] = value
		case strings.HasPrefix(name, "SINK_"):
			cfg.Sink[strings.ToLower(strings.TrimPrefix(name, "SINK_"))] = value
		}
	}
}
