package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads YAML file and parses it into Config struct
func LoadConfig(filepath string) (*Config, error) {
	// Read file
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&config)

	if len(config.Routes) == 0 {
		return nil, fmt.Errorf("no routes configured")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyDefaults fills in unset fields
func applyDefaults(config *Config) {
	if config.Listen == "" {
		config.Listen = ":8080"
	}
	if config.AdminListen == "" {
		config.AdminListen = ":9090"
	}
	if config.Strategy == "" {
		config.Strategy = "weighted-round-robin"
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30
	}
	if config.Discovery.Mode == "" {
		config.Discovery.Mode = "static"
	}
	if config.Discovery.EventsFile == "" {
		config.Discovery.EventsFile = "-"
	}

	// Health check defaults
	if config.HealthCheck.Mode == "" {
		config.HealthCheck.Mode = "tcp"
	}
	if config.HealthCheck.Interval == 0 {
		config.HealthCheck.Interval = 5
	}
	if config.HealthCheck.Timeout == 0 {
		config.HealthCheck.Timeout = 3
	}
	if config.HealthCheck.HealthyThreshold == 0 {
		config.HealthCheck.HealthyThreshold = 2
	}
	if config.HealthCheck.UnhealthyThreshold == 0 {
		config.HealthCheck.UnhealthyThreshold = 3
	}
	if config.HealthCheck.Path == "" {
		config.HealthCheck.Path = "/health"
	}
	if config.HealthCheck.ExpectStatusMin == 0 {
		config.HealthCheck.ExpectStatusMin = 200
	}
	if config.HealthCheck.ExpectStatusMax == 0 {
		config.HealthCheck.ExpectStatusMax = 299
	}
	if config.HealthCheck.EvictGrace == 0 {
		config.HealthCheck.EvictGrace = 60
	}

	if config.Retry.BudgetPercent == 0 {
		config.Retry.BudgetPercent = 10
	}
	if config.Retry.MaxBodyBufferBytes == 0 {
		config.Retry.MaxBodyBufferBytes = 1 << 20
	}
}
