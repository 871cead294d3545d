// Package config loads and defaults the YAML configuration consumed by
// cmd/example, mirroring the teacher's internal/config package: a flat
// struct tree with `yaml` tags and a SetDefaults method, loaded by
// searching a short list of conventional paths.
package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warrenmq/warren/metrics"
	"github.com/warrenmq/warren/pool"
	"github.com/warrenmq/warren/scale"
)

// Config is the root configuration document.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Pool     PoolConfig     `yaml:"pool"`
	Consumer ConsumerConfig `yaml:"consumer"`
	Metrics  metrics.Config `yaml:"observability"`
}

// LogConfig selects the slog handler and level, same shape as the
// teacher's LogConfig.
type LogConfig struct {
	Level string `yaml:"level"`
	Type  string `yaml:"type"`
}

// PoolConfig is the YAML shape of pool.Config.
type PoolConfig struct {
	URL                 string        `yaml:"url"`
	MaxConnections      int           `yaml:"max_connections"`
	MaxReconnectElapsed time.Duration `yaml:"max_reconnect_elapsed"`
}

func (c PoolConfig) ToPoolConfig() pool.Config {
	return pool.Config{
		URL:                 c.URL,
		MaxConnections:      c.MaxConnections,
		MaxReconnectElapsed: c.MaxReconnectElapsed,
	}
}

// ConsumerConfig is the YAML shape of a single Queue Consumer binding.
type ConsumerConfig struct {
	QueueName   string      `yaml:"queue_name"`
	VirtualHost string      `yaml:"virtual_host"`
	Exchange    string      `yaml:"exchange"`
	RoutingKey  string      `yaml:"routing_key"`
	Scale       scale.Config `yaml:"scale"`
	Worker      WorkerConfig `yaml:"worker"`
}

// WorkerConfig is the YAML shape of consumer.WorkerConfig, minus the
// unserializable ants.Pool field.
type WorkerConfig struct {
	Simple           bool          `yaml:"simple"`
	InvokeRetryCount uint          `yaml:"invoke_retry_count"`
	InvokeRetryWait  time.Duration `yaml:"invoke_retry_wait"`
	DefaultStrategy  string        `yaml:"default_strategy"`
}

func (c *Config) SetDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "INFO"
	}
	if c.Log.Type == "" {
		c.Log.Type = "text"
	}
	if c.Pool.MaxConnections == 0 {
		c.Pool.MaxConnections = 4
	}
	if c.Pool.MaxReconnectElapsed == 0 {
		c.Pool.MaxReconnectElapsed = 30 * time.Second
	}
	if c.Consumer.Scale.MinConcurrentConsumers == 0 {
		c.Consumer.Scale.MinConcurrentConsumers = 1
	}
	if c.Consumer.Scale.MaxConcurrentConsumers == 0 {
		c.Consumer.Scale.MaxConcurrentConsumers = 8
	}
	if c.Consumer.Scale.MessagesPerConsumerRatio == 0 {
		c.Consumer.Scale.MessagesPerConsumerRatio = 100
	}
	if c.Consumer.Scale.AutoScaleInterval == 0 {
		c.Consumer.Scale.AutoScaleInterval = 5 * time.Second
	}
	if c.Consumer.Worker.InvokeRetryCount == 0 {
		c.Consumer.Worker.InvokeRetryCount = 1
	}
	if c.Consumer.Worker.DefaultStrategy == "" {
		c.Consumer.Worker.DefaultStrategy = "none"
	}
}

// Load searches filePath (or, if empty, the conventional locations
// ./config.yaml, conf/config.yaml, config/config.yaml) for a YAML
// document, unmarshals it, and applies defaults.
func Load(filePath string) (*Config, error) {
	paths := []string{filePath}
	if filePath == "" {
		paths = []string{"./config.yaml", "conf/config.yaml", "config/config.yaml"}
	}

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		defer f.Close()

		log.Printf("found config file in: %s\n", p)
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("warren: config: read: %w", err)
		}

		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("warren: config: unmarshal: %w", err)
		}

		cfg.SetDefaults()
		return &cfg, nil
	}

	return nil, fmt.Errorf("warren: config: failed to find config in: %v", paths)
}
