// Package config loads stix2graph configuration from an optional YAML file
// and the environment.
package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendDirectory = "directory"
	BackendNeo4j     = "neo4j"
)

// Config is the root configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig selects and parameterizes the graph store.
type StoreConfig struct {
	// Backend is "directory" (default) or "neo4j".
	Backend   string      `yaml:"backend"`
	Directory string      `yaml:"directory"`
	Neo4j     Neo4jConfig `yaml:"neo4j"`
}

// Neo4jConfig holds the connection settings of a Neo4j server.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database,omitempty"`
}

// LogConfig configures the logrus logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:   BackendDirectory,
			Directory: "graph.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is not empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}
	cfg.applyEnv()
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&c.Store.Backend, "STIX2GRAPH_STORE_BACKEND")
	override(&c.Store.Directory, "STIX2GRAPH_STORE_DIR")
	override(&c.Store.Neo4j.URI, "NEO4J_URI")
	override(&c.Store.Neo4j.Username, "NEO4J_USERNAME")
	override(&c.Store.Neo4j.Password, "NEO4J_PASSWORD")
	override(&c.Store.Neo4j.Database, "NEO4J_DATABASE")
	override(&c.Log.Level, "LOG_LEVEL")
	override(&c.Log.Format, "LOG_FORMAT")
	override(&c.Metrics.Addr, "METRICS_ADDR")
}

// Validate checks that the selected backend is fully configured.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendDirectory:
		if c.Store.Directory == "" {
			return errors.New("store.directory is required for the directory backend")
		}
	case BackendNeo4j:
		if c.Store.Neo4j.URI == "" {
			return errors.New("store.neo4j.uri is required for the neo4j backend")
		}
	default:
		return errors.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return errors.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// NewLogger builds a logrus logger from the log settings.
func NewLogger(c LogConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	logger := logrus.New()
	logger.SetLevel(level)
	if c.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return logger, nil
}
