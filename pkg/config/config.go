package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/modelhost/pkg/artifact"
	"github.com/cuemby/modelhost/pkg/builder"
	"github.com/cuemby/modelhost/pkg/hosting"
	"github.com/cuemby/modelhost/pkg/log"
	"github.com/cuemby/modelhost/pkg/registry"
	"github.com/cuemby/modelhost/pkg/storage"
	"github.com/cuemby/modelhost/pkg/types"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	UploadDir       string        `yaml:"uploadDir"`
	MaxUploadSize   int64         `yaml:"maxUploadSize"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LogConfig configures the global logger
type LogConfig struct {
	Level log.Level `yaml:"level"`
	JSON  bool      `yaml:"json"`
}

// Config is the complete service configuration
type Config struct {
	Server      ServerConfig           `yaml:"server"`
	Log         LogConfig              `yaml:"log"`
	Store       storage.Config         `yaml:"store"`
	ObjectStore artifact.Config        `yaml:"objectStore"`
	Registry    registry.Config        `yaml:"registry"`
	Hosting     hosting.Config         `yaml:"hosting"`
	Deployment  types.DeploymentConfig `yaml:"deployment"`
}

// Default returns the configuration used for unset values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			UploadDir:       "./uploads",
			MaxUploadSize:   2 << 30,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: log.InfoLevel,
		},
		Store:       storage.DefaultConfig(),
		ObjectStore: artifact.DefaultConfig(),
		Registry: registry.Config{
			DockerBinary:   "docker",
			CommandTimeout: 5 * time.Minute,
		},
		Hosting: hosting.Config{
			Region: "us-east-1",
		},
		Deployment: types.DefaultDeploymentConfig(),
	}
}

// Load reads the YAML file at path over the defaults. ${VAR} references in
// the file are replaced from the environment before parsing. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section needed to serve
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.UploadDir == "" {
		errs = append(errs, errors.New("server.uploadDir is required"))
	}
	if c.Server.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("server.maxUploadSize must be positive"))
	}

	switch c.Log.Level {
	case log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	switch c.Store.Driver {
	case storage.DriverBolt:
		if c.Store.DataDir == "" {
			errs = append(errs, errors.New("store.dataDir is required"))
		}
	case storage.DriverPostgres:
		if err := c.Store.Postgres.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("store.postgres: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of bolt, postgres", c.Store.Driver))
	}

	if err := c.ObjectStore.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("objectStore: %w", err))
	}
	if err := c.Registry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("registry: %w", err))
	}
	if err := c.Hosting.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("hosting: %w", err))
	}
	if err := ValidateDeployment(c.Deployment); err != nil {
		errs = append(errs, fmt.Errorf("deployment: %w", err))
	}

	return errors.Join(errs...)
}

// ValidateDeployment checks a deployment configuration object
func ValidateDeployment(d types.DeploymentConfig) error {
	var errs []error

	if d.Version < 1 {
		errs = append(errs, errors.New("version must be >= 1"))
	}
	if !builder.HasTemplate(d.Template) {
		errs = append(errs, fmt.Errorf("template %q is not one of %v", d.Template, builder.Templates()))
	}
	if d.ServingPort < 1 || d.ServingPort > 65535 {
		errs = append(errs, fmt.Errorf("servingPort %d is out of range", d.ServingPort))
	}
	if d.InstanceType == "" {
		errs = append(errs, errors.New("instanceType is required"))
	}
	if d.InstanceCount < 1 {
		errs = append(errs, errors.New("instanceCount must be >= 1"))
	}
	if d.ExecutionRoleARN == "" {
		errs = append(errs, errors.New("executionRoleArn is required"))
	}
	if d.PollInterval <= 0 {
		errs = append(errs, errors.New("pollInterval must be positive"))
	}
	if d.PollTimeout < d.PollInterval {
		errs = append(errs, errors.New("pollTimeout must not be shorter than pollInterval"))
	}
	if d.CallTimeout <= 0 {
		errs = append(errs, errors.New("callTimeout must be positive"))
	}

	return errors.Join(errs...)
}
