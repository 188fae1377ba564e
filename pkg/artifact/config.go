package artifact

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config describes the S3-compatible bucket model artifacts are uploaded to
type Config struct {
	Endpoint      string        `yaml:"endpoint"`
	AccessKey     string        `yaml:"accessKey"`
	SecretKey     string        `yaml:"secretKey"`
	Region        string        `yaml:"region"`
	UseSSL        bool          `yaml:"useSSL"`
	Bucket        string        `yaml:"bucket"`
	Prefix        string        `yaml:"prefix"`
	UploadTimeout time.Duration `yaml:"uploadTimeout"`
}

// DefaultConfig returns a local MinIO configuration
func DefaultConfig() Config {
	return Config{
		Endpoint:      "localhost:9000",
		Region:        "us-east-1",
		Bucket:        "models",
		UploadTimeout: 10 * time.Minute,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if c.UploadTimeout < 0 {
		return errors.New("upload timeout must not be negative")
	}
	return nil
}
