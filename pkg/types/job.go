package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// DeploymentConfig is the versioned deployment configuration injected
// into the pipeline. Each job takes a snapshot at dispatch time.
type DeploymentConfig struct {
	Version          int           `yaml:"version" json:"version"`
	Template         string        `yaml:"template" json:"template"`
	BaseImage        string        `yaml:"baseImage" json:"baseImage"`
	ServingPort      int           `yaml:"servingPort" json:"servingPort"`
	InstanceType     string        `yaml:"instanceType" json:"instanceType"`
	InstanceCount    int           `yaml:"instanceCount" json:"instanceCount"`
	VariantName      string        `yaml:"variantName" json:"variantName"`
	ExecutionRoleARN string        `yaml:"executionRoleArn" json:"executionRoleArn"`
	PollInterval     time.Duration `yaml:"pollInterval" json:"pollInterval"`
	PollTimeout      time.Duration `yaml:"pollTimeout" json:"pollTimeout"`
	CallTimeout      time.Duration `yaml:"callTimeout" json:"callTimeout"`
}

// DefaultDeploymentConfig returns the configuration used when none is given
func DefaultDeploymentConfig() DeploymentConfig {
	return DeploymentConfig{
		Version:       1,
		Template:      "python-requirements",
		BaseImage:     "python:3.7",
		ServingPort:   8080,
		InstanceType:  "ml.t2.medium",
		InstanceCount: 1,
		VariantName:   "default-variant",
		PollInterval:  5 * time.Second,
		PollTimeout:   60 * time.Minute,
		CallTimeout:   2 * time.Minute,
	}
}

// Job is the unit of work threaded through the pipeline stages.
// It is never persisted.
type Job struct {
	DeploymentID string
	UserID       string

	// ModelName is the whitespace-stripped name of the model
	ModelName string

	// ContextDir is the build context owned by this job; ArtifactPath lives inside it
	ContextDir       string
	ArtifactPath     string
	ArtifactFilename string

	// ImageTag is generated once and reused for build, tag and push
	ImageTag string

	Config DeploymentConfig
}

// HostingModelName is the name the model is registered under:
// {ModelName}-{short deployment id}, unique per deployment
func (j *Job) HostingModelName() string {
	return j.ModelName + "-" + ShortID(j.DeploymentID)
}

// ServingConfigName is the name of the serving configuration
func (j *Job) ServingConfigName() string {
	return ServingConfigName(j.HostingModelName())
}

// EndpointName is the name of the managed endpoint
func (j *Job) EndpointName() string {
	return EndpointName(j.HostingModelName())
}

// ServingConfigName derives the serving configuration name of a hosting model
func ServingConfigName(hostingModel string) string {
	return hostingModel + "-config"
}

// EndpointName derives the endpoint name of a hosting model
func EndpointName(hostingModel string) string {
	return hostingModel + "-endpoint"
}

// ShortID keeps the first shortIDLen letters and digits of a deployment id
func ShortID(id string) string {
	short := strings.ToLower(nonAlnum.ReplaceAllString(id, ""))
	if len(short) > shortIDLen {
		short = short[:shortIDLen]
	}
	if short == "" {
		return "0"
	}
	return short
}

var (
	hostingNamePattern = regexp.MustCompile(`^[a-zA-Z0-9](-*[a-zA-Z0-9])*$`)
	invalidTagChars    = regexp.MustCompile(`[^a-z0-9._-]+`)
	nonAlnum           = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

const shortIDLen = 8

// maxHostingNameLen leaves room for the "-{short id}-endpoint" suffix within
// the 63 character limit of managed endpoint names
const maxHostingNameLen = 63 - len("-endpoint") - 1 - shortIDLen

// NormalizeName strips all whitespace from a model name ("My Model" → "MyModel")
func NormalizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, name)
}

// ValidateName checks that a normalized name is safe to reuse as a
// container tag component and a managed endpoint name
func ValidateName(name string) error {
	if name == "" {
		return InvalidArgumentf("model name is empty")
	}
	if len(name) > maxHostingNameLen {
		return InvalidArgumentf("model name %q is longer than %d characters", name, maxHostingNameLen)
	}
	if !hostingNamePattern.MatchString(name) {
		return InvalidArgumentf("model name %q may only contain letters, digits and hyphens", name)
	}
	return nil
}

// NewImageTag builds the image reference for an upload: {artifactFilename}-{timestamp}
func NewImageTag(artifactFilename string, t time.Time) string {
	suffix := fmt.Sprintf("-%d", t.UnixMilli())
	base := invalidTagChars.ReplaceAllString(strings.ToLower(artifactFilename), "-")
	base = strings.TrimLeft(base, ".-_")
	if base == "" {
		base = "model"
	}
	if max := 128 - len(suffix); len(base) > max {
		base = base[:max]
	}
	return base + suffix
}
