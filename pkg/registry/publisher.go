package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/modelhost/pkg/command"
	"github.com/cuemby/modelhost/pkg/log"
	"github.com/google/go-containerregistry/pkg/name"
)

// Step names a publish step
type Step string

const (
	StepLogin Step = "login"
	StepTag   Step = "tag"
	StepPush  Step = "push"
)

// StepError reports which publish step failed
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("registry %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Config describes the target registry
type Config struct {
	// Repository is the remote repository, e.g. 123456789012.dkr.ecr.us-east-1.amazonaws.com/models
	Repository string `yaml:"repository"`

	// LoginCommand is a shell command line that authenticates the docker CLI
	LoginCommand string `yaml:"loginCommand"`

	// DockerBinary defaults to "docker"
	DockerBinary string `yaml:"dockerBinary"`

	// CommandTimeout bounds each of login, tag and push
	CommandTimeout time.Duration `yaml:"commandTimeout"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Repository) == "" {
		return errors.New("registry repository is required")
	}
	if _, err := name.NewRepository(c.Repository); err != nil {
		return fmt.Errorf("registry repository %q: %w", c.Repository, err)
	}
	if c.CommandTimeout < 0 {
		return errors.New("registry command timeout must not be negative")
	}
	return nil
}

// Publisher pushes locally built images to the remote repository using the
// docker CLI: login, tag, push, strictly in that order.
type Publisher struct {
	runner command.Runner
	cfg    Config
}

// NewPublisher creates a publisher running commands through runner
func NewPublisher(runner command.Runner, cfg Config) *Publisher {
	if cfg.DockerBinary == "" {
		cfg.DockerBinary = "docker"
	}
	return &Publisher{runner: runner, cfg: cfg}
}

// NewExecPublisher creates a publisher running the docker CLI on this host,
// each command bounded by cfg.CommandTimeout when set
func NewExecPublisher(cfg Config) *Publisher {
	runner := command.NewExecRunner()
	if cfg.CommandTimeout > 0 {
		runner = runner.WithTimeout(cfg.CommandTimeout)
	}
	return NewPublisher(runner, cfg)
}

// Repository returns the remote repository name recorded on deployments
func (p *Publisher) Repository() string {
	return p.cfg.Repository
}

// RemoteRef returns the remote reference for a local image tag
func (p *Publisher) RemoteRef(imageTag string) (string, error) {
	ref := p.cfg.Repository + ":" + imageTag
	if _, err := name.NewTag(ref, name.StrictValidation); err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	return ref, nil
}

// Publish logs in, tags imageTag with its remote reference and pushes it.
// The first failing step aborts the remaining ones.
func (p *Publisher) Publish(ctx context.Context, imageTag string) error {
	logger := log.WithComponent("registry").With().Str("image_tag", imageTag).Logger()

	remote, err := p.RemoteRef(imageTag)
	if err != nil {
		return &StepError{Step: StepTag, Err: err}
	}

	if p.cfg.LoginCommand != "" {
		if _, err := command.Shell(ctx, p.runner, p.cfg.LoginCommand); err != nil {
			return &StepError{Step: StepLogin, Err: err}
		}
		logger.Debug().Msg("Registry login succeeded")
	}

	if _, err := p.runner.Run(ctx, p.cfg.DockerBinary, "tag", imageTag, remote); err != nil {
		return &StepError{Step: StepTag, Err: err}
	}

	res, err := p.runner.Run(ctx, p.cfg.DockerBinary, "push", remote)
	if err != nil {
		return &StepError{Step: StepPush, Err: err}
	}

	logger.Info().
		Str("remote", remote).
		Dur("duration", res.Duration).
		Msg("Image pushed")
	return nil
}
