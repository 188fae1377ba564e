package hosting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/modelhost/pkg/artifact"
	"github.com/cuemby/modelhost/pkg/log"
	"github.com/cuemby/modelhost/pkg/metrics"
	"github.com/cuemby/modelhost/pkg/types"
)

var (
	// ErrPollTimeout is returned when an endpoint stays Creating past the poll timeout
	ErrPollTimeout = errors.New("endpoint did not leave Creating before the poll timeout")

	// ErrEndpointFailed is returned when an endpoint settles in a status other than InService
	ErrEndpointFailed = errors.New("endpoint failed")
)

// StatusRecorder persists provisioning progress and notifies the owner
type StatusRecorder interface {
	SetFields(ctx context.Context, id string, update types.DeploymentUpdate) (*types.Deployment, error)
	Transition(ctx context.Context, job *types.Job, status types.Status, reason string) error
	Fail(ctx context.Context, job *types.Job, err error) error
}

// Provisioner creates the hosting model, serving config and endpoint for a
// job and waits for the endpoint to settle.
type Provisioner struct {
	svc      Service
	recorder StatusRecorder
}

// NewProvisioner creates a provisioner
func NewProvisioner(svc Service, recorder StatusRecorder) *Provisioner {
	return &Provisioner{svc: svc, recorder: recorder}
}

// Provision registers the model built from image and the artifact at loc,
// creates its serving config and endpoint, then polls the endpoint until it
// leaves Creating. The final status is persisted and the owner notified.
// Any failure is recorded as Failed before it is returned.
func (p *Provisioner) Provision(ctx context.Context, job *types.Job, loc artifact.Location, image string) (types.Status, error) {
	logger := log.WithJob("hosting", job.DeploymentID, job.ImageTag)
	cfg := withDefaults(job.Config)

	fail := func(err error) (types.Status, error) {
		if recErr := p.recorder.Fail(ctx, job, err); recErr != nil {
			logger.Error().Err(recErr).Msg("Failed to record provisioning failure")
		}
		return types.StatusFailed, err
	}

	model := job.HostingModelName()
	if _, err := p.recorder.SetFields(ctx, job.DeploymentID, types.HostingModelUpdate(model)); err != nil {
		return fail(fmt.Errorf("persist hosting model name: %w", err))
	}

	err := p.call(ctx, cfg.CallTimeout, func(ctx context.Context) error {
		return p.svc.CreateModel(ctx, ModelSpec{
			Name:             model,
			Image:            image,
			ModelDataURL:     loc.URL(),
			ExecutionRoleARN: cfg.ExecutionRoleARN,
		})
	})
	if err != nil {
		return fail(err)
	}
	logger.Debug().Str("model", model).Msg("Hosting model registered")

	err = p.call(ctx, cfg.CallTimeout, func(ctx context.Context) error {
		return p.svc.CreateServingConfig(ctx, ServingConfigSpec{
			Name:          job.ServingConfigName(),
			ModelName:     model,
			VariantName:   cfg.VariantName,
			InstanceType:  cfg.InstanceType,
			InstanceCount: cfg.InstanceCount,
		})
	})
	if err != nil {
		return fail(err)
	}

	endpoint := job.EndpointName()
	err = p.call(ctx, cfg.CallTimeout, func(ctx context.Context) error {
		return p.svc.CreateEndpoint(ctx, endpoint, job.ServingConfigName())
	})
	if err != nil {
		return fail(err)
	}

	if _, err := p.recorder.SetFields(ctx, job.DeploymentID, types.EndpointUpdate(endpoint)); err != nil {
		return fail(fmt.Errorf("persist endpoint name: %w", err))
	}
	logger.Info().Str("endpoint", endpoint).Msg("Endpoint created, waiting for it to settle")

	raw, err := p.waitForEndpoint(ctx, endpoint, cfg)
	if err != nil {
		return fail(err)
	}

	status := MapEndpointStatus(raw)
	if status == types.StatusInService {
		if err := p.recorder.Transition(ctx, job, types.StatusInService, ""); err != nil {
			return types.StatusInService, fmt.Errorf("record in service: %w", err)
		}
		logger.Info().Str("endpoint", endpoint).Msg("Endpoint in service")
		return types.StatusInService, nil
	}

	return fail(fmt.Errorf("%w: %s reported status %s", ErrEndpointFailed, endpoint, raw))
}

// waitForEndpoint queries first, then waits one interval between queries,
// while the endpoint reports Creating.
func (p *Provisioner) waitForEndpoint(ctx context.Context, name string, cfg types.DeploymentConfig) (string, error) {
	pollCtx, cancel := context.WithTimeout(ctx, cfg.PollTimeout)
	defer cancel()

	timeout := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w (%s)", ErrPollTimeout, cfg.PollTimeout)
	}

	for {
		var raw string
		err := p.call(pollCtx, cfg.CallTimeout, func(ctx context.Context) error {
			var err error
			raw, err = p.svc.DescribeEndpoint(ctx, name)
			return err
		})
		metrics.EndpointPolls.Inc()
		if err != nil {
			if pollCtx.Err() != nil {
				return "", timeout()
			}
			return "", err
		}

		if MapEndpointStatus(raw) != types.StatusCreating {
			return raw, nil
		}

		timer := time.NewTimer(cfg.PollInterval)
		select {
		case <-timer.C:
		case <-pollCtx.Done():
			timer.Stop()
			return "", timeout()
		}
	}
}

func (p *Provisioner) call(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

// Teardown deletes the endpoint (when one was created), then the serving
// config and model registered under hostingModel. Every deletion is
// attempted; errors are logged and returned joined.
func (p *Provisioner) Teardown(ctx context.Context, hostingModel, endpoint string) error {
	logger := log.WithComponent("hosting").With().Str("model", hostingModel).Logger()

	type deletion struct {
		kind string
		fn   func() error
	}
	var steps []deletion
	if endpoint != "" {
		steps = append(steps, deletion{"endpoint", func() error { return p.svc.DeleteEndpoint(ctx, endpoint) }})
	}
	steps = append(steps,
		deletion{"serving config", func() error { return p.svc.DeleteServingConfig(ctx, types.ServingConfigName(hostingModel)) }},
		deletion{"model", func() error { return p.svc.DeleteModel(ctx, hostingModel) }},
	)

	var errs []error
	for _, del := range steps {
		if err := del.fn(); err != nil {
			logger.Warn().Err(err).Str("resource", del.kind).Msg("Teardown step failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func withDefaults(cfg types.DeploymentConfig) types.DeploymentConfig {
	def := types.DefaultDeploymentConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.VariantName == "" {
		cfg.VariantName = def.VariantName
	}
	if cfg.InstanceType == "" {
		cfg.InstanceType = def.InstanceType
	}
	if cfg.InstanceCount <= 0 {
		cfg.InstanceCount = def.InstanceCount
	}
	return cfg
}
