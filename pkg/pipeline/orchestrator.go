package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/modelhost/pkg/artifact"
	"github.com/cuemby/modelhost/pkg/builder"
	"github.com/cuemby/modelhost/pkg/config"
	"github.com/cuemby/modelhost/pkg/hosting"
	"github.com/cuemby/modelhost/pkg/log"
	"github.com/cuemby/modelhost/pkg/metrics"
	"github.com/cuemby/modelhost/pkg/storage"
	"github.com/cuemby/modelhost/pkg/types"
)

// Uploader stores artifacts in the object store
type Uploader interface {
	ObjectKey(filename string) string
	Upload(ctx context.Context, filePath, key string) (artifact.Location, error)
	Delete(ctx context.Context, bucket, key string) error
}

// ImageBuilder builds a tagged image from a build context
type ImageBuilder interface {
	Build(ctx context.Context, contextDir, artifactFilename, imageTag string, opts builder.Options) (string, error)
}

// Publisher pushes a built image to the registry
type Publisher interface {
	Repository() string
	RemoteRef(imageTag string) (string, error)
	Publish(ctx context.Context, imageTag string) error
}

// ImageCleaner deletes published images
type ImageCleaner interface {
	DeleteImage(ctx context.Context, repository, tag string) error
}

// Provisioner creates and removes hosting resources
type Provisioner interface {
	Provision(ctx context.Context, job *types.Job, loc artifact.Location, image string) (types.Status, error)
	Teardown(ctx context.Context, hostingModel, endpoint string) error
}

// Dependencies are the collaborators an Orchestrator drives
type Dependencies struct {
	Store       storage.Store
	Tracker     hosting.StatusRecorder
	Uploader    Uploader
	Builder     ImageBuilder
	Publisher   Publisher
	Cleaner     ImageCleaner
	Provisioner Provisioner
	Config      config.DeploymentProvider
}

// Upload is a received artifact waiting to be deployed. ContextDir is a
// directory owned by the pipeline from the moment Run is called; it holds
// ArtifactPath and is removed when the job ends, whatever the outcome.
type Upload struct {
	DeploymentID string
	UserID       string
	Name         string
	ContextDir   string
	ArtifactPath string
}

// Orchestrator runs deployment jobs. Each job runs in its own goroutine:
// upload, build, publish and provision, stopping at the first failure.
type Orchestrator struct {
	deps Dependencies

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closing bool
	running map[string]struct{}

	now       func() time.Time
	removeDir func(string) error
}

// New creates an orchestrator
func New(deps Dependencies) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		running:   make(map[string]struct{}),
		now:       time.Now,
		removeDir: os.RemoveAll,
	}
}

// Run validates the upload, builds its job and dispatches it. It returns
// as soon as the job is started; the outcome is only observable through
// the deployment record and the owner's notifications. On a validation
// error nothing is dispatched and the context directory is removed.
func (o *Orchestrator) Run(ctx context.Context, up Upload) error {
	job, err := o.prepare(ctx, up)
	if err != nil {
		o.removeContext(up.ContextDir)
		return err
	}

	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		o.removeContext(up.ContextDir)
		return ErrShuttingDown
	}
	if _, ok := o.running[job.DeploymentID]; ok {
		o.mu.Unlock()
		o.removeContext(up.ContextDir)
		return fmt.Errorf("deployment %s: %w", job.DeploymentID, ErrJobRunning)
	}
	o.running[job.DeploymentID] = struct{}{}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer o.release(job.DeploymentID)
		o.execute(o.ctx, job)
	}()

	logger := log.WithJob("pipeline", job.DeploymentID, job.ImageTag)
	logger.Info().
		Str("model", job.ModelName).
		Int("config_version", job.Config.Version).
		Msg("Deployment job dispatched")
	return nil
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.running, id)
	o.mu.Unlock()
}

func (o *Orchestrator) prepare(ctx context.Context, up Upload) (*types.Job, error) {
	if up.UserID == "" {
		return nil, types.InvalidArgumentf("user id is required")
	}
	if up.ContextDir == "" || up.ArtifactPath == "" {
		return nil, types.InvalidArgumentf("artifact path is required")
	}

	info, err := os.Stat(up.ArtifactPath)
	if err != nil {
		return nil, types.InvalidArgumentf("artifact %s: %v", filepath.Base(up.ArtifactPath), err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return nil, types.InvalidArgumentf("artifact %s is empty", filepath.Base(up.ArtifactPath))
	}

	name := types.NormalizeName(up.Name)
	if err := types.ValidateName(name); err != nil {
		return nil, err
	}

	d, err := o.deps.Store.GetDeployment(ctx, up.DeploymentID)
	if err != nil {
		return nil, fmt.Errorf("load deployment: %w", err)
	}
	if d.Status != types.StatusCreating {
		return nil, fmt.Errorf("deployment %s is %s: %w", d.ID, d.Status, types.ErrTerminalStatus)
	}

	filename := filepath.Base(up.ArtifactPath)
	return &types.Job{
		DeploymentID:     up.DeploymentID,
		UserID:           up.UserID,
		ModelName:        name,
		ContextDir:       up.ContextDir,
		ArtifactPath:     up.ArtifactPath,
		ArtifactFilename: filename,
		ImageTag:         types.NewImageTag(filename, o.now()),
		Config:           o.deps.Config.Deployment(),
	}, nil
}

func (o *Orchestrator) execute(ctx context.Context, job *types.Job) {
	logger := log.WithJob("pipeline", job.DeploymentID, job.ImageTag)

	metrics.JobsActive.Inc()
	defer metrics.JobsActive.Dec()
	defer o.removeContext(job.ContextDir)

	timer := metrics.NewTimer()
	if err := o.runStages(ctx, job); err != nil {
		var stageErr *DeploymentError
		if errors.As(err, &stageErr) {
			metrics.StageFailures.WithLabelValues(string(stageErr.Stage)).Inc()
		}
		// The provisioner records its own failures; a second Fail is a no-op.
		if failErr := o.deps.Tracker.Fail(context.WithoutCancel(ctx), job, err); failErr != nil {
			logger.Error().Err(failErr).Msg("Failed to record deployment failure")
		}
		logger.Error().Err(err).Dur("duration", timer.Duration()).Msg("Deployment failed")
		return
	}

	logger.Info().Dur("duration", timer.Duration()).Msg("Deployment in service")
}

func (o *Orchestrator) runStages(ctx context.Context, job *types.Job) error {
	var loc artifact.Location

	err := o.stage(job, StageUpload, func() error {
		var err error
		loc, err = o.deps.Uploader.Upload(ctx, job.ArtifactPath, o.deps.Uploader.ObjectKey(job.ArtifactFilename))
		if err != nil {
			return err
		}
		_, err = o.deps.Tracker.SetFields(ctx, job.DeploymentID, types.ArtifactUpdate(loc.Bucket, loc.Key))
		return err
	})
	if err != nil {
		return err
	}

	err = o.stage(job, StageBuild, func() error {
		_, err := o.deps.Builder.Build(ctx, job.ContextDir, job.ArtifactFilename, job.ImageTag, builder.Options{
			Template:  job.Config.Template,
			BaseImage: job.Config.BaseImage,
			Port:      job.Config.ServingPort,
		})
		return err
	})
	if err != nil {
		return err
	}

	err = o.stage(job, StagePublish, func() error {
		if err := o.deps.Publisher.Publish(ctx, job.ImageTag); err != nil {
			return err
		}
		_, err := o.deps.Tracker.SetFields(ctx, job.DeploymentID, types.ImageUpdate(job.ImageTag, o.deps.Publisher.Repository()))
		return err
	})
	if err != nil {
		return err
	}

	return o.stage(job, StageProvision, func() error {
		image, err := o.deps.Publisher.RemoteRef(job.ImageTag)
		if err != nil {
			return err
		}
		_, err = o.deps.Provisioner.Provision(ctx, job, loc, image)
		return err
	})
}

func (o *Orchestrator) stage(job *types.Job, stage Stage, fn func() error) error {
	logger := log.WithJob("pipeline", job.DeploymentID, job.ImageTag).With().Str("stage", string(stage)).Logger()
	logger.Debug().Msg("Stage started")

	timer := metrics.NewTimer()
	err := fn()
	timer.ObserveDurationVec(metrics.StageDuration, string(stage))
	if err != nil {
		return &DeploymentError{DeploymentID: job.DeploymentID, Stage: stage, Err: err}
	}

	logger.Info().Dur("duration", timer.Duration()).Msg("Stage completed")
	return nil
}

func (o *Orchestrator) removeContext(dir string) {
	if dir == "" {
		return
	}
	if err := o.removeDir(dir); err != nil {
		logger := log.WithComponent("pipeline")
		logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove build context")
	}
}

// Teardown deletes everything a deployment left behind: the artifact, the
// registry image and the hosting resources, using only the names recorded
// on d. Every step is attempted; failures are logged and returned joined.
func (o *Orchestrator) Teardown(ctx context.Context, d *types.Deployment) error {
	logger := log.WithDeploymentID(d.ID)
	var errs []error

	if d.BucketName != "" && d.BucketObjectKey != "" {
		if err := o.deps.Uploader.Delete(ctx, d.BucketName, d.BucketObjectKey); err != nil {
			errs = append(errs, err)
		}
	}

	if d.ImageTag != "" && d.RegistryRepoName != "" && o.deps.Cleaner != nil {
		if err := o.deps.Cleaner.DeleteImage(ctx, d.RegistryRepoName, d.ImageTag); err != nil {
			errs = append(errs, err)
		}
	}

	if d.HostingModelName != "" {
		if err := o.deps.Provisioner.Teardown(ctx, d.HostingModelName, d.EndpointName); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.Warn().Err(err).Msg("Teardown incomplete")
	} else {
		logger.Info().Msg("Deployment resources removed")
	}
	return err
}

// Shutdown stops accepting jobs and waits for running ones. When ctx ends
// first, running jobs are cancelled and recorded as failed.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closing = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-done
		return ctx.Err()
	}
}
