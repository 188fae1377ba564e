package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/modelhost/pkg/log"
	"github.com/cuemby/modelhost/pkg/metrics"
	"github.com/cuemby/modelhost/pkg/storage"
	"github.com/cuemby/modelhost/pkg/types"
)

// Notifier delivers a deployment's state to its owner
type Notifier interface {
	Notify(userID string, d *types.Deployment)
}

// Tracker writes pipeline progress to the store and tells the owner about
// status changes. Earlier fields are never rolled back on failure.
type Tracker struct {
	store    storage.Store
	notifier Notifier
}

// New creates a tracker
func New(store storage.Store, notifier Notifier) *Tracker {
	return &Tracker{store: store, notifier: notifier}
}

// SetFields applies a partial update to the record
func (t *Tracker) SetFields(ctx context.Context, id string, update types.DeploymentUpdate) (*types.Deployment, error) {
	d, err := t.store.UpdateDeploymentFields(ctx, id, update)
	if err != nil {
		return nil, fmt.Errorf("update deployment %s: %w", id, err)
	}
	return d, nil
}

// Transition persists a status change and notifies the job's user. If the
// record already reached a terminal status it is left as is and nobody is
// notified.
func (t *Tracker) Transition(ctx context.Context, job *types.Job, status types.Status, reason string) error {
	logger := log.WithJob("tracker", job.DeploymentID, job.ImageTag)

	update := types.StatusUpdate(status)
	if status == types.StatusFailed {
		update = types.FailedUpdate(reason)
	}

	d, err := t.store.UpdateDeploymentFields(ctx, job.DeploymentID, update)
	if errors.Is(err, types.ErrTerminalStatus) {
		logger.Debug().Str("status", string(status)).Msg("Deployment already settled, status change ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("update deployment %s status: %w", job.DeploymentID, err)
	}

	if status.IsTerminal() {
		metrics.DeploymentsFinished.WithLabelValues(string(status)).Inc()
	}
	logger.Info().Str("status", string(status)).Msg("Deployment status changed")

	if t.notifier != nil {
		t.notifier.Notify(job.UserID, d)
	}
	return nil
}

// Fail marks the job's deployment Failed with err as the reason
func (t *Tracker) Fail(ctx context.Context, job *types.Job, err error) error {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return t.Transition(ctx, job, types.StatusFailed, reason)
}
