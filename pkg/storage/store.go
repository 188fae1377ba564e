package storage

import (
	"context"

	"github.com/cuemby/modelhost/pkg/types"
)

// Store defines the persistence collaborator for deployment records.
// Implementations must serialize concurrent updates to the same record.
type Store interface {
	CreateDeployment(ctx context.Context, d *types.Deployment) error
	GetDeployment(ctx context.Context, id string) (*types.Deployment, error)
	ListDeployments(ctx context.Context) ([]*types.Deployment, error)
	ListDeploymentsByUser(ctx context.Context, userID string) ([]*types.Deployment, error)

	// UpdateDeploymentFields applies a partial update and returns the
	// record as it was persisted. A status change on a terminal record
	// fails with types.ErrTerminalStatus and leaves the record untouched.
	UpdateDeploymentFields(ctx context.Context, id string, update types.DeploymentUpdate) (*types.Deployment, error)

	DeleteDeployment(ctx context.Context, id string) error

	// Utility
	Ping(ctx context.Context) error
	Close() error
}
