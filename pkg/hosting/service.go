package hosting

import (
	"context"

	"github.com/cuemby/modelhost/pkg/types"
)

// Endpoint status tokens reported by the hosting service
const (
	EndpointCreating  = "Creating"
	EndpointInService = "InService"
	EndpointFailed    = "Failed"
)

// ModelSpec registers a hosting model
type ModelSpec struct {
	Name             string
	Image            string
	ModelDataURL     string
	ExecutionRoleARN string
}

// ServingConfigSpec declares how a model is served
type ServingConfigSpec struct {
	Name          string
	ModelName     string
	VariantName   string
	InstanceType  string
	InstanceCount int
}

// Service is the managed model-hosting collaborator
type Service interface {
	CreateModel(ctx context.Context, spec ModelSpec) error
	CreateServingConfig(ctx context.Context, spec ServingConfigSpec) error
	CreateEndpoint(ctx context.Context, name, configName string) error
	DescribeEndpoint(ctx context.Context, name string) (string, error)
	DeleteEndpoint(ctx context.Context, name string) error
	DeleteServingConfig(ctx context.Context, name string) error
	DeleteModel(ctx context.Context, name string) error
}

// MapEndpointStatus maps a raw endpoint status onto a deployment status.
// Creating stays Creating, InService is InService, anything else is Failed.
func MapEndpointStatus(raw string) types.Status {
	switch raw {
	case EndpointCreating:
		return types.StatusCreating
	case EndpointInService:
		return types.StatusInService
	default:
		return types.StatusFailed
	}
}
