package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/cuemby/modelhost/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type staticLister []*types.Deployment

func (l staticLister) ListDeployments(ctx context.Context) ([]*types.Deployment, error) {
	return l, nil
}

func deployment(status types.Status) *types.Deployment {
	d := types.NewDeployment("id", "m", "u")
	d.Status = status
	return d
}

func TestCollector_Collect(t *testing.T) {
	resetHealth()

	lister := staticLister{
		deployment(types.StatusCreating),
		deployment(types.StatusInService),
		deployment(types.StatusInService),
	}
	c := NewCollector(lister, 0)
	c.AddCheck("store", func(ctx context.Context) error { return nil })
	c.AddCheck("objectStore", func(ctx context.Context) error { return errors.New("bucket missing: models") })

	c.collect()

	assert.Equal(t, float64(1), testutil.ToFloat64(DeploymentsTotal.WithLabelValues("Creating")))
	assert.Equal(t, float64(2), testutil.ToFloat64(DeploymentsTotal.WithLabelValues("InService")))
	assert.Equal(t, float64(0), testutil.ToFloat64(DeploymentsTotal.WithLabelValues("Failed")))

	health := GetHealth()
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "healthy", health.Components["store"])
	assert.Equal(t, "unhealthy: bucket missing: models", health.Components["objectStore"])
}

func TestCollector_StartStop(t *testing.T) {
	c := NewCollector(nil, 0)
	c.Start()
	c.Stop()
	assert.NotPanics(t, c.Stop)
}
