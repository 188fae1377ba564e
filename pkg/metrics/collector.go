package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/modelhost/pkg/types"
)

// Check tests one collaborator; a nil error means healthy
type Check func(ctx context.Context) error

// DeploymentLister is the part of the store the collector reads
type DeploymentLister interface {
	ListDeployments(ctx context.Context) ([]*types.Deployment, error)
}

// Collector periodically checks collaborators into the health checker and
// refreshes the deployment gauges from the store.
type Collector struct {
	lister       DeploymentLister
	checks       map[string]Check
	interval     time.Duration
	checkTimeout time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// NewCollector creates a collector reading deployments from lister
func NewCollector(lister DeploymentLister, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		lister:       lister,
		checks:       make(map[string]Check),
		interval:     interval,
		checkTimeout: 5 * time.Second,
		stopCh:       make(chan struct{}),
	}
}

// AddCheck registers a named check. Must be called before Start.
func (c *Collector) AddCheck(name string, check Check) {
	c.checks[name] = check
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Collector) collect() {
	c.runChecks()
	c.collectDeploymentMetrics()
}

func (c *Collector) runChecks() {
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(context.Background(), c.checkTimeout)
		err := c.checks[name](ctx)
		cancel()

		if err != nil {
			UpdateComponent(name, false, err.Error())
		} else {
			UpdateComponent(name, true, "")
		}
	}
}

func (c *Collector) collectDeploymentMetrics() {
	if c.lister == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.checkTimeout)
	defer cancel()

	deployments, err := c.lister.ListDeployments(ctx)
	if err != nil {
		return
	}

	counts := map[types.Status]int{
		types.StatusCreating:  0,
		types.StatusInService: 0,
		types.StatusFailed:    0,
	}
	for _, d := range deployments {
		counts[d.Status]++
	}

	for status, count := range counts {
		DeploymentsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}
