package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cuemby/modelhost/pkg/log"
	"github.com/cuemby/modelhost/pkg/types"
	"github.com/fsnotify/fsnotify"
)

// DeploymentProvider hands out the current deployment configuration
type DeploymentProvider interface {
	Deployment() types.DeploymentConfig
}

// Static is a DeploymentProvider that never changes
type Static types.DeploymentConfig

func (s Static) Deployment() types.DeploymentConfig {
	return types.DeploymentConfig(s)
}

// Watcher reloads the deployment section of a config file whenever the file
// changes. Invalid revisions are logged and ignored.
type Watcher struct {
	path    string
	mu      sync.RWMutex
	current types.DeploymentConfig
}

// NewWatcher creates a watcher for path starting from initial
func NewWatcher(path string, initial types.DeploymentConfig) *Watcher {
	return &Watcher{path: path, current: initial}
}

// Deployment returns the latest valid deployment configuration
func (w *Watcher) Deployment() types.DeploymentConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload reads the file and swaps in its deployment section if valid
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	if err := ValidateDeployment(cfg.Deployment); err != nil {
		return fmt.Errorf("deployment: %w", err)
	}

	w.mu.Lock()
	previous := w.current.Version
	w.current = cfg.Deployment
	w.mu.Unlock()

	logger := log.WithComponent("config")
	logger.Info().
		Int("previous_version", previous).
		Int("version", cfg.Deployment.Version).
		Msg("Deployment configuration reloaded")
	return nil
}

// Run watches the file's directory until ctx is done. The directory is
// watched rather than the file so editors that replace the file on save
// are followed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", target, err)
	}

	logger := log.WithComponent("config")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := w.Reload(); err != nil {
				logger.Warn().Err(err).Str("path", target).Msg("Ignoring invalid configuration change")
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}
