package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/modelhost/pkg/storage"
	"github.com/cuemby/modelhost/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  addr: ":9090"
log:
  level: debug
objectStore:
  endpoint: minio:9000
  accessKey: ${MODELHOST_TEST_ACCESS_KEY}
  secretKey: secret
  bucket: models
registry:
  repository: 123456789012.dkr.ecr.us-east-1.amazonaws.com/models
  loginCommand: aws ecr get-login-password | docker login --username AWS --password-stdin 123456789012.dkr.ecr.us-east-1.amazonaws.com
  commandTimeout: 15m
hosting:
  region: eu-west-1
deployment:
  version: 2
  template: python-transformers
  executionRoleArn: arn:aws:iam::123456789012:role/hosting
  pollInterval: 10s
  pollTimeout: 30m
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "modelhost.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad(t *testing.T) {
	t.Setenv("MODELHOST_TEST_ACCESS_KEY", "from-env")

	cfg, err := Load(writeConfig(t, t.TempDir(), sampleConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "./uploads", cfg.Server.UploadDir, "unset values keep their defaults")
	assert.Equal(t, "from-env", cfg.ObjectStore.AccessKey)
	assert.Equal(t, "eu-west-1", cfg.Hosting.Region)
	assert.Equal(t, storage.DriverBolt, cfg.Store.Driver)
	assert.Equal(t, 15*time.Minute, cfg.Registry.CommandTimeout)
	assert.Equal(t, "docker", cfg.Registry.DockerBinary)

	assert.Equal(t, 2, cfg.Deployment.Version)
	assert.Equal(t, "python-transformers", cfg.Deployment.Template)
	assert.Equal(t, 10*time.Second, cfg.Deployment.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Deployment.PollTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Deployment.CallTimeout)
	assert.Equal(t, "ml.t2.medium", cfg.Deployment.InstanceType)
	assert.Equal(t, 8080, cfg.Deployment.ServingPort)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, t.TempDir(), "server: [unclosed"))
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err, "defaults lack credentials, repository and execution role")
	assert.Contains(t, err.Error(), "objectStore")
	assert.Contains(t, err.Error(), "registry")
	assert.Contains(t, err.Error(), "executionRoleArn")

	cfg.Log.Level = "verbose"
	cfg.Store.Driver = "mongo"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidateDeployment(t *testing.T) {
	valid := Default().Deployment
	valid.ExecutionRoleARN = "arn:aws:iam::1:role/r"
	require.NoError(t, ValidateDeployment(valid))

	tests := []struct {
		name   string
		mutate func(d *types.DeploymentConfig)
	}{
		{"version", func(d *types.DeploymentConfig) { d.Version = 0 }},
		{"template", func(d *types.DeploymentConfig) { d.Template = "ruby" }},
		{"port", func(d *types.DeploymentConfig) { d.ServingPort = 70000 }},
		{"instance count", func(d *types.DeploymentConfig) { d.InstanceCount = 0 }},
		{"poll interval", func(d *types.DeploymentConfig) { d.PollInterval = 0 }},
		{"poll timeout", func(d *types.DeploymentConfig) { d.PollTimeout = time.Second }},
		{"call timeout", func(d *types.DeploymentConfig) { d.CallTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			assert.Error(t, ValidateDeployment(d))
		})
	}
}

func TestWatcher_ReloadsDeploymentSection(t *testing.T) {
	t.Setenv("MODELHOST_TEST_ACCESS_KEY", "k")
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	w := NewWatcher(path, cfg.Deployment)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register before the write
	time.Sleep(100 * time.Millisecond)

	updated := sampleConfig + "  instanceCount: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		return w.Deployment().InstanceCount == 3
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(sampleConfig+"  instanceCount: 0\n"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 3, w.Deployment().InstanceCount, "invalid revisions are ignored")

	cancel()
	assert.NoError(t, <-done)
}

func TestStatic(t *testing.T) {
	d := Default().Deployment
	assert.Equal(t, d, Static(d).Deployment())
}
