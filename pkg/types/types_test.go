package types

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from, to Status
		expected bool
	}{
		{"creating to in service", StatusCreating, StatusInService, true},
		{"creating to failed", StatusCreating, StatusFailed, true},
		{"in service to failed", StatusInService, StatusFailed, false},
		{"failed to creating", StatusFailed, StatusCreating, false},
		{"failed to in service", StatusFailed, StatusInService, false},
		{"unknown source", Status("Updating"), StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanTransition(tt.from, tt.to))
		})
	}

	assert.False(t, StatusCreating.IsTerminal())
	assert.True(t, StatusInService.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestParseStatus(t *testing.T) {
	for _, token := range []string{"Creating", "InService", "Failed"} {
		s, err := ParseStatus(token)
		assert.NoError(t, err)
		assert.Equal(t, token, string(s))
	}

	_, err := ParseStatus("creating")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestDeploymentUpdate_Validate(t *testing.T) {
	creating := NewDeployment("d1", "m", "u")
	failed := NewDeployment("d2", "m", "u")
	failed.Status = StatusFailed

	assert.NoError(t, ArtifactUpdate("b", "k").Validate(failed), "location fields may be written on any record")
	assert.NoError(t, StatusUpdate(StatusInService).Validate(creating))
	assert.ErrorIs(t, StatusUpdate(StatusInService).Validate(failed), ErrTerminalStatus)
	assert.ErrorIs(t, FailedUpdate("boom").Validate(failed), ErrTerminalStatus)
	assert.ErrorIs(t, StatusUpdate(Status("Bogus")).Validate(creating), ErrInvalidArgument)
}

func TestDeploymentUpdate_ApplyPairs(t *testing.T) {
	d := NewDeployment("d1", "MyModel", "u")
	before := d.UpdatedAt

	ArtifactUpdate("models", "model.tar.gz").Apply(d)
	assert.Equal(t, "models", d.BucketName)
	assert.Equal(t, "model.tar.gz", d.BucketObjectKey)
	assert.Empty(t, d.ImageTag)

	ImageUpdate("model-1", "repo").Apply(d)
	assert.Equal(t, "model-1", d.ImageTag)
	assert.Equal(t, "repo", d.RegistryRepoName)

	FailedUpdate("push failed").Apply(d)
	assert.Equal(t, StatusFailed, d.Status)
	assert.Equal(t, "push failed", d.FailureReason)
	assert.False(t, d.UpdatedAt.Before(before))

	assert.True(t, DeploymentUpdate{}.IsEmpty())
	assert.False(t, EndpointUpdate("e").IsEmpty())
	assert.False(t, HostingModelUpdate("m").IsEmpty())

	HostingModelUpdate("MyModel-dep1").Apply(d)
	assert.Equal(t, "MyModel-dep1", d.HostingModelName)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "MyModel", NormalizeName("My Model"))
	assert.Equal(t, "MyModel", NormalizeName("  My\tMo del\n"))
	assert.Equal(t, "", NormalizeName(" \t "))
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "MyModel", false},
		{"hyphenated", "sentiment-v2", false},
		{"empty", "", true},
		{"leading hyphen", "-model", true},
		{"underscore", "my_model", true},
		{"dot", "my.model", true},
		{"too long", strings.Repeat("a", 60), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewImageTag(t *testing.T) {
	ts := time.UnixMilli(1700000000123)

	assert.Equal(t, "model-1699999999999.tar.gz-1700000000123", NewImageTag("model-1699999999999.tar.gz", ts))
	assert.Equal(t, "my-model.tar.gz-1700000000123", NewImageTag("My Model.tar.gz", ts))
	assert.Equal(t, "model-1700000000123", NewImageTag("...", ts))

	long := NewImageTag(strings.Repeat("x", 300), ts)
	assert.Len(t, long, 128)
	assert.True(t, strings.HasSuffix(long, "-1700000000123"))
}

func TestJobNames(t *testing.T) {
	job := &Job{DeploymentID: "3F2B9C1D-7e4a-4b4f-9a0e-1c2d3e4f5a6b", ModelName: "MyModel"}
	assert.Equal(t, "MyModel-3f2b9c1d", job.HostingModelName())
	assert.Equal(t, "MyModel-3f2b9c1d-config", job.ServingConfigName())
	assert.Equal(t, "MyModel-3f2b9c1d-endpoint", job.EndpointName())

	other := &Job{DeploymentID: "9a8b7c6d-0000-0000-0000-000000000000", ModelName: "MyModel"}
	assert.NotEqual(t, job.EndpointName(), other.EndpointName(), "same model name, different deployments")

	longest := &Job{DeploymentID: job.DeploymentID, ModelName: strings.Repeat("a", maxHostingNameLen)}
	assert.NoError(t, ValidateName(longest.ModelName))
	assert.Len(t, longest.EndpointName(), 63)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "dep1", ShortID("dep-1"))
	assert.Equal(t, "abcdef12", ShortID("ABCDEF12-3456"))
	assert.Equal(t, "0", ShortID("--"))
}
