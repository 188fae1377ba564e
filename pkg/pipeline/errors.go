package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a pipeline stage
type Stage string

const (
	StageUpload    Stage = "upload"
	StageBuild     Stage = "build"
	StagePublish   Stage = "publish"
	StageProvision Stage = "provision"
)

var (
	// ErrShuttingDown is returned by Run once Shutdown has started
	ErrShuttingDown = errors.New("pipeline is shutting down")

	// ErrJobRunning is returned by Run while a job for the same deployment is in flight
	ErrJobRunning = errors.New("a deployment job is already running")
)

// DeploymentError records the stage a job failed in
type DeploymentError struct {
	DeploymentID string
	Stage        Stage
	Err          error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deployment %s: %s stage: %v", e.DeploymentID, e.Stage, e.Err)
}

func (e *DeploymentError) Unwrap() error {
	return e.Err
}
