package types

import (
	"time"
)

// Status represents the hosting lifecycle state of a deployment.
// The string values are persisted and sent to clients verbatim.
type Status string

const (
	StatusCreating  Status = "Creating"
	StatusInService Status = "InService"
	StatusFailed    Status = "Failed"
)

// ValidStatusTransitions defines the allowed status transitions.
// Creating is the only non-terminal state: Creating → (InService | Failed)
var ValidStatusTransitions = map[Status][]Status{
	StatusCreating:  {StatusInService, StatusFailed},
	StatusInService: {}, // Terminal state
	StatusFailed:    {}, // Terminal state
}

// Valid reports whether s is one of the known status tokens
func (s Status) Valid() bool {
	_, ok := ValidStatusTransitions[s]
	return ok
}

// IsTerminal returns true if no further automatic transition may occur
func (s Status) IsTerminal() bool {
	return s == StatusInService || s == StatusFailed
}

// CanTransition checks if a status transition is allowed
func CanTransition(from, to Status) bool {
	for _, s := range ValidStatusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseStatus converts a persisted token into a Status
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", InvalidArgumentf("unknown status %q", s)
	}
	return status, nil
}

// Deployment is the persisted record tracking one model's hosting lifecycle.
//
// Location fields are written in pairs by the pipeline, each pair only
// after its stage has fully succeeded.
type Deployment struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	UserID string `json:"userId,omitempty"`
	Status Status `json:"status"`

	// Set by the artifact store stage
	BucketName      string `json:"bucketName,omitempty"`
	BucketObjectKey string `json:"bucketObjectKey,omitempty"`

	// Set by the registry publish stage
	ImageTag         string `json:"imageTag,omitempty"`
	RegistryRepoName string `json:"registryRepoName,omitempty"`

	// Set before the hosting model is registered; the serving config is
	// named after it
	HostingModelName string `json:"hostingModelName,omitempty"`

	// Set as soon as the endpoint create call succeeds
	EndpointName string `json:"endpointName,omitempty"`

	// Last failure cause, kept for manual debugging
	FailureReason string `json:"failureReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewDeployment returns a record in the initial Creating state
func NewDeployment(id, name, userID string) *Deployment {
	now := time.Now().UTC()
	return &Deployment{
		ID:        id,
		Name:      name,
		UserID:    userID,
		Status:    StatusCreating,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy of the record
func (d *Deployment) Clone() *Deployment {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// DeploymentUpdate is a partial-field update. Nil fields are left untouched.
// Use the constructors below so paired fields are always set together.
type DeploymentUpdate struct {
	Status           *Status `json:"status,omitempty"`
	FailureReason    *string `json:"failureReason,omitempty"`
	BucketName       *string `json:"bucketName,omitempty"`
	BucketObjectKey  *string `json:"bucketObjectKey,omitempty"`
	ImageTag         *string `json:"imageTag,omitempty"`
	RegistryRepoName *string `json:"registryRepoName,omitempty"`
	HostingModelName *string `json:"hostingModelName,omitempty"`
	EndpointName     *string `json:"endpointName,omitempty"`
}

// StatusUpdate changes only the status
func StatusUpdate(s Status) DeploymentUpdate {
	return DeploymentUpdate{Status: &s}
}

// FailedUpdate marks the record Failed and records why
func FailedUpdate(reason string) DeploymentUpdate {
	s := StatusFailed
	return DeploymentUpdate{Status: &s, FailureReason: &reason}
}

// ArtifactUpdate records where the uploaded artifact was stored
func ArtifactUpdate(bucket, key string) DeploymentUpdate {
	return DeploymentUpdate{BucketName: &bucket, BucketObjectKey: &key}
}

// ImageUpdate records the published image
func ImageUpdate(tag, repo string) DeploymentUpdate {
	return DeploymentUpdate{ImageTag: &tag, RegistryRepoName: &repo}
}

// HostingModelUpdate records the name the hosting model is registered under
func HostingModelUpdate(name string) DeploymentUpdate {
	return DeploymentUpdate{HostingModelName: &name}
}

// EndpointUpdate records the managed endpoint name
func EndpointUpdate(name string) DeploymentUpdate {
	return DeploymentUpdate{EndpointName: &name}
}

// IsEmpty reports whether the update touches no field
func (u DeploymentUpdate) IsEmpty() bool {
	return u.Status == nil && u.FailureReason == nil &&
		u.BucketName == nil && u.BucketObjectKey == nil &&
		u.ImageTag == nil && u.RegistryRepoName == nil &&
		u.HostingModelName == nil && u.EndpointName == nil
}

// Validate checks the update against the current record.
// A status change on a terminal record returns ErrTerminalStatus.
func (u DeploymentUpdate) Validate(current *Deployment) error {
	if u.Status == nil {
		return nil
	}
	if !u.Status.Valid() {
		return InvalidArgumentf("unknown status %q", *u.Status)
	}
	if current.Status.IsTerminal() {
		return ErrTerminalStatus
	}
	if *u.Status != current.Status && !CanTransition(current.Status, *u.Status) {
		return InvalidArgumentf("transition %s -> %s not allowed", current.Status, *u.Status)
	}
	return nil
}

// Apply writes the non-nil fields onto d
func (u DeploymentUpdate) Apply(d *Deployment) {
	if u.Status != nil {
		d.Status = *u.Status
	}
	if u.FailureReason != nil {
		d.FailureReason = *u.FailureReason
	}
	if u.BucketName != nil {
		d.BucketName = *u.BucketName
	}
	if u.BucketObjectKey != nil {
		d.BucketObjectKey = *u.BucketObjectKey
	}
	if u.ImageTag != nil {
		d.ImageTag = *u.ImageTag
	}
	if u.RegistryRepoName != nil {
		d.RegistryRepoName = *u.RegistryRepoName
	}
	if u.HostingModelName != nil {
		d.HostingModelName = *u.HostingModelName
	}
	if u.EndpointName != nil {
		d.EndpointName = *u.EndpointName
	}
	d.UpdatedAt = time.Now().UTC()
}
