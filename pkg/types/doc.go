/*
Package types defines the core data structures shared by the modelhost pipeline.

# Core Types

Deployment Record:
  - Deployment: persisted hosting lifecycle of one model
  - Status: Creating, InService, Failed (literal tokens, wire compatible)
  - DeploymentUpdate: partial-field update applied by the persistence layer

Pipeline:
  - Job: parameter object threaded through upload, build, publish and provision
  - DeploymentConfig: versioned deployment configuration snapshot

# Status Lifecycle

	Creating ──┬──> InService
	           └──> Failed

Creating is the initial and only non-terminal state. Once a record is
InService or Failed, DeploymentUpdate.Validate rejects any further status
change with ErrTerminalStatus.

# Paired Fields

Location fields are only written through the pair constructors:

	types.ArtifactUpdate(bucket, key)    // bucketName + bucketObjectKey
	types.ImageUpdate(tag, repo)         // imageTag + registryRepoName
	types.HostingModelUpdate(name)       // hostingModelName
	types.EndpointUpdate(name)           // endpointName

so a record never carries one half of a pair.

# Naming

NormalizeName strips whitespace ("My Model" becomes "MyModel"). Hosting
resources carry a short form of the deployment id so two deployments of the
same model never share them: model "MyModel-3f2b9c1d", serving configuration
"MyModel-3f2b9c1d-config" and endpoint "MyModel-3f2b9c1d-endpoint". NewImageTag produces the image reference
"{artifactFilename}-{unixMillis}", generated once per upload.

# Thread Safety

Types are plain values. The storage layer (pkg/storage) serializes updates to
a record; callers that share a *Deployment must synchronize themselves.
*/
package types
