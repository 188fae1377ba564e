/*
Package pipeline runs deployment jobs from an uploaded artifact to a live
inference endpoint.

An Orchestrator accepts an Upload, prepares a private build context for it
and starts one goroutine per job. Run returns as soon as the job is
accepted; the caller learns the outcome through the tracker's notifications.

# Stages

	upload ──▶ build ──▶ publish ──▶ provision
	   │         │          │            │
	   ▼         ▼          ▼            ▼
	artifact   image     image +     hosting model,
	location   (local)   repository  serving config,
	recorded             recorded    endpoint recorded

A stage failure stops the job, wraps the cause in a DeploymentError naming
the stage, and marks the record Failed. Fields written by earlier stages
are kept.

# Concurrency

Each deployment runs at most one job at a time. A second Run for an id that
is still in flight returns ErrJobRunning and its build context is removed.
Shutdown refuses new jobs with ErrShuttingDown and waits for running ones
until its context expires.

# Teardown

Teardown removes what a deployment left behind using only the names stored
on its record: the local image when one was published, then the endpoint,
the serving config and the hosting model.
*/
package pipeline
