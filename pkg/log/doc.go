/*
Package log provides structured logging for modelhost using zerolog.

The package wraps a global zerolog.Logger with component-specific child loggers
so that every pipeline stage, the API server and the notifier emit consistent
fields that can be filtered in production.

# Log Levels

Debug Level:
  - Build engine progress lines, dropped notifications, poll iterations

Info Level:
  - Stage start/finish, status transitions, server lifecycle

Warn Level:
  - Best-effort teardown failures, config reload problems

Error Level:
  - Stage failures that mark a deployment Failed

# Usage

Initializing the Logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component Loggers:

	logger := log.WithComponent("provisioner")
	logger.Info().Str("endpoint", name).Msg("Endpoint created")

	jobLog := log.WithJob("pipeline", job.DeploymentID, job.ImageTag)
	jobLog.Error().Err(err).Str("stage", "build").Msg("Stage failed")

Field names used across packages:

	component      package or subsystem name
	deployment_id  Deployment record id
	user_id        owner of the deployment / notifier key
	image_tag      per-upload image reference
	stage          upload, build, publish, provision

# Thread Safety

zerolog loggers are safe for concurrent use. Init must be called once at
process start before any goroutine logs.
*/
package log
