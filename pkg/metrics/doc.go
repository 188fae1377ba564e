/*
Package metrics provides Prometheus metrics, health tracking and the
/health and /ready handlers for modelhost.

All metrics are registered with the default registry at package init and
exposed through Handler().

# Metrics

Pipeline:

	modelhost_deployments_total{status}            gauge, refreshed by the Collector
	modelhost_deployments_finished_total{status}   InService / Failed transitions
	modelhost_jobs_active                          jobs currently running
	modelhost_stage_duration_seconds{stage}        upload, build, publish, provision
	modelhost_stage_failures_total{stage}
	modelhost_endpoint_polls_total                 endpoint status queries

Notifications:

	modelhost_notifications_total{result}          delivered, dropped, no_session
	modelhost_sessions_active

API:

	modelhost_api_requests_total{method, status}
	modelhost_api_request_duration_seconds{method}

# Timing

	timer := metrics.NewTimer()
	err := uploader.Upload(ctx, path, key)
	timer.ObserveDurationVec(metrics.StageDuration, "upload")

# Health

Components report their state with UpdateComponent, usually through a
Collector checks:

	c := metrics.NewCollector(store, 15*time.Second)
	c.AddCheck("store", store.Ping)
	c.AddCheck("objectStore", uploader.CheckBucket)
	c.Start()
	defer c.Stop()

/health is 503 when any component is unhealthy. /ready is 503 until every
critical component (SetCriticalComponents, default "store") has reported
healthy.

Useful queries:

	rate(modelhost_stage_failures_total[5m])
	histogram_quantile(0.95, rate(modelhost_stage_duration_seconds_bucket{stage="provision"}[1h]))
	modelhost_deployments_total{status="Creating"}
*/
package metrics
