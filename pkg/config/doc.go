/*
Package config loads the service configuration from YAML.

Environment references such as ${MODELHOST_ACCESS_KEY} are expanded before
parsing, and unset values fall back to Default. The deployment section can
be reloaded at runtime: a Watcher follows the config file with fsnotify and
swaps in the new DeploymentConfig when it validates, keeping the previous
one otherwise.

	server:
	  addr: ":8080"
	  uploadDir: ./uploads
	registry:
	  repository: 123456789012.dkr.ecr.us-east-1.amazonaws.com/models
	  commandTimeout: 5m
	deployment:
	  pollInterval: 5s
	  pollTimeout: 60m
*/
package config
