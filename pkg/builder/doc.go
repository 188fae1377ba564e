/*
Package builder renders a Dockerfile for a model artifact and builds it on
the Docker daemon.

Only the rendered Dockerfile and the artifact are sent as build context.
Build reads the daemon's progress stream to the end and returns the image
id it reports; an error message in the stream fails the build.

# Templates

	python-requirements    installs the archive's requirements.txt
	python-transformers    installs Flask and transformers[torch]

Both unpack the archive into /app and run the configured entrypoint.
*/
package builder
