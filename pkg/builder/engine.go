package builder

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
)

// Engine builds container images from a context directory. The returned
// stream carries newline-delimited JSON progress messages.
type Engine interface {
	BuildImage(ctx context.Context, contextDir string, files []string, tag string) (io.ReadCloser, error)
}

// DockerEngine builds images through the local Docker daemon
type DockerEngine struct {
	cli *client.Client
}

// NewDockerEngine connects to the daemon described by the DOCKER_* environment
func NewDockerEngine() (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &DockerEngine{cli: cli}, nil
}

// BuildImage sends only the listed files of contextDir to the daemon. The
// context archive stays open until the returned stream is closed.
func (e *DockerEngine) BuildImage(ctx context.Context, contextDir string, files []string, tag string) (io.ReadCloser, error) {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{IncludeFiles: files})
	if err != nil {
		return nil, fmt.Errorf("archive build context: %w", err)
	}

	resp, err := e.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		buildCtx.Close()
		return nil, fmt.Errorf("image build: %w", err)
	}
	return &buildStream{ReadCloser: resp.Body, context: buildCtx}, nil
}

// buildStream is the daemon's progress stream; closing it also closes the
// context archive being uploaded
type buildStream struct {
	io.ReadCloser
	context io.Closer
}

func (s *buildStream) Close() error {
	err := s.ReadCloser.Close()
	if cerr := s.context.Close(); err == nil {
		err = cerr
	}
	return err
}

// Ping checks that the daemon is reachable
func (e *DockerEngine) Ping(ctx context.Context) error {
	_, err := e.cli.Ping(ctx)
	return err
}

// Close releases the client connection
func (e *DockerEngine) Close() error {
	return e.cli.Close()
}
