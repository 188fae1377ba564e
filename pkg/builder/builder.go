package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/modelhost/pkg/log"
	"github.com/docker/docker/pkg/jsonmessage"
)

// ErrNoImageID is returned when a build finished without reporting an image ID
var ErrNoImageID = errors.New("build output carried no image id")

// Options select the Dockerfile rendered for a build
type Options struct {
	Template  string
	BaseImage string
	Port      int
}

// Builder turns an uploaded artifact into a locally tagged image
type Builder struct {
	engine Engine
}

// NewBuilder creates a builder over engine
func NewBuilder(engine Engine) *Builder {
	return &Builder{engine: engine}
}

// Build writes a Dockerfile into contextDir, builds an image tagged
// imageTag from the Dockerfile and the artifact, and returns the image ID
// reported by the engine. There is no retry.
func (b *Builder) Build(ctx context.Context, contextDir, artifactFilename, imageTag string, opts Options) (string, error) {
	logger := log.WithComponent("builder").With().Str("image_tag", imageTag).Logger()

	dockerfile, err := RenderDockerfile(opts.Template, Params{
		ArtifactFilename: artifactFilename,
		BaseImage:        opts.BaseImage,
		Port:             opts.Port,
	})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(contextDir, "Dockerfile"), dockerfile, 0o644); err != nil {
		return "", fmt.Errorf("write dockerfile: %w", err)
	}

	stream, err := b.engine.BuildImage(ctx, contextDir, []string{"Dockerfile", artifactFilename}, imageTag)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	events, err := readEvents(stream, func(msg jsonmessage.JSONMessage) {
		if line := strings.TrimSpace(msg.Stream); line != "" {
			logger.Debug().Msg(line)
		}
	})
	if err != nil {
		return "", err
	}

	imageID, ok := ScanImageID(events)
	if !ok {
		return "", ErrNoImageID
	}

	logger.Info().Str("image_id", imageID).Msg("Image built")
	return imageID, nil
}

func readEvents(r io.Reader, onEvent func(jsonmessage.JSONMessage)) ([]jsonmessage.JSONMessage, error) {
	var events []jsonmessage.JSONMessage
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, fmt.Errorf("decode build output: %w", err)
		}
		if msg.Error != nil {
			return events, fmt.Errorf("build failed: %w", msg.Error)
		}
		if msg.ErrorMessage != "" {
			return events, fmt.Errorf("build failed: %s", msg.ErrorMessage)
		}
		onEvent(msg)
		events = append(events, msg)
	}
}

type auxID struct {
	ID string `json:"ID"`
}

// ScanImageID walks the events from last to first and returns the first
// auxiliary image ID found, so the most recent one wins.
func ScanImageID(events []jsonmessage.JSONMessage) (string, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Aux == nil {
			continue
		}
		var aux auxID
		if err := json.Unmarshal(*events[i].Aux, &aux); err != nil {
			continue
		}
		if aux.ID != "" {
			return aux.ID, true
		}
	}
	return "", false
}
