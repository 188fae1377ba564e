package builder

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackedCloser struct {
	io.Reader
	closed int
	err    error
}

func (c *trackedCloser) Close() error {
	c.closed++
	return c.err
}

func TestBuildStream_ClosesContextWithBody(t *testing.T) {
	body := &trackedCloser{Reader: strings.NewReader(`{"stream":"Step 1"}`)}
	archive := &trackedCloser{Reader: strings.NewReader("")}
	stream := &buildStream{ReadCloser: body, context: archive}

	out, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, `{"stream":"Step 1"}`, string(out))
	assert.Zero(t, archive.closed, "context archive must stay open while progress is read")

	require.NoError(t, stream.Close())
	assert.Equal(t, 1, body.closed)
	assert.Equal(t, 1, archive.closed)
}

func TestBuildStream_CloseErrors(t *testing.T) {
	bodyErr := errors.New("body")
	ctxErr := errors.New("context")

	s := &buildStream{
		ReadCloser: &trackedCloser{Reader: strings.NewReader(""), err: bodyErr},
		context:    &trackedCloser{err: ctxErr},
	}
	assert.ErrorIs(t, s.Close(), bodyErr)

	archive := &trackedCloser{err: ctxErr}
	s = &buildStream{ReadCloser: &trackedCloser{Reader: strings.NewReader("")}, context: archive}
	assert.ErrorIs(t, s.Close(), ctxErr)
	assert.Equal(t, 1, archive.closed)
}
