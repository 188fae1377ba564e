package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cuemby/modelhost/pkg/log"
)

// Result captures the outcome of one external command
type Result struct {
	Command  []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ExitError is returned when a command ran but exited non-zero
type ExitError struct {
	Result Result
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q exited with code %d", strings.Join(e.Result.Command, " "), e.Result.ExitCode)
	if stderr := strings.TrimSpace(e.Result.Stderr); stderr != "" {
		msg += ": " + truncate(stderr, 512)
	}
	return msg
}

// Runner runs external commands and reports their output.
// A non-nil error means the command could not run or exited non-zero.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands on the host with os/exec
type ExecRunner struct {
	// Timeout bounds each command (default: 5 minutes)
	Timeout time.Duration

	// Env is appended to the inherited environment
	Env []string
}

// NewExecRunner creates a runner with the default timeout
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Timeout: 5 * time.Minute}
}

// WithTimeout sets the per-command timeout
func (r *ExecRunner) WithTimeout(timeout time.Duration) *ExecRunner {
	r.Timeout = timeout
	return r
}

// Run executes name with args and waits for it to finish
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	start := time.Now()
	res := Result{Command: append([]string{name}, args...), ExitCode: -1}

	if name == "" {
		return res, errors.New("no command specified")
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := log.WithComponent("command")
	logger.Debug().Str("command", name).Int("args", len(args)).Msg("Running command")

	err := cmd.Run()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Duration = time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, fmt.Errorf("command %q: %w", name, ctxErr)
			}
			return res, &ExitError{Result: res}
		}
		return res, fmt.Errorf("command %q: %w", name, err)
	}

	res.ExitCode = 0
	return res, nil
}

// Shell runs a full command line through "sh -c". Used for the configured
// registry login command, which is a pipeline rather than a single binary.
func Shell(ctx context.Context, r Runner, line string) (Result, error) {
	if strings.TrimSpace(line) == "" {
		return Result{ExitCode: -1}, errors.New("empty command line")
	}
	return r.Run(ctx, "sh", "-c", line)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
