package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Status classifies a capture attempt.
type Status int

const (
	Success Status = iota
	Timeout
	Failure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	default:
		return "failure"
	}
}

// Result is the outcome of one Method invocation.
type Result struct {
	Status  Status
	Err     error
	Stderr  string
	Elapsed time.Duration
}

// Method produces an image file at path, bounded by its own timeout.
type Method interface {
	Name() string
	Capture(ctx context.Context, path string) Result
}

// PathPlaceholder in CommandMethod.Args is replaced by the output path.
const PathPlaceholder = "{path}"

// DefaultTimeout bounds one external camera command.
const DefaultTimeout = 10 * time.Second

// CommandMethod runs an external camera program.
type CommandMethod struct {
	Label   string
	Command string
	Args    []string
	Timeout time.Duration
}

// Name implements Method.
func (m CommandMethod) Name() string {
	if m.Label != "" {
		return m.Label
	}
	return m.Command
}

// Capture implements Method.
func (m CommandMethod) Capture(ctx context.Context, path string) Result {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, len(m.Args))
	for i, a := range m.Args {
		args[i] = strings.ReplaceAll(a, PathPlaceholder, path)
	}

	cmd := exec.CommandContext(ctx, m.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	res := Result{Stderr: strings.TrimSpace(stderr.String()), Elapsed: time.Since(start)}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Status = Timeout
		res.Err = fmt.Errorf("%s timed out after %s", m.Name(), timeout)
	case err != nil:
		res.Status = Failure
		res.Err = fmt.Errorf("%s: %w", m.Name(), err)
	default:
		res.Status = Success
	}
	return res
}

// DefaultMethods returns the camera programs tried on a Raspberry Pi style
// host, in order: rpicam-still, libcamera-still, then fswebcam for USB
// cameras.
func DefaultMethods(timeout time.Duration, width, height int) []Method {
	w, h := strconv.Itoa(width), strconv.Itoa(height)
	return []Method{
		CommandMethod{
			Command: "rpicam-still",
			Args:    []string{"-n", "--immediate", "--width", w, "--height", h, "-o", PathPlaceholder},
			Timeout: timeout,
		},
		CommandMethod{
			Command: "libcamera-still",
			Args:    []string{"-n", "--immediate", "--width", w, "--height", h, "-o", PathPlaceholder},
			Timeout: timeout,
		},
		CommandMethod{
			Command: "fswebcam",
			Args:    []string{"-q", "--no-banner", "-r", w + "x" + h, "--jpeg", "95", PathPlaceholder},
			Timeout: timeout,
		},
	}
}
