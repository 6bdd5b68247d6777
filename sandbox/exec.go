package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// ExecResult holds the outcome of one script execution.
type ExecResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Render formats the result the way it is fed back to the model: a non-zero
// exit status line, then labeled stdout and stderr sections, or a no-output
// notice when both streams are empty.
func (r *ExecResult) Render() string {
	var parts []string
	if r.ExitCode != 0 {
		parts = append(parts, fmt.Sprintf("Process exited with code %d", r.ExitCode))
	}
	if r.Stdout == "" && r.Stderr == "" {
		parts = append(parts, "No output produced")
	} else {
		if r.Stdout != "" {
			parts = append(parts, "STDOUT:\n"+r.Stdout)
		}
		if r.Stderr != "" {
			parts = append(parts, "STDERR:\n"+r.Stderr)
		}
	}
	return strings.Join(parts, "\n")
}

// RunScript executes a script file inside the sandbox under the configured
// interpreter and wall-clock timeout. The child gets its own process group;
// on timeout the whole group is killed so no orphans remain, and the result
// reports TimedOut with whatever partial output was captured.
func (d *Dir) RunScript(ctx context.Context, path string, args []string) (*ExecResult, error) {
	target, err := d.Resolve(path)
	if err != nil {
		return nil, fmt.Errorf("cannot execute %q: %w", path, err)
	}

	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%q does not exist or is not a regular file", path)
	}
	if !strings.HasSuffix(path, d.exec.Ext) {
		return nil, fmt.Errorf("%q is not a %s script", path, d.exec.Ext)
	}

	ctx, cancel := context.WithTimeout(ctx, d.exec.Timeout)
	defer cancel()

	argv := append([]string{target}, args...)
	cmd := exec.CommandContext(ctx, d.exec.Interpreter, argv...)
	cmd.Dir = d.root
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// At the deadline, kill the whole process group. The default cancel only
	// signals the interpreter, and a surviving grandchild would hold the
	// output pipes open past the timeout.
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.ExitCode = -1
			return result, nil
		}
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("executing %q: %w", path, runErr)
	}

	return result, nil
}

// Timeout returns the configured wall-clock limit for script runs.
func (d *Dir) Timeout() time.Duration { return d.exec.Timeout }
