// Package proc runs external helper binaries (installers, registry tools,
// desktop integration commands) behind an interface tests can stub.
package proc

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes external commands.
type Runner interface {
	// Run waits for the command and returns its stdout.
	Run(ctx context.Context, bin string, args ...string) ([]byte, error)
	// Stream calls onLine for every stdout line until the command exits.
	Stream(ctx context.Context, bin string, args []string, onLine func(string)) error
	// Start launches a detached command without waiting for it.
	Start(bin string, args ...string) error
}

// ExitError carries the stderr of a failed command.
type ExitError struct {
	Bin    string
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Bin, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Bin, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exec is the Runner backed by os/exec.
type Exec struct{}

// Run implements Runner.
func (Exec) Run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, &ExitError{Bin: bin, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return out, nil
}

// Stream implements Runner.
func (Exec) Stream(ctx context.Context, bin string, args []string, onLine func(string)) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s: stdout pipe: %w", bin, err)
	}
	if err := cmd.Start(); err != nil {
		return &ExitError{Bin: bin, Err: err}
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if onLine != nil {
			onLine(scanner.Text())
		}
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		return &ExitError{Bin: bin, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	if scanErr != nil {
		return fmt.Errorf("%s: read output: %w", bin, scanErr)
	}
	return nil
}

// Start implements Runner.
func (Exec) Start(bin string, args ...string) error {
	cmd := exec.Command(bin, args...)
	if err := cmd.Start(); err != nil {
		return &ExitError{Bin: bin, Err: err}
	}
	return cmd.Process.Release()
}
