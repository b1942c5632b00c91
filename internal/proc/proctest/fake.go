// Package proctest provides a scripted proc.Runner for tests.
package proctest

import (
	"context"
	"strings"
	"sync"
)

// Call records one invocation made through the fake.
type Call struct {
	Method string
	Bin    string
	Args   []string
}

// Line renders the call as "bin arg1 arg2".
func (c Call) Line() string {
	return strings.TrimSpace(c.Bin + " " + strings.Join(c.Args, " "))
}

// Response scripts the result of a command matched by prefix.
type Response struct {
	Stdout string
	Lines  []string
	Err    error
}

// Runner is a proc.Runner that replays scripted responses.
// Responses are matched by the longest registered prefix of Call.Line.
type Runner struct {
	mu        sync.Mutex
	responses map[string]Response
	calls     []Call
}

// New returns an empty scripted runner.
func New() *Runner {
	return &Runner{responses: map[string]Response{}}
}

// On registers the response for commands whose line starts with prefix.
func (r *Runner) On(prefix string, resp Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[prefix] = resp
	return r
}

// Calls returns a copy of every recorded call.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Lines returns every recorded call rendered with Call.Line.
func (r *Runner) Lines() []string {
	var lines []string
	for _, c := range r.Calls() {
		lines = append(lines, c.Line())
	}
	return lines
}

func (r *Runner) record(method, bin string, args []string) Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := Call{Method: method, Bin: bin, Args: append([]string(nil), args...)}
	r.calls = append(r.calls, call)

	line := call.Line()
	best, found := "", false
	for prefix := range r.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) >= len(best) {
			best, found = prefix, true
		}
	}
	if !found {
		return Response{}
	}
	return r.responses[best]
}

// Run implements proc.Runner.
func (r *Runner) Run(_ context.Context, bin string, args ...string) ([]byte, error) {
	resp := r.record("run", bin, args)
	return []byte(resp.Stdout), resp.Err
}

// Stream implements proc.Runner.
func (r *Runner) Stream(_ context.Context, bin string, args []string, onLine func(string)) error {
	resp := r.record("stream", bin, args)
	for _, line := range resp.Lines {
		if onLine != nil {
			onLine(line)
		}
	}
	return resp.Err
}

// Start implements proc.Runner.
func (r *Runner) Start(bin string, args ...string) error {
	return r.record("start", bin, args).Err
}
