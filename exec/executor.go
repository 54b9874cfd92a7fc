// Package exec provides an abstraction over long-running command execution
// for testability. Production code uses RealExecutor to spawn agent-requested
// terminal commands, while tests inject a MockExecutor that returns
// pre-recorded output and exit codes.
package exec

import (
	"context"
	"errors"
	"os/exec"
	"sync"
)

// DefaultOutputLimit caps how much combined output a handle retains.
// Agents poll terminal output incrementally; unbounded capture would let a
// chatty command exhaust memory.
const DefaultOutputLimit = 1 << 20 // 1 MiB

// Executor abstracts starting commands whose lifecycle outlives the call.
type Executor interface {
	// Start launches name with args in dir and returns a Handle for polling
	// output, awaiting exit, and killing the process.
	Start(ctx context.Context, dir string, name string, args ...string) (Handle, error)
}

// Handle represents one running (or finished) command.
type Handle interface {
	// Output returns the combined stdout+stderr captured so far and whether
	// the capture was truncated at the output limit.
	Output() ([]byte, bool)

	// ExitStatus returns the exit code and whether the process has exited.
	ExitStatus() (int, bool)

	// Wait blocks until the process exits and returns its exit code.
	Wait() int

	// Kill forcibly terminates the process. Safe to call after exit.
	Kill() error
}

// RealExecutor starts commands using os/exec.
type RealExecutor struct {
	// OutputLimit overrides DefaultOutputLimit when positive.
	OutputLimit int
}

// NewRealExecutor returns a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// Start launches the command and begins capturing combined output.
func (e *RealExecutor) Start(ctx context.Context, dir string, name string, args ...string) (Handle, error) {
	limit := e.OutputLimit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	h := &realHandle{
		cmd:   cmd,
		limit: limit,
		done:  make(chan struct{}),
	}
	cmd.Stdout = (*limitWriter)(h)
	cmd.Stderr = (*limitWriter)(h)

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.exited = true
		h.exitCode = exitCodeFrom(err)
		h.mu.Unlock()
		close(h.done)
	}()

	return h, nil
}

// exitCodeFrom extracts an exit code from cmd.Wait's error.
// A non-exit error (e.g. killed before start completed) maps to -1.
func exitCodeFrom(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// realHandle wraps a running exec.Cmd with bounded output capture.
type realHandle struct {
	cmd   *exec.Cmd
	limit int
	done  chan struct{}

	mu        sync.Mutex
	buf       []byte
	truncated bool
	exited    bool
	exitCode  int
}

// limitWriter funnels stdout/stderr into the handle's bounded buffer.
type limitWriter realHandle

func (w *limitWriter) Write(p []byte) (int, error) {
	h := (*realHandle)(w)
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.limit - len(h.buf)
	if room <= 0 {
		h.truncated = true
		return len(p), nil // swallow past the limit, keep the pipe draining
	}
	if len(p) > room {
		h.buf = append(h.buf, p[:room]...)
		h.truncated = true
	} else {
		h.buf = append(h.buf, p...)
	}
	return len(p), nil
}

func (h *realHandle) Output() ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]byte, len(h.buf))
	copy(out, h.buf)
	return out, h.truncated
}

func (h *realHandle) ExitStatus() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.exited
}

func (h *realHandle) Wait() int {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

func (h *realHandle) Kill() error {
	h.mu.Lock()
	exited := h.exited
	h.mu.Unlock()
	if exited || h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// MockResponse defines the behavior of a mocked command.
type MockResponse struct {
	Output   []byte
	ExitCode int
	StartErr error
	// Block keeps the handle "running" until Kill or Release is called.
	Block bool
}

// MockCall records a command invocation for verification.
type MockCall struct {
	Dir  string
	Name string
	Args []string
}

// MockExecutor returns pre-recorded handles for commands.
// Responses are consumed in registration order; when exhausted, an
// empty immediate-exit response is used.
type MockExecutor struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     []MockCall
}

// NewMockExecutor creates a new MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// Enqueue adds a response for the next started command.
func (e *MockExecutor) Enqueue(resp MockResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses = append(e.responses, resp)
}

// Calls returns all recorded command invocations.
func (e *MockExecutor) Calls() []MockCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	calls := make([]MockCall, len(e.calls))
	copy(calls, e.calls)
	return calls
}

// Start returns the next enqueued mock handle.
func (e *MockExecutor) Start(ctx context.Context, dir string, name string, args ...string) (Handle, error) {
	e.mu.Lock()
	e.calls = append(e.calls, MockCall{Dir: dir, Name: name, Args: args})
	var resp MockResponse
	if len(e.responses) > 0 {
		resp = e.responses[0]
		e.responses = e.responses[1:]
	}
	e.mu.Unlock()

	if resp.StartErr != nil {
		return nil, resp.StartErr
	}

	h := &mockHandle{
		output:   resp.Output,
		exitCode: resp.ExitCode,
		done:     make(chan struct{}),
	}
	if !resp.Block {
		h.exited = true
		close(h.done)
	}
	return h, nil
}

// mockHandle is a Handle backed by a MockResponse.
type mockHandle struct {
	mu       sync.Mutex
	output   []byte
	exitCode int
	exited   bool
	done     chan struct{}
}

func (h *mockHandle) Output() ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]byte, len(h.output))
	copy(out, h.output)
	return out, false
}

func (h *mockHandle) ExitStatus() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.exited
}

func (h *mockHandle) Wait() int {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

func (h *mockHandle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return nil
	}
	h.exited = true
	h.exitCode = -1
	close(h.done)
	return nil
}

// Ensure implementations satisfy the interfaces.
var _ Executor = (*RealExecutor)(nil)
var _ Executor = (*MockExecutor)(nil)
var _ Handle = (*realHandle)(nil)
var _ Handle = (*mockHandle)(nil)
