// Package client manages the agent subprocess and speaks newline-delimited
// JSON-RPC 2.0 with it over stdin/stdout. It correlates responses to in-flight
// requests, dispatches agent-initiated requests and notifications to
// callbacks, and owns process teardown.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/zhubert/acp-core/logger"
	"github.com/zhubert/acp-core/protocol"
)

// Sentinel errors returned by request and lifecycle operations.
var (
	// ErrNotRunning indicates the agent process has not been started.
	ErrNotRunning = errors.New("agent process not running")
	// ErrClosed indicates the client was stopped while a request was in flight.
	ErrClosed = errors.New("client closed")
	// ErrProcessDied indicates the agent exited before responding.
	ErrProcessDied = errors.New("agent process died")
	// ErrTimeout indicates a request deadline elapsed before a response arrived.
	ErrTimeout = errors.New("request timed out")
)

// stopTimeout bounds how long Stop waits for a graceful exit after closing
// stdin before force-killing the process.
const stopTimeout = 2 * time.Second

// maxLineSize is the scanner buffer limit for one JSON-RPC line.
// Agent message chunks can carry large file contents.
const maxLineSize = 10 * 1024 * 1024

// stderrTailLines is how many trailing stderr lines are retained for
// error reporting after the process dies.
const stderrTailLines = 20

// Callbacks receives agent-initiated traffic. Both callbacks are invoked from
// the read pump goroutine; they must not block indefinitely or the pump stalls.
type Callbacks struct {
	// OnNotification handles a notification (no response expected).
	OnNotification func(method string, params map[string]any)

	// OnRequest handles an agent-to-client request and returns either a
	// result or an error object. The client writes the response.
	OnRequest func(method string, params map[string]any) (any, *protocol.ErrorObject)
}

// outcome carries a correlated response back to the waiting caller.
type outcome struct {
	result json.RawMessage
	errObj *protocol.ErrorObject
}

// Client runs one agent subprocess for its lifetime.
// All exported methods are safe for concurrent use.
type Client struct {
	agentPath string
	agentArgs []string
	callbacks Callbacks

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	running  bool
	closed   bool
	pending  map[int64]chan outcome
	stderr   []string
	exitCode int

	codec   *protocol.Codec
	writeMu sync.Mutex

	waitDone chan struct{} // closed after cmd.Wait returns
	wg       sync.WaitGroup
}

// New creates a Client that will run agentPath with args. Start must be
// called before any request.
func New(agentPath string, args []string, callbacks Callbacks) *Client {
	return &Client{
		agentPath: agentPath,
		agentArgs: args,
		callbacks: callbacks,
		codec:     protocol.NewCodec(),
		pending:   make(map[int64]chan outcome),
		exitCode:  -1,
	}
}

// Start spawns the agent subprocess and begins pumping its output.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("agent process already running")
	}

	log := logger.WithComponent("client")

	cmd := exec.CommandContext(ctx, c.agentPath, c.agentArgs...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start agent %s: %w", c.agentPath, err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.running = true
	c.closed = false
	c.waitDone = make(chan struct{})

	log.Info("agent process started", "path", c.agentPath, "args", c.agentArgs, "pid", cmd.Process.Pid)

	c.wg.Add(2)
	go c.readPump(stdout)
	go c.drainStderr(stderr)
	go c.monitorExit()

	return nil
}

// IsRunning reports whether the agent process is alive.
func (c *Client) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// PID returns the agent process id, or 0 when not running.
func (c *Client) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// StderrTail returns the last captured stderr lines, for diagnostics after
// an unexpected exit.
func (c *Client) StderrTail() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.stderr))
	copy(out, c.stderr)
	return out
}

// SendRequest sends a JSON-RPC request and blocks until the agent responds,
// the context is done, or the process dies. An agent error response is
// returned as a *protocol.ErrorObject.
func (c *Client) SendRequest(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if !c.running {
		c.mu.Unlock()
		return nil, ErrNotRunning
	}
	c.mu.Unlock()

	id, data, err := c.codec.CreateRequest(method, params)
	if err != nil {
		return nil, err
	}

	ch := make(chan outcome, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.writeLine(data); err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case out, ok := <-ch:
		if !ok {
			return nil, ErrProcessDied
		}
		if out.errObj != nil {
			return nil, out.errObj
		}
		return out.result, nil
	case <-ctx.Done():
		c.removePending(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, method)
		}
		return nil, ctx.Err()
	}
}

// SendNotification sends a JSON-RPC notification. No response is expected.
func (c *Client) SendNotification(method string, params map[string]any) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.mu.Unlock()

	data, err := c.codec.CreateNotification(method, params)
	if err != nil {
		return err
	}
	return c.writeLine(data)
}

// writeLine writes one newline-terminated frame to the agent's stdin.
func (c *Client) writeLine(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	stdin := c.stdin
	c.mu.Unlock()
	if stdin == nil {
		return ErrNotRunning
	}

	if _, err := stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("stdin write failed: %w", err)
	}
	return nil
}

// removePending drops a pending entry after a local timeout or write failure.
// A late response for the id is then logged and discarded by the pump.
func (c *Client) removePending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readPump reads stdout line by line, classifies each frame, and dispatches.
// Runs until stdout closes.
func (c *Client) readPump(stdout io.Reader) {
	defer c.wg.Done()
	log := logger.WithComponent("client")

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg := c.codec.ParseMessage(line)

		switch msg.Type {
		case protocol.TypeResponse:
			c.deliver(msg, outcome{result: msg.Result})
		case protocol.TypeError:
			c.deliver(msg, outcome{errObj: msg.Err})
		case protocol.TypeNotification:
			c.handleNotification(msg)
		case protocol.TypeRequest:
			c.handleRequest(msg)
		case protocol.TypeParseError:
			log.Warn("dropping unparseable frame", "desc", msg.Desc)
		case protocol.TypeInvalid:
			log.Warn("dropping invalid frame", "desc", msg.Desc)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Debug("stdout pump ended", "error", err)
	}

	// Process is gone or going; fail everything still waiting.
	c.failPending()
}

// deliver routes a response or error to its waiting request.
func (c *Client) deliver(msg protocol.Message, out outcome) {
	id, ok := msg.IntID()
	if !ok {
		logger.WithComponent("client").Warn("response with non-integer id", "id", string(msg.ID))
		return
	}

	c.mu.Lock()
	ch, found := c.pending[id]
	if found {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !found {
		logger.WithComponent("client").Debug("response for unknown request id", "id", id)
		return
	}
	ch <- out
}

// handleNotification invokes the notification callback, containing panics so
// a handler bug cannot take down the read pump.
func (c *Client) handleNotification(msg protocol.Message) {
	cb := c.callbacks.OnNotification
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("client").Error("notification handler panicked", "method", msg.Method, "panic", r)
		}
	}()
	cb(msg.Method, msg.Params)
}

// handleRequest invokes the request callback and writes the response back.
// A missing callback or a panic yields a JSON-RPC error response so the agent
// is never left hanging.
func (c *Client) handleRequest(msg protocol.Message) {
	log := logger.WithComponent("client")

	var result any
	var errObj *protocol.ErrorObject

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("request handler panicked", "method", msg.Method, "panic", r)
				errObj = &protocol.ErrorObject{
					Code:    protocol.CodeInternalError,
					Message: fmt.Sprintf("internal error handling %s", msg.Method),
				}
			}
		}()
		if c.callbacks.OnRequest == nil {
			errObj = &protocol.ErrorObject{
				Code:    protocol.CodeMethodNotFound,
				Message: fmt.Sprintf("no handler for %s", msg.Method),
			}
			return
		}
		result, errObj = c.callbacks.OnRequest(msg.Method, msg.Params)
	}()

	var data []byte
	var err error
	if errObj != nil {
		data, err = c.codec.CreateErrorResponse(msg.ID, errObj.Code, errObj.Message, errObj.Data)
	} else {
		data, err = c.codec.CreateResponse(msg.ID, result)
	}
	if err != nil {
		log.Error("failed to marshal response", "method", msg.Method, "error", err)
		return
	}
	if err := c.writeLine(data); err != nil {
		log.Warn("failed to write response", "method", msg.Method, "error", err)
	}
}

// failPending closes out every in-flight request after the process dies.
func (c *Client) failPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan outcome)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

// drainStderr captures agent stderr for diagnostics. Agents log startup
// chatter here; only a short tail is kept.
func (c *Client) drainStderr(stderr io.Reader) {
	defer c.wg.Done()
	log := logger.WithComponent("client")

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug("agent stderr", "line", line)
		c.mu.Lock()
		c.stderr = append(c.stderr, line)
		if len(c.stderr) > stderrTailLines {
			c.stderr = c.stderr[len(c.stderr)-stderrTailLines:]
		}
		c.mu.Unlock()
	}
}

// monitorExit is the sole caller of cmd.Wait. It records the exit and
// releases anyone blocked in Stop.
func (c *Client) monitorExit() {
	err := c.cmd.Wait()

	c.mu.Lock()
	c.running = false
	if c.cmd.ProcessState != nil {
		c.exitCode = c.cmd.ProcessState.ExitCode()
	}
	waitDone := c.waitDone
	c.mu.Unlock()

	log := logger.WithComponent("client")
	if err != nil {
		log.Info("agent process exited", "error", err)
	} else {
		log.Info("agent process exited cleanly")
	}

	close(waitDone)
}

// ExitCode returns the agent's exit code, or -1 if it has not exited.
func (c *Client) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

// Stop shuts the agent down: close stdin to signal EOF, give it a short
// graceful window, then kill. Blocks until the pumps have drained.
// Safe to call when not running and safe to call twice.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stdin := c.stdin
	c.stdin = nil
	running := c.running
	cmd := c.cmd
	waitDone := c.waitDone
	c.mu.Unlock()

	log := logger.WithComponent("client")

	if stdin != nil {
		stdin.Close()
	}

	if running && cmd != nil && waitDone != nil {
		select {
		case <-waitDone:
		case <-time.After(stopTimeout):
			log.Warn("agent did not exit after stdin close, killing", "pid", cmd.Process.Pid)
			cmd.Process.Kill()
			<-waitDone
		}
	}

	c.wg.Wait()
	c.failPending()
	log.Info("client stopped")
}

// KillSync terminates the agent without waiting on goroutines or channels,
// for use from signal handlers. SIGTERM first, a short poll for exit, then
// SIGKILL. No-op when the process is already gone.
func (c *Client) KillSync() {
	c.mu.Lock()
	cmd := c.cmd
	running := c.running
	c.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		return
	}

	cmd.Process.Signal(syscall.SIGTERM)

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		// Signal 0 probes for existence without delivering anything.
		if err := cmd.Process.Signal(syscall.Signal(0)); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	cmd.Process.Kill()
}
