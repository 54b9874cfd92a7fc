// Package adapter orchestrates one ACP agent: it spawns the agent subprocess,
// performs the initialize and session/new handshake, runs prompts, folds
// streamed updates into session state, and answers the agent's permission,
// filesystem, and terminal requests.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhubert/acp-core/client"
	"github.com/zhubert/acp-core/config"
	"github.com/zhubert/acp-core/console"
	"github.com/zhubert/acp-core/exec"
	"github.com/zhubert/acp-core/handlers"
	"github.com/zhubert/acp-core/logger"
	"github.com/zhubert/acp-core/protocol"
	"github.com/zhubert/acp-core/session"
)

// ProtocolVersion is the ACP protocol version this client speaks.
const ProtocolVersion = 1

// Client identification sent in the initialize handshake.
const (
	clientName    = "acp-core"
	clientTitle   = "ACP Core"
	clientVersion = "1.0.0"
)

// acpModeArgs lists per-vendor flags required to put an agent into ACP mode,
// keyed by the agent executable's basename. Gemini needs the experimental
// flag plus auto-approval of its internal tools; write_file and
// run_shell_command are excluded so it falls back to fs/write_text_file and
// terminal/create.
var acpModeArgs = map[string][]string{
	"gemini": {
		"--experimental-acp",
		"--yolo",
		"--allowed-tools",
		"list_directory",
		"read_many_files",
		"read_file",
		"web_fetch",
		"google_web_search",
	},
}

// ErrNotInitialized is returned by Execute before a successful Initialize.
var ErrNotInitialized = errors.New("adapter not initialized")

// transport is the subset of client.Client the adapter uses. Tests swap in a
// scripted fake.
type transport interface {
	Start(ctx context.Context) error
	SendRequest(ctx context.Context, method string, params map[string]any) (json.RawMessage, error)
	IsRunning() bool
	StderrTail() []string
	Stop()
	KillSync()
}

// transportFactory builds the agent transport. Overridable for tests.
type transportFactory func(agentPath string, args []string, cb client.Callbacks) transport

func defaultTransport(agentPath string, args []string, cb client.Callbacks) transport {
	return client.New(agentPath, args, cb)
}

// Result is the outcome of one prompt round trip.
type Result struct {
	Success     bool
	Output      string
	Error       string
	StopReason  string
	SessionID   string
	ToolCalls   int
	HasThoughts bool
	Duration    time.Duration
}

// Adapter drives one ACP agent subprocess. Initialize once, Execute per
// prompt, Shutdown when done. All methods are safe for concurrent use;
// overlapping Execute calls are serialized.
type Adapter struct {
	cfg      *config.Config
	workdir  string
	renderer *console.Renderer

	perms     *handlers.Permissions
	terminals *handlers.Terminals
	fs        *handlers.FS
	router    *handlers.Router

	newTransport transportFactory

	// execMu serializes prompt round trips: concurrent Execute calls queue
	// rather than interleave on the shared session.
	execMu sync.Mutex

	mu          sync.Mutex
	client      transport
	session     *session.Session
	initialized bool

	shuttingDown *atomic.Bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithRenderer sets the console renderer for streamed updates.
func WithRenderer(r *console.Renderer) Option {
	return func(a *Adapter) { a.renderer = r }
}

// WithExecutor overrides the terminal command executor.
func WithExecutor(e exec.Executor) Option {
	return func(a *Adapter) { a.terminals = handlers.NewTerminals(e, a.workdir) }
}

// withTransportFactory overrides subprocess creation. Test-only.
func withTransportFactory(f transportFactory) Option {
	return func(a *Adapter) { a.newTransport = f }
}

// WithShutdownFlag shares a cancellation flag with the outer orchestration
// loop. KillSync sets it; streamed updates are dropped once it is set.
func WithShutdownFlag(flag *atomic.Bool) Option {
	return func(a *Adapter) { a.shuttingDown = flag }
}

// New creates an Adapter for the given config, rooted at workdir.
func New(cfg *config.Config, workdir string, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:          cfg,
		workdir:      workdir,
		renderer:     console.New(console.Quiet()),
		perms:        handlers.NewPermissions(cfg.PermissionMode, cfg.PermissionAllowlist),
		terminals:    handlers.NewTerminals(exec.NewRealExecutor(), workdir),
		fs:           handlers.NewFS(workdir),
		newTransport: defaultTransport,
		shuttingDown: new(atomic.Bool),
	}
	for _, opt := range opts {
		opt(a)
	}

	r := handlers.NewRouter()
	r.Register("session/request_permission", a.perms.HandleRequestPermission)
	r.Register("fs/read_text_file", a.fs.HandleReadTextFile)
	r.Register("fs/write_text_file", a.fs.HandleWriteTextFile)
	r.Register("terminal/create", a.terminals.HandleCreate)
	r.Register("terminal/output", a.terminals.HandleOutput)
	r.Register("terminal/wait_for_exit", a.terminals.HandleWaitForExit)
	r.Register("terminal/kill", a.terminals.HandleKill)
	r.Register("terminal/release", a.terminals.HandleRelease)
	a.router = r

	return a
}

// Available reports whether the configured agent executable can be found.
func (a *Adapter) Available() bool {
	_, err := osexec.LookPath(a.cfg.AgentCommand)
	return err == nil
}

// effectiveArgs returns the configured agent args plus any vendor flags the
// agent needs for ACP mode, skipping flags the user already supplied.
func (a *Adapter) effectiveArgs() []string {
	args := append([]string{}, a.cfg.AgentArgs...)

	extra, ok := acpModeArgs[filepath.Base(a.cfg.AgentCommand)]
	if !ok {
		return args
	}

	have := make(map[string]bool, len(args))
	for _, arg := range args {
		have[arg] = true
	}

	log := logger.WithComponent("adapter")
	i := 0
	for i < len(extra) {
		flag := extra[i]
		// A flag owns every following non-flag value.
		j := i + 1
		for j < len(extra) && !strings.HasPrefix(extra[j], "--") {
			j++
		}
		if !have[flag] {
			log.Info("auto-adding agent flag", "flag", flag)
			args = append(args, extra[i:j]...)
		}
		i = j
	}
	return args
}

// Initialize spawns the agent and performs the ACP handshake: initialize,
// then session/new. Calling it again after success is a no-op.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	if a.initialized {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	log := logger.WithComponent("adapter")

	if !a.Available() {
		return fmt.Errorf("agent executable not found on PATH: %s", a.cfg.AgentCommand)
	}

	if a.cfg.Verbose {
		logger.SetDebug(true)
	}

	c := a.newTransport(a.cfg.AgentCommand, a.effectiveArgs(), client.Callbacks{
		OnNotification: a.handleNotification,
		OnRequest:      a.router.Handle,
	})

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	initResult, err := c.SendRequest(hctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"clientCapabilities": map[string]any{
			"fs": map[string]any{
				"readTextFile":  true,
				"writeTextFile": true,
			},
			"terminal": true,
		},
		"clientInfo": map[string]any{
			"name":    clientName,
			"title":   clientTitle,
			"version": clientVersion,
		},
	})
	if err != nil {
		c.Stop()
		return fmt.Errorf("initialize failed: %w", err)
	}
	var initResp struct {
		ProtocolVersion *int `json:"protocolVersion"`
	}
	if err := json.Unmarshal(initResult, &initResp); err != nil || initResp.ProtocolVersion == nil {
		c.Stop()
		return fmt.Errorf("invalid initialize response: missing protocolVersion")
	}

	result, err := c.SendRequest(hctx, "session/new", map[string]any{
		"cwd":        a.workdir,
		"mcpServers": []any{},
	})
	if err != nil {
		c.Stop()
		return fmt.Errorf("session/new failed: %w", err)
	}

	var sess struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(result, &sess); err != nil || sess.SessionID == "" {
		c.Stop()
		return fmt.Errorf("invalid session/new response: missing sessionId")
	}

	a.mu.Lock()
	a.client = c
	a.session = session.New(sess.SessionID)
	a.initialized = true
	a.mu.Unlock()

	log.Info("adapter initialized", "agent", a.cfg.AgentCommand, "sessionId", sess.SessionID)
	return nil
}

// Execute runs one prompt through the agent and returns the accumulated
// output. Agent-reported failures come back as an unsuccessful Result;
// transport failures come back as an error. At most one prompt round trip
// is in flight per session; concurrent calls wait their turn.
func (a *Adapter) Execute(ctx context.Context, prompt string) (*Result, error) {
	a.execMu.Lock()
	defer a.execMu.Unlock()

	a.mu.Lock()
	c := a.client
	sess := a.session
	initialized := a.initialized
	a.mu.Unlock()

	if !initialized {
		return nil, ErrNotInitialized
	}

	sess.Reset()
	start := time.Now()

	pctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	result, err := c.SendRequest(pctx, "session/prompt", map[string]any{
		"sessionId": sess.ID(),
		"prompt": []any{
			map[string]any{"type": "text", "text": prompt},
		},
	})
	a.renderer.Flush()

	if err != nil {
		var errObj *protocol.ErrorObject
		if errors.As(err, &errObj) {
			return a.finish(sess, start, false, errObj.Message, "error"), nil
		}
		// A timeout keeps the subprocess alive; partial output is preserved
		// so the caller can inspect how far the agent got.
		if errors.Is(err, client.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			msg := fmt.Sprintf("prompt timed out after %v", a.cfg.Timeout)
			return a.finish(sess, start, false, msg, "timeout"), nil
		}
		if errors.Is(err, client.ErrProcessDied) {
			tail := strings.Join(c.StderrTail(), "\n")
			return nil, fmt.Errorf("agent died during prompt: %w (stderr: %s)", err, tail)
		}
		return nil, err
	}

	var resp struct {
		StopReason string                `json:"stopReason"`
		Error      *protocol.ErrorObject `json:"error"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("invalid session/prompt response: %w", err)
	}
	if resp.StopReason == "" {
		resp.StopReason = "unknown"
	}
	if resp.StopReason == "error" {
		msg := "Unknown error from agent"
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return a.finish(sess, start, false, msg, "error"), nil
	}

	return a.finish(sess, start, true, "", resp.StopReason), nil
}

// finish builds a Result from the session's accumulated state.
func (a *Adapter) finish(sess *session.Session, start time.Time, success bool, errMsg, stopReason string) *Result {
	return &Result{
		Success:     success,
		Output:      sess.Output(),
		Error:       errMsg,
		StopReason:  stopReason,
		SessionID:   sess.ID(),
		ToolCalls:   sess.ToolCallCount(),
		HasThoughts: sess.HasThoughts(),
		Duration:    time.Since(start),
	}
}

// handleNotification folds session/update notifications into session state
// and streams them to the renderer. Other notifications are logged.
func (a *Adapter) handleNotification(method string, params map[string]any) {
	if method != "session/update" {
		logger.WithComponent("adapter").Debug("ignoring notification", "method", method)
		return
	}
	if a.shuttingDown.Load() {
		return
	}

	a.mu.Lock()
	sess := a.session
	a.mu.Unlock()
	if sess == nil {
		return
	}

	payload := normalizeUpdate(params)
	a.renderer.Render(payload)
	sess.ProcessUpdate(payload)
}

// Session returns the live session state, or nil before Initialize.
func (a *Adapter) Session() *session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// PermissionHistory returns all permission decisions made so far.
func (a *Adapter) PermissionHistory() []handlers.Decision {
	return a.perms.History()
}

// PermissionStats returns aggregate approval counts.
func (a *Adapter) PermissionStats() handlers.Stats {
	return a.perms.Counts()
}

// Shutdown kills outstanding terminals and stops the agent gracefully.
// Safe to call more than once.
func (a *Adapter) Shutdown() {
	a.mu.Lock()
	c := a.client
	a.client = nil
	a.session = nil
	a.initialized = false
	a.mu.Unlock()

	a.terminals.KillAll()
	if c != nil {
		c.Stop()
	}
	logger.WithComponent("adapter").Info("adapter shut down")
}

// KillSync force-terminates everything without touching channels or
// goroutine state, for use from signal handlers.
func (a *Adapter) KillSync() {
	a.shuttingDown.Store(true)

	a.mu.Lock()
	c := a.client
	a.mu.Unlock()

	a.terminals.KillAll()
	if c != nil {
		c.KillSync()
	}
}
