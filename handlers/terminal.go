package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/zhubert/acp-core/exec"
	"github.com/zhubert/acp-core/logger"
	"github.com/zhubert/acp-core/paths"
	"github.com/zhubert/acp-core/protocol"
)

// Terminals implements the terminal/* methods: agents create commands, poll
// their output, await exit, and kill or release them. Each terminal gets a
// uuid id; released ids are forgotten.
type Terminals struct {
	executor exec.Executor
	dir      string

	mu        sync.Mutex
	terminals map[string]exec.Handle
}

// NewTerminals creates a terminal manager that runs commands in dir.
func NewTerminals(executor exec.Executor, dir string) *Terminals {
	return &Terminals{
		executor:  executor,
		dir:       dir,
		terminals: make(map[string]exec.Handle),
	}
}

// HandleCreate implements terminal/create.
func (t *Terminals) HandleCreate(params map[string]any) (any, *protocol.ErrorObject) {
	command := stringParam(params, "command")
	if command == "" {
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodeInvalidParams,
			Message: "command is required",
		}
	}

	var args []string
	for _, raw := range sliceParam(params, "args") {
		if s, ok := raw.(string); ok {
			args = append(args, s)
		}
	}

	dir := t.dir
	if cwd := stringParam(params, "cwd"); cwd != "" {
		resolved, err := paths.ResolveWithin(t.dir, cwd)
		if err != nil {
			logger.WithComponent("terminal").Warn("rejecting cwd outside workspace", "cwd", cwd)
			return nil, &protocol.ErrorObject{
				Code:    protocol.CodePermissionDenied,
				Message: fmt.Sprintf("cwd outside workspace: %s", cwd),
			}
		}
		dir = resolved
	}

	handle, err := t.executor.Start(context.Background(), dir, command, args...)
	if err != nil {
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodeTerminalError,
			Message: fmt.Sprintf("failed to start %s: %v", command, err),
		}
	}

	id := uuid.New().String()
	t.mu.Lock()
	t.terminals[id] = handle
	t.mu.Unlock()

	logger.WithComponent("terminal").Info("terminal created", "terminalId", id, "command", command, "args", args)
	return map[string]any{"terminalId": id}, nil
}

// HandleOutput implements terminal/output: the output captured so far plus
// exit status when the command has finished.
func (t *Terminals) HandleOutput(params map[string]any) (any, *protocol.ErrorObject) {
	handle, errObj := t.lookup(params)
	if errObj != nil {
		return nil, errObj
	}

	out, truncated := handle.Output()
	result := map[string]any{
		"output":    string(out),
		"truncated": truncated,
	}
	if code, exited := handle.ExitStatus(); exited {
		result["exitStatus"] = map[string]any{"exitCode": code}
	}
	return result, nil
}

// HandleWaitForExit implements terminal/wait_for_exit, blocking until the
// command finishes.
func (t *Terminals) HandleWaitForExit(params map[string]any) (any, *protocol.ErrorObject) {
	handle, errObj := t.lookup(params)
	if errObj != nil {
		return nil, errObj
	}

	code := handle.Wait()
	return map[string]any{
		"exitStatus": map[string]any{"exitCode": code},
	}, nil
}

// HandleKill implements terminal/kill. The terminal stays registered so the
// agent can still read its final output.
func (t *Terminals) HandleKill(params map[string]any) (any, *protocol.ErrorObject) {
	handle, errObj := t.lookup(params)
	if errObj != nil {
		return nil, errObj
	}

	if err := handle.Kill(); err != nil {
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodeTerminalError,
			Message: fmt.Sprintf("failed to kill terminal: %v", err),
		}
	}
	return map[string]any{}, nil
}

// HandleRelease implements terminal/release: kill if still running, then
// forget the id.
func (t *Terminals) HandleRelease(params map[string]any) (any, *protocol.ErrorObject) {
	id := stringParam(params, "terminalId")
	if id == "" {
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodeInvalidParams,
			Message: "terminalId is required",
		}
	}

	t.mu.Lock()
	handle, ok := t.terminals[id]
	delete(t.terminals, id)
	t.mu.Unlock()

	if !ok {
		return nil, unknownTerminal(id)
	}

	if _, exited := handle.ExitStatus(); !exited {
		handle.Kill()
	}
	logger.WithComponent("terminal").Info("terminal released", "terminalId", id)
	return map[string]any{}, nil
}

// KillAll kills every live terminal. Called during adapter shutdown so agent
// commands do not outlive the session.
func (t *Terminals) KillAll() {
	t.mu.Lock()
	handles := make([]exec.Handle, 0, len(t.terminals))
	for _, h := range t.terminals {
		handles = append(handles, h)
	}
	t.terminals = make(map[string]exec.Handle)
	t.mu.Unlock()

	for _, h := range handles {
		if _, exited := h.ExitStatus(); !exited {
			h.Kill()
		}
	}
}

// Count returns the number of registered terminals.
func (t *Terminals) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.terminals)
}

// lookup resolves the terminalId param to a live handle.
func (t *Terminals) lookup(params map[string]any) (exec.Handle, *protocol.ErrorObject) {
	id := stringParam(params, "terminalId")
	if id == "" {
		return nil, &protocol.ErrorObject{
			Code:    protocol.CodeInvalidParams,
			Message: "terminalId is required",
		}
	}

	t.mu.Lock()
	handle, ok := t.terminals[id]
	t.mu.Unlock()

	if !ok {
		return nil, unknownTerminal(id)
	}
	return handle, nil
}

func unknownTerminal(id string) *protocol.ErrorObject {
	return &protocol.ErrorObject{
		Code:    protocol.CodeTerminalError,
		Message: fmt.Sprintf("unknown terminal: %s", id),
	}
}
