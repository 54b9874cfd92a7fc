package handlers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/zhubert/acp-core/config"
	"github.com/zhubert/acp-core/logger"
	"github.com/zhubert/acp-core/protocol"
)

// Decision records one permission ruling for later inspection.
type Decision struct {
	Tool     string
	Approved bool
	Mode     string
	Time     time.Time
}

// Stats aggregates permission outcomes.
type Stats struct {
	Approved int
	Denied   int
}

// Permissions answers session/request_permission according to the configured
// mode. Decisions are recorded in an append-only history.
type Permissions struct {
	mode      string
	allowlist []string

	// in/out back the interactive prompt; tests inject buffers here.
	in  io.Reader
	out io.Writer

	mu       sync.Mutex
	history  []Decision
	approved int
	denied   int
}

// NewPermissions creates a permission handler for the given mode and
// allowlist. The interactive prompt uses stdin/stdout.
func NewPermissions(mode string, allowlist []string) *Permissions {
	return &Permissions{
		mode:      mode,
		allowlist: allowlist,
		in:        os.Stdin,
		out:       os.Stdout,
	}
}

// SetPrompt overrides the interactive prompt's reader and writer.
func (p *Permissions) SetPrompt(in io.Reader, out io.Writer) {
	p.in = in
	p.out = out
}

// HandleRequestPermission implements session/request_permission. It extracts
// the tool being requested, rules on it, and selects the matching option id
// from the agent-provided options.
func (p *Permissions) HandleRequestPermission(params map[string]any) (any, *protocol.ErrorObject) {
	tool := toolNameFrom(params)
	approved := p.decide(tool)

	log := logger.WithComponent("permissions")
	log.Info("permission decision", "tool", tool, "approved", approved, "mode", p.mode)

	p.record(tool, approved)

	options := sliceParam(params, "options")
	var optionID string
	var found bool
	if approved {
		optionID, found = pickOption(options, "allow_once", "allow_always")
	} else {
		optionID, found = pickOption(options, "reject_once", "reject_always")
	}

	if !found {
		if !approved {
			// Nothing to select; cancelling still denies.
			return map[string]any{
				"outcome": map[string]any{"outcome": "cancelled"},
			}, nil
		}
		// Approved but no recognizable option: fall back to the first one.
		if id, ok := firstOptionID(options); ok {
			optionID = id
		} else {
			return nil, &protocol.ErrorObject{
				Code:    protocol.CodeInvalidParams,
				Message: "permission request carried no options",
			}
		}
	}

	return map[string]any{
		"outcome": map[string]any{
			"outcome":  "selected",
			"optionId": optionID,
		},
	}, nil
}

// decide rules on a tool per the configured mode.
func (p *Permissions) decide(tool string) bool {
	switch p.mode {
	case config.ModeAutoApprove:
		return true
	case config.ModeDenyAll:
		return false
	case config.ModeAllowlist:
		return p.allowed(tool)
	case config.ModeInteractive:
		return p.promptUser(tool)
	default:
		return false
	}
}

// allowed checks the allowlist by glob match, then substring.
func (p *Permissions) allowed(tool string) bool {
	for _, pat := range p.allowlist {
		if ok, err := path.Match(pat, tool); err == nil && ok {
			return true
		}
		if strings.Contains(tool, pat) {
			return true
		}
	}
	return false
}

// promptUser asks on the terminal. A non-TTY stdin denies; no silent approvals
// in pipelines.
func (p *Permissions) promptUser(tool string) bool {
	if f, ok := p.in.(*os.File); ok {
		info, err := f.Stat()
		if err != nil || info.Mode()&os.ModeCharDevice == 0 {
			logger.WithComponent("permissions").Warn("interactive mode without a TTY, denying", "tool", tool)
			return false
		}
	}

	fmt.Fprintf(p.out, "Agent requests permission to run %q. Allow? [y/N] ", tool)
	reader := bufio.NewReader(p.in)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// record appends a decision and bumps the counters.
func (p *Permissions) record(tool string, approved bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, Decision{
		Tool:     tool,
		Approved: approved,
		Mode:     p.mode,
		Time:     time.Now(),
	})
	if approved {
		p.approved++
	} else {
		p.denied++
	}
}

// History returns a snapshot of all decisions in order.
func (p *Permissions) History() []Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Decision, len(p.history))
	copy(out, p.history)
	return out
}

// Counts returns the approval statistics.
func (p *Permissions) Counts() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Approved: p.approved, Denied: p.denied}
}

// toolNameFrom digs the tool name out of a permission request. Agents vary:
// some put a title on the toolCall, some a tool name or kind.
func toolNameFrom(params map[string]any) string {
	tc := mapParam(params, "toolCall")
	if tc == nil {
		tc = mapParam(params, "tool_call")
	}
	if tc != nil {
		for _, key := range []string{"title", "toolName", "name", "kind"} {
			if v := stringParam(tc, key); v != "" {
				return v
			}
		}
	}
	if v := stringParam(params, "toolName"); v != "" {
		return v
	}
	return "unknown"
}

// pickOption returns the id of the first option whose kind matches, in
// preference order of the given kinds.
func pickOption(options []any, kinds ...string) (string, bool) {
	for _, kind := range kinds {
		for _, raw := range options {
			opt, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if stringParam(opt, "kind") != kind {
				continue
			}
			if id := stringParam(opt, "optionId"); id != "" {
				return id, true
			}
		}
	}
	return "", false
}

// firstOptionID returns the id of the first well-formed option.
func firstOptionID(options []any) (string, bool) {
	for _, raw := range options {
		opt, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if id := stringParam(opt, "optionId"); id != "" {
			return id, true
		}
	}
	return "", false
}
