// Package session tracks the state of one ACP conversation: streamed agent
// output, internal thoughts, and the tool calls the agent has made. The
// transport's read pump writes to a Session while a caller awaits the prompt
// round trip, so all accessors are safe for concurrent use.
package session

import (
	"strings"
	"sync"
)

// Update kinds carried by session/update notifications.
const (
	KindAgentMessageChunk = "agent_message_chunk"
	KindAgentThoughtChunk = "agent_thought_chunk"
	KindToolCall          = "tool_call"
	KindToolCallUpdate    = "tool_call_update"
	KindPlan              = "plan"
)

// Tool call statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// UpdatePayload is the canonical form of one session/update notification,
// produced by normalizing the wire-format variants different agents emit.
// Only the fields relevant to Kind are populated.
type UpdatePayload struct {
	Kind       string
	Content    string
	ToolName   string
	ToolCallID string
	Arguments  map[string]any
	Status     string
	Result     any
	Error      string
}

// ToolCall tracks one agent-initiated tool execution.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	Status    string
	Result    any
	Error     string
}

// Session accumulates streamed state for one conversation. The session id is
// assigned once during the handshake and never changes; Reset clears the
// accumulated data between prompts but preserves the id.
type Session struct {
	mu        sync.Mutex
	id        string
	output    strings.Builder
	thoughts  strings.Builder
	toolCalls []*ToolCall
}

// New creates a Session bound to the given session id.
func New(id string) *Session {
	return &Session{id: id}
}

// ID returns the immutable session id.
func (s *Session) ID() string {
	return s.id
}

// Output returns the accumulated agent output text.
func (s *Session) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output.String()
}

// Thoughts returns the accumulated agent reasoning text.
func (s *Session) Thoughts() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thoughts.String()
}

// ToolCalls returns a snapshot of the tracked tool calls, in arrival order.
func (s *Session) ToolCalls() []ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolCall, 0, len(s.toolCalls))
	for _, tc := range s.toolCalls {
		out = append(out, *tc)
	}
	return out
}

// ToolCallCount returns the number of tracked tool calls.
func (s *Session) ToolCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.toolCalls)
}

// ToolCallByID returns a copy of the tool call with the given id.
func (s *Session) ToolCallByID(id string) (ToolCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tc := s.findLocked(id); tc != nil {
		return *tc, true
	}
	return ToolCall{}, false
}

// findLocked returns the tracked tool call with the given id. Caller holds mu.
func (s *Session) findLocked(id string) *ToolCall {
	for _, tc := range s.toolCalls {
		if tc.ID == id {
			return tc
		}
	}
	return nil
}

// ProcessUpdate folds one normalized update into the session state.
//
// tool_call creates a new record in pending status; tool_call_update mutates
// the matching record with partial-update semantics (absent fields leave prior
// values unchanged). An update for an unknown id is dropped, never created.
func (s *Session) ProcessUpdate(p UpdatePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch p.Kind {
	case KindAgentMessageChunk:
		if p.Content != "" {
			s.output.WriteString(p.Content)
		}
	case KindAgentThoughtChunk:
		if p.Content != "" {
			s.thoughts.WriteString(p.Content)
		}
	case KindToolCall:
		args := p.Arguments
		if args == nil {
			args = map[string]any{}
		}
		status := p.Status
		if status == "" {
			status = StatusPending
		}
		s.toolCalls = append(s.toolCalls, &ToolCall{
			ID:        p.ToolCallID,
			Name:      p.ToolName,
			Arguments: args,
			Status:    status,
			Result:    p.Result,
			Error:     p.Error,
		})
	case KindToolCallUpdate:
		if p.ToolCallID == "" {
			return
		}
		tc := s.findLocked(p.ToolCallID)
		if tc == nil {
			return
		}
		if p.Status != "" {
			tc.Status = p.Status
		}
		if p.Result != nil {
			tc.Result = p.Result
		}
		if p.Error != "" {
			tc.Error = p.Error
		}
		if p.ToolName != "" {
			tc.Name = p.ToolName
		}
		if p.Arguments != nil {
			tc.Arguments = p.Arguments
		}
	}
}

// Reset clears accumulated output, thoughts, and tool calls for a new prompt.
// The session id is preserved.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output.Reset()
	s.thoughts.Reset()
	s.toolCalls = nil
}

// HasThoughts reports whether any thought chunks arrived.
func (s *Session) HasThoughts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thoughts.Len() > 0
}
