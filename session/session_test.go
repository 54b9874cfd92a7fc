package session

import (
	"testing"
)

func TestProcessUpdateAccumulatesOutput(t *testing.T) {
	s := New("sess-1")

	s.ProcessUpdate(UpdatePayload{Kind: KindAgentMessageChunk, Content: "Hello, "})
	s.ProcessUpdate(UpdatePayload{Kind: KindAgentMessageChunk, Content: "world"})

	if got := s.Output(); got != "Hello, world" {
		t.Errorf("Output() = %q, want %q", got, "Hello, world")
	}
	if s.HasThoughts() {
		t.Error("HasThoughts() = true with no thought chunks")
	}
}

func TestProcessUpdateAccumulatesThoughtsSeparately(t *testing.T) {
	s := New("sess-1")

	s.ProcessUpdate(UpdatePayload{Kind: KindAgentThoughtChunk, Content: "thinking"})
	s.ProcessUpdate(UpdatePayload{Kind: KindAgentMessageChunk, Content: "answer"})

	if got := s.Thoughts(); got != "thinking" {
		t.Errorf("Thoughts() = %q", got)
	}
	if got := s.Output(); got != "answer" {
		t.Errorf("Output() = %q", got)
	}
	if !s.HasThoughts() {
		t.Error("HasThoughts() = false")
	}
}

func TestToolCallStartsPending(t *testing.T) {
	s := New("sess-1")

	s.ProcessUpdate(UpdatePayload{
		Kind:       KindToolCall,
		ToolCallID: "tc-1",
		ToolName:   "read_file",
	})

	tc, ok := s.ToolCallByID("tc-1")
	if !ok {
		t.Fatal("tool call not tracked")
	}
	if tc.Status != StatusPending {
		t.Errorf("status = %q, want pending", tc.Status)
	}
	if tc.Arguments == nil {
		t.Error("nil arguments should default to an empty map")
	}
	if tc.Name != "read_file" {
		t.Errorf("name = %q", tc.Name)
	}
}

func TestToolCallUpdatePartialSemantics(t *testing.T) {
	s := New("sess-1")
	s.ProcessUpdate(UpdatePayload{
		Kind:       KindToolCall,
		ToolCallID: "tc-1",
		ToolName:   "run_tests",
		Arguments:  map[string]any{"path": "./..."},
	})

	// Only status present; everything else must survive.
	s.ProcessUpdate(UpdatePayload{
		Kind:       KindToolCallUpdate,
		ToolCallID: "tc-1",
		Status:     StatusRunning,
	})

	tc, _ := s.ToolCallByID("tc-1")
	if tc.Status != StatusRunning {
		t.Errorf("status = %q, want running", tc.Status)
	}
	if tc.Name != "run_tests" {
		t.Errorf("name = %q, should be unchanged", tc.Name)
	}
	if tc.Arguments["path"] != "./..." {
		t.Errorf("arguments = %v, should be unchanged", tc.Arguments)
	}

	// Completion carries a result.
	s.ProcessUpdate(UpdatePayload{
		Kind:       KindToolCallUpdate,
		ToolCallID: "tc-1",
		Status:     StatusCompleted,
		Result:     "ok",
	})
	tc, _ = s.ToolCallByID("tc-1")
	if tc.Status != StatusCompleted || tc.Result != "ok" {
		t.Errorf("after completion: status=%q result=%v", tc.Status, tc.Result)
	}
}

func TestToolCallUpdateUnknownIDDropped(t *testing.T) {
	s := New("sess-1")

	s.ProcessUpdate(UpdatePayload{
		Kind:       KindToolCallUpdate,
		ToolCallID: "never-created",
		Status:     StatusCompleted,
	})

	if n := s.ToolCallCount(); n != 0 {
		t.Errorf("ToolCallCount() = %d, update for unknown id must not create a record", n)
	}
}

func TestToolCallUpdateWithoutIDDropped(t *testing.T) {
	s := New("sess-1")
	s.ProcessUpdate(UpdatePayload{Kind: KindToolCallUpdate, Status: StatusFailed})
	if n := s.ToolCallCount(); n != 0 {
		t.Errorf("ToolCallCount() = %d", n)
	}
}

func TestResetPreservesID(t *testing.T) {
	s := New("sess-1")
	s.ProcessUpdate(UpdatePayload{Kind: KindAgentMessageChunk, Content: "text"})
	s.ProcessUpdate(UpdatePayload{Kind: KindAgentThoughtChunk, Content: "hmm"})
	s.ProcessUpdate(UpdatePayload{Kind: KindToolCall, ToolCallID: "tc-1"})

	s.Reset()

	if s.ID() != "sess-1" {
		t.Errorf("ID() = %q, Reset must preserve the session id", s.ID())
	}
	if s.Output() != "" || s.Thoughts() != "" || s.ToolCallCount() != 0 {
		t.Error("Reset did not clear accumulated state")
	}
}

func TestToolCallsReturnsSnapshot(t *testing.T) {
	s := New("sess-1")
	s.ProcessUpdate(UpdatePayload{Kind: KindToolCall, ToolCallID: "tc-1", ToolName: "a"})

	calls := s.ToolCalls()
	calls[0].Status = "mangled"

	tc, _ := s.ToolCallByID("tc-1")
	if tc.Status == "mangled" {
		t.Error("ToolCalls() must return copies, not live records")
	}
}
