package console

import (
	"strings"
	"testing"

	"github.com/zhubert/acp-core/session"
)

func TestRenderStreamsMessageChunks(t *testing.T) {
	var buf strings.Builder
	r := New(WithWriter(&buf))

	r.Render(session.UpdatePayload{Kind: session.KindAgentMessageChunk, Content: "hello "})
	r.Render(session.UpdatePayload{Kind: session.KindAgentMessageChunk, Content: "world"})
	r.Flush()

	if !strings.Contains(buf.String(), "hello world") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRenderSkipsThoughtsByDefault(t *testing.T) {
	var buf strings.Builder
	r := New(WithWriter(&buf))

	r.Render(session.UpdatePayload{Kind: session.KindAgentThoughtChunk, Content: "secret reasoning"})
	r.Flush()

	if strings.Contains(buf.String(), "secret reasoning") {
		t.Error("thoughts rendered without ShowThoughts")
	}
}

func TestRenderShowsThoughtsWhenEnabled(t *testing.T) {
	var buf strings.Builder
	r := New(WithWriter(&buf), ShowThoughts())

	r.Render(session.UpdatePayload{Kind: session.KindAgentThoughtChunk, Content: "visible reasoning"})
	r.Flush()

	if !strings.Contains(buf.String(), "visible reasoning") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRenderToolCallBanner(t *testing.T) {
	var buf strings.Builder
	r := New(WithWriter(&buf))

	r.Render(session.UpdatePayload{
		Kind:       session.KindToolCall,
		ToolName:   "read_file",
		ToolCallID: "tc-1",
	})
	r.Render(session.UpdatePayload{
		Kind:       session.KindToolCallUpdate,
		ToolName:   "read_file",
		ToolCallID: "tc-1",
		Status:     session.StatusCompleted,
	})

	out := buf.String()
	if !strings.Contains(out, "read_file") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, session.StatusCompleted) {
		t.Errorf("output = %q, missing status", out)
	}
}

func TestRenderFailedToolIncludesError(t *testing.T) {
	var buf strings.Builder
	r := New(WithWriter(&buf))

	r.Render(session.UpdatePayload{
		Kind:       session.KindToolCallUpdate,
		ToolCallID: "tc-1",
		Status:     session.StatusFailed,
		Error:      "permission denied",
	})

	if !strings.Contains(buf.String(), "permission denied") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestQuietDropsEverything(t *testing.T) {
	var buf strings.Builder
	r := New(WithWriter(&buf), Quiet())

	r.Render(session.UpdatePayload{Kind: session.KindAgentMessageChunk, Content: "text"})
	r.Render(session.UpdatePayload{Kind: session.KindToolCall, ToolName: "tool"})
	r.Flush()

	if buf.Len() != 0 {
		t.Errorf("quiet renderer wrote %q", buf.String())
	}
}

func TestNilRendererIsSafe(t *testing.T) {
	var r *Renderer
	r.Render(session.UpdatePayload{Kind: session.KindAgentMessageChunk, Content: "x"})
	r.Flush()
}
