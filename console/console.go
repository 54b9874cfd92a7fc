// Package console renders streamed agent activity for a human watching the
// run: message text as it arrives, dimmed reasoning, and tool call banners.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhubert/acp-core/session"
)

var (
	thoughtStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	toolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// Renderer streams session updates to a writer. A nil Renderer or a quiet one
// drops everything, so callers can render unconditionally.
type Renderer struct {
	w         io.Writer
	quiet     bool
	showThink bool
	inThought bool
	lineOpen  bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithWriter directs output somewhere other than stdout.
func WithWriter(w io.Writer) Option {
	return func(r *Renderer) { r.w = w }
}

// Quiet suppresses all output.
func Quiet() Option {
	return func(r *Renderer) { r.quiet = true }
}

// ShowThoughts includes agent reasoning chunks in the stream.
func ShowThoughts() Option {
	return func(r *Renderer) { r.showThink = true }
}

// New creates a Renderer writing to stdout unless configured otherwise.
func New(opts ...Option) *Renderer {
	r := &Renderer{w: os.Stdout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render displays one normalized update.
func (r *Renderer) Render(p session.UpdatePayload) {
	if r == nil || r.quiet {
		return
	}

	switch p.Kind {
	case session.KindAgentMessageChunk:
		r.closeThought()
		if p.Content != "" {
			fmt.Fprint(r.w, p.Content)
			r.lineOpen = true
		}
	case session.KindAgentThoughtChunk:
		if !r.showThink || p.Content == "" {
			return
		}
		fmt.Fprint(r.w, thoughtStyle.Render(p.Content))
		r.inThought = true
		r.lineOpen = true
	case session.KindToolCall:
		r.breakLine()
		label := p.ToolName
		if label == "" {
			label = p.ToolCallID
		}
		fmt.Fprintln(r.w, toolStyle.Render(fmt.Sprintf("▸ tool: %s", label)))
	case session.KindToolCallUpdate:
		r.breakLine()
		r.renderStatus(p)
	}
}

// renderStatus prints a tool status transition.
func (r *Renderer) renderStatus(p session.UpdatePayload) {
	if p.Status == "" {
		return
	}
	label := p.ToolName
	if label == "" {
		label = p.ToolCallID
	}
	line := fmt.Sprintf("  %s: %s", label, p.Status)
	switch p.Status {
	case session.StatusCompleted:
		fmt.Fprintln(r.w, doneStyle.Render(line))
	case session.StatusFailed:
		if p.Error != "" {
			line += " (" + p.Error + ")"
		}
		fmt.Fprintln(r.w, failStyle.Render(line))
	default:
		fmt.Fprintln(r.w, statusStyle.Render(line))
	}
}

// Flush terminates any open output line. Call after a prompt completes.
func (r *Renderer) Flush() {
	if r == nil || r.quiet {
		return
	}
	r.breakLine()
}

// closeThought ends a dimmed reasoning run before normal output resumes.
func (r *Renderer) closeThought() {
	if r.inThought {
		fmt.Fprintln(r.w)
		r.inThought = false
		r.lineOpen = false
	}
}

// breakLine ends a partially written line of streamed text.
func (r *Renderer) breakLine() {
	if r.lineOpen {
		fmt.Fprintln(r.w)
		r.lineOpen = false
		r.inThought = false
	}
}
