// Package render draws a chat.Snapshot for a terminal.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/haimi-h/shopify-clone-sub000/internal/chat"
)

const pendingMarker = "(sending…)"

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Styles holds the lipgloss styles used when color is enabled.
type Styles struct {
	Header  lipgloss.Style
	Banner  lipgloss.Style
	Local   lipgloss.Style
	Remote  lipgloss.Style
	Muted   lipgloss.Style
	Pending lipgloss.Style
}

// DefaultStyles returns the standard palette.
func DefaultStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#5f5fd7")).
			Padding(0, 1).
			Bold(true),
		Banner: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ff5f5f")).
			Bold(true),
		Local: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5fafff")).
			Bold(true),
		Remote: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87d787")).
			Bold(true),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#808080")),
		Pending: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d7af5f")).
			Italic(true),
	}
}

// Options configure a Renderer.
type Options struct {
	Color bool
	// Now anchors relative timestamps; defaults to time.Now.
	Now func() time.Time
}

// Renderer writes snapshots to an output stream.
type Renderer struct {
	w      io.Writer
	color  bool
	now    func() time.Time
	styles Styles
}

// New creates a Renderer writing to w.
func New(w io.Writer, opts Options) *Renderer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Renderer{w: w, color: opts.Color, now: now, styles: DefaultStyles()}
}

// Render writes one frame for snap.
func (r *Renderer) Render(snap chat.Snapshot) error {
	_, err := io.WriteString(r.w, r.Format(snap))
	return err
}

// Format returns the frame for snap without writing it.
func (r *Renderer) Format(snap chat.Snapshot) string {
	var b strings.Builder

	b.WriteString(r.style(r.styles.Header, "Support chat · "+stateLabel(snap)))
	b.WriteString("\n")

	switch {
	case !snap.Visible:
		b.WriteString(r.style(r.styles.Muted, "Chat is hidden. Type /open to start a conversation."))
		b.WriteString("\n")
		return b.String()
	case snap.UserID == "":
		b.WriteString(r.style(r.styles.Muted, "Log in to chat with support."))
		b.WriteString("\n")
		return b.String()
	}

	if snap.Err != "" {
		b.WriteString(r.style(r.styles.Banner, "! "+snap.Err))
		b.WriteString("\n")
	}

	if len(snap.Messages) == 0 && snap.State == chat.StateConnecting {
		b.WriteString(r.style(r.styles.Muted, "Connecting to support…"))
		b.WriteString("\n")
	}

	for _, m := range snap.Messages {
		b.WriteString(r.line(m, snap.IsPending(m.ID)))
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) line(m chat.Message, pending bool) string {
	label, st := "Support", r.styles.Remote
	if m.Sender == chat.SenderLocal {
		label, st = "You", r.styles.Local
	}

	parts := []string{r.style(st, label+":"), sanitize(m.Text)}
	if !m.Timestamp.IsZero() {
		when := humanize.RelTime(m.Timestamp, r.now(), "ago", "from now")
		parts = append(parts, r.style(r.styles.Muted, fmt.Sprintf("[%s]", when)))
	}
	if pending {
		parts = append(parts, r.style(r.styles.Pending, pendingMarker))
	}
	return strings.Join(parts, " ")
}

// sanitize removes escape sequences and control characters from message
// text so a peer cannot drive the terminal. Line breaks become spaces.
func sanitize(text string) string {
	text = ansi.Strip(text)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, text)
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

func stateLabel(snap chat.Snapshot) string {
	if !snap.Visible {
		return "hidden"
	}
	if snap.UserID == "" {
		return "signed out"
	}
	return snap.State.String()
}
