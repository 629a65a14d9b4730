package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/joescharf/neotutor/internal/models"
)

const defaultWidth = 80

// RenderMarkdown renders md for the terminal with glamour. If rendering
// fails the source is returned unchanged.
func RenderMarkdown(md, style string, width int) string {
	if style == "" {
		style = "auto"
	}
	if width <= 0 {
		width = defaultWidth
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// CitationLine is the caption shown under a cited video.
func CitationLine(c models.VideoCitation) string {
	return fmt.Sprintf("Refer to this video from %s to %s", c.StartTime, c.EndTime)
}

// FormatMessage renders one transcript message. assistant names the tutor.
func (u *UI) FormatMessage(m models.Message, assistant string) string {
	var b strings.Builder
	if m.Sender == models.SenderUser {
		b.WriteString(cyan("You"))
	} else {
		b.WriteString(green(assistant))
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimRight(RenderMarkdown(m.Text, u.Style, u.Width), "\n"))
	b.WriteString("\n")

	if c := m.Citation; c != nil {
		b.WriteString("\n")
		if c.Title != "" {
			fmt.Fprintf(&b, "  %s %s\n", yellow("▶"), bold(c.Title))
		}
		fmt.Fprintf(&b, "  %s\n", c.VideoURL)
		fmt.Fprintf(&b, "  %s\n", CitationLine(*c))
	}
	return b.String()
}

// Message writes one formatted transcript message to Out.
func (u *UI) Message(m models.Message, assistant string) {
	fmt.Fprintln(u.Out, u.FormatMessage(m, assistant))
}
