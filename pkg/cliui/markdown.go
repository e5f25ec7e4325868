package cliui

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const defaultWrap = 80

// Width is the column count of w when it is a terminal, or 80.
func Width(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWrap
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= 0 {
		return defaultWrap
	}
	return cols
}

// RenderMarkdown renders a reply for the terminal, wrapped at width columns.
// On error the content comes back unchanged alongside the error.
func RenderMarkdown(content string, width int) (string, error) {
	if width <= 0 {
		width = defaultWrap
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return rendered, nil
}
