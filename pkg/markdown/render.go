package markdown

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/pmezard/go-difflib/difflib"
)

const diffContextLines = 3

// Diff returns a unified diff between the editor content and a proposed replacement
func Diff(current, proposed string) (string, error) {
	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(current),
		B:        difflib.SplitLines(proposed),
		FromFile: "current",
		ToFile:   "assistant",
		Context:  diffContextLines,
	}
	out, err := difflib.GetUnifiedDiffString(d)
	if err != nil {
		return "", fmt.Errorf("failed to compute diff: %w", err)
	}
	return out, nil
}

// Render formats markdown for a terminal
func Render(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	return r.Render(md)
}
