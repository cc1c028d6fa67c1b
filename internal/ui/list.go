// Package ui renders the buffer catalog and the live monitor view.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xunzhou/rttpty/internal/jlink"
)

// Styles shared by the list and monitor views
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	indexStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)
)

// RenderCatalog renders both buffer catalogs for `rttpty list`.
func RenderCatalog(up, down []jlink.BufferDescriptor) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Up-buffers"))
	b.WriteString("\n")
	renderBuffers(&b, up)

	b.WriteString(titleStyle.Render("Down-buffers"))
	b.WriteString("\n")
	renderBuffers(&b, down)

	return b.String()
}

func renderBuffers(b *strings.Builder, descs []jlink.BufferDescriptor) {
	if len(descs) == 0 {
		b.WriteString(dimStyle.Render("  (none)"))
		b.WriteString("\n")
		return
	}
	for _, d := range descs {
		name := d.Name
		if name == "" {
			name = dimStyle.Render("(unnamed)")
		}
		fmt.Fprintf(b, "  %s %s %s\n",
			indexStyle.Render(fmt.Sprintf("#%d", d.Index)),
			name,
			dimStyle.Render(fmt.Sprintf("(size=%d)", d.Size)))
	}
}
