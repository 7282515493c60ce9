// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package format renders human-readable summaries of reports, control-flow
// graphs, audit findings and graph diffs.
package format

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	colorTitle   = lipgloss.Color("#2CD7C7")
	colorAccent  = lipgloss.Color("#20B9B4")
	colorMuted   = lipgloss.Color("#5C7A84")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
)

// Styler applies terminal styles when its writer is a color terminal and
// returns text unchanged otherwise.
type Styler struct {
	color   bool
	title   lipgloss.Style
	accent  lipgloss.Style
	muted   lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

// NewStyler returns a Styler for w. Color is used only when w is a
// terminal, noColor is false and NO_COLOR is unset.
func NewStyler(w io.Writer, noColor bool) *Styler {
	r := lipgloss.NewRenderer(w)
	return &Styler{
		color:   !noColor && os.Getenv("NO_COLOR") == "" && IsTerminal(w),
		title:   r.NewStyle().Bold(true).Foreground(colorTitle),
		accent:  r.NewStyle().Foreground(colorAccent),
		muted:   r.NewStyle().Foreground(colorMuted),
		warning: r.NewStyle().Foreground(colorWarning),
		failure: r.NewStyle().Foreground(colorError).Bold(true),
	}
}

// Plain returns a Styler that never styles.
func Plain() *Styler {
	return &Styler{}
}

// IsTerminal reports whether w writes to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (s *Styler) render(style lipgloss.Style, text string) string {
	if !s.color {
		return text
	}
	return style.Render(text)
}

// Title styles a heading.
func (s *Styler) Title(text string) string { return s.render(s.title, text) }

// Accent styles an identifier.
func (s *Styler) Accent(text string) string { return s.render(s.accent, text) }

// Muted styles secondary text.
func (s *Styler) Muted(text string) string { return s.render(s.muted, text) }

// Warning styles a warning.
func (s *Styler) Warning(text string) string { return s.render(s.warning, text) }

// Failure styles an error.
func (s *Styler) Failure(text string) string { return s.render(s.failure, text) }

// printer writes formatted lines and keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
