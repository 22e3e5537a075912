// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the CodeSentinel CLI.
package ux

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/AleutianAI/CodeSentinel/pkg/manifest"
)

// Palette - deep ocean teals plus the usual semantic colors.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorOrange  = lipgloss.Color("#E67E22")
)

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// styles are bound to a renderer so color detection follows the writer.
type styles struct {
	title, subtitle, bold, muted      lipgloss.Style
	success, warning, errorText       lipgloss.Style
	box, warningBox, tableBorder      lipgloss.Style
	critical, high, medium, low, info lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:     r.NewStyle().Bold(true).Foreground(ColorTealBright),
		subtitle:  r.NewStyle().Foreground(ColorTealPrimary),
		bold:      r.NewStyle().Bold(true),
		muted:     r.NewStyle().Foreground(ColorSlate),
		success:   r.NewStyle().Foreground(ColorSuccess),
		warning:   r.NewStyle().Foreground(ColorWarning),
		errorText: r.NewStyle().Foreground(ColorError),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorTealDeep).
			Padding(0, 1),
		warningBox: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorWarning).
			Padding(0, 1),
		tableBorder: r.NewStyle().Foreground(ColorTealDeep),
		critical:    r.NewStyle().Bold(true).Foreground(ColorError),
		high:        r.NewStyle().Foreground(ColorOrange),
		medium:      r.NewStyle().Foreground(ColorWarning),
		low:         r.NewStyle().Foreground(ColorTealPrimary),
		info:        r.NewStyle().Foreground(ColorSlate),
	}
}

// Printer renders CLI output to one writer.
//
// Thread Safety: not safe for concurrent use.
type Printer struct {
	w      io.Writer
	mode   Mode
	styles styles
}

// NewPrinter creates a Printer. An empty mode is detected from w.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	if mode == "" {
		mode = DetectMode(w, "")
	}
	return &Printer{w: w, mode: mode, styles: newStyles(lipgloss.NewRenderer(w))}
}

// Mode returns the rendering mode.
func (p *Printer) Mode() Mode { return p.mode }

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer { return p.w }

func (p *Printer) render(s lipgloss.Style, text string) string {
	if p.mode != ModeRich {
		return text
	}
	return s.Render(text)
}

func (p *Printer) icon(i Icon) string {
	switch i {
	case IconSuccess:
		return p.render(p.styles.success, string(i))
	case IconWarning:
		return p.render(p.styles.warning, string(i))
	case IconError:
		return p.render(p.styles.errorText, string(i))
	case IconPending:
		return p.render(p.styles.muted, string(i))
	default:
		return string(i)
	}
}

// Title prints a heading. Suppressed in machine mode.
func (p *Printer) Title(text string) {
	if p.mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.w, p.render(p.styles.title, text))
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	if p.mode == ModeMachine {
		fmt.Fprintf(p.w, "OK\t%s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.icon(IconSuccess), p.render(p.styles.success, text))
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	if p.mode == ModeMachine {
		fmt.Fprintf(p.w, "WARN\t%s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.icon(IconWarning), p.render(p.styles.warning, text))
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	if p.mode == ModeMachine {
		fmt.Fprintf(p.w, "ERROR\t%s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.icon(IconError), p.render(p.styles.errorText, text))
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if p.mode == ModeMachine {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.render(p.styles.muted, "│"), text)
}

// Muted prints secondary text. Suppressed in machine mode.
func (p *Printer) Muted(text string) {
	if p.mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.w, p.render(p.styles.muted, text))
}

// Field prints an aligned "key: value" line, or key<TAB>value in machine
// mode.
func (p *Printer) Field(key string, value any) {
	if p.mode == ModeMachine {
		fmt.Fprintf(p.w, "%s\t%v\n", strings.ToLower(strings.ReplaceAll(key, " ", "_")), value)
		return
	}
	fmt.Fprintf(p.w, "  %s %v\n", p.render(p.styles.muted, fmt.Sprintf("%-22s", key+":")), value)
}

// Box prints content in a rounded box.
func (p *Printer) Box(title, content string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "%s\t%s\n", title, strings.ReplaceAll(content, "\n", " "))
	case ModePlain:
		fmt.Fprintf(p.w, "%s\n%s\n", title, content)
	default:
		fmt.Fprintln(p.w, p.styles.box.Width(72).Render(p.styles.title.Render(title)+"\n"+content))
	}
}

// WarningBox prints content in a warning-styled box.
func (p *Printer) WarningBox(title, content string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "WARN\t%s\t%s\n", title, strings.ReplaceAll(content, "\n", " "))
	case ModePlain:
		fmt.Fprintf(p.w, "%s %s\n%s\n", IconWarning, title, content)
	default:
		fmt.Fprintln(p.w, p.styles.warningBox.Width(72).Render(p.styles.warning.Bold(true).Render(title)+"\n"+content))
	}
}

// Table prints rows under headers. Rich mode draws a bordered table, plain
// mode aligns columns, machine mode writes TSV without the header.
func (p *Printer) Table(headers []string, rows [][]string) {
	switch p.mode {
	case ModeMachine:
		for _, row := range rows {
			fmt.Fprintln(p.w, strings.Join(row, "\t"))
		}
	case ModePlain:
		tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		tw.Flush()
	default:
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(p.styles.tableBorder).
			Headers(headers...).
			Rows(rows...).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return p.styles.bold.Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
		fmt.Fprintln(p.w, t.String())
	}
}

// Tier renders a priority tier with its color.
func (p *Printer) Tier(t manifest.Tier) string {
	var s lipgloss.Style
	switch t {
	case manifest.TierCritical:
		s = p.styles.critical
	case manifest.TierHigh:
		s = p.styles.high
	case manifest.TierMedium:
		s = p.styles.medium
	case manifest.TierLow:
		s = p.styles.low
	default:
		s = p.styles.info
	}
	return p.render(s, string(t))
}

// ProgressBar renders current/total as a bar of the given width. Machine
// mode returns "current/total".
func (p *Printer) ProgressBar(current, total, width int) string {
	if p.mode == ModeMachine || total <= 0 {
		return fmt.Sprintf("%d/%d", current, total)
	}
	pct := float64(current) / float64(total)
	if pct > 1 {
		pct = 1
	}
	filled := int(pct * float64(width))
	bar := p.render(p.styles.success, strings.Repeat("█", filled)) +
		p.render(p.styles.muted, strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
}
