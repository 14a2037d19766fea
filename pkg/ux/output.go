// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the causal CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Key       lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
	Header    lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Key:       lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	Header: lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes styled output to w according to the current personality.
//
// Machine output is stable tab and colon separated text for scripts;
// minimal drops color; full adds colors and boxes.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) level() PersonalityLevel {
	return GetPersonality().Level
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !ShouldShowColors() {
		return text
	}
	return s.Render(text)
}

// Title prints a styled title. Machine output omits it.
func (p *Printer) Title(text string) {
	if p.level() == PersonalityMachine {
		return
	}
	fmt.Fprintln(p.w, p.style(Styles.Title, text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	switch p.level() {
	case PersonalityMachine:
		fmt.Fprintf(p.w, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.w, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	switch p.level() {
	case PersonalityMachine:
		fmt.Fprintf(p.w, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.w, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func (p *Printer) Error(text string) {
	switch p.level() {
	case PersonalityMachine:
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.w, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Verdict prints Success when ok is true and Warning otherwise.
func (p *Printer) Verdict(ok bool, yes, no string) {
	if ok {
		p.Success(yes)
		return
	}
	p.Warning(no)
}

// KeyValue prints an aligned "key: value" line.
func (p *Printer) KeyValue(key string, value any) {
	if p.level() == PersonalityMachine {
		fmt.Fprintf(p.w, "%s\t%v\n", key, value)
		return
	}
	fmt.Fprintf(p.w, "  %s %v\n", p.style(Styles.Key, fmt.Sprintf("%-16s", key+":")), value)
}

// List prints items as bullets, or one per line for machines.
func (p *Printer) List(items []string) {
	for _, item := range items {
		if p.level() == PersonalityMachine {
			fmt.Fprintln(p.w, item)
			continue
		}
		fmt.Fprintf(p.w, "  %s %s\n", p.style(Styles.Muted, string(IconBullet)), item)
	}
}

// Muted prints secondary text. Machine output omits it.
func (p *Printer) Muted(text string) {
	if p.level() == PersonalityMachine {
		return
	}
	fmt.Fprintln(p.w, p.style(Styles.Muted, text))
}

// Box prints content in a rounded box under title.
func (p *Printer) Box(title, content string) {
	if p.level() != PersonalityFull {
		fmt.Fprintf(p.w, "%s: %s\n", title, content)
		return
	}
	box := Styles.Box.Width(boxWidth())
	fmt.Fprintln(p.w, box.Render(Styles.Title.Render(title)+"\n"+content))
}

// Table prints rows under headers with padded columns. Machine output
// is tab separated without headers.
func (p *Printer) Table(headers []string, rows [][]string) {
	if p.level() == PersonalityMachine {
		for _, row := range rows {
			fmt.Fprintln(p.w, strings.Join(row, "\t"))
		}
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = pad(h, widths[i])
	}
	fmt.Fprintln(p.w, "  "+p.style(Styles.Header, strings.Join(cells, "  ")))
	for _, row := range rows {
		cells = cells[:0]
		for i := 0; i < len(row) && i < len(widths); i++ {
			cells = append(cells, pad(row[i], widths[i]))
		}
		fmt.Fprintln(p.w, "  "+strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func pad(s string, width int) string {
	if n := width - lipgloss.Width(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

func boxWidth() int {
	if w := GetPersonality().Width; w > 0 {
		return w
	}
	return 72
}
