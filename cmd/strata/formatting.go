package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	labelStyle   = lipgloss.NewStyle().Faint(true)
)

func isTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func renderSuccess(s string) string {
	if !isTTY() {
		return s
	}
	return successStyle.Render(s)
}

func renderError(err error) string {
	msg := "Error: " + err.Error()
	if !isTTY() {
		return msg
	}
	return errorStyle.Render(msg)
}

func renderLabel(s string) string {
	if !isTTY() {
		return s
	}
	return labelStyle.Render(s)
}
