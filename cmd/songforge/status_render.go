package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// statusTone selects the tag and color of one status line.
type statusTone int

const (
	toneInfo statusTone = iota
	toneOK
	toneWarn
	toneErr
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// Wide enough for the longest stage name plus the trailing colon.
const statusLabelWidth = 14

func renderStatusLine(label string, tone statusTone, message string, colorize bool) string {
	tag := "[" + toneTag(tone) + "]"
	if message != "" {
		tag += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", tag)
	if !colorize {
		return line
	}
	color := toneColor(tone)
	if color == "" {
		return line
	}
	return color + line + ansiReset
}

func toneTag(tone statusTone) string {
	switch tone {
	case toneOK:
		return "OK"
	case toneWarn:
		return "WARN"
	case toneErr:
		return "ERROR"
	default:
		return "INFO"
	}
}

func toneColor(tone statusTone) string {
	switch tone {
	case toneOK:
		return ansiGreen
	case toneWarn:
		return ansiYellow
	case toneErr:
		return ansiRed
	case toneInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) string {
	line := "== " + strings.TrimSpace(title) + " =="
	if colorize {
		return ansiBlue + line + ansiReset
	}
	return line
}

// shouldColorize honors NO_COLOR and only colors real terminals.
func shouldColorize(writer io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
