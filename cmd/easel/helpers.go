package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"easel/internal/imageapi"
)

var titleCaser = cases.Title(language.Und)

// statusCaption renders a task status for table output.
func statusCaption(status imageapi.Status) string {
	if status == "" {
		return "Unknown"
	}
	return titleCaser.String(string(status))
}

func formatTimestamp(ts imageapi.Timestamp) string {
	if ts.Time.IsZero() {
		return "-"
	}
	return ts.Time.Local().Format("2006-01-02 15:04:05")
}

func formatOptionalTimestamp(ts *imageapi.Timestamp) string {
	if ts == nil {
		return "-"
	}
	return formatTimestamp(*ts)
}

func formatSeconds(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%.1fs", *value)
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// promptPassword reads a password without echo when stdin is a terminal,
// falling back to a plain line read otherwise (pipes, tests).
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(secret), nil
	}

	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
