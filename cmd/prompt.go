package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// promptReader is shared so buffered input is not lost between prompts.
var promptReader *bufio.Reader

func promptLine(in io.Reader, label string) (string, error) {
	if promptReader == nil {
		promptReader = bufio.NewReader(in)
	}
	fmt.Fprintf(ui.Out, "%s: ", label)
	line, err := promptReader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo when stdin is a terminal.
func promptSecret(in io.Reader, label string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(ui.Out, "%s: ", label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(ui.Out)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
		}
		return string(b), nil
	}
	return promptLine(in, label)
}

// valueOrPrompt returns v, prompting for it when empty.
func valueOrPrompt(in io.Reader, v, label string, secret bool) (string, error) {
	if v != "" {
		return v, nil
	}
	if secret {
		return promptSecret(in, label)
	}
	return promptLine(in, label)
}
