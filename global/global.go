package global

import (
	"os"

	"golang.org/x/term"
)

var (
	// IsTerminal is false when stdin is a pipe or a redirect.
	IsTerminal = term.IsTerminal(int(os.Stdin.Fd()))
	// StdoutIsTerminal gates progress bars.
	StdoutIsTerminal = term.IsTerminal(int(os.Stdout.Fd()))
)
