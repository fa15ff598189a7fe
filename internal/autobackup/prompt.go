package autobackup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Prompter asks the user a yes/no question.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// DenyPrompter answers no without asking.
type DenyPrompter struct{}

// Confirm implements [Prompter].
func (DenyPrompter) Confirm(context.Context, string) (bool, error) {
	return false, nil
}

// TTYPrompter asks on a terminal.
type TTYPrompter struct {
	In  io.Reader
	Out io.Writer
}

// Confirm implements [Prompter]. Anything but "y" or "yes" is a no.
func (p *TTYPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := fmt.Fprintf(p.Out, "%s [y/N] ", question); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// NewPrompter returns a terminal prompter when stdin is a TTY, else a
// [DenyPrompter].
func NewPrompter() Prompter {
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return &TTYPrompter{In: os.Stdin, Out: os.Stderr}
	}
	return DenyPrompter{}
}
