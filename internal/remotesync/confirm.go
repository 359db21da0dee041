package remotesync

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"crystalproc/internal/services"
)

// Confirmer asks the operator to approve a destructive step.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// PromptConfirmer reads a y/N answer. When In is not a terminal it refuses
// unless AssumeYes is set.
type PromptConfirmer struct {
	In        *os.File
	Out       io.Writer
	AssumeYes bool
}

func (p PromptConfirmer) Confirm(prompt string) (bool, error) {
	out := p.Out
	if out == nil {
		out = os.Stderr
	}
	if p.AssumeYes {
		fmt.Fprintf(out, "%s [y/N]: y (--yes)\n", prompt)
		return true, nil
	}
	in := p.In
	if in == nil {
		in = os.Stdin
	}
	fd := in.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return false, services.Wrap(services.ErrAborted, "sync", "confirm", "stdin is not a terminal; rerun with --yes to delete without a prompt", nil)
	}
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	return readAnswer(in)
}

func readAnswer(r io.Reader) (bool, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// StaticConfirmer answers every prompt with Answer.
type StaticConfirmer struct {
	Answer bool
}

func (s StaticConfirmer) Confirm(string) (bool, error) { return s.Answer, nil }
