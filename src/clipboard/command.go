package clipboard

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Command is the legacy fallback: it pipes text into the first clipboard
// utility found on PATH.
type Command struct {
	candidates [][]string
	lookPath   func(string) (string, error)
	run        func(name string, args []string, stdin string) error
}

func NewCommand() *Command {
	return &Command{
		candidates: commandsFor(runtime.GOOS),
		lookPath:   exec.LookPath,
		run:        runWithStdin,
	}
}

func commandsFor(goos string) [][]string {
	switch goos {
	case "darwin":
		return [][]string{{"pbcopy"}}
	case "windows":
		return [][]string{{"clip"}}
	default:
		return [][]string{
			{"wl-copy"},
			{"xclip", "-selection", "clipboard"},
			{"xsel", "--clipboard", "--input"},
		}
	}
}

func (c *Command) Copy(text string) error {
	for _, cand := range c.candidates {
		path, err := c.lookPath(cand[0])
		if err != nil {
			continue
		}
		if err := c.run(path, cand[1:], text); err != nil {
			return fmt.Errorf("%s: %w", cand[0], err)
		}
		return nil
	}
	return fmt.Errorf("%w: no clipboard command found", ErrUnavailable)
}

func runWithStdin(name string, args []string, stdin string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(stdin)
	return cmd.Run()
}
