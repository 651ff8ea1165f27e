package navigation

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/target/tourbook/internal/ports"
)

// CLI prints where the user has to go next. Destinations map to commands.
type CLI struct {
	out      io.Writer
	commands map[string]string

	mu      sync.Mutex
	history []ports.Navigation
}

// NewCLI returns a navigator writing to out. commands maps destination paths to the
// command a user should run, e.g. "/login" -> "tourbookctl login".
func NewCLI(out io.Writer, commands map[string]string) *CLI {
	return &CLI{out: out, commands: commands}
}

func (c *CLI) Navigate(_ context.Context, nav ports.Navigation) {
	c.mu.Lock()
	c.history = append(c.history, nav)
	c.mu.Unlock()

	if cmd, ok := c.commands[nav.To]; ok {
		fmt.Fprintf(c.out, "-> %s (run: %s)\n", nav.To, cmd)
		return
	}
	fmt.Fprintf(c.out, "-> %s\n", Target(nav))
}

// Last returns the most recent navigation.
func (c *CLI) Last() (ports.Navigation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return ports.Navigation{}, false
	}
	return c.history[len(c.history)-1], true
}
