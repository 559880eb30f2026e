package extproc

import (
	"context"
	"sync"
)

// Runner4Test records every Command and answers with scripted results.
type Runner4Test struct {
	mu       sync.Mutex
	Commands []Command
	// Respond returns the result of a command. When it's nil every command
	// succeeds with empty output.
	Respond func(cmd Command) (*Result, error)
}

// Run implements Runner.
func (r *Runner4Test) Run(_ context.Context, cmd Command) (*Result, error) {
	r.mu.Lock()
	r.Commands = append(r.Commands, cmd)
	r.mu.Unlock()
	if r.Respond == nil {
		return &Result{}, nil
	}
	return r.Respond(cmd)
}

// Names returns the names of recorded commands in order.
func (r *Runner4Test) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.Commands))
	for _, c := range r.Commands {
		names = append(names, c.Name)
	}
	return names
}
