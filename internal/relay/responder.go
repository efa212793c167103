package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrUnknownCommand = errors.New("relay: unknown command")

// Responder produces the reply text for a decrypted command.
type Responder interface {
	Respond(ctx context.Context, command string) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, command string) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, command string) (string, error) {
	return f(ctx, command)
}

// Handler answers one named command. args is the command text after the
// name, trimmed.
type Handler func(ctx context.Context, args string) (string, error)

// Commands dispatches on the first word of the command text.
type Commands struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewCommands() *Commands {
	return &Commands{handlers: make(map[string]Handler)}
}

func (c *Commands) Register(name string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[strings.ToLower(strings.TrimSpace(name))] = h
}

func (c *Commands) Get(name string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[strings.ToLower(name)]
	return h, ok
}

// Names returns the registered command names in sorted order.
func (c *Commands) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Commands) Respond(ctx context.Context, command string) (string, error) {
	name, args, _ := strings.Cut(strings.TrimSpace(command), " ")
	if name == "" {
		return "", fmt.Errorf("%w: empty command", ErrUnknownCommand)
	}
	h, ok := c.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return h(ctx, strings.TrimSpace(args))
}

// builtinCommands wires the commands every relay answers.
func builtinCommands(r *Relay) *Commands {
	cmds := NewCommands()
	cmds.Register("ping", func(context.Context, string) (string, error) {
		return "pong", nil
	})
	cmds.Register("echo", func(_ context.Context, args string) (string, error) {
		return args, nil
	})
	cmds.Register("status", func(context.Context, string) (string, error) {
		st := r.collector.Status()
		return fmt.Sprintf("relay %s holding %d chunks", r.ID, st.Chunks), nil
	})
	cmds.Register("help", func(context.Context, string) (string, error) {
		return strings.Join(cmds.Names(), " "), nil
	})
	return cmds
}
