// Package command maps chat messages to bot commands.
//
// Information Hiding:
// - Key matching and prefix handling hidden
// - Admin gating hidden
// - Bot-name addressing hidden
package command

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// DefaultPrefix starts every command key.
const DefaultPrefix = "."

// AskCommand is the command addressed by "<botname>:".
const AskCommand = "ai"

// Invocation is one resolved command call.
type Invocation struct {
	Room    string
	Sender  string
	Display string
	Args    string
}

// Handler executes a command. Returned errors are logged by the caller.
type Handler func(ctx context.Context, env *Env, inv Invocation) error

// Command represents a chat command.
type Command struct {
	// Name is the key without prefix (e.g., "ai").
	Name string

	// Description is shown in generated help.
	Description string

	// Usage shows argument syntax without prefix (e.g., "model [name|reset]").
	Usage string

	// Admin commands are only dispatched for admins.
	Admin bool

	Handler Handler
}

// Router resolves message text to a command.
type Router struct {
	prefix   string
	commands map[string]*Command

	mu      sync.RWMutex
	botName string
}

// NewRouter creates an empty router. An empty prefix uses DefaultPrefix.
func NewRouter(prefix string) *Router {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Router{prefix: prefix, commands: make(map[string]*Command)}
}

// NewDefaultRouter creates a router with every built-in command.
func NewDefaultRouter(prefix string) *Router {
	r := NewRouter(prefix)
	for _, cmd := range Builtins() {
		r.Register(cmd)
	}
	return r
}

// Prefix returns the command prefix.
func (r *Router) Prefix() string {
	return r.prefix
}

// Register adds a command, replacing any command with the same name.
func (r *Router) Register(cmd *Command) {
	r.commands[r.prefix+cmd.Name] = cmd
}

// SetBotName sets the name that addresses the ask command as "<name>:".
func (r *Router) SetBotName(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.botName = name
}

// BotName returns the current bot name.
func (r *Router) BotName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.botName
}

// Resolve maps text to a command and its arguments. The first
// whitespace-delimited token is the key; the remaining tokens joined by
// single spaces are the arguments. Admin commands resolve only when
// isAdmin is set.
func (r *Router) Resolve(text string, isAdmin bool) (*Command, string, bool) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil, "", false
	}
	key := parts[0]
	args := strings.Join(parts[1:], " ")

	if name := r.BotName(); name != "" && key == name+":" {
		cmd, ok := r.commands[r.prefix+AskCommand]
		return cmd, args, ok
	}

	cmd, ok := r.commands[key]
	if !ok || (cmd.Admin && !isAdmin) {
		return nil, "", false
	}
	return cmd, args, true
}

// Commands lists commands sorted by name. Admin commands are included
// only when admin is set.
func (r *Router) Commands(admin bool) []*Command {
	var out []*Command
	for _, cmd := range r.commands {
		if cmd.Admin && !admin {
			continue
		}
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
