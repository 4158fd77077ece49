// Event pump from the chat transport to the command router.
//
// Information Hiding:
// - Stale and self-sent event filtering hidden
// - Per-event goroutines and panic recovery hidden
// - Bot name discovery hidden

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/richinex/parley/command"
	"github.com/richinex/parley/transport"
)

// Bot dispatches inbound chat events to command handlers.
type Bot struct {
	transport transport.Transport
	router    *command.Router
	env       *command.Env
	started   time.Time
	logger    *slog.Logger

	wg sync.WaitGroup
}

// NewBot creates a bot. Events stamped at or before started are ignored.
func NewBot(t transport.Transport, env *command.Env, started time.Time, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		transport: t,
		router:    env.Router,
		env:       env,
		started:   started,
		logger:    logger,
	}
}

// Serve consumes events until the transport's stream closes or ctx is
// cancelled, then waits for in-flight handlers.
func (b *Bot) Serve(ctx context.Context) {
	b.discoverName(ctx)
	defer b.wg.Wait()

	events := b.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.dispatch(ctx, ev)
		}
	}
}

// discoverName sets the "<name>:" address from the bot's display name,
// falling back to the localpart of its user ID.
func (b *Bot) discoverName(ctx context.Context) {
	self := b.transport.UserID()
	name, err := b.transport.DisplayName(ctx, self)
	if err != nil || name == "" || name == self {
		name = localpart(self)
	}
	b.router.SetBotName(name)
	b.logger.Info("bot name set", "name", name)
}

func localpart(userID string) string {
	name := strings.TrimPrefix(userID, "@")
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[:i]
	}
	return name
}

func (b *Bot) dispatch(ctx context.Context, ev transport.Event) {
	if !ev.Timestamp.After(b.started) || ev.Sender == b.transport.UserID() {
		return
	}
	if len(strings.Fields(ev.Text)) == 0 {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.handle(ctx, ev); err != nil {
			b.logger.Error("command failed", "room", ev.Room, "user", ev.Sender, "error", err)
		}
	}()
}

func (b *Bot) handle(ctx context.Context, ev transport.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()

	display := b.env.DisplayName(ctx, ev.Sender)
	cmd, args, ok := b.router.Resolve(ev.Text, b.env.IsAdmin(ev.Sender, display))
	if !ok {
		return nil
	}
	b.logger.Debug("dispatching command", "command", cmd.Name, "room", ev.Room, "user", ev.Sender)

	return cmd.Handler(ctx, b.env, command.Invocation{
		Room:    ev.Room,
		Sender:  ev.Sender,
		Display: display,
		Args:    args,
	})
}
