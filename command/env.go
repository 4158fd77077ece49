package command

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/richinex/parley/agent"
	"github.com/richinex/parley/storage"
)

// Sender posts messages and looks up display names.
type Sender interface {
	SendText(ctx context.Context, room, body, html string) error
	DisplayName(ctx context.Context, user string) (string, error)
}

// UsageReporter summarizes recorded completion usage.
type UsageReporter interface {
	Summary(ctx context.Context, since time.Time) ([]storage.UsageSummary, error)
}

// Env is the state shared by all handlers.
type Env struct {
	Engine *agent.Engine
	Sender Sender

	// Usage backs the usage command; nil disables it.
	Usage UsageReporter

	// Render converts markdown to HTML; nil sends plain text only.
	Render func(markdown string) (string, error)

	Help   Help
	Router *Router
	Admins []string
	Logger *slog.Logger
}

// IsAdmin reports whether the user ID or display name is listed as admin.
func (e *Env) IsAdmin(user, display string) bool {
	return slices.Contains(e.Admins, user) || slices.Contains(e.Admins, display)
}

// Reply sends text with its HTML rendering when available.
func (e *Env) Reply(ctx context.Context, room, text string) error {
	html := ""
	if e.Render != nil {
		rendered, err := e.Render(text)
		if err != nil {
			e.logger().Warn("markdown rendering failed", "room", room, "error", err)
		} else {
			html = rendered
		}
	}
	return e.Sender.SendText(ctx, room, text, html)
}

// DisplayName resolves a user's display name, falling back to the ID.
func (e *Env) DisplayName(ctx context.Context, user string) string {
	name, err := e.Sender.DisplayName(ctx, user)
	if err != nil || name == "" {
		return user
	}
	return name
}

// fail reports a failed completion to the room and returns err for logging.
func (e *Env) fail(ctx context.Context, room string, err error) error {
	if sendErr := e.Reply(ctx, room, "Something went wrong"); sendErr != nil {
		e.logger().Error("failed to send error reply", "room", room, "error", sendErr)
	}
	return err
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
