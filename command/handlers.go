// Built-in command handlers.
//
// Information Hiding:
// - Reply wording hidden
// - Argument parsing per command hidden

package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/parley/agent"
	"github.com/richinex/parley/model"
)

// DefaultUsageWindow is the usage command's window when none is given.
const DefaultUsageWindow = 24 * time.Hour

// Builtins returns every built-in command.
func Builtins() []*Command {
	return []*Command{
		{Name: AskCommand, Usage: "ai <message>", Description: "Talk to the assistant", Handler: handleAsk},
		{Name: "x", Usage: "x <user> <message>", Description: "Continue another user's conversation", Handler: handleCrossAsk},
		{Name: "persona", Usage: "persona [personality]", Description: "Change the personality", Handler: handlePersona},
		{Name: "custom", Usage: "custom <prompt>", Description: "Use a custom system prompt", Handler: handleCustom},
		{Name: "reset", Usage: "reset [stock]", Description: "Reset your conversation", Handler: handleReset},
		{Name: "stock", Usage: "stock", Description: "Remove the system prompt", Handler: handleStock},
		{Name: "mymodel", Usage: "mymodel [model|reset]", Description: "Show or choose your model", Handler: handleMyModel},
		{Name: "help", Usage: "help", Description: "Show help", Handler: handleHelp},
		{Name: "model", Usage: "model [model|reset]", Description: "Show or change the global model", Admin: true, Handler: handleModel},
		{Name: "tools", Usage: "tools [on|off|toggle|status]", Description: "Enable or disable tools", Admin: true, Handler: handleTools},
		{Name: "verbose", Usage: "verbose [on|off|toggle|status]", Description: "Toggle verbose prompts", Admin: true, Handler: handleVerbose},
		{Name: "usage", Usage: "usage [window]", Description: "Summarize model usage", Admin: true, Handler: handleUsage},
		{Name: "clear", Usage: "clear", Description: "Reset everything for everyone", Admin: true, Handler: handleClear},
	}
}

// attributed formats a reply under a display name.
func attributed(display, text string) string {
	return fmt.Sprintf("**%s**:\n%s", display, text)
}

func handleAsk(ctx context.Context, env *Env, inv Invocation) error {
	reply, err := env.Engine.Ask(ctx, model.Key(inv.Room, inv.Sender), inv.Args)
	if err != nil {
		return env.fail(ctx, inv.Room, err)
	}
	env.logger().Info("sending response", "room", inv.Room, "user", inv.Sender)
	return env.Reply(ctx, inv.Room, attributed(inv.Display, reply))
}

func handleCrossAsk(ctx context.Context, env *Env, inv Invocation) error {
	parts := strings.Fields(inv.Args)
	if len(parts) < 2 {
		return nil
	}
	target := findUser(ctx, env, inv.Room, parts[0])
	if target == "" {
		return nil
	}

	reply, err := env.Engine.Ask(ctx, model.Key(inv.Room, target), strings.Join(parts[1:], " "))
	if err != nil {
		return env.fail(ctx, inv.Room, err)
	}
	return env.Reply(ctx, inv.Room, attributed(inv.Display, reply))
}

// findUser accepts a full user ID or the display name of a participant
// holding a thread in room. It returns "" when nobody matches.
func findUser(ctx context.Context, env *Env, room, name string) string {
	if strings.HasPrefix(name, "@") && strings.Contains(name, ":") {
		return name
	}
	for _, user := range env.Engine.Users(room) {
		if env.DisplayName(ctx, user) == name {
			return user
		}
	}
	return ""
}

func handlePersona(ctx context.Context, env *Env, inv Invocation) error {
	return introduce(ctx, env, inv, strings.TrimSpace(inv.Args), "")
}

func handleCustom(ctx context.Context, env *Env, inv Invocation) error {
	custom := strings.TrimSpace(inv.Args)
	if custom == "" {
		return nil
	}
	return introduce(ctx, env, inv, "", custom)
}

func introduce(ctx context.Context, env *Env, inv Invocation, persona, custom string) error {
	key := model.Key(inv.Room, inv.Sender)
	reply, err := env.Engine.Introduce(ctx, key, persona, custom)
	if err != nil {
		return env.fail(ctx, inv.Room, err)
	}
	env.logger().Info("system prompt changed", "room", inv.Room, "user", inv.Sender, "persona", persona, "custom", custom != "")
	return env.Reply(ctx, inv.Room, attributed(inv.Display, reply))
}

func handleReset(ctx context.Context, env *Env, inv Invocation) error {
	key := model.Key(inv.Room, inv.Sender)
	if strings.EqualFold(strings.TrimSpace(inv.Args), "stock") {
		env.Engine.Reset(key, true)
		return env.Reply(ctx, inv.Room, fmt.Sprintf("Stock settings applied for %s", inv.Display))
	}
	env.Engine.Reset(key, false)
	return env.Reply(ctx, inv.Room, fmt.Sprintf("%s reset to default for %s", env.Router.BotName(), inv.Display))
}

func handleStock(ctx context.Context, env *Env, inv Invocation) error {
	inv.Args = "stock"
	return handleReset(ctx, env, inv)
}

func handleClear(ctx context.Context, env *Env, inv Invocation) error {
	env.Engine.ClearAll()
	return env.Reply(ctx, inv.Room, "Bot has been reset for everyone")
}

func modelList(env *Env) string {
	return strings.Join(env.Engine.Models(), ", ")
}

func handleModel(ctx context.Context, env *Env, inv Invocation) error {
	arg := strings.TrimSpace(inv.Args)
	switch arg {
	case "":
		return env.Reply(ctx, inv.Room, fmt.Sprintf("**Current model**: %s\n**Available models**: %s", env.Engine.Model(), modelList(env)))
	case "reset":
		env.Engine.ResetModel()
	default:
		if err := env.Engine.SetModel(arg); err != nil {
			return env.Reply(ctx, inv.Room, fmt.Sprintf("Model '%s' not found. Available: %s", arg, modelList(env)))
		}
	}
	env.logger().Info("global model changed", "model", env.Engine.Model(), "user", inv.Sender)
	return env.Reply(ctx, inv.Room, fmt.Sprintf("Model set to **%s**", env.Engine.Model()))
}

func handleMyModel(ctx context.Context, env *Env, inv Invocation) error {
	key := model.Key(inv.Room, inv.Sender)
	arg := strings.TrimSpace(inv.Args)
	switch arg {
	case "":
		return env.Reply(ctx, inv.Room, fmt.Sprintf("**Your current model**: %s\n**Available models**: %s", env.Engine.UserModel(key), modelList(env)))
	case "reset":
		env.Engine.ResetUserModel(key)
		return env.Reply(ctx, inv.Room, fmt.Sprintf("Model for %s set to %s", inv.Display, env.Engine.UserModel(key)))
	}

	err := env.Engine.SetUserModel(key, arg)
	switch {
	case errors.Is(err, agent.ErrLocalModel):
		return env.Reply(ctx, inv.Room, "You cannot set a local model unless it matches the current global model. Please ask an admin to change the global model first.")
	case errors.Is(err, agent.ErrUnknownModel):
		return env.Reply(ctx, inv.Room, fmt.Sprintf("Model '%s' not found. Available: %s", arg, modelList(env)))
	case err != nil:
		return err
	}
	return env.Reply(ctx, inv.Room, fmt.Sprintf("Model for %s set to %s", inv.Display, arg))
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func handleTools(ctx context.Context, env *Env, inv Invocation) error {
	current := env.Engine.ToolsEnabled()
	var want bool
	switch strings.ToLower(strings.TrimSpace(inv.Args)) {
	case "", "status":
		return env.Reply(ctx, inv.Room, fmt.Sprintf("Tools are currently %s", enabledWord(current)))
	case "on", "enable", "enabled":
		want = true
	case "off", "disable", "disabled":
		want = false
	default:
		want = !current
	}
	got := env.Engine.SetToolsEnabled(want)
	return env.Reply(ctx, inv.Room, fmt.Sprintf("Tools are now %s", enabledWord(got)))
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func handleVerbose(ctx context.Context, env *Env, inv Invocation) error {
	current := env.Engine.Verbose()
	var want bool
	switch strings.ToLower(strings.TrimSpace(inv.Args)) {
	case "", "status":
		return env.Reply(ctx, inv.Room, fmt.Sprintf("Verbose mode is **%s**", onOff(current)))
	case "on", "true", "1", "enable", "enabled":
		want = true
	case "off", "false", "0", "disable", "disabled":
		want = false
	case "toggle", "switch":
		want = !current
	default:
		return env.Reply(ctx, inv.Room, fmt.Sprintf("Usage: %sverbose [on|off|toggle]", env.Router.Prefix()))
	}
	env.Engine.SetVerbose(want)
	return env.Reply(ctx, inv.Room, fmt.Sprintf("Verbose mode set to **%s**", onOff(want)))
}

func handleHelp(ctx context.Context, env *Env, inv Invocation) error {
	prefix, bot := env.Router.Prefix(), env.Router.BotName()
	if err := env.Reply(ctx, inv.Room, expandHelp(env.Help.User, prefix, bot)); err != nil {
		return err
	}
	if env.Help.Admin != "" && env.IsAdmin(inv.Sender, inv.Display) {
		return env.Reply(ctx, inv.Room, expandHelp(env.Help.Admin, prefix, bot))
	}
	return nil
}

// parseWindow accepts a Go duration or a whole number of days ("7d").
func parseWindow(s string) (time.Duration, error) {
	if s == "" {
		return DefaultUsageWindow, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid window %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid window %q", s)
	}
	return d, nil
}

func handleUsage(ctx context.Context, env *Env, inv Invocation) error {
	if env.Usage == nil {
		return env.Reply(ctx, inv.Room, "Usage tracking is disabled")
	}
	arg := strings.TrimSpace(inv.Args)
	window, err := parseWindow(arg)
	if err != nil {
		return env.Reply(ctx, inv.Room, fmt.Sprintf("Usage: %susage [window], e.g. 24h or 7d", env.Router.Prefix()))
	}
	if arg == "" {
		arg = "24h"
	}

	rows, err := env.Usage.Summary(ctx, time.Now().Add(-window))
	if err != nil {
		return env.fail(ctx, inv.Room, err)
	}
	if len(rows) == 0 {
		return env.Reply(ctx, inv.Room, fmt.Sprintf("No completions in the last %s", arg))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Usage, last %s**\n\n", arg)
	b.WriteString("| provider | model | calls | failures | prompt | completion | avg latency |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %d | %d | %s |\n",
			r.Provider, r.Model, r.Calls, r.Failures, r.PromptTokens, r.CompletionTokens, r.AvgDuration.Round(time.Millisecond))
	}
	return env.Reply(ctx, inv.Room, strings.TrimSuffix(b.String(), "\n"))
}
