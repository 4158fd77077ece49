package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/richinex/parley/agent"
	"github.com/richinex/parley/llm"
	"github.com/richinex/parley/model"
	"github.com/richinex/parley/storage"
)

const room = "!room:example.org"

type sentMessage struct {
	room, body, html string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentMessage
	names map[string]string
}

func (f *fakeSender) SendText(_ context.Context, room, body, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{room, body, html})
	return nil
}

func (f *fakeSender) DisplayName(_ context.Context, user string) (string, error) {
	if name, ok := f.names[user]; ok {
		return name, nil
	}
	return "", errors.New("no such user")
}

func (f *fakeSender) bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.body
	}
	return out
}

func (f *fakeSender) last() string {
	b := f.bodies()
	if len(b) == 0 {
		return ""
	}
	return b[len(b)-1]
}

type fakeGateway struct {
	mu     sync.Mutex
	reply  string
	err    error
	models []string
}

func (g *fakeGateway) Chat(_ context.Context, req llm.ChatRequest) (*llm.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.models = append(g.models, req.Model)
	if g.err != nil {
		return nil, g.err
	}
	return &llm.Response{Message: llm.AssistantMessage(g.reply)}, nil
}

func (g *fakeGateway) Routes() llm.RoutingTable {
	return llm.RoutingTable{Providers: map[string]llm.ProviderConfig{
		"openai": {Models: []string{"gpt-4o", "gpt-4o-mini"}},
		"ollama": {Local: true, Models: []string{"llama3"}},
	}}
}

type testBot struct {
	env     *Env
	sender  *fakeSender
	gateway *fakeGateway
	history *storage.History
	router  *Router
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	gw := &fakeGateway{reply: "Hi!"}
	history := storage.NewHistory(storage.NewPromptBuilder("you are ", ".", " be brief.", "a helpful bot"), 24)
	engine, err := agent.NewBuilder(gw, history).DefaultModel("gpt-4o").Build()
	if err != nil {
		t.Fatal(err)
	}
	router := NewDefaultRouter("")
	router.SetBotName("Parley")
	sender := &fakeSender{names: map[string]string{
		"@alice:example.org": "Alice",
		"@bob:example.org":   "Bob",
	}}
	env := &Env{
		Engine: engine,
		Sender: sender,
		Render: func(md string) (string, error) { return "<p>" + md + "</p>", nil },
		Help:   ParseHelp("users {prefix}ai\n~~~\nadmins {prefix}model"),
		Router: router,
		Admins: []string{"@alice:example.org"},
	}
	return &testBot{env: env, sender: sender, gateway: gw, history: history, router: router}
}

// run resolves and executes text as sender.
func (b *testBot) run(t *testing.T, sender, display, text string) error {
	t.Helper()
	cmd, args, ok := b.router.Resolve(text, b.env.IsAdmin(sender, display))
	if !ok {
		t.Fatalf("%q did not resolve", text)
	}
	return cmd.Handler(context.Background(), b.env, Invocation{Room: room, Sender: sender, Display: display, Args: args})
}

func TestAskReply(t *testing.T) {
	b := newTestBot(t)
	if err := b.run(t, "@bob:example.org", "Bob", ".ai hello"); err != nil {
		t.Fatal(err)
	}
	if len(b.sender.sent) != 1 {
		t.Fatalf("sent %d messages", len(b.sender.sent))
	}
	msg := b.sender.sent[0]
	if msg.body != "**Bob**:\nHi!" || msg.html != "<p>**Bob**:\nHi!</p>" || msg.room != room {
		t.Errorf("sent %+v", msg)
	}
	if got := len(b.history.Get(model.Key(room, "@bob:example.org"))); got != 3 {
		t.Errorf("thread length = %d", got)
	}
}

func TestAskFailureReportsSomethingWentWrong(t *testing.T) {
	b := newTestBot(t)
	b.gateway.err = errors.New("connection refused")
	if err := b.run(t, "@bob:example.org", "Bob", "Parley: hello"); err == nil {
		t.Fatal("expected error for logging")
	}
	if b.sender.last() != "Something went wrong" {
		t.Errorf("sent %q", b.sender.last())
	}
}

func TestCrossUserAsk(t *testing.T) {
	b := newTestBot(t)
	alice := model.Key(room, "@alice:example.org")
	b.history.Ensure(alice)

	if err := b.run(t, "@bob:example.org", "Bob", ".x Alice how are you"); err != nil {
		t.Fatal(err)
	}
	msgs := b.history.Get(alice)
	if len(msgs) != 3 || msgs[1].Text() != "how are you" {
		t.Fatalf("alice thread = %+v", msgs)
	}
	if b.sender.last() != "**Bob**:\nHi!" {
		t.Errorf("sent %q", b.sender.last())
	}
	if got := b.history.Users(room); len(got) != 1 {
		t.Errorf("bob should not get a thread: %v", got)
	}

	// Full user IDs need no existing thread.
	if err := b.run(t, "@bob:example.org", "Bob", ".x @carol:example.org hi"); err != nil {
		t.Fatal(err)
	}
	if len(b.history.Get(model.Key(room, "@carol:example.org"))) != 3 {
		t.Error("carol's thread not used")
	}

	sent := len(b.sender.sent)
	for _, text := range []string{".x Nobody hi", ".x Alice"} {
		if err := b.run(t, "@bob:example.org", "Bob", text); err != nil {
			t.Fatal(err)
		}
	}
	if len(b.sender.sent) != sent {
		t.Error("unmatched or incomplete .x should be silent")
	}
}

func TestPersonaAndCustom(t *testing.T) {
	b := newTestBot(t)
	key := model.Key(room, "@bob:example.org")

	if err := b.run(t, "@bob:example.org", "Bob", ".persona a pirate"); err != nil {
		t.Fatal(err)
	}
	msgs := b.history.Get(key)
	if msgs[0].Text() != "you are a pirate. be brief." || msgs[1].Text() != agent.IntroducePrompt {
		t.Errorf("thread = %+v", msgs)
	}

	sent := len(b.sender.sent)
	if err := b.run(t, "@bob:example.org", "Bob", ".custom"); err != nil {
		t.Fatal(err)
	}
	if len(b.sender.sent) != sent {
		t.Error("empty custom prompt should be ignored")
	}

	if err := b.run(t, "@bob:example.org", "Bob", ".persona"); err != nil {
		t.Fatal(err)
	}
	if got := b.history.Get(key)[0].Text(); got != "you are a helpful bot. be brief." {
		t.Errorf("default persona prompt = %q", got)
	}
}

func TestResetReplies(t *testing.T) {
	b := newTestBot(t)
	key := model.Key(room, "@bob:example.org")

	tests := []struct {
		text    string
		want    string
		wantLen int
	}{
		{text: ".reset", want: "Parley reset to default for Bob", wantLen: 1},
		{text: ".reset stock", want: "Stock settings applied for Bob", wantLen: 0},
		{text: ".stock", want: "Stock settings applied for Bob", wantLen: 0},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			b.history.Append(key, llm.UserMessage("hi"))
			if err := b.run(t, "@bob:example.org", "Bob", tt.text); err != nil {
				t.Fatal(err)
			}
			if b.sender.last() != tt.want {
				t.Errorf("reply = %q", b.sender.last())
			}
			if got := len(b.history.Get(key)); got != tt.wantLen {
				t.Errorf("thread length = %d, want %d", got, tt.wantLen)
			}
		})
	}
}

func TestModelCommand(t *testing.T) {
	b := newTestBot(t)
	admin := func(text string) string {
		t.Helper()
		if err := b.run(t, "@alice:example.org", "Alice", text); err != nil {
			t.Fatal(err)
		}
		return b.sender.last()
	}

	if got := admin(".model"); got != "**Current model**: gpt-4o\n**Available models**: gpt-4o, gpt-4o-mini, llama3" {
		t.Errorf("status = %q", got)
	}
	if got := admin(".model gpt-4o-mini"); got != "Model set to **gpt-4o-mini**" {
		t.Errorf("set = %q", got)
	}
	if got := admin(".model bogus"); !strings.HasPrefix(got, "Model 'bogus' not found") {
		t.Errorf("unknown = %q", got)
	}
	if b.env.Engine.Model() != "gpt-4o-mini" {
		t.Error("unknown model changed the global model")
	}
	if got := admin(".model reset"); got != "Model set to **gpt-4o**" {
		t.Errorf("reset = %q", got)
	}

	if _, _, ok := b.router.Resolve(".model llama3", false); ok {
		t.Error("non-admins must not resolve .model")
	}
}

func TestMyModelCommand(t *testing.T) {
	b := newTestBot(t)
	user := func(text string) string {
		t.Helper()
		if err := b.run(t, "@bob:example.org", "Bob", text); err != nil {
			t.Fatal(err)
		}
		return b.sender.last()
	}

	if got := user(".mymodel"); got != "**Your current model**: gpt-4o\n**Available models**: gpt-4o, gpt-4o-mini, llama3" {
		t.Errorf("status = %q", got)
	}
	if got := user(".mymodel llama3"); !strings.HasPrefix(got, "You cannot set a local model") {
		t.Errorf("local = %q", got)
	}
	if got := user(".mymodel nope"); got != "Model 'nope' not found. Available: gpt-4o, gpt-4o-mini, llama3" {
		t.Errorf("unknown = %q", got)
	}
	if got := user(".mymodel gpt-4o-mini"); got != "Model for Bob set to gpt-4o-mini" {
		t.Errorf("set = %q", got)
	}
	user(".ai hi")
	if m := b.gateway.models[len(b.gateway.models)-1]; m != "gpt-4o-mini" {
		t.Errorf("override not used, got %s", m)
	}
	if got := user(".mymodel reset"); got != "Model for Bob set to gpt-4o" {
		t.Errorf("reset = %q", got)
	}
}

func TestToolsCommandWithoutTools(t *testing.T) {
	b := newTestBot(t)
	for text, want := range map[string]string{
		".tools":        "Tools are currently disabled",
		".tools status": "Tools are currently disabled",
		".tools on":     "Tools are now disabled",
		".tools toggle": "Tools are now disabled",
	} {
		if err := b.run(t, "@alice:example.org", "Alice", text); err != nil {
			t.Fatal(err)
		}
		if b.sender.last() != want {
			t.Errorf("%s: reply = %q, want %q", text, b.sender.last(), want)
		}
	}
}

func TestVerboseCommand(t *testing.T) {
	b := newTestBot(t)
	tests := []struct {
		text string
		want string
		on   bool
	}{
		{text: ".verbose", want: "Verbose mode is **OFF**"},
		{text: ".verbose on", want: "Verbose mode set to **ON**", on: true},
		{text: ".verbose status", want: "Verbose mode is **ON**", on: true},
		{text: ".verbose toggle", want: "Verbose mode set to **OFF**"},
		{text: ".verbose 1", want: "Verbose mode set to **ON**", on: true},
		{text: ".verbose maybe", want: "Usage: .verbose [on|off|toggle]", on: true},
		{text: ".verbose disabled", want: "Verbose mode set to **OFF**"},
	}
	for _, tt := range tests {
		if err := b.run(t, "@alice:example.org", "Alice", tt.text); err != nil {
			t.Fatal(err)
		}
		if b.sender.last() != tt.want || b.env.Engine.Verbose() != tt.on {
			t.Errorf("%s: reply %q verbose %v", tt.text, b.sender.last(), b.env.Engine.Verbose())
		}
	}
}

func TestClearCommand(t *testing.T) {
	b := newTestBot(t)
	b.history.Ensure(model.Key(room, "@bob:example.org"))
	if err := b.env.Engine.SetModel("gpt-4o-mini"); err != nil {
		t.Fatal(err)
	}
	if err := b.run(t, "@alice:example.org", "Alice", ".clear"); err != nil {
		t.Fatal(err)
	}
	if b.sender.last() != "Bot has been reset for everyone" {
		t.Errorf("reply = %q", b.sender.last())
	}
	if len(b.history.Users(room)) != 0 || b.env.Engine.Model() != "gpt-4o" {
		t.Error("clear did not reset state")
	}
}

func TestHelpSections(t *testing.T) {
	b := newTestBot(t)
	if err := b.run(t, "@bob:example.org", "Bob", ".help"); err != nil {
		t.Fatal(err)
	}
	if got := b.sender.bodies(); len(got) != 1 || got[0] != "users .ai" {
		t.Errorf("user help = %q", got)
	}

	b.sender.sent = nil
	if err := b.run(t, "@alice:example.org", "Alice", ".help"); err != nil {
		t.Fatal(err)
	}
	if got := b.sender.bodies(); len(got) != 2 || got[1] != "admins .model" {
		t.Errorf("admin help = %q", got)
	}
}

func TestUsageCommand(t *testing.T) {
	b := newTestBot(t)
	if err := b.run(t, "@alice:example.org", "Alice", ".usage"); err != nil {
		t.Fatal(err)
	}
	if b.sender.last() != "Usage tracking is disabled" {
		t.Errorf("reply = %q", b.sender.last())
	}

	ledger, err := storage.NewUsageLedgerInMemory(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()
	b.env.Usage = ledger

	if err := b.run(t, "@alice:example.org", "Alice", ".usage"); err != nil {
		t.Fatal(err)
	}
	if b.sender.last() != "No completions in the last 24h" {
		t.Errorf("reply = %q", b.sender.last())
	}

	rec := llm.UsageRecord{Provider: "openai", Model: "gpt-4o", Usage: &llm.TokenUsage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}, Duration: 40 * time.Millisecond}
	if err := ledger.Insert(context.Background(), rec, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := b.run(t, "@alice:example.org", "Alice", ".usage 7d"); err != nil {
		t.Fatal(err)
	}
	got := b.sender.last()
	if !strings.Contains(got, "**Usage, last 7d**") || !strings.Contains(got, "| openai | gpt-4o | 1 | 0 | 7 | 3 | 40ms |") {
		t.Errorf("table = %q", got)
	}

	if err := b.run(t, "@alice:example.org", "Alice", ".usage soon"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(b.sender.last(), "Usage: .usage") {
		t.Errorf("bad window reply = %q", b.sender.last())
	}
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "", want: DefaultUsageWindow},
		{in: "2h", want: 2 * time.Hour},
		{in: "7d", want: 7 * 24 * time.Hour},
		{in: "0d", wantErr: true},
		{in: "-1h", wantErr: true},
		{in: "xd", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseWindow(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseWindow(%q) = %v, %v", tt.in, got, err)
		}
	}
}
