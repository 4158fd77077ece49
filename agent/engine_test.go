package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/richinex/parley/llm"
	"github.com/richinex/parley/model"
	"github.com/richinex/parley/storage"
)

var bob = model.Key("!room:example.org", "@bob:example.org")

func testRoutes() llm.RoutingTable {
	return llm.RoutingTable{Providers: map[string]llm.ProviderConfig{
		"openai": {APIKey: "k", Models: []string{"gpt-4o", "gpt-4o-mini"}},
		"ollama": {Local: true, Models: []string{"llama3", "qwen3"}},
	}}
}

func newTestEngine(t *testing.T, gw *scriptedGateway, loop *Loop) (*Engine, *storage.History) {
	t.Helper()
	gw.routes = testRoutes()
	history := storage.NewHistory(storage.NewPromptBuilder("you are ", ".", " be brief.", "a helpful bot"), storage.DefaultMaxItems)
	engine, err := NewBuilder(gw, history).DefaultModel("gpt-4o").Loop(loop).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return engine, history
}

func TestBuilderValidation(t *testing.T) {
	history := storage.NewHistory(storage.NewPromptBuilder("", "", "", "bot"), 4)
	if _, err := NewBuilder(&scriptedGateway{}, history).Build(); err == nil {
		t.Error("expected error without a default model")
	}
	if _, err := NewBuilder(nil, history).DefaultModel("m").Build(); err == nil {
		t.Error("expected error without a gateway")
	}
}

func TestEngineAskScenario(t *testing.T) {
	gw := &scriptedGateway{responses: []*llm.Response{textResponse("Hi!")}}
	engine, history := newTestEngine(t, gw, nil)

	reply, err := engine.Ask(context.Background(), bob, "hello")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if reply != "Hi!" {
		t.Errorf("reply = %q", reply)
	}

	msgs := history.Get(bob)
	if len(msgs) != 3 {
		t.Fatalf("expected [system user assistant], got %+v", msgs)
	}
	if msgs[1].Role != llm.RoleUser || msgs[1].Text() != "hello" {
		t.Errorf("user message = %+v", msgs[1])
	}
	if msgs[2].Role != llm.RoleAssistant || msgs[2].Text() != "Hi!" {
		t.Errorf("assistant message = %+v", msgs[2])
	}
	if gw.requests[0].Model != "gpt-4o" || len(gw.requests[0].Tools) != 0 {
		t.Errorf("request = %+v", gw.requests[0])
	}
}

func TestEngineAskFailureStoresNoReply(t *testing.T) {
	gw := &scriptedGateway{err: errors.New("status 502")}
	engine, history := newTestEngine(t, gw, nil)

	if _, err := engine.Ask(context.Background(), bob, "hello"); err == nil {
		t.Fatal("expected error")
	}
	msgs := history.Get(bob)
	if len(msgs) != 2 || msgs[1].Text() != "hello" {
		t.Errorf("thread = %+v", msgs)
	}
}

func TestEngineStripsThinkingBeforeStoring(t *testing.T) {
	gw := &scriptedGateway{responses: []*llm.Response{textResponse("<think>pondering</think>\n\nAnswer")}}
	engine, history := newTestEngine(t, gw, nil)

	reply, err := engine.Ask(context.Background(), bob, "q")
	if err != nil {
		t.Fatal(err)
	}
	msgs := history.Get(bob)
	if reply != "Answer" || msgs[len(msgs)-1].Text() != "Answer" {
		t.Errorf("reply %q stored %q", reply, msgs[len(msgs)-1].Text())
	}
}

func TestEngineIntroduceScenario(t *testing.T) {
	gw := &scriptedGateway{responses: []*llm.Response{textResponse("Arr, I be a pirate.")}}
	engine, history := newTestEngine(t, gw, nil)
	history.Append(bob, llm.UserMessage("old chatter"))

	reply, err := engine.Introduce(context.Background(), bob, "a pirate", "")
	if err != nil {
		t.Fatalf("Introduce failed: %v", err)
	}
	if reply != "Arr, I be a pirate." {
		t.Errorf("reply = %q", reply)
	}

	msgs := history.Get(bob)
	if len(msgs) != 3 {
		t.Fatalf("thread = %+v", msgs)
	}
	if msgs[0].Text() != "you are a pirate. be brief." {
		t.Errorf("system prompt = %q", msgs[0].Text())
	}
	if msgs[1].Text() != IntroducePrompt {
		t.Errorf("user message = %q", msgs[1].Text())
	}

	if _, err := engine.Introduce(context.Background(), bob, "", "Speak only in haiku."); err != nil {
		t.Fatal(err)
	}
	if got := history.Get(bob)[0].Text(); got != "Speak only in haiku." {
		t.Errorf("custom prompt = %q", got)
	}
}

func TestEngineToolTurnStoresCleanThread(t *testing.T) {
	gw := &scriptedGateway{responses: []*llm.Response{
		toolResponse(llm.ToolCall{ID: "c1", Name: "get_time", Arguments: json.RawMessage(`{"timezone_name":"UTC"}`)}),
		textResponse("It is 12:00 UTC."),
	}}
	engine, history := newTestEngine(t, gw, NewLoop(gw, timeExecutor()))
	if !engine.ToolsEnabled() {
		t.Fatal("tools should start enabled")
	}

	reply, err := engine.Ask(context.Background(), bob, "what time is it?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if reply != "It is 12:00 UTC." {
		t.Errorf("reply = %q", reply)
	}
	if len(gw.requests) != 2 {
		t.Fatalf("expected two completion calls, got %d", len(gw.requests))
	}

	msgs := history.Get(bob)
	if len(msgs) != 3 {
		t.Fatalf("thread = %+v", msgs)
	}
	for _, m := range msgs {
		if m.Role == llm.RoleTool || len(m.ToolCalls) > 0 {
			t.Errorf("tool traffic stored: %+v", m)
		}
	}

	engine.SetToolsEnabled(false)
	gw.responses = []*llm.Response{textResponse("plain")}
	gw.requests = nil
	if _, err := engine.Ask(context.Background(), bob, "again"); err != nil {
		t.Fatal(err)
	}
	if len(gw.requests[0].Tools) != 0 {
		t.Error("disabled tools still offered")
	}
}

func TestEngineToolsNeedExecutor(t *testing.T) {
	engine, _ := newTestEngine(t, &scriptedGateway{}, nil)
	if engine.ToolsEnabled() {
		t.Error("tools enabled without a loop")
	}
	if engine.SetToolsEnabled(true) {
		t.Error("enabling tools without a loop should stay off")
	}
}

func TestEngineGlobalModel(t *testing.T) {
	engine, _ := newTestEngine(t, &scriptedGateway{}, nil)

	if err := engine.SetModel("nonexistent"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
	if engine.Model() != "gpt-4o" {
		t.Errorf("unknown model changed state: %s", engine.Model())
	}
	if err := engine.SetModel("llama3"); err != nil {
		t.Fatal(err)
	}
	if engine.UserModel(bob) != "llama3" {
		t.Errorf("threads without override should follow the global model")
	}
	engine.ResetModel()
	if engine.Model() != "gpt-4o" {
		t.Errorf("ResetModel = %s", engine.Model())
	}
	if got := strings.Join(engine.Models(), ","); got != "gpt-4o,gpt-4o-mini,llama3,qwen3" {
		t.Errorf("Models = %s", got)
	}
}

func TestEngineLocalModelRejection(t *testing.T) {
	gw := &scriptedGateway{responses: []*llm.Response{textResponse("ok")}}
	engine, _ := newTestEngine(t, gw, nil)

	if err := engine.SetUserModel(bob, "llama3"); !errors.Is(err, ErrLocalModel) {
		t.Fatalf("expected ErrLocalModel, got %v", err)
	}
	if engine.UserModel(bob) != "gpt-4o" {
		t.Error("rejected model was stored")
	}
	if err := engine.SetUserModel(bob, "missing"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}

	if err := engine.SetUserModel(bob, "gpt-4o-mini"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Ask(context.Background(), bob, "hi"); err != nil {
		t.Fatal(err)
	}
	if gw.requests[0].Model != "gpt-4o-mini" {
		t.Errorf("override not used: %s", gw.requests[0].Model)
	}

	if err := engine.SetModel("llama3"); err != nil {
		t.Fatal(err)
	}
	if err := engine.SetUserModel(bob, "llama3"); err != nil {
		t.Errorf("local model equal to the global model should be accepted: %v", err)
	}
	engine.ResetUserModel(bob)
	if engine.UserModel(bob) != "llama3" {
		t.Errorf("ResetUserModel should fall back to the global model")
	}
}

func TestEnginePruneModelsAfterRoutingChange(t *testing.T) {
	gw := &scriptedGateway{}
	engine, _ := newTestEngine(t, gw, nil)
	alice := model.Key("!room:example.org", "@alice:example.org")

	if err := engine.SetModel("qwen3"); err != nil {
		t.Fatal(err)
	}
	if err := engine.SetUserModel(bob, "llama3"); err != nil {
		t.Fatal(err)
	}
	if err := engine.SetUserModel(alice, "gpt-4o-mini"); err != nil {
		t.Fatal(err)
	}

	if reset, dropped := engine.PruneModels(); reset || dropped != 0 {
		t.Errorf("unchanged routes pruned: reset=%v dropped=%d", reset, dropped)
	}

	gw.routes = llm.RoutingTable{Providers: map[string]llm.ProviderConfig{
		"openai": {APIKey: "k", Models: []string{"gpt-4o", "gpt-4o-mini"}},
	}}
	reset, dropped := engine.PruneModels()
	if !reset || dropped != 1 {
		t.Errorf("PruneModels = %v, %d, want true, 1", reset, dropped)
	}
	if engine.Model() != "gpt-4o" {
		t.Errorf("Model = %s, want default", engine.Model())
	}
	if engine.UserModel(bob) != "gpt-4o" {
		t.Errorf("unrouted override kept: %s", engine.UserModel(bob))
	}
	if engine.UserModel(alice) != "gpt-4o-mini" {
		t.Errorf("routed override dropped: %s", engine.UserModel(alice))
	}
}

func TestEngineStockResetIsIdempotent(t *testing.T) {
	engine, history := newTestEngine(t, &scriptedGateway{}, nil)
	history.Append(bob, llm.UserMessage("hi"))

	engine.Reset(bob, true)
	first := history.Get(bob)
	engine.Reset(bob, true)
	second := history.Get(bob)
	if len(first) != 0 || len(second) != 0 {
		t.Errorf("stock thread should be empty: %+v / %+v", first, second)
	}

	engine.Reset(bob, false)
	if msgs := history.Get(bob); len(msgs) != 1 || msgs[0].Role != llm.RoleSystem {
		t.Errorf("reset thread = %+v", msgs)
	}
}

func TestEngineClearAll(t *testing.T) {
	engine, history := newTestEngine(t, &scriptedGateway{}, nil)
	history.Append(bob, llm.UserMessage("hi"))
	if err := engine.SetModel("qwen3"); err != nil {
		t.Fatal(err)
	}
	if err := engine.SetUserModel(bob, "gpt-4o-mini"); err != nil {
		t.Fatal(err)
	}

	engine.ClearAll()
	if engine.Model() != "gpt-4o" {
		t.Errorf("model not restored: %s", engine.Model())
	}
	if engine.UserModel(bob) != "gpt-4o" {
		t.Errorf("override survived clear")
	}
	if users := engine.Users(bob.Room); len(users) != 0 {
		t.Errorf("threads survived clear: %v", users)
	}
}

func TestEngineVerbose(t *testing.T) {
	engine, history := newTestEngine(t, &scriptedGateway{}, nil)
	engine.SetVerbose(true)
	if !engine.Verbose() {
		t.Fatal("verbose not set")
	}
	if got := history.Get(bob)[0].Text(); got != "you are a helpful bot." {
		t.Errorf("verbose prompt = %q", got)
	}
}
