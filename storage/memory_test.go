package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/richinex/parley/llm"
	"github.com/richinex/parley/model"
)

func newTestHistory(max int) *History {
	return NewHistory(NewPromptBuilder("you are ", ".", " keep it short.", "a helpful bot"), max)
}

var alice = model.Key("!room:example.org", "@alice:example.org")

func TestHistoryLazySeed(t *testing.T) {
	h := newTestHistory(24)

	msgs := h.Get(alice)
	if len(msgs) != 1 {
		t.Fatalf("expected seeded thread of 1, got %d", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem {
		t.Errorf("expected system role, got %s", msgs[0].Role)
	}
	if got := msgs[0].Text(); got != "you are a helpful bot. keep it short." {
		t.Errorf("unexpected prompt %q", got)
	}
}

func TestHistoryRetentionKeepsSystemPrompt(t *testing.T) {
	for _, max := range []int{1, 2, 3, 5, 24} {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			h := newTestHistory(max)
			for i := 0; i < 60; i++ {
				h.Append(alice, llm.UserMessage(fmt.Sprintf("m%d", i)))
				msgs := h.Get(alice)
				limit := max
				if limit < 1 {
					limit = 1
				}
				if len(msgs) > limit {
					t.Fatalf("after %d appends: len %d > max %d", i+1, len(msgs), max)
				}
				if max > 1 && msgs[0].Role != llm.RoleSystem {
					t.Fatalf("after %d appends: system prompt evicted", i+1)
				}
			}
			msgs := h.Get(alice)
			if max > 1 && msgs[len(msgs)-1].Text() != "m59" {
				t.Errorf("newest message lost: %q", msgs[len(msgs)-1].Text())
			}
		})
	}
}

func TestTrimWithoutSystemDropsHead(t *testing.T) {
	msgs := []llm.Message{llm.UserMessage("a"), llm.AssistantMessage("b"), llm.UserMessage("c")}
	got := Trim(msgs, 2)
	if len(got) != 2 || got[0].Text() != "b" || got[1].Text() != "c" {
		t.Errorf("Trim = %+v", got)
	}
}

func TestTrimLoneSystemPromptSurvives(t *testing.T) {
	got := Trim([]llm.Message{llm.SystemMessage("s")}, 0)
	if len(got) != 1 {
		t.Errorf("lone system prompt dropped")
	}
}

func TestInitPromptResetsThread(t *testing.T) {
	h := newTestHistory(24)
	for i := 0; i < 10; i++ {
		h.Append(alice, llm.UserMessage("chatter"))
	}

	h.InitPrompt(alice, "a pirate", "")
	msgs := h.Get(alice)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message after InitPrompt, got %d", len(msgs))
	}
	if got := msgs[0].Text(); got != "you are a pirate. keep it short." {
		t.Errorf("persona prompt = %q", got)
	}

	h.InitPrompt(alice, "", "Speak only in haiku")
	msgs = h.Get(alice)
	if len(msgs) != 1 || msgs[0].Text() != "Speak only in haiku" {
		t.Errorf("custom prompt = %+v", msgs)
	}

	h.InitPrompt(alice, "", "")
	if got := h.Get(alice)[0].Text(); got != "you are a helpful bot. keep it short." {
		t.Errorf("empty persona should use default, got %q", got)
	}
}

func TestVerboseOmitsExtra(t *testing.T) {
	h := newTestHistory(24)
	h.Prompts().SetVerbose(true)
	h.InitPrompt(alice, "a cat", "")
	if got := h.Get(alice)[0].Text(); got != "you are a cat." {
		t.Errorf("verbose prompt = %q", got)
	}
}

func TestResetReseedsDefault(t *testing.T) {
	h := newTestHistory(24)
	h.InitPrompt(alice, "a pirate", "")
	h.Append(alice, llm.UserMessage("ahoy"))

	h.Reset(alice, false)
	msgs := h.Get(alice)
	if len(msgs) != 1 || msgs[0].Text() != "you are a helpful bot. keep it short." {
		t.Errorf("after reset: %+v", msgs)
	}
}

func TestStockResetIsIdempotent(t *testing.T) {
	h := newTestHistory(24)
	h.Append(alice, llm.UserMessage("hello"))

	for i := 0; i < 2; i++ {
		h.Reset(alice, true)
		if msgs := h.Get(alice); len(msgs) != 0 {
			t.Fatalf("stock #%d: expected empty thread, got %d", i+1, len(msgs))
		}
	}

	h.Append(alice, llm.UserMessage("again"))
	msgs := h.Get(alice)
	if len(msgs) != 2 || msgs[0].Role != llm.RoleSystem || msgs[1].Text() != "again" {
		t.Errorf("append after stock should reseed: %+v", msgs)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	h := newTestHistory(24)
	h.Append(alice, llm.UserMessage("hello"))

	msgs := h.Get(alice)
	msgs[1] = llm.UserMessage("tampered")
	_ = append(msgs, llm.UserMessage("extra"))

	again := h.Get(alice)
	if len(again) != 2 || again[1].Text() != "hello" {
		t.Errorf("internal state corrupted via returned slice: %+v", again)
	}
}

func TestReplaceTrimsAndCopies(t *testing.T) {
	h := newTestHistory(3)
	transcript := []llm.Message{
		llm.SystemMessage("s"),
		llm.UserMessage("1"),
		llm.AssistantMessage("2"),
		llm.UserMessage("3"),
	}
	h.Replace(alice, transcript)
	transcript[0] = llm.UserMessage("mutated")

	msgs := h.Get(alice)
	if len(msgs) != 3 || msgs[0].Text() != "s" || msgs[1].Text() != "2" {
		t.Errorf("Replace result = %+v", msgs)
	}
}

func TestUsersAndClearAll(t *testing.T) {
	h := newTestHistory(24)
	h.Ensure(model.Key("!a", "@bob"))
	h.Ensure(model.Key("!a", "@alice"))
	h.Ensure(model.Key("!b", "@carol"))
	h.Ensure(model.Key("!ab", "@dave"))

	users := h.Users("!a")
	if len(users) != 2 || users[0] != "@alice" || users[1] != "@bob" {
		t.Errorf("Users(!a) = %v", users)
	}

	h.ClearAll()
	if users := h.Users("!a"); len(users) != 0 {
		t.Errorf("Users after ClearAll = %v", users)
	}
}

func TestLockSerializesSameThread(t *testing.T) {
	h := newTestHistory(24)
	bob := model.Key("!room:example.org", "@bob:example.org")

	unlock := h.Lock(alice)

	// A different thread is not blocked.
	done := make(chan struct{})
	go func() {
		h.Lock(bob)()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unrelated thread blocked")
	}

	// The same thread waits.
	acquired := make(chan struct{})
	go func() {
		h.Lock(alice)()
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatal("same thread acquired lock while held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-acquired
}

func TestConcurrentAppends(t *testing.T) {
	h := newTestHistory(1000)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Append(alice, llm.UserMessage(fmt.Sprint(i)))
		}(i)
	}
	wg.Wait()
	if got := len(h.Get(alice)); got != 51 {
		t.Errorf("expected 51 messages, got %d", got)
	}
}
