// In-memory thread storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Copy-on-read/write so callers never alias internal slices
// - Per-thread turn locks kept apart from the map lock
// - Data is lost when the process terminates

package storage

import (
	"sync"

	"github.com/richinex/parley/internal/dsa"
	"github.com/richinex/parley/llm"
	"github.com/richinex/parley/model"
)

// DefaultMaxItems is the default per-thread retention limit.
const DefaultMaxItems = 24

// History implements HistoryStore using an in-memory map.
type History struct {
	mu       sync.Mutex
	threads  map[model.ThreadKey][]llm.Message
	rooms    *dsa.Trie[string] // room + "\x00" + user -> user
	turns    map[model.ThreadKey]*sync.Mutex
	prompts  *PromptBuilder
	maxItems int
}

// NewHistory creates an empty store. maxItems <= 0 selects
// DefaultMaxItems.
func NewHistory(prompts *PromptBuilder, maxItems int) *History {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if prompts == nil {
		prompts = NewPromptBuilder("", "", "", "")
	}
	return &History{
		threads:  make(map[model.ThreadKey][]llm.Message),
		rooms:    dsa.NewTrie[string](),
		turns:    make(map[model.ThreadKey]*sync.Mutex),
		prompts:  prompts,
		maxItems: maxItems,
	}
}

// Prompts returns the prompt builder.
func (h *History) Prompts() *PromptBuilder {
	return h.prompts
}

// MaxItems returns the retention limit.
func (h *History) MaxItems() int {
	return h.maxItems
}

// Ensure creates the thread seeded with the default system prompt.
func (h *History) Ensure(key model.ThreadKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensureLocked(key)
}

func (h *History) ensureLocked(key model.ThreadKey) {
	if _, ok := h.threads[key]; !ok {
		h.setLocked(key, []llm.Message{llm.SystemMessage(h.prompts.Default())})
	}
}

func (h *History) setLocked(key model.ThreadKey, msgs []llm.Message) {
	if _, ok := h.threads[key]; !ok {
		h.rooms.Insert(roomKey(key.Room)+key.User, key.User)
	}
	h.threads[key] = msgs
}

func roomKey(room string) string {
	return room + "\x00"
}

// InitPrompt replaces the thread with a single system message.
func (h *History) InitPrompt(key model.ThreadKey, persona, custom string) {
	prompt := custom
	if prompt == "" {
		prompt = h.prompts.Build(persona)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.setLocked(key, []llm.Message{llm.SystemMessage(prompt)})
}

// Append adds msg at the tail and trims. A thread left empty by a stock
// reset is seeded first.
func (h *History) Append(key model.ThreadKey, msg llm.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs, ok := h.threads[key]
	if !ok || len(msgs) == 0 {
		msgs = []llm.Message{llm.SystemMessage(h.prompts.Default())}
	}
	msgs = append(msgs, msg.Clone())
	h.setLocked(key, Trim(msgs, h.maxItems))
}

// Get returns a copy of the thread, creating it when absent. A stock
// thread is returned empty.
func (h *History) Get(key model.ThreadKey) []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ensureLocked(key)
	out := llm.CloneMessages(h.threads[key])
	if out == nil {
		out = []llm.Message{}
	}
	return out
}

// Replace stores a copy of msgs and trims.
func (h *History) Replace(key model.ThreadKey, msgs []llm.Message) {
	copied := llm.CloneMessages(msgs)
	if copied == nil {
		copied = []llm.Message{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.setLocked(key, Trim(copied, h.maxItems))
}

// Reset clears the thread; non-stock resets reseed the default prompt.
func (h *History) Reset(key model.ThreadKey, stock bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if stock {
		h.setLocked(key, []llm.Message{})
		return
	}
	h.setLocked(key, []llm.Message{llm.SystemMessage(h.prompts.Default())})
}

// ClearAll drops every thread. Turn locks survive so in-flight turns
// keep their serialization.
func (h *History) ClearAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.threads = make(map[model.ThreadKey][]llm.Message)
	h.rooms.Clear()
}

// Users lists the participants holding a thread in room, sorted.
func (h *History) Users(room string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.rooms.WithPrefix(roomKey(room))
}

// Lock acquires the turn lock for key.
func (h *History) Lock(key model.ThreadKey) func() {
	h.mu.Lock()
	turn, ok := h.turns[key]
	if !ok {
		turn = &sync.Mutex{}
		h.turns[key] = turn
	}
	h.mu.Unlock()

	turn.Lock()
	return turn.Unlock
}

// Trim enforces retention in place and returns the trimmed slice: while
// longer than max, drop the message after a leading system prompt, or
// the head when there is none. A lone system prompt is never dropped.
func Trim(msgs []llm.Message, max int) []llm.Message {
	for len(msgs) > max {
		if msgs[0].Role == llm.RoleSystem {
			if len(msgs) == 1 {
				break
			}
			msgs = append(msgs[:1], msgs[2:]...)
		} else {
			msgs = msgs[1:]
		}
	}
	return msgs
}

// Verify History implements HistoryStore
var _ HistoryStore = (*History)(nil)
