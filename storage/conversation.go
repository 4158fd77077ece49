// Package storage provides conversation history and usage storage.
//
// Information Hiding:
// - Thread layout and locking hidden behind the HistoryStore interface
// - Retention policy applied inside the store, never by callers
// - Usage ledger schema encapsulated in the SQLite implementation

package storage

import (
	"github.com/richinex/parley/llm"
	"github.com/richinex/parley/model"
)

// HistoryStore owns per-thread message logs. Operations never fail:
// missing threads are created lazily.
type HistoryStore interface {
	// Ensure creates the thread seeded with the default system prompt
	// if it does not exist.
	Ensure(key model.ThreadKey)

	// InitPrompt replaces the whole thread with one system message built
	// from custom (when non-empty) or persona (default persona when empty).
	InitPrompt(key model.ThreadKey, persona, custom string)

	// Append adds a message at the tail and enforces retention.
	Append(key model.ThreadKey, msg llm.Message)

	// Get returns a copy of the thread's messages.
	Get(key model.ThreadKey) []llm.Message

	// Replace stores a copy of msgs as the thread and enforces retention.
	Replace(key model.ThreadKey, msgs []llm.Message)

	// Reset clears the thread. Unless stock, it is reseeded with the
	// default system prompt; a stock thread stays empty until the next
	// Append seeds it.
	Reset(key model.ThreadKey, stock bool)

	// ClearAll drops every thread.
	ClearAll()

	// Users lists the participants holding a thread in room.
	Users(room string) []string

	// Lock serializes whole turns on one thread and returns the unlock
	// function. Unrelated threads are not blocked.
	Lock(key model.ThreadKey) func()
}
