// Package model provides domain types shared across packages.
package model

// ThreadKey identifies one conversation thread: a participant within a
// room. Threads with different keys never share state.
type ThreadKey struct {
	Room string
	User string
}

// String returns the canonical string representation.
func (k ThreadKey) String() string {
	return k.Room + "/" + k.User
}

// Key creates a ThreadKey.
func Key(room, user string) ThreadKey {
	return ThreadKey{Room: room, User: user}
}

// ToolCall contains metrics about a tool invocation.
// Used for logging and reporting by the tool-calling loop.
type ToolCall struct {
	Name       string `json:"name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs uint64 `json:"duration_ms"`
	Success    bool   `json:"success"`
}
