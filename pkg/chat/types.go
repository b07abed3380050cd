// Package chat holds the conversation types shared by the server and the client session.
package chat

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r may appear in a conversation history.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ContextItem is a retrieved document chunk attached to an assistant reply.
type ContextItem struct {
	Filename   string  `json:"filename"`
	DocumentId string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	ChunkText  string  `json:"chunk_text"`
	Score      float64 `json:"score"` // similarity in [0,1]
}

// Message is a committed conversation entry. It is never mutated after commit.
type Message struct {
	Id        string        `json:"id"`
	Content   string        `json:"content"`
	Role      Role          `json:"role"`
	Timestamp time.Time     `json:"timestamp"`
	Context   []ContextItem `json:"context,omitempty"`
}

// Turn is a prior exchange supplied by the caller for prompt assembly.
type Turn struct {
	Role    Role   `json:"role" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// CloneContext returns a copy so callers can hand context lists around without sharing backing arrays.
func CloneContext(items []ContextItem) []ContextItem {
	if items == nil {
		return nil
	}
	out := make([]ContextItem, len(items))
	copy(out, items)
	return out
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	m.Context = CloneContext(m.Context)
	return m
}
