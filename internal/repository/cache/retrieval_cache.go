// Package cache memoizes retrieval results per user so repeated questions skip
// the embedding and vector search round trips.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"docchat-be/pkg/chat"

	"github.com/google/uuid"
)

const keyPrefix = "retrieval"

// RetrievalCache stores ranked context lists. Implementations must return copies.
type RetrievalCache interface {
	Get(ctx context.Context, key string) ([]chat.ContextItem, bool)
	Set(ctx context.Context, userId uuid.UUID, key string, items []chat.ContextItem)
	// InvalidateUser drops every entry for the user, e.g. after a document is deleted.
	InvalidateUser(ctx context.Context, userId uuid.UUID)
}

// Key is stable for the same user, corpus version, limit and normalized query text.
// corpus changes whenever the user's documents or chunks change, so ingesting a
// document moves every later lookup onto fresh keys.
func Key(userId uuid.UUID, corpus string, query string, limit int) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return fmt.Sprintf("%s:%s:%s:%d:%s", keyPrefix, userId, corpus, limit, hex.EncodeToString(sum[:]))
}

// CorpusVersion fingerprints a user's document set from its counts.
func CorpusVersion(documents, chunks int64) string {
	return fmt.Sprintf("d%dc%d", documents, chunks)
}

func userPrefix(userId uuid.UUID) string {
	return fmt.Sprintf("%s:%s:", keyPrefix, userId)
}

// Noop disables caching.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]chat.ContextItem, bool) { return nil, false }

func (Noop) Set(context.Context, uuid.UUID, string, []chat.ContextItem) {}

func (Noop) InvalidateUser(context.Context, uuid.UUID) {}
