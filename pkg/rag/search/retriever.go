// Package search is the retrieval gateway: it embeds a query and returns the
// caller's most similar document chunks.
package search

import (
	"context"
	"fmt"
	"sort"

	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/cache"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/chat"
	"docchat-be/pkg/embedding"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("docchat-be/retrieval")

// Config encapsulates search parameters
type Config struct {
	// MinScore drops chunks whose cosine similarity is below it.
	MinScore float64
	// OnCacheLookup, when set, observes every cache probe.
	OnCacheLookup func(hit bool)
}

func DefaultConfig() Config {
	return Config{MinScore: 0.0}
}

type Retriever struct {
	embeddingProvider embedding.EmbeddingProvider
	uowFactory        unitofwork.RepositoryFactory
	cache             cache.RetrievalCache
	config            Config
	logger            logger.ILogger
}

func NewRetriever(
	embeddingProvider embedding.EmbeddingProvider,
	uowFactory unitofwork.RepositoryFactory,
	retrievalCache cache.RetrievalCache,
	config Config,
	log logger.ILogger,
) *Retriever {
	if retrievalCache == nil {
		retrievalCache = cache.Noop{}
	}
	return &Retriever{
		embeddingProvider: embeddingProvider,
		uowFactory:        uowFactory,
		cache:             retrievalCache,
		config:            config,
		logger:            log,
	}
}

// Search returns at most limit chunks owned by userId, ordered by descending score.
// It honours ctx cancellation and deadline; callers bound it with a timeout.
func (r *Retriever) Search(ctx context.Context, userId uuid.UUID, query string, limit int) ([]chat.ContextItem, error) {
	ctx, span := tracer.Start(ctx, "retrieval.search")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieval.limit", limit))

	uow := r.uowFactory.NewUnitOfWork(ctx)
	key, cacheable := r.cacheKey(ctx, uow, userId, query, limit)
	if cacheable {
		items, ok := r.cache.Get(ctx, key)
		if r.config.OnCacheLookup != nil {
			r.config.OnCacheLookup(ok)
		}
		if ok {
			span.SetAttributes(attribute.Bool("retrieval.cache_hit", true))
			return items, nil
		}
	}

	embeddingRes, err := r.embeddingProvider.Generate(ctx, query, embedding.TaskRetrievalQuery)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	scored, err := uow.DocumentChunkRepository().SearchSimilarWithScore(
		ctx,
		embeddingRes.Embedding.Values,
		limit,
		userId,
		r.config.MinScore,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector search failed")
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	items := make([]chat.ContextItem, 0, len(scored))
	for _, s := range scored {
		items = append(items, chat.ContextItem{
			Filename:   s.Filename,
			DocumentId: s.Chunk.DocumentId.String(),
			ChunkIndex: s.Chunk.ChunkIndex,
			ChunkText:  s.Chunk.ChunkText,
			Score:      clampScore(s.Similarity),
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if len(items) > limit {
		items = items[:limit]
	}

	r.logger.Debug("RETRIEVAL", "Vector search complete", map[string]interface{}{
		"user_id": userId.String(),
		"limit":   limit,
		"results": len(items),
	})
	span.SetAttributes(attribute.Int("retrieval.results", len(items)))

	// An empty result usually means ingestion has not finished yet.
	if cacheable && len(items) > 0 {
		r.cache.Set(ctx, userId, key, items)
	}
	return chat.CloneContext(items), nil
}

// cacheKey ties the key to the user's current corpus. Lookups are skipped when
// caching is off or the corpus cannot be read.
func (r *Retriever) cacheKey(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID, query string, limit int) (string, bool) {
	if _, off := r.cache.(cache.Noop); off {
		return "", false
	}
	stats, err := uow.DocumentRepository().Stats(ctx, userId)
	if err != nil {
		r.logger.Warn("RETRIEVAL", "Corpus stats unavailable, bypassing cache", map[string]interface{}{
			"user_id": userId.String(),
			"error":   err.Error(),
		})
		return "", false
	}
	return cache.Key(userId, cache.CorpusVersion(stats.TotalDocuments, stats.TotalChunks), query, limit), true
}

// clampScore keeps floating point noise from pgvector inside [0,1].
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
