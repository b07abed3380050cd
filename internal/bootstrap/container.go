package bootstrap

import (
	"context"
	"log"

	"docchat-be/internal/config"
	"docchat-be/internal/controller"
	"docchat-be/internal/handler"
	"docchat-be/internal/metrics"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/cache"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/internal/service"
	"docchat-be/internal/websocket"
	"docchat-be/pkg/embedding"
	"docchat-be/pkg/embedding/jina"
	"docchat-be/pkg/events"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/llm/factory"
	pktNats "docchat-be/pkg/nats"
	"docchat-be/pkg/rag/search"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController     controller.IChatController
	DocumentController controller.IDocumentController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	WebSocketHub    *websocket.Hub

	ChatSocketHandler *handler.ChatSocketHandler
	Metrics           *metrics.ChatMetrics
	Logger            logger.ILogger

	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	var chatMetrics *metrics.ChatMetrics
	if cfg.App.MetricsEnabled {
		chatMetrics = metrics.NewChatMetrics()
	}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Providers
	embeddingProvider := newEmbeddingProvider(cfg)

	var llmProvider llm.LLMProvider
	provider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		llmBaseURL(cfg),
		cfg.Keys.HuggingFace,
	)
	if err != nil {
		sysLogger.Error("Bootstrap", "LLM provider unavailable, chat replies disabled", map[string]interface{}{"provider": cfg.Ai.LLMProvider, "error": err.Error()})
	} else {
		llmProvider = provider
		log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)
	}

	// 4. Infrastructure
	rdb := newRedisClient(cfg)
	retrievalCache := newRetrievalCache(cfg, rdb, sysLogger)

	c := &Container{Metrics: chatMetrics, Logger: sysLogger}

	// NATS is optional; without it events stay on this instance.
	var forwarder service.EventForwarder
	var natsSub *pktNats.Subscriber
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			forwarder = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
		natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
			natsSub = nil
		} else {
			c.closers = append(c.closers, natsSub.Close)
		}
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger("logs/chat_socket.log")
	wsHub := websocket.NewHub(rdb, wsLogger)

	// 5. Services
	retrieverConfig := search.DefaultConfig()
	retrieverConfig.OnCacheLookup = chatMetrics.CacheLookup
	retriever := search.NewRetriever(embeddingProvider, uowFactory, retrievalCache, retrieverConfig, sysLogger)

	publisherService := service.NewPublisherService(cfg.Chat.EventTopic, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Chat.EventTopic,
		retrievalCache,
		forwarder,
		sysLogger,
	)

	if natsSub != nil {
		// Ephemeral: every instance must see every deletion.
		err := natsSub.Subscribe(pktNats.SubjectPrefix+events.DocumentDeleted, "", consumerService.HandleRemote)
		if err != nil {
			log.Printf("[WARN] Failed to subscribe to remote document events: %v", err)
		}
	}

	chatService := service.NewChatService(
		retriever,
		llmProvider,
		publisherService,
		wsHub,
		chatMetrics,
		service.ChatSettingsFromConfig(cfg),
		sysLogger,
	)
	documentService := service.NewDocumentService(uowFactory, retriever, publisherService, sysLogger)

	// 6. Controllers
	c.ChatController = controller.NewChatController(chatService, wsHub, cfg.Chat.KeepAliveInterval, sysLogger)
	c.DocumentController = controller.NewDocumentController(documentService)
	c.ChatSocketHandler = handler.NewChatSocketHandler(wsHub, chatService, wsLogger)
	c.ConsumerService = consumerService
	c.WebSocketHub = wsHub
	c.closers = append(c.closers, func() { _ = pubSub.Close() })
	if rdb != nil {
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	return c
}

// Close releases broker and cache connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}

func newEmbeddingProvider(cfg *config.Config) embedding.EmbeddingProvider {
	switch cfg.Ai.EmbeddingProvider {
	case "ollama":
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaModel)
		return embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel)
	case "jina":
		log.Printf("[INFO] Using Embedding Provider: JINA AI")
		return jina.NewJinaProvider(cfg.Keys.Jina, "")
	default:
		log.Printf("[INFO] Using Embedding Provider: GEMINI")
		return embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
	}
}

func llmBaseURL(cfg *config.Config) string {
	if cfg.Ai.LLMBaseURL != "" {
		return cfg.Ai.LLMBaseURL
	}
	if cfg.Ai.LLMProvider == "ollama" {
		return cfg.Ai.OllamaBaseURL
	}
	return ""
}

// newRedisClient returns nil when REDIS_URL is empty.
func newRedisClient(cfg *config.Config) *redis.Client {
	if cfg.App.RedisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}
	return rdb
}

func newRetrievalCache(cfg *config.Config, rdb *redis.Client, sysLogger logger.ILogger) cache.RetrievalCache {
	switch cfg.Chat.CacheBackend {
	case "none":
		return cache.Noop{}
	case "redis":
		if rdb != nil {
			return cache.NewRedisCache(rdb, cfg.Chat.CacheTTL, sysLogger)
		}
		sysLogger.Warn("Bootstrap", "Redis cache requested without REDIS_URL, using memory", nil)
	}
	return cache.NewMemoryCache(cfg.Chat.CacheTTL)
}
