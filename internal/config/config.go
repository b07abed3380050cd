package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Chat     ChatConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string // empty disables event export
	RedisURL           string
	OtelEnabled        bool
	MetricsEnabled     bool
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleGemini string
	HuggingFace  string
	Jina         string
	JwtSecret    string
}

type AIConfig struct {
	EmbeddingProvider string // "gemini", "ollama" or "jina"
	OllamaBaseURL     string
	OllamaModel       string // embedding model
	LLMProvider       string // "ollama" or "huggingface"
	LLMModel          string // e.g. "llama3", "qwen2.5"
	LLMBaseURL        string
	Temperature       float64
	MaxTokens         int
}

// Retrieval failure policies.
const (
	RetrievalPolicySilent = "silent"
	RetrievalPolicyWarn   = "warn"
)

type ChatConfig struct {
	DefaultContextLimit    int
	MaxContextLimit        int
	RetrievalTimeout       time.Duration
	RetrievalFailurePolicy string
	KeepAliveInterval      time.Duration
	MaxHistory             int
	CacheBackend           string // "memory", "redis" or "none"
	CacheTTL               time.Duration
	EventTopic             string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			MetricsEnabled:     getEnvAsBool("METRICS_ENABLED", true),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			HuggingFace:  getEnv("HUGGINGFACE_API_KEY", ""),
			Jina:         getEnv("JINA_API_KEY", ""),
			JwtSecret:    getEnv("JWT_SECRET", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "gemini"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", "llama3"),
			LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
			Temperature:       getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			MaxTokens:         getEnvAsInt("LLM_MAX_TOKENS", 1000),
		},
		Chat: loadChat(),
	}
}

func loadChat() ChatConfig {
	chat := ChatConfig{
		DefaultContextLimit:    getEnvAsInt("CHAT_DEFAULT_CONTEXT_LIMIT", 5),
		MaxContextLimit:        getEnvAsInt("CHAT_MAX_CONTEXT_LIMIT", 20),
		RetrievalTimeout:       getEnvAsDuration("RETRIEVAL_TIMEOUT", 5*time.Second),
		RetrievalFailurePolicy: strings.ToLower(getEnv("RETRIEVAL_FAILURE_POLICY", RetrievalPolicySilent)),
		KeepAliveInterval:      getEnvAsDuration("STREAM_KEEPALIVE_INTERVAL", 15*time.Second),
		MaxHistory:             getEnvAsInt("CHAT_MAX_HISTORY", 10),
		CacheBackend:           strings.ToLower(getEnv("RETRIEVAL_CACHE_BACKEND", "memory")),
		CacheTTL:               getEnvAsDuration("RETRIEVAL_CACHE_TTL", 5*time.Minute),
		EventTopic:             getEnv("CHAT_EVENT_TOPIC", "DOCCHAT_EVENTS"),
	}

	if chat.RetrievalFailurePolicy != RetrievalPolicyWarn {
		chat.RetrievalFailurePolicy = RetrievalPolicySilent
	}
	if chat.DefaultContextLimit <= 0 {
		chat.DefaultContextLimit = 5
	}
	if chat.MaxContextLimit < chat.DefaultContextLimit {
		chat.MaxContextLimit = chat.DefaultContextLimit
	}
	return chat
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("5s") or plain seconds ("5").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
