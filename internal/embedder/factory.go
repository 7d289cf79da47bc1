package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/paperflow/paperflow-go/internal/rag"
)

// Default embedding models and dimensions per backend. The vector size is a
// fixed contract with the Qdrant collection: changing it means recreating
// the collection.
const (
	defaultOpenAIBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	defaultOpenAIModel   = "text-embedding-v4"
	defaultOllamaModel   = "nomic-embed-text"

	// defaultOpenAIDimensions is the output size of text-embedding-v4.
	defaultOpenAIDimensions = 2048
	// defaultOllamaDimensions is the output size of nomic-embed-text.
	defaultOllamaDimensions = 768
)

// DefaultDimensions returns the default embedding vector size for the given
// backend. Callers that pre-configure the vector store (collection creation)
// should use this rather than hardcoding a value. EMBEDDING_DIMENSIONS
// always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	if backend == "ollama" {
		return defaultOllamaDimensions
	}
	return defaultOpenAIDimensions
}

// NewFromEnv constructs a rag.Embedder from environment variables.
//
//	EMBEDDING_PROVIDER    = openai | ollama (default: openai)
//	EMBEDDING_MODEL       overrides the default model for the backend
//	EMBEDDING_BASE_URL    overrides the API endpoint
//	EMBEDDING_API_KEY     Bearer token (openai backend)
//	EMBEDDING_DIMENSIONS  overrides the default vector size
//
// The openai backend defaults to DashScope's compatible-mode endpoint with
// text-embedding-v4 at 2048 dimensions.
func NewFromEnv() (rag.Embedder, error) {
	backend := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")

	switch backend {
	case "openai":
		apiKey := os.Getenv("EMBEDDING_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai backend requires EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_BASE_URL", defaultOpenAIBaseURL),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
		}), nil

	case "ollama":
		host := getEnvOrDefault("EMBEDDING_BASE_URL", "http://localhost:11434")
		return NewOllamaEmbedder(host, getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: openai, ollama", backend)
	}
}

// knownChatModelFragments contains name fragments identifying chat models
// that are not suitable for embedding. A match triggers an operator warning.
var knownChatModelFragments = []string{
	"gpt-4", "gpt-3.5", "o1", "o3",
	"llama", "mistral", "mixtral", "gemma",
	"claude", "deepseek", "qwen3-vl", "qwen-max",
}

// ValidateForRAG is a pre-flight check run before constructing the embedder
// and the vector store, so operators get a clear error at startup instead of
// a cryptic failure on the first embed call.
func ValidateForRAG(log *slog.Logger) error {
	backend := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
	if backend == "openai" && os.Getenv("EMBEDDING_API_KEY") == "" {
		return fmt.Errorf("embedder: EMBEDDING_API_KEY is not set — required for the openai backend")
	}

	model := os.Getenv("EMBEDDING_MODEL")
	if model != "" {
		lower := strings.ToLower(model)
		for _, fragment := range knownChatModelFragments {
			if strings.Contains(lower, fragment) {
				log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model — "+
					"this will likely produce poor or broken embeddings",
					slog.String("model", model),
					slog.String("hint", "use a dedicated embedding model e.g. text-embedding-v4, nomic-embed-text"),
				)
				break
			}
		}
	}
	return nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
