package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paperflow/paperflow-go/internal/checkpoint"
	"github.com/paperflow/paperflow-go/internal/embedder"
	"github.com/paperflow/paperflow-go/internal/graph"
	"github.com/paperflow/paperflow-go/internal/rag"
	"github.com/paperflow/paperflow-go/internal/search"
)

// defaultCollection is the Qdrant collection holding the paper library.
const defaultCollection = "paperflow-papers"

var (
	metricsOnce sync.Once
	metrics     *graph.Metrics
)

// engineMetrics returns the process-wide engine metrics, registered on the
// default Prometheus registry. Registration must happen at most once per
// process, so every command shares this instance.
func engineMetrics() *graph.Metrics {
	metricsOnce.Do(func() {
		metrics = graph.NewMetrics(prometheus.DefaultRegisterer)
	})
	return metrics
}

// buildVectorStore connects to Qdrant with the env-resolved settings, sizing
// the collection to the active embedding backend.
func buildVectorStore(ctx context.Context, log *slog.Logger) (*rag.QdrantStore, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", defaultCollection)
	backend := getEnvOrDefault("EMBEDDING_PROVIDER", "openai")
	vectorSize := uint64(embedder.DefaultDimensions(backend)) //nolint:gosec // dimensions are bounded

	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	log.Info("qdrant store ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("collection", collection),
	)
	return store, nil
}

// buildEmbedder validates the embedding configuration and constructs the
// env-resolved embedder.
func buildEmbedder(log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", "openai")),
	)
	return emb, nil
}

// buildSearcher constructs the Tavily client from TAVILY_* env vars.
func buildSearcher() (search.Searcher, error) {
	client, err := search.NewClient(&search.Config{
		APIKey:     os.Getenv("TAVILY_API_KEY"),
		MaxResults: getEnvInt("TAVILY_MAX_RESULTS", 0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise web search: %w", err)
	}
	return client, nil
}

// buildCheckpointStore opens the run checkpoint database. Returns (nil, nil)
// when checkpointing is disabled via PAPERFLOW_CHECKPOINT_DB=disabled.
func buildCheckpointStore(log *slog.Logger) (*checkpoint.SQLiteStore, error) {
	dbPath := os.Getenv("PAPERFLOW_CHECKPOINT_DB")
	if dbPath == "disabled" {
		log.Info("checkpoints: disabled via PAPERFLOW_CHECKPOINT_DB=disabled")
		return nil, nil
	}
	if dbPath == "" {
		var err error
		dbPath, err = checkpoint.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve checkpoint DB path: %w", err)
		}
	}
	store, err := checkpoint.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	log.Info("checkpoints: store opened", slog.String("path", dbPath))
	return store, nil
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
