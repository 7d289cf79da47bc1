// Package provider constructs the chat models the graph nodes call. Three
// model roles exist: the agent model (routing decisions, query generation,
// answer writing, debate proposals), the critic model (adversarial proposal
// review), and the extractor model (vision-capable PDF metadata extraction
// and document summarisation). Each role resolves its own backend and
// credentials, so models from different vendors can be mixed freely.
// Supported backends: OpenAI-compatible endpoints (OpenAI, DeepSeek,
// DashScope), Ollama, Ark (Volcano Engine), Google Gemini.
package provider

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// Backend enumerates the supported inference providers.
type Backend string

const (
	// BackendOpenAI selects any OpenAI-compatible API (OpenAI, DeepSeek,
	// DashScope compatible-mode) via the base URL.
	BackendOpenAI Backend = "openai"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendArk selects the Volcano Engine Ark runtime.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Role identifies which pipeline function a model serves. Each role has its
// own env var prefix so the two models can point at different vendors.
type Role string

const (
	// RoleAgent is the reasoning model: routing, query generation, writing.
	RoleAgent Role = "AGENT"
	// RoleCritic is the review model: stress-testing debate proposals.
	RoleCritic Role = "CRITIC"
	// RoleExtractor is the vision model: metadata extraction, summaries.
	RoleExtractor Role = "EXTRACTOR"
)

// Config holds the provider configuration for one model role.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Model is the model name (e.g. "deepseek-reasoner", "qwen3-vl-plus").
	Model string

	// BaseURL overrides the default API endpoint. Required for Ollama;
	// selects the vendor for OpenAI-compatible backends.
	BaseURL string

	// APIKey is the authentication credential for the selected provider.
	APIKey string

	// MaxTokens caps the tokens the model may generate per response.
	MaxTokens int

	// Temperature is the default sampling temperature. Nodes override it
	// per call (the router always decides at temperature 0).
	Temperature float32
}

// Factory constructs a chat model from a Config. Implementations must be
// safe to call from multiple goroutines.
type Factory interface {
	// New constructs and returns a ready-to-use chat model.
	New(ctx context.Context, cfg *Config) (model.BaseChatModel, error)
}
