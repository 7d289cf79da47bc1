package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
)

// Role-specific defaults. The agent model needs strong reasoning for routing
// and synthesis; the critic model reviews proposals from a different vendor
// so the debate is not a model arguing with itself; the extractor model needs
// vision input for rendered PDF pages. All defaults are OpenAI-compatible
// endpoints.
const (
	defaultAgentModel   = "deepseek-reasoner"
	defaultAgentBaseURL = "https://api.deepseek.com/v1"

	defaultCriticModel   = "qwen3-max"
	defaultCriticBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

	defaultExtractorModel   = "qwen3-vl-plus"
	defaultExtractorBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

	defaultMaxTokens   = 8192
	defaultTemperature = float32(0.2)
)

// NewFromEnv constructs the chat model for the given role by reading
// role-prefixed environment variables. The prefix is the role name, so the
// agent and extractor models configure independently.
//
// Environment variables (PREFIX = AGENT, CRITIC, or EXTRACTOR):
//
//	PREFIX_PROVIDER     = openai | ollama | ark | gemini (default: openai)
//	PREFIX_MODEL_NAME   model name (defaults: deepseek-reasoner / qwen3-max / qwen3-vl-plus)
//	PREFIX_BASE_URL     API endpoint (defaults: DeepSeek / DashScope compatible-mode)
//	PREFIX_API_KEY      credential (required for openai, ark, gemini)
//	PREFIX_TEMPERATURE  default sampling temperature (default: 0.2)
//
//	Shared: MODEL_MAX_TOKENS (default: 8192)
func NewFromEnv(ctx context.Context, role Role) (model.BaseChatModel, error) {
	cfg := &Config{
		Backend:     Backend(getEnvOrDefault(string(role)+"_PROVIDER", string(BackendOpenAI))),
		Model:       os.Getenv(string(role) + "_MODEL_NAME"),
		BaseURL:     os.Getenv(string(role) + "_BASE_URL"),
		APIKey:      os.Getenv(string(role) + "_API_KEY"),
		MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", defaultMaxTokens),
		Temperature: getEnvFloat32(string(role)+"_TEMPERATURE", defaultTemperature),
	}

	// Role defaults apply only on the openai backend, where the base URL
	// selects the vendor. Other backends have their own natural defaults.
	if cfg.Backend == BackendOpenAI {
		switch role {
		case RoleAgent:
			if cfg.Model == "" {
				cfg.Model = defaultAgentModel
			}
			if cfg.BaseURL == "" {
				cfg.BaseURL = defaultAgentBaseURL
			}
		case RoleCritic:
			if cfg.Model == "" {
				cfg.Model = defaultCriticModel
			}
			if cfg.BaseURL == "" {
				cfg.BaseURL = defaultCriticBaseURL
			}
		case RoleExtractor:
			if cfg.Model == "" {
				cfg.Model = defaultExtractorModel
			}
			if cfg.BaseURL == "" {
				cfg.BaseURL = defaultExtractorBaseURL
			}
		}
	}

	return New(ctx, role, cfg)
}

// New constructs a chat model from an explicit Config, delegating to the
// appropriate backend constructor. Validation happens here so callers get a
// clear error at startup rather than on the first request.
func New(ctx context.Context, role Role, cfg *Config) (model.BaseChatModel, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("provider: %s_MODEL_NAME is required for backend %q", role, cfg.Backend)
	}
	switch cfg.Backend {
	case BackendOpenAI:
		return newOpenAI(ctx, role, cfg)
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendArk:
		return newArk(ctx, role, cfg)
	case BackendGemini:
		return newGemini(ctx, role, cfg)
	default:
		return nil, fmt.Errorf("provider: unknown backend %q — valid values: openai, ollama, ark, gemini", cfg.Backend)
	}
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

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
