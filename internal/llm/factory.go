package llm

import (
	"fmt"

	"github.com/samsaffron/toolchat/internal/config"
)

// NewBackend creates the backend selected by cfg.Provider.
func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicBackend(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, cfg.Anthropic.Model, cfg.ThinkingBudget), nil
	case "openai":
		return NewOpenAIBackend(cfg.OpenAI.APIKey, cfg.OpenAI.Model), nil
	case "gemini":
		return NewGeminiBackend(cfg.Gemini.APIKey, cfg.Gemini.Model), nil
	case "ollama":
		return NewOpenAICompatBackend("ollama", cfg.Ollama.BaseURL, cfg.Ollama.APIKey, cfg.Ollama.Model), nil
	case "lmstudio":
		return NewOpenAICompatBackend("lmstudio", cfg.LMStudio.BaseURL, cfg.LMStudio.APIKey, cfg.LMStudio.Model), nil
	case "openai-compat":
		if cfg.OpenAICompat.BaseURL == "" {
			return nil, fmt.Errorf("openai-compat requires base_url")
		}
		return NewOpenAICompatBackend("openai-compat", cfg.OpenAICompat.BaseURL, cfg.OpenAICompat.APIKey, cfg.OpenAICompat.Model), nil
	case "debug":
		return NewDebugBackend(cfg.Debug.Model), nil
	case "":
		return nil, ErrNoBackend
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
