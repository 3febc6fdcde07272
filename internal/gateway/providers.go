// Package gateway wires the core packages (turn runtime, node registry,
// scheduler, run store) into a single managed process, the way the teacher's
// internal/gateway composes channel adapters and the provider registry.
package gateway

import (
	"fmt"
	"strings"

	"github.com/serialagent/gateway/internal/config"
	"github.com/serialagent/gateway/internal/turn"
	"github.com/serialagent/gateway/internal/turn/providers"
)

// buildProvider constructs an LLM provider client from its configured name
// and per-provider settings. name is matched case-insensitively against the
// families the teacher's provider registry recognizes; everything on an
// OpenAI-compatible wire format (Azure, Ollama, OpenRouter, and generic
// "openai-compatible" deployments) reuses providers.OpenAIProvider /
// providers.OllamaProvider / providers.OpenRouterProvider with a custom
// BaseURL rather than a bespoke client per vendor.
func buildProvider(name string, cfg config.LLMProviderConfig, bedrock config.BedrockConfig) (turn.LLMProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
		})
	case "openai":
		return providers.NewOpenAIProvider(cfg.APIKey), nil
	case "azure":
		return providers.NewAzureOpenAIProvider(providers.AzureOpenAIConfig{
			Endpoint:     cfg.BaseURL,
			APIKey:       cfg.APIKey,
			APIVersion:   cfg.APIVersion,
			DefaultModel: cfg.DefaultModel,
		})
	case "google", "gemini":
		return providers.NewGoogleProvider(providers.GoogleConfig{
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.DefaultModel,
		})
	case "bedrock":
		region := bedrock.Region
		if region == "" {
			region = cfg.BaseURL
		}
		return providers.NewBedrockProvider(providers.BedrockConfig{
			Region:       region,
			DefaultModel: cfg.DefaultModel,
		})
	case "ollama":
		return providers.NewOllamaProvider(providers.OllamaConfig{
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
		}), nil
	case "openrouter":
		return providers.NewOpenRouterProvider(providers.OpenRouterConfig{
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}

// buildProviders constructs every provider entry in cfg.Providers, keyed by
// provider name, skipping entries that fail to construct rather than
// aborting startup entirely (a single misconfigured fallback provider
// shouldn't keep the default provider from starting).
func buildProviders(cfg config.LLMConfig, onError func(name string, err error)) map[string]turn.LLMProvider {
	out := make(map[string]turn.LLMProvider, len(cfg.Providers))
	for name, providerCfg := range cfg.Providers {
		provider, err := buildProvider(name, providerCfg, cfg.Bedrock)
		if err != nil {
			if onError != nil {
				onError(name, err)
			}
			continue
		}
		out[name] = provider
	}
	return out
}
