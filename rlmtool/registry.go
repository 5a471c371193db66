package rlmtool

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dshills/rlm-engine/model"
	"github.com/dshills/rlm-engine/model/anthropic"
	"github.com/dshills/rlm-engine/model/google"
	"github.com/dshills/rlm-engine/model/openai"
)

// Provider-qualified model id prefixes, e.g. "anthropic:claude-opus-4-6".
// An empty id resolves to the registry's default model; an id without a
// prefix, or with an unrecognized provider, is an error.
const (
	providerAnthropic = "anthropic"
	providerOpenAI    = "openai"
	providerGoogle    = "google"
)

// EnvRegistry resolves model ids to ChatModel instances, reading API keys
// from provider environment variables (spec.md §4.10 "/llm_query"
// "obtains an API key from the external registry" — here the registry is
// the process environment rather than a separate credential service,
// which is in scope: no credential-management component appears anywhere
// in spec.md). Constructed clients are cached so repeated sub-calls to
// the same model id reuse one ChatModel.
type EnvRegistry struct {
	defaultModel model.ChatModel

	mu    sync.Mutex
	cache map[string]model.ChatModel
}

// NewEnvRegistry builds a registry whose Resolve("") returns defaultModel.
func NewEnvRegistry(defaultModel model.ChatModel) *EnvRegistry {
	return &EnvRegistry{defaultModel: defaultModel, cache: make(map[string]model.ChatModel)}
}

// Resolve implements subcall.ModelRegistry.
func (r *EnvRegistry) Resolve(modelID string) (model.ChatModel, error) {
	if modelID == "" {
		if r.defaultModel == nil {
			return nil, fmt.Errorf("rlmtool: no default model configured")
		}
		return r.defaultModel, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.cache[modelID]; ok {
		return m, nil
	}

	provider, name, ok := strings.Cut(modelID, ":")
	if !ok {
		return nil, fmt.Errorf("rlmtool: model id %q missing provider prefix (e.g. \"anthropic:%s\")", modelID, modelID)
	}

	m, err := buildModel(provider, name)
	if err != nil {
		return nil, err
	}
	r.cache[modelID] = m
	return m, nil
}

func buildModel(provider, name string) (model.ChatModel, error) {
	switch provider {
	case providerAnthropic:
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("rlmtool: ANTHROPIC_API_KEY not set")
		}
		return anthropic.NewChatModel(key, name), nil
	case providerOpenAI:
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("rlmtool: OPENAI_API_KEY not set")
		}
		return openai.NewChatModel(key, name), nil
	case providerGoogle:
		key := os.Getenv("GOOGLE_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("rlmtool: GOOGLE_API_KEY not set")
		}
		return google.NewChatModel(key, name), nil
	default:
		return nil, fmt.Errorf("rlmtool: unknown model provider %q", provider)
	}
}
