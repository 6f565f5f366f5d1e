package generator

import (
	"context"
	"fmt"
	"strings"
)

// LLMClient 抽象大模型客户端，便于替换/Mock。
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMSettings 提供给具体实现的基础配置。
// BaseURL is the full chat endpoint for ollama and the API base for the
// OpenAI-compatible providers.
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewLLM picks the client for cfg.Provider.
func NewLLM(cfg LLMSettings) (LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "ollama":
		return NewOllamaLLM(cfg)
	case "openai":
		return NewOpenAILLMFromConfig(&cfg)
	case "openwebui":
		return NewOpenWebUILLM(cfg)
	case "mock":
		return MockLLM{}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// openAIBase turns a chat endpoint such as http://host/api/chat/completions
// into the base URL the OpenAI SDKs expect.
func openAIBase(endpoint string) string {
	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	base = strings.TrimSuffix(base, "/chat/completions")
	base = strings.TrimSuffix(base, "/chat")
	return base
}
