package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaLLM talks the native /api/chat wire format (Ollama, and Open WebUI's
// Ollama passthrough). Calls have no timeout of their own; ctx bounds them.
type OllamaLLM struct {
	Endpoint string
	Model    string
	APIKey   string
	client   *http.Client
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	NumCtx        int     `json:"num_ctx"`
	NumPredict    int     `json:"num_predict"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	TopK          int     `json:"top_k"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	Seed          int     `json:"seed"`
	Clear         bool    `json:"clear"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

func NewOllamaLLM(cfg LLMSettings) (*OllamaLLM, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("ollama endpoint is required")
	}
	return &OllamaLLM{
		Endpoint: cfg.BaseURL,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		client:   &http.Client{},
	}, nil
}

func (o *OllamaLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	model := prompt.Model
	if model == "" {
		model = o.Model
	}
	msgs := []ollamaMessage{
		{Role: "system", Content: prompt.System},
		{Role: "user", Content: prompt.User},
	}

	opts := prompt.Options
	payload := ollamaRequest{
		Model:    model,
		Messages: msgs,
		Stream:   false,
		Options: ollamaOptions{
			NumCtx:        opts.NumCtx,
			NumPredict:    opts.NumPredict,
			Temperature:   opts.Temperature,
			TopP:          opts.TopP,
			TopK:          opts.TopK,
			RepeatPenalty: opts.RepeatPenalty,
			Seed:          opts.Seed,
			Clear:         opts.Clear,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.APIKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama api status: %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var out ollamaResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("ollama: decode reply: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: %s", out.Error)
	}
	return out.Message.Content, nil
}
