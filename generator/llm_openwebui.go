package generator

import (
	"context"
	"errors"

	goopenai "github.com/sashabaranov/go-openai"
)

// OpenWebUILLM calls an OpenAI-compatible chat completions endpoint, such as
// Open WebUI's /api/chat/completions, through go-openai.
type OpenWebUILLM struct {
	Model  string
	client *goopenai.Client
}

func NewOpenWebUILLM(cfg LLMSettings) (*OpenWebUILLM, error) {
	base := openAIBase(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("openwebui base url is required")
	}
	c := goopenai.DefaultConfig(cfg.APIKey)
	c.BaseURL = base
	return &OpenWebUILLM{Model: cfg.Model, client: goopenai.NewClientWithConfig(c)}, nil
}

func (o *OpenWebUILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	msgs := []goopenai.ChatCompletionMessage{
		{Role: goopenai.ChatMessageRoleSystem, Content: prompt.System},
		{Role: goopenai.ChatMessageRoleUser, Content: prompt.User},
	}

	model := prompt.Model
	if model == "" {
		model = o.Model
	}
	req := goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(prompt.Options.Temperature),
		TopP:        float32(prompt.Options.TopP),
		MaxTokens:   prompt.Options.NumPredict,
	}
	if prompt.Options.Seed >= 0 {
		seed := prompt.Options.Seed
		req.Seed = &seed
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openwebui: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
