package generator

import (
	"context"
	"errors"
	"log"
	"strings"
)

// PageFetcher returns the visible text of a web page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Agent 负责生成帖子与摘要。Backend failures never escape: every method
// returns a usable Result and logs what went wrong.
type Agent struct {
	llm     LLMClient
	fetcher PageFetcher
	model   string
	logger  *log.Logger
}

func NewAgent(llm LLMClient, fetcher PageFetcher, model string, logger *log.Logger) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Agent{llm: llm, fetcher: fetcher, model: model, logger: logger}, nil
}

func (a *Agent) Model() string { return a.model }

// GeneratePost 生成帖子。With isURL set, source is fetched and the post is
// written about the page; otherwise source is the topic.
func (a *Agent) GeneratePost(ctx context.Context, source string, isURL bool) Result {
	content := source
	if isURL {
		if a.fetcher == nil {
			return defaulted(FetchFailedText, ErrFetchFailed)
		}
		text, err := a.fetcher.Fetch(ctx, source)
		if err != nil || strings.TrimSpace(text) == "" {
			a.logger.Printf("[generator] fetch failed url=%s: %v", source, err)
			return defaulted(FetchFailedText, errors.Join(ErrFetchFailed, err))
		}
		content = text
	}

	raw, err := a.llm.Complete(ctx, BuildPostPrompt(a.model, content, isURL))
	if err != nil {
		a.logger.Printf("[generator] post generation failed model=%s: %v", a.model, err)
		return defaulted(ApologyText, err)
	}
	post := StripReasoning(raw)
	if post == "" {
		a.logger.Printf("[generator] empty reply model=%s", a.model)
		return defaulted(ApologyText, ErrEmptyReply)
	}
	return generated(post)
}

// Summarize 生成摘要 JSON。The Text of a Generated result is the recovered
// candidate and may still fail ParseSummary; callers handle that.
func (a *Agent) Summarize(ctx context.Context, content string) Result {
	if strings.TrimSpace(content) == "" {
		return defaulted(DefaultSummaryJSON, ErrEmptyContent)
	}
	raw, err := a.llm.Complete(ctx, BuildSummaryPrompt(a.model, content))
	if err != nil {
		a.logger.Printf("[generator] summary failed model=%s: %v", a.model, err)
		return defaulted(DefaultSummaryJSON, err)
	}
	cleaned := StripReasoning(raw)
	if cleaned == "" {
		a.logger.Printf("[generator] empty summary reply model=%s", a.model)
		return defaulted(DefaultSummaryJSON, ErrEmptyReply)
	}
	candidate := RecoverJSON(cleaned)
	if candidate == "" {
		a.logger.Printf("[generator] no json in summary reply model=%s", a.model)
		return defaulted(DefaultSummaryJSON, ErrNoJSON)
	}
	return generated(candidate)
}

// SummaryOf runs Summarize and parses its text. When the text does not
// parse the Summary is zero and callers fall back field by field.
func (a *Agent) SummaryOf(ctx context.Context, content string) (Summary, Result) {
	res := a.Summarize(ctx, content)
	s, err := ParseSummary(res.Text)
	if err != nil {
		a.logger.Printf("[generator] summary not parseable: %v", err)
		return Summary{}, res
	}
	return s, res
}
