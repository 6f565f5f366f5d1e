package generator

import (
	"context"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	if prompt.System == summarySystem {
		return `{"summary":"A quick look at today's topic","category":"General","category_description":"General blog posts"}`, nil
	}
	// 取用户输入首行做话题。
	topic := strings.TrimSpace(strings.SplitN(prompt.User, "\n", 2)[0])
	var sb strings.Builder
	sb.WriteString("🚀 BIG NEWS, friends! 🎉\n\n")
	sb.WriteString("Here is what got me EXCITED today: ")
	sb.WriteString(topic)
	sb.WriteString(" ✨\n\n")
	sb.WriteString("Go check it out and tell me what you THINK! 💬🔥👀")
	return sb.String(), nil
}
