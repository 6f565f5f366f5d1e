package generator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const reasoningEnd = "</think>"

// StripReasoning 去掉 </think> 之前的推理内容（仅第一次出现），并去首尾空白。
func StripReasoning(reply string) string {
	if _, after, ok := strings.Cut(reply, reasoningEnd); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(reply)
}

var (
	fencedJSON     = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	fenceOpen      = regexp.MustCompile("```json\\s*")
	fenceClose     = regexp.MustCompile("```\\s*$")
	lineComment    = regexp.MustCompile(`(?m)//.*$`)
	blockComment   = regexp.MustCompile(`(?s)/\*.*?\*/`)
	anyFenceMarker = regexp.MustCompile("```[a-zA-Z]*")
)

// RecoverJSON pulls the most plausible JSON value out of a noisy reply.
// Candidates are tried in order: a fenced block, the first balanced {...},
// the first balanced [...]. If none parses, code fences and // and /* */
// comments are stripped and the remainder is scanned again; failing that the
// stripped text itself is returned. The result is not guaranteed to parse.
func RecoverJSON(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil && json.Valid([]byte(m[1])) {
		return m[1]
	}
	if c, ok := balanced(text, '{', '}'); ok && json.Valid([]byte(c)) {
		return c
	}
	if c, ok := balanced(text, '[', ']'); ok && json.Valid([]byte(c)) {
		return c
	}

	cleaned := fenceOpen.ReplaceAllString(text, "")
	cleaned = fenceClose.ReplaceAllString(cleaned, "")
	cleaned = anyFenceMarker.ReplaceAllString(cleaned, "")
	cleaned = lineComment.ReplaceAllString(cleaned, "")
	cleaned = blockComment.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		if c, ok := balanced(cleaned, pair[0], pair[1]); ok && json.Valid([]byte(c)) {
			return c
		}
	}
	return cleaned
}

// balanced returns the substring from the first open to its matching close.
// Delimiters inside JSON string literals are ignored.
func balanced(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseSummary 解析摘要 JSON，兼容扁平对象与 {"result": {...}} 包装。
func ParseSummary(jsonText string) (Summary, error) {
	var wrapped struct {
		Result *Summary `json:"result"`
		Summary
	}
	if err := json.Unmarshal([]byte(jsonText), &wrapped); err != nil {
		return Summary{}, fmt.Errorf("parse summary: %w", err)
	}
	s := wrapped.Summary
	if wrapped.Result != nil {
		s = *wrapped.Result
	}
	s.Summary = strings.TrimSpace(s.Summary)
	s.Category = strings.TrimSpace(s.Category)
	s.CategoryDescription = strings.TrimSpace(s.CategoryDescription)
	if s.Summary == "" && s.Category == "" {
		return Summary{}, ErrNoJSON
	}
	return s, nil
}

// FallbackTitle 摘要不可用时的标题，本地时间精确到秒。
func FallbackTitle(now time.Time) string {
	return "Blog Post " + now.Format("2006-01-02 15:04:05")
}
