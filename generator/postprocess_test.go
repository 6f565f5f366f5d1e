package generator

import (
	"testing"
	"time"
)

func TestRecoverJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced untagged", "here:\n```\n{\"a\":1}\n```\nbye", `{"a":1}`},
		{"noise around object", `noise {"a":1} trailing`, `{"a":1}`},
		{"nested object", `{"a": {"b": 1}} extra`, `{"a": {"b": 1}}`},
		{"braces inside strings", `x {"a":"}{"} y`, `{"a":"}{"}`},
		{"array", `list: [1, [2, 3]] done`, `[1, [2, 3]]`},
		{"no json", "  just words // trailing note\n/* block */ ", "just words"},
		{"comment inside object", "{\"a\": 1, // why\n\"b\": 2}", "{\"a\": 1, \n\"b\": 2}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecoverJSON(tt.in); got != tt.want {
				t.Errorf("RecoverJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<think>hmm</think>\n\nHello 🎉", "Hello 🎉"},
		{"no marker  ", "no marker"},
		{"a</think>b</think>c", "b</think>c"},
		{"<think>only thinking</think>   ", ""},
	}
	for _, tt := range tests {
		if got := StripReasoning(tt.in); got != tt.want {
			t.Errorf("StripReasoning(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Summary
		wantErr bool
	}{
		{
			name: "flat",
			in:   `{"summary":"S","category":"Tech","category_description":"D"}`,
			want: Summary{Summary: "S", Category: "Tech", CategoryDescription: "D"},
		},
		{
			name: "wrapped",
			in:   `{"result":{"summary":" S ","category":"Tech"}}`,
			want: Summary{Summary: "S", Category: "Tech"},
		},
		{name: "default", in: DefaultSummaryJSON, want: Summary{Summary: "Blog Post", Category: "General", CategoryDescription: "General blog posts"}},
		{name: "empty object", in: `{}`, wantErr: true},
		{name: "not json", in: `summary: nope`, wantErr: true},
		{name: "array", in: `[1,2]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSummary(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFallbackTitle(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)
	if got, want := FallbackTitle(now), "Blog Post 2025-01-02 03:04:05"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOpenAIBase(t *testing.T) {
	tests := map[string]string{
		"http://localhost:3000/api/chat/completions": "http://localhost:3000/api",
		"http://localhost:11434/api/chat":            "http://localhost:11434/api",
		"https://api.openai.com/v1/":                 "https://api.openai.com/v1",
		"":                                           "",
	}
	for in, want := range tests {
		if got := openAIBase(in); got != want {
			t.Errorf("openAIBase(%q) = %q, want %q", in, got, want)
		}
	}
}
