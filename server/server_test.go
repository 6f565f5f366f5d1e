package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"social_post_relay/blacklist"
	"social_post_relay/generator"
	"social_post_relay/publisher"
)

type fakeGen struct {
	post       generator.Result
	summary    generator.Summary
	summaryRes generator.Result

	postCalls    []string
	summaryCalls int
}

func (f *fakeGen) GeneratePost(_ context.Context, source string, _ bool) generator.Result {
	f.postCalls = append(f.postCalls, source)
	return f.post
}

func (f *fakeGen) SummaryOf(_ context.Context, _ string) (generator.Summary, generator.Result) {
	f.summaryCalls++
	return f.summary, f.summaryRes
}

func (f *fakeGen) Model() string { return "test-model" }

type fakePub struct {
	err    error
	params []publisher.PublishParams
}

func (f *fakePub) Publish(_ context.Context, p publisher.PublishParams) (publisher.Post, error) {
	f.params = append(f.params, p)
	if f.err != nil {
		return publisher.Post{}, f.err
	}
	return publisher.Post{ID: 1, Link: "https://wp.example/?p=1"}, nil
}

type fakeMeta struct{ url string }

func (f fakeMeta) MetaImageURL(context.Context, string) string { return f.url }

type fixture struct {
	gen   *fakeGen
	pub   *fakePub
	store blacklist.Store
	h     http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	f := &fixture{
		gen: &fakeGen{
			post:       generator.Result{Text: "HELLO 🎉", Outcome: generator.Generated},
			summary:    generator.Summary{Summary: "A summary", Category: "Tech", CategoryDescription: "Tech things"},
			summaryRes: generator.Result{Outcome: generator.Generated},
		},
		pub:   &fakePub{},
		store: blacklist.NewXMLStore(filepath.Join(t.TempDir(), "bl.xml"), quiet),
	}
	srv, err := New(Deps{
		Generator:  f.gen,
		Publisher:  f.pub,
		Blacklist:  f.store,
		MetaImages: fakeMeta{url: "https://example.org/og.png"},
		BackendURL: "http://backend/api/chat",
		Logger:     quiet,
	})
	if err != nil {
		t.Fatal(err)
	}
	srv.now = func() time.Time { return time.Date(2025, 5, 6, 7, 8, 9, 0, time.Local) }
	f.h = srv.Routes()
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("response is not JSON: %q", rec.Body.String())
		}
	}
	return rec, out
}

func TestGenerate_BlacklistedDomainSkipsFetch(t *testing.T) {
	f := newFixture(t)
	if err := f.store.Add(context.Background(), "example.com"); err != nil {
		t.Fatal(err)
	}
	rec, out := f.do(t, http.MethodPost, "/generate", `{"url":"http://example.com/blacklisted-path"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["error_type"] != "blacklisted" || out["blacklisted_domain"] != "example.com" || out["error"] == "" {
		t.Errorf("body = %v", out)
	}
	if len(f.gen.postCalls) != 0 {
		t.Errorf("generation attempted for blacklisted url: %v", f.gen.postCalls)
	}
}

func TestGenerate_URLMode(t *testing.T) {
	f := newFixture(t)
	rec, out := f.do(t, http.MethodPost, "/generate", `{"url":"https://news.example.net/a","prompt":"ignored"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%v", rec.Code, out)
	}
	want := map[string]any{
		"content":        "HELLO 🎉",
		"meta_image_url": "https://example.org/og.png",
		"title":          "A summary",
		"category":       "Tech",
	}
	for k, v := range want {
		if out[k] != v {
			t.Errorf("%s = %v, want %v", k, out[k], v)
		}
	}
	if len(f.gen.postCalls) != 1 || f.gen.postCalls[0] != "https://news.example.net/a" {
		t.Errorf("url must win over prompt: %v", f.gen.postCalls)
	}
}

func TestGenerate_PromptModeHasNoImage(t *testing.T) {
	f := newFixture(t)
	f.gen.summary = generator.Summary{}
	rec, out := f.do(t, http.MethodPost, "/api/generate", `{"prompt":"gophers"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["meta_image_url"] != "" {
		t.Errorf("meta_image_url = %v", out["meta_image_url"])
	}
	if out["title"] != "Blog Post 2025-05-06 07:08:09" {
		t.Errorf("title = %v", out["title"])
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		post   generator.Result
		status int
	}{
		{"missing fields", `{}`, generator.Result{}, http.StatusBadRequest},
		{"blank fields", `{"prompt":"  ","url":""}`, generator.Result{}, http.StatusBadRequest},
		{"malformed json", `{"prompt":`, generator.Result{}, http.StatusBadRequest},
		{"defaulted generation", `{"prompt":"x"}`, generator.Result{Text: generator.ApologyText, Outcome: generator.Defaulted, Reason: generator.ErrEmptyReply}, http.StatusInternalServerError},
		{"fetch failed", `{"url":"http://down.example/"}`, generator.Result{Text: generator.FetchFailedText, Outcome: generator.Defaulted, Reason: generator.ErrFetchFailed}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.gen.post = tt.post
			rec, out := f.do(t, http.MethodPost, "/generate", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if msg, _ := out["error"].(string); msg == "" {
				t.Errorf("missing error message: %v", out)
			}
			if tt.status == http.StatusInternalServerError && out["error"] != tt.post.Text {
				t.Errorf("error = %v, want fallback sentence", out["error"])
			}
		})
	}
}

func TestConfirmPost_UsesGivenTitleAndCategory(t *testing.T) {
	f := newFixture(t)
	rec, out := f.do(t, http.MethodPost, "/confirm-post", `{"content":"hello","title":"T","category":"C"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%v", rec.Code, out)
	}
	if out["wordpress_url"] != "https://wp.example/?p=1" {
		t.Errorf("body = %v", out)
	}
	if f.gen.summaryCalls != 0 {
		t.Error("summary must not be generated when title and category are given")
	}
	p := f.pub.params[0]
	if p.Title != "T" || p.Category != "C" || p.Content != "hello" {
		t.Errorf("publish params = %+v", p)
	}
}

func TestConfirmPost_SummarizesWhenIncomplete(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodPost, "/confirm-post", `{"content":"hello","title":"Mine","meta_image_url":"https://img/x.png"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.gen.summaryCalls != 1 {
		t.Errorf("summary calls = %d", f.gen.summaryCalls)
	}
	p := f.pub.params[0]
	if p.Title != "Mine" || p.Category != "Tech" || p.CategoryDescription != "Tech things" || p.MetaImageURL != "https://img/x.png" {
		t.Errorf("publish params = %+v", p)
	}
}

func TestConfirmPost_UnparseableSummaryFallsBack(t *testing.T) {
	f := newFixture(t)
	f.gen.summary = generator.Summary{}
	if rec, _ := f.do(t, http.MethodPost, "/confirm-post", `{"content":"hello"}`); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	p := f.pub.params[0]
	if p.Title != "Blog Post 2025-05-06 07:08:09" || p.Category != "" {
		t.Errorf("publish params = %+v", p)
	}
}

func TestConfirmPost_Errors(t *testing.T) {
	f := newFixture(t)
	if rec, _ := f.do(t, http.MethodPost, "/confirm-post", `{"content":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing content: status = %d", rec.Code)
	}
	f.pub.err = errors.New("wordpress down")
	rec, out := f.do(t, http.MethodPost, "/confirm-post", `{"content":"x","title":"T","category":"C"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("publish failure: status = %d", rec.Code)
	}
	if strings.Contains(out["error"].(string), "wordpress down") {
		t.Error("internal error leaked to client")
	}
}

func TestRegenerate(t *testing.T) {
	f := newFixture(t)
	rec, out := f.do(t, http.MethodPost, "/regenerate-title", `{"content":"hello"}`)
	if rec.Code != http.StatusOK || out["title"] != "A summary" {
		t.Errorf("title: %d %v", rec.Code, out)
	}
	rec, out = f.do(t, http.MethodPost, "/regenerate-category", `{"content":"hello"}`)
	if rec.Code != http.StatusOK || out["category"] != "Tech" {
		t.Errorf("category: %d %v", rec.Code, out)
	}
	if rec, _ := f.do(t, http.MethodPost, "/regenerate-title", `{"content":" "}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing content: status = %d", rec.Code)
	}

	f.gen.summaryRes = generator.Result{Text: generator.DefaultSummaryJSON, Outcome: generator.Defaulted, Reason: errors.New("backend down")}
	for _, path := range []string{"/regenerate-title", "/regenerate-category"} {
		if rec, _ := f.do(t, http.MethodPost, path, `{"content":"hello"}`); rec.Code != http.StatusInternalServerError {
			t.Errorf("%s with failed backend: status = %d", path, rec.Code)
		}
	}
}

func TestDiagnostics(t *testing.T) {
	f := newFixture(t)
	for _, d := range []string{"b.org", "a.com"} {
		f.store.Add(context.Background(), d)
	}

	rec, out := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || out["status"] != "ok" || out["message"] == "" {
		t.Errorf("health: %d %v", rec.Code, out)
	}
	_, out = f.do(t, http.MethodGet, "/test", "")
	if out["test"] != "success" || out["timestamp"] == "" {
		t.Errorf("test: %v", out)
	}
	_, out = f.do(t, http.MethodGet, "/debug", "")
	if out["model_name"] != "test-model" || out["openwebui_url"] != "http://backend/api/chat" || out["status"] != "ok" {
		t.Errorf("debug: %v", out)
	}
	_, out = f.do(t, http.MethodGet, "/blacklist", "")
	domains, _ := out["blacklisted_domains"].([]any)
	if out["count"] != 2.0 || len(domains) != 2 || domains[0] != "a.com" {
		t.Errorf("blacklist: %v", out)
	}
	if ts, _ := out["last_updated"].(string); ts == "" {
		t.Errorf("blacklist last_updated missing: %v", out)
	} else if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("last_updated %q: %v", ts, err)
	}
}

func TestBlacklistEndpointNeverWritten(t *testing.T) {
	f := newFixture(t)
	_, out := f.do(t, http.MethodGet, "/blacklist", "")
	if out["count"] != 0.0 {
		t.Errorf("count = %v", out["count"])
	}
	if v, ok := out["last_updated"]; !ok || v != nil {
		t.Errorf("last_updated = %v, want null", v)
	}
}

func TestMiddleware(t *testing.T) {
	f := newFixture(t)
	rec, out := f.do(t, http.MethodGet, "/generate", "")
	if rec.Code != http.StatusMethodNotAllowed || out["error"] == nil {
		t.Errorf("wrong method: %d %v", rec.Code, out)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}

	req := httptest.NewRequest(http.MethodOptions, "/generate", nil)
	pre := httptest.NewRecorder()
	f.h.ServeHTTP(pre, req)
	if pre.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", pre.Code)
	}
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)
	const valid = "0b6f2a4e-5b0c-4c1e-9d3a-7f2e8c1a9b00"
	tests := []struct {
		name  string
		given string
		keep  bool
	}{
		{"valid uuid kept", valid, true},
		{"empty replaced", "", false},
		{"log injection replaced", "abc\n[server] id=forged status=200", false},
		{"free text replaced", "my-request", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			if tt.given != "" {
				req.Header.Set("X-Request-ID", tt.given)
			}
			rec := httptest.NewRecorder()
			f.h.ServeHTTP(rec, req)
			got := rec.Header().Get("X-Request-ID")
			if tt.keep {
				if got != tt.given {
					t.Errorf("request id = %q, want %q", got, tt.given)
				}
				return
			}
			if got == tt.given {
				t.Errorf("request id %q echoed back", got)
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("generated id %q is not a uuid: %v", got, err)
			}
		})
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatal("expected error without dependencies")
	}
}
