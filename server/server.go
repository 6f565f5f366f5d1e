package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"social_post_relay/blacklist"
	"social_post_relay/generator"
	"social_post_relay/publisher"
)

const maxBody = 1 << 20

// Generator is the part of generator.Agent the HTTP layer needs.
type Generator interface {
	GeneratePost(ctx context.Context, source string, isURL bool) generator.Result
	SummaryOf(ctx context.Context, content string) (generator.Summary, generator.Result)
	Model() string
}

type Publisher interface {
	Publish(ctx context.Context, params publisher.PublishParams) (publisher.Post, error)
}

type MetaImageFinder interface {
	MetaImageURL(ctx context.Context, pageURL string) string
}

type Deps struct {
	Generator  Generator
	Publisher  Publisher
	Blacklist  blacklist.Store
	MetaImages MetaImageFinder
	// BackendURL is echoed by /debug.
	BackendURL string
	Logger     *log.Logger
}

type Server struct {
	gen        Generator
	pub        Publisher
	blacklist  blacklist.Store
	metaImages MetaImageFinder
	backendURL string
	logger     *log.Logger
	now        func() time.Time
}

func New(d Deps) (*Server, error) {
	switch {
	case d.Generator == nil:
		return nil, errors.New("generator required")
	case d.Publisher == nil:
		return nil, errors.New("publisher required")
	case d.Blacklist == nil:
		return nil, errors.New("blacklist store required")
	}
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		gen:        d.Generator,
		pub:        d.Publisher,
		blacklist:  d.Blacklist,
		metaImages: d.MetaImages,
		backendURL: d.BackendURL,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Routes mounts every endpoint at the root and again under /api/ for the
// browser front end.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/generate", s.method(http.MethodPost, s.handleGenerate))
	mux.HandleFunc("/regenerate-title", s.method(http.MethodPost, s.handleRegenerateTitle))
	mux.HandleFunc("/regenerate-category", s.method(http.MethodPost, s.handleRegenerateCategory))
	mux.HandleFunc("/confirm-post", s.method(http.MethodPost, s.handleConfirmPost))
	mux.HandleFunc("/health", s.method(http.MethodGet, s.handleHealth))
	mux.HandleFunc("/test", s.method(http.MethodGet, s.handleTest))
	mux.HandleFunc("/debug", s.method(http.MethodGet, s.handleDebug))
	mux.HandleFunc("/blacklist", s.method(http.MethodGet, s.handleBlacklist))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", mux))
	root.Handle("/", mux)
	return s.logMiddleware(corsMiddleware(root))
}

func (s *Server) method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			w.Header().Set("Allow", m)
			respondErr(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
			return
		}
		h(w, r)
	}
}

// --- Handlers ---

type generateReq struct {
	Prompt string `json:"prompt"`
	URL    string `json:"url"`
}

type generateResp struct {
	Content      string `json:"content"`
	MetaImageURL string `json:"meta_image_url"`
	Title        string `json:"title"`
	Category     string `json:"category"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateReq
	if err := decodeJSON(r, maxBody, &req); err != nil {
		respondErr(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	ctx := r.Context()
	pageURL := strings.TrimSpace(req.URL)
	prompt := strings.TrimSpace(req.Prompt)
	if pageURL == "" && prompt == "" {
		respondErr(w, http.StatusBadRequest, errors.New("either prompt or url is required"))
		return
	}

	var res generator.Result
	metaImage := ""
	if pageURL != "" {
		if domain := blacklist.DomainOf(pageURL); domain != "" && s.blacklist.Contains(ctx, domain) {
			s.logger.Printf("[server] refused blacklisted domain=%s url=%s", domain, pageURL)
			respondJSON(w, http.StatusBadRequest, map[string]any{
				"error":              fmt.Sprintf("Domain %s is blacklisted because earlier requests to it failed", domain),
				"blacklisted_domain": domain,
				"error_type":         "blacklisted",
			})
			return
		}
		res = s.gen.GeneratePost(ctx, pageURL, true)
	} else {
		res = s.gen.GeneratePost(ctx, prompt, false)
	}
	if res.IsDefault() {
		s.logger.Printf("[server] generation defaulted: %v", res.Reason)
		respondErr(w, http.StatusInternalServerError, errors.New(res.Text))
		return
	}

	if pageURL != "" && s.metaImages != nil {
		metaImage = s.metaImages.MetaImageURL(ctx, pageURL)
	}
	summary, _ := s.gen.SummaryOf(ctx, res.Text)
	respondJSON(w, http.StatusOK, generateResp{
		Content:      res.Text,
		MetaImageURL: metaImage,
		Title:        s.titleOf(summary),
		Category:     summary.Category,
	})
}

type contentReq struct {
	Content string `json:"content"`
}

// summarizeContent is shared by the regenerate endpoints. ok is false when a
// response has already been written.
func (s *Server) summarizeContent(w http.ResponseWriter, r *http.Request, what string) (generator.Summary, bool) {
	var req contentReq
	if err := decodeJSON(r, maxBody, &req); err != nil {
		respondErr(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return generator.Summary{}, false
	}
	if strings.TrimSpace(req.Content) == "" {
		respondErr(w, http.StatusBadRequest, errors.New("content is required"))
		return generator.Summary{}, false
	}
	summary, res := s.gen.SummaryOf(r.Context(), req.Content)
	if res.IsDefault() {
		s.logger.Printf("[server] regenerate %s defaulted: %v", what, res.Reason)
		respondErr(w, http.StatusInternalServerError, fmt.Errorf("failed to regenerate %s", what))
		return generator.Summary{}, false
	}
	return summary, true
}

func (s *Server) handleRegenerateTitle(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.summarizeContent(w, r, "title")
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"title": s.titleOf(summary)})
}

func (s *Server) handleRegenerateCategory(w http.ResponseWriter, r *http.Request) {
	summary, ok := s.summarizeContent(w, r, "category")
	if !ok {
		return
	}
	if summary.Category == "" {
		respondErr(w, http.StatusInternalServerError, errors.New("failed to regenerate category"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"category": summary.Category})
}

type confirmReq struct {
	Content      string `json:"content"`
	MetaImageURL string `json:"meta_image_url"`
	Title        string `json:"title"`
	Category     string `json:"category"`
}

func (s *Server) handleConfirmPost(w http.ResponseWriter, r *http.Request) {
	var req confirmReq
	if err := decodeJSON(r, maxBody, &req); err != nil {
		respondErr(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondErr(w, http.StatusBadRequest, errors.New("no content provided"))
		return
	}
	ctx := r.Context()

	params := publisher.PublishParams{
		Title:        strings.TrimSpace(req.Title),
		Content:      req.Content,
		Category:     strings.TrimSpace(req.Category),
		MetaImageURL: strings.TrimSpace(req.MetaImageURL),
	}
	if params.Title == "" || params.Category == "" {
		// 缺字段时用摘要补全，已给出的字段保留。
		summary, _ := s.gen.SummaryOf(ctx, req.Content)
		if params.Title == "" {
			params.Title = s.titleOf(summary)
		}
		if params.Category == "" {
			params.Category = summary.Category
			params.CategoryDescription = summary.CategoryDescription
		}
	}

	post, err := s.pub.Publish(ctx, params)
	if err != nil {
		s.logger.Printf("[server] publish failed title=%q: %v", params.Title, err)
		respondErr(w, http.StatusInternalServerError, errors.New("failed to post to WordPress"))
		return
	}
	s.logger.Printf("[server] published id=%d link=%s", post.ID, post.Link)
	respondJSON(w, http.StatusOK, map[string]string{"wordpress_url": post.Link})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Server is running"})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"test": "success", "timestamp": s.now().Format(time.RFC3339)})
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":        "ok",
		"message":       "Debug endpoint working",
		"timestamp":     s.now().Format(time.RFC3339),
		"model_name":    s.gen.Model(),
		"openwebui_url": s.backendURL,
	})
}

func (s *Server) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domains := s.blacklist.Load(ctx).Sorted()
	resp := map[string]any{
		"blacklisted_domains": domains,
		"count":               len(domains),
		"last_updated":        nil,
	}
	if ts, ok := s.blacklist.LastUpdated(ctx); ok {
		resp["last_updated"] = ts.Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, resp)
}

// titleOf 摘要为空时回退到带时间戳的标题。
func (s *Server) titleOf(summary generator.Summary) string {
	if summary.Summary != "" {
		return summary.Summary
	}
	return generator.FallbackTitle(s.now())
}
