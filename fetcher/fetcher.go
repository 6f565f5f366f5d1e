// Package fetcher downloads web pages and turns them into plain text for the
// generation prompt. Fetches that fail in a way that suggests the site is
// refusing us put the site's domain on the blacklist.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"social_post_relay/blacklist"
)

const (
	defaultUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:136.0) Gecko/20100101 Firefox/136.0"

	// maxBodyBytes caps a single page download.
	maxBodyBytes int64 = 32 * 1024 * 1024

	metaImageTimeout = 10 * time.Second

	ModeText    = "text"
	ModeArticle = "article"
)

// ErrEmptyPage is returned when a page downloads fine but has no visible text.
var ErrEmptyPage = errors.New("page has no visible text")

// Error describes a failed fetch.
type Error struct {
	URL        string
	Domain     string
	StatusCode int
	// Blacklisted is set when the failure put Domain on the blacklist.
	Blacklisted bool
	Err         error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// blockingStatus lists the HTTP statuses that blacklist a domain.
var blockingStatus = map[int]bool{
	http.StatusForbidden:                  true,
	http.StatusTooManyRequests:            true,
	http.StatusUnavailableForLegalReasons: true,
	http.StatusBadGateway:                 true,
	http.StatusServiceUnavailable:         true,
	http.StatusGatewayTimeout:             true,
}

// Blacklists reports whether an HTTP status puts the domain on the blacklist.
func Blacklists(status int) bool { return blockingStatus[status] }

type Options struct {
	DownloadsDir string
	Mode         string
	BrowserTLS   bool
	// Client, when set, is used for every request instead of the built-in
	// plain and browser-fingerprint clients.
	Client *http.Client
	// AllowPrivate lets the built-in clients dial loopback and private
	// addresses. Off by default: URLs come from HTTP callers.
	AllowPrivate bool
	// MaxBodyBytes overrides the page size cap.
	MaxBodyBytes int64
	Logger       *log.Logger
}

type Fetcher struct {
	store        blacklist.Store
	plain        *http.Client
	browser      *http.Client
	override     *http.Client
	downloadsDir string
	mode         string
	maxBody      int64
	logger       *log.Logger
	now          func() time.Time
}

func New(store blacklist.Store, opts Options) *Fetcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	mode := opts.Mode
	if mode != ModeArticle {
		mode = ModeText
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = maxBodyBytes
	}
	f := &Fetcher{
		store:        store,
		plain:        newPlainClient(opts.AllowPrivate),
		override:     opts.Client,
		downloadsDir: opts.DownloadsDir,
		mode:         mode,
		maxBody:      maxBody,
		logger:       logger,
		now:          time.Now,
	}
	if opts.BrowserTLS {
		f.browser = newBrowserClient(0, opts.AllowPrivate)
	}
	return f
}

func (f *Fetcher) clientFor(u *url.URL) *http.Client {
	switch {
	case f.override != nil:
		return f.override
	case f.browser != nil && u.Scheme == "https":
		return f.browser
	default:
		return f.plain
	}
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("User-Agent", defaultUA)
}

// Fetch downloads rawURL once and returns its cleaned visible text.
// No retries. On failure the returned error is a *Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	domain := blacklist.DomainOf(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		f.logger.Printf("[fetcher] bad url=%q: %v", rawURL, err)
		return "", &Error{URL: rawURL, Domain: domain, Err: err}
	}
	setBrowserHeaders(req)

	resp, err := f.clientFor(req.URL).Do(req)
	if err != nil {
		return "", f.fail(ctx, rawURL, domain, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", f.fail(ctx, rawURL, domain, resp.StatusCode, fmt.Errorf("HTTP %d for %s", resp.StatusCode, rawURL))
	}

	raw, err := readLimited(resp.Body, f.maxBody)
	if errors.Is(err, ErrBodyTooLarge) {
		f.logger.Printf("[fetcher] url=%s: %v", rawURL, err)
		return "", &Error{URL: rawURL, Domain: domain, Err: err}
	}
	if err != nil {
		return "", f.fail(ctx, rawURL, domain, 0, fmt.Errorf("reading response: %w", err))
	}
	// 服务器已经回了 2xx，解码失败算我们的问题，不拉黑。
	body, err := decodeBody(raw, resp.Header.Get("Content-Encoding"), f.maxBody)
	if err != nil {
		f.logger.Printf("[fetcher] decode url=%s: %v", rawURL, err)
		return "", &Error{URL: rawURL, Domain: domain, Err: err}
	}

	text, err := f.extract(body, req.URL)
	if err != nil {
		f.logger.Printf("[fetcher] extract url=%s: %v", rawURL, err)
		return "", &Error{URL: rawURL, Domain: domain, Err: err}
	}
	if text == "" {
		f.logger.Printf("[fetcher] no visible text url=%s", rawURL)
		return "", &Error{URL: rawURL, Domain: domain, Err: ErrEmptyPage}
	}

	if path, err := f.saveAudit(rawURL, text); err != nil {
		f.logger.Printf("[fetcher] audit copy url=%s: %v", rawURL, err)
	} else if path != "" {
		f.logger.Printf("[fetcher] saved to %s", path)
	}
	return text, nil
}

// fail classifies a failed fetch. Transport errors and blocking statuses
// blacklist the domain, unless the caller's context was cancelled: that is
// our failure, not the site's.
func (f *Fetcher) fail(ctx context.Context, rawURL, domain string, status int, cause error) *Error {
	fe := &Error{URL: rawURL, Domain: domain, StatusCode: status, Err: cause}
	f.logger.Printf("[fetcher] error fetching url=%s status=%d: %v", rawURL, status, cause)

	block := status == 0 || Blacklists(status)
	if errors.Is(cause, ErrPrivateAddress) {
		block = false
	}
	if ctx.Err() != nil || domain == "" || !block {
		return fe
	}
	if err := f.store.Add(context.WithoutCancel(ctx), domain); err != nil {
		f.logger.Printf("[fetcher] blacklist domain=%s: %v", domain, err)
		return fe
	}
	fe.Blacklisted = true
	f.logger.Printf("[fetcher] blacklisted domain=%s", domain)
	return fe
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// AuditFilename builds "<first16>_<last16>_<unix>.html" from the URL with
// non-word characters removed. Two fetches of the same URL in the same
// second share a name; the later one overwrites.
func AuditFilename(rawURL string, ts time.Time) string {
	stripped := []rune(nonWord.ReplaceAllString(rawURL, ""))
	prefix := stripped
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	suffix := stripped
	if len(suffix) > 16 {
		suffix = suffix[len(suffix)-16:]
	}
	return fmt.Sprintf("%s_%s_%d.html", string(prefix), string(suffix), ts.Unix())
}

func (f *Fetcher) saveAudit(rawURL, text string) (string, error) {
	if f.downloadsDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(f.downloadsDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(f.downloadsDir, AuditFilename(rawURL, f.now()))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
