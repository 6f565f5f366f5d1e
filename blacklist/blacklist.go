// Package blacklist keeps the set of domains that must not be fetched
// because an earlier fetch failed in a way that suggests the site blocks us.
package blacklist

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Store is the sole authority on whether a domain may be fetched.
// Implementations read their backing storage on every call.
type Store interface {
	// Load returns the current set. It never fails: unreadable storage
	// yields an empty set.
	Load(ctx context.Context) Set
	Add(ctx context.Context, domain string) error
	Contains(ctx context.Context, domain string) bool
	// LastUpdated is the time of the most recent write; false when the
	// blacklist has never been written.
	LastUpdated(ctx context.Context) (time.Time, bool)
	Close() error
}

// Set is an unordered set of lower-cased domain names.
type Set map[string]struct{}

func NewSet(domains ...string) Set {
	s := make(Set, len(domains))
	for _, d := range domains {
		s.Add(d)
	}
	return s
}

// Add inserts domain and reports whether it was new. Empty domains are ignored.
func (s Set) Add(domain string) bool {
	d := normalize(domain)
	if d == "" {
		return false
	}
	if _, ok := s[d]; ok {
		return false
	}
	s[d] = struct{}{}
	return true
}

func (s Set) Has(domain string) bool {
	d := normalize(domain)
	if d == "" {
		return false
	}
	_, ok := s[d]
	return ok
}

// Sorted returns the members in lexical order, the order used on disk.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// DomainOf extracts the lower-cased host (without port) from rawURL.
// It returns "" when the URL has no parseable domain; such URLs are never
// blacklisted.
func DomainOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return normalize(u.Hostname())
}

// Normalize accepts either a bare domain or a URL and returns the domain
// in the form stored by the blacklist.
func Normalize(input string) string {
	input = strings.TrimSpace(input)
	if strings.Contains(input, "://") {
		return DomainOf(input)
	}
	if i := strings.IndexAny(input, "/?#"); i >= 0 {
		input = input[:i]
	}
	return DomainOf("http://" + input)
}

func normalize(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

// Open returns the store for backend ("xml" or "sqlite") rooted at path.
func Open(backend, path string, logger *log.Logger) (Store, error) {
	switch strings.ToLower(backend) {
	case "", "xml":
		return NewXMLStore(path, logger), nil
	case "sqlite":
		return OpenSQLite(path, logger)
	default:
		return nil, fmt.Errorf("blacklist backend %q not supported", backend)
	}
}
