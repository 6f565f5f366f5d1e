package blacklist

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

type xmlDocument struct {
	XMLName     xml.Name `xml:"blacklist"`
	LastUpdated string   `xml:"last_updated,attr,omitempty"`
	Domains     []string `xml:"domain"`
}

// XMLStore keeps the set in a small XML file that is read in full on every
// call and rewritten in full on every insertion. There is no locking; two
// concurrent writers can lose an update (the last writer wins).
type XMLStore struct {
	path   string
	logger *log.Logger
	now    func() time.Time
}

func NewXMLStore(path string, logger *log.Logger) *XMLStore {
	if logger == nil {
		logger = log.Default()
	}
	return &XMLStore{path: path, logger: logger, now: time.Now}
}

// read returns the parsed file, or an empty document when the file is
// missing or unreadable.
func (s *XMLStore) read() xmlDocument {
	var doc xmlDocument
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Printf("[blacklist] read %s: %v", s.path, err)
		}
		return xmlDocument{}
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		s.logger.Printf("[blacklist] parse %s: %v; treating as empty", s.path, err)
		return xmlDocument{}
	}
	return doc
}

func (s *XMLStore) Load(_ context.Context) Set {
	set := Set{}
	for _, d := range s.read().Domains {
		set.Add(d)
	}
	return set
}

// LastUpdated reports the file's last_updated attribute.
func (s *XMLStore) LastUpdated(_ context.Context) (time.Time, bool) {
	v := s.read().LastUpdated
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (s *XMLStore) Add(ctx context.Context, domain string) error {
	domain = normalize(domain)
	if domain == "" {
		return nil
	}
	set := s.Load(ctx)
	set.Add(domain)
	if err := s.write(set); err != nil {
		return err
	}
	s.logger.Printf("[blacklist] added domain=%s total=%d", domain, len(set))
	return nil
}

func (s *XMLStore) Contains(ctx context.Context, domain string) bool {
	if normalize(domain) == "" {
		return false
	}
	return s.Load(ctx).Has(domain)
}

func (s *XMLStore) Close() error { return nil }

func (s *XMLStore) write(set Set) error {
	doc := xmlDocument{
		LastUpdated: s.now().Format(time.RFC3339),
		Domains:     set.Sorted(),
	}
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create blacklist dir: %w", err)
		}
	}
	out := append([]byte(xml.Header), body...)
	out = append(out, '\n')
	if err := os.WriteFile(s.path, out, 0o644); err != nil {
		return fmt.Errorf("write blacklist: %w", err)
	}
	return nil
}
