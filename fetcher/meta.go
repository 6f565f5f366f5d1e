package fetcher

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// metaImageKeys is the lookup order for a page's preview image.
var metaImageKeys = []struct{ attr, value string }{
	{"property", "og:image"},
	{"name", "twitter:image"},
	{"name", "image"},
}

// MetaImageURL returns the absolute preview-image URL declared by the page,
// or "" when the page cannot be fetched or declares none. It never touches
// the blacklist.
func (f *Fetcher) MetaImageURL(ctx context.Context, pageURL string) string {
	ctx, cancel := context.WithTimeout(ctx, metaImageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ""
	}
	setBrowserHeaders(req)
	resp, err := f.clientFor(req.URL).Do(req)
	if err != nil {
		f.logger.Printf("[fetcher] meta image url=%s: %v", pageURL, err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	raw, err := readLimited(resp.Body, f.maxBody)
	if err != nil {
		f.logger.Printf("[fetcher] meta image body url=%s: %v", pageURL, err)
		return ""
	}
	body, err := decodeBody(raw, resp.Header.Get("Content-Encoding"), f.maxBody)
	if err != nil {
		f.logger.Printf("[fetcher] meta image body url=%s: %v", pageURL, err)
		return ""
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return FindMetaImage(doc, req.URL)
}

// FindMetaImage looks for og:image, then twitter:image, then image, and
// resolves the first non-empty one against base.
func FindMetaImage(doc *html.Node, base *url.URL) string {
	var metas []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			metas = append(metas, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, key := range metaImageKeys {
		for _, m := range metas {
			if !strings.EqualFold(dom.GetAttributeOr(m, key.attr, ""), key.value) {
				continue
			}
			content := strings.TrimSpace(dom.GetAttributeOr(m, "content", ""))
			if content == "" {
				continue
			}
			ref, err := url.Parse(content)
			if err != nil {
				continue
			}
			if base == nil {
				return ref.String()
			}
			return base.ResolveReference(ref).String()
		}
	}
	return ""
}
