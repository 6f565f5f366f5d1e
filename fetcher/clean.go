package fetcher

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"

	readability "codeberg.org/readeck/go-readability"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	mdConverter     *converter.Converter
	mdConverterOnce sync.Once
)

func markdownConverter() *converter.Converter {
	mdConverterOnce.Do(func() {
		mdConverter = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		)
	})
	return mdConverter
}

func (f *Fetcher) extract(body []byte, pageURL *url.URL) (string, error) {
	if f.mode == ModeArticle {
		text, err := ArticleText(body, pageURL)
		if err == nil && text != "" {
			return text, nil
		}
		f.logger.Printf("[fetcher] article mode failed for %s, using full page text: %v", pageURL, err)
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return CleanText(doc), nil
}

// ArticleText keeps only the main article of the page (readability) and
// flattens it through Markdown so headings and list items stay separated.
func ArticleText(body []byte, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	if article.Content == "" {
		return "", fmt.Errorf("readability extracted no content from %s", pageURL)
	}
	md, err := markdownConverter().ConvertString(article.Content)
	if err != nil {
		return "", fmt.Errorf("markdown conversion: %w", err)
	}
	text := NormalizeText(md)
	if title := NormalizeText(article.Title); title != "" && !strings.HasPrefix(text, title) {
		text = title + " " + text
	}
	return text, nil
}

// blockAtoms are elements whose boundaries separate words even when the
// markup has no whitespace between them.
var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Td: true, atom.Th: true, atom.Tr: true, atom.Ul: true, atom.Title: true,
}

// CleanText returns the visible text of doc: script and style contents
// dropped, whitespace runs collapsed to single spaces.
func CleanText(doc *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.CommentNode:
			return
		}
		block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	walk(doc)
	return NormalizeText(b.String())
}

// NormalizeText trims every fragment and joins the non-empty ones with a
// single space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
