// Package parser extracts indexable fields from fetched HTML.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/crawler"
)

// maxTextBytes caps the extracted text so one pathological page cannot bloat
// the document store.
const maxTextBytes = 64 * 1024

// HTMLParser implements crawler.Parser with goquery.
type HTMLParser struct{}

// New creates an HTMLParser.
func New() *HTMLParser {
	return &HTMLParser{}
}

// Parse extracts the title, visible text, and absolute outbound links from
// body. Relative links are resolved against baseURL; only http(s) links are
// returned, deduplicated in document order.
func (p *HTMLParser) Parse(baseURL string, body []byte) (crawler.Parsed, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Parsed{}, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return crawler.Parsed{}, fmt.Errorf("parse base url: %w", err)
	}

	parsed := crawler.Parsed{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Text:  extractText(doc),
		Links: extractLinks(doc, base),
	}
	return parsed, nil
}

func extractText(doc *goquery.Document) string {
	sel := doc.Find("body")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	sel.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(sel.Text()), " ")
	if len(text) > maxTextBytes {
		text = text[:maxTextBytes]
	}
	return text
}

func extractLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		link := abs.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}
