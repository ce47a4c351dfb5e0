package tools

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	htmldom "golang.org/x/net/html"
)

type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

func parseDoc(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func outerHTML(sel *goquery.Selection) string {
	var buf bytes.Buffer
	for _, n := range sel.Nodes {
		_ = htmldom.Render(&buf, n)
	}
	return buf.String()
}

func extractLinks(doc *goquery.Document, base string) []Link {
	var out []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		out = append(out, Link{Text: strings.TrimSpace(s.Text()), URL: absolute(base, href)})
	})
	return out
}

// readableText drops script and style content and collapses whitespace.
func readableText(doc *goquery.Document) string {
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func handleLinks(_ context.Context, payload map[string]any) (map[string]any, error) {
	html, err := stringPayload(payload, "html")
	if err != nil {
		return nil, err
	}
	baseURL, _ := payload["base_url"].(string)

	doc, err := parseDoc(html)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return map[string]any{"links": extractLinks(doc, baseURL)}, nil
}

func handleInnerText(_ context.Context, payload map[string]any) (map[string]any, error) {
	html, err := stringPayload(payload, "html")
	if err != nil {
		return nil, err
	}
	doc, err := parseDoc(html)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return map[string]any{"text": readableText(doc)}, nil
}

func handleSelectAll(_ context.Context, payload map[string]any) (map[string]any, error) {
	html, err := stringPayload(payload, "html")
	if err != nil {
		return nil, err
	}
	selector, err := stringPayload(payload, "selector")
	if err != nil {
		return nil, err
	}
	doc, err := parseDoc(html)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	items := []string{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		items = append(items, outerHTML(s))
	})
	return map[string]any{"items": items}, nil
}
