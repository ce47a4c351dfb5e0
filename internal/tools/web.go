package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxBodyBytes   = 2 << 20
	defaultMaxText = 8000
)

type fetcher struct {
	client *http.Client
}

func (f *fetcher) handle(ctx context.Context, payload map[string]any) (map[string]any, error) {
	raw, err := stringPayload(payload, "url")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("web.fetch: %q is not an http(s) URL", raw)
	}
	maxText, err := intPayload(payload, "max_chars", defaultMaxText)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("web.fetch: %w", err)
	}
	req.Header.Set("User-Agent", "workforce/1.0")
	client := f.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web.fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("web.fetch %s: status %d", u, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("web.fetch %s: parse html: %w", u, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	links := extractLinks(doc, u.String())
	text := readableText(doc)
	text, truncated := truncateText(text, maxText)
	return map[string]any{
		"url":         u.String(),
		"status_code": resp.StatusCode,
		"title":       title,
		"text":        text,
		"truncated":   truncated,
		"link_count":  len(links),
	}, nil
}

// truncateText cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncateText(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	n := max
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n], true
}
