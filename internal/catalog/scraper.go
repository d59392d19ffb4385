// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog scrapes the public Ollama model library for model
// names and tags. Every call is best effort: failures are logged and
// yield an empty or partial list, never an error.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public model library.
	DefaultBaseURL = "https://ollama.com"

	// DefaultMaxPages bounds Models when maxPages is not positive.
	DefaultMaxPages = 5

	// fullPage is the entry count of a full search page; a shorter page
	// is the last one.
	fullPage = 15

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxBodyBytes     = 5 * 1024 * 1024
)

// Scraper fetches catalog pages.
type Scraper struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	UserAgent  string
	Logger     zerolog.Logger
}

// New creates a scraper for baseURL paced at two requests per second.
func New(baseURL string, logger zerolog.Logger) *Scraper {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Scraper{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		Limiter:   rate.NewLimiter(rate.Limit(2), 1),
		UserAgent: defaultUserAgent,
		Logger:    logger,
	}
}

// Models lists model names from the search pages, calling onPage (if
// set) after each page with the names found on it. Paging stops at an
// empty or short page, a fetch failure, or after maxPages pages.
func (s *Scraper) Models(ctx context.Context, maxPages int, onPage func(page int, names []string)) []string {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	var all []string
	seen := make(map[string]bool)
	for page := 1; page <= maxPages; page++ {
		doc, err := s.fetch(ctx, "/search?page="+strconv.Itoa(page))
		if err != nil {
			s.Logger.Warn().Err(err).Int("page", page).Msg("catalog page fetch failed")
			break
		}
		names := headings(doc)
		var fresh []string
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				fresh = append(fresh, n)
			}
		}
		all = append(all, fresh...)
		if onPage != nil {
			onPage(page, fresh)
		}
		if len(names) < fullPage {
			break
		}
	}
	return all
}

// Tags lists the tags of model as "name:tag". When the tag table cannot
// be read the page text is searched for name:tag references, and when
// that also finds nothing the result is name:latest.
func (s *Scraper) Tags(ctx context.Context, name string) []string {
	fallback := []string{name + ":latest"}

	doc, err := s.fetch(ctx, "/library/"+url.PathEscape(name)+"/tags")
	if err != nil {
		s.Logger.Warn().Err(err).Str("model", name).Msg("catalog tags fetch failed")
		return fallback
	}

	if tags := tableTags(doc); len(tags) > 0 {
		return tags
	}
	if tags := textTags(name, textOf(doc)); len(tags) > 0 {
		return tags
	}
	return fallback
}

func (s *Scraper) fetch(ctx context.Context, path string) (*html.Node, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
}

// =============================================================================
// HTML EXTRACTION
// =============================================================================

// headings returns the text of every <h2>, in document order.
func headings(doc *html.Node) []string {
	var out []string
	visit(doc, func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.H2 {
			if t := textOf(n); t != "" {
				out = append(out, t)
			}
		}
	})
	return out
}

// tableTags returns the first cell of each table row that looks like a
// name:tag reference.
func tableTags(doc *html.Node) []string {
	var out []string
	seen := make(map[string]bool)
	visit(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.DataAtom != atom.Tr {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
				continue
			}
			if t := textOf(c); strings.Contains(t, ":") && !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
			break
		}
	})
	return out
}

// visit calls fn for n and every node below it in document order.
func visit(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visit(c, fn)
	}
}

// textTags finds name:tag references in free text, sorted and unique.
func textTags(name, text string) []string {
	re := regexp.MustCompile(regexp.QuoteMeta(name) + `:[\w\-.]+`)
	seen := make(map[string]bool)
	var out []string
	for _, m := range re.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// textOf returns the NFC-normalized, whitespace-collapsed text of n.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return norm.NFC.String(strings.Join(strings.Fields(b.String()), " "))
}
