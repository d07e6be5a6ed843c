package universe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"StockPipe/internal/domain/models"
	"StockPipe/internal/service/ratelimit"
	xhttp "StockPipe/pkg/http"

	"golang.org/x/net/html"
)

const DefaultWikipediaURL = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"

// WikipediaOption configures WikipediaSource.
type WikipediaOption func(*WikipediaSource)

func WithURL(u string) WikipediaOption {
	return func(s *WikipediaSource) {
		s.url = u
	}
}

// WithRetry sets how often a failed page fetch is retried and how long to wait.
func WithRetry(attempts int, backoff ratelimit.Backoff, sleeper ratelimit.Sleeper) WikipediaOption {
	return func(s *WikipediaSource) {
		s.attempts = attempts
		s.backoff = backoff
		s.sleeper = sleeper
	}
}

// WikipediaSource scrapes the S&P 500 constituents table.
type WikipediaSource struct {
	http     *xhttp.Client
	url      string
	attempts int
	backoff  ratelimit.Backoff
	sleeper  ratelimit.Sleeper
}

func NewWikipediaSource(httpClient *xhttp.Client, opts ...WikipediaOption) *WikipediaSource {
	s := &WikipediaSource{
		http:     httpClient,
		url:      DefaultWikipediaURL,
		attempts: 3,
		backoff:  ratelimit.Backoff{Strategy: ratelimit.StrategyExponential, Base: time.Second, Max: 30 * time.Second},
		sleeper:  ratelimit.RealSleeper,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WikipediaSource) Name() string { return "wikipedia" }

func (s *WikipediaSource) Fetch(ctx context.Context) ([]Entry, error) {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		entries, err := s.fetchOnce(ctx)
		if err == nil {
			return entries, nil
		}
		lastErr = err
		if ctx.Err() != nil || !models.IsRetryable(err) || attempt == s.attempts {
			break
		}
		if err := s.sleeper.Sleep(ctx, s.backoff.Delay(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *WikipediaSource) fetchOnce(ctx context.Context) ([]Entry, error) {
	var body []byte
	err := s.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     s.url,
		Headers: map[string]string{"Accept": "text/html"},
	}, &body)
	if err != nil {
		if se, ok := xhttp.AsStatusError(err); ok && !se.Temporary() {
			return nil, models.NewPermanentError("universe.wikipedia", "fetch page").WithError(err)
		}
		return nil, models.NewTransientError("universe.wikipedia", "fetch page").WithError(err)
	}
	entries, err := ParseConstituents(body)
	if err != nil {
		return nil, models.NewPermanentError("universe.wikipedia", "parse page").WithError(err)
	}
	return entries, nil
}

// ParseConstituents reads symbol and company name from the first two cells of
// each row of the constituents table. The table with id "constituents" wins;
// otherwise the first "wikitable" is used.
func ParseConstituents(page []byte) ([]Entry, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	table := findTable(doc)
	if table == nil {
		return nil, errors.New("constituents table not found")
	}

	var out []Entry
	walk(table, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "tr" {
			return true
		}
		var cells []string
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "td" {
				cells = append(cells, strings.TrimSpace(text(c)))
			}
		}
		if len(cells) >= 2 && cells[0] != "" && cells[1] != "" {
			out = append(out, Entry{Symbol: cells[0], Name: cells[1]})
		}
		return false
	})
	if len(out) == 0 {
		return nil, errors.New("no tickers found in table")
	}
	return out, nil
}

func findTable(doc *html.Node) *html.Node {
	var byID, byClass *html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "table" {
			return true
		}
		if attr(n, "id") == "constituents" && byID == nil {
			byID = n
		}
		if byClass == nil && hasClass(n, "wikitable") {
			byClass = n
		}
		return false
	})
	if byID != nil {
		return byID
	}
	return byClass
}

// walk visits n and its descendants depth first; fn returns false to skip a
// node's children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
