// Package extract turns article URLs into plain text. Extraction is
// per-origin: each supported news site registers a strategy keyed by its
// domain, and unknown origins yield no text rather than a guess at generic
// HTML structure.
package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const fetchTimeout = 30 * time.Second

// Some sites serve reduced or consent-walled markup to unknown clients.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Strategy extracts the article text from a parsed document. An empty return
// means the expected structure was not found.
type Strategy func(doc *goquery.Document) string

// Paragraphs returns a strategy that joins the text of all <p> elements
// inside the first node matching the container selector.
func Paragraphs(container string) Strategy {
	return func(doc *goquery.Document) string {
		root := doc.Find(container).First()
		if root.Length() == 0 {
			return ""
		}
		var parts []string
		root.Find("p").Each(func(_ int, s *goquery.Selection) {
			if t := strings.TrimSpace(s.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		return strings.Join(parts, " ")
	}
}

// Extractor fetches articles and applies the strategy registered for the
// URL's origin.
type Extractor struct {
	client     *http.Client
	strategies map[string]Strategy // registered domain -> strategy
}

// New creates an extractor with the built-in site strategies.
func New() *Extractor {
	e := &Extractor{
		client:     &http.Client{Timeout: fetchTimeout},
		strategies: make(map[string]Strategy),
	}
	e.Register("mdr.de", Paragraphs("article"))
	e.Register("taz.de", Paragraphs(".article"))
	return e
}

// Register adds or replaces the strategy for a domain. Subdomains of the
// registered domain use the same strategy.
func (e *Extractor) Register(domain string, s Strategy) {
	e.strategies[strings.ToLower(domain)] = s
}

// Extract fetches the article and returns its plain text. It returns ("",
// nil) when no strategy is registered for the URL's origin or the expected
// structure is missing; network and HTTP failures are returned as errors for
// the caller to log and absorb.
func (e *Extractor) Extract(ctx context.Context, articleURL string) (string, error) {
	strategy := e.strategyFor(articleURL)
	if strategy == nil {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "de,en-US;q=0.7,en;q=0.3")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch article: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("article returned %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse article html: %w", err)
	}

	return strategy(doc), nil
}

func (e *Extractor) strategyFor(articleURL string) Strategy {
	u, err := url.Parse(articleURL)
	if err != nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	for domain, s := range e.strategies {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return s
		}
	}
	return nil
}
