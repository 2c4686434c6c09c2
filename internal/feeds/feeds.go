// Package feeds retrieves entries from the configured news feeds and applies
// each source's keyword pre-filter.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"
)

const fetchTimeout = 15 * time.Second

// Source is one monitored news feed with its keyword pre-filter.
type Source struct {
	Name     string   `yaml:"name"`
	FeedURL  string   `yaml:"feed"`
	Keywords []string `yaml:"keywords"`
}

// Entry is a transient feed item; it is consumed by the keyword filter and
// the article extractor and never persisted.
type Entry struct {
	Title       string
	Description string
	Link        string
}

// Matches applies the source's case-insensitive keyword filter (OR over the
// keyword list) across the entry's title and description.
func (s Source) Matches(e Entry) bool {
	title := strings.ToLower(e.Title)
	desc := strings.ToLower(e.Description)
	for _, kw := range s.Keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(title, kw) || strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// Load reads feed sources from a YAML file. An empty path returns the
// built-in defaults.
func Load(path string) ([]Source, error) {
	if path == "" {
		return Defaults(), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds config: %w", err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse feeds config: %w", err)
	}
	if len(f.Sources) == 0 {
		return nil, errors.New("feeds config has no sources")
	}
	for i, s := range f.Sources {
		if s.Name == "" || s.FeedURL == "" || len(s.Keywords) == 0 {
			return nil, fmt.Errorf("source %d: name, feed and keywords are required", i)
		}
	}
	return f.Sources, nil
}

// Defaults returns the built-in source list: the regional feeds the register
// has monitored from the start.
func Defaults() []Source {
	keywords := []string{
		"magdeburg",
		"rassistisch",
		"fremdenfeindlich",
		"ausländerfeindlich",
		"hassverbrechen",
		"übergriff",
		"angriff migranten",
		"rassismus",
	}
	return []Source{
		{
			Name:     "MDR Sachsen-Anhalt",
			FeedURL:  "https://www.mdr.de/nachrichten/index-rss.xml",
			Keywords: keywords,
		},
		{
			Name:     "taz",
			FeedURL:  "https://taz.de/!p4608;rss/",
			Keywords: keywords,
		},
	}
}

// Fetcher pulls and parses RSS/Atom feeds.
type Fetcher struct {
	client *http.Client
	parser *gofeed.Parser
}

// NewFetcher creates a feed fetcher with a bounded HTTP timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: fetchTimeout},
		parser: gofeed.NewParser(),
	}
}

// Fetch retrieves a feed and returns its entries in feed order.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %d", resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, it := range feed.Items {
		entries = append(entries, Entry{
			Title:       strings.TrimSpace(it.Title),
			Description: strings.TrimSpace(it.Description),
			Link:        strings.TrimSpace(it.Link),
		})
	}
	return entries, nil
}
