// Package biblio looks up a professor's publication record against a
// bibliographic search API, grounded in the same author-search-then-filter
// approach the original harvester used against Semantic Scholar.
package biblio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/faculty-harvest/internal/apperrors"
	"github.com/lueurxax/faculty-harvest/internal/httpclient"
	"github.com/lueurxax/faculty-harvest/internal/observability"
)

const (
	attemptsPerQuery     = 2
	searchResultLimit    = 3
	attemptBackoffFactor = 5 * time.Second
	defaultRetryAfter    = 10 * time.Second
	otherFailureWait     = 2 * time.Second

	searchFields = "authorId,name,papers.paperId,papers.title,papers.abstract,papers.year,papers.citationCount,papers.url"
)

// Paper is a single publication attributed to a harvested professor.
type Paper struct {
	ExternalID    string
	Title         string
	Abstract      string
	Year          int
	CitationCount int
	URL           string
}

// AuthorMatch is the bibliographic API's identity for the author a search
// resolved to, plus the papers it returned for them.
type AuthorMatch struct {
	ExternalID string
	Papers     []Paper
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	APIKey    string
	MaxPapers int
}

// Client queries a Semantic-Scholar-shaped author search API.
type Client struct {
	http      *httpclient.Client
	baseURL   string
	apiKey    string
	maxPapers int
	logger    *zerolog.Logger
}

// New builds a Client over a shared rate-limited HTTP session.
func New(client *httpclient.Client, cfg Config, logger *zerolog.Logger) *Client {
	if cfg.MaxPapers <= 0 {
		cfg.MaxPapers = 30
	}

	return &Client{
		http:      client,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		maxPapers: cfg.MaxPapers,
		logger:    logger,
	}
}

type searchResponse struct {
	Data []authorEntry `json:"data"`
}

type authorEntry struct {
	AuthorID string       `json:"authorId"`
	Name     string       `json:"name"`
	Papers   []paperEntry `json:"papers"`
}

type paperEntry struct {
	PaperID       string `json:"paperId"`
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	Year          int    `json:"year"`
	CitationCount int    `json:"citationCount"`
	URL           string `json:"url"`
}

// PapersFor searches for a professor's publication record, trying a
// university-qualified query first and falling back to the bare name. It
// returns the first author match that actually carries papers, capped at
// the configured limit.
func (c *Client) PapersFor(ctx context.Context, name, university string) (AuthorMatch, error) {
	cleanName := strings.TrimSpace(strings.SplitN(name, ",", 2)[0])
	if cleanName == "" {
		return AuthorMatch{}, fmt.Errorf("papers for %q: %w", name, apperrors.ErrInvalidInput)
	}

	queries := []string{cleanName}
	if university != "" {
		queries = []string{cleanName + " " + university, cleanName}
	}

	for _, query := range queries {
		match, found, err := c.searchQuery(ctx, query)
		if err != nil {
			return AuthorMatch{}, err
		}

		if found {
			return match, nil
		}
	}

	return AuthorMatch{}, apperrors.ErrNoResults
}

func (c *Client) searchQuery(ctx context.Context, query string) (AuthorMatch, bool, error) {
	searchURL := c.baseURL + "/author/search?" + url.Values{
		"query":  {query},
		"limit":  {fmt.Sprint(searchResultLimit)},
		"fields": {searchFields},
	}.Encode()

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"x-api-key": c.apiKey}
	}

	var lastErr error

	for attempt := 0; attempt < attemptsPerQuery; attempt++ {
		resp, err := c.http.FetchWithHeaders(ctx, searchURL, headers)
		if err != nil {
			lastErr = fmt.Errorf("fetch author search: %w: %w", apperrors.ErrTransientNetwork, err)

			if err := sleep(ctx, otherFailureWait); err != nil {
				return AuthorMatch{}, false, err
			}

			continue
		}

		if resp.Err != nil && resp.StatusCode == http.StatusTooManyRequests {
			observability.BiblioRetries.Inc()

			wait := resp.Err.RetryAfter
			if wait <= 0 {
				wait = defaultRetryAfter
			}

			wait += time.Duration(attempt) * attemptBackoffFactor
			lastErr = fmt.Errorf("author search rate limited: %w", apperrors.ErrTransientNetwork)

			if err := sleep(ctx, wait); err != nil {
				return AuthorMatch{}, false, err
			}

			continue
		}

		if !resp.OK() {
			c.logger.Warn().Int("status", resp.StatusCode).Str("query", query).Msg("author search failed, retrying")

			lastErr = fmt.Errorf("author search status %d: %w", resp.StatusCode, apperrors.ErrTransientNetwork)

			if err := sleep(ctx, otherFailureWait); err != nil {
				return AuthorMatch{}, false, err
			}

			continue
		}

		var parsed searchResponse
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			lastErr = fmt.Errorf("decode author search response: %w: %w", apperrors.ErrTransientNetwork, err)

			if err := sleep(ctx, otherFailureWait); err != nil {
				return AuthorMatch{}, false, err
			}

			continue
		}

		if len(parsed.Data) == 0 {
			return AuthorMatch{}, false, nil
		}

		for _, author := range parsed.Data {
			if len(author.Papers) == 0 {
				continue
			}

			match := AuthorMatch{
				ExternalID: author.AuthorID,
				Papers:     toPapers(author.Papers, c.maxPapers),
			}

			return match, true, nil
		}

		return AuthorMatch{}, false, nil
	}

	return AuthorMatch{}, false, lastErr
}

func toPapers(entries []paperEntry, limit int) []Paper {
	if len(entries) > limit {
		entries = entries[:limit]
	}

	papers := make([]Paper, 0, len(entries))
	for _, e := range entries {
		papers = append(papers, Paper{
			ExternalID:    e.PaperID,
			Title:         e.Title,
			Abstract:      e.Abstract,
			Year:          e.Year,
			CitationCount: e.CitationCount,
			URL:           e.URL,
		})
	}

	return papers
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
