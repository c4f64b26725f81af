// Package harvester implements the autonomous directory harvester: given a
// university faculty directory URL, it extracts a deduplicated roster of
// profiles by trying a sequence of strategies, each trading off coverage
// against cost, and stopping as soon as one yields a usable result.
package harvester

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/lueurxax/faculty-harvest/internal/httpclient"
	"github.com/lueurxax/faculty-harvest/internal/render"
)

// Strategy identifies which harvest technique produced a batch of profiles.
type Strategy string

// The strategy ladder, tried in order until one yields a satisfactory
// result.
const (
	StrategyBaseHTML   Strategy = "base_html"
	StrategyHydrated   Strategy = "hydrated"
	StrategyCMSAjax    Strategy = "cms_ajax"
	StrategyTraversal  Strategy = "traversal"
	StrategyBruteForce Strategy = "brute_force"
)

const (
	fullListThreshold      = 40
	ajaxMinYield           = 30
	maxResultsReturned     = 250
	lowYieldThreshold      = 20
	hydrationCardThreshold = 15
	resultCap500           = 500
)

// Profile is one harvested faculty member.
type Profile struct {
	Name  string
	URL   string
	Email string
}

// StrategyYield records how many profiles one strategy contributed, for
// observability only; it is never part of the external contract.
type StrategyYield struct {
	Strategy Strategy
	Count    int
}

// Result is the outcome of a Harvest call.
type Result struct {
	Profiles []Profile
	Yields   []StrategyYield
}

// Harvester runs the strategy ladder against a single directory URL.
type Harvester struct {
	http     *httpclient.Client
	renderer *render.Renderer
	logger   *zerolog.Logger

	maxTraversalPages int
}

// Config configures a Harvester.
type Config struct {
	MaxTraversalPages int
}

// New builds a Harvester over a shared HTTP client and renderer.
func New(client *httpclient.Client, renderer *render.Renderer, cfg Config, logger *zerolog.Logger) *Harvester {
	if cfg.MaxTraversalPages <= 0 {
		cfg.MaxTraversalPages = 50
	}

	return &Harvester{
		http:              client,
		renderer:          renderer,
		logger:            logger,
		maxTraversalPages: cfg.MaxTraversalPages,
	}
}

// Harvest runs the full strategy ladder: base HTML -> hydrated fallback ->
// CMS-AJAX -> traversal -> brute force, short-circuiting as soon as a
// strategy yields enough profiles.
func (h *Harvester) Harvest(ctx context.Context, directoryURL string) (Result, error) {
	var result Result

	doc, fetchErr := h.fetchDocument(ctx, directoryURL)

	var base []Profile
	if doc != nil {
		base = extractCards(doc, directoryURL)
	}

	useHydrated := fetchErr != nil || looksJSHydrated(doc, len(base))
	if useHydrated {
		hydratedDoc, err := h.fetchHydrated(ctx, directoryURL)
		if err == nil && hydratedDoc != nil {
			doc = hydratedDoc
			base = extractCards(doc, directoryURL)
			result.Yields = append(result.Yields, StrategyYield{Strategy: StrategyHydrated, Count: len(base)})
		} else if fetchErr != nil {
			return result, fmt.Errorf("fetch directory %s: %w", directoryURL, fetchErr)
		}
	} else {
		result.Yields = append(result.Yields, StrategyYield{Strategy: StrategyBaseHTML, Count: len(base)})
	}

	if len(base) > fullListThreshold {
		result.Profiles = cap500(dedupe(base))
		return result, nil
	}

	if doc != nil {
		ajaxProfiles := h.tryCMSAjax(ctx, doc, directoryURL)
		if len(ajaxProfiles) > ajaxMinYield {
			result.Yields = append(result.Yields, StrategyYield{Strategy: StrategyCMSAjax, Count: len(ajaxProfiles)})
			result.Profiles = capResults(dedupe(ajaxProfiles))

			return result, nil
		}
	}

	faculty, seen, onlyBase := h.traverse(ctx, doc, directoryURL, base)
	result.Yields = append(result.Yields, StrategyYield{Strategy: StrategyTraversal, Count: len(faculty) - len(base)})

	if len(faculty) < lowYieldThreshold && onlyBase {
		bruteForced := h.bruteForce(ctx, directoryURL, seen)
		result.Yields = append(result.Yields, StrategyYield{Strategy: StrategyBruteForce, Count: len(bruteForced)})
		faculty = append(faculty, bruteForced...)
	}

	result.Profiles = capResults(dedupe(faculty))

	return result, nil
}

func (h *Harvester) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	resp, err := h.http.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if !resp.OK() {
		return nil, resp.Err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	return doc, nil
}

// FetchProfileEmail deep-fetches a single profile page and scans it for an
// email address, for use when a harvested profile carried none. This is an
// opt-in fallback: one extra request per professor is too expensive to run
// unconditionally.
func (h *Harvester) FetchProfileEmail(ctx context.Context, profileURL string) (string, error) {
	doc, err := h.fetchDocument(ctx, profileURL)
	if err != nil {
		return "", err
	}

	return ExtractEmailFromDocument(doc), nil
}

func (h *Harvester) fetchHydrated(ctx context.Context, url string) (*goquery.Document, error) {
	html, err := h.renderer.Render(ctx, url)
	if err != nil {
		h.logger.Debug().Err(err).Str("url", url).Msg("hydrated render failed, falling through")
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse hydrated html: %w", err)
	}

	return doc, nil
}

func cap500(profiles []Profile) []Profile {
	if len(profiles) > resultCap500 {
		return profiles[:resultCap500]
	}

	return profiles
}

func capResults(profiles []Profile) []Profile {
	if len(profiles) > maxResultsReturned {
		return profiles[:maxResultsReturned]
	}

	return profiles
}

func dedupe(profiles []Profile) []Profile {
	seen := make(map[string]bool, len(profiles))
	out := make([]Profile, 0, len(profiles))

	for _, p := range profiles {
		if seen[p.URL] {
			continue
		}

		seen[p.URL] = true
		out = append(out, p)
	}

	return out
}
