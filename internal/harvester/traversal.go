package harvester

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	pagerClassRE   = regexp.MustCompile(`(?i)page|pager|pagination|nav`)
	nextKeywords   = []string{"next", ">", "»", "→"}
	letterFilterRE = regexp.MustCompile(`(?i)(["'])(/[^"']*\?[^"']*(?:letter|initial|alpha|filter)=[A-Za-z])\1`)
	apiPageRE      = regexp.MustCompile(`["'](/api/[^"']+page=\d+[^"']*)["']`)
	pageParamRE    = regexp.MustCompile(`page=\d+`)
	letterParamRE  = regexp.MustCompile(`(?i)=[A-Za-z]$`)
)

const (
	minLetterLinks   = 15
	maxTargetsCap    = 50
	apiPageTrialsMax = 7
	maxFacultyHard   = 250
)

// discoverTraversalTargets finds alphabetical indices, numeric pagination,
// and script-embedded endpoint templates that split a directory across
// multiple pages.
func discoverTraversalTargets(doc *goquery.Document, baseURL string) []string {
	targets := map[string]bool{}

	letterLinks := 0

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) == 1 && isAlpha(rune(text[0])) {
			letterLinks++
		}
	})

	if letterLinks >= minLetterLinks {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) != 1 || !isAlpha(rune(text[0])) {
				return
			}

			if href, ok := s.Attr("href"); ok {
				targets[resolveURL(baseURL, href)] = true
			}
		})
	}

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		if !pagerClassRE.MatchString(class) {
			return
		}

		s.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			text := strings.ToLower(strings.TrimSpace(a.Text()))
			if isNumeric(text) || containsAny(text, nextKeywords) {
				if href, ok := a.Attr("href"); ok {
					targets[resolveURL(baseURL, href)] = true
				}
			}
		})
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		script := s.Text()

		for _, m := range letterFilterRE.FindAllStringSubmatch(script, -1) {
			raw := m[2]
			for c := 'A'; c <= 'Z'; c++ {
				templated := letterParamRE.ReplaceAllString(raw, "="+string(c))
				targets[resolveURL(baseURL, templated)] = true
			}
		}

		for _, m := range apiPageRE.FindAllStringSubmatch(script, -1) {
			for p := 1; p <= apiPageTrialsMax; p++ {
				templated := pageParamRE.ReplaceAllString(m[1], "page="+strconv.Itoa(p))
				targets[resolveURL(baseURL, templated)] = true
			}
		}
	})

	result := make([]string, 0, len(targets))
	for t := range targets {
		result = append(result, t)
	}

	sort.Strings(result)

	if len(result) > maxTargetsCap {
		result = result[:maxTargetsCap]
	}

	return result
}

// traverse crawls the base page plus any discovered traversal targets,
// accumulating deduplicated profiles. It reports whether only the base URL
// ended up being scraped (no additional targets were found), which gates
// whether the brute-force fallback should be tried.
func (h *Harvester) traverse(ctx context.Context, baseDoc *goquery.Document, baseURL string, base []Profile) ([]Profile, map[string]bool, bool) {
	seen := map[string]bool{}
	faculty := make([]Profile, 0, len(base))

	for _, p := range base {
		if !seen[p.URL] {
			seen[p.URL] = true
			faculty = append(faculty, p)
		}
	}

	if baseDoc == nil {
		return faculty, seen, true
	}

	targets := discoverTraversalTargets(baseDoc, baseURL)
	if len(targets) == 0 {
		return faculty, seen, true
	}

	if len(targets) > h.maxTraversalPages {
		targets = targets[:h.maxTraversalPages]
	}

	for _, target := range targets {
		if len(faculty) >= maxFacultyHard {
			break
		}

		resp, err := h.http.Fetch(ctx, target)
		if err != nil || !resp.OK() {
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
		if err != nil {
			continue
		}

		for _, p := range extractCards(doc, target) {
			if !seen[p.URL] {
				seen[p.URL] = true
				faculty = append(faculty, p)
			}
		}
	}

	return faculty, seen, false
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}

