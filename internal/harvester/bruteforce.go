package harvester

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var bruteForceParams = []string{"letter", "initial", "q"}

const (
	bruteForceCap = 100
	letterA       = 'A'
	letterZ       = 'Z'
)

// bruteForce trials every letter A-Z against a handful of common directory
// filter query parameters, used as a last resort when the directory gave a
// low yield and no traversal targets were discoverable. A trial is only
// parsed if the requested letter is actually visible in the response,
// avoiding false positives on pages that ignore unknown query parameters.
func (h *Harvester) bruteForce(ctx context.Context, directoryURL string, seen map[string]bool) []Profile {
	var found []Profile

	sep := "?"
	if strings.Contains(directoryURL, "?") {
		sep = "&"
	}

	for c := letterA; c <= letterZ; c++ {
		for _, param := range bruteForceParams {
			trialURL := fmt.Sprintf("%s%s%s=%c", directoryURL, sep, param, c)

			resp, err := h.http.Fetch(ctx, trialURL)
			if err != nil || !resp.OK() {
				continue
			}

			if !strings.Contains(string(resp.Body), string(c)) {
				continue
			}

			doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
			if err != nil {
				continue
			}

			for _, p := range extractCards(doc, trialURL) {
				if !seen[p.URL] {
					seen[p.URL] = true
					found = append(found, p)
				}
			}
		}

		if len(found) >= bruteForceCap {
			break
		}
	}

	return found
}
