package harvester

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// priorityClasses are CSS classes commonly used by university CMS themes to
// mark the element that holds a faculty roster.
var priorityClasses = []string{
	"view-content", "people-list", "faculty-list", "directory",
	"staff-list", "profiles", "people-row", "people-item",
	"inner-people-grid", "views-view-grid", "grid", "row",
}

var containerTags = []string{"div", "li", "tr", "article", "section", "fieldset"}

var skipLinkSubstrings = []string{
	"facebook", "twitter", "linkedin", "mailto:", "tel:", "vcard", "google",
}

var skipLinkSuffixes = []string{".jpg", ".png", ".pdf", ".docx", ".zip"}

var nameBlacklist = map[string]bool{
	"Calendar": true, "Events": true, "News": true, "Contact": true, "Give": true,
	"Social": true, "Mission": true, "Values": true, "Diversity": true, "Search": true,
	"Login": true, "Resources": true, "Safety": true, "COVID": true, "History": true,
	"Map": true, "Jobs": true, "Career": true, "Colloquia": true, "Seminars": true,
	"About": true, "Home": true, "Student": true, "Alumni": true, "Portal": true,
	"Accessibility": true, "Privacy": true, "Statement": true, "Language": true,
	"Services": true, "Department": true, "Faculty Directory": true, "People Search": true,
	"Staff": true, "Overview": true,
}

var (
	academicTitleRE = regexp.MustCompile(`(?i)(Prof\.|Professor|Dr\.|Dr-Ing\.|MD|PhD|M\.Sc\.|Associate|Assistant|Emeritus|Visiting|Junior|Senior)`)
	emailRE         = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[\w.-]+\.[a-zA-Z]{2,}`)
	obfuscatedRE    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+\s*(\[at\]|@)\s*[\w.-]+\s*(\[dot\]|\.)\s*[a-zA-Z]{2,}`)
	mailtoRE        = regexp.MustCompile(`^mailto:`)
)

const (
	minNameLen       = 5
	maxNameLen       = 60
	maxNameWordCount = 4
)

// extractCards walks a directory document looking for repeated card-like
// blocks that carry a profile link and a name, skipping navigation chrome.
func extractCards(doc *goquery.Document, baseURL string) []Profile {
	candidates := collectCandidateBlocks(doc)

	seen := map[string]bool{}

	var profiles []Profile

	for _, block := range candidates {
		for _, container := range containersOf(block) {
			p, ok := extractFromContainer(container, baseURL)
			if !ok || seen[p.URL] {
				continue
			}

			seen[p.URL] = true
			profiles = append(profiles, p)
		}
	}

	return profiles
}

func collectCandidateBlocks(doc *goquery.Document) []*goquery.Selection {
	var blocks []*goquery.Selection

	for _, cls := range priorityClasses {
		doc.Find("." + cls).Each(func(_ int, s *goquery.Selection) {
			if s.Closest("nav").Length() > 0 || s.Closest("header").Length() > 0 || s.Closest("footer").Length() > 0 {
				return
			}

			blocks = append(blocks, s)
		})
	}

	if len(blocks) == 0 {
		blocks = append(blocks, doc.Selection)
	}

	return blocks
}

func containersOf(block *goquery.Selection) []*goquery.Selection {
	var containers []*goquery.Selection

	if isContainerTag(goquery.NodeName(block)) {
		containers = append(containers, block)
	}

	block.Find(strings.Join(containerTags, ",")).Each(func(_ int, s *goquery.Selection) {
		containers = append(containers, s)
	})

	return containers
}

func isContainerTag(tag string) bool {
	for _, t := range containerTags {
		if t == tag {
			return true
		}
	}

	return false
}

func extractFromContainer(container *goquery.Selection, baseURL string) (Profile, bool) {
	link := container.Find("a[href]").First()
	href, hasHref := link.Attr("href")

	if link.Length() == 0 || !hasHref || !isLikelyProfileLink(href) {
		return Profile{}, false
	}

	fullURL := resolveURL(baseURL, href)

	name := findName(container, link)
	if !isValidNameFormat(name) {
		return Profile{}, false
	}

	return Profile{
		Name:  cleanName(name),
		URL:   fullURL,
		Email: findEmail(container),
	}, true
}

func isLikelyProfileLink(href string) bool {
	lower := strings.ToLower(href)

	for _, skip := range skipLinkSubstrings {
		if strings.Contains(lower, skip) {
			return false
		}
	}

	if href == "#" || strings.Contains(lower, "javascript:") {
		return false
	}

	for _, suffix := range skipLinkSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}

	return true
}

func findName(container, link *goquery.Selection) string {
	if header := container.Find("h1,h2,h3,h4,h5,h6").First(); header.Length() > 0 {
		if text := strings.TrimSpace(header.Text()); isValidNameFormat(text) {
			return text
		}
	}

	if nameElem := container.Find(`[class*="name"],[class*="title"]`).First(); nameElem.Length() > 0 {
		if text := strings.TrimSpace(nameElem.Text()); isValidNameFormat(text) {
			return text
		}
	}

	var found string

	container.ChildrenFiltered("strong,b,a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if isValidNameFormat(text) {
			found = text
			return false
		}

		return true
	})

	if found != "" {
		return found
	}

	return strings.TrimSpace(link.Text())
}

// ExtractEmailFromDocument scans an entire page (rather than one card
// container) for an email address, using the same mailto/plain/obfuscated
// heuristics as the card extractor. Used by the orchestrator's deep email
// scrape fallback when a harvested profile carries no address.
func ExtractEmailFromDocument(doc *goquery.Document) string {
	return findEmail(doc.Selection)
}

func findEmail(container *goquery.Selection) string {
	mailto := container.Find("a").FilterFunction(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		return mailtoRE.MatchString(href)
	}).First()

	if mailto.Length() > 0 {
		href, _ := mailto.Attr("href")
		addr := mailtoRE.ReplaceAllString(href, "")
		addr = strings.SplitN(addr, "?", 2)[0]

		return strings.TrimSpace(addr)
	}

	text := container.Text()
	if m := emailRE.FindString(text); m != "" {
		return m
	}

	if m := obfuscatedRE.FindString(text); m != "" {
		m = strings.ReplaceAll(m, "[at]", "@")
		m = strings.ReplaceAll(m, "[dot]", ".")
		m = strings.ReplaceAll(m, " ", "")

		return m
	}

	return ""
}

func isValidNameFormat(text string) bool {
	if len(text) < minNameLen || len(text) > maxNameLen {
		return false
	}

	for word := range nameBlacklist {
		if strings.Contains(text, word) {
			return false
		}
	}

	if !strings.Contains(text, " ") && !strings.Contains(text, ",") {
		return false
	}

	if !hasAlpha(text) {
		return false
	}

	if len(strings.Fields(text)) > maxNameWordCount {
		return false
	}

	return true
}

func hasAlpha(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}

	return false
}

func cleanName(text string) string {
	text = academicTitleRE.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	text = strings.Trim(text, ",")

	return strings.TrimSpace(text)
}

func resolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}

	return baseURL.ResolveReference(refURL).String()
}

// looksJSHydrated flags pages whose card count is suspiciously low despite
// a recognizable faculty-list container, paired with a Drupal settings or
// pager signal — a sign the real content loads via JavaScript.
func looksJSHydrated(doc *goquery.Document, cardCount int) bool {
	if doc == nil {
		return true
	}

	hasContainer := false

	for _, cls := range priorityClasses {
		if doc.Find("." + cls).Length() > 0 {
			hasContainer = true
			break
		}
	}

	if !hasContainer || cardCount >= hydrationCardThreshold {
		return false
	}

	hasSettings := doc.Find(`script[data-drupal-selector="drupal-settings-json"]`).Length() > 0
	hasPager := doc.Find(`[data-drupal-selector*="pager"]`).Length() > 0

	return hasSettings || hasPager
}
