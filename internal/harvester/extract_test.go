package harvester

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	return doc
}

func TestExtractCardsFindsProfiles(t *testing.T) {
	html := `
	<html><body>
	<nav><div class="people-list"><a href="/staff/nav-link">Not A Person</a></div></nav>
	<div class="people-list">
		<div class="people-item">
			<h3>Dr. Jane Smith</h3>
			<a href="/faculty/jane-smith">Profile</a>
			<span>jane.smith@example.edu</span>
		</div>
		<div class="people-item">
			<h3>Prof. John Doe</h3>
			<a href="/faculty/john-doe">Profile</a>
		</div>
	</div>
	</body></html>`

	doc := mustDoc(t, html)
	profiles := extractCards(doc, "https://example.edu/directory")

	require.Len(t, profiles, 2)
	assert.Equal(t, "Jane Smith", profiles[0].Name)
	assert.Equal(t, "https://example.edu/faculty/jane-smith", profiles[0].URL)
	assert.Equal(t, "jane.smith@example.edu", profiles[0].Email)
	assert.Equal(t, "John Doe", profiles[1].Name)
}

func TestExtractCardsSkipsNavigation(t *testing.T) {
	html := `
	<html><body>
	<header class="people-list">
		<div class="people-item"><h3>Header Person Name</h3><a href="/x">x</a></div>
	</header>
	<div class="people-list">
		<div class="people-item"><h3>Real Person Name</h3><a href="/faculty/real">Profile</a></div>
	</div>
	</body></html>`

	doc := mustDoc(t, html)
	profiles := extractCards(doc, "https://example.edu/")

	require.Len(t, profiles, 1)
	assert.Equal(t, "Real Person Name", profiles[0].Name)
}

func TestExtractCardsSkipsSocialLinks(t *testing.T) {
	html := `
	<div class="people-item">
		<h3>Jane Smith Doe</h3>
		<a href="https://facebook.com/jane">Facebook</a>
	</div>`

	doc := mustDoc(t, html)
	profiles := extractCards(doc, "https://example.edu/")

	assert.Empty(t, profiles)
}

func TestIsValidNameFormat(t *testing.T) {
	cases := map[string]bool{
		"Jane Smith":              true,
		"Jo":                      false,
		"Faculty Directory":       false,
		"A Very Long Name With Many Words Here": false,
		"NoSpaceOrComma":          false,
	}

	for name, want := range cases {
		assert.Equal(t, want, isValidNameFormat(name), "name=%q", name)
	}
}

func TestCleanNameStripsAcademicTitles(t *testing.T) {
	assert.Equal(t, "Jane Smith", cleanName("Prof. Jane Smith"))
	assert.Equal(t, "John Doe", cleanName("Dr. John Doe"))
}

func TestLooksJSHydratedDetectsLowYieldWithDrupalSignal(t *testing.T) {
	html := `
	<html><body>
	<div class="view-content"></div>
	<script data-drupal-selector="drupal-settings-json">{}</script>
	</body></html>`

	doc := mustDoc(t, html)
	assert.True(t, looksJSHydrated(doc, 2))
}

func TestLooksJSHydratedFalseWhenYieldIsHigh(t *testing.T) {
	html := `<html><body><div class="view-content"></div></body></html>`
	doc := mustDoc(t, html)

	assert.False(t, looksJSHydrated(doc, 30))
}
