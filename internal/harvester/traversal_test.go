package harvester

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/faculty-harvest/internal/httpclient"
)

func TestDiscoverTraversalTargetsFindsLetterCluster(t *testing.T) {
	html := `<html><body><div class="alpha-index">`

	for c := 'A'; c <= 'Z'; c++ {
		html += `<a href="/directory?letter=` + string(c) + `">` + string(c) + `</a>`
	}

	html += `</div></body></html>`

	doc := mustDoc(t, html)
	targets := discoverTraversalTargets(doc, "https://example.edu/directory")

	assert.Len(t, targets, 26)
}

func TestDiscoverTraversalTargetsFindsPagerLinks(t *testing.T) {
	doc := mustDoc(t, `
	<div class="pagination">
		<a href="/directory?page=2">2</a>
		<a href="/directory?page=3">Next</a>
	</div>`)

	targets := discoverTraversalTargets(doc, "https://example.edu/directory")
	assert.Len(t, targets, 2)
}

func TestDiscoverTraversalTargetsIgnoresSmallLetterSets(t *testing.T) {
	doc := mustDoc(t, `
	<div class="tiny">
		<a href="/directory?letter=A">A</a>
		<a href="/directory?letter=B">B</a>
	</div>`)

	targets := discoverTraversalTargets(doc, "https://example.edu/directory")
	assert.Empty(t, targets)
}

func TestTraverseFetchesDiscoveredTargetsAndDedupes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page-b", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<div class="people-item"><h3>Page B Person</h3><a href="/faculty/page-b-person">Profile</a></div>`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := httpclient.New(httpclient.Config{Timeout: 5 * time.Second, RequestsPerSec: 1000})
	require.NoError(t, err)

	h := &Harvester{http: client, maxTraversalPages: 10}

	baseDoc := mustDoc(t, `<html><body><div class="pagination"><a href="`+srv.URL+`/page-b">Next</a></div></body></html>`)
	base := []Profile{{Name: "Page A Person", URL: "https://example.edu/faculty/page-a-person"}}

	faculty, seen, onlyBase := h.traverse(t.Context(), baseDoc, srv.URL, base)

	require.False(t, onlyBase)
	assert.Len(t, faculty, 2)
	assert.True(t, seen["https://example.edu/faculty/page-a-person"])
}

func TestTraverseReportsOnlyBaseWhenNoTargetsFound(t *testing.T) {
	h := &Harvester{maxTraversalPages: 10}
	baseDoc := mustDoc(t, `<html><body><p>nothing here</p></body></html>`)

	_, _, onlyBase := h.traverse(t.Context(), baseDoc, "https://example.edu/directory", nil)
	assert.True(t, onlyBase)
}

func TestTraverseReportsOnlyBaseWhenDocIsNil(t *testing.T) {
	h := &Harvester{maxTraversalPages: 10}

	_, _, onlyBase := h.traverse(t.Context(), nil, "https://example.edu/directory", nil)
	assert.True(t, onlyBase)
}
