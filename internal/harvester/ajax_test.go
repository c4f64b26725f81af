package harvester

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/faculty-harvest/internal/httpclient"
)

const drupalPageHTML = `
<html><body>
<div class="view-content js-view-dom-id-abc123">
	<a href="/faculty/base-one">Base One</a>
</div>
<form class="views-exposed-form">
	<input name="field_department" value="cs">
	<select name="field_year"></select>
</form>
<script data-drupal-selector="drupal-settings-json">
{
	"views": {
		"ajax_path": "/views/ajax",
		"ajaxViews": {
			"views_dom_id:abc123": {
				"view_name": "faculty",
				"view_display_id": "page_1",
				"view_args": "",
				"view_path": "/directory",
				"view_dom_id": "abc123",
				"pager_element": 0
			}
		}
	},
	"ajaxPageState": {"theme": "custom", "theme_token": "", "libraries": ""}
}
</script>
</body></html>`

func TestTryCMSAjaxPaginatesUntilExhausted(t *testing.T) {
	var requests int

	mux := http.NewServeMux()
	mux.HandleFunc("/views/ajax", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		page := r.FormValue("page")

		var commands []ajaxCommand

		switch page {
		case "0":
			commands = []ajaxCommand{{
				Command: "insert",
				Data:    `<div class="people-item"><h3>Page Zero Person</h3><a href="/faculty/page-zero">Profile</a></div>`,
			}}
		case "1":
			commands = []ajaxCommand{{
				Command: "insert",
				Data:    `<div class="people-item"><h3>Page One Person</h3><a href="/faculty/page-one">Profile</a></div>`,
			}}
		default:
			commands = []ajaxCommand{}
		}

		requests++

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(commands)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := httpclient.New(httpclient.Config{Timeout: 5 * time.Second, RequestsPerSec: 1000})
	require.NoError(t, err)

	h := &Harvester{http: client}

	doc := mustDoc(t, drupalPageHTML)
	profiles := h.tryCMSAjax(t.Context(), doc, srv.URL)

	require.GreaterOrEqual(t, len(profiles), 2)

	names := map[string]bool{}
	for _, p := range profiles {
		names[p.Name] = true
	}

	assert.True(t, names["Page Zero Person"])
	assert.True(t, names["Page One Person"])
}

func TestTryCMSAjaxReturnsNilWithoutDrupalSettings(t *testing.T) {
	h := &Harvester{}
	doc := mustDoc(t, `<html><body><div class="people-list"></div></body></html>`)

	profiles := h.tryCMSAjax(t.Context(), doc, "https://example.edu/directory")
	assert.Nil(t, profiles)
}

func TestSelectBestViewPicksHighestInternalLinkCount(t *testing.T) {
	doc := mustDoc(t, `
	<div class="js-view-dom-id-low"><a href="/faculty/one">One</a></div>
	<div class="js-view-dom-id-high">
		<a href="/faculty/one">One</a>
		<a href="/faculty/two">Two</a>
		<a href="http://external.com/three">Three</a>
	</div>`)

	views := map[string]ajaxViewConfig{
		"low":  {ViewDomID: "low"},
		"high": {ViewDomID: "high"},
	}

	best := selectBestView(doc, views)
	require.NotNil(t, best)
	assert.Equal(t, "high", best.ViewDomID)
}

func TestExtractFormStateCollectsInputsAndSelects(t *testing.T) {
	doc := mustDoc(t, `
	<form class="views-exposed-form">
		<input name="field_department" value="cs">
		<input name="field_keyword" value="">
		<select name="field_year"></select>
	</form>`)

	state := extractFormState(doc)

	assert.Equal(t, "cs", state["field_department"])
	assert.Equal(t, "", state["field_keyword"])
	assert.Equal(t, "", state["field_year"])
}

func TestBuildAjaxPayloadSetsBothKeyVariants(t *testing.T) {
	cfg := ajaxViewConfig{ViewName: "faculty", ViewDisplayID: "page_1", ViewDomID: "abc123"}
	payload := buildAjaxPayload(cfg, drupalSettings{}, map[string]string{"field_department": "cs"}, 2)

	assert.Equal(t, "faculty", payload.Get("view_name"))
	assert.Equal(t, "faculty", payload.Get("_view_name"))
	assert.Equal(t, "page_1", payload.Get("view_display_id"))
	assert.Equal(t, "2", payload.Get("page"))
	assert.Equal(t, "cs", payload.Get("field_department"))
	assert.Equal(t, "views_exposed_form", payload.Get("form_id"))
}
