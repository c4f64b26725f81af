package harvester

import (
	"context"
	"encoding/json"
	"hash/crc32"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxAjaxPages     = 50
	defaultAjaxPath  = "/views/ajax"
	drupalSelector   = `script[data-drupal-selector="drupal-settings-json"]`
)

type drupalSettings struct {
	Views struct {
		AjaxPath  string                    `json:"ajax_path"`
		AjaxViews map[string]ajaxViewConfig `json:"ajaxViews"`
	} `json:"views"`
	AjaxPageState struct {
		Theme      string `json:"theme"`
		ThemeToken string `json:"theme_token"`
		Libraries  string `json:"libraries"`
	} `json:"ajaxPageState"`
}

type ajaxViewConfig struct {
	ViewName       string `json:"view_name"`
	ViewDisplayID  string `json:"view_display_id"`
	ViewArgs       string `json:"view_args"`
	ViewPath       string `json:"view_path"`
	ViewDomID      string `json:"view_dom_id"`
	PagerElement   int    `json:"pager_element"`
}

type ajaxCommand struct {
	Command string `json:"command"`
	Data    string `json:"data"`
}

// tryCMSAjax detects a Drupal Views AJAX/infinite-scroll directory and
// paginates through it, accumulating profiles until the server stops
// returning new content or a repeated response body signals an infinite
// loop.
func (h *Harvester) tryCMSAjax(ctx context.Context, doc *goquery.Document, baseURL string) []Profile {
	settingsScript := doc.Find(drupalSelector).First()
	if settingsScript.Length() == 0 {
		return nil
	}

	var settings drupalSettings
	if err := json.Unmarshal([]byte(settingsScript.Text()), &settings); err != nil {
		return nil
	}

	if len(settings.Views.AjaxViews) == 0 {
		return nil
	}

	viewCfg := selectBestView(doc, settings.Views.AjaxViews)
	if viewCfg == nil {
		return nil
	}

	ajaxPath := settings.Views.AjaxPath
	if ajaxPath == "" {
		ajaxPath = defaultAjaxPath
	}

	apiURL := resolveURL(baseURL, ajaxPath)
	formInputs := extractFormState(doc)

	accumulated := extractCards(doc, baseURL)
	seen := map[string]bool{}

	for _, p := range accumulated {
		seen[p.URL] = true
	}

	var lastFragHash uint32

	hasLastHash := false

	for page := 0; page <= maxAjaxPages; page++ {
		payload := buildAjaxPayload(*viewCfg, settings, formInputs, page)

		commands, body, ok := h.fetchAjaxCommands(ctx, apiURL, baseURL, payload, page == 0)
		if !ok {
			break
		}

		newFound := false

		for _, cmd := range commands {
			if cmd.Command != "insert" || strings.TrimSpace(cmd.Data) == "" {
				continue
			}

			fragDoc, err := goquery.NewDocumentFromReader(strings.NewReader(cmd.Data))
			if err != nil {
				continue
			}

			for _, p := range extractCards(fragDoc, baseURL) {
				if !seen[p.URL] {
					seen[p.URL] = true
					accumulated = append(accumulated, p)
					newFound = true
				}
			}
		}

		if !newFound && page > 0 {
			break
		}

		fragHash := crc32.ChecksumIEEE(body)
		if hasLastHash && fragHash == lastFragHash {
			break
		}

		lastFragHash = fragHash
		hasLastHash = true
	}

	return accumulated
}

// fetchAjaxCommands posts one AJAX page request to apiURL. Some Drupal 8/9
// sites serve the Views AJAX endpoint on the directory page itself rather
// than at the advertised ajax_path; when the first page comes back as
// something other than JSON, this retries once against baseURL before
// giving up.
func (h *Harvester) fetchAjaxCommands(ctx context.Context, apiURL, baseURL string, payload url.Values, allowBaseURLFallback bool) ([]ajaxCommand, []byte, bool) {
	commands, body, ok := h.postAjaxPage(ctx, apiURL, baseURL, payload)
	if ok {
		return commands, body, true
	}

	if !allowBaseURLFallback || apiURL == baseURL {
		return nil, nil, false
	}

	return h.postAjaxPage(ctx, baseURL, baseURL, payload)
}

func (h *Harvester) postAjaxPage(ctx context.Context, endpoint, referer string, payload url.Values) ([]ajaxCommand, []byte, bool) {
	resp, err := h.http.PostForm(ctx, endpoint, payload, map[string]string{
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          referer,
		"Accept":           "application/json, text/javascript, */*; q=0.01",
	})
	if err != nil || !resp.OK() {
		return nil, nil, false
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
		return nil, nil, false
	}

	var commands []ajaxCommand
	if err := json.Unmarshal(resp.Body, &commands); err != nil {
		return nil, nil, false
	}

	return commands, resp.Body, true
}

func selectBestView(doc *goquery.Document, views map[string]ajaxViewConfig) *ajaxViewConfig {
	var (
		best      *ajaxViewConfig
		bestScore int
	)

	for id := range views {
		cfg := views[id]
		if cfg.ViewDomID == "" {
			continue
		}

		container := doc.Find(".js-view-dom-id-" + cfg.ViewDomID)
		if container.Length() == 0 {
			continue
		}

		score := 0

		container.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			if len(href) > 5 && !strings.HasPrefix(href, "http") &&
				!strings.HasPrefix(href, "mailto") && !strings.HasPrefix(href, "#") {
				score++
			}
		})

		if score > bestScore {
			bestScore = score
			cfgCopy := cfg
			best = &cfgCopy
		}
	}

	return best
}

func extractFormState(doc *goquery.Document) map[string]string {
	form := doc.Find("form.views-exposed-form").First()
	if form.Length() == 0 {
		return nil
	}

	inputs := map[string]string{}

	form.Find("input").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok {
			return
		}

		value, _ := s.Attr("value")
		inputs[name] = value
	})

	form.Find("select").Each(func(_ int, s *goquery.Selection) {
		if name, ok := s.Attr("name"); ok {
			inputs[name] = ""
		}
	})

	return inputs
}

func buildAjaxPayload(cfg ajaxViewConfig, settings drupalSettings, formInputs map[string]string, page int) url.Values {
	payload := url.Values{}
	payload.Set("view_name", cfg.ViewName)
	payload.Set("view_display_id", cfg.ViewDisplayID)
	payload.Set("_view_name", cfg.ViewName)
	payload.Set("_view_display_id", cfg.ViewDisplayID)
	payload.Set("view_args", cfg.ViewArgs)
	payload.Set("view_path", cfg.ViewPath)
	payload.Set("view_dom_id", cfg.ViewDomID)
	payload.Set("pager_element", strconv.Itoa(cfg.PagerElement))
	payload.Set("page", strconv.Itoa(page))
	payload.Set("_drupal_ajax", "1")
	payload.Set("ajax_page_state[theme]", settings.AjaxPageState.Theme)
	payload.Set("ajax_page_state[theme_token]", settings.AjaxPageState.ThemeToken)
	payload.Set("ajax_page_state[libraries]", settings.AjaxPageState.Libraries)

	if _, ok := formInputs["form_id"]; !ok {
		payload.Set("form_id", "views_exposed_form")
	}

	for k, v := range formInputs {
		payload.Set(k, v)
	}

	return payload
}
