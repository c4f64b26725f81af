// Package render drives a headless Chrome instance to fetch JS-hydrated
// directory pages the static HTML fetcher can't see, grounded in chromedp's
// context/ListenTarget idiom for resource blocking and load-more polling.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ErrBrowserUnavailable signals the renderer could not start a browser at
// all (no Chromium binary, disabled by config). The harvester treats this
// as a strategy failure and falls through to the next strategy rather than
// aborting the whole harvest.
var ErrBrowserUnavailable = errors.New("headless browser unavailable")

const (
	defaultTimeout       = 20 * time.Second
	hydrationWait        = 1500 * time.Millisecond
	loadMoreClickWait    = 800 * time.Millisecond
	maxLoadMoreClicks    = 10
	scrollStep           = 2000
	consentButtonTimeout = 2 * time.Second
)

// consentSelectors are common cookie-consent dismiss buttons across
// university CMS themes.
var consentSelectors = []string{
	`button#onetrust-accept-btn-handler`,
	`button[aria-label="Accept all"]`,
	`button.cookie-accept`,
	`.cc-btn.cc-allow`,
}

// loadMoreSelectors are common "load more" / "show more" pagination
// triggers on JS-hydrated directory pages.
var loadMoreSelectors = []string{
	`button.load-more`,
	`a.load-more`,
	`[data-load-more]`,
	`button:has-text("Load more")`,
}

// Config controls renderer behavior.
type Config struct {
	Enabled bool
	Timeout time.Duration

	// OnPageRendered, if set, is invoked with the fully hydrated HTML
	// before the renderer returns. Callers can use it to persist a debug
	// snapshot without the renderer itself doing any file I/O.
	OnPageRendered func(html string)
}

// Renderer runs a single headless Chrome navigation per Render call.
type Renderer struct {
	cfg Config
}

// New builds a Renderer. It does not start a browser eagerly; Render starts
// and tears down a fresh browser process per call so concurrent harvester
// goroutines don't share mutable browser state.
func New(cfg Config) *Renderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Renderer{cfg: cfg}
}

// Render navigates to url, dismisses cookie-consent overlays, waits for
// hydration, clicks through "load more" pagination, scrolls to trigger
// lazy-loaded content, and returns the resulting outerHTML.
func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	if !r.cfg.Enabled {
		return "", ErrBrowserUnavailable
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	browserCtx, timeoutCancel := context.WithTimeout(browserCtx, r.cfg.Timeout)
	defer timeoutCancel()

	if err := chromedp.Run(browserCtx, network.Enable(), fetch.Enable().WithPatterns([]*fetch.RequestPattern{
		{URLPattern: "*"},
	})); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBrowserUnavailable, err)
	}

	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		e, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}

		switch e.ResourceType {
		case network.ResourceTypeImage, network.ResourceTypeStylesheet,
			network.ResourceTypeMedia, network.ResourceTypeFont:
			_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(browserCtx)
		default:
			_ = fetch.ContinueRequest(e.RequestID).Do(browserCtx)
		}
	})

	var html string

	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(hydrationWait),
		chromedp.ActionFunc(dismissConsent),
		chromedp.ActionFunc(clickLoadMoreUntilExhausted),
		chromedp.ActionFunc(scrollToBottom),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	if r.cfg.OnPageRendered != nil {
		r.cfg.OnPageRendered(html)
	}

	return html, nil
}

func dismissConsent(ctx context.Context) error {
	for _, sel := range consentSelectors {
		clickCtx, cancel := context.WithTimeout(ctx, consentButtonTimeout)
		err := chromedp.Click(sel, chromedp.ByQuery).Do(clickCtx)
		cancel()

		if err == nil {
			return nil
		}
	}

	return nil
}

func clickLoadMoreUntilExhausted(ctx context.Context) error {
	for i := 0; i < maxLoadMoreClicks; i++ {
		clicked := false

		for _, sel := range loadMoreSelectors {
			clickCtx, cancel := context.WithTimeout(ctx, consentButtonTimeout)
			err := chromedp.Click(sel, chromedp.ByQuery).Do(clickCtx)
			cancel()

			if err == nil {
				clicked = true

				break
			}
		}

		if !clicked {
			return nil
		}

		if err := chromedp.Sleep(loadMoreClickWait).Do(ctx); err != nil {
			return nil
		}
	}

	return nil
}

func scrollToBottom(ctx context.Context) error {
	return chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", scrollStep), nil).Do(ctx)
}
