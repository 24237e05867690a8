package inject

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// CDPDriver drives a Chrome tab over the DevTools Protocol. It attaches to
// an already-running browser (the one whose tab shows the target service)
// rather than launching its own.
type CDPDriver struct {
	// browser is the root attachment; ctx is the current tab (or the
	// browser itself before any AttachTab).
	browser   context.Context
	ctx       context.Context
	cancelTab context.CancelFunc
}

// NewCDPDriver connects to a browser's DevTools websocket endpoint. The
// returned cleanup detaches without closing the user's browser.
func NewCDPDriver(ctx context.Context, devtoolsURL string) (*CDPDriver, func(), error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, devtoolsURL)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	// Touch the browser so a bad endpoint fails here, not mid-injection.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, nil, fmt.Errorf("attach devtools: %w", err)
	}
	cleanup := func() {
		cancelBrowser()
		cancelAlloc()
	}
	return &CDPDriver{browser: browserCtx, ctx: browserCtx}, cleanup, nil
}

func (d *CDPDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	// chromedp actions must run on the browser context chain; derive a
	// cancellable child so the caller's deadline also stops the action
	// instead of leaving it driving the page.
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (d *CDPDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

// AttachTab retargets the driver at the already-open tab showing url, so
// the injection lands in the tab the user is looking at instead of a fresh
// one.
func (d *CDPDriver) AttachTab(ctx context.Context, url string) error {
	infos, err := chromedp.Targets(d.browser)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	var tab *target.Info
	for _, info := range infos {
		if info.Type == "page" && info.URL == url {
			tab = info
			break
		}
	}
	if tab == nil {
		return fmt.Errorf("no open tab shows %q", url)
	}
	if d.cancelTab != nil {
		d.cancelTab()
	}
	d.ctx, d.cancelTab = chromedp.NewContext(d.browser, chromedp.WithTargetID(tab.TargetID))
	return nil
}

func (d *CDPDriver) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := d.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (d *CDPDriver) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf(`document.querySelector(%s) !== null`, strconv.Quote(selector))
	if err := d.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return false, err
	}
	return found, nil
}

func (d *CDPDriver) SetValue(ctx context.Context, selector, value string) error {
	return d.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (d *CDPDriver) SetInnerHTML(ctx context.Context, selector, html string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.innerHTML = %s;
		return true;
	})()`, strconv.Quote(selector), strconv.Quote(html))
	var ok bool
	if err := d.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("element %q not found", selector)
	}
	return nil
}

func (d *CDPDriver) DispatchEvent(ctx context.Context, selector, event string) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.dispatchEvent(new Event(%s, { bubbles: true }));
		return true;
	})()`, strconv.Quote(selector), strconv.Quote(event))
	var ok bool
	if err := d.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("element %q not found", selector)
	}
	return nil
}

func (d *CDPDriver) Click(ctx context.Context, selector string) error {
	// Refuse disabled controls; a click on them silently does nothing.
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return "missing";
		if (el.disabled || el.getAttribute("aria-disabled") === "true") return "disabled";
		return "ok";
	})()`, strconv.Quote(selector))
	var state string
	if err := d.run(ctx, chromedp.Evaluate(expr, &state)); err != nil {
		return err
	}
	switch state {
	case "missing":
		return fmt.Errorf("element %q not found", selector)
	case "disabled":
		return fmt.Errorf("element %q is not actionable", selector)
	}
	return d.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}
