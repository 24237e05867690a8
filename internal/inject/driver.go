// Package inject drives the compose UI of a target AI chat site: wait for
// the editor, populate it, wait for the submit control, click. Adapters are
// configuration-driven; the Driver abstracts the browser session.
package inject

import "context"

// Driver is the minimal page-automation surface an adapter needs. The
// production implementation speaks the Chrome DevTools Protocol; tests use
// an in-memory fake.
type Driver interface {
	// Navigate loads a URL in the driven tab.
	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the driven tab's location.
	CurrentURL(ctx context.Context) (string, error)
	// Exists reports whether a selector currently matches an element.
	Exists(ctx context.Context, selector string) (bool, error)
	// SetValue assigns the native value of an input or textarea.
	SetValue(ctx context.Context, selector, value string) error
	// SetInnerHTML replaces the markup of a rich (contenteditable) editor.
	SetInnerHTML(ctx context.Context, selector, html string) error
	// DispatchEvent fires a bubbling DOM event ("input", "change", "blur")
	// on the matched element.
	DispatchEvent(ctx context.Context, selector, event string) error
	// Click clicks the matched element; it fails when the element is
	// missing or not actionable (e.g. disabled).
	Click(ctx context.Context, selector string) error
}

// TabFinder is implemented by drivers that can retarget themselves at an
// already-open tab by URL. The orchestrator uses it when present so the
// injection lands in the tab the user is looking at.
type TabFinder interface {
	AttachTab(ctx context.Context, url string) error
}
