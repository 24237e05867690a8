package classify

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gumob/AISummarizer-sub000/internal/services"
)

// Category is the extraction strategy a URL maps to. First match wins in
// the order Invalid, YouTube, PDF, GenericPage.
type Category int

const (
	Invalid Category = iota
	YouTube
	PDF
	GenericPage
)

func (c Category) String() string {
	switch c {
	case YouTube:
		return "youtube"
	case PDF:
		return "pdf"
	case GenericPage:
		return "page"
	default:
		return "invalid"
	}
}

// Reason explains why a URL was rejected.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonEmpty
	ReasonScheme
	ReasonBrowserInternal
	ReasonAIService
	ReasonDenylisted
)

func (r Reason) String() string {
	switch r {
	case ReasonEmpty:
		return "empty url"
	case ReasonScheme:
		return "unsupported scheme"
	case ReasonBrowserInternal:
		return "browser-internal page"
	case ReasonAIService:
		return "ai service page"
	case ReasonDenylisted:
		return "denylisted"
	default:
		return ""
	}
}

// Result carries the category plus whatever the match already learned: the
// rejection reason for Invalid, the video id for YouTube.
type Result struct {
	Category Category
	Reason   Reason
	VideoID  string
}

var browserInternal = regexp.MustCompile(`^(chrome|chrome-extension|brave|edge|opera|vivaldi|about|devtools|view-source)://`)

// Classifier decides the extraction strategy for a URL. It is stateless
// beyond the denylist and the service registry handed in at construction.
// The denylist is swappable at runtime, so access goes through the mutex.
type Classifier struct {
	mu       sync.RWMutex
	denylist *Denylist
	services *services.Registry
}

func New(denylist *Denylist, reg *services.Registry) *Classifier {
	if denylist == nil {
		denylist = ParseDenylist("")
	}
	if reg == nil {
		reg = services.Defaults()
	}
	return &Classifier{denylist: denylist, services: reg}
}

// SetDenylist swaps the denylist, used when settings change at runtime.
func (c *Classifier) SetDenylist(d *Denylist) {
	if d == nil {
		return
	}
	c.mu.Lock()
	c.denylist = d
	c.mu.Unlock()
}

func (c *Classifier) currentDenylist() *Denylist {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.denylist
}

// Classify categorizes a URL. It never fails; anything unrecognizable is
// Invalid.
func (c *Classifier) Classify(rawURL string) Result {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Result{Category: Invalid, Reason: ReasonEmpty}
	}
	if browserInternal.MatchString(strings.ToLower(rawURL)) {
		return Result{Category: Invalid, Reason: ReasonBrowserInternal}
	}
	u, err := url.Parse(rawURL)
	if err != nil || !isHTTPScheme(u) {
		return Result{Category: Invalid, Reason: ReasonScheme}
	}
	if c.services.IsServiceURL(rawURL) {
		return Result{Category: Invalid, Reason: ReasonAIService}
	}
	if c.currentDenylist().Matches(rawURL) {
		return Result{Category: Invalid, Reason: ReasonDenylisted}
	}
	if id := VideoID(u); id != "" {
		return Result{Category: YouTube, VideoID: id}
	}
	if isPDFPath(u) {
		return Result{Category: PDF}
	}
	return Result{Category: GenericPage}
}

// IsInvalid is a convenience for callers that only gate on eligibility.
func (c *Classifier) IsInvalid(rawURL string) bool {
	return c.Classify(rawURL).Category == Invalid
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}

func isPDFPath(u *url.URL) bool {
	// Cheap extension check only; the extractor confirms via Content-Type.
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoID extracts the 11-character YouTube video id, or "" when the URL is
// not a recognizable video page.
func VideoID(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	pick := func(id string) string {
		if videoIDPattern.MatchString(id) {
			return id
		}
		return ""
	}

	switch host {
	case "youtu.be":
		return pick(strings.TrimPrefix(u.Path, "/"))
	case "youtube.com", "youtube-nocookie.com":
	default:
		if !strings.HasSuffix(host, ".youtube.com") {
			return ""
		}
	}

	if u.Path == "/watch" {
		return pick(u.Query().Get("v"))
	}
	for _, prefix := range []string{"/embed/", "/v/", "/shorts/"} {
		if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
			if i := strings.IndexByte(rest, '/'); i >= 0 {
				rest = rest[:i]
			}
			return pick(rest)
		}
	}
	return ""
}

// Denylist is a set of user-supplied regular expressions evaluated against
// the full URL string. Lines that look like comments are ignored, and a
// pattern that fails to compile disables only that line.
type Denylist struct {
	patterns []*regexp.Regexp
}

// ParseDenylist parses the newline-separated pattern text from settings.
func ParseDenylist(text string) *Denylist {
	d := &Denylist{}
	inBlock := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if inBlock {
			if strings.Contains(line, "*/") {
				inBlock = false
			}
			continue
		}
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "/*") {
			if !strings.Contains(line, "*/") {
				inBlock = true
			}
			continue
		}
		re, err := regexp.Compile(line)
		if err != nil {
			log.Debug().Str("pattern", line).Err(err).Msg("skipping invalid denylist pattern")
			continue
		}
		d.patterns = append(d.patterns, re)
	}
	return d
}

// Matches reports whether any pattern matches the URL.
func (d *Denylist) Matches(rawURL string) bool {
	for _, re := range d.patterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Len returns the number of usable patterns.
func (d *Denylist) Len() int { return len(d.patterns) }
