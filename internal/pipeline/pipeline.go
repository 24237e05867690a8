// Package pipeline dispatches URLs to the matching extractor, records the
// outcome in the article cache, and notifies subscribers. It owns the
// per-tab abort registry so a superseding request cancels the stale one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gumob/AISummarizer-sub000/internal/article"
	"github.com/gumob/AISummarizer-sub000/internal/classify"
	"github.com/gumob/AISummarizer-sub000/internal/extract"
	"github.com/gumob/AISummarizer-sub000/internal/store"
)

// Request asks for one URL to be extracted. HTML optionally carries a DOM
// snapshot from the requesting context; Force bypasses the cache
// short-circuit and always re-runs the extractor.
type Request struct {
	TabID int
	URL   string
	HTML  []byte
	Force bool
}

// Event is broadcast to subscribers after an extraction writes the cache.
type Event struct {
	TabID    int
	URL      string
	RecordID string
	Result   article.Result
}

// Subscriber receives extraction-complete notifications (badge refresh, UI
// updates). Callbacks run synchronously on the extracting goroutine.
type Subscriber interface {
	ExtractionCompleted(ev Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ev Event)

func (f SubscriberFunc) ExtractionCompleted(ev Event) { f(ev) }

// Orchestrator wires classifier, extractors and store together.
type Orchestrator struct {
	Classifier *classify.Classifier
	Store      *store.Store
	Page       extract.Extractor
	YouTube    extract.Extractor
	PDF        extract.Extractor
	// Timeout bounds a single extraction run. Zero means no bound beyond
	// the caller's context.
	Timeout time.Duration
	// Now is swappable for tests.
	Now func() time.Time

	mu          sync.Mutex
	subscribers []Subscriber
	inflight    map[int]context.CancelFunc
}

// Subscribe registers an observer for extraction-complete events.
func (o *Orchestrator) Subscribe(s Subscriber) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers = append(o.subscribers, s)
}

// Execute runs the full extraction flow for one URL. The returned result is
// always meaningful; the error is non-nil only for store failures, which
// are fatal for this operation but not the process.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (article.Result, error) {
	cls := o.Classifier.Classify(req.URL)
	if cls.Category == classify.Invalid {
		// Expected rejection: no cache write, no broadcast.
		return article.Failure(req.URL, fmt.Errorf("url not extractable: %s", cls.Reason)), nil
	}

	if !req.Force {
		if rec, err := o.Store.GetByURL(ctx, req.URL); err != nil {
			return article.Failure(req.URL, err), err
		} else if rec != nil {
			return rec.AsResult(), nil
		}
	}

	ctx, done := o.begin(ctx, req.TabID)
	defer done()

	res := o.dispatch(ctx, cls, req)

	// A superseding request for the same tab cancelled this one: its
	// result is stale and must not clobber the newer write. A deadline
	// expiry is an ordinary failure and still gets recorded.
	if errors.Is(ctx.Err(), context.Canceled) && req.TabID != 0 {
		return article.Failure(req.URL, ctx.Err()), nil
	}

	// The extraction context may already be past its deadline; the record
	// of that failure still has to land, so persist on a detached context.
	persistCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	id, err := o.Store.Upsert(persistCtx, req.URL, res, o.now())
	if err != nil {
		return res, err
	}

	log.Debug().Str("url", req.URL).Str("category", cls.Category.String()).
		Bool("success", res.IsSuccess).Msg("extraction recorded")
	o.notify(Event{TabID: req.TabID, URL: req.URL, RecordID: id, Result: res})
	return res, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, cls classify.Result, req Request) article.Result {
	src := extract.Source{URL: req.URL, VideoID: cls.VideoID, HTML: req.HTML, TabID: req.TabID}
	switch cls.Category {
	case classify.YouTube:
		return o.YouTube.Extract(ctx, src)
	case classify.PDF:
		return o.PDF.Extract(ctx, src)
	default:
		return o.Page.Extract(ctx, src)
	}
}

// begin installs the per-tab cancellation: starting a new extraction for a
// tab aborts the one still in flight for it.
func (o *Orchestrator) begin(ctx context.Context, tabID int) (context.Context, func()) {
	var cancel context.CancelFunc
	if o.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	if tabID == 0 {
		return ctx, cancel
	}

	o.mu.Lock()
	if o.inflight == nil {
		o.inflight = make(map[int]context.CancelFunc)
	}
	if prev, ok := o.inflight[tabID]; ok {
		prev()
	}
	o.inflight[tabID] = cancel
	o.mu.Unlock()

	return ctx, func() {
		o.mu.Lock()
		if cur, ok := o.inflight[tabID]; ok && isSameCancel(cur, cancel) {
			delete(o.inflight, tabID)
		}
		o.mu.Unlock()
		cancel()
	}
}

// isSameCancel compares cancel funcs by identity; it exists only to avoid
// deleting a successor's registration during teardown of an aborted run.
func isSameCancel(a, b context.CancelFunc) bool {
	return fmt.Sprintf("%p", a) == fmt.Sprintf("%p", b)
}

func (o *Orchestrator) notify(ev Event) {
	o.mu.Lock()
	subs := make([]Subscriber, len(o.subscribers))
	copy(subs, o.subscribers)
	o.mu.Unlock()
	for _, s := range subs {
		s.ExtractionCompleted(ev)
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
