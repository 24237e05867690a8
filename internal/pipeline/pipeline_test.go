package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gumob/AISummarizer-sub000/internal/article"
	"github.com/gumob/AISummarizer-sub000/internal/classify"
	"github.com/gumob/AISummarizer-sub000/internal/extract"
	"github.com/gumob/AISummarizer-sub000/internal/store"
)

type stubExtractor struct {
	result article.Result
	calls  atomic.Int32
	// blockURL makes the extractor stall on that URL until blockCh closes
	// or the context is cancelled.
	blockURL string
	blockCh  chan struct{}
}

func (s *stubExtractor) Extract(ctx context.Context, src extract.Source) article.Result {
	s.calls.Add(1)
	if s.blockURL != "" && src.URL == s.blockURL {
		select {
		case <-s.blockCh:
		case <-ctx.Done():
			return article.Failure(src.URL, ctx.Err())
		}
	}
	r := s.result
	r.URL = src.URL
	return r
}

func newOrchestrator(t *testing.T, page extract.Extractor) (*Orchestrator, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if page == nil {
		page = &stubExtractor{result: article.Result{Title: "T", Content: "C", IsSuccess: true}}
	}
	return &Orchestrator{
		Classifier: classify.New(nil, nil),
		Store:      st,
		Page:       page,
		YouTube:    &stubExtractor{result: article.Result{Title: "yt", Content: "cc", IsSuccess: true}},
		PDF:        &stubExtractor{result: article.Result{Title: "pdf", Content: "pp", IsSuccess: true}},
	}, st
}

func TestExecute_InvalidURLNoStoreWrite(t *testing.T) {
	o, st := newOrchestrator(t, nil)
	ctx := context.Background()

	for _, u := range []string{
		"ftp://x",
		"chrome://settings",
		"https://chatgpt.com/c/1",
	} {
		res, err := o.Execute(ctx, Request{URL: u})
		if err != nil {
			t.Fatalf("%q: unexpected store error: %v", u, err)
		}
		if res.IsSuccess {
			t.Fatalf("%q: expected rejection", u)
		}
		if res.Err == nil || !strings.Contains(res.Err.Error(), "not extractable") {
			t.Fatalf("%q: expected descriptive rejection, got %v", u, res.Err)
		}
	}
	n, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("rejections must not write to the store, found %d records", n)
	}
}

func TestExecute_SuccessWritesAndNotifies(t *testing.T) {
	o, st := newOrchestrator(t, nil)
	ctx := context.Background()

	var events []Event
	o.Subscribe(SubscriberFunc(func(ev Event) { events = append(events, ev) }))

	res, err := o.Execute(ctx, Request{TabID: 1, URL: "https://example.com/a"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.IsSuccess {
		t.Fatalf("expected success, got %v", res.Err)
	}

	rec, err := st.GetByURL(ctx, "https://example.com/a")
	if err != nil || rec == nil {
		t.Fatalf("expected persisted record, err %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one notification, got %d", len(events))
	}
	if events[0].RecordID != rec.ID {
		t.Fatalf("event must carry the record id")
	}
}

func TestExecute_FailureIsPersisted(t *testing.T) {
	failing := &stubExtractor{result: article.Failure("", errors.New("parser broke"))}
	o, st := newOrchestrator(t, failing)
	ctx := context.Background()

	res, err := o.Execute(ctx, Request{URL: "https://example.com/bad"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.IsSuccess {
		t.Fatalf("expected failure")
	}
	rec, err := st.GetByURL(ctx, "https://example.com/bad")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil || rec.IsSuccess {
		t.Fatalf("failed extraction must be cached, got %+v", rec)
	}
}

func TestExecute_CacheShortCircuit(t *testing.T) {
	stub := &stubExtractor{result: article.Result{Title: "T", Content: "C", IsSuccess: true}}
	o, _ := newOrchestrator(t, stub)
	ctx := context.Background()

	if _, err := o.Execute(ctx, Request{URL: "https://example.com/a"}); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if _, err := o.Execute(ctx, Request{URL: "https://example.com/a"}); err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if n := stub.calls.Load(); n != 1 {
		t.Fatalf("expected cache hit on second call, extractor ran %d times", n)
	}
}

func TestExecute_ForceBypassesCache(t *testing.T) {
	stub := &stubExtractor{result: article.Result{Title: "T", Content: "C", IsSuccess: true}}
	o, _ := newOrchestrator(t, stub)
	ctx := context.Background()

	if _, err := o.Execute(ctx, Request{URL: "https://example.com/a"}); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if _, err := o.Execute(ctx, Request{URL: "https://example.com/a", Force: true}); err != nil {
		t.Fatalf("forced execute: %v", err)
	}
	if n := stub.calls.Load(); n != 2 {
		t.Fatalf("force must re-run the extractor, ran %d times", n)
	}
}

func TestExecute_DispatchesByCategory(t *testing.T) {
	o, _ := newOrchestrator(t, nil)
	ctx := context.Background()

	res, err := o.Execute(ctx, Request{URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Title != "yt" {
		t.Fatalf("expected youtube extractor, got %+v", res)
	}

	res, err = o.Execute(ctx, Request{URL: "https://example.com/doc.pdf"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Title != "pdf" {
		t.Fatalf("expected pdf extractor, got %+v", res)
	}
}

func TestExecute_SupersedingRequestAbortsInFlight(t *testing.T) {
	block := make(chan struct{})
	slow := &stubExtractor{
		result:   article.Result{Title: "T", Content: "C", IsSuccess: true},
		blockURL: "https://example.com/first",
		blockCh:  block,
	}
	o, st := newOrchestrator(t, slow)
	ctx := context.Background()

	firstDone := make(chan article.Result, 1)
	go func() {
		res, _ := o.Execute(ctx, Request{TabID: 7, URL: "https://example.com/first"})
		firstDone <- res
	}()

	// Wait for the first run to register, then supersede it.
	deadline := time.After(2 * time.Second)
	for {
		o.mu.Lock()
		registered := len(o.inflight) > 0
		o.mu.Unlock()
		if registered {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("first request never registered")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := o.Execute(ctx, Request{TabID: 7, URL: "https://example.com/second"}); err != nil {
		t.Fatalf("second execute: %v", err)
	}

	res := <-firstDone
	close(block)
	if res.IsSuccess {
		t.Fatalf("superseded request should fail, got %+v", res)
	}
	if rec, _ := st.GetByURL(context.Background(), "https://example.com/first"); rec != nil {
		t.Fatalf("aborted extraction must not be persisted")
	}
	if rec, _ := st.GetByURL(context.Background(), "https://example.com/second"); rec == nil {
		t.Fatalf("superseding extraction must be persisted")
	}
}

func TestExecute_DeadlineExpiryIsPersistedFailure(t *testing.T) {
	block := make(chan struct{})
	slow := &stubExtractor{
		result:   article.Result{Title: "T", Content: "C", IsSuccess: true},
		blockURL: "https://example.com/slow",
		blockCh:  block,
	}
	o, st := newOrchestrator(t, slow)
	o.Timeout = 20 * time.Millisecond
	defer close(block)

	res, err := o.Execute(context.Background(), Request{TabID: 9, URL: "https://example.com/slow"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.IsSuccess {
		t.Fatalf("expected timeout failure, got %+v", res)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", res.Err)
	}
	rec, err := st.GetByURL(context.Background(), "https://example.com/slow")
	if err != nil || rec == nil {
		t.Fatalf("timed-out extraction must still be recorded, rec=%v err=%v", rec, err)
	}
	if rec.IsSuccess {
		t.Fatalf("recorded timeout must be a failure, got %+v", rec)
	}
}
