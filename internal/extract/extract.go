// Package extract defines the extractor contract and the generic page
// extractor. Extractors never fail loudly: every error, panic included, is
// converted into an unsuccessful result with the cause attached.
package extract

import (
	"context"
	"fmt"

	"github.com/gumob/AISummarizer-sub000/internal/article"
)

// Source describes what an extractor has to work with. HTML carries the
// page snapshot when the requesting context already has the live DOM; when
// empty the extractor fetches the URL itself.
type Source struct {
	URL     string
	VideoID string
	HTML    []byte
	TabID   int
}

// Extractor converts a source into a normalized article result. It must not
// return errors or panic past this boundary; failures are results with
// IsSuccess false.
type Extractor interface {
	Extract(ctx context.Context, src Source) article.Result
}

// Guard wraps an extraction function so a panic inside a parser becomes a
// failed result instead of taking down the caller.
func Guard(url string, fn func() article.Result) (res article.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = article.Failure(url, fmt.Errorf("extractor panic: %v", r))
		}
	}()
	return fn()
}
