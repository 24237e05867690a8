// Package pdftext extracts the text layer of PDF documents fetched from a
// URL: metadata title (falling back to the filename), then page-ordered
// text runs.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"github.com/gumob/AISummarizer-sub000/internal/article"
	"github.com/gumob/AISummarizer-sub000/internal/extract"
	"github.com/gumob/AISummarizer-sub000/internal/fetch"
)

// Extractor implements extract.Extractor for PDF URLs.
type Extractor struct {
	Fetcher *fetch.Client
}

var pdfMagic = []byte("%PDF")

// Extract implements extract.Extractor.
func (e *Extractor) Extract(ctx context.Context, src extract.Source) article.Result {
	return extract.Guard(src.URL, func() article.Result {
		resp, err := e.Fetcher.Get(ctx, src.URL)
		if err != nil {
			return article.Failure(src.URL, fmt.Errorf("fetch pdf: %w", err))
		}
		// The classifier only did a cheap extension check; confirm here.
		if !fetch.IsPDFContentType(resp.ContentType) && !bytes.HasPrefix(resp.Body, pdfMagic) {
			return article.Failure(src.URL, fmt.Errorf("not a pdf document: %s", resp.ContentType))
		}

		title, text, err := ReadDocument(resp.Body)
		if err != nil {
			return article.Failure(src.URL, fmt.Errorf("read pdf: %w", err))
		}
		if strings.TrimSpace(text) == "" {
			return article.Failure(src.URL, errors.New("pdf has no extractable text"))
		}
		if title == "" {
			title = TitleFromURL(src.URL)
		}
		return article.Success(src.URL, title, "", text)
	})
}

// ReadDocument parses PDF bytes and returns the metadata title (possibly
// empty) and the concatenated page text in page order, runs joined by
// single spaces.
func ReadDocument(b []byte) (string, string, error) {
	r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", "", err
	}

	title := metadataTitle(r)

	var sb strings.Builder
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// A single damaged page should not lose the rest.
			log.Debug().Int("page", i).Err(err).Msg("skipping unreadable pdf page")
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strings.Join(strings.Fields(text), " "))
	}
	return title, sb.String(), nil
}

func metadataTitle(r *pdf.Reader) (title string) {
	// Info dictionaries are frequently malformed; never let them abort
	// the text extraction.
	defer func() {
		if rec := recover(); rec != nil {
			title = ""
		}
	}()
	v := r.Trailer().Key("Info").Key("Title")
	if v.IsNull() {
		return ""
	}
	return strings.TrimSpace(v.Text())
}

// TitleFromURL derives a title from the URL path's filename, with the
// extension dropped and percent-encoding decoded.
func TitleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return rawURL
	}
	name := path.Base(u.Path)
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	if name == "" || name == "/" || name == "." {
		return u.Hostname()
	}
	return name
}
