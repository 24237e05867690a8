package article

import (
	"strings"
	"time"
)

// Result is the normalized outcome of a single extraction attempt. A
// successful result always carries both a title and content; a failed one
// carries neither, only the error that explains it.
type Result struct {
	Title   string
	Lang    string
	URL     string
	Content string

	IsSuccess bool
	Err       error
}

// Success builds a successful result. Content is normalized here so every
// extractor produces the same whitespace discipline.
func Success(url, title, lang, content string) Result {
	return Result{
		Title:     strings.TrimSpace(title),
		Lang:      lang,
		URL:       url,
		Content:   Normalize(content),
		IsSuccess: true,
	}
}

// Failure builds a failed result. Title and content stay empty so the
// success invariant holds.
func Failure(url string, err error) Result {
	return Result{URL: url, Err: err}
}

// Record is the persisted form of a result, one per distinct URL. ID is
// generated at first insert and survives later overwrites for the same URL.
type Record struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Lang      string    `json:"lang,omitempty"`
	Content   string    `json:"content"`
	Date      time.Time `json:"date"`
	IsSuccess bool      `json:"is_success"`
}

// AsResult converts a cached record back into the result shape callers of
// the extraction pipeline expect.
func (r Record) AsResult() Result {
	return Result{
		Title:     r.Title,
		Lang:      r.Lang,
		URL:       r.URL,
		Content:   r.Content,
		IsSuccess: r.IsSuccess,
	}
}

// Normalize applies the shared whitespace pass: runs of spaces and tabs
// collapse to a single space, leading whitespace is stripped per line, blank
// lines and runs of newlines collapse to a single newline, and trailing
// newlines are removed. Normalize is idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(collapseSpaces(line))
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}
