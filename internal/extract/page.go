package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/gumob/AISummarizer-sub000/internal/article"
	"github.com/gumob/AISummarizer-sub000/internal/fetch"
)

// Page extracts readable text from ordinary HTML pages. It runs
// go-readability first and falls back to a structural walker when the
// readability pass yields nothing usable.
type Page struct {
	Fetcher *fetch.Client
}

// Extract implements Extractor.
func (p *Page) Extract(ctx context.Context, src Source) article.Result {
	return Guard(src.URL, func() article.Result {
		body := src.HTML
		if len(body) == 0 {
			resp, err := p.Fetcher.Get(ctx, src.URL)
			if err != nil {
				return article.Failure(src.URL, fmt.Errorf("fetch page: %w", err))
			}
			if resp.ContentType != "" && !fetch.IsHTMLContentType(resp.ContentType) {
				return article.Failure(src.URL, fmt.Errorf("not an html page: %s", resp.ContentType))
			}
			body = resp.Body
		}
		return FromHTML(src.URL, body)
	})
}

// FromHTML extracts title, language and readable text from an HTML
// document. Exposed separately so snapshot-based callers skip the fetch.
func FromHTML(pageURL string, body []byte) article.Result {
	u, _ := url.Parse(pageURL)

	title, text := runReadability(body, u)
	if strings.TrimSpace(text) == "" {
		// Readability rejected the page layout; the walker is cruder but
		// handles sparse or non-article markup.
		title2, text2 := walkDocument(body)
		if title == "" {
			title = title2
		}
		text = text2
	}
	if strings.TrimSpace(text) == "" {
		return article.Failure(pageURL, errors.New("no readable content"))
	}
	if title == "" {
		title = fallbackTitle(pageURL)
	}
	return article.Success(pageURL, title, docLang(body), text)
}

func runReadability(body []byte, u *url.URL) (title, text string) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Interface("cause", r).Msg("readability panic, falling back to walker")
			title, text = "", ""
		}
	}()
	a, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return "", ""
	}
	return strings.TrimSpace(a.Title), a.TextContent
}

// fallbackTitle derives a last-resort title from the URL path.
func fallbackTitle(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return pageURL
	}
	seg := strings.Trim(u.Path, "/")
	if i := strings.LastIndexByte(seg, '/'); i >= 0 {
		seg = seg[i+1:]
	}
	if seg == "" {
		return u.Hostname()
	}
	return seg
}

// docLang returns the lang attribute of the root html element, "" when
// absent.
func docLang(body []byte) string {
	node, err := html.Parse(bytes.NewReader(body))
	if err != nil || node == nil {
		return ""
	}
	root := firstElement(node, "html")
	if root == nil {
		return ""
	}
	for _, attr := range root.Attr {
		if strings.EqualFold(attr.Key, "lang") {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}

// walkDocument is the structural fallback: prefer <main> or <article>,
// fall back to <body>, skip boilerplate, and collect block-level text.
func walkDocument(body []byte) (string, string) {
	node, err := html.Parse(bytes.NewReader(body))
	if err != nil || node == nil {
		return "", ""
	}
	title := documentTitle(node)
	var content *html.Node
	for _, tag := range []string{"main", "article", "body"} {
		if content = firstElement(node, tag); content != nil {
			break
		}
	}
	var b strings.Builder
	if content != nil {
		collectText(&b, content, false)
	}
	return title, b.String()
}

func documentTitle(root *html.Node) string {
	t := firstElement(root, "title")
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return strings.TrimSpace(t.FirstChild.Data)
}

// firstElement returns the first element with the given tag in document
// order, walking iteratively.
func firstElement(root *html.Node, tag string) *html.Node {
	stack := []*html.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
			return n
		}
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
	return nil
}

func collectText(b *strings.Builder, n *html.Node, inPre bool) {
	if n.Type == html.ElementNode {
		if isBoilerplate(n) {
			return
		}
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "nav", "footer", "aside", "iframe", "header", "form", "button":
			return
		case "pre", "code":
			inPre = true
		case "br", "hr":
			b.WriteString("\n")
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol", "blockquote", "tr":
			b.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			data = strings.ReplaceAll(data, "\t", " ")
			data = strings.ReplaceAll(data, "\r", " ")
		}
		b.WriteString(data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre)
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "blockquote", "tr":
			b.WriteString("\n")
		case "pre", "code":
			b.WriteString("\n")
		}
	}
}

// isBoilerplate flags cookie banners, consent dialogs and share widgets by
// their id/class markers.
func isBoilerplate(n *html.Node) bool {
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "id" && key != "class" && key != "role" && key != "aria-label" {
			continue
		}
		val := strings.ToLower(attr.Val)
		for _, marker := range []string{"cookie", "consent", "gdpr", "social-share", "newsletter", "advert"} {
			if strings.Contains(val, marker) {
				return true
			}
		}
	}
	return false
}
