// Package prompt builds the text handed to an injection adapter from a
// per-service template and the article fields.
package prompt

import (
	"fmt"
	"strings"
)

// Fields are the article values a template may reference. All three are
// required: building with a missing field fails outright rather than
// producing a partially substituted prompt.
type Fields struct {
	Title   string
	URL     string
	Content string
}

// Build substitutes {title}, {url} and {content} into the template.
func Build(template string, f Fields) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("prompt: empty template")
	}
	for name, v := range map[string]string{"title": f.Title, "url": f.URL, "content": f.Content} {
		if v == "" {
			return "", fmt.Errorf("prompt: article is missing %s", name)
		}
	}
	r := strings.NewReplacer(
		"{title}", f.Title,
		"{url}", f.URL,
		"{content}", f.Content,
	)
	return r.Replace(template), nil
}
