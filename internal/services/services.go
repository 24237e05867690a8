package services

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// EditorKind selects how an adapter populates the compose box of a target
// site: native value assignment for plain inputs, paragraph synthesis for
// contenteditable rich editors.
type EditorKind string

const (
	EditorPlain EditorKind = "plain"
	EditorRich  EditorKind = "rich"
)

// Service describes one target AI chat site. Selectors and URLs are
// configuration data loaded from the services file; nothing in the pipeline
// hardcodes them.
type Service struct {
	Name           string     `yaml:"name"`
	Domains        []string   `yaml:"domains"`
	ComposeURL     string     `yaml:"compose_url"`
	DeepLinkBase   string     `yaml:"deep_link_base"`
	InputSelector  string     `yaml:"input_selector"`
	SubmitSelector string     `yaml:"submit_selector"`
	Editor         EditorKind `yaml:"editor"`
	SettleMinMS    int        `yaml:"settle_min_ms"`
	SettleMaxMS    int        `yaml:"settle_max_ms"`
	PromptTemplate string     `yaml:"prompt_template"`
}

// DeepLink returns the exact URL that identifies a conversation seeded from
// the article with the given cache id. Injection refuses any destination
// that does not match this string.
func (s Service) DeepLink(id string) string {
	return s.DeepLinkBase + id
}

const defaultTemplate = "Summarize the following article.\n\nTitle: {title}\nURL: {url}\n\n{content}"

// Registry holds the known services in declaration order.
type Registry struct {
	services []Service
}

// NewRegistry builds a registry from an explicit service list.
func NewRegistry(list ...Service) *Registry {
	return &Registry{services: list}
}

// Defaults returns the built-in service set. A services file, when given,
// replaces this wholesale rather than merging.
func Defaults() *Registry {
	return &Registry{services: []Service{
		{
			Name:           "chatgpt",
			Domains:        []string{"chatgpt.com", "chat.openai.com"},
			ComposeURL:     "https://chatgpt.com/",
			DeepLinkBase:   "https://chatgpt.com/?aisid=",
			InputSelector:  "#prompt-textarea",
			SubmitSelector: "button[data-testid='send-button']",
			Editor:         EditorRich,
			SettleMinMS:    2000,
			SettleMaxMS:    3000,
			PromptTemplate: defaultTemplate,
		},
		{
			Name:           "claude",
			Domains:        []string{"claude.ai"},
			ComposeURL:     "https://claude.ai/new",
			DeepLinkBase:   "https://claude.ai/new?aisid=",
			InputSelector:  "div[contenteditable='true']",
			SubmitSelector: "button[aria-label='Send message']",
			Editor:         EditorRich,
			SettleMinMS:    2000,
			SettleMaxMS:    3000,
			PromptTemplate: defaultTemplate,
		},
		{
			Name:           "gemini",
			Domains:        []string{"gemini.google.com"},
			ComposeURL:     "https://gemini.google.com/app",
			DeepLinkBase:   "https://gemini.google.com/app?aisid=",
			InputSelector:  "div.ql-editor",
			SubmitSelector: "button.send-button",
			Editor:         EditorRich,
			SettleMinMS:    2000,
			SettleMaxMS:    3000,
			PromptTemplate: defaultTemplate,
		},
		{
			Name:           "deepseek",
			Domains:        []string{"chat.deepseek.com"},
			ComposeURL:     "https://chat.deepseek.com/",
			DeepLinkBase:   "https://chat.deepseek.com/?aisid=",
			InputSelector:  "textarea#chat-input",
			SubmitSelector: "div[role='button'][aria-disabled='false']",
			Editor:         EditorPlain,
			SettleMinMS:    2000,
			SettleMaxMS:    3000,
			PromptTemplate: defaultTemplate,
		},
		{
			Name:           "grok",
			Domains:        []string{"grok.com"},
			ComposeURL:     "https://grok.com/",
			DeepLinkBase:   "https://grok.com/?aisid=",
			InputSelector:  "textarea[aria-label='Ask Grok anything']",
			SubmitSelector: "button[type='submit']",
			Editor:         EditorPlain,
			SettleMinMS:    2000,
			SettleMaxMS:    3000,
			PromptTemplate: defaultTemplate,
		},
	}}
}

// Load reads a YAML services file. The file is a list of Service entries;
// missing template or settle bounds fall back to the defaults.
func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read services file: %w", err)
	}
	var list []Service
	if err := yaml.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("parse services file: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("services file %s defines no services", path)
	}
	for i := range list {
		if list[i].PromptTemplate == "" {
			list[i].PromptTemplate = defaultTemplate
		}
		if list[i].SettleMinMS <= 0 {
			list[i].SettleMinMS = 2000
		}
		if list[i].SettleMaxMS < list[i].SettleMinMS {
			list[i].SettleMaxMS = list[i].SettleMinMS
		}
		if list[i].Editor == "" {
			list[i].Editor = EditorPlain
		}
	}
	return &Registry{services: list}, nil
}

// All returns the services in declaration order.
func (r *Registry) All() []Service {
	return r.services
}

// Lookup returns the service with the given name.
func (r *Registry) Lookup(name string) (Service, bool) {
	for _, s := range r.services {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Service{}, false
}

// Match returns the service whose domain list covers the URL's host.
func (r *Registry) Match(rawURL string) (Service, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return Service{}, false
	}
	host := strings.ToLower(u.Hostname())
	for _, s := range r.services {
		for _, d := range s.Domains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return s, true
			}
		}
	}
	return Service{}, false
}

// IsServiceURL reports whether the URL belongs to any known AI chat site.
// Such pages are never extraction sources.
func (r *Registry) IsServiceURL(rawURL string) bool {
	_, ok := r.Match(rawURL)
	return ok
}
