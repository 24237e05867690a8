package inject

import (
	"context"
	"fmt"
	"time"

	"github.com/gumob/AISummarizer-sub000/internal/article"
	"github.com/gumob/AISummarizer-sub000/internal/prompt"
	"github.com/gumob/AISummarizer-sub000/internal/services"
)

// TemplateSource resolves a user-edited prompt template for a service. A
// miss falls back to the registry default.
type TemplateSource interface {
	PromptTemplate(ctx context.Context, service string) (string, bool)
}

// Orchestrator validates the destination, builds the prompt, and runs the
// matching adapter.
type Orchestrator struct {
	Services  *services.Registry
	Driver    Driver
	Templates TemplateSource

	// Poll overrides applied to every adapter, for tests.
	PollAttempts int
	PollInterval time.Duration
	Sleep        func(ctx context.Context, d time.Duration) error
}

// Execute injects the article into the service shown at serviceURL. The
// URL must be the exact deep link minted for this article's id: injecting
// into the wrong or stale tab is refused before touching the page.
func (o *Orchestrator) Execute(ctx context.Context, serviceURL string, rec *article.Record) Result {
	if rec == nil {
		return failure(fmt.Errorf("no article to inject"))
	}
	svc, ok := o.Services.Match(serviceURL)
	if !ok {
		return failure(fmt.Errorf("destination %q is not a recognized ai service", serviceURL))
	}
	if want := svc.DeepLink(rec.ID); serviceURL != want {
		return failure(fmt.Errorf("destination mismatch: tab shows %q, article expects %q", serviceURL, want))
	}

	// Drivers that can retarget attach to the tab actually showing the
	// deep link before typing anything.
	if tf, ok := o.Driver.(TabFinder); ok {
		if err := tf.AttachTab(ctx, serviceURL); err != nil {
			return failure(fmt.Errorf("attach %s tab: %w", svc.Name, err))
		}
	}

	tmpl := svc.PromptTemplate
	if o.Templates != nil {
		if t, ok := o.Templates.PromptTemplate(ctx, svc.Name); ok && t != "" {
			tmpl = t
		}
	}
	text, err := prompt.Build(tmpl, prompt.Fields{
		Title:   rec.Title,
		URL:     rec.URL,
		Content: rec.Content,
	})
	if err != nil {
		return failure(err)
	}

	adapter := &Adapter{
		Service:      svc,
		Driver:       o.Driver,
		PollAttempts: o.PollAttempts,
		PollInterval: o.PollInterval,
		Sleep:        o.Sleep,
	}
	return adapter.Inject(ctx, text)
}
