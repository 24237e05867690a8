package inject

import (
	"context"
	"fmt"
	"html"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gumob/AISummarizer-sub000/internal/retry"
	"github.com/gumob/AISummarizer-sub000/internal/services"
)

// Result is what an injection attempt reports back to the caller. Failures
// leave whatever was typed in place; the adapter never tries to roll back a
// partially populated editor.
type Result struct {
	Success bool
	Err     error
}

func failure(err error) Result { return Result{Err: err} }

const (
	defaultPollAttempts = 10
	defaultPollInterval = time.Second
	postInputSettle     = 500 * time.Millisecond
)

// Adapter drives one service's compose UI through the shared skeleton:
// settle delay, poll for the editor, populate it the way its editor kind
// requires, settle again, poll for the submit control, click.
type Adapter struct {
	Service services.Service
	Driver  Driver

	// PollAttempts/PollInterval bound every element wait. Zero values take
	// the defaults (10 attempts, 1s apart).
	PollAttempts int
	PollInterval time.Duration

	// Rand and Sleep are swappable for tests.
	Rand  func(n int) int
	Sleep func(ctx context.Context, d time.Duration) error
}

// Inject populates and submits the prompt. Every failure comes back as a
// result with the error attached; nothing escapes as a panic.
func (a *Adapter) Inject(ctx context.Context, promptText string) Result {
	if strings.TrimSpace(promptText) == "" {
		return failure(fmt.Errorf("%s: empty prompt", a.Service.Name))
	}

	// The settle delay hides the tail of the target page's editor mount;
	// the element polls below handle the rest.
	if err := a.sleep(ctx, a.settleDelay()); err != nil {
		return failure(err)
	}

	if err := a.waitFor(ctx, a.Service.InputSelector); err != nil {
		return failure(fmt.Errorf("%s: input element %q not found: %w",
			a.Service.Name, a.Service.InputSelector, err))
	}

	if err := a.populate(ctx, promptText); err != nil {
		return failure(fmt.Errorf("%s: populate editor: %w", a.Service.Name, err))
	}

	if err := a.sleep(ctx, postInputSettle); err != nil {
		return failure(err)
	}

	if err := a.waitFor(ctx, a.Service.SubmitSelector); err != nil {
		return failure(fmt.Errorf("%s: submit element %q not found: %w",
			a.Service.Name, a.Service.SubmitSelector, err))
	}
	if err := a.Driver.Click(ctx, a.Service.SubmitSelector); err != nil {
		return failure(fmt.Errorf("%s: submit: %w", a.Service.Name, err))
	}

	log.Debug().Str("service", a.Service.Name).Msg("prompt injected")
	return Result{Success: true}
}

// populate writes the prompt into the editor according to its kind.
func (a *Adapter) populate(ctx context.Context, promptText string) error {
	sel := a.Service.InputSelector
	if a.Service.Editor == services.EditorRich {
		if err := a.Driver.SetInnerHTML(ctx, sel, RichParagraphs(promptText)); err != nil {
			return err
		}
		return a.Driver.DispatchEvent(ctx, sel, "input")
	}
	if err := a.Driver.SetValue(ctx, sel, promptText); err != nil {
		return err
	}
	for _, ev := range []string{"input", "change", "blur"} {
		if err := a.Driver.DispatchEvent(ctx, sel, ev); err != nil {
			return err
		}
	}
	return nil
}

// RichParagraphs converts prompt text into the paragraph markup rich
// editors expect: one <p> per line, blank lines becoming break paragraphs.
func RichParagraphs(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			b.WriteString("<p><br></p>")
			continue
		}
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</p>")
	}
	return b.String()
}

func (a *Adapter) waitFor(ctx context.Context, selector string) error {
	attempts := a.PollAttempts
	if attempts <= 0 {
		attempts = defaultPollAttempts
	}
	interval := a.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return retry.Poll(ctx, attempts, interval, func(ctx context.Context) error {
		found, err := a.Driver.Exists(ctx, selector)
		if err != nil {
			return retry.Permanent(err)
		}
		if !found {
			return fmt.Errorf("no match for %q", selector)
		}
		return nil
	})
}

func (a *Adapter) settleDelay() time.Duration {
	min, max := a.Service.SettleMinMS, a.Service.SettleMaxMS
	if min <= 0 {
		min = 2000
	}
	if max < min {
		max = min
	}
	span := max - min
	if span == 0 {
		return time.Duration(min) * time.Millisecond
	}
	r := a.Rand
	if r == nil {
		r = rand.Intn
	}
	return time.Duration(min+r(span+1)) * time.Millisecond
}

func (a *Adapter) sleep(ctx context.Context, d time.Duration) error {
	if a.Sleep != nil {
		return a.Sleep(ctx, d)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
