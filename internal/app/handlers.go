package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gumob/AISummarizer-sub000/internal/article"
	"github.com/gumob/AISummarizer-sub000/internal/classify"
	"github.com/gumob/AISummarizer-sub000/internal/pipeline"
	"github.com/gumob/AISummarizer-sub000/internal/router"
	"github.com/gumob/AISummarizer-sub000/internal/store"
)

const (
	settingDenylist       = "settings.denylist"
	settingColorScheme    = "settings.color_scheme"
	settingAutoExtraction = "settings.auto_extraction"
	settingTemplatePrefix = "settings.template."
)

// settingsTemplates serves user-edited prompt templates from the settings
// table; injection prefers these over the registry defaults.
type settingsTemplates struct {
	store *store.Store
}

func (s settingsTemplates) PromptTemplate(ctx context.Context, service string) (string, bool) {
	v, err := s.store.Setting(ctx, settingTemplatePrefix+strings.ToLower(service))
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (a *App) registerHandlers() {
	a.Router.Handle(router.PingServiceWorker, pong)
	a.Router.Handle(router.PingContentScript, pong)
	a.Router.Handle(router.TabUpdated, a.handleTabUpdated)
	a.Router.Handle(router.ExtractArticle, a.handleExtract)
	a.Router.Handle(router.InjectArticle, a.handleInject)
	a.Router.Handle(router.OpenAIService, a.handleOpenService)
	a.Router.Handle(router.ReadArticleForClipboard, a.handleClipboardRead)
	a.Router.Handle(router.WriteArticleToClipboard, a.handleClipboardWrite)
	a.Router.Handle(router.SettingsUpdated, a.handleSettings)
	a.Router.Handle(router.ColorSchemeChanged, a.handleColorScheme)
}

func pong(ctx context.Context, msg router.Message) router.Response {
	return router.OK("pong")
}

// extractionView is the wire shape of an extraction outcome.
type extractionView struct {
	RecordID string `json:"record_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

func viewOf(recordID string, res article.Result) extractionView {
	v := extractionView{RecordID: recordID, Title: res.Title, Success: res.IsSuccess}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}

// handleTabUpdated runs the automatic extraction pass for a navigated tab.
// Invalid URLs and a disabled auto-extraction toggle both answer success
// with no record: neither is an error from the sender's point of view.
func (a *App) handleTabUpdated(ctx context.Context, msg router.Message) router.Response {
	var p router.TabUpdatedPayload
	if err := msg.Decode(&p); err != nil {
		return router.Fail(err)
	}
	if v, err := a.Store.Setting(ctx, settingAutoExtraction); err == nil && v == "false" {
		return router.OK(nil)
	}
	if a.Classifier.IsInvalid(p.URL) {
		return router.OK(nil)
	}
	res, err := a.Pipeline.Execute(ctx, pipeline.Request{
		TabID: p.TabID, URL: p.URL, HTML: []byte(p.HTML),
	})
	if err != nil {
		return router.Fail(err)
	}
	return router.OK(viewOf(a.recordIDFor(ctx, p.URL), res))
}

func (a *App) handleExtract(ctx context.Context, msg router.Message) router.Response {
	var p router.ExtractArticlePayload
	if err := msg.Decode(&p); err != nil {
		return router.Fail(err)
	}
	res, err := a.Pipeline.Execute(ctx, pipeline.Request{
		TabID: p.TabID, URL: p.URL, HTML: []byte(p.HTML), Force: p.Force,
	})
	if err != nil {
		return router.Fail(err)
	}
	if !res.IsSuccess {
		return router.Response{Success: false, Error: errString(res.Err),
			Data: viewOf("", res)}
	}
	return router.OK(viewOf(a.recordIDFor(ctx, p.URL), res))
}

func (a *App) handleInject(ctx context.Context, msg router.Message) router.Response {
	var p router.InjectArticlePayload
	if err := msg.Decode(&p); err != nil {
		return router.Fail(err)
	}
	if a.Injector == nil {
		return router.Fail(fmt.Errorf("no browser attached, injection unavailable"))
	}
	rec, err := a.Store.GetByID(ctx, p.ArticleID)
	if err != nil {
		return router.Fail(err)
	}
	if rec == nil {
		return router.Fail(fmt.Errorf("article %q not found", p.ArticleID))
	}
	if !rec.IsSuccess {
		return router.Fail(fmt.Errorf("article %q has no extracted content", p.ArticleID))
	}
	res := a.Injector.Execute(ctx, p.ServiceURL, rec)
	if !res.Success {
		return router.Fail(res.Err)
	}
	return router.OK(nil)
}

// handleOpenService resolves where a service conversation should open. With
// a driver attached it also navigates there; without one the caller gets
// the URL back and owns the navigation.
func (a *App) handleOpenService(ctx context.Context, msg router.Message) router.Response {
	var p router.OpenAIServicePayload
	if err := msg.Decode(&p); err != nil {
		return router.Fail(err)
	}
	svc, ok := a.Services.Lookup(p.Service)
	if !ok {
		return router.Fail(fmt.Errorf("unknown service %q", p.Service))
	}
	target := svc.ComposeURL
	if p.ArticleID != "" {
		target = svc.DeepLink(p.ArticleID)
	}
	if a.Injector != nil {
		if err := a.Injector.Driver.Navigate(ctx, target); err != nil {
			return router.Fail(fmt.Errorf("open %s: %w", svc.Name, err))
		}
	}
	return router.OK(map[string]string{"url": target})
}

func (a *App) handleClipboardRead(ctx context.Context, msg router.Message) router.Response {
	var p router.ClipboardReadPayload
	if err := msg.Decode(&p); err != nil {
		return router.Fail(err)
	}
	rec, err := a.Store.GetByURL(ctx, p.URL)
	if err != nil {
		return router.Fail(err)
	}
	if rec == nil || !rec.IsSuccess {
		return router.Fail(fmt.Errorf("no extracted article for %q", p.URL))
	}
	return router.OK(router.ClipboardWritePayload{Text: clipboardText(rec)})
}

// handleClipboardWrite acknowledges the write; the bridge client owns the
// actual clipboard on its side of the channel.
func (a *App) handleClipboardWrite(ctx context.Context, msg router.Message) router.Response {
	var p router.ClipboardWritePayload
	if err := msg.Decode(&p); err != nil {
		return router.Fail(err)
	}
	if p.Text == "" {
		return router.Fail(fmt.Errorf("nothing to write"))
	}
	return router.OK(nil)
}

func clipboardText(rec *article.Record) string {
	var b strings.Builder
	b.WriteString(rec.Title)
	b.WriteString("\n")
	b.WriteString(rec.URL)
	b.WriteString("\n\n")
	b.WriteString(rec.Content)
	return b.String()
}

// handleSettings replaces the stored settings snapshot and hot-reloads the
// classifier denylist. The whole payload applies or none of it does, from
// the caller's perspective: a store error answers failure without a partial
// reload.
func (a *App) handleSettings(ctx context.Context, msg router.Message) router.Response {
	var p router.SettingsPayload
	if err := msg.Decode(&p); err != nil {
		return router.Fail(err)
	}
	known := make(map[string]bool)
	for _, svc := range a.Services.All() {
		known[strings.ToLower(svc.Name)] = true
	}
	for name := range p.Templates {
		if !known[strings.ToLower(name)] {
			return router.Fail(fmt.Errorf("template for unknown service %q", name))
		}
	}
	if err := a.Store.SetSetting(ctx, settingDenylist, p.Denylist); err != nil {
		return router.Fail(err)
	}
	for name, tmpl := range p.Templates {
		if err := a.Store.SetSetting(ctx, settingTemplatePrefix+strings.ToLower(name), tmpl); err != nil {
			return router.Fail(err)
		}
	}
	if p.AutoExtraction != nil {
		v := "true"
		if !*p.AutoExtraction {
			v = "false"
		}
		if err := a.Store.SetSetting(ctx, settingAutoExtraction, v); err != nil {
			return router.Fail(err)
		}
	}
	a.Classifier.SetDenylist(classify.ParseDenylist(p.Denylist))
	if p.ClearCache {
		if err := a.Store.Clear(ctx); err != nil {
			return router.Fail(err)
		}
		log.Info().Msg("article cache cleared by settings update")
	}
	return router.OK(nil)
}

func (a *App) handleColorScheme(ctx context.Context, msg router.Message) router.Response {
	var p router.ColorSchemePayload
	if err := msg.Decode(&p); err != nil {
		return router.Fail(err)
	}
	if p.Scheme != "light" && p.Scheme != "dark" && p.Scheme != "system" {
		return router.Fail(fmt.Errorf("unknown color scheme %q", p.Scheme))
	}
	if err := a.Store.SetSetting(ctx, settingColorScheme, p.Scheme); err != nil {
		return router.Fail(err)
	}
	return router.OK(nil)
}

func (a *App) recordIDFor(ctx context.Context, url string) string {
	rec, err := a.Store.GetByURL(ctx, url)
	if err != nil || rec == nil {
		return ""
	}
	return rec.ID
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
