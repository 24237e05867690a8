package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gumob/AISummarizer-sub000/internal/extract"
	"github.com/gumob/AISummarizer-sub000/internal/fetch"
)

func TestGroupSegments_BoundaryCondition(t *testing.T) {
	segs := []Segment{
		{Start: 0, Text: "a"},
		{Start: 10, Text: "b"},
		{Start: 59, Text: "c"},
		{Start: 61, Text: "d"},
		{Start: 120, Text: "e"},
	}
	blocks := GroupSegments(segs, 60)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Start != 0 || blocks[1].Start != 61 {
		t.Fatalf("expected blocks starting at [0, 61], got [%v, %v]", blocks[0].Start, blocks[1].Start)
	}
	if len(blocks[0].Segments) != 3 || len(blocks[1].Segments) != 2 {
		t.Fatalf("expected 3+2 segments, got %d+%d", len(blocks[0].Segments), len(blocks[1].Segments))
	}
}

func TestGroupSegments_ExactThresholdStartsNewBlock(t *testing.T) {
	blocks := GroupSegments([]Segment{{Start: 0, Text: "a"}, {Start: 60, Text: "b"}}, 60)
	if len(blocks) != 2 {
		t.Fatalf("start - groupStart >= 60 must open a new block, got %d blocks", len(blocks))
	}
}

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		sec  int
		want string
	}{
		{0, "00:00"},
		{61, "01:01"},
		{599, "09:59"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}
	for _, tc := range cases {
		if got := FormatTimestamp(tc.sec); got != tc.want {
			t.Fatalf("FormatTimestamp(%d) = %q, want %q", tc.sec, got, tc.want)
		}
	}
}

func TestRenderTranscript_TimestampLinks(t *testing.T) {
	blocks := GroupSegments([]Segment{
		{Start: 0, Text: "hello"},
		{Start: 5, Text: "world"},
		{Start: 75, Text: "later"},
	}, 60)
	text := RenderTranscript("dQw4w9WgXcQ", blocks)
	lines := strings.Split(text, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), text)
	}
	if !strings.HasPrefix(lines[0], "[00:00](https://youtu.be/dQw4w9WgXcQ?t=0s)") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[0], "hello world") {
		t.Fatalf("block segments must join on one line: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[01:15](https://youtu.be/dQw4w9WgXcQ?t=75s)") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestParseTimedText(t *testing.T) {
	payload := `<?xml version="1.0" encoding="utf-8"?>
<transcript>
  <text start="0" dur="2.5">first &amp; second</text>
  <text start="2.5" dur="3">   </text>
  <text start="5.5" dur="2">third</text>
</transcript>`
	segs, err := ParseTimedText([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("blank entries must be dropped, got %d segments", len(segs))
	}
	if segs[0].Text != "first & second" {
		t.Fatalf("entities must be decoded, got %q", segs[0].Text)
	}
	if segs[1].Start != 5.5 {
		t.Fatalf("unexpected start %v", segs[1].Start)
	}
}

func playerResponsePage(tracksJSON string) string {
	return `<html><body><script>var ytInitialPlayerResponse = {
  "videoDetails": {"videoId": "dQw4w9WgXcQ", "title": "Demo {video}"},
  "captions": {"playerCaptionsTracklistRenderer": ` + tracksJSON + `}
};</script></body></html>`
}

func TestParsePlayerResponse_BraceCounting(t *testing.T) {
	page := playerResponsePage(`{"captionTracks": [{"baseUrl": "http://x", "languageCode": "en"}]}`)
	pr, err := parsePlayerResponse([]byte(page))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// Braces inside JSON strings must not confuse the scanner.
	if pr.VideoDetails.Title != "Demo {video}" {
		t.Fatalf("unexpected title %q", pr.VideoDetails.Title)
	}
	if len(pr.Captions.Renderer.CaptionTracks) != 1 {
		t.Fatalf("expected one track")
	}
}

func TestParsePlayerResponse_Missing(t *testing.T) {
	if _, err := parsePlayerResponse([]byte("<html><body>nothing here</body></html>")); err == nil {
		t.Fatalf("expected error when the blob is absent")
	}
}

func TestSelectTrack_DefaultAudioTrackFirst(t *testing.T) {
	page := playerResponsePage(`{
  "captionTracks": [
    {"baseUrl": "http://en", "languageCode": "en"},
    {"baseUrl": "http://ja", "languageCode": "ja"}
  ],
  "audioTracks": [{"captionTrackIndices": [0, 1], "defaultCaptionTrackIndex": 1}],
  "defaultAudioTrackIndex": 0
}`)
	pr, err := parsePlayerResponse([]byte(page))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	track, ok := pr.selectTrack("en")
	if !ok {
		t.Fatalf("expected a track")
	}
	if track.LanguageCode != "ja" {
		t.Fatalf("default audio caption index must win over preferred language, got %q", track.LanguageCode)
	}
}

func TestSelectTrack_PreferredLanguageSecond(t *testing.T) {
	page := playerResponsePage(`{
  "captionTracks": [
    {"baseUrl": "http://fr", "languageCode": "fr"},
    {"baseUrl": "http://en-us", "languageCode": "en-US"}
  ]
}`)
	pr, err := parsePlayerResponse([]byte(page))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	track, ok := pr.selectTrack("en")
	if !ok {
		t.Fatalf("expected a track")
	}
	if track.LanguageCode != "en-US" {
		t.Fatalf("expected primary-subtag match, got %q", track.LanguageCode)
	}
}

func TestSelectTrack_FallsBackToFirst(t *testing.T) {
	page := playerResponsePage(`{
  "captionTracks": [
    {"baseUrl": "http://fr", "languageCode": "fr"},
    {"baseUrl": "http://de", "languageCode": "de"}
  ]
}`)
	pr, err := parsePlayerResponse([]byte(page))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	track, ok := pr.selectTrack("ja")
	if !ok || track.LanguageCode != "fr" {
		t.Fatalf("expected first track fallback, got %+v ok=%v", track, ok)
	}
}

func TestExtract_NoCaptionsIsExpectedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(playerResponsePage(`{"captionTracks": []}`)))
	}))
	defer srv.Close()

	e := &Extractor{Fetcher: &fetch.Client{}, PreferredLang: "en"}
	res := e.Extract(context.Background(), extract.Source{URL: srv.URL})
	if res.IsSuccess {
		t.Fatalf("expected failure without captions")
	}
	if !errors.Is(res.Err, ErrNoCaptions) {
		t.Fatalf("expected ErrNoCaptions, got %v", res.Err)
	}
}

func TestExtract_FullTranscriptFlow(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/captions" {
			w.Header().Set("Content-Type", "text/xml")
			_, _ = w.Write([]byte(`<transcript>
  <text start="0" dur="2">intro line</text>
  <text start="61" dur="2">second block</text>
</transcript>`))
			return
		}
		page := playerResponsePage(fmt.Sprintf(
			`{"captionTracks": [{"baseUrl": "%s/captions", "languageCode": "en"}]}`, srv.URL))
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	e := &Extractor{Fetcher: &fetch.Client{}, PreferredLang: "en"}
	res := e.Extract(context.Background(), extract.Source{URL: srv.URL})
	if !res.IsSuccess {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Title != "Demo {video}" {
		t.Fatalf("unexpected title %q", res.Title)
	}
	if res.Lang != "en" {
		t.Fatalf("unexpected lang %q", res.Lang)
	}
	lines := strings.Split(res.Content, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 transcript lines, got %d: %q", len(lines), res.Content)
	}
	if !strings.Contains(lines[0], "intro line") || !strings.Contains(lines[1], "second block") {
		t.Fatalf("unexpected transcript %q", res.Content)
	}
	if !strings.Contains(lines[1], "?t=61s") {
		t.Fatalf("expected timestamp deep link, got %q", lines[1])
	}
}
