// Package youtube extracts video transcripts by scraping the watch page's
// embedded player response and fetching the selected caption track.
package youtube

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/gumob/AISummarizer-sub000/internal/article"
	"github.com/gumob/AISummarizer-sub000/internal/extract"
	"github.com/gumob/AISummarizer-sub000/internal/fetch"
)

// ErrNoCaptions marks videos that simply have no caption tracks. It is an
// expected condition, distinct from network or parse errors.
var ErrNoCaptions = errors.New("no caption tracks available")

// Extractor implements extract.Extractor for YouTube watch pages.
type Extractor struct {
	// Fetcher should carry credentials (WithCookies) because some caption
	// payloads are only served to an authenticated session.
	Fetcher *fetch.Client
	// PreferredLang is the caller's language tag ("en", "ja", ...), used
	// as the second track-selection priority.
	PreferredLang string
}

// Extract implements extract.Extractor.
func (e *Extractor) Extract(ctx context.Context, src extract.Source) article.Result {
	return extract.Guard(src.URL, func() article.Result {
		watchURL := src.URL
		if src.VideoID != "" {
			watchURL = "https://www.youtube.com/watch?v=" + src.VideoID
		}
		body := src.HTML
		if len(body) == 0 {
			resp, err := e.Fetcher.Get(ctx, watchURL)
			if err != nil {
				return article.Failure(src.URL, fmt.Errorf("fetch watch page: %w", err))
			}
			body = resp.Body
		}

		pr, err := parsePlayerResponse(body)
		if err != nil {
			return article.Failure(src.URL, fmt.Errorf("parse player response: %w", err))
		}
		videoID := src.VideoID
		if videoID == "" {
			videoID = pr.VideoDetails.VideoID
		}

		track, ok := pr.selectTrack(e.PreferredLang)
		if !ok {
			return article.Failure(src.URL, ErrNoCaptions)
		}

		resp, err := e.Fetcher.Get(ctx, track.BaseURL)
		if err != nil {
			return article.Failure(src.URL, fmt.Errorf("fetch captions: %w", err))
		}
		segs, err := ParseTimedText(resp.Body)
		if err != nil {
			return article.Failure(src.URL, fmt.Errorf("parse captions: %w", err))
		}
		if len(segs) == 0 {
			return article.Failure(src.URL, ErrNoCaptions)
		}

		text := RenderTranscript(videoID, GroupSegments(segs, 60))
		return article.Success(src.URL, pr.VideoDetails.Title, track.LanguageCode, text)
	})
}

// playerResponse mirrors the slice of ytInitialPlayerResponse this package
// needs, nothing more.
type playerResponse struct {
	VideoDetails struct {
		VideoID string `json:"videoId"`
		Title   string `json:"title"`
	} `json:"videoDetails"`
	Captions struct {
		Renderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
			AudioTracks   []struct {
				CaptionTrackIndices      []int `json:"captionTrackIndices"`
				DefaultCaptionTrackIndex *int  `json:"defaultCaptionTrackIndex"`
			} `json:"audioTracks"`
			DefaultAudioTrackIndex int `json:"defaultAudioTrackIndex"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// selectTrack picks a caption track by priority: the default audio track's
// caption index, then the preferred language's primary subtag, then the
// first available track.
func (pr *playerResponse) selectTrack(preferredLang string) (captionTrack, bool) {
	r := pr.Captions.Renderer
	if len(r.CaptionTracks) == 0 {
		return captionTrack{}, false
	}
	if i := r.DefaultAudioTrackIndex; i >= 0 && i < len(r.AudioTracks) {
		if di := r.AudioTracks[i].DefaultCaptionTrackIndex; di != nil {
			if *di >= 0 && *di < len(r.CaptionTracks) {
				return r.CaptionTracks[*di], true
			}
		}
	}
	if base, ok := primarySubtag(preferredLang); ok {
		for _, t := range r.CaptionTracks {
			if b, ok := primarySubtag(t.LanguageCode); ok && b == base {
				return t, true
			}
		}
	}
	return r.CaptionTracks[0], true
}

func primarySubtag(tag string) (string, bool) {
	t, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return "", false
	}
	b, _ := t.Base()
	return b.String(), true
}

const playerResponseMarker = "ytInitialPlayerResponse"

// parsePlayerResponse locates the embedded player response JSON in the
// watch page and decodes it. The blob is found by marker and delimited by
// brace counting, since it is an assignment inside a script tag, not a
// standalone document.
func parsePlayerResponse(page []byte) (*playerResponse, error) {
	s := string(page)
	idx := strings.Index(s, playerResponseMarker)
	if idx < 0 {
		return nil, errors.New("player response not found")
	}
	start := strings.IndexByte(s[idx:], '{')
	if start < 0 {
		return nil, errors.New("player response blob not found")
	}
	start += idx

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var pr playerResponse
				// Missing index means "no default audio track", not slot 0.
				pr.Captions.Renderer.DefaultAudioTrackIndex = -1
				if err := json.Unmarshal([]byte(s[start:i+1]), &pr); err != nil {
					return nil, fmt.Errorf("decode player response: %w", err)
				}
				return &pr, nil
			}
		}
	}
	return nil, errors.New("player response blob is truncated")
}

// Segment is one timed caption entry.
type Segment struct {
	Start float64
	Text  string
}

type timedText struct {
	Texts []struct {
		Start float64 `xml:"start,attr"`
		Dur   float64 `xml:"dur,attr"`
		Body  string  `xml:",chardata"`
	} `xml:"text"`
}

// ParseTimedText decodes a timedtext XML caption payload.
func ParseTimedText(payload []byte) ([]Segment, error) {
	var tt timedText
	if err := xml.Unmarshal(payload, &tt); err != nil {
		return nil, err
	}
	segs := make([]Segment, 0, len(tt.Texts))
	for _, t := range tt.Texts {
		body := strings.TrimSpace(t.Body)
		if body == "" {
			continue
		}
		segs = append(segs, Segment{Start: t.Start, Text: body})
	}
	return segs, nil
}

// Block is a run of segments rendered as one transcript line.
type Block struct {
	Start    float64
	Segments []Segment
}

// GroupSegments splits segments into blocks: a new block starts whenever a
// segment begins thresholdSec or more after the current block's start.
func GroupSegments(segs []Segment, thresholdSec float64) []Block {
	var blocks []Block
	for _, seg := range segs {
		if len(blocks) == 0 || seg.Start-blocks[len(blocks)-1].Start >= thresholdSec {
			blocks = append(blocks, Block{Start: seg.Start})
		}
		last := &blocks[len(blocks)-1]
		last.Segments = append(last.Segments, seg)
	}
	return blocks
}

// RenderTranscript renders each block as a single line prefixed by a
// clickable timestamp deep link into the video.
func RenderTranscript(videoID string, blocks []Block) string {
	var b strings.Builder
	for i, blk := range blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		sec := int(blk.Start)
		fmt.Fprintf(&b, "[%s](https://youtu.be/%s?t=%ds) ", FormatTimestamp(sec), videoID, sec)
		for j, seg := range blk.Segments {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

// FormatTimestamp renders seconds as MM:SS, or HH:MM:SS past an hour.
func FormatTimestamp(sec int) string {
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
