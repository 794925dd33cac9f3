package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	ytapi "github.com/hightemp/youtube-transcript-api-go/api"
	yt "github.com/kkdai/youtube/v2"

	"github.com/TheScottyB/fabric-web/internal/models"
)

// TranscriptProvider turns a video id into ordered timed text segments.
type TranscriptProvider interface {
	FetchSegments(ctx context.Context, videoID string) ([]models.TranscriptSegment, error)
}

// videoURLShape is one recognised way of writing a video link.
type videoURLShape struct {
	name string
	re   *regexp.Regexp
}

// The id must not be followed by another id character, otherwise a longer
// token would be silently truncated to 11 characters.
var videoURLShapes = []videoURLShape{
	{"watch", regexp.MustCompile(`(?:^|//)(?:www\.|m\.)?youtube\.com/watch\?(?:[^#\s]*&)?v=([A-Za-z0-9_-]{11})(?:[^A-Za-z0-9_-]|$)`)},
	{"embed", regexp.MustCompile(`(?:^|//)(?:www\.)?youtube(?:-nocookie)?\.com/embed/([A-Za-z0-9_-]{11})(?:[^A-Za-z0-9_-]|$)`)},
	{"short", regexp.MustCompile(`(?:^|//)youtu\.be/([A-Za-z0-9_-]{11})(?:[/#]|$)`)},
	{"share", regexp.MustCompile(`(?:^|//)youtu\.be/([A-Za-z0-9_-]{11})\?`)},
}

// ExtractVideoID returns the 11-character id from any recognised URL shape.
func ExtractVideoID(rawURL string) (string, bool) {
	id, shape := matchVideoURL(rawURL)
	return id, shape != ""
}

func matchVideoURL(rawURL string) (id, shape string) {
	rawURL = strings.TrimSpace(rawURL)
	for _, s := range videoURLShapes {
		if m := s.re.FindStringSubmatch(rawURL); len(m) == 2 {
			return m[1], s.name
		}
	}
	return "", ""
}

type YouTubeService struct {
	provider TranscriptProvider
	log      *slog.Logger
}

func NewYouTubeService(provider TranscriptProvider, log *slog.Logger) *YouTubeService {
	if log == nil {
		log = slog.Default()
	}
	return &YouTubeService{provider: provider, log: log}
}

// NewTranscriptProvider picks the provider named in configuration.
func NewTranscriptProvider(name string, languages []string) (TranscriptProvider, error) {
	switch name {
	case "", "api":
		return &transcriptAPIProvider{
			api:       ytapi.NewYouTubeTranscriptApi(),
			languages: languages,
		}, nil
	case "player":
		lang := "en"
		if len(languages) > 0 {
			lang = languages[0]
		}
		return &playerProvider{client: &yt.Client{}, language: lang}, nil
	default:
		return nil, fmt.Errorf("unknown transcript provider %q", name)
	}
}

// Resolve fetches the transcript for a video URL. The title is the raw id;
// language is echoed back only when the caller supplied one.
func (s *YouTubeService) Resolve(ctx context.Context, rawURL, language string) (*models.TranscriptResult, error) {
	videoID, shape := matchVideoURL(rawURL)
	if shape == "" {
		return nil, &ResolutionError{URL: rawURL}
	}

	segments, err := s.provider.FetchSegments(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transcript for %s: %w", videoID, err)
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	s.log.DebugContext(ctx, "transcript fetched", "video_id", videoID, "url_shape", shape, "segments", len(segments))

	result := &models.TranscriptResult{
		Transcript: strings.Join(texts, " "),
		Title:      videoID,
	}
	if strings.TrimSpace(language) != "" {
		result.Language = language
	}
	return result, nil
}

// transcriptAPIProvider reads the public timedtext track.
type transcriptAPIProvider struct {
	api       *ytapi.YouTubeTranscriptApi
	languages []string
}

func (p *transcriptAPIProvider) FetchSegments(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	transcript, err := p.api.GetTranscript(videoID, p.languages)
	if err != nil {
		return nil, err
	}

	segments := make([]models.TranscriptSegment, 0, len(transcript.Entries))
	for _, entry := range transcript.Entries {
		segments = append(segments, models.TranscriptSegment{Text: entry.Text})
	}
	return segments, nil
}

// playerProvider reads the caption track exposed by the player response.
type playerProvider struct {
	client   *yt.Client
	language string
}

func (p *playerProvider) FetchSegments(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	video, err := p.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video metadata: %w", err)
	}

	transcript, err := p.client.GetTranscriptCtx(ctx, video, p.language)
	if err != nil {
		return nil, err
	}

	segments := make([]models.TranscriptSegment, 0, len(transcript))
	for _, seg := range transcript {
		segments = append(segments, models.TranscriptSegment{
			Text:     seg.Text,
			StartMs:  seg.StartMs,
			Duration: seg.Duration,
		})
	}
	return segments, nil
}
