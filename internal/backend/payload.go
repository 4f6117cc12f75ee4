package backend

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/jscyril/supersonic/api"
	playerrors "github.com/jscyril/supersonic/pkg/errors"
	"github.com/samber/lo"
)

const (
	defaultSampleRate = 48000
	defaultFormat     = "unknown"
)

// StreamInfo is a validated response from the extraction endpoint
type StreamInfo struct {
	URL      string
	MimeType string
	Quality  api.AudioQuality
}

type extractPayload struct {
	URL       string  `json:"url"`
	DirectURL string  `json:"directUrl"`
	MimeType  string  `json:"mimeType"`
	Bitrate   float64 `json:"bitrate"`
	Format    string  `json:"format"`
	Hz        int     `json:"hz"`
}

// NormalizeBitrate converts a bit/s figure to kbps. Values that already
// look like kbps are returned as is.
func NormalizeBitrate(bitrate float64) int {
	if bitrate > 1000 {
		return int(math.Round(bitrate / 1000))
	}
	return int(math.Round(bitrate))
}

func (p extractPayload) validate(base *url.URL) (*StreamInfo, error) {
	raw := strings.TrimSpace(p.URL)
	if raw == "" {
		return nil, fmt.Errorf("%w: missing url", playerrors.ErrMalformedPayload)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: bad url: %v", playerrors.ErrMalformedPayload, err)
	}
	if !u.IsAbs() && base != nil {
		u = base.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: url %q is not http(s)", playerrors.ErrMalformedPayload, raw)
	}

	info := &StreamInfo{
		URL:      u.String(),
		MimeType: p.MimeType,
		Quality: api.AudioQuality{
			Format:       p.Format,
			BitrateKbps:  NormalizeBitrate(p.Bitrate),
			SampleRateHz: p.Hz,
		},
	}
	if info.Quality.Format == "" {
		info.Quality.Format = defaultFormat
	}
	if info.Quality.SampleRateHz <= 0 {
		info.Quality.SampleRateHz = defaultSampleRate
	}
	return info, nil
}

type videoPayload struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	ChannelTitle    string  `json:"channelTitle"`
	Artist          string  `json:"artist"`
	ChannelID       string  `json:"channelId"`
	Thumbnail       string  `json:"thumbnail"`
	Duration        string  `json:"duration"`
	DurationSeconds float64 `json:"durationSeconds"`
}

func (v videoPayload) valid() bool {
	return strings.TrimSpace(v.ID) != "" && strings.TrimSpace(v.Title) != ""
}

func (v videoPayload) track() api.Track {
	artist := v.ChannelTitle
	if artist == "" {
		artist = v.Artist
	}
	return api.Track{
		ID:              v.ID,
		Title:           v.Title,
		Artist:          artist,
		ArtistID:        v.ChannelID,
		Thumbnail:       v.Thumbnail,
		Duration:        v.Duration,
		DurationSeconds: v.DurationSeconds,
	}
}

type autoplayPayload struct {
	Queue []videoPayload `json:"queue"`
	Error string         `json:"error"`
}

func (p autoplayPayload) tracks() []api.Track {
	valid := lo.Filter(p.Queue, func(v videoPayload, _ int) bool { return v.valid() })
	return lo.Map(valid, func(v videoPayload, _ int) api.Track { return v.track() })
}

type songPayload struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	ChannelID string `json:"channelId,omitempty"`
	Thumbnail string `json:"thumbnail"`
}

type trackPlayRequest struct {
	Song songPayload `json:"song"`
}

type prefetchRequest struct {
	VideoIDs []string `json:"videoIds"`
}
