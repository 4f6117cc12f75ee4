package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jscyril/supersonic/api"
	playerrors "github.com/jscyril/supersonic/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// MaxPrefetchBatch is the largest id list the backend accepts per call.
const MaxPrefetchBatch = 5

// Client talks to the backend proxy
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient creates a client for the backend rooted at baseURL
func NewClient(baseURL string, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.Named("backend"),
	}, nil
}

// SetTimeout sets the per-request timeout for JSON calls
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// endpoint resolves an already escaped path against the base URL.
func (c *Client) endpoint(path string, query url.Values) string {
	ref := &url.URL{Path: path}
	if raw, err := url.PathUnescape(path); err == nil && raw != path {
		ref = &url.URL{Path: raw, RawPath: path}
	}
	u := c.baseURL.ResolveReference(ref)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// classify turns a transport or status failure into a resolution kind.
func classify(err error, status int) error {
	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || isTimeout(err)):
		return playerrors.ErrTimeout
	case err != nil:
		return playerrors.ErrNetwork
	case status == http.StatusNotFound:
		return playerrors.ErrNotFound
	default:
		return playerrors.ErrNetwork
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func (c *Client) getJSON(ctx context.Context, trackID, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return playerrors.NewResolutionError(trackID, playerrors.ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return playerrors.NewResolutionError(trackID, classify(err, 0), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return playerrors.NewResolutionError(trackID, classify(nil, resp.StatusCode),
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return playerrors.NewResolutionError(trackID, playerrors.ErrMalformedPayload, err)
	}
	return nil
}

// ResolveStream asks the extraction endpoint for a playable URL
func (c *Client) ResolveStream(ctx context.Context, trackID, quality string) (*StreamInfo, error) {
	endpoint := c.endpoint("extract/"+url.PathEscape(trackID), url.Values{"quality": {quality}})

	var payload extractPayload
	if err := c.getJSON(ctx, trackID, endpoint, &payload); err != nil {
		return nil, err
	}

	info, err := payload.validate(c.baseURL)
	if err != nil {
		return nil, playerrors.NewResolutionError(trackID, playerrors.ErrMalformedPayload, err)
	}

	c.log.Debug("stream resolved",
		zap.String("track", trackID),
		zap.String("quality", quality),
		zap.String("format", info.Quality.Format),
		zap.Int("kbps", info.Quality.BitrateKbps))
	return info, nil
}

// AutoplayQueue fetches up to count tracks related to seedID
func (c *Client) AutoplayQueue(ctx context.Context, seedID string, count int) ([]api.Track, error) {
	endpoint := c.endpoint("autoplay/"+url.PathEscape(seedID), url.Values{"count": {strconv.Itoa(count)}})

	var payload autoplayPayload
	if err := c.getJSON(ctx, seedID, endpoint, &payload); err != nil {
		return nil, err
	}
	if payload.Error != "" {
		c.log.Warn("autoplay backend reported error", zap.String("seed", seedID), zap.String("error", payload.Error))
	}

	tracks := payload.tracks()
	if dropped := len(payload.Queue) - len(tracks); dropped > 0 {
		c.log.Debug("dropped malformed autoplay entries", zap.Int("count", dropped))
	}
	return tracks, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}

// TrackPlay reports a play for recommendation personalisation
func (c *Client) TrackPlay(ctx context.Context, track api.Track) error {
	return c.postJSON(ctx, "track/play", trackPlayRequest{Song: songPayload{
		ID:        track.ID,
		Title:     track.Title,
		Artist:    track.Artist,
		ChannelID: track.ArtistID,
		Thumbnail: track.Thumbnail,
	}})
}

// Prefetch asks the backend to warm its extraction cache for ids, in
// batches the backend accepts.
func (c *Client) Prefetch(ctx context.Context, ids []string) error {
	for _, batch := range lo.Chunk(ids, MaxPrefetchBatch) {
		if err := c.postJSON(ctx, "prefetch", prefetchRequest{VideoIDs: batch}); err != nil {
			return err
		}
	}
	return nil
}

// OpenStream opens the raw audio stream for trackID starting at byte
// offset. The returned size is -1 when the server does not report it.
func (c *Client) OpenStream(ctx context.Context, trackID, quality string, offset int64) (io.ReadCloser, int64, error) {
	endpoint := c.endpoint("stream/"+url.PathEscape(trackID), url.Values{"quality": {quality}})
	return OpenURL(ctx, c.streamClient(), endpoint, offset)
}

// streamClient has no overall timeout; stream bodies are long lived and
// bounded by ctx instead.
func (c *Client) streamClient() *http.Client {
	return &http.Client{Transport: c.httpClient.Transport}
}

// OpenURL issues a GET for rawURL, with a Range header when offset > 0.
func OpenURL(ctx context.Context, client *http.Client, rawURL string, offset int64) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, 0, err
		}
		return nil, 0, playerrors.NewResolutionError("", classify(err, 0), err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, 0, playerrors.NewResolutionError("", classify(nil, resp.StatusCode),
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if offset > 0 && resp.StatusCode == http.StatusOK {
		// Server ignored the range; skip ahead ourselves.
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			resp.Body.Close()
			return nil, 0, fmt.Errorf("skip to offset %d: %w", offset, err)
		}
	}
	return resp.Body, resp.ContentLength, nil
}
