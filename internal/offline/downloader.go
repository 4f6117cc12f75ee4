package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/audio"
	playerrors "github.com/jscyril/supersonic/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EstimatedTrackSize is what a download is assumed to cost before it
// starts; the real size is unknown until the transfer completes.
const EstimatedTrackSize int64 = 10 << 20

const (
	downloadQuality = "high"
	sniffSize       = 64 << 10
	// unknownTotalPercent is reported while the server gives no length.
	unknownTotalPercent = 50
)

// StreamSource opens the raw audio for a track
type StreamSource interface {
	OpenStream(ctx context.Context, trackID, quality string, offset int64) (io.ReadCloser, int64, error)
}

// ProgressFunc receives download progress as a percentage
type ProgressFunc func(percent int)

// Manager downloads tracks for offline playback within a storage budget
type Manager struct {
	registry *Registry
	blobs    BlobStore
	source   StreamSource
	log      *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	limitBytes int64
	active     map[string]int
}

// NewManager wires a registry, blob store and stream source together
func NewManager(registry *Registry, blobs BlobStore, source StreamSource, log *zap.Logger) *Manager {
	return &Manager{
		registry: registry,
		blobs:    blobs,
		source:   source,
		log:      log.Named("downloads"),
		now:      time.Now,
		active:   make(map[string]int),
	}
}

// SetLimitMB sets the storage ceiling. Zero means no ceiling is configured.
func (m *Manager) SetLimitMB(mb int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limitBytes = int64(mb) << 20
}

// IsDownloaded reports whether id has a completed download
func (m *Manager) IsDownloaded(id string) bool {
	return m.registry.Has(id)
}

// TotalBytes returns the storage used by downloads
func (m *Manager) TotalBytes() int64 {
	return m.registry.TotalBytes()
}

// List returns all downloads, newest first
func (m *Manager) List() []api.Download {
	return m.registry.All()
}

// Progress reports the percentage of an in-flight download
func (m *Manager) Progress(id string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.active[id]
	return p, ok
}

func (m *Manager) begin(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registry.Has(id) {
		return playerrors.ErrAlreadyDownloaded
	}
	if _, ok := m.active[id]; ok {
		return playerrors.ErrDownloadInProgress
	}
	if m.limitBytes > 0 && m.registry.TotalBytes()+EstimatedTrackSize > m.limitBytes {
		return fmt.Errorf("%w: %d MB used of %d MB", playerrors.ErrStorageLimit,
			m.registry.TotalBytes()>>20, m.limitBytes>>20)
	}
	m.active[id] = 0
	return nil
}

func (m *Manager) setProgress(id string, percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[id]; ok {
		m.active[id] = percent
	}
}

func (m *Manager) finish(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
}

// Download fetches track and stores it. It refuses before touching the
// network when the estimated size would exceed the storage ceiling.
func (m *Manager) Download(ctx context.Context, track api.Track, progress ProgressFunc) (*api.Download, error) {
	if err := m.begin(track.ID); err != nil {
		return nil, err
	}
	defer m.finish(track.ID)

	log := m.log.With(zap.String("track", track.ID))
	log.Info("download started", zap.String("title", track.Title))

	body, total, err := m.source.OpenStream(ctx, track.ID, downloadQuality, 0)
	if err != nil {
		return nil, playerrors.NewPlayerError("download", track.ID, err)
	}
	defer body.Close()

	report := func(done int64) {
		percent := unknownTotalPercent
		if total > 0 {
			percent = int(done * 100 / total)
		}
		m.setProgress(track.ID, percent)
		if progress != nil {
			progress(percent)
		}
	}
	counted := &countingReader{r: body, onRead: report}

	head := make([]byte, sniffSize)
	n, err := io.ReadFull(counted, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, playerrors.NewPlayerError("download", track.ID, err)
	}
	head = head[:n]
	format := audio.SniffFormat(head)

	size, err := m.blobs.Put(ctx, track.ID, io.MultiReader(bytes.NewReader(head), counted), total)
	if err != nil {
		return nil, playerrors.NewPlayerError("store", track.ID, err)
	}
	if progress != nil {
		progress(100)
	}

	rec := api.Download{
		Track:        track,
		DownloadedAt: m.now(),
		Size:         size,
		AudioFormat:  format,
	}
	m.registry.Put(rec)
	if err := m.registry.Save(); err != nil {
		log.Warn("failed to save download registry", zap.Error(err))
	}

	log.Info("download finished", zap.Int64("bytes", size), zap.String("format", format))
	return &rec, nil
}

// Remove deletes a download and its blob
func (m *Manager) Remove(ctx context.Context, id string) error {
	if err := m.blobs.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	freed := m.registry.Delete(id)
	m.log.Info("download removed", zap.String("track", id), zap.Int64("freed", freed))
	return m.registry.Save()
}

// ClearAll removes every download
func (m *Manager) ClearAll(ctx context.Context) error {
	if err := m.blobs.Clear(ctx); err != nil {
		return fmt.Errorf("clear blobs: %w", err)
	}
	m.registry.Clear()
	return m.registry.Save()
}

// Reconcile prunes registry entries whose blob is gone and returns how
// many were pruned.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	records := m.registry.All()
	missing := make([]bool, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, rec := range records {
		g.Go(func() error {
			ok, err := m.blobs.Exists(gctx, rec.Track.ID)
			if err != nil {
				return fmt.Errorf("check blob %s: %w", rec.Track.ID, err)
			}
			missing[i] = !ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	pruned := 0
	for i, rec := range records {
		if missing[i] {
			m.registry.Delete(rec.Track.ID)
			pruned++
		}
	}
	if pruned > 0 {
		m.log.Info("pruned stale downloads", zap.Int("count", pruned))
		if err := m.registry.Save(); err != nil {
			return pruned, err
		}
	}
	return pruned, nil
}

// Blob reads the stored audio for id
func (m *Manager) Blob(ctx context.Context, id string) ([]byte, api.Download, error) {
	rec, ok := m.registry.Get(id)
	if !ok {
		return nil, api.Download{}, ErrBlobNotFound
	}
	rc, err := m.blobs.Open(ctx, id)
	if err != nil {
		return nil, rec, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, rec, fmt.Errorf("read blob %s: %w", id, err)
	}
	if len(data) == 0 {
		return nil, rec, ErrBlobNotFound
	}
	return data, rec, nil
}

type countingReader struct {
	r      io.Reader
	n      int64
	onRead func(done int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		c.onRead(c.n)
	}
	return n, err
}
