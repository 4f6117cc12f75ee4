package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/backend"
	playerrors "github.com/jscyril/supersonic/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// OfflineQuality is pinned on every source served from the download store.
var OfflineQuality = api.AudioQuality{
	Format:       api.FormatOffline,
	BitrateKbps:  320,
	SampleRateHz: 48000,
}

const extractTimeout = 20 * time.Second

// StreamResolver is the backend extraction endpoint
type StreamResolver interface {
	ResolveStream(ctx context.Context, trackID, quality string) (*backend.StreamInfo, error)
}

// OfflineReader is the durable download store
type OfflineReader interface {
	IsDownloaded(id string) bool
	Blob(ctx context.Context, id string) ([]byte, api.Download, error)
}

// Resolver turns track ids into playable sources. It never touches the
// queue or history.
type Resolver struct {
	streams StreamResolver
	offline OfflineReader
	group   singleflight.Group
	log     *zap.Logger
}

// New creates a resolver. offline may be nil when downloads are disabled.
func New(streams StreamResolver, offline OfflineReader, log *zap.Logger) *Resolver {
	return &Resolver{
		streams: streams,
		offline: offline,
		log:     log.Named("resolver"),
	}
}

// Offline returns the stored blob for trackID, if there is a usable one.
func (r *Resolver) Offline(ctx context.Context, trackID string) (*api.Source, bool) {
	if r.offline == nil || !r.offline.IsDownloaded(trackID) {
		return nil, false
	}
	blob, rec, err := r.offline.Blob(ctx, trackID)
	if err != nil {
		r.log.Warn("offline blob unavailable, falling back to network",
			zap.String("track", trackID), zap.Error(err))
		return nil, false
	}
	return &api.Source{
		TrackID:  trackID,
		Offline:  true,
		Blob:     blob,
		MimeType: "audio/" + rec.AudioFormat,
		Quality:  OfflineQuality,
	}, true
}

// Network asks the backend for a fresh stream URL. Concurrent requests for
// the same track and quality share one backend call.
func (r *Resolver) Network(ctx context.Context, trackID, quality string) (*api.Source, error) {
	key := trackID + "|" + quality
	ch := r.group.DoChan(key, func() (any, error) {
		// Detached so one caller's cancellation doesn't fail the others.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), extractTimeout)
		defer cancel()
		return r.streams.ResolveStream(callCtx, trackID, quality)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var rerr *playerrors.ResolutionError
			if errors.As(res.Err, &rerr) {
				return nil, res.Err
			}
			return nil, playerrors.NewResolutionError(trackID, nil, res.Err)
		}
		info := res.Val.(*backend.StreamInfo)
		return &api.Source{
			TrackID:  trackID,
			URL:      info.URL,
			MimeType: info.MimeType,
			Quality:  info.Quality,
		}, nil
	}
}

// Resolve tries the download store first and the network second.
func (r *Resolver) Resolve(ctx context.Context, trackID, quality string) (*api.Source, error) {
	if src, ok := r.Offline(ctx, trackID); ok {
		return src, nil
	}
	return r.Network(ctx, trackID, quality)
}
