package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jscyril/supersonic/internal/audio"
	"github.com/jscyril/supersonic/internal/backend"
	"github.com/jscyril/supersonic/internal/config"
	"github.com/jscyril/supersonic/internal/logger"
	"github.com/jscyril/supersonic/internal/mediasession"
	"github.com/jscyril/supersonic/internal/offline"
	"github.com/jscyril/supersonic/internal/player"
	"github.com/jscyril/supersonic/internal/resolver"
	"github.com/jscyril/supersonic/internal/state"
	"go.uber.org/zap"
)

const (
	stateTimeout = 5 * time.Second
	mprisName    = "supersonic"
)

// app owns everything a command needs; Close releases it in reverse order
type app struct {
	cfg       *config.Config
	cfgPath   string
	log       *zap.Logger
	backend   *backend.Client
	downloads *offline.Manager

	engine *player.Engine
	store  state.Store

	closers []func()
}

// newApp loads config and builds the logger, backend client and download
// manager. console keeps log output on stderr; the TUI turns it off.
func newApp(ctx context.Context, path string, console bool) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	logCfg := cfg.Log
	logCfg.Console = logCfg.Console && console
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{cfg: cfg, cfgPath: path, log: log}
	a.onClose(func() { _ = log.Sync() })

	a.backend, err = backend.NewClient(cfg.BackendURL, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	if a.downloads, err = openDownloads(ctx, cfg, a.backend, log); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func openDownloads(ctx context.Context, cfg *config.Config, source offline.StreamSource, log *zap.Logger) (*offline.Manager, error) {
	registry, err := offline.LoadRegistry(filepath.Join(cfg.DataDir, "downloads.json"))
	if err != nil {
		return nil, fmt.Errorf("load download registry: %w", err)
	}

	var blobs offline.BlobStore
	switch cfg.BlobStore {
	case config.StoreMinio:
		blobs, err = offline.NewMinioStore(ctx, offline.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		}, log)
	case config.StoreFile, "":
		blobs, err = offline.NewFileStore(filepath.Join(cfg.DataDir, "downloads"))
	default:
		err = fmt.Errorf("unknown blob store %q", cfg.BlobStore)
	}
	if err != nil {
		return nil, fmt.Errorf("open download store: %w", err)
	}

	m := offline.NewManager(registry, blobs, source, log)
	m.SetLimitMB(cfg.Settings.DownloadStorageLimitMB)
	if pruned, err := m.Reconcile(ctx); err != nil {
		log.Warn("download reconcile failed", zap.Error(err))
	} else if pruned > 0 {
		log.Info("download registry reconciled", zap.Int("pruned", pruned))
	}
	return m, nil
}

// startEngine builds the output and engine, restores saved state and
// starts the media session and config watcher.
func (a *app) startEngine(ctx context.Context) error {
	graph := audio.NewGraph(audio.OutputSampleRate)
	output := audio.NewSpeakerOutput(graph, nil, a.log)
	if err := audio.TranscoderAvailable(); err != nil {
		a.log.Warn("ffmpeg not found, only mp3, wav and flac will play", zap.Error(err))
	}

	a.engine = player.New(player.Options{
		Output:   output,
		Mixer:    graph,
		Resolver: resolver.New(a.backend, a.downloads, a.log),
		Backend:  a.backend,
		Log:      a.log,
		Settings: a.cfg.Settings,
		Volume:   a.cfg.DefaultVolume,
	})
	a.engine.Start(ctx)
	a.onClose(func() { _ = a.engine.Close() })

	if err := a.restoreState(ctx); err != nil {
		a.log.Warn("player state not restored", zap.Error(err))
	}

	a.startMediaSession(ctx)

	go func() {
		err := config.Watch(ctx, a.cfgPath, a.log, func(cfg *config.Config) {
			if err := a.engine.ApplySettings(cfg.Settings); err != nil {
				a.log.Debug("settings not applied", zap.Error(err))
			}
			a.downloads.SetLimitMB(cfg.Settings.DownloadStorageLimitMB)
		})
		if err != nil {
			a.log.Warn("config watch stopped", zap.Error(err))
		}
	}()
	return nil
}

func (a *app) restoreState(ctx context.Context) error {
	store, err := state.Open(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.store = store
	// runs before the engine closes so the snapshot is still readable
	a.onClose(a.saveState)

	ctx, cancel := context.WithTimeout(ctx, stateTimeout)
	defer cancel()
	snap, err := store.Load(ctx)
	if errors.Is(err, state.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return err
	}
	a.log.Info("player state restored",
		zap.String("snapshot", snap.ID),
		zap.Int("queue", len(snap.Queue)),
		zap.Int("history", len(snap.History)))
	return a.engine.Restore(snap)
}

func (a *app) saveState() {
	ctx, cancel := context.WithTimeout(context.Background(), stateTimeout)
	defer cancel()

	snap := state.Stamp(a.engine.PersistState(), time.Now())
	if err := a.store.Save(ctx, snap); err != nil {
		a.log.Warn("player state not saved", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Debug("close state store", zap.Error(err))
	}
}

func (a *app) startMediaSession(ctx context.Context) {
	var integration mediasession.Integration = mediasession.Nop{}
	if a.cfg.MPRIS {
		mpris, err := mediasession.NewMPRIS(mprisName, a.log)
		if err != nil {
			a.log.Warn("media session unavailable", zap.Error(err))
		} else {
			integration = mpris
		}
	}

	bridge := mediasession.NewBridge(integration, a.engine, a.log)
	sub := a.engine.Events().Subscribe()
	go bridge.Run(ctx, sub)
	a.onClose(func() {
		sub.Unsubscribe()
		_ = integration.Close()
	})
}

// onClose registers fn to run on Close, last registered first
func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
