package state

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/config"
)

const (
	MaxHistory = 50
	MaxQueue   = 100
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet
var ErrNoSnapshot = errors.New("no saved player state")

// Snapshot is the part of the session that survives a restart. The
// current track and position are deliberately absent.
type Snapshot struct {
	ID      string             `json:"id"`
	SavedAt time.Time          `json:"savedAt"`
	Volume  int                `json:"volume"`
	Shuffle bool               `json:"shuffle"`
	Repeat  api.RepeatMode     `json:"repeat"`
	History []api.HistoryEntry `json:"history"`
	Queue   []api.Track        `json:"queue"`
}

// Store persists snapshots
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Close() error
}

// Stamp trims snap to the persisted bounds and gives it an id and time
func Stamp(snap *Snapshot, now time.Time) *Snapshot {
	out := *snap
	out.ID = uuid.NewString()
	out.SavedAt = now
	if len(out.History) > MaxHistory {
		out.History = out.History[:MaxHistory]
	}
	if len(out.Queue) > MaxQueue {
		out.Queue = out.Queue[:MaxQueue]
	}
	if out.Volume < 0 {
		out.Volume = 0
	}
	if out.Volume > 100 {
		out.Volume = 100
	}
	return &out
}

// Open builds the store named by cfg.StateStore
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StateStore {
	case config.StoreRedis:
		return DialRedis(ctx, cfg.RedisAddr)
	case config.StorePostgres:
		return DialPostgres(ctx, cfg.PostgresDSN)
	case config.StoreFile, "":
		return NewFileStore(filepath.Join(cfg.DataDir, "state.json")), nil
	default:
		return nil, fmt.Errorf("unknown state store %q", cfg.StateStore)
	}
}
