package mediasession

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"go.uber.org/zap"
)

const (
	mprisPath      = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisRoot      = "org.mpris.MediaPlayer2"
	mprisPlayer    = "org.mpris.MediaPlayer2.Player"
	mprisBusPrefix = "org.mpris.MediaPlayer2."
	trackPathBase  = "/org/mpris/MediaPlayer2/track/"
	noTrack        = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")
)

// MPRIS exposes the player on the session bus as org.mpris.MediaPlayer2
type MPRIS struct {
	conn  *dbus.Conn
	props *prop.Properties
	log   *zap.Logger

	mu      sync.Mutex
	handler Handler
	state   PlaybackState
	trackID dbus.ObjectPath
}

// NewMPRIS connects to the session bus and claims
// org.mpris.MediaPlayer2.<name>.
func NewMPRIS(name string, log *zap.Logger) (*MPRIS, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	m := &MPRIS{
		conn:    conn,
		log:     log.Named("mpris"),
		state:   StateNone,
		trackID: noTrack,
	}
	if err := m.export(name); err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

func (m *MPRIS) export(name string) error {
	root := &mprisRootObject{}
	player := &mprisPlayerObject{m: m}

	if err := m.conn.Export(root, mprisPath, mprisRoot); err != nil {
		return fmt.Errorf("export %s: %w", mprisRoot, err)
	}
	if err := m.conn.Export(player, mprisPath, mprisPlayer); err != nil {
		return fmt.Errorf("export %s: %w", mprisPlayer, err)
	}

	props, err := prop.Export(m.conn, mprisPath, prop.Map{
		mprisRoot: {
			"CanQuit":             {Value: false, Emit: prop.EmitTrue},
			"CanRaise":            {Value: false, Emit: prop.EmitTrue},
			"HasTrackList":        {Value: false, Emit: prop.EmitTrue},
			"Identity":            {Value: "Supersonic", Emit: prop.EmitTrue},
			"SupportedUriSchemes": {Value: []string{}, Emit: prop.EmitTrue},
			"SupportedMimeTypes":  {Value: []string{}, Emit: prop.EmitTrue},
		},
		mprisPlayer: {
			"PlaybackStatus": {Value: playbackStatus(StateNone), Emit: prop.EmitTrue},
			"LoopStatus":     {Value: "None", Emit: prop.EmitTrue},
			"Rate":           {Value: 1.0, Emit: prop.EmitTrue},
			"Shuffle":        {Value: false, Emit: prop.EmitTrue},
			"Metadata":       {Value: map[string]dbus.Variant{}, Emit: prop.EmitTrue},
			"Volume":         {Value: 1.0, Emit: prop.EmitTrue},
			"Position":       {Value: int64(0), Emit: prop.EmitFalse},
			"MinimumRate":    {Value: 1.0, Emit: prop.EmitTrue},
			"MaximumRate":    {Value: 1.0, Emit: prop.EmitTrue},
			"CanGoNext":      {Value: true, Emit: prop.EmitTrue},
			"CanGoPrevious":  {Value: true, Emit: prop.EmitTrue},
			"CanPlay":        {Value: true, Emit: prop.EmitTrue},
			"CanPause":       {Value: true, Emit: prop.EmitTrue},
			"CanSeek":        {Value: true, Emit: prop.EmitTrue},
			"CanControl":     {Value: true, Emit: prop.EmitFalse},
		},
	})
	if err != nil {
		return fmt.Errorf("export properties: %w", err)
	}
	m.props = props

	node := &introspect.Node{
		Name: string(mprisPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{Name: mprisRoot, Methods: introspect.Methods(root), Properties: props.Introspection(mprisRoot)},
			{Name: mprisPlayer, Methods: introspect.Methods(player), Properties: props.Introspection(mprisPlayer)},
		},
	}
	if err := m.conn.Export(introspect.NewIntrospectable(node), mprisPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := m.conn.RequestName(mprisBusPrefix+name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s%s already taken", mprisBusPrefix, name)
	}
	return nil
}

func (m *MPRIS) SetHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

func (m *MPRIS) dispatch(action Action, details ActionDetails) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(action, details)
	}
}

func (m *MPRIS) SetMetadata(md Metadata) error {
	path := TrackObjectPath(md.TrackID)
	m.mu.Lock()
	m.trackID = path
	m.mu.Unlock()
	return m.set("Metadata", MetadataMap(md))
}

func (m *MPRIS) SetPlaybackState(s PlaybackState) error {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	return m.set("PlaybackStatus", playbackStatus(s))
}

func (m *MPRIS) SetPositionState(p PositionState) error {
	return m.set("Position", p.Position.Microseconds())
}

func (m *MPRIS) set(name string, v any) error {
	if err := m.props.Set(mprisPlayer, name, dbus.MakeVariant(v)); err != nil {
		return err
	}
	return nil
}

func (m *MPRIS) Close() error {
	return m.conn.Close()
}

func playbackStatus(s PlaybackState) string {
	switch s {
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

// TrackObjectPath turns a track id into a valid D-Bus object path
func TrackObjectPath(id string) dbus.ObjectPath {
	if id == "" {
		return noTrack
	}
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			fmt.Fprintf(&b, "_%02x", r)
		}
	}
	return dbus.ObjectPath(trackPathBase + b.String())
}

// MetadataMap renders md in the xesam/mpris vocabulary
func MetadataMap(md Metadata) map[string]dbus.Variant {
	out := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(TrackObjectPath(md.TrackID)),
		"xesam:title":   dbus.MakeVariant(md.Title),
		"xesam:album":   dbus.MakeVariant(md.Album),
	}
	if md.Artist != "" {
		out["xesam:artist"] = dbus.MakeVariant([]string{md.Artist})
	}
	if md.ArtworkURL != "" {
		out["mpris:artUrl"] = dbus.MakeVariant(md.ArtworkURL)
	}
	if md.Length > 0 {
		out["mpris:length"] = dbus.MakeVariant(md.Length.Microseconds())
	}
	return out
}

type mprisRootObject struct{}

func (mprisRootObject) Raise() *dbus.Error { return nil }
func (mprisRootObject) Quit() *dbus.Error  { return nil }

type mprisPlayerObject struct {
	m *MPRIS
}

func (p *mprisPlayerObject) Next() *dbus.Error {
	p.m.dispatch(ActionNextTrack, ActionDetails{})
	return nil
}

func (p *mprisPlayerObject) Previous() *dbus.Error {
	p.m.dispatch(ActionPreviousTrack, ActionDetails{})
	return nil
}

func (p *mprisPlayerObject) Pause() *dbus.Error {
	p.m.dispatch(ActionPause, ActionDetails{})
	return nil
}

func (p *mprisPlayerObject) Play() *dbus.Error {
	p.m.dispatch(ActionPlay, ActionDetails{})
	return nil
}

func (p *mprisPlayerObject) PlayPause() *dbus.Error {
	p.m.mu.Lock()
	playing := p.m.state == StatePlaying
	p.m.mu.Unlock()
	if playing {
		p.m.dispatch(ActionPause, ActionDetails{})
	} else {
		p.m.dispatch(ActionPlay, ActionDetails{})
	}
	return nil
}

func (p *mprisPlayerObject) Stop() *dbus.Error {
	p.m.dispatch(ActionStop, ActionDetails{})
	return nil
}

// Seek takes a relative offset in microseconds
func (p *mprisPlayerObject) Seek(offset int64) *dbus.Error {
	d := time.Duration(offset) * time.Microsecond
	switch {
	case d == 0:
	case d > 0:
		p.m.dispatch(ActionSeekForward, ActionDetails{SeekOffset: d})
	default:
		p.m.dispatch(ActionSeekBackward, ActionDetails{SeekOffset: -d})
	}
	return nil
}

// SetPosition is ignored unless trackID is the current track
func (p *mprisPlayerObject) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	p.m.mu.Lock()
	current := p.m.trackID
	p.m.mu.Unlock()
	if trackID != current || position < 0 {
		return nil
	}
	p.m.dispatch(ActionSeekTo, ActionDetails{SeekTime: time.Duration(position) * time.Microsecond})
	return nil
}

func (p *mprisPlayerObject) OpenUri(uri string) *dbus.Error {
	p.m.log.Debug("OpenUri is not supported", zap.String("uri", uri))
	return nil
}
