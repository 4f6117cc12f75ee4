package audio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
	"github.com/jscyril/supersonic/api"
	playerrors "github.com/jscyril/supersonic/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func makeWAV(t *testing.T, d time.Duration) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	format := beep.Format{SampleRate: OutputSampleRate, NumChannels: 2, Precision: 2}
	require.NoError(t, wav.Encode(f, beep.Take(OutputSampleRate.N(d), constant(0.25)), format))
	require.NoError(t, f.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func newTestOutput() *SpeakerOutput {
	o := NewSpeakerOutput(NewGraph(OutputSampleRate), nil, zap.NewNop())
	o.start = func(*Graph) error { return nil }
	return o
}

// drain pulls audio the way the speaker would until a terminal signal.
func drain(t *testing.T, o *SpeakerOutput, gen uint64) Signal {
	t.Helper()
	buf := make([][2]float64, 1024)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		o.graph.Stream(buf)
		select {
		case sig := <-o.signals:
			if sig.Gen == gen && (sig.Kind == SignalEnded || sig.Kind == SignalError) {
				return sig
			}
		default:
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatal("no terminal signal")
	return Signal{}
}

func TestSpeakerOutputPlaysOfflineBlob(t *testing.T) {
	o := newTestOutput()
	src := &api.Source{TrackID: "t1", Offline: true, Blob: makeWAV(t, 500*time.Millisecond)}

	dur, err := o.Load(context.Background(), 1, src)
	require.NoError(t, err)
	assert.InDelta(t, float64(500*time.Millisecond), float64(dur), float64(5*time.Millisecond))

	played := o.Play()
	sig := drain(t, o, 1)
	assert.Equal(t, SignalEnded, sig.Kind)

	select {
	case err := <-played:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("play never settled")
	}
	assert.InDelta(t, float64(500*time.Millisecond), float64(o.Position()), float64(5*time.Millisecond))
}

func TestSpeakerOutputSeekAfterEnd(t *testing.T) {
	o := newTestOutput()
	src := &api.Source{TrackID: "t1", Offline: true, Blob: makeWAV(t, 300*time.Millisecond)}
	_, err := o.Load(context.Background(), 7, src)
	require.NoError(t, err)
	o.Play()
	drain(t, o, 7)

	require.NoError(t, o.Seek(100*time.Millisecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(o.Position()), float64(time.Millisecond))

	sig := drain(t, o, 7)
	assert.Equal(t, SignalEnded, sig.Kind)
	assert.InDelta(t, float64(300*time.Millisecond), float64(o.Position()), float64(5*time.Millisecond))
}

func TestSpeakerOutputPausedOutputsSilence(t *testing.T) {
	o := newTestOutput()
	src := &api.Source{TrackID: "t1", Offline: true, Blob: makeWAV(t, 300*time.Millisecond)}
	_, err := o.Load(context.Background(), 1, src)
	require.NoError(t, err)

	buf := make([][2]float64, 512)
	o.graph.Stream(buf)
	assert.Equal(t, time.Duration(0), o.Position())
	assert.Equal(t, 0.0, buf[511][0])
}

func TestSpeakerOutputUndecodableBlob(t *testing.T) {
	o := newTestOutput()
	src := &api.Source{TrackID: "t1", Offline: true, Blob: []byte("not audio at all")}

	_, err := o.Load(context.Background(), 1, src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, playerrors.ErrMedia))
	assert.Equal(t, api.ErrorMedia, playerrors.Classify(err))
}

func TestSpeakerOutputLoadCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	o := newTestOutput()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := o.Load(ctx, 1, &api.Source{TrackID: "t1", URL: srv.URL, MimeType: "audio/mpeg"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, o.cur)
}

func TestSpeakerOutputNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	o := newTestOutput()
	_, err := o.Load(context.Background(), 1, &api.Source{TrackID: "t1", URL: srv.URL, MimeType: "audio/mpeg"})
	assert.ErrorIs(t, err, playerrors.ErrResolution)
	assert.ErrorIs(t, err, playerrors.ErrNotFound)
}

func TestSpeakerOutputNetworkSeekNeedsMP3(t *testing.T) {
	data := makeWAV(t, 300*time.Millisecond)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(data)
	}))
	defer srv.Close()

	o := newTestOutput()
	_, err := o.Load(context.Background(), 1, &api.Source{TrackID: "t1", URL: srv.URL, MimeType: "audio/wav"})
	require.NoError(t, err)

	assert.ErrorIs(t, o.Seek(time.Second), ErrSeekUnsupported)
}

func TestSupersededPlayIsAborted(t *testing.T) {
	o := newTestOutput()
	_, err := o.Load(context.Background(), 1, &api.Source{TrackID: "a", Offline: true, Blob: makeWAV(t, 200*time.Millisecond)})
	require.NoError(t, err)

	played := o.Play()
	o.Unload()

	select {
	case err := <-played:
		assert.ErrorIs(t, err, playerrors.ErrPlaybackAborted)
	case <-time.After(time.Second):
		t.Fatal("play never settled")
	}
}

func TestPlayWithoutSource(t *testing.T) {
	o := newTestOutput()
	assert.ErrorIs(t, <-o.Play(), playerrors.ErrNoCurrentTrack)
}

func TestLateTeardownKeepsNewerSource(t *testing.T) {
	o := newTestOutput()
	blob := makeWAV(t, 200*time.Millisecond)

	_, err := o.Load(context.Background(), 1, &api.Source{TrackID: "a", Offline: true, Blob: blob})
	require.NoError(t, err)
	stale := o.cur
	_, err = o.Load(context.Background(), 2, &api.Source{TrackID: "b", Offline: true, Blob: blob})
	require.NoError(t, err)
	fresh := o.cur

	o.drop(stale)
	assert.Same(t, fresh, o.cur)
	assert.Same(t, fresh.ctrl, o.graph.source, "superseded media must not disconnect the current one")

	o.Play()
	sig := drain(t, o, 2)
	assert.Equal(t, SignalEnded, sig.Kind)
}

func TestStaleLoadIsNotConnected(t *testing.T) {
	o := newTestOutput()
	blob := makeWAV(t, 200*time.Millisecond)
	_, err := o.Load(context.Background(), 5, &api.Source{TrackID: "b", Offline: true, Blob: blob})
	require.NoError(t, err)
	fresh := o.cur

	_, err = o.Load(context.Background(), 4, &api.Source{TrackID: "a", Offline: true, Blob: blob})
	assert.ErrorIs(t, err, playerrors.ErrPlaybackAborted)
	assert.Same(t, fresh.ctrl, o.graph.source)
}
