package player

import (
	"errors"
	"testing"
	"time"

	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/audio"
	"github.com/jscyril/supersonic/internal/state"
	playerrors "github.com/jscyril/supersonic/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queueIDs(ts []api.Track) []string {
	ids := make([]string, len(ts))
	for i, t := range ts {
		ids[i] = t.ID
	}
	return ids
}

func historyIDs(hs []api.HistoryEntry) []string {
	ids := make([]string, len(hs))
	for i, h := range hs {
		ids[i] = h.ID
	}
	return ids
}

func TestPlayLoadsAndStarts(t *testing.T) {
	h := newHarness(t, api.Settings{AudioQuality: "high"})
	a := tracks("a")[0]

	require.NoError(t, h.e.Play(a))
	h.waitPlaying(t, "a")

	s := h.e.Snapshot()
	assert.True(t, s.Playing)
	assert.False(t, s.Buffering)
	assert.Equal(t, 10*time.Second, s.Duration)
	require.NotNil(t, s.Quality)
	assert.Equal(t, 160, s.Quality.BitrateKbps)
	require.NotNil(t, s.Track.Quality, "current track carries the stream quality")

	q := h.e.Queue()
	require.Len(t, q, 1)
	assert.NotNil(t, q[0].Quality, "queue entry replaced with the annotated copy")
	assert.Nil(t, a.Quality, "caller's track is never mutated")
	assert.Equal(t, []string{"a"}, historyIDs(h.e.History()))
	assert.Equal(t, []string{"high"}, h.resolver.qualities())

	require.Eventually(t, func() bool { return len(h.backend.playedIDs()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a"}, h.backend.playedIDs(), "a failing report never blocks playback")
}

func TestDataSaverRequestsLowQuality(t *testing.T) {
	h := newHarness(t, api.Settings{AudioQuality: "lossless", DataSaver: true})
	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitPlaying(t, "a")
	assert.Equal(t, []string{"low"}, h.resolver.qualities())
}

func TestAdvanceWalksQueueThenStops(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.PlayFromList(tracks("a", "b", "c"), 0))
	h.waitPlaying(t, "a")

	require.NoError(t, h.e.Next())
	h.waitPlaying(t, "b")
	require.NoError(t, h.e.Next())
	h.waitPlaying(t, "c")

	require.NoError(t, h.e.Next())
	h.waitFor(t, func(s api.Session) bool { return !s.Playing }, "exhausted queue stops")

	s := h.e.Snapshot()
	assert.Equal(t, "c", currentID(s))
	assert.Equal(t, api.StatePaused, s.State)
	assert.Nil(t, s.Error)
	assert.Equal(t, []string{"c", "b", "a"}, historyIDs(h.e.History()))
}

func TestSingleTrackRepeatOffStops(t *testing.T) {
	for _, shuffle := range []bool{false, true} {
		t.Run(map[bool]string{false: "sequential", true: "shuffle"}[shuffle], func(t *testing.T) {
			h := newHarness(t, api.Settings{AutoPlay: false})
			if shuffle {
				require.NoError(t, h.e.ToggleShuffle())
			}
			require.NoError(t, h.e.Play(tracks("a")[0]))
			h.waitPlaying(t, "a")

			require.NoError(t, h.e.Next())
			h.waitFor(t, func(s api.Session) bool { return !s.Playing }, "single track does not loop")
			assert.Equal(t, []string{"a"}, h.output.loadedIDs())
		})
	}
}

func TestRepeatAllWraps(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.CycleRepeat())
	require.NoError(t, h.e.PlayFromList(tracks("a", "b"), 1))
	h.waitPlaying(t, "b")
	assert.Equal(t, []string{"b", "a"}, queueIDs(h.e.Queue()), "list rotated to start at the chosen track")

	require.NoError(t, h.e.Next())
	h.waitPlaying(t, "a")
	require.NoError(t, h.e.Next())
	h.waitPlaying(t, "b")
}

func TestShuffleNeverPicksCurrent(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.ToggleShuffle())
	require.NoError(t, h.e.SetQueue(tracks("a", "b", "c", "d")))
	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitPlaying(t, "a")

	prev := "a"
	for i := 0; i < 10; i++ {
		require.NoError(t, h.e.Next())
		h.waitFor(t, func(s api.Session) bool {
			return currentID(s) != prev && s.State == api.StatePlaying
		}, "shuffle moves to another track")
		prev = currentID(h.e.Snapshot())
	}
}

func TestPrevious(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.PlayFromList(tracks("a", "b", "c"), 0))
	h.waitPlaying(t, "a")

	t.Run("past three seconds restarts", func(t *testing.T) {
		h.output.setPosition(5 * time.Second)
		require.NoError(t, h.e.Previous())
		h.flush(t)
		assert.Equal(t, []time.Duration{0}, h.output.seekCalls())
		assert.Equal(t, "a", currentID(h.e.Snapshot()))
	})

	t.Run("early wraps to the last entry", func(t *testing.T) {
		h.output.setPosition(2 * time.Second)
		require.NoError(t, h.e.Previous())
		h.waitPlaying(t, "c")
	})

	t.Run("exactly three seconds moves back", func(t *testing.T) {
		h.output.setPosition(3 * time.Second)
		require.NoError(t, h.e.Previous())
		h.waitPlaying(t, "b")
	})
}

func TestRemoveCurrentPromotesNext(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.PlayFromList(tracks("a", "b"), 0))
	h.waitPlaying(t, "a")
	h.output.setPosition(4 * time.Second)
	h.tick(t)

	require.NoError(t, h.e.Remove("a"))
	h.waitPlaying(t, "b")
	assert.Equal(t, time.Duration(0), h.e.Snapshot().Position)
	assert.Equal(t, []string{"b"}, queueIDs(h.e.Queue()))

	require.NoError(t, h.e.Remove("b"))
	h.waitFor(t, func(s api.Session) bool { return s.Track == nil && s.State == api.StateIdle }, "empty queue stops")
}

func TestQueueEditing(t *testing.T) {
	h := newHarness(t, api.Settings{})
	a, b, c := tracks("a")[0], tracks("b")[0], tracks("c")[0]

	require.NoError(t, h.e.InsertNext(a))
	require.NoError(t, h.e.Append(b))
	require.NoError(t, h.e.Append(b))
	h.flush(t)
	assert.Equal(t, []string{"a", "b"}, queueIDs(h.e.Queue()), "append is idempotent")

	require.NoError(t, h.e.Play(a))
	h.waitPlaying(t, "a")
	require.NoError(t, h.e.InsertNext(c))
	h.flush(t)
	assert.Equal(t, []string{"a", "c", "b"}, queueIDs(h.e.Queue()))

	require.NoError(t, h.e.ClearQueue())
	h.flush(t)
	s := h.e.Snapshot()
	assert.Empty(t, h.e.Queue())
	assert.Nil(t, s.Track)
	assert.False(t, s.Playing)

	require.NoError(t, h.e.ClearHistory())
	h.flush(t)
	assert.Empty(t, h.e.History())
}

func TestLateResolutionIsDiscarded(t *testing.T) {
	h := newHarness(t, api.Settings{})
	gate := make(chan struct{})
	h.resolver.gates["a"] = gate

	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitFor(t, func(s api.Session) bool { return currentID(s) == "a" }, "a is loading")
	require.NoError(t, h.e.Play(tracks("b")[0]))
	h.waitPlaying(t, "b")

	close(gate)
	time.Sleep(20 * time.Millisecond)
	h.flush(t)

	s := h.e.Snapshot()
	assert.Equal(t, "b", currentID(s))
	assert.Equal(t, api.StatePlaying, s.State)
	assert.Equal(t, []string{"b"}, h.output.loadedIDs(), "a never reaches the output")
}

func TestResolutionFailureAndRetry(t *testing.T) {
	h := newHarness(t, api.Settings{})
	h.resolver.setErr("a", playerrors.NewResolutionError("a", playerrors.ErrNotFound, nil))
	sub := h.e.Events().Subscribe(api.EventError)
	defer sub.Unsubscribe()

	require.NoError(t, h.e.PlayFromList(tracks("a", "b"), 0))
	h.waitFor(t, func(s api.Session) bool { return s.State == api.StateError }, "resolution failure")

	s := h.e.Snapshot()
	require.NotNil(t, s.Error)
	assert.Equal(t, api.ErrorResolution, s.Error.Kind)
	assert.False(t, s.Buffering)

	select {
	case ev := <-sub.C:
		assert.ErrorIs(t, ev.Err, playerrors.ErrNotFound)
	case <-time.After(time.Second):
		t.Fatal("no error event")
	}

	h.resolver.setErr("a", nil)
	require.NoError(t, h.e.Retry())
	h.waitPlaying(t, "a")
	assert.Nil(t, h.e.Snapshot().Error)
	assert.Equal(t, []string{"a", "b"}, queueIDs(h.e.Queue()))
	assert.Equal(t, []string{"a"}, historyIDs(h.e.History()))
}

func TestOfflineLoadFailureFallsBackToNetwork(t *testing.T) {
	h := newHarness(t, api.Settings{})
	h.resolver.offline["a"] = true
	h.output.offlineErr["a"] = playerrors.NewPlayerError("decode", "a", playerrors.ErrMedia)

	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitPlaying(t, "a")

	assert.Equal(t, []string{"a"}, h.resolver.networkCalls())
	srcs := h.output.loadedSources()
	require.Len(t, srcs, 2)
	assert.True(t, srcs[0].Offline)
	assert.False(t, srcs[1].Offline)

	s := h.e.Snapshot()
	assert.Nil(t, s.Error)
	require.NotNil(t, s.Quality)
	assert.Equal(t, "mp3", s.Quality.Format, "quality follows the stream that actually plays")
}

func TestOfflineAndNetworkBothFail(t *testing.T) {
	h := newHarness(t, api.Settings{})
	h.resolver.offline["a"] = true
	h.output.loadErr["a"] = playerrors.NewPlayerError("decode", "a", playerrors.ErrMedia)

	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitFor(t, func(s api.Session) bool { return s.State == api.StateError }, "stream fails too")
	assert.Equal(t, api.ErrorMedia, h.e.Snapshot().Error.Kind)
	assert.Equal(t, []string{"a"}, h.resolver.networkCalls(), "one network attempt per load")
	assert.Len(t, h.output.loadedIDs(), 2)
}

func TestNetworkSourceFailureDoesNotRetry(t *testing.T) {
	h := newHarness(t, api.Settings{})
	h.output.setLoadErr("a", playerrors.NewPlayerError("decode", "a", playerrors.ErrMedia))

	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitFor(t, func(s api.Session) bool { return s.State == api.StateError }, "stream fails")
	assert.Empty(t, h.resolver.networkCalls())
	assert.Len(t, h.output.loadedIDs(), 1)
}

func TestLoadTimeout(t *testing.T) {
	h := newHarness(t, api.Settings{})
	h.output.hang["a"] = true

	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitFor(t, func(s api.Session) bool { return s.State == api.StateError }, "load times out")
	s := h.e.Snapshot()
	assert.Equal(t, api.ErrorLoadTimeout, s.Error.Kind)
	assert.True(t, s.Playing, "intent survives for retry")
}

func TestMediaErrorWhilePlaying(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitPlaying(t, "a")

	h.output.signals <- audio.Signal{Kind: audio.SignalError, Gen: h.output.lastGen(),
		Err: playerrors.NewPlayerError("decode", "a", playerrors.ErrMedia)}
	h.waitFor(t, func(s api.Session) bool { return s.State == api.StateError }, "media error")
	assert.Equal(t, api.ErrorMedia, h.e.Snapshot().Error.Kind)
}

func TestStaleSignalsAreIgnored(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitPlaying(t, "a")

	h.output.signals <- audio.Signal{Kind: audio.SignalError, Gen: h.output.lastGen() - 1, Err: errors.New("old")}
	h.output.signals <- audio.Signal{Kind: audio.SignalEnded, Gen: h.output.lastGen() + 5}
	time.Sleep(20 * time.Millisecond)
	h.flush(t)
	assert.Equal(t, api.StatePlaying, h.e.Snapshot().State)
}

func TestPauseWaitsForPendingPlay(t *testing.T) {
	h := newHarness(t, api.Settings{})
	h.output.holdPlay = true

	require.NoError(t, h.e.Play(tracks("a")[0]))
	require.Eventually(t, func() bool { return h.output.pendingCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.e.Pause())
	h.flush(t)
	s := h.e.Snapshot()
	assert.False(t, s.Playing, "intent drops at once")
	_, pauses := h.output.counts()
	assert.Zero(t, pauses, "no pause while play is in flight")

	h.output.settle(nil)
	h.waitFor(t, func(s api.Session) bool { return s.State == api.StatePaused }, "deferred pause lands")
	_, pauses = h.output.counts()
	assert.Equal(t, 1, pauses)
}

func TestResumeCancelsDeferredPause(t *testing.T) {
	h := newHarness(t, api.Settings{})
	h.output.holdPlay = true

	require.NoError(t, h.e.Play(tracks("a")[0]))
	require.Eventually(t, func() bool { return h.output.pendingCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.e.Pause())
	require.NoError(t, h.e.Resume())
	h.flush(t)

	h.output.settle(nil)
	h.waitPlaying(t, "a")
	plays, pauses := h.output.counts()
	assert.Equal(t, 1, plays)
	assert.Zero(t, pauses)
}

func TestAbortedPlayIsSwallowed(t *testing.T) {
	h := newHarness(t, api.Settings{})
	h.output.holdPlay = true
	sub := h.e.Events().Subscribe(api.EventError)
	defer sub.Unsubscribe()

	require.NoError(t, h.e.Play(tracks("a")[0]))
	require.Eventually(t, func() bool { return h.output.pendingCount() == 1 }, time.Second, 5*time.Millisecond)
	h.output.settle(playerrors.ErrPlaybackAborted)
	time.Sleep(20 * time.Millisecond)
	h.flush(t)

	assert.NotEqual(t, api.StateError, h.e.Snapshot().State)
	assert.Nil(t, h.e.Snapshot().Error)
	assert.Empty(t, sub.C)
}

func TestBufferingIsAnOverlay(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitPlaying(t, "a")

	h.signal(audio.SignalWaiting)
	h.waitFor(t, func(s api.Session) bool { return s.Buffering }, "waiting raises buffering")
	s := h.e.Snapshot()
	assert.True(t, s.Playing)
	assert.Equal(t, api.StatePlaying, s.State)

	h.signal(audio.SignalCanPlay)
	h.waitFor(t, func(s api.Session) bool { return !s.Buffering }, "canplay clears buffering")

	require.NoError(t, h.e.Pause())
	require.NoError(t, h.e.Resume())
	h.flush(t)
	assert.False(t, h.e.Snapshot().Buffering, "pause and resume leave buffering alone")
}

func TestRepeatOneRestartsOnEnd(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.CycleRepeat())
	require.NoError(t, h.e.CycleRepeat())
	require.NoError(t, h.e.PlayFromList(tracks("a", "b"), 0))
	h.waitPlaying(t, "a")
	assert.Equal(t, api.RepeatOne, h.e.Snapshot().Repeat)

	h.signal(audio.SignalEnded)
	require.Eventually(t, func() bool { return len(h.output.seekCalls()) == 1 }, time.Second, 5*time.Millisecond)
	h.waitPlaying(t, "a")
	assert.Equal(t, []time.Duration{0}, h.output.seekCalls())
	assert.Equal(t, []string{"a"}, h.output.loadedIDs())
}

func TestNaturalEndAdvances(t *testing.T) {
	h := newHarness(t, api.Settings{})
	sub := h.e.Events().Subscribe(api.EventTrackEnded)
	defer sub.Unsubscribe()

	require.NoError(t, h.e.PlayFromList(tracks("a", "b"), 0))
	h.waitPlaying(t, "a")
	h.signal(audio.SignalEnded)
	h.waitPlaying(t, "b")
	assert.Len(t, sub.C, 1)
}

func TestCrossfadeOwnsTheTransition(t *testing.T) {
	h := newHarness(t, api.Settings{CrossfadeSeconds: 3})
	require.NoError(t, h.e.PlayFromList(tracks("a", "b"), 0))
	h.waitPlaying(t, "a")

	h.output.setPosition(6 * time.Second)
	h.tick(t)
	_, _, _, fades := h.mixer.state()
	assert.Empty(t, fades, "outside the window")

	h.output.setPosition(8 * time.Second)
	h.tick(t)
	_, _, _, fades = h.mixer.state()
	assert.Equal(t, []time.Duration{2 * time.Second}, fades, "gain reaches zero exactly at the end")

	h.tick(t)
	_, _, _, fades = h.mixer.state()
	assert.Len(t, fades, 1, "triggers once per track")

	// A natural end racing the scheduled advance must not move the queue.
	h.signal(audio.SignalEnded)
	time.Sleep(20 * time.Millisecond)
	h.flush(t)
	assert.Equal(t, "a", currentID(h.e.Snapshot()))

	h.clock.Advance(1899 * time.Millisecond)
	h.flush(t)
	assert.Equal(t, "a", currentID(h.e.Snapshot()))
	h.clock.Advance(time.Millisecond)
	h.waitPlaying(t, "b")
	assert.Equal(t, []string{"a", "b"}, h.output.loadedIDs())
}

func TestCrossfadeDisabledForRepeatOne(t *testing.T) {
	h := newHarness(t, api.Settings{CrossfadeSeconds: 3})
	require.NoError(t, h.e.CycleRepeat())
	require.NoError(t, h.e.CycleRepeat())
	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitPlaying(t, "a")

	h.output.setPosition(9 * time.Second)
	h.tick(t)
	_, _, _, fades := h.mixer.state()
	assert.Empty(t, fades)
	assert.Equal(t, 1, h.clock.Pending(), "only the prefetch timer is pending")
}

func TestAutoplayExtendsExhaustedQueue(t *testing.T) {
	h := newHarness(t, api.Settings{AutoPlay: true})
	h.backend.autoplay = tracks("a", "x", "y")

	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitPlaying(t, "a")
	require.NoError(t, h.e.Next())
	h.waitPlaying(t, "x")

	assert.Equal(t, []string{"a", "x", "y"}, queueIDs(h.e.Queue()), "ids already queued are filtered out")
	assert.Equal(t, []string{"x", "a"}, historyIDs(h.e.History()))
}

func TestAutoplayFailureStops(t *testing.T) {
	tests := []struct {
		name     string
		autoplay []api.Track
		err      error
	}{
		{"backend error", nil, playerrors.NewResolutionError("a", playerrors.ErrNetwork, nil)},
		{"nothing new", tracks("a"), nil},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, api.Settings{AutoPlay: true})
			h.backend.autoplay = tt.autoplay
			h.backend.autoErr = tt.err

			require.NoError(t, h.e.Play(tracks("a")[0]))
			h.waitPlaying(t, "a")
			require.NoError(t, h.e.Next())
			h.waitFor(t, func(s api.Session) bool { return !s.Playing }, "autoplay failure stops playback")
			assert.Nil(t, h.e.Snapshot().Error)
		})
	}
}

func TestPrefetchAfterSettle(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.PlayFromList(tracks("a", "b", "c", "d", "e"), 0))
	h.waitPlaying(t, "a")
	assert.Empty(t, h.backend.prefetchCalls())

	h.clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return len(h.backend.prefetchCalls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"b", "c", "d"}, h.backend.prefetchCalls()[0])
}

func TestSeek(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitPlaying(t, "a")

	require.NoError(t, h.e.Seek(4*time.Second))
	require.NoError(t, h.e.Seek(time.Minute))
	h.output.setPosition(5 * time.Second)
	require.NoError(t, h.e.SeekBy(-10*time.Second))
	h.flush(t)
	assert.Equal(t, []time.Duration{4 * time.Second, 10 * time.Second, 0}, h.output.seekCalls())

	h.output.seekErr = audio.ErrSeekUnsupported
	sub := h.e.Events().Subscribe(api.EventError)
	defer sub.Unsubscribe()
	require.NoError(t, h.e.Seek(time.Second))
	select {
	case ev := <-sub.C:
		assert.ErrorIs(t, ev.Err, audio.ErrSeekUnsupported)
	case <-time.After(time.Second):
		t.Fatal("no error event for unsupported seek")
	}
	assert.Equal(t, api.StatePlaying, h.e.Snapshot().State, "a failed seek is not a playback error")
}

func TestVolumeAndSettings(t *testing.T) {
	h := newHarness(t, api.Settings{})

	tests := []struct {
		in   int
		want int
	}{
		{50, 50},
		{-5, 0},
		{150, 100},
	}
	for _, tt := range tests {
		require.NoError(t, h.e.SetVolume(tt.in))
		h.flush(t)
		volume, _, _, _ := h.mixer.state()
		assert.Equal(t, tt.want, volume)
		assert.Equal(t, tt.want, h.e.Snapshot().Volume)
	}

	require.NoError(t, h.e.ApplySettings(api.Settings{BassBoost: 40, NormalizeVolume: true, CrossfadeSeconds: 5}))
	h.flush(t)
	_, bass, normalize, _ := h.mixer.state()
	assert.Equal(t, 40, bass)
	assert.True(t, normalize)
	assert.Equal(t, 5*time.Second, h.e.crossfade.Window())
}

func TestRestoreAndPersist(t *testing.T) {
	h := newHarness(t, api.Settings{})
	snap := &state.Snapshot{
		Volume:  35,
		Shuffle: true,
		Repeat:  api.RepeatAll,
		Queue:   tracks("a", "b"),
		History: []api.HistoryEntry{{Track: tracks("b")[0], PlayedAt: time.Unix(100, 0)}},
	}
	require.NoError(t, h.e.Restore(snap))
	h.flush(t)

	s := h.e.Snapshot()
	assert.Nil(t, s.Track, "current track is not restored")
	assert.Equal(t, 35, s.Volume)
	assert.True(t, s.Shuffle)
	assert.Equal(t, api.RepeatAll, s.Repeat)

	out := h.e.PersistState()
	assert.Equal(t, []string{"a", "b"}, queueIDs(out.Queue))
	assert.Equal(t, []string{"b"}, historyIDs(out.History))
	assert.Equal(t, 35, out.Volume)
}

func TestTogglePlay(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.TogglePlay())
	h.flush(t)
	assert.False(t, h.e.Snapshot().Playing, "nothing to toggle without a track")

	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitPlaying(t, "a")
	require.NoError(t, h.e.TogglePlay())
	h.waitFor(t, func(s api.Session) bool { return s.State == api.StatePaused && !s.Playing }, "toggle pauses")
	require.NoError(t, h.e.TogglePlay())
	h.waitPlaying(t, "a")
}

func TestTogglePlayRetriesAfterError(t *testing.T) {
	h := newHarness(t, api.Settings{})
	h.output.loadErr["a"] = playerrors.NewPlayerError("decode", "a", playerrors.ErrMedia)

	require.NoError(t, h.e.Play(tracks("a")[0]))
	h.waitFor(t, func(s api.Session) bool { return s.State == api.StateError }, "load fails")
	require.True(t, h.e.Snapshot().Playing, "intent survives the failure")

	h.output.setLoadErr("a", nil)
	require.NoError(t, h.e.TogglePlay())
	h.waitPlaying(t, "a")
	assert.Equal(t, []string{"a", "a"}, h.output.loadedIDs(), "one toggle reloads")
}

func TestCommandsAfterClose(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.Close())
	assert.ErrorIs(t, h.e.Play(tracks("a")[0]), playerrors.ErrEngineClosed)
	assert.ErrorIs(t, h.e.Next(), playerrors.ErrEngineClosed)
	assert.NoError(t, h.e.Close())
}

func TestPlayFromListValidatesStart(t *testing.T) {
	h := newHarness(t, api.Settings{})
	assert.ErrorIs(t, h.e.PlayFromList(tracks("a"), 1), playerrors.ErrTrackNotFound)
	assert.ErrorIs(t, h.e.PlayFromList(nil, 0), playerrors.ErrTrackNotFound)
	assert.ErrorIs(t, h.e.Play(api.Track{}), playerrors.ErrTrackNotFound)
}

func TestStopKeepsQueue(t *testing.T) {
	h := newHarness(t, api.Settings{})
	require.NoError(t, h.e.PlayFromList(tracks("a", "b"), 0))
	h.waitPlaying(t, "a")

	require.NoError(t, h.e.Stop())
	h.waitFor(t, func(s api.Session) bool { return s.Track == nil && s.State == api.StateIdle }, "stop unloads")
	assert.Equal(t, []string{"a", "b"}, queueIDs(h.e.Queue()))
	assert.False(t, h.e.Snapshot().Playing)

	require.NoError(t, h.e.Resume())
	h.flush(t)
	assert.Equal(t, api.StateIdle, h.e.Snapshot().State, "resume without a track is a no-op")
}
