package recording

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jerrors "github.com/alxayo/go-jamrec/internal/errors"
	"github.com/alxayo/go-jamrec/internal/logger"
)

const testFrameSize = 128

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(t.TempDir(), SessionOptions{Logger: logger.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.End() })
	return s
}

func frame(t *testing.T, s *Session, ch int, name string, addr Address, channels int) FrameResult {
	t.Helper()
	res, err := s.Frame(ch, name, addr, channels, pcmFrame(channels, testFrameSize, int16(ch)), testFrameSize)
	require.NoError(t, err)
	return res
}

func TestNewSession_DirectoryName(t *testing.T) {
	base := t.TempDir()
	at := time.Date(2024, 3, 5, 14, 7, 9, 42_000_000, time.FixedZone("CET", 3600))
	s, err := NewSession(base, SessionOptions{Now: func() time.Time { return at }, Logger: logger.Discard()})
	require.NoError(t, err)

	assert.Equal(t, "Jam-20240305-130709042", s.Name(), "timestamp is rendered in UTC with milliseconds")
	assert.Equal(t, filepath.Join(base, s.Name()), s.Dir())
	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewSession_PathIsAFile(t *testing.T) {
	base := t.TempDir()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.WriteFile(filepath.Join(base, "Jam-20240101-000000000"), []byte("x"), 0o644))

	_, err := NewSession(base, SessionOptions{Now: func() time.Time { return at }, Logger: logger.Discard()})
	require.Error(t, err)
	assert.ErrorIs(t, err, jerrors.ErrNotDirectory)
	var se *jerrors.SessionError
	assert.ErrorAs(t, err, &se)
}

func TestNewSession_CreatesMissingBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "recordings")
	s, err := NewSession(base, SessionOptions{Logger: logger.Discard()})
	require.NoError(t, err)
	assert.DirExists(t, s.Dir())
}

func TestSession_EndToEndSingleClient(t *testing.T) {
	s := newTestSession(t)
	for i := 0; i < 3; i++ {
		assert.Equal(t, FrameRecorded, frame(t, s, 0, "Alice", testAddr, 2))
	}
	require.NoError(t, s.DisconnectClient(0))
	require.NoError(t, s.End())

	tracks := s.Tracks()
	require.Len(t, tracks, 1)
	items := tracks["Alice"]
	require.Len(t, items, 1)
	assert.EqualValues(t, 3, items[0].Length)
	assert.Equal(t, 2, items[0].Channels)
	assert.EqualValues(t, 0, items[0].StartFrame)
	assert.EqualValues(t, 3, s.CurrentFrame())
}

func TestSession_StaleFrameAfterDisconnectIsDroppedOnce(t *testing.T) {
	s := newTestSession(t)
	frame(t, s, 0, "Alice", testAddr, 2)
	frame(t, s, 0, "Alice", testAddr, 2)
	require.NoError(t, s.DisconnectClient(0))
	require.Len(t, s.Connections(), 1)
	counter := s.CurrentFrame()

	assert.Equal(t, FrameDroppedStale, frame(t, s, 0, "Alice", testAddr, 2))
	assert.Len(t, s.Connections(), 1, "stale frame must not finalize anything")
	assert.Nil(t, s.ActiveClient(0), "stale frame must not open a recording")
	assert.Equal(t, counter, s.CurrentFrame())

	assert.Equal(t, FrameRecorded, frame(t, s, 0, "Alice", testAddr, 2))
	c := s.ActiveClient(0)
	require.NotNil(t, c)
	assert.Equal(t, counter, c.StartFrame())
	assert.EqualValues(t, 1, c.FrameCount())
}

func TestSession_StaleMarkerOnlyMatchesSameChannel(t *testing.T) {
	s := newTestSession(t)
	frame(t, s, 0, "Alice", testAddr, 2)
	require.NoError(t, s.DisconnectClient(0))

	other := Address{Host: "10.0.0.2", Port: 1}
	assert.Equal(t, FrameRecorded, frame(t, s, 1, "Bob", other, 1))
	assert.Equal(t, FrameDroppedStale, frame(t, s, 0, "Alice", testAddr, 2))
}

func TestSession_DisconnectEmptySlotIsNoop(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.DisconnectClient(3))
	require.NoError(t, s.DisconnectClient(-1))
	require.NoError(t, s.DisconnectClient(MaxChannels))
	assert.Empty(t, s.Connections())
	assert.Equal(t, FrameRecorded, frame(t, s, 3, "Eve", testAddr, 1), "no marker armed by a no-op disconnect")
}

func TestSession_ChannelCountTwoToZeroAndBack(t *testing.T) {
	s := newTestSession(t)
	for i := 0; i < 3; i++ {
		frame(t, s, 0, "Alice", testAddr, 2)
	}
	require.EqualValues(t, 3, s.CurrentFrame())

	// 2 -> 0 finalizes the segment and opens nothing.
	assert.Equal(t, FrameDroppedNoClient, frame(t, s, 0, "Alice", testAddr, 0))
	require.Len(t, s.Connections(), 1)
	assert.EqualValues(t, 3, s.Connections()[0].Length)
	assert.Nil(t, s.ActiveClient(0))

	// Another client keeps the session clock running meanwhile.
	bob := Address{Host: "10.0.0.2", Port: 4000}
	for i := 0; i < 4; i++ {
		frame(t, s, 1, "Bob", bob, 1)
	}

	// The finalize above went through DisconnectClient, which arms the
	// one-shot marker, so the first frame back is consumed as stale.
	assert.Equal(t, FrameDroppedStale, frame(t, s, 0, "Alice", testAddr, 2))

	counter := s.CurrentFrame()
	assert.Equal(t, FrameRecorded, frame(t, s, 0, "Alice", testAddr, 2))
	c := s.ActiveClient(0)
	require.NotNil(t, c)
	assert.Equal(t, counter, c.StartFrame())
	assert.Equal(t, 2, c.Channels())
}

func TestSession_AddressChangeStartsNewSegment(t *testing.T) {
	s := newTestSession(t)
	frame(t, s, 0, "Alice", testAddr, 2)
	moved := Address{Host: testAddr.Host, Port: testAddr.Port + 1}

	assert.Equal(t, FrameRecorded, frame(t, s, 0, "Alice", moved, 2))
	require.Len(t, s.Connections(), 1)
	c := s.ActiveClient(0)
	require.NotNil(t, c)
	assert.Equal(t, moved, c.Address())
	assert.EqualValues(t, 1, c.StartFrame())
	assert.NotEqual(t, s.Connections()[0].Path, c.Path())
}

func TestSession_OutOfRangeChannel(t *testing.T) {
	s := newTestSession(t)
	res, err := s.Frame(MaxChannels, "X", testAddr, 1, pcmFrame(1, 4, 0), 4)
	assert.Equal(t, FrameDroppedNoClient, res)
	assert.ErrorIs(t, err, jerrors.ErrChannelOutOfRange)
	_, err = s.Frame(-1, "X", testAddr, 1, pcmFrame(1, 4, 0), 4)
	assert.ErrorIs(t, err, jerrors.ErrChannelOutOfRange)
}

func TestSession_ClientOpenFailureLeavesSlotEmpty(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, os.RemoveAll(s.Dir()))
	require.NoError(t, os.WriteFile(s.Dir(), []byte("not a dir"), 0o644))

	res, err := s.Frame(0, "Alice", testAddr, 2, pcmFrame(2, 4, 0), 4)
	assert.Equal(t, FrameDroppedNoClient, res)
	var ce *jerrors.ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "client.open", ce.Op)
	assert.Nil(t, s.ActiveClient(0))
	assert.EqualValues(t, 0, s.CurrentFrame())
}

func TestSession_CounterMonotonicStepAtMostOne(t *testing.T) {
	s := newTestSession(t)
	rng := rand.New(rand.NewSource(7))
	addrs := []Address{{"10.0.0.1", 1}, {"10.0.0.2", 2}, {"10.0.0.3", 3}, {"10.0.0.4", 4}}

	prev := s.CurrentFrame()
	for i := 0; i < 2000; i++ {
		ch := rng.Intn(len(addrs))
		if rng.Intn(20) == 0 {
			require.NoError(t, s.DisconnectClient(ch))
		} else {
			channels := 1 + rng.Intn(2)
			if rng.Intn(50) == 0 {
				channels = 0
			}
			_, err := s.Frame(ch, "c", addrs[ch], channels, pcmFrame(channels, 8, 0), 8)
			require.NoError(t, err)
		}
		cur := s.CurrentFrame()
		require.GreaterOrEqual(t, cur, prev)
		require.LessOrEqual(t, cur-prev, int64(1))
		prev = cur
	}
}

func TestSession_CounterFollowsFurthestClient(t *testing.T) {
	s := newTestSession(t)
	bob := Address{Host: "10.0.0.2", Port: 2}
	// Two synchronized clients share the clock instead of summing it. Bob
	// joins one frame after Alice and stays furthest ahead.
	for i := 0; i < 5; i++ {
		frame(t, s, 0, "Alice", testAddr, 2)
		frame(t, s, 1, "Bob", bob, 1)
	}
	require.NotNil(t, s.ActiveClient(1))
	assert.EqualValues(t, 1, s.ActiveClient(1).StartFrame())
	assert.EqualValues(t, 6, s.CurrentFrame())
}

func TestSession_EndFinalizesAllActiveSlots(t *testing.T) {
	s := newTestSession(t)
	frame(t, s, 0, "Alice", testAddr, 2)
	frame(t, s, 5, "Bob", Address{Host: "10.0.0.2", Port: 2}, 1)
	frame(t, s, 9, "Carol", Address{Host: "10.0.0.3", Port: 3}, 2)
	assert.Equal(t, 3, s.ActiveCount())

	var finalized []int
	s.onFinalize = func(ch int, _ TrackItem) { finalized = append(finalized, ch) }
	require.NoError(t, s.End())
	assert.Equal(t, 0, s.ActiveCount())
	assert.Len(t, s.Connections(), 3)
	assert.Equal(t, []int{0, 5, 9}, finalized)

	require.NoError(t, s.End(), "second End is a no-op")
	assert.Len(t, s.Connections(), 3)
}

func TestSession_TracksGroupByFinalizeTimeName(t *testing.T) {
	s := newTestSession(t)
	frame(t, s, 0, "Alice", testAddr, 2)
	assert.Equal(t, FrameRecorded, frame(t, s, 0, "Alice", testAddr, 1)) // new segment
	assert.Equal(t, FrameDroppedStale, frame(t, s, 0, "Alice", testAddr, 1))
	assert.Equal(t, FrameRecorded, frame(t, s, 0, "Ally", testAddr, 1)) // renamed before finalize
	require.NoError(t, s.End())

	tracks := s.Tracks()
	assert.Equal(t, []string{"Alice-10.0.0.1_22124", "Ally-10.0.0.1_22124"}, tracks.Names())
	assert.Len(t, tracks["Alice-10.0.0.1_22124"], 1)
	require.Len(t, tracks["Ally-10.0.0.1_22124"], 1)
	assert.EqualValues(t, 2, tracks["Ally-10.0.0.1_22124"][0].Length)
	assert.Equal(t, "Ally", tracks["Ally-10.0.0.1_22124"][0].Name)
	assert.Equal(t, 2, tracks.Len())
}

func TestTracksFromSessionDir_AddressChangeSameKeys(t *testing.T) {
	s := newTestSession(t)
	first := Address{Host: "10.0.0.1", Port: 1}
	second := Address{Host: "10.0.0.1", Port: 2}
	for i := 0; i < 3; i++ {
		frame(t, s, 0, "Alice", first, 2)
	}
	assert.Equal(t, FrameRecorded, frame(t, s, 0, "Alice", second, 2))
	assert.Equal(t, FrameDroppedStale, frame(t, s, 0, "Alice", second, 2))
	frame(t, s, 0, "Alice", second, 2)
	require.NoError(t, s.End())

	live := s.Tracks()
	offline, err := TracksFromSessionDir(s.Dir(), testFrameSize)
	require.NoError(t, err)

	want := []string{"Alice-10.0.0.1_1", "Alice-10.0.0.1_2"}
	assert.Equal(t, want, live.Names())
	assert.Equal(t, want, offline.Names())
	for _, key := range want {
		require.Len(t, live[key], 1, key)
		require.Len(t, offline[key], 1, key)
		assert.Equal(t, live[key][0].Path, offline[key][0].Path)
		assert.Equal(t, live[key][0].StartFrame, offline[key][0].StartFrame)
		assert.Equal(t, live[key][0].Length, offline[key][0].Length)
	}
	assert.EqualValues(t, 3, live["Alice-10.0.0.1_1"][0].Length)
	assert.EqualValues(t, 2, live["Alice-10.0.0.1_2"][0].Length)
}

// shape reduces a track map to its grouping and item geometry, ignoring
// track keys and item order.
func shape(tracks Tracks) [][]TrackItem {
	var groups [][]TrackItem
	for _, items := range tracks {
		g := make([]TrackItem, len(items))
		for i, it := range items {
			it.Name = ""
			g[i] = it
		}
		sort.Slice(g, func(i, j int) bool { return g[i].Path < g[j].Path })
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0].Path < groups[j][0].Path })
	return groups
}

func TestTracksFromSessionDir_MatchesLiveTracks(t *testing.T) {
	s := newTestSession(t)
	bob := Address{Host: "10.0.0.2", Port: 4000}
	for i := 0; i < 3; i++ {
		frame(t, s, 0, "Alice", testAddr, 2)
		frame(t, s, 1, "Bob", bob, 1)
	}
	frame(t, s, 0, "Alice", testAddr, 1) // Alice switches to mono: second segment
	frame(t, s, 0, "Alice", testAddr, 1) // consumed by the one-shot marker
	for i := 0; i < 4; i++ {
		frame(t, s, 0, "Alice", testAddr, 1)
	}
	require.NoError(t, s.DisconnectClient(1))
	frame(t, s, 1, "Bob", bob, 1) // stale, dropped
	frame(t, s, 1, "Bob", bob, 1) // Bob is back
	require.NoError(t, s.End())

	// A foreign file is ignored by the scanner.
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.wav"), []byte("x"), 0o644))

	live := s.Tracks()
	offline, err := TracksFromSessionDir(s.Dir(), testFrameSize)
	require.NoError(t, err)

	assert.Equal(t, live.Len(), offline.Len())
	assert.Equal(t, shape(live), shape(offline))
	assert.Equal(t, []string{"Alice-10.0.0.1_22124", "Bob-10.0.0.2_4000"}, offline.Names())
	assert.Equal(t, live.Names(), offline.Names())
}

func TestTracksFromSessionDir_Errors(t *testing.T) {
	_, err := TracksFromSessionDir(filepath.Join(t.TempDir(), "missing"), testFrameSize)
	assert.Error(t, err)
	_, err = TracksFromSessionDir(t.TempDir(), 0)
	assert.Error(t, err)
}

func TestNewSession_SameMillisecondGetsFreshDirectory(t *testing.T) {
	base := t.TempDir()
	at := time.Date(2024, 1, 1, 0, 0, 0, 5_000_000, time.UTC)
	now := func() time.Time { return at }

	first, err := NewSession(base, SessionOptions{Now: now, Logger: logger.Discard()})
	require.NoError(t, err)
	second, err := NewSession(base, SessionOptions{Now: now, Logger: logger.Discard()})
	require.NoError(t, err)

	assert.Equal(t, "Jam-20240101-000000005", first.Name())
	assert.Equal(t, "Jam-20240101-000000006", second.Name())
	assert.NotEqual(t, first.Dir(), second.Dir())
	assert.Equal(t, at.Add(time.Millisecond), second.Started())
}

func TestSession_FullSegmentRollsOver(t *testing.T) {
	prev := maxDataBytes
	maxDataBytes = 3 * testFrameSize * SampleWidth // three mono frames
	t.Cleanup(func() { maxDataBytes = prev })

	s := newTestSession(t)
	for i := 0; i < 5; i++ {
		assert.Equal(t, FrameRecorded, frame(t, s, 0, "Alice", testAddr, 1), "frame %d", i)
	}
	assert.EqualValues(t, 5, s.CurrentFrame())
	require.NoError(t, s.End())

	conns := s.Connections()
	require.Len(t, conns, 2)
	assert.EqualValues(t, 0, conns[0].StartFrame)
	assert.EqualValues(t, 3, conns[0].Length)
	assert.EqualValues(t, 3, conns[1].StartFrame)
	assert.EqualValues(t, 2, conns[1].Length)

	for _, c := range conns {
		info, err := os.Stat(c.Path)
		require.NoError(t, err)
		assert.EqualValues(t, WAVHeaderSize+c.Length*testFrameSize*SampleWidth, info.Size())
		assert.EqualValues(t, c.Length*testFrameSize*SampleWidth, readDataSize(t, c.Path))
	}

	offline, err := TracksFromSessionDir(s.Dir(), testFrameSize)
	require.NoError(t, err)
	assert.Equal(t, s.Tracks().Names(), offline.Names())
	assert.Equal(t, 2, offline.Len())
}
