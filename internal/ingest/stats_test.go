package ingest

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alxayo/go-jamrec/internal/recorder"
)

func TestConnStats_CountsAndFinalSummary(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cs := NewConnStats(log, time.Hour)

	frame := Message{Type: MsgFrame, Frame: recorder.FrameEvent{ChannelID: 3, Name: "Alice", Channels: 2, PCM: make([]int16, 4)}}
	cs.Observe(frame, 20)
	cs.Observe(frame, 20)
	cs.Observe(Message{Type: MsgFrame, Frame: recorder.FrameEvent{ChannelID: 4, Channels: 1}}, 10)
	cs.Observe(Message{Type: MsgRestart}, 0)

	frames, controls, n := cs.Snapshot()
	assert.EqualValues(t, 3, frames)
	assert.EqualValues(t, 1, controls)
	assert.EqualValues(t, 50, n)

	cs.Stop()
	cs.Stop()

	out := buf.String()
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("first frame received")))
	require.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("producer totals")))
	assert.Contains(t, out, "frames=3")
	assert.Contains(t, out, "channel_ids=2")
	assert.Contains(t, out, `received="50 B"`)
}

func TestConnStats_PeriodicSummary(t *testing.T) {
	var buf syncBuffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	cs := NewConnStats(log, 10*time.Millisecond)
	defer cs.Stop()

	cs.Observe(Message{Type: MsgStop}, 0)
	require.Eventually(t, func() bool {
		return bytes.Contains(buf.Bytes(), []byte("ingest statistics"))
	}, time.Second, 5*time.Millisecond)
}

func TestConnStats_SilentConnectionLogsNothing(t *testing.T) {
	var buf bytes.Buffer
	cs := NewConnStats(slog.New(slog.NewTextHandler(&buf, nil)), time.Hour)
	cs.Stop()
	assert.NotContains(t, buf.String(), "producer totals")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}
