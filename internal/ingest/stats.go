package ingest

// Producer Stats
// --------------
// Per-connection counters for the ingest stream: frames, control messages,
// payload bytes and the set of channel ids seen. The first frame is logged
// at INFO, every frame at DEBUG, and a summary every StatsInterval plus one
// when the producer goes away.

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// DefaultStatsInterval is the summary period when Config.StatsInterval is 0.
const DefaultStatsInterval = 30 * time.Second

// ConnStats tracks one producer connection.
type ConnStats struct {
	log *slog.Logger
	mu  sync.Mutex

	frames   uint64
	controls uint64
	bytes    uint64
	channels map[int]struct{}

	first time.Time
	last  time.Time

	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

// NewConnStats starts periodic summaries; call Stop when the connection
// ends.
func NewConnStats(log *slog.Logger, interval time.Duration) *ConnStats {
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	cs := &ConnStats{
		log:      log,
		channels: make(map[int]struct{}),
		ticker:   time.NewTicker(interval),
		stop:     make(chan struct{}),
	}
	go cs.loop()
	return cs
}

// Observe accounts one decoded message of payload size n.
func (cs *ConnStats) Observe(m Message, n int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	now := time.Now()
	cs.last = now
	cs.bytes += uint64(n)
	if m.Type != MsgFrame {
		cs.controls++
		return
	}
	if cs.first.IsZero() {
		cs.first = now
		cs.log.Info("first frame received",
			"channel_id", m.Frame.ChannelID,
			"client_name", m.Frame.Name,
			"channels", m.Frame.Channels)
	}
	cs.frames++
	cs.channels[m.Frame.ChannelID] = struct{}{}
	cs.log.Debug("frame",
		"channel_id", m.Frame.ChannelID,
		"channels", m.Frame.Channels,
		"samples", len(m.Frame.PCM))
}

func (cs *ConnStats) loop() {
	for {
		select {
		case <-cs.stop:
			return
		case <-cs.ticker.C:
			cs.logSummary("ingest statistics")
		}
	}
}

func (cs *ConnStats) logSummary(msg string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.frames == 0 && cs.controls == 0 {
		return
	}
	cs.log.Info(msg,
		"frames", cs.frames,
		"control_messages", cs.controls,
		"received", humanize.IBytes(cs.bytes),
		"channel_ids", len(cs.channels),
		"active_for", cs.last.Sub(cs.first).Round(time.Millisecond).String())
}

// Stop halts the summaries and logs a final one. Safe to call twice.
func (cs *ConnStats) Stop() {
	cs.once.Do(func() {
		close(cs.stop)
		cs.ticker.Stop()
		cs.logSummary("producer totals")
	})
}

// Snapshot returns frames, control messages and payload bytes so far.
func (cs *ConnStats) Snapshot() (frames, controls, bytes uint64) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.frames, cs.controls, cs.bytes
}
