package recording

// Jam Session
// -----------
// A session owns one timestamped directory and a fixed-size slot table of
// active client recordings indexed by server channel id. Concurrency model:
// every method is called from the recorder's single loop goroutine; there
// are no locks.
//
// Known limitation: the global frame counter advances by at most one per
// processed frame and follows whichever client is furthest ahead. Clients
// that overtake by more than one frame at once, or one that never catches
// up, drift relative to each other in exported offsets.

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	jerrors "github.com/alxayo/go-jamrec/internal/errors"
	"github.com/alxayo/go-jamrec/internal/logger"
)

// MaxChannels is the server channel id space and the default slot table size.
const MaxChannels = 150

// DirPrefix prefixes every session directory name.
const DirPrefix = "Jam-"

// dirTimeLayout renders yyyyMMdd-HHmmsszzz (the millisecond dot is removed).
const dirTimeLayout = "20060102-150405.000"

// FrameResult reports what Session.Frame did with a frame.
type FrameResult int

const (
	FrameRecorded FrameResult = iota
	FrameDroppedStale
	FrameDroppedNoClient
)

func (r FrameResult) String() string {
	switch r {
	case FrameRecorded:
		return "recorded"
	case FrameDroppedStale:
		return "stale"
	case FrameDroppedNoClient:
		return "no_client"
	}
	return "unknown"
}

// SessionOptions tunes a Session. Zero values pick defaults.
type SessionOptions struct {
	MaxChannels int
	Now         func() time.Time
	Logger      *slog.Logger
	// OnFinalize observes every finalized segment (metrics, hooks).
	OnFinalize func(channelID int, item TrackItem)
}

// disconnectMarker is the one-shot "just disconnected" channel id.
type disconnectMarker struct {
	channelID int
	set       bool
}

// Session is one continuous recording rooted at one directory.
type Session struct {
	dir     string
	name    string
	started time.Time
	log     *slog.Logger

	clients          []*Client
	connections      []TrackItem
	currentFrame     int64
	justDisconnected disconnectMarker
	onFinalize       func(int, TrackItem)
}

// NewSession creates a fresh baseDir/Jam-<UTC timestamp> and verifies it is
// writable. An existing session directory is never reused.
func NewSession(baseDir string, opts SessionOptions) (*Session, error) {
	if opts.MaxChannels <= 0 {
		opts.MaxChannels = MaxChannels
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Logger().With("component", "session")
	}

	base, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, jerrors.NewSessionError("session.path", err)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, jerrors.NewSessionError("dir.create", fmt.Errorf("%s: %w", base, err))
	}
	started, name, dir, err := createSessionDir(base, opts.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := EnsureWritableDir(dir); err != nil {
		return nil, err
	}

	return &Session{
		dir:        dir,
		name:       name,
		started:    started,
		log:        logger.WithSession(opts.Logger, dir),
		clients:    make([]*Client, opts.MaxChannels),
		onFinalize: opts.OnFinalize,
	}, nil
}

// maxDirAttempts bounds the search for a free session directory name.
const maxDirAttempts = 1000

// sessionDirName renders Jam-<yyyyMMdd-HHmmsszzz> for t.
func sessionDirName(t time.Time) string {
	return DirPrefix + strings.Replace(t.Format(dirTimeLayout), ".", "", 1)
}

// createSessionDir creates a new session directory under base. A directory
// already taken (a restart within the same millisecond) moves the stamp on
// by one millisecond; an existing non-directory is an error.
func createSessionDir(base string, started time.Time) (time.Time, string, string, error) {
	for i := 0; i < maxDirAttempts; i++ {
		name := sessionDirName(started)
		dir := filepath.Join(base, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return started, name, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return time.Time{}, "", "", jerrors.NewSessionError("dir.create", fmt.Errorf("%s: %w", dir, err))
		}
		info, statErr := os.Stat(dir)
		if statErr != nil {
			return time.Time{}, "", "", jerrors.NewSessionError("dir.stat", fmt.Errorf("%s: %w", dir, statErr))
		}
		if !info.IsDir() {
			return time.Time{}, "", "", jerrors.NewSessionError("dir.check", fmt.Errorf("%s: %w", dir, jerrors.ErrNotDirectory))
		}
		started = started.Add(time.Millisecond)
	}
	return time.Time{}, "", "", jerrors.NewSessionError("dir.create", fmt.Errorf("no free session directory under %s", base))
}

// EnsureWritableDir creates dir if absent and fails if it is not a directory
// or cannot be written to.
func EnsureWritableDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return jerrors.NewSessionError("dir.create", fmt.Errorf("%s does not exist but could not be created: %w", dir, err))
		}
	case err != nil:
		return jerrors.NewSessionError("dir.stat", fmt.Errorf("%s: %w", dir, err))
	case !info.IsDir():
		return jerrors.NewSessionError("dir.check", fmt.Errorf("%s: %w", dir, jerrors.ErrNotDirectory))
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return jerrors.NewSessionError("dir.check", fmt.Errorf("%s: %w: %v", dir, jerrors.ErrNotWritable, err))
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// Dir returns the absolute session directory.
func (s *Session) Dir() string { return s.dir }

// Name returns the session directory base name ("Jam-...").
func (s *Session) Name() string { return s.name }

// Started returns the UTC session start time.
func (s *Session) Started() time.Time { return s.started }

// CurrentFrame returns the session-wide frame counter.
func (s *Session) CurrentFrame() int64 { return s.currentFrame }

// ActiveClient returns the client recording in channelID's slot, or nil.
func (s *Session) ActiveClient(channelID int) *Client {
	if channelID < 0 || channelID >= len(s.clients) {
		return nil
	}
	return s.clients[channelID]
}

// ActiveCount returns the number of occupied slots.
func (s *Session) ActiveCount() int {
	n := 0
	for _, c := range s.clients {
		if c != nil {
			n++
		}
	}
	return n
}

// Connections returns a copy of the finalized segments in append order.
func (s *Session) Connections() []TrackItem {
	out := make([]TrackItem, len(s.connections))
	copy(out, s.connections)
	return out
}

// DisconnectClient finalizes the recording in channelID's slot, records it
// as a track item, clears the slot and arms the one-shot stale frame marker.
// An empty slot is a logged no-op.
func (s *Session) DisconnectClient(channelID int) error {
	if s.ActiveClient(channelID) == nil {
		s.log.Warn("disconnect for channel without active recording", "channel_id", channelID)
		return nil
	}
	err := s.finalize(channelID)
	s.justDisconnected = disconnectMarker{channelID: channelID, set: true}
	return err
}

// finalize closes the segment in channelID's slot, appends its track item
// and clears the slot. The slot must be occupied.
func (s *Session) finalize(channelID int) error {
	c := s.clients[channelID]
	err := c.Disconnect()
	item := c.Item()
	s.connections = append(s.connections, item)
	s.clients[channelID] = nil

	s.log.Info("client segment finalized",
		"channel_id", channelID,
		"client_name", item.Name,
		"start_frame", item.StartFrame,
		"frames", item.Length,
		"file", filepath.Base(item.Path))
	if s.onFinalize != nil {
		s.onFinalize(channelID, item)
	}
	if err != nil {
		return jerrors.NewClientError("client.finalize", channelID, err)
	}
	return nil
}

// Frame processes one frame for channelID. A frame that arrives right after
// that channel was disconnected is dropped once; a change of channel count,
// host or port starts a new segment; a zero channel count leaves the slot
// empty.
func (s *Session) Frame(channelID int, name string, addr Address, channels int, pcm []int16, frameSize int) (FrameResult, error) {
	if channelID < 0 || channelID >= len(s.clients) {
		return FrameDroppedNoClient, jerrors.NewClientError("session.frame", channelID, jerrors.ErrChannelOutOfRange)
	}

	if s.justDisconnected.set && s.justDisconnected.channelID == channelID {
		s.justDisconnected = disconnectMarker{}
		s.log.Debug("dropping late frame for disconnected channel", "channel_id", channelID)
		return FrameDroppedStale, nil
	}

	var finalizeErr error
	c := s.clients[channelID]
	if c == nil {
		if channels > 0 {
			nc, err := s.open(channelID, s.currentFrame, channels, name, addr)
			if err != nil {
				return FrameDroppedNoClient, err
			}
			c = nc
		}
	} else if channels != c.Channels() || addr.Host != c.Address().Host || addr.Port != c.Address().Port {
		s.log.Info("client stream parameters changed",
			"channel_id", channelID,
			"channels", channels,
			"prev_channels", c.Channels(),
			"client_addr", addr.String(),
			"prev_addr", c.Address().String())
		finalizeErr = s.DisconnectClient(channelID)
		c = nil
		if channels != 0 {
			nc, err := s.open(channelID, s.currentFrame, channels, name, addr)
			if err != nil {
				return FrameDroppedNoClient, errors.Join(finalizeErr, err)
			}
			c = nc
		}
	}

	if c == nil {
		return FrameDroppedNoClient, finalizeErr
	}

	if !c.Fits(frameSize) {
		// Continue seamlessly in a new file; this is not a disconnect, so
		// the stale marker stays untouched.
		next := c.StartFrame() + c.FrameCount()
		s.log.Info("segment reached size limit, rolling over",
			"channel_id", channelID,
			"frames", c.FrameCount())
		if err := s.finalize(channelID); err != nil {
			finalizeErr = errors.Join(finalizeErr, err)
		}
		nc, err := s.open(channelID, next, c.Channels(), name, addr)
		if err != nil {
			return FrameDroppedNoClient, errors.Join(finalizeErr, err)
		}
		c = nc
	}

	if err := c.Frame(name, pcm, frameSize); err != nil {
		return FrameDroppedNoClient, errors.Join(finalizeErr, jerrors.NewClientError("client.write", channelID, err))
	}

	if c.StartFrame()+c.FrameCount() > s.currentFrame {
		s.currentFrame++
	}
	return FrameRecorded, finalizeErr
}

// open starts a new recording in channelID's slot at startFrame.
// A zero channel count never reaches here.
func (s *Session) open(channelID int, startFrame int64, channels int, name string, addr Address) (*Client, error) {
	c, err := NewClient(startFrame, channels, name, addr, s.dir)
	if err != nil {
		return nil, jerrors.NewClientError("client.open", channelID, err)
	}
	s.clients[channelID] = c
	logger.WithClient(s.log, name, addr.String()).Info("client recording opened",
		"channel_id", channelID,
		"start_frame", c.StartFrame(),
		"channels", channels,
		"file", filepath.Base(c.Path()))
	return c, nil
}

// End finalizes every active slot. Errors from individual clients are
// joined; every slot is still cleared.
func (s *Session) End() error {
	var errs []error
	for id, c := range s.clients {
		if c == nil {
			continue
		}
		if err := s.DisconnectClient(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
