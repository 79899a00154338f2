// Package recorder is the top-level jam session controller. It owns at most
// one active recording.Session and applies server events to it one at a
// time on a dedicated goroutine, so the audio path only ever enqueues.
//
// States: Idle (no session) and Recording. The first frame while Idle
// starts a session; Stop and ServerStopped end it and write the project
// files; Restart ends and starts only while Recording; Quit ends the session
// and stops the loop after every previously queued event was applied.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	jerrors "github.com/alxayo/go-jamrec/internal/errors"
	"github.com/alxayo/go-jamrec/internal/export"
	"github.com/alxayo/go-jamrec/internal/hooks"
	"github.com/alxayo/go-jamrec/internal/logger"
	"github.com/alxayo/go-jamrec/internal/recording"
)

// LockFileName is created in the base directory and held while a recorder
// is alive.
const LockFileName = ".jamrec.lock"

// DefaultFrameSize is the server frame size in samples per channel.
const DefaultFrameSize = 128

// DefaultQueueSize bounds the number of pending events.
const DefaultQueueSize = 4096

// Config holds recorder knobs.
type Config struct {
	BaseDir     string
	FrameSize   int
	MaxChannels int
	QueueSize   int

	Logger   *slog.Logger
	Notifier hooks.Notifier
	Metrics  *Metrics
	// OnSessionStarted is called on the recorder goroutine with the new
	// session directory.
	OnSessionStarted func(dir string)
	// Now overrides the session clock (tests).
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.MaxChannels <= 0 {
		c.MaxChannels = recording.MaxChannels
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Logger == nil {
		c.Logger = logger.Logger()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Recorder serializes server events onto one goroutine.
type Recorder struct {
	cfg  Config
	log  *slog.Logger
	lock *flock.Flock

	cmds    chan command
	done    chan struct{}
	running atomic.Bool

	// Producers hold mu.RLock while sending, so Quit's mu.Lock orders
	// every accepted command before the quit command. closing releases
	// producers blocked on a full queue.
	mu         sync.RWMutex
	closing    chan struct{}
	closeOnce  sync.Once
	quitQueued atomic.Bool

	// Owned by the Run goroutine.
	session      *recording.Session
	startFailing bool
}

// New checks that the base directory is usable and takes the base
// directory lock. Call Close to release it.
func New(cfg Config) (*Recorder, error) {
	cfg.applyDefaults()
	if cfg.BaseDir == "" {
		return nil, jerrors.NewSessionError("recorder.init", errors.New("base directory not set"))
	}
	base, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, jerrors.NewSessionError("recorder.init", err)
	}
	cfg.BaseDir = base
	if err := recording.EnsureWritableDir(base); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(base, LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, jerrors.NewSessionError("recorder.lock", err)
	}
	if !ok {
		return nil, jerrors.NewSessionError("recorder.lock", fmt.Errorf("%s: %w", base, jerrors.ErrBaseDirLocked))
	}

	return &Recorder{
		cfg:  cfg,
		log:  cfg.Logger.With("component", "recorder"),
		lock: lock,
		cmds:    make(chan command, cfg.QueueSize),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}, nil
}

// BaseDir returns the absolute recording base directory.
func (r *Recorder) BaseDir() string { return r.cfg.BaseDir }

// FrameSize returns the configured samples per channel per frame.
func (r *Recorder) FrameSize() int { return r.cfg.FrameSize }

// Done is closed when the Run loop has exited.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// Frame enqueues one frame. The PCM slice is copied before return.
func (r *Recorder) Frame(ev FrameEvent) error { return r.enqueue(frameCommand(ev)) }

// Disconnected enqueues a client disconnect for channelID.
func (r *Recorder) Disconnected(channelID int) error {
	return r.enqueue(command{kind: cmdDisconnected, channelID: channelID})
}

// Restart enqueues a session restart request; ignored while Idle.
func (r *Recorder) Restart() error { return r.enqueue(command{kind: cmdRestart}) }

// Stop enqueues a request to end the current session.
func (r *Recorder) Stop() error { return r.enqueue(command{kind: cmdStop}) }

// ServerStopped tells the recorder the audio server stopped; the current
// session ends.
func (r *Recorder) ServerStopped() error { return r.enqueue(command{kind: cmdServerStopped}) }

func (r *Recorder) enqueue(c command) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	select {
	case <-r.closing:
		return jerrors.ErrRecorderClosed
	case <-r.done:
		return jerrors.ErrRecorderClosed
	default:
	}
	select {
	case r.cmds <- c:
		return nil
	case <-r.closing:
		return jerrors.ErrRecorderClosed
	case <-r.done:
		return jerrors.ErrRecorderClosed
	}
}

// Quit stops accepting events, lets the loop apply everything already
// queued, ends the session and waits for the loop to exit or ctx to end.
// A Quit that timed out can be retried.
func (r *Recorder) Quit(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.closing) })
	// Producers see closing and return, so this never waits on the loop.
	r.mu.Lock()
	queued := r.quitQueued.Load()
	r.mu.Unlock()

	if !queued {
		select {
		case r.cmds <- command{kind: cmdQuit}:
			r.quitQueued.Store(true)
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the base directory lock. The loop must have exited.
func (r *Recorder) Close() error {
	if err := r.lock.Unlock(); err != nil {
		return fmt.Errorf("release %s: %w", r.lock.Path(), err)
	}
	return nil
}

// Run applies events until Quit or ctx cancellation. Cancellation applies
// what is already queued and ends the session like Quit. Run may be called
// once.
func (r *Recorder) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("recorder already running")
	}
	defer close(r.done)

	r.log.Info("recorder started", "base_dir", r.cfg.BaseDir, "frame_size", r.cfg.FrameSize)
	for {
		select {
		case c := <-r.cmds:
			if r.dispatch(c) {
				return nil
			}
		case <-ctx.Done():
			r.drain()
			r.onAboutToQuit()
			return ctx.Err()
		}
	}
}

// drain applies queued commands without blocking.
func (r *Recorder) drain() {
	for {
		select {
		case c := <-r.cmds:
			if c.kind == cmdQuit {
				continue
			}
			r.dispatch(c)
		default:
			return
		}
	}
}

// dispatch applies one command and reports whether the loop must exit.
func (r *Recorder) dispatch(c command) bool {
	switch c.kind {
	case cmdFrame:
		r.onFrame(c)
	case cmdDisconnected:
		r.onDisconnected(c.channelID)
	case cmdRestart:
		r.onTriggerSession()
	case cmdStop, cmdServerStopped:
		r.onEnd()
	case cmdQuit:
		r.onAboutToQuit()
		return true
	}
	return false
}

// start ends any current session and begins a new one.
func (r *Recorder) start() error {
	r.onEnd()

	s, err := recording.NewSession(r.cfg.BaseDir, recording.SessionOptions{
		MaxChannels: r.cfg.MaxChannels,
		Now:         r.cfg.Now,
		Logger:      r.cfg.Logger.With("component", "session"),
		OnFinalize:  r.segmentFinalized,
	})
	if err != nil {
		return err
	}
	r.session = s
	r.cfg.Metrics.sessionStarted()
	r.log.Info("recording session started", "session_dir", s.Dir())

	r.notify(hooks.NewEvent(hooks.EventSessionStarted).WithSessionDir(s.Dir()))
	if r.cfg.OnSessionStarted != nil {
		r.cfg.OnSessionStarted(s.Dir())
	}
	return nil
}

func (r *Recorder) onFrame(c command) {
	if r.session == nil {
		if err := r.start(); err != nil {
			r.cfg.Metrics.frameDropped(DropError)
			if r.startFailing {
				r.log.Debug("session start still failing", "error", err)
				return
			}
			r.startFailing = true
			r.fail("session.start", "", err)
			return
		}
		r.startFailing = false
	}

	res, err := r.session.Frame(c.channelID, c.name, c.addr, c.channels, c.pcm, r.cfg.FrameSize)
	if err != nil {
		r.fail("session.frame", r.session.Dir(), err)
	}
	switch res {
	case recording.FrameRecorded:
		r.cfg.Metrics.frameRecorded()
	case recording.FrameDroppedStale:
		r.cfg.Metrics.frameDropped(DropStale)
	case recording.FrameDroppedNoClient:
		if err != nil {
			r.cfg.Metrics.frameDropped(DropError)
		} else {
			r.cfg.Metrics.frameDropped(DropNoClient)
		}
	}
	r.cfg.Metrics.setActiveClients(r.session.ActiveCount())
}

func (r *Recorder) onDisconnected(channelID int) {
	if r.session == nil {
		r.log.Warn("client disconnected while not recording", "channel_id", channelID)
		return
	}
	if err := r.session.DisconnectClient(channelID); err != nil {
		r.fail("session.disconnect", r.session.Dir(), err)
	}
	r.cfg.Metrics.setActiveClients(r.session.ActiveCount())
}

// onEnd finalizes the session, writes both project files and returns to
// Idle. A no-op while Idle.
func (r *Recorder) onEnd() {
	s := r.session
	if s == nil {
		return
	}
	if err := s.End(); err != nil {
		r.fail("session.end", s.Dir(), err)
	}
	tracks := s.Tracks()

	r.export(s, export.FormatReaper, export.ExtReaper, export.Reaper{
		Name:      s.Name(),
		Tracks:    tracks,
		FrameSize: r.cfg.FrameSize,
		Created:   s.Started(),
	})
	r.export(s, export.FormatAudacity, export.ExtAudacity, export.LOF{
		Tracks:    tracks,
		FrameSize: r.cfg.FrameSize,
	})

	r.session = nil
	r.cfg.Metrics.setActiveClients(0)
	r.log.Info("recording session ended",
		"session_dir", s.Dir(),
		"tracks", len(tracks),
		"segments", tracks.Len(),
		"frames", s.CurrentFrame())
	r.notify(hooks.NewEvent(hooks.EventSessionEnded).
		WithSessionDir(s.Dir()).
		WithData("tracks", len(tracks)).
		WithData("segments", tracks.Len()).
		WithData("frames", s.CurrentFrame()))
}

// export writes one project file. An existing target is skipped with a
// warning so the other format is still attempted.
func (r *Recorder) export(s *recording.Session, format export.Format, ext string, wt io.WriterTo) {
	path := export.ProjectPath(s.Dir(), ext)
	err := export.WriteFile(path, wt)
	switch {
	case err == nil:
		r.cfg.Metrics.exported(string(format), ExportWritten)
		r.log.Info("project file written", "format", format, "path", path)
		r.notify(hooks.NewEvent(hooks.EventExportWritten).
			WithSessionDir(s.Dir()).
			WithData("format", string(format)).
			WithData("path", path))
	case errors.Is(err, jerrors.ErrTargetExists):
		r.cfg.Metrics.exported(string(format), ExportSkipped)
		r.log.Warn("project file exists, not overwritten", "format", format, "path", path)
	default:
		r.cfg.Metrics.exported(string(format), ExportFailed)
		r.fail("export."+string(format), s.Dir(), err)
	}
}

func (r *Recorder) onTriggerSession() {
	if r.session == nil {
		r.log.Debug("restart ignored while not recording")
		return
	}
	if err := r.start(); err != nil {
		r.fail("session.start", "", err)
	}
}

func (r *Recorder) onAboutToQuit() {
	r.onEnd()
	r.log.Info("recorder stopped")
}

// segmentFinalized runs inside Session.DisconnectClient.
func (r *Recorder) segmentFinalized(channelID int, item recording.TrackItem) {
	r.cfg.Metrics.segmentFinalized()
	dir := ""
	if r.session != nil {
		dir = r.session.Dir()
	}
	r.notify(hooks.NewEvent(hooks.EventSegmentFinalized).
		WithSessionDir(dir).
		WithData("channel_id", channelID).
		WithData("client_name", item.Name).
		WithData("track", item.Track).
		WithData("file", filepath.Base(item.Path)).
		WithData("start_frame", item.StartFrame).
		WithData("frames", item.Length).
		WithData("channels", item.Channels))
}

// fail logs a surfaced error and publishes it to hooks.
func (r *Recorder) fail(op, sessionDir string, err error) {
	r.cfg.Metrics.failed(op)
	r.log.Error("recording error", "op", op, "error", err)
	r.notify(hooks.NewEvent(hooks.EventRecordingError).
		WithSessionDir(sessionDir).
		WithData("op", op).
		WithData("error", err.Error()))
}

func (r *Recorder) notify(e *hooks.Event) {
	if r.cfg.Notifier != nil {
		r.cfg.Notifier.Notify(context.Background(), *e)
	}
}
