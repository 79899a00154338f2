package errors

import (
	stdErrors "errors"
	"fmt"
)

// Sentinel causes wrapped by the typed errors below.
var (
	ErrTargetExists       = stdErrors.New("target already exists")
	ErrNotDirectory       = stdErrors.New("exists but is not a directory")
	ErrNotWritable        = stdErrors.New("directory is not writable")
	ErrChannelOutOfRange  = stdErrors.New("channel id out of range")
	ErrRecorderClosed     = stdErrors.New("recorder closed")
	ErrBaseDirLocked      = stdErrors.New("recording base directory locked by another recorder")
	ErrMalformedTrackName = stdErrors.New("malformed track file name")
)

// recordingMarker is implemented by all recording-layer error types so we can classify them.
type recordingMarker interface {
	error
	isRecording()
}

// SessionError is raised while creating, locking or finalizing a session directory.
type SessionError struct {
	Op  string // high-level operation (e.g. "session.mkdir", "basedir.lock")
	Err error  // underlying cause (may be nil)
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session error: %s", e.Op)
	}
	return fmt.Sprintf("session error: %s: %v", e.Op, e.Err)
}
func (e *SessionError) Unwrap() error { return e.Err }
func (e *SessionError) isRecording()  {}

// ClientError indicates a failure on one client's recording segment.
type ClientError struct {
	Op        string
	ChannelID int
	Err       error
}

func (e *ClientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("client error: %s (channel %d)", e.Op, e.ChannelID)
	}
	return fmt.Sprintf("client error: %s (channel %d): %v", e.Op, e.ChannelID, e.Err)
}
func (e *ClientError) Unwrap() error { return e.Err }
func (e *ClientError) isRecording()  {}

// ExportError indicates a project file could not be produced.
type ExportError struct {
	Op   string
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("export error: %s %s", e.Op, e.Path)
	}
	return fmt.Sprintf("export error: %s %s: %v", e.Op, e.Path, e.Err)
}
func (e *ExportError) Unwrap() error { return e.Err }
func (e *ExportError) isRecording()  {}

// IngestError indicates a malformed or truncated inbound event message.
// It is not a recording error: the recorder never sees the message.
type IngestError struct {
	Op  string
	Err error
}

func (e *IngestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ingest error: %s", e.Op)
	}
	return fmt.Sprintf("ingest error: %s: %v", e.Op, e.Err)
}
func (e *IngestError) Unwrap() error { return e.Err }

// IsRecordingError returns true if the error chain contains any recording-layer
// error (SessionError, ClientError, ExportError).
func IsRecordingError(err error) bool {
	if err == nil {
		return false
	}
	var rm recordingMarker
	return stdErrors.As(err, &rm)
}

// IsIngestError returns true if err is (or wraps) an IngestError.
func IsIngestError(err error) bool {
	var ie *IngestError
	return stdErrors.As(err, &ie)
}

// Constructors (encourage contextual wrapping with %w when used by callers).
func NewSessionError(op string, cause error) error { return &SessionError{Op: op, Err: cause} }
func NewClientError(op string, channelID int, cause error) error {
	return &ClientError{Op: op, ChannelID: channelID, Err: cause}
}
func NewExportError(op, path string, cause error) error {
	return &ExportError{Op: op, Path: path, Err: cause}
}
func NewIngestError(op string, cause error) error { return &IngestError{Op: op, Err: cause} }

// Usage pattern example:
//  if err := os.MkdirAll(dir, 0o755); err != nil {
//      return NewSessionError("session.mkdir", fmt.Errorf("%s: %w", dir, err))
//  }
// Keep layering context with fmt.Errorf("...: %w", err).
