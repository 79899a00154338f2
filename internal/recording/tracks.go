package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	jerrors "github.com/alxayo/go-jamrec/internal/errors"
	"github.com/alxayo/go-jamrec/internal/logger"
)

// TrackItem is an immutable record of one finalized segment.
type TrackItem struct {
	Channels   int
	StartFrame int64
	Length     int64 // frames
	// Name is the client display name (sanitized when read back from disk).
	Name string
	// Track is the grouping key, "<sanitized name>-<host_port>".
	Track string
	Path  string
}

// Tracks maps a track name to its segments in discovery order.
type Tracks map[string][]TrackItem

// Names returns the track names sorted, which is the iteration order used by
// every exporter.
func (t Tracks) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the total number of segments over all tracks.
func (t Tracks) Len() int {
	n := 0
	for _, items := range t {
		n += len(items)
	}
	return n
}

// Tracks groups the finalized segments by client identity: the name at
// finalize time plus the address. A client that renamed or moved
// mid-session yields one key per identity.
func (s *Session) Tracks() Tracks {
	tracks := make(Tracks)
	for _, item := range s.connections {
		tracks[item.Track] = append(tracks[item.Track], item)
	}
	return tracks
}

// TracksFromSessionDir rebuilds the track map from the files of a finished
// session directory, grouping by "name-hostport". Files that do not follow
// the recording file name grammar are skipped.
func TracksFromSessionDir(dir string, frameSize int) (Tracks, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("tracks from %s: invalid frame size %d", dir, frameSize)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, jerrors.NewSessionError("tracks.path", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, jerrors.NewSessionError("tracks.readdir", err)
	}

	log := logger.WithSession(logger.Logger().With("component", "tracks"), abs)
	tracks := make(Tracks)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != FileExt {
			continue
		}
		parsed, err := parseFileName(entry.Name())
		if err != nil {
			log.Warn("skipping unrecognised file", "file", entry.Name(), "error", err)
			continue
		}
		info, err := entry.Info()
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, jerrors.NewSessionError("tracks.stat", err)
		}

		data := info.Size() - WAVHeaderSize
		if data < 0 {
			data = 0
		}
		tracks[parsed.trackName] = append(tracks[parsed.trackName], TrackItem{
			Channels:   parsed.channels,
			StartFrame: parsed.startFrame,
			Length:     data / int64(parsed.channels*frameSize*SampleWidth),
			Name:       parsed.name,
			Track:      parsed.trackName,
			Path:       filepath.Join(abs, entry.Name()),
		})
	}
	return tracks, nil
}
