package recorder

import (
	"fmt"
	"os"
	"path/filepath"

	jerrors "github.com/alxayo/go-jamrec/internal/errors"
	"github.com/alxayo/go-jamrec/internal/export"
	"github.com/alxayo/go-jamrec/internal/recording"
)

// SessionDirToReaper rebuilds the tracks of a finished session directory
// from its WAV files and writes <dir>/<base name>.rpp. It needs no live
// recorder. A missing directory, a non-directory or an existing project
// file is an error and nothing is written. Returns the project path.
func SessionDirToReaper(dir string, frameSize int) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", jerrors.NewSessionError("offline.path", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", jerrors.NewSessionError("offline.stat", err)
	}
	if !info.IsDir() {
		return "", jerrors.NewSessionError("offline.stat", fmt.Errorf("%s: %w", abs, jerrors.ErrNotDirectory))
	}

	path := export.ProjectPath(abs, export.ExtReaper)
	if _, err := os.Lstat(path); err == nil {
		return "", jerrors.NewExportError("export.rpp", path, jerrors.ErrTargetExists)
	}

	tracks, err := recording.TracksFromSessionDir(abs, frameSize)
	if err != nil {
		return "", err
	}
	rpp := export.Reaper{
		Name:      filepath.Base(abs),
		Tracks:    tracks,
		FrameSize: frameSize,
		Created:   info.ModTime(),
	}
	if err := export.WriteFile(path, rpp); err != nil {
		return "", err
	}
	return path, nil
}
