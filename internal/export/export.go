// Package export renders a session's track map as project files for offline
// editing: a REAPER project (.rpp) and an Audacity list of files (.lof).
//
// Both renderers implement io.WriterTo. WriteFile renders into memory first
// and then creates the target exclusively, so an existing file is never
// touched and a failed render never leaves a partial file behind.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	jerrors "github.com/alxayo/go-jamrec/internal/errors"
	"github.com/alxayo/go-jamrec/internal/recording"
)

// Project file extensions.
const (
	ExtReaper   = ".rpp"
	ExtAudacity = ".lof"
)

// Format names a project exporter (used in logs, metrics and hook events).
type Format string

const (
	FormatReaper   Format = "rpp"
	FormatAudacity Format = "lof"
)

// SecondsAt48K converts a frame position into seconds at the server rate.
func SecondsAt48K(frames int64, frameSize int) float64 {
	return float64(frames) * float64(frameSize) / recording.SampleRate
}

// formatSeconds renders seconds with the shortest exact representation.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// ProjectPath returns <sessionDir>/<base name of sessionDir><ext>.
func ProjectPath(sessionDir, ext string) string {
	return filepath.Join(sessionDir, filepath.Base(filepath.Clean(sessionDir))+ext)
}

// WriteFile renders wt and writes it to path. An existing path yields an
// *errors.ExportError wrapping ErrTargetExists.
func WriteFile(path string, wt io.WriterTo) error {
	op := "export." + strings.TrimPrefix(filepath.Ext(path), ".")
	if _, err := os.Lstat(path); err == nil {
		return jerrors.NewExportError(op, path, jerrors.ErrTargetExists)
	}

	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return jerrors.NewExportError(op, path, fmt.Errorf("render: %w", err))
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return jerrors.NewExportError(op, path, jerrors.ErrTargetExists)
	}
	if err != nil {
		return jerrors.NewExportError(op, path, err)
	}
	if _, err := buf.WriteTo(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return jerrors.NewExportError(op, path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return jerrors.NewExportError(op, path, err)
	}
	return nil
}

// countingWriter tracks bytes for io.WriterTo implementations and keeps the
// first error so renderers can write unconditionally and check once.
type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) printf(format string, args ...any) {
	if c.err != nil {
		return
	}
	n, err := fmt.Fprintf(c.w, format, args...)
	c.n += int64(n)
	c.err = err
}
