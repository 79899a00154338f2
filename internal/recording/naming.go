package recording

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	jerrors "github.com/alxayo/go-jamrec/internal/errors"
)

// FileExt is the container extension of every per-client file.
const FileExt = ".wav"

// Address is a client's network identity.
type Address struct {
	Host string
	Port uint16
}

// String renders host:port (IPv6 hosts are bracketed).
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// sanitizeName keeps [A-Za-z0-9_] and maps everything else to '_' so the
// '-' separated file name grammar stays parseable.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}

// hostPort renders the address as a single file name component, e.g.
// "192.168.1.5_22124".
func hostPort(a Address) string {
	host := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.':
			return r
		}
		return '_'
	}, a.Host)
	if host == "" {
		host = "unknown"
	}
	return host + "_" + strconv.Itoa(int(a.Port))
}

// trackName is the client identity shared by file names and track keys.
func trackName(name string, addr Address) string {
	return sanitizeName(name) + "-" + hostPort(addr)
}

// baseFileName is "<name>-<hostport>-<startFrame>-<channels>" without affix or extension.
func baseFileName(name string, addr Address, startFrame int64, channels int) string {
	return fmt.Sprintf("%s-%d-%d", trackName(name, addr), startFrame, channels)
}

// createUnique opens a new file under dir named base+affix+FileExt, where the
// affix is empty or "_1", "_2", ... chosen so no existing file is touched.
func createUnique(dir, base string) (*os.File, error) {
	for n := 0; ; n++ {
		affix := ""
		if n > 0 {
			affix = "_" + strconv.Itoa(n)
		}
		path := filepath.Join(dir, base+affix+FileExt)
		if _, err := os.Lstat(path); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return f, nil
	}
}

// parsedFileName is what the offline scanner can recover from a file name.
type parsedFileName struct {
	name       string
	trackName  string // "<name>-<hostport>"
	startFrame int64
	channels   int
}

// parseFileName parses "name-hostport-startFrame-channels[_n].wav".
func parseFileName(entry string) (parsedFileName, error) {
	stem, ok := strings.CutSuffix(entry, FileExt)
	if !ok {
		return parsedFileName{}, fmt.Errorf("%q: %w", entry, jerrors.ErrMalformedTrackName)
	}
	parts := strings.Split(stem, "-")
	if len(parts) != 4 {
		return parsedFileName{}, fmt.Errorf("%q: %w", entry, jerrors.ErrMalformedTrackName)
	}
	frame, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || frame < 0 {
		return parsedFileName{}, fmt.Errorf("%q start frame: %w", entry, jerrors.ErrMalformedTrackName)
	}
	chans, _, _ := strings.Cut(parts[3], "_")
	channels, err := strconv.Atoi(chans)
	if err != nil || channels <= 0 {
		return parsedFileName{}, fmt.Errorf("%q channels: %w", entry, jerrors.ErrMalformedTrackName)
	}
	return parsedFileName{
		name:       parts[0],
		trackName:  parts[0] + "-" + parts[1],
		startFrame: frame,
		channels:   channels,
	}, nil
}
