package export

import (
	"io"
	"path/filepath"

	"github.com/alxayo/go-jamrec/internal/recording"
)

// LOF is an Audacity "list of files" project: one line per segment,
// `file "<name>" offset <seconds>`, tracks in Names() order and segments in
// discovery order.
type LOF struct {
	Tracks    recording.Tracks
	FrameSize int
}

// WriteTo implements io.WriterTo.
func (l LOF) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	for _, name := range l.Tracks.Names() {
		for _, item := range l.Tracks[name] {
			cw.printf("file \"%s\" offset %s\n",
				filepath.Base(item.Path),
				formatSeconds(SecondsAt48K(item.StartFrame, l.FrameSize)))
		}
	}
	return cw.n, cw.err
}
