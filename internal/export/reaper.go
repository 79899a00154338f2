package export

import (
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alxayo/go-jamrec/internal/recording"
)

// guidNamespace seeds the name-based GUIDs of generated projects so that
// exporting the same session twice yields identical files.
var guidNamespace = uuid.MustParse("6f1d7c4e-2b0a-5d3c-9a8e-4c1b2e7f9d05")

// Reaper is a REAPER project with one track per track map entry and one
// media item per segment, positioned at its start frame.
type Reaper struct {
	// Name is the session name; it seeds every GUID in the project.
	Name      string
	Tracks    recording.Tracks
	FrameSize int
	// Created is stamped in the project header; zero writes 0.
	Created time.Time
}

// guid renders a REAPER style GUID: braced, upper case.
func (r Reaper) guid(parts ...string) string {
	u := uuid.NewSHA1(guidNamespace, []byte(r.Name+"/"+strings.Join(parts, "/")))
	return "{" + strings.ToUpper(u.String()) + "}"
}

// WriteTo implements io.WriterTo.
//
// Layout:
//
//	<REAPER_PROJECT 0.1 "5.0" <created>
//	  <TRACK {guid}
//	    NAME "<track>"
//	    <ITEM
//	      POSITION <seconds>  LENGTH <seconds>
//	      <SOURCE WAVE
//	        FILE "<file>"
//	      >
//	    >
//	  >
//	>
func (r Reaper) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	var created int64
	if !r.Created.IsZero() {
		created = r.Created.Unix()
	}

	cw.printf("<REAPER_PROJECT 0.1 \"5.0\" %d\n", created)
	cw.printf("  RECORD_PATH \"\" \"\"\n")
	cw.printf("  SAMPLERATE %d 0 0\n", recording.SampleRate)
	cw.printf("  TEMPO 120 4 4\n")

	iid := 0
	for _, name := range r.Tracks.Names() {
		trackGUID := r.guid("track", name)
		cw.printf("  <TRACK %s\n", trackGUID)
		cw.printf("    NAME %s\n", quote(name))
		cw.printf("    TRACKID %s\n", trackGUID)
		for _, item := range r.Tracks[name] {
			file := filepath.Base(item.Path)
			cw.printf("    <ITEM\n")
			cw.printf("      FADEIN 0 0 0 0 0 0\n")
			cw.printf("      FADEOUT 0 0 0 0 0 0\n")
			cw.printf("      POSITION %s\n", formatSeconds(SecondsAt48K(item.StartFrame, r.FrameSize)))
			cw.printf("      LENGTH %s\n", formatSeconds(SecondsAt48K(item.Length, r.FrameSize)))
			cw.printf("      IGUID %s\n", r.guid("item", file))
			cw.printf("      IID %d\n", iid)
			cw.printf("      NAME %s\n", quote(file))
			cw.printf("      GUID %s\n", r.guid("take", file))
			cw.printf("      <SOURCE WAVE\n")
			cw.printf("        FILE %s\n", quote(file))
			cw.printf("      >\n")
			cw.printf("    >\n")
			iid++
		}
		cw.printf("  >\n")
	}
	cw.printf(">\n")
	return cw.n, cw.err
}

// quote wraps s in double quotes; REAPER has no escape sequence, so embedded
// double quotes switch the delimiter to a back quote.
func quote(s string) string {
	if strings.ContainsRune(s, '"') {
		return "`" + strings.ReplaceAll(s, "`", "'") + "`"
	}
	return "\"" + s + "\""
}
