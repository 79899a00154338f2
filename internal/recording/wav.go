package recording

// WAV container writer
// --------------------
// Canonical 44 byte RIFF/WAVE header followed by interleaved 16-bit little
// endian PCM. The RIFF and data chunk sizes are unknown while the stream is
// live, so the header is written with zero sizes and patched in place by
// finalize. That is why the output file is opened read/write.

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/alxayo/go-jamrec/internal/bufpool"
)

const (
	// SampleRate is the fixed server sample rate.
	SampleRate = 48000
	// SampleWidth is the size in bytes of one sample of one audio channel.
	SampleWidth = 2
	// WAVHeaderSize is the size of the canonical PCM header.
	WAVHeaderSize = 44

	bitsPerSample = SampleWidth * 8
	formatPCM     = 1
)

// maxDataBytes is the largest data chunk whose RIFF size (36 + data) still
// fits the 32-bit header field.
var maxDataBytes int64 = math.MaxUint32 - 36

// wavWriter appends PCM frames to an open file and owns it until finalize.
type wavWriter struct {
	f         *os.File
	channels  uint16
	dataBytes uint32
}

// newWAVWriter writes the placeholder header. On failure the file is closed.
func newWAVWriter(f *os.File, channels int) (*wavWriter, error) {
	w := &wavWriter{f: f, channels: uint16(channels)}
	if err := w.writeHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// writeHeader layout (all little-endian):
//
//	0  "RIFF"         4  riff size (36 + data)   8  "WAVE"
//	12 "fmt "         16 16 (fmt chunk size)     20 1 (PCM)
//	22 channels       24 sample rate             28 byte rate
//	32 block align    34 bits per sample
//	36 "data"         40 data size
func (w *wavWriter) writeHeader() error {
	var hdr [WAVHeaderSize]byte
	blockAlign := w.channels * SampleWidth
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], formatPCM)
	binary.LittleEndian.PutUint16(hdr[22:24], w.channels)
	binary.LittleEndian.PutUint32(hdr[24:28], SampleRate)
	binary.LittleEndian.PutUint32(hdr[28:32], SampleRate*uint32(blockAlign))
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	if _, err := w.f.Write(hdr[:]); err != nil {
		return fmt.Errorf("wav.header: %w", err)
	}
	return nil
}

// fits reports whether n more samples keep the header sizes representable.
func (w *wavWriter) fits(n int) bool {
	return int64(w.dataBytes)+int64(n)*SampleWidth <= maxDataBytes
}

// writeSamples appends exactly n samples taken from pcm in order. Missing
// samples (pcm shorter than n) are written as silence.
func (w *wavWriter) writeSamples(pcm []int16, n int) error {
	if n <= 0 {
		return nil
	}
	if !w.fits(n) {
		return fmt.Errorf("wav.samples: %w", errSegmentFull)
	}
	buf := bufpool.GetSamples(n)
	defer bufpool.Put(buf)
	bufpool.EncodePCM(buf, pcm)
	if _, err := w.f.Write(buf); err != nil {
		return fmt.Errorf("wav.samples: %w", err)
	}
	w.dataBytes += uint32(len(buf))
	return nil
}

// finalize patches the length fields and closes the file. The close is
// attempted even if patching failed.
func (w *wavWriter) finalize() error {
	var sz [4]byte
	binary.LittleEndian.PutUint32(sz[:], 36+w.dataBytes)
	_, errRIFF := w.f.WriteAt(sz[:], 4)
	binary.LittleEndian.PutUint32(sz[:], w.dataBytes)
	_, errData := w.f.WriteAt(sz[:], 40)
	errClose := w.f.Close()
	switch {
	case errRIFF != nil:
		return fmt.Errorf("wav.finalize riff size: %w", errRIFF)
	case errData != nil:
		return fmt.Errorf("wav.finalize data size: %w", errData)
	case errClose != nil:
		return fmt.Errorf("wav.close: %w", errClose)
	}
	return nil
}
