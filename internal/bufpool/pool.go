// Package bufpool recycles the byte buffers on the recording hot path: one
// encoded PCM frame per client per server tick, and one ingest payload per
// message. Buffers come back zeroed, so a short frame encodes as silence.
package bufpool

import (
	"encoding/binary"
	"sync"
)

// SampleBytes is the encoded size of one 16-bit sample.
const SampleBytes = 2

// sizeClasses are byte capacities. The first three hold one frame of
// stereo PCM at 64, 256 and 1024 samples per channel; the last covers a
// full ingest payload of oversized frames.
var sizeClasses = []int{
	2 * 64 * SampleBytes,
	2 * 256 * SampleBytes,
	2 * 1024 * SampleBytes,
	64 << 10,
}

// Pool hands out zeroed byte slices from per-class sync.Pools.
type Pool struct {
	classes []*class
}

type class struct {
	size int
	free sync.Pool
}

var defaultPool = New()

// Get takes size bytes from the default pool.
func Get(size int) []byte { return defaultPool.Get(size) }

// Put returns buf to the default pool.
func Put(buf []byte) { defaultPool.Put(buf) }

// GetSamples takes a zeroed buffer for n encoded samples from the default
// pool.
func GetSamples(n int) []byte { return defaultPool.Get(n * SampleBytes) }

// EncodePCM writes pcm into dst as little-endian int16 and returns the
// number of samples written. Samples beyond len(dst)/2 are dropped; the
// rest of dst is left untouched.
func EncodePCM(dst []byte, pcm []int16) int {
	n := min(len(dst)/SampleBytes, len(pcm))
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(dst[i*SampleBytes:], uint16(pcm[i]))
	}
	return n
}

// New builds a pool with the frame-sized classes.
func New() *Pool {
	p := &Pool{classes: make([]*class, len(sizeClasses))}
	for i, size := range sizeClasses {
		c := &class{size: size}
		c.free.New = func() any { return make([]byte, c.size) }
		p.classes[i] = c
	}
	return p
}

// Get returns a slice of length size backed by the smallest class that fits.
// Larger requests are allocated and never pooled.
func (p *Pool) Get(size int) []byte {
	if p == nil || size <= 0 {
		return nil
	}
	for _, c := range p.classes {
		if size <= c.size {
			return c.free.Get().([]byte)[:size]
		}
	}
	return make([]byte, size)
}

// Put zeroes buf and keeps it if its capacity is exactly a class size.
func (p *Pool) Put(buf []byte) {
	if p == nil || buf == nil {
		return
	}
	for _, c := range p.classes {
		if cap(buf) == c.size {
			full := buf[:c.size]
			clear(full)
			c.free.Put(full)
			return
		}
	}
}
