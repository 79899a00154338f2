package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolGetReturnsSizedBuffer(t *testing.T) {
	t.Parallel()

	p := New()

	tests := []struct {
		name        string
		requestSize int
		expectCap   int
	}{
		{name: "mono 64", requestSize: 128, expectCap: 256},
		{name: "stereo 64", requestSize: 256, expectCap: 256},
		{name: "stereo 128", requestSize: 512, expectCap: 1024},
		{name: "stereo 256", requestSize: 1024, expectCap: 1024},
		{name: "stereo 1024", requestSize: 4096, expectCap: 4096},
		{name: "ingest payload", requestSize: 5000, expectCap: 65536},
		{name: "oversized", requestSize: 131072, expectCap: 131072},
		{name: "zero", requestSize: 0, expectCap: 0},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			buf := p.Get(tc.requestSize)
			assert.Len(t, buf, tc.requestSize)
			assert.Equal(t, tc.expectCap, cap(buf))
		})
	}
}

func TestPoolPutZeroesBuffer(t *testing.T) {
	t.Parallel()

	p := New()

	buf := p.Get(200)
	require.Len(t, buf, 200)
	for i := range buf {
		buf[i] = 0xAA
	}
	p.Put(buf)

	// Whether or not the pool hands back the same backing array, the caller
	// must never observe stale bytes.
	reused := p.Get(200)
	require.Len(t, reused, 200)
	assert.Equal(t, 256, cap(reused))
	for i, v := range reused {
		if v != 0 {
			t.Fatalf("expected buffer to be zeroed, found value %d at index %d", v, i)
		}
	}
}

func TestPoolPutIgnoresForeignBuffers(t *testing.T) {
	t.Parallel()

	p := New()
	p.Put(make([]byte, 300)) // cap matches no class
	p.Put(nil)
	var nilPool *Pool
	nilPool.Put(make([]byte, 256))
	assert.Nil(t, nilPool.Get(10))
}

func TestPoolConcurrentAccess(t *testing.T) {
	t.Parallel()

	p := New()
	var wg sync.WaitGroup

	worker := func(size int) {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			buf := p.Get(size)
			if len(buf) != size || cap(buf) < size {
				t.Errorf("bad buffer len=%d cap=%d for size %d", len(buf), cap(buf), size)
				return
			}
			for j := range buf {
				buf[j] = byte(i)
			}
			p.Put(buf)
		}
	}

	for _, size := range []int{128, 512, 2048, 8192, 40000} {
		wg.Add(1)
		go worker(size)
	}

	wg.Wait()
}

func TestEncodePCMLittleEndianWithSilentTail(t *testing.T) {
	buf := GetSamples(4)
	defer Put(buf)
	require.Len(t, buf, 8)

	n := EncodePCM(buf, []int16{1, -2})
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0x01, 0x00, 0xFE, 0xFF, 0, 0, 0, 0}, buf)

	short := make([]byte, 2)
	assert.Equal(t, 1, EncodePCM(short, []int16{0x0102, 7}), "extra samples are dropped")
	assert.Equal(t, []byte{0x02, 0x01}, short)
}
