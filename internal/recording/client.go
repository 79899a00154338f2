package recording

import (
	"errors"
	"fmt"
)

// errSegmentFull means the WAV data chunk cannot take another frame.
var errSegmentFull = errors.New("segment reached the WAV size limit")

// Client records one continuous stream segment of one client into its own
// WAV file. It is owned by a single goroutine (the recorder loop) and holds no
// locks.
type Client struct {
	startFrame int64
	channels   int
	name       string
	addr       Address
	frameCount int64
	path       string

	out *wavWriter // nil once disconnected
}

// NewClient opens a fresh, uniquely named file in dir. The file name uses the
// name the client has at this point; later renames only change Name().
func NewClient(startFrame int64, channels int, name string, addr Address, dir string) (*Client, error) {
	f, err := createUnique(dir, baseFileName(name, addr, startFrame, channels))
	if err != nil {
		return nil, fmt.Errorf("client.create: %w", err)
	}
	out, err := newWAVWriter(f, channels)
	if err != nil {
		return nil, fmt.Errorf("client.create: %w", err)
	}
	return &Client{
		startFrame: startFrame,
		channels:   channels,
		name:       name,
		addr:       addr,
		path:       f.Name(),
		out:        out,
	}, nil
}

// Frame stores the client's current name and appends channels*frameSize
// samples from pcm. The caller guarantees the sample count.
func (c *Client) Frame(name string, pcm []int16, frameSize int) error {
	c.name = name
	if c.out == nil {
		return nil
	}
	if err := c.out.writeSamples(pcm, c.channels*frameSize); err != nil {
		return err
	}
	c.frameCount++
	return nil
}

// Fits reports whether one more frame of frameSize samples per channel fits
// the file. A disconnected client has no room.
func (c *Client) Fits(frameSize int) bool {
	return c.out != nil && c.out.fits(c.channels*frameSize)
}

// Disconnect finalizes the container and releases the file. Safe to call twice.
func (c *Client) Disconnect() error {
	if c.out == nil {
		return nil
	}
	err := c.out.finalize()
	c.out = nil
	return err
}

// Item snapshots the client as an immutable track item.
func (c *Client) Item() TrackItem {
	return TrackItem{
		Channels:   c.channels,
		StartFrame: c.startFrame,
		Length:     c.frameCount,
		Name:       c.name,
		Track:      trackName(c.name, c.addr),
		Path:       c.path,
	}
}

func (c *Client) Channels() int     { return c.channels }
func (c *Client) StartFrame() int64 { return c.startFrame }
func (c *Client) FrameCount() int64 { return c.frameCount }
func (c *Client) Name() string      { return c.name }
func (c *Client) Address() Address  { return c.addr }
func (c *Client) Path() string      { return c.path }
