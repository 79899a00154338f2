package ingest

// Wire Format
// -----------
// Every message is framed as
//
//	type u8 | length u32 BE | payload[length]
//
// Payloads by type:
//
//	1 frame          channel u16 BE | channels u8 | port u16 BE |
//	                 hostLen u8 | host | nameLen u8 | name |
//	                 samples int16 LE (channels*frameSize of them)
//	2 disconnected   channel u16 BE
//	3 restart        (empty)
//	4 stop           (empty)
//	5 server-stopped (empty)
//
// Frame samples are little endian to match the WAV payload; every other
// integer is network order.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/alxayo/go-jamrec/internal/bufpool"
	jerrors "github.com/alxayo/go-jamrec/internal/errors"
	"github.com/alxayo/go-jamrec/internal/recorder"
	"github.com/alxayo/go-jamrec/internal/recording"
)

// MsgType identifies an inbound event.
type MsgType uint8

const (
	MsgFrame         MsgType = 1
	MsgDisconnected  MsgType = 2
	MsgRestart       MsgType = 3
	MsgStop          MsgType = 4
	MsgServerStopped MsgType = 5
)

func (t MsgType) String() string {
	switch t {
	case MsgFrame:
		return "frame"
	case MsgDisconnected:
		return "disconnected"
	case MsgRestart:
		return "restart"
	case MsgStop:
		return "stop"
	case MsgServerStopped:
		return "server_stopped"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

const (
	// HeaderSize is the type byte plus the payload length.
	HeaderSize = 5
	// MaxPayload caps a single message payload.
	MaxPayload = 1 << 20

	frameFixedSize = 2 + 1 + 2 + 1 + 1
)

var (
	ErrUnknownType     = errors.New("unknown message type")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrShortPayload    = errors.New("payload truncated")
)

// Message is one decoded event. Frame is set for MsgFrame, ChannelID for
// MsgDisconnected.
type Message struct {
	Type      MsgType
	Frame     recorder.FrameEvent
	ChannelID int
}

// EncodeFrame serializes a frame event.
func EncodeFrame(ev recorder.FrameEvent) ([]byte, error) {
	switch {
	case ev.ChannelID < 0 || ev.ChannelID > math.MaxUint16:
		return nil, jerrors.NewIngestError("encode.frame", fmt.Errorf("channel id %d out of range", ev.ChannelID))
	case ev.Channels < 0 || ev.Channels > math.MaxUint8:
		return nil, jerrors.NewIngestError("encode.frame", fmt.Errorf("channel count %d out of range", ev.Channels))
	case len(ev.Addr.Host) > math.MaxUint8:
		return nil, jerrors.NewIngestError("encode.frame", errors.New("host too long"))
	case len(ev.Name) > math.MaxUint8:
		return nil, jerrors.NewIngestError("encode.frame", errors.New("name too long"))
	}
	n := frameFixedSize + len(ev.Addr.Host) + len(ev.Name) + 2*len(ev.PCM)
	if n > MaxPayload {
		return nil, jerrors.NewIngestError("encode.frame", ErrPayloadTooLarge)
	}

	buf := make([]byte, HeaderSize, HeaderSize+n)
	buf[0] = byte(MsgFrame)
	binary.BigEndian.PutUint32(buf[1:], uint32(n))
	buf = binary.BigEndian.AppendUint16(buf, uint16(ev.ChannelID))
	buf = append(buf, byte(ev.Channels))
	buf = binary.BigEndian.AppendUint16(buf, ev.Addr.Port)
	buf = append(buf, byte(len(ev.Addr.Host)))
	buf = append(buf, ev.Addr.Host...)
	buf = append(buf, byte(len(ev.Name)))
	buf = append(buf, ev.Name...)
	for _, s := range ev.PCM {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}
	return buf, nil
}

// EncodeDisconnected serializes a client disconnect.
func EncodeDisconnected(channelID int) ([]byte, error) {
	if channelID < 0 || channelID > math.MaxUint16 {
		return nil, jerrors.NewIngestError("encode.disconnected", fmt.Errorf("channel id %d out of range", channelID))
	}
	buf := []byte{byte(MsgDisconnected), 0, 0, 0, 2}
	return binary.BigEndian.AppendUint16(buf, uint16(channelID)), nil
}

// EncodeControl serializes one of the payload-less messages.
func EncodeControl(t MsgType) ([]byte, error) {
	switch t {
	case MsgRestart, MsgStop, MsgServerStopped:
		return []byte{byte(t), 0, 0, 0, 0}, nil
	}
	return nil, jerrors.NewIngestError("encode.control", fmt.Errorf("%w: %s", ErrUnknownType, t))
}

// ReadMessage reads and decodes one message. A clean end of stream before
// the first header byte returns io.EOF; everything else is an
// *errors.IngestError.
func ReadMessage(r io.Reader) (Message, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		return Message{}, jerrors.NewIngestError("read.header", err)
	}
	t := MsgType(hdr[0])
	n := binary.BigEndian.Uint32(hdr[1:])
	if n > MaxPayload {
		return Message{}, jerrors.NewIngestError("read.header", fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n))
	}

	payload := bufpool.Get(int(n))
	defer bufpool.Put(payload)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, jerrors.NewIngestError("read.payload", fmt.Errorf("%s: %w", t, err))
	}
	return decode(t, payload)
}

func decode(t MsgType, p []byte) (Message, error) {
	switch t {
	case MsgFrame:
		ev, err := decodeFrame(p)
		if err != nil {
			return Message{}, jerrors.NewIngestError("decode.frame", err)
		}
		return Message{Type: t, Frame: ev}, nil
	case MsgDisconnected:
		if len(p) != 2 {
			return Message{}, jerrors.NewIngestError("decode.disconnected", ErrShortPayload)
		}
		return Message{Type: t, ChannelID: int(binary.BigEndian.Uint16(p))}, nil
	case MsgRestart, MsgStop, MsgServerStopped:
		return Message{Type: t}, nil
	}
	return Message{}, jerrors.NewIngestError("decode", fmt.Errorf("%w: %s", ErrUnknownType, t))
}

func decodeFrame(p []byte) (recorder.FrameEvent, error) {
	var ev recorder.FrameEvent
	if len(p) < frameFixedSize {
		return ev, ErrShortPayload
	}
	ev.ChannelID = int(binary.BigEndian.Uint16(p))
	ev.Channels = int(p[2])
	port := binary.BigEndian.Uint16(p[3:])
	p = p[5:]

	host, p, ok := lenPrefixed(p)
	if !ok {
		return ev, fmt.Errorf("host: %w", ErrShortPayload)
	}
	name, p, ok := lenPrefixed(p)
	if !ok {
		return ev, fmt.Errorf("name: %w", ErrShortPayload)
	}
	if len(p)%2 != 0 {
		return ev, fmt.Errorf("odd sample byte count %d", len(p))
	}

	ev.Addr = recording.Address{Host: host, Port: port}
	ev.Name = name
	ev.PCM = make([]int16, len(p)/2)
	for i := range ev.PCM {
		ev.PCM[i] = int16(binary.LittleEndian.Uint16(p[2*i:]))
	}
	return ev, nil
}

// lenPrefixed splits a u8-length-prefixed string off the front of p.
func lenPrefixed(p []byte) (string, []byte, bool) {
	if len(p) < 1 {
		return "", nil, false
	}
	n := int(p[0])
	if len(p) < 1+n {
		return "", nil, false
	}
	return string(p[1 : 1+n]), p[1+n:], true
}
