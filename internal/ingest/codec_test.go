package ingest

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jerrors "github.com/alxayo/go-jamrec/internal/errors"
	"github.com/alxayo/go-jamrec/internal/recorder"
	"github.com/alxayo/go-jamrec/internal/recording"
)

func sampleFrame() recorder.FrameEvent {
	return recorder.FrameEvent{
		ChannelID: 42,
		Name:      "Alice",
		Addr:      recording.Address{Host: "10.0.0.1", Port: 22124},
		Channels:  2,
		PCM:       []int16{1, -1, 32767, -32768},
	}
}

func TestFrameEncodeDecode(t *testing.T) {
	b, err := EncodeFrame(sampleFrame())
	require.NoError(t, err)
	assert.Equal(t, byte(MsgFrame), b[0])
	assert.EqualValues(t, len(b)-HeaderSize, binary.BigEndian.Uint32(b[1:]))
	// samples trail the payload in little endian
	assert.Equal(t, []byte{0x00, 0x80}, b[len(b)-2:])

	msg, err := ReadMessage(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, MsgFrame, msg.Type)
	assert.Equal(t, sampleFrame(), msg.Frame)
}

func TestStreamOfMessages(t *testing.T) {
	var buf bytes.Buffer
	for _, enc := range []func() ([]byte, error){
		func() ([]byte, error) { return EncodeFrame(sampleFrame()) },
		func() ([]byte, error) { return EncodeDisconnected(42) },
		func() ([]byte, error) { return EncodeControl(MsgRestart) },
		func() ([]byte, error) { return EncodeControl(MsgStop) },
		func() ([]byte, error) { return EncodeControl(MsgServerStopped) },
	} {
		b, err := enc()
		require.NoError(t, err)
		buf.Write(b)
	}

	var got []MsgType
	for {
		msg, err := ReadMessage(&buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, msg.Type)
		if msg.Type == MsgDisconnected {
			assert.Equal(t, 42, msg.ChannelID)
		}
	}
	assert.Equal(t, []MsgType{MsgFrame, MsgDisconnected, MsgRestart, MsgStop, MsgServerStopped}, got)
}

func TestEncodeValidation(t *testing.T) {
	ev := sampleFrame()
	ev.ChannelID = 70000
	_, err := EncodeFrame(ev)
	assert.True(t, jerrors.IsIngestError(err))

	ev = sampleFrame()
	ev.Channels = 300
	_, err = EncodeFrame(ev)
	assert.Error(t, err)

	ev = sampleFrame()
	ev.PCM = make([]int16, MaxPayload/2)
	_, err = EncodeFrame(ev)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = EncodeDisconnected(-1)
	assert.Error(t, err)
	_, err = EncodeControl(MsgFrame)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestReadMessageErrors(t *testing.T) {
	frame, err := EncodeFrame(sampleFrame())
	require.NoError(t, err)

	cases := []struct {
		name string
		in   []byte
		want error
	}{
		{"truncated header", []byte{1, 0}, io.ErrUnexpectedEOF},
		{"truncated payload", frame[:len(frame)-1], io.ErrUnexpectedEOF},
		{"oversized", []byte{1, 0x7f, 0xff, 0xff, 0xff}, ErrPayloadTooLarge},
		{"unknown type", []byte{9, 0, 0, 0, 0}, ErrUnknownType},
		{"short disconnect", []byte{2, 0, 0, 0, 1, 7}, ErrShortPayload},
		{"short frame", []byte{1, 0, 0, 0, 3, 0, 1, 2}, ErrShortPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadMessage(bytes.NewReader(tc.in))
			require.Error(t, err)
			assert.True(t, jerrors.IsIngestError(err))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestReadMessage_HostLengthOverrun(t *testing.T) {
	payload := []byte{0, 1, 2, 0x56, 0xce, 200, 'h'}
	b := append([]byte{byte(MsgFrame), 0, 0, 0, byte(len(payload))}, payload...)
	_, err := ReadMessage(bytes.NewReader(b))
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestReadMessage_OddSampleBytes(t *testing.T) {
	b, err := EncodeFrame(sampleFrame())
	require.NoError(t, err)
	b = append(b, 0x01)
	binary.BigEndian.PutUint32(b[1:], uint32(len(b)-HeaderSize))
	_, err = ReadMessage(bytes.NewReader(b))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "odd sample byte count")
}
