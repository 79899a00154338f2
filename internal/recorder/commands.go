package recorder

import "github.com/alxayo/go-jamrec/internal/recording"

type commandKind int

const (
	cmdFrame commandKind = iota
	cmdDisconnected
	cmdRestart
	cmdStop
	cmdServerStopped
	cmdQuit
)

func (k commandKind) String() string {
	switch k {
	case cmdFrame:
		return "frame"
	case cmdDisconnected:
		return "disconnected"
	case cmdRestart:
		return "restart"
	case cmdStop:
		return "stop"
	case cmdServerStopped:
		return "server_stopped"
	case cmdQuit:
		return "quit"
	}
	return "unknown"
}

// command is one inbound event. It is never shared after enqueue: pcm is a
// private copy of the producer's buffer.
type command struct {
	kind      commandKind
	channelID int
	name      string
	addr      recording.Address
	channels  int
	pcm       []int16
}

// FrameEvent is one frame of one client's audio as delivered by the server.
type FrameEvent struct {
	ChannelID int
	Name      string
	Addr      recording.Address
	// Channels is the client's audio channel count; 0 means the client is
	// connected but not sending audio.
	Channels int
	// PCM holds Channels*FrameSize interleaved samples. It is copied.
	PCM []int16
}

func frameCommand(ev FrameEvent) command {
	pcm := make([]int16, len(ev.PCM))
	copy(pcm, ev.PCM)
	return command{
		kind:      cmdFrame,
		channelID: ev.ChannelID,
		name:      ev.Name,
		addr:      ev.Addr,
		channels:  ev.Channels,
		pcm:       pcm,
	}
}
