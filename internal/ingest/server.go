// Package ingest is the TCP bridge through which an out-of-process audio
// server delivers its events to the recorder. Each connection carries a
// stream of framed messages (see codec.go); connections are independent and
// every decoded message is forwarded to the Sink in arrival order.
package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	jerrors "github.com/alxayo/go-jamrec/internal/errors"
	"github.com/alxayo/go-jamrec/internal/logger"
	"github.com/alxayo/go-jamrec/internal/recorder"
)

// DefaultListenAddr is used when Config.ListenAddr is empty.
const DefaultListenAddr = "127.0.0.1:22150"

// Sink receives decoded events. *recorder.Recorder implements it.
type Sink interface {
	Frame(ev recorder.FrameEvent) error
	Disconnected(channelID int) error
	Restart() error
	Stop() error
	ServerStopped() error
}

// Config holds listener settings.
type Config struct {
	ListenAddr string
	Logger     *slog.Logger
	// StatsInterval is the per-connection summary period.
	StatsInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Logger == nil {
		c.Logger = logger.Logger()
	}
}

// Server accepts producer connections and forwards their messages.
type Server struct {
	cfg  Config
	sink Sink
	log  *slog.Logger

	mu      sync.RWMutex
	l       net.Listener
	conns   map[string]net.Conn
	closing bool
	wg      sync.WaitGroup
}

// New creates an unstarted server.
func New(cfg Config, sink Sink) *Server {
	cfg.applyDefaults()
	return &Server{
		cfg:   cfg,
		sink:  sink,
		log:   cfg.Logger.With("component", "ingest"),
		conns: make(map[string]net.Conn),
	}
}

// Start listens and launches the accept loop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.l != nil {
		s.mu.Unlock()
		return errors.New("ingest server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.l = ln
	s.mu.Unlock()

	s.log.Info("ingest listening", "addr", ln.Addr().String())
	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		raw, err := ln.Accept()
		if err != nil {
			s.mu.RLock()
			closing := s.closing
			s.mu.RUnlock()
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if closing || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept error", "error", err)
			return
		}

		id := uuid.NewString()
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			_ = raw.Close()
			return
		}
		s.conns[id] = raw
		s.wg.Add(1)
		s.mu.Unlock()

		go s.serve(id, raw)
	}
}

// serve forwards messages until the producer hangs up, a message fails to
// decode or the recorder stops accepting events.
func (s *Server) serve(id string, c net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		_ = c.Close()
	}()

	log := s.log.With("conn_id", id, "remote", c.RemoteAddr().String())
	log.Info("producer connected")
	stats := NewConnStats(log, s.cfg.StatsInterval)
	defer stats.Stop()

	r := &countingReader{r: bufio.NewReaderSize(c, 64*1024)}
	for {
		r.n = 0
		msg, err := ReadMessage(r)
		if errors.Is(err, io.EOF) {
			log.Info("producer disconnected")
			return
		}
		if err != nil {
			s.mu.RLock()
			closing := s.closing
			s.mu.RUnlock()
			var ne net.Error
			switch {
			case closing:
			case errors.As(err, &ne), errors.Is(err, io.ErrUnexpectedEOF):
				log.Warn("producer read failed", "error", err)
			case jerrors.IsIngestError(err):
				log.Warn("malformed message, dropping producer connection", "error", err)
			default:
				log.Warn("dropping producer connection", "error", err)
			}
			return
		}
		stats.Observe(msg, r.n-HeaderSize)
		if err := s.forward(msg); err != nil {
			if errors.Is(err, jerrors.ErrRecorderClosed) {
				log.Info("recorder closed, dropping producer connection")
				return
			}
			log.Error("forward failed", "type", msg.Type, "error", err)
		}
	}
}

// countingReader counts bytes consumed by one ReadMessage call.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func (s *Server) forward(m Message) error {
	switch m.Type {
	case MsgFrame:
		return s.sink.Frame(m.Frame)
	case MsgDisconnected:
		return s.sink.Disconnected(m.ChannelID)
	case MsgRestart:
		return s.sink.Restart()
	case MsgStop:
		return s.sink.Stop()
	case MsgServerStopped:
		return s.sink.ServerStopped()
	}
	return fmt.Errorf("%w: %s", ErrUnknownType, m.Type)
}

// Stop closes the listener and every producer connection, then waits for
// their goroutines.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.l == nil || s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	l := s.l
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	_ = l.Close()
	s.wg.Wait()
	s.log.Info("ingest stopped")
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.l == nil {
		return nil
	}
	return s.l.Addr()
}

// ConnectionCount returns the number of connected producers.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
