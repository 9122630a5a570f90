// Package server exposes the two TCP channels of the surveillance
// pipeline: a monitor channel carrying length-prefixed encoded frames and
// a command channel carrying short text commands. At most one client is
// serviced at a time; a session becomes authorized once the client's first
// command-channel message matches the single-use token file.
package server

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// monitorPollInterval paces the monitor sender's mailbox checks.
const monitorPollInterval = 5 * time.Millisecond

// CommandSink receives parsed client commands. The pipeline implements it;
// the server never holds a reference to its owner beyond this interface.
type CommandSink interface {
	AdvanceMode()
	AdvancePage()
	AdjustParam(param int, up bool)
	OutputStatus()
	OutputConfig()
	DebugTrigger()
	ToggleDebugMode()
}

// Config carries the delivery endpoints and the authorization token path.
type Config struct {
	MonitorPort int
	CommandPort int
	TokenPath   string
}

// Server owns the monitor and command listeners and the per-session
// workers. Frames are handed over through a single-slot mailbox: a frame
// arriving while the previous one is still pending is dropped, so a slow
// client can never stall the pipeline.
type Server struct {
	cfg         Config
	sink        CommandSink
	interrupted *atomic.Bool
	log         zerolog.Logger

	mon *socket
	cmd *socket

	acceptMu     sync.Mutex
	acceptCond   *sync.Cond
	monAccepting bool
	cmdAccepting bool

	mailMu  sync.Mutex
	pending []byte

	droppedFrames atomic.Int32
	connected     bool
	monitoring    atomic.Bool
	authorized    atomic.Bool
	badAuth       atomic.Bool

	sessionDone chan struct{}
	workers     sync.WaitGroup
}

// New creates an uninitialized server. The interrupted flag is shared with
// the rest of the process and checked at blocking points.
func New(cfg Config, sink CommandSink, interrupted *atomic.Bool, log zerolog.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		sink:        sink,
		interrupted: interrupted,
		log:         log.With().Str("component", "server").Logger(),
	}
	s.acceptCond = sync.NewCond(&s.acceptMu)
	s.mon = newSocket(cfg.MonitorPort, s.log.With().Str("channel", "monitor").Logger())
	s.cmd = newSocket(cfg.CommandPort, s.log.With().Str("channel", "command").Logger())
	return s
}

// Initialize binds both listeners. On failure neither is left open.
func (s *Server) Initialize() error {
	if err := s.mon.establishListener(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	s.log.Info().Int("port", s.cfg.MonitorPort).Msg("monitor socket listening")

	if err := s.cmd.establishListener(); err != nil {
		s.mon.closeListener()
		return fmt.Errorf("server: %w", err)
	}
	s.log.Info().Int("port", s.cfg.CommandPort).Msg("command socket listening")
	return nil
}

// WaitForConnection blocks until both channels have a peer. It reports
// false when either accept fails or the server is interrupted; in that
// case both connections are closed and the server is back to idle.
func (s *Server) WaitForConnection() bool {
	if s.mon.isConnected() || s.cmd.isConnected() {
		s.log.Error().Msg("socket already connected")
		return false
	}

	s.acceptMu.Lock()
	s.monAccepting, s.cmdAccepting = true, true
	s.acceptMu.Unlock()

	go s.mon.acceptWorker(func() { s.acceptFinished(&s.monAccepting) })
	go s.cmd.acceptWorker(func() { s.acceptFinished(&s.cmdAccepting) })

	s.acceptMu.Lock()
	for (s.monAccepting || s.cmdAccepting) && !s.interrupted.Load() {
		s.acceptCond.Wait()
	}
	s.acceptMu.Unlock()

	if !s.mon.isConnected() || !s.cmd.isConnected() || s.interrupted.Load() {
		// Close both to get back to a known state.
		_ = s.mon.closeConn()
		_ = s.cmd.closeConn()
		return false
	}

	s.connected = true
	s.droppedFrames.Store(0)
	s.authorized.Store(false)
	s.badAuth.Store(false)
	s.mailMu.Lock()
	s.pending = nil
	s.mailMu.Unlock()
	s.sessionDone = make(chan struct{})

	s.log.Info().Str("session", uuid.NewString()).Msg("accepted new connection")
	return true
}

func (s *Server) acceptFinished(flag *bool) {
	s.acceptMu.Lock()
	*flag = false
	s.acceptCond.Broadcast()
	s.acceptMu.Unlock()
}

// StartCommandReader launches the per-session command worker. The first
// message must match the token file when one is present.
func (s *Server) StartCommandReader() {
	s.workers.Add(1)
	go s.readCommands()
}

// StartMonitor launches the per-session frame sender.
func (s *Server) StartMonitor() {
	s.monitoring.Store(true)
	s.workers.Add(1)
	go s.monitorFrames(s.sessionDone)
}

// SendFrame offers an encoded frame to the monitor mailbox. When the slot
// is occupied the frame is dropped and the drop counter advances. It
// reports false once the monitor worker has exited, which callers treat as
// a send failure.
func (s *Server) SendFrame(payload []byte) bool {
	if !s.monitoring.Load() {
		return false
	}

	s.mailMu.Lock()
	if s.pending == nil {
		s.pending = payload
	} else {
		dropped := s.droppedFrames.Add(1)
		s.log.Debug().Int32("dropped_frames", dropped).Msg("mailbox occupied, frame dropped")
	}
	s.mailMu.Unlock()
	return true
}

// Authorized reports whether the current session has passed token
// authorization.
func (s *Server) Authorized() bool {
	return s.authorized.Load()
}

// BadAuth reports whether the current session presented a bad token.
func (s *Server) BadAuth() bool {
	return s.badAuth.Load()
}

// DroppedFrames returns the mailbox drop count for the current session.
func (s *Server) DroppedFrames() int {
	return int(s.droppedFrames.Load())
}

// ReleaseConnection drains the session: shuts both connections down, joins
// the session workers, and closes the descriptors. The listeners stay open
// for the next client.
func (s *Server) ReleaseConnection() bool {
	if s.sessionDone != nil {
		close(s.sessionDone)
		s.sessionDone = nil
	}

	s.mon.shutdown()
	s.cmd.shutdown()
	s.workers.Wait()

	ok := true
	if err := s.mon.closeConn(); err != nil {
		ok = false
	}
	if err := s.cmd.closeConn(); err != nil {
		ok = false
	}
	s.connected = false
	s.log.Info().Msg("released connection")
	return ok
}

// Interrupt unblocks every blocking point: accept waits, command reads,
// and monitor sends. Called once at shutdown.
func (s *Server) Interrupt() {
	s.mon.closeListener()
	s.cmd.closeListener()
	s.mon.shutdown()
	s.cmd.shutdown()
	s.acceptMu.Lock()
	s.acceptCond.Broadcast()
	s.acceptMu.Unlock()
}

// Close releases the listeners. Terminal.
func (s *Server) Close() {
	s.mon.closeListener()
	s.cmd.closeListener()
	s.log.Info().Msg("server closed")
}

// loadToken reads and deletes the single-use token file. Trailing
// whitespace is trimmed; the original compared byte-for-byte including the
// trailing newline, which made hand-written token files fail.
func (s *Server) loadToken() (string, bool) {
	data, err := os.ReadFile(s.cfg.TokenPath)
	if err != nil {
		return "", false
	}
	if err := os.Remove(s.cfg.TokenPath); err != nil {
		s.log.Warn().Err(err).Msg("token file could not be removed")
	}
	return strings.TrimRight(string(data), " \t\r\n"), true
}

func (s *Server) readCommands() {
	defer s.workers.Done()

	var buf [recvBufferSize]byte

	if token, required := s.loadToken(); required {
		msg, ok := s.cmd.receiveCommand(buf[:])
		if !ok {
			s.log.Info().Msg("command reader exited before authorization")
			return
		}
		if strings.TrimRight(msg, " \t\r\n") != token {
			s.badAuth.Store(true)
			s.log.Error().Msg("client failed token authorization")
			s.mon.shutdown()
			s.cmd.shutdown()
			return
		}
	} else {
		s.log.Warn().Str("path", s.cfg.TokenPath).Msg("no token file; authorization disabled")
	}
	s.authorized.Store(true)
	s.log.Info().Msg("client authorized")

	for {
		cmd, ok := s.cmd.receiveCommand(buf[:])
		if !ok {
			break
		}
		s.dispatch(cmd)
	}
	s.log.Info().Msg("command reader exited")
}

// dispatch maps a received command to the sink. Unknown commands are
// ignored.
func (s *Server) dispatch(cmd string) {
	switch cmd {
	case "mode":
		s.sink.AdvanceMode()
	case "status":
		s.sink.OutputStatus()
	case "config":
		s.sink.OutputConfig()
	case "page":
		s.sink.AdvancePage()
	case "param1 up":
		s.sink.AdjustParam(1, true)
	case "param1 down":
		s.sink.AdjustParam(1, false)
	case "param2 up":
		s.sink.AdjustParam(2, true)
	case "param2 down":
		s.sink.AdjustParam(2, false)
	case "debug":
		s.sink.DebugTrigger()
	case "debugmode":
		s.sink.ToggleDebugMode()
	}
}

func (s *Server) monitorFrames(done <-chan struct{}) {
	defer s.workers.Done()
	defer s.monitoring.Store(false)

	ticker := time.NewTicker(monitorPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			s.log.Info().Msg("monitor sender exited")
			return
		case <-ticker.C:
		}

		s.mailMu.Lock()
		payload := s.pending
		s.pending = nil
		s.mailMu.Unlock()
		if payload == nil {
			continue
		}

		if !s.mon.transmitSizedMessage(payload) {
			s.log.Info().Msg("monitor sender exited on send failure")
			return
		}
	}
}
