package server

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// recvBufferSize bounds a single command read; one recv yields one command
// of at most recvBufferSize-1 bytes.
const recvBufferSize = 100

// socket pairs one listening socket with at most one accepted connection.
// Accepting runs on a short-lived worker; shutdown unblocks any reader or
// writer without closing descriptors, which close does.
type socket struct {
	port int
	ln   net.Listener

	mu   sync.Mutex
	conn net.Conn

	log zerolog.Logger
}

func newSocket(port int, log zerolog.Logger) *socket {
	return &socket{port: port, log: log}
}

// establishListener binds and listens on the socket's port. The listener
// allows address reuse so the server can restart without waiting for
// lingering client connections to time out.
func (s *socket) establishListener() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}
	s.ln = ln
	return nil
}

// acceptWorker blocks until a connection is established (or the listener
// is closed) and then invokes done. Run on its own goroutine.
func (s *socket) acceptWorker(done func()) {
	conn, err := s.ln.Accept()
	if err == nil {
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
	}
	done()
}

func (s *socket) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *socket) current() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// transmitSizedMessage sends the payload length as little-endian uint32
// followed by the payload. A short or failed send reports false and ends
// the session.
func (s *socket) transmitSizedMessage(payload []byte) bool {
	conn := s.current()
	if conn == nil {
		return false
	}

	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(payload)))
	if _, err := conn.Write(size[:]); err != nil {
		s.log.Info().Msg("remote client disconnected")
		return false
	}
	if _, err := conn.Write(payload); err != nil {
		s.log.Info().Err(err).Msg("remote client disconnected")
		return false
	}
	return true
}

// receiveCommand performs a single receive of at most recvBufferSize-1
// bytes. ok is false on disconnect or shutdown.
func (s *socket) receiveCommand(buf []byte) (string, bool) {
	conn := s.current()
	if conn == nil {
		return "", false
	}
	n, err := conn.Read(buf[:recvBufferSize-1])
	if err != nil || n <= 0 {
		return "", false
	}
	return string(buf[:n]), true
}

// shutdown half-closes both directions of the active connection so blocked
// reads and writes return, without releasing the descriptor.
func (s *socket) shutdown() {
	conn := s.current()
	if conn == nil {
		return
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseRead()
		_ = tcp.CloseWrite()
	}
}

// closeConn closes and forgets the active connection.
func (s *socket) closeConn() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// closeListener closes the listening socket, aborting any in-flight
// accept. Terminal: the socket cannot accept again afterwards.
func (s *socket) closeListener() {
	if s.ln != nil {
		_ = s.ln.Close()
	}
}
