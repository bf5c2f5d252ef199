// Package server owns the TCP accept loop and the per-connection session
// loop. Framing follows the established wire behavior: each read of up to
// one buffer (1024 bytes) is treated as one complete request and each
// response is written back unframed. Requests larger than the buffer are
// therefore split into garbage; this is a known protocol limitation kept
// for client compatibility, not an oversight.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/notepid/calcserv/internal/command"
	"github.com/notepid/calcserv/internal/metrics"
)

// requestBufferSize is the historical one-read-one-request buffer.
const requestBufferSize = 1024

// genericFailure is sent when an unanticipated internal error occurs.
const genericFailure = "An error occurred. Please try again"

// Server accepts connections and runs one session loop per connection.
type Server struct {
	addr        string
	idleTimeout time.Duration
	dispatcher  *command.Dispatcher
	log         zerolog.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	done  bool
}

// New creates a server. idleTimeout of zero disables the read deadline.
func New(host string, port int, idleTimeout time.Duration, d *command.Dispatcher, log zerolog.Logger) *Server {
	return &Server{
		addr:        fmt.Sprintf("%s:%d", host, port),
		idleTimeout: idleTimeout,
		dispatcher:  d,
		log:         log,
		conns:       make(map[net.Conn]struct{}),
	}
}

// ListenAndServe accepts connections until Close is called or a fatal
// listener error occurs.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	s.log.Info().Str("addr", s.addr).Msg("server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error().Err(err).Msg("accept error")
			continue
		}

		metrics.ConnectionsTotal.Inc()
		s.track(conn)
		go s.handleConn(conn)
	}
}

// Addr returns the bound listener address, or "" before ListenAndServe
// has bound one. Useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close stops accepting and closes all live sessions.
func (s *Server) Close() {
	s.mu.Lock()
	s.done = true
	if s.ln != nil {
		s.ln.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// handleConn runs the read/handle/write loop for one connection. Requests
// are strictly sequential: the next read does not start until the
// previous response is fully written.
func (s *Server) handleConn(conn net.Conn) {
	c := command.NewConn(conn.RemoteAddr().String())
	log := s.log.With().Str("conn", c.ID).Str("remote", c.Addr).Logger()
	log.Info().Msg("client connected")

	metrics.ActiveSessions.Inc()
	defer func() {
		// Disconnection is an implicit logout: release the user reference
		// so the registry can evict the entry if this was the last session.
		c.Cleanup()
		conn.Close()
		s.untrack(conn)
		metrics.ActiveSessions.Dec()
		log.Info().Msg("client disconnected")
	}()

	buf := make([]byte, requestBufferSize)
	for {
		if s.idleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		n, err := conn.Read(buf)
		if err != nil {
			// EOF, reset or idle deadline: only transport-level failures
			// end the session loop.
			log.Debug().Err(err).Msg("read ended")
			return
		}

		request := string(buf[:n])
		response := s.process(c, request, log)

		if _, err := conn.Write([]byte(response)); err != nil {
			log.Debug().Err(err).Msg("write failed")
			return
		}

		if c.CloseRequested {
			return
		}
	}
}

// process dispatches one request and converts errors into response text.
// Typed command errors are reported verbatim; anything else is logged and
// collapsed into a generic failure line so the session survives.
func (s *Server) process(c *command.Conn, request string, log zerolog.Logger) (response string) {
	verb := command.Verb(request)
	if verb == "" {
		verb = "invalid"
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("verb", verb).Msg("panic in command handler")
			metrics.CommandsTotal.WithLabelValues(verb, "internal_error").Inc()
			response = genericFailure
		}
	}()

	resp, err := s.dispatcher.Handle(context.Background(), c, request)
	switch {
	case err == nil:
		metrics.CommandsTotal.WithLabelValues(verb, "ok").Inc()
		return resp
	case command.IsClientError(err):
		log.Debug().Str("verb", verb).Str("state", c.State.String()).Err(err).Msg("command rejected")
		metrics.CommandsTotal.WithLabelValues(verb, "client_error").Inc()
		return err.Error()
	default:
		log.Error().Str("verb", verb).Err(err).Msg("command failed")
		metrics.CommandsTotal.WithLabelValues(verb, "internal_error").Inc()
		return genericFailure
	}
}
