// Package accept implements the TCP accept loop that hands sockets to
// the session package: the external collaborator spec.md's core
// treats as already having supplied an accepted byte stream and a
// close callback.
package accept

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pcscproxy/pcscproxy/internal/allowlist"
	"github.com/pcscproxy/pcscproxy/internal/logging"
	"github.com/pcscproxy/pcscproxy/internal/metrics"
	"github.com/pcscproxy/pcscproxy/pcsc"
	"github.com/pcscproxy/pcscproxy/session"
)

// Server accepts connections on a listener, filters them through an
// allow-list, and hands survivors to a new session.
type Server struct {
	listener net.Listener
	backend  pcsc.Backend
	allow    *allowlist.List
	log      *logging.Logger

	mu       sync.Mutex
	sessions map[*session.Session]bool
}

// New wraps an already-bound listener. backend is shared by every
// session the server accepts.
func New(listener net.Listener, backend pcsc.Backend, allow *allowlist.List, log *logging.Logger) *Server {
	return &Server{
		listener: listener,
		backend:  backend,
		allow:    allow,
		log:      log,
		sessions: make(map[*session.Session]bool),
	}
}

// Serve accepts connections until the listener is closed. Transient
// accept errors are retried with exponential backoff, mirroring the
// standard library's own net/http server loop; a permanent error
// (most commonly the listener being closed for shutdown) ends Serve.
func (s *Server) Serve() error {
	var tempDelay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				s.log.Debug("accept error, retrying", "delay", tempDelay, "error", err)
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		tempDelay = 0

		go s.handle(conn)
	}
}

// Close stops accepting new connections and closes every live
// session, draining each one's card workers per the same teardown
// Serve's own deferred close runs. It blocks until every session's
// teardown has completed.
func (s *Server) Close() error {
	err := s.listener.Close()

	s.mu.Lock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}

	return err
}

func (s *Server) handle(conn net.Conn) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	ip := net.ParseIP(host)

	if ip == nil || !s.allow.Allowed(ip) {
		s.log.Warn("rejecting connection: not in allow-list", "peer", host)
		metrics.ConnectionsRejectedTotal.Inc()
		conn.Close()
		return
	}

	s.log.Info("session accepted", "peer", host)
	metrics.SessionsActive.Inc()

	// sess is captured by the onClose closure below, which only runs
	// once Serve returns, well after New has assigned it.
	var sess *session.Session
	sess = session.New(conn, s.backend, s.log.With("peer", host), func() {
		s.unregister(sess)
		metrics.SessionsActive.Dec()
		s.log.Info("session closed", "peer", host)
	})
	s.register(sess)
	sess.Serve()
}

func (s *Server) register(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess] = true
}

func (s *Server) unregister(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
}
