// Package session implements the proxy's per-connection protocol
// engine: frame reading, opcode dispatch, the two virtual handle
// tables, and the teardown that guarantees no native PC/SC handle
// outlives a connection.
package session

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pcscproxy/pcscproxy/internal/logging"
	"github.com/pcscproxy/pcscproxy/internal/metrics"
	"github.com/pcscproxy/pcscproxy/pcsc"
	"github.com/pcscproxy/pcscproxy/wire"
)

// listReadersMaxLength is the anti-amplification cap spec.md's
// validation rule imposes on ListReaders' readersLength field.
const listReadersMaxLength = 25600

// Session owns one accepted TCP connection's entire lifetime: the
// socket, the context and card handle tables, and the card workers
// those handles name.
type Session struct {
	conn    net.Conn
	backend pcsc.Backend
	log     *logging.Logger

	contexts *handleTable[pcsc.NativeContext]
	cards    *handleTable[*cardWorker]

	sendMu sync.Mutex

	closed     atomic.Bool
	closeOnce  sync.Once
	onClose    func()
	workersMu  sync.Mutex
	allWorkers []*cardWorker
}

// New returns a Session for an already-accepted connection. onClose
// is invoked exactly once, when the session's I/O terminates, before
// teardown runs; the accept layer supplies it to release its own
// reference to the session.
func New(conn net.Conn, backend pcsc.Backend, log *logging.Logger, onClose func()) *Session {
	return &Session{
		conn:     conn,
		backend:  backend,
		log:      log,
		contexts: newHandleTable[pcsc.NativeContext](),
		cards:    newHandleTable[*cardWorker](),
		onClose:  onClose,
	}
}

// Serve reads and dispatches frames until a wire error or read
// failure ends the connection, then tears down and returns. It never
// returns a wire-layer error the caller needs to act on; by the time
// Serve returns, teardown has already completed.
func (s *Session) Serve() {
	defer s.close()

	for {
		body, err := wire.ReadFrame(s.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("session read ended", "error", err)
			}
			return
		}

		packetID, op, payload, err := wire.DecodePacket(body)
		if err != nil {
			s.log.Debug("malformed packet, closing", "error", err)
			return
		}

		req, err := wire.DecodeRequest(op, payload)
		if err != nil {
			s.log.Debug("undecodable request, closing", "opcode", op, "error", err)
			return
		}

		s.dispatch(packetID, req)
	}
}

func (s *Session) dispatch(packetID uint32, req wire.Request) {
	metrics.RecordRequest(req.Opcode().String())

	switch r := req.(type) {
	case wire.EstablishContextRequest:
		s.handleEstablishContext(packetID, r)
	case wire.ReleaseContextRequest:
		s.handleReleaseContext(packetID, r)
	case wire.ListReadersRequest:
		s.handleListReaders(packetID, r)
	case wire.ConnectRequest:
		s.handleConnect(packetID, r)
	case wire.DisconnectRequest:
		s.routeToCard(packetID, r.Card, r)
	case wire.BeginTransactionRequest:
		s.routeToCard(packetID, r.Card, r)
	case wire.EndTransactionRequest:
		s.routeToCard(packetID, r.Card, r)
	case wire.TransmitRequest:
		s.routeToCard(packetID, r.Card, r)
	case wire.GetAttribRequest:
		s.routeToCard(packetID, r.Card, r)
	}
}

func (s *Session) handleEstablishContext(packetID uint32, r wire.EstablishContextRequest) {
	native, status := s.backend.EstablishContext(r.Scope)
	metrics.RecordBackendCall(wire.OpEstablishContext.String(), status.String())
	resp := wire.EstablishContextResponse{APIReturn: uint32(status)}
	if status == pcsc.Success {
		resp.Context = s.contexts.alloc(native)
	}
	s.sendResponse(packetID, resp)
}

func (s *Session) handleReleaseContext(packetID uint32, r wire.ReleaseContextRequest) {
	native, ok := s.contexts.get(r.Context)
	if !ok {
		s.sendResponse(packetID, wire.ReleaseContextResponse{APIReturn: uint32(pcsc.ErrInvalidHandle)})
		return
	}
	status := s.backend.ReleaseContext(native)
	metrics.RecordBackendCall(wire.OpReleaseContext.String(), status.String())
	if status == pcsc.Success {
		s.contexts.delete(r.Context)
	}
	s.sendResponse(packetID, wire.ReleaseContextResponse{APIReturn: uint32(status)})
}

func (s *Session) handleListReaders(packetID uint32, r wire.ListReadersRequest) {
	if r.ReadersLength > listReadersMaxLength {
		s.sendResponse(packetID, wire.ListReadersResponse{APIReturn: uint32(pcsc.ErrInsufficientBuffer)})
		return
	}

	native, ok := s.contexts.get(r.Context)
	if !ok {
		s.sendResponse(packetID, wire.ListReadersResponse{APIReturn: uint32(pcsc.ErrInvalidHandle)})
		return
	}

	var groups []byte
	if r.Groups != nil {
		groups = []byte(*r.Groups)
	}

	buf := make([]byte, r.ReadersLength)
	var probe []byte
	if r.ReadersLength == 0 {
		probe = nil
	} else {
		probe = buf
	}

	n, status := s.backend.ListReaders(native, groups, r.Groups != nil, probe)
	metrics.RecordBackendCall(wire.OpListReaders.String(), status.String())
	resp := wire.ListReadersResponse{APIReturn: uint32(status), ReadersLength: n}
	if status == pcsc.Success {
		resp.Readers = buf[:min(n, uint32(len(buf)))]
	}
	s.sendResponse(packetID, resp)
}

func (s *Session) handleConnect(packetID uint32, r wire.ConnectRequest) {
	if _, ok := s.contexts.get(r.Context); !ok {
		s.sendResponse(packetID, wire.ConnectResponse{APIReturn: uint32(pcsc.ErrInvalidHandle)})
		return
	}

	handle := s.cards.alloc(nil)
	w := newCardWorker(handle, s, s.backend)
	s.cards.set(handle, w)
	s.registerWorker(w)
	w.start()
	w.enqueue(packetID, r)
}

// registerWorker records w both in the card table (already done by
// the caller via cards.set) and in allWorkers, so teardown can find
// every worker even one whose Connect never completed.
func (s *Session) registerWorker(w *cardWorker) {
	s.workersMu.Lock()
	s.allWorkers = append(s.allWorkers, w)
	s.workersMu.Unlock()
}

// routeToCard looks up the card worker for handle and either enqueues
// req onto it or, if the handle names no running worker, responds
// inline with INVALID_HANDLE using the opcode-appropriate zero body.
func (s *Session) routeToCard(packetID uint32, handle uint64, req wire.Request) {
	w, ok := s.cards.get(handle)
	if !ok || !w.running.Load() {
		s.sendResponse(packetID, invalidHandleResponse(req))
		return
	}
	w.enqueue(packetID, req)
}

func invalidHandleResponse(req wire.Request) wire.Response {
	switch req.(type) {
	case wire.DisconnectRequest:
		return wire.DisconnectResponse{APIReturn: uint32(pcsc.ErrInvalidHandle)}
	case wire.BeginTransactionRequest:
		return wire.BeginTransactionResponse{APIReturn: uint32(pcsc.ErrInvalidHandle)}
	case wire.EndTransactionRequest:
		return wire.EndTransactionResponse{APIReturn: uint32(pcsc.ErrInvalidHandle)}
	case wire.TransmitRequest:
		return wire.TransmitResponse{APIReturn: uint32(pcsc.ErrInvalidHandle)}
	case wire.GetAttribRequest:
		return wire.GetAttribResponse{APIReturn: uint32(pcsc.ErrInvalidHandle)}
	default:
		return wire.DisconnectResponse{APIReturn: uint32(pcsc.ErrInvalidHandle)}
	}
}

// sendResponse serializes resp and writes it to the connection under
// the send mutex. It is called from the session's own goroutine for
// inline responses and from card worker goroutines for card-routed
// ones; the mutex is what keeps two such writes from interleaving.
//
// If the session has already closed, the write is skipped: this is
// the Go-native stand-in for the design note's "weak reference
// upgrade fails, drop the response" case.
func (s *Session) sendResponse(packetID uint32, resp wire.Response) {
	if s.closed.Load() {
		return
	}
	body := wire.EncodeResponse(packetID, resp)

	s.sendMu.Lock()
	err := wire.WriteFrame(s.conn, body)
	s.sendMu.Unlock()

	if err != nil {
		s.log.Debug("session write failed, closing", "error", err)
		s.closeConn()
	}
}

// closeConn closes the underlying connection without running
// teardown a second time; Serve's deferred close() handles teardown
// once its read loop observes the resulting error.
func (s *Session) closeConn() {
	_ = s.conn.Close()
}

// Close ends the session from the outside: it closes the underlying
// connection, which unblocks Serve's read loop, and runs the same
// teardown Serve's own deferred close would run once that loop
// observes the resulting error. Safe to call concurrently with Serve
// and safe to call more than once; only the first call does anything.
func (s *Session) Close() {
	s.close()
}

// close runs the teardown sequence exactly once: invoke the close
// callback, then disconnect and stop every card worker, then release
// every context, per spec.md §4.2.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.conn.Close()
		if s.onClose != nil {
			s.onClose()
		}
		s.teardown()
	})
}

func (s *Session) teardown() {
	s.workersMu.Lock()
	workers := s.allWorkers
	s.allWorkers = nil
	s.workersMu.Unlock()

	for _, w := range workers {
		if w.native != 0 {
			s.backend.Disconnect(w.native, pcsc.LeaveCard)
		}
		w.stop()
		w.wait()
	}
	s.cards.drain()

	for _, native := range s.contexts.drain() {
		s.backend.ReleaseContext(native)
	}
}
