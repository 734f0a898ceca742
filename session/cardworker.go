package session

import (
	"sync"
	"sync/atomic"

	"github.com/pcscproxy/pcscproxy/internal/metrics"
	"github.com/pcscproxy/pcscproxy/pcsc"
	"github.com/pcscproxy/pcscproxy/wire"
)

// queuedRequest is one entry on a card worker's FIFO.
type queuedRequest struct {
	packetID uint32
	req      wire.Request
}

// cardWorker owns one virtual card handle's entire lifetime. It runs
// on a dedicated goroutine so that PC/SC calls against its native
// handle — which may block arbitrarily long, in particular
// BeginTransaction and Transmit — never stall the session's reader
// goroutine or any other card's worker.
//
// cardWorker holds a direct pointer back to its session rather than a
// true weak reference: Go's garbage collector reclaims the session/
// worker cycle on its own once the session drops its worker map, so
// nothing needs to be upgraded. What the design note's "upgrade
// fails, drop the response" case becomes here is the session.closed
// flag checked in sendResponse — set once at teardown, before workers
// are asked to stop.
type cardWorker struct {
	handle  uint64
	session *Session
	backend pcsc.Backend

	native pcsc.NativeCard

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []queuedRequest
	running  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

func newCardWorker(handle uint64, s *Session, backend pcsc.Backend) *cardWorker {
	w := &cardWorker{
		handle:  handle,
		session: s,
		backend: backend,
		done:    make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	w.running.Store(true)
	metrics.CardWorkersActive.Inc()
	return w
}

// start launches the worker's dedicated goroutine.
func (w *cardWorker) start() {
	go w.run()
}

// enqueue posts a request onto the worker's FIFO. The caller must
// only do this while w.running.Load() is true.
func (w *cardWorker) enqueue(packetID uint32, req wire.Request) {
	w.mu.Lock()
	w.queue = append(w.queue, queuedRequest{packetID: packetID, req: req})
	w.mu.Unlock()
	w.cond.Signal()
}

// stop marks the worker stopped and wakes it so it can drain and
// exit. Safe to call more than once.
func (w *cardWorker) stop() {
	w.stopOnce.Do(metrics.CardWorkersActive.Dec)
	w.running.Store(false)
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// wait blocks until the worker goroutine has exited.
func (w *cardWorker) wait() { <-w.done }

func (w *cardWorker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && w.running.Load() {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		next := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.dispatch(next.packetID, next.req)
	}
}

func (w *cardWorker) dispatch(packetID uint32, req wire.Request) {
	switch r := req.(type) {
	case wire.ConnectRequest:
		w.handleConnect(packetID, r)
	case wire.DisconnectRequest:
		w.handleDisconnect(packetID, r)
	case wire.BeginTransactionRequest:
		w.handleBeginTransaction(packetID, r)
	case wire.EndTransactionRequest:
		w.handleEndTransaction(packetID, r)
	case wire.TransmitRequest:
		w.handleTransmit(packetID, r)
	case wire.GetAttribRequest:
		w.handleGetAttrib(packetID, r)
	}
}

func (w *cardWorker) handleConnect(packetID uint32, r wire.ConnectRequest) {
	nativeCtx, ok := w.session.contexts.get(r.Context)
	if !ok {
		w.session.sendResponse(packetID, wire.ConnectResponse{APIReturn: uint32(pcsc.ErrInvalidHandle)})
		w.stop()
		return
	}

	card, active, status := w.backend.Connect(nativeCtx, r.Reader, r.ShareMode, pcsc.Protocol(r.PreferredProtocols))
	metrics.RecordBackendCall(wire.OpConnect.String(), status.String())
	if status != pcsc.Success {
		w.session.sendResponse(packetID, wire.ConnectResponse{APIReturn: uint32(status)})
		w.stop()
		return
	}

	w.native = card
	w.session.sendResponse(packetID, wire.ConnectResponse{
		APIReturn:      uint32(status),
		Card:           w.handle,
		ActiveProtocol: uint32(active),
	})
}

func (w *cardWorker) handleDisconnect(packetID uint32, r wire.DisconnectRequest) {
	status := w.backend.Disconnect(w.native, pcsc.Disposition(r.Disposition))
	metrics.RecordBackendCall(wire.OpDisconnect.String(), status.String())
	w.session.sendResponse(packetID, wire.DisconnectResponse{APIReturn: uint32(status)})
	if status == pcsc.Success {
		w.stop()
	}
}

func (w *cardWorker) handleBeginTransaction(packetID uint32, _ wire.BeginTransactionRequest) {
	status := w.backend.BeginTransaction(w.native)
	metrics.RecordBackendCall(wire.OpBeginTransaction.String(), status.String())
	w.session.sendResponse(packetID, wire.BeginTransactionResponse{APIReturn: uint32(status)})
}

func (w *cardWorker) handleEndTransaction(packetID uint32, r wire.EndTransactionRequest) {
	status := w.backend.EndTransaction(w.native, pcsc.Disposition(r.Disposition))
	metrics.RecordBackendCall(wire.OpEndTransaction.String(), status.String())
	w.session.sendResponse(packetID, wire.EndTransactionResponse{APIReturn: uint32(status)})
}

func (w *cardWorker) handleTransmit(packetID uint32, r wire.TransmitRequest) {
	var recvPCI *pcsc.IORequest
	if r.RecvPCI != nil {
		recvPCI = &pcsc.IORequest{Protocol: r.RecvPCI.Protocol, Length: r.RecvPCI.Length}
	}

	recvBuf := make([]byte, r.RecvLength)
	n, status := w.backend.Transmit(w.native, pcsc.PCIKind(r.SendPCI), r.SendBuffer, recvPCI, recvBuf)
	metrics.RecordBackendCall(wire.OpTransmit.String(), status.String())

	resp := wire.TransmitResponse{APIReturn: uint32(status), RecvBuffer: recvBuf[:n], RecvLength: n}
	if recvPCI != nil {
		resp.RecvPCI = &wire.PCI{Protocol: recvPCI.Protocol, Length: recvPCI.Length}
	}
	w.session.sendResponse(packetID, resp)
}

func (w *cardWorker) handleGetAttrib(packetID uint32, r wire.GetAttribRequest) {
	buf := make([]byte, r.AttrLength)
	n, status := w.backend.GetAttrib(w.native, r.AttrID, buf)
	metrics.RecordBackendCall(wire.OpGetAttrib.String(), status.String())
	w.session.sendResponse(packetID, wire.GetAttribResponse{APIReturn: uint32(status), AttrBuffer: buf[:n], AttrLength: n})
}
