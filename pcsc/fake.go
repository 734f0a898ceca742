package pcsc

import (
	"fmt"
	"sync"
)

// FakeReader describes one simulated reader/card pair a FakeBackend
// serves. Transmit and GetAttrib are supplied by the test so it can
// script exactly the responses it wants to see echoed back over the
// wire.
type FakeReader struct {
	Name            string
	ActiveProtocol  Protocol
	ConnectStatus   Status
	Transmit        func(sendPCI PCIKind, req []byte) (resp []byte, status Status)
	Attribs         map[uint32][]byte
	DisconnectCalls int
}

// FakeBackend is an in-process stand-in for a real PC/SC service, used
// by session and accept tests so the protocol engine's behavior can be
// exercised without physical readers. It implements Backend.
type FakeBackend struct {
	mu        sync.Mutex
	readers   []*FakeReader
	contexts  map[NativeContext]bool
	cards     map[NativeCard]*FakeReader
	nextCtx   NativeContext
	nextCard  NativeCard
	connectsN int
}

// NewFakeBackend returns a FakeBackend serving the given readers.
func NewFakeBackend(readers ...*FakeReader) *FakeBackend {
	return &FakeBackend{
		readers:  readers,
		contexts: make(map[NativeContext]bool),
		cards:    make(map[NativeCard]*FakeReader),
		nextCtx:  1,
		nextCard: 1,
	}
}

func (f *FakeBackend) EstablishContext(uint32) (NativeContext, Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ctx := f.nextCtx
	f.nextCtx++
	f.contexts[ctx] = true
	return ctx, Success
}

func (f *FakeBackend) ReleaseContext(ctx NativeContext) Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.contexts[ctx] {
		return ErrInvalidHandle
	}
	delete(f.contexts, ctx)
	return Success
}

func (f *FakeBackend) ListReaders(ctx NativeContext, _ []byte, _ bool, buf []byte) (uint32, Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.contexts[ctx] {
		return 0, ErrInvalidHandle
	}

	var packed []byte
	for _, r := range f.readers {
		packed = append(packed, []byte(r.Name)...)
		packed = append(packed, 0)
	}
	packed = append(packed, 0)

	if buf == nil {
		return uint32(len(packed)), Success
	}
	n := copy(buf, packed)
	return uint32(n), Success
}

func (f *FakeBackend) Connect(ctx NativeContext, reader string, _ uint32, preferred Protocol) (NativeCard, Protocol, Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectsN++
	if !f.contexts[ctx] {
		return 0, 0, ErrInvalidHandle
	}

	for _, r := range f.readers {
		if r.Name != reader {
			continue
		}
		if r.ConnectStatus != Success && r.ConnectStatus != 0 {
			return 0, 0, r.ConnectStatus
		}
		card := f.nextCard
		f.nextCard++
		f.cards[card] = r
		active := r.ActiveProtocol
		if active == 0 {
			active = preferred
		}
		return card, active, Success
	}
	return 0, 0, ErrInvalidHandle
}

func (f *FakeBackend) Disconnect(card NativeCard, _ Disposition) Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.cards[card]
	if !ok {
		return ErrInvalidHandle
	}
	r.DisconnectCalls++
	delete(f.cards, card)
	return Success
}

func (f *FakeBackend) BeginTransaction(card NativeCard) Status {
	if !f.hasCard(card) {
		return ErrInvalidHandle
	}
	return Success
}

func (f *FakeBackend) EndTransaction(card NativeCard, _ Disposition) Status {
	if !f.hasCard(card) {
		return ErrInvalidHandle
	}
	return Success
}

func (f *FakeBackend) Transmit(card NativeCard, sendPCI PCIKind, sendBuf []byte, recvPCI *IORequest, recvBuf []byte) (uint32, Status) {
	f.mu.Lock()
	r, ok := f.cards[card]
	f.mu.Unlock()
	if !ok {
		return 0, ErrInvalidHandle
	}
	if r.Transmit == nil {
		panic(fmt.Sprintf("fake reader %q has no Transmit script", r.Name))
	}
	resp, status := r.Transmit(sendPCI, sendBuf)
	if status != Success {
		return 0, status
	}
	if recvPCI != nil {
		recvPCI.Protocol = uint32(r.ActiveProtocol)
	}
	n := copy(recvBuf, resp)
	return uint32(n), Success
}

func (f *FakeBackend) GetAttrib(card NativeCard, attrID uint32, buf []byte) (uint32, Status) {
	f.mu.Lock()
	r, ok := f.cards[card]
	f.mu.Unlock()
	if !ok {
		return 0, ErrInvalidHandle
	}
	val, ok := r.Attribs[attrID]
	if !ok {
		return 0, ErrInvalidHandle
	}
	n := copy(buf, val)
	return uint32(n), Success
}

func (f *FakeBackend) hasCard(card NativeCard) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.cards[card]
	return ok
}
