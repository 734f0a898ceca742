// SPDX-FileCopyrightText: 2020 Google LLC
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux || freebsd || openbsd
// +build darwin linux freebsd openbsd

package pcsc

// https://ludovicrousseau.blogspot.com/2010/04/pcsc-sample-in-c.html

// #cgo darwin LDFLAGS: -framework PCSC
// #cgo linux pkg-config: libpcsclite
// #cgo freebsd CFLAGS: -I/usr/local/include/
// #cgo freebsd CFLAGS: -I/usr/local/include/PCSC
// #cgo freebsd LDFLAGS: -L/usr/local/lib/
// #cgo freebsd LDFLAGS: -lpcsclite
// #cgo openbsd CFLAGS: -I/usr/local/include/
// #cgo openbsd CFLAGS: -I/usr/local/include/PCSC
// #cgo openbsd LDFLAGS: -L/usr/local/lib/
// #cgo openbsd LDFLAGS: -lpcsclite
// #include <PCSC/winscard.h>
// #include <PCSC/wintypes.h>
import "C"

import (
	"unsafe"
)

// nativeBackend talks to the host's pcscd/PC/SC Lite daemon through
// cgo. It holds no state of its own: every native handle PC/SC hands
// back is threaded through by the caller (session/card worker), never
// stored here, so one nativeBackend value is shared by every session.
type nativeBackend struct{}

// NewBackend returns the cgo-backed Backend for this platform.
func NewBackend() Backend { return nativeBackend{} }

func pciForKind(kind PCIKind) *C.SCARD_IO_REQUEST {
	switch kind {
	case PCIT0:
		return C.SCARD_PCI_T0
	case PCIT1:
		return C.SCARD_PCI_T1
	case PCIRaw:
		return C.SCARD_PCI_RAW
	default:
		return nil
	}
}

func (nativeBackend) EstablishContext(scope uint32) (NativeContext, Status) {
	var ctx C.SCARDCONTEXT
	rc := C.SCardEstablishContext(C.DWORD(scope), nil, nil, &ctx)
	if rc != C.SCARD_S_SUCCESS {
		return 0, Status(rc)
	}
	return NativeContext(ctx), Success
}

func (nativeBackend) ReleaseContext(ctx NativeContext) Status {
	return Status(C.SCardReleaseContext(C.SCARDCONTEXT(ctx)))
}

func (nativeBackend) ListReaders(ctx NativeContext, groups []byte, hasGroups bool, buf []byte) (uint32, Status) {
	var groupsPtr *C.char
	if hasGroups && len(groups) > 0 {
		groupsPtr = (*C.char)(unsafe.Pointer(&groups[0]))
	}

	n := C.DWORD(len(buf))
	var bufPtr *C.char
	if len(buf) > 0 {
		bufPtr = (*C.char)(unsafe.Pointer(&buf[0]))
	}

	rc := C.SCardListReaders(C.SCARDCONTEXT(ctx), groupsPtr, bufPtr, &n)
	if rc == C.SCARD_E_NO_READERS_AVAILABLE {
		return 0, ErrNoReadersAvailable
	}
	if rc != C.SCARD_S_SUCCESS {
		return 0, Status(rc)
	}
	return uint32(n), Success
}

func (nativeBackend) Connect(ctx NativeContext, reader string, shareMode uint32, preferredProtocols Protocol) (NativeCard, Protocol, Status) {
	readerC := C.CString(reader)
	defer C.free(unsafe.Pointer(readerC))

	var (
		handle         C.SCARDHANDLE
		activeProtocol C.DWORD
	)
	rc := C.SCardConnect(C.SCARDCONTEXT(ctx), readerC,
		C.DWORD(shareMode), C.DWORD(preferredProtocols),
		&handle, &activeProtocol)
	if rc != C.SCARD_S_SUCCESS {
		return 0, 0, Status(rc)
	}
	return NativeCard(handle), Protocol(activeProtocol), Success
}

func (nativeBackend) Disconnect(card NativeCard, disposition Disposition) Status {
	return Status(C.SCardDisconnect(C.SCARDHANDLE(card), C.DWORD(disposition)))
}

func (nativeBackend) BeginTransaction(card NativeCard) Status {
	return Status(C.SCardBeginTransaction(C.SCARDHANDLE(card)))
}

func (nativeBackend) EndTransaction(card NativeCard, disposition Disposition) Status {
	return Status(C.SCardEndTransaction(C.SCARDHANDLE(card), C.DWORD(disposition)))
}

func (nativeBackend) Transmit(card NativeCard, sendPCI PCIKind, sendBuf []byte, recvPCI *IORequest, recvBuf []byte) (uint32, Status) {
	var sendPtr *C.BYTE
	if len(sendBuf) > 0 {
		sendPtr = (*C.BYTE)(unsafe.Pointer(&sendBuf[0]))
	}

	var recvPtr *C.BYTE
	if len(recvBuf) > 0 {
		recvPtr = (*C.BYTE)(unsafe.Pointer(&recvBuf[0]))
	}
	recvLen := C.DWORD(len(recvBuf))

	var ioRecv C.SCARD_IO_REQUEST
	var ioRecvPtr *C.SCARD_IO_REQUEST
	if recvPCI != nil {
		ioRecv.dwProtocol = C.DWORD(recvPCI.Protocol)
		ioRecv.cbPciLength = C.DWORD(recvPCI.Length)
		ioRecvPtr = &ioRecv
	}

	rc := C.SCardTransmit(C.SCARDHANDLE(card), pciForKind(sendPCI),
		sendPtr, C.DWORD(len(sendBuf)),
		ioRecvPtr, recvPtr, &recvLen)
	if rc != C.SCARD_S_SUCCESS {
		return 0, Status(rc)
	}
	if recvPCI != nil {
		recvPCI.Protocol = uint32(ioRecv.dwProtocol)
		recvPCI.Length = uint32(ioRecv.cbPciLength)
	}
	return uint32(recvLen), Success
}

func (nativeBackend) GetAttrib(card NativeCard, attrID uint32, buf []byte) (uint32, Status) {
	var attrPtr *C.BYTE
	if len(buf) > 0 {
		attrPtr = (*C.BYTE)(unsafe.Pointer(&buf[0]))
	}
	n := C.DWORD(len(buf))
	rc := C.SCardGetAttrib(C.SCARDHANDLE(card), C.DWORD(attrID), attrPtr, &n)
	if rc != C.SCARD_S_SUCCESS {
		return 0, Status(rc)
	}
	return uint32(n), Success
}
