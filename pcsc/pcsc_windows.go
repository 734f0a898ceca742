// SPDX-FileCopyrightText: 2020 Google LLC
// SPDX-License-Identifier: Apache-2.0

//go:build windows
// +build windows

package pcsc

import (
	"syscall"
	"unsafe"
)

var (
	winscard                  = syscall.NewLazyDLL("Winscard.dll")
	procSCardEstablishContext = winscard.NewProc("SCardEstablishContext")
	procSCardReleaseContext   = winscard.NewProc("SCardReleaseContext")
	procSCardListReadersW     = winscard.NewProc("SCardListReadersW")
	procSCardConnectW         = winscard.NewProc("SCardConnectW")
	procSCardDisconnect       = winscard.NewProc("SCardDisconnect")
	procSCardBeginTransaction = winscard.NewProc("SCardBeginTransaction")
	procSCardEndTransaction   = winscard.NewProc("SCardEndTransaction")
	procSCardTransmit         = winscard.NewProc("SCardTransmit")
	procSCardGetAttrib        = winscard.NewProc("SCardGetAttrib")
)

// pciHeaders mirrors the three static SCARD_IO_REQUEST headers exposed
// by winscard.h (g_rgSCardT0Pci etc.) well enough for the proxy's
// purposes: only dwProtocol is read by the daemon for a send PCI, and
// the proxy never needs anything past the header.
var pciHeaders = map[PCIKind][2]uint32{
	PCIT0:  {1 /* SCARD_PROTOCOL_T0 */, 8},
	PCIT1:  {2 /* SCARD_PROTOCOL_T1 */, 8},
	PCIRaw: {0x00010000 /* SCARD_PROTOCOL_RAW */, 8},
}

// nativeBackend talks to the host's smart card service via the
// Winscard.dll syscalls, generalizing the teacher's single-protocol
// wrapper to the full nine-call surface the proxy needs.
type nativeBackend struct{}

// NewBackend returns the syscall-backed Backend for this platform.
func NewBackend() Backend { return nativeBackend{} }

func (nativeBackend) EstablishContext(scope uint32) (NativeContext, Status) {
	var ctx syscall.Handle
	r0, _, _ := procSCardEstablishContext.Call(
		uintptr(scope), 0, 0,
		uintptr(unsafe.Pointer(&ctx)),
	)
	if Status(r0) != Success {
		return 0, Status(r0)
	}
	return NativeContext(ctx), Success
}

func (nativeBackend) ReleaseContext(ctx NativeContext) Status {
	r0, _, _ := procSCardReleaseContext.Call(uintptr(ctx))
	return Status(r0)
}

func (nativeBackend) ListReaders(ctx NativeContext, groups []byte, hasGroups bool, buf []byte) (uint32, Status) {
	var n uint32
	var groupsPtr unsafe.Pointer
	if hasGroups && len(groups) > 0 {
		groupsPtr = unsafe.Pointer(&groups[0])
	}

	r0, _, _ := procSCardListReadersW.Call(
		uintptr(ctx), uintptr(groupsPtr), 0, uintptr(unsafe.Pointer(&n)),
	)
	if Status(r0) == ErrNoReadersAvailable {
		return 0, ErrNoReadersAvailable
	}
	if Status(r0) != Success {
		return 0, Status(r0)
	}

	if len(buf) == 0 {
		return n * 2, Success
	}

	d := make([]uint16, n)
	r0, _, _ = procSCardListReadersW.Call(
		uintptr(ctx), uintptr(groupsPtr),
		uintptr(unsafe.Pointer(&d[0])), uintptr(unsafe.Pointer(&n)),
	)
	if Status(r0) != Success {
		return 0, Status(r0)
	}

	raw := (*[1 << 20]byte)(unsafe.Pointer(&d[0]))[: n*2 : n*2]
	copy(buf, raw)
	if int(n*2) > len(buf) {
		return uint32(len(buf)), Success
	}
	return n * 2, Success
}

func (nativeBackend) Connect(ctx NativeContext, reader string, shareMode uint32, preferredProtocols Protocol) (NativeCard, Protocol, Status) {
	var (
		handle         syscall.Handle
		activeProtocol uint32
	)
	readerPtr, err := syscall.UTF16PtrFromString(reader)
	if err != nil {
		return 0, 0, ErrInvalidHandle
	}
	r0, _, _ := procSCardConnectW.Call(
		uintptr(ctx),
		uintptr(unsafe.Pointer(readerPtr)),
		uintptr(shareMode),
		uintptr(preferredProtocols),
		uintptr(unsafe.Pointer(&handle)),
		uintptr(unsafe.Pointer(&activeProtocol)),
	)
	if Status(r0) != Success {
		return 0, 0, Status(r0)
	}
	return NativeCard(handle), Protocol(activeProtocol), Success
}

func (nativeBackend) Disconnect(card NativeCard, disposition Disposition) Status {
	r0, _, _ := procSCardDisconnect.Call(uintptr(card), uintptr(disposition))
	return Status(r0)
}

func (nativeBackend) BeginTransaction(card NativeCard) Status {
	r0, _, _ := procSCardBeginTransaction.Call(uintptr(card))
	return Status(r0)
}

func (nativeBackend) EndTransaction(card NativeCard, disposition Disposition) Status {
	r0, _, _ := procSCardEndTransaction.Call(uintptr(card), uintptr(disposition))
	return Status(r0)
}

func (nativeBackend) Transmit(card NativeCard, sendPCI PCIKind, sendBuf []byte, recvPCI *IORequest, recvBuf []byte) (uint32, Status) {
	var sendIO [2]uint32
	var sendIOPtr uintptr
	if hdr, ok := pciHeaders[sendPCI]; ok {
		sendIO = hdr
		sendIOPtr = uintptr(unsafe.Pointer(&sendIO[0]))
	}

	var sendPtr unsafe.Pointer
	if len(sendBuf) > 0 {
		sendPtr = unsafe.Pointer(&sendBuf[0])
	}
	var recvPtr unsafe.Pointer
	if len(recvBuf) > 0 {
		recvPtr = unsafe.Pointer(&recvBuf[0])
	}
	recvLen := uint32(len(recvBuf))

	var recvIO [2]uint32
	var recvIOPtr uintptr
	if recvPCI != nil {
		recvIO[0], recvIO[1] = recvPCI.Protocol, recvPCI.Length
		recvIOPtr = uintptr(unsafe.Pointer(&recvIO[0]))
	}

	r0, _, _ := procSCardTransmit.Call(
		uintptr(card),
		sendIOPtr,
		uintptr(sendPtr), uintptr(len(sendBuf)),
		recvIOPtr,
		uintptr(recvPtr), uintptr(unsafe.Pointer(&recvLen)),
	)
	if Status(r0) != Success {
		return 0, Status(r0)
	}
	if recvPCI != nil {
		recvPCI.Protocol, recvPCI.Length = recvIO[0], recvIO[1]
	}
	return recvLen, Success
}

func (nativeBackend) GetAttrib(card NativeCard, attrID uint32, buf []byte) (uint32, Status) {
	var ptr unsafe.Pointer
	if len(buf) > 0 {
		ptr = unsafe.Pointer(&buf[0])
	}
	n := uint32(len(buf))
	r0, _, _ := procSCardGetAttrib.Call(
		uintptr(card), uintptr(attrID), uintptr(ptr), uintptr(unsafe.Pointer(&n)),
	)
	if Status(r0) != Success {
		return 0, Status(r0)
	}
	return n, Success
}
