// Package wire implements the proxy's framed binary request/response
// protocol: a stateless codec over the nine PC/SC operations the
// session and card worker layers dispatch.
package wire

import "fmt"

// Opcode identifies a request or response body. Requests and their
// matching responses are distinct values; a response is always its
// request's opcode plus one.
type Opcode uint32

const (
	OpEstablishContext Opcode = iota + 1
	OpEstablishContextResult
	OpReleaseContext
	OpReleaseContextResult
	OpListReaders
	OpListReadersResult
	OpConnect
	OpConnectResult
	OpDisconnect
	OpDisconnectResult
	OpBeginTransaction
	OpBeginTransactionResult
	OpEndTransaction
	OpEndTransactionResult
	OpTransmit
	OpTransmitResult
	OpGetAttrib
	OpGetAttribResult
)

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("opcode(%d)", uint32(op))
}

var opcodeNames = map[Opcode]string{
	OpEstablishContext:       "EstablishContext",
	OpEstablishContextResult: "EstablishContextResult",
	OpReleaseContext:         "ReleaseContext",
	OpReleaseContextResult:   "ReleaseContextResult",
	OpListReaders:            "ListReaders",
	OpListReadersResult:      "ListReadersResult",
	OpConnect:                "Connect",
	OpConnectResult:          "ConnectResult",
	OpDisconnect:             "Disconnect",
	OpDisconnectResult:       "DisconnectResult",
	OpBeginTransaction:       "BeginTransaction",
	OpBeginTransactionResult: "BeginTransactionResult",
	OpEndTransaction:         "EndTransaction",
	OpEndTransactionResult:   "EndTransactionResult",
	OpTransmit:               "Transmit",
	OpTransmitResult:         "TransmitResult",
	OpGetAttrib:              "GetAttrib",
	OpGetAttribResult:        "GetAttribResult",
}

// IsRequest reports whether op is one of the nine request opcodes.
func (op Opcode) IsRequest() bool {
	return op >= OpEstablishContext && op <= OpGetAttribResult && op%2 == 1
}
