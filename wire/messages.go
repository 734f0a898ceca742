package wire

import "fmt"

// PCI mirrors the (protocol, length) tuple a Transmit request or
// response carries for its optional receive protocol control block.
type PCI struct {
	Protocol uint32
	Length   uint32
}

// Request is the sum of the nine decoded request bodies. It carries
// no behavior beyond its own encoding; dispatch happens in the session
// package, by a type switch on the concrete request, not here.
type Request interface {
	Opcode() Opcode
	encodeBody(w *writer)
}

// Response is the sum of the nine encoded response bodies.
type Response interface {
	Opcode() Opcode
	encodeBody(w *writer)
}

type EstablishContextRequest struct {
	Scope uint32
}

func (EstablishContextRequest) Opcode() Opcode { return OpEstablishContext }
func (r EstablishContextRequest) encodeBody(w *writer) {
	w.u32(r.Scope)
}

type EstablishContextResponse struct {
	APIReturn uint32
	Context   uint64
}

func (EstablishContextResponse) Opcode() Opcode { return OpEstablishContextResult }
func (r EstablishContextResponse) encodeBody(w *writer) {
	w.u32(r.APIReturn)
	w.u64(r.Context)
}

type ReleaseContextRequest struct {
	Context uint64
}

func (ReleaseContextRequest) Opcode() Opcode { return OpReleaseContext }
func (r ReleaseContextRequest) encodeBody(w *writer) {
	w.u64(r.Context)
}

type ReleaseContextResponse struct {
	APIReturn uint32
}

func (ReleaseContextResponse) Opcode() Opcode { return OpReleaseContextResult }
func (r ReleaseContextResponse) encodeBody(w *writer) {
	w.u32(r.APIReturn)
}

// ListReadersRequest's Groups is nullable<string>; a nil Groups means
// the request omitted it, matching original_source's isGroupsNull.
type ListReadersRequest struct {
	Context       uint64
	Groups        *string
	ReadersLength uint32
}

func (ListReadersRequest) Opcode() Opcode { return OpListReaders }
func (r ListReadersRequest) encodeBody(w *writer) {
	w.u64(r.Context)
	w.nullableHeader(r.Groups != nil)
	if r.Groups != nil {
		w.string(*r.Groups)
	}
	w.u32(r.ReadersLength)
}

type ListReadersResponse struct {
	APIReturn     uint32
	Readers       []byte
	ReadersLength uint32
}

func (ListReadersResponse) Opcode() Opcode { return OpListReadersResult }
func (r ListReadersResponse) encodeBody(w *writer) {
	w.u32(r.APIReturn)
	w.bytes(r.Readers)
	w.u32(r.ReadersLength)
}

type ConnectRequest struct {
	Context            uint64
	Reader             string
	ShareMode          uint32
	PreferredProtocols uint32
}

func (ConnectRequest) Opcode() Opcode { return OpConnect }
func (r ConnectRequest) encodeBody(w *writer) {
	w.u64(r.Context)
	w.string(r.Reader)
	w.u32(r.ShareMode)
	w.u32(r.PreferredProtocols)
}

type ConnectResponse struct {
	APIReturn      uint32
	Card           uint64
	ActiveProtocol uint32
}

func (ConnectResponse) Opcode() Opcode { return OpConnectResult }
func (r ConnectResponse) encodeBody(w *writer) {
	w.u32(r.APIReturn)
	w.u64(r.Card)
	w.u32(r.ActiveProtocol)
}

type DisconnectRequest struct {
	Card        uint64
	Disposition uint32
}

func (DisconnectRequest) Opcode() Opcode { return OpDisconnect }
func (r DisconnectRequest) encodeBody(w *writer) {
	w.u64(r.Card)
	w.u32(r.Disposition)
}

type DisconnectResponse struct {
	APIReturn uint32
}

func (DisconnectResponse) Opcode() Opcode { return OpDisconnectResult }
func (r DisconnectResponse) encodeBody(w *writer) {
	w.u32(r.APIReturn)
}

type BeginTransactionRequest struct {
	Card uint64
}

func (BeginTransactionRequest) Opcode() Opcode { return OpBeginTransaction }
func (r BeginTransactionRequest) encodeBody(w *writer) {
	w.u64(r.Card)
}

type BeginTransactionResponse struct {
	APIReturn uint32
}

func (BeginTransactionResponse) Opcode() Opcode { return OpBeginTransactionResult }
func (r BeginTransactionResponse) encodeBody(w *writer) {
	w.u32(r.APIReturn)
}

type EndTransactionRequest struct {
	Card        uint64
	Disposition uint32
}

func (EndTransactionRequest) Opcode() Opcode { return OpEndTransaction }
func (r EndTransactionRequest) encodeBody(w *writer) {
	w.u64(r.Card)
	w.u32(r.Disposition)
}

type EndTransactionResponse struct {
	APIReturn uint32
}

func (EndTransactionResponse) Opcode() Opcode { return OpEndTransactionResult }
func (r EndTransactionResponse) encodeBody(w *writer) {
	w.u32(r.APIReturn)
}

type TransmitRequest struct {
	Card       uint64
	SendPCI    uint32
	SendBuffer []byte
	RecvPCI    *PCI
	RecvLength uint32
}

func (TransmitRequest) Opcode() Opcode { return OpTransmit }
func (r TransmitRequest) encodeBody(w *writer) {
	w.u64(r.Card)
	w.u32(r.SendPCI)
	w.bytes(r.SendBuffer)
	w.nullableHeader(r.RecvPCI != nil)
	if r.RecvPCI != nil {
		w.u32(r.RecvPCI.Protocol)
		w.u32(r.RecvPCI.Length)
	}
	w.u32(r.RecvLength)
}

type TransmitResponse struct {
	APIReturn  uint32
	RecvBuffer []byte
	RecvPCI    *PCI
	RecvLength uint32
}

func (TransmitResponse) Opcode() Opcode { return OpTransmitResult }
func (r TransmitResponse) encodeBody(w *writer) {
	w.u32(r.APIReturn)
	w.bytes(r.RecvBuffer)
	w.nullableHeader(r.RecvPCI != nil)
	if r.RecvPCI != nil {
		w.u32(r.RecvPCI.Protocol)
		w.u32(r.RecvPCI.Length)
	}
	w.u32(r.RecvLength)
}

type GetAttribRequest struct {
	Card       uint64
	AttrID     uint32
	AttrLength uint32
}

func (GetAttribRequest) Opcode() Opcode { return OpGetAttrib }
func (r GetAttribRequest) encodeBody(w *writer) {
	w.u64(r.Card)
	w.u32(r.AttrID)
	w.u32(r.AttrLength)
}

type GetAttribResponse struct {
	APIReturn  uint32
	AttrBuffer []byte
	AttrLength uint32
}

func (GetAttribResponse) Opcode() Opcode { return OpGetAttribResult }
func (r GetAttribResponse) encodeBody(w *writer) {
	w.u32(r.APIReturn)
	w.bytes(r.AttrBuffer)
	w.u32(r.AttrLength)
}

// EncodeRequest serializes a packet body (packetId|opcode|payload) for
// req. Used by tests and by any client-side code exercising the wire.
func EncodeRequest(packetID uint32, req Request) []byte {
	w := &writer{}
	w.u32(packetID)
	w.u32(uint32(req.Opcode()))
	req.encodeBody(w)
	return w.buf
}

// EncodeResponse serializes a packet body for resp, echoing packetID.
func EncodeResponse(packetID uint32, resp Response) []byte {
	w := &writer{}
	w.u32(packetID)
	w.u32(uint32(resp.Opcode()))
	resp.encodeBody(w)
	return w.buf
}

// DecodePacket splits a frame's body into its packetId, opcode, and
// the remaining payload bytes.
func DecodePacket(body []byte) (packetID uint32, op Opcode, payload []byte, err error) {
	r := newReader(body)
	packetID, err = r.u32()
	if err != nil {
		return 0, 0, nil, err
	}
	rawOp, err := r.u32()
	if err != nil {
		return 0, 0, nil, err
	}
	return packetID, Opcode(rawOp), r.buf[r.pos:], nil
}

// DecodeRequest decodes payload as the request body for op. It
// returns an error for any opcode that is not a request opcode or for
// a payload that ends before a declared field length is satisfied.
func DecodeRequest(op Opcode, payload []byte) (Request, error) {
	r := newReader(payload)
	switch op {
	case OpEstablishContext:
		scope, err := r.u32()
		return EstablishContextRequest{Scope: scope}, err

	case OpReleaseContext:
		ctx, err := r.u64()
		return ReleaseContextRequest{Context: ctx}, err

	case OpListReaders:
		ctx, err := r.u64()
		if err != nil {
			return nil, err
		}
		present, err := r.nullablePresent()
		if err != nil {
			return nil, err
		}
		var groups *string
		if present {
			s, err := r.string()
			if err != nil {
				return nil, err
			}
			groups = &s
		}
		length, err := r.u32()
		return ListReadersRequest{Context: ctx, Groups: groups, ReadersLength: length}, err

	case OpConnect:
		ctx, err := r.u64()
		if err != nil {
			return nil, err
		}
		reader, err := r.string()
		if err != nil {
			return nil, err
		}
		shareMode, err := r.u32()
		if err != nil {
			return nil, err
		}
		preferred, err := r.u32()
		return ConnectRequest{Context: ctx, Reader: reader, ShareMode: shareMode, PreferredProtocols: preferred}, err

	case OpDisconnect:
		card, err := r.u64()
		if err != nil {
			return nil, err
		}
		disp, err := r.u32()
		return DisconnectRequest{Card: card, Disposition: disp}, err

	case OpBeginTransaction:
		card, err := r.u64()
		return BeginTransactionRequest{Card: card}, err

	case OpEndTransaction:
		card, err := r.u64()
		if err != nil {
			return nil, err
		}
		disp, err := r.u32()
		return EndTransactionRequest{Card: card, Disposition: disp}, err

	case OpTransmit:
		card, err := r.u64()
		if err != nil {
			return nil, err
		}
		sendPCI, err := r.u32()
		if err != nil {
			return nil, err
		}
		sendBuf, err := r.bytes()
		if err != nil {
			return nil, err
		}
		present, err := r.nullablePresent()
		if err != nil {
			return nil, err
		}
		var recvPCI *PCI
		if present {
			proto, err := r.u32()
			if err != nil {
				return nil, err
			}
			length, err := r.u32()
			if err != nil {
				return nil, err
			}
			recvPCI = &PCI{Protocol: proto, Length: length}
		}
		recvLength, err := r.u32()
		return TransmitRequest{Card: card, SendPCI: sendPCI, SendBuffer: sendBuf, RecvPCI: recvPCI, RecvLength: recvLength}, err

	case OpGetAttrib:
		card, err := r.u64()
		if err != nil {
			return nil, err
		}
		attrID, err := r.u32()
		if err != nil {
			return nil, err
		}
		attrLength, err := r.u32()
		return GetAttribRequest{Card: card, AttrID: attrID, AttrLength: attrLength}, err

	default:
		return nil, fmt.Errorf("wire: unknown request opcode %s", op)
	}
}

// DecodeResponse is the Response-side counterpart of DecodeRequest,
// used by tests that exercise the codec's round-trip property.
func DecodeResponse(op Opcode, payload []byte) (Response, error) {
	r := newReader(payload)
	switch op {
	case OpEstablishContextResult:
		apiReturn, err := r.u32()
		if err != nil {
			return nil, err
		}
		ctx, err := r.u64()
		return EstablishContextResponse{APIReturn: apiReturn, Context: ctx}, err

	case OpReleaseContextResult:
		apiReturn, err := r.u32()
		return ReleaseContextResponse{APIReturn: apiReturn}, err

	case OpListReadersResult:
		apiReturn, err := r.u32()
		if err != nil {
			return nil, err
		}
		readers, err := r.bytes()
		if err != nil {
			return nil, err
		}
		length, err := r.u32()
		return ListReadersResponse{APIReturn: apiReturn, Readers: readers, ReadersLength: length}, err

	case OpConnectResult:
		apiReturn, err := r.u32()
		if err != nil {
			return nil, err
		}
		card, err := r.u64()
		if err != nil {
			return nil, err
		}
		active, err := r.u32()
		return ConnectResponse{APIReturn: apiReturn, Card: card, ActiveProtocol: active}, err

	case OpDisconnectResult:
		apiReturn, err := r.u32()
		return DisconnectResponse{APIReturn: apiReturn}, err

	case OpBeginTransactionResult:
		apiReturn, err := r.u32()
		return BeginTransactionResponse{APIReturn: apiReturn}, err

	case OpEndTransactionResult:
		apiReturn, err := r.u32()
		return EndTransactionResponse{APIReturn: apiReturn}, err

	case OpTransmitResult:
		apiReturn, err := r.u32()
		if err != nil {
			return nil, err
		}
		recvBuf, err := r.bytes()
		if err != nil {
			return nil, err
		}
		present, err := r.nullablePresent()
		if err != nil {
			return nil, err
		}
		var recvPCI *PCI
		if present {
			proto, err := r.u32()
			if err != nil {
				return nil, err
			}
			length, err := r.u32()
			if err != nil {
				return nil, err
			}
			recvPCI = &PCI{Protocol: proto, Length: length}
		}
		recvLength, err := r.u32()
		return TransmitResponse{APIReturn: apiReturn, RecvBuffer: recvBuf, RecvPCI: recvPCI, RecvLength: recvLength}, err

	case OpGetAttribResult:
		apiReturn, err := r.u32()
		if err != nil {
			return nil, err
		}
		attrBuf, err := r.bytes()
		if err != nil {
			return nil, err
		}
		attrLength, err := r.u32()
		return GetAttribResponse{APIReturn: apiReturn, AttrBuffer: attrBuf, AttrLength: attrLength}, err

	default:
		return nil, fmt.Errorf("wire: unknown response opcode %s", op)
	}
}
