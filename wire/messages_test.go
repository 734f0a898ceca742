package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func groupsOf(s string) *string { return &s }

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"EstablishContext", EstablishContextRequest{Scope: 2}},
		{"ReleaseContext", ReleaseContextRequest{Context: 1}},
		{"ListReadersNoGroups", ListReadersRequest{Context: 1, ReadersLength: 1024}},
		{"ListReadersWithGroups", ListReadersRequest{Context: 1, Groups: groupsOf("SCard$AllReaders"), ReadersLength: 1024}},
		{"Connect", ConnectRequest{Context: 1, Reader: "Reader 0", ShareMode: 2, PreferredProtocols: 3}},
		{"Disconnect", DisconnectRequest{Card: 1, Disposition: 0}},
		{"BeginTransaction", BeginTransactionRequest{Card: 1}},
		{"EndTransaction", EndTransactionRequest{Card: 1, Disposition: 1}},
		{"TransmitNoPCI", TransmitRequest{Card: 1, SendPCI: 1, SendBuffer: []byte{0x00, 0xa4, 0x04, 0x00}, RecvLength: 258}},
		{"TransmitWithPCI", TransmitRequest{Card: 1, SendPCI: 1, SendBuffer: []byte{0x00}, RecvPCI: &PCI{Protocol: 1, Length: 8}, RecvLength: 258}},
		{"GetAttrib", GetAttribRequest{Card: 1, AttrID: 0x0007A004, AttrLength: 32}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded := EncodeRequest(42, tc.req)
			packetID, op, payload, err := DecodePacket(encoded)
			require.NoError(t, err)
			require.Equal(t, uint32(42), packetID)
			require.Equal(t, tc.req.Opcode(), op)

			decoded, err := DecodeRequest(op, payload)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.req, decoded); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp Response
	}{
		{"EstablishContext", EstablishContextResponse{APIReturn: 0, Context: 1}},
		{"ReleaseContext", ReleaseContextResponse{APIReturn: 0}},
		{"ListReaders", ListReadersResponse{APIReturn: 0, Readers: []byte("Reader 0\x00"), ReadersLength: 9}},
		{"Connect", ConnectResponse{APIReturn: 0, Card: 1, ActiveProtocol: 2}},
		{"Disconnect", DisconnectResponse{APIReturn: 0}},
		{"BeginTransaction", BeginTransactionResponse{APIReturn: 0}},
		{"EndTransaction", EndTransactionResponse{APIReturn: 0}},
		{"TransmitNoPCI", TransmitResponse{APIReturn: 0, RecvBuffer: []byte{0x90, 0x00}, RecvLength: 2}},
		{"TransmitWithPCI", TransmitResponse{APIReturn: 0, RecvBuffer: []byte{0x90, 0x00}, RecvPCI: &PCI{Protocol: 1, Length: 8}, RecvLength: 2}},
		{"GetAttrib", GetAttribResponse{APIReturn: 0, AttrBuffer: []byte{0x01, 0x02}, AttrLength: 2}},
		{"InvalidHandle", ConnectResponse{APIReturn: 0x80100003, Card: 0, ActiveProtocol: 0}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded := EncodeResponse(7, tc.resp)
			packetID, op, payload, err := DecodePacket(encoded)
			require.NoError(t, err)
			require.Equal(t, uint32(7), packetID)
			require.Equal(t, tc.resp.Opcode(), op)

			decoded, err := DecodeResponse(op, payload)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.resp, decoded); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeRequestUnknownOpcode(t *testing.T) {
	_, err := DecodeRequest(Opcode(9999), nil)
	require.Error(t, err)
}

func TestDecodeRequestShortBody(t *testing.T) {
	// A Connect request declares a reader string of length 8 but
	// supplies none of those bytes.
	w := &writer{}
	w.u64(1)
	w.u32(8)
	_, err := DecodeRequest(OpConnect, w.buf)
	require.ErrorIs(t, err, ErrShortBody)
}
