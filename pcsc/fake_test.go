package pcsc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeBackendEstablishReleaseContext(t *testing.T) {
	b := NewFakeBackend()

	ctx, status := b.EstablishContext(2)
	require.Equal(t, Success, status)
	require.NotZero(t, ctx)

	assert.Equal(t, Success, b.ReleaseContext(ctx))
	assert.Equal(t, ErrInvalidHandle, b.ReleaseContext(ctx), "releasing twice must fail")
}

func TestFakeBackendConnectUnknownContext(t *testing.T) {
	b := NewFakeBackend(&FakeReader{Name: "Reader 0"})

	_, _, status := b.Connect(999, "Reader 0", 2, ProtocolT1)
	assert.Equal(t, ErrInvalidHandle, status)
}

func TestFakeBackendConnectTransmitDisconnect(t *testing.T) {
	reader := &FakeReader{
		Name:           "Reader 0",
		ActiveProtocol: ProtocolT1,
		Transmit: func(_ PCIKind, req []byte) ([]byte, Status) {
			return append([]byte{0x90, 0x00}, req...), Success
		},
	}
	b := NewFakeBackend(reader)

	ctx, status := b.EstablishContext(2)
	require.Equal(t, Success, status)

	card, active, status := b.Connect(ctx, "Reader 0", 2, ProtocolT1|ProtocolT0)
	require.Equal(t, Success, status)
	require.Equal(t, ProtocolT1, active)

	recv := make([]byte, 258)
	n, status := b.Transmit(card, PCIT1, []byte{0x00, 0xa4}, nil, recv)
	require.Equal(t, Success, status)
	assert.Equal(t, []byte{0x90, 0x00, 0x00, 0xa4}, recv[:n])

	assert.Equal(t, Success, b.Disconnect(card, LeaveCard))
	assert.Equal(t, 1, reader.DisconnectCalls)

	_, status = b.Transmit(card, PCIT1, []byte{0x00}, nil, recv)
	assert.Equal(t, ErrInvalidHandle, status, "transmit on a disconnected handle must fail")
}

func TestFakeBackendListReadersSizeProbe(t *testing.T) {
	b := NewFakeBackend(&FakeReader{Name: "Reader 0"}, &FakeReader{Name: "Reader 1"})
	ctx, _ := b.EstablishContext(2)

	n, status := b.ListReaders(ctx, nil, false, nil)
	require.Equal(t, Success, status)
	require.Positive(t, n)

	buf := make([]byte, n)
	n2, status := b.ListReaders(ctx, nil, false, buf)
	require.Equal(t, Success, status)
	assert.Equal(t, n, n2)
}
