package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := EncodeRequest(1, EstablishContextRequest{Scope: 2})

	require.NoError(t, WriteFrame(&buf, body))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], MaxFrameSize+1)
	r := bytes.NewReader(lenBuf[:])

	_, err := ReadFrame(r)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameRejectsShortBody(t *testing.T) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 10)
	buf := append(lenBuf[:], []byte{1, 2, 3}...)

	_, err := ReadFrame(bytes.NewReader(buf))
	require.Error(t, err)
}

func TestWriteFrameRejectsOversizeBody(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, buf.Len())
}
