package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the largest body a frame may declare. A length
// prefix above this is never a legitimate request; the reader treats
// it as a framing violation and closes the connection without
// reading the declared body.
const MaxFrameSize = 100 * 1024

// ErrFrameTooLarge is returned by ReadFrame when a length prefix
// exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// ReadFrame reads one length-prefixed body from r. Any error
// returned — including ErrFrameTooLarge, a short read, or the
// underlying io error — is fatal to the connection: the caller must
// not attempt to send a response and must close the connection.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("wire: read length prefix: %w", err)
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("wire: read body: %w", err)
	}
	return body, nil
}

// WriteFrame writes body length-prefixed to w in a single Write call
// so the length and body can never be interleaved with another
// frame's bytes on a shared connection.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	framed := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(framed, uint32(len(body)))
	copy(framed[4:], body)
	_, err := w.Write(framed)
	return err
}
