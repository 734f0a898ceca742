package accept

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pcscproxy/pcscproxy/internal/allowlist"
	"github.com/pcscproxy/pcscproxy/internal/logging"
	"github.com/pcscproxy/pcscproxy/pcsc"
	"github.com/pcscproxy/pcscproxy/wire"
)

func TestServeAcceptsAllowedPeer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	allow, err := allowlist.Parse([]string{"127.0.0.1/32"})
	require.NoError(t, err)

	backend := pcsc.NewFakeBackend()
	srv := New(ln, backend, allow, logging.DefaultLogger())
	go srv.Serve()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteFrame(conn, wire.EncodeRequest(1, wire.EstablishContextRequest{Scope: 2})))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	body, err := wire.ReadFrame(conn)
	require.NoError(t, err)

	_, op, payload, err := wire.DecodePacket(body)
	require.NoError(t, err)
	resp, err := wire.DecodeResponse(op, payload)
	require.NoError(t, err)
	ec := resp.(wire.EstablishContextResponse)
	require.Equal(t, uint32(pcsc.Success), ec.APIReturn)
}

func TestServeRejectsDisallowedPeer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	allow, err := allowlist.Parse([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	srv := New(ln, pcsc.NewFakeBackend(), allow, logging.DefaultLogger())
	go srv.Serve()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.Error(t, err, "disallowed peer's connection should be closed without a response")
}
