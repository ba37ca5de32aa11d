// Package testutil provides common helpers for listener and integration tests.
package testutil

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Listen opens a loopback TCP listener closed at test cleanup.
func Listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to open loopback listener")
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

// QueryLine sends one CRLF-terminated line and reads until the server closes
// the connection, the way a port 43 client does.
func QueryLine(t *testing.T, addr, line string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err, "failed to dial %s", addr)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Write([]byte(line + "\r\n"))
	require.NoError(t, err, "failed to write query")

	body, err := io.ReadAll(conn)
	require.NoError(t, err, "failed to read response")
	return string(body)
}
