package whois_test

import (
	"context"
	"io"
	"net"
	"strings"
	"time"

	"regcore/internal/platform/tcpserver"
	"regcore/internal/whois"
	regtest "regcore/pkg/testutil"
)

// Queries go through a real listener so the line reading and close
// semantics are exercised.
func (s *EngineSuite) serve(e *whois.Engine) string {
	ln := regtest.Listen(s.T())
	srv := tcpserver.New("whois", e, tcpserver.WithWorkers(4))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	s.T().Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func (s *EngineSuite) TestOverTCP() {
	addr := s.serve(s.engine(testConfig(), s.store))

	out := regtest.QueryLine(s.T(), addr, "sample.example")
	s.True(strings.HasPrefix(out, "Domain Name: SAMPLE.EXAMPLE\n"))

	s.Equal(whois.MsgNotFound, regtest.QueryLine(s.T(), addr, "missing.example"))
	s.Equal(whois.MsgInvalidTLD, regtest.QueryLine(s.T(), addr, "domain EXAMPLE.TEST"))
	s.Equal(int64(3), s.counter())
}

func (s *EngineSuite) TestQueryWithoutNewline() {
	addr := s.serve(s.engine(testConfig(), s.store))

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	s.Require().NoError(err)
	defer conn.Close()
	s.Require().NoError(conn.SetDeadline(time.Now().Add(5 * time.Second)))

	_, err = conn.Write([]byte("missing.example"))
	s.Require().NoError(err)
	s.Require().NoError(conn.(*net.TCPConn).CloseWrite())

	body, err := io.ReadAll(conn)
	s.Require().NoError(err)
	s.Equal(whois.MsgNotFound, string(body))
}
