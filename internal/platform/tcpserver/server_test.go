package tcpserver_test

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"regcore/internal/platform/metrics"
	"regcore/internal/platform/tcpserver"
	"regcore/internal/ratelimit"
	"regcore/internal/ratelimit/store"
	"regcore/pkg/requestcontext"
	regtest "regcore/pkg/testutil"
)

type ServerSuite struct {
	suite.Suite
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

// echo replies with the session id and client ip of the connection.
var echo = tcpserver.HandlerFunc(func(ctx context.Context, conn net.Conn) {
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}
	_, _ = conn.Write([]byte(requestcontext.ClientIP(ctx) + " " + requestcontext.SessionID(ctx).String() + " " + line))
})

func (s *ServerSuite) start(handler tcpserver.Handler, opts ...tcpserver.Option) (string, context.CancelFunc, <-chan error) {
	ln := regtest.Listen(s.T())
	srv := tcpserver.New("test", handler, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	return ln.Addr().String(), cancel, done
}

// drain connects without sending and reads until the server hangs up.
func (s *ServerSuite) drain(addr string) string {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	s.Require().NoError(err)
	defer conn.Close()
	s.Require().NoError(conn.SetDeadline(time.Now().Add(5 * time.Second)))
	body, _ := io.ReadAll(conn)
	return string(body)
}

func (s *ServerSuite) TestServesConnections() {
	addr, cancel, done := s.start(echo, tcpserver.WithWorkers(2))
	defer cancel()

	seen := make(map[string]bool)
	for range 3 {
		out := regtest.QueryLine(s.T(), addr, "ping")
		var ip, session, word string
		_, err := fmt.Sscan(out, &ip, &session, &word)
		s.Require().NoError(err)
		s.Equal("127.0.0.1", ip)
		s.Equal("ping", word)
		_, err = uuid.Parse(session)
		s.Require().NoError(err)
		s.False(seen[session], "session ids must differ per connection")
		seen[session] = true
	}

	cancel()
	s.NoError(<-done)
}

func (s *ServerSuite) TestRejectsUnpermittedAddress() {
	m := metrics.New(prometheus.NewRegistry())
	var handled atomic.Int64
	handler := tcpserver.HandlerFunc(func(context.Context, net.Conn) { handled.Add(1) })
	addr, cancel, _ := s.start(handler,
		tcpserver.WithWorkers(1),
		tcpserver.WithMetrics(m),
		tcpserver.WithAdmit(func(ip string) bool { return ip == "192.0.2.1" }),
	)
	defer cancel()

	s.Empty(s.drain(addr))
	s.Zero(handled.Load())
	s.Equal(1.0, testutil.ToFloat64(m.ConnectionsRejected.WithLabelValues("test", "not_permitted")))
}

func (s *ServerSuite) TestRateLimitedAddress() {
	m := metrics.New(prometheus.NewRegistry())
	limiter := ratelimit.New(store.NewInMemory(), "test", 2, time.Minute)
	addr, cancel, _ := s.start(echo,
		tcpserver.WithWorkers(1),
		tcpserver.WithMetrics(m),
		tcpserver.WithRateLimit(limiter),
	)
	defer cancel()

	s.Contains(regtest.QueryLine(s.T(), addr, "one"), "one")
	s.Contains(regtest.QueryLine(s.T(), addr, "two"), "two")
	s.Empty(s.drain(addr))
	s.Equal(1.0, testutil.ToFloat64(m.ConnectionsRejected.WithLabelValues("test", "rate_limited")))
}

func (s *ServerSuite) TestWorkersRecycle() {
	addr, cancel, done := s.start(echo, tcpserver.WithWorkers(1), tcpserver.WithMaxRequests(2))

	for range 5 {
		out := regtest.QueryLine(s.T(), addr, "again")
		s.Contains(out, "again")
	}

	cancel()
	s.NoError(<-done)
}

func (s *ServerSuite) TestPanicDoesNotStopWorker() {
	var calls atomic.Int64
	handler := tcpserver.HandlerFunc(func(ctx context.Context, conn net.Conn) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		echo(ctx, conn)
	})
	addr, cancel, _ := s.start(handler, tcpserver.WithWorkers(1))
	defer cancel()

	s.drain(addr)
	s.Contains(regtest.QueryLine(s.T(), addr, "second"), "second")
}

func (s *ServerSuite) TestShutdownClosesOpenConnections() {
	var wg sync.WaitGroup
	wg.Add(1)
	handler := tcpserver.HandlerFunc(func(ctx context.Context, conn net.Conn) {
		wg.Done()
		buf := make([]byte, 1)
		_, _ = conn.Read(buf)
	})
	addr, cancel, done := s.start(handler, tcpserver.WithWorkers(1))

	conn, err := net.Dial("tcp", addr)
	s.Require().NoError(err)
	defer conn.Close()
	wg.Wait()

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("server did not stop")
	}
}
