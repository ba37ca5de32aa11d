package epp_test

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks Ledger,Authenticator,CommandHandler

import (
	"context"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"regcore/internal/epp"
	"regcore/internal/epp/mocks"
	"regcore/internal/ledger"
	ledgerstore "regcore/internal/ledger/store"
	"regcore/internal/platform/config"
	"regcore/internal/registrar"
	registrarstore "regcore/internal/registrar/store"
	"regcore/pkg/requestcontext"
)

const (
	svTRIDPattern      = `^REG-\d+-[0-9a-f]{10}$`
	placeholderPattern = `^client-not-provided-[0-9a-f]{16}$`
)

func testConfig() config.EPP {
	return config.EPP{
		ServerID:     "Test Registry EPP",
		Prefix:       "REG",
		MaxFrameSize: 4096,
		IdleTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// =============================================================================
// Engine Test Suite
// =============================================================================
// The engine runs against the real ledger over its in-memory store so that
// every assertion about responses can be paired with the recorded row.

type EngineSuite struct {
	suite.Suite
	store  *ledgerstore.InMemoryStore
	engine *epp.Engine
	ctx    context.Context
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.store = ledgerstore.NewInMemory()

	registrars := registrarstore.NewInMemory()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	s.Require().NoError(err)
	registrars.Put(registrar.Registrar{ID: 7, Name: "Example Registrar", CLID: "example", PasswordHash: string(hash)})

	s.engine = epp.New(testConfig(), ledger.New(s.store), registrar.New(registrars))
	s.ctx = requestcontext.WithSessionID(context.Background(), uuid.New())
}

func (s *EngineSuite) loggedIn() *epp.Session {
	return &epp.Session{ID: uuid.New(), RegistrarID: 7, CLID: "example"}
}

func (s *EngineSuite) TestHelloReturnsGreeting() {
	out, closing := s.engine.Handle(s.ctx, &epp.Session{}, []byte(`<epp xmlns="urn:ietf:params:xml:ns:epp-1.0"><hello/></epp>`))
	s.False(closing)
	s.Contains(string(out), "<greeting>")
	s.Empty(s.store.All(), "hello is not a transaction")
}

func (s *EngineSuite) TestCommandBeforeLogin() {
	out, closing := s.engine.Handle(s.ctx, &epp.Session{}, command(`<poll op="req"/><clTRID>ABC-1</clTRID>`))
	s.False(closing)

	r := decodeResult(s.T(), out)
	s.Equal(epp.CodeUseError, r.Response.Result.Code)
	s.Equal("You must login first", r.Response.Result.Msg)
	s.Equal("ABC-1", r.Response.TrID.ClTRID)
	s.Regexp(svTRIDPattern, r.Response.TrID.SvTRID)
	s.Empty(s.store.All(), "no registrar means no transaction row")
}

func (s *EngineSuite) TestLogin() {
	s.Run("valid credentials bind the registrar", func() {
		sess := &epp.Session{}
		out, _ := s.engine.Handle(s.ctx, sess, loginCommand("example", "s3cret-pass"))

		r := decodeResult(s.T(), out)
		s.Equal(epp.CodeSuccess, r.Response.Result.Code)
		s.True(sess.LoggedIn())
		s.Equal(int64(7), sess.RegistrarID)

		rows := s.store.All()
		s.Require().Len(rows, 1)
		s.Equal("login", rows[0].Command)
		s.Equal("LOGIN-1", rows[0].ClientTRID)
		s.Equal(r.Response.TrID.SvTRID, rows[0].ServerTRID)
	})

	s.Run("wrong password", func() {
		sess := &epp.Session{}
		out, closing := s.engine.Handle(s.ctx, sess, loginCommand("example", "wrong"))
		s.False(closing)

		r := decodeResult(s.T(), out)
		s.Equal(epp.CodeAuthentication, r.Response.Result.Code)
		s.False(sess.LoggedIn())

		rows := s.store.All()
		last := rows[len(rows)-1]
		s.Equal(int64(7), last.RegistrarID)
		s.Equal(epp.CodeAuthentication, last.Code)
		s.Empty(last.Command, "error rows carry no command")
	})

	s.Run("already logged in", func() {
		out, _ := s.engine.Handle(s.ctx, s.loggedIn(), loginCommand("example", "s3cret-pass"))
		s.Equal(epp.CodeUseError, decodeResult(s.T(), out).Response.Result.Code)
	})
}

func (s *EngineSuite) TestSyntaxErrorWithoutClientTRID() {
	out, closing := s.engine.Handle(s.ctx, s.loggedIn(), command(``))
	s.False(closing)

	r := decodeResult(s.T(), out)
	s.Equal(epp.CodeSyntaxError, r.Response.Result.Code)
	s.Equal("Command syntax error", r.Response.Result.Msg)
	s.Regexp(svTRIDPattern, r.Response.TrID.SvTRID)

	rows := s.store.All()
	s.Require().Len(rows, 1)
	s.Regexp(placeholderPattern, rows[0].ClientTRID)
	s.Equal(rows[0].ClientTRID, r.Response.TrID.ClTRID)
	s.Equal(r.Response.TrID.SvTRID, rows[0].ServerTRID)
	s.Equal(epp.CodeSyntaxError, rows[0].Code)
	s.Equal(out, rows[0].ServerFrame)
	s.True(rows[0].Completed())
}

func (s *EngineSuite) TestMalformedXML() {
	out, _ := s.engine.Handle(s.ctx, s.loggedIn(), []byte(`<epp><command><check>`))
	s.Equal(epp.CodeSyntaxError, decodeResult(s.T(), out).Response.Result.Code)
	s.Len(s.store.All(), 1)
}

func (s *EngineSuite) TestUnknownCommand() {
	out, _ := s.engine.Handle(s.ctx, s.loggedIn(), command(
		`<info><domain:info xmlns:domain="urn:ietf:params:xml:ns:domain-1.0"><domain:name>example.test</domain:name></domain:info></info>`+
			`<clTRID>ABC-2</clTRID>`))

	r := decodeResult(s.T(), out)
	s.Equal(epp.CodeUnimplementedCmd, r.Response.Result.Code)
	s.Equal("ABC-2", r.Response.TrID.ClTRID)
}

func (s *EngineSuite) TestRegisteredHandler() {
	s.engine.Register("domain:info", epp.HandlerFunc(func(_ context.Context, _ *epp.Session, req *epp.Request) (*epp.Response, error) {
		return &epp.Response{ObjectID: req.Body.Child("name").Text()}, nil
	}))

	out, closing := s.engine.Handle(s.ctx, s.loggedIn(), command(
		`<info><domain:info xmlns:domain="urn:ietf:params:xml:ns:domain-1.0"><domain:name>example.test</domain:name></domain:info></info>`+
			`<clTRID>ABC-3</clTRID>`))
	s.False(closing)
	s.Equal(epp.CodeSuccess, decodeResult(s.T(), out).Response.Result.Code)

	rows := s.store.All()
	s.Require().Len(rows, 1)
	s.Equal("info", rows[0].Command)
	s.Equal("domain", rows[0].ObjectType)
	s.Equal("example.test", rows[0].ObjectID)
	s.Equal(out, rows[0].ServerFrame)
}

func (s *EngineSuite) TestHandlerResultCode() {
	s.engine.Register("domain:info", epp.HandlerFunc(func(context.Context, *epp.Session, *epp.Request) (*epp.Response, error) {
		return nil, epp.NewError(epp.CodeValueSyntax, "Bad name")
	}))

	out, _ := s.engine.Handle(s.ctx, s.loggedIn(), command(
		`<info><domain:info xmlns:domain="urn:ietf:params:xml:ns:domain-1.0"/></info><clTRID>ABC-4</clTRID>`))

	r := decodeResult(s.T(), out)
	s.Equal(epp.CodeValueSyntax, r.Response.Result.Code)
	s.Equal("Bad name", r.Response.Result.Msg)
	s.Equal("Bad name", s.store.All()[0].Message)
}

func (s *EngineSuite) TestLogoutEndsSession() {
	out, closing := s.engine.Handle(s.ctx, s.loggedIn(), command(`<logout/><clTRID>BYE-1</clTRID>`))
	s.True(closing)
	s.Equal(epp.CodeSuccessEndSession, decodeResult(s.T(), out).Response.Result.Code)
	s.Equal("logout", s.store.All()[0].Command)
}

// =============================================================================
// Connection handling
// =============================================================================

type pipeClient struct {
	conn net.Conn
	done chan struct{}
}

func (s *EngineSuite) connect() *pipeClient {
	server, client := net.Pipe()
	c := &pipeClient{conn: client, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		defer server.Close()
		s.engine.ServeConn(s.ctx, server)
	}()
	s.T().Cleanup(func() { _ = client.Close() })
	_ = client.SetDeadline(time.Now().Add(5 * time.Second))
	return c
}

func (s *EngineSuite) send(c *pipeClient, payload []byte) {
	s.Require().NoError(epp.WriteFrame(c.conn, payload))
}

func (s *EngineSuite) recv(c *pipeClient) []byte {
	payload, err := epp.ReadFrame(c.conn, 0)
	s.Require().NoError(err)
	return payload
}

func (s *EngineSuite) TestGreetingOnConnect() {
	c := s.connect()
	raw := s.recv(c)

	var g struct {
		Greeting struct {
			SvID    string `xml:"svID"`
			SvDate  string `xml:"svDate"`
			SvcMenu struct {
				Version string   `xml:"version"`
				Lang    string   `xml:"lang"`
				ObjURIs []string `xml:"objURI"`
				ExtURIs []string `xml:"svcExtension>extURI"`
			} `xml:"svcMenu"`
		} `xml:"greeting"`
	}
	s.Require().NoError(xml.Unmarshal(raw, &g))
	s.Equal("Test Registry EPP", g.Greeting.SvID)
	s.Regexp(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, g.Greeting.SvDate)
	s.Equal("1.0", g.Greeting.SvcMenu.Version)
	s.Equal("en", g.Greeting.SvcMenu.Lang)
	s.Equal(epp.ObjectURIs, g.Greeting.SvcMenu.ObjURIs)
	s.Equal(epp.ExtensionURIs, g.Greeting.SvcMenu.ExtURIs)
	s.Contains(string(raw), "<dcp><access><all></all></access>")
}

func (s *EngineSuite) TestSessionOverConnection() {
	c := s.connect()
	s.recv(c)

	s.send(c, loginCommand("example", "s3cret-pass"))
	s.Equal(epp.CodeSuccess, decodeResult(s.T(), s.recv(c)).Response.Result.Code)

	s.send(c, []byte(`<epp xmlns="urn:ietf:params:xml:ns:epp-1.0"><hello/></epp>`))
	s.Contains(string(s.recv(c)), "<greeting>")

	s.send(c, command(`<logout/><clTRID>BYE-1</clTRID>`))
	s.Equal(epp.CodeSuccessEndSession, decodeResult(s.T(), s.recv(c)).Response.Result.Code)

	_, err := epp.ReadFrame(c.conn, 0)
	s.ErrorIs(err, io.EOF)
	<-c.done
}

func (s *EngineSuite) TestOversizedFrameClosesSession() {
	c := s.connect()
	s.recv(c)

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 1<<20)
	_, err := c.conn.Write(header)
	s.Require().NoError(err)

	r := decodeResult(s.T(), s.recv(c))
	s.Equal(epp.CodeSyntaxError, r.Response.Result.Code)
	s.Regexp(placeholderPattern, r.Response.TrID.ClTRID)

	_, err = epp.ReadFrame(c.conn, 0)
	s.ErrorIs(err, io.EOF)
	<-c.done
}

// =============================================================================
// Ledger failures
// =============================================================================
// Justification for unit tests: a ledger outage cannot be produced on demand
// against a real store, and the retry contract is only visible through the
// exact sequence of Complete calls.

type LedgerFailureSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	ledger *mocks.MockLedger
	auth   *mocks.MockAuthenticator
	engine *epp.Engine
	sess   *epp.Session
	ctx    context.Context
}

func TestLedgerFailureSuite(t *testing.T) {
	suite.Run(t, new(LedgerFailureSuite))
}

func (s *LedgerFailureSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ledger = mocks.NewMockLedger(s.ctrl)
	s.auth = mocks.NewMockAuthenticator(s.ctrl)

	cfg := testConfig()
	cfg.LedgerRetryDelay = 0
	s.engine = epp.New(cfg, s.ledger, s.auth)
	s.engine.Register("domain:info", epp.HandlerFunc(func(context.Context, *epp.Session, *epp.Request) (*epp.Response, error) {
		return &epp.Response{ObjectID: "example.test"}, nil
	}))
	s.sess = &epp.Session{ID: uuid.New(), RegistrarID: 7, CLID: "example"}
	s.ctx = context.Background()
}

func (s *LedgerFailureSuite) TearDownTest() {
	s.ctrl.Finish()
}

var errLedgerDown = errors.New("ledger unavailable")

func (s *LedgerFailureSuite) begins(id int64) {
	s.ledger.EXPECT().
		Begin(gomock.Any(), int64(7), "ABC-9", gomock.Any()).
		Return(&ledger.Transaction{ID: id, RegistrarID: 7, ClientTRID: "ABC-9"}, nil)
}

func unknownCommand() []byte {
	return command(`<poll op="req"/><clTRID>ABC-9</clTRID>`)
}

func infoCommand() []byte {
	return command(`<info><domain:info xmlns:domain="urn:ietf:params:xml:ns:domain-1.0">` +
		`<domain:name>example.test</domain:name></domain:info></info><clTRID>ABC-9</clTRID>`)
}

func (s *LedgerFailureSuite) TestErrorRecordRetriedOnce() {
	s.begins(41)
	gomock.InOrder(
		s.ledger.EXPECT().Complete(gomock.Any(), int64(41), gomock.Any()).Return(nil, errLedgerDown),
		s.ledger.EXPECT().Complete(gomock.Any(), int64(41), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ int64, o ledger.Outcome) (*ledger.Transaction, error) {
				s.Equal(epp.CodeUnimplementedCmd, o.Code)
				return &ledger.Transaction{ID: 41}, nil
			}),
	)

	out, _ := s.engine.Handle(s.ctx, s.sess, unknownCommand())
	s.Equal(epp.CodeUnimplementedCmd, decodeResult(s.T(), out).Response.Result.Code)
}

func (s *LedgerFailureSuite) TestErrorResponseSentWhenRetryFails() {
	s.begins(42)
	s.ledger.EXPECT().Complete(gomock.Any(), int64(42), gomock.Any()).Return(nil, errLedgerDown).Times(2)

	out, closing := s.engine.Handle(s.ctx, s.sess, unknownCommand())
	s.False(closing)

	r := decodeResult(s.T(), out)
	s.Equal(epp.CodeUnimplementedCmd, r.Response.Result.Code)
	s.Equal("ABC-9", r.Response.TrID.ClTRID)
	s.Regexp(svTRIDPattern, r.Response.TrID.SvTRID)
}

func (s *LedgerFailureSuite) TestBeginFailure() {
	s.ledger.EXPECT().Begin(gomock.Any(), int64(7), "ABC-9", gomock.Any()).Return(nil, errLedgerDown)
	s.ledger.EXPECT().Complete(gomock.Any(), int64(0), gomock.Any()).Return(nil, ledger.ErrNoTransaction)

	out, _ := s.engine.Handle(s.ctx, s.sess, infoCommand())
	r := decodeResult(s.T(), out)
	s.Equal(epp.CodeCommandFailed, r.Response.Result.Code)
	s.Equal("ABC-9", r.Response.TrID.ClTRID)
}

func (s *LedgerFailureSuite) TestCompletionFailureBecomesCommandFailed() {
	s.begins(43)
	gomock.InOrder(
		s.ledger.EXPECT().Complete(gomock.Any(), int64(43), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ int64, o ledger.Outcome) (*ledger.Transaction, error) {
				s.Equal(epp.CodeSuccess, o.Code)
				s.Equal("example.test", o.ObjectID)
				return nil, errLedgerDown
			}),
		s.ledger.EXPECT().Complete(gomock.Any(), int64(43), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ int64, o ledger.Outcome) (*ledger.Transaction, error) {
				s.Equal(epp.CodeCommandFailed, o.Code)
				s.Empty(o.Command)
				return &ledger.Transaction{ID: 43}, nil
			}),
	)

	out, _ := s.engine.Handle(s.ctx, s.sess, infoCommand())
	s.Equal(epp.CodeCommandFailed, decodeResult(s.T(), out).Response.Result.Code)
}

func (s *LedgerFailureSuite) TestLoginResolvesRegistrarBeforeBegin() {
	s.auth.EXPECT().IDByCLID(gomock.Any(), "example").Return(int64(7), nil)
	s.auth.EXPECT().Authenticate(gomock.Any(), "example", "s3cret-pass").Return(int64(7), nil)
	s.ledger.EXPECT().Begin(gomock.Any(), int64(7), "LOGIN-1", gomock.Any()).
		Return(&ledger.Transaction{ID: 44, RegistrarID: 7, ClientTRID: "LOGIN-1"}, nil)
	s.ledger.EXPECT().Complete(gomock.Any(), int64(44), gomock.Any()).Return(&ledger.Transaction{ID: 44}, nil)

	sess := &epp.Session{ID: uuid.New()}
	out, _ := s.engine.Handle(s.ctx, sess, loginCommand("example", "s3cret-pass"))
	s.Equal(epp.CodeSuccess, decodeResult(s.T(), out).Response.Result.Code)
	s.Equal("example", sess.CLID)
}
