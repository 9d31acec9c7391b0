package dispatcher

import (
	"fmt"
	"testing"

	"github.com/jason-s-yu/codebreak/internal/auth"
	"github.com/jason-s-yu/codebreak/internal/protocol"
	"github.com/jason-s-yu/codebreak/internal/registry"
	"github.com/jason-s-yu/codebreak/internal/room"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

type DispatcherSuite struct {
	suite.Suite
	reg *registry.Registry
	dir *room.Directory
	d   *Dispatcher
}

func (s *DispatcherSuite) SetupTest() {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	issuer, err := auth.NewIssuer(0)
	s.Require().NoError(err)
	s.reg = registry.New(logger)
	s.dir = room.NewDirectory(s.reg, issuer, room.Options{Logger: logger})
	s.d = New(s.dir, s.reg, logger)
}

func (s *DispatcherSuite) TearDownTest() {
	s.dir.Close()
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) conn() *registry.Conn {
	return registry.NewConn("test", nil)
}

func (s *DispatcherSuite) send(c *registry.Conn, format string, args ...interface{}) {
	s.d.HandleRaw(c, []byte(fmt.Sprintf(format, args...)))
}

// drain returns every message queued on c so far.
func drain(c *registry.Conn) []protocol.Message {
	var out []protocol.Message
	for {
		select {
		case m := <-c.OutChan:
			out = append(out, m)
		default:
			return out
		}
	}
}

func find(msgs []protocol.Message, typ string) (protocol.Message, bool) {
	for _, m := range msgs {
		if m.Type() == typ {
			return m, true
		}
	}
	return nil, false
}

func types(msgs []protocol.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type()
	}
	return out
}

// host creates a room on a fresh connection and returns it with the welcome message.
func (s *DispatcherSuite) host(name string) (*registry.Conn, protocol.Message) {
	c := s.conn()
	s.send(c, `{"type":"create_room","playerName":%q}`, name)
	msg, ok := find(drain(c), protocol.TypeRoomCreated)
	s.Require().True(ok)
	return c, msg
}

func (s *DispatcherSuite) guest(code, name string) (*registry.Conn, protocol.Message) {
	c := s.conn()
	s.send(c, `{"type":"join_room","playerName":%q,"roomId":%q}`, name, code)
	msg, ok := find(drain(c), protocol.TypeRoomJoined)
	s.Require().True(ok, "join failed")
	return c, msg
}

func (s *DispatcherSuite) TestCreateAndJoin() {
	hc, created := s.host("Ann")
	code := created["roomId"].(string)
	s.NotEmpty(created["sessionToken"])
	s.Equal(true, created["isHost"])

	_, joined := s.guest(code, "Bob")
	s.Equal(code, joined["roomId"])
	s.Equal(false, joined["isHost"])

	upd, ok := find(drain(hc), protocol.TypePlayersUpdated)
	s.Require().True(ok)
	s.Len(upd["players"], 2)
	s.Equal(2, s.reg.Len())
}

func (s *DispatcherSuite) TestOneRoomPerConnection() {
	c, _ := s.host("Ann")
	s.send(c, `{"type":"create_room","playerName":"Again"}`)
	msgs := drain(c)
	s.Require().Len(msgs, 1)
	s.Equal("ALREADY_IN_ROOM", msgs[0]["code"])
	s.Equal(1, s.dir.Len())
}

func (s *DispatcherSuite) TestRoomScopedMessageOutsideRoom() {
	c := s.conn()
	s.send(c, `{"type":"toggle_ready"}`)
	msgs := drain(c)
	s.Require().Len(msgs, 1)
	s.Equal(protocol.TypeError, msgs[0].Type())
	s.Equal("NOT_IN_ROOM", msgs[0]["code"])
}

func (s *DispatcherSuite) TestMalformedFrames() {
	c := s.conn()
	cases := []struct{ frame, code string }{
		{`not json`, "INVALID_MESSAGE"},
		{`{"type":"dance"}`, "UNKNOWN_MESSAGE"},
		{`{"type":"rematch_vote"}`, "INVALID_MESSAGE"},
		{`{"type":"submit_guess","guess":7}`, "INVALID_MESSAGE"},
	}
	for _, tc := range cases {
		s.d.HandleRaw(c, []byte(tc.frame))
		msgs := drain(c)
		s.Require().Len(msgs, 1, tc.frame)
		s.Equal(tc.code, msgs[0]["code"], tc.frame)
	}
}

func (s *DispatcherSuite) TestErrorsGoOnlyToSender() {
	hc, created := s.host("Ann")
	gc, _ := s.guest(created["roomId"].(string), "Bob")
	drain(hc)

	s.send(gc, `{"type":"start_game","forceStart":true}`)
	msgs := drain(gc)
	s.Require().Len(msgs, 1)
	s.Equal("NOT_HOST", msgs[0]["code"])
	s.Empty(drain(hc))
}

func (s *DispatcherSuite) TestGameRoundTrip() {
	hc, created := s.host("Ann")
	code := created["roomId"].(string)
	gc, _ := s.guest(code, "Bob")

	s.send(hc, `{"type":"start_game","forceStart":true}`)
	started, ok := find(drain(gc), protocol.TypeGameStarted)
	s.Require().True(ok)
	secret := started["sharedSecret"].([]int)

	guess := ""
	for _, d := range secret {
		guess += fmt.Sprint(d)
	}
	s.send(gc, `{"type":"submit_guess","guess":%q}`, guess)
	res, ok := find(drain(gc), protocol.TypeGuessResult)
	s.Require().True(ok)
	s.Equal(true, res["won"])
	_, ok = find(drain(hc), protocol.TypePlayerAttempt)
	s.True(ok)
}

func (s *DispatcherSuite) TestDisconnectAndReconnect() {
	hc, created := s.host("Ann")
	gc, joined := s.guest(created["roomId"].(string), "Bob")
	drain(hc)

	s.d.Disconnect(gc)
	left, ok := find(drain(hc), protocol.TypePlayerDisconnected)
	s.Require().True(ok)
	s.Equal(joined["playerId"], left["playerId"])
	_, bound := s.reg.Lookup(joined["playerId"].(string))
	s.False(bound)

	nc := s.conn()
	s.send(nc, `{"type":"reconnect","sessionToken":%q,"roomCode":%q}`, joined["sessionToken"], created["roomId"])
	rejoined, ok := find(drain(nc), protocol.TypeRoomRejoined)
	s.Require().True(ok)
	s.Equal(joined["playerId"], rejoined["playerId"])
	_, ok = find(drain(hc), protocol.TypePlayerReconnected)
	s.True(ok)

	s.send(nc, `{"type":"toggle_ready"}`)
	_, ok = find(drain(hc), protocol.TypeReadyPlayersUpdated)
	s.True(ok, "the new connection speaks for the player")
}

func (s *DispatcherSuite) TestReconnectSupersedesLiveConnection() {
	hc, created := s.host("Ann")
	gc, joined := s.guest(created["roomId"].(string), "Bob")
	drain(hc)

	nc := s.conn()
	s.send(nc, `{"type":"reconnect","sessionToken":%q,"roomCode":%q}`, joined["sessionToken"], created["roomId"])
	select {
	case <-gc.Done():
	default:
		s.Fail("old connection still open")
	}

	// the superseded socket closing late must not mark the player away
	s.d.Disconnect(gc)
	s.NotContains(types(drain(hc)), protocol.TypePlayerDisconnected)
	got, ok := s.reg.Lookup(joined["playerId"].(string))
	s.Require().True(ok)
	s.Same(nc, got)
}

func (s *DispatcherSuite) TestReconnectWithBadToken() {
	c := s.conn()
	s.send(c, `{"type":"reconnect","sessionToken":"nope","roomCode":"ABCDEF"}`)
	msgs := drain(c)
	s.Require().Len(msgs, 1)
	s.Equal("INVALID_OR_EXPIRED_SESSION", msgs[0]["code"])
}

func (s *DispatcherSuite) TestReconnectCannotTakeOverSecondIdentity() {
	xc, mine := s.host("Ann")
	hc, other := s.host("Cat")
	gc, joined := s.guest(other["roomId"].(string), "Bob")
	s.d.Disconnect(gc)
	drain(hc)

	// the claimed playerId is ignored; only the token's identity counts
	s.send(xc, `{"type":"reconnect","sessionToken":%q,"roomCode":%q,"playerId":%q}`,
		joined["sessionToken"], other["roomId"], mine["playerId"])
	msgs := drain(xc)
	s.Require().Len(msgs, 1)
	s.Equal("ALREADY_IN_ROOM", msgs[0]["code"])
	s.NotContains(types(drain(hc)), protocol.TypePlayerReconnected)

	got, ok := s.reg.Lookup(mine["playerId"].(string))
	s.Require().True(ok)
	s.Same(xc, got)
	_, ok = s.reg.Lookup(joined["playerId"].(string))
	s.False(ok)

	s.d.Disconnect(xc)
	r, ok := s.dir.Get(mine["roomId"].(string))
	s.Require().True(ok)
	s.Equal(0, r.Summary().ConnectedCount, "the host is marked away")
}

func (s *DispatcherSuite) TestReconnectSameIdentityOnSameConnection() {
	hc, created := s.host("Ann")
	s.send(hc, `{"type":"reconnect","sessionToken":%q,"roomCode":%q}`, created["sessionToken"], created["roomId"])
	_, ok := find(drain(hc), protocol.TypeRoomRejoined)
	s.True(ok)
}

func (s *DispatcherSuite) TestLeaveFreesConnection() {
	hc, created := s.host("Ann")
	gc, _ := s.guest(created["roomId"].(string), "Bob")

	s.send(gc, `{"type":"leave_room"}`)
	_, ok := find(drain(hc), protocol.TypePlayersUpdated)
	s.True(ok)
	select {
	case <-gc.Done():
		s.Fail("leaving must not close the socket")
	default:
	}

	s.send(gc, `{"type":"create_room","playerName":"Bob"}`)
	_, ok = find(drain(gc), protocol.TypeRoomCreated)
	s.True(ok)
	s.Equal(2, s.dir.Len())
}

func (s *DispatcherSuite) TestKickedPlayerCanJoinElsewhere() {
	hc, created := s.host("Ann")
	gc, joined := s.guest(created["roomId"].(string), "Bob")
	s.send(hc, `{"type":"kick_player","targetPlayerId":%q}`, joined["playerId"])

	kicked, ok := find(drain(gc), protocol.TypeKickedFromRoom)
	s.Require().True(ok)
	s.Equal("kicked", kicked["reason"])

	_, other := s.host("Cat")
	s.send(gc, `{"type":"join_room","playerName":"Bob","roomId":%q}`, other["roomId"])
	_, ok = find(drain(gc), protocol.TypeRoomJoined)
	s.True(ok)
}
