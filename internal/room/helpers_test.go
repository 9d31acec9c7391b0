package room

import (
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/codebreak/internal/auth"
	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// fakeNotifier collects every message a room sends, per player.
type fakeNotifier struct {
	mu       sync.Mutex
	msgs     map[string][]protocol.Message
	released []string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{msgs: make(map[string][]protocol.Message)}
}

func (f *fakeNotifier) Send(playerID string, msg protocol.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[playerID] = append(f.msgs[playerID], msg)
}

func (f *fakeNotifier) Release(playerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, playerID)
}

func (f *fakeNotifier) ofType(playerID, typ string) []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Message
	for _, m := range f.msgs[playerID] {
		if m.Type() == typ {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeNotifier) last(playerID, typ string) (protocol.Message, bool) {
	msgs := f.ofType(playerID, typ)
	if len(msgs) == 0 {
		return nil, false
	}
	return msgs[len(msgs)-1], true
}

func (f *fakeNotifier) count(playerID, typ string) int {
	return len(f.ofType(playerID, typ))
}

func (f *fakeNotifier) wasReleased(playerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.released {
		if id == playerID {
			return true
		}
	}
	return false
}

// fakeRecorder collects action records.
type fakeRecorder struct {
	mu   sync.Mutex
	recs []models.GameActionRecord
}

func (f *fakeRecorder) Record(rec models.GameActionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
}

func (f *fakeRecorder) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.recs))
	for i, r := range f.recs {
		out[i] = r.ActionType
	}
	return out
}

// fakeClock is a settable clock for idle and duration checks.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fixture struct {
	dir    *Directory
	notify *fakeNotifier
	rec    *fakeRecorder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	issuer, err := auth.NewIssuer(0)
	require.NoError(t, err)
	f := &fixture{notify: newFakeNotifier(), rec: &fakeRecorder{}}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	if opts.Recorder == nil {
		opts.Recorder = f.rec
	}
	f.dir = NewDirectory(f.notify, issuer, opts)
	t.Cleanup(f.dir.Close)
	return f
}

func (f *fixture) create(t *testing.T, name string) Membership {
	t.Helper()
	m, err := f.dir.CreateRoom(name, nil)
	require.NoError(t, err)
	return m
}

func (f *fixture) join(t *testing.T, code, name string) Membership {
	t.Helper()
	m, err := f.dir.JoinRoom(name, code, nil)
	require.NoError(t, err)
	return m
}

// lobby creates a room hosted by the first name and joined by the rest.
func (f *fixture) lobby(t *testing.T, names ...string) (*Room, []Membership) {
	t.Helper()
	host := f.create(t, names[0])
	ms := []Membership{host}
	for _, n := range names[1:] {
		ms = append(ms, f.join(t, host.Room.Code, n))
	}
	return host.Room, ms
}

func locked[T any](r *Room, fn func() T) T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn()
}

func secretOf(r *Room) []int {
	return locked(r, func() []int { return append([]int{}, r.Game.Secret...) })
}

func statusOf(r *Room) game.Status {
	return locked(r, func() game.Status {
		if r.Game == nil {
			return ""
		}
		return r.Game.Status
	})
}

func gameIDOf(r *Room) string {
	return locked(r, func() string {
		if r.Game == nil {
			return ""
		}
		return r.Game.ID
	})
}

func playerData(r *Room, playerID string) game.PlayerGameData {
	return locked(r, func() game.PlayerGameData { return *r.Game.Players[playerID] })
}

func hostFlags(r *Room) []string {
	return locked(r, func() []string {
		var hosts []string
		for _, p := range r.membersUnsafe() {
			if p.IsHost {
				hosts = append(hosts, p.ID)
			}
		}
		return hosts
	})
}

// wrongGuess returns a guess that differs from secret in every position.
func wrongGuess(secret []int) []int {
	g := make([]int, len(secret))
	for i, d := range secret {
		g[i] = (d + 1) % 10
	}
	return g
}
