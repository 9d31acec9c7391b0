// internal/room/room.go
package room

import (
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/codebreak/internal/game"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/protocol"
	"github.com/sirupsen/logrus"
)

// MaxPlayers caps a room's membership, connected or not.
const MaxPlayers = 10

// Action types published to the game history.
const (
	ActionRoomCreated    = "room_created"
	ActionGameStarted    = "game_started"
	ActionGuess          = "guess"
	ActionPlayerFinished = "player_finished"
	ActionGameFinished   = "game_finished"
	ActionRematchStarted = "rematch_started"
	ActionPlayerKicked   = "player_kicked"
)

// Notifier delivers messages to players that are currently reachable.
type Notifier interface {
	// Send delivers msg to playerID if it has a live connection. It must not block.
	Send(playerID string, msg protocol.Message)
	// Release forgets the connection of a player that left the room for good.
	Release(playerID string)
}

// ActionRecorder receives the room's action history. Record must not block.
type ActionRecorder interface {
	Record(rec models.GameActionRecord)
}

// Options tunes a room. The zero value gives production defaults.
type Options struct {
	Random           game.Random
	Now              func() time.Time
	RematchCountdown int           // seconds a rematch vote stays open
	RematchTick      time.Duration // length of one countdown step
	RoundUnit        time.Duration // unit of CardSettings.RoundDuration
	Recorder         ActionRecorder
	Logger           *logrus.Logger
}

func (o Options) withDefaults() Options {
	if o.Random == nil {
		o.Random = game.CryptoRandom{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.RematchCountdown <= 0 {
		o.RematchCountdown = 10
	}
	if o.RematchTick <= 0 {
		o.RematchTick = time.Second
	}
	if o.RoundUnit <= 0 {
		o.RoundUnit = time.Minute
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// DisconnectedPlayer is a member whose connection dropped. The membership is kept
// until the player leaves or the room is deleted.
type DisconnectedPlayer struct {
	Player         *models.Player
	DisconnectTime time.Time
}

// hooks let the directory keep its indexes in step with the room. They run with
// the room lock held and may take the directory lock.
type hooks struct {
	added   func(playerID string)
	removed func(playerID string)
	empty   func(code string)
}

// Room is one joinable lobby and its optional game session.
//
// Every exported method takes mu for its whole duration, so inbound messages and
// timer callbacks touching the same room never interleave. Methods with the
// Unsafe suffix assume mu is already held.
type Room struct {
	Code         string
	HostID       string
	Players      []*models.Player // connected members in join order
	Disconnected map[string]*DisconnectedPlayer
	Settings     game.RoomSettings
	Game         *game.Session
	CreatedAt    time.Time

	mu           sync.Mutex
	closed       bool
	idleSince    time.Time
	roundTimer   *time.Timer
	rematchTimer *time.Timer
	joinSeq      uint64
	actionIndex  int

	notify Notifier
	opts   Options
	hooks  hooks
	log    *logrus.Entry
}

func newRoom(code string, notify Notifier, opts Options, h hooks) *Room {
	opts = opts.withDefaults()
	now := opts.Now()
	return &Room{
		Code:         code,
		Disconnected: make(map[string]*DisconnectedPlayer),
		Settings:     game.DefaultSettings(),
		CreatedAt:    now,
		idleSince:    now,
		notify:       notify,
		opts:         opts,
		hooks:        h,
		log:          opts.Logger.WithField("room", code),
	}
}

func (r *Room) now() time.Time { return r.opts.Now() }

// findActiveUnsafe returns the index of playerID among connected members, or -1.
// A closed room has no members.
func (r *Room) findActiveUnsafe(playerID string) int {
	if r.closed {
		return -1
	}
	for i, p := range r.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// memberUnsafe returns playerID's record whether connected or not.
func (r *Room) memberUnsafe(playerID string) (*models.Player, bool) {
	if i := r.findActiveUnsafe(playerID); i >= 0 {
		return r.Players[i], true
	}
	if dp, ok := r.Disconnected[playerID]; ok && !r.closed {
		return dp.Player, true
	}
	return nil, false
}

func (r *Room) memberCountUnsafe() int {
	return len(r.Players) + len(r.Disconnected)
}

// membersUnsafe returns every member, connected or not, in join order.
func (r *Room) membersUnsafe() []*models.Player {
	all := make([]*models.Player, 0, r.memberCountUnsafe())
	all = append(all, r.Players...)
	for _, dp := range r.Disconnected {
		all = append(all, dp.Player)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].JoinSeq < all[j].JoinSeq })
	return all
}

func (r *Room) activeIDsUnsafe() []string {
	ids := make([]string, len(r.Players))
	for i, p := range r.Players {
		ids[i] = p.ID
	}
	return ids
}

// insertActiveUnsafe puts p back among connected members at its join position.
func (r *Room) insertActiveUnsafe(p *models.Player) {
	i := sort.Search(len(r.Players), func(i int) bool { return r.Players[i].JoinSeq > p.JoinSeq })
	r.Players = append(r.Players, nil)
	copy(r.Players[i+1:], r.Players[i:])
	r.Players[i] = p
}

func (r *Room) rosterUnsafe() []models.PlayerView {
	members := r.membersUnsafe()
	views := make([]models.PlayerView, len(members))
	for i, p := range members {
		views[i] = p.View()
	}
	return views
}

func (r *Room) readyIDsUnsafe() []string {
	ids := []string{}
	for _, p := range r.Players {
		if p.IsReady {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (r *Room) namesUnsafe() (order []string, names map[string]string) {
	members := r.membersUnsafe()
	order = make([]string, len(members))
	names = make(map[string]string, len(members))
	for i, p := range members {
		order[i] = p.ID
		names[p.ID] = p.Name
	}
	return order, names
}

func (r *Room) sendUnsafe(playerID string, msg protocol.Message) {
	r.notify.Send(playerID, msg)
}

// broadcastUnsafe sends msg to every connected member.
func (r *Room) broadcastUnsafe(msg protocol.Message) {
	for _, p := range r.Players {
		r.notify.Send(p.ID, msg)
	}
}

func (r *Room) broadcastExceptUnsafe(except string, msg protocol.Message) {
	for _, p := range r.Players {
		if p.ID != except {
			r.notify.Send(p.ID, msg)
		}
	}
}

func (r *Room) playersUpdatedUnsafe() {
	r.broadcastUnsafe(protocol.New(protocol.TypePlayersUpdated, protocol.Message{
		"players": r.rosterUnsafe(),
		"hostId":  r.HostID,
	}))
}

func (r *Room) readyUpdatedUnsafe() {
	r.broadcastUnsafe(protocol.New(protocol.TypeReadyPlayersUpdated, protocol.Message{
		"readyPlayers": r.readyIDsUnsafe(),
		"players":      r.rosterUnsafe(),
	}))
}

// recordUnsafe appends an entry to the room's action history.
func (r *Room) recordUnsafe(actor, actionType string, payload map[string]interface{}) {
	if r.opts.Recorder == nil {
		return
	}
	rec := models.GameActionRecord{
		RoomCode:      r.Code,
		ActionIndex:   r.actionIndex,
		ActorPlayerID: actor,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     r.now().UnixMilli(),
	}
	if r.Game != nil {
		rec.GameID = r.Game.ID
	}
	r.actionIndex++
	r.opts.Recorder.Record(rec)
}

func (r *Room) stopRoundTimerUnsafe() {
	if r.roundTimer != nil {
		r.roundTimer.Stop()
		r.roundTimer = nil
	}
}

func (r *Room) stopRematchTimerUnsafe() {
	if r.rematchTimer != nil {
		r.rematchTimer.Stop()
		r.rematchTimer = nil
	}
}

// closeUnsafe stops every timer and detaches the room from the directory.
func (r *Room) closeUnsafe(reason string) {
	if r.closed {
		return
	}
	r.closed = true
	r.stopRoundTimerUnsafe()
	r.stopRematchTimerUnsafe()
	r.log.WithField("reason", reason).Info("room closed")
	if r.hooks.empty != nil {
		r.hooks.empty(r.Code)
	}
}

// Close deletes the room, releasing every member and cancelling all timers.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	for _, p := range r.membersUnsafe() {
		r.notify.Release(p.ID)
		if r.hooks.removed != nil {
			r.hooks.removed(p.ID)
		}
	}
	r.closeUnsafe("shutdown")
}

// CloseIfIdle deletes the room when no member has been connected for at least ttl.
// It reports whether the room was closed.
func (r *Room) CloseIfIdle(ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.Players) > 0 || r.now().Sub(r.idleSince) < ttl {
		return false
	}
	for id := range r.Disconnected {
		r.notify.Release(id)
		if r.hooks.removed != nil {
			r.hooks.removed(id)
		}
	}
	r.closeUnsafe("idle")
	return true
}

// Summary is the public view of a room served over HTTP. It carries no tokens
// and never the secret.
type Summary struct {
	Code           string            `json:"code"`
	HostID         string            `json:"hostId"`
	PlayerCount    int               `json:"playerCount"`
	ConnectedCount int               `json:"connectedCount"`
	MaxPlayers     int               `json:"maxPlayers"`
	Status         string            `json:"status"`
	Settings       game.RoomSettings `json:"settings"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Summary returns the room's public summary.
func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := "lobby"
	if r.Game != nil {
		status = string(r.Game.Status)
	}
	return Summary{
		Code:           r.Code,
		HostID:         r.HostID,
		PlayerCount:    r.memberCountUnsafe(),
		ConnectedCount: len(r.Players),
		MaxPlayers:     MaxPlayers,
		Status:         status,
		Settings:       r.Settings,
		CreatedAt:      r.CreatedAt,
	}
}

// Closed reports whether the room has been deleted.
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
