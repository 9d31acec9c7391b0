// internal/room/directory.go
package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codebreak/internal/auth"
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/sirupsen/logrus"
)

// maxCodeAttempts bounds collision retries when allocating a room code.
const maxCodeAttempts = 64

// TokenIssuer issues and verifies session tokens.
type TokenIssuer interface {
	Issue(roomCode, playerID string) (string, error)
	Verify(token string) (*auth.SessionClaims, error)
}

// Membership is the outcome of creating, joining or rejoining a room.
type Membership struct {
	Room         *Room
	PlayerID     string
	SessionToken string
}

// Directory owns every room of the process and indexes players by room.
//
// Lock order is room before directory: room hooks take the directory lock while
// holding their room lock, so the directory never locks a room while holding mu.
type Directory struct {
	mu         sync.Mutex
	rooms      map[string]*Room
	playerRoom map[string]*Room

	notify Notifier
	issuer TokenIssuer
	opts   Options
	log    *logrus.Entry
}

// NewDirectory creates an empty directory. Rooms it creates inherit opts.
func NewDirectory(notify Notifier, issuer TokenIssuer, opts Options) *Directory {
	opts = opts.withDefaults()
	return &Directory{
		rooms:      make(map[string]*Room),
		playerRoom: make(map[string]*Room),
		notify:     notify,
		issuer:     issuer,
		opts:       opts,
		log:        opts.Logger.WithField("component", "directory"),
	}
}

func (d *Directory) hooksFor(r *Room) hooks {
	return hooks{
		added: func(playerID string) {
			d.mu.Lock()
			d.playerRoom[playerID] = r
			d.mu.Unlock()
		},
		removed: func(playerID string) {
			d.mu.Lock()
			if d.playerRoom[playerID] == r {
				delete(d.playerRoom, playerID)
			}
			d.mu.Unlock()
		},
		empty: func(code string) {
			d.mu.Lock()
			if d.rooms[code] == r {
				delete(d.rooms, code)
			}
			d.mu.Unlock()
		},
	}
}

func (d *Directory) allocateCodeLocked() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := GenerateCode(d.opts.Random)
		if _, taken := d.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", models.ErrNoRoomCode
}

// CreateRoom opens a new room with playerName as host. attach runs with the new
// player id before the room_created message is sent.
func (d *Directory) CreateRoom(playerName string, attach func(playerID string)) (Membership, error) {
	name, err := ValidateName(playerName)
	if err != nil {
		return Membership{}, err
	}
	playerID := uuid.NewString()

	d.mu.Lock()
	code, err := d.allocateCodeLocked()
	if err != nil {
		d.mu.Unlock()
		return Membership{}, err
	}
	r := newRoom(code, d.notify, d.opts, hooks{})
	r.hooks = d.hooksFor(r)
	// nobody else can reach r yet, so taking its lock here cannot deadlock
	r.mu.Lock()
	d.rooms[code] = r
	d.mu.Unlock()
	defer r.mu.Unlock()

	token, err := d.issuer.Issue(code, playerID)
	if err != nil {
		r.closeUnsafe("token error")
		return Membership{}, fmt.Errorf("create room: %w", err)
	}
	r.openUnsafe(member{ID: playerID, Name: name, Token: token}, attach)
	return Membership{Room: r, PlayerID: playerID, SessionToken: token}, nil
}

// JoinRoom adds playerName to the room with the given code.
func (d *Directory) JoinRoom(playerName, code string, attach func(playerID string)) (Membership, error) {
	name, err := ValidateName(playerName)
	if err != nil {
		return Membership{}, err
	}
	r, ok := d.Get(code)
	if !ok {
		return Membership{}, models.ErrRoomNotFound
	}

	playerID := uuid.NewString()
	token, err := d.issuer.Issue(r.Code, playerID)
	if err != nil {
		return Membership{}, fmt.Errorf("join room: %w", err)
	}
	if err := r.Join(member{ID: playerID, Name: name, Token: token}, attach); err != nil {
		return Membership{}, err
	}
	return Membership{Room: r, PlayerID: playerID, SessionToken: token}, nil
}

// Session verifies token and returns the identity it was issued for.
func (d *Directory) Session(token string) (*auth.SessionClaims, error) {
	claims, err := d.issuer.Verify(token)
	if err != nil {
		d.log.WithError(err).Debug("unverifiable session token")
		return nil, models.ErrInvalidSession
	}
	return claims, nil
}

// Reconnect resumes the membership a session token was issued for. Every
// failure, including an unknown room, is reported as an invalid session.
func (d *Directory) Reconnect(token, code string, attach func(playerID string)) (Membership, error) {
	claims, err := d.Session(token)
	if err != nil {
		return Membership{}, err
	}
	if code != "" && NormalizeCode(code) != claims.RoomCode {
		return Membership{}, models.ErrInvalidSession
	}
	r, ok := d.Get(claims.RoomCode)
	if !ok {
		return Membership{}, models.ErrInvalidSession
	}
	err = r.Reconnect(claims.PlayerID, token, func() {
		if attach != nil {
			attach(claims.PlayerID)
		}
	})
	if err != nil {
		return Membership{}, err
	}
	return Membership{Room: r, PlayerID: claims.PlayerID, SessionToken: token}, nil
}

// Get returns the room with the given code.
func (d *Directory) Get(code string) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[NormalizeCode(code)]
	return r, ok
}

// RoomOf returns the room playerID belongs to.
func (d *Directory) RoomOf(playerID string) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.playerRoom[playerID]
	return r, ok
}

// Len returns the number of open rooms.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

func (d *Directory) snapshot() []*Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// ReapIdle deletes rooms nobody has been connected to for at least ttl and
// returns how many were deleted.
func (d *Directory) ReapIdle(ttl time.Duration) int {
	n := 0
	for _, r := range d.snapshot() {
		if r.CloseIfIdle(ttl) {
			n++
		}
	}
	if n > 0 {
		d.log.WithField("rooms", n).Info("reaped idle rooms")
	}
	return n
}

// RunReaper calls ReapIdle every interval until ctx is done. A non-positive ttl
// disables reaping.
func (d *Directory) RunReaper(ctx context.Context, ttl, interval time.Duration) {
	if ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.ReapIdle(ttl)
		}
	}
}

// Close deletes every room and cancels all of their timers.
func (d *Directory) Close() {
	for _, r := range d.snapshot() {
		r.Close()
	}
}
