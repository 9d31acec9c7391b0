// internal/dispatcher/dispatcher.go
package dispatcher

import (
	"github.com/jason-s-yu/codebreak/internal/models"
	"github.com/jason-s-yu/codebreak/internal/protocol"
	"github.com/jason-s-yu/codebreak/internal/registry"
	"github.com/jason-s-yu/codebreak/internal/room"
	"github.com/sirupsen/logrus"
)

// Dispatcher routes decoded client messages to the room their sender belongs to.
// Errors go back to the originating connection only.
type Dispatcher struct {
	dir *room.Directory
	reg *registry.Registry
	log *logrus.Logger
}

// New returns a dispatcher over dir and reg.
func New(dir *room.Directory, reg *registry.Registry, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{dir: dir, reg: reg, log: logger}
}

// HandleRaw decodes one text frame and handles it.
func (d *Dispatcher) HandleRaw(c *registry.Conn, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		d.entry(c).WithError(err).Debug("rejected inbound frame")
		c.Write(protocol.Error(err))
		return
	}
	d.Handle(c, msg)
}

// Handle runs msg on behalf of c.
func (d *Dispatcher) Handle(c *registry.Conn, msg protocol.Inbound) {
	if err := d.handle(c, msg); err != nil {
		log := d.entry(c).WithField("type", msg.Type())
		if models.KindOf(err) == models.KindInternal {
			log.WithError(err).Error("message failed")
		} else {
			log.WithField("code", models.CodeOf(err)).Debug("message rejected")
		}
		c.Write(protocol.Error(err))
	}
}

func (d *Dispatcher) handle(c *registry.Conn, msg protocol.Inbound) error {
	switch m := msg.(type) {
	case protocol.CreateRoom:
		if err := d.ensureUnassigned(c); err != nil {
			return err
		}
		_, err := d.dir.CreateRoom(m.PlayerName, d.attach(c))
		return err
	case protocol.JoinRoom:
		if err := d.ensureUnassigned(c); err != nil {
			return err
		}
		_, err := d.dir.JoinRoom(m.PlayerName, m.RoomID, d.attach(c))
		return err
	case protocol.Reconnect:
		return d.reconnect(c, m)
	}

	playerID, r, err := d.resolve(c)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case protocol.UpdateSettings:
		return r.UpdateSettings(playerID, m.Settings)
	case protocol.ToggleReady:
		return r.ToggleReady(playerID)
	case protocol.NotifyReady:
		return r.NotifyReady(playerID)
	case protocol.StartGame:
		return r.StartGame(playerID, m.ForceStart, m.IsRestart)
	case protocol.ChallengesCompleted:
		return r.CompleteChallenge(playerID)
	case protocol.SubmitGuess:
		return r.SubmitGuess(playerID, []int(m.Guess))
	case protocol.RequestAttemptDetails:
		return r.AttemptDetails(playerID, m.TargetPlayerID)
	case protocol.RequestRematch:
		return r.RequestRematch(playerID)
	case protocol.RematchVote:
		return r.VoteRematch(playerID, m.Accepted)
	case protocol.TransferHost:
		return r.TransferHost(playerID, m.NewHostID)
	case protocol.KickPlayer:
		return r.Kick(playerID, m.TargetPlayerID)
	case protocol.LeaveRoom:
		return r.Leave(playerID)
	case protocol.UseCard:
		return r.UseCard(playerID, room.CardPlay{
			TargetPlayerID: m.TargetPlayerID,
			CardType:       m.CardType,
			CardID:         m.CardID,
			EffectDuration: m.EffectDuration,
			EffectValue:    m.EffectValue,
		})
	default:
		return models.ErrUnknownMessage
	}
}

// reconnect resumes the membership named by the session token on c. A
// connection already speaking for another room member cannot take over a
// second identity.
func (d *Dispatcher) reconnect(c *registry.Conn, m protocol.Reconnect) error {
	claims, err := d.dir.Session(m.SessionToken)
	if err != nil {
		return err
	}
	if current, ok := d.reg.PlayerOf(c); ok && current != claims.PlayerID {
		if _, inRoom := d.dir.RoomOf(current); inRoom {
			return models.ErrAlreadyInRoom
		}
	}
	ms, err := d.dir.Reconnect(m.SessionToken, m.RoomCode, d.attach(c))
	if err != nil {
		return err
	}
	d.entry(c).WithFields(logrus.Fields{
		"player": ms.PlayerID,
		"room":   ms.Room.Code,
	}).Info("session resumed")
	return nil
}

// Disconnect handles a closed transport. Membership survives; the player is
// only marked disconnected, and only if c is still the player's live connection.
func (d *Dispatcher) Disconnect(c *registry.Conn) {
	defer c.Close()
	playerID, ok := d.reg.PlayerOf(c)
	if !ok {
		return
	}
	r, ok := d.dir.RoomOf(playerID)
	if !ok {
		d.reg.Unbind(c)
		return
	}
	r.Disconnect(playerID, func() bool {
		_, bound := d.reg.Unbind(c)
		return bound
	})
	// the player may already have been marked away; drop the binding regardless
	d.reg.Unbind(c)
}

// attach binds c to the new player id. A connection the player used before is
// superseded and closed.
func (d *Dispatcher) attach(c *registry.Conn) func(playerID string) {
	return func(playerID string) {
		if old := d.reg.Bind(playerID, c); old != nil {
			d.log.WithFields(logrus.Fields{
				"player": playerID,
				"conn":   old.ID,
			}).Info("closing superseded connection")
			old.Close()
		}
	}
}

func (d *Dispatcher) ensureUnassigned(c *registry.Conn) error {
	playerID, ok := d.reg.PlayerOf(c)
	if !ok {
		return nil
	}
	if _, inRoom := d.dir.RoomOf(playerID); inRoom {
		return models.ErrAlreadyInRoom
	}
	return nil
}

func (d *Dispatcher) resolve(c *registry.Conn) (string, *room.Room, error) {
	playerID, ok := d.reg.PlayerOf(c)
	if !ok {
		return "", nil, models.ErrNotInRoom
	}
	r, ok := d.dir.RoomOf(playerID)
	if !ok {
		return "", nil, models.ErrNotInRoom
	}
	return playerID, r, nil
}

func (d *Dispatcher) entry(c *registry.Conn) *logrus.Entry {
	fields := logrus.Fields{"conn": c.ID, "remote": c.Remote}
	if playerID, ok := d.reg.PlayerOf(c); ok {
		fields["player"] = playerID
	}
	return d.log.WithFields(fields)
}
