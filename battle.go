package server

import (
	"time"

	"little-sb/server/internal/proto"
)

// StopCause records why a battle ended.
type StopCause uint8

const (
	// StopCauseNormal means a participant's health reached zero.
	StopCauseNormal StopCause = iota
	// StopCauseEscaping means a participant escaped or logged out.
	StopCauseEscaping
)

// Battle is one active turn-based combat between two players. The first
// player is the initiator, the second the target; the initiator attacks
// first. Battles advance only from the hub's tick step, so no locking here.
type Battle struct {
	id        uint64
	players   [2]*Player
	turn      int // index of the next attacker
	rounds    int // resolved attacks so far
	ended     bool
	stopCause StopCause
	sinceLast time.Duration
}

func newBattle(id uint64, initiator, target *Player) *Battle {
	return &Battle{id: id, players: [2]*Player{initiator, target}}
}

// ID returns the battle's allocation id. Ids are never reused.
func (b *Battle) ID() uint64 { return b.id }

// Ended reports whether the battle has finished.
func (b *Battle) Ended() bool { return b.ended }

// Rounds returns the number of attacks resolved so far. The escape gate
// counts in this unit.
func (b *Battle) Rounds() int { return b.rounds }

// StopCause is meaningful only once Ended reports true.
func (b *Battle) StopCause() StopCause { return b.stopCause }

func (b *Battle) has(name string) bool {
	return b.players[0].Name == name || b.players[1].Name == name
}

func (b *Battle) opponentOf(name string) *Player {
	if b.players[0].Name == name {
		return b.players[1]
	}
	return b.players[0]
}

// Update accumulates elapsed time and, once the turn interval is crossed,
// resolves exactly one attack. A no-op after the battle ends.
func (b *Battle) Update(h *Hub, delta time.Duration) {
	if b.ended {
		return
	}
	b.sinceLast += delta
	if b.sinceLast < battleTurnInterval {
		return
	}
	b.sinceLast -= battleTurnInterval

	attacker := b.players[b.turn]
	defender := b.players[1-b.turn]

	roll := h.roll(playerDamageMin, playerDamageMax)
	dealt := defender.TakeDamage(attacker.damageTo(defender, roll))

	drop := h.newEvent(proto.EventHealthDrop)
	drop.SetParam(proto.ParamPlayer, defender.Name)
	drop.SetParam(proto.ParamDrop, dealt)
	h.enqueueEventLocked(b.players[0].Name, drop)
	h.enqueueEventLocked(b.players[1].Name, drop)

	b.rounds++
	b.turn = 1 - b.turn

	if defender.Dead() {
		b.stop(h, StopCauseNormal)
	}
}

// stop transitions the battle to ended exactly once. A normal stop emits the
// terminal game-end event to both participants; an escaping stop emits
// nothing, leaving any notification to the caller.
func (b *Battle) stop(h *Hub, cause StopCause) {
	if b.ended {
		return
	}
	b.ended = true
	b.stopCause = cause

	if cause == StopCauseNormal {
		end := h.newEvent(proto.EventGameEnd)
		h.enqueueEventLocked(b.players[0].Name, end)
		h.enqueueEventLocked(b.players[1].Name, end)
	}
}
