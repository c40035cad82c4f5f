package server

import "math"

// Position locates a player on the game map.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Player is the server-authoritative copy of one logged-in player. It exists
// from login to logout; combat resolution, store purchases, and the misc
// state-effecting commands are the only mutators.
type Player struct {
	Name            string   `json:"name"`
	Health          int      `json:"health"`
	MaxHealth       int      `json:"max_health"`
	Defense         int      `json:"defense"`
	DamageRange     [2]int   `json:"damage_range"`
	CriticalHitRate float64  `json:"critical_hit_rate"`
	Money           int      `json:"money"`
	Position        Position `json:"position"`
}

// NewPlayer builds a player with starting stats at the given spawn point.
func NewPlayer(name string, spawn Position) *Player {
	return &Player{
		Name:            name,
		Health:          playerMaxHealth,
		MaxHealth:       playerMaxHealth,
		Defense:         playerDefense,
		DamageRange:     [2]int{playerDamageMin, playerDamageMax},
		CriticalHitRate: playerCritRate,
		Money:           playerStartMoney,
		Position:        spawn,
	}
}

// TakeDamage reduces health by the given amount, clamped to the remaining
// health, and returns the damage actually dealt.
func (p *Player) TakeDamage(damage int) int {
	if damage > p.Health {
		damage = p.Health
	}
	if damage < 0 {
		damage = 0
	}
	p.Health -= damage
	return damage
}

// Heal restores health up to the maximum and returns the amount restored.
func (p *Player) Heal(amount int) int {
	if amount < 0 {
		amount = 0
	}
	if p.Health+amount > p.MaxHealth {
		amount = p.MaxHealth - p.Health
	}
	p.Health += amount
	return amount
}

// Dead reports whether the player has no health left.
func (p *Player) Dead() bool { return p.Health <= 0 }

// CanSee reports whether the other player is within sight range. Visibility
// is symmetric, so mutual visibility needs only one check.
func (p *Player) CanSee(other *Player) bool {
	dx := float64(p.Position.X - other.Position.X)
	dy := float64(p.Position.Y - other.Position.Y)
	return math.Hypot(dx, dy) <= playerSightRange
}

// damageTo computes the damage p would deal to target given a d20 roll,
// before clamping to the target's remaining health. Never below 1.
func (p *Player) damageTo(target *Player, roll int) int {
	damage := (roll-p.Health)/2 - target.Defense
	if damage < 1 {
		damage = 1
	}
	return damage
}
