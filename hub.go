// Package server implements the authoritative little-sb game server: the
// session registry, command dispatch, per-player event outboxes, and the
// battle table advanced by the fixed-rate tick loop.
package server

import (
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"little-sb/server/internal/proto"
	"little-sb/server/internal/sim"
	"little-sb/server/internal/telemetry"
)

// Remote is the server end of one client connection. The websocket handler
// creates one per connection and hands it to every Dispatch call; login binds
// it to a player identity. Fields are guarded by the hub mutex.
type Remote struct {
	closer      io.Closer
	sessionName string
	playerName  string
}

// NewRemote wraps a freshly accepted connection. The closer lets the hub
// force-drop the connection when the player is removed by another path.
func NewRemote(closer io.Closer) *Remote {
	return &Remote{closer: closer}
}

// PlayerName returns the identity bound at login, or "" before login. The
// hub serializes access; callers outside dispatch use it for logging only.
func (r *Remote) PlayerName() string { return r.playerName }

// HubConfig carries the hub's injected dependencies.
type HubConfig struct {
	Logger  telemetry.Logger
	Metrics *telemetry.Metrics
	Clock   sim.Clock
	// Seed fixes the damage-roll and spawn randomness; zero seeds from the
	// clock.
	Seed int64
}

// Hub owns all live sessions, players, outboxes, and battles. A single mutex
// serializes command dispatch and tick advancement, which keeps executor and
// battle code free of its own locking.
type Hub struct {
	logger  telemetry.Logger
	metrics *telemetry.Metrics
	clock   sim.Clock
	start   time.Time

	mu           sync.Mutex
	rng          *rand.Rand
	gameMap      GameMap
	players      map[string]*Player
	remotes      map[string]*Remote
	outboxes     map[string][]proto.Event
	battles      map[uint64]*Battle
	executors    map[string]ExecutorFunc
	nextBattleID atomic.Uint64
	stopped      bool
}

// NewHub creates a hub with the default executor table registered.
func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &telemetry.Metrics{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = sim.SystemClock{}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = clock.Now().UnixNano()
	}
	h := &Hub{
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
		start:     clock.Now(),
		rng:       rand.New(rand.NewSource(seed)),
		gameMap:   DefaultGameMap(),
		players:   make(map[string]*Player),
		remotes:   make(map[string]*Remote),
		outboxes:  make(map[string][]proto.Event),
		battles:   make(map[uint64]*Battle),
		executors: make(map[string]ExecutorFunc),
	}
	h.registerDefaultExecutors()
	return h
}

// RegisterExecutor installs the executor for a command name. Re-registering
// overwrites; last write wins. Exercised at startup only.
func (h *Hub) RegisterExecutor(name string, fn ExecutorFunc) {
	h.mu.Lock()
	h.executors[name] = fn
	h.mu.Unlock()
}

// Dispatch verifies the packet's sender, looks up the executor, and runs it
// synchronously with full access to the hub state. A non-nil error is a
// protocol error and is fatal to the connection; application failures come
// back as "error" reply events with the connection left open.
func (h *Hub) Dispatch(remote *Remote, packet proto.Packet) (proto.Event, error) {
	cmd, err := packet.Command()
	if err != nil {
		return proto.Event{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		h.metrics.CommandsRejected.Add(1)
		return h.errorEventLocked("Server is shutting down"), nil
	}
	if !h.verifyUserinfoLocked(remote, packet.Sender, cmd.Name) {
		h.metrics.CommandsRejected.Add(1)
		return h.errorEventLocked("Unauthorized"), nil
	}
	exec, ok := h.executors[cmd.Name]
	if !ok {
		h.metrics.CommandsRejected.Add(1)
		return h.errorEventLocked("Unknown command"), nil
	}
	h.metrics.CommandsDispatched.Add(1)
	return exec(h, remote, packet, cmd)
}

// verifyUserinfoLocked checks the claimed sender against the identity
// authenticated on this connection. Before login only the login command may
// pass; afterwards both the player and session names must match exactly.
func (h *Hub) verifyUserinfoLocked(remote *Remote, sender proto.Sender, cmdName string) bool {
	if remote.playerName == "" {
		return cmdName == proto.CmdLogin
	}
	return sender.PlayerName == remote.playerName && sender.SessionName == remote.sessionName
}

// SendTo enqueues an event into the named player's outbox, to be drained by
// that player's next query-event poll. Events for players without a live
// session are dropped.
func (h *Hub) SendTo(player string, ev proto.Event) {
	h.mu.Lock()
	h.enqueueEventLocked(player, ev)
	h.mu.Unlock()
}

// Broadcast enqueues the event for every logged-in player the predicate
// accepts. A nil predicate accepts everyone.
func (h *Hub) Broadcast(ev proto.Event, include func(*Player) bool) {
	h.mu.Lock()
	h.broadcastLocked(ev, include)
	h.mu.Unlock()
}

func (h *Hub) broadcastLocked(ev proto.Event, include func(*Player) bool) {
	for name, p := range h.players {
		if include != nil && !include(p) {
			continue
		}
		h.enqueueEventLocked(name, ev)
	}
}

func (h *Hub) enqueueEventLocked(player string, ev proto.Event) {
	if _, ok := h.remotes[player]; !ok {
		h.metrics.EventsDropped.Add(1)
		return
	}
	h.outboxes[player] = append(h.outboxes[player], ev)
	h.metrics.EventsQueued.Add(1)
}

// Disconnect tears down whatever the remote was bound to. Called by the
// connection handler when the socket errors or closes without a logout.
func (h *Hub) Disconnect(remote *Remote) {
	h.mu.Lock()
	defer h.mu.Unlock()
	name := remote.playerName
	if name != "" && h.remotes[name] == remote {
		h.removePlayerLocked(name)
	}
	remote.playerName = ""
}

// removePlayerLocked drops the player, their session, and their outbox.
// Battles referencing the player force-stop with escaping semantics; the
// opponent is told the game ended rather than being left in a dangling
// battle.
func (h *Hub) removePlayerLocked(name string) {
	delete(h.players, name)
	delete(h.remotes, name)
	delete(h.outboxes, name)

	for id, b := range h.battles {
		if b.Ended() || !b.has(name) {
			continue
		}
		b.stop(h, StopCauseEscaping)
		if opp := b.opponentOf(name); opp != nil {
			h.enqueueEventLocked(opp.Name, h.newEvent(proto.EventMessage, "game-end"))
		}
		delete(h.battles, id)
		h.metrics.BattlesEnded.Add(1)
	}
	h.logger.Printf("player %s removed", name)
}

// allocateBattleLocked creates and registers a fresh battle. Ids are never
// reused.
func (h *Hub) allocateBattleLocked(initiator, target *Player) *Battle {
	id := h.nextBattleID.Add(1)
	b := newBattle(id, initiator, target)
	h.battles[id] = b
	h.metrics.BattlesStarted.Add(1)
	return b
}

// Step advances every active battle by one tick. It implements sim.Stepper
// and runs on the loop goroutine only. A panicking battle is isolated and
// force-stopped so one corrupt battle cannot halt the others.
func (h *Hub) Step(ctx sim.TickContext) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	for id, b := range h.battles {
		h.updateBattleLocked(b, ctx.Delta)
		if b.Ended() {
			delete(h.battles, id)
			h.metrics.BattlesEnded.Add(1)
		}
	}
}

func (h *Hub) updateBattleLocked(b *Battle, delta time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Printf("battle %d update panicked: %v", b.ID(), r)
			b.ended = true
			b.stopCause = StopCauseEscaping
		}
	}()
	b.Update(h, delta)
}

// Shutdown stops accepting commands and terminates outstanding battles
// without emitting further events. Connections are closed best-effort; there
// is no flush-to-client guarantee.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	for _, b := range h.battles {
		b.ended = true
		b.stopCause = StopCauseEscaping
	}
	h.battles = make(map[uint64]*Battle)
	h.outboxes = make(map[string][]proto.Event)
	for name, remote := range h.remotes {
		if remote.closer != nil {
			remote.closer.Close()
		}
		delete(h.remotes, name)
	}
	h.players = make(map[string]*Player)
	h.logger.Printf("hub shut down")
}

// Diagnostics returns a point-in-time view for the diagnostics endpoint.
func (h *Hub) Diagnostics() map[string]any {
	h.mu.Lock()
	players := len(h.players)
	battles := len(h.battles)
	h.mu.Unlock()

	out := h.metrics.Snapshot()
	out["players"] = players
	out["active_battles"] = battles
	return out
}

// newEvent stamps an event with the hub-relative creation time.
func (h *Hub) newEvent(name string, args ...any) proto.Event {
	ev := proto.NewEvent(name, args...)
	ev.CreatedTime = h.clock.Now().Sub(h.start).Seconds()
	return ev
}

func (h *Hub) okEventLocked(args ...any) proto.Event {
	return h.newEvent(proto.EventOK, args...)
}

func (h *Hub) errorEventLocked(reason string) proto.Event {
	return h.newEvent(proto.EventError, reason)
}

// roll returns a uniform integer in [min, max]. Callers hold the hub mutex,
// which also guards the rng.
func (h *Hub) roll(min, max int) int {
	return min + h.rng.Intn(max-min+1)
}

// randomSpawnLocked picks an open interior tile for a new player.
func (h *Hub) randomSpawnLocked() Position {
	for i := 0; i < 64; i++ {
		p := Position{X: 1 + h.rng.Intn(mapWidth-2), Y: 1 + h.rng.Intn(mapHeight-2)}
		if h.gameMap.walkable(p) {
			return p
		}
	}
	return Position{X: mapWidth / 2, Y: mapHeight / 2}
}
