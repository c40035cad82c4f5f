package server

import (
	"fmt"
	"sort"

	"little-sb/server/internal/proto"
)

// ExecutorFunc handles one named command. It runs under the hub mutex with
// full access to server state and returns the reply event. A non-nil error
// is a protocol error (bad field types, unreadable payload) and closes the
// connection; game-rule failures are "error" reply events instead.
type ExecutorFunc func(h *Hub, remote *Remote, packet proto.Packet, cmd proto.Command) (proto.Event, error)

func (h *Hub) registerDefaultExecutors() {
	h.executors[proto.CmdLogin] = executeLogin
	h.executors[proto.CmdLogout] = executeLogout
	h.executors[proto.CmdSync] = executeSync
	h.executors[proto.CmdSay] = executeSay
	h.executors[proto.CmdListPlayers] = executeListPlayers
	h.executors[proto.CmdListStoreItems] = executeListStoreItems
	h.executors[proto.CmdGetGameMap] = executeGetGameMap
	h.executors[proto.CmdBuy] = executeBuy
	h.executors[proto.CmdBattle] = executeBattle
	h.executors[proto.CmdEscape] = executeEscape
	h.executors[proto.CmdResurrect] = executeResurrect
	h.executors[proto.CmdQueryEvent] = executeQueryEvent
	h.executors[proto.CmdCure] = executeCure
	h.executors[proto.CmdFuck] = executeFuck
}

func executeLogin(h *Hub, remote *Remote, packet proto.Packet, _ proto.Command) (proto.Event, error) {
	name := packet.Sender.PlayerName
	if name == "" {
		return h.errorEventLocked("Your name can not be empty"), nil
	}
	if remote.playerName != "" {
		return h.errorEventLocked("Already logged in"), nil
	}
	if _, taken := h.players[name]; taken {
		return h.errorEventLocked(fmt.Sprintf("Name %q is already taken", name)), nil
	}

	player := NewPlayer(name, h.randomSpawnLocked())
	h.players[name] = player
	remote.playerName = name
	remote.sessionName = packet.Sender.SessionName
	h.remotes[name] = remote

	h.logger.Printf("player %s logged in", name)
	return h.okEventLocked(player), nil
}

func executeLogout(h *Hub, remote *Remote, _ proto.Packet, _ proto.Command) (proto.Event, error) {
	name := remote.playerName
	h.removePlayerLocked(name)
	remote.playerName = ""
	h.logger.Printf("player %s logged out", name)
	return h.okEventLocked(), nil
}

func executeSync(h *Hub, remote *Remote, _ proto.Packet, _ proto.Command) (proto.Event, error) {
	player := h.players[remote.playerName]
	if player == nil {
		return h.errorEventLocked("Unknown player"), nil
	}
	return h.okEventLocked(player), nil
}

func executeSay(h *Hub, remote *Remote, _ proto.Packet, cmd proto.Command) (proto.Event, error) {
	text, err := cmd.ArgString(0)
	if err != nil {
		return proto.Event{}, err
	}
	ev := h.newEvent(proto.EventBroadcast, text)
	ev.SetParam(proto.ParamFrom, remote.playerName)
	h.broadcastLocked(ev, nil)
	return h.okEventLocked(), nil
}

func executeListPlayers(h *Hub, _ *Remote, _ proto.Packet, _ proto.Command) (proto.Event, error) {
	players := make([]Player, 0, len(h.players))
	for _, p := range h.players {
		players = append(players, *p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Name < players[j].Name })
	return h.okEventLocked(players), nil
}

func executeListStoreItems(h *Hub, _ *Remote, _ proto.Packet, _ proto.Command) (proto.Event, error) {
	return h.okEventLocked(StoreItems()), nil
}

func executeGetGameMap(h *Hub, _ *Remote, _ proto.Packet, _ proto.Command) (proto.Event, error) {
	return h.okEventLocked(h.gameMap), nil
}

func executeBuy(h *Hub, remote *Remote, _ proto.Packet, cmd proto.Command) (proto.Event, error) {
	itemName, err := cmd.ArgString(0)
	if err != nil {
		return proto.Event{}, err
	}
	item, ok := storeCatalog[itemName]
	if !ok {
		return h.errorEventLocked(fmt.Sprintf("No such item: %s", itemName)), nil
	}
	player := h.players[remote.playerName]
	if player.Money < item.Price {
		return h.errorEventLocked("Not enough money"), nil
	}

	// Buying is using: the heal applies immediately, announced by a cure
	// event on the buyer's queue.
	player.Money -= item.Price
	healed := player.Heal(item.Heal)
	cure := h.newEvent(proto.EventCure, healed)
	cure.SetParam(proto.ParamCause, fmt.Sprintf("You used %s", item.Name))
	h.enqueueEventLocked(player.Name, cure)
	return h.okEventLocked(), nil
}

func executeBattle(h *Hub, remote *Remote, _ proto.Packet, cmd proto.Command) (proto.Event, error) {
	targetName, err := cmd.ArgString(0)
	if err != nil {
		return proto.Event{}, err
	}
	initiator := h.players[remote.playerName]
	target, ok := h.players[targetName]
	if !ok {
		return h.errorEventLocked(fmt.Sprintf("No such player: %s", targetName)), nil
	}
	if target == initiator {
		return h.errorEventLocked("You can not battle yourself"), nil
	}
	if initiator.Dead() {
		return h.errorEventLocked("You are dead"), nil
	}
	if target.Dead() {
		return h.errorEventLocked(fmt.Sprintf("%s is dead", targetName)), nil
	}
	if !initiator.CanSee(target) {
		return h.errorEventLocked(fmt.Sprintf("You can not see %s", targetName)), nil
	}
	for _, b := range h.battles {
		if b.Ended() {
			continue
		}
		if b.has(initiator.Name) {
			return h.errorEventLocked("You are already in a battle"), nil
		}
		if b.has(target.Name) {
			return h.errorEventLocked(fmt.Sprintf("%s is already in a battle", targetName)), nil
		}
	}

	battle := h.allocateBattleLocked(initiator, target)

	notice := h.newEvent(proto.EventBattle)
	notice.SetParam(proto.ParamFrom, initiator.Name)
	h.enqueueEventLocked(target.Name, notice)

	reply := h.okEventLocked()
	reply.SetParam(proto.ParamGameID, battle.ID())
	h.logger.Printf("battle %d: %s vs %s", battle.ID(), initiator.Name, target.Name)
	return reply, nil
}

func executeEscape(h *Hub, remote *Remote, _ proto.Packet, cmd proto.Command) (proto.Event, error) {
	id, err := cmd.ParamUint(proto.ParamGameID)
	if err != nil {
		return proto.Event{}, err
	}
	battle, ok := h.battles[id]
	if !ok {
		return h.errorEventLocked(fmt.Sprintf("No such battle: %d", id)), nil
	}
	if !battle.has(remote.playerName) {
		return h.errorEventLocked("You are not in this battle"), nil
	}
	if battle.Rounds() < escapeRoundGate {
		return h.errorEventLocked("You can not escape yet"), nil
	}

	battle.stop(h, StopCauseEscaping)
	delete(h.battles, id)
	h.metrics.BattlesEnded.Add(1)
	if opp := battle.opponentOf(remote.playerName); opp != nil {
		h.enqueueEventLocked(opp.Name, h.newEvent(proto.EventMessage, "game-end"))
	}
	return h.okEventLocked(), nil
}

func executeResurrect(h *Hub, remote *Remote, _ proto.Packet, _ proto.Command) (proto.Event, error) {
	player := h.players[remote.playerName]
	if !player.Dead() {
		return h.errorEventLocked("You are not dead"), nil
	}
	player.Health = player.MaxHealth
	return h.okEventLocked(), nil
}

// executeQueryEvent pops the caller's oldest queued push event and returns
// it as the reply, or a "none" event when the queue is empty. Never blocks.
func executeQueryEvent(h *Hub, remote *Remote, _ proto.Packet, _ proto.Command) (proto.Event, error) {
	queue := h.outboxes[remote.playerName]
	if len(queue) == 0 {
		return h.newEvent(proto.EventNone), nil
	}
	ev := queue[0]
	h.outboxes[remote.playerName] = queue[1:]
	return ev, nil
}

func executeCure(h *Hub, remote *Remote, _ proto.Packet, _ proto.Command) (proto.Event, error) {
	player := h.players[remote.playerName]
	healed := player.Heal(cureCommandAmount)
	cure := h.newEvent(proto.EventCure, healed)
	cure.SetParam(proto.ParamCause, "You cured yourself")
	h.enqueueEventLocked(player.Name, cure)
	return h.okEventLocked(), nil
}

// executeFuck chips one health off every other player and tells each of
// them who did it.
func executeFuck(h *Hub, remote *Remote, _ proto.Packet, _ proto.Command) (proto.Event, error) {
	caller := remote.playerName
	for name, p := range h.players {
		if name == caller {
			continue
		}
		p.TakeDamage(1)
		ev := h.newEvent(proto.EventFuck)
		ev.SetParam(proto.ParamFucker, caller)
		h.enqueueEventLocked(name, ev)
	}
	return h.okEventLocked(), nil
}
