package server

import (
	"strings"
	"testing"
	"time"

	"little-sb/server/internal/proto"
	"little-sb/server/internal/sim"
)

func newTestHub() *Hub {
	return NewHub(HubConfig{
		Clock: sim.ClockFunc(func() time.Time { return time.Unix(1000, 0) }),
		Seed:  1,
	})
}

func packetFor(t *testing.T, sender proto.Sender, cmd proto.Command) proto.Packet {
	t.Helper()
	data, err := proto.EncodeCommand(sender, cmd)
	if err != nil {
		t.Fatalf("encode command: %v", err)
	}
	packet, err := proto.DecodePacket(data)
	if err != nil {
		t.Fatalf("decode packet: %v", err)
	}
	return packet
}

func senderFor(name string) proto.Sender {
	return proto.Sender{PlayerName: name, SessionName: "sess-" + name}
}

func login(t *testing.T, h *Hub, name string) *Remote {
	t.Helper()
	remote := NewRemote(nil)
	reply, err := h.Dispatch(remote, packetFor(t, senderFor(name), proto.NewCommand(proto.CmdLogin)))
	if err != nil {
		t.Fatalf("login dispatch failed: %v", err)
	}
	if !reply.OK() {
		t.Fatalf("login rejected: %+v", reply)
	}
	return remote
}

func dispatch(t *testing.T, h *Hub, remote *Remote, cmd proto.Command) proto.Event {
	t.Helper()
	reply, err := h.Dispatch(remote, packetFor(t, senderFor(remote.PlayerName()), cmd))
	if err != nil {
		t.Fatalf("dispatch %q failed: %v", cmd.Name, err)
	}
	return reply
}

// placeAdjacent pins two players next to each other so they are mutually
// visible regardless of their random spawns.
func placeAdjacent(h *Hub, a, b string) {
	h.players[a].Position = Position{X: 2, Y: 2}
	h.players[b].Position = Position{X: 3, Y: 2}
}

func drainOutbox(t *testing.T, h *Hub, remote *Remote) []proto.Event {
	t.Helper()
	var events []proto.Event
	for {
		ev := dispatch(t, h, remote, proto.NewCommand(proto.CmdQueryEvent))
		if ev.Name == proto.EventNone {
			return events
		}
		events = append(events, ev)
	}
}

func TestDispatchRejectsMismatchedSender(t *testing.T) {
	h := newTestHub()
	remote := login(t, h, "alice")

	executed := false
	h.RegisterExecutor("sentinel", func(h *Hub, _ *Remote, _ proto.Packet, _ proto.Command) (proto.Event, error) {
		executed = true
		return h.okEventLocked(), nil
	})

	// Claiming another player's name must never reach an executor.
	reply, err := h.Dispatch(remote, packetFor(t, senderFor("mallory"), proto.NewCommand("sentinel")))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if reply.Name != proto.EventError {
		t.Fatalf("expected error reply, got %q", reply.Name)
	}
	if reason, _ := reply.ArgString(0); reason != "Unauthorized" {
		t.Fatalf("expected Unauthorized, got %q", reason)
	}
	if executed {
		t.Fatal("executor ran despite sender mismatch")
	}

	// A stolen session name is rejected the same way.
	wrongSession := proto.Sender{PlayerName: "alice", SessionName: "sess-mallory"}
	reply, err = h.Dispatch(remote, packetFor(t, wrongSession, proto.NewCommand("sentinel")))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if reason, _ := reply.ArgString(0); reason != "Unauthorized" {
		t.Fatalf("expected Unauthorized, got %q", reason)
	}
	if executed {
		t.Fatal("executor ran despite session mismatch")
	}
}

func TestDispatchBeforeLoginRejectsEverythingButLogin(t *testing.T) {
	h := newTestHub()
	remote := NewRemote(nil)

	reply, err := h.Dispatch(remote, packetFor(t, senderFor("alice"), proto.NewCommand(proto.CmdSync)))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if reason, _ := reply.ArgString(0); reason != "Unauthorized" {
		t.Fatalf("expected Unauthorized, got %+v", reply)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	h := newTestHub()
	remote := login(t, h, "alice")

	reply := dispatch(t, h, remote, proto.NewCommand("no-such-command"))
	if reason, _ := reply.ArgString(0); reason != "Unknown command" {
		t.Fatalf("expected Unknown command, got %+v", reply)
	}
}

func TestRegisterExecutorLastWriteWins(t *testing.T) {
	h := newTestHub()
	remote := login(t, h, "alice")

	h.RegisterExecutor("probe", func(h *Hub, _ *Remote, _ proto.Packet, _ proto.Command) (proto.Event, error) {
		return h.newEvent(proto.EventMessage, "first"), nil
	})
	h.RegisterExecutor("probe", func(h *Hub, _ *Remote, _ proto.Packet, _ proto.Command) (proto.Event, error) {
		return h.newEvent(proto.EventMessage, "second"), nil
	})

	reply := dispatch(t, h, remote, proto.NewCommand("probe"))
	if text, _ := reply.ArgString(0); text != "second" {
		t.Fatalf("expected the later registration to win, got %q", text)
	}
}

func TestLoginRejectsDuplicateName(t *testing.T) {
	h := newTestHub()
	login(t, h, "alice")

	other := NewRemote(nil)
	reply, err := h.Dispatch(other, packetFor(t, senderFor("alice"), proto.NewCommand(proto.CmdLogin)))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if reply.Name != proto.EventError {
		t.Fatalf("expected duplicate login to fail, got %+v", reply)
	}
}

func TestLoginReplyCarriesPlayerSnapshot(t *testing.T) {
	h := newTestHub()
	remote := NewRemote(nil)
	reply, err := h.Dispatch(remote, packetFor(t, senderFor("alice"), proto.NewCommand(proto.CmdLogin)))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	var snapshot Player
	if err := reply.ArgJSON(0, &snapshot); err != nil {
		t.Fatalf("reply had no player snapshot: %v", err)
	}
	if snapshot.Name != "alice" || snapshot.Health != playerMaxHealth {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if snapshot.Money != playerStartMoney {
		t.Fatalf("expected starting money %d, got %d", playerStartMoney, snapshot.Money)
	}
}

func TestQueryEventOnEmptyQueueReturnsNone(t *testing.T) {
	h := newTestHub()
	remote := login(t, h, "alice")

	reply := dispatch(t, h, remote, proto.NewCommand(proto.CmdQueryEvent))
	if reply.Name != proto.EventNone {
		t.Fatalf("expected none, got %q", reply.Name)
	}
}

func TestSayBroadcastsToEveryone(t *testing.T) {
	h := newTestHub()
	alice := login(t, h, "alice")
	bob := login(t, h, "bob")

	reply := dispatch(t, h, alice, proto.NewCommand(proto.CmdSay, "hello"))
	if !reply.OK() {
		t.Fatalf("say rejected: %+v", reply)
	}

	for _, remote := range []*Remote{alice, bob} {
		events := drainOutbox(t, h, remote)
		if len(events) != 1 || events[0].Name != proto.EventBroadcast {
			t.Fatalf("expected one broadcast for %s, got %+v", remote.PlayerName(), events)
		}
		if from, _ := events[0].ParamString(proto.ParamFrom); from != "alice" {
			t.Fatalf("expected from alice, got %q", from)
		}
		if text, _ := events[0].ArgString(0); text != "hello" {
			t.Fatalf("expected hello, got %q", text)
		}
	}
}

func TestSayWithNonStringArgIsProtocolError(t *testing.T) {
	h := newTestHub()
	remote := login(t, h, "alice")

	_, err := h.Dispatch(remote, packetFor(t, senderFor("alice"), proto.NewCommand(proto.CmdSay, 42)))
	if err == nil {
		t.Fatal("expected a protocol error for a non-string say argument")
	}
}

func TestEventsForDisconnectedPlayersAreDropped(t *testing.T) {
	h := newTestHub()
	h.SendTo("ghost", proto.NewEvent(proto.EventMessage, "anyone there"))
	if got := h.metrics.EventsDropped.Load(); got != 1 {
		t.Fatalf("expected 1 dropped event, got %d", got)
	}
}

func TestBattleCommandValidation(t *testing.T) {
	h := newTestHub()
	alice := login(t, h, "alice")
	login(t, h, "bob")
	placeAdjacent(h, "alice", "bob")

	cases := []struct {
		name   string
		target string
		setup  func()
		want   string
	}{
		{"unknown target", "carol", nil, "No such player"},
		{"self battle", "alice", nil, "battle yourself"},
		{"invisible target", "bob", func() {
			h.players["bob"].Position = Position{X: 14, Y: 6}
			h.players["alice"].Position = Position{X: 1, Y: 1}
		}, "can not see"},
	}
	for _, tc := range cases {
		if tc.setup != nil {
			tc.setup()
		}
		reply := dispatch(t, h, alice, proto.NewCommand(proto.CmdBattle, tc.target))
		reason, _ := reply.ArgString(0)
		if reply.Name != proto.EventError || !strings.Contains(reason, tc.want) {
			t.Fatalf("%s: expected error containing %q, got %+v", tc.name, tc.want, reply)
		}
	}
}

func TestBattleScenarioRunsToGameEnd(t *testing.T) {
	h := newTestHub()
	alice := login(t, h, "alice")
	bob := login(t, h, "bob")
	placeAdjacent(h, "alice", "bob")

	reply := dispatch(t, h, alice, proto.NewCommand(proto.CmdBattle, "bob"))
	if !reply.OK() {
		t.Fatalf("battle rejected: %+v", reply)
	}
	gameID, err := reply.ParamUint(proto.ParamGameID)
	if err != nil {
		t.Fatalf("reply had no game-id: %v", err)
	}

	// Bob is told he was challenged.
	bobEvents := drainOutbox(t, h, bob)
	if len(bobEvents) != 1 || bobEvents[0].Name != proto.EventBattle {
		t.Fatalf("expected battle notice for bob, got %+v", bobEvents)
	}

	// One turn interval per step resolves one alternating attack until a
	// player dies.
	for i := 0; i < 200; i++ {
		if _, ok := h.battles[gameID]; !ok {
			break
		}
		h.Step(sim.TickContext{Tick: uint64(i + 1), Now: time.Unix(1000, 0), Delta: battleTurnInterval})
	}
	if _, ok := h.battles[gameID]; ok {
		t.Fatal("battle never ended")
	}

	aliceHealth := h.players["alice"].Health
	bobHealth := h.players["bob"].Health
	if (aliceHealth == 0) == (bobHealth == 0) {
		t.Fatalf("expected exactly one player at zero health, got alice=%d bob=%d", aliceHealth, bobHealth)
	}

	for _, remote := range []*Remote{alice, bob} {
		events := drainOutbox(t, h, remote)
		var drops, ends int
		for _, ev := range events {
			switch ev.Name {
			case proto.EventHealthDrop:
				drops++
				dropped, err := ev.ParamInt(proto.ParamDrop)
				if err != nil || dropped < 1 {
					t.Fatalf("bad health-drop %+v (err %v)", ev, err)
				}
			case proto.EventGameEnd:
				ends++
			}
		}
		if drops == 0 {
			t.Fatalf("%s saw no health-drop events", remote.PlayerName())
		}
		if ends != 1 {
			t.Fatalf("%s saw %d game-end events, want exactly 1", remote.PlayerName(), ends)
		}
	}

	// Further ticks must not touch the dead battle or the players.
	h.Step(sim.TickContext{Tick: 999, Now: time.Unix(1000, 0), Delta: battleTurnInterval})
	if h.players["alice"].Health != aliceHealth || h.players["bob"].Health != bobHealth {
		t.Fatal("health changed after the battle ended")
	}
}

func TestEscapeGateAndSuccess(t *testing.T) {
	h := newTestHub()
	alice := login(t, h, "alice")
	bob := login(t, h, "bob")
	placeAdjacent(h, "alice", "bob")

	reply := dispatch(t, h, alice, proto.NewCommand(proto.CmdBattle, "bob"))
	gameID, _ := reply.ParamUint(proto.ParamGameID)

	escape := proto.NewCommand(proto.CmdEscape)
	escape.SetParam(proto.ParamGameID, gameID)

	reply = dispatch(t, h, alice, escape)
	if reply.Name != proto.EventError {
		t.Fatalf("expected escape to be gated before %d rounds, got %+v", escapeRoundGate, reply)
	}

	// Give both players plenty of health so the gate is reached before
	// anyone dies, then resolve exactly escapeRoundGate attacks.
	h.players["alice"].MaxHealth = 1000
	h.players["alice"].Health = 1000
	h.players["bob"].MaxHealth = 1000
	h.players["bob"].Health = 1000
	for i := 0; i < escapeRoundGate; i++ {
		h.Step(sim.TickContext{Delta: battleTurnInterval})
	}

	reply = dispatch(t, h, alice, escape)
	if !reply.OK() {
		t.Fatalf("expected escape to succeed after the gate, got %+v", reply)
	}
	if _, ok := h.battles[gameID]; ok {
		t.Fatal("escaped battle still active")
	}

	// The opponent learns the game is over on their next poll.
	events := drainOutbox(t, h, bob)
	var sawEnd bool
	for _, ev := range events {
		if ev.Name == proto.EventMessage {
			if text, _ := ev.ArgString(0); text == "game-end" {
				sawEnd = true
			}
		}
	}
	if !sawEnd {
		t.Fatalf("opponent never notified of the escape, events %+v", events)
	}
}

func TestLogoutMidBattleStopsBattleAndNotifiesOpponent(t *testing.T) {
	h := newTestHub()
	alice := login(t, h, "alice")
	bob := login(t, h, "bob")
	placeAdjacent(h, "alice", "bob")

	reply := dispatch(t, h, alice, proto.NewCommand(proto.CmdBattle, "bob"))
	gameID, _ := reply.ParamUint(proto.ParamGameID)

	if reply := dispatch(t, h, bob, proto.NewCommand(proto.CmdLogout)); !reply.OK() {
		t.Fatalf("logout rejected: %+v", reply)
	}

	if _, ok := h.battles[gameID]; ok {
		t.Fatal("battle still active after participant logout")
	}
	if _, ok := h.players["bob"]; ok {
		t.Fatal("player still registered after logout")
	}

	events := drainOutbox(t, h, alice)
	var sawEnd bool
	for _, ev := range events {
		if ev.Name == proto.EventMessage {
			if text, _ := ev.ArgString(0); text == "game-end" {
				sawEnd = true
			}
		}
	}
	if !sawEnd {
		t.Fatalf("expected a termination notice, got %+v", events)
	}
}

func TestDisconnectWithoutLogoutRemovesPlayer(t *testing.T) {
	h := newTestHub()
	alice := login(t, h, "alice")
	bob := login(t, h, "bob")
	placeAdjacent(h, "alice", "bob")
	dispatch(t, h, alice, proto.NewCommand(proto.CmdBattle, "bob"))

	h.Disconnect(bob)

	if _, ok := h.players["bob"]; ok {
		t.Fatal("player survived disconnect")
	}
	if len(h.battles) != 0 {
		t.Fatal("battle survived disconnect")
	}
	events := drainOutbox(t, h, alice)
	if len(events) == 0 {
		t.Fatal("opponent never notified after disconnect")
	}
}

func TestBuySpendsMoneyAndQueuesCure(t *testing.T) {
	h := newTestHub()
	remote := login(t, h, "alice")
	player := h.players["alice"]
	player.Health = 5

	reply := dispatch(t, h, remote, proto.NewCommand(proto.CmdBuy, "hp-big"))
	if !reply.OK() {
		t.Fatalf("buy rejected: %+v", reply)
	}
	if player.Money != playerStartMoney-5 {
		t.Fatalf("expected money %d, got %d", playerStartMoney-5, player.Money)
	}
	if player.Health != 15 {
		t.Fatalf("expected health 15, got %d", player.Health)
	}

	events := drainOutbox(t, h, remote)
	if len(events) != 1 || events[0].Name != proto.EventCure {
		t.Fatalf("expected one cure event, got %+v", events)
	}
	if amount, _ := events[0].ArgInt(0); amount != 10 {
		t.Fatalf("expected cure amount 10, got %d", amount)
	}

	if reply := dispatch(t, h, remote, proto.NewCommand(proto.CmdBuy, "nothing")); reply.Name != proto.EventError {
		t.Fatalf("expected unknown item to fail, got %+v", reply)
	}

	player.Money = 1
	if reply := dispatch(t, h, remote, proto.NewCommand(proto.CmdBuy, "hp-small")); reply.Name != proto.EventError {
		t.Fatalf("expected purchase while broke to fail, got %+v", reply)
	}
}

func TestResurrectOnlyWorksWhenDead(t *testing.T) {
	h := newTestHub()
	remote := login(t, h, "alice")

	if reply := dispatch(t, h, remote, proto.NewCommand(proto.CmdResurrect)); reply.Name != proto.EventError {
		t.Fatalf("expected resurrect of the living to fail, got %+v", reply)
	}

	h.players["alice"].Health = 0
	if reply := dispatch(t, h, remote, proto.NewCommand(proto.CmdResurrect)); !reply.OK() {
		t.Fatalf("resurrect rejected: %+v", reply)
	}
	if h.players["alice"].Health != playerMaxHealth {
		t.Fatalf("expected full health, got %d", h.players["alice"].Health)
	}
}

func TestFuckDamagesEveryoneElse(t *testing.T) {
	h := newTestHub()
	alice := login(t, h, "alice")
	bob := login(t, h, "bob")

	if reply := dispatch(t, h, alice, proto.NewCommand(proto.CmdFuck)); !reply.OK() {
		t.Fatalf("fuck rejected: %+v", reply)
	}

	if h.players["alice"].Health != playerMaxHealth {
		t.Fatal("caller damaged themself")
	}
	if h.players["bob"].Health != playerMaxHealth-1 {
		t.Fatalf("expected bob at %d, got %d", playerMaxHealth-1, h.players["bob"].Health)
	}
	events := drainOutbox(t, h, bob)
	if len(events) != 1 || events[0].Name != proto.EventFuck {
		t.Fatalf("expected one fuck event, got %+v", events)
	}
	if who, _ := events[0].ParamString(proto.ParamFucker); who != "alice" {
		t.Fatalf("expected fucker alice, got %q", who)
	}
}

func TestSyncAndListReplies(t *testing.T) {
	h := newTestHub()
	remote := login(t, h, "alice")
	login(t, h, "bob")

	reply := dispatch(t, h, remote, proto.NewCommand(proto.CmdSync))
	var me Player
	if err := reply.ArgJSON(0, &me); err != nil || me.Name != "alice" {
		t.Fatalf("bad sync reply %+v (err %v)", reply, err)
	}

	reply = dispatch(t, h, remote, proto.NewCommand(proto.CmdListPlayers))
	var players []Player
	if err := reply.ArgJSON(0, &players); err != nil || len(players) != 2 {
		t.Fatalf("bad list-players reply %+v (err %v)", reply, err)
	}
	if players[0].Name != "alice" || players[1].Name != "bob" {
		t.Fatalf("expected sorted names, got %+v", players)
	}

	reply = dispatch(t, h, remote, proto.NewCommand(proto.CmdListStoreItems))
	var items []StoreItem
	if err := reply.ArgJSON(0, &items); err != nil || len(items) != 2 {
		t.Fatalf("bad list-store-items reply %+v (err %v)", reply, err)
	}

	reply = dispatch(t, h, remote, proto.NewCommand(proto.CmdGetGameMap))
	var m GameMap
	if err := reply.ArgJSON(0, &m); err != nil || m.Width != mapWidth || len(m.Rows) != mapHeight {
		t.Fatalf("bad get-game-map reply %+v (err %v)", reply, err)
	}
}

func TestShutdownRefusesFurtherCommands(t *testing.T) {
	h := newTestHub()
	alice := login(t, h, "alice")
	bob := login(t, h, "bob")
	placeAdjacent(h, "alice", "bob")
	dispatch(t, h, alice, proto.NewCommand(proto.CmdBattle, "bob"))

	h.Shutdown()

	if len(h.battles) != 0 {
		t.Fatal("battles survived shutdown")
	}
	reply, err := h.Dispatch(alice, packetFor(t, senderFor("alice"), proto.NewCommand(proto.CmdSync)))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if reply.Name != proto.EventError {
		t.Fatalf("expected shutdown rejection, got %+v", reply)
	}

	// Every session is refused, not just the one that observed the shutdown.
	reply, err = h.Dispatch(bob, packetFor(t, senderFor("bob"), proto.NewCommand(proto.CmdQueryEvent)))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if reply.Name != proto.EventError {
		t.Fatalf("expected shutdown rejection for bob, got %+v", reply)
	}
	if len(h.players) != 0 {
		t.Fatal("players survived shutdown")
	}
}

func TestStepIsolatesPanickingBattle(t *testing.T) {
	h := newTestHub()
	login(t, h, "alice")
	login(t, h, "bob")
	login(t, h, "carol")
	login(t, h, "dave")
	placeAdjacent(h, "alice", "bob")

	healthy := h.allocateBattleLocked(h.players["alice"], h.players["bob"])
	corrupt := h.allocateBattleLocked(h.players["carol"], h.players["dave"])
	corrupt.players[1] = nil // forces a nil dereference inside Update

	h.Step(sim.TickContext{Delta: battleTurnInterval})

	if _, ok := h.battles[corrupt.ID()]; ok {
		t.Fatal("corrupt battle not removed")
	}
	if _, ok := h.battles[healthy.ID()]; !ok {
		t.Fatal("healthy battle was lost along with the corrupt one")
	}
	if healthy.Rounds() != 1 {
		t.Fatalf("healthy battle did not advance, rounds=%d", healthy.Rounds())
	}
}
