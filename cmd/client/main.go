// Command client is a line-oriented terminal client for the little-sb
// server. It keeps one websocket session open, polls the server for queued
// game events, and maps typed commands onto the wire protocol.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"little-sb/server/internal/proto"
	"little-sb/server/internal/session"
	"little-sb/server/internal/telemetry"
)

const pollInterval = 150 * time.Millisecond

type playerView struct {
	Name      string `json:"name"`
	Health    int    `json:"health"`
	MaxHealth int    `json:"max_health"`
	Money     int    `json:"money"`
	Position  struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"position"`
}

type storeItemView struct {
	Name        string `json:"name"`
	Price       int    `json:"price"`
	Heal        int    `json:"heal"`
	Description string `json:"description"`
}

type gameMapView struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Rows   []string `json:"rows"`
}

type gameClient struct {
	sess *session.Session
	name string

	mu     sync.Mutex
	gameID uint64
	rounds int
}

func main() {
	addr := flag.String("addr", "localhost:1438", "server address")
	name := flag.String("name", "", "player name")
	flag.Parse()

	if *name == "" {
		fmt.Print("player name: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			log.Fatal(err)
		}
		*name = strings.TrimSpace(line)
	}
	if *name == "" {
		log.Fatal("player name can not be empty")
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+*addr+"/ws", nil)
	if err != nil {
		log.Fatalf("dial %s: %v", *addr, err)
	}

	sess := session.New(conn, telemetry.LoggerFunc(log.Printf))
	client := &gameClient{sess: sess, name: *name}
	sess.OnUnsolicited(func(ev proto.Event) { client.printEvent(ev) })

	sessDone := make(chan error, 1)
	go func() { sessDone <- sess.Run() }()

	sess.SetPlayerName(*name)
	reply, err := client.call(proto.NewCommand(proto.CmdLogin))
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	if !reply.OK() {
		msg, _ := reply.ArgString(0)
		log.Fatalf("login rejected: %s", msg)
	}
	var me playerView
	if err := reply.ArgJSON(0, &me); err == nil {
		fmt.Printf("welcome %s: %d/%d hp, $%d\n", me.Name, me.Health, me.MaxHealth, me.Money)
	}

	pollStop := make(chan struct{})
	go client.pollEvents(pollStop)

	fmt.Println(`type "help" for commands`)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if client.run(line) {
			break
		}
		select {
		case err := <-sessDone:
			log.Fatalf("connection lost: %v", err)
		default:
		}
	}

	close(pollStop)
	client.call(proto.NewCommand(proto.CmdLogout))
	sess.Close()
}

// call sends one command and blocks until its reply arrives.
func (c *gameClient) call(cmd proto.Command) (proto.Event, error) {
	ch := make(chan proto.Event, 1)
	if err := c.sess.ScheduleRequest(cmd, func(ev proto.Event) { ch <- ev }); err != nil {
		return proto.Event{}, err
	}
	return <-ch, nil
}

// pollEvents drains the server-side event queue. Each poll keeps asking
// until the server reports the queue empty, then sleeps one interval.
func (c *gameClient) pollEvents(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(pollInterval):
		}
		for {
			ev, err := c.call(proto.NewCommand(proto.CmdQueryEvent))
			if err != nil || ev.Name == proto.EventNone {
				break
			}
			c.printEvent(ev)
		}
	}
}

func (c *gameClient) printEvent(ev proto.Event) {
	switch ev.Name {
	case proto.EventBroadcast:
		from, _ := ev.ParamString(proto.ParamFrom)
		text, _ := ev.ArgString(0)
		fmt.Printf("\n[%s] %s\n> ", from, text)
	case proto.EventBattle:
		from, _ := ev.ParamString(proto.ParamFrom)
		fmt.Printf("\n%s drew you into a battle!\n> ", from)
		c.mu.Lock()
		c.rounds = 0
		c.mu.Unlock()
	case proto.EventHealthDrop:
		player, _ := ev.ParamString(proto.ParamPlayer)
		drop, _ := ev.ParamInt(proto.ParamDrop)
		c.mu.Lock()
		c.rounds++
		rounds := c.rounds
		c.mu.Unlock()
		fmt.Printf("\n%s lost %d health (round %d)\n> ", player, drop, rounds)
	case proto.EventGameEnd:
		fmt.Print("\nthe battle is over\n> ")
		c.clearBattle()
	case proto.EventMessage:
		text, _ := ev.ArgString(0)
		if text == "game-end" {
			fmt.Print("\nyour opponent left the battle\n> ")
			c.clearBattle()
			return
		}
		fmt.Printf("\nserver: %s\n> ", text)
	case proto.EventCure:
		healed, _ := ev.ArgInt(0)
		cause, _ := ev.ParamString(proto.ParamCause)
		fmt.Printf("\n%s (+%d health)\n> ", cause, healed)
	case proto.EventFuck:
		fucker, _ := ev.ParamString(proto.ParamFucker)
		fmt.Printf("\n%s fucked you for 1 health\n> ", fucker)
	default:
		fmt.Printf("\nevent %s %v\n> ", ev.Name, ev.Args)
	}
}

func (c *gameClient) clearBattle() {
	c.mu.Lock()
	c.gameID = 0
	c.rounds = 0
	c.mu.Unlock()
}

// run executes one typed line. Returns true when the client should exit.
func (c *gameClient) run(line string) bool {
	fields := strings.Fields(line)
	verb, rest := fields[0], fields[1:]

	switch verb {
	case "help":
		fmt.Println(`say <text>        chat to everyone
players           list online players
store             list store items
buy <item>        buy and use a store item
map               print the game map
battle <player>   start a battle
escape            escape the current battle
resurrect         come back from the dead
cure              heal yourself a little
fuck              annoy everyone else
sync              show your own state
quit              log out and exit`)
	case "say":
		if len(rest) == 0 {
			fmt.Println("say what?")
			return false
		}
		c.expectOK(proto.NewCommand(proto.CmdSay, strings.Join(rest, " ")))
	case "players":
		reply, err := c.call(proto.NewCommand(proto.CmdListPlayers))
		if c.rejected(reply, err) {
			return false
		}
		var players []playerView
		if err := reply.ArgJSON(0, &players); err != nil {
			fmt.Println("bad reply:", err)
			return false
		}
		for _, p := range players {
			fmt.Printf("  %-12s %d/%d hp at (%.0f, %.0f)\n",
				p.Name, p.Health, p.MaxHealth, p.Position.X, p.Position.Y)
		}
	case "store":
		reply, err := c.call(proto.NewCommand(proto.CmdListStoreItems))
		if c.rejected(reply, err) {
			return false
		}
		var items []storeItemView
		if err := reply.ArgJSON(0, &items); err != nil {
			fmt.Println("bad reply:", err)
			return false
		}
		for _, item := range items {
			fmt.Printf("  %-10s $%d  heals %d  %s\n", item.Name, item.Price, item.Heal, item.Description)
		}
	case "buy":
		if len(rest) != 1 {
			fmt.Println("buy <item>")
			return false
		}
		c.expectOK(proto.NewCommand(proto.CmdBuy, rest[0]))
	case "map":
		reply, err := c.call(proto.NewCommand(proto.CmdGetGameMap))
		if c.rejected(reply, err) {
			return false
		}
		var m gameMapView
		if err := reply.ArgJSON(0, &m); err != nil {
			fmt.Println("bad reply:", err)
			return false
		}
		for _, row := range m.Rows {
			fmt.Println(row)
		}
	case "battle":
		if len(rest) != 1 {
			fmt.Println("battle <player>")
			return false
		}
		reply, err := c.call(proto.NewCommand(proto.CmdBattle, rest[0]))
		if c.rejected(reply, err) {
			return false
		}
		id, err := reply.ParamUint(proto.ParamGameID)
		if err != nil {
			fmt.Println("bad reply:", err)
			return false
		}
		c.mu.Lock()
		c.gameID = id
		c.rounds = 0
		c.mu.Unlock()
		fmt.Printf("battle %d started against %s\n", id, rest[0])
	case "escape":
		c.mu.Lock()
		id := c.gameID
		c.mu.Unlock()
		if id == 0 {
			fmt.Println("you are not in a battle you started")
			return false
		}
		cmd := proto.NewCommand(proto.CmdEscape)
		cmd.SetParam(proto.ParamGameID, id)
		if c.expectOK(cmd) {
			fmt.Println("you escaped")
			c.clearBattle()
		}
	case "resurrect":
		c.expectOK(proto.NewCommand(proto.CmdResurrect))
	case "cure":
		c.expectOK(proto.NewCommand(proto.CmdCure))
	case "fuck":
		c.expectOK(proto.NewCommand(proto.CmdFuck))
	case "sync":
		reply, err := c.call(proto.NewCommand(proto.CmdSync))
		if c.rejected(reply, err) {
			return false
		}
		var me playerView
		if err := reply.ArgJSON(0, &me); err != nil {
			fmt.Println("bad reply:", err)
			return false
		}
		fmt.Printf("%s: %d/%d hp, $%d at (%.0f, %.0f)\n",
			me.Name, me.Health, me.MaxHealth, me.Money, me.Position.X, me.Position.Y)
	case "quit", "logout", "exit":
		return true
	default:
		fmt.Printf("unknown command %q, try \"help\"\n", verb)
	}
	return false
}

// expectOK sends the command and prints the rejection reason, if any.
// Returns true when the server replied ok.
func (c *gameClient) expectOK(cmd proto.Command) bool {
	reply, err := c.call(cmd)
	return !c.rejected(reply, err)
}

func (c *gameClient) rejected(reply proto.Event, err error) bool {
	if err != nil {
		fmt.Println("request failed:", err)
		return true
	}
	if reply.Name == proto.EventError {
		msg, _ := reply.ArgString(0)
		fmt.Println(msg)
		return true
	}
	return false
}
