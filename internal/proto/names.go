package proto

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// Command names understood by the server.
const (
	CmdLogin          = "login"
	CmdLogout         = "logout"
	CmdSync           = "sync"
	CmdSay            = "say"
	CmdListPlayers    = "list-players"
	CmdListStoreItems = "list-store-items"
	CmdGetGameMap     = "get-game-map"
	CmdBuy            = "buy"
	CmdBattle         = "battle"
	CmdEscape         = "escape"
	CmdResurrect      = "resurrect"
	CmdQueryEvent     = "query-event"
	CmdCure           = "cure"
	CmdFuck           = "fuck"
)

// Reply and push event names.
const (
	EventOK         = "ok"
	EventError      = "error"
	EventNone       = "none"
	EventBroadcast  = "broadcast"
	EventBattle     = "battle"
	EventCure       = "cure"
	EventFuck       = "fuck"
	EventHealthDrop = "health-drop"
	EventGameEnd    = "game-end"
	EventMessage    = "message"
)

// Well-known parameter names.
const (
	ParamGameID = "game-id"
	ParamFrom   = "from"
	ParamPlayer = "player"
	ParamDrop   = "drop"
	ParamCause  = "cause"
	ParamFucker = "fucker"
)
