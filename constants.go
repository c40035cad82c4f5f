package server

import "time"

const (
	// battleTurnInterval is the pacing of turn resolution; one attack
	// lands per interval.
	battleTurnInterval = time.Second

	// escapeRoundGate is the number of resolved attacks a battle must see
	// before a participant may escape. A round is one single attack, the
	// same unit the client counts health-drop events in.
	escapeRoundGate = 6

	playerMaxHealth   = 20
	playerDefense     = 3
	playerStartMoney  = 10
	playerDamageMin   = 1
	playerDamageMax   = 20
	playerCritRate    = 0.1
	playerSightRange  = 10.0
	cureCommandAmount = 5

	mapWidth  = 16
	mapHeight = 8
)
