package server

import "strings"

// GameMap is the read-only shared map handed to clients on get-game-map. The
// core never mutates it; clients render the rows as character lines.
type GameMap struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Rows   []string `json:"rows"`
}

// DefaultGameMap builds the fixed arena: a walled rectangle of open floor.
func DefaultGameMap() GameMap {
	rows := make([]string, mapHeight)
	for y := range rows {
		if y == 0 || y == mapHeight-1 {
			rows[y] = strings.Repeat("#", mapWidth)
			continue
		}
		rows[y] = "#" + strings.Repeat(".", mapWidth-2) + "#"
	}
	return GameMap{Width: mapWidth, Height: mapHeight, Rows: rows}
}

// walkable reports whether a position is open floor.
func (m GameMap) walkable(p Position) bool {
	if p.Y < 0 || p.Y >= len(m.Rows) {
		return false
	}
	row := m.Rows[p.Y]
	if p.X < 0 || p.X >= len(row) {
		return false
	}
	return row[p.X] == '.'
}
