package stats

import (
	"math"

	"riftledger/internal/riot"
)

const (
	TeamBlue = 100
	TeamRed  = 200
)

// Summoner's Rift runs from (0,0) at the blue fountain to roughly
// (14800,14800) at the red one. Bases and fountains are corner squares.
const (
	blueBaseMax     = 4500
	redBaseMin      = 10500
	blueFountainMax = 2000
	redFountainMin  = 12800

	// RiverDiagonal splits the map: x+y below it is blue side.
	RiverDiagonal = 14800
)

// EnemyTeam returns the opposing team id.
func EnemyTeam(team int) int {
	if team == TeamBlue {
		return TeamRed
	}
	return TeamBlue
}

// InBase reports whether p lies inside the given team's base.
func InBase(team int, p riot.Position) bool {
	if team == TeamBlue {
		return p.X < blueBaseMax && p.Y < blueBaseMax
	}
	return p.X > redBaseMin && p.Y > redBaseMin
}

// InFountain reports whether p lies inside the given team's fountain.
func InFountain(team int, p riot.Position) bool {
	if team == TeamBlue {
		return p.X < blueFountainMax && p.Y < blueFountainMax
	}
	return p.X > redFountainMin && p.Y > redFountainMin
}

// OnSide reports whether p is on the given team's half of the river.
func OnSide(team int, p riot.Position) bool {
	if team == TeamBlue {
		return p.X+p.Y < RiverDiagonal
	}
	return p.X+p.Y > RiverDiagonal
}

// InEnemyJungle reports whether p is on the enemy half and outside both bases.
func InEnemyJungle(team int, p riot.Position) bool {
	enemy := EnemyTeam(team)
	return OnSide(enemy, p) && !InBase(enemy, p) && !InBase(team, p)
}

// Distance is the Euclidean distance in map units.
func Distance(a, b riot.Position) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
