package stats

import (
	"testing"

	"riftledger/internal/riot"
)

func TestZones(t *testing.T) {
	tests := []struct {
		name string
		fn   func(int, riot.Position) bool
		team int
		pos  riot.Position
		want bool
	}{
		{"blue fountain", InFountain, TeamBlue, riot.Position{X: 500, Y: 400}, true},
		{"blue base not fountain", InFountain, TeamBlue, riot.Position{X: 3000, Y: 3000}, false},
		{"blue base", InBase, TeamBlue, riot.Position{X: 3000, Y: 3000}, true},
		{"red fountain", InFountain, TeamRed, riot.Position{X: 14300, Y: 14200}, true},
		{"red base", InBase, TeamRed, riot.Position{X: 11500, Y: 11000}, true},
		{"mid lane not base", InBase, TeamRed, riot.Position{X: 7400, Y: 7400}, false},
		{"blue side", OnSide, TeamBlue, riot.Position{X: 4000, Y: 8000}, true},
		{"red side", OnSide, TeamRed, riot.Position{X: 9000, Y: 8000}, true},
		{"red jungle for blue", InEnemyJungle, TeamBlue, riot.Position{X: 9800, Y: 7000}, true},
		{"own jungle for blue", InEnemyJungle, TeamBlue, riot.Position{X: 3800, Y: 8000}, false},
		{"enemy base is not jungle", InEnemyJungle, TeamBlue, riot.Position{X: 12000, Y: 12000}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.team, tt.pos); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func minuteFrames(n int) []riot.TimelineFrame {
	frames := make([]riot.TimelineFrame, n)
	for i := range frames {
		frames[i].Timestamp = int64(i) * 60000
	}
	return frames
}

func TestNearestFrameIndex(t *testing.T) {
	// Real timelines drift a few ms per frame and end with a partial frame.
	drifted := []riot.TimelineFrame{{Timestamp: 0}, {Timestamp: 60017}, {Timestamp: 120034}, {Timestamp: 141250}}

	tests := []struct {
		name   string
		frames []riot.TimelineFrame
		ts     int64
		want   int
	}{
		{"start", minuteFrames(10), 0, 0},
		{"just before midpoint", minuteFrames(10), 29999, 0},
		{"midpoint goes later", minuteFrames(10), 30000, 1},
		{"near minute ten", minuteFrames(20), 610000, 10},
		{"past the end", minuteFrames(10), 900000, 9},
		{"negative", minuteFrames(3), -500, 0},
		{"no frames", nil, 1000, -1},
		{"drifted frame", drifted, 60000, 1},
		{"short last frame", drifted, 135000, 3},
		{"before short last frame", drifted, 128000, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NearestFrameIndex(tt.frames, tt.ts); got != tt.want {
				t.Errorf("NearestFrameIndex(%d) = %d, want %d", tt.ts, got, tt.want)
			}
		})
	}
}

func TestPositionAt_UsesFrameTimestamps(t *testing.T) {
	tl := &riot.TimelineResponse{}
	tl.Info.Frames = []riot.TimelineFrame{{Timestamp: 0}, {Timestamp: 60000}, {Timestamp: 95000}}
	for i, x := range []int{100, 200, 300} {
		tl.Info.Frames[i].ParticipantFrames = map[string]riot.ParticipantFrame{
			"1": {Position: &riot.Position{X: x, Y: x}},
		}
	}

	// Minute rounding would pick frame 1 for 90s; the final frame is closer.
	pos, ok := PositionAt(tl, 1, 90000)
	if !ok {
		t.Fatal("expected a position")
	}
	if pos.X != 300 {
		t.Errorf("PositionAt(90000).X = %d, want 300", pos.X)
	}
}
