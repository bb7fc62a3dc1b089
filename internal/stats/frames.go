package stats

import (
	"sort"

	"riftledger/internal/riot"
)

// NearestFrameIndex returns the index of the frame whose timestamp is closest
// to timestampMs, preferring the later frame on a tie. Frames are in timeline
// order; the last one is usually cut short at game end. Returns -1 when there
// are none.
func NearestFrameIndex(frames []riot.TimelineFrame, timestampMs int64) int {
	if len(frames) == 0 {
		return -1
	}
	i := sort.Search(len(frames), func(i int) bool { return frames[i].Timestamp >= timestampMs })
	switch {
	case i == 0:
		return 0
	case i == len(frames):
		return len(frames) - 1
	}
	if timestampMs-frames[i-1].Timestamp < frames[i].Timestamp-timestampMs {
		return i - 1
	}
	return i
}

// FrameAtMinute returns the frame for a minute index, or the last frame when
// the match ended earlier.
func FrameAtMinute(tl *riot.TimelineResponse, minute int) (*riot.TimelineFrame, bool) {
	frames := tl.Info.Frames
	if len(frames) == 0 || minute < 0 {
		return nil, false
	}
	if minute >= len(frames) {
		minute = len(frames) - 1
	}
	return &frames[minute], true
}

// NearestFrame returns the frame closest to a timestamp.
func NearestFrame(tl *riot.TimelineResponse, timestampMs int64) (*riot.TimelineFrame, bool) {
	idx := NearestFrameIndex(tl.Info.Frames, timestampMs)
	if idx < 0 {
		return nil, false
	}
	return &tl.Info.Frames[idx], true
}

// PositionAt is the participant's position in the frame nearest to a timestamp.
func PositionAt(tl *riot.TimelineResponse, participantID int, timestampMs int64) (riot.Position, bool) {
	frame, ok := NearestFrame(tl, timestampMs)
	if !ok {
		return riot.Position{}, false
	}
	pf, ok := frame.Participant(participantID)
	if !ok || pf.Position == nil {
		return riot.Position{}, false
	}
	return *pf.Position, true
}

// Events flattens all frames' events in timeline order.
func Events(tl *riot.TimelineResponse) []riot.TimelineEvent {
	var n int
	for i := range tl.Info.Frames {
		n += len(tl.Info.Frames[i].Events)
	}
	out := make([]riot.TimelineEvent, 0, n)
	for i := range tl.Info.Frames {
		out = append(out, tl.Info.Frames[i].Events...)
	}
	return out
}
