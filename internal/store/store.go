// Package store persists match and rank records behind a capability
// interface with SQLite, libSQL (Turso) and PostgreSQL implementations.
package store

import (
	"context"
	"errors"
	"time"

	"riftledger/internal/stats"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("store: record not found")

// RequiredColumns must all be non-null for a stored match to count as
// complete. A record missing any of them is re-fetched on sync.
var RequiredColumns = []string{
	"raw_detail",
	"queue_id",
	"game_creation",
	"champion_name",
	"kills",
	"deaths",
	"assists",
	"gold_earned",
	"vision_score",
}

// Completeness is the state of a stored match as seen by the sync engine.
type Completeness int

const (
	Absent Completeness = iota
	Incomplete
	Complete
)

func (c Completeness) String() string {
	switch c {
	case Incomplete:
		return "incomplete"
	case Complete:
		return "complete"
	default:
		return "absent"
	}
}

// MatchRecord is one match from the subject player's point of view.
type MatchRecord struct {
	MatchID      string
	PUUID        string
	QueueID      int
	GameCreation int64 // epoch ms
	GameDuration int   // seconds
	GameVersion  string

	RawDetail   []byte
	RawTimeline []byte

	ChampionID        int
	ChampionName      string
	TeamPosition      string
	Win               bool
	Kills             int
	Deaths            int
	Assists           int
	GoldEarned        int
	CS                int
	DamageToChampions int
	DamageTaken       int
	VisionScore       int
	TurretTakedowns   int
	DragonKills       int
	BaronKills        int
	Items             [7]int
	PrimaryStyle      int
	SubStyle          int
	Keystone          int

	Derived stats.Derived

	// TimelineStored is set on reads, including list reads that skip payloads.
	TimelineStored bool
	UpdatedAt      time.Time
}

// HasTimeline reports whether a timeline payload is stored.
func (r *MatchRecord) HasTimeline() bool {
	return r.TimelineStored || len(r.RawTimeline) > 0
}

// Bounds is the creation-time range of a player's stored matches (epoch ms).
type Bounds struct {
	Oldest int64
	Newest int64
}

// ListFilter narrows ListMatches. Zero values are ignored.
type ListFilter struct {
	PUUID   string
	QueueID int
	Limit   int
	Offset  int
}

// RankRecord caches one player's ranked standing.
type RankRecord struct {
	PUUID     string
	Solo      *QueueRank
	Flex      *QueueRank
	FetchedAt time.Time
}

// QueueRank is a single queue's standing. A nil *QueueRank means unranked.
type QueueRank struct {
	Tier     string `json:"tier"`
	Division string `json:"division"`
	LP       int    `json:"lp"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
}

// Store is the persistence capability consumed by sync, rank and the HTTP API.
// An empty puuid in KnownMatchIDs and CountMatches means every player.
type Store interface {
	Lookup(ctx context.Context, matchID string) (Completeness, error)
	KnownMatchIDs(ctx context.Context, puuid string) ([]string, error)
	CreationBounds(ctx context.Context, puuid string) (Bounds, bool, error)
	UpsertMatch(ctx context.Context, rec *MatchRecord) error
	GetMatch(ctx context.Context, matchID string) (*MatchRecord, error)
	ListMatches(ctx context.Context, filter ListFilter) ([]MatchRecord, error)
	CountMatches(ctx context.Context, puuid string) (int, error)
	MatchIDsMissingTimeline(ctx context.Context) ([]string, error)
	MatchIDsMissingDerived(ctx context.Context) ([]string, error)
	SetTimeline(ctx context.Context, matchID string, raw []byte) error
	UpdateDerived(ctx context.Context, matchID string, d stats.Derived) error

	GetRank(ctx context.Context, puuid string) (*RankRecord, error)
	UpsertRank(ctx context.Context, rec *RankRecord) error
	FreshRankPUUIDs(ctx context.Context, since time.Time) ([]string, error)

	Close() error
}
