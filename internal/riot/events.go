package riot

// EventKind is the decoded form of a timeline event's "type" field.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventChampionKill
	EventChampionSpecialKill
	EventEliteMonsterKill
	EventBuildingKill
	EventTurretPlateDestroyed
	EventWardPlaced
	EventWardKill
	EventItemPurchased
	EventItemSold
	EventItemDestroyed
	EventItemUndo
	EventSkillLevelUp
	EventLevelUp
	EventDragonSoulGiven
	EventObjectiveBountyPrestart
	EventObjectiveBountyFinish
	EventChampionTransform
	EventPauseEnd
	EventGameEnd
)

var eventKindNames = [...]string{
	EventUnknown:                 "UNKNOWN",
	EventChampionKill:            "CHAMPION_KILL",
	EventChampionSpecialKill:     "CHAMPION_SPECIAL_KILL",
	EventEliteMonsterKill:        "ELITE_MONSTER_KILL",
	EventBuildingKill:            "BUILDING_KILL",
	EventTurretPlateDestroyed:    "TURRET_PLATE_DESTROYED",
	EventWardPlaced:              "WARD_PLACED",
	EventWardKill:                "WARD_KILL",
	EventItemPurchased:           "ITEM_PURCHASED",
	EventItemSold:                "ITEM_SOLD",
	EventItemDestroyed:           "ITEM_DESTROYED",
	EventItemUndo:                "ITEM_UNDO",
	EventSkillLevelUp:            "SKILL_LEVEL_UP",
	EventLevelUp:                 "LEVEL_UP",
	EventDragonSoulGiven:         "DRAGON_SOUL_GIVEN",
	EventObjectiveBountyPrestart: "OBJECTIVE_BOUNTY_PRESTART",
	EventObjectiveBountyFinish:   "OBJECTIVE_BOUNTY_FINISH",
	EventChampionTransform:       "CHAMPION_TRANSFORM",
	EventPauseEnd:                "PAUSE_END",
	EventGameEnd:                 "GAME_END",
}

var eventKindByName = func() map[string]EventKind {
	m := make(map[string]EventKind, len(eventKindNames))
	for kind, name := range eventKindNames {
		m[name] = EventKind(kind)
	}
	return m
}()

// ParseEventKind maps a wire name onto its kind. Unrecognized names decode
// to EventUnknown so new event types never break timeline parsing.
func ParseEventKind(name string) EventKind {
	if kind, ok := eventKindByName[name]; ok {
		return kind
	}
	return EventUnknown
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return eventKindNames[EventUnknown]
	}
	return eventKindNames[k]
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(text []byte) error {
	*k = ParseEventKind(string(text))
	return nil
}

// IsObjective reports whether the event completes a team objective
// (elite monster or structure).
func (k EventKind) IsObjective() bool {
	switch k {
	case EventEliteMonsterKill, EventBuildingKill:
		return true
	default:
		return false
	}
}

// Elite monster types as reported in ELITE_MONSTER_KILL events.
const (
	MonsterDragon     = "DRAGON"
	MonsterBaron      = "BARON_NASHOR"
	MonsterRiftHerald = "RIFTHERALD"
	MonsterHorde      = "HORDE" // Voidgrubs
	MonsterAtakhan    = "ATAKHAN"
)

// Special kill types as reported in CHAMPION_SPECIAL_KILL events.
const (
	KillTypeFirstBlood = "KILL_FIRST_BLOOD"
	KillTypeMulti      = "KILL_MULTI"
	KillTypeAce        = "KILL_ACE"
)
