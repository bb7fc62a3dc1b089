package riot

import "strconv"

// AccountResponse represents the response from /riot/account/v1/accounts/by-riot-id
type AccountResponse struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// MatchResponse represents the response from /lol/match/v5/matches/{matchId}
type MatchResponse struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     MatchInfo     `json:"info"`
}

type MatchMetadata struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"` // PUUIDs
}

type MatchInfo struct {
	GameCreation int64              `json:"gameCreation"`
	GameDuration int                `json:"gameDuration"`
	GameVersion  string             `json:"gameVersion"`
	GameMode     string             `json:"gameMode"`
	QueueID      int                `json:"queueId"`
	Participants []MatchParticipant `json:"participants"`
	Teams        []MatchTeam        `json:"teams"`
}

type MatchParticipant struct {
	ParticipantID      int    `json:"participantId"`
	PUUID              string `json:"puuid"`
	RiotIdGameName     string `json:"riotIdGameName"`
	RiotIdTagline      string `json:"riotIdTagline"`
	ChampionID         int    `json:"championId"`
	ChampionName       string `json:"championName"`
	TeamID             int    `json:"teamId"`       // 100 (blue) or 200 (red)
	TeamPosition       string `json:"teamPosition"` // TOP, JUNGLE, MIDDLE, BOTTOM, UTILITY
	IndividualPosition string `json:"individualPosition"`
	Win                bool   `json:"win"`

	Kills                       int  `json:"kills"`
	Deaths                      int  `json:"deaths"`
	Assists                     int  `json:"assists"`
	ChampLevel                  int  `json:"champLevel"`
	GoldEarned                  int  `json:"goldEarned"`
	TotalMinionsKilled          int  `json:"totalMinionsKilled"`
	NeutralMinionsKilled        int  `json:"neutralMinionsKilled"`
	TotalDamageDealtToChampions int  `json:"totalDamageDealtToChampions"`
	TotalDamageTaken            int  `json:"totalDamageTaken"`
	VisionScore                 int  `json:"visionScore"`
	WardsPlaced                 int  `json:"wardsPlaced"`
	WardsKilled                 int  `json:"wardsKilled"`
	TurretTakedowns             int  `json:"turretTakedowns"`
	DragonKills                 int  `json:"dragonKills"`
	BaronKills                  int  `json:"baronKills"`
	PentaKills                  int  `json:"pentaKills"`
	FirstBloodKill              bool `json:"firstBloodKill"`
	FirstBloodAssist            bool `json:"firstBloodAssist"`

	Item0 int `json:"item0"`
	Item1 int `json:"item1"`
	Item2 int `json:"item2"`
	Item3 int `json:"item3"`
	Item4 int `json:"item4"`
	Item5 int `json:"item5"`
	Item6 int `json:"item6"` // Trinket

	Perks Perks `json:"perks"`
}

// CS is lane minions plus jungle monsters.
func (p *MatchParticipant) CS() int {
	return p.TotalMinionsKilled + p.NeutralMinionsKilled
}

// Items returns the seven inventory slots, trinket last.
func (p *MatchParticipant) Items() []int {
	return []int{p.Item0, p.Item1, p.Item2, p.Item3, p.Item4, p.Item5, p.Item6}
}

type Perks struct {
	Styles []PerkStyle `json:"styles"`
}

type PerkStyle struct {
	Description string          `json:"description"` // primaryStyle, subStyle
	Style       int             `json:"style"`
	Selections  []PerkSelection `json:"selections"`
}

type PerkSelection struct {
	Perk int `json:"perk"`
}

// Runes summarizes the rune page: primary tree, secondary tree and keystone.
type Runes struct {
	PrimaryStyle int `json:"primaryStyle"`
	SubStyle     int `json:"subStyle"`
	Keystone     int `json:"keystone"`
}

// Runes extracts the rune page summary from the perk styles.
func (p Perks) Runes() Runes {
	var r Runes
	for _, s := range p.Styles {
		switch s.Description {
		case "primaryStyle":
			r.PrimaryStyle = s.Style
			if len(s.Selections) > 0 {
				r.Keystone = s.Selections[0].Perk
			}
		case "subStyle":
			r.SubStyle = s.Style
		}
	}
	return r
}

type MatchTeam struct {
	TeamID     int            `json:"teamId"`
	Win        bool           `json:"win"`
	Objectives TeamObjectives `json:"objectives"`
}

type TeamObjectives struct {
	Baron    ObjectiveCount `json:"baron"`
	Champion ObjectiveCount `json:"champion"`
	Dragon   ObjectiveCount `json:"dragon"`
	Tower    ObjectiveCount `json:"tower"`
}

type ObjectiveCount struct {
	First bool `json:"first"`
	Kills int  `json:"kills"`
}

// Participant returns the participant with the given PUUID.
func (m *MatchResponse) Participant(puuid string) (*MatchParticipant, bool) {
	for i := range m.Info.Participants {
		if m.Info.Participants[i].PUUID == puuid {
			return &m.Info.Participants[i], true
		}
	}
	return nil, false
}

// TimelineResponse represents the response from /lol/match/v5/matches/{matchId}/timeline
type TimelineResponse struct {
	Metadata TimelineMetadata `json:"metadata"`
	Info     TimelineInfo     `json:"info"`
}

type TimelineMetadata struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"` // PUUIDs
}

type TimelineInfo struct {
	FrameInterval int                   `json:"frameInterval"`
	Frames        []TimelineFrame       `json:"frames"`
	Participants  []TimelineParticipant `json:"participants"`
}

type TimelineParticipant struct {
	ParticipantID int    `json:"participantId"`
	PUUID         string `json:"puuid"`
}

type TimelineFrame struct {
	Timestamp         int64                       `json:"timestamp"`
	Events            []TimelineEvent             `json:"events"`
	ParticipantFrames map[string]ParticipantFrame `json:"participantFrames"`
}

// Participant returns the frame snapshot for an in-match participant id.
func (f *TimelineFrame) Participant(participantID int) (ParticipantFrame, bool) {
	pf, ok := f.ParticipantFrames[strconv.Itoa(participantID)]
	return pf, ok
}

type ParticipantFrame struct {
	ParticipantID       int       `json:"participantId"`
	Position            *Position `json:"position,omitempty"`
	CurrentGold         int       `json:"currentGold"`
	TotalGold           int       `json:"totalGold"`
	XP                  int       `json:"xp"`
	Level               int       `json:"level"`
	MinionsKilled       int       `json:"minionsKilled"`
	JungleMinionsKilled int       `json:"jungleMinionsKilled"`
}

// CS is lane minions plus jungle monsters at this frame.
func (pf ParticipantFrame) CS() int {
	return pf.MinionsKilled + pf.JungleMinionsKilled
}

// Position is a point in Summoner's Rift map units.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type TimelineEvent struct {
	Type                    EventKind `json:"type"`
	Timestamp               int64     `json:"timestamp"`
	ParticipantID           int       `json:"participantId,omitempty"`
	ItemID                  int       `json:"itemId,omitempty"`
	KillerID                int       `json:"killerId,omitempty"`
	VictimID                int       `json:"victimId,omitempty"`
	AssistingParticipantIDs []int     `json:"assistingParticipantIds,omitempty"`
	Position                *Position `json:"position,omitempty"`
	KillerTeamID            int       `json:"killerTeamId,omitempty"`
	TeamID                  int       `json:"teamId,omitempty"` // BUILDING_KILL: team that lost the structure
	MonsterType             string    `json:"monsterType,omitempty"`
	MonsterSubType          string    `json:"monsterSubType,omitempty"`
	BuildingType            string    `json:"buildingType,omitempty"`
	LaneType                string    `json:"laneType,omitempty"`
	KillType                string    `json:"killType,omitempty"`
	MultiKillLength         int       `json:"multiKillLength,omitempty"`
	WardType                string    `json:"wardType,omitempty"`
	CreatorID               int       `json:"creatorId,omitempty"`
	WinningTeam             int       `json:"winningTeam,omitempty"`
}

// Involves reports whether the participant killed or assisted on the event.
func (e *TimelineEvent) Involves(participantID int) bool {
	if e.KillerID == participantID {
		return true
	}
	for _, id := range e.AssistingParticipantIDs {
		if id == participantID {
			return true
		}
	}
	return false
}

// LeagueEntryResponse represents a ranked league entry from /lol/league/v4/entries/by-puuid
type LeagueEntryResponse struct {
	LeagueID     string `json:"leagueId"`
	PUUID        string `json:"puuid"`
	QueueType    string `json:"queueType"` // RANKED_SOLO_5x5, RANKED_FLEX_SR
	Tier         string `json:"tier"`      // IRON, BRONZE, SILVER, GOLD, PLATINUM, EMERALD, DIAMOND, MASTER, GRANDMASTER, CHALLENGER
	Rank         string `json:"rank"`      // I, II, III, IV
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

const (
	QueueTypeSolo = "RANKED_SOLO_5x5"
	QueueTypeFlex = "RANKED_FLEX_SR"
)

// Tier order for comparison (higher index = higher rank)
var TierOrder = map[string]int{
	"IRON":        0,
	"BRONZE":      1,
	"SILVER":      2,
	"GOLD":        3,
	"PLATINUM":    4,
	"EMERALD":     5,
	"DIAMOND":     6,
	"MASTER":      7,
	"GRANDMASTER": 8,
	"CHALLENGER":  9,
}

// Division order (higher index = higher rank within tier)
var DivisionOrder = map[string]int{
	"IV":  0,
	"III": 1,
	"II":  2,
	"I":   3,
}

// RankValue maps a tier/division/LP triple onto a single comparable number.
// Unranked or unknown tiers return -1.
func RankValue(tier, division string, lp int) int {
	tierIdx, ok := TierOrder[tier]
	if !ok {
		return -1
	}
	// Master+ tiers have no division; LP is unbounded there
	if tierIdx >= TierOrder["MASTER"] {
		return tierIdx*400 + lp
	}
	return tierIdx*400 + DivisionOrder[division]*100 + lp
}

// Items that should be excluded from build order (consumables, components, etc.)
var ExcludedItems = map[int]bool{
	// Potions and consumables
	2003: true, // Health Potion
	2031: true, // Refillable Potion
	2033: true, // Corrupting Potion
	2055: true, // Control Ward
	2138: true, // Elixir of Iron
	2139: true, // Elixir of Sorcery
	2140: true, // Elixir of Wrath

	// Trinkets
	3340: true, // Stealth Ward
	3341: true, // Sweeping Lens
	3363: true, // Farsight Alteration
	3364: true, // Oracle Lens

	1001: true, // Boots

	1036: true, // Long Sword
	1037: true, // Pickaxe
	1038: true, // BF Sword
	1052: true, // Amplifying Tome
	1058: true, // Needlessly Large Rod
	1026: true, // Blasting Wand
	1027: true, // Sapphire Crystal
	1028: true, // Ruby Crystal
	1029: true, // Cloth Armor
	1031: true, // Chain Vest
	1033: true, // Null-Magic Mantle
	1057: true, // Negatron Cloak
	1042: true, // Dagger
	1043: true, // Recurve Bow
	1018: true, // Cloak of Agility
	1053: true, // Vampiric Scepter
	1054: true, // Doran's Shield
	1055: true, // Doran's Blade
	1056: true, // Doran's Ring
	1082: true, // Dark Seal
	1083: true, // Cull
}

// IsCompletedItem returns true if the item is a completed item worth tracking
func IsCompletedItem(itemID int) bool {
	if itemID == 0 {
		return false
	}
	if ExcludedItems[itemID] {
		return false
	}
	// Heuristic: completed items sit at 2000+
	return itemID >= 2000
}

// ExtractBuildOrder extracts the completed-item purchase order for a participant.
func ExtractBuildOrder(timeline *TimelineResponse, participantID int) []int {
	var buildOrder []int
	seenItems := make(map[int]bool)

	for _, frame := range timeline.Info.Frames {
		for _, event := range frame.Events {
			if event.Type != EventItemPurchased || event.ParticipantID != participantID {
				continue
			}
			if IsCompletedItem(event.ItemID) && !seenItems[event.ItemID] {
				buildOrder = append(buildOrder, event.ItemID)
				seenItems[event.ItemID] = true
			}
		}
	}

	return buildOrder
}
