package archive

import (
	"riftledger/internal/stats"
)

// Entry is the archived summary of one ingested match.
type Entry struct {
	MatchID      string `json:"matchId"`
	PUUID        string `json:"puuid"`
	QueueID      int    `json:"queueId"`
	GameCreation int64  `json:"gameCreation"`
	GameDuration int    `json:"gameDuration"`
	GameVersion  string `json:"gameVersion"`

	ChampionID   int    `json:"championId"`
	ChampionName string `json:"championName"`
	TeamPosition string `json:"teamPosition"`
	Win          bool   `json:"win"`
	Kills        int    `json:"kills"`
	Deaths       int    `json:"deaths"`
	Assists      int    `json:"assists"`
	CS           int    `json:"cs"`
	GoldEarned   int    `json:"goldEarned"`

	Items []int `json:"items"`
	// Completed items in purchase order; empty without a timeline.
	BuildOrder []int `json:"buildOrder"`

	Derived stats.Derived `json:"derived"`
}
