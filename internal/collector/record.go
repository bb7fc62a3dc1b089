package collector

import (
	"fmt"

	"riftledger/internal/archive"
	"riftledger/internal/riot"
	"riftledger/internal/stats"
	"riftledger/internal/store"
)

// BuildRecord flattens the subject's view of a match into a store record.
// rawTimeline may be nil; derived fields are computed from whatever is given.
func BuildRecord(puuid string, rawDetail, rawTimeline []byte, computer *stats.Computer) (*store.MatchRecord, error) {
	match, err := riot.DecodeMatch(rawDetail)
	if err != nil {
		return nil, err
	}
	p, ok := match.Participant(puuid)
	if !ok {
		return nil, fmt.Errorf("participant %s not in match %s", puuid, match.Metadata.MatchID)
	}

	rec := &store.MatchRecord{
		MatchID:           match.Metadata.MatchID,
		PUUID:             puuid,
		QueueID:           match.Info.QueueID,
		GameCreation:      match.Info.GameCreation,
		GameDuration:      match.Info.GameDuration,
		GameVersion:       match.Info.GameVersion,
		RawDetail:         rawDetail,
		RawTimeline:       rawTimeline,
		ChampionID:        p.ChampionID,
		ChampionName:      p.ChampionName,
		TeamPosition:      p.TeamPosition,
		Win:               p.Win,
		Kills:             p.Kills,
		Deaths:            p.Deaths,
		Assists:           p.Assists,
		GoldEarned:        p.GoldEarned,
		CS:                p.CS(),
		DamageToChampions: p.TotalDamageDealtToChampions,
		DamageTaken:       p.TotalDamageTaken,
		VisionScore:       p.VisionScore,
		TurretTakedowns:   p.TurretTakedowns,
		DragonKills:       p.DragonKills,
		BaronKills:        p.BaronKills,
	}
	copy(rec.Items[:], p.Items())

	runes := p.Perks.Runes()
	rec.PrimaryStyle = runes.PrimaryStyle
	rec.SubStyle = runes.SubStyle
	rec.Keystone = runes.Keystone

	rec.Derived = computer.Compute(rawDetail, rawTimeline, puuid)
	return rec, nil
}

// Summarize flattens a stored record into the summary shape shared by the
// JSONL archive and the HTTP API. The build order needs the timeline.
func Summarize(rec *store.MatchRecord) archive.Entry {
	e := archive.Entry{
		MatchID:      rec.MatchID,
		PUUID:        rec.PUUID,
		QueueID:      rec.QueueID,
		GameCreation: rec.GameCreation,
		GameDuration: rec.GameDuration,
		GameVersion:  rec.GameVersion,
		ChampionID:   rec.ChampionID,
		ChampionName: rec.ChampionName,
		TeamPosition: rec.TeamPosition,
		Win:          rec.Win,
		Kills:        rec.Kills,
		Deaths:       rec.Deaths,
		Assists:      rec.Assists,
		CS:           rec.CS,
		GoldEarned:   rec.GoldEarned,
		Items:        rec.Items[:],
		BuildOrder:   []int{},
		Derived:      rec.Derived,
	}

	if len(rec.RawTimeline) == 0 {
		return e
	}
	match, err := riot.DecodeMatch(rec.RawDetail)
	if err != nil {
		return e
	}
	tl, err := riot.DecodeTimeline(rec.RawTimeline)
	if err != nil {
		return e
	}
	view, err := stats.NewView(match, tl, rec.PUUID)
	if err != nil {
		return e
	}
	if order := riot.ExtractBuildOrder(tl, view.SubjectID); order != nil {
		e.BuildOrder = order
	}
	return e
}
