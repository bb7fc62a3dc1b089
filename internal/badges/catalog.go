package badges

import (
	"time"

	"riftledger/internal/riot"
	"riftledger/internal/stats"
)

// Badge is one catalog entry: static metadata plus a pure predicate.
type Badge struct {
	ID            string
	Name          string
	Description   string
	NeedsTimeline bool
	Predicate     func(*Context) bool
}

const (
	teamPlayerShare   = 0.8
	towerBreakerMin   = 3
	comebackDeficit   = 5000
	revengeWindow     = 30 * time.Second
	secondWindWindow  = 90 * time.Second
	secondWindMin     = 2
	lightningWindow   = 10 * time.Second
	lightningKills    = 3
	dragonSlayerMin   = 2
	invaderMin        = 2
	homeGuardMin      = 3
	plateCollectorMin = 3
	laneLeadMinute    = 10
	laneBullyCS       = 20
	earlyLeadGold     = 1000
	shopaholicItems   = 6
	wardHunterMin     = 8
)

// catalog is the fixed, ordered badge table. Evaluation order and output
// order both follow it.
var catalog = [...]Badge{
	{ID: "triple-threat", Name: "Triple Threat", Description: "Highest gold, damage and level in the game", NeedsTimeline: false, Predicate: tripleThreat},
	{ID: "vision-keeper", Name: "Vision Keeper", Description: "Highest vision score in the game", NeedsTimeline: false, Predicate: visionKeeper},
	{ID: "frontline", Name: "Frontline", Description: "Took the most damage on your team", NeedsTimeline: false, Predicate: frontline},
	{ID: "farm-lord", Name: "Farm Lord", Description: "Most CS in the game", NeedsTimeline: false, Predicate: farmLord},
	{ID: "flawless", Name: "Flawless", Description: "Won without dying", NeedsTimeline: false, Predicate: flawless},
	{ID: "pentakill", Name: "Pentakill", Description: "Scored a pentakill", NeedsTimeline: false, Predicate: pentakill},
	{ID: "team-player", Name: "Team Player", Description: "Involved in at least 80% of your team's kills", NeedsTimeline: false, Predicate: teamPlayer},
	{ID: "first-blood", Name: "First Blood", Description: "Drew first blood", NeedsTimeline: false, Predicate: firstBlood},
	{ID: "tower-breaker", Name: "Tower Breaker", Description: "Took down 3 or more turrets", NeedsTimeline: false, Predicate: towerBreaker},
	{ID: "comeback", Name: "Comeback", Description: "Won after trailing by 5000 gold", NeedsTimeline: true, Predicate: comeback},
	{ID: "revenge", Name: "Revenge", Description: "Killed your killer within 30 seconds", NeedsTimeline: true, Predicate: revenge},
	{ID: "second-wind", Name: "Second Wind", Description: "Two takedowns within 90 seconds of dying", NeedsTimeline: true, Predicate: secondWind},
	{ID: "lightning-round", Name: "Lightning Round", Description: "Three kills within 10 seconds", NeedsTimeline: true, Predicate: lightningRound},
	{ID: "dragon-slayer", Name: "Dragon Slayer", Description: "Landed the killing blow on 2 or more dragons", NeedsTimeline: true, Predicate: dragonSlayer},
	{ID: "baron-caller", Name: "Baron Caller", Description: "Landed the killing blow on Baron Nashor", NeedsTimeline: true, Predicate: baronCaller},
	{ID: "invader", Name: "Invader", Description: "Two or more kills in the enemy jungle", NeedsTimeline: true, Predicate: invader},
	{ID: "tower-diver", Name: "Tower Diver", Description: "Scored a kill inside the enemy base", NeedsTimeline: true, Predicate: towerDiver},
	{ID: "home-guard", Name: "Home Guard", Description: "Three or more kills inside your own base", NeedsTimeline: true, Predicate: homeGuard},
	{ID: "overextended", Name: "Overextended", Description: "Died inside the enemy fountain", NeedsTimeline: true, Predicate: overextended},
	{ID: "plate-collector", Name: "Plate Collector", Description: "Took 3 or more turret plates", NeedsTimeline: true, Predicate: plateCollector},
	{ID: "lane-bully", Name: "Lane Bully", Description: "Up 20 CS on your lane opponent at 10 minutes", NeedsTimeline: true, Predicate: laneBully},
	{ID: "early-lead", Name: "Early Lead", Description: "Up 1000 gold on your lane opponent at 10 minutes", NeedsTimeline: true, Predicate: earlyLead},
	{ID: "shopaholic", Name: "Shopaholic", Description: "Bought 6 or more completed items", NeedsTimeline: true, Predicate: shopaholic},
	{ID: "ward-hunter", Name: "Ward Hunter", Description: "Destroyed 8 or more wards", NeedsTimeline: true, Predicate: wardHunter},
	{ID: "ace", Name: "Ace", Description: "Landed the kill that aced the enemy team", NeedsTimeline: true, Predicate: aceKill},
	// The event schema carries no per-ability damage attribution, so these
	// three can never be detected.
	{ID: "smite-steal", Name: "Smite Steal", Description: "Stole an epic monster with Smite", NeedsTimeline: true, Predicate: never},
	{ID: "skillshot-sniper", Name: "Skillshot Sniper", Description: "Landed a long-range skillshot kill", NeedsTimeline: true, Predicate: never},
	{ID: "ultimate-impact", Name: "Ultimate Impact", Description: "Turned a fight with your ultimate", NeedsTimeline: true, Predicate: never},
}

// Catalog returns a copy of the badge table in evaluation order.
func Catalog() []Badge {
	out := make([]Badge, len(catalog))
	copy(out, catalog[:])
	return out
}

func tripleThreat(c *Context) bool {
	all := c.Participants()
	return c.isTop(all, func(p *riot.MatchParticipant) int { return p.GoldEarned }) &&
		c.isTop(all, func(p *riot.MatchParticipant) int { return p.TotalDamageDealtToChampions }) &&
		c.isTop(all, func(p *riot.MatchParticipant) int { return p.ChampLevel })
}

func visionKeeper(c *Context) bool {
	return c.isTop(c.Participants(), func(p *riot.MatchParticipant) int { return p.VisionScore })
}

func frontline(c *Context) bool {
	return c.isTop(c.Team(c.Subject.TeamID), func(p *riot.MatchParticipant) int { return p.TotalDamageTaken })
}

func farmLord(c *Context) bool {
	return c.isTop(c.Participants(), func(p *riot.MatchParticipant) int { return p.CS() })
}

func flawless(c *Context) bool {
	return c.Subject.Win && c.Subject.Deaths == 0
}

func pentakill(c *Context) bool {
	return c.Subject.PentaKills > 0
}

func teamPlayer(c *Context) bool {
	var teamKills int
	for _, p := range c.Team(c.Subject.TeamID) {
		teamKills += p.Kills
	}
	if teamKills == 0 {
		return false
	}
	return float64(c.Subject.Kills+c.Subject.Assists)/float64(teamKills) >= teamPlayerShare
}

func firstBlood(c *Context) bool {
	return c.Subject.FirstBloodKill
}

func towerBreaker(c *Context) bool {
	return c.Subject.TurretTakedowns >= towerBreakerMin
}

func comeback(c *Context) bool {
	if !c.Subject.Win || !c.HasTimeline() {
		return false
	}
	team, enemy := c.Subject.TeamID, stats.EnemyTeam(c.Subject.TeamID)
	for i := range c.Timeline.Info.Frames {
		frame := &c.Timeline.Info.Frames[i]
		if c.teamGold(frame, enemy)-c.teamGold(frame, team) >= comebackDeficit {
			return true
		}
	}
	return false
}

func revenge(c *Context) bool {
	window := revengeWindow.Milliseconds()
	for _, death := range c.DeathsOf(c.SubjectID) {
		for _, k := range c.KillsBy(c.SubjectID) {
			if k.VictimID == death.KillerID && k.Timestamp > death.Timestamp && k.Timestamp-death.Timestamp <= window {
				return true
			}
		}
	}
	return false
}

func secondWind(c *Context) bool {
	window := secondWindWindow.Milliseconds()
	takedowns := c.TakedownsBy(c.SubjectID)
	for _, death := range c.DeathsOf(c.SubjectID) {
		var n int
		for _, td := range takedowns {
			if td.Timestamp > death.Timestamp && td.Timestamp-death.Timestamp <= window {
				n++
			}
		}
		if n >= secondWindMin {
			return true
		}
	}
	return false
}

func lightningRound(c *Context) bool {
	kills := c.KillsBy(c.SubjectID)
	window := lightningWindow.Milliseconds()
	for i := 0; i+lightningKills-1 < len(kills); i++ {
		if kills[i+lightningKills-1].Timestamp-kills[i].Timestamp <= window {
			return true
		}
	}
	return false
}

func dragonSlayer(c *Context) bool {
	return c.countWhere(riot.EventEliteMonsterKill, func(ev riot.TimelineEvent) bool {
		return ev.KillerID == c.SubjectID && ev.MonsterType == riot.MonsterDragon
	}) >= dragonSlayerMin
}

func baronCaller(c *Context) bool {
	return c.countWhere(riot.EventEliteMonsterKill, func(ev riot.TimelineEvent) bool {
		return ev.KillerID == c.SubjectID && ev.MonsterType == riot.MonsterBaron
	}) > 0
}

func invader(c *Context) bool {
	team := c.Subject.TeamID
	return c.killsWhere(func(p riot.Position) bool { return stats.InEnemyJungle(team, p) }) >= invaderMin
}

func towerDiver(c *Context) bool {
	enemy := stats.EnemyTeam(c.Subject.TeamID)
	return c.killsWhere(func(p riot.Position) bool { return stats.InBase(enemy, p) }) > 0
}

func homeGuard(c *Context) bool {
	team := c.Subject.TeamID
	return c.killsWhere(func(p riot.Position) bool { return stats.InBase(team, p) }) >= homeGuardMin
}

func overextended(c *Context) bool {
	enemy := stats.EnemyTeam(c.Subject.TeamID)
	for _, death := range c.DeathsOf(c.SubjectID) {
		if death.Position != nil && stats.InFountain(enemy, *death.Position) {
			return true
		}
	}
	return false
}

func plateCollector(c *Context) bool {
	return c.countWhere(riot.EventTurretPlateDestroyed, func(ev riot.TimelineEvent) bool {
		return ev.KillerID == c.SubjectID
	}) >= plateCollectorMin
}

func laneBully(c *Context) bool {
	lead, ok := c.laneLeadAt(laneLeadMinute, riot.ParticipantFrame.CS)
	return ok && lead >= laneBullyCS
}

func earlyLead(c *Context) bool {
	lead, ok := c.laneLeadAt(laneLeadMinute, func(pf riot.ParticipantFrame) int { return pf.TotalGold })
	return ok && lead >= earlyLeadGold
}

func shopaholic(c *Context) bool {
	if !c.HasTimeline() {
		return false
	}
	return len(riot.ExtractBuildOrder(c.Timeline, c.SubjectID)) >= shopaholicItems
}

func wardHunter(c *Context) bool {
	return c.countWhere(riot.EventWardKill, func(ev riot.TimelineEvent) bool {
		return ev.KillerID == c.SubjectID
	}) >= wardHunterMin
}

func aceKill(c *Context) bool {
	return c.countWhere(riot.EventChampionSpecialKill, func(ev riot.TimelineEvent) bool {
		return ev.KillerID == c.SubjectID && ev.KillType == riot.KillTypeAce
	}) > 0
}

func never(*Context) bool { return false }
