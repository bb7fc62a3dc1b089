package store

import (
	"context"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"riftledger/internal/stats"
)

type rowScanner interface {
	Scan(dest ...any) error
}

type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// backend adapts a driver (database/sql or pgx) to the shared queries.
// Queries are written with "?" placeholders; backends rebind as needed.
type backend interface {
	exec(ctx context.Context, q string, args ...any) error
	queryRow(ctx context.Context, q string, args ...any) rowScanner
	query(ctx context.Context, q string, args ...any) (rowIterator, error)
	noRows(err error) bool
}

// records implements Store on top of any backend.
type records struct {
	db backend
}

var lookupQuery = func() string {
	conds := make([]string, len(RequiredColumns))
	for i, col := range RequiredColumns {
		conds[i] = col + " IS NOT NULL"
	}
	return "SELECT (" + strings.Join(conds, " AND ") + ") FROM matches WHERE match_id = ?"
}()

func (r *records) Lookup(ctx context.Context, matchID string) (Completeness, error) {
	var complete bool
	err := r.db.queryRow(ctx, lookupQuery, matchID).Scan(&complete)
	if r.db.noRows(err) {
		return Absent, nil
	}
	if err != nil {
		return Absent, errors.Wrapf(err, "lookup %s", matchID)
	}
	if complete {
		return Complete, nil
	}
	return Incomplete, nil
}

func (r *records) KnownMatchIDs(ctx context.Context, puuid string) ([]string, error) {
	q := `SELECT match_id FROM matches`
	var args []any
	if puuid != "" {
		q += ` WHERE puuid = ?`
		args = append(args, puuid)
	}
	return r.strings(ctx, "known match ids", q+` ORDER BY game_creation DESC`, args...)
}

func (r *records) CreationBounds(ctx context.Context, puuid string) (Bounds, bool, error) {
	var oldest, newest *int64
	err := r.db.queryRow(ctx,
		`SELECT MIN(game_creation), MAX(game_creation) FROM matches WHERE puuid = ? AND game_creation IS NOT NULL`,
		puuid).Scan(&oldest, &newest)
	if err != nil {
		return Bounds{}, false, errors.Wrap(err, "creation bounds")
	}
	if oldest == nil || newest == nil {
		return Bounds{}, false, nil
	}
	return Bounds{Oldest: *oldest, Newest: *newest}, true, nil
}

const upsertMatchQuery = `INSERT INTO matches (
	match_id, puuid, queue_id, game_creation, game_duration, game_version,
	raw_detail, raw_timeline,
	champion_id, champion_name, team_position, win,
	kills, deaths, assists, gold_earned, cs, damage_to_champions, damage_taken, vision_score,
	turret_takedowns, dragon_kills, baron_kills, items, primary_style, sub_style, keystone,
	cs_diff_15, gold_diff_15, xp_diff_15, first_blood, damage_gold_ratio, isolated_deaths, objective_rate,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (match_id) DO UPDATE SET
	puuid = excluded.puuid,
	queue_id = excluded.queue_id,
	game_creation = excluded.game_creation,
	game_duration = excluded.game_duration,
	game_version = excluded.game_version,
	raw_detail = excluded.raw_detail,
	raw_timeline = COALESCE(excluded.raw_timeline, matches.raw_timeline),
	champion_id = excluded.champion_id,
	champion_name = excluded.champion_name,
	team_position = excluded.team_position,
	win = excluded.win,
	kills = excluded.kills,
	deaths = excluded.deaths,
	assists = excluded.assists,
	gold_earned = excluded.gold_earned,
	cs = excluded.cs,
	damage_to_champions = excluded.damage_to_champions,
	damage_taken = excluded.damage_taken,
	vision_score = excluded.vision_score,
	turret_takedowns = excluded.turret_takedowns,
	dragon_kills = excluded.dragon_kills,
	baron_kills = excluded.baron_kills,
	items = excluded.items,
	primary_style = excluded.primary_style,
	sub_style = excluded.sub_style,
	keystone = excluded.keystone,
	cs_diff_15 = COALESCE(excluded.cs_diff_15, matches.cs_diff_15),
	gold_diff_15 = COALESCE(excluded.gold_diff_15, matches.gold_diff_15),
	xp_diff_15 = COALESCE(excluded.xp_diff_15, matches.xp_diff_15),
	first_blood = excluded.first_blood,
	damage_gold_ratio = excluded.damage_gold_ratio,
	isolated_deaths = COALESCE(excluded.isolated_deaths, matches.isolated_deaths),
	objective_rate = COALESCE(excluded.objective_rate, matches.objective_rate),
	updated_at = excluded.updated_at`

// UpsertMatch inserts or replaces a match keyed by id. A stored timeline and
// the timeline-derived fields survive an update that carries none.
func (r *records) UpsertMatch(ctx context.Context, rec *MatchRecord) error {
	items, err := json.Marshal(rec.Items[:])
	if err != nil {
		return errors.Wrap(err, "encode items")
	}
	d := rec.Derived
	err = r.db.exec(ctx, upsertMatchQuery,
		rec.MatchID, rec.PUUID, rec.QueueID, rec.GameCreation, rec.GameDuration, rec.GameVersion,
		nullBytes(rec.RawDetail), nullBytes(rec.RawTimeline),
		rec.ChampionID, rec.ChampionName, rec.TeamPosition, rec.Win,
		rec.Kills, rec.Deaths, rec.Assists, rec.GoldEarned, rec.CS, rec.DamageToChampions, rec.DamageTaken, rec.VisionScore,
		rec.TurretTakedowns, rec.DragonKills, rec.BaronKills, string(items), rec.PrimaryStyle, rec.SubStyle, rec.Keystone,
		d.CSDiff15, d.GoldDiff15, d.XPDiff15, d.FirstBlood, d.DamageGoldRatio, d.IsolatedDeaths, d.ObjectiveRate,
		nowMillis(),
	)
	return errors.Wrapf(err, "upsert match %s", rec.MatchID)
}

const summaryColumns = `match_id, COALESCE(puuid, ''), COALESCE(queue_id, 0), COALESCE(game_creation, 0),
	COALESCE(game_duration, 0), COALESCE(game_version, ''),
	COALESCE(champion_id, 0), COALESCE(champion_name, ''), COALESCE(team_position, ''), COALESCE(win, FALSE),
	COALESCE(kills, 0), COALESCE(deaths, 0), COALESCE(assists, 0), COALESCE(gold_earned, 0), COALESCE(cs, 0),
	COALESCE(damage_to_champions, 0), COALESCE(damage_taken, 0), COALESCE(vision_score, 0),
	COALESCE(turret_takedowns, 0), COALESCE(dragon_kills, 0), COALESCE(baron_kills, 0),
	COALESCE(items, '[]'), COALESCE(primary_style, 0), COALESCE(sub_style, 0), COALESCE(keystone, 0),
	cs_diff_15, gold_diff_15, xp_diff_15, first_blood, damage_gold_ratio, isolated_deaths, objective_rate,
	COALESCE(updated_at, 0), (raw_timeline IS NOT NULL)`

func scanSummary(row rowScanner, rec *MatchRecord, extra ...any) error {
	var (
		items     string
		updatedAt int64
	)
	d := &rec.Derived
	dest := []any{
		&rec.MatchID, &rec.PUUID, &rec.QueueID, &rec.GameCreation, &rec.GameDuration, &rec.GameVersion,
		&rec.ChampionID, &rec.ChampionName, &rec.TeamPosition, &rec.Win,
		&rec.Kills, &rec.Deaths, &rec.Assists, &rec.GoldEarned, &rec.CS,
		&rec.DamageToChampions, &rec.DamageTaken, &rec.VisionScore,
		&rec.TurretTakedowns, &rec.DragonKills, &rec.BaronKills,
		&items, &rec.PrimaryStyle, &rec.SubStyle, &rec.Keystone,
		&d.CSDiff15, &d.GoldDiff15, &d.XPDiff15, &d.FirstBlood, &d.DamageGoldRatio, &d.IsolatedDeaths, &d.ObjectiveRate,
		&updatedAt, &rec.TimelineStored,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	var slots []int
	if err := json.Unmarshal([]byte(items), &slots); err == nil {
		copy(rec.Items[:], slots)
	}
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return nil
}

func (r *records) GetMatch(ctx context.Context, matchID string) (*MatchRecord, error) {
	var rec MatchRecord
	row := r.db.queryRow(ctx,
		`SELECT `+summaryColumns+`, raw_detail, raw_timeline FROM matches WHERE match_id = ?`, matchID)
	err := scanSummary(row, &rec, &rec.RawDetail, &rec.RawTimeline)
	if r.db.noRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get match %s", matchID)
	}
	return &rec, nil
}

// ListMatches returns matches newest first, without raw payloads.
func (r *records) ListMatches(ctx context.Context, filter ListFilter) ([]MatchRecord, error) {
	var (
		conds []string
		args  []any
	)
	if filter.PUUID != "" {
		conds = append(conds, "puuid = ?")
		args = append(args, filter.PUUID)
	}
	if filter.QueueID > 0 {
		conds = append(conds, "queue_id = ?")
		args = append(args, filter.QueueID)
	}

	var q strings.Builder
	q.WriteString(`SELECT ` + summaryColumns + ` FROM matches`)
	if len(conds) > 0 {
		q.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	q.WriteString(" ORDER BY game_creation DESC")
	if filter.Limit > 0 {
		q.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.query(ctx, q.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "list matches")
	}
	defer rows.Close()

	var out []MatchRecord
	for rows.Next() {
		var rec MatchRecord
		if err := scanSummary(rows, &rec); err != nil {
			return nil, errors.Wrap(err, "scan match")
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate matches")
}

func (r *records) CountMatches(ctx context.Context, puuid string) (int, error) {
	q := `SELECT COUNT(*) FROM matches`
	var args []any
	if puuid != "" {
		q += ` WHERE puuid = ?`
		args = append(args, puuid)
	}
	var n int
	if err := r.db.queryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count matches")
	}
	return n, nil
}

func (r *records) MatchIDsMissingTimeline(ctx context.Context) ([]string, error) {
	return r.strings(ctx, "matches missing timeline",
		`SELECT match_id FROM matches WHERE raw_timeline IS NULL AND raw_detail IS NOT NULL ORDER BY game_creation DESC`)
}

// MatchIDsMissingDerived lists records with a detail payload but no derived
// stats. first_blood is computed from detail alone, so its absence marks a
// record that was never analyzed.
func (r *records) MatchIDsMissingDerived(ctx context.Context) ([]string, error) {
	return r.strings(ctx, "matches missing derived stats",
		`SELECT match_id FROM matches WHERE raw_detail IS NOT NULL AND first_blood IS NULL ORDER BY game_creation DESC`)
}

func (r *records) SetTimeline(ctx context.Context, matchID string, raw []byte) error {
	err := r.db.exec(ctx, `UPDATE matches SET raw_timeline = ?, updated_at = ? WHERE match_id = ?`,
		nullBytes(raw), nowMillis(), matchID)
	return errors.Wrapf(err, "set timeline %s", matchID)
}

func (r *records) UpdateDerived(ctx context.Context, matchID string, d stats.Derived) error {
	err := r.db.exec(ctx, `UPDATE matches SET
		cs_diff_15 = ?, gold_diff_15 = ?, xp_diff_15 = ?, first_blood = ?,
		damage_gold_ratio = ?, isolated_deaths = ?, objective_rate = ?, updated_at = ?
		WHERE match_id = ?`,
		d.CSDiff15, d.GoldDiff15, d.XPDiff15, d.FirstBlood,
		d.DamageGoldRatio, d.IsolatedDeaths, d.ObjectiveRate, nowMillis(),
		matchID)
	return errors.Wrapf(err, "update derived %s", matchID)
}

const rankColumns = `puuid,
	solo_tier, COALESCE(solo_division, ''), COALESCE(solo_lp, 0), COALESCE(solo_wins, 0), COALESCE(solo_losses, 0),
	flex_tier, COALESCE(flex_division, ''), COALESCE(flex_lp, 0), COALESCE(flex_wins, 0), COALESCE(flex_losses, 0),
	fetched_at`

func (r *records) GetRank(ctx context.Context, puuid string) (*RankRecord, error) {
	var (
		rec                RankRecord
		soloTier, flexTier *string
		solo, flex         QueueRank
		fetchedAt          int64
	)
	err := r.db.queryRow(ctx, `SELECT `+rankColumns+` FROM player_ranks WHERE puuid = ?`, puuid).Scan(
		&rec.PUUID,
		&soloTier, &solo.Division, &solo.LP, &solo.Wins, &solo.Losses,
		&flexTier, &flex.Division, &flex.LP, &flex.Wins, &flex.Losses,
		&fetchedAt,
	)
	if r.db.noRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get rank %s", puuid)
	}

	if soloTier != nil {
		solo.Tier = *soloTier
		rec.Solo = &solo
	}
	if flexTier != nil {
		flex.Tier = *flexTier
		rec.Flex = &flex
	}
	rec.FetchedAt = time.UnixMilli(fetchedAt)
	return &rec, nil
}

func (r *records) UpsertRank(ctx context.Context, rec *RankRecord) error {
	solo := queueArgs(rec.Solo)
	flex := queueArgs(rec.Flex)
	args := append([]any{rec.PUUID}, solo...)
	args = append(args, flex...)
	args = append(args, rec.FetchedAt.UnixMilli())

	err := r.db.exec(ctx, `INSERT INTO player_ranks (
		puuid,
		solo_tier, solo_division, solo_lp, solo_wins, solo_losses,
		flex_tier, flex_division, flex_lp, flex_wins, flex_losses,
		fetched_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (puuid) DO UPDATE SET
		solo_tier = excluded.solo_tier,
		solo_division = excluded.solo_division,
		solo_lp = excluded.solo_lp,
		solo_wins = excluded.solo_wins,
		solo_losses = excluded.solo_losses,
		flex_tier = excluded.flex_tier,
		flex_division = excluded.flex_division,
		flex_lp = excluded.flex_lp,
		flex_wins = excluded.flex_wins,
		flex_losses = excluded.flex_losses,
		fetched_at = excluded.fetched_at`, args...)
	return errors.Wrapf(err, "upsert rank %s", rec.PUUID)
}

func queueArgs(q *QueueRank) []any {
	if q == nil {
		return []any{nil, nil, nil, nil, nil}
	}
	return []any{q.Tier, q.Division, q.LP, q.Wins, q.Losses}
}

func (r *records) FreshRankPUUIDs(ctx context.Context, since time.Time) ([]string, error) {
	return r.strings(ctx, "fresh ranks",
		`SELECT puuid FROM player_ranks WHERE fetched_at >= ?`, since.UnixMilli())
}

func (r *records) strings(ctx context.Context, what, q string, args ...any) ([]string, error) {
	rows, err := r.db.query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, what)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, what)
		}
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), what)
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
