package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"riftledger/internal/app"
	"riftledger/internal/collector"
	"riftledger/internal/config"
	"riftledger/internal/logger"
	"riftledger/internal/store"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  riftsync sync --riot-id='Player#NA1'     Sync a player's season into the store")
	fmt.Println("  riftsync sync --puuid=PUUID")
	fmt.Println("  riftsync backfill-timelines              Fetch timelines for stored matches lacking one")
	fmt.Println("  riftsync backfill-stats                  Recompute derived stats where missing")
	fmt.Println("  riftsync badges <matchId>                Evaluate badges for a stored match")
	fmt.Println("  riftsync rank <riotId>                   Show a player's cached rank")
	fmt.Println("  riftsync matches [--limit=20]            List stored matches, newest first")
	fmt.Println()
	fmt.Println("Every command accepts --store, --dsn, --log-level and --archive-dir, which")
	fmt.Println("override the environment (.env, RIFT_CONFIG TOML file, then env vars).")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "sync":
		err = runSync(args)
	case "backfill-timelines":
		err = runBackfill(cmd, args)
	case "backfill-stats":
		err = runBackfill(cmd, args)
	case "badges":
		err = runBadges(args)
	case "rank":
		err = runRank(args)
	case "matches":
		err = runMatches(args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// command carries the configuration shared by every subcommand. Flags are
// registered with the loaded configuration as their defaults so they
// override it when given.
type command struct {
	fs      *flag.FlagSet
	cfg     *config.Config
	envFile string
	log     *zap.SugaredLogger
}

func newCommand(name string) (*command, error) {
	envFile := config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&cfg.Store.Driver, "store", cfg.Store.Driver, "store driver (sqlite, libsql, postgres)")
	fs.StringVar(&cfg.Store.DSN, "dsn", cfg.Store.DSN, "store path or URL")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Archive.Dir, "archive-dir", cfg.Archive.Dir, "JSONL archive directory, empty to disable")

	return &command{fs: fs, cfg: cfg, envFile: envFile}, nil
}

func (c *command) parse(args []string) error {
	if err := c.fs.Parse(args); err != nil {
		return err
	}
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log, err := logger.New(c.cfg.Log.Level, c.cfg.Development())
	if err != nil {
		return err
	}
	c.log = log
	if c.envFile != "" {
		log.Debugw("loaded env file", "path", c.envFile)
	}
	return nil
}

// open builds the services. When checkKey is set the API key is validated
// first so an expired key fails before any work starts.
func (c *command) open(checkKey bool) (context.Context, *app.App, error) {
	ctx := collector.SetupSignalHandler(c.log, nil)

	a, err := app.New(ctx, c.cfg, c.log)
	if err != nil {
		return nil, nil, err
	}
	if checkKey {
		if err := a.CheckKey(ctx); err != nil {
			a.Close()
			return nil, nil, err
		}
	}
	return ctx, a, nil
}

func (c *command) close(a *app.App) {
	if err := a.Close(); err != nil {
		c.log.Warnw("close failed", "error", err)
	}
	_ = c.log.Sync()
}

func runSync(args []string) error {
	c, err := newCommand("sync")
	if err != nil {
		return err
	}
	riotID := c.fs.String("riot-id", "", "Riot ID (e.g., 'Player#NA1')")
	puuid := c.fs.String("puuid", "", "player PUUID")
	if err := c.parse(args); err != nil {
		return err
	}
	if (*riotID == "") == (*puuid == "") {
		return errors.New("exactly one of --riot-id or --puuid is required")
	}

	ctx, a, err := c.open(true)
	if err != nil {
		return err
	}
	defer c.close(a)

	var (
		result *collector.SyncResult
		player string
	)
	if *riotID != "" {
		player = *riotID
		fmt.Printf("Syncing %s...\n", player)
		result, err = a.Engine.SyncByRiotID(ctx, *riotID, printProgress)
	} else {
		player = *puuid
		fmt.Printf("Syncing %s...\n", shortID(player))
		result, err = a.Engine.Sync(ctx, *puuid, printProgress)
	}

	if result != nil {
		printSyncResult(result)
	}
	a.NotifySync(context.WithoutCancel(ctx), player, result, err)
	return err
}

func runBackfill(name string, args []string) error {
	c, err := newCommand(name)
	if err != nil {
		return err
	}
	if err := c.parse(args); err != nil {
		return err
	}

	ctx, a, err := c.open(name == "backfill-timelines")
	if err != nil {
		return err
	}
	defer c.close(a)

	var result *collector.BackfillResult
	if name == "backfill-timelines" {
		result, err = a.Engine.BackfillTimelines(ctx, printProgress)
	} else {
		result, err = a.Engine.BackfillAdvancedStats(ctx, printProgress)
	}
	if result != nil {
		fmt.Printf("\n%s: %d updated, %d failed, %d considered\n", name, result.Updated, result.Failed, result.Total)
	}
	return err
}

func runBadges(args []string) error {
	c, err := newCommand("badges")
	if err != nil {
		return err
	}
	if err := c.parse(args); err != nil {
		return err
	}
	matchID := c.fs.Arg(0)
	if matchID == "" {
		return errors.New("usage: riftsync badges <matchId>")
	}

	ctx, a, err := c.open(false)
	if err != nil {
		return err
	}
	defer c.close(a)

	rec, err := a.Store.GetMatch(ctx, matchID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("match %s is not stored; run sync first", matchID)
	}
	if err != nil {
		return err
	}

	earned, err := a.Badges.Evaluate(rec)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s %d/%d/%d\n", rec.MatchID, rec.ChampionName, rec.Kills, rec.Deaths, rec.Assists)
	if !rec.HasTimeline() {
		fmt.Println("  (no timeline stored, timeline badges not evaluated)")
	}
	if len(earned) == 0 {
		fmt.Println("  No badges earned")
		return nil
	}
	for _, b := range earned {
		fmt.Printf("  %-18s %s\n", b.Name, b.Description)
	}
	return nil
}

func runRank(args []string) error {
	c, err := newCommand("rank")
	if err != nil {
		return err
	}
	if err := c.parse(args); err != nil {
		return err
	}
	riotID := c.fs.Arg(0)
	gameName, tagLine, ok := strings.Cut(riotID, "#")
	if !ok || gameName == "" || tagLine == "" {
		return fmt.Errorf("usage: riftsync rank <GameName#TagLine>, got %q", riotID)
	}

	ctx, a, err := c.open(true)
	if err != nil {
		return err
	}
	defer c.close(a)

	account, err := a.Client.GetAccountByRiotID(ctx, gameName, tagLine)
	if err != nil {
		return fmt.Errorf("look up %s: %w", riotID, err)
	}
	fmt.Printf("%s (%s)\n", riotID, shortID(account.PUUID))

	rec, err := a.Ranks.GetPlayerRank(ctx, account.PUUID, c.cfg.RankTTL())
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Println("  Rank unavailable")
		return nil
	}

	printQueue("Solo/Duo", rec.Solo)
	printQueue("Flex", rec.Flex)
	fmt.Printf("  (fetched %s)\n", humanize.Time(rec.FetchedAt))
	return nil
}

func runMatches(args []string) error {
	c, err := newCommand("matches")
	if err != nil {
		return err
	}
	limit := c.fs.Int("limit", 20, "number of matches to show")
	puuid := c.fs.String("puuid", "", "only this player's matches")
	queue := c.fs.Int("queue", 0, "only this queue id")
	if err := c.parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("--limit must be positive")
	}

	ctx, a, err := c.open(false)
	if err != nil {
		return err
	}
	defer c.close(a)

	recs, err := a.Store.ListMatches(ctx, store.ListFilter{PUUID: *puuid, QueueID: *queue, Limit: *limit})
	if err != nil {
		return err
	}
	total, err := a.Store.CountMatches(ctx, *puuid)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MATCH\tPLAYED\tQUEUE\tCHAMPION\tROLE\tRESULT\tKDA\tCS\tGOLD\tTIMELINE")
	for i := range recs {
		r := &recs[i]
		result := "Loss"
		if r.Win {
			result = "Win"
		}
		timeline := "no"
		if r.HasTimeline() {
			timeline = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%d/%d/%d\t%d\t%s\t%s\n",
			r.MatchID,
			humanize.Time(time.UnixMilli(r.GameCreation)),
			r.QueueID,
			r.ChampionName,
			r.TeamPosition,
			result,
			r.Kills, r.Deaths, r.Assists,
			r.CS,
			humanize.Comma(int64(r.GoldEarned)),
			timeline,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nShowing %d of %s stored matches\n", len(recs), humanize.Comma(int64(total)))
	return nil
}

func printProgress(p collector.Progress) {
	if p.MatchID == "" {
		fmt.Printf("  [%s] %d/%d\n", p.Phase, p.Done, p.Total)
		return
	}
	if p.Outcome != "" {
		fmt.Printf("  [%s %d/%d] %s %s\n", p.Phase, p.Done, p.Total, p.MatchID, p.Outcome)
		return
	}
	fmt.Printf("  [%s %d/%d] %s\n", p.Phase, p.Done, p.Total, p.MatchID)
}

func printSyncResult(r *collector.SyncResult) {
	fmt.Println()
	fmt.Printf("Sync finished in %s\n", r.Duration.Round(time.Second))
	fmt.Printf("  New matches:   %d\n", r.NewMatches)
	fmt.Printf("  Updated:       %d\n", r.Updated)
	fmt.Printf("  Skipped:       %d\n", r.Skipped)
	fmt.Printf("  Failed:        %d\n", r.Failed)
	fmt.Printf("  Considered:    %d\n", r.Total)
	fmt.Printf("  Ranks fetched: %d\n", r.RanksFetched)
	if r.OtherSubjectMatches > 0 {
		fmt.Printf("\nWarning: the store also holds %d matches synced for another player.\n", r.OtherSubjectMatches)
		fmt.Println("Matches are keyed by id alone, so a match both players appear in keeps the first player's stats.")
	}
}

func printQueue(name string, q *store.QueueRank) {
	if q == nil {
		fmt.Printf("  %s: Unranked\n", name)
		return
	}
	fmt.Printf("  %s: %s %s (%d LP) - %dW %dL\n", name, q.Tier, q.Division, q.LP, q.Wins, q.Losses)
}

func shortID(puuid string) string {
	if len(puuid) <= 12 {
		return puuid
	}
	return puuid[:8] + "..." + puuid[len(puuid)-4:]
}
