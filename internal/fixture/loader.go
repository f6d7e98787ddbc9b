package fixture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/albapepper/powerdata/internal/config"
	"github.com/albapepper/powerdata/internal/keys"
	"github.com/albapepper/powerdata/internal/ledger"
	"github.com/albapepper/powerdata/internal/provider"
	"github.com/albapepper/powerdata/internal/resolve"
	"github.com/albapepper/powerdata/internal/store"
	"github.com/albapepper/powerdata/internal/telemetry"
)

// Drop reasons reported in Result.Dropped.
const (
	DropUnresolvedPlayer = "unresolved_player"
	DropUnanchored       = "unanchored"
)

// Fetchers are the four upstream tables a fixture load reads.
type Fetchers struct {
	FixtureList provider.Fetcher
	BoxScore    provider.Fetcher
	PeriodStats provider.Fetcher
	ScoreFlow   provider.Fetcher
}

// Options tunes a Loader.
type Options struct {
	Fields       *config.FieldMapping
	SquadPolicy  keys.SquadPolicy
	SkipUnmapped bool
	// FetchParallel bounds concurrent per-match fetches. Values below 1 fetch
	// one match at a time.
	FetchParallel int
	PlayerTable   string
	Policy        FailurePolicy
}

// Loader runs the per-fixture state machine.
type Loader struct {
	store      store.Store
	ledger     ledger.Ledger
	fetch      Fetchers
	classifier provider.Classifier
	opts       Options
	metrics    *telemetry.Recorder
	logger     *slog.Logger
}

// NewLoader wires a Loader. metrics may be nil.
func NewLoader(
	st store.Store,
	l ledger.Ledger,
	f Fetchers,
	c provider.Classifier,
	opts Options,
	metrics *telemetry.Recorder,
	logger *slog.Logger,
) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if st == nil || l == nil || c == nil {
		return nil, errors.New("fixture loader needs a store, a ledger and a classifier")
	}
	if f.FixtureList == nil || f.BoxScore == nil || f.PeriodStats == nil || f.ScoreFlow == nil {
		return nil, errors.New("fixture loader needs all four fetchers")
	}
	if opts.Fields == nil {
		m, err := config.DefaultFieldMapping()
		if err != nil {
			return nil, err
		}
		opts.Fields = m
	}
	if opts.SquadPolicy == "" {
		opts.SquadPolicy = keys.SquadPolicyFold
	}
	if opts.PlayerTable == "" {
		opts.PlayerTable = store.DefaultPlayerTable
	}
	if opts.Policy == nil {
		opts.Policy = DefaultFailurePolicy()
	}
	return &Loader{
		store:      st,
		ledger:     l,
		fetch:      f,
		classifier: c,
		opts:       opts,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// tables are the per-category partitions of one fixture.
type tables struct {
	fixture, match, period, scoreFlow string
}

func tablesFor(lookup string) tables {
	p := keys.TablePrefix(lookup)
	return tables{
		fixture:   p + "_fixture",
		match:     p + "_match",
		period:    p + "_period",
		scoreFlow: p + "_score_flow",
	}
}

// matchData is everything fetched for one match before the transaction.
type matchData struct {
	matchID string
	box     provider.Table
	periods provider.Table
	flow    provider.Table
	usable  bool
}

// matchBatch holds the keyed rows of one match.
type matchBatch struct {
	matchID string
	stats   []provider.Record
	periods []provider.Record
	flow    []provider.Record
}

// plan is the fully assembled write set of a fixture.
type plan struct {
	squads   []provider.Record
	sport    provider.Record
	players  []provider.Record
	fixtures []provider.Record
	matches  []matchBatch
}

// Load runs one fixture to a terminal state. It never returns an error;
// failures are reported through the Result and the ledger.
func (l *Loader) Load(ctx context.Context, t Target) Result {
	start := time.Now()
	if t.FixtureID == "" {
		t.FixtureID = t.LeagueID
	}
	res := Result{
		FixtureID: t.FixtureID,
		LeagueID:  t.LeagueID,
		Title:     t.Title,
		Written:   make(map[Kind]int),
	}

	ctx, span := l.metrics.StartSpan(ctx, "fixture.load",
		attribute.String("fixture_id", t.FixtureID), attribute.String("league_id", t.LeagueID))

	l.logger.Info("Loading fixture", "fixture_id", t.FixtureID, "league_id", t.LeagueID, "title", t.Title)
	l.run(ctx, t, &res)

	res.Duration = time.Since(start)
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)), attribute.String("category", res.Category))
	telemetry.EndSpan(span, res.Err)
	l.metrics.Outcome(ctx, string(res.Outcome), res.Category, res.Duration)
	for reason, n := range res.Dropped {
		l.metrics.Dropped(ctx, reason, n)
	}

	if res.Outcome == RolledBackBroken {
		l.logger.Error("Fixture rolled back", "summary", res.Summary())
	} else {
		l.logger.Info("Fixture done", "summary", res.Summary())
	}
	return res
}

func (l *Loader) run(ctx context.Context, t Target, res *Result) {
	var tx store.Tx
	defer func() {
		if p := recover(); p != nil {
			err := errors.Newf("panic while loading fixture: %v", p)
			if tx != nil {
				if rerr := tx.Rollback(ctx); rerr != nil {
					l.logger.Warn("Rollback after panic failed", "fixture_id", t.FixtureID, "error", rerr)
				}
			}
			l.markBroken(ctx, res, err)
		}
	}()

	list, err := l.fetch.FixtureList.Fetch(ctx, t.LeagueID, t.FixtureID)
	if err != nil {
		l.markBroken(ctx, res, errors.Wrap(err, "fetch fixture list"))
		return
	}
	if list.Empty() {
		l.logger.Warn("Fixture list is empty", "fixture_id", t.FixtureID)
		res.Outcome = SkippedNoData
		return
	}

	kc, tbl, ok := l.classify(t, list, res)
	if !ok {
		res.Outcome = SkippedNoMapping
		return
	}

	res.MatchesSeen = len(list.Rows)
	playable := make([]provider.Record, 0, len(list.Rows))
	for _, m := range list.Rows {
		if excluded(m) {
			res.MatchesExcluded++
			continue
		}
		playable = append(playable, m)
	}

	data, err := l.prefetch(ctx, t.LeagueID, playable)
	if err != nil {
		l.markBroken(ctx, res, err)
		return
	}

	tx, err = l.store.Begin(ctx)
	if err != nil {
		tx = nil
		l.markBroken(ctx, res, errors.Wrap(err, "begin fixture transaction"))
		return
	}

	written := make(map[Kind]int)
	p, err := l.assemble(ctx, tx, kc, playable, data, res)
	if err == nil {
		err = l.write(ctx, tx, tbl, p, written, res)
	}
	if err == nil {
		err = errors.Wrap(tx.Commit(ctx), "commit fixture")
	}
	if err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			l.logger.Warn("Rollback failed", "fixture_id", t.FixtureID, "error", rerr)
		}
		tx = nil
		l.markBroken(ctx, res, err)
		return
	}
	tx = nil

	res.Outcome = Committed
	for kind, n := range written {
		res.Written[kind] += n
		l.metrics.Rows(ctx, string(kind), n)
	}

	listed, err := ledger.Contains(ctx, l.ledger, t.FixtureID)
	if err != nil {
		l.logger.Warn("Failed to read ledger", "fixture_id", t.FixtureID, "error", err)
		return
	}
	if !listed {
		return
	}
	if err := l.ledger.Remove(ctx, t.FixtureID); err != nil {
		l.logger.Warn("Failed to clear fixture from ledger", "fixture_id", t.FixtureID, "error", err)
		return
	}
	l.logger.Info("Cleared fixture from broken ledger", "fixture_id", t.FixtureID)
}

// classify derives the sport category and keying context. ok is false when
// the fixture should be skipped for want of a sport mapping.
func (l *Loader) classify(t Target, list provider.Table, res *Result) (keys.Context, tables, bool) {
	in := provider.ClassifyInput{
		LeagueID:          t.LeagueID,
		LeagueName:        t.Title,
		RegulationPeriods: t.RegulationPeriods,
		SquadIDs:          squadIDs(list),
	}
	display, lookup := keys.NormalizeCategory(l.classifier.Classify(in))
	if display == "" {
		display, lookup = keys.NormalizeCategory(keys.Unknown)
	}
	res.Category = display

	sportID, mapped := config.SportID(display)
	if !mapped {
		if l.opts.SkipUnmapped {
			l.logger.Warn("Sport category has no mapping, skipping fixture",
				"fixture_id", t.FixtureID, "category", display)
			return keys.Context{}, tables{}, false
		}
		l.logger.Warn("Sport category has no mapping, continuing without sport id",
			"fixture_id", t.FixtureID, "category", display)
	}
	res.SportID = sportID

	kc := keys.Context{
		FixtureID:    t.FixtureID,
		SportID:      sportID,
		SportName:    display,
		FixtureTitle: t.Title,
		FixtureYear:  keys.FixtureYear(t.Title),
		Policy:       l.opts.SquadPolicy,
	}
	return kc, tablesFor(lookup), true
}

// prefetch fetches the per-match tables before the transaction opens. The
// period and score-flow documents are only read for matches with a usable
// box score.
func (l *Loader) prefetch(ctx context.Context, leagueID string, matches []provider.Record) ([]matchData, error) {
	out := make([]matchData, len(matches))
	workers := l.opts.FetchParallel
	if workers < 1 {
		workers = 1
	}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError().WithMaxGoroutines(workers)
	for i, m := range matches {
		matchID := keys.ID(m["matchId"])
		out[i].matchID = matchID
		if matchID == keys.Unknown {
			continue
		}
		p.Go(func(ctx context.Context) error {
			d, err := l.fetchMatch(ctx, leagueID, matchID)
			if err != nil {
				return err
			}
			out[i] = d
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) fetchMatch(ctx context.Context, leagueID, matchID string) (matchData, error) {
	d := matchData{matchID: matchID}

	box, err := l.fetch.BoxScore.Fetch(ctx, leagueID, matchID)
	if err != nil {
		return d, errors.Wrapf(err, "fetch box score for match %s", matchID)
	}
	if box.Empty() {
		l.logger.Warn("No box score, skipping match", "league_id", leagueID, "match_id", matchID)
		return d, nil
	}
	if !box.HasColumns("firstname", "surname") {
		l.logger.Warn("Box score has no name columns, skipping match", "league_id", leagueID, "match_id", matchID)
		return d, nil
	}
	d.box = box
	d.usable = true

	if d.periods, err = l.fetch.PeriodStats.Fetch(ctx, leagueID, matchID); err != nil {
		return d, errors.Wrapf(err, "fetch period stats for match %s", matchID)
	}
	if d.flow, err = l.fetch.ScoreFlow.Fetch(ctx, leagueID, matchID); err != nil {
		return d, errors.Wrapf(err, "fetch score flow for match %s", matchID)
	}
	return d, nil
}

// assemble keys every row of the fixture. Player fallback lookups run
// through tx.
func (l *Loader) assemble(
	ctx context.Context,
	tx store.Tx,
	kc keys.Context,
	matches []provider.Record,
	data []matchData,
	res *Result,
) (*plan, error) {
	resolver := resolve.New(tx, l.logger)
	p := &plan{sport: kc.SportRow()}
	l.checkKey(KindSport, p.sport, "uniqueSportId", res)

	squadSeen := make(map[string]struct{})
	playerSeen := make(map[string]struct{})
	anchors := make(map[string]struct{})

	for i, m := range matches {
		row, matchID := kc.FixtureRow(m)
		l.checkKey(KindFixture, row, "uniqueFixtureId", res)
		p.fixtures = append(p.fixtures, row)

		for _, sq := range kc.SquadRows(m) {
			key := sq["uniqueSquadId"].(string)
			if _, dup := squadSeen[key]; dup {
				continue
			}
			squadSeen[key] = struct{}{}
			l.checkKey(KindSquad, sq, "uniqueSquadId", res)
			p.squads = append(p.squads, sq)
		}

		d := data[i]
		if !d.usable {
			res.MatchesSkipped++
			continue
		}

		mb := matchBatch{matchID: matchID}
		for _, raw := range d.box.Rows {
			id, ok, err := l.identify(ctx, resolver, matchID, raw, res)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			stat := kc.MatchRow(matchID, raw, id)
			l.checkKey(KindMatch, stat, "uniqueMatchId", res)
			mb.stats = append(mb.stats, stat)
			anchors[stat["uniqueMatchId"].(string)] = struct{}{}

			if _, dup := playerSeen[id.PlayerID]; !dup {
				playerSeen[id.PlayerID] = struct{}{}
				entry := kc.PlayerEntry(raw, id)
				l.checkKey(KindPlayer, entry, "uniquePlayerId", res)
				p.players = append(p.players, entry)
			}
		}

		for _, raw := range d.periods.Rows {
			id, ok, err := l.identify(ctx, resolver, matchID, raw, res)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			row := kc.PeriodRow(matchID, raw, id)
			if !l.anchored(anchors, row, res) {
				continue
			}
			l.checkKey(KindPeriod, row, "uniquePeriodId", res)
			mb.periods = append(mb.periods, row)
		}

		for n, raw := range d.flow.Rows {
			seq := n + 1
			id, ok, err := l.identify(ctx, resolver, matchID, raw, res)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			row := kc.ScoreFlowRow(matchID, seq, raw, id)
			if !l.anchored(anchors, row, res) {
				continue
			}
			l.checkKey(KindScoreFlow, row, "scoreFlowId", res)
			mb.flow = append(mb.flow, row)
		}

		p.matches = append(p.matches, mb)
	}
	return p, nil
}

// identify returns the final identity of a stat row, running the directory
// fallback when the upstream player ID is unusable. ok is false when the row
// must be dropped.
func (l *Loader) identify(
	ctx context.Context,
	r *resolve.Resolver,
	matchID string,
	raw provider.Record,
	res *Result,
) (keys.Identity, bool, error) {
	id := keys.ReadIdentity(raw)
	if keys.ValidPlayerID(id.PlayerID) {
		return id, true, nil
	}

	playerID, ok, err := r.Resolve(ctx, id.Firstname, id.Surname, id.SquadName)
	if err != nil {
		return id, false, err
	}
	if !ok {
		l.logger.Warn("Unresolved player, dropping row",
			"match_id", matchID, "player_id", id.PlayerID,
			"firstname", id.Firstname, "surname", id.Surname, "squad_name", id.SquadName)
		res.addDropped(DropUnresolvedPlayer, 1)
		return id, false, nil
	}
	l.logger.Debug("Resolved player by name", "match_id", matchID, "upstream_id", id.PlayerID, "player_id", playerID)
	id.PlayerID = playerID
	return id, true, nil
}

// checkKey counts a row whose key was built from a missing component. The
// row is still written.
func (l *Loader) checkKey(kind Kind, row provider.Record, field string, res *Result) {
	key, _ := row[field].(string)
	if !keys.LowConfidence(key) {
		return
	}
	res.addLowConfidence(kind)
	l.logger.Debug("Low-confidence key", "kind", string(kind), "field", field, "key", key)
}

func (l *Loader) anchored(anchors map[string]struct{}, row provider.Record, res *Result) bool {
	key := row["uniqueMatchId"].(string)
	if _, ok := anchors[key]; ok {
		return true
	}
	l.logger.Warn("Row has no match-stat anchor, dropping", "unique_match_id", key)
	res.addDropped(DropUnanchored, 1)
	return false
}

// write upserts the plan batch by batch. A batch failure is fatal or
// recoverable per the failure policy; the first fatal one stops the write.
// Rows of released batches are tallied into written.
func (l *Loader) write(ctx context.Context, tx store.Tx, tbl tables, p *plan, written map[Kind]int, res *Result) error {
	f := l.opts.Fields
	steps := []struct {
		kind  Kind
		table string
		rows  []provider.Record
		spec  store.FieldSpec
	}{
		{KindSquad, config.SquadTable, p.squads, f.Squad},
		{KindSport, config.SportTable, []provider.Record{p.sport}, f.Sport},
		{KindPlayer, l.opts.PlayerTable, p.players, f.Player},
		{KindFixture, tbl.fixture, p.fixtures, f.Fixture},
	}
	for _, s := range steps {
		if out := l.batch(ctx, tx, s.kind, s.table, "", s.rows, s.spec, written, res); out.Severity == SeverityFatal {
			return out.Err
		}
	}

	for _, m := range p.matches {
		out := l.batch(ctx, tx, KindMatch, tbl.match, m.matchID, m.stats, f.Match, written, res)
		if out.Severity == SeverityFatal {
			return out.Err
		}
		if out.Err != nil {
			l.logger.Warn("Skipping period and score flow of failed match", "match_id", m.matchID)
			res.addDropped(DropUnanchored, len(m.periods)+len(m.flow))
			continue
		}
		if out := l.batch(ctx, tx, KindPeriod, tbl.period, m.matchID, m.periods, f.Period, written, res); out.Severity == SeverityFatal {
			return out.Err
		}
		if out := l.batch(ctx, tx, KindScoreFlow, tbl.scoreFlow, m.matchID, m.flow, f.ScoreFlow, written, res); out.Severity == SeverityFatal {
			return out.Err
		}
	}
	return nil
}

func (l *Loader) batch(
	ctx context.Context,
	tx store.Tx,
	kind Kind,
	table, matchID string,
	rows []provider.Record,
	spec store.FieldSpec,
	written map[Kind]int,
	res *Result,
) BatchOutcome {
	out := BatchOutcome{Kind: kind, Table: table, MatchID: matchID, Rows: len(rows)}
	if len(rows) == 0 {
		return out
	}

	err := tx.Batch(ctx, func(ctx context.Context) error {
		for _, r := range rows {
			if err := tx.Upsert(ctx, table, store.Row(r), spec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		out.Severity = l.opts.Policy.Severity(kind)
		out.Err = errors.Wrapf(err, "%s batch into %s", kind, table)
		if out.Severity == SeverityFatal {
			out.Err = errors.Mark(out.Err, ErrFatal)
			l.logger.Error("Fatal batch failure", "kind", string(kind), "table", table, "error", err)
		} else {
			l.logger.Warn("Batch failed, continuing", "kind", string(kind), "table", table,
				"match_id", matchID, "rows", len(rows), "error", err)
		}
	} else {
		written[kind] += len(rows)
	}
	res.Batches = append(res.Batches, out)
	return out
}

// markBroken records the fixture in the ledger and sets the broken outcome.
func (l *Loader) markBroken(ctx context.Context, res *Result, err error) {
	res.Outcome = RolledBackBroken
	res.Err = err
	if lerr := l.ledger.Add(ctx, res.FixtureID, err.Error()); lerr != nil {
		l.logger.Error("Failed to record broken fixture", "fixture_id", res.FixtureID, "error", lerr)
		res.Err = errors.CombineErrors(err, errors.Wrap(lerr, "ledger add"))
	}
}

// excluded reports whether a fixture-list match is not yet playable.
func excluded(m provider.Record) bool {
	status, _ := m["matchStatus"].(string)
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "scheduled", "incomplete":
		return true
	}
	return false
}

func squadIDs(list provider.Table) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range list.Rows {
		for _, side := range []string{"homeSquadId", "awaySquadId"} {
			id := keys.ID(m[side])
			if id == keys.Unknown {
				continue
			}
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// String renders an outcome for logs.
func (o BatchOutcome) String() string {
	if o.Err == nil {
		return fmt.Sprintf("%s %s rows=%d ok", o.Kind, o.Table, o.Rows)
	}
	return fmt.Sprintf("%s %s rows=%d %s: %v", o.Kind, o.Table, o.Rows, o.Severity, o.Err)
}
