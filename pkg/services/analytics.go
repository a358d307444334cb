package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/dedupe"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/repositories"
	"github.com/cac-scouting/scout-engine/pkg/stats"
)

// MetricDef names a season figure that can be compared across players.
type MetricDef struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Group string `json:"group"`
}

var metricCatalogue = []MetricDef{
	{"appearances", "Partidos", "Participación"},
	{"minutes", "Minutos", "Participación"},
	{"minutes_per_match", "Minutos por partido", "Participación"},
	{"goals", "Goles", "Rendimiento ofensivo"},
	{"assists", "Asistencias", "Rendimiento ofensivo"},
	{"goals_per90", "Goles/90", "Rendimiento ofensivo"},
	{"assists_per90", "Asistencias/90", "Rendimiento ofensivo"},
	{"contributions_per90", "Goles + asistencias/90", "Rendimiento ofensivo"},
	{"yellow_cards", "Tarjetas amarillas", "Disciplina"},
	{"red_cards", "Tarjetas rojas", "Disciplina"},
	{"elo", "ELO", "Nivel"},
	{"age", "Edad", "Perfil"},
}

// defaultMetrics is the radar set used when a request names none.
var defaultMetrics = []string{"appearances", "minutes", "goals", "assists", "goals_per90", "assists_per90", "elo"}

const (
	maxMetrics       = 12
	minComparePlayer = 2
	maxComparePlayer = 5
)

// PopulationFilter selects the players a figure is compared against.
// Zero values mean "any"; an empty Season means the latest one on record.
type PopulationFilter struct {
	Season         string `json:"season,omitempty"`
	Team           string `json:"team,omitempty"`
	Position       string `json:"position,omitempty"`
	Competition    string `json:"competition,omitempty"`
	MinAge         int    `json:"min_age,omitempty"`
	MaxAge         int    `json:"max_age,omitempty"`
	MinMinutes     int    `json:"min_minutes,omitempty"`
	MinAppearances int    `json:"min_appearances,omitempty"`
}

// StatLine is one player's figures for a season, summed over clubs.
type StatLine struct {
	PlayerID int64              `json:"player_id"`
	Name     string             `json:"name"`
	Team     string             `json:"team"`
	Position string             `json:"position,omitempty"`
	Age      *int               `json:"age,omitempty"`
	Season   string             `json:"season"`
	Values   map[string]float64 `json:"values"`
}

// MetricPercentile places one figure of a player within the population.
// Value and Percentile are nil when the player's figure is unknown.
type MetricPercentile struct {
	Metric     string   `json:"metric"`
	Label      string   `json:"label"`
	Value      *float64 `json:"value"`
	Percentile *float64 `json:"percentile"`
	Population int      `json:"population"` // players with a known value
}

// PercentileProfile is the radar data of one player.
type PercentileProfile struct {
	Season     string             `json:"season"`
	Player     *StatLine          `json:"player"`
	Population int                `json:"population"`
	Metrics    []MetricPercentile `json:"metrics"`
}

// Comparison holds the profiles of several players over the same metrics.
type Comparison struct {
	Season  string               `json:"season"`
	Metrics []MetricDef          `json:"metrics"`
	Players []*PercentileProfile `json:"players"`
}

// TeamValue is the aggregated figure of one team.
type TeamValue struct {
	Team    string  `json:"team"`
	Value   float64 `json:"value"`
	Players int     `json:"players"`
}

// TeamAggregates ranks teams by a metric, highest first.
type TeamAggregates struct {
	Season      string      `json:"season"`
	Metric      MetricDef   `json:"metric"`
	Aggregation string      `json:"aggregation"`
	Teams       []TeamValue `json:"teams"`
}

// ScatterPoint is one player in a two-metric plot.
type ScatterPoint struct {
	PlayerID int64   `json:"player_id"`
	Name     string  `json:"name"`
	Team     string  `json:"team"`
	Position string  `json:"position,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// ScatterData is the data behind a scatter plot with mean lines and a trend line.
type ScatterData struct {
	Season      string           `json:"season"`
	X           MetricDef        `json:"x"`
	Y           MetricDef        `json:"y"`
	Points      []ScatterPoint   `json:"points"`
	MeanX       float64          `json:"mean_x"`
	MeanY       float64          `json:"mean_y"`
	Correlation *float64         `json:"correlation"`
	Fit         *stats.LinearFit `json:"fit"`
}

// CorrelationMatrix holds pairwise Pearson coefficients. A nil cell means
// too few shared values or a constant metric.
type CorrelationMatrix struct {
	Season  string       `json:"season"`
	Metrics []MetricDef  `json:"metrics"`
	Values  [][]*float64 `json:"values"`
	Pairs   [][]int      `json:"pairs"` // players with both values known
}

// AnalyticsCatalogue lists what can be compared.
type AnalyticsCatalogue struct {
	Metrics []MetricDef `json:"metrics"`
	Seasons []string    `json:"seasons"`
}

// AnalyticsService compares season figures across the catalogue.
type AnalyticsService interface {
	Catalogue(ctx context.Context) (*AnalyticsCatalogue, error)
	Percentiles(ctx context.Context, playerID int64, filter PopulationFilter, metrics []string) (*PercentileProfile, error)
	Compare(ctx context.Context, playerIDs []int64, filter PopulationFilter, metrics []string) (*Comparison, error)
	TeamAggregates(ctx context.Context, filter PopulationFilter, metric, aggregation string) (*TeamAggregates, error)
	Scatter(ctx context.Context, filter PopulationFilter, x, y string) (*ScatterData, error)
	Correlations(ctx context.Context, filter PopulationFilter, metrics []string) (*CorrelationMatrix, error)
}

type analyticsService struct {
	players repositories.PlayerRepository
	seasons repositories.SeasonRecordRepository
	now     func() time.Time
	logger  *zap.Logger
}

// NewAnalyticsService creates a new analytics service with dependencies.
func NewAnalyticsService(players repositories.PlayerRepository, seasons repositories.SeasonRecordRepository, logger *zap.Logger) AnalyticsService {
	return &analyticsService{
		players: players,
		seasons: seasons,
		now:     time.Now,
		logger:  logger.Named("analytics"),
	}
}

func (s *analyticsService) Catalogue(ctx context.Context) (*AnalyticsCatalogue, error) {
	seasons, err := s.seasons.ListSeasons(ctx)
	if err != nil {
		return nil, err
	}
	if seasons == nil {
		seasons = []string{}
	}
	return &AnalyticsCatalogue{Metrics: metricCatalogue, Seasons: seasons}, nil
}

func (s *analyticsService) Percentiles(ctx context.Context, playerID int64, filter PopulationFilter, metrics []string) (*PercentileProfile, error) {
	defs, err := resolveMetrics(metrics)
	if err != nil {
		return nil, err
	}
	pop, err := s.population(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, pop, playerID, defs)
}

func (s *analyticsService) Compare(ctx context.Context, playerIDs []int64, filter PopulationFilter, metrics []string) (*Comparison, error) {
	ids := uniqueIDs(playerIDs)
	if len(ids) < minComparePlayer || len(ids) > maxComparePlayer {
		return nil, apperrors.NewValidationError("ids", "compare between %d and %d distinct players", minComparePlayer, maxComparePlayer)
	}
	defs, err := resolveMetrics(metrics)
	if err != nil {
		return nil, err
	}
	pop, err := s.population(ctx, filter)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{Season: pop.season, Metrics: defs, Players: make([]*PercentileProfile, 0, len(ids))}
	for _, id := range ids {
		p, err := s.profile(ctx, pop, id, defs)
		if err != nil {
			return nil, err
		}
		cmp.Players = append(cmp.Players, p)
	}
	return cmp, nil
}

func (s *analyticsService) TeamAggregates(ctx context.Context, filter PopulationFilter, metric, aggregation string) (*TeamAggregates, error) {
	def, err := lookupMetric("metric", metric)
	if err != nil {
		return nil, err
	}
	if aggregation == "" {
		aggregation = stats.AggMean
	}
	if _, err := stats.Reduce(nil, aggregation); err != nil {
		return nil, apperrors.NewValidationError("agg", "must be mean, sum or median")
	}
	pop, err := s.population(ctx, filter)
	if err != nil {
		return nil, err
	}

	byTeam := map[string][]float64{}
	for _, line := range pop.filtered {
		v, ok := line.Values[def.Key]
		if !ok || line.Team == "" {
			continue
		}
		byTeam[line.Team] = append(byTeam[line.Team], v)
	}

	out := &TeamAggregates{Season: pop.season, Metric: def, Aggregation: aggregation, Teams: []TeamValue{}}
	for team, values := range byTeam {
		v, _ := stats.Reduce(values, aggregation)
		out.Teams = append(out.Teams, TeamValue{Team: team, Value: v, Players: len(values)})
	}
	sort.Slice(out.Teams, func(i, j int) bool {
		if out.Teams[i].Value != out.Teams[j].Value {
			return out.Teams[i].Value > out.Teams[j].Value
		}
		return out.Teams[i].Team < out.Teams[j].Team
	})
	return out, nil
}

func (s *analyticsService) Scatter(ctx context.Context, filter PopulationFilter, x, y string) (*ScatterData, error) {
	xDef, err := lookupMetric("x", x)
	if err != nil {
		return nil, err
	}
	yDef, err := lookupMetric("y", y)
	if err != nil {
		return nil, err
	}
	if xDef.Key == yDef.Key {
		return nil, apperrors.NewValidationError("y", "must differ from x")
	}
	pop, err := s.population(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := &ScatterData{Season: pop.season, X: xDef, Y: yDef, Points: []ScatterPoint{}}
	var xs, ys []float64
	for _, line := range pop.filtered {
		xv, okX := line.Values[xDef.Key]
		yv, okY := line.Values[yDef.Key]
		if !okX || !okY {
			continue
		}
		out.Points = append(out.Points, ScatterPoint{
			PlayerID: line.PlayerID, Name: line.Name, Team: line.Team, Position: line.Position, X: xv, Y: yv,
		})
		xs, ys = append(xs, xv), append(ys, yv)
	}
	out.MeanX, out.MeanY = stats.Mean(xs), stats.Mean(ys)
	if r, ok := stats.Pearson(xs, ys); ok {
		out.Correlation = &r
	}
	if fit, ok := stats.FitLine(xs, ys); ok {
		out.Fit = &fit
	}
	return out, nil
}

func (s *analyticsService) Correlations(ctx context.Context, filter PopulationFilter, metrics []string) (*CorrelationMatrix, error) {
	defs, err := resolveMetrics(metrics)
	if err != nil {
		return nil, err
	}
	if len(defs) < 2 {
		return nil, apperrors.NewValidationError("metrics", "name at least two metrics")
	}
	pop, err := s.population(ctx, filter)
	if err != nil {
		return nil, err
	}

	n := len(defs)
	out := &CorrelationMatrix{Season: pop.season, Metrics: defs, Values: make([][]*float64, n), Pairs: make([][]int, n)}
	for i := range defs {
		out.Values[i] = make([]*float64, n)
		out.Pairs[i] = make([]int, n)
		for j := range defs {
			xs, ys := pairedValues(pop.filtered, defs[i].Key, defs[j].Key)
			out.Pairs[i][j] = len(xs)
			if r, ok := stats.Pearson(xs, ys); ok {
				out.Values[i][j] = &r
			}
		}
	}
	return out, nil
}

// population is the set of season lines one request works on.
type population struct {
	season   string
	all      map[int64]*StatLine // every player with a line in the season
	filtered []*StatLine         // those matching the filter, by player id
}

func (s *analyticsService) population(ctx context.Context, filter PopulationFilter) (*population, error) {
	season := strings.TrimSpace(filter.Season)
	if season == "" {
		seasons, err := s.seasons.ListSeasons(ctx)
		if err != nil {
			return nil, err
		}
		if len(seasons) == 0 {
			return &population{all: map[int64]*StatLine{}, filtered: []*StatLine{}}, nil
		}
		season = seasons[0]
	}

	lines, err := s.seasons.ListLines(ctx, season)
	if err != nil {
		return nil, err
	}
	all := buildStatLines(lines, filter.Competition, s.now())

	pop := &population{season: season, all: make(map[int64]*StatLine, len(all)), filtered: []*StatLine{}}
	for _, line := range all {
		pop.all[line.PlayerID] = line
		if filter.matches(line) {
			pop.filtered = append(pop.filtered, line)
		}
	}
	s.logger.Debug("Built comparison population",
		zap.String("season", season),
		zap.Int("players", len(all)),
		zap.Int("matching", len(pop.filtered)))
	return pop, nil
}

func (s *analyticsService) profile(ctx context.Context, pop *population, playerID int64, defs []MetricDef) (*PercentileProfile, error) {
	line, ok := pop.all[playerID]
	if !ok {
		// distinguish an unknown player from one without figures
		if _, err := s.players.GetByID(ctx, playerID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("player %d has no figures for season %q: %w", playerID, pop.season, apperrors.ErrNotFound)
	}

	profile := &PercentileProfile{
		Season:     pop.season,
		Player:     line,
		Population: len(pop.filtered),
		Metrics:    make([]MetricPercentile, 0, len(defs)),
	}
	for _, def := range defs {
		values := metricValues(pop.filtered, def.Key)
		mp := MetricPercentile{Metric: def.Key, Label: def.Label, Population: len(values)}
		if v, ok := line.Values[def.Key]; ok {
			pct := stats.Percentile(values, v)
			mp.Value, mp.Percentile = &v, &pct
		}
		profile.Metrics = append(profile.Metrics, mp)
	}
	return profile, nil
}

func (f PopulationFilter) matches(line *StatLine) bool {
	if f.Team != "" && dedupe.Normalize(f.Team) != dedupe.Normalize(line.Team) {
		return false
	}
	if f.Position != "" && dedupe.Normalize(f.Position) != dedupe.Normalize(line.Position) {
		return false
	}
	if f.MinAge > 0 && (line.Age == nil || *line.Age < f.MinAge) {
		return false
	}
	if f.MaxAge > 0 && (line.Age == nil || *line.Age > f.MaxAge) {
		return false
	}
	if f.MinMinutes > 0 && line.Values["minutes"] < float64(f.MinMinutes) {
		return false
	}
	if f.MinAppearances > 0 && line.Values["appearances"] < float64(f.MinAppearances) {
		return false
	}
	return true
}

// seasonTotals accumulates the known figures of one or more season rows.
type seasonTotals struct {
	team   string
	counts map[string]int
	elo    *int
	age    *int
}

func newSeasonTotals(team string) *seasonTotals {
	return &seasonTotals{team: team, counts: map[string]int{}}
}

func (t *seasonTotals) add(r *models.SeasonRecord) {
	for key, v := range map[string]*int{
		"appearances":  r.Appearances,
		"minutes":      r.Minutes,
		"goals":        r.Goals,
		"assists":      r.Assists,
		"yellow_cards": r.YellowCards,
		"red_cards":    r.RedCards,
	} {
		if v != nil {
			t.counts[key] += *v
		}
	}
	t.elo = maxInt(t.elo, r.ELO)
	t.age = maxInt(t.age, r.Age)
}

func (t *seasonTotals) merge(o *seasonTotals) {
	for k, v := range o.counts {
		t.counts[k] += v
	}
	t.elo = maxInt(t.elo, o.elo)
	t.age = maxInt(t.age, o.age)
}

// buildStatLines folds season rows into one line per player. Within a club
// the career parent row (no competition) stands for the whole season; clubs
// without one sum their competition rows. A competition filter keeps only
// the rows of that competition. Lines come out ordered by player id.
func buildStatLines(rows []*models.SeasonLine, competition string, now time.Time) []*StatLine {
	wantComp := dedupe.Normalize(competition)

	type club struct {
		parent   *seasonTotals
		children *seasonTotals
	}
	type player struct {
		first *models.SeasonLine
		clubs map[string]*club
		order []string
	}

	players := map[int64]*player{}
	var ids []int64
	for _, row := range rows {
		if wantComp != "" && dedupe.Normalize(row.Competition) != wantComp {
			continue
		}
		p, ok := players[row.PlayerID]
		if !ok {
			p = &player{first: row, clubs: map[string]*club{}}
			players[row.PlayerID] = p
			ids = append(ids, row.PlayerID)
		}
		c, ok := p.clubs[row.Team]
		if !ok {
			c = &club{}
			p.clubs[row.Team] = c
			p.order = append(p.order, row.Team)
		}
		if row.Competition == "" {
			if c.parent == nil {
				c.parent = newSeasonTotals(row.Team)
				c.parent.add(&row.SeasonRecord)
			}
			continue
		}
		if c.children == nil {
			c.children = newSeasonTotals(row.Team)
		}
		c.children.add(&row.SeasonRecord)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*StatLine, 0, len(ids))
	for _, id := range ids {
		p := players[id]
		total := newSeasonTotals("")
		mainTeam, mainMinutes := "", -1
		for _, team := range p.order {
			c := p.clubs[team]
			totals := c.parent
			if totals == nil {
				totals = c.children
			}
			total.merge(totals)
			if m := totals.counts["minutes"]; m > mainMinutes {
				mainTeam, mainMinutes = team, m
			}
		}
		out = append(out, newStatLine(p.first, mainTeam, total, now))
	}
	return out
}

func newStatLine(first *models.SeasonLine, team string, t *seasonTotals, now time.Time) *StatLine {
	line := &StatLine{
		PlayerID: first.PlayerID,
		Name:     first.PlayerName,
		Team:     team,
		Position: first.Position,
		Season:   first.Season,
		Values:   make(map[string]float64, len(metricCatalogue)),
	}
	for k, v := range t.counts {
		line.Values[k] = float64(v)
	}
	if t.elo != nil {
		line.Values["elo"] = float64(*t.elo)
	}

	line.Age = t.age
	if line.Age == nil {
		line.Age = (&models.Player{BirthDate: first.BirthDate}).AgeAt(now)
	}
	if line.Age != nil {
		line.Values["age"] = float64(*line.Age)
	}

	minutes, hasMinutes := line.Values["minutes"]
	if hasMinutes && minutes > 0 {
		goals, hasGoals := line.Values["goals"]
		assists, hasAssists := line.Values["assists"]
		if hasGoals {
			line.Values["goals_per90"] = goals * 90 / minutes
		}
		if hasAssists {
			line.Values["assists_per90"] = assists * 90 / minutes
		}
		if hasGoals && hasAssists {
			line.Values["contributions_per90"] = (goals + assists) * 90 / minutes
		}
	}
	if apps, ok := line.Values["appearances"]; ok && apps > 0 && hasMinutes {
		line.Values["minutes_per_match"] = minutes / apps
	}
	return line
}

func resolveMetrics(keys []string) ([]MetricDef, error) {
	if len(keys) == 0 {
		keys = defaultMetrics
	}
	seen := map[string]bool{}
	defs := make([]MetricDef, 0, len(keys))
	for _, key := range keys {
		def, err := lookupMetric("metrics", key)
		if err != nil {
			return nil, err
		}
		if seen[def.Key] {
			continue
		}
		seen[def.Key] = true
		defs = append(defs, def)
	}
	if len(defs) > maxMetrics {
		return nil, apperrors.NewValidationError("metrics", "at most %d metrics", maxMetrics)
	}
	return defs, nil
}

func lookupMetric(field, key string) (MetricDef, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, def := range metricCatalogue {
		if def.Key == key {
			return def, nil
		}
	}
	if key == "" {
		return MetricDef{}, apperrors.NewValidationError(field, "is required")
	}
	return MetricDef{}, apperrors.NewValidationError(field, "unknown metric %q", key)
}

func metricValues(lines []*StatLine, key string) []float64 {
	var values []float64
	for _, line := range lines {
		if v, ok := line.Values[key]; ok {
			values = append(values, v)
		}
	}
	return values
}

func pairedValues(lines []*StatLine, a, b string) (xs, ys []float64) {
	for _, line := range lines {
		x, okX := line.Values[a]
		y, okY := line.Values[b]
		if okX && okY {
			xs, ys = append(xs, x), append(ys, y)
		}
	}
	return xs, ys
}

func uniqueIDs(ids []int64) []int64 {
	seen := map[int64]bool{}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func maxInt(a, b *int) *int {
	switch {
	case a == nil:
		return b
	case b == nil || *a >= *b:
		return a
	default:
		return b
	}
}
