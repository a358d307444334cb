package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/dedupe"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/scraper"
)

const matchURL = "https://es.besoccer.com/partido/hjk/kups/202412345"

func sampleFixtures() []scraper.Fixture {
	return []scraper.Fixture{
		{
			ExternalID: "besoccer:202412345",
			Date:       "2024-05-04",
			KickOff:    "17:00",
			HomeTeam:   "HJK",
			AwayTeam:   "KuPS",
			Status:     models.MatchStatusScheduled,
			URL:        matchURL,
		},
		{
			ExternalID: "besoccer:202412346",
			Date:       "2024-05-04",
			HomeTeam:   "Inter Turku",
			AwayTeam:   "Ilves",
			Status:     models.MatchStatusFinished,
			HomeScore:  models.IntPtr(2),
			AwayScore:  models.IntPtr(1),
			URL:        "https://es.besoccer.com/partido/inter-turku/ilves/202412346",
		},
	}
}

func sampleLineup() *scraper.Lineup {
	lineup := &scraper.Lineup{}
	for i := 1; i <= 11; i++ {
		lineup.Home = append(lineup.Home, scraper.LineupPlayer{
			Name: "Home Player " + string(rune('A'+i)), ShirtNumber: models.IntPtr(i), IsStarter: true,
		})
		lineup.Away = append(lineup.Away, scraper.LineupPlayer{
			Name: "Away Player " + string(rune('A'+i)), ShirtNumber: models.IntPtr(i), IsStarter: true,
		})
	}
	lineup.Home[9] = scraper.LineupPlayer{
		Name:        "Sami Miettinen",
		ShirtNumber: models.IntPtr(10),
		Position:    "Delantero",
		IsStarter:   true,
		ProfileURL:  profileURL,
		ImageURL:    "https://cdn.example.com/miettinen.png",
	}
	return lineup
}

func TestMatchService_Import(t *testing.T) {
	tc := setupServiceTest(t)
	tc.scraper.fixtures["2024-05-04"] = sampleFixtures()

	res, err := tc.matchSvc.Import(tc.ctx, "2024-05-04")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 0, res.Updated)

	again, err := tc.matchSvc.Import(tc.ctx, "2024-05-04")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 2, again.Updated)

	listed, err := tc.matchSvc.ListByDate(tc.ctx, "2024-05-04")
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestMatchService_ImportValidatesDate(t *testing.T) {
	tc := setupServiceTest(t)
	for _, date := range []string{"", "04/05/2024"} {
		_, err := tc.matchSvc.Import(tc.ctx, date)
		assert.True(t, apperrors.IsValidation(err), date)
	}
	assert.Zero(t, tc.scraper.calls)
}

func TestMatchService_ImportFailure(t *testing.T) {
	tc := setupServiceTest(t)
	tc.scraper.err = scraper.ErrUnrecognizedLayout

	_, err := tc.matchSvc.Import(tc.ctx, "2024-05-04")
	assert.ErrorIs(t, err, scraper.ErrUnrecognizedLayout)
	assert.Equal(t, 1, tc.metrics.scrapes["matches/layout"])

	listed, err := tc.matchSvc.ListByDate(tc.ctx, "2024-05-04")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestMatchService_FetchLineup(t *testing.T) {
	tc := setupServiceTest(t)
	tc.scraper.fixtures["2024-05-04"] = sampleFixtures()
	tc.scraper.lineups[matchURL] = sampleLineup()
	res, err := tc.matchSvc.Import(tc.ctx, "2024-05-04")
	require.NoError(t, err)
	matchID := res.Matches[0].ID

	entries, err := tc.matchSvc.FetchLineup(tc.ctx, matchID)
	require.NoError(t, err)
	assert.Len(t, entries, 22)

	// a second fetch replaces rather than appends
	entries, err = tc.matchSvc.FetchLineup(tc.ctx, matchID)
	require.NoError(t, err)
	assert.Len(t, entries, 22)

	tc.scraper.err = scraper.ErrSourceUnreachable
	_, err = tc.matchSvc.FetchLineup(tc.ctx, matchID)
	assert.ErrorIs(t, err, scraper.ErrSourceUnreachable)
	stored, err := tc.matchSvc.Lineup(tc.ctx, matchID)
	require.NoError(t, err)
	assert.Len(t, stored, 22, "a failed fetch keeps the stored lineup")
}

func TestMatchService_FetchLineupNeedsSource(t *testing.T) {
	tc := setupServiceTest(t)
	m := &models.Match{HomeTeam: "A", AwayTeam: "B", MatchDate: "2024-05-04"}
	require.NoError(t, tc.matchSvc.Create(tc.ctx, m))

	_, err := tc.matchSvc.FetchLineup(tc.ctx, m.ID)
	assert.True(t, apperrors.IsValidation(err))
}

func lineupEntryID(t *testing.T, tc *serviceTestContext, matchID int64, name string) int64 {
	t.Helper()
	entries, err := tc.matchSvc.Lineup(tc.ctx, matchID)
	require.NoError(t, err)
	for _, e := range entries {
		if e.PlayerName == name {
			return e.ID
		}
	}
	t.Fatalf("no lineup entry for %s", name)
	return 0
}

func TestMatchService_PlayerFromLineup(t *testing.T) {
	tc := setupServiceTest(t)
	tc.scraper.fixtures["2024-05-04"] = sampleFixtures()
	tc.scraper.lineups[matchURL] = sampleLineup()
	tc.scraper.profiles[profileURL] = sampleProfile()
	res, err := tc.matchSvc.Import(tc.ctx, "2024-05-04")
	require.NoError(t, err)
	matchID := res.Matches[0].ID
	_, err = tc.matchSvc.FetchLineup(tc.ctx, matchID)
	require.NoError(t, err)

	entryID := lineupEntryID(t, tc, matchID, "Sami Miettinen")
	out, err := tc.matchSvc.PlayerFromLineup(tc.ctx, matchID, entryID)
	require.NoError(t, err)
	assert.True(t, out.Merge.Created)
	assert.Empty(t, out.ImportError)
	assert.Equal(t, 2, out.SeasonsAdded)
	require.NotNil(t, out.Player)
	assert.Equal(t, "HJK", out.Player.Team)
	assert.Equal(t, "2005-02-11", out.Player.BirthDate)
	assert.Equal(t, "besoccer:3161334", out.Player.ExternalID)

	// the same entry again merges into the same player
	again, err := tc.matchSvc.PlayerFromLineup(tc.ctx, matchID, entryID)
	require.NoError(t, err)
	assert.Equal(t, dedupe.Same, again.Merge.Outcome)
	assert.Equal(t, out.Merge.PlayerID, again.Merge.PlayerID)
}

func TestMatchService_PlayerFromLineupKeepsPlayerWhenScrapeFails(t *testing.T) {
	tc := setupServiceTest(t)
	tc.scraper.fixtures["2024-05-04"] = sampleFixtures()
	tc.scraper.lineups[matchURL] = sampleLineup()
	res, err := tc.matchSvc.Import(tc.ctx, "2024-05-04")
	require.NoError(t, err)
	matchID := res.Matches[0].ID
	_, err = tc.matchSvc.FetchLineup(tc.ctx, matchID)
	require.NoError(t, err)

	// no canned profile: the fake answers ErrUnrecognizedLayout
	out, err := tc.matchSvc.PlayerFromLineup(tc.ctx, matchID, lineupEntryID(t, tc, matchID, "Sami Miettinen"))
	require.NoError(t, err)
	assert.True(t, out.Merge.Created)
	assert.NotEmpty(t, out.ImportError)
	require.NotNil(t, out.Player)
	assert.Equal(t, "Sami Miettinen", out.Player.Name)
	assert.Equal(t, 1, tc.metrics.scrapes["profile/layout"])
}

func TestMatchService_PlayerFromLineupMissingEntry(t *testing.T) {
	tc := setupServiceTest(t)
	m := &models.Match{HomeTeam: "A", AwayTeam: "B", MatchDate: "2024-05-04"}
	require.NoError(t, tc.matchSvc.Create(tc.ctx, m))

	_, err := tc.matchSvc.PlayerFromLineup(tc.ctx, m.ID, 12345)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
