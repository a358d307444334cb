package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cac-scouting/scout-engine/pkg/database"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/testhelpers"
)

// repoTestContext bundles a fresh database with every repository built on it.
type repoTestContext struct {
	t        *testing.T
	ctx      context.Context
	db       *database.DB
	players  PlayerRepository
	seasons  SeasonRecordRepository
	matches  MatchRepository
	reports  ReportRepository
	attach   AttachmentRepository
	users    UserRepository
	exports  ExportCacheRepository
	filters  FilterConfigRepository
}

func setupRepoTest(t *testing.T) *repoTestContext {
	t.Helper()
	db := testhelpers.NewTestDB(t)
	return &repoTestContext{
		t:       t,
		ctx:     context.Background(),
		db:      db,
		players: NewPlayerRepository(db),
		seasons: NewSeasonRecordRepository(db),
		matches: NewMatchRepository(db),
		reports: NewReportRepository(db, nil),
		attach:  NewAttachmentRepository(db),
		users:   NewUserRepository(db),
		exports: NewExportCacheRepository(db),
		filters: NewFilterConfigRepository(db),
	}
}

func (tc *repoTestContext) createPlayer(name, team string) *models.Player {
	tc.t.Helper()
	p := &models.Player{Name: name, Team: team}
	require.NoError(tc.t, tc.players.Create(tc.ctx, p))
	return p
}

func (tc *repoTestContext) createUser(username, role string) *models.User {
	tc.t.Helper()
	u := &models.User{Username: username, PasswordHash: "hash", DisplayName: "Scout " + username, Role: role}
	require.NoError(tc.t, tc.users.Create(tc.ctx, u))
	return u
}

func (tc *repoTestContext) createReport(playerID int64, ratings models.Ratings, observations string) *models.Report {
	tc.t.Helper()
	r := &models.Report{PlayerID: playerID, Ratings: ratings, Observations: observations}
	require.NoError(tc.t, tc.reports.Create(tc.ctx, r))
	return r
}

func (tc *repoTestContext) countRows(table string) int {
	tc.t.Helper()
	var n int
	err := tc.db.WithConnection(tc.ctx, func(q database.Querier) error {
		return q.QueryRowContext(tc.ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
	})
	require.NoError(tc.t, err)
	return n
}
