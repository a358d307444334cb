package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/database"
	"github.com/cac-scouting/scout-engine/pkg/dedupe"
	"github.com/cac-scouting/scout-engine/pkg/models"
)

func TestPlayerRepository_CreateAndGet(t *testing.T) {
	tc := setupRepoTest(t)

	p := &models.Player{Name: "  José Núñez ", Team: "CD Tenerife", HeightCM: models.IntPtr(181)}
	require.NoError(t, tc.players.Create(tc.ctx, p))
	assert.NotZero(t, p.ID)
	assert.Equal(t, 1, p.Revision)

	got, err := tc.players.GetByID(tc.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "José Núñez", got.Name)
	assert.Equal(t, "jose nunez", got.NormalizedName)
	require.NotNil(t, got.HeightCM)
	assert.Equal(t, 181, *got.HeightCM)
	assert.Nil(t, got.WeightKG)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestPlayerRepository_CreateRejectsBlankName(t *testing.T) {
	tc := setupRepoTest(t)

	err := tc.players.Create(tc.ctx, &models.Player{Name: "   "})
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, 0, tc.countRows("players"))
}

func TestPlayerRepository_GetByID_NotFound(t *testing.T) {
	tc := setupRepoTest(t)

	_, err := tc.players.GetByID(tc.ctx, 999)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestPlayerRepository_DuplicateExternalIDConflicts(t *testing.T) {
	tc := setupRepoTest(t)

	require.NoError(t, tc.players.Create(tc.ctx, &models.Player{Name: "A", ExternalID: "bs-1"}))
	err := tc.players.Create(tc.ctx, &models.Player{Name: "B", ExternalID: "bs-1"})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestPlayerRepository_CreateOrMerge_SameExternalIDKeepsOneRow(t *testing.T) {
	tc := setupRepoTest(t)

	first := &models.Player{Name: "Luis Pérez", ExternalID: "bs-7", Nationality: "España", Foot: "Diestro"}
	res, err := tc.players.CreateOrMerge(tc.ctx, first)
	require.NoError(t, err)
	assert.True(t, res.Created)

	second := &models.Player{
		Name:       "Luis Pérez",
		ExternalID: "bs-7",
		Team:       "CD Tenerife",
		HeightCM:   models.IntPtr(178),
		Foot:       "Zurdo",
	}
	res2, err := tc.players.CreateOrMerge(tc.ctx, second)
	require.NoError(t, err)
	assert.False(t, res2.Created)
	assert.Equal(t, dedupe.Same, res2.Outcome)
	assert.Equal(t, res.PlayerID, res2.PlayerID)
	assert.Equal(t, 1, tc.countRows("players"))

	stored, err := tc.players.GetByID(tc.ctx, res.PlayerID)
	require.NoError(t, err)
	assert.Equal(t, "CD Tenerife", stored.Team, "blank filled")
	assert.Equal(t, "España", stored.Nationality, "populated field kept when incoming is empty")
	assert.Equal(t, "Zurdo", stored.Foot, "newer non-empty value wins")
	require.NotNil(t, stored.HeightCM)
	assert.Equal(t, 178, *stored.HeightCM)
	assert.Equal(t, 2, stored.Revision)
}

func TestPlayerRepository_CreateOrMerge_SameTeamMerges(t *testing.T) {
	tc := setupRepoTest(t)
	stored := tc.createPlayer("Luis Pérez", "CD Tenerife")

	res, err := tc.players.CreateOrMerge(tc.ctx, &models.Player{Name: "LUIS PEREZ", Team: "cd tenerife", BirthDate: "2001-04-12"})
	require.NoError(t, err)
	assert.Equal(t, stored.ID, res.PlayerID)
	assert.False(t, res.Created)

	got, err := tc.players.GetByID(tc.ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "2001-04-12", got.BirthDate)
}

func TestPlayerRepository_CreateOrMerge_AmbiguousWritesNothing(t *testing.T) {
	tc := setupRepoTest(t)
	a := tc.createPlayer("Luis Pérez", "CD Tenerife")
	b := tc.createPlayer("Luis Pérez", "UD Las Palmas")

	res, err := tc.players.CreateOrMerge(tc.ctx, &models.Player{Name: "Luis Perez", Team: "Real Madrid"})
	require.NoError(t, err)
	assert.Equal(t, dedupe.Ambiguous, res.Outcome)
	assert.Zero(t, res.PlayerID)
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, res.Candidates)
	assert.Equal(t, 2, tc.countRows("players"))

	merged, err := tc.players.MergeInto(tc.ctx, b.ID, &models.Player{Name: "Luis Pérez", Team: "Real Madrid"})
	require.NoError(t, err)
	assert.Equal(t, "Real Madrid", merged.Team)
	assert.Equal(t, 2, tc.countRows("players"))
}

func TestPlayerRepository_CreateOrMerge_DifferentBirthDateInserts(t *testing.T) {
	tc := setupRepoTest(t)
	require.NoError(t, tc.players.Create(tc.ctx, &models.Player{Name: "Pedro", BirthDate: "2000-01-01"}))

	res, err := tc.players.CreateOrMerge(tc.ctx, &models.Player{Name: "Pedro", BirthDate: "2003-05-05"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 2, tc.countRows("players"))
}

func TestPlayerRepository_UpdateBumpsRevision(t *testing.T) {
	tc := setupRepoTest(t)
	p := tc.createPlayer("Ana", "")

	p.Team = "Granadilla"
	require.NoError(t, tc.players.Update(tc.ctx, p))
	assert.Equal(t, 2, p.Revision)

	missing := &models.Player{ID: 404, Name: "Nobody"}
	assert.True(t, errors.Is(tc.players.Update(tc.ctx, missing), apperrors.ErrNotFound))
}

func TestPlayerRepository_Find(t *testing.T) {
	tc := setupRepoTest(t)
	repo := tc.players.(*playerRepository)
	repo.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, repo.Create(tc.ctx, &models.Player{Name: "Álvaro Ruiz", Team: "Tenerife", Position: "Delantero", BirthDate: "2006-06-02"}))
	require.NoError(t, repo.Create(tc.ctx, &models.Player{Name: "Alvaro Gil", Team: "Las Palmas", Position: "Central", BirthDate: "2000-01-01"}))
	require.NoError(t, repo.Create(tc.ctx, &models.Player{Name: "Marta Díaz", Team: "Tenerife"}))

	byName, err := repo.Find(tc.ctx, models.PlayerFilter{Query: "alvaro"})
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	byTeam, err := repo.Find(tc.ctx, models.PlayerFilter{Team: "tenerife"})
	require.NoError(t, err)
	assert.Len(t, byTeam, 2)

	// 2006-06-02 is still 19 on 2026-06-01.
	young, err := repo.Find(tc.ctx, models.PlayerFilter{MaxAge: 19})
	require.NoError(t, err)
	require.Len(t, young, 1)
	assert.Equal(t, "Álvaro Ruiz", young[0].Name)

	senior, err := repo.Find(tc.ctx, models.PlayerFilter{MinAge: 20})
	require.NoError(t, err)
	require.Len(t, senior, 1)
	assert.Equal(t, "Alvaro Gil", senior[0].Name)

	page, err := repo.Find(tc.ctx, models.PlayerFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	teams, err := repo.ListTeams(tc.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Las Palmas", "Tenerife"}, teams)
}

func TestPlayerRepository_DeleteCascades(t *testing.T) {
	tc := setupRepoTest(t)
	p := tc.createPlayer("Ana", "")
	r := tc.createReport(p.ID, nil, "Buena lectura")
	require.NoError(t, tc.attach.Create(tc.ctx, &models.Attachment{ReportID: r.ID, Kind: models.AttachmentLink, URL: "https://example.com/clip"}))
	require.NoError(t, tc.exports.Record(tc.ctx, &models.ExportCacheEntry{PlayerID: p.ID, Fingerprint: "x", FilePath: "a.pdf"}))

	require.NoError(t, tc.players.Delete(tc.ctx, p.ID))
	assert.Equal(t, 0, tc.countRows("reports"))
	assert.Equal(t, 0, tc.countRows("attachments"))
	assert.Equal(t, 0, tc.countRows("export_cache"))

	assert.True(t, errors.Is(tc.players.Delete(tc.ctx, p.ID), apperrors.ErrNotFound))
}

func TestPlayerRepository_BackfillNormalizedNames(t *testing.T) {
	tc := setupRepoTest(t)
	err := tc.db.WithTx(tc.ctx, func(ctx context.Context, q database.Querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO players (name) VALUES ('Íñigo Martínez')`)
		return err
	})
	require.NoError(t, err)

	n, err := tc.players.BackfillNormalizedNames(tc.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := tc.players.Find(tc.ctx, models.PlayerFilter{Query: "inigo"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
