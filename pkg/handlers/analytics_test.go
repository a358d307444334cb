package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/services"
)

// seedAnalytics creates three forwards with one 2024/25 club row each.
func (tc *apiTestContext) seedAnalytics() (ana, bea, cris *models.Player) {
	tc.t.Helper()
	add := func(name, team string, minutes, goals int) *models.Player {
		p := tc.createPlayer(map[string]any{"name": name, "team": team, "position": "Delantero"})
		_, err := tc.seasons.AppendMany(context.Background(), p.ID, []*models.SeasonRecord{{
			Season: "2024/25", Team: team,
			Appearances: models.IntPtr(minutes / 90), Minutes: models.IntPtr(minutes), Goals: models.IntPtr(goals),
		}})
		require.NoError(tc.t, err)
		return p
	}
	return add("Ana López", "Tenerife", 2700, 15), add("Bea Ruiz", "Tenerife", 1800, 3), add("Cris Soto", "Cádiz", 900, 6)
}

func TestAnalyticsHandler_Catalogue(t *testing.T) {
	tc := setupAPITest(t)
	tc.seedAnalytics()

	rec := tc.do(http.MethodGet, "/api/analytics/metrics", tc.scoutToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cat services.AnalyticsCatalogue
	decodeData(t, rec, &cat)
	assert.Equal(t, []string{"2024/25"}, cat.Seasons)
	assert.NotEmpty(t, cat.Metrics)

	rec = tc.do(http.MethodGet, "/api/analytics/metrics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnalyticsHandler_Percentiles(t *testing.T) {
	tc := setupAPITest(t)
	ana, bea, _ := tc.seedAnalytics()

	rec := tc.do(http.MethodGet, fmt.Sprintf("/api/players/%d/percentiles?metrics=goals,minutes", bea.ID), tc.scoutToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var profile services.PercentileProfile
	decodeData(t, rec, &profile)
	assert.Equal(t, "2024/25", profile.Season)
	require.Len(t, profile.Metrics, 2)
	assert.Equal(t, "goals", profile.Metrics[0].Metric)
	assert.InDelta(t, 100.0/3, *profile.Metrics[0].Percentile, 1e-9)

	rec = tc.do(http.MethodGet, fmt.Sprintf("/api/players/%d/percentiles?metrics=goals&team=tenerife", ana.ID), tc.scoutToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &profile)
	assert.Equal(t, 2, profile.Population)
	assert.Equal(t, 100.0, *profile.Metrics[0].Percentile)

	rec = tc.do(http.MethodGet, fmt.Sprintf("/api/players/%d/percentiles?metrics=xg", ana.ID), tc.scoutToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec)["error"])

	rec = tc.do(http.MethodGet, "/api/players/9999/percentiles", tc.scoutToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyticsHandler_PopulationParams(t *testing.T) {
	tc := setupAPITest(t)
	ana, _, _ := tc.seedAnalytics()
	path := fmt.Sprintf("/api/players/%d/percentiles", ana.ID)

	rec := tc.do(http.MethodGet, path+"?min_age=-1", tc.scoutToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_min_age", decodeError(t, rec)["error"])

	rec = tc.do(http.MethodGet, path+"?min_minutes=lots", tc.scoutToken, nil)
	assert.Equal(t, "invalid_min_minutes", decodeError(t, rec)["error"])

	q := url.Values{"team": {"'; DROP TABLE users--"}}
	rec = tc.do(http.MethodGet, path+"?"+q.Encode(), tc.scoutToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_search", decodeError(t, rec)["error"])

	rec = tc.do(http.MethodGet, path+"?min_minutes=2000&metrics=goals", tc.scoutToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var profile services.PercentileProfile
	decodeData(t, rec, &profile)
	assert.Equal(t, 1, profile.Population)
}

func TestAnalyticsHandler_Compare(t *testing.T) {
	tc := setupAPITest(t)
	ana, bea, cris := tc.seedAnalytics()

	path := fmt.Sprintf("/api/players/compare?ids=%d,%d,%d&metrics=goals", ana.ID, bea.ID, cris.ID)
	rec := tc.do(http.MethodGet, path, tc.scoutToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cmp services.Comparison
	decodeData(t, rec, &cmp)
	require.Len(t, cmp.Players, 3)
	assert.Equal(t, "Ana López", cmp.Players[0].Player.Name)
	assert.Equal(t, 100.0, *cmp.Players[0].Metrics[0].Percentile)

	rec = tc.do(http.MethodGet, fmt.Sprintf("/api/players/compare?ids=%d", ana.ID), tc.scoutToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec)["error"])

	rec = tc.do(http.MethodGet, "/api/players/compare?ids=1,dos", tc.scoutToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_ids", decodeError(t, rec)["error"])
}

func TestAnalyticsHandler_Teams(t *testing.T) {
	tc := setupAPITest(t)
	tc.seedAnalytics()

	rec := tc.do(http.MethodGet, "/api/analytics/teams?metric=goals&agg=sum", tc.scoutToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var agg services.TeamAggregates
	decodeData(t, rec, &agg)
	assert.Equal(t, []services.TeamValue{
		{Team: "Tenerife", Value: 18, Players: 2},
		{Team: "Cádiz", Value: 6, Players: 1},
	}, agg.Teams)

	rec = tc.do(http.MethodGet, "/api/analytics/teams?metric=goals&agg=max", tc.scoutToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyticsHandler_ScatterAndCorrelations(t *testing.T) {
	tc := setupAPITest(t)
	tc.seedAnalytics()

	rec := tc.do(http.MethodGet, "/api/analytics/scatter?x=minutes&y=goals", tc.scoutToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sc services.ScatterData
	decodeData(t, rec, &sc)
	assert.Len(t, sc.Points, 3)
	assert.InDelta(t, 1800.0, sc.MeanX, 1e-9)
	require.NotNil(t, sc.Correlation)

	rec = tc.do(http.MethodGet, "/api/analytics/scatter?x=minutes", tc.scoutToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = tc.do(http.MethodGet, "/api/analytics/correlations?metrics=minutes,goals,appearances", tc.scoutToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var m services.CorrelationMatrix
	decodeData(t, rec, &m)
	require.Len(t, m.Values, 3)
	require.NotNil(t, m.Values[0][2])
	assert.InDelta(t, 1.0, *m.Values[0][2], 1e-9, "appearances follow minutes")
}
