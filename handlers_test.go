package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/obliqueplan/oblique"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func flatConfig() *oblique.Config {
	cfg := oblique.DefaultConfig()
	cfg.TerrainHeight = 0
	cfg.Render.Scale = 0.02
	return cfg
}

// plannedState returns a PlanState holding the plan of the survey project,
// split into two blocks when split is set
func plannedState(t *testing.T, split bool) *oblique.PlanState {
	t.Helper()
	p := surveyProject("survey")
	if split {
		p.Shapes = append(p.Shapes, oblique.Shape{
			Key:      1,
			Group:    "AOI",
			Geometry: oblique.LineStringGeometry(orb.LineString{{3000, 0}, {3000, 6000}}),
		})
	}
	pl, err := oblique.BuildPlan(t.Context(), p, flatConfig())
	require.NoError(t, err)

	st := oblique.NewPlanState()
	st.SetPlan(pl)
	return st
}

func serve(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// endpoints
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		state   func(*testing.T) *oblique.PlanState
		hasPlan bool
	}{
		{"empty", func(*testing.T) *oblique.PlanState { return oblique.NewPlanState() }, false},
		{"planned", func(t *testing.T) *oblique.PlanState { return plannedState(t, false) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, newHTTPServer(tt.state(t), flatConfig()), "/health")

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body struct {
				Status  string `json:"status"`
				HasPlan bool   `json:"hasPlan"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "ok", body.Status)
			assert.Equal(t, tt.hasPlan, body.HasPlan)
		})
	}
}

func TestEndpoints_NoPlan(t *testing.T) {
	h := newHTTPServer(oblique.NewPlanState(), nil)

	for _, path := range []string{"/footprints.geojson", "/blocks.json", "/pairs.json", "/histogram.csv", "/plan.png", "/plan.svg"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(t, h, path)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			assert.Contains(t, rec.Body.String(), "No plan available")
		})
	}
}

func TestFootprintsEndpoint(t *testing.T) {
	rec := serve(t, newHTTPServer(plannedState(t, false), flatConfig()), "/footprints.geojson")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 9)
	assert.Equal(t, "Nadir", fc.Features[0].Properties["Direction"])
}

func TestBlocksEndpoint(t *testing.T) {
	rec := serve(t, newHTTPServer(plannedState(t, true), flatConfig()), "/blocks.json")

	require.Equal(t, http.StatusOK, rec.Code)
	var part oblique.Partition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &part))
	assert.Equal(t, []int{0, 1, 2, 6, 7, 8}, part.Outside)
	require.Len(t, part.Blocks, 2)
	assert.Equal(t, []int{3, 4}, part.Blocks[0].Cameras)
	assert.Equal(t, []int{4, 5}, part.Blocks[1].Cameras)
}

func TestPairsEndpoint(t *testing.T) {
	h := newHTTPServer(plannedState(t, true), flatConfig())

	t.Run("all blocks", func(t *testing.T) {
		rec := serve(t, h, "/pairs.json")
		require.Equal(t, http.StatusOK, rec.Code)
		var all []oblique.BlockPairs
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
		require.Len(t, all, 2)
		assert.Equal(t, "survey_BLOCK0", all[0].Label)
	})

	t.Run("one block", func(t *testing.T) {
		rec := serve(t, h, "/pairs.json?project=survey_BLOCK1")
		require.Equal(t, http.StatusOK, rec.Code)
		var pairs []oblique.Pair
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pairs))
		assert.Equal(t, []oblique.Pair{{A: 4, B: 5}}, pairs)
	})

	t.Run("unknown project", func(t *testing.T) {
		rec := serve(t, h, "/pairs.json?project=nope")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHistogramEndpoint(t *testing.T) {
	st := plannedState(t, false)
	inside := st.Plan().Document.Find("survey_INSIDE")
	require.NotNil(t, inside)
	inside.PointCloud = oblique.PointCloud{
		Points:      []oblique.TiePoint{{TrackID: 1, Valid: true}},
		Projections: map[int][]int{3: {1}, 4: {1}},
	}
	h := newHTTPServer(st, flatConfig())

	t.Run("default project", func(t *testing.T) {
		rec := serve(t, h, "/histogram.csv")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
		assert.Equal(t, "N; G1; G2; G3; G4; G5\n2; 1; 0; 0; 0; 0\n", rec.Body.String())
	})

	t.Run("unknown project", func(t *testing.T) {
		rec := serve(t, h, "/histogram.csv?project=nope")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("ungrouped camera", func(t *testing.T) {
		inside.Cameras[0].Group = oblique.DirectionNone
		defer func() { inside.Cameras[0].Group = oblique.DirectionNadir }()

		rec := serve(t, h, "/histogram.csv?project=survey_INSIDE")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestPlanImageEndpoints(t *testing.T) {
	h := newHTTPServer(plannedState(t, true), flatConfig())

	t.Run("png", func(t *testing.T) {
		rec := serve(t, h, "/plan.png")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
	})

	t.Run("svg", func(t *testing.T) {
		rec := serve(t, h, "/plan.svg")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "<svg")
	})
}

func TestIndexEndpoint(t *testing.T) {
	h := newHTTPServer(oblique.NewPlanState(), nil)

	rec := serve(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<img src="/plan.svg"`)

	rec = serve(t, h, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
