package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/obliqueplan/oblique"
)

// surveyProject returns nine nadir cameras on a 3x3 grid 3000 units apart
// with an AOI over the middle row. At terrain height 0 the middle row
// (keys 3, 4, 5) is inside.
func surveyProject(label string) *oblique.Project {
	f := 1000.0
	p := &oblique.Project{Label: label}
	key := 0
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			p.Cameras = append(p.Cameras, oblique.Camera{
				Key:      key,
				Label:    "IMG_" + string(rune('A'+key)),
				Location: r3.Vector{X: float64(col) * 3000, Y: float64(row) * 3000, Z: 1000},
				Rotation: oblique.OPK(0, 0, 0),
				Sensor:   oblique.Sensor{Width: 4000, Height: 3000, F: &f},
			})
			key++
		}
	}
	aoi := orb.Polygon{{{1800, 1800}, {4200, 1800}, {4200, 4200}, {1800, 4200}, {1800, 1800}}}
	p.Shapes = []oblique.Shape{{Key: 0, Group: "AOI", Geometry: oblique.PolygonGeometry(aoi)}}
	return p
}

// newTestApp writes a flat-terrain config and the survey project to a temp
// dir and returns an app pointed at them
func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "out")

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("terrainHeight: 0\noutput: "+out+"\n"), 0644))
	projectPath := filepath.Join(dir, "survey.json")
	require.NoError(t, oblique.SaveProject(projectPath, surveyProject("survey")))

	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:   configPath,
		ProjectFile:  projectPath,
		RenderFormat: "png",
	})
	return app, out
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	require.NotNil(t, app)
	assert.NotNil(t, app.State)
	assert.False(t, app.State.HasPlan())
}

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile:    "c.yaml",
		ProjectFile:   "p.json",
		ProjectURL:    "http://x",
		DocumentFile:  "d.json",
		ReferenceFile: "r.txt",
		AOIFile:       "a.geojson",
		OutputDir:     "out",
		OutputFile:    "o.png",
		RenderFormat:  "svg",
		TerrainHeight: 12,
		TerrainSet:    true,
		Workers:       2,
		HttpPort:      8080,
		Cleanup:       true,
		MqttMode:      true,
		HttpMode:      true,
	})

	assert.Equal(t, "c.yaml", app.ConfigFile)
	assert.Equal(t, "p.json", app.ProjectFile)
	assert.Equal(t, "http://x", app.ProjectURL)
	assert.Equal(t, "d.json", app.DocumentFile)
	assert.Equal(t, "r.txt", app.ReferenceFile)
	assert.Equal(t, "a.geojson", app.AOIFile)
	assert.Equal(t, "out", app.OutputDir)
	assert.Equal(t, "o.png", app.OutputFile)
	assert.Equal(t, "svg", app.RenderFormat)
	assert.Equal(t, 12.0, app.TerrainHeight)
	assert.True(t, app.TerrainSet)
	assert.Equal(t, 2, app.Workers)
	assert.Equal(t, 8080, app.HttpPort)
	assert.True(t, app.Cleanup)
	assert.True(t, app.MqttMode)
	assert.True(t, app.HttpMode)
}

func TestApp_LoadConfig(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		app, out := newTestApp(t)
		require.NoError(t, app.loadConfig())
		assert.Zero(t, app.Config.TerrainHeight)
		assert.Equal(t, out, app.Config.Output)
	})

	t.Run("overrides", func(t *testing.T) {
		app, _ := newTestApp(t)
		app.TerrainHeight, app.TerrainSet = 55, true
		app.Workers = 3
		app.OutputDir = "elsewhere"
		app.HttpPort = 9999
		require.NoError(t, app.loadConfig())
		assert.Equal(t, 55.0, app.Config.TerrainHeight)
		assert.Equal(t, 3, app.Config.Workers)
		assert.Equal(t, "elsewhere", app.Config.Output)
		assert.Equal(t, 9999, app.Config.HTTP.Port)
	})

	t.Run("missing default falls back", func(t *testing.T) {
		t.Chdir(t.TempDir())
		app := NewApp()
		app.ConfigFile = "config.yaml"
		require.NoError(t, app.loadConfig())
		assert.Equal(t, oblique.DefaultTerrainHeight, app.Config.TerrainHeight)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		app := NewApp()
		app.ConfigFile = filepath.Join(t.TempDir(), "nope.yaml")
		assert.ErrorContains(t, app.loadConfig(), "config file not found")
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("workers: 1\n"), 0644))
		app := NewApp()
		app.ConfigFile = path
		assert.ErrorContains(t, app.loadConfig(), "terrainHeight is required")
	})
}

func TestApp_LoadProject(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		app, _ := newTestApp(t)
		require.NoError(t, app.loadConfig())
		p, err := app.loadProject(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "survey", p.Label)
		assert.Len(t, p.Cameras, 9)
	})

	t.Run("label from file name", func(t *testing.T) {
		app, _ := newTestApp(t)
		require.NoError(t, app.loadConfig())
		path := filepath.Join(t.TempDir(), "north field.json")
		require.NoError(t, oblique.SaveProject(path, surveyProject("")))
		app.ProjectFile = path

		p, err := app.loadProject(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "north field", p.Label)
	})

	t.Run("no project", func(t *testing.T) {
		app := NewApp()
		app.Config = oblique.DefaultConfig()
		_, err := app.loadProject(t.Context())
		assert.ErrorContains(t, err, "no project given")
	})

	t.Run("camera reference", func(t *testing.T) {
		app, _ := newTestApp(t)
		require.NoError(t, app.loadConfig())
		ref := filepath.Join(t.TempDir(), "reference.txt")
		require.NoError(t, os.WriteFile(ref, []byte("IMG_E\t1\t2\t900\t0\t0\t45\n"), 0644))
		app.ReferenceFile = ref

		p, err := app.loadProject(t.Context())
		require.NoError(t, err)
		assert.Equal(t, r3.Vector{X: 1, Y: 2, Z: 900}, p.Cameras[4].Location)
		assert.Equal(t, oblique.OPK(0, 0, 45), p.Cameras[4].Rotation)
	})

	t.Run("AOI replaces user shapes", func(t *testing.T) {
		app, _ := newTestApp(t)
		require.NoError(t, app.loadConfig())
		aoi := filepath.Join(t.TempDir(), "aoi.geojson")
		require.NoError(t, os.WriteFile(aoi, []byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,0]]]}},
			{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[5,-1],[5,11]]}}
		]}`), 0644))
		app.AOIFile = aoi

		p, err := app.loadProject(t.Context())
		require.NoError(t, err)
		require.Len(t, p.Shapes, 2)
		assert.Equal(t, oblique.GeometryPolygon, p.Shapes[0].Geometry.Type)
		assert.Equal(t, oblique.GeometryLineString, p.Shapes[1].Geometry.Type)
		assert.Equal(t, 0, p.Shapes[0].Key)
		assert.Equal(t, 1, p.Shapes[1].Key)
	})
}

func TestApp_RunFootprints(t *testing.T) {
	app, out := newTestApp(t)

	require.NoError(t, app.RunFootprints())

	p, err := oblique.ParseProjectFile(filepath.Join(out, "survey.json"))
	require.NoError(t, err)
	assert.Len(t, p.Footprints, 9)
	for _, c := range p.Cameras {
		require.NotNil(t, c.FootprintID)
		assert.Equal(t, oblique.DirectionNadir, c.Group)
	}
	_, err = os.Stat(filepath.Join(out, "survey_footprints.geojson"))
	assert.NoError(t, err)
}

func TestApp_RunClassify(t *testing.T) {
	app, out := newTestApp(t)

	require.NoError(t, app.RunClassify())

	p, err := oblique.ParseProjectFile(filepath.Join(out, "survey.json"))
	require.NoError(t, err)
	assert.Equal(t, 9, oblique.Summarize(p).Groups[oblique.DirectionNadir])
}

func TestApp_RunBlocks(t *testing.T) {
	app, out := newTestApp(t)

	require.NoError(t, app.RunBlocks())

	doc, err := oblique.LoadDocument(filepath.Join(out, "survey.plan.json"))
	require.NoError(t, err)
	require.Len(t, doc.Projects, 3)
	assert.NotNil(t, doc.Find("survey_OUTSIDE"))
	inside := doc.Find("survey_INSIDE")
	require.NotNil(t, inside)
	assert.Len(t, inside.Cameras, 3)
	_, err = os.Stat(filepath.Join(out, "survey_blocks.geojson"))
	assert.NoError(t, err)
}

func TestApp_RunPairs(t *testing.T) {
	app, out := newTestApp(t)

	require.NoError(t, app.RunPairs())

	data, err := os.ReadFile(filepath.Join(out, "survey_pairs.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"label": "survey_INSIDE"`)
}

func TestApp_RunFilterAndHistogram(t *testing.T) {
	app, out := newTestApp(t)
	require.NoError(t, app.RunBlocks())

	// give the inside project a few tracks
	docPath := filepath.Join(out, "survey.plan.json")
	doc, err := oblique.LoadDocument(docPath)
	require.NoError(t, err)
	inside := doc.Find("survey_INSIDE")
	inside.PointCloud = oblique.PointCloud{
		Points: []oblique.TiePoint{{TrackID: 1, Valid: true}, {TrackID: 2, Valid: true}, {TrackID: 3, Valid: true}},
		Projections: map[int][]int{
			3: {1, 2, 3},
			4: {1, 2, 3},
			5: {2},
		},
	}
	require.NoError(t, oblique.SaveDocument(doc))

	filter := NewApp()
	filter.ApplyOptions(AppOptions{ConfigFile: app.ConfigFile, DocumentFile: docPath, Cleanup: true})
	require.NoError(t, filter.RunFilter())

	doc, err = oblique.LoadDocument(docPath)
	require.NoError(t, err)
	inside = doc.Find("survey_INSIDE")
	require.Len(t, inside.PointCloud.Points, 2)
	assert.Equal(t, []int{1, 2}, inside.PointCloud.Projections[3])

	hist := NewApp()
	hist.ApplyOptions(AppOptions{ConfigFile: app.ConfigFile, DocumentFile: docPath})
	require.NoError(t, hist.RunHistogram())

	data, err := os.ReadFile(filepath.Join(out, "survey_INSIDE.csv"))
	require.NoError(t, err)
	assert.Equal(t, "N; G1; G2; G3; G4; G5\n2; 1; 0; 0; 0; 0\n3; 1; 0; 0; 0; 0\n", string(data))
}

func TestApp_RunFilter_NoPartitions(t *testing.T) {
	app, out := newTestApp(t)
	require.NoError(t, app.loadConfig())
	require.NoError(t, os.MkdirAll(out, 0o755))
	docPath := filepath.Join(out, "empty.plan.json")
	require.NoError(t, oblique.SaveDocument(&oblique.Document{Path: docPath, Projects: []*oblique.Project{{Label: "x"}}}))
	app.DocumentFile = docPath

	assert.ErrorIs(t, app.RunFilter(), oblique.ErrNoPartitions)
}

func TestApp_RunStages(t *testing.T) {
	app, _ := newTestApp(t)
	assert.NoError(t, app.RunStages())
}

func TestApp_RunRender(t *testing.T) {
	tests := []struct {
		format string
		file   string
		magic  string
	}{
		{"svg", "survey.svg", "<svg"},
		{"raster", "survey.png", "\x89PNG"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			app, out := newTestApp(t)
			app.RenderFormat = tt.format
			require.NoError(t, app.loadConfig())
			app.Config.Render.Scale = 0.02

			require.NoError(t, app.RunRender())

			data, err := os.ReadFile(filepath.Join(out, tt.file))
			require.NoError(t, err)
			assert.True(t, strings.Contains(string(data[:min(len(data), 512)]), tt.magic))
		})
	}
}

func TestRenderView_UnknownFormat(t *testing.T) {
	view := &oblique.PlanView{}
	err := renderView(view, oblique.DefaultConfig().Render, "gif", filepath.Join(t.TempDir(), "x.gif"))
	assert.ErrorContains(t, err, "unknown render format")
}

func TestApp_RunPlan(t *testing.T) {
	app, out := newTestApp(t)

	require.NoError(t, app.RunPlan())

	_, err := os.Stat(filepath.Join(out, "survey.plan.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(out, "survey_pairs.json"))
	assert.NoError(t, err)
}

func TestApp_RunPlan_MQTTNotConfigured(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	app, _ := newTestApp(t)
	app.MqttMode = true

	assert.ErrorContains(t, app.RunPlan(), "MQTT broker not configured")
}
