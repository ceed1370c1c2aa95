package oblique

import (
	"context"
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func projectedGrid(t *testing.T) *Project {
	t.Helper()
	p := gridProject()
	_, err := ProjectFootprints(context.Background(), p, FootprintOptions{})
	require.NoError(t, err)
	return p
}

func TestAOIShapes(t *testing.T) {
	aoi := square(0, 0, 10, 10)
	footprint := Shape{Key: 9, Group: DefaultFootprintsGroup, Geometry: PolygonGeometry(square(0, 0, 1, 1))}

	tests := []struct {
		name      string
		shapes    []Shape
		wantErr   bool
		wantLines int
	}{
		{"polygon only", []Shape{aoiShape(0, aoi), footprint}, false, 0},
		{"polygon and lines", []Shape{lineShape(1, orb.LineString{{5, -1}, {5, 11}}), aoiShape(0, aoi), lineShape(2, orb.LineString{{-1, 5}, {11, 5}})}, false, 2},
		{"short line ignored", []Shape{aoiShape(0, aoi), lineShape(1, orb.LineString{{5, 5}})}, false, 0},
		{"no AOI group", []Shape{footprint}, true, 0},
		{"no shapes", nil, true, 0},
		{"two groups", []Shape{aoiShape(0, aoi), {Key: 1, Group: "Other", Geometry: PolygonGeometry(aoi)}}, true, 0},
		{"two polygons", []Shape{aoiShape(0, aoi), aoiShape(1, square(20, 20, 30, 30))}, true, 0},
		{"lines without polygon", []Shape{lineShape(1, orb.LineString{{5, -1}, {5, 11}})}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			poly, lines, err := AOIShapes(tt.shapes, DefaultFootprintsGroup)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAOIConfig)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, 100, math.Abs(PolygonArea(poly)), 1e-9)
			assert.Len(t, lines, tt.wantLines)
		})
	}
}

func TestAOIShapes_LineOrder(t *testing.T) {
	shapes := []Shape{
		lineShape(1, orb.LineString{{5, -1}, {5, 11}}),
		aoiShape(0, square(0, 0, 10, 10)),
		lineShape(2, orb.LineString{{-1, 5}, {11, 5}}),
	}
	_, lines, err := AOIShapes(shapes, DefaultFootprintsGroup)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, orb.Point{5, -1}, lines[0][0])
	assert.Equal(t, orb.Point{-1, 5}, lines[1][0])
}

func TestPartitionProject_InsideOutside(t *testing.T) {
	p := projectedGrid(t)

	part, err := PartitionProject(context.Background(), p, DefaultFootprintsGroup)
	require.NoError(t, err)

	assert.False(t, part.Split())
	assert.Empty(t, part.Blocks)
	assert.Equal(t, []int{3, 4, 5}, part.Inside)
	assert.Equal(t, []int{0, 1, 2, 6, 7, 8}, part.Outside)

	// strict partition of the camera set
	all := append(append([]int(nil), part.Inside...), part.Outside...)
	sort.Ints(all)
	var keys []int
	for _, c := range p.Cameras {
		keys = append(keys, c.Key)
	}
	assert.Equal(t, keys, all)
}

func TestPartitionProject_VerticalSplit(t *testing.T) {
	p := projectedGrid(t)
	p.Shapes = append(p.Shapes, lineShape(1, orb.LineString{{3000, 0}, {3000, 6000}}))

	part, err := PartitionProject(context.Background(), p, DefaultFootprintsGroup)
	require.NoError(t, err)

	require.True(t, part.Split())
	require.Len(t, part.Blocks, 2)
	assert.Empty(t, part.Inside)
	assert.Equal(t, []int{0, 1, 2, 6, 7, 8}, part.Outside)

	aoiArea := math.Abs(PolygonArea(part.AOI))
	blockArea := 0.0
	var cams [][]int
	for i, b := range part.Blocks {
		blockArea += math.Abs(PolygonArea(b.Polygon))
		cams = append(cams, b.Cameras)
		assert.Equal(t, fmt.Sprintf("BLOCK%d", i), b.Label)
	}
	assert.InDelta(t, aoiArea, blockArea, 1e-6)
	// the middle camera spans the split and belongs to both blocks
	assert.ElementsMatch(t, [][]int{{3, 4}, {4, 5}}, cams)
	assert.Empty(t, part.Unassigned)
}

func TestPartitionProject_TwoLines(t *testing.T) {
	p := projectedGrid(t)
	p.Shapes = append(p.Shapes,
		lineShape(1, orb.LineString{{3000, 0}, {3000, 6000}}),
		lineShape(2, orb.LineString{{0, 3000}, {6000, 3000}}),
	)

	part, err := PartitionProject(context.Background(), p, DefaultFootprintsGroup)
	require.NoError(t, err)
	require.Len(t, part.Blocks, 4, "every part left by the first line is split by the second")
	for _, b := range part.Blocks {
		assert.InDelta(t, 1200*1200, math.Abs(PolygonArea(b.Polygon)), 1e-6)
		assert.Contains(t, b.Cameras, 4)
	}
}

func TestPartitionProject_Unprojected(t *testing.T) {
	p := projectedGrid(t)
	p.Cameras = append(p.Cameras, nadirCamera(42, 3000, 3000))

	part, err := PartitionProject(context.Background(), p, DefaultFootprintsGroup)
	require.NoError(t, err)
	assert.Equal(t, []int{42}, part.Unprojected)
	assert.NotContains(t, part.Inside, 42)
	assert.NotContains(t, part.Outside, 42)
}

func TestPartitionProject_AOIError(t *testing.T) {
	p := projectedGrid(t)
	p.Shapes = append(p.Shapes, aoiShape(1, square(0, 0, 1, 1)))

	_, err := PartitionProject(context.Background(), p, DefaultFootprintsGroup)
	assert.ErrorIs(t, err, ErrAOIConfig)
}

func TestSplitByLines_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := SplitByLines(ctx, square(0, 0, 10, 10), []orb.LineString{{{5, -1}, {5, 11}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPartitionFootprints_NoFootprints(t *testing.T) {
	part, err := PartitionFootprints(context.Background(), square(0, 0, 10, 10), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, part.Inside)
	assert.Empty(t, part.Outside)
}
