package oblique

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/paulmach/orb"
)

// Partition is the result of dividing the cameras of a project by the AOI.
// Without split lines Blocks is empty and Inside holds the interior
// cameras. With split lines Inside is empty and each block lists every
// camera whose footprint intersects it, so a camera may appear in several
// blocks.
type Partition struct {
	AOI     orb.Polygon `json:"aoi"`
	Outside []int       `json:"outside"`
	Inside  []int       `json:"inside,omitempty"`
	Blocks  []Block     `json:"blocks,omitempty"`

	// Unassigned holds interior cameras whose footprint touches the AOI but
	// none of the blocks.
	Unassigned []int `json:"unassigned,omitempty"`
	// Unprojected holds cameras without a footprint.
	Unprojected []int `json:"unprojected,omitempty"`
}

// Split reports whether the AOI was divided into blocks
func (p *Partition) Split() bool {
	return len(p.Blocks) > 0
}

// AOIShapes returns the AOI polygon and split lines from the shapes. All
// shapes outside footprintsGroup must belong to one group holding exactly
// one polygon. Line strings in that group are the split lines, in input
// order.
func AOIShapes(shapes []Shape, footprintsGroup string) (orb.Polygon, []orb.LineString, error) {
	var groups []string
	seen := make(map[string]bool)
	for _, s := range shapes {
		if s.Group == footprintsGroup || seen[s.Group] {
			continue
		}
		seen[s.Group] = true
		groups = append(groups, s.Group)
	}
	switch {
	case len(groups) == 0:
		return nil, nil, fmt.Errorf("%w: no shapes group other than %q", ErrAOIConfig, footprintsGroup)
	case len(groups) > 1:
		return nil, nil, fmt.Errorf("%w: only one shapes group other than %q is allowed, found %v",
			ErrAOIConfig, footprintsGroup, groups)
	}
	aoiGroup := groups[0]

	var polygons []orb.Polygon
	var lines []orb.LineString
	for _, s := range shapes {
		if s.Group != aoiGroup || s.Geometry == nil {
			continue
		}
		switch s.Geometry.Type {
		case GeometryPolygon:
			poly := orbPolygon(s.Geometry)
			if len(poly) == 0 || len(poly[0]) < 3 {
				return nil, nil, fmt.Errorf("%w: shape %d has an invalid polygon", ErrAOIConfig, s.Key)
			}
			polygons = append(polygons, poly)
		case GeometryLineString:
			line := orbLineString(s.Geometry)
			if len(line) < 2 {
				log.Printf("Ignoring split line %d with %d points", s.Key, len(line))
				continue
			}
			lines = append(lines, line)
		}
	}

	if len(polygons) != 1 {
		return nil, nil, fmt.Errorf("%w: group %q must contain exactly one polygon, found %d",
			ErrAOIConfig, aoiGroup, len(polygons))
	}
	return polygons[0], lines, nil
}

// SplitByLines splits the polygon by each line in turn. Every part left by
// the previous line is split by the next one.
func SplitByLines(ctx context.Context, aoi orb.Polygon, lines []orb.LineString) ([]orb.Polygon, error) {
	parts := []orb.Polygon{aoi}
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("splitting by line %d: %w", i, err)
		}
		next := make([]orb.Polygon, 0, len(parts)+1)
		for _, part := range parts {
			next = append(next, SplitPolygon(part, line)...)
		}
		parts = next
	}
	return parts, nil
}

// PartitionFootprints divides the footprints by the AOI and the split lines.
// Footprints that do not intersect the AOI are outside. The rest go to
// Inside when there are no lines, otherwise to every block they intersect.
func PartitionFootprints(ctx context.Context, aoi orb.Polygon, lines []orb.LineString, footprints []Footprint) (*Partition, error) {
	part := &Partition{AOI: aoi}

	var inside []*Footprint
	for i := range footprints {
		f := &footprints[i]
		if Intersects(aoi, f.Polygon()) {
			inside = append(inside, f)
		} else {
			part.Outside = append(part.Outside, f.Frame)
		}
	}

	if len(lines) == 0 {
		for _, f := range inside {
			part.Inside = append(part.Inside, f.Frame)
		}
		return part, nil
	}

	polys, err := SplitByLines(ctx, aoi, lines)
	if err != nil {
		return nil, err
	}

	part.Blocks = make([]Block, len(polys))
	for i, poly := range polys {
		part.Blocks[i] = Block{Label: fmt.Sprintf("BLOCK%d", i), Polygon: poly}
	}
	for _, f := range inside {
		fp := f.Polygon()
		matched := false
		for i := range part.Blocks {
			if Intersects(part.Blocks[i].Polygon, fp) {
				part.Blocks[i].Cameras = append(part.Blocks[i].Cameras, f.Frame)
				matched = true
			}
		}
		if !matched {
			part.Unassigned = append(part.Unassigned, f.Frame)
		}
	}
	if len(part.Unassigned) > 0 {
		log.Printf("%d interior camera(s) match no block: %v", len(part.Unassigned), part.Unassigned)
	}
	return part, nil
}

// PartitionProject reads the AOI from the project shapes and partitions the
// project cameras by their footprints.
func PartitionProject(ctx context.Context, p *Project, footprintsGroup string) (*Partition, error) {
	aoi, lines, err := AOIShapes(p.Shapes, footprintsGroup)
	if err != nil {
		return nil, err
	}
	part, err := PartitionFootprints(ctx, aoi, lines, p.Footprints)
	if err != nil {
		return nil, err
	}

	for i := range p.Cameras {
		if p.FootprintFor(&p.Cameras[i]) == nil {
			part.Unprojected = append(part.Unprojected, p.Cameras[i].Key)
		}
	}
	if len(part.Unprojected) > 0 {
		sort.Ints(part.Unprojected)
		log.Printf("%d camera(s) have no footprint and were not partitioned", len(part.Unprojected))
	}
	return part, nil
}
