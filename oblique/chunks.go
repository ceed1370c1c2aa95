package oblique

import (
	"fmt"
	"strings"
)

// Suffixes of projects derived from a partition
const (
	SuffixOutside = "_OUTSIDE"
	SuffixInside  = "_INSIDE"
	SuffixBlock   = "_BLOCK"
)

// Document is a set of projects: a source survey and the projects derived
// from it.
type Document struct {
	Path     string     `json:"-"`
	Projects []*Project `json:"projects"`
}

// Add appends projects to the document
func (d *Document) Add(projects ...*Project) {
	d.Projects = append(d.Projects, projects...)
}

// Find returns the project with the given label, or nil
func (d *Document) Find(label string) *Project {
	for _, p := range d.Projects {
		if p.Label == label {
			return p
		}
	}
	return nil
}

// Subset returns a copy of the project with only the given cameras and
// their footprints. Shapes and tie points are carried over; projections of
// removed cameras are dropped.
func (p *Project) Subset(label string, keys []int) *Project {
	keep := make(map[int]bool, len(keys))
	for _, k := range keys {
		keep[k] = true
	}

	out := &Project{
		Label:  label,
		Shapes: append([]Shape(nil), p.Shapes...),
		PointCloud: PointCloud{
			Points:      append([]TiePoint(nil), p.PointCloud.Points...),
			Projections: make(map[int][]int),
		},
	}
	for _, c := range p.Cameras {
		if !keep[c.Key] {
			continue
		}
		if c.FootprintID != nil {
			id := *c.FootprintID
			c.FootprintID = &id
		}
		out.Cameras = append(out.Cameras, c)
		if obs, ok := p.PointCloud.Projections[c.Key]; ok {
			out.PointCloud.Projections[c.Key] = append([]int(nil), obs...)
		}
	}
	for _, f := range p.Footprints {
		if keep[f.Frame] {
			f.Ring = append(f.Ring[:0:0], f.Ring...)
			out.Footprints = append(out.Footprints, f)
		}
	}
	return out
}

// SplitProject builds the derived projects of a partition: the outside
// cameras, then either the inside cameras or one project per block.
func SplitProject(p *Project, part *Partition) []*Project {
	out := []*Project{p.Subset(p.Label+SuffixOutside, part.Outside)}
	if !part.Split() {
		return append(out, p.Subset(p.Label+SuffixInside, part.Inside))
	}
	for i, b := range part.Blocks {
		out = append(out, p.Subset(fmt.Sprintf("%s%s%d", p.Label, SuffixBlock, i), b.Cameras))
	}
	return out
}

// BlockScope returns the projects a block-scoped operation runs on: every
// block project, or else the single inside project.
func BlockScope(doc *Document) ([]*Project, error) {
	var blocks, inside []*Project
	for _, p := range doc.Projects {
		switch {
		case strings.Contains(p.Label, SuffixBlock):
			blocks = append(blocks, p)
		case strings.Contains(p.Label, SuffixInside):
			inside = append(inside, p)
		}
	}
	if len(blocks) > 0 {
		return blocks, nil
	}
	if len(inside) == 1 {
		return inside, nil
	}
	return nil, fmt.Errorf("%w: found %d inside projects", ErrNoPartitions, len(inside))
}
