package oblique

import (
	"sort"
)

// Consolidation is the outcome of tie point selection
type Consolidation struct {
	Selected []int       `json:"selected"`
	Invalid  []int       `json:"invalid"`
	Ranks    map[int]int `json:"ranks"`
}

// sortedUnique returns the distinct ids in ascending order
func sortedUnique(ids []int) []int {
	out := append([]int(nil), ids...)
	sort.Ints(out)
	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}

// intersectSorted returns the ids present in both ascending lists
func intersectSorted(a, b []int) []int {
	var out []int
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// Consolidate selects representative tracks from the observations of the
// cameras in order.
//
// Every ordered pair of distinct cameras is intersected. The rank of a
// track is the number of those intersections that contain it. The
// intersections are then visited grouped by their first camera, in camera
// order, and each one contributes its highest ranked track that is not yet
// selected; ties go to the smaller id. The batch of the last camera is
// counted in the ranks but never visited. Tracks seen in some intersection
// but never selected are returned as invalid.
//
// An intersection whose tracks are all selected re-adds the previous
// candidate of its batch, which is already selected, so it changes
// nothing. That carry-forward is kept as is; it would select a stale track
// if candidates were ever dropped within a batch.
//
// This is a greedy heuristic: the result depends on the camera order and
// is not a minimum cover of the overlaps. It does keep at least one
// selected track in every non-empty pairwise overlap, since each unordered
// pair is visited in the batch of its earlier camera.
func Consolidate(order []int, observations map[int][]int) *Consolidation {
	lists := make([][]int, len(order))
	for i, cam := range order {
		lists[i] = sortedUnique(observations[cam])
	}

	ranks := make(map[int]int)
	batches := make([][][]int, len(order))
	for i := range lists {
		for j := range lists {
			if i == j {
				continue
			}
			inter := intersectSorted(lists[i], lists[j])
			if len(inter) == 0 {
				continue
			}
			for _, id := range inter {
				ranks[id]++
			}
			batches[i] = append(batches[i], inter)
		}
	}

	if len(batches) > 0 {
		batches = batches[:len(batches)-1]
	}

	selected := make(map[int]bool)
	for _, batch := range batches {
		candidate, found := 0, false
		for _, inter := range batch {
			bestRank := 0
			for _, id := range inter {
				if ranks[id] > bestRank && !selected[id] {
					candidate, bestRank, found = id, ranks[id], true
				}
			}
			if found {
				selected[candidate] = true
			}
		}
	}

	c := &Consolidation{Ranks: ranks}
	for id := range ranks {
		if selected[id] {
			c.Selected = append(c.Selected, id)
		} else {
			c.Invalid = append(c.Invalid, id)
		}
	}
	sort.Ints(c.Selected)
	sort.Ints(c.Invalid)
	return c
}

// FilterTiePoints consolidates the valid tie points of the project and
// marks the rejected ones invalid. Nothing is removed; see
// PointCloud.Cleanup.
func FilterTiePoints(p *Project) *Consolidation {
	valid := make(map[int]bool, len(p.PointCloud.Points))
	for _, pt := range p.PointCloud.Points {
		if pt.Valid {
			valid[pt.TrackID] = true
		}
	}

	order := make([]int, 0, len(p.Cameras))
	observations := make(map[int][]int, len(p.Cameras))
	for _, cam := range p.Cameras {
		order = append(order, cam.Key)
		var obs []int
		for _, id := range p.PointCloud.Projections[cam.Key] {
			if valid[id] {
				obs = append(obs, id)
			}
		}
		observations[cam.Key] = obs
	}

	c := Consolidate(order, observations)

	invalid := make(map[int]bool, len(c.Invalid))
	for _, id := range c.Invalid {
		invalid[id] = true
	}
	for i := range p.PointCloud.Points {
		if invalid[p.PointCloud.Points[i].TrackID] {
			p.PointCloud.Points[i].Valid = false
		}
	}
	return c
}

// Cleanup removes invalid tie points and their projections and returns the
// number of points removed.
func (pc *PointCloud) Cleanup() int {
	keep := make(map[int]bool, len(pc.Points))
	points := pc.Points[:0]
	removed := 0
	for _, pt := range pc.Points {
		if !pt.Valid {
			removed++
			continue
		}
		keep[pt.TrackID] = true
		points = append(points, pt)
	}
	pc.Points = points

	for cam, obs := range pc.Projections {
		filtered := obs[:0]
		for _, id := range obs {
			if keep[id] {
				filtered = append(filtered, id)
			}
		}
		pc.Projections[cam] = filtered
	}
	return removed
}
