package oblique

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// histogramBins is the bin order of per-track direction counts
var histogramBins = [5]Direction{DirectionNadir, DirectionFront, DirectionRight, DirectionBack, DirectionLeft}

// QualityGroup is one of the five track quality groups G1..G5
type QualityGroup int

const (
	GroupNadirOnly          QualityGroup = iota // G1: no oblique projection
	GroupSingleOblique                          // G2: no nadir, one oblique direction
	GroupNadirSingleOblique                     // G3: nadir and one oblique direction
	GroupMultiOblique                           // G4: no nadir, several oblique directions
	GroupNadirMultiOblique                      // G5: nadir and several oblique directions
)

func (g QualityGroup) String() string {
	return fmt.Sprintf("G%d", int(g)+1)
}

// DirectionCounts holds the projections of one track per bin: Nadir, Front,
// Right, Back, Left.
type DirectionCounts [5]int

// Total returns the number of projections
func (c DirectionCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Group classifies the counts into a quality group
func (c DirectionCounts) Group() QualityGroup {
	nadir := c[0]
	obliques, directions := 0, 0
	for _, v := range c[1:] {
		obliques += v
		if v > 0 {
			directions++
		}
	}

	switch {
	case obliques == 0:
		return GroupNadirOnly
	case nadir == 0 && directions == 1:
		return GroupSingleOblique
	case directions == 1:
		return GroupNadirSingleOblique
	case nadir == 0:
		return GroupMultiOblique
	default:
		return GroupNadirMultiOblique
	}
}

// HistogramRow counts the tracks of each group with N projections
type HistogramRow struct {
	N      int    `json:"n"`
	Groups [5]int `json:"groups"`
}

// Histogram is ordered by ascending N
type Histogram []HistogramRow

func binIndex(d Direction) int {
	for i, b := range histogramBins {
		if b == d {
			return i
		}
	}
	return -1
}

// TrackDirectionCounts returns the per-direction projection counts of every
// valid track.
func TrackDirectionCounts(p *Project) (map[int]*DirectionCounts, error) {
	counts := make(map[int]*DirectionCounts)
	for _, pt := range p.PointCloud.Points {
		if pt.Valid {
			counts[pt.TrackID] = &DirectionCounts{}
		}
	}

	for _, cam := range p.Cameras {
		obs := p.PointCloud.Projections[cam.Key]
		if len(obs) == 0 {
			continue
		}
		bin := binIndex(cam.Group)
		if bin < 0 {
			return nil, fmt.Errorf("%w: camera %d (%s)", ErrUngroupedCamera, cam.Key, cam.Label)
		}
		for _, id := range obs {
			if c, ok := counts[id]; ok {
				c[bin]++
			}
		}
	}
	return counts, nil
}

// ComputeHistogram builds the quality histogram of the valid tracks
func ComputeHistogram(p *Project) (Histogram, error) {
	counts, err := TrackDirectionCounts(p)
	if err != nil {
		return nil, err
	}

	rows := make(map[int]*HistogramRow)
	for _, c := range counts {
		n := c.Total()
		row, ok := rows[n]
		if !ok {
			row = &HistogramRow{N: n}
			rows[n] = row
		}
		row.Groups[c.Group()]++
	}

	h := make(Histogram, 0, len(rows))
	for _, row := range rows {
		h = append(h, *row)
	}
	sort.Slice(h, func(i, j int) bool { return h[i].N < h[j].N })
	return h, nil
}

// WriteHistogram writes the histogram as semicolon separated rows under an
// "N; G1; G2; G3; G4; G5" header.
func WriteHistogram(w io.Writer, h Histogram) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "N; G1; G2; G3; G4; G5")
	for _, row := range h {
		g := row.Groups
		fmt.Fprintf(bw, "%d; %d; %d; %d; %d; %d\n", row.N, g[0], g[1], g[2], g[3], g[4])
	}
	return bw.Flush()
}

// HistogramPath returns the report path for a project label in dir
func HistogramPath(dir, label string) string {
	return filepath.Join(dir, strings.ReplaceAll(label, " ", "_")+".csv")
}

// SaveHistogram writes the histogram report to path
func SaveHistogram(path string, h Histogram) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating histogram report: %w", err)
	}
	if err := WriteHistogram(f, h); err != nil {
		f.Close()
		return fmt.Errorf("writing histogram report: %w", err)
	}
	return f.Close()
}
