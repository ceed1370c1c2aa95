package oblique

// alignmentOrder is the order in which direction groups are aligned: nadir
// first, then the obliques clockwise from the front.
var alignmentOrder = []Direction{DirectionNadir, DirectionFront, DirectionRight, DirectionBack, DirectionLeft}

// Stage is one incremental alignment step
type Stage struct {
	Direction Direction `json:"direction"`
	Cameras   []int     `json:"cameras"`
	// Reset is set on the first stage; the aligner starts from scratch.
	Reset bool `json:"reset"`
}

// AlignmentStages splits the cameras of a project into alignment steps by
// direction group. Empty groups are skipped.
func AlignmentStages(p *Project) []Stage {
	byDir := make(map[Direction][]int)
	for _, c := range p.Cameras {
		byDir[c.Group] = append(byDir[c.Group], c.Key)
	}

	var stages []Stage
	for _, d := range alignmentOrder {
		cams := byDir[d]
		if len(cams) == 0 {
			continue
		}
		stages = append(stages, Stage{Direction: d, Cameras: cams, Reset: len(stages) == 0})
	}
	return stages
}
