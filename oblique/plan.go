package oblique

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Plan is the outcome of a full planning run over one project
type Plan struct {
	Source       *Project           `json:"-"` // Document.Projects[0]
	Footprints   *FootprintReport   `json:"-"`
	Unclassified []ClassifyFailure  `json:"unclassified,omitempty"`
	Partition    *Partition         `json:"partition"`
	Document     *Document          `json:"document"`
	Pairs        []BlockPairs       `json:"pairs"`
	Stages       map[string][]Stage `json:"stages"`
	Created      time.Time          `json:"created"`
}

// BuildPlan runs footprint projection, direction classification, block
// partitioning and pair generation on the project. The project is updated
// in place and becomes the first project of the plan document.
func BuildPlan(ctx context.Context, p *Project, cfg *Config) (*Plan, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	report, err := ProjectFootprints(ctx, p, FootprintOptions{
		TerrainHeight: cfg.TerrainHeight,
		Workers:       cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("footprints: %w", err)
	}
	log.Printf("Created %d footprint(s), %d failed", report.Created, len(report.Failures))

	unclassified := ClassifyProject(p)

	part, err := PartitionProject(ctx, p, cfg.FootprintsGroupName())
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}

	doc := &Document{Projects: []*Project{p}}
	doc.Add(SplitProject(p, part)...)

	pairs, err := GenerateBlockPairs(doc)
	if err != nil {
		return nil, fmt.Errorf("pairs: %w", err)
	}

	stages := make(map[string][]Stage, len(pairs))
	for _, bp := range pairs {
		if sub := doc.Find(bp.Label); sub != nil {
			stages[bp.Label] = AlignmentStages(sub)
		}
	}

	return &Plan{
		Source:       p,
		Footprints:   report,
		Unclassified: unclassified,
		Partition:    part,
		Document:     doc,
		Pairs:        pairs,
		Stages:       stages,
		Created:      time.Now(),
	}, nil
}

// Scope returns the block-scoped projects of the plan
func (pl *Plan) Scope() []*Project {
	var out []*Project
	for _, bp := range pl.Pairs {
		if p := pl.Document.Find(bp.Label); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// PairsFor returns the pairs of one block project
func (pl *Plan) PairsFor(label string) []Pair {
	for _, bp := range pl.Pairs {
		if bp.Label == label {
			return bp.Pairs
		}
	}
	return nil
}
