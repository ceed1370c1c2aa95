package oblique

// GeneratePairs proposes a matching pair for every two footprints that
// intersect. Pairs follow the input order with A before B. A frame never
// pairs with itself and each unordered pair appears once.
func GeneratePairs(footprints []Footprint) []Pair {
	seen := make(map[Pair]bool)
	var pairs []Pair
	for i := 0; i < len(footprints); i++ {
		pi := footprints[i].Polygon()
		for j := i + 1; j < len(footprints); j++ {
			a, b := footprints[i].Frame, footprints[j].Frame
			if a == b {
				continue
			}
			key := Pair{A: min(a, b), B: max(a, b)}
			if seen[key] {
				continue
			}
			if !Intersects(pi, footprints[j].Polygon()) {
				continue
			}
			seen[key] = true
			pairs = append(pairs, Pair{A: a, B: b})
		}
	}
	return pairs
}

// BlockPairs holds the candidate pairs of one block project
type BlockPairs struct {
	Label string `json:"label"`
	Pairs []Pair `json:"pairs"`
}

// GenerateBlockPairs generates pairs for every project in the block scope
// of the document.
func GenerateBlockPairs(doc *Document) ([]BlockPairs, error) {
	scope, err := BlockScope(doc)
	if err != nil {
		return nil, err
	}
	out := make([]BlockPairs, 0, len(scope))
	for _, p := range scope {
		out = append(out, BlockPairs{Label: p.Label, Pairs: GeneratePairs(p.Footprints)})
	}
	return out, nil
}
