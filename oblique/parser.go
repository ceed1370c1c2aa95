package oblique

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
)

// ParseProjectFile reads and parses a project JSON file
func ParseProjectFile(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParseProjectJSON(data)
}

// ParseProjectJSON parses project JSON data
func ParseProjectJSON(data []byte) (*Project, error) {
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if p.PointCloud.Projections == nil {
		p.PointCloud.Projections = make(map[int][]int)
	}
	return &p, nil
}

// SaveProject writes the project as indented JSON
func SaveProject(path string, p *Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling project: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing project file: %w", err)
	}
	return nil
}

// LoadDocument reads a document JSON file
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	doc.Path = path
	return &doc, nil
}

// SaveDocument writes the document to doc.Path
func SaveDocument(doc *Document) error {
	if doc.Path == "" {
		return errors.New("document has no path")
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	if err := os.WriteFile(doc.Path, data, 0644); err != nil {
		return fmt.Errorf("writing document file: %w", err)
	}
	return nil
}

// CameraReference is one row of a camera reference export
type CameraReference struct {
	Label    string
	Location r3.Vector
	Rotation Orientation
}

// ReadCameraReference reads a tab separated camera reference export with
// the columns Label, X, Y, Z, Omega, Phi, Kappa. Extra columns are ignored
// and lines starting with '#' are comments. Rows that do not parse are
// returned as an error naming the line.
func ReadCameraReference(r io.Reader) ([]CameraReference, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var refs []CameraReference
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading camera reference: %w", err)
		}
		if len(record) < 7 {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("camera reference line %d: want at least 7 columns, got %d", line, len(record))
		}

		var v [6]float64
		for i := range v {
			v[i], err = strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
			if err != nil {
				line, _ := reader.FieldPos(i + 1)
				return nil, fmt.Errorf("camera reference line %d: %w", line, err)
			}
		}
		refs = append(refs, CameraReference{
			Label:    record[0],
			Location: r3.Vector{X: v[0], Y: v[1], Z: v[2]},
			Rotation: OPK(v[3], v[4], v[5]),
		})
	}
	return refs, nil
}

// ApplyCameraReference updates the pose of cameras matched by label and
// returns how many were updated.
func ApplyCameraReference(p *Project, refs []CameraReference) int {
	byLabel := make(map[string]CameraReference, len(refs))
	for _, ref := range refs {
		byLabel[ref.Label] = ref
	}
	n := 0
	for i := range p.Cameras {
		ref, ok := byLabel[p.Cameras[i].Label]
		if !ok {
			continue
		}
		p.Cameras[i].Location = ref.Location
		p.Cameras[i].Rotation = ref.Rotation
		n++
	}
	return n
}

// ProjectSummary provides a summary of project contents
type ProjectSummary struct {
	Label        string
	Cameras      int
	Footprints   int
	Shapes       int
	TiePoints    int
	ValidPoints  int
	Groups       map[Direction]int
	Unclassified int
}

// Summarize extracts key information from a project
func Summarize(p *Project) ProjectSummary {
	s := ProjectSummary{
		Label:      p.Label,
		Cameras:    len(p.Cameras),
		Footprints: len(p.Footprints),
		Shapes:     len(p.Shapes),
		TiePoints:  len(p.PointCloud.Points),
		Groups:     make(map[Direction]int),
	}
	for _, pt := range p.PointCloud.Points {
		if pt.Valid {
			s.ValidPoints++
		}
	}
	for _, c := range p.Cameras {
		if c.Group == DirectionNone {
			s.Unclassified++
			continue
		}
		s.Groups[c.Group]++
	}
	return s
}
