package oblique

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoJSON type names of the shapes the planner reads
const (
	GeometryPolygon    = "Polygon"
	GeometryLineString = "LineString"
)

// orbPolygon returns the polygon held by geom, or nil for any other type
func orbPolygon(geom *geojson.Geometry) orb.Polygon {
	if geom == nil {
		return nil
	}
	poly, _ := geom.Coordinates.(orb.Polygon)
	return poly
}

// orbLineString returns the line held by geom, or nil for any other type
func orbLineString(geom *geojson.Geometry) orb.LineString {
	if geom == nil {
		return nil
	}
	ls, _ := geom.Coordinates.(orb.LineString)
	return ls
}

// PolygonGeometry wraps a polygon for storage in a shape. Rings are closed
// if needed.
func PolygonGeometry(poly orb.Polygon) *geojson.Geometry {
	closed := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		closed[i] = closeRing(ring)
	}
	return geojson.NewGeometry(closed)
}

// LineStringGeometry wraps a split line for storage in a shape
func LineStringGeometry(ls orb.LineString) *geojson.Geometry {
	return geojson.NewGeometry(ls)
}

// FootprintsToFeatureCollection exports footprints with their Photo, Frame
// and Direction attributes. The feature id is the footprint key.
func FootprintsToFeatureCollection(footprints []Footprint) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range footprints {
		f := &footprints[i]
		feature := geojson.NewFeature(f.Polygon())
		feature.ID = f.Key
		feature.Properties["Photo"] = f.Photo
		feature.Properties["Frame"] = strconv.Itoa(f.Frame)
		if f.Direction != DirectionNone {
			feature.Properties["Direction"] = string(f.Direction)
		}
		fc.Append(feature)
	}
	return fc
}

// BlocksToFeatureCollection exports block polygons with their camera counts
func BlocksToFeatureCollection(blocks []Block) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, b := range blocks {
		feature := geojson.NewFeature(b.Polygon)
		feature.Properties["label"] = b.Label
		feature.Properties["cameras"] = len(b.Cameras)
		fc.Append(feature)
	}
	return fc
}

// WriteFeatureCollection encodes fc as indented JSON
func WriteFeatureCollection(w io.Writer, fc *geojson.FeatureCollection) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fc); err != nil {
		return fmt.Errorf("encoding feature collection: %w", err)
	}
	return nil
}

// LoadAOIGeoJSON reads a FeatureCollection and returns its polygon and line
// string features as shapes in the given group, keyed by feature index.
// Other geometry types are skipped.
func LoadAOIGeoJSON(path, group string) ([]Shape, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading AOI file: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing AOI GeoJSON: %w", err)
	}

	shapes := make([]Shape, 0, len(fc.Features))
	for i, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.LineString:
		default:
			continue
		}
		shapes = append(shapes, Shape{
			Key:      i,
			Label:    f.Properties.MustString("label", ""),
			Group:    group,
			Geometry: geojson.NewGeometry(f.Geometry),
		})
	}
	return shapes, nil
}
