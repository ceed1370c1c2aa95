package oblique

import (
	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Direction is the look-direction group of a camera
type Direction string

const (
	DirectionNone  Direction = ""
	DirectionNadir Direction = "Nadir"
	DirectionFront Direction = "Front"
	DirectionLeft  Direction = "Left"
	DirectionBack  Direction = "Back"
	DirectionRight Direction = "Right"
)

// obliqueDirections maps a rotated base direction (0..3) to its label.
var obliqueDirections = [4]Direction{DirectionFront, DirectionLeft, DirectionBack, DirectionRight}

// Valid reports whether d is one of the five direction groups
func (d Direction) Valid() bool {
	switch d {
	case DirectionNadir, DirectionFront, DirectionLeft, DirectionBack, DirectionRight:
		return true
	}
	return false
}

// EulerConvention names the angle convention of an Orientation
type EulerConvention string

const (
	// ConventionOPK is omega/phi/kappa: R = Rx(omega) * Ry(phi) * Rz(kappa)
	ConventionOPK EulerConvention = "opk"
	// ConventionYPR is yaw/pitch/roll: yaw is the heading clockwise from north,
	// pitch tilts the view forward, roll tilts it to the right.
	ConventionYPR EulerConvention = "ypr"
)

// Orientation holds three Euler angles in degrees
type Orientation struct {
	Convention EulerConvention `json:"convention"`
	Angles     [3]float64      `json:"angles"`
}

// OPK builds an omega/phi/kappa orientation
func OPK(omega, phi, kappa float64) Orientation {
	return Orientation{Convention: ConventionOPK, Angles: [3]float64{omega, phi, kappa}}
}

// YPR builds a yaw/pitch/roll orientation
func YPR(yaw, pitch, roll float64) Orientation {
	return Orientation{Convention: ConventionYPR, Angles: [3]float64{yaw, pitch, roll}}
}

// Sensor describes image size and calibration. Either F (pixels) or the metric
// FocalLength together with PixelWidth/PixelHeight (millimeters) must be set.
type Sensor struct {
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	F           *float64 `json:"f,omitempty"`
	FocalLength *float64 `json:"focalLength,omitempty"`
	PixelWidth  *float64 `json:"pixelWidth,omitempty"`
	PixelHeight *float64 `json:"pixelHeight,omitempty"`
}

// Camera is one photo station of the survey
type Camera struct {
	Key         int         `json:"key"`
	Label       string      `json:"label"`
	Location    r3.Vector   `json:"location"`
	Rotation    Orientation `json:"rotation"`
	Sensor      Sensor      `json:"sensor"`
	Group       Direction   `json:"group,omitempty"`
	FootprintID *int        `json:"footprintId,omitempty"`
}

// Footprint is the ground polygon of a camera. Frame is the key of the
// source camera.
type Footprint struct {
	Key       int       `json:"key"`
	Photo     string    `json:"photo"`
	Frame     int       `json:"frame"`
	Direction Direction `json:"direction,omitempty"`
	Height    float64   `json:"height"`
	Ring      orb.Ring  `json:"ring"`
}

// Polygon returns the footprint as a single-ring polygon
func (f *Footprint) Polygon() orb.Polygon {
	return orb.Polygon{closeRing(f.Ring)}
}

// Shape is a user-drawn geometry (AOI polygon or split line)
type Shape struct {
	Key      int               `json:"key"`
	Label    string            `json:"label,omitempty"`
	Group    string            `json:"group"`
	Geometry *geojson.Geometry `json:"geometry"`
}

// TiePoint is a reconstructed track
type TiePoint struct {
	TrackID int  `json:"trackId"`
	Valid   bool `json:"valid"`
}

// PointCloud holds tracks and per-camera observations (camera key -> track ids)
type PointCloud struct {
	Points      []TiePoint    `json:"points"`
	Projections map[int][]int `json:"projections"`
}

// Project is one chunk of a survey: cameras, footprints, shapes and the
// sparse point cloud, linked by integer keys.
type Project struct {
	Label      string      `json:"label"`
	Cameras    []Camera    `json:"cameras"`
	Footprints []Footprint `json:"footprints,omitempty"`
	Shapes     []Shape     `json:"shapes,omitempty"`
	PointCloud PointCloud  `json:"pointCloud"`
}

// Pair is a candidate image pair for matching, identified by camera keys
type Pair struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Block is one partition of the AOI and the cameras that see it
type Block struct {
	Label   string      `json:"label"`
	Polygon orb.Polygon `json:"polygon"`
	Cameras []int       `json:"cameras"`
}

// Config represents the full configuration file
type Config struct {
	TerrainHeight   float64      `yaml:"terrainHeight" json:"terrainHeight"`
	Workers         int          `yaml:"workers,omitempty" json:"workers,omitempty"` // 0 = one per CPU
	FootprintsGroup string       `yaml:"footprintsGroup,omitempty" json:"footprintsGroup,omitempty"`
	Output          string       `yaml:"output,omitempty" json:"output,omitempty"`
	MQTT            MQTTConfig   `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	Render          RenderConfig `yaml:"render,omitempty" json:"render,omitempty"`
	HTTP            HTTPConfig   `yaml:"http,omitempty" json:"http,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// RenderConfig controls plan previews
type RenderConfig struct {
	Scale       float64 `yaml:"scale,omitempty" json:"scale,omitempty"`             // pixels per ground unit (raster)
	Padding     float64 `yaml:"padding,omitempty" json:"padding,omitempty"`         // ground units
	GridSpacing float64 `yaml:"gridSpacing,omitempty" json:"gridSpacing,omitempty"` // ground units, 0 disables
	Resolution  float64 `yaml:"resolution,omitempty" json:"resolution,omitempty"`   // DPI for vector PNG
}

// HTTPConfig holds the plan server settings
type HTTPConfig struct {
	Port int `yaml:"port,omitempty" json:"port,omitempty"`
}

// DefaultFootprintsGroup is the reserved shapes group for footprints
const DefaultFootprintsGroup = "Footprints"

// FootprintsGroupName returns the configured footprints group or the default
func (c *Config) FootprintsGroupName() string {
	if c == nil || c.FootprintsGroup == "" {
		return DefaultFootprintsGroup
	}
	return c.FootprintsGroup
}
