package oblique

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
)

func floatPtr(v float64) *float64 { return &v }

// testSensor is a 4000x3000 frame with a 1000 px focal length
func testSensor() Sensor {
	return Sensor{Width: 4000, Height: 3000, F: floatPtr(1000)}
}

// nadirCamera looks straight down from 1000 units
func nadirCamera(key int, x, y float64) Camera {
	return Camera{
		Key:      key,
		Label:    fmt.Sprintf("IMG_%04d", key),
		Location: r3.Vector{X: x, Y: y, Z: 1000},
		Rotation: OPK(0, 0, 0),
		Sensor:   testSensor(),
	}
}

func square(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

func squareFootprint(key int, x0, y0, x1, y1 float64) Footprint {
	return Footprint{
		Key:   key,
		Photo: fmt.Sprintf("IMG_%04d", key),
		Frame: key,
		Ring:  orb.Ring{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}},
	}
}

func aoiShape(key int, poly orb.Polygon) Shape {
	return Shape{Key: key, Group: "AOI", Geometry: PolygonGeometry(poly)}
}

func lineShape(key int, ls orb.LineString) Shape {
	return Shape{Key: key, Group: "AOI", Geometry: LineStringGeometry(ls)}
}

// gridProject has nine nadir cameras on a 3x3 grid 3000 units apart. At
// terrain height 0 only the middle row (keys 3, 4, 5) sees the AOI.
func gridProject() *Project {
	p := &Project{
		Label:      "survey",
		PointCloud: PointCloud{Projections: make(map[int][]int)},
	}
	key := 0
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			p.Cameras = append(p.Cameras, nadirCamera(key, float64(col)*3000, float64(row)*3000))
			key++
		}
	}
	p.Shapes = []Shape{aoiShape(0, square(1800, 1800, 4200, 4200))}
	return p
}
