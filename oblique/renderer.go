package oblique

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// maxRasterSize caps the raster preview in pixels
const maxRasterSize = 4000

// DirectionColors returns the outline color of each direction group
func DirectionColors() map[Direction]color.NRGBA {
	return map[Direction]color.NRGBA{
		DirectionNadir: {0, 0, 139, 255},     // Dark blue
		DirectionFront: {178, 34, 34, 255},   // Firebrick
		DirectionRight: {0, 128, 0, 255},     // Green
		DirectionBack:  {184, 134, 11, 255},  // Dark goldenrod
		DirectionLeft:  {128, 0, 128, 255},   // Purple
		DirectionNone:  {105, 105, 105, 255}, // Dim grey
	}
}

// blockFills are cycled over the blocks of a plan
var blockFills = []color.NRGBA{
	{100, 149, 237, 90}, // Cornflower blue
	{255, 99, 71, 90},   // Tomato
	{144, 238, 144, 90}, // Light green
	{255, 255, 150, 90}, // Light yellow
	{221, 160, 221, 90}, // Plum
}

// PlanView is the geometry drawn by the plan renderers
type PlanView struct {
	Label      string
	AOI        orb.Polygon
	Lines      []orb.LineString
	Blocks     []Block
	Footprints []Footprint
}

// NewPlanView collects the drawable geometry of a project. The partition
// may be nil; AOI shapes are then read from the project when valid.
func NewPlanView(p *Project, part *Partition, footprintsGroup string) *PlanView {
	v := &PlanView{Label: p.Label, Footprints: p.Footprints}
	if aoi, lines, err := AOIShapes(p.Shapes, footprintsGroup); err == nil {
		v.AOI, v.Lines = aoi, lines
	}
	if part != nil {
		v.AOI = part.AOI
		v.Blocks = part.Blocks
	}
	return v
}

// Bound returns the extent of everything in the view
func (v *PlanView) Bound() (orb.Bound, bool) {
	var b orb.Bound
	first := true
	extend := func(g orb.Geometry) {
		if first {
			b = g.Bound()
			first = false
			return
		}
		b = b.Union(g.Bound())
	}
	if len(v.AOI) > 0 {
		extend(v.AOI)
	}
	for _, l := range v.Lines {
		extend(l)
	}
	for i := range v.Footprints {
		if len(v.Footprints[i].Ring) > 0 {
			extend(v.Footprints[i].Ring)
		}
	}
	return b, !first
}

// PlanRenderer draws a plan view into a raster image. North is up.
type PlanRenderer struct {
	View    *PlanView
	Scale   float64 // Pixels per ground unit
	Padding int     // Padding in pixels
}

// NewPlanRenderer creates a raster renderer from the render settings
func NewPlanRenderer(view *PlanView, cfg RenderConfig) *PlanRenderer {
	scale := cfg.Scale
	if scale <= 0 {
		scale = DefaultRenderScale
	}
	return &PlanRenderer{
		View:    view,
		Scale:   scale,
		Padding: int(math.Max(cfg.Padding*scale, 20)),
	}
}

// Render draws the plan: block fills, footprints by direction, the AOI
// outline, split lines and a legend.
func (r *PlanRenderer) Render() *image.RGBA {
	bound, ok := r.View.Bound()
	if !ok {
		bound = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	}

	scale := r.Scale
	w, h := bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1]
	if longest := math.Max(w, h) * scale; longest > maxRasterSize {
		scale *= maxRasterSize / longest
	}
	width := int(w*scale) + 2*r.Padding + 1
	height := int(h*scale) + 2*r.Padding + 1

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{240, 240, 240, 255})
		}
	}

	toImage := func(p orb.Point) (int, int) {
		x := int((p[0]-bound.Min[0])*scale) + r.Padding
		y := height - 1 - (int((p[1]-bound.Min[1])*scale) + r.Padding)
		return x, y
	}
	toWorld := func(x, y int) orb.Point {
		return orb.Point{
			bound.Min[0] + (float64(x-r.Padding)+0.5)/scale,
			bound.Min[1] + (float64(height-1-y-r.Padding)+0.5)/scale,
		}
	}

	for i, b := range r.View.Blocks {
		fillPolygon(img, b.Polygon, blockFills[i%len(blockFills)], toImage, toWorld)
	}

	colors := DirectionColors()
	for i := range r.View.Footprints {
		f := &r.View.Footprints[i]
		c := colors[f.Direction]
		drawRing(img, closeRing(f.Ring), color.RGBA{c.R, c.G, c.B, c.A}, toImage)
	}

	if len(r.View.AOI) > 0 {
		ring := closeRing(r.View.AOI[0])
		for d := -1; d <= 1; d++ {
			shifted := func(p orb.Point) (int, int) {
				x, y := toImage(p)
				return x + d, y
			}
			drawRing(img, ring, color.RGBA{0, 0, 0, 255}, shifted)
		}
	}
	for _, l := range r.View.Lines {
		for i := 0; i+1 < len(l); i++ {
			x0, y0 := toImage(l[i])
			x1, y1 := toImage(l[i+1])
			drawLine(img, x0, y0, x1, y1, color.RGBA{220, 20, 60, 255})
		}
	}

	r.drawLegend(img)
	return img
}

// Encode writes the rendered plan as PNG
func (r *PlanRenderer) Encode(w io.Writer) error {
	return png.Encode(w, r.Render())
}

// SavePNG saves the rendered plan to a file
func (r *PlanRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return r.Encode(f)
}

// fillPolygon blends c into every pixel whose centre lies in the polygon
func fillPolygon(img *image.RGBA, poly orb.Polygon, c color.NRGBA,
	toImage func(orb.Point) (int, int), toWorld func(int, int) orb.Point) {
	if len(poly) == 0 {
		return
	}
	b := poly.Bound()
	x0, y1 := toImage(b.Min)
	x1, y0 := toImage(b.Max)
	bounds := img.Bounds()
	for y := max(y0, 0); y <= min(y1, bounds.Max.Y-1); y++ {
		for x := max(x0, 0); x <= min(x1, bounds.Max.X-1); x++ {
			if planar.PolygonContains(poly, toWorld(x, y)) {
				img.Set(x, y, blendColors(img.RGBAAt(x, y), c))
			}
		}
	}
}

func drawRing(img *image.RGBA, ring orb.Ring, c color.RGBA, toImage func(orb.Point) (int, int)) {
	for i := 0; i+1 < len(ring); i++ {
		x0, y0 := toImage(ring[i])
		x1, y1 := toImage(ring[i+1])
		drawLine(img, x0, y0, x1, y1, c)
	}
}

// drawLine draws a one pixel line with Bresenham's algorithm
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	bounds := img.Bounds()
	for {
		if image.Pt(x0, y0).In(bounds) {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// blendColors alpha-blends fg over an opaque background
func blendColors(bg color.RGBA, fg color.NRGBA) color.RGBA {
	alpha := float64(fg.A) / 255.0
	inv := 1.0 - alpha
	return color.RGBA{
		R: uint8(float64(fg.R)*alpha + float64(bg.R)*inv),
		G: uint8(float64(fg.G)*alpha + float64(bg.G)*inv),
		B: uint8(float64(fg.B)*alpha + float64(bg.B)*inv),
		A: 255,
	}
}

// drawLegend lists the direction colors in the top-left corner
func (r *PlanRenderer) drawLegend(img *image.RGBA) {
	colors := DirectionColors()
	y := 15
	if r.View.Label != "" {
		drawText(img, 10, y, r.View.Label, color.RGBA{0, 0, 0, 255})
		y += 18
	}
	for _, d := range alignmentOrder {
		c := colors[d]
		for dy := 0; dy < 12; dy++ {
			for dx := 0; dx < 12; dx++ {
				img.Set(10+dx, y+dy-10, c)
			}
		}
		drawText(img, 28, y, string(d), color.RGBA{0, 0, 0, 255})
		y += 18
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
