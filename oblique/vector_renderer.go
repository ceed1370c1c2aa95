package oblique

import (
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// nrgbaToRGBA premultiplies alpha for the canvas library
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// VectorRenderer draws a plan view as vector graphics. Canvas units are
// millimeters; Scale converts ground units to millimeters.
type VectorRenderer struct {
	View        *PlanView
	Scale       float64           // Canvas millimeters per ground unit
	Padding     float64           // Ground units
	GridSpacing float64           // Ground units; 0 disables the grid
	Resolution  canvas.Resolution // PNG output resolution
}

// NewVectorRenderer creates a vector renderer from the render settings
func NewVectorRenderer(view *PlanView, cfg RenderConfig) *VectorRenderer {
	r := &VectorRenderer{
		View:        view,
		Scale:       cfg.Scale,
		Padding:     cfg.Padding,
		GridSpacing: cfg.GridSpacing,
		Resolution:  canvas.DPI(cfg.Resolution),
	}
	if r.Scale <= 0 {
		r.Scale = DefaultRenderScale
	}
	if cfg.Resolution <= 0 {
		r.Resolution = canvas.DPI(DefaultResolution)
	}
	return r
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

func (r *VectorRenderer) bounds() orb.Bound {
	b, ok := r.View.Bound()
	if !ok {
		return orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	}
	return b.Pad(r.Padding)
}

func (r *VectorRenderer) size(b orb.Bound) (float64, float64) {
	return (b.Max[0] - b.Min[0]) * r.Scale, (b.Max[1] - b.Min[1]) * r.Scale
}

// RenderToSVG writes the plan as an SVG
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	b := r.bounds()
	width, height := r.size(b)

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, b, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the plan as a PNG at the configured resolution
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	b := r.bounds()
	width, height := r.size(b)

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, b, width, height)
	return png.Encode(w, rast)
}

// renderToCanvas draws the plan; canvas y grows northwards like the ground
// coordinates.
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, b orb.Bound, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(p orb.Point) (float64, float64) {
		return (p[0] - b.Min[0]) * r.Scale, (p[1] - b.Min[1]) * r.Scale
	}
	pathOf := func(pts []orb.Point, closed bool) *canvas.Path {
		cp := &canvas.Path{}
		for i, pt := range pts {
			x, y := toCanvas(pt)
			if i == 0 {
				cp.MoveTo(x, y)
			} else {
				cp.LineTo(x, y)
			}
		}
		if closed {
			cp.Close()
		}
		return cp
	}

	for i, blk := range r.View.Blocks {
		if len(blk.Polygon) == 0 {
			continue
		}
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: nrgbaToRGBA(blockFills[i%len(blockFills)])}
		style.Stroke = canvas.Paint{Color: canvas.Transparent}
		renderer.RenderPath(pathOf(openRing(blk.Polygon[0]), true), style, canvas.Identity)
	}

	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: color.RGBA{211, 211, 211, 255}}
		gridStyle.StrokeWidth = 0.2
		gridStyle.Dashes = []float64{1.0, 1.0}

		for x := math.Ceil(b.Min[0]/r.GridSpacing) * r.GridSpacing; x <= b.Max[0]; x += r.GridSpacing {
			line := []orb.Point{{x, b.Min[1]}, {x, b.Max[1]}}
			renderer.RenderPath(pathOf(line, false), gridStyle, canvas.Identity)
		}
		for y := math.Ceil(b.Min[1]/r.GridSpacing) * r.GridSpacing; y <= b.Max[1]; y += r.GridSpacing {
			line := []orb.Point{{b.Min[0], y}, {b.Max[0], y}}
			renderer.RenderPath(pathOf(line, false), gridStyle, canvas.Identity)
		}
	}

	colors := DirectionColors()
	for i := range r.View.Footprints {
		f := &r.View.Footprints[i]
		if len(f.Ring) < 3 {
			continue
		}
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: canvas.Transparent}
		style.Stroke = canvas.Paint{Color: nrgbaToRGBA(colors[f.Direction])}
		style.StrokeWidth = 0.3
		renderer.RenderPath(pathOf(openRing(f.Ring), true), style, canvas.Identity)
	}

	if len(r.View.AOI) > 0 {
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: canvas.Transparent}
		style.Stroke = canvas.Paint{Color: canvas.Black}
		style.StrokeWidth = 1.0
		renderer.RenderPath(pathOf(openRing(r.View.AOI[0]), true), style, canvas.Identity)
	}

	lineStyle := canvas.DefaultStyle
	lineStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	lineStyle.Stroke = canvas.Paint{Color: color.RGBA{220, 20, 60, 255}}
	lineStyle.StrokeWidth = 0.8
	lineStyle.Dashes = []float64{3.0, 1.5}
	for _, l := range r.View.Lines {
		renderer.RenderPath(pathOf(l, false), lineStyle, canvas.Identity)
	}
}
