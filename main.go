package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile    string
	ProjectFile   string
	ProjectURL    string
	DocumentFile  string
	ReferenceFile string
	AOIFile       string
	OutputDir     string
	OutputFile    string
	RenderFormat  string
	TerrainHeight float64
	TerrainSet    bool
	Workers       int
	HttpPort      int
	Cleanup       bool

	Footprints bool
	Classify   bool
	Blocks     bool
	Pairs      bool
	Filter     bool
	Histogram  bool
	Stages     bool
	RenderOnly bool
	PlanOnly   bool
	MqttMode   bool
	HttpMode   bool
}

// Runner is the set of commands the CLI dispatches to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunFootprints() error
	RunClassify() error
	RunBlocks() error
	RunPairs() error
	RunFilter() error
	RunHistogram() error
	RunStages() error
	RunRender() error
	RunPlan() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("Error: %v", err)
	}
}

// run parses args and runs the selected command
func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("obliqueplan", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.ProjectFile, "project", "", "Project JSON file")
	fs.StringVar(&opts.ProjectURL, "project-url", "", "Fetch the project JSON from this URL instead of -project")
	fs.StringVar(&opts.DocumentFile, "document", "", "Plan document for block-scoped commands (-filter, -histogram)")
	fs.StringVar(&opts.ReferenceFile, "reference", "", "Camera reference TSV (Label X Y Z Omega Phi Kappa)")
	fs.StringVar(&opts.AOIFile, "aoi", "", "AOI GeoJSON with one polygon and optional split lines")
	fs.StringVar(&opts.OutputDir, "output-dir", "", "Output directory (default: from config or .)")
	fs.StringVar(&opts.OutputFile, "output", "", "Output file for -render (default: <label>.<format>)")
	fs.StringVar(&opts.RenderFormat, "format", "png", "Render format: png, svg or raster")
	fs.Float64Var(&opts.TerrainHeight, "terrain-height", 0, "Terrain plane height (overrides config)")
	fs.IntVar(&opts.Workers, "workers", 0, "Footprint workers (0 = config or one per CPU)")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default from config, 4040)")
	fs.BoolVar(&opts.Cleanup, "cleanup", false, "With -filter, remove invalidated tie points")

	fs.BoolVar(&opts.Footprints, "footprints", false, "Project camera footprints and exit")
	fs.BoolVar(&opts.Classify, "classify", false, "Classify cameras by look direction and exit")
	fs.BoolVar(&opts.Blocks, "blocks", false, "Partition the AOI into blocks and write the plan document")
	fs.BoolVar(&opts.Pairs, "pairs", false, "Generate candidate pairs per block")
	fs.BoolVar(&opts.Filter, "filter", false, "Consolidate tie points")
	fs.BoolVar(&opts.Histogram, "histogram", false, "Write the direction histogram report")
	fs.BoolVar(&opts.Stages, "stages", false, "Print the alignment stages")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render a plan preview and exit")
	fs.BoolVar(&opts.PlanOnly, "plan", false, "Run the full planning pipeline and exit")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Publish plans over MQTT (service mode unless -plan)")
	fs.BoolVar(&opts.HttpMode, "serve", false, "Serve the current plan over HTTP")

	if err := fs.Parse(args); err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "terrain-height" {
			opts.TerrainSet = true
		}
	})

	fmt.Fprintf(out, "obliqueplan version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.Footprints:
		return app.RunFootprints()
	case opts.Classify:
		return app.RunClassify()
	case opts.Blocks:
		return app.RunBlocks()
	case opts.Pairs:
		return app.RunPairs()
	case opts.Filter:
		return app.RunFilter()
	case opts.Histogram:
		return app.RunHistogram()
	case opts.Stages:
		return app.RunStages()
	case opts.RenderOnly:
		return app.RunRender()
	case opts.PlanOnly:
		return app.RunPlan()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	}

	fmt.Fprintln(out, "No command given.")
	fmt.Fprintln(out, "Use -footprints to project camera footprints")
	fmt.Fprintln(out, "Use -classify to assign look-direction groups")
	fmt.Fprintln(out, "Use -blocks to partition the AOI into blocks")
	fmt.Fprintln(out, "Use -pairs to generate candidate image pairs")
	fmt.Fprintln(out, "Use -filter to consolidate tie points")
	fmt.Fprintln(out, "Use -histogram to write the direction histogram")
	fmt.Fprintln(out, "Use -render to output a plan preview")
	fmt.Fprintln(out, "Use -plan to run the whole pipeline")
	fmt.Fprintln(out, "Use -serve and/or -mqtt to run as a service")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - terrain height, render and MQTT settings")
	return nil
}
