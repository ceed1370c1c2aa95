package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/obliqueplan/oblique"
)

// mqttConnectTimeout bounds the wait for the broker in one-shot -plan -mqtt runs
const mqttConnectTimeout = 15 * time.Second

// App encapsulates the application state and dependencies
type App struct {
	Config     *oblique.Config
	State      *oblique.PlanState
	MQTTClient *oblique.MQTTClient
	Publisher  *oblique.Publisher

	// CLI Flags (effectively dependencies)
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
	MqttMode      bool
	HttpMode      bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		State: oblique.NewPlanState(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.ProjectFile = opts.ProjectFile
	a.ProjectURL = opts.ProjectURL
	a.DocumentFile = opts.DocumentFile
	a.ReferenceFile = opts.ReferenceFile
	a.AOIFile = opts.AOIFile
	a.OutputDir = opts.OutputDir
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.TerrainHeight = opts.TerrainHeight
	a.TerrainSet = opts.TerrainSet
	a.Workers = opts.Workers
	a.HttpPort = opts.HttpPort
	a.Cleanup = opts.Cleanup
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig reads the config file when present and applies CLI overrides.
// A missing default config.yaml falls back to the defaults.
func (a *App) loadConfig() error {
	if a.Config != nil {
		a.applyOverrides()
		return nil
	}

	switch _, err := os.Stat(a.ConfigFile); {
	case a.ConfigFile != "" && err == nil:
		config, err := oblique.LoadConfig(a.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config %s: %w", a.ConfigFile, err)
		}
		a.Config = config
		log.Printf("Loaded config from %s", a.ConfigFile)
	case a.ConfigFile != "" && a.ConfigFile != "config.yaml":
		return fmt.Errorf("config file not found: %s", a.ConfigFile)
	default:
		a.Config = oblique.DefaultConfig()
		log.Printf("No config file, using defaults (terrain height %.1f)", a.Config.TerrainHeight)
	}

	a.applyOverrides()
	return nil
}

func (a *App) applyOverrides() {
	if a.TerrainSet {
		a.Config.TerrainHeight = a.TerrainHeight
	}
	if a.Workers > 0 {
		a.Config.Workers = a.Workers
	}
	if a.OutputDir != "" {
		a.Config.Output = a.OutputDir
	}
	if a.HttpPort > 0 {
		a.Config.HTTP.Port = a.HttpPort
	}
}

// loadProject reads the project from -project-url or -project and merges
// the camera reference and AOI files into it
func (a *App) loadProject(ctx context.Context) (*oblique.Project, error) {
	var (
		p   *oblique.Project
		err error
	)
	switch {
	case a.ProjectURL != "":
		var opts []oblique.FetchOption
		if token := os.Getenv("PROJECT_API_TOKEN"); token != "" {
			opts = append(opts, oblique.WithBearerToken(token))
		}
		p, err = oblique.FetchProjectFromAPI(ctx, a.ProjectURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("fetching project: %w", err)
		}
		log.Printf("Fetched project %q from %s", p.Label, a.ProjectURL)
	case a.ProjectFile != "":
		p, err = oblique.ParseProjectFile(a.ProjectFile)
		if err != nil {
			return nil, fmt.Errorf("loading project %s: %w", a.ProjectFile, err)
		}
		log.Printf("Loaded project %q from %s", p.Label, a.ProjectFile)
	default:
		return nil, errors.New("no project given: use -project or -project-url")
	}
	if p.Label == "" {
		p.Label = strings.TrimSuffix(filepath.Base(a.ProjectFile), filepath.Ext(a.ProjectFile))
		if p.Label == "" || p.Label == "." {
			p.Label = "project"
		}
	}

	if a.ReferenceFile != "" {
		f, err := os.Open(a.ReferenceFile)
		if err != nil {
			return nil, fmt.Errorf("opening camera reference: %w", err)
		}
		refs, err := oblique.ReadCameraReference(f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		n := oblique.ApplyCameraReference(p, refs)
		log.Printf("Applied %d of %d camera reference rows", n, len(refs))
	}

	if a.AOIFile != "" {
		shapes, err := oblique.LoadAOIGeoJSON(a.AOIFile, "AOI")
		if err != nil {
			return nil, err
		}
		// the imported AOI replaces any user shapes already in the project
		kept := p.Shapes[:0]
		next := 0
		for _, s := range p.Shapes {
			if s.Group == a.Config.FootprintsGroupName() {
				kept = append(kept, s)
				if s.Key >= next {
					next = s.Key + 1
				}
			}
		}
		for i := range shapes {
			shapes[i].Key = next + i
		}
		p.Shapes = append(kept, shapes...)
		log.Printf("Imported %d AOI shape(s) from %s", len(shapes), a.AOIFile)
	}
	return p, nil
}

// loadDocument reads the -document plan, or plans the project when none is
// given
func (a *App) loadDocument(ctx context.Context) (*oblique.Document, error) {
	if a.DocumentFile != "" {
		doc, err := oblique.LoadDocument(a.DocumentFile)
		if err != nil {
			return nil, fmt.Errorf("loading document %s: %w", a.DocumentFile, err)
		}
		return doc, nil
	}
	pl, err := a.buildPlan(ctx)
	if err != nil {
		return nil, err
	}
	pl.Document.Path = a.documentPath(pl.Source.Label)
	return pl.Document, nil
}

func (a *App) buildPlan(ctx context.Context) (*oblique.Plan, error) {
	p, err := a.loadProject(ctx)
	if err != nil {
		return nil, err
	}
	return oblique.BuildPlan(ctx, p, a.Config)
}

func (a *App) outputPath(name string) string {
	return filepath.Join(a.Config.Output, name)
}

func (a *App) documentPath(label string) string {
	return a.outputPath(label + ".plan.json")
}

func (a *App) ensureOutputDir() error {
	if err := os.MkdirAll(a.Config.Output, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// RunFootprints projects every camera footprint and writes the updated
// project and a GeoJSON of the footprints
func (a *App) RunFootprints() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	ctx := context.Background()
	p, err := a.loadProject(ctx)
	if err != nil {
		return err
	}

	report, err := oblique.ProjectFootprints(ctx, p, oblique.FootprintOptions{
		TerrainHeight: a.Config.TerrainHeight,
		Workers:       a.Config.Workers,
	})
	if err != nil {
		return err
	}
	oblique.ClassifyProject(p)

	if err := a.ensureOutputDir(); err != nil {
		return err
	}
	projectPath := a.outputPath(p.Label + ".json")
	if err := oblique.SaveProject(projectPath, p); err != nil {
		return err
	}
	geoPath := a.outputPath(p.Label + "_footprints.geojson")
	f, err := os.Create(geoPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", geoPath, err)
	}
	defer func() { _ = f.Close() }()
	if err := oblique.WriteFeatureCollection(f, oblique.FootprintsToFeatureCollection(p.Footprints)); err != nil {
		return err
	}

	fmt.Printf("Footprints: %d created, %d failed (terrain height %.2f)\n",
		report.Created, len(report.Failures), a.Config.TerrainHeight)
	for _, fail := range report.Failures {
		fmt.Printf("  %s\n", fail.Error())
	}
	fmt.Printf("Created: %s, %s\n", projectPath, geoPath)
	return nil
}

// RunClassify assigns every camera to a direction group
func (a *App) RunClassify() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	p, err := a.loadProject(context.Background())
	if err != nil {
		return err
	}

	failures := oblique.ClassifyProject(p)
	summary := oblique.Summarize(p)

	fmt.Printf("=== %s ===\n", p.Label)
	for _, d := range []oblique.Direction{
		oblique.DirectionNadir, oblique.DirectionFront, oblique.DirectionRight,
		oblique.DirectionBack, oblique.DirectionLeft,
	} {
		fmt.Printf("  %-6s %d\n", d, summary.Groups[d])
	}
	fmt.Printf("  Unclassified: %d\n", len(failures))
	for _, fail := range failures {
		fmt.Printf("    %s\n", fail.Error())
	}

	if err := a.ensureOutputDir(); err != nil {
		return err
	}
	return oblique.SaveProject(a.outputPath(p.Label+".json"), p)
}

// RunBlocks partitions the project and writes the plan document with the
// derived projects
func (a *App) RunBlocks() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	pl, err := a.buildPlan(context.Background())
	if err != nil {
		return err
	}
	if err := a.ensureOutputDir(); err != nil {
		return err
	}

	pl.Document.Path = a.documentPath(pl.Source.Label)
	if err := oblique.SaveDocument(pl.Document); err != nil {
		return err
	}
	blocksPath := a.outputPath(pl.Source.Label + "_blocks.geojson")
	f, err := os.Create(blocksPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", blocksPath, err)
	}
	defer func() { _ = f.Close() }()
	if err := oblique.WriteFeatureCollection(f, oblique.BlocksToFeatureCollection(pl.Partition.Blocks)); err != nil {
		return err
	}

	printPartition(pl)
	fmt.Printf("Created: %s, %s\n", pl.Document.Path, blocksPath)
	return nil
}

func printPartition(pl *oblique.Plan) {
	part := pl.Partition
	fmt.Printf("=== %s ===\n", pl.Source.Label)
	fmt.Printf("Outside: %d camera(s)\n", len(part.Outside))
	if part.Split() {
		for i, b := range part.Blocks {
			fmt.Printf("Block %d: %d camera(s), area %.1f\n", i, len(b.Cameras), oblique.PolygonArea(b.Polygon))
		}
	} else {
		fmt.Printf("Inside: %d camera(s)\n", len(part.Inside))
	}
	if len(part.Unassigned) > 0 {
		fmt.Printf("Unassigned: %v\n", part.Unassigned)
	}
	if len(part.Unprojected) > 0 {
		fmt.Printf("Without footprint: %v\n", part.Unprojected)
	}
}

// RunPairs writes the candidate pairs of every block
func (a *App) RunPairs() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	pl, err := a.buildPlan(context.Background())
	if err != nil {
		return err
	}
	if err := a.ensureOutputDir(); err != nil {
		return err
	}

	path := a.outputPath(pl.Source.Label + "_pairs.json")
	if err := writeJSON(path, pl.Pairs); err != nil {
		return err
	}
	for _, bp := range pl.Pairs {
		fmt.Printf("%s: %d pair(s)\n", bp.Label, len(bp.Pairs))
	}
	fmt.Printf("Created: %s\n", path)
	return nil
}

// RunFilter consolidates the tie points of every block project and saves
// the document
func (a *App) RunFilter() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	doc, err := a.loadDocument(context.Background())
	if err != nil {
		return err
	}
	scope, err := oblique.BlockScope(doc)
	if err != nil {
		return err
	}

	for _, p := range scope {
		c := oblique.FilterTiePoints(p)
		fmt.Printf("%s: kept %d, invalidated %d tie point(s)\n", p.Label, len(c.Selected), len(c.Invalid))
		if a.Cleanup {
			fmt.Printf("%s: removed %d tie point(s)\n", p.Label, p.PointCloud.Cleanup())
		}
	}

	if a.DocumentFile == "" {
		if err := a.ensureOutputDir(); err != nil {
			return err
		}
	}
	if err := oblique.SaveDocument(doc); err != nil {
		return err
	}
	fmt.Printf("Saved: %s\n", doc.Path)
	return nil
}

// RunHistogram writes one direction histogram report per block project
func (a *App) RunHistogram() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	doc, err := a.loadDocument(context.Background())
	if err != nil {
		return err
	}
	scope, err := oblique.BlockScope(doc)
	if err != nil {
		return err
	}
	if err := a.ensureOutputDir(); err != nil {
		return err
	}

	for _, p := range scope {
		h, err := oblique.ComputeHistogram(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Label, err)
		}
		path := oblique.HistogramPath(a.Config.Output, p.Label)
		if err := oblique.SaveHistogram(path, h); err != nil {
			return err
		}
		fmt.Printf("%s: %d row(s) -> %s\n", p.Label, len(h), path)
	}
	return nil
}

// RunStages prints the alignment stages of every block project
func (a *App) RunStages() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	pl, err := a.buildPlan(context.Background())
	if err != nil {
		return err
	}

	for _, p := range pl.Scope() {
		fmt.Printf("=== %s ===\n", p.Label)
		for i, st := range pl.Stages[p.Label] {
			reset := ""
			if st.Reset {
				reset = " (reset)"
			}
			fmt.Printf("  %d. %-6s %d camera(s)%s\n", i+1, st.Direction, len(st.Cameras), reset)
		}
	}
	return nil
}

// RunRender plans the project and writes a PNG or SVG preview
func (a *App) RunRender() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	pl, err := a.buildPlan(context.Background())
	if err != nil {
		return err
	}
	if err := a.ensureOutputDir(); err != nil {
		return err
	}

	format := strings.ToLower(a.RenderFormat)
	if format == "" {
		format = "png"
	}
	ext := format
	if ext == "raster" {
		ext = "png"
	}
	output := a.OutputFile
	if output == "" {
		output = a.outputPath(pl.Source.Label + "." + ext)
	}

	view := oblique.NewPlanView(pl.Source, pl.Partition, a.Config.FootprintsGroupName())
	if err := renderView(view, a.Config.Render, format, output); err != nil {
		return err
	}
	printPartition(pl)
	fmt.Printf("Created: %s\n", output)
	return nil
}

func renderView(view *oblique.PlanView, cfg oblique.RenderConfig, format, output string) error {
	if format == "raster" {
		return oblique.NewPlanRenderer(view, cfg).SavePNG(output)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating %s: %w", output, err)
	}
	defer func() { _ = f.Close() }()

	r := oblique.NewVectorRenderer(view, cfg)
	switch format {
	case "svg":
		return r.RenderToSVG(f)
	case "png":
		return r.RenderToPNG(f)
	}
	return fmt.Errorf("unknown render format %q (want png, svg or raster)", format)
}

// RunPlan runs the whole pipeline, writes the plan document and publishes
// it when -mqtt is set
func (a *App) RunPlan() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	pl, err := a.buildPlan(context.Background())
	if err != nil {
		return err
	}
	if err := a.ensureOutputDir(); err != nil {
		return err
	}

	pl.Document.Path = a.documentPath(pl.Source.Label)
	if err := oblique.SaveDocument(pl.Document); err != nil {
		return err
	}
	pairsPath := a.outputPath(pl.Source.Label + "_pairs.json")
	if err := writeJSON(pairsPath, pl.Pairs); err != nil {
		return err
	}
	printPartition(pl)
	fmt.Printf("Created: %s, %s\n", pl.Document.Path, pairsPath)

	if !a.MqttMode {
		return nil
	}
	if err := a.startMQTT(nil); err != nil {
		return err
	}
	defer a.MQTTClient.Disconnect()

	deadline := time.Now().Add(mqttConnectTimeout)
	for !a.MQTTClient.IsConnected() {
		if time.Now().After(deadline) {
			return fmt.Errorf("MQTT broker not reachable after %s", mqttConnectTimeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
	return publishPlan(a.Publisher, pl)
}

// startMQTT connects to the broker and creates the publisher
func (a *App) startMQTT(handler oblique.ProjectHandler) error {
	client, err := oblique.InitMQTT(a.Config, handler)
	if err != nil {
		return fmt.Errorf("failed to initialize MQTT: %w", err)
	}
	if client == nil {
		return errors.New("MQTT broker not configured (set mqtt.broker or MQTT_BROKER)")
	}
	a.MQTTClient = client
	a.Publisher = oblique.NewPublisher(client.GetClient())
	if os.Getenv("MQTT_PUBLISH_PREFIX") == "" {
		a.Publisher.SetPrefix(a.Config.MQTT.PublishPrefix)
	}
	return nil
}

// publishPlan publishes every block manifest with its stages, then the
// summary
func publishPlan(pub *oblique.Publisher, pl *oblique.Plan) error {
	if pub == nil {
		return nil
	}
	pub.ClearManifests()
	var errs []error
	for _, p := range pl.Scope() {
		if err := pub.PublishBlock(p, pl.PairsFor(p.Label)); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := pub.PublishStages(p.Label, pl.Stages[p.Label]); err != nil {
			errs = append(errs, err)
		}
	}
	if err := pub.PublishSummary(pl.Source, pl.Partition); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// handleProject plans a project received over MQTT, stores and publishes it
func (a *App) handleProject(p *oblique.Project, err error) {
	if err != nil {
		log.Printf("[MQTT] error receiving project: %v", err)
		return
	}
	pl, err := oblique.BuildPlan(context.Background(), p, a.Config)
	if err != nil {
		log.Printf("Error planning %s: %v", p.Label, err)
		return
	}
	a.State.SetPlan(pl)
	log.Printf("Planned %s: %d block project(s)", p.Label, len(pl.Pairs))

	if err := publishPlan(a.Publisher, pl); err != nil {
		log.Printf("[MQTT] error publishing plan for %s: %v", p.Label, err)
	}
}

// RunService serves the latest plan over HTTP and/or replans projects
// received over MQTT until interrupted
func (a *App) RunService() error {
	fmt.Println("Starting obliqueplan service...")

	if err := a.loadConfig(); err != nil {
		return err
	}
	if a.State == nil || !a.State.HasPlan() {
		a.State = oblique.NewPlanStateWithCache(a.outputPath(".plan-cache.json"))
	}

	if a.ProjectFile != "" || a.ProjectURL != "" {
		pl, err := a.buildPlan(context.Background())
		if err != nil {
			return err
		}
		a.State.SetPlan(pl)
		log.Printf("Initial plan for %s", pl.Source.Label)
	} else if a.State.HasPlan() {
		log.Printf("Loaded cached plan for %s", a.State.Plan().Source.Label)
	}

	if a.MqttMode {
		if err := a.startMQTT(a.handleProject); err != nil {
			return err
		}
		fmt.Println("MQTT plan publisher initialized")
		if pl := a.State.Plan(); pl != nil {
			go func() {
				for !a.MQTTClient.IsConnected() {
					time.Sleep(time.Second)
				}
				if err := publishPlan(a.Publisher, pl); err != nil {
					log.Printf("[MQTT] error publishing initial plan: %v", err)
				}
			}()
		}
	}

	if a.HttpMode {
		httpServer := newHTTPServer(a.State, a.Config)
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", a.Config.HTTP.Port)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")
	if a.MqttMode {
		prefix := a.Config.MQTT.PublishPrefix
		fmt.Println("\nMQTT:")
		fmt.Printf("  Subscribed topic: %s\n", oblique.ProjectTopic(prefix))
		fmt.Printf("  Publishing to: %s/blocks/{label}, %s/stages/{label}, %s/plan\n", prefix, prefix, prefix)
	}
	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.Config.HTTP.Port)
		fmt.Println("  GET /health             - Health check")
		fmt.Println("  GET /footprints.geojson - Footprints with direction")
		fmt.Println("  GET /blocks.json        - Partition and block cameras")
		fmt.Println("  GET /pairs.json         - Candidate pairs per block")
		fmt.Println("  GET /histogram.csv      - Direction histogram (?project=label)")
		fmt.Println("  GET /plan.png           - Plan preview")
		fmt.Println("  GET /plan.svg           - Plan preview (vector)")
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
	return nil
}
