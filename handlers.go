package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kwv/obliqueplan/oblique"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(state *oblique.PlanState, config *oblique.Config) http.Handler {
	if config == nil {
		config = oblique.DefaultConfig()
	}
	mux := http.NewServeMux()

	// currentPlan writes 503 when nothing has been planned yet
	currentPlan := func(w http.ResponseWriter) *oblique.Plan {
		pl := state.Plan()
		if pl == nil || pl.Source == nil {
			http.Error(w, "No plan available", http.StatusServiceUnavailable)
			return nil
		}
		return pl
	}

	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("Error encoding JSON response: %v", err)
		}
	}

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasPlan   bool      `json:"hasPlan"`
			Updated   time.Time `json:"updated,omitempty"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasPlan:   state.HasPlan(),
			Updated:   state.Updated(),
		}
		writeJSON(w, status)
	})

	mux.HandleFunc("/footprints.geojson", func(w http.ResponseWriter, r *http.Request) {
		pl := currentPlan(w)
		if pl == nil {
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := oblique.WriteFeatureCollection(w, oblique.FootprintsToFeatureCollection(pl.Source.Footprints)); err != nil {
			log.Printf("Error encoding footprints: %v", err)
		}
	})

	mux.HandleFunc("/blocks.json", func(w http.ResponseWriter, r *http.Request) {
		pl := currentPlan(w)
		if pl == nil {
			return
		}
		writeJSON(w, pl.Partition)
	})

	mux.HandleFunc("/pairs.json", func(w http.ResponseWriter, r *http.Request) {
		pl := currentPlan(w)
		if pl == nil {
			return
		}
		if label := r.URL.Query().Get("project"); label != "" {
			if pl.Document == nil || pl.Document.Find(label) == nil {
				http.Error(w, fmt.Sprintf("Unknown project %q", label), http.StatusNotFound)
				return
			}
			writeJSON(w, pl.PairsFor(label))
			return
		}
		writeJSON(w, pl.Pairs)
	})

	// Histogram of one block project; defaults to the first block
	mux.HandleFunc("/histogram.csv", func(w http.ResponseWriter, r *http.Request) {
		pl := currentPlan(w)
		if pl == nil {
			return
		}
		scope := pl.Scope()
		if len(scope) == 0 {
			http.Error(w, "Plan has no block projects", http.StatusServiceUnavailable)
			return
		}
		project := scope[0]
		if label := r.URL.Query().Get("project"); label != "" {
			project = pl.Document.Find(label)
			if project == nil {
				http.Error(w, fmt.Sprintf("Unknown project %q", label), http.StatusNotFound)
				return
			}
		}

		h, err := oblique.ComputeHistogram(project)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, oblique.ErrUngroupedCamera) {
				status = http.StatusUnprocessableEntity
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if err := oblique.WriteHistogram(w, h); err != nil {
			log.Printf("Error writing histogram: %v", err)
		}
	})

	mux.HandleFunc("/plan.png", func(w http.ResponseWriter, r *http.Request) {
		pl := currentPlan(w)
		if pl == nil {
			return
		}
		view := oblique.NewPlanView(pl.Source, pl.Partition, config.FootprintsGroupName())
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := oblique.NewPlanRenderer(view, config.Render).Encode(w); err != nil {
			log.Printf("Error encoding plan PNG: %v", err)
		}
	})

	mux.HandleFunc("/plan.svg", func(w http.ResponseWriter, r *http.Request) {
		pl := currentPlan(w)
		if pl == nil {
			return
		}
		view := oblique.NewPlanView(pl.Source, pl.Partition, config.FootprintsGroupName())
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := oblique.NewVectorRenderer(view, config.Render).RenderToSVG(w); err != nil {
			log.Printf("Error encoding plan SVG: %v", err)
		}
	})

	// Default route serves HTML page embedding the SVG plan
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>obliqueplan</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#ffffff}
img{display:block;width:100vw;height:100vh;object-fit:contain}
</style>
</head>
<body>
<img src="/plan.svg" alt="Block plan">
</body>
</html>`)
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}
