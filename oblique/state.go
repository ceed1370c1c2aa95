package oblique

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PlanState holds the latest plan for the HTTP endpoints. A plan built from
// a project received over MQTT replaces the previous one.
type PlanState struct {
	mu        sync.RWMutex
	plan      *Plan
	updated   time.Time
	cachePath string // empty disables persistence
}

// NewPlanState creates an empty plan state
func NewPlanState() *PlanState {
	return &PlanState{}
}

// NewPlanStateWithCache creates a plan state that persists every plan
// document to cachePath. A document already at that path is loaded as the
// initial plan.
func NewPlanStateWithCache(cachePath string) *PlanState {
	st := &PlanState{cachePath: cachePath}
	if cachePath == "" {
		return st
	}
	if pl, err := LoadPlan(cachePath); err == nil {
		st.plan = pl
		st.updated = pl.Created
	}
	return st
}

// SetPlan stores the plan and persists it when a cache path is configured
func (st *PlanState) SetPlan(pl *Plan) {
	st.mu.Lock()
	st.plan = pl
	st.updated = time.Now()
	cachePath := st.cachePath
	st.mu.Unlock()

	if cachePath != "" && pl != nil {
		if err := SavePlan(pl, cachePath); err != nil {
			log.Printf("warning: failed to save plan cache: %v", err)
		}
	}
}

// Plan returns the current plan, or nil
func (st *PlanState) Plan() *Plan {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.plan
}

// HasPlan returns true once a plan has been stored
func (st *PlanState) HasPlan() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.plan != nil
}

// Updated returns when the plan was last replaced
func (st *PlanState) Updated() time.Time {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.updated
}

// SavePlan writes a plan to disk as JSON
func SavePlan(pl *Plan, path string) error {
	data, err := json.MarshalIndent(pl, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write plan cache: %w", err)
	}
	return nil
}

// LoadPlan reads a plan written by SavePlan. The source project is the
// first project of the document, so both refer to the same value.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan cache: %w", err)
	}
	var pl Plan
	if err := json.Unmarshal(data, &pl); err != nil {
		return nil, fmt.Errorf("unmarshal plan cache: %w", err)
	}
	if pl.Document == nil || len(pl.Document.Projects) == 0 || pl.Document.Projects[0] == nil {
		return nil, fmt.Errorf("plan cache %s has no source project", path)
	}
	pl.Source = pl.Document.Projects[0]
	return &pl, nil
}
