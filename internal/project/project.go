// Package project implements the on-disk project core: the typed
// configuration store and the registries that keep it in agreement with the
// physical directory tree (datasets, pretrained and trained weights,
// training plans).
//
// A Project owns exactly one ConfigStore; every registry it composes mutates
// the document through that single instance, so saves from independent
// handles cannot discard each other's writes. All mutation is
// single-logical-thread; the package does no locking.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/AyalaKaguya/yoloflow/internal/task"
)

// RequiredDirs are the subdirectories every project must contain.
var RequiredDirs = []string{"dataset", "model", "pretrain", "runs", "plan"}

// Project is the facade over one project directory and its configuration.
type Project struct {
	path   string
	config *ConfigStore
	logger *zap.Logger

	datasets *DatasetRegistry
	models   *ModelRegistry
	plans    *PlanStore
}

// Summary aggregates per-project counts for listing shells.
type Summary struct {
	Name             string    `json:"name"`
	TaskType         task.Type `json:"task_type"`
	Datasets         int       `json:"datasets"`
	PretrainedModels int       `json:"pretrained_models"`
	TrainedModels    int       `json:"trained_models"`
	Plans            int       `json:"plans"`
	CompletedPlans   int       `json:"completed_plans"`
	PendingPlans     int       `json:"pending_plans"`
	Runs             int       `json:"runs"`
}

// CreateNew creates a project directory with the required structure and a
// default configuration, then opens it. The target path must not exist.
func CreateNew(path, name string, taskType task.Type, description string, logger *zap.Logger) (*Project, error) {
	if !taskType.Valid() {
		return nil, fmt.Errorf("%w: task type %q", ErrStructuralInvalid, taskType)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}
	if _, err := os.Stat(abs); err == nil {
		return nil, fmt.Errorf("%w: project directory %s", ErrConflict, abs)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create project directory: %w", err)
	}
	for _, dir := range RequiredDirs {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create project directory: %w", err)
		}
	}

	p, err := Open(abs, logger)
	if err != nil {
		return nil, err
	}
	p.config.SetProjectName(name)
	p.config.SetTaskType(taskType)
	p.config.SetDescription(description)
	if err := p.config.Save(); err != nil {
		return nil, err
	}
	return p, nil
}

// Open attaches to an existing project directory. It fails with
// ErrStructuralInvalid when the directory is missing, is not a directory,
// or its configuration does not parse. Missing required subdirectories are
// recreated rather than rejected.
func Open(path string, logger *zap.Logger) (*Project, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStructuralInvalid, abs)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrStructuralInvalid, abs)
	}

	cfg := NewConfigStore(filepath.Join(abs, ConfigFile))
	if err := cfg.Load(); err != nil {
		return nil, err
	}

	for _, dir := range RequiredDirs {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			return nil, fmt.Errorf("ensure project structure: %w", err)
		}
	}

	p := &Project{path: abs, config: cfg, logger: logger}
	p.datasets = NewDatasetRegistry(abs, cfg, logger)
	p.models = NewModelRegistry(abs, cfg, logger)
	p.plans, err = NewPlanStore(abs, cfg, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Path returns the absolute project root.
func (p *Project) Path() string { return p.path }

// Name returns the configured project name, falling back to the directory
// name when the config carries none.
func (p *Project) Name() string {
	if n := p.config.ProjectName(); n != "" {
		return n
	}
	return filepath.Base(p.path)
}

// TaskType returns the project task type.
func (p *Project) TaskType() task.Type { return p.config.TaskType() }

// Config exposes the single owning ConfigStore.
func (p *Project) Config() *ConfigStore { return p.config }

// Datasets returns the dataset registry.
func (p *Project) Datasets() *DatasetRegistry { return p.datasets }

// Models returns the model registry.
func (p *Project) Models() *ModelRegistry { return p.models }

// Plans returns the plan store.
func (p *Project) Plans() *PlanStore { return p.plans }

// DatasetDir returns the absolute dataset directory.
func (p *Project) DatasetDir() string { return filepath.Join(p.path, "dataset") }

// ModelDir returns the absolute trained-model directory.
func (p *Project) ModelDir() string { return filepath.Join(p.path, "model") }

// PretrainDir returns the absolute pretrained-weights directory.
func (p *Project) PretrainDir() string { return filepath.Join(p.path, "pretrain") }

// RunsDir returns the absolute training-runs directory.
func (p *Project) RunsDir() string { return filepath.Join(p.path, "runs") }

// PlanDir returns the absolute plan directory.
func (p *Project) PlanDir() string { return filepath.Join(p.path, "plan") }

// Valid reports whether the required directories and the config file are
// all present.
func (p *Project) Valid() bool {
	for _, dir := range RequiredDirs {
		if info, err := os.Stat(filepath.Join(p.path, dir)); err != nil || !info.IsDir() {
			return false
		}
	}
	_, err := os.Stat(p.config.Path())
	return err == nil
}

// Runs lists the training run directory names, most recent name first.
func (p *Project) Runs() []string {
	entries, err := os.ReadDir(p.RunsDir())
	if err != nil {
		return nil
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() {
			runs = append(runs, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))
	return runs
}

// GetSummary collects counts across all registries. Model counts run the
// usual read-side reconciliation.
func (p *Project) GetSummary() (Summary, error) {
	pretrained, err := p.models.PretrainedModels()
	if err != nil {
		return Summary{}, err
	}
	trained, err := p.models.TrainedModels()
	if err != nil {
		return Summary{}, err
	}

	plans := p.plans.List()
	var completed, pending int
	for _, pl := range plans {
		switch pl.Status() {
		case task.StatusCompleted:
			completed++
		case task.StatusPending:
			pending++
		}
	}

	return Summary{
		Name:             p.Name(),
		TaskType:         p.TaskType(),
		Datasets:         len(p.datasets.List()),
		PretrainedModels: len(pretrained),
		TrainedModels:    len(trained),
		Plans:            len(plans),
		CompletedPlans:   completed,
		PendingPlans:     pending,
		Runs:             len(p.Runs()),
	}, nil
}

// Delete removes the entire project directory. The confirm flag guards
// against accidental deletion.
func (p *Project) Delete(confirm bool) error {
	if !confirm {
		return fmt.Errorf("project deletion requires confirmation")
	}
	return os.RemoveAll(p.path)
}
