package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/AyalaKaguya/yoloflow/internal/task"
)

// PlanExt is the file extension of per-plan documents.
const PlanExt = ".toml"

// TrainingParams are the core training knobs of a plan. Unknown extra
// parameters ride along in Extra.
type TrainingParams struct {
	Epochs       int            `toml:"epochs"`
	LearningRate float64        `toml:"learning_rate"`
	InputSize    int            `toml:"input_size"`
	BatchSize    int            `toml:"batch_size"`
	Extra        map[string]any `toml:"extra_params,omitempty"`
}

// DefaultTrainingParams returns the defaults applied to new plans.
func DefaultTrainingParams() TrainingParams {
	return TrainingParams{
		Epochs:       100,
		LearningRate: 0.01,
		InputSize:    640,
		BatchSize:    16,
	}
}

// ValidationParams are the validation thresholds of a plan.
type ValidationParams struct {
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	IoUThreshold        float64 `toml:"iou_threshold"`
}

// DefaultValidationParams returns the defaults applied to new plans.
func DefaultValidationParams() ValidationParams {
	return ValidationParams{ConfidenceThreshold: 0.25, IoUThreshold: 0.45}
}

// DatasetBinding assigns one project dataset a role within a plan. The
// binding object is owned by the plan.
type DatasetBinding struct {
	Dataset string      `toml:"name"`
	Target  task.Target `toml:"target"`
}

// Results records the model files a training run produced.
type Results struct {
	BestModel   string `toml:"best_model,omitempty"`
	LatestModel string `toml:"latest_model,omitempty"`
}

// Plan is the full detail of one training plan, backed by a single file
// under plan/ named by the plan id. The config document only carries a
// summary row; this struct is authoritative for everything else.
type Plan struct {
	ID              string
	Name            string
	TaskType        task.Type
	PretrainedModel string
	Training        TrainingParams
	Validation      ValidationParams
	Bindings        []DatasetBinding
	Results         Results
	CreatedAt       time.Time
	UpdatedAt       time.Time

	status task.PlanStatus
	path   string
}

// planFile is the on-disk shape of a plan document.
type planFile struct {
	Plan       planMeta         `toml:"plan"`
	Training   TrainingParams   `toml:"training"`
	Validation ValidationParams `toml:"validation"`
	Datasets   []DatasetBinding `toml:"datasets"`
	Results    Results          `toml:"results"`
}

type planMeta struct {
	Name            string    `toml:"name"`
	TaskType        task.Type `toml:"task_type"`
	PretrainedModel string    `toml:"pretrained_model,omitempty"`
	CreatedAt       time.Time `toml:"created_at"`
	UpdatedAt       time.Time `toml:"updated_at"`
}

// Status returns the plan's lifecycle status. The authoritative copy lives
// in the config index; the store keeps this mirror current.
func (p *Plan) Status() task.PlanStatus { return p.status }

// FilePath returns the absolute path of the plan document.
func (p *Plan) FilePath() string { return p.path }

// BindDataset assigns a dataset a role in this plan, replacing any existing
// binding for the same dataset name. A plan never holds two bindings for
// one dataset.
func (p *Plan) BindDataset(dataset string, target task.Target) {
	p.UnbindDataset(dataset)
	p.Bindings = append(p.Bindings, DatasetBinding{Dataset: dataset, Target: target})
}

// UnbindDataset removes the binding for a dataset name, if any.
func (p *Plan) UnbindDataset(dataset string) {
	out := p.Bindings[:0]
	for _, b := range p.Bindings {
		if b.Dataset != dataset {
			out = append(out, b)
		}
	}
	p.Bindings = out
}

// BindingsFor returns the bindings carrying the given target.
func (p *Plan) BindingsFor(target task.Target) []DatasetBinding {
	var out []DatasetBinding
	for _, b := range p.Bindings {
		if b.Target == target {
			out = append(out, b)
		}
	}
	return out
}

// SetResults records result model paths; empty strings leave the prior
// value untouched.
func (p *Plan) SetResults(best, latest string) {
	if best != "" {
		p.Results.BestModel = best
	}
	if latest != "" {
		p.Results.LatestModel = latest
	}
}

// HasResults reports whether any training output has been recorded.
func (p *Plan) HasResults() bool {
	return p.Results.BestModel != "" || p.Results.LatestModel != ""
}

// Save rewrites this plan's own file and refreshes the updated_at stamp.
// It does not touch the config's plan index; status changes go through the
// store so the index stays consistent.
func (p *Plan) Save() error {
	p.UpdatedAt = time.Now()

	doc := planFile{
		Plan: planMeta{
			Name:            p.Name,
			TaskType:        p.TaskType,
			PretrainedModel: p.PretrainedModel,
			CreatedAt:       p.CreatedAt,
			UpdatedAt:       p.UpdatedAt,
		},
		Training:   p.Training,
		Validation: p.Validation,
		Datasets:   p.Bindings,
		Results:    p.Results,
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("%w: create plan dir: %v", ErrIO, err)
	}
	tmp := p.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: write plan: %v", ErrIO, err)
	}
	if err := toml.NewEncoder(f).Encode(doc); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: encode plan: %v", ErrIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: write plan: %v", ErrIO, err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: write plan: %v", ErrIO, err)
	}
	return nil
}

// loadPlanFile reads one plan document. The plan id comes from the
// filename stem.
func loadPlanFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	var doc planFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse plan %s: %v", ErrStructuralInvalid, path, err)
	}
	if doc.Plan.Name == "" {
		return nil, fmt.Errorf("%w: plan %s has no name", ErrStructuralInvalid, path)
	}

	p := &Plan{
		ID:              strings.TrimSuffix(filepath.Base(path), PlanExt),
		Name:            doc.Plan.Name,
		TaskType:        doc.Plan.TaskType,
		PretrainedModel: doc.Plan.PretrainedModel,
		Training:        doc.Training,
		Validation:      doc.Validation,
		Bindings:        doc.Datasets,
		Results:         doc.Results,
		CreatedAt:       doc.Plan.CreatedAt,
		UpdatedAt:       doc.Plan.UpdatedAt,
		status:          task.StatusPending,
		path:            path,
	}
	return p, nil
}
