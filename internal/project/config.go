package project

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/AyalaKaguya/yoloflow/internal/task"
)

// ConfigFile is the name of the per-project configuration document.
const ConfigFile = "yoloflow.toml"

// Document is the typed in-memory form of the project configuration.
//
// The five top-level sections are always present after Load, even when
// empty. The `available` name lists are denormalized copies kept for fast
// lookups and for compatibility with documents written by older versions;
// the `detailed` tables are authoritative.
type Document struct {
	Project      ProjectSection    `toml:"project"`
	Datasets     DatasetsSection   `toml:"datasets"`
	Models       ModelsSection     `toml:"models"`
	Plans        PlansSection      `toml:"plans"`
	Training     TrainingSection   `toml:"training"`
	CustomFields map[string]string `toml:"custom_fields"`
}

// ProjectSection holds project identity fields.
type ProjectSection struct {
	Name        string    `toml:"name"`
	TaskType    task.Type `toml:"task_type"`
	CreatedAt   time.Time `toml:"created_at"`
	Description string    `toml:"description"`
}

// DatasetsSection indexes the project's datasets.
type DatasetsSection struct {
	Available []string       `toml:"available"`
	Detailed  []DatasetEntry `toml:"detailed"`
}

// ModelsSection indexes the project's model files.
type ModelsSection struct {
	Available []string     `toml:"available"`
	Detailed  []ModelEntry `toml:"detailed"`
}

// PlansSection is the lightweight plan index. Full plan detail lives in one
// file per plan under plan/; this section only supports fast listing.
type PlansSection struct {
	Available []string      `toml:"available"`
	Detailed  []PlanSummary `toml:"detailed"`
}

// TrainingSection accumulates training history records.
type TrainingSection struct {
	History []TrainingRecord `toml:"history"`
}

// DatasetEntry describes one dataset owned by the project. Name is the
// primary key; Path is relative to the project root (dataset/<name>).
type DatasetEntry struct {
	Name        string    `toml:"name"`
	Path        string    `toml:"path"`
	Type        task.Type `toml:"type"`
	Description string    `toml:"description"`
}

// ModelEntry describes one model weight file. Filename is unique within its
// source bucket; entries with a pretrained source live under pretrain/,
// plan-created entries under model/.
type ModelEntry struct {
	Name        string           `toml:"name"`
	Filename    string           `toml:"filename"`
	Description string           `toml:"description"`
	Parameters  int64            `toml:"parameters"`
	TaskType    task.Type        `toml:"task_type"`
	Source      task.ModelSource `toml:"source"`
}

// PlanSummary is the denormalized row kept in the config for each plan.
type PlanSummary struct {
	PlanID    string          `toml:"plan_id"`
	Name      string          `toml:"name"`
	FilePath  string          `toml:"file_path"`
	CreatedAt time.Time       `toml:"created_at"`
	Status    task.PlanStatus `toml:"status"`
}

// TrainingRecord is one entry of the training history.
type TrainingRecord struct {
	Timestamp time.Time `toml:"timestamp"`
	PlanID    string    `toml:"plan_id"`
	Status    string    `toml:"status"`
	Note      string    `toml:"note,omitempty"`
}

// ConfigStore is the typed read/write wrapper over the single serialized
// project document. It knows nothing about the filesystem beyond its own
// file. Mutators change the in-memory tree only and mark it dirty; callers
// persist with Save.
//
// All mutation is expected to happen on a single logical thread; the store
// is the one owner of its file and does no locking.
type ConfigStore struct {
	path  string
	doc   Document
	dirty bool
}

// NewConfigStore creates a store for the document at path. Call Load before
// reading or mutating.
func NewConfigStore(path string) *ConfigStore {
	return &ConfigStore{path: path}
}

// Path returns the location of the backing file.
func (c *ConfigStore) Path() string { return c.path }

// Dirty reports whether in-memory state has diverged from the last Save.
func (c *ConfigStore) Dirty() bool { return c.dirty }

// Load reads the serialized document if present, otherwise constructs and
// persists a default one. A document that fails to parse is fatal: the
// caller decides whether to reject the project or rebuild defaults.
func (c *ConfigStore) Load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.doc = defaultDocument()
			c.dirty = true
			return c.Save()
		}
		return fmt.Errorf("read config: %w", err)
	}

	var doc Document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrStructuralInvalid, c.path, err)
	}
	c.doc = doc
	c.normalize()
	return c.migrateLegacyDatasets()
}

// Save serializes the full document back to disk, overwriting prior content.
// Last writer wins; there is no merge. The write goes through a temp file
// and rename so a crash never leaves a truncated document.
func (c *ConfigStore) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp := c.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(c.doc); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	c.dirty = false
	return nil
}

func defaultDocument() Document {
	return Document{
		Project: ProjectSection{
			TaskType:  task.Detection,
			CreatedAt: time.Now(),
		},
		Datasets:     DatasetsSection{Available: []string{}, Detailed: []DatasetEntry{}},
		Models:       ModelsSection{Available: []string{}, Detailed: []ModelEntry{}},
		Plans:        PlansSection{Available: []string{}, Detailed: []PlanSummary{}},
		Training:     TrainingSection{History: []TrainingRecord{}},
		CustomFields: map[string]string{},
	}
}

// normalize guarantees the section invariant: all five sections present and
// non-nil, even for documents that omitted them on disk.
func (c *ConfigStore) normalize() {
	if c.doc.Datasets.Available == nil {
		c.doc.Datasets.Available = []string{}
	}
	if c.doc.Datasets.Detailed == nil {
		c.doc.Datasets.Detailed = []DatasetEntry{}
	}
	if c.doc.Models.Available == nil {
		c.doc.Models.Available = []string{}
	}
	if c.doc.Models.Detailed == nil {
		c.doc.Models.Detailed = []ModelEntry{}
	}
	if c.doc.Plans.Available == nil {
		c.doc.Plans.Available = []string{}
	}
	if c.doc.Plans.Detailed == nil {
		c.doc.Plans.Detailed = []PlanSummary{}
	}
	if c.doc.Training.History == nil {
		c.doc.Training.History = []TrainingRecord{}
	}
	if c.doc.CustomFields == nil {
		c.doc.CustomFields = map[string]string{}
	}
	if !c.doc.Project.TaskType.Valid() {
		c.doc.Project.TaskType = task.Detection
	}
}

// migrateLegacyDatasets upgrades documents that carry only the flat
// datasets.available name list. Each legacy name becomes a typed entry
// defaulted to the project task type; the result is persisted immediately
// so the migration runs exactly once.
func (c *ConfigStore) migrateLegacyDatasets() error {
	if len(c.doc.Datasets.Detailed) > 0 || len(c.doc.Datasets.Available) == 0 {
		return nil
	}
	for _, name := range c.doc.Datasets.Available {
		c.doc.Datasets.Detailed = append(c.doc.Datasets.Detailed, DatasetEntry{
			Name: name,
			Path: filepath.ToSlash(filepath.Join("dataset", name)),
			Type: c.doc.Project.TaskType,
		})
	}
	c.dirty = true
	if err := c.Save(); err != nil {
		return fmt.Errorf("persist dataset migration: %w", err)
	}
	return nil
}

// Project section accessors.

func (c *ConfigStore) ProjectName() string { return c.doc.Project.Name }

func (c *ConfigStore) SetProjectName(name string) {
	c.doc.Project.Name = name
	c.dirty = true
}

func (c *ConfigStore) TaskType() task.Type { return c.doc.Project.TaskType }

func (c *ConfigStore) SetTaskType(t task.Type) {
	c.doc.Project.TaskType = t
	c.dirty = true
}

func (c *ConfigStore) Description() string { return c.doc.Project.Description }

func (c *ConfigStore) SetDescription(d string) {
	c.doc.Project.Description = d
	c.dirty = true
}

func (c *ConfigStore) CreatedAt() time.Time { return c.doc.Project.CreatedAt }

// Dataset accessors.

// Datasets returns a copy of the typed dataset entries.
func (c *ConfigStore) Datasets() []DatasetEntry {
	out := make([]DatasetEntry, len(c.doc.Datasets.Detailed))
	copy(out, c.doc.Datasets.Detailed)
	return out
}

// Dataset looks up one entry by name.
func (c *ConfigStore) Dataset(name string) (DatasetEntry, bool) {
	for _, d := range c.doc.Datasets.Detailed {
		if d.Name == name {
			return d, true
		}
	}
	return DatasetEntry{}, false
}

// AddDataset appends a dataset entry and its name-list shadow. The caller
// is responsible for uniqueness.
func (c *ConfigStore) AddDataset(e DatasetEntry) {
	c.doc.Datasets.Detailed = append(c.doc.Datasets.Detailed, e)
	if !contains(c.doc.Datasets.Available, e.Name) {
		c.doc.Datasets.Available = append(c.doc.Datasets.Available, e.Name)
	}
	c.dirty = true
}

// RemoveDataset drops the entry with the given name from both lists.
func (c *ConfigStore) RemoveDataset(name string) {
	c.doc.Datasets.Detailed = filterDatasets(c.doc.Datasets.Detailed, name)
	c.doc.Datasets.Available = remove(c.doc.Datasets.Available, name)
	c.dirty = true
}

// ReplaceDataset swaps the entry named old for e, keeping position.
func (c *ConfigStore) ReplaceDataset(old string, e DatasetEntry) {
	for i, d := range c.doc.Datasets.Detailed {
		if d.Name == old {
			c.doc.Datasets.Detailed[i] = e
			break
		}
	}
	if old != e.Name {
		c.doc.Datasets.Available = remove(c.doc.Datasets.Available, old)
		if !contains(c.doc.Datasets.Available, e.Name) {
			c.doc.Datasets.Available = append(c.doc.Datasets.Available, e.Name)
		}
	}
	c.dirty = true
}

// Model accessors.

// Models returns a copy of the typed model entries.
func (c *ConfigStore) Models() []ModelEntry {
	out := make([]ModelEntry, len(c.doc.Models.Detailed))
	copy(out, c.doc.Models.Detailed)
	return out
}

// Model looks up one entry by filename.
func (c *ConfigStore) Model(filename string) (ModelEntry, bool) {
	for _, m := range c.doc.Models.Detailed {
		if m.Filename == filename {
			return m, true
		}
	}
	return ModelEntry{}, false
}

// AddModel records a model entry, replacing any prior entry with the same
// filename.
func (c *ConfigStore) AddModel(e ModelEntry) {
	c.doc.Models.Detailed = filterModels(c.doc.Models.Detailed, e.Filename)
	c.doc.Models.Detailed = append(c.doc.Models.Detailed, e)
	if !contains(c.doc.Models.Available, e.Filename) {
		c.doc.Models.Available = append(c.doc.Models.Available, e.Filename)
	}
	c.dirty = true
}

// RemoveModel drops the entry with the given filename from both lists.
func (c *ConfigStore) RemoveModel(filename string) {
	c.doc.Models.Detailed = filterModels(c.doc.Models.Detailed, filename)
	c.doc.Models.Available = remove(c.doc.Models.Available, filename)
	c.dirty = true
}

// Plan index accessors.

// PlanSummaries returns a copy of the plan index rows.
func (c *ConfigStore) PlanSummaries() []PlanSummary {
	out := make([]PlanSummary, len(c.doc.Plans.Detailed))
	copy(out, c.doc.Plans.Detailed)
	return out
}

// PlanSummary looks up one index row by plan id.
func (c *ConfigStore) PlanSummaryByID(planID string) (PlanSummary, bool) {
	for _, p := range c.doc.Plans.Detailed {
		if p.PlanID == planID {
			return p, true
		}
	}
	return PlanSummary{}, false
}

// AddPlanSummary records an index row, replacing any prior row with the
// same plan id.
func (c *ConfigStore) AddPlanSummary(p PlanSummary) {
	c.doc.Plans.Detailed = filterPlans(c.doc.Plans.Detailed, p.PlanID)
	c.doc.Plans.Detailed = append(c.doc.Plans.Detailed, p)
	if !contains(c.doc.Plans.Available, p.PlanID) {
		c.doc.Plans.Available = append(c.doc.Plans.Available, p.PlanID)
	}
	c.dirty = true
}

// RemovePlanSummary drops the index row for the given plan id.
func (c *ConfigStore) RemovePlanSummary(planID string) {
	c.doc.Plans.Detailed = filterPlans(c.doc.Plans.Detailed, planID)
	c.doc.Plans.Available = remove(c.doc.Plans.Available, planID)
	c.dirty = true
}

// SetPlanStatus updates the status of one index row. Returns false if the
// plan id has no row.
func (c *ConfigStore) SetPlanStatus(planID string, status task.PlanStatus) bool {
	for i, p := range c.doc.Plans.Detailed {
		if p.PlanID == planID {
			c.doc.Plans.Detailed[i].Status = status
			c.dirty = true
			return true
		}
	}
	return false
}

// Training history.

// AddTrainingRecord appends one history record, stamping it if unset.
func (c *ConfigStore) AddTrainingRecord(r TrainingRecord) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	c.doc.Training.History = append(c.doc.Training.History, r)
	c.dirty = true
}

// TrainingHistory returns a copy of all history records.
func (c *ConfigStore) TrainingHistory() []TrainingRecord {
	out := make([]TrainingRecord, len(c.doc.Training.History))
	copy(out, c.doc.Training.History)
	return out
}

// Custom fields. Values are stored as strings for easy shell editing.

func (c *ConfigStore) SetCustomField(key, value string) {
	c.doc.CustomFields[key] = value
	c.dirty = true
}

func (c *ConfigStore) CustomField(key string) (string, bool) {
	v, ok := c.doc.CustomFields[key]
	return v, ok
}

func (c *ConfigStore) RemoveCustomField(key string) {
	delete(c.doc.CustomFields, key)
	c.dirty = true
}

func (c *ConfigStore) CustomFields() map[string]string {
	out := make(map[string]string, len(c.doc.CustomFields))
	for k, v := range c.doc.CustomFields {
		out[k] = v
	}
	return out
}

// Small slice helpers.

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func remove(ss []string, s string) []string {
	out := make([]string, 0, len(ss))
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func filterDatasets(ds []DatasetEntry, name string) []DatasetEntry {
	out := make([]DatasetEntry, 0, len(ds))
	for _, d := range ds {
		if d.Name != name {
			out = append(out, d)
		}
	}
	return out
}

func filterModels(ms []ModelEntry, filename string) []ModelEntry {
	out := make([]ModelEntry, 0, len(ms))
	for _, m := range ms {
		if m.Filename != filename {
			out = append(out, m)
		}
	}
	return out
}

func filterPlans(ps []PlanSummary, planID string) []PlanSummary {
	out := make([]PlanSummary, 0, len(ps))
	for _, p := range ps {
		if p.PlanID != planID {
			out = append(out, p)
		}
	}
	return out
}
