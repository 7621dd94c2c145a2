package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/AyalaKaguya/yoloflow/internal/task"
)

// WeightExt is the file extension of model weight blobs.
const WeightExt = ".pt"

// ModelRegistry reconciles model entries in the config against the weight
// files physically present under pretrain/ and model/.
//
// Reconciliation runs on every read, not just at startup: a user can drop
// files into either directory or delete them at any time, and list calls
// must reflect disk state, healing the config as a side effect. Write
// operations copy the file first, then record it; if the two steps diverge
// transiently the next read repairs the config.
type ModelRegistry struct {
	root     string
	config   *ConfigStore
	logger   *zap.Logger
	pretrain string
	trained  string
}

// NewModelRegistry creates a registry over the project's weight folders.
func NewModelRegistry(root string, config *ConfigStore, logger *zap.Logger) *ModelRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelRegistry{
		root:     root,
		config:   config,
		logger:   logger,
		pretrain: filepath.Join(root, "pretrain"),
		trained:  filepath.Join(root, "model"),
	}
}

// PretrainedModels returns the entries for every weight file currently in
// pretrain/, sorted by filename, after syncing the config to disk state.
func (r *ModelRegistry) PretrainedModels() ([]ModelEntry, error) {
	return r.list(r.pretrain, true)
}

// TrainedModels returns the entries for every weight file currently in
// model/, sorted by filename, after syncing the config to disk state.
func (r *ModelRegistry) TrainedModels() ([]ModelEntry, error) {
	return r.list(r.trained, false)
}

// PretrainedFilenames returns just the filenames of the pretrained bucket.
func (r *ModelRegistry) PretrainedFilenames() ([]string, error) {
	entries, err := r.PretrainedModels()
	if err != nil {
		return nil, err
	}
	return filenames(entries), nil
}

// TrainedFilenames returns just the filenames of the trained bucket.
func (r *ModelRegistry) TrainedFilenames() ([]string, error) {
	entries, err := r.TrainedModels()
	if err != nil {
		return nil, err
	}
	return filenames(entries), nil
}

// Get returns the config entry for a filename in either bucket.
func (r *ModelRegistry) Get(filename string) (ModelEntry, error) {
	e, ok := r.config.Model(filename)
	if !ok {
		return ModelEntry{}, fmt.Errorf("%w: model %q", ErrNotFound, filename)
	}
	return e, nil
}

// AddPretrained copies a weight file into pretrain/ and records it with
// imported source. When name is empty the source filename is kept; a
// missing .pt extension is appended.
func (r *ModelRegistry) AddPretrained(src, name string) (ModelEntry, error) {
	entry := ModelEntry{
		Name:     humanizeFilename(targetFilename(src, name)),
		Filename: targetFilename(src, name),
		TaskType: r.config.TaskType(),
		Source:   task.SourceImported,
	}
	return r.add(src, entry)
}

// AddTrained copies a weight file into model/ and records it as the output
// of the named plan.
func (r *ModelRegistry) AddTrained(src, filename, planName string) (ModelEntry, error) {
	entry := ModelEntry{
		Name:        planName + " - Trained Model",
		Filename:    targetFilename(src, filename),
		Description: "Model trained from plan: " + planName,
		TaskType:    r.config.TaskType(),
		Source:      task.SourcePlanCreated,
	}
	return r.add(src, entry)
}

// AddFromInfo copies a weight file into the bucket implied by the entry's
// source and records the full metadata as given.
func (r *ModelRegistry) AddFromInfo(src string, entry ModelEntry) (ModelEntry, error) {
	if !entry.Source.Valid() {
		return ModelEntry{}, fmt.Errorf("%w: model source %q", ErrInvalidSource, entry.Source)
	}
	if entry.Filename == "" {
		entry.Filename = filepath.Base(src)
	}
	if entry.Name == "" {
		entry.Name = humanizeFilename(entry.Filename)
	}
	if !entry.TaskType.Valid() {
		entry.TaskType = r.config.TaskType()
	}
	return r.add(src, entry)
}

// Remove deletes the physical file, then the config record. A failure
// between the two steps leaves a divergence that the next read heals.
func (r *ModelRegistry) Remove(filename string) error {
	entry, ok := r.config.Model(filename)
	if !ok {
		return fmt.Errorf("%w: model %q", ErrNotFound, filename)
	}

	path := filepath.Join(r.bucketDir(entry.Source), filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove model file: %v", ErrIO, err)
	}
	r.config.RemoveModel(filename)
	return r.config.Save()
}

// PathOf returns the absolute path of a recorded model file, or ErrNotFound
// when neither the record nor the file exists.
func (r *ModelRegistry) PathOf(filename string) (string, error) {
	entry, ok := r.config.Model(filename)
	if !ok {
		return "", fmt.Errorf("%w: model %q", ErrNotFound, filename)
	}
	path := filepath.Join(r.bucketDir(entry.Source), filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: model file %q", ErrNotFound, filename)
	}
	return path, nil
}

func (r *ModelRegistry) add(src string, entry ModelEntry) (ModelEntry, error) {
	if _, err := os.Stat(src); err != nil {
		return ModelEntry{}, fmt.Errorf("%w: source model %s", ErrNotFound, src)
	}

	// Filenames are unique across both buckets: the config keys model
	// entries by filename alone.
	if _, ok := r.config.Model(entry.Filename); ok {
		return ModelEntry{}, fmt.Errorf("%w: model %q", ErrConflict, entry.Filename)
	}
	dst := filepath.Join(r.bucketDir(entry.Source), entry.Filename)
	if _, err := os.Stat(dst); err == nil {
		return ModelEntry{}, fmt.Errorf("%w: model %q", ErrConflict, entry.Filename)
	}

	if err := copyFile(src, dst); err != nil {
		return ModelEntry{}, fmt.Errorf("%w: copy model file: %v", ErrIO, err)
	}
	r.config.AddModel(entry)
	if err := r.config.Save(); err != nil {
		return ModelEntry{}, err
	}

	r.logger.Info("model added",
		zap.String("filename", entry.Filename),
		zap.String("source", entry.Source.String()))
	return entry, nil
}

// list applies the reconciliation rule for one bucket and returns the
// up-to-date entries sorted by filename.
func (r *ModelRegistry) list(dir string, pretrained bool) ([]ModelEntry, error) {
	present, err := weightFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", ErrIO, dir, err)
	}

	configured := r.bucketEntries(pretrained)
	diff := reconcile(configured, present)

	mutated := false
	for _, stale := range diff.ToRemove {
		r.config.RemoveModel(stale.Filename)
		mutated = true
		r.logger.Warn("model file missing, entry dropped",
			zap.String("filename", stale.Filename))
	}
	for _, filename := range diff.ToAdd {
		// Filenames are unique across buckets. A file shadowing an entry
		// recorded for the other bucket stays unregistered rather than
		// stealing its record back and forth on alternating reads.
		if _, ok := r.config.Model(filename); ok {
			r.logger.Warn("weight file shadows an entry in the other bucket, skipped",
				zap.String("filename", filename))
			continue
		}
		source := task.SourceImported
		if !pretrained {
			source = task.SourcePlanCreated
		}
		r.config.AddModel(ModelEntry{
			Name:     humanizeFilename(filename),
			Filename: filename,
			TaskType: r.config.TaskType(),
			Source:   source,
		})
		mutated = true
		r.logger.Info("undeclared model file registered",
			zap.String("filename", filename))
	}
	if mutated {
		if err := r.config.Save(); err != nil {
			return nil, err
		}
	}

	entries := r.bucketEntries(pretrained)
	onDisk := make(map[string]bool, len(present))
	for _, f := range present {
		onDisk[f] = true
	}
	out := entries[:0]
	for _, e := range entries {
		if onDisk[e.Filename] {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

func (r *ModelRegistry) bucketEntries(pretrained bool) []ModelEntry {
	var out []ModelEntry
	for _, e := range r.config.Models() {
		if e.Source.Pretrained() == pretrained {
			out = append(out, e)
		}
	}
	return out
}

func (r *ModelRegistry) bucketDir(source task.ModelSource) string {
	if source.Pretrained() {
		return r.pretrain
	}
	return r.trained
}

// weightFiles lists the weight filenames directly inside dir.
func weightFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), WeightExt) {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

func filenames(entries []ModelEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Filename
	}
	return out
}

func targetFilename(src, name string) string {
	if name == "" {
		return filepath.Base(src)
	}
	if !strings.HasSuffix(name, WeightExt) {
		return name + WeightExt
	}
	return name
}

// humanizeFilename derives a display name from a weight filename:
// "yolo11n_seg.pt" becomes "Yolo11n Seg".
func humanizeFilename(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	base = strings.ReplaceAll(base, "_", " ")
	words := strings.Fields(base)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
