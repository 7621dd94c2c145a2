package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AyalaKaguya/yoloflow/internal/task"
)

// PlanStore manages the per-plan files under plan/ and keeps the config's
// lightweight plan index consistent with them on every create, status
// change, and delete.
//
// The store eagerly loads every plan file at construction into an in-memory
// cache keyed by plan id. A file that fails to parse is logged and skipped;
// one corrupt plan never blocks the rest.
type PlanStore struct {
	root   string
	dir    string
	config *ConfigStore
	logger *zap.Logger
	cache  map[string]*Plan
}

// NewPlanStore creates the store and loads all existing plan files.
func NewPlanStore(root string, config *ConfigStore, logger *zap.Logger) (*PlanStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PlanStore{
		root:   root,
		dir:    filepath.Join(root, "plan"),
		config: config,
		logger: logger,
		cache:  make(map[string]*Plan),
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PlanStore) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: scan plan dir: %v", ErrIO, err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), PlanExt) {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		plan, err := loadPlanFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable plan file",
				zap.String("file", path), zap.Error(err))
			continue
		}
		if summary, ok := s.config.PlanSummaryByID(plan.ID); ok && summary.Status.Valid() {
			plan.status = summary.Status
		}
		s.cache[plan.ID] = plan
	}
	return nil
}

// Create makes a new plan with a generated id, writes its file, and inserts
// the summary row into the config index. Plan names are unique within the
// project, matched case-sensitively.
func (s *PlanStore) Create(name, pretrainedModel string) (*Plan, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: plan name is empty", ErrInvalidSource)
	}
	for _, p := range s.cache {
		if p.Name == name {
			return nil, fmt.Errorf("%w: plan %q", ErrConflict, name)
		}
	}

	id := uuid.New().String()
	plan := &Plan{
		ID:              id,
		Name:            name,
		TaskType:        s.config.TaskType(),
		PretrainedModel: pretrainedModel,
		Training:        DefaultTrainingParams(),
		Validation:      DefaultValidationParams(),
		status:          task.StatusPending,
		path:            filepath.Join(s.dir, id+PlanExt),
		CreatedAt:       time.Now(),
	}
	if err := plan.Save(); err != nil {
		return nil, err
	}

	s.config.AddPlanSummary(PlanSummary{
		PlanID:    id,
		Name:      name,
		FilePath:  "plan/" + id + PlanExt,
		CreatedAt: plan.CreatedAt,
		Status:    task.StatusPending,
	})
	if err := s.config.Save(); err != nil {
		return nil, err
	}

	s.cache[id] = plan
	s.logger.Info("plan created", zap.String("plan_id", id), zap.String("name", name))
	return plan, nil
}

// Get returns a plan by id.
func (s *PlanStore) Get(planID string) (*Plan, error) {
	p, ok := s.cache[planID]
	if !ok {
		return nil, fmt.Errorf("%w: plan %s", ErrNotFound, planID)
	}
	return p, nil
}

// GetByName returns a plan by its exact name.
func (s *PlanStore) GetByName(name string) (*Plan, error) {
	for _, p := range s.cache {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: plan %q", ErrNotFound, name)
}

// List returns all plans, newest first.
func (s *PlanStore) List() []*Plan {
	plans := make([]*Plan, 0, len(s.cache))
	for _, p := range s.cache {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].CreatedAt.Equal(plans[j].CreatedAt) {
			return plans[i].ID < plans[j].ID
		}
		return plans[i].CreatedAt.After(plans[j].CreatedAt)
	})
	return plans
}

// Count returns the number of cached plans.
func (s *PlanStore) Count() int { return len(s.cache) }

// Search returns plans whose name contains the query, case-insensitively.
func (s *PlanStore) Search(query string) []*Plan {
	query = strings.ToLower(query)
	var out []*Plan
	for _, p := range s.List() {
		if strings.Contains(strings.ToLower(p.Name), query) {
			out = append(out, p)
		}
	}
	return out
}

// Delete removes a plan's file, its cache entry, and its index row.
func (s *PlanStore) Delete(planID string) error {
	plan, ok := s.cache[planID]
	if !ok {
		return fmt.Errorf("%w: plan %s", ErrNotFound, planID)
	}

	if err := os.Remove(plan.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove plan file: %v", ErrIO, err)
	}
	delete(s.cache, planID)
	s.config.RemovePlanSummary(planID)
	return s.config.Save()
}

// SetStatus applies an externally driven status transition and propagates
// it into the config index. Illegal transitions are rejected; terminal
// transitions are appended to the training history.
func (s *PlanStore) SetStatus(planID string, status task.PlanStatus) error {
	plan, ok := s.cache[planID]
	if !ok {
		return fmt.Errorf("%w: plan %s", ErrNotFound, planID)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: plan status %q", ErrInvalidSource, status)
	}
	if !plan.status.CanTransition(status) {
		return fmt.Errorf("%w: plan status %s cannot become %s", ErrConflict, plan.status, status)
	}

	plan.status = status
	s.config.SetPlanStatus(planID, status)
	if status == task.StatusCompleted || status == task.StatusFailed {
		s.config.AddTrainingRecord(TrainingRecord{
			PlanID: planID,
			Status: status.String(),
		})
	}
	return s.config.Save()
}
