// Package task defines the shared enumerations used across the project core:
// task types, dataset targets, plan statuses, and model sources.
//
// All enums are string-backed so they serialize naturally into TOML and
// SQLite without conversion tables.
package task

import (
	"errors"
	"fmt"
)

// ErrUnknownValue indicates a string that does not map to any enum member.
var ErrUnknownValue = errors.New("unknown value")

// Type is a computer-vision task type supported by the application.
type Type string

// Supported task types.
const (
	Classification        Type = "classification"
	Detection             Type = "detection"
	Segmentation          Type = "segmentation"
	InstanceSegmentation  Type = "instance_segmentation"
	Keypoint              Type = "keypoint"
	OrientedDetection     Type = "oriented_detection"
)

// Types lists every supported task type in declaration order.
func Types() []Type {
	return []Type{
		Classification,
		Detection,
		Segmentation,
		InstanceSegmentation,
		Keypoint,
		OrientedDetection,
	}
}

// Valid reports whether t is a known task type.
func (t Type) Valid() bool {
	switch t {
	case Classification, Detection, Segmentation, InstanceSegmentation, Keypoint, OrientedDetection:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }

// ParseType converts a string to a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: task type %q", ErrUnknownValue, s)
	}
	return t, nil
}

// Target is the role a dataset plays inside one training plan.
type Target string

// Dataset targets.
const (
	TargetTrain  Target = "train"
	TargetVal    Target = "val"
	TargetTest   Target = "test"
	TargetMixed  Target = "mixed"  // dataset carries its own split
	TargetUnused Target = "unused"
)

// Valid reports whether tg is a known dataset target.
func (tg Target) Valid() bool {
	switch tg {
	case TargetTrain, TargetVal, TargetTest, TargetMixed, TargetUnused:
		return true
	}
	return false
}

func (tg Target) String() string { return string(tg) }

// ParseTarget converts a string to a Target.
func ParseTarget(s string) (Target, error) {
	tg := Target(s)
	if !tg.Valid() {
		return "", fmt.Errorf("%w: dataset target %q", ErrUnknownValue, s)
	}
	return tg, nil
}

// PlanStatus is the lifecycle state of a training plan.
//
// Transitions are externally driven; the store only validates that a
// requested transition is legal: pending -> running -> {completed, failed}.
type PlanStatus string

// Plan statuses.
const (
	StatusPending   PlanStatus = "pending"
	StatusRunning   PlanStatus = "running"
	StatusCompleted PlanStatus = "completed"
	StatusFailed    PlanStatus = "failed"
)

// Valid reports whether ps is a known plan status.
func (ps PlanStatus) Valid() bool {
	switch ps {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (ps PlanStatus) String() string { return string(ps) }

// CanTransition reports whether moving from ps to next is a legal step in
// the plan state machine. A status may always restate itself.
func (ps PlanStatus) CanTransition(next PlanStatus) bool {
	if ps == next {
		return true
	}
	switch ps {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// ParsePlanStatus converts a string to a PlanStatus.
func ParsePlanStatus(s string) (PlanStatus, error) {
	ps := PlanStatus(s)
	if !ps.Valid() {
		return "", fmt.Errorf("%w: plan status %q", ErrUnknownValue, s)
	}
	return ps, nil
}

// ModelSource records how a model entry came to exist in a project.
type ModelSource string

// Model sources. Imported and ProjectCreation models live under pretrain/,
// PlanCreated models under model/.
const (
	SourceImported        ModelSource = "imported"
	SourceProjectCreation ModelSource = "project_creation"
	SourcePlanCreated     ModelSource = "plan_created"
)

// Valid reports whether ms is a known model source.
func (ms ModelSource) Valid() bool {
	switch ms {
	case SourceImported, SourceProjectCreation, SourcePlanCreated:
		return true
	}
	return false
}

func (ms ModelSource) String() string { return string(ms) }

// Pretrained reports whether entries with this source belong to the
// pretrain/ bucket rather than model/.
func (ms ModelSource) Pretrained() bool {
	return ms == SourceImported || ms == SourceProjectCreation
}

// ParseModelSource converts a string to a ModelSource.
func ParseModelSource(s string) (ModelSource, error) {
	ms := ModelSource(s)
	if !ms.Valid() {
		return "", fmt.Errorf("%w: model source %q", ErrUnknownValue, s)
	}
	return ms, nil
}
