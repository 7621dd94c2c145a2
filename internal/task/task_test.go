package task

import "testing"

func TestParseType(t *testing.T) {
	tests := []struct {
		input   string
		want    Type
		wantErr bool
	}{
		{"detection", Detection, false},
		{"classification", Classification, false},
		{"instance_segmentation", InstanceSegmentation, false},
		{"oriented_detection", OrientedDetection, false},
		{"", "", true},
		{"detect", "", true},
		{"DETECTION", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPlanStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to PlanStatus
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPending, false},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusRunning, false},
		{StatusRunning, StatusRunning, true},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestModelSourcePretrained(t *testing.T) {
	if !SourceImported.Pretrained() {
		t.Error("imported should be pretrained")
	}
	if !SourceProjectCreation.Pretrained() {
		t.Error("project_creation should be pretrained")
	}
	if SourcePlanCreated.Pretrained() {
		t.Error("plan_created should not be pretrained")
	}
}

func TestParseTarget(t *testing.T) {
	for _, s := range []string{"train", "val", "test", "mixed", "unused"} {
		if _, err := ParseTarget(s); err != nil {
			t.Errorf("ParseTarget(%q) unexpected error: %v", s, err)
		}
	}
	if _, err := ParseTarget("validation"); err == nil {
		t.Error("expected error for unknown target")
	}
}
