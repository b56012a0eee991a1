package model

import "testing"

func TestCanContain(t *testing.T) {
	allowed := []struct{ parent, child ItemType }{
		{TypeInitiative, TypeEpic},
		{TypeEpic, TypeFeature},
		{TypeFeature, TypeStory},
		{TypeStory, TypeTask},
	}
	for _, pair := range allowed {
		if !CanContain(pair.parent, pair.child) {
			t.Errorf("expected %s to contain %s", pair.parent, pair.child)
		}
	}

	denied := []struct{ parent, child ItemType }{
		{TypeInitiative, TypeFeature},
		{TypeEpic, TypeTask},
		{TypeTask, TypeTask},
		{TypeStory, TypeEpic},
	}
	for _, pair := range denied {
		if CanContain(pair.parent, pair.child) {
			t.Errorf("expected %s not to contain %s", pair.parent, pair.child)
		}
	}
}

func TestTaskIsLeaf(t *testing.T) {
	if _, ok := TypeTask.ChildType(); ok {
		t.Error("task should have no child type")
	}
}

func TestExecutionTransitions(t *testing.T) {
	tests := []struct {
		from, to ExecutionStatus
		want     bool
	}{
		{ExecutionPending, ExecutionRunning, true},
		{ExecutionPending, ExecutionCancelled, true},
		{ExecutionRunning, ExecutionSucceeded, true},
		{ExecutionRunning, ExecutionFailed, true},
		{ExecutionRunning, ExecutionCancelled, true},
		{ExecutionSucceeded, ExecutionRunning, false},
		{ExecutionFailed, ExecutionRunning, false},
		{ExecutionCancelled, ExecutionRunning, false},
		{ExecutionPending, ExecutionSucceeded, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestPriorityBoost(t *testing.T) {
	if PriorityCritical.BoostFactor() <= PriorityHigh.BoostFactor() {
		t.Error("critical should outrank high")
	}
	if PriorityMedium.BoostFactor() != 1.0 {
		t.Errorf("medium boost = %v, want 1.0", PriorityMedium.BoostFactor())
	}
	if PriorityLow.BoostFactor() >= 1.0 {
		t.Error("low should be penalised")
	}
}

func TestClone(t *testing.T) {
	parent := "p1"
	item := &WorkItem{
		ID:           "a",
		ItemType:     TypeTask,
		Title:        "t",
		ParentID:     &parent,
		Dependencies: []string{"d1"},
		Tags:         []string{"x"},
		Vector:       []float32{1, 2},
	}
	c := item.Clone()
	c.Dependencies[0] = "changed"
	c.Tags[0] = "changed"
	*c.ParentID = "changed"
	if item.Dependencies[0] != "d1" || item.Tags[0] != "x" || *item.ParentID != "p1" {
		t.Error("clone should not share backing storage with the original")
	}
}

func TestClampProgress(t *testing.T) {
	if got := ClampProgress(-5); got != 0 {
		t.Errorf("ClampProgress(-5) = %v, want 0", got)
	}
	if got := ClampProgress(150); got != 100 {
		t.Errorf("ClampProgress(150) = %v, want 100", got)
	}
	if got := ClampProgress(42.5); got != 42.5 {
		t.Errorf("ClampProgress(42.5) = %v, want 42.5", got)
	}
}
