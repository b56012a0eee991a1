package workitem

import (
	"context"
	"errors"
	"testing"

	"github.com/jivehq/jive/internal/model"
)

func TestReorderSiblings(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	epic := mustCreate(t, e, store, CreateRequest{Type: model.TypeEpic, Title: "E"})
	f1 := mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "F1", ParentID: &epic.ID})
	f2 := mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "F2", ParentID: &epic.ID})
	f3 := mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "F3", ParentID: &epic.ID})

	after, err := e.Reorder(ctx, store, []string{f3.ID, f1.ID, f2.ID}, nil)
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if len(after) != 3 {
		t.Fatalf("got %d siblings, want 3", len(after))
	}
	want := []struct {
		id  string
		seq string
	}{
		{f3.ID, "1.1"},
		{f1.ID, "1.2"},
		{f2.ID, "1.3"},
	}
	for i, w := range want {
		if after[i].ID != w.id || after[i].SequenceNumber != w.seq {
			t.Errorf("position %d = %s/%s, want %s/%s", i, after[i].ID, after[i].SequenceNumber, w.id, w.seq)
		}
	}
}

func TestReorderRejectsMixedParents(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	epic := mustCreate(t, e, store, CreateRequest{Type: model.TypeEpic, Title: "E"})
	f := mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "F", ParentID: &epic.ID})
	root := mustCreate(t, e, store, CreateRequest{Type: model.TypeTask, Title: "Root task"})

	_, err := e.Reorder(ctx, store, []string{f.ID, root.ID}, nil)
	if !errors.Is(err, ErrInvalidHierarchy) {
		t.Fatalf("err = %v, want ErrInvalidHierarchy", err)
	}
}

func TestMoveBetweenParents(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	e1 := mustCreate(t, e, store, CreateRequest{Type: model.TypeEpic, Title: "E1"})
	e2 := mustCreate(t, e, store, CreateRequest{Type: model.TypeEpic, Title: "E2"})
	f1 := mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "F1", ParentID: &e1.ID})
	mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "F2", ParentID: &e1.ID})
	mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "G1", ParentID: &e2.ID})

	moved, err := e.Move(ctx, store, f1.ID, &e2.ID, 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.Parent() != e2.ID {
		t.Fatalf("parent = %s, want %s", moved.Parent(), e2.ID)
	}
	if moved.SequenceNumber != "2.1" {
		t.Errorf("sequence = %s, want 2.1 (inserted first)", moved.SequenceNumber)
	}

	// The old sibling list closes the gap.
	oldKids, err := e.Children(ctx, store, e1.ID)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(oldKids) != 1 || oldKids[0].SequenceNumber != "1.1" {
		t.Errorf("remaining sibling = %+v, want sequence 1.1", oldKids)
	}

	newKids, err := e.Children(ctx, store, e2.ID)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(newKids) != 2 || newKids[0].ID != f1.ID {
		t.Errorf("new siblings = %d, first %s", len(newKids), newKids[0].ID)
	}
}

func TestMoveAppendWithNegativePosition(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	e1 := mustCreate(t, e, store, CreateRequest{Type: model.TypeEpic, Title: "E1"})
	e2 := mustCreate(t, e, store, CreateRequest{Type: model.TypeEpic, Title: "E2"})
	f := mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "F", ParentID: &e1.ID})
	mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "G", ParentID: &e2.ID})

	moved, err := e.Move(ctx, store, f.ID, &e2.ID, -1)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.SequenceNumber != "2.2" {
		t.Errorf("sequence = %s, want 2.2 (appended)", moved.SequenceNumber)
	}
}

func TestMoveRejectsTypeViolation(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	epic := mustCreate(t, e, store, CreateRequest{Type: model.TypeEpic, Title: "E"})
	task := mustCreate(t, e, store, CreateRequest{Type: model.TypeTask, Title: "T"})

	_, err := e.Move(ctx, store, task.ID, &epic.ID, -1)
	if !errors.Is(err, ErrInvalidHierarchy) {
		t.Fatalf("err = %v, want ErrInvalidHierarchy", err)
	}
}

func TestMoveRenumbersSubtree(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	e1 := mustCreate(t, e, store, CreateRequest{Type: model.TypeEpic, Title: "E1"})
	e2 := mustCreate(t, e, store, CreateRequest{Type: model.TypeEpic, Title: "E2"})
	f := mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "F", ParentID: &e1.ID})
	s := mustCreate(t, e, store, CreateRequest{Type: model.TypeStory, Title: "S", ParentID: &f.ID})

	if _, err := e.Move(ctx, store, f.ID, &e2.ID, -1); err != nil {
		t.Fatalf("move: %v", err)
	}
	story, err := store.GetWorkItem(s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if story.SequenceNumber != "2.1.1" {
		t.Errorf("descendant sequence = %s, want 2.1.1", story.SequenceNumber)
	}
}

func TestSwap(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	epic := mustCreate(t, e, store, CreateRequest{Type: model.TypeEpic, Title: "E"})
	f1 := mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "F1", ParentID: &epic.ID})
	f2 := mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "F2", ParentID: &epic.ID})

	swapped, err := e.Swap(ctx, store, f1.ID, f2.ID)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if len(swapped) != 2 {
		t.Fatalf("got %d items", len(swapped))
	}
	if swapped[0].SequenceNumber != "1.2" || swapped[1].SequenceNumber != "1.1" {
		t.Errorf("sequences after swap = %s, %s", swapped[0].SequenceNumber, swapped[1].SequenceNumber)
	}

	_, err = e.Swap(ctx, store, f1.ID, f1.ID)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("self swap err = %v, want ErrInvalidInput", err)
	}
}

func TestSwapRejectsDifferentParents(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	e1 := mustCreate(t, e, store, CreateRequest{Type: model.TypeEpic, Title: "E1"})
	e2 := mustCreate(t, e, store, CreateRequest{Type: model.TypeEpic, Title: "E2"})
	f1 := mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "F1", ParentID: &e1.ID})
	f2 := mustCreate(t, e, store, CreateRequest{Type: model.TypeFeature, Title: "F2", ParentID: &e2.ID})

	_, err := e.Swap(ctx, store, f1.ID, f2.ID)
	if !errors.Is(err, ErrInvalidHierarchy) {
		t.Fatalf("err = %v, want ErrInvalidHierarchy", err)
	}
}
