package workitem

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/storage"
)

// Sequence numbers are dotted outline labels: top-level items count 1, 2, 3
// and children extend the parent's label (2.1, 2.3.4). order_index mirrors
// the label so SQL ORDER BY walks the tree in outline order: a child's index
// is parent*1000 + position.

const orderStride = 1000

// assignSequence gives item the next free label under parent (nil parent
// means top level).
func (e *Engine) assignSequence(store *storage.Store, item *model.WorkItem, parent *model.WorkItem) error {
	if parent == nil {
		seq, order, err := nextTopLevel(store)
		if err != nil {
			return err
		}
		item.SequenceNumber = seq
		item.OrderIndex = order
		return nil
	}
	seq, order, err := nextChild(store, parent)
	if err != nil {
		return err
	}
	item.SequenceNumber = seq
	item.OrderIndex = order
	return nil
}

func nextTopLevel(store *storage.Store) (string, int64, error) {
	roots, err := store.ListWorkItems(storage.ListOptions{Where: storage.IsNull("parent_id")})
	if err != nil {
		return "", 0, err
	}
	max := 0
	for _, r := range roots {
		if n, ok := leadingNumber(r.SequenceNumber); ok && n > max {
			max = n
		}
	}
	next := max + 1
	return strconv.Itoa(next), int64(next), nil
}

func nextChild(store *storage.Store, parent *model.WorkItem) (string, int64, error) {
	children, err := store.ListWorkItems(storage.ListOptions{Where: storage.Eq("parent_id", parent.ID)})
	if err != nil {
		return "", 0, err
	}
	// Next label is one past the highest surviving suffix.
	max := 0
	prefix := parent.SequenceNumber + "."
	for _, c := range children {
		suffix, ok := strings.CutPrefix(c.SequenceNumber, prefix)
		if !ok || strings.Contains(suffix, ".") {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil && n > max {
			max = n
		}
	}
	pos := max + 1
	seq := fmt.Sprintf("%s.%d", parent.SequenceNumber, pos)
	if parent.SequenceNumber == "" {
		seq = strconv.Itoa(pos)
	}
	return seq, parent.OrderIndex*orderStride + int64(pos), nil
}

// leadingNumber parses the first segment of a dotted label.
func leadingNumber(seq string) (int, bool) {
	head, _, _ := strings.Cut(seq, ".")
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Regenerate renumbers the whole namespace from scratch: siblings sort by
// (order_index, created_at) and labels are reassigned depth-first. Running
// it twice is a no-op.
func (e *Engine) Regenerate(store *storage.Store) (*RegenerateReport, error) {
	items, err := store.ListWorkItems(storage.ListOptions{})
	if err != nil {
		return nil, err
	}

	byParent := map[string][]*model.WorkItem{}
	for _, item := range items {
		byParent[item.Parent()] = append(byParent[item.Parent()], item)
	}
	for _, siblings := range byParent {
		sort.SliceStable(siblings, func(i, j int) bool {
			if siblings[i].OrderIndex != siblings[j].OrderIndex {
				return siblings[i].OrderIndex < siblings[j].OrderIndex
			}
			return siblings[i].CreatedAt.Before(siblings[j].CreatedAt)
		})
	}

	report := &RegenerateReport{Total: len(items)}
	var walk func(parentKey, parentSeq string, parentOrder int64)
	walk = func(parentKey, parentSeq string, parentOrder int64) {
		for pos, item := range byParent[parentKey] {
			seq := strconv.Itoa(pos + 1)
			order := int64(pos + 1)
			if parentSeq != "" {
				seq = fmt.Sprintf("%s.%d", parentSeq, pos+1)
				order = parentOrder*orderStride + int64(pos+1)
			}
			if item.SequenceNumber != seq || item.OrderIndex != order {
				change := SequenceChange{
					ItemID:      item.ID,
					OldSequence: item.SequenceNumber,
					NewSequence: seq,
					Success:     true,
				}
				item.SequenceNumber = seq
				item.OrderIndex = order
				if err := store.ReplaceWorkItem(item); err != nil {
					change.Success = false
					change.Error = err.Error()
					report.Failed++
				} else {
					report.Updated++
				}
				report.Changes = append(report.Changes, change)
			} else {
				item.OrderIndex = order
			}
			walk(item.ID, seq, order)
		}
	}
	walk("", "", 0)
	return report, nil
}
