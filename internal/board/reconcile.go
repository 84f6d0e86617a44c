package board

import (
	"github.com/zulandar/plandala/internal/models"
	"github.com/zulandar/plandala/internal/store"
)

// IntentKind classifies the outcome of a drag.
type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentMove
	IntentReorder
)

func (k IntentKind) String() string {
	switch k {
	case IntentMove:
		return "move"
	case IntentReorder:
		return "reorder"
	default:
		return "none"
	}
}

// MarshalText encodes the kind by name.
func (k IntentKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Intent is the persisted effect of a drag. Move carries the new Status;
// Reorder carries dense orders for the whole partition.
type Intent struct {
	Kind   IntentKind              `json:"kind"`
	TaskID string                  `json:"taskId,omitempty"`
	Status models.Status           `json:"status,omitempty"`
	Orders []store.OrderAssignment `json:"orders,omitempty"`
}

// Target is what a task was dropped on: a column of the page, a task, or
// nothing that still exists.
type Target struct {
	ID     string
	Column *Column
	Task   *models.Task
}

// Reconcile decides the writes for dropping source onto target. partition
// is the source's column in display order.
func Reconcile(source models.Task, target Target, partition []models.Task) Intent {
	if target.ID == "" || target.ID == source.ID {
		return Intent{}
	}
	if target.Column != nil {
		if target.Column.Status != source.Status {
			return Intent{Kind: IntentMove, TaskID: source.ID, Status: target.Column.Status}
		}
		return Intent{}
	}
	if target.Task == nil || target.Task.Status != source.Status {
		return Intent{}
	}

	oldIndex, newIndex := -1, -1
	for i, t := range partition {
		switch t.ID {
		case source.ID:
			oldIndex = i
		case target.Task.ID:
			newIndex = i
		}
	}
	if oldIndex == -1 || newIndex == -1 || oldIndex == newIndex {
		return Intent{}
	}

	moved := splice(partition, oldIndex, newIndex)
	n := len(moved)
	orders := make([]store.OrderAssignment, n)
	desc := Descending(source.Status)
	for i, t := range moved {
		order := int64(i)
		// The done column displays highest order first, so its dense orders
		// run n-1..0 down the column. Writing 0..n-1 here would flip the
		// column on the next sort.
		if desc {
			order = int64(n - 1 - i)
		}
		orders[i] = store.OrderAssignment{TaskID: t.ID, Order: order}
	}
	return Intent{Kind: IntentReorder, TaskID: source.ID, Orders: orders}
}

// splice removes the element at from and reinserts it at to.
func splice(tasks []models.Task, from, to int) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	out = append(out, tasks[:from]...)
	out = append(out, tasks[from+1:]...)
	item := tasks[from]
	out = append(out[:to], append([]models.Task{item}, out[to:]...)...)
	return out
}
