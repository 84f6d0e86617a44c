package board

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zulandar/plandala/internal/models"
	"github.com/zulandar/plandala/internal/store"
)

// ErrCommitInProgress is returned when a drag ends while the previous
// drag's write is still in flight.
var ErrCommitInProgress = errors.New("board: commit in progress")

// ErrUnknownPage is returned by New for pages without columns.
var ErrUnknownPage = errors.New("board: unknown page")

// Source is the read side the board needs, satisfied by the projection.
type Source interface {
	TasksByPageAndStatus(page models.Page, status models.Status) []models.Task
	TaskByID(id string) (models.Task, bool)
}

// Mutator is the write side the board needs, satisfied by store.Store.
type Mutator interface {
	UpdateTask(ctx context.Context, id string, u store.TaskUpdate) error
	ReorderTasks(ctx context.Context, orders []store.OrderAssignment) error
}

// State is the drag state machine position.
type State int

const (
	StateIdle State = iota
	StateDragging
	StateCommitting
)

func (s State) String() string {
	switch s {
	case StateDragging:
		return "dragging"
	case StateCommitting:
		return "committing"
	default:
		return "idle"
	}
}

// ColumnView is a column with its tasks in display order.
type ColumnView struct {
	Column
	Tasks []models.Task `json:"tasks"`
}

// Board is one page's drag-and-drop controller. There is no pending-write
// buffer: what the board shows is whatever the source last delivered.
type Board struct {
	page models.Page
	src  Source
	mut  Mutator

	// OnMove, when set, runs after a cross-column move has been written.
	OnMove func(ctx context.Context, task models.Task, to models.Status)

	mu     sync.Mutex
	state  State
	active *models.Task
}

// New returns a Board for page.
func New(page models.Page, src Source, mut Mutator) (*Board, error) {
	if Columns(page) == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}
	return &Board{page: page, src: src, mut: mut}, nil
}

// Page returns the page this board controls.
func (b *Board) Page() models.Page {
	return b.page
}

// ColumnTasks returns the tasks of status on this page in display order.
func (b *Board) ColumnTasks(status models.Status) []models.Task {
	return SortColumn(status, b.src.TasksByPageAndStatus(b.page, status))
}

// Columns returns every column of the page with its ordered tasks.
func (b *Board) Columns() []ColumnView {
	cols := Columns(b.page)
	views := make([]ColumnView, len(cols))
	for i, c := range cols {
		views[i] = ColumnView{Column: c, Tasks: b.ColumnTasks(c.Status)}
	}
	return views
}

// State returns the current drag state.
func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Active returns the task being dragged, for overlays.
func (b *Board) Active() (models.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return models.Task{}, false
	}
	return *b.active, true
}

// DragStart records taskID as the active task. An unknown task leaves the
// board idle. It has no remote effect.
func (b *Board) DragStart(taskID string) bool {
	task, ok := b.src.TaskByID(taskID)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateCommitting {
		return false
	}
	if !ok {
		b.state = StateIdle
		b.active = nil
		return false
	}
	b.active = &task
	b.state = StateDragging
	return true
}

// DragEnd reconciles dropping draggedID onto targetID and performs the
// resulting write. It returns the intent that was applied.
func (b *Board) DragEnd(ctx context.Context, draggedID, targetID string) (Intent, error) {
	b.mu.Lock()
	if b.state == StateCommitting {
		b.mu.Unlock()
		return Intent{}, ErrCommitInProgress
	}
	b.state = StateCommitting
	b.active = nil
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.state = StateIdle
		b.mu.Unlock()
	}()

	source, ok := b.src.TaskByID(draggedID)
	if !ok || source.Status.Page() != b.page {
		return Intent{}, nil
	}

	intent := Reconcile(source, b.resolveTarget(targetID), b.ColumnTasks(source.Status))
	switch intent.Kind {
	case IntentMove:
		status := intent.Status
		if err := b.mut.UpdateTask(ctx, intent.TaskID, store.TaskUpdate{Status: &status}); err != nil {
			return intent, fmt.Errorf("board: move %s to %s: %w", intent.TaskID, status, err)
		}
		if b.OnMove != nil {
			b.OnMove(ctx, source, status)
		}
	case IntentReorder:
		if err := b.mut.ReorderTasks(ctx, intent.Orders); err != nil {
			return intent, fmt.Errorf("board: reorder %s: %w", source.Status, err)
		}
	}
	return intent, nil
}

// resolveTarget classifies targetID as a column of this page, a task, or
// neither.
func (b *Board) resolveTarget(targetID string) Target {
	target := Target{ID: targetID}
	if targetID == "" {
		return target
	}
	if col, ok := findColumn(b.page, targetID); ok {
		target.Column = &col
		return target
	}
	if task, ok := b.src.TaskByID(targetID); ok {
		target.Task = &task
	}
	return target
}
