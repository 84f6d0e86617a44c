// Package store is the document store the board core reads and writes:
// task and comment mutations plus push subscriptions that deliver the full
// ordered collection after every change.
package store

import (
	"context"
	"errors"

	"github.com/zulandar/plandala/internal/models"
)

var (
	// ErrNotFound is returned when a task or comment does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidTask is returned for task writes that fail validation.
	ErrInvalidTask = errors.New("store: invalid task")
	// ErrInvalidComment is returned for comments with neither text nor images.
	ErrInvalidComment = errors.New("store: invalid comment")
)

// NewTask holds the caller-supplied fields of a task creation. Page is
// derived from Status and cannot be set.
type NewTask struct {
	Title       string
	Description string
	Status      models.Status
	AssignedTo  *string
	CreatedBy   string
	ImageURLs   []string
	// Order defaults to the creation time in epoch milliseconds.
	Order *int64
}

// TaskUpdate is a merge update: nil fields are left unchanged. A non-nil
// AssignedTo pointing at "" clears the assignee.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *models.Status
	AssignedTo  *string
	ImageURLs   *[]string
	Order       *int64
}

// OrderAssignment sets one task's sort key.
type OrderAssignment struct {
	TaskID string `json:"taskId"`
	Order  int64  `json:"order"`
}

// NewComment holds the fields of a comment creation.
type NewComment struct {
	TaskID    string
	Text      string
	UserName  string
	ImageURLs []string
}

// Store is the document store consumed by the board core.
type Store interface {
	// SubscribeTasks delivers the full task list ordered by Order ascending
	// on every change. onError is terminal. The returned function
	// unsubscribes and is safe to call more than once.
	SubscribeTasks(onData func([]models.Task), onError func(error)) func()
	// SubscribeComments delivers a task's comments ordered by CreatedAt
	// ascending on every change.
	SubscribeComments(taskID string, onData func([]models.Comment), onError func(error)) func()

	ListTasks(ctx context.Context) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	CreateTask(ctx context.Context, t NewTask) (string, error)
	UpdateTask(ctx context.Context, id string, u TaskUpdate) error
	DeleteTask(ctx context.Context, id string) error
	// ReorderTasks applies every assignment in one transaction.
	ReorderTasks(ctx context.Context, orders []OrderAssignment) error
	AddTaskImages(ctx context.Context, id string, urls []string) error

	ListComments(ctx context.Context, taskID string) ([]models.Comment, error)
	CreateComment(ctx context.Context, c NewComment) (string, error)
	DeleteComment(ctx context.Context, id, taskID string) error
}
