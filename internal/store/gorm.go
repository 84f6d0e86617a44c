package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/plandala/internal/models"
	"gorm.io/gorm"
)

var _ Store = (*GormStore)(nil)

// Options configures a GormStore.
type Options struct {
	// PollInterval, when positive, makes every subscription also reload on
	// a ticker so writes from other processes are picked up.
	PollInterval time.Duration
	// Now overrides the clock used for default task order and timestamps.
	Now func() time.Time
}

// GormStore implements Store on a gorm database.
type GormStore struct {
	db   *gorm.DB
	hub  *hub
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGormStore returns a Store backed by db. The tables must already exist.
func NewGormStore(db *gorm.DB, opts Options) *GormStore {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GormStore{
		db:     db,
		hub:    newHub(),
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close stops every subscription and waits for their goroutines to exit.
func (s *GormStore) Close() {
	s.cancel()
	s.wg.Wait()
}

// SubscribeTasks implements Store.
func (s *GormStore) SubscribeTasks(onData func([]models.Task), onError func(error)) func() {
	var last []models.Task
	return s.subscribe(topicTasks, func(ctx context.Context, polled bool) error {
		tasks, err := s.ListTasks(ctx)
		if err != nil {
			return err
		}
		if polled && sameSnapshot(tasks, last) {
			return nil
		}
		last = tasks
		if ctx.Err() == nil {
			onData(tasks)
		}
		return nil
	}, onError)
}

// SubscribeComments implements Store.
func (s *GormStore) SubscribeComments(taskID string, onData func([]models.Comment), onError func(error)) func() {
	var last []models.Comment
	return s.subscribe(commentsTopic(taskID), func(ctx context.Context, polled bool) error {
		comments, err := s.ListComments(ctx, taskID)
		if err != nil {
			return err
		}
		if polled && sameSnapshot(comments, last) {
			return nil
		}
		last = comments
		if ctx.Err() == nil {
			onData(comments)
		}
		return nil
	}, onError)
}

// subscribe runs one goroutine per subscription that loads once, then
// reloads on every change signal (and poll tick) until unsubscribed.
// A load error is delivered to onError and ends the subscription.
func (s *GormStore) subscribe(topic string, load func(ctx context.Context, polled bool) error, onError func(error)) func() {
	sub := s.hub.add(s.ctx, topic)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.hub.remove(sub)

		var tick <-chan time.Time
		if s.opts.PollInterval > 0 {
			ticker := time.NewTicker(s.opts.PollInterval)
			defer ticker.Stop()
			tick = ticker.C
		}

		polled := false
		for {
			if err := load(sub.ctx, polled); err != nil {
				if sub.ctx.Err() != nil {
					return
				}
				log.Printf("store: subscription %s: %v", topic, err)
				if onError != nil {
					onError(fmt.Errorf("store: subscribe %s: %w", topic, err))
				}
				return
			}
			select {
			case <-sub.ctx.Done():
				return
			case <-sub.notify:
				polled = false
			case <-tick:
				polled = true
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(sub.cancel)
	}
}

// ListTasks returns every task ordered by Order ascending.
func (s *GormStore) ListTasks(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	if err := s.db.WithContext(ctx).Order("sort_order asc").Order("created_at asc").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	return tasks, nil
}

// GetTask returns a single task.
func (s *GormStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("store: get task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get task %s: %w", id, err)
	}
	return &task, nil
}

// CreateTask inserts a task and returns its new ID.
func (s *GormStore) CreateTask(ctx context.Context, nt NewTask) (string, error) {
	title := strings.TrimSpace(nt.Title)
	if title == "" {
		return "", fmt.Errorf("store: create task: title is required: %w", ErrInvalidTask)
	}
	status := nt.Status
	if status == "" {
		status = models.StatusNotStarted
	}
	if !status.Valid() {
		return "", fmt.Errorf("store: create task: unknown status %q: %w", status, ErrInvalidTask)
	}
	now := s.opts.Now()
	order := now.UnixMilli()
	if nt.Order != nil {
		order = *nt.Order
	}
	images := append([]string{}, nt.ImageURLs...)
	task := models.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: nt.Description,
		Status:      status,
		Page:        status.Page(),
		AssignedTo:  normalizeAssignee(nt.AssignedTo),
		CreatedBy:   nt.CreatedBy,
		ImageURLs:   images,
		Order:       order,
		Metadata:    models.TaskMetadata{CommentCount: 0, ImageCount: len(images)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return "", fmt.Errorf("store: create task: %w", err)
	}
	s.hub.publish(topicTasks)
	return task.ID, nil
}

// UpdateTask merges u into the task. Changing Status re-derives Page;
// replacing ImageURLs resets the image count.
func (s *GormStore) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return fmt.Errorf("store: update task %s: title is required: %w", id, ErrInvalidTask)
	}
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("store: update task %s: unknown status %q: %w", id, *u.Status, ErrInvalidTask)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.Where("id = ?", id).First(&task).Error; err != nil {
			return err
		}
		if u.Title != nil {
			task.Title = strings.TrimSpace(*u.Title)
		}
		if u.Description != nil {
			task.Description = *u.Description
		}
		if u.Status != nil {
			task.Status = *u.Status
		}
		if u.AssignedTo != nil {
			task.AssignedTo = normalizeAssignee(u.AssignedTo)
		}
		if u.ImageURLs != nil {
			task.ImageURLs = append([]string{}, (*u.ImageURLs)...)
			task.Metadata.ImageCount = len(task.ImageURLs)
		}
		if u.Order != nil {
			task.Order = *u.Order
		}
		task.Page = task.Status.Page()
		task.UpdatedAt = s.opts.Now()
		return tx.Save(&task).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("store: update task %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("store: update task %s: %w", id, err)
	}
	s.hub.publish(topicTasks)
	return nil
}

// DeleteTask removes a task. Its comments are left in place.
func (s *GormStore) DeleteTask(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Task{})
	if result.Error != nil {
		return fmt.Errorf("store: delete task %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: delete task %s: %w", id, ErrNotFound)
	}
	s.hub.publish(topicTasks)
	return nil
}

// ReorderTasks writes every assignment in one transaction. A missing task
// rolls back the whole batch.
func (s *GormStore) ReorderTasks(ctx context.Context, orders []OrderAssignment) error {
	if len(orders) == 0 {
		return nil
	}
	now := s.opts.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, o := range orders {
			result := tx.Model(&models.Task{}).Where("id = ?", o.TaskID).Updates(map[string]interface{}{
				"sort_order": o.Order,
				"updated_at": now,
			})
			if result.Error != nil {
				return fmt.Errorf("task %s: %w", o.TaskID, result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("task %s: %w", o.TaskID, ErrNotFound)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: reorder: %w", err)
	}
	s.hub.publish(topicTasks)
	return nil
}

// AddTaskImages appends urls to the task's image list.
func (s *GormStore) AddTaskImages(ctx context.Context, id string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.Where("id = ?", id).First(&task).Error; err != nil {
			return err
		}
		task.ImageURLs = append(task.ImageURLs, urls...)
		task.Metadata.ImageCount = len(task.ImageURLs)
		task.UpdatedAt = s.opts.Now()
		return tx.Save(&task).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("store: add images to %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("store: add images to %s: %w", id, err)
	}
	s.hub.publish(topicTasks)
	return nil
}

// ListComments returns a task's comments ordered by CreatedAt ascending.
func (s *GormStore) ListComments(ctx context.Context, taskID string) ([]models.Comment, error) {
	var comments []models.Comment
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("created_at asc").Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("store: list comments for %s: %w", taskID, err)
	}
	return comments, nil
}

// CreateComment inserts a comment, then increments the parent's comment
// count in a separate write.
func (s *GormStore) CreateComment(ctx context.Context, nc NewComment) (string, error) {
	text := strings.TrimSpace(nc.Text)
	if text == "" && len(nc.ImageURLs) == 0 {
		return "", fmt.Errorf("store: create comment: text or images required: %w", ErrInvalidComment)
	}
	if _, err := s.GetTask(ctx, nc.TaskID); err != nil {
		return "", fmt.Errorf("store: create comment: %w", err)
	}
	userName := strings.TrimSpace(nc.UserName)
	if userName == "" {
		userName = "Anonymous"
	}
	comment := models.Comment{
		ID:        uuid.NewString(),
		TaskID:    nc.TaskID,
		Text:      text,
		UserName:  userName,
		ImageURLs: append([]string{}, nc.ImageURLs...),
		CreatedAt: s.opts.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return "", fmt.Errorf("store: create comment: %w", err)
	}
	s.hub.publish(commentsTopic(nc.TaskID))

	if err := s.adjustCommentCount(ctx, nc.TaskID, 1); err != nil {
		return comment.ID, fmt.Errorf("store: create comment %s: %w", comment.ID, err)
	}
	return comment.ID, nil
}

// DeleteComment removes a comment, then decrements the parent's comment
// count in a separate write. The count never drops below zero.
func (s *GormStore) DeleteComment(ctx context.Context, id, taskID string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND task_id = ?", id, taskID).Delete(&models.Comment{})
	if result.Error != nil {
		return fmt.Errorf("store: delete comment %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: delete comment %s: %w", id, ErrNotFound)
	}
	s.hub.publish(commentsTopic(taskID))

	if err := s.adjustCommentCount(ctx, taskID, -1); err != nil {
		return fmt.Errorf("store: delete comment %s: %w", id, err)
	}
	return nil
}

func (s *GormStore) adjustCommentCount(ctx context.Context, taskID string, delta int) error {
	expr := gorm.Expr("meta_comment_count + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("CASE WHEN meta_comment_count + ? < 0 THEN 0 ELSE meta_comment_count + ? END", delta, delta)
	}
	result := s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"meta_comment_count": expr,
			"updated_at":         s.opts.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("adjust comment count: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.hub.publish(topicTasks)
	}
	return nil
}

// sameSnapshot compares two snapshots by their wire encoding, which is
// stable across reloads where time zone pointers are not.
func sameSnapshot(a, b interface{}) bool {
	if a == nil || b == nil {
		return false
	}
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

func normalizeAssignee(a *string) *string {
	if a == nil {
		return nil
	}
	v := strings.TrimSpace(*a)
	if v == "" {
		return nil
	}
	return &v
}
