// Package audit reports drift between each task's stored comment counter
// and the number of comments that actually exist. It never corrects.
package audit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/plandala/internal/models"
	"gorm.io/gorm"
)

// Drift is one task whose counter disagrees with its comments.
type Drift struct {
	TaskID   string
	Title    string
	Recorded int
	Actual   int
}

func (d Drift) String() string {
	return fmt.Sprintf("%s %q: commentCount=%d, comments=%d", d.TaskID, d.Title, d.Recorded, d.Actual)
}

// Check compares every task's CommentCount with its live comment count.
// Comments whose task no longer exists are ignored.
func Check(ctx context.Context, db *gorm.DB) ([]Drift, error) {
	var rows []struct {
		ID       string
		Title    string
		Recorded int
		Actual   int
	}
	err := db.WithContext(ctx).
		Model(&models.Task{}).
		Select("tasks.id, tasks.title, tasks.meta_comment_count AS recorded, COUNT(comments.id) AS actual").
		Joins("LEFT JOIN comments ON comments.task_id = tasks.id").
		Group("tasks.id, tasks.title, tasks.meta_comment_count").
		Having("tasks.meta_comment_count <> COUNT(comments.id)").
		Order("tasks.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("audit: check comment counts: %w", err)
	}

	drift := make([]Drift, len(rows))
	for i, r := range rows {
		drift[i] = Drift{TaskID: r.ID, Title: r.Title, Recorded: r.Recorded, Actual: r.Actual}
	}
	return drift, nil
}

// ReportFunc receives the result of one scheduled check.
type ReportFunc func([]Drift)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule validates a 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("audit: parse schedule %q: %w", expr, err)
	}
	return sched, nil
}

// nextDuration returns the wait until sched next fires after now.
func nextDuration(sched cron.Schedule, now time.Time) time.Duration {
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Schedule runs Check on expr until ctx is done. A nil report logs drift.
func Schedule(ctx context.Context, db *gorm.DB, expr string, report ReportFunc) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return err
	}
	if report == nil {
		report = LogDrift
	}

	timer := time.NewTimer(nextDuration(sched, time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			drift, err := Check(ctx, db)
			if err != nil {
				log.Printf("audit: %v", err)
			} else {
				report(drift)
			}
			timer.Reset(nextDuration(sched, time.Now()))
		}
	}
}

// LogDrift writes one log line per drifted task.
func LogDrift(drift []Drift) {
	for _, d := range drift {
		log.Printf("audit: comment counter drift: %s", d)
	}
}
