package audit

import (
	"context"
	"testing"
	"time"

	"github.com/zulandar/plandala/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Task{}, &models.Comment{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func seedTask(t *testing.T, db *gorm.DB, id string, count int) {
	t.Helper()
	task := models.Task{
		ID:       id,
		Title:    "task " + id,
		Status:   models.StatusNotStarted,
		Page:     models.PageKanban,
		Metadata: models.TaskMetadata{CommentCount: count},
	}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("create task %s: %v", id, err)
	}
}

func seedComments(t *testing.T, db *gorm.DB, taskID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		c := models.Comment{ID: taskID + "-c" + string(rune('a'+i)), TaskID: taskID, Text: "hi"}
		if err := db.Create(&c).Error; err != nil {
			t.Fatalf("create comment: %v", err)
		}
	}
}

func TestCheck_NoDrift(t *testing.T) {
	db := testDB(t)
	seedTask(t, db, "a", 2)
	seedComments(t, db, "a", 2)
	seedTask(t, db, "b", 0)

	drift, err := Check(context.Background(), db)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(drift) != 0 {
		t.Errorf("drift = %v, want none", drift)
	}
}

func TestCheck_ReportsDrift(t *testing.T) {
	db := testDB(t)
	seedTask(t, db, "a", 3) // over-counted
	seedComments(t, db, "a", 1)
	seedTask(t, db, "b", 0) // under-counted
	seedComments(t, db, "b", 2)
	seedTask(t, db, "c", 1)
	seedComments(t, db, "c", 1)
	seedComments(t, db, "orphan", 4)

	drift, err := Check(context.Background(), db)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(drift) != 2 {
		t.Fatalf("drift = %v, want 2 entries", drift)
	}
	if drift[0].TaskID != "a" || drift[0].Recorded != 3 || drift[0].Actual != 1 {
		t.Errorf("drift[0] = %+v", drift[0])
	}
	if drift[1].TaskID != "b" || drift[1].Recorded != 0 || drift[1].Actual != 2 {
		t.Errorf("drift[1] = %+v", drift[1])
	}

	// Reporting never corrects.
	var task models.Task
	if err := db.First(&task, "id = ?", "a").Error; err != nil {
		t.Fatal(err)
	}
	if task.Metadata.CommentCount != 3 {
		t.Errorf("CommentCount changed to %d", task.Metadata.CommentCount)
	}
}

func TestDrift_String(t *testing.T) {
	d := Drift{TaskID: "a", Title: "x", Recorded: 2, Actual: 1}
	if got, want := d.String(), `a "x": commentCount=2, comments=1`; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
}

func TestParseSchedule(t *testing.T) {
	if _, err := ParseSchedule("0 3 * * *"); err != nil {
		t.Errorf("valid expression: %v", err)
	}
	for _, expr := range []string{"", "not a cron expr", "0 0 3 * * *"} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Errorf("ParseSchedule(%q) should fail", expr)
		}
	}
}

func TestNextDuration(t *testing.T) {
	sched, err := ParseSchedule("0 3 * * *")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 3, 1, 2, 30, 0, 0, time.UTC)
	if got := nextDuration(sched, now); got != 30*time.Minute {
		t.Errorf("nextDuration = %v, want 30m", got)
	}
	now = time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	if got := nextDuration(sched, now); got != 24*time.Hour {
		t.Errorf("nextDuration at fire time = %v, want 24h", got)
	}
}

func TestSchedule_InvalidExpression(t *testing.T) {
	if err := Schedule(context.Background(), testDB(t), "bogus", nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSchedule_StopsOnCancel(t *testing.T) {
	db := testDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Schedule(ctx, db, "0 3 * * *", func([]Drift) {}) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Schedule: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Schedule did not return after cancel")
	}
}
