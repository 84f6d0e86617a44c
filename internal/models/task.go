package models

import "time"

// Status is the column a task sits in.
type Status string

const (
	StatusHighPriority Status = "high_priority"
	StatusInProgress   Status = "in_progress"
	StatusNotStarted   Status = "not_started"
	StatusTesting      Status = "testing"
	StatusDone         Status = "done"
)

// Page groups statuses into the three board pages.
type Page string

const (
	PageKanban  Page = "kanban"
	PageTesting Page = "testing"
	PageDone    Page = "done"
)

// statusPages maps every status to the page that displays it.
var statusPages = map[Status]Page{
	StatusHighPriority: PageKanban,
	StatusInProgress:   PageKanban,
	StatusNotStarted:   PageKanban,
	StatusTesting:      PageTesting,
	StatusDone:         PageDone,
}

// AllStatuses lists statuses in board display order.
var AllStatuses = []Status{
	StatusHighPriority,
	StatusInProgress,
	StatusNotStarted,
	StatusTesting,
	StatusDone,
}

// AllPages lists pages in navigation order.
var AllPages = []Page{PageKanban, PageTesting, PageDone}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusPages[s]
	return ok
}

// Page returns the page derived from the status, or "" for unknown statuses.
func (s Status) Page() Page {
	return statusPages[s]
}

// Valid reports whether p is a known page.
func (p Page) Valid() bool {
	for _, known := range AllPages {
		if p == known {
			return true
		}
	}
	return false
}

// TaskMetadata holds counters maintained alongside task writes.
type TaskMetadata struct {
	CommentCount int `gorm:"default:0" json:"commentCount"`
	ImageCount   int `gorm:"default:0" json:"imageCount"`
}

// Task is a card on the board.
type Task struct {
	ID          string       `gorm:"primaryKey;size:36" json:"id"`
	Title       string       `gorm:"not null" json:"title"`
	Description string       `gorm:"type:text" json:"description"`
	Status      Status       `gorm:"size:16;index" json:"status"`
	Page        Page         `gorm:"size:16;index" json:"page"`
	AssignedTo  *string      `gorm:"size:128" json:"assignedTo"`
	CreatedBy   string       `gorm:"size:128" json:"createdBy"`
	ImageURLs   []string     `gorm:"serializer:json;type:text" json:"imageUrls"`
	Order       int64        `gorm:"column:sort_order;index" json:"order"`
	Metadata    TaskMetadata `gorm:"embedded;embeddedPrefix:meta_" json:"metadata"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Comment is a threaded note on a task.
type Comment struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	TaskID    string    `gorm:"size:36;index" json:"taskId"`
	Text      string    `gorm:"type:text" json:"text"`
	UserName  string    `gorm:"size:128" json:"userName"`
	ImageURLs []string  `gorm:"serializer:json;type:text" json:"imageUrls"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}
