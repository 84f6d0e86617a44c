// Package board derives page columns from the task projection and turns
// drag-and-drop gestures into the smallest set of store writes.
package board

import (
	"sort"

	"github.com/zulandar/plandala/internal/models"
)

// Column is one status lane on a page. ID is the status string.
type Column struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Status     models.Status `json:"status"`
	Descending bool          `json:"descending"`
}

var pageColumns = map[models.Page][]Column{
	models.PageKanban: {
		{ID: string(models.StatusHighPriority), Title: "High Priority", Status: models.StatusHighPriority},
		{ID: string(models.StatusInProgress), Title: "In Progress", Status: models.StatusInProgress},
		{ID: string(models.StatusNotStarted), Title: "Not Started", Status: models.StatusNotStarted},
	},
	models.PageTesting: {
		{ID: string(models.StatusTesting), Title: "Testing", Status: models.StatusTesting},
	},
	models.PageDone: {
		{ID: string(models.StatusDone), Title: "Done", Status: models.StatusDone, Descending: true},
	},
}

// Columns returns the columns of a page in display order, or nil for an
// unknown page.
func Columns(page models.Page) []Column {
	cols := pageColumns[page]
	if cols == nil {
		return nil
	}
	return append([]Column(nil), cols...)
}

// findColumn returns the column of page whose ID is id.
func findColumn(page models.Page, id string) (Column, bool) {
	for _, c := range pageColumns[page] {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

// Descending reports whether a status displays newest first.
func Descending(status models.Status) bool {
	return status == models.StatusDone
}

// SortColumn orders a partition for display: Order ascending, or
// descending for the done column. Ties keep their input order.
func SortColumn(status models.Status, tasks []models.Task) []models.Task {
	out := append([]models.Task(nil), tasks...)
	desc := Descending(status)
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return out[i].Order > out[j].Order
		}
		return out[i].Order < out[j].Order
	})
	return out
}
