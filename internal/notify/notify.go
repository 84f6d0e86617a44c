// Package notify posts best-effort board activity to chat platforms.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zulandar/plandala/internal/config"
	"github.com/zulandar/plandala/internal/models"
)

// Kind identifies what happened to a task.
type Kind string

const (
	TaskCreated Kind = "created"
	TaskMoved   Kind = "moved"
)

// sendTimeout bounds one dispatch across all notifiers, including retries.
const sendTimeout = 30 * time.Second

// Event describes one board change.
type Event struct {
	Kind  Kind
	Task  models.Task
	From  models.Status // previous status, set for TaskMoved
	Actor string
}

// Notifier delivers an Event to one destination.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Dispatcher fans events out to every configured Notifier. Failures are
// logged and never reach the caller.
type Dispatcher struct {
	notifiers []Notifier
}

// NewDispatcher returns a Dispatcher over ns. Nil entries are skipped.
func NewDispatcher(ns ...Notifier) *Dispatcher {
	d := &Dispatcher{}
	for _, n := range ns {
		if n != nil {
			d.notifiers = append(d.notifiers, n)
		}
	}
	return d
}

// FromConfig builds a Dispatcher with the chat platforms that have both a
// token and a channel configured.
func FromConfig(cfg config.NotifyConfig) (*Dispatcher, error) {
	var ns []Notifier
	if cfg.Slack.Enabled() {
		s, err := NewSlack(SlackOpts{Token: cfg.Slack.Token, ChannelID: cfg.Slack.Channel})
		if err != nil {
			return nil, err
		}
		ns = append(ns, s)
	}
	if cfg.Discord.Enabled() {
		d, err := NewDiscord(DiscordOpts{Token: cfg.Discord.Token, ChannelID: cfg.Discord.Channel})
		if err != nil {
			return nil, err
		}
		ns = append(ns, d)
	}
	return NewDispatcher(ns...), nil
}

// Len returns the number of active notifiers.
func (d *Dispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.notifiers)
}

// Publish sends ev to every notifier in turn.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) {
	if d.Len() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			log.Printf("notify: %s task %s: %v", ev.Kind, ev.Task.ID, err)
		}
	}
}

// TaskCreatedEvent is a convenience constructor.
func TaskCreatedEvent(task models.Task, actor string) Event {
	return Event{Kind: TaskCreated, Task: task, Actor: actor}
}

// TaskMovedEvent records a status change from one column to another.
func TaskMovedEvent(task models.Task, from models.Status, actor string) Event {
	return Event{Kind: TaskMoved, Task: task, From: from, Actor: actor}
}

// message is the platform-neutral rendering of an Event.
type message struct {
	Title  string
	Body   string
	Color  int
	Fields []field
}

type field struct {
	Name  string
	Value string
	Short bool
}

// statusColors mirror the board column accents.
var statusColors = map[models.Status]int{
	models.StatusHighPriority: 0xD32F2F,
	models.StatusInProgress:   0x1976D2,
	models.StatusNotStarted:   0x757575,
	models.StatusTesting:      0xF9A825,
	models.StatusDone:         0x388E3C,
}

func format(ev Event) message {
	t := ev.Task
	m := message{Body: t.Description, Color: statusColors[t.Status]}
	switch ev.Kind {
	case TaskMoved:
		m.Title = fmt.Sprintf("Moved: %s", t.Title)
		m.Fields = append(m.Fields,
			field{Name: "From", Value: string(ev.From), Short: true},
			field{Name: "To", Value: string(t.Status), Short: true},
		)
	default:
		m.Title = fmt.Sprintf("New task: %s", t.Title)
		m.Fields = append(m.Fields, field{Name: "Status", Value: string(t.Status), Short: true})
	}
	m.Fields = append(m.Fields, field{Name: "Page", Value: string(t.Page), Short: true})
	if t.AssignedTo != nil && *t.AssignedTo != "" {
		m.Fields = append(m.Fields, field{Name: "Assigned to", Value: *t.AssignedTo, Short: true})
	}
	if ev.Actor != "" {
		m.Fields = append(m.Fields, field{Name: "By", Value: ev.Actor, Short: true})
	}
	return m
}

// hexColor renders c as "#RRGGBB" for Slack attachments.
func hexColor(c int) string {
	return fmt.Sprintf("#%06X", c)
}
