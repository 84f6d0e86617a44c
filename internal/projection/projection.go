// Package projection keeps an in-memory mirror of the task collection and
// of per-task comment lists, fed by store push subscriptions.
package projection

import (
	"sync"

	"github.com/zulandar/plandala/internal/models"
)

// Subscriber is the push side of the document store.
type Subscriber interface {
	SubscribeTasks(onData func([]models.Task), onError func(error)) func()
	SubscribeComments(taskID string, onData func([]models.Comment), onError func(error)) func()
}

// Cache mirrors the task collection. One store subscription is shared by
// every observer; it opens with the first Observe and closes when the last
// release runs. Only subscription callbacks write the snapshot.
type Cache struct {
	sub Subscriber

	mu          sync.Mutex
	refs        int
	gen         uint64
	unsubscribe func()
	tasks       []models.Task
	loading     bool
	err         error
	observers   map[int]func()
	nextID      int

	comments map[string]*commentSet
}

// commentSet is the per-task equivalent of the task mirror.
type commentSet struct {
	refs        int
	gen         uint64
	unsubscribe func()
	comments    []models.Comment
	loading     bool
	err         error
	observers   map[int]func()
}

// New returns an empty Cache over sub.
func New(sub Subscriber) *Cache {
	return &Cache{
		sub:       sub,
		loading:   true,
		observers: make(map[int]func()),
		comments:  make(map[string]*commentSet),
	}
}

// Observe registers onChange, called after every push, and returns the
// release function. Release is idempotent.
func (c *Cache) Observe(onChange func()) (release func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if onChange != nil {
		c.observers[id] = onChange
	}
	c.refs++
	first := c.refs == 1
	var gen uint64
	if first {
		c.gen++
		gen = c.gen
		c.loading = true
		c.err = nil
	}
	c.mu.Unlock()

	if first {
		unsub := c.sub.SubscribeTasks(
			func(tasks []models.Task) { c.onTasks(gen, tasks) },
			func(err error) { c.onTasksError(gen, err) },
		)
		c.mu.Lock()
		if c.gen != gen {
			// Torn down before the subscription handle came back.
			c.mu.Unlock()
			unsub()
		} else {
			c.unsubscribe = unsub
			c.mu.Unlock()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.release(id) })
	}
}

func (c *Cache) release(id int) {
	c.mu.Lock()
	delete(c.observers, id)
	c.refs--
	if c.refs > 0 {
		c.mu.Unlock()
		return
	}
	c.gen++
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.tasks = nil
	c.loading = true
	c.err = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (c *Cache) onTasks(gen uint64, tasks []models.Task) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.tasks = tasks
	c.loading = false
	observers := c.snapshotObservers()
	c.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

func (c *Cache) onTasksError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.err = err
	c.loading = false
	observers := c.snapshotObservers()
	c.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

// snapshotObservers must be called with c.mu held.
func (c *Cache) snapshotObservers() []func() {
	out := make([]func(), 0, len(c.observers))
	for _, fn := range c.observers {
		out = append(out, fn)
	}
	return out
}

// Loading reports whether no push has arrived since the subscription opened.
func (c *Cache) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Err returns the terminal subscription error, if any.
func (c *Cache) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Tasks returns the snapshot in delivery order.
func (c *Cache) Tasks() []models.Task {
	return c.filter(func(models.Task) bool { return true })
}

// TasksByPage returns the tasks shown on page.
func (c *Cache) TasksByPage(page models.Page) []models.Task {
	return c.filter(func(t models.Task) bool { return t.Page == page })
}

// TasksByStatus returns the tasks with status.
func (c *Cache) TasksByStatus(status models.Status) []models.Task {
	return c.filter(func(t models.Task) bool { return t.Status == status })
}

// TasksByPageAndStatus returns one partition.
func (c *Cache) TasksByPageAndStatus(page models.Page, status models.Status) []models.Task {
	return c.filter(func(t models.Task) bool { return t.Page == page && t.Status == status })
}

// TaskByID looks a task up in the snapshot.
func (c *Cache) TaskByID(id string) (models.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return models.Task{}, false
}

func (c *Cache) filter(keep func(models.Task) bool) []models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// ObserveComments opens (or shares) the comment subscription for taskID
// and returns its idempotent release.
func (c *Cache) ObserveComments(taskID string, onChange func()) (release func()) {
	c.mu.Lock()
	set, ok := c.comments[taskID]
	if !ok {
		set = &commentSet{loading: true, observers: make(map[int]func())}
		c.comments[taskID] = set
	}
	id := c.nextID
	c.nextID++
	if onChange != nil {
		set.observers[id] = onChange
	}
	set.refs++
	first := set.refs == 1
	var gen uint64
	if first {
		set.gen++
		gen = set.gen
		set.loading = true
		set.err = nil
	}
	c.mu.Unlock()

	if first {
		unsub := c.sub.SubscribeComments(taskID,
			func(comments []models.Comment) { c.onComments(set, gen, comments) },
			func(err error) { c.onCommentsError(set, gen, err) },
		)
		c.mu.Lock()
		if set.gen != gen {
			c.mu.Unlock()
			unsub()
		} else {
			set.unsubscribe = unsub
			c.mu.Unlock()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.releaseComments(taskID, set, id) })
	}
}

func (c *Cache) releaseComments(taskID string, set *commentSet, id int) {
	c.mu.Lock()
	delete(set.observers, id)
	set.refs--
	if set.refs > 0 {
		c.mu.Unlock()
		return
	}
	set.gen++
	unsub := set.unsubscribe
	set.unsubscribe = nil
	set.comments = nil
	set.loading = true
	set.err = nil
	if c.comments[taskID] == set {
		delete(c.comments, taskID)
	}
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (c *Cache) onComments(set *commentSet, gen uint64, comments []models.Comment) {
	c.mu.Lock()
	if gen != set.gen {
		c.mu.Unlock()
		return
	}
	set.comments = comments
	set.loading = false
	observers := make([]func(), 0, len(set.observers))
	for _, fn := range set.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

func (c *Cache) onCommentsError(set *commentSet, gen uint64, err error) {
	c.mu.Lock()
	if gen != set.gen {
		c.mu.Unlock()
		return
	}
	set.err = err
	set.loading = false
	observers := make([]func(), 0, len(set.observers))
	for _, fn := range set.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

// Comments returns the comment snapshot for an observed task, oldest first.
// Unobserved tasks return nil.
func (c *Cache) Comments(taskID string) []models.Comment {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.comments[taskID]
	if !ok {
		return nil
	}
	return append([]models.Comment(nil), set.comments...)
}

// CommentsLoading reports whether the comment set has not received a push.
func (c *Cache) CommentsLoading(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.comments[taskID]
	return !ok || set.loading
}

// CommentsErr returns the terminal comment subscription error for taskID.
func (c *Cache) CommentsErr(taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.comments[taskID]; ok {
		return set.err
	}
	return nil
}
