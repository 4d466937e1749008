// Package toast provides a queue of short-lived, self-expiring notifications.
//
// Callers enqueue a message and forget about it: the [Queue] arms an
// explicit timer per toast and removes the toast when its TTL elapses, or
// earlier when the toast is dismissed. Removal is idempotent.
//
//	q := toast.New()
//	id := q.Success("rules updated")
//	q.Dismiss(id) // optional
package toast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultTTL is how long a toast stays visible unless dismissed.
const DefaultTTL = 4 * time.Second

// Category classifies a toast for presentation.
type Category string

const (
	CategoryInfo    Category = "info"
	CategorySuccess Category = "success"
	CategoryError   Category = "error"
)

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// Toast is one active notification.
type Toast struct {
	ID        string        `json:"id"`
	Message   string        `json:"message"`
	Category  Category      `json:"category"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

// ExpiresAt returns when the toast is removed if it is not dismissed first.
func (t Toast) ExpiresAt() time.Time {
	return t.CreatedAt.Add(t.TTL)
}

// Sink receives every toast at enqueue time, e.g. to mirror it to a desktop
// notification. Sinks run synchronously on the enqueuing goroutine.
type Sink func(Toast)

// Queue is an insertion-ordered set of active toasts.
//
// Queue is safe for concurrent use. Every toast owns a timer handle created
// from the queue's clock; [Queue.Dismiss] stops it, and an expiry that fires
// after the toast is gone does nothing.
type Queue struct {
	clock    clockwork.Clock
	ttl      time.Duration
	logger   *slog.Logger
	sinks    []Sink
	onChange func([]Toast)
	recorder Recorder

	// notifyMu serialises change notifications so the last one delivered
	// always reflects the latest state.
	notifyMu sync.Mutex

	mu     sync.Mutex
	toasts []Toast
	timers map[string]clockwork.Timer
	closed bool
}

// Recorder receives toast metrics.
type Recorder interface {
	IncToast(category string)
	SetActiveToasts(n int)
}

// Option configures a [Queue].
type Option func(*Queue)

// WithClock sets the clock used for timestamps and expiry timers.
func WithClock(clock clockwork.Clock) Option {
	return func(q *Queue) {
		if clock != nil {
			q.clock = clock
		}
	}
}

// WithTTL overrides [DefaultTTL]. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(q *Queue) {
		if ttl > 0 {
			q.ttl = ttl
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithSink registers a sink. Nil sinks are ignored.
func WithSink(s Sink) Option {
	return func(q *Queue) {
		if s != nil {
			q.sinks = append(q.sinks, s)
		}
	}
}

// WithOnChange registers a function called with the current toasts after
// every change. It runs outside the queue lock.
func WithOnChange(fn func([]Toast)) Option {
	return func(q *Queue) {
		q.onChange = fn
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(q *Queue) {
		if r != nil {
			q.recorder = r
		}
	}
}

// New creates an empty [Queue].
func New(opts ...Option) *Queue {
	q := &Queue{
		clock:  clockwork.NewRealClock(),
		ttl:    DefaultTTL,
		logger: slog.Default(),
		timers: make(map[string]clockwork.Timer),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a toast and arms its expiry timer. An empty category means
// [CategoryInfo]. Returns the new toast's ID.
func (q *Queue) Enqueue(message string, category Category) string {
	if category == "" {
		category = CategoryInfo
	}

	t := Toast{
		ID:        uuid.NewString(),
		Message:   message,
		Category:  category,
		CreatedAt: q.clock.Now(),
		TTL:       q.ttl,
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Debug("toast dropped after close", "message", message)
		return t.ID
	}
	q.toasts = append(q.toasts, t)
	id := t.ID
	q.timers[id] = q.clock.AfterFunc(q.ttl, func() { q.expire(id) })
	q.mu.Unlock()

	q.logger.Debug("toast enqueued", "id", id, "category", category.String())
	if q.recorder != nil {
		q.recorder.IncToast(category.String())
	}
	for _, sink := range q.sinks {
		q.deliverSafe(sink, t)
	}
	q.changed()

	return id
}

// Info enqueues an info toast.
func (q *Queue) Info(message string) string {
	return q.Enqueue(message, CategoryInfo)
}

// Success enqueues a success toast.
func (q *Queue) Success(message string) string {
	return q.Enqueue(message, CategorySuccess)
}

// Error enqueues an error toast.
func (q *Queue) Error(message string) string {
	return q.Enqueue(message, CategoryError)
}

// Dismiss removes the toast with id and stops its timer. Unknown ids are a no-op.
func (q *Queue) Dismiss(id string) {
	q.remove(id, "dismissed")
}

// Toasts returns the active toasts, oldest first. The slice is a copy.
func (q *Queue) Toasts() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Len returns the number of active toasts.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.toasts)
}

// Close stops every pending timer and clears the queue. Toasts enqueued after
// Close are dropped. Safe to call multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	q.toasts = nil
	q.mu.Unlock()

	q.changed()
}

func (q *Queue) expire(id string) {
	q.remove(id, "expired")
}

func (q *Queue) remove(id, reason string) {
	q.mu.Lock()
	idx := -1
	for i, t := range q.toasts {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return
	}
	q.toasts = append(q.toasts[:idx:idx], q.toasts[idx+1:]...)
	if timer, ok := q.timers[id]; ok {
		timer.Stop()
		delete(q.timers, id)
	}
	q.mu.Unlock()

	q.logger.Debug("toast removed", "id", id, "reason", reason)
	q.changed()
}

// snapshotLocked copies the active toasts. Caller must hold q.mu.
func (q *Queue) snapshotLocked() []Toast {
	out := make([]Toast, len(q.toasts))
	copy(out, q.toasts)
	return out
}

func (q *Queue) changed() {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	current := q.Toasts()
	if q.recorder != nil {
		q.recorder.SetActiveToasts(len(current))
	}
	if q.onChange != nil {
		q.onChange(current)
	}
}

// deliverSafe calls a sink with panic recovery.
func (q *Queue) deliverSafe(sink Sink, t Toast) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("toast sink panicked", "panic", r, "id", t.ID)
		}
	}()
	sink(t)
}
