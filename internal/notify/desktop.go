// Package notify mirrors toasts to desktop notifications.
package notify

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/gen2brain/beeep"

	"github.com/mowgli42/bookish-train/toast"
)

// DefaultTitle is the notification title when none is configured.
const DefaultTitle = "Edge Backup"

const maxMessageLen = 800

// Func delivers one desktop notification.
type Func func(title, message string) error

// Desktop sends toasts as desktop notifications.
type Desktop struct {
	title      string
	categories []toast.Category
	notify     Func
	logger     *slog.Logger
}

// Option configures a [Desktop].
type Option func(*Desktop)

// WithTitle sets the notification title.
func WithTitle(title string) Option {
	return func(d *Desktop) { d.title = title }
}

// WithCategories limits notifications to the given toast categories.
func WithCategories(categories ...toast.Category) Option {
	return func(d *Desktop) { d.categories = categories }
}

// WithFunc replaces the platform notifier.
func WithFunc(fn Func) Option {
	return func(d *Desktop) { d.notify = fn }
}

// WithLogger sets the logger for delivery failures.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Desktop) { d.logger = logger }
}

// NewDesktop creates a Desktop notifier backed by beeep.
func NewDesktop(opts ...Option) *Desktop {
	d := &Desktop{
		title:  DefaultTitle,
		notify: beeepNotify,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func beeepNotify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Send delivers t in the background. Toasts outside the configured
// categories are ignored.
func (d *Desktop) Send(t toast.Toast) {
	if len(d.categories) > 0 && !slices.Contains(d.categories, t.Category) {
		return
	}

	message := strings.TrimSpace(t.Message)
	if message == "" {
		return
	}
	if len(message) > maxMessageLen {
		message = message[:maxMessageLen] + "..."
	}
	title := d.title
	if t.Category == toast.CategoryError {
		title += ": error"
	}

	go func() {
		if err := d.notify(title, message); err != nil {
			d.logger.Debug("desktop notification failed", "toast_id", t.ID, "error", err)
		}
	}()
}

// Sink returns Send as a [toast.Sink].
func (d *Desktop) Sink() toast.Sink {
	return d.Send
}
