package notify

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mowgli42/bookish-train/toast"
)

type sent struct {
	title   string
	message string
}

func recorder(err error) (Func, <-chan sent) {
	ch := make(chan sent, 8)
	return func(title, message string) error {
		ch <- sent{title: title, message: message}
		return err
	}, ch
}

func receive(t *testing.T, ch <-chan sent) sent {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("no notification sent")
		return sent{}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDesktop_Send(t *testing.T) {
	fn, ch := recorder(nil)
	d := NewDesktop(WithFunc(fn), WithLogger(quietLogger()))

	d.Send(toast.Toast{ID: "1", Message: " rules updated ", Category: toast.CategorySuccess})
	got := receive(t, ch)
	assert.Equal(t, DefaultTitle, got.title)
	assert.Equal(t, "rules updated", got.message)

	d.Send(toast.Toast{ID: "2", Message: "jobs: Bad Gateway", Category: toast.CategoryError})
	got = receive(t, ch)
	assert.Equal(t, DefaultTitle+": error", got.title)
}

func TestDesktop_Categories(t *testing.T) {
	fn, ch := recorder(nil)
	d := NewDesktop(WithFunc(fn), WithTitle("Lab"), WithCategories(toast.CategoryError))

	d.Send(toast.Toast{Message: "hello", Category: toast.CategoryInfo})
	d.Send(toast.Toast{Message: "status: Service Unavailable", Category: toast.CategoryError})

	got := receive(t, ch)
	assert.Equal(t, "Lab: error", got.title)
	assert.Equal(t, "status: Service Unavailable", got.message)

	select {
	case extra := <-ch:
		t.Fatalf("unexpected notification %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDesktop_TruncatesAndSkipsEmpty(t *testing.T) {
	fn, ch := recorder(nil)
	d := NewDesktop(WithFunc(fn))

	d.Send(toast.Toast{Message: "   "})
	d.Send(toast.Toast{Message: strings.Repeat("x", 1000)})

	got := receive(t, ch)
	assert.Len(t, got.message, maxMessageLen+3)
	assert.True(t, strings.HasSuffix(got.message, "..."))
}

func TestDesktop_FailureIsSwallowed(t *testing.T) {
	fn, ch := recorder(errors.New("no dbus"))
	d := NewDesktop(WithFunc(fn), WithLogger(quietLogger()))

	require.NotPanics(t, func() {
		d.Send(toast.Toast{Message: "x"})
	})
	receive(t, ch)
}

func TestDesktop_AsQueueSink(t *testing.T) {
	fn, ch := recorder(nil)
	d := NewDesktop(WithFunc(fn))
	q := toast.New(toast.WithSink(d.Sink()), toast.WithLogger(quietLogger()))
	defer q.Close()

	q.Error("buckets: invalid response body")
	got := receive(t, ch)
	assert.Equal(t, "buckets: invalid response body", got.message)
}
