package alertq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var ErrQueueFull = errors.New("alert queue full")

// Alert is one state-change notification produced by the monitor.
type Alert struct {
	Name    string    `json:"name"`
	Node    string    `json:"node,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier delivers one alert (log sink, webhook, pager).
type Notifier func(ctx context.Context, a Alert)

// Queue decouples probe sweeps from alert delivery. Alerts are dropped
// with an error when the buffer is full; a stuck notifier must never
// stall the monitor.
type Queue struct {
	l      *slog.Logger
	alerts chan Alert
	notify Notifier
}

func New(bufferSize int, notify Notifier) *Queue {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if notify == nil {
		notify = LogNotifier
	}
	return &Queue{
		l:      slog.With("component", "alert-queue"),
		alerts: make(chan Alert, bufferSize),
		notify: notify,
	}
}

func (q *Queue) log() *slog.Logger {
	if q.l != nil {
		return q.l
	}
	return slog.With("component", "alert-queue")
}

func (q *Queue) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case a := <-q.alerts:
				q.log().Info("dispatching alert", slog.String("name", a.Name))
				q.notify(ctx, a)
			}
		}
	}()
}

func (q *Queue) Submit(a Alert) error {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	select {
	case q.alerts <- a:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, a.Name)
	}
}

// LogNotifier is the default sink: alerts land in the structured log.
func LogNotifier(_ context.Context, a Alert) {
	slog.Warn("ALERT",
		slog.String("name", a.Name),
		slog.String("node", a.Node),
		slog.String("message", a.Message),
		slog.Time("at", a.At),
	)
}
