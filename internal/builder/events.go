package builder

import (
	"fmt"
	"time"

	"github.com/marcus/bldr/internal/logging"
	"github.com/marcus/bldr/internal/task"
)

// EventType classifies builder lifecycle events.
type EventType int

const (
	EventPreProfile  EventType = iota // profile tasks registered, about to run
	EventPostProfile                  // profile run finished
	EventPreTask                      // task about to run its calls
	EventPostTask                     // task finished
	EventPreCall                      // call about to execute
	EventPostCall                     // call finished
)

func (t EventType) String() string {
	switch t {
	case EventPreProfile:
		return "pre_profile"
	case EventPostProfile:
		return "post_profile"
	case EventPreTask:
		return "pre_task"
	case EventPostTask:
		return "post_task"
	case EventPreCall:
		return "pre_call"
	case EventPostCall:
		return "post_call"
	default:
		return "unknown"
	}
}

// Event carries data about a builder lifecycle event.
type Event struct {
	Type     EventType
	Time     time.Time
	Profile  string     // profile events
	Starting bool       // true for EventPreProfile, false for EventPostProfile
	Task     *task.Task // task and call events
	Status   TaskStatus // EventPostTask / EventPostCall outcome
	Call     int        // call index for call events
	CallType string
	Duration time.Duration
	Error    string
}

// EventHandler observes builder events. A returned error is logged and
// never affects the build.
type EventHandler func(Event) error

// dispatcher invokes handlers synchronously in registration order.
type dispatcher struct {
	handlers []EventHandler
	logger   *logging.Logger
}

func (d *dispatcher) add(h EventHandler) {
	if h != nil {
		d.handlers = append(d.handlers, h)
	}
}

func (d *dispatcher) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for i, h := range d.handlers {
		if err := d.call(h, e); err != nil {
			d.logger.ErrorCtx("event listener failed", map[string]any{
				"event":    e.Type.String(),
				"listener": i,
				"error":    err.Error(),
			})
		}
	}
}

func (d *dispatcher) call(h EventHandler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(e)
}
