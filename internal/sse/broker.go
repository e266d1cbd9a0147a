// Package sse streams task note changes to HTTP clients as Server-Sent Events.
//
// Every change is sent as notes.<kind> with the task id. Changes are also
// collected into a tasks.updated event carrying every task id touched within
// one coalescing window, so task lists refresh once per burst.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/starford/tasknotes/internal/noteservice"
)

// TasksUpdated is the name of the coalesced batch event.
const TasksUpdated = "tasks.updated"

const (
	clientBuffer     = 64
	defaultWindow    = 2 * time.Second
	defaultHeartbeat = 25 * time.Second
	retryMillis      = 3000
)

// NoteChange is the payload of a notes.<kind> event.
type NoteChange struct {
	Kind   noteservice.EventKind `json:"kind"`
	TaskID string                `json:"taskId"`
}

// TasksChange is the payload of a tasks.updated event.
type TasksChange struct {
	TaskIDs []string `json:"taskIds"`
}

// eventName maps a change kind to its stream event. Unknown kinds are not
// streamed.
func eventName(kind noteservice.EventKind) (string, bool) {
	switch kind {
	case noteservice.EventCreated, noteservice.EventUpdated,
		noteservice.EventConverted, noteservice.EventDeleted:
		return "notes." + string(kind), true
	}
	return "", false
}

// subscriber is one connected stream. A non-empty taskID limits the notes.*
// events it receives to that task; tasks.updated always goes through.
type subscriber struct {
	taskID string
	out    chan []byte
}

func (s *subscriber) wants(taskID string) bool {
	return s.taskID == "" || taskID == "" || s.taskID == taskID
}

// Option configures a Broker.
type Option func(*Broker)

// WithHeartbeat sets how often idle streams receive a comment line. Zero
// disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// Broker fans note changes out to subscribers.
//
// One goroutine owns the subscriber set, the pending tasks.updated batch and
// the event sequence; the exported methods reach it over channels.
type Broker struct {
	window    time.Duration
	heartbeat time.Duration

	joinCh   chan *subscriber
	leaveCh  chan *subscriber
	changeCh chan NoteChange
	countCh  chan chan int

	done    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker that coalesces tasks.updated over window.
func NewBroker(window time.Duration, opts ...Option) *Broker {
	if window <= 0 {
		window = defaultWindow
	}
	b := &Broker{
		window:    window,
		heartbeat: defaultHeartbeat,
		joinCh:    make(chan *subscriber),
		leaveCh:   make(chan *subscriber),
		changeCh:  make(chan NoteChange, 256),
		countCh:   make(chan chan int),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)

	subs := make(map[*subscriber]struct{})
	pending := make(map[string]struct{})
	var (
		seq   uint64
		timer *time.Timer
		flush <-chan time.Time
	)

	send := func(name, taskID string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		seq++
		frame := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, name, data))
		for s := range subs {
			if !s.wants(taskID) {
				continue
			}
			select {
			case s.out <- frame:
			default:
				// Subscriber is behind; it misses this frame.
			}
		}
	}

	for {
		select {
		case <-b.done:
			if timer != nil {
				timer.Stop()
			}
			for s := range subs {
				close(s.out)
			}
			return

		case s := <-b.joinCh:
			subs[s] = struct{}{}

		case s := <-b.leaveCh:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				close(s.out)
			}

		case reply := <-b.countCh:
			reply <- len(subs)

		case c := <-b.changeCh:
			name, ok := eventName(c.Kind)
			if !ok {
				continue
			}
			send(name, c.TaskID, c)
			pending[c.TaskID] = struct{}{}
			if flush == nil {
				timer = time.NewTimer(b.window)
				flush = timer.C
			}

		case <-flush:
			flush = nil
			ids := make([]string, 0, len(pending))
			for id := range pending {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			clear(pending)
			send(TasksUpdated, "", TasksChange{TaskIDs: ids})
		}
	}
}

// PublishNoteEvent implements noteservice.Notifier.
func (b *Broker) PublishNoteEvent(kind noteservice.EventKind, taskID string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- NoteChange{Kind: kind, TaskID: taskID}:
	case <-b.stopped:
	}
}

// Subscribe registers a stream. With a non-empty taskID only that task's
// notes.* events are delivered. The returned cancel func unregisters it and
// closes the channel; Close closes it as well.
func (b *Broker) Subscribe(taskID string) (<-chan []byte, func()) {
	s := &subscriber{taskID: taskID, out: make(chan []byte, clientBuffer)}
	if b.closed.Load() {
		close(s.out)
		return s.out, func() {}
	}
	select {
	case b.joinCh <- s:
	case <-b.stopped:
		close(s.out)
		return s.out, func() {}
	}
	return s.out, func() {
		select {
		case b.leaveCh <- s:
		case <-b.stopped:
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	reply := make(chan int, 1)
	select {
	case b.countCh <- reply:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-b.stopped:
		return 0
	}
}

// Close stops the broker and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
	<-b.stopped
}

// ServeHTTP streams events (GET /api/events). The optional taskId query
// parameter narrows notes.* events to one task.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	events, cancel := b.Subscribe(r.URL.Query().Get("taskId"))
	defer cancel()

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		ticker := time.NewTicker(b.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case frame, ok := <-events:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
