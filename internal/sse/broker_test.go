package sse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/starford/tasknotes/internal/noteservice"
)

// sseFrame is a decoded SSE message.
type sseFrame struct {
	id    string
	event string
	data  string
}

func parseFrame(t *testing.T, raw []byte) sseFrame {
	t.Helper()
	var f sseFrame
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		key, value, _ := strings.Cut(line, ": ")
		switch key {
		case "id":
			f.id = value
		case "event":
			f.event = value
		case "data":
			f.data = value
		}
	}
	return f
}

// collect reads frames until none arrive for quiet.
func collect(t *testing.T, ch <-chan []byte, quiet time.Duration) []sseFrame {
	t.Helper()
	var out []sseFrame
	for {
		select {
		case raw, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, parseFrame(t, raw))
		case <-time.After(quiet):
			return out
		}
	}
}

func byEvent(frames []sseFrame, name string) []sseFrame {
	var out []sseFrame
	for _, f := range frames {
		if f.event == name {
			out = append(out, f)
		}
	}
	return out
}

func TestNoteEventFrames(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch, cancel := b.Subscribe("")
	defer cancel()

	b.PublishNoteEvent(noteservice.EventCreated, "t1")
	b.PublishNoteEvent(noteservice.EventKind("bogus"), "t3")
	b.PublishNoteEvent(noteservice.EventConverted, "t2")

	frames := collect(t, ch, 100*time.Millisecond)
	if len(frames) != 2 {
		t.Fatalf("frames = %+v, want 2", frames)
	}
	want := []sseFrame{
		{id: "1", event: "notes.created", data: `{"kind":"created","taskId":"t1"}`},
		{id: "2", event: "notes.converted", data: `{"kind":"converted","taskId":"t2"}`},
	}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("frames = %+v, want %+v", frames, want)
	}
}

func TestTasksUpdated_CoalescesBurst(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch, cancel := b.Subscribe("")
	defer cancel()

	b.PublishNoteEvent(noteservice.EventUpdated, "t2")
	b.PublishNoteEvent(noteservice.EventUpdated, "t1")
	b.PublishNoteEvent(noteservice.EventUpdated, "t2")
	b.PublishNoteEvent(noteservice.EventDeleted, "t3")

	frames := collect(t, ch, 300*time.Millisecond)
	if n := len(byEvent(frames, "notes.updated")); n != 3 {
		t.Errorf("notes.updated frames = %d, want 3", n)
	}
	batches := byEvent(frames, TasksUpdated)
	if len(batches) != 1 {
		t.Fatalf("tasks.updated frames = %d, want 1", len(batches))
	}
	var got TasksChange
	if err := json.Unmarshal([]byte(batches[0].data), &got); err != nil {
		t.Fatal(err)
	}
	if want := []string{"t1", "t2", "t3"}; !reflect.DeepEqual(got.TaskIDs, want) {
		t.Errorf("taskIds = %v, want %v", got.TaskIDs, want)
	}

	// The next burst starts a fresh batch.
	b.PublishNoteEvent(noteservice.EventCreated, "t9")
	batches = byEvent(collect(t, ch, 300*time.Millisecond), TasksUpdated)
	if len(batches) != 1 || batches[0].data != `{"taskIds":["t9"]}` {
		t.Errorf("second batch = %+v", batches)
	}
}

func TestSubscribe_TaskFilter(t *testing.T) {
	b := NewBroker(50 * time.Millisecond)
	defer b.Close()
	ch, cancel := b.Subscribe("t1")
	defer cancel()

	b.PublishNoteEvent(noteservice.EventUpdated, "t2")
	b.PublishNoteEvent(noteservice.EventUpdated, "t1")

	frames := collect(t, ch, 200*time.Millisecond)
	notes := byEvent(frames, "notes.updated")
	if len(notes) != 1 || !strings.Contains(notes[0].data, `"taskId":"t1"`) {
		t.Errorf("notes frames = %+v, want only t1", notes)
	}
	if len(byEvent(frames, TasksUpdated)) != 1 {
		t.Errorf("filtered subscriber should still get %s", TasksUpdated)
	}
}

func TestSubscribe_CancelUnregisters(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients = %d, want 0", n)
	}
	ch, cancel := b.Subscribe("")
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
	cancel()
	if n := b.ClientCount(); n != 0 {
		t.Errorf("clients = %d after cancel, want 0", n)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
}

func TestSlowSubscriberDoesNotBlockPublishers(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch, cancel := b.Subscribe("")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3*clientBuffer; i++ {
			b.PublishNoteEvent(noteservice.EventUpdated, "t1")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on a full subscriber")
	}
	time.Sleep(100 * time.Millisecond)
	if n := len(collect(t, ch, 100*time.Millisecond)); n > clientBuffer {
		t.Errorf("delivered %d frames, buffer holds %d", n, clientBuffer)
	}
}

func TestClose_ClosesSubscribers(t *testing.T) {
	b := NewBroker(time.Second)
	ch, _ := b.Subscribe("")

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if n := b.ClientCount(); n != 0 {
		t.Errorf("clients = %d after close, want 0", n)
	}

	// Operations after Close are no-ops.
	b.PublishNoteEvent(noteservice.EventUpdated, "x")
	late, cancel := b.Subscribe("")
	cancel()
	if _, ok := <-late; ok {
		t.Error("subscribe after close should return a closed channel")
	}
	b.Close()
}

func TestServeHTTP(t *testing.T) {
	b := NewBroker(time.Hour, WithHeartbeat(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events?taskId=t1", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}

	b.PublishNoteEvent(noteservice.EventUpdated, "t2")
	b.PublishNoteEvent(noteservice.EventUpdated, "t1")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	body := w.Body.String()
	for _, want := range []string{"retry: 3000", ": ping", "event: notes.updated", `"taskId":"t1"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q: %q", want, body)
		}
	}
	if strings.Contains(body, `"taskId":"t2"`) {
		t.Errorf("body has an event for another task: %q", body)
	}

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := b.ClientCount(); n != 0 {
		t.Errorf("clients = %d after disconnect, want 0", n)
	}
}
