package opencode_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shahfarzane/opencode-mobile-sub000/opencode"
)

// collector gathers delivered events for assertions.
type collector struct {
	mu     sync.Mutex
	events []*opencode.StreamEvent
	ch     chan *opencode.StreamEvent
}

func newCollector() *collector {
	return &collector{ch: make(chan *opencode.StreamEvent, 100)}
}

func (c *collector) handle(ev *opencode.StreamEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.ch <- ev
}

func (c *collector) wait(t *testing.T, n int) []*opencode.StreamEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		c.mu.Lock()
		if len(c.events) >= n {
			out := append([]*opencode.StreamEvent(nil), c.events...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d events", n)
		case <-c.ch:
		}
	}
}

// eventFrame builds one data frame for the given session.
func eventFrame(typ, sessionID, payload string) string {
	if sessionID == "" {
		return fmt.Sprintf("data: {\"type\":%q,\"properties\":{%s}}\n", typ, payload)
	}
	if payload != "" {
		payload = "," + payload
	}
	return fmt.Sprintf("data: {\"type\":%q,\"properties\":{\"sessionID\":%q%s}}\n", typ, sessionID, payload)
}

func TestSubscriberDeliversEventsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/event", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprint(w, eventFrame("message.part.updated", "s1", ""))
		fmt.Fprint(w, eventFrame("message.updated", "s1", ""))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := opencode.NewClient(srv.URL, opencode.WithToken("tok"))
	col := newCollector()
	sub := client.NewSubscriber(col.handle, opencode.WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	defer sub.Close()

	sub.SetSession("s1")
	events := col.wait(t, 2)

	assert.Equal(t, "message.part.updated", events[0].Type)
	assert.Equal(t, "message.updated", events[1].Type)
}

func TestSubscriberFiltersStaleSessionEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, eventFrame("message.updated", "other", ""))
		fmt.Fprint(w, eventFrame("message.updated", "", "\"x\":1")) // no session id: delivered
		fmt.Fprint(w, eventFrame("message.updated", "s1", ""))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := opencode.NewClient(srv.URL)
	col := newCollector()
	sub := client.NewSubscriber(col.handle)
	defer sub.Close()

	sub.SetSession("s1")
	events := col.wait(t, 2)

	for _, ev := range events {
		assert.NotEqual(t, "other", ev.SessionID(), "stale-session event must be dropped")
	}
}

func TestSubscriberReconnectsAfterFailure(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, eventFrame("message.updated", "s1", ""))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := opencode.NewClient(srv.URL)
	col := newCollector()
	sub := client.NewSubscriber(col.handle, opencode.WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	defer sub.Close()

	sub.SetSession("s1")
	col.wait(t, 1)

	assert.GreaterOrEqual(t, attempts.Load(), int32(3))
	assert.Equal(t, opencode.StateConnected, sub.State())
}

func TestSubscriberReconnectsWhenStreamEnds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, eventFrame("message.updated", "s1", fmt.Sprintf("\"n\":%d", n)))
		// Return immediately: the stream ends and the client must reconnect.
	}))
	defer srv.Close()

	client := opencode.NewClient(srv.URL)
	col := newCollector()
	sub := client.NewSubscriber(col.handle, opencode.WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	defer sub.Close()

	sub.SetSession("s1")
	col.wait(t, 2)

	assert.GreaterOrEqual(t, attempts.Load(), int32(2))
}

func TestSubscriberPauseAndResume(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, eventFrame("message.updated", "s1", ""))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := opencode.NewClient(srv.URL)
	col := newCollector()
	sub := client.NewSubscriber(col.handle, opencode.WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	defer sub.Close()

	sub.SetSession("s1")
	col.wait(t, 1)

	sub.Pause()
	assert.Equal(t, opencode.StateDisconnected, sub.State())

	sub.Resume()
	col.wait(t, 2)
	assert.Equal(t, opencode.StateConnected, sub.State())
}

func TestSubscriberCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, eventFrame("message.updated", "s1", ""))
		w.(http.Flusher).Flush()
		<-release
		fmt.Fprint(w, eventFrame("message.updated", "s1", ""))
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()
	defer close(release)

	client := opencode.NewClient(srv.URL)
	col := newCollector()
	sub := client.NewSubscriber(col.handle)

	sub.SetSession("s1")
	col.wait(t, 1)

	sub.Close()
	sub.Close()
	assert.Equal(t, opencode.StateDisconnected, sub.State())

	time.Sleep(50 * time.Millisecond)
	col.mu.Lock()
	count := len(col.events)
	col.mu.Unlock()
	assert.Equal(t, 1, count, "no events may be delivered after Close")
}

func TestSubscriberSetSessionSwitchTearsDownOldStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		// Every connection streams events for both sessions; only the
		// governing one may reach the handler.
		fmt.Fprint(w, eventFrame("message.updated", "s1", ""))
		fmt.Fprint(w, eventFrame("message.updated", "s2", ""))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := opencode.NewClient(srv.URL)
	col := newCollector()
	sub := client.NewSubscriber(col.handle, opencode.WithBackoff(5*time.Millisecond, 20*time.Millisecond))
	defer sub.Close()

	sub.SetSession("s1")
	first := col.wait(t, 1)
	assert.Equal(t, "s1", first[0].SessionID())

	sub.SetSession("s2")
	deadline := time.After(3 * time.Second)
	for {
		var seen bool
		col.mu.Lock()
		for _, ev := range col.events {
			if ev.SessionID() == "s2" {
				seen = true
			}
		}
		col.mu.Unlock()
		if seen {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for s2 event")
		case <-col.ch:
		}
	}

	// After the switch no further s1 events may arrive.
	col.mu.Lock()
	for i := len(col.events) - 1; i >= 0; i-- {
		if col.events[i].SessionID() == "s2" {
			break
		}
		assert.NotEqual(t, "s1", col.events[i].SessionID())
	}
	col.mu.Unlock()
}

func TestSubscriberHeaderTimeoutFailsAttempt(t *testing.T) {
	slow := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-slow // never send headers until released
	}))
	defer srv.Close()
	defer close(slow)

	client := opencode.NewClient(srv.URL)
	col := newCollector()
	sub := client.NewSubscriber(col.handle,
		opencode.WithHeaderTimeout(20*time.Millisecond),
		opencode.WithBackoff(time.Hour, time.Hour), // park after first failure
	)
	defer sub.Close()

	sub.SetSession("s1")

	deadline := time.After(3 * time.Second)
	for sub.State() != opencode.StateAwaitingReconnect {
		select {
		case <-deadline:
			t.Fatalf("expected awaiting-reconnect, still %v", sub.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
