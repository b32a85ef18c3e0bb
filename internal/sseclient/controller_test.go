package sseclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webdevcody/youtube-video-suggestions/internal/events"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig(url string) Config {
	return Config{URL: url, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxRetries: 5}
}

func waitDone(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not finish")
	}
}

func TestDelay(t *testing.T) {
	c := New(Config{URL: "http://unused"}, nil, quietLogger())
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, c.Delay(i+1), "retry %d", i+1)
	}
}

func TestGivesUpAfterMaxFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(fastConfig(srv.URL), nil, quietLogger())
	require.NoError(t, c.Start(context.Background()))
	waitDone(t, c)

	assert.True(t, c.GaveUp())
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 5, c.Attempts())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(5), hits.Load())

	// A fresh Start gets a new retry budget.
	require.NoError(t, c.Start(context.Background()))
	waitDone(t, c)
	assert.Equal(t, int32(10), hits.Load())
}

func TestOpenResetsRetryCount(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) != 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
	}))
	defer srv.Close()

	c := New(fastConfig(srv.URL), nil, quietLogger())
	require.NoError(t, c.Start(context.Background()))
	waitDone(t, c)

	// two failures, one open stream that later ends, then five more failures
	// counted from zero.
	assert.Equal(t, 7, c.Attempts())
	assert.True(t, c.GaveUp())
}

func TestNonStreamResponseCountsAsFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html>login</html>")
	}))
	defer srv.Close()

	c := New(fastConfig(srv.URL), nil, quietLogger())
	require.NoError(t, c.Start(context.Background()))
	waitDone(t, c)

	assert.True(t, c.GaveUp())
	assert.Equal(t, 5, c.Attempts())
	assert.Equal(t, int32(5), hits.Load())
}

func TestStreamClosedBeforeConnectedCountsAsFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": warming up\n\n")
		fmt.Fprint(w, "data: {\"type\":\"ping\"}\n\n")
	}))
	defer srv.Close()

	c := New(fastConfig(srv.URL), nil, quietLogger())
	var states []State
	var mu sync.Mutex
	c.On(events.KindPing, func(events.Event) {
		mu.Lock()
		states = append(states, c.State())
		mu.Unlock()
	})
	require.NoError(t, c.Start(context.Background()))
	waitDone(t, c)

	assert.True(t, c.GaveUp())
	assert.Equal(t, 5, c.Attempts())
	assert.Equal(t, int32(5), hits.Load())
	mu.Lock()
	defer mu.Unlock()
	for _, st := range states {
		assert.Equal(t, StateConnecting, st)
	}
}

func TestStopDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, BaseDelay: time.Hour}, nil, quietLogger())
	assert.Equal(t, StateIdle, c.State())
	require.NoError(t, c.Start(context.Background()))
	require.Error(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return c.State() == StateBackoff }, 2*time.Second, 5*time.Millisecond)
	c.Stop()
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, c.Attempts())
	assert.False(t, c.GaveUp())
}

func TestStopClosesLiveConnection(t *testing.T) {
	gone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(gone)
	}))
	defer srv.Close()

	c := New(fastConfig(srv.URL), nil, quietLogger())
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return c.State() == StateOpen }, 2*time.Second, 5*time.Millisecond)

	c.Stop()
	select {
	case <-gone:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe disconnect")
	}
	assert.Equal(t, StateClosed, c.State())
}

func TestSelfOriginSuppression(t *testing.T) {
	n := NewNotifier()
	var marks atomic.Int32
	unsub := n.Subscribe(func() { marks.Add(1) })
	defer unsub()

	c := New(Config{URL: "http://unused", SessionID: "me"}, n, quietLogger())
	var handled atomic.Int32
	c.On(events.KindIdeaCreated, func(events.Event) { handled.Add(1) })

	c.Dispatch(events.IdeaCreated("i1", "u1", "me"))
	assert.False(t, n.Available())
	assert.Equal(t, int32(1), handled.Load())

	c.Dispatch(events.IdeaDeleted("i2", "u2", "someone-else"))
	assert.True(t, n.Available())
	assert.Equal(t, int32(1), marks.Load())

	n.Clear()
	c.Dispatch(events.TagsGenerated("i1", "u1", nil))
	assert.False(t, n.Available())
}

func TestDispatchIgnoresUnknownAndPanics(t *testing.T) {
	c := New(Config{URL: "http://unused"}, nil, quietLogger())
	var after bool
	c.On(events.KindPing, func(events.Event) { panic("boom") })
	c.On(events.KindPing, func(events.Event) { after = true })

	assert.NotPanics(t, func() {
		c.Dispatch(events.Event{Type: "future-kind"})
		c.Dispatch(events.Ping())
	})
	assert.True(t, after)
}

func TestStreamEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		own := r.Header.Get(SessionHeader)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
		fmt.Fprintf(w, "data: {\"type\":\"idea-created\",\"ideaId\":\"mine\",\"userId\":\"u\",\"sessionId\":%q}\n\n", own)
		fmt.Fprint(w, ": comment\n\n")
		fmt.Fprint(w, "data: {\"type\":\"idea-created\",\"ideaId\":\"theirs\",\"userId\":\"u\",\"sessionId\":\"other\"}\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(fastConfig(srv.URL), nil, quietLogger())
	var (
		mu   sync.Mutex
		seen []string
	)
	c.On(events.KindIdeaCreated, func(e events.Event) {
		mu.Lock()
		seen = append(seen, e.IdeaID)
		mu.Unlock()
	})
	var marks atomic.Int32
	c.Notifier().Subscribe(func() { marks.Add(1) })

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"mine", "theirs"}, seen)
	assert.Equal(t, int32(1), marks.Load())
	assert.True(t, c.Notifier().Available())
}
