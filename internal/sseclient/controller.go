// Package sseclient consumes the idea board event stream with automatic
// reconnection and self-origin suppression.
package sseclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webdevcody/youtube-video-suggestions/internal/events"
)

// SessionHeader carries the client session id on requests to the server.
const SessionHeader = "X-Session-ID"

// State is the connection state of a Controller.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateBackoff
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config configures a Controller.
type Config struct {
	URL        string
	SessionID  string // generated when empty
	Header     http.Header
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// Handler receives a dispatched event.
type Handler func(events.Event)

// Controller keeps one event stream open, reconnecting with capped
// exponential backoff. It gives up after MaxRetries consecutive failures
// and stays down until Start is called again.
type Controller struct {
	cfg      Config
	notifier *Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	handlers map[events.Kind][]Handler
	state    State
	retries  int
	attempts int
	gaveUp   bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates an idle controller. notifier may be nil.
func New(cfg Config, notifier *Notifier, logger *slog.Logger) *Controller {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if notifier == nil {
		notifier = NewNotifier()
	}
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)
	return &Controller{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger.With(slog.String("session_id", cfg.SessionID)),
		handlers: make(map[events.Kind][]Handler),
		done:     done,
	}
}

// SessionID is the id this client stamps on its own mutations.
func (c *Controller) SessionID() string { return c.cfg.SessionID }

// Notifier returns the "new ideas available" notifier.
func (c *Controller) Notifier() *Notifier { return c.notifier }

// On registers h for events of kind.
func (c *Controller) On(kind events.Kind, h Handler) {
	c.mu.Lock()
	c.handlers[kind] = append(c.handlers[kind], h)
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of connection attempts since the last Start.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// GaveUp reports whether the controller stopped after exhausting its retries.
func (c *Controller) GaveUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gaveUp
}

// Done is closed once the connection loop has exited.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Start begins connecting. Calling Start on a controller that has given up
// or been stopped resets its retry budget.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return errors.New("sseclient: already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.retries = 0
	c.attempts = 0
	c.gaveUp = false
	c.done = make(chan struct{})
	go c.run(loopCtx, c.done)
	return nil
}

// Stop cancels any pending reconnect, closes the live connection and waits
// for the loop to exit.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-done
}

// Delay returns the wait before reconnecting after the retry-th consecutive failure.
func (c *Controller) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := c.cfg.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= c.cfg.MaxDelay {
			return c.cfg.MaxDelay
		}
	}
	if d > c.cfg.MaxDelay {
		return c.cfg.MaxDelay
	}
	return d
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.state = StateClosed
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.mu.Unlock()
		close(done)
	}()

	for {
		c.mu.Lock()
		c.state = StateConnecting
		c.attempts++
		c.mu.Unlock()

		err := c.connect(ctx)
		if ctx.Err() != nil {
			c.logger.Info("sseclient: closed")
			return
		}

		c.mu.Lock()
		c.retries++
		retries := c.retries
		if retries >= c.cfg.MaxRetries {
			c.gaveUp = true
			c.mu.Unlock()
			c.logger.Error("sseclient: giving up after consecutive failures",
				slog.Int("failures", retries),
				slog.String("error", errString(err)))
			return
		}
		c.state = StateBackoff
		c.mu.Unlock()

		delay := c.Delay(retries)
		c.logger.Warn("sseclient: connection lost, reconnecting",
			slog.Int("retry", retries),
			slog.Duration("delay", delay),
			slog.String("error", errString(err)))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("sseclient: closed")
			return
		case <-timer.C:
		}
	}
}

// connect runs one connection until it fails or ctx ends.
func (c *Controller) connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	for k, vs := range c.cfg.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set(SessionHeader, c.cfg.SessionID)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sseclient: unexpected status %d", resp.StatusCode)
	}
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mt != "text/event-stream" {
		return fmt.Errorf("sseclient: unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	return c.read(resp.Body)
}

// markOpen is called on the server's connected frame. Only then does the
// stream count as open and the failure count start over.
func (c *Controller) markOpen() {
	c.mu.Lock()
	if c.state == StateOpen {
		c.mu.Unlock()
		return
	}
	c.state = StateOpen
	c.retries = 0
	c.mu.Unlock()
	c.logger.Info("sseclient: stream open", slog.String("url", c.cfg.URL))
}

// read parses data frames until the body ends.
func (c *Controller) read(body io.Reader) error {
	r := bufio.NewReader(body)
	var data strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("sseclient: server closed stream")
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() > 0 {
				c.dispatchRaw(data.String())
				data.Reset()
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

func (c *Controller) dispatchRaw(payload string) {
	var e events.Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		c.logger.Warn("sseclient: malformed frame", slog.String("error", err.Error()))
		return
	}
	if e.Type == events.KindConnected {
		c.markOpen()
	}
	c.Dispatch(e)
}

// Dispatch routes e to its handlers and raises the notifier for lifecycle
// events that another session caused.
func (c *Controller) Dispatch(e events.Event) {
	if e.IsLifecycle() && e.SessionID != c.cfg.SessionID {
		c.notifier.Mark()
	}

	c.mu.Lock()
	hs := append([]Handler(nil), c.handlers[e.Type]...)
	c.mu.Unlock()

	if len(hs) == 0 && !knownKind(e.Type) {
		c.logger.Debug("sseclient: ignoring unknown event", slog.String("type", string(e.Type)))
		return
	}
	for _, h := range hs {
		c.call(h, e)
	}
}

func (c *Controller) call(h Handler, e events.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("sseclient: handler panicked",
				slog.String("type", string(e.Type)),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()
	h(e)
}

func knownKind(k events.Kind) bool {
	switch k {
	case events.KindConnected, events.KindPing, events.KindTagsGenerated,
		events.KindIdeaCreated, events.KindIdeaDeleted:
		return true
	}
	return false
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
