// Package sse streams idea board events to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/webdevcody/youtube-video-suggestions/internal/events"
	"github.com/webdevcody/youtube-video-suggestions/internal/metrics"
)

// Config tunes stream connections.
type Config struct {
	KeepAlive    time.Duration // ping interval
	ClientBuffer int           // frames queued per connection before drops
	WriteTimeout time.Duration // deadline for a single frame write
}

// Broker serves the event stream. Every open connection subscribes to the
// bus on its own and receives every published stream event.
type Broker struct {
	bus    *events.Bus
	cfg    Config
	logger *slog.Logger

	clients atomic.Int64
	done    chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker over bus.
func NewBroker(bus *events.Bus, cfg Config, logger *slog.Logger) *Broker {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		bus:    bus,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// ClientCount returns the number of open stream connections.
func (b *Broker) ClientCount() int {
	return int(b.clients.Load())
}

// Close ends every open stream and rejects new ones. Call it before
// http.Server.Shutdown so streaming handlers return.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.done)
	}
}

// Encode frames e as a single `data: <json>\n\n` message.
func Encode(e events.Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("sse: marshal event: %w", err)
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}

// ServeHTTP is the stream endpoint handler (GET /api/events/*).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.closed.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	if ctx.Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	log := b.logger.With(slog.String("stream_id", uuid.NewString()))

	if err := b.send(rc, w, events.Connected()); err != nil {
		log.Warn("sse: failed to send connected frame", slog.String("error", err.Error()))
		return
	}

	frames := make(chan []byte, b.cfg.ClientBuffer)
	unsubscribe := b.bus.Subscribe(func(e events.Event) {
		frame, err := Encode(e)
		if err != nil {
			log.Warn("sse: encode failed", slog.String("type", string(e.Type)), slog.String("error", err.Error()))
			return
		}
		select {
		case frames <- frame:
		default:
			metrics.EventsDropped.Inc()
			log.Warn("sse: client buffer full, dropping event", slog.String("type", string(e.Type)))
		}
	}, events.StreamKinds...)
	defer unsubscribe()

	b.clients.Add(1)
	metrics.OpenStreams.Inc()
	defer func() {
		b.clients.Add(-1)
		metrics.OpenStreams.Dec()
	}()

	keepAlive := time.NewTicker(b.cfg.KeepAlive)
	defer keepAlive.Stop()

	log.Debug("sse: stream opened", slog.String("remote", r.RemoteAddr))
	for {
		select {
		case <-ctx.Done():
			log.Debug("sse: client disconnected")
			return

		case <-b.done:
			log.Debug("sse: stream closed by server")
			return

		case frame := <-frames:
			if err := b.write(rc, w, frame); err != nil {
				log.Info("sse: client disconnected during send", slog.String("error", err.Error()))
				return
			}

		case <-keepAlive.C:
			if err := b.send(rc, w, events.Ping()); err != nil {
				log.Info("sse: client disconnected during keep-alive", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (b *Broker) send(rc *http.ResponseController, w http.ResponseWriter, e events.Event) error {
	frame, err := Encode(e)
	if err != nil {
		return err
	}
	return b.write(rc, w, frame)
}

func (b *Broker) write(rc *http.ResponseController, w http.ResponseWriter, frame []byte) error {
	// Not every ResponseWriter supports deadlines; httptest's recorder does not.
	_ = rc.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout))
	if _, err := w.Write(frame); err != nil {
		return err
	}
	return rc.Flush()
}
