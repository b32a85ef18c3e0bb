package internal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webdevcody/youtube-video-suggestions/internal/api"
	"github.com/webdevcody/youtube-video-suggestions/internal/events"
	"github.com/webdevcody/youtube-video-suggestions/internal/sseclient"
)

// ErrGaveUp is returned by RunWatch when the stream could not be reopened.
var ErrGaveUp = errors.New("event stream unavailable, gave up reconnecting")

// WatchOptions configures RunWatch.
type WatchOptions struct {
	URL        string
	Token      string // sent as a bearer token when set
	UserID     string // sent as X-User-ID when set
	Email      string // sent as X-User-Email when set
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	LogLevel   slog.Level
	LogOutput  io.Writer
}

// RunWatch follows the event stream at opts.URL and logs every event until
// a signal arrives, ctx ends, or the controller gives up.
func RunWatch(ctx context.Context, opts WatchOptions) error {
	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := newLogger(out, opts.LogLevel)

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	if opts.UserID != "" {
		header.Set(api.HeaderUserID, opts.UserID)
	}
	if opts.Email != "" {
		header.Set(api.HeaderUserEmail, opts.Email)
	}

	notifier := sseclient.NewNotifier()
	unsubscribe := notifier.Subscribe(func() {
		logger.Info("new ideas available")
	})
	defer unsubscribe()

	ctrl := sseclient.New(sseclient.Config{
		URL:        opts.URL,
		Header:     header,
		BaseDelay:  opts.BaseDelay,
		MaxDelay:   opts.MaxDelay,
		MaxRetries: opts.MaxRetries,
	}, notifier, logger)

	logEvent := func(e events.Event) {
		attrs := []any{slog.String("type", string(e.Type))}
		if e.IdeaID != "" {
			attrs = append(attrs, slog.String("idea_id", e.IdeaID))
		}
		if e.UserID != "" {
			attrs = append(attrs, slog.String("user_id", e.UserID))
		}
		if len(e.Tags) > 0 {
			names := make([]string, len(e.Tags))
			for i, t := range e.Tags {
				names[i] = t.Name
			}
			attrs = append(attrs, slog.Any("tags", names))
		}
		logger.Info("event", attrs...)
	}
	for _, k := range []events.Kind{events.KindConnected, events.KindTagsGenerated, events.KindIdeaCreated, events.KindIdeaDeleted} {
		ctrl.On(k, logEvent)
	}
	ctrl.On(events.KindPing, func(events.Event) { logger.Debug("keepalive") })

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Watching event stream", slog.String("url", opts.URL))
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		ctrl.Stop()
		logger.Info("Watcher stopped")
		return nil
	case <-ctrl.Done():
		if ctrl.GaveUp() {
			return ErrGaveUp
		}
		return nil
	}
}
