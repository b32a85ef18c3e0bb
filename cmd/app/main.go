package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/webdevcody/youtube-video-suggestions/internal"
	pkgconfig "github.com/webdevcody/youtube-video-suggestions/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(configPath, "", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}

	return nil
}

func watch(ctx context.Context, cmd *cli.Command) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	return internal.RunWatch(ctx, internal.WatchOptions{
		URL:        cmd.String("url"),
		Token:      cmd.String("token"),
		UserID:     cmd.String("user-id"),
		Email:      cmd.String("email"),
		BaseDelay:  cmd.Duration("base-delay"),
		MaxDelay:   cmd.Duration("max-delay"),
		MaxRetries: int(cmd.Int("max-retries")),
		LogLevel:   level,
	})
}

func main() {
	cmd := &cli.Command{
		Name:   "ideaboard",
		Usage:  "Video idea board with automatic tagging and live updates",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and event stream (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the idea board to an MCP client over stdio",
				Action: serveMCP,
			},
			{
				Name:   "watch",
				Usage:  "Follow a server's event stream and log every event",
				Action: watch,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "url",
						Usage:   "Event stream URL",
						Value:   "http://localhost:8080/api/events",
						Sources: cli.EnvVars("IDEABOARD_EVENTS_URL"),
					},
					&cli.StringFlag{
						Name:    "token",
						Usage:   "Bearer token for token auth mode",
						Sources: cli.EnvVars("IDEABOARD_TOKEN"),
					},
					&cli.StringFlag{
						Name:  "user-id",
						Usage: "X-User-ID header for proxy auth mode",
					},
					&cli.StringFlag{
						Name:  "email",
						Usage: "X-User-Email header for proxy auth mode",
					},
					&cli.DurationFlag{
						Name:  "base-delay",
						Usage: "First reconnect delay",
						Value: time.Second,
					},
					&cli.DurationFlag{
						Name:  "max-delay",
						Usage: "Reconnect delay cap",
						Value: 30 * time.Second,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Consecutive failures before giving up",
						Value: 5,
					},
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "debug, info, warn or error",
						Value: "info",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
