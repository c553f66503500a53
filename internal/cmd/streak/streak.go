// Package streak parses streak service flags and launches the service.
package streak

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/morningpages/streakd/internal/platform/cmd"
	streakserver "github.com/morningpages/streakd/internal/services/streak"
)

// Config holds streak command configuration.
type Config struct {
	Port   int    `env:"STREAKD_PORT" envDefault:"8080"`
	DBPath string `env:"STREAKD_DB_PATH" envDefault:"data/streak.db"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The streak HTTP server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the streak SQLite database")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the streak HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceStreak, func(context.Context) error {
		return streakserver.Run(ctx, streakserver.Config{
			HTTPAddr: fmt.Sprintf(":%d", cfg.Port),
			DBPath:   cfg.DBPath,
		})
	})
}
