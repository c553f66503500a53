// Package main provides the streak operator CLI.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	streakadmin "github.com/morningpages/streakd/internal/cmd/streakadmin"
	"github.com/morningpages/streakd/internal/platform/config"
)

func main() {
	cfg, err := streakadmin.ParseConfig(flag.CommandLine, os.Args[1:], os.Getenv)
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := streakadmin.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("Error: %v", err)
	}
}
