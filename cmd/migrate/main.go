package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Skotchmaster/compliance_api/internal/config"
	"github.com/Skotchmaster/compliance_api/internal/migrate"
	"github.com/Skotchmaster/compliance_api/pkg/logging"
)

func main() {
	list := flag.Bool("list", false, "print embedded migrations and exit")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Parse()

	if *list {
		names, err := migrate.List(migrate.Migrations())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)

	if err := run(cfg.DatabaseURL, *timeout, logger); err != nil {
		logger.Error("migrate_failed", "error", err)
		os.Exit(1)
	}
}

func run(dsn string, timeout time.Duration, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sqlDB, err := migrate.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	applied, err := migrate.Up(ctx, sqlDB, migrate.Migrations(), logger)
	if err != nil {
		return err
	}
	logger.Info("migrate_done", "applied", len(applied))
	return nil
}
