package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"

	"github.com/davidleathers/deepguard-backend/internal/infrastructure/config"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/database"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/telemetry"
)

// runner is the subset of *migrate.Migrate the actions use
type runner interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		action     = flag.String("action", "up", "Migration action: up, down, status, force")
		steps      = flag.Int("steps", 0, "Number of migrations to apply or revert (0 = all)")
		version    = flag.Int("version", -1, "Version to record (for force action)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := telemetry.SetupLogger(cfg.LogLevel)

	if cfg.Database.URL == "" {
		logger.Error("database.url is not configured")
		os.Exit(1)
	}

	m, err := database.NewMigrator(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to open migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := execute(m, *action, *steps, *version, os.Stdout); err != nil {
		logger.Error("migration failed", "action", *action, "error", err)
		os.Exit(1)
	}
	logger.Info("migration finished", "action", *action)
}

func execute(m runner, action string, steps, version int, out io.Writer) error {
	var err error
	switch action {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "status":
		return printStatus(m, out)
	case "force":
		if version < 0 {
			return errors.New("force requires -version")
		}
		err = m.Force(version)
	default:
		return fmt.Errorf("unknown action %q", action)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(out, "no change")
		return nil
	}
	if err != nil {
		return err
	}
	return printStatus(m, out)
}

func printStatus(m runner, out io.Writer) error {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintln(out, "version: none")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "version: %d dirty: %t\n", v, dirty)
	return nil
}
