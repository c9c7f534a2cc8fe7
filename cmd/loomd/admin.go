package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	loomnats "github.com/loomhq/loom/internal/adapter/nats"
	"github.com/loomhq/loom/internal/adapter/postgres"
	"github.com/loomhq/loom/internal/config"
	"github.com/loomhq/loom/internal/domain"
	"github.com/loomhq/loom/internal/domain/workspace"
	"github.com/loomhq/loom/internal/port/messagequeue"
	"github.com/loomhq/loom/internal/port/provider"
	"github.com/loomhq/loom/internal/service"
)

// runAdmin dispatches admin subcommands (list-workspaces, erase, erase-all,
// providers, migrate-status).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "list-workspaces":
		return runAdminListWorkspaces(args[1:])
	case "erase":
		return runAdminErase(args[1:])
	case "erase-all":
		return runAdminEraseAll(args[1:])
	case "providers":
		return runAdminProviders(args[1:])
	case "migrate-status":
		return runAdminMigrateStatus(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: loomd admin <command> [options]

Commands:
  list-workspaces   List all bound workspaces
  erase             Erase a workspace and its persisted data
  erase-all         Erase every bound workspace
  providers         List registered workspace providers
  migrate-status    Show the current database migration version
  help              Show this help message

Examples:
  loomd admin list-workspaces
  loomd admin erase --id my-workspace
  loomd admin erase-all --yes
  loomd admin providers
`)
}

// loadAdminDeps builds a workspace manager over the configured store.
// NATS is optional here: without a broker only queue-dependent providers
// become unavailable.
func loadAdminDeps(ctx context.Context) (*service.Manager, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	var (
		queue messagequeue.Queue
		nq    *loomnats.Queue
	)
	nq, err = loomnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		if cfg.Store.Backend == "nats" {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		slog.Warn("nats unavailable, queue-dependent providers disabled", "error", err)
		nq = nil
	}
	if nq != nil {
		queue = nq
	}

	db, dbClose, err := openStore(ctx, cfg, nq)
	if err != nil {
		if nq != nil {
			_ = nq.Close()
		}
		return nil, nil, err
	}

	log := adminLogger()
	manager := service.NewManager(db, queue, log, service.ManagerOptions{
		EraseParallelism:   cfg.Workspace.EraseParallelism,
		BreakerMaxFailures: cfg.Breaker.MaxFailures,
		BreakerTimeout:     cfg.Breaker.Timeout,
	})

	cleanup := func() {
		dbClose()
		if nq != nil {
			_ = nq.Close()
		}
	}
	return manager, cleanup, nil
}

// adminLogger builds a quiet stderr logger for admin commands.
func adminLogger() *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
	return slog.New(h)
}

func runAdminListWorkspaces(args []string) error {
	fs := flag.NewFlagSet("list-workspaces", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	manager, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	ids, err := manager.ListWorkspaces(ctx)
	if err != nil {
		return fmt.Errorf("list workspaces: %w", err)
	}

	if len(ids) == 0 {
		fmt.Println("No workspaces found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WORKSPACE")
	for _, id := range ids {
		_, _ = fmt.Fprintf(w, "%s\n", id)
	}
	return w.Flush()
}

func runAdminErase(args []string) error {
	fs := flag.NewFlagSet("erase", flag.ContinueOnError)
	id := fs.String("id", "", "workspace id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	ctx := context.Background()
	manager, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	// Bring the workspace up first so its provider data is wiped, not just
	// the binding. A dangling binding to an unregistered provider is still
	// erasable.
	if _, err := manager.GetOrCreate(ctx, *id, workspace.OpenOptions{}); err != nil {
		if !errors.Is(err, domain.ErrProviderNotFound) {
			return fmt.Errorf("open workspace: %w", err)
		}
		slog.Warn("provider unavailable, erasing binding only", "workspace", *id)
	}

	if err := manager.EraseWorkspace(ctx, *id); err != nil {
		return fmt.Errorf("erase workspace: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Workspace %s erased\n", *id)
	return nil
}

func runAdminEraseAll(args []string) error {
	fs := flag.NewFlagSet("erase-all", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "skip confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("erase-all is destructive, pass --yes to confirm")
	}

	ctx := context.Background()
	manager, cleanup, err := loadAdminDeps(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	ids, err := manager.ListWorkspaces(ctx)
	if err != nil {
		return fmt.Errorf("list workspaces: %w", err)
	}

	// Best effort: open each workspace so provider data is erased too.
	for _, id := range ids {
		if _, err := manager.GetOrCreate(ctx, id, workspace.OpenOptions{}); err != nil {
			slog.Warn("open failed, erasing binding only", "workspace", id, "error", err)
		}
	}

	if err := manager.EraseAllWorkspaces(ctx); err != nil {
		return fmt.Errorf("erase all: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Erased %d workspace(s)\n", len(ids))
	return nil
}

func runAdminProviders(args []string) error {
	fs := flag.NewFlagSet("providers", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER")
	for _, id := range provider.Available() {
		_, _ = fmt.Fprintf(w, "%s\n", id)
	}
	return w.Flush()
}

func runAdminMigrateStatus(args []string) error {
	fs := flag.NewFlagSet("migrate-status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Store.Backend != "postgres" {
		return fmt.Errorf("migrate-status requires the postgres backend, configured: %s", cfg.Store.Backend)
	}

	version, err := postgres.MigrationVersion(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}

	fmt.Printf("migration version: %d\n", version)
	return nil
}
