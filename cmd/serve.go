package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/drivehop/drivehop/internal/drives"
	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/repositories"
	"github.com/drivehop/drivehop/internal/server"
	"github.com/drivehop/drivehop/internal/sessions"
	"github.com/drivehop/drivehop/internal/shared"
	"github.com/drivehop/drivehop/internal/tasks"
)

// Serve wires the daemon together and runs it until interrupted: the
// orchestrator's run loop and the message bridge share one lifetime, so
// either failing shuts both down.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	if err := config.Validate(); err != nil {
		return err
	}

	addr := config.Bridge.Addr()
	if override := cmd.String("addr"); override != "" {
		addr = override
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	taskRepo := repositories.NewTaskRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)

	push := sessions.NewPushSource()
	store := sessions.NewStore(sessionRepo, sessions.FromConfig(config, push), r.logger)
	store.SetPushSource(push)

	if config.Session.AutoGetCookie {
		for _, provider := range models.Providers() {
			if _, err := store.Refresh(ctx, provider); err != nil {
				r.logger.Warn("no session at startup", "provider", provider, "error", err)
			}
		}
	}

	source := drives.NewQuarkDrive(drives.QuarkDriveOpts{
		Timeout:      config.HTTP.Timeout(),
		Token:        store.TokenFunc(models.ProviderQuark),
		PollInterval: config.Transfer.PollInterval(),
		MaxPolls:     config.Transfer.MaxPollRetries,
		Logger:       r.logger,
	})
	dest := drives.NewBaiduDrive(drives.BaiduDriveOpts{
		Timeout: config.HTTP.Timeout(),
		Token:   store.TokenFunc(models.ProviderBaidu),
		Logger:  r.logger,
	})

	orchestrator := tasks.NewOrchestrator(tasks.OrchestratorOpts{
		Store:    taskRepo,
		Source:   source,
		Dest:     dest,
		Sessions: store,
		Transfer: config.Transfer,
		Folders: tasks.Folders{
			Source:      config.Quark.DefaultFolder,
			Destination: config.Baidu.DefaultFolder,
		},
		Logger: r.logger,
	})

	configPath := cmd.String("config")
	if configPath == "" {
		configPath = r.configPath
	}

	bridge := server.NewBridge(server.BridgeOpts{
		Orchestrator: orchestrator,
		Sessions:     store,
		Config:       config,
		ConfigPath:   configPath,
		Logger:       r.logger,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("daemon starting", "addr", addr, "database", config.Database.Path)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return orchestrator.Run(ctx) })
	group.Go(func() error { return bridge.Run(ctx, addr) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	r.logger.Info("daemon stopped")
	return nil
}
