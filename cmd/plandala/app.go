package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/plandala/internal/blob"
	"github.com/zulandar/plandala/internal/config"
	"github.com/zulandar/plandala/internal/db"
	"github.com/zulandar/plandala/internal/identity"
	"github.com/zulandar/plandala/internal/notify"
	"github.com/zulandar/plandala/internal/projection"
	"github.com/zulandar/plandala/internal/store"
	"github.com/zulandar/plandala/internal/upload"
	"gorm.io/gorm"
)

// projectionTimeout bounds the wait for the first task push.
const projectionTimeout = 10 * time.Second

// buildDispatcher is replaced in tests.
var buildDispatcher = notify.FromConfig

// commonFlags are registered on every command that touches the board.
type commonFlags struct {
	configPath   string
	identityPath string
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "plandala.yaml", "path to Plandala config file")
	cmd.Flags().StringVar(&f.identityPath, "identity", "", "path to the identity file (default: user config dir)")
}

// app is the wired core a CLI command runs against.
type app struct {
	cfg   *config.Config
	db    *gorm.DB
	store *store.GormStore
}

// openApp loads config, connects, and migrates.
func openApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return &app{
		cfg:   cfg,
		db:    gormDB,
		store: store.NewGormStore(gormDB, store.Options{PollInterval: cfg.Realtime.PollInterval}),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (a *app) disk() (*blob.Disk, error) {
	return blob.NewDisk(a.cfg.Storage.Root, a.cfg.Connection.StorageBucket, a.cfg.Storage.BaseURL, a.cfg.Storage.QuotaBytes)
}

func (a *app) orchestrator(dst blob.Store) *upload.Orchestrator {
	return upload.New(dst, upload.Config{
		Watchdog: upload.WatchdogConfig{
			StallTimeout:       a.cfg.Upload.StallTimeout,
			StallCheckInterval: a.cfg.Upload.StallCheckInterval,
		},
	})
}

func (a *app) notifier() *notify.Dispatcher {
	d, err := buildDispatcher(a.cfg.Notify)
	if err != nil {
		log.Printf("notify: %v", err)
		return notify.NewDispatcher()
	}
	return d
}

// projection opens the task projection and waits for its first push.
func (a *app) projection(ctx context.Context) (*projection.Cache, func(), error) {
	cache := projection.New(a.store)
	ready := make(chan struct{}, 1)
	release := cache.Observe(func() {
		select {
		case ready <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(ctx, projectionTimeout)
	defer cancel()
	select {
	case <-ready:
	case <-ctx.Done():
		release()
		return nil, nil, fmt.Errorf("wait for tasks: %w", ctx.Err())
	}
	if err := cache.Err(); err != nil {
		release()
		return nil, nil, err
	}
	return cache, release, nil
}

// requireIdentity returns the saved display name, prompting for one when
// none is set.
func requireIdentity(cmd *cobra.Command, path string) (string, error) {
	svc, err := identity.New(path)
	if err != nil {
		return "", err
	}
	name, err := svc.Name()
	if err != nil || name != "" {
		return name, err
	}
	out := cmd.ErrOrStderr()
	if f, ok := cmd.InOrStdin().(*os.File); ok {
		return svc.Require(f, out)
	}
	return svc.Prompt(cmd.InOrStdin(), out)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
