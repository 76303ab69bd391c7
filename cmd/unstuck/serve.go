package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/unstuck-app/unstuck/internal/auth"
	"github.com/unstuck-app/unstuck/internal/config"
	"github.com/unstuck-app/unstuck/internal/genai"
	"github.com/unstuck-app/unstuck/internal/server"
	"github.com/unstuck-app/unstuck/internal/store"
	"github.com/unstuck-app/unstuck/internal/task"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func newGenerativeClient(cfg *config.Config) (genai.Generator, error) {
	client, err := genai.NewClient(genai.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	logger := log.New(os.Stdout, "", 0)

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = store.DefaultPath()
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	handle := genai.NewHandle(nil)
	if gen, err := newGenerativeClient(cfg); err != nil {
		if !errors.Is(err, genai.ErrNotConfigured) {
			return fmt.Errorf("create generative client: %w", err)
		}
		color.Yellow("generative client not configured; pipeline endpoints are disabled until a key is set")
	} else {
		handle.Swap(gen)
	}

	var provider auth.IdentityProvider
	if cfg.Auth.ProviderURL != "" {
		provider = auth.NewHTTPProvider(cfg.Auth.ProviderURL)
	} else {
		color.Yellow("no identity provider configured; /auth/callback is disabled")
	}
	authSvc := auth.NewService(db, provider, cfg.Auth.SessionTTL)

	tasks := task.NewStore(db)
	srv := server.New(cfg, logger, tasks, authSvc, handle)

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}

	stopWatch, err := watchConfig(logger, handle)
	if err != nil {
		logger.Printf(`{"level":"warn","msg":"config_watch_failed","error":%q}`, err.Error())
	} else {
		defer stopWatch()
	}

	color.Green("unstuck listening on %s (db: %s)", cfg.Server.Addr, dbPath)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-sigCh:
		color.Yellow("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// watchConfig watches the user and project config files and swaps in a
// fresh generative client when either changes, so an operator can add
// or rotate the API key without a restart.
//
// The watch is on the containing directories, filtered by file name.
// Editors replace a config file by renaming a temp file over it, which
// silently drops a watch held on the file itself, and a file that does
// not exist yet cannot be watched at all.
func watchConfig(logger *log.Logger, handle *genai.Handle) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	targets := map[string]bool{}
	addTarget := func(path string) {
		if path == "" {
			return
		}
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return
		}
		if err := watcher.Add(dir); err != nil {
			return
		}
		targets[filepath.Clean(path)] = true
	}
	addTarget(config.GetUserConfigPath())
	addTarget(config.GetProjectConfigPath())

	if len(targets) == 0 {
		watcher.Close()
		return func() {}, nil
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !targets[filepath.Clean(event.Name)] {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}

				cfg, err := config.Load()
				if err != nil {
					logger.Printf(`{"level":"warn","msg":"config_reload_failed","error":%q}`, err.Error())
					continue
				}
				gen, err := newGenerativeClient(cfg)
				if err != nil {
					if !errors.Is(err, genai.ErrNotConfigured) {
						logger.Printf(`{"level":"warn","msg":"config_reload_failed","error":%q}`, err.Error())
					}
					continue
				}
				handle.Swap(gen)
				logger.Printf(`{"level":"info","msg":"generative_client_reloaded"}`)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Printf(`{"level":"warn","msg":"config_watch_error","error":%q}`, err.Error())
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
