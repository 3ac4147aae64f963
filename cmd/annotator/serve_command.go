package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/bdougie/annotator/internal/server"
	"github.com/bdougie/annotator/internal/service"
	"github.com/bdougie/annotator/internal/storage"
)

const lockFileName = "annotator.lock"

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var secureCookies bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the annotation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			if storage.UsesDataDir(cfg) {
				if err := cfg.EnsureDirectories(); err != nil {
					return err
				}
				lockPath := filepath.Join(cfg.Paths.DataDir, lockFileName)
				lock := flock.New(lockPath)
				ok, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire lock: %w", err)
				}
				if !ok {
					return errors.New("another annotator server is already using " + cfg.Paths.DataDir)
				}
				defer func() {
					if err := lock.Unlock(); err != nil {
						logger.Warn("failed to release data dir lock", slog.String("error", err.Error()))
					}
				}()
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := service.Build(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Close(); err != nil {
					logger.Warn("failed to close service", slog.String("error", err.Error()))
				}
			}()

			srv, err := server.New(svc, server.Options{
				Bind:            cfg.Server.Bind,
				SecretKey:       cfg.Server.SecretKey,
				SessionLifetime: time.Duration(cfg.Server.SessionLifetimeDays) * 24 * time.Hour,
				SecureCookies:   secureCookies,
				ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second,
			}, logger.With(slog.String("component", "api")))
			if err != nil {
				return err
			}

			logger.Info("annotator server starting",
				slog.String("config", ctx.configPath),
				slog.String("storage", cfg.Storage.Backend),
				slog.String("reservation", cfg.Reservation.Backend),
				slog.Int("annotators_per_clip", cfg.Distribution.AnnotatorsPerClip),
				slog.Int("clips_per_block", cfg.Distribution.ClipsPerBlock))

			if err := srv.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override the configured listen address")
	cmd.Flags().BoolVar(&secureCookies, "secure-cookies", false, "Mark the identity cookie Secure (HTTPS deployments)")
	return cmd
}
