// cronkeeperd — HTTP сервис управления задачами crontab.
//
// При старте сверяет реестр задач с crontab, затем обслуживает API.
//
// Использование:
//
//	cronkeeperd [--config cronkeeper.toml] [--reconcile-only]
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/cronkeeper/internal/api"
	"github.com/shaiso/cronkeeper/internal/config"
	"github.com/shaiso/cronkeeper/internal/crontab"
	"github.com/shaiso/cronkeeper/internal/jobs"
	"github.com/shaiso/cronkeeper/internal/mq"
	"github.com/shaiso/cronkeeper/internal/reconcile"
	"github.com/shaiso/cronkeeper/internal/repo"
	"github.com/shaiso/cronkeeper/internal/scriptstore"
	"github.com/shaiso/cronkeeper/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var configPath string
	var reconcileOnly bool

	rootCmd := &cobra.Command{
		Use:           "cronkeeperd",
		Short:         "cronkeeper service: crontab job registry with HTTP API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if errs := cfg.Validate(); len(errs) > 0 {
				return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
			}

			logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
			logger.Info("starting cronkeeperd", "version", version, "scheduler_mode", cfg.Scheduler.Mode)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return run(ctx, cfg, logger, reconcileOnly)
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", os.Getenv("CRONKEEPER_CONFIG"), "Path to TOML config file")
	rootCmd.Flags().BoolVar(&reconcileOnly, "reconcile-only", false, "Reconcile registry and crontab, then exit")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, reconcileOnly bool) error {
	// Реестр задач
	store, err := repo.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open job registry: %w", err)
	}
	defer store.Close()
	logger.Info("job registry opened")

	// Доступ к crontab и хранилище скриптов
	transport, scripts, err := newSchedulerBackend(cfg, logger)
	if err != nil {
		return err
	}
	scheduler := crontab.NewScheduler(transport, logger)
	logger.Info("crontab transport ready", "transport", transport.String())

	// События (необязательно)
	var publisher jobs.Publisher
	if cfg.AMQP.URL != "" {
		conn, err := mq.NewConnection(mq.ConnectionConfig{
			URL:       cfg.AMQP.URL,
			Name:      "cronkeeperd",
			Policy:    mq.DaemonPolicy,
			OnConnect: mq.DeclareTopology,
			Logger:    logger,
		})
		if err != nil {
			logger.Warn("RabbitMQ unavailable, job events disabled", "error", err)
		} else {
			defer conn.Close()
			logger.Debug(mq.TopologyInfo())
			publisher = mq.NewPublisher(conn, logger)
		}
	}

	// Сверка и API меняют crontab под одной блокировкой
	var mu sync.Mutex

	// Сверка до начала приёма запросов. Ошибка не мешает старту.
	reconciler := reconcile.New(reconcile.Config{
		Store:     store,
		Scheduler: scheduler,
		Scripts:   scripts,
		Publisher: publisher,
		Logger:    logger,
		Lock:      &mu,
	})
	if _, err := reconciler.Run(ctx); err != nil {
		logger.Error("startup reconciliation failed", "error", err)
	}
	if reconcileOnly {
		return nil
	}

	if interval := cfg.Reconcile.Interval.Duration; interval > 0 {
		go reconciler.Loop(ctx, interval)
	}

	opts := []jobs.Option{jobs.WithLogger(logger), jobs.WithLock(&mu)}
	if publisher != nil {
		opts = append(opts, jobs.WithPublisher(publisher))
	}
	service := jobs.NewService(store, scheduler, scripts, opts...)

	mux := http.NewServeMux()
	api.NewHandler(api.Config{Jobs: service, Logger: logger}).RegisterRoutes(mux)

	return serve(ctx, cfg.HTTP.Addr, mux, logger)
}

// newSchedulerBackend выбирает транспорт crontab и настраивает хранилище скриптов.
func newSchedulerBackend(cfg *config.Config, logger *slog.Logger) (crontab.Transport, *scriptstore.Store, error) {
	storeOpts := []scriptstore.Option{scriptstore.WithLogger(logger)}

	switch cfg.Scheduler.Mode {
	case config.ModeRemote:
		r := cfg.Scheduler.Remote
		remote, err := crontab.NewRemoteTransport(crontab.RemoteConfig{
			Host:           r.Host,
			Port:           r.Port,
			User:           r.User,
			KeyFile:        r.KeyFile,
			KnownHostsFile: r.KnownHostsFile,
			StrictHostKeys: r.StrictHostKeys,
			ScriptPrefix:   r.ScriptPrefix,
			Logger:         logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("remote scheduler: %w", err)
		}
		if r.UploadScripts {
			storeOpts = append(storeOpts, scriptstore.WithMirror(scriptstore.NewSFTPMirror(remote)))
		}
		return remote, scriptstore.NewOS(cfg.Scripts.Dir, remote.ScriptPrefix(), storeOpts...), nil

	case config.ModeMemory:
		logger.Warn("memory scheduler mode: crontab changes are not persisted")
		return crontab.NewMemoryTransport(""), scriptstore.NewOS(cfg.Scripts.Dir, "", storeOpts...), nil

	default:
		return crontab.NewLocalTransport(cfg.Scheduler.User), scriptstore.NewOS(cfg.Scripts.Dir, "", storeOpts...), nil
	}
}

// serve запускает HTTP сервер и останавливает его по отмене ctx.
func serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
	return nil
}
