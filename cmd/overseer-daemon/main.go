// Overseer Daemon — ядро оркестрации агентных циклов.
//
// Демон:
//   - Восстанавливает состояние планировщика из Postgres
//   - Диспетчеризует executions с учётом зависимостей и приоритетов
//   - Пишет события в JSONL-журналы и транслирует их в RabbitMQ
//   - Чистит журнал координации по расписанию
//   - Слушает IPC-сокет для пробуждений из CLI
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Overseer/internal/bus"
	"github.com/shaiso/Overseer/internal/coordinator"
	"github.com/shaiso/Overseer/internal/engine"
	"github.com/shaiso/Overseer/internal/eventlog"
	"github.com/shaiso/Overseer/internal/ipc"
	"github.com/shaiso/Overseer/internal/mq"
	"github.com/shaiso/Overseer/internal/repo"
	"github.com/shaiso/Overseer/internal/scheduler"
	"github.com/shaiso/Overseer/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting overseer-daemon", "version", version)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := rootDir()
	if err := os.MkdirAll(root, 0o755); err != nil {
		logger.Error("failed to create root dir", "path", root, "error", err)
		os.Exit(1)
	}

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	execs := repo.NewExecutionRepo(pool)

	// Журнал координации + janitor
	coord, err := coordinator.New(root, logger)
	if err != nil {
		logger.Error("failed to open coordination log", "error", err)
		os.Exit(1)
	}

	janitor, err := coordinator.NewJanitor(coord, coordinator.JanitorConfig{Logger: logger})
	if err != nil {
		logger.Error("failed to create janitor", "error", err)
		os.Exit(1)
	}
	janitor.Start()
	defer janitor.Stop()

	// Шина событий + JSONL-журнал
	eventBus := bus.New()

	logWriter := eventlog.NewWriter(root, logger)
	go func() {
		if err := logWriter.Run(ctx, eventBus.Subscribe(0)); err != nil {
			logger.Error("event log writer failed", "error", err)
			cancel()
		}
	}()

	// RabbitMQ-трансляция (опциональна: без брокера события
	// остаются в JSONL-журнале)
	if mqConn, err := mq.Connect(mq.URLFromEnv(), logger); err != nil {
		logger.Warn("RabbitMQ not available, event relay disabled", "error", err)
	} else {
		defer mqConn.Close()
		relay := mq.NewRelay(mq.NewPublisher(mqConn, logger), logger)
		go func() {
			if err := relay.Run(ctx, eventBus.Subscribe(0)); err != nil {
				logger.Warn("event relay stopped", "error", err)
			}
		}()
	}

	// Планировщик и движок ссылаются друг на друга: движок отчитывается
	// о терминальных исходах, планировщик передаёт директивы.
	// sched присваивается до первого запуска цикла
	var sched *scheduler.Scheduler

	loopEngine, err := engine.NewSubprocess(engine.SubprocessConfig{
		Command: engineCommand(),
		Store:   execs,
		OnTerminal: func(ctx context.Context, r engine.TerminalReport) {
			sched.NotifyTerminal(ctx, r.ExecutionID, r.Status, r.Reason)
		},
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	sched = scheduler.New(scheduler.Config{
		Store:  execs,
		Engine: loopEngine,
		Bus:    eventBus,
		Logger: logger,
	})

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// IPC-сервер: пробуждения из CLI
	ipcServer := ipc.NewServer(ipc.ServerConfig{
		SocketPath: socketPath(),
		Version:    version,
		OnPending: func(id uuid.UUID) {
			logger.Debug("pending notification", "exec_id", id)
			sched.Wake()
		},
		OnResumed: func(id uuid.UUID) error {
			return sched.Resume(ctx, id)
		},
		OnShutdown: func() {
			logger.Info("shutdown requested over IPC")
			cancel()
		},
		Logger: logger,
	})
	if err := ipcServer.Start(ctx); err != nil {
		logger.Error("failed to start IPC server", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8090"
	if v := os.Getenv("DAEMON_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	ipcServer.Stop()
	sched.Stop()
	loopEngine.Wait()
	if err := logWriter.Close(); err != nil {
		logger.Warn("event log close", "error", err)
	}
	logger.Info("overseer-daemon stopped")
}

// rootDir возвращает рабочий каталог оркестратора.
func rootDir() string {
	if root := os.Getenv("OVERSEER_ROOT"); root != "" {
		return root
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".overseer")
	}
	return ".overseer"
}

// socketPath возвращает путь к IPC-сокету.
func socketPath() string {
	return ipc.DefaultSocketPath()
}

// engineCommand возвращает исполняемый файл движка циклов.
func engineCommand() string {
	if cmd := os.Getenv("OVERSEER_ENGINE_CMD"); cmd != "" {
		return cmd
	}
	return "overseer-loop"
}
