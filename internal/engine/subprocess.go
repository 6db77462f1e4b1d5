package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Overseer/internal/domain"
)

// ExecutionStore — часть хранилища, нужная движку для фиксации исходов.
type ExecutionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	Update(ctx context.Context, e *domain.Execution) error
}

// Subprocess — движок-адаптер: каждый цикл выполняется внешним
// процессом. Директива передаётся через переменные окружения и JSON
// на stdin, исход определяется кодом завершения.
//
// Ноль — COMPLETE, всё остальное — FAILED с кодом в тексте ошибки.
type Subprocess struct {
	command string
	store   ExecutionStore
	logger  *slog.Logger

	// onTerminal уведомляет планировщик о терминальном исходе
	// (обычно Scheduler.NotifyTerminal).
	onTerminal func(ctx context.Context, r TerminalReport)

	wg sync.WaitGroup
}

// SubprocessConfig — конфигурация движка Subprocess.
type SubprocessConfig struct {
	// Command — исполняемый файл, запускаемый на каждую директиву.
	Command string

	// Store — хранилище executions.
	Store ExecutionStore

	// OnTerminal вызывается после фиксации терминального исхода.
	OnTerminal func(ctx context.Context, r TerminalReport)

	// Logger — логгер.
	Logger *slog.Logger
}

// NewSubprocess создаёт движок Subprocess.
func NewSubprocess(cfg SubprocessConfig) (*Subprocess, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("subprocess engine: command is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Subprocess{
		command:    cfg.Command,
		store:      cfg.Store,
		logger:     logger.With(slog.String("component", "engine")),
		onTerminal: cfg.OnTerminal,
	}, nil
}

// Start запускает внешний процесс цикла. Возврат ошибки означает,
// что процесс не стартовал; его завершение отслеживается асинхронно.
func (s *Subprocess) Start(ctx context.Context, d StartDirective) error {
	payload, err := json.Marshal(d.Context)
	if err != nil {
		return fmt.Errorf("marshal directive context: %w", err)
	}

	cmd := exec.Command(s.command)
	cmd.Env = append(os.Environ(),
		"OVERSEER_EXEC_ID="+d.ExecutionID.String(),
		"OVERSEER_LOOP_TYPE="+d.LoopType,
		"OVERSEER_ITERATION="+strconv.Itoa(d.Iteration),
	)
	if d.WorktreePath != "" {
		cmd.Dir = d.WorktreePath
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start loop process: %w", err)
	}

	go func() {
		defer stdin.Close()
		if _, err := stdin.Write(payload); err != nil {
			// Процесс увидел обрезанную директиву — падение
			// зафиксирует await по коду выхода
			s.logger.Warn("write directive to loop process",
				"exec_id", d.ExecutionID,
				"error", err,
			)
		}
	}()

	s.logger.Info("loop process started",
		"exec_id", d.ExecutionID,
		"loop_type", d.LoopType,
		"pid", cmd.Process.Pid,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.await(d.ExecutionID, cmd)
	}()

	return nil
}

// await ждёт завершения процесса и фиксирует терминальный исход.
// Контекст запуска к этому моменту может быть уже отменён, поэтому
// фиксация идёт на фоне.
func (s *Subprocess) await(id uuid.UUID, cmd *exec.Cmd) {
	ctx := context.Background()

	waitErr := cmd.Wait()

	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("get execution after loop exit", "exec_id", id, "error", err)
		return
	}

	// Остановку или падение, зафиксированные извне, не перетираем:
	// MarkComplete/MarkFailed на терминальной записи — no-op
	if waitErr == nil {
		e.MarkComplete()
	} else {
		e.MarkFailed(fmt.Sprintf("loop process: %v", waitErr))
	}

	if err := s.store.Update(ctx, e); err != nil {
		s.logger.Error("update execution after loop exit", "exec_id", id, "error", err)
	}

	if s.onTerminal != nil && e.IsTerminal() {
		s.onTerminal(ctx, TerminalReport{
			ExecutionID: id,
			Status:      e.Status,
			Reason:      e.LastError,
		})
	}
}

// Wait дожидается завершения всех запущенных процессов.
func (s *Subprocess) Wait() {
	s.wg.Wait()
}
