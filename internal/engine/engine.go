// Package engine определяет контракты внешнего движка выполнения.
//
// Само ядро оркестрации цикл prompt/tool/validate не реализует:
// Scheduler передаёт движку стартовую директиву, движок отчитывается
// об итерациях и терминальных исходах через мутации Execution
// и уведомление Scheduler'а.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Overseer/internal/domain"
)

// StartDirective — директива запуска одного агентного цикла.
type StartDirective struct {
	// ExecutionID — execution, который нужно выполнять.
	ExecutionID uuid.UUID

	// LoopType — тип цикла.
	LoopType string

	// WorktreePath — изолированный worktree execution'а.
	WorktreePath string

	// Iteration — номер итерации, с которого продолжать
	// (ненулевой при resume).
	Iteration int

	// Context — непрозрачный документ execution'а.
	// Ядро его не интерпретирует.
	Context map[string]any

	// Progress — накопленный текст прогресса для подстановки в промпт.
	Progress string
}

// Engine — внешний движок выполнения агентных циклов.
type Engine interface {
	// Start принимает директиву и начинает (или возобновляет) цикл.
	// Возврат ошибки означает, что цикл не стартовал.
	Start(ctx context.Context, d StartDirective) error
}

// ValidationResult — итог команды валидации.
// Потребляется ядром, никогда им не порождается.
type ValidationResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Passed возвращает true при нулевом коде завершения —
// единственный критерий успеха итерации.
func (r ValidationResult) Passed() bool {
	return r.ExitCode == 0
}

// Runner — внешний исполнитель команд валидации.
//
// Реализация обязана убивать команду по таймауту или отмене контекста,
// не позволяя ей пережить владеющий execution.
type Runner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (ValidationResult, error)
}

// TerminalReport — терминальный исход, о котором движок
// уведомляет Scheduler.
type TerminalReport struct {
	ExecutionID uuid.UUID
	Status      domain.ExecutionStatus
	Reason      string
}
