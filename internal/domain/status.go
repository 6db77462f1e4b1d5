package domain

import "fmt"

// ExecutionStatus — статус жизненного цикла execution.
//
// Жизненный цикл:
//
//	DRAFT → PENDING → RUNNING → COMPLETE
//	                          ↘ FAILED
//	        RUNNING ⇄ PAUSED
//	        RUNNING ⇄ REBASING → BLOCKED → RUNNING
//	        (любой нетерминальный) → STOPPED
//	        (любой нетерминальный) → FAILED (каскад от упавшей зависимости)
type ExecutionStatus string

const (
	// StatusDraft — execution создан, но ещё не готов к планированию.
	StatusDraft ExecutionStatus = "DRAFT"

	// StatusPending — execution готов, ожидает диспетчеризации scheduler'ом.
	StatusPending ExecutionStatus = "PENDING"

	// StatusRunning — execution выполняется движком.
	StatusRunning ExecutionStatus = "RUNNING"

	// StatusPaused — execution приостановлен внешним сигналом.
	StatusPaused ExecutionStatus = "PAUSED"

	// StatusRebasing — worktree execution'а перебазируется на свежую базу.
	StatusRebasing ExecutionStatus = "REBASING"

	// StatusBlocked — rebase завершился конфликтом, нужно ручное вмешательство.
	StatusBlocked ExecutionStatus = "BLOCKED"

	// StatusComplete — валидация прошла, execution успешно завершён.
	StatusComplete ExecutionStatus = "COMPLETE"

	// StatusFailed — итерации исчерпаны, неустранимая ошибка или каскад.
	StatusFailed ExecutionStatus = "FAILED"

	// StatusStopped — execution отменён оператором.
	StatusStopped ExecutionStatus = "STOPPED"
)

// IsTerminal возвращает true, если статус финальный (исходящих переходов нет).
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// IsActive возвращает true, если execution сейчас чем-то занят.
func (s ExecutionStatus) IsActive() bool {
	return s == StatusRunning || s == StatusRebasing
}

// IsResumable возвращает true, если execution можно вернуть в RUNNING.
func (s ExecutionStatus) IsResumable() bool {
	return s == StatusPaused || s == StatusBlocked
}

// IsDraft возвращает true для черновика.
func (s ExecutionStatus) IsDraft() bool {
	return s == StatusDraft
}

// statusCodeVersion — версия числового отображения статусов.
// Увеличивается только при изменении самого отображения.
const statusCodeVersion = 1

// Code возвращает стабильный числовой код статуса для хранения в БД.
//
// Отображение задано явно и версионировано — порядок объявления
// констант на него не влияет.
func (s ExecutionStatus) Code() int16 {
	switch s {
	case StatusDraft:
		return 0
	case StatusPending:
		return 1
	case StatusRunning:
		return 2
	case StatusPaused:
		return 3
	case StatusRebasing:
		return 4
	case StatusBlocked:
		return 5
	case StatusComplete:
		return 6
	case StatusFailed:
		return 7
	case StatusStopped:
		return 8
	default:
		return -1
	}
}

// StatusFromCode восстанавливает статус из числового кода.
func StatusFromCode(code int16) (ExecutionStatus, error) {
	switch code {
	case 0:
		return StatusDraft, nil
	case 1:
		return StatusPending, nil
	case 2:
		return StatusRunning, nil
	case 3:
		return StatusPaused, nil
	case 4:
		return StatusRebasing, nil
	case 5:
		return StatusBlocked, nil
	case 6:
		return StatusComplete, nil
	case 7:
		return StatusFailed, nil
	case 8:
		return StatusStopped, nil
	default:
		return "", fmt.Errorf("unknown status code %d (mapping v%d)", code, statusCodeVersion)
	}
}

// String возвращает строковое представление статуса.
func (s ExecutionStatus) String() string {
	return string(s)
}

// ParseStatus парсит строку в ExecutionStatus.
func ParseStatus(s string) (ExecutionStatus, error) {
	switch ExecutionStatus(s) {
	case StatusDraft, StatusPending, StatusRunning, StatusPaused,
		StatusRebasing, StatusBlocked, StatusComplete, StatusFailed, StatusStopped:
		return ExecutionStatus(s), nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}
