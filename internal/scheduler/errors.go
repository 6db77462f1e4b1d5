package scheduler

import "errors"

// Ошибки планировщика.
var (
	// ErrDependencyCycle — зависимости образуют цикл.
	// Отклоняется при регистрации, а не посреди планирования.
	ErrDependencyCycle = errors.New("dependency cycle")

	// ErrUnknownExecution — зависимость ссылается на несуществующий execution.
	ErrUnknownExecution = errors.New("unknown execution")

	// ErrAlreadyRegistered — execution уже зарегистрирован в графе.
	ErrAlreadyRegistered = errors.New("execution already registered")

	// ErrNotResumable — execution не в PAUSED/BLOCKED, возобновление невозможно.
	ErrNotResumable = errors.New("execution not resumable")

	// ErrSchedulerStopped — планировщик остановлен.
	ErrSchedulerStopped = errors.New("scheduler stopped")
)
