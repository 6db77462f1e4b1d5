package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution — один запуск агентного цикла.
//
// Execution создаётся когда:
// - Пользователь заводит новый цикл через CLI (в статусе DRAFT или сразу PENDING)
// - Родительский execution порождает дочерний
//
// Статус мутирует только Scheduler (переходы жизненного цикла)
// и движок выполнения (итерации, прогресс, токены, артефакт) —
// в каждый момент времени ровно один владелец.
type Execution struct {
	// ID — уникальный идентификатор execution. Неизменяем.
	ID uuid.UUID `json:"id"`

	// LoopType — имя типа цикла (например, "plan", "implement", "review").
	LoopType string `json:"loop_type"`

	// Title — человекочитаемый заголовок.
	Title string `json:"title,omitempty"`

	// ParentID — ссылка на родительский execution.
	ParentID *uuid.UUID `json:"parent_id,omitempty"`

	// DependsOn — список execution'ов, которые должны завершиться
	// в COMPLETE до диспетчеризации этого.
	DependsOn []uuid.UUID `json:"depends_on,omitempty"`

	// Priority — приоритет диспетчеризации (больше — раньше).
	Priority int `json:"priority"`

	// Status — текущий статус жизненного цикла.
	Status ExecutionStatus `json:"status"`

	// WorktreePath — путь к изолированному worktree execution'а.
	WorktreePath string `json:"worktree_path,omitempty"`

	// Iteration — счётчик итераций цикла. Монотонно неубывающий.
	Iteration int `json:"iteration"`

	// Progress — накопленный текст прогресса. Дописывается через
	// AppendProgress и дословно подставляется в будущие промпты.
	Progress string `json:"progress,omitempty"`

	// Context — непрозрачный структурированный документ для движка.
	// Ядро его не интерпретирует.
	Context map[string]any `json:"context,omitempty"`

	// LastError — текст последней ошибки.
	LastError string `json:"last_error,omitempty"`

	// ArtifactPath — путь к основному выходному файлу.
	ArtifactPath string `json:"artifact_path,omitempty"`

	// ArtifactStatus — статус артефакта (например, "draft", "final").
	ArtifactStatus string `json:"artifact_status,omitempty"`

	// TokensUsed — суммарное количество потраченных токенов.
	TokensUsed int64 `json:"tokens_used"`

	// DurationMs — суммарная длительность итераций в миллисекундах.
	DurationMs int64 `json:"duration_ms"`

	// CreatedAt — время создания execution.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последней мутации. Строго неубывающее.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExecution создаёт execution в статусе DRAFT.
func NewExecution(loopType string) *Execution {
	now := time.Now()
	return &Execution{
		ID:        uuid.New(),
		LoopType:  loopType,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// touch обновляет UpdatedAt, гарантируя неубывание.
func (e *Execution) touch() {
	now := time.Now()
	if now.After(e.UpdatedAt) {
		e.UpdatedAt = now
	}
}

// transition переводит execution в новый статус, если переход разрешён.
// Недопустимый переход — no-op с возвратом false; уровень серьёзности
// решает вызывающая сторона.
func (e *Execution) transition(to ExecutionStatus) bool {
	if !canTransition(e.Status, to) {
		return false
	}
	e.Status = to
	e.touch()
	return true
}

// canTransition проверяет допустимость перехода между статусами.
//
// STOPPED и FAILED достижимы из любого нетерминального статуса:
// STOPPED — отмена оператором, FAILED — неустранимая ошибка
// или каскад от упавшей зависимости.
func canTransition(from, to ExecutionStatus) bool {
	if from.IsTerminal() {
		return false
	}

	switch to {
	case StatusStopped, StatusFailed:
		return true
	case StatusPending:
		return from == StatusDraft
	case StatusRunning:
		return from == StatusPending || from == StatusPaused ||
			from == StatusBlocked || from == StatusRebasing
	case StatusPaused:
		return from == StatusRunning
	case StatusRebasing:
		return from == StatusRunning
	case StatusBlocked:
		return from == StatusRebasing
	case StatusComplete:
		return from == StatusRunning
	default:
		return false
	}
}

// MarkReady переводит DRAFT → PENDING (явное действие готовности).
func (e *Execution) MarkReady() bool {
	return e.transition(StatusPending)
}

// MarkRunning переводит execution в RUNNING (диспетчеризация или resume).
func (e *Execution) MarkRunning() bool {
	return e.transition(StatusRunning)
}

// MarkPaused переводит RUNNING → PAUSED (внешний сигнал).
func (e *Execution) MarkPaused() bool {
	return e.transition(StatusPaused)
}

// MarkRebasing переводит RUNNING → REBASING.
func (e *Execution) MarkRebasing() bool {
	return e.transition(StatusRebasing)
}

// MarkBlocked переводит REBASING → BLOCKED (конфликт rebase).
func (e *Execution) MarkBlocked() bool {
	return e.transition(StatusBlocked)
}

// MarkComplete переводит RUNNING → COMPLETE (валидация прошла).
func (e *Execution) MarkComplete() bool {
	return e.transition(StatusComplete)
}

// MarkFailed переводит execution в FAILED с текстом ошибки.
func (e *Execution) MarkFailed(errMsg string) bool {
	if !e.transition(StatusFailed) {
		return false
	}
	e.LastError = errMsg
	return true
}

// MarkStopped переводит любой нетерминальный execution в STOPPED.
func (e *Execution) MarkStopped() bool {
	return e.transition(StatusStopped)
}

// IsTerminal возвращает true, если execution завершён.
func (e *Execution) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// IsActive возвращает true, если execution выполняется или перебазируется.
func (e *Execution) IsActive() bool {
	return e.Status.IsActive()
}

// IsResumable возвращает true, если execution можно возобновить.
func (e *Execution) IsResumable() bool {
	return e.Status.IsResumable()
}

// IsDraft возвращает true для черновика.
func (e *Execution) IsDraft() bool {
	return e.Status.IsDraft()
}

// IncrementIteration увеличивает счётчик итераций на единицу.
// Терминальный execution счётчик не мутирует.
func (e *Execution) IncrementIteration() bool {
	if e.IsTerminal() {
		return false
	}
	e.Iteration++
	e.touch()
	return true
}

// AppendProgress дописывает текст прогресса через перевод строки,
// чтобы накопленный текст можно было дословно подставлять в промпты.
func (e *Execution) AppendProgress(text string) {
	if text == "" {
		return
	}
	if e.Progress == "" {
		e.Progress = text
	} else {
		e.Progress += "\n" + text
	}
	e.touch()
}

// AddUsage накапливает счётчики токенов и длительности.
func (e *Execution) AddUsage(tokens int64, duration time.Duration) {
	e.TokensUsed += tokens
	e.DurationMs += duration.Milliseconds()
	e.touch()
}

// SetArtifact записывает путь и статус артефакта.
func (e *Execution) SetArtifact(path, status string) {
	e.ArtifactPath = path
	e.ArtifactStatus = status
	e.touch()
}

// SetLastError записывает текст последней ошибки без смены статуса.
func (e *Execution) SetLastError(errMsg string) {
	e.LastError = errMsg
	e.touch()
}
