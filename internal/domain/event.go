package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind — тип события жизненного цикла execution.
//
// Набор закрытый: подписчики EventBus могут полагаться на то,
// что других значений не появится без изменения этого файла.
type EventKind string

const (
	// EventLoopStarted — execution диспетчеризован и начал выполняться.
	EventLoopStarted EventKind = "loop.started"

	// EventIterationStarted — началась очередная итерация цикла.
	EventIterationStarted EventKind = "iteration.started"

	// EventIterationCompleted — итерация завершена.
	EventIterationCompleted EventKind = "iteration.completed"

	// EventLoopCompleted — execution успешно завершён (COMPLETE).
	EventLoopCompleted EventKind = "loop.completed"

	// EventLoopFailed — execution завершился с ошибкой (FAILED).
	EventLoopFailed EventKind = "loop.failed"

	// EventLoopStopped — execution отменён (STOPPED).
	EventLoopStopped EventKind = "loop.stopped"

	// EventLoopPaused — execution приостановлен.
	EventLoopPaused EventKind = "loop.paused"

	// EventLoopResumed — execution возобновлён.
	EventLoopResumed EventKind = "loop.resumed"

	// EventRebaseStarted — worktree перебазируется.
	EventRebaseStarted EventKind = "rebase.started"

	// EventLLMRequest — отправлен запрос к LLM.
	EventLLMRequest EventKind = "llm.request"

	// EventLLMResponse — получен ответ от LLM.
	EventLLMResponse EventKind = "llm.response"

	// EventToolCall — движок вызвал инструмент.
	EventToolCall EventKind = "tool.call"

	// EventValidationStarted — запущена команда валидации.
	EventValidationStarted EventKind = "validation.started"

	// EventValidationFinished — команда валидации завершилась.
	EventValidationFinished EventKind = "validation.finished"

	// EventError — ошибка в ходе выполнения.
	EventError EventKind = "error"

	// EventWarning — предупреждение.
	EventWarning EventKind = "warning"
)

// Event — событие наблюдаемости, публикуемое в EventBus.
//
// События append-only per execution: после публикации не мутируют.
// Поля за пределами Kind/ExecID заполняются в зависимости от типа.
type Event struct {
	// Kind — тип события.
	Kind EventKind `json:"kind"`

	// ExecID — execution, которому принадлежит событие.
	ExecID uuid.UUID `json:"exec_id"`

	// Iteration — номер итерации на момент события.
	Iteration int `json:"iteration,omitempty"`

	// Message — человекочитаемое описание (error, warning, прогресс).
	Message string `json:"message,omitempty"`

	// Model — имя модели (llm.request / llm.response).
	Model string `json:"model,omitempty"`

	// Tokens — количество токенов в обмене (llm.response).
	Tokens int64 `json:"tokens,omitempty"`

	// Tool — имя инструмента (tool.call).
	Tool string `json:"tool,omitempty"`

	// Command — команда валидации (validation.*).
	Command string `json:"command,omitempty"`

	// ExitCode — код завершения валидации (validation.finished).
	ExitCode int `json:"exit_code,omitempty"`

	// DurationMs — длительность операции в миллисекундах.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// Payload — непрозрачные дополнительные данные.
	Payload map[string]any `json:"payload,omitempty"`

	// At — время создания события.
	At time.Time `json:"at"`
}

// IsTerminal возвращает true для событий, завершающих execution.
// По такому событию логгер закрывает файл журнала execution'а.
func (e *Event) IsTerminal() bool {
	switch e.Kind {
	case EventLoopCompleted, EventLoopFailed, EventLoopStopped:
		return true
	default:
		return false
	}
}
