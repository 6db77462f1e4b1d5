package bus

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Overseer/internal/domain"
)

// Emitter — per-execution ручка для публикации событий.
//
// Оборачивает один execution id, чтобы события нельзя было
// приписать чужому execution'у.
type Emitter struct {
	bus    *Bus
	execID uuid.UUID
}

// NewEmitter создаёт Emitter для указанного execution.
func NewEmitter(b *Bus, execID uuid.UUID) *Emitter {
	return &Emitter{bus: b, execID: execID}
}

// ExecID возвращает execution, от имени которого публикуются события.
func (em *Emitter) ExecID() uuid.UUID {
	return em.execID
}

// emit публикует событие с подставленным execution id.
func (em *Emitter) emit(e domain.Event) {
	e.ExecID = em.execID
	em.bus.Emit(e)
}

// LoopStarted — execution диспетчеризован и начал выполняться.
func (em *Emitter) LoopStarted(loopType string) {
	em.emit(domain.Event{Kind: domain.EventLoopStarted, Message: loopType})
}

// IterationStarted — началась итерация с указанным номером.
func (em *Emitter) IterationStarted(iteration int) {
	em.emit(domain.Event{Kind: domain.EventIterationStarted, Iteration: iteration})
}

// IterationCompleted — итерация завершена.
func (em *Emitter) IterationCompleted(iteration int, duration time.Duration) {
	em.emit(domain.Event{
		Kind:       domain.EventIterationCompleted,
		Iteration:  iteration,
		DurationMs: duration.Milliseconds(),
	})
}

// LoopCompleted — execution успешно завершён.
func (em *Emitter) LoopCompleted() {
	em.emit(domain.Event{Kind: domain.EventLoopCompleted})
}

// LoopFailed — execution завершился с ошибкой.
func (em *Emitter) LoopFailed(reason string) {
	em.emit(domain.Event{Kind: domain.EventLoopFailed, Message: reason})
}

// LoopStopped — execution отменён.
func (em *Emitter) LoopStopped() {
	em.emit(domain.Event{Kind: domain.EventLoopStopped})
}

// LoopPaused — execution приостановлен.
func (em *Emitter) LoopPaused() {
	em.emit(domain.Event{Kind: domain.EventLoopPaused})
}

// LoopResumed — execution возобновлён.
func (em *Emitter) LoopResumed() {
	em.emit(domain.Event{Kind: domain.EventLoopResumed})
}

// RebaseStarted — worktree перебазируется.
func (em *Emitter) RebaseStarted() {
	em.emit(domain.Event{Kind: domain.EventRebaseStarted})
}

// LLMRequest — отправлен запрос к LLM.
func (em *Emitter) LLMRequest(model string) {
	em.emit(domain.Event{Kind: domain.EventLLMRequest, Model: model})
}

// LLMResponse — получен ответ от LLM.
func (em *Emitter) LLMResponse(model string, tokens int64, duration time.Duration) {
	em.emit(domain.Event{
		Kind:       domain.EventLLMResponse,
		Model:      model,
		Tokens:     tokens,
		DurationMs: duration.Milliseconds(),
	})
}

// ToolCall — движок вызвал инструмент.
func (em *Emitter) ToolCall(tool string, payload map[string]any) {
	em.emit(domain.Event{Kind: domain.EventToolCall, Tool: tool, Payload: payload})
}

// ValidationStarted — запущена команда валидации.
func (em *Emitter) ValidationStarted(command string) {
	em.emit(domain.Event{Kind: domain.EventValidationStarted, Command: command})
}

// ValidationFinished — команда валидации завершилась.
func (em *Emitter) ValidationFinished(command string, exitCode int, duration time.Duration) {
	em.emit(domain.Event{
		Kind:       domain.EventValidationFinished,
		Command:    command,
		ExitCode:   exitCode,
		DurationMs: duration.Milliseconds(),
	})
}

// Error — ошибка в ходе выполнения.
func (em *Emitter) Error(msg string) {
	em.emit(domain.Event{Kind: domain.EventError, Message: msg})
}

// Warning — предупреждение.
func (em *Emitter) Warning(msg string) {
	em.emit(domain.Event{Kind: domain.EventWarning, Message: msg})
}
