package scheduler

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// EntryState — состояние элемента очереди планировщика.
type EntryState string

const (
	// EntryWaiting — есть незавершённые зависимости.
	EntryWaiting EntryState = "WAITING"

	// EntryReady — все зависимости в COMPLETE, ждёт слота.
	EntryReady EntryState = "READY"

	// EntryDispatched — передан движку выполнения.
	EntryDispatched EntryState = "DISPATCHED"
)

// QueueEntry — элемент очереди планировщика.
//
// Выводится из Execution и графа зависимостей, отдельно
// не персистится: после рестарта восстанавливается из БД.
type QueueEntry struct {
	// ExecID — execution в очереди.
	ExecID uuid.UUID

	// Priority — приоритет диспетчеризации (больше — раньше).
	Priority int

	// EnqueuedAt — время постановки в очередь. Берётся из created_at
	// execution'а, чтобы порядок FIFO был стабилен между рестартами.
	EnqueuedAt time.Time

	// UnmetDeps — количество зависимостей, ещё не достигших COMPLETE.
	UnmetDeps int

	// State — текущее состояние элемента.
	State EntryState
}

// sortReady упорядочивает готовые элементы детерминированно:
// приоритет по убыванию, затем время постановки по возрастанию,
// затем id — чтобы порядок диспетчеризации был воспроизводим
// для одного снапшота готового множества.
func sortReady(entries []*QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		if !entries[i].EnqueuedAt.Equal(entries[j].EnqueuedAt) {
			return entries[i].EnqueuedAt.Before(entries[j].EnqueuedAt)
		}
		return entries[i].ExecID.String() < entries[j].ExecID.String()
	})
}
