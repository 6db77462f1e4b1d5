// Package scheduler реализует диспетчеризацию executions.
//
// Scheduler — единственная инстанция, решающая какие PENDING executions
// становятся RUNNING, с учётом:
//   - зависимостей (все перечисленные executions в COMPLETE)
//   - глобального потолка конкурентности
//   - приоритета, затем FIFO по времени постановки в очередь
//
// Структура:
//   - scheduler.go — цикл тиков, диспетчеризация, каскад, resume/stop
//   - graph.go     — граф зависимостей с проверкой циклов
//   - queue.go     — QueueEntry, состояние элемента очереди
//   - errors.go    — ошибки пакета
//
// Модель пробуждения: тик выполняется по IPC-уведомлению (Wake)
// или по истечении poll-интервала — что наступит раньше. Porядок
// диспетчеризации — детерминированная функция снапшота готового
// множества; всё состояние тика мутирует один логический писатель.
//
// Каскад (решение по открытому вопросу): первичный триггер —
// событийный, NotifyTerminal от движка при терминальном переходе
// зависимости; дополнительно каждый тик подметает очередь на случай
// терминальных переходов, пропущенных из-за рестарта демона.
package scheduler
