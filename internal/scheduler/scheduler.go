package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Overseer/internal/bus"
	"github.com/shaiso/Overseer/internal/domain"
	"github.com/shaiso/Overseer/internal/engine"
	"github.com/shaiso/Overseer/internal/repo"
	"github.com/shaiso/Overseer/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval  = 5 * time.Second
	defaultBatchSize     = 100
	defaultMaxConcurrent = 4
)

// ExecutionStore — потребляемая планировщиком часть record store.
// Реализуется repo.ExecutionRepo; внутренности хранилища вне ядра.
type ExecutionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error)
	Update(ctx context.Context, e *domain.Execution) error
	ListPending(ctx context.Context, limit int) ([]domain.Execution, error)
	ListUnfinished(ctx context.Context) ([]domain.Execution, error)
}

// Scheduler — диспетчер executions.
//
// Всё состояние планировщика (очередь, граф, in-flight множество)
// мутируется под одним мьютексом: у каждого тика ровно один
// логический писатель, порядок диспетчеризации детерминирован
// для данного снапшота.
type Scheduler struct {
	store  ExecutionStore
	engine engine.Engine
	bus    *bus.Bus
	logger *slog.Logger

	mu           sync.Mutex
	graph        *Graph
	entries      map[uuid.UUID]*QueueEntry
	inFlight     map[uuid.UUID]bool
	statuses     map[uuid.UUID]domain.ExecutionStatus
	lastDispatch time.Time

	maxConcurrent int
	minSpacing    time.Duration
	pollInterval  time.Duration
	batchSize     int

	wakeCh     chan struct{}
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Scheduler.
type Config struct {
	// Store — хранилище executions.
	Store ExecutionStore

	// Engine — внешний движок выполнения.
	Engine engine.Engine

	// Bus — шина событий наблюдаемости.
	Bus *bus.Bus

	// MaxConcurrent — глобальный потолок одновременно
	// выполняющихся executions (default: 4).
	MaxConcurrent int

	// MinDispatchInterval — минимальный зазор между диспетчеризациями.
	// Защищает общие внешние rate limits. 0 — без ограничения.
	MinDispatchInterval time.Duration

	// PollInterval — интервал polling-fallback (default: 5s).
	PollInterval time.Duration

	// BatchSize — количество pending executions за один тик (default: 100).
	BatchSize int

	// Logger — логгер.
	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		store:         cfg.Store,
		engine:        cfg.Engine,
		bus:           cfg.Bus,
		logger:        logger,
		graph:         NewGraph(),
		entries:       make(map[uuid.UUID]*QueueEntry),
		inFlight:      make(map[uuid.UUID]bool),
		statuses:      make(map[uuid.UUID]domain.ExecutionStatus),
		maxConcurrent: maxConcurrent,
		minSpacing:    cfg.MinDispatchInterval,
		pollInterval:  pollInterval,
		batchSize:     batchSize,
		wakeCh:        make(chan struct{}, 1),
	}
}

// Start восстанавливает состояние из БД и запускает цикл тиков.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	if err := s.restore(ctx); err != nil {
		cancel()
		return fmt.Errorf("restore scheduler state: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()

	s.logger.Info("scheduler started",
		"max_concurrent", s.maxConcurrent,
		"poll_interval", s.pollInterval,
		"queued", len(s.entries),
		"in_flight", len(s.inFlight),
	)
	return nil
}

// Stop останавливает цикл тиков.
func (s *Scheduler) Stop() {
	s.stoppedMu.Lock()
	s.stopped = true
	s.stoppedMu.Unlock()

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()

	s.logger.Info("scheduler stopped")
}

// IsStopped проверяет, остановлен ли планировщик.
func (s *Scheduler) IsStopped() bool {
	s.stoppedMu.RLock()
	defer s.stoppedMu.RUnlock()
	return s.stopped
}

// Wake будит цикл тиков вне очереди (IPC-уведомление).
// Никогда не блокирует.
func (s *Scheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// loop — цикл тиков: событийное пробуждение или poll-интервал,
// что наступит раньше.
func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	// Первый тик сразу: подхватываем executions, созданные
	// пока демон был выключен.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wakeCh:
			s.tick(ctx)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick логирует ошибки одного тика, не прерывая цикл.
func (s *Scheduler) tick(ctx context.Context) {
	if err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("scheduler tick failed", "error", err)
	}
}

// restore восстанавливает граф и очередь из БД при старте демона.
func (s *Scheduler) restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unfinished, err := s.store.ListUnfinished(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished executions: %w", err)
	}

	// Порядок created_at ASC гарантирует, что незавершённые
	// зависимости регистрируются раньше своих зависимых.
	for i := range unfinished {
		e := &unfinished[i]

		if err := s.register(ctx, e); err != nil {
			// Структурная ошибка в уже сохранённом execution —
			// помечаем FAILED, не валим рестарт целиком
			s.failExecutionLocked(ctx, e, fmt.Sprintf("registration: %v", err))
			continue
		}
		s.statuses[e.ID] = e.Status

		switch {
		case e.Status == domain.StatusPending:
			s.entries[e.ID] = &QueueEntry{
				ExecID:     e.ID,
				Priority:   e.Priority,
				EnqueuedAt: e.CreatedAt,
				State:      EntryWaiting,
			}
		case e.Status.IsActive():
			s.inFlight[e.ID] = true
			telemetry.ActiveExecutions.Inc()
		}
	}

	return nil
}

// Submit регистрирует execution в планировщике.
//
// Структурные ошибки — цикл зависимостей, неизвестная зависимость —
// отклоняются здесь, при подаче, а не обнаруживаются посреди
// планирования.
func (s *Scheduler) Submit(ctx context.Context, e *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.register(ctx, e); err != nil {
		return err
	}
	s.statuses[e.ID] = e.Status

	if e.Status == domain.StatusPending {
		s.enqueueLocked(e)
	}

	s.wakeLocked()
	return nil
}

// Tick выполняет один тик планировщика:
//
//  1. Подхватывает новые PENDING executions из хранилища
//  2. Подметает очередь: зависимые упавших/остановленных — в FAILED
//  3. Пересчитывает готовое множество (все зависимости COMPLETE)
//  4. Заполняет свободные слоты конкурентности в детерминированном
//     порядке: приоритет по убыванию, затем FIFO
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.discoverPendingLocked(ctx); err != nil {
		return err
	}

	s.sweepCascadeLocked(ctx)

	ready := s.computeReadyLocked(ctx)

	return s.dispatchLocked(ctx, ready)
}

// discoverPendingLocked регистрирует PENDING executions,
// ещё не известные очереди.
func (s *Scheduler) discoverPendingLocked(ctx context.Context) error {
	pending, err := s.store.ListPending(ctx, s.batchSize)
	if err != nil {
		return fmt.Errorf("list pending executions: %w", err)
	}

	for i := range pending {
		e := &pending[i]
		if _, known := s.entries[e.ID]; known {
			continue
		}
		if st, ok := s.statuses[e.ID]; ok && st.IsTerminal() {
			// Каскад уже перевёл execution в FAILED в этом процессе;
			// снапшот из БД устареть не мог, но подстрахуемся
			continue
		}

		if err := s.register(ctx, e); err != nil {
			s.failExecutionLocked(ctx, e, fmt.Sprintf("registration: %v", err))
			continue
		}

		s.statuses[e.ID] = domain.StatusPending
		s.enqueueLocked(e)
	}
	return nil
}

// enqueueLocked создаёт элемент очереди для PENDING execution'а.
func (s *Scheduler) enqueueLocked(e *domain.Execution) {
	s.entries[e.ID] = &QueueEntry{
		ExecID:     e.ID,
		Priority:   e.Priority,
		EnqueuedAt: e.CreatedAt,
		UnmetDeps:  len(e.DependsOn),
		State:      EntryWaiting,
	}

	s.logger.Debug("execution enqueued",
		"exec_id", e.ID,
		"priority", e.Priority,
		"deps", len(e.DependsOn),
	)
}

// register добавляет execution в граф зависимостей.
//
// Зависимости, ещё не известные графу (в том числе уже завершённые),
// регистрируются листьями; их собственные рёбра восстанавливаются,
// когда они сами встают в очередь.
func (s *Scheduler) register(ctx context.Context, e *domain.Execution) error {
	for _, dep := range e.DependsOn {
		if s.graph.Has(dep) {
			continue
		}
		de, err := s.store.GetByID(ctx, dep)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("%w: dependency %s", ErrUnknownExecution, dep)
			}
			return fmt.Errorf("get dependency %s: %w", dep, err)
		}
		s.statuses[dep] = de.Status
		if err := s.graph.Add(dep, nil); err != nil {
			return err
		}
	}

	if s.graph.Has(e.ID) {
		return s.graph.Relink(e.ID, e.DependsOn)
	}
	return s.graph.Add(e.ID, e.DependsOn)
}

// statusOf возвращает последний известный статус execution'а,
// при необходимости загружая его из хранилища.
func (s *Scheduler) statusOf(ctx context.Context, id uuid.UUID) (domain.ExecutionStatus, error) {
	if st, ok := s.statuses[id]; ok {
		return st, nil
	}
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	s.statuses[id] = e.Status
	return e.Status, nil
}

// sweepCascadeLocked подметает очередь: элементы, у которых
// зависимость упала или остановлена, переводятся в FAILED.
//
// Это poll-backstop к событийному каскаду NotifyTerminal —
// покрывает терминальные переходы, случившиеся пока демон лежал,
// и остановки, записанные в хранилище извне (CLI).
func (s *Scheduler) sweepCascadeLocked(ctx context.Context) {
	// 1. Освежаем собственные статусы очереди из хранилища
	for id, entry := range s.entries {
		if entry.State == EntryDispatched {
			continue
		}
		e, err := s.store.GetByID(ctx, id)
		if err != nil {
			s.logger.Warn("queue entry status unavailable",
				"exec_id", id,
				"error", err,
			)
			continue
		}
		s.statuses[id] = e.Status
		if e.Status == domain.StatusPending {
			continue
		}

		// Статус изменили извне — элемент очереди устарел
		delete(s.entries, id)
		switch e.Status {
		case domain.StatusStopped:
			bus.NewEmitter(s.bus, id).LoopStopped()
			s.cascadeLocked(ctx, id, e.Status)
		case domain.StatusFailed:
			bus.NewEmitter(s.bus, id).LoopFailed(e.LastError)
			s.cascadeLocked(ctx, id, e.Status)
		}
		if e.Status.IsTerminal() {
			s.graph.Remove(id)
		}
	}

	// 2. Гасим элементы с упавшими или остановленными зависимостями
	for id, entry := range s.entries {
		if entry.State == EntryDispatched {
			continue
		}
		for _, dep := range s.graph.Dependencies(id) {
			st, err := s.statusOf(ctx, dep)
			if err != nil {
				s.logger.Warn("dependency status unavailable",
					"exec_id", id,
					"dep_id", dep,
					"error", err,
				)
				continue
			}
			if st == domain.StatusFailed || st == domain.StatusStopped {
				s.cascadeFailLocked(ctx, id, dep, st)
				break
			}
		}
	}
}

// computeReadyLocked пересчитывает готовность элементов очереди
// и возвращает готовое множество в детерминированном порядке.
func (s *Scheduler) computeReadyLocked(ctx context.Context) []*QueueEntry {
	var ready []*QueueEntry

	for id, entry := range s.entries {
		if entry.State == EntryDispatched {
			continue
		}

		unmet := 0
		for _, dep := range s.graph.Dependencies(id) {
			st, err := s.statusOf(ctx, dep)
			if err != nil || st != domain.StatusComplete {
				unmet++
			}
		}

		entry.UnmetDeps = unmet
		if unmet == 0 {
			entry.State = EntryReady
			ready = append(ready, entry)
		} else {
			entry.State = EntryWaiting
		}
	}

	sortReady(ready)
	return ready
}

// dispatchLocked заполняет свободные слоты конкурентности.
//
// Переполнение потолка — не ошибка: лишние элементы остаются
// в очереди до следующего тика.
func (s *Scheduler) dispatchLocked(ctx context.Context, ready []*QueueEntry) error {
	slots := s.maxConcurrent - len(s.inFlight)

	for _, entry := range ready {
		if slots <= 0 {
			break
		}

		// Rate limiting: выдерживаем минимальный зазор между
		// диспетчеризациями; остаток очереди доберёт следующий тик
		if s.minSpacing > 0 && time.Since(s.lastDispatch) < s.minSpacing {
			break
		}

		dispatched, err := s.dispatchOneLocked(ctx, entry)
		if err != nil {
			s.logger.Error("dispatch failed",
				"exec_id", entry.ExecID,
				"error", err,
			)
			continue
		}
		if dispatched {
			slots--
			s.lastDispatch = time.Now()
		}
	}
	return nil
}

// dispatchOneLocked переводит один execution PENDING → RUNNING
// и передаёт стартовую директиву движку.
func (s *Scheduler) dispatchOneLocked(ctx context.Context, entry *QueueEntry) (bool, error) {
	e, err := s.store.GetByID(ctx, entry.ExecID)
	if err != nil {
		return false, fmt.Errorf("get execution: %w", err)
	}

	if !e.MarkRunning() {
		// Статус изменили извне — элемент очереди устарел
		delete(s.entries, entry.ExecID)
		s.statuses[e.ID] = e.Status
		return false, nil
	}

	if err := s.store.Update(ctx, e); err != nil {
		return false, fmt.Errorf("update execution to running: %w", err)
	}

	entry.State = EntryDispatched
	s.inFlight[e.ID] = true
	s.statuses[e.ID] = domain.StatusRunning

	telemetry.Dispatches.Inc()
	telemetry.ActiveExecutions.Inc()

	bus.NewEmitter(s.bus, e.ID).LoopStarted(e.LoopType)

	s.logger.Info("execution dispatched",
		"exec_id", e.ID,
		"loop_type", e.LoopType,
		"priority", e.Priority,
		"iteration", e.Iteration,
	)

	if err := s.engine.Start(ctx, s.directive(e)); err != nil {
		s.failDispatchedLocked(ctx, e, fmt.Sprintf("engine start: %v", err))
		return false, fmt.Errorf("engine start: %w", err)
	}
	return true, nil
}

// directive собирает стартовую директиву для движка.
func (s *Scheduler) directive(e *domain.Execution) engine.StartDirective {
	return engine.StartDirective{
		ExecutionID:  e.ID,
		LoopType:     e.LoopType,
		WorktreePath: e.WorktreePath,
		Iteration:    e.Iteration,
		Context:      e.Context,
		Progress:     e.Progress,
	}
}

// NotifyTerminal фиксирует терминальный исход, о котором
// отчитался движок (запись Execution движок уже мутировал сам).
//
// Для FAILED/STOPPED запускается каскад: все прямые и транзитивные
// нетерминальные зависимые переводятся в FAILED, не проходя RUNNING.
func (s *Scheduler) NotifyTerminal(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, reason string) {
	s.mu.Lock()

	if s.inFlight[id] {
		delete(s.inFlight, id)
		telemetry.ActiveExecutions.Dec()
	}
	delete(s.entries, id)
	s.statuses[id] = status

	s.logger.Info("execution finished",
		"exec_id", id,
		"status", status,
		"reason", reason,
	)

	if status == domain.StatusFailed || status == domain.StatusStopped {
		s.cascadeLocked(ctx, id, status)
	}
	// Каскад прошёл — узел больше не нужен графу
	s.graph.Remove(id)

	s.mu.Unlock()

	// Освободился слот — будим цикл
	s.Wake()
}

// cascadeLocked переводит всех нетерминальных зависимых в FAILED.
func (s *Scheduler) cascadeLocked(ctx context.Context, rootID uuid.UUID, rootStatus domain.ExecutionStatus) {
	for _, depID := range s.graph.TransitiveDependents(rootID) {
		st, err := s.statusOf(ctx, depID)
		if err != nil {
			s.logger.Warn("cascade: dependent status unavailable",
				"exec_id", depID,
				"error", err,
			)
			continue
		}
		if st.IsTerminal() {
			continue
		}
		s.cascadeFailLocked(ctx, depID, rootID, rootStatus)
	}
}

// cascadeFailLocked переводит одного зависимого в FAILED
// из-за терминального исхода его зависимости.
func (s *Scheduler) cascadeFailLocked(ctx context.Context, id, depID uuid.UUID, depStatus domain.ExecutionStatus) {
	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("cascade: get execution failed",
			"exec_id", id,
			"error", err,
		)
		return
	}
	if e.IsTerminal() {
		s.statuses[id] = e.Status
		return
	}

	reason := fmt.Sprintf("dependency %s %s", depID, strings.ToLower(string(depStatus)))
	if !e.MarkFailed(reason) {
		return
	}
	if err := s.store.Update(ctx, e); err != nil {
		s.logger.Error("cascade: update execution failed",
			"exec_id", id,
			"error", err,
		)
		return
	}

	if s.inFlight[id] {
		delete(s.inFlight, id)
		telemetry.ActiveExecutions.Dec()
	}
	delete(s.entries, id)
	s.statuses[id] = domain.StatusFailed

	telemetry.CascadeFailures.Inc()
	bus.NewEmitter(s.bus, id).LoopFailed(reason)

	s.logger.Warn("execution failed by cascade",
		"exec_id", id,
		"dep_id", depID,
		"dep_status", depStatus,
	)

	// Транзитивные зависимые этого execution'а падают тем же каскадом,
	// после чего отработанный узел уходит из графа
	s.cascadeLocked(ctx, id, domain.StatusFailed)
	s.graph.Remove(id)
}

// StopExecution отменяет execution и каскадно гасит
// ещё не диспетчеризованных зависимых.
func (s *Scheduler) StopExecution(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get execution: %w", err)
	}

	if !e.MarkStopped() {
		return fmt.Errorf("execution %s is already terminal (%s)", id, e.Status)
	}
	if err := s.store.Update(ctx, e); err != nil {
		return fmt.Errorf("update execution to stopped: %w", err)
	}

	if s.inFlight[id] {
		delete(s.inFlight, id)
		telemetry.ActiveExecutions.Dec()
	}
	delete(s.entries, id)
	s.statuses[id] = domain.StatusStopped

	bus.NewEmitter(s.bus, id).LoopStopped()

	s.logger.Info("execution stopped", "exec_id", id)

	s.cascadeLocked(ctx, id, domain.StatusStopped)
	s.graph.Remove(id)
	return nil
}

// Resume возвращает PAUSED/BLOCKED execution в RUNNING
// и заново передаёт директиву движку.
func (s *Scheduler) Resume(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get execution: %w", err)
	}

	if !e.IsResumable() {
		return fmt.Errorf("%w: %s is %s", ErrNotResumable, id, e.Status)
	}
	if !e.MarkRunning() {
		return fmt.Errorf("%w: %s is %s", ErrNotResumable, id, e.Status)
	}
	if err := s.store.Update(ctx, e); err != nil {
		return fmt.Errorf("update execution to running: %w", err)
	}

	s.inFlight[id] = true
	s.statuses[id] = domain.StatusRunning
	telemetry.ActiveExecutions.Inc()

	bus.NewEmitter(s.bus, id).LoopResumed()

	s.logger.Info("execution resumed", "exec_id", id, "iteration", e.Iteration)

	if err := s.engine.Start(ctx, s.directive(e)); err != nil {
		s.failDispatchedLocked(ctx, e, fmt.Sprintf("engine start: %v", err))
		return fmt.Errorf("engine start: %w", err)
	}
	return nil
}

// failDispatchedLocked гасит execution, который не удалось
// передать движку, и каскадит его зависимых.
func (s *Scheduler) failDispatchedLocked(ctx context.Context, e *domain.Execution, reason string) {
	if e.MarkFailed(reason) {
		if err := s.store.Update(ctx, e); err != nil {
			s.logger.Error("update failed execution", "exec_id", e.ID, "error", err)
		}
	}

	if s.inFlight[e.ID] {
		delete(s.inFlight, e.ID)
		telemetry.ActiveExecutions.Dec()
	}
	delete(s.entries, e.ID)
	s.statuses[e.ID] = domain.StatusFailed

	bus.NewEmitter(s.bus, e.ID).LoopFailed(reason)

	s.cascadeLocked(ctx, e.ID, domain.StatusFailed)
	s.graph.Remove(e.ID)
}

// failExecutionLocked помечает execution FAILED при структурной
// ошибке регистрации (цикл, неизвестная зависимость).
func (s *Scheduler) failExecutionLocked(ctx context.Context, e *domain.Execution, reason string) {
	s.logger.Error("execution rejected",
		"exec_id", e.ID,
		"reason", reason,
	)

	if !e.MarkFailed(reason) {
		return
	}
	if err := s.store.Update(ctx, e); err != nil {
		s.logger.Error("update rejected execution", "exec_id", e.ID, "error", err)
		return
	}
	s.statuses[e.ID] = domain.StatusFailed

	bus.NewEmitter(s.bus, e.ID).LoopFailed(reason)
}

// wakeLocked — Wake без повторного захвата мьютекса.
func (s *Scheduler) wakeLocked() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// QueueSnapshot возвращает копию очереди для наблюдаемости.
func (s *Scheduler) QueueSnapshot() []QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]QueueEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, *entry)
	}
	return out
}

// InFlightCount возвращает количество выполняющихся executions.
func (s *Scheduler) InFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}
