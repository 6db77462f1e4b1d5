package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shaiso/Overseer/internal/domain"
	"github.com/shaiso/Overseer/internal/telemetry"
)

// defaultCapacity — ёмкость очереди подписчика по умолчанию.
const defaultCapacity = 256

// ErrSubscriberClosed — подписчик закрыт, новых событий не будет.
var ErrSubscriberClosed = errors.New("subscriber closed")

// Bus — шина событий наблюдаемости.
//
// Таблица подписчиков может мутировать конкурентно с Emit:
// subscribe/unsubscribe берут write-lock, путь публикации — read-lock,
// поэтому Emit никогда не видит полуобновлённую таблицу.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscriber
	nextID uint64
}

// New создаёт новую шину событий.
func New() *Bus {
	return &Bus{
		subs: make(map[uint64]*Subscriber),
	}
}

// Subscribe регистрирует нового подписчика с очередью указанной ёмкости.
// capacity <= 0 означает ёмкость по умолчанию.
//
// Подписчик получает только события, опубликованные после подписки.
func (b *Bus) Subscribe(capacity int) *Subscriber {
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	s := &Subscriber{
		bus:    b,
		buf:    make([]domain.Event, capacity),
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	b.mu.Unlock()

	return s
}

// unsubscribe удаляет подписчика из таблицы и закрывает его.
func (b *Bus) unsubscribe(s *Subscriber) {
	b.mu.Lock()
	delete(b.subs, s.id)
	b.mu.Unlock()

	s.mu.Lock()
	if !s.closed {
		s.closed = true
	}
	s.mu.Unlock()
	s.wake()
}

// Emit рассылает событие всем текущим подписчикам.
//
// Вызов не блокируется: отставший подписчик теряет самые старые
// события своей очереди. Публикация без подписчиков легальна и дешева.
func (b *Bus) Emit(e domain.Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	telemetry.EventsEmitted.Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		s.push(e)
	}
}

// SubscriberCount возвращает число активных подписчиков.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Subscriber — один получатель событий с ограниченной очередью.
//
// Очередь — кольцевой буфер: при переполнении самая старая запись
// вытесняется, а счётчик потерь возвращается следующим Next
// как "lagged by N".
type Subscriber struct {
	bus *Bus
	id  uint64

	mu      sync.Mutex
	buf     []domain.Event
	head    int
	size    int
	dropped int
	closed  bool

	notify chan struct{}
}

// push кладёт событие в очередь подписчика. Не блокирует.
func (s *Subscriber) push(e domain.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if s.size == len(s.buf) {
		// Переполнение: вытесняем самое старое событие
		s.head = (s.head + 1) % len(s.buf)
		s.size--
		s.dropped++
		telemetry.EventsDropped.Inc()
	}

	s.buf[(s.head+s.size)%len(s.buf)] = e
	s.size++
	s.mu.Unlock()

	s.wake()
}

// wake сигнализирует ожидающему Next о новом событии.
func (s *Subscriber) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next блокируется до следующего события или отмены контекста.
//
// Второе значение — количество событий, потерянных с предыдущего
// вызова (0, если подписчик не отставал).
func (s *Subscriber) Next(ctx context.Context) (domain.Event, int, error) {
	for {
		if e, lagged, ok := s.TryNext(); ok {
			return e, lagged, nil
		}

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return domain.Event{}, 0, ErrSubscriberClosed
		}

		select {
		case <-ctx.Done():
			return domain.Event{}, 0, ctx.Err()
		case <-s.notify:
		}
	}
}

// TryNext извлекает событие без блокировки.
// Возвращает false, если очередь пуста.
func (s *Subscriber) TryNext() (domain.Event, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size == 0 {
		return domain.Event{}, 0, false
	}

	e := s.buf[s.head]
	s.head = (s.head + 1) % len(s.buf)
	s.size--

	lagged := s.dropped
	s.dropped = 0

	return e, lagged, true
}

// Close отписывает подписчика от шины.
// Уже находящиеся в очереди события теряются.
func (s *Subscriber) Close() {
	s.bus.unsubscribe(s)
}
