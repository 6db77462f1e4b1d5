// Package bus реализует EventBus — fan-out публикацию событий
// наблюдаемости от многих продюсеров к независимым подписчикам.
//
// Структура:
//   - bus.go     — Bus и Subscriber (ограниченный ring buffer на подписчика)
//   - emitter.go — Emitter, per-execution ручка с методом на каждый тип события
//
// Гарантии доставки:
//   - Emit никогда не блокирует продюсера, в том числе при нуле подписчиков
//   - Каждый подписчик получает события в порядке публикации
//   - Подписчик видит только события, опубликованные после подписки
//   - Отставший подписчик теряет самые старые события и получает
//     явный сигнал "lagged by N", а не тихую потерю
//
// Bus — канал наблюдаемости, не управления: координационные сообщения
// между executions идут через пакет coordinator.
package bus
