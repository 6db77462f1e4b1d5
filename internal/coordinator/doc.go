// Package coordinator реализует durable-почту для координационных
// сообщений между конкурентно выполняющимися executions.
//
// Структура:
//   - coordinator.go — журнал сообщений (Persist, Resolve, Unresolved, ...)
//   - janitor.go     — cron-очистка разрешённых устаревших записей
//   - errors.go      — ошибки пакета
//
// Модель надёжности:
//   - Сообщение считается доставленным только после записи в журнал
//     (line-delimited JSON, <root>/coordination.jsonl)
//   - Любая ошибка I/O при записи или разрешении фатальна и
//     возвращается вызывающему — durability не компрометируется тихо
//   - Повреждённая строка при чтении пропускается с предупреждением,
//     одна битая запись не уничтожает весь набор восстановления
//   - Unresolved() после рестарта демона возвращает ровно ту
//     координационную работу, что была незавершена в момент падения;
//     потребители обязаны обрабатывать повторную доставку идемпотентно
//
// Координация — канал управления, в отличие от шины событий (пакет bus),
// которая служит только наблюдаемости.
package coordinator
