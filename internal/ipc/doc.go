// Package ipc реализует протокол пробуждения демона: newline-delimited
// JSON поверх локального unix domain socket.
//
// Структура:
//   - protocol.go — типы запросов/ответов, лимит размера сообщения
//   - server.go   — серверная сторона (в демоне)
//   - client.go   — клиентская сторона (CLI, движок)
//   - errors.go   — ошибки пакета
//
// Запросы: execution_pending{id}, execution_resumed{id}, ping, shutdown.
// Ответы: ok, pong{version}, error{message}.
//
// Гарантии протокола:
//   - Жёсткий максимум размера сообщения, превышение отклоняется
//   - У каждого вызова есть таймаут
//   - Fire-and-forget уведомления не блокируют вызывающего,
//     если демон недоступен
//   - По форме ответа различимы "демон недоступен", "демон вернул
//     ошибку" и "запрос некорректен"
package ipc
