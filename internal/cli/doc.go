// Package cli содержит команды консольной утилиты overseer-cli.
//
// Структура:
//   - client.go    — доступ к хранилищу, журналу координации и IPC
//   - output.go    — форматирование вывода (таблицы / JSON)
//   - execution.go — команды управления executions
//   - message.go   — команды координационных сообщений
//   - ping.go      — проверка живости демона
//
// CLI работает с Postgres и журналом координации напрямую, а демона
// лишь будит через IPC: недоступный демон не мешает заводить записи,
// планировщик подберёт их при следующем опросе.
package cli
