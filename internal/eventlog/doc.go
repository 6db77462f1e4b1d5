// Package eventlog реализует журналирующего подписчика EventBus.
//
// Writer сохраняет каждое полученное событие, в порядке прибытия,
// в append-only файл runs/{exec_id}/events.jsonl с flush после
// каждой записи. Файл открывается при первом событии execution'а
// и закрывается по его терминальному событию, поэтому количество
// открытых дескрипторов ограничено числом активных executions,
// а не историческим итогом.
package eventlog
