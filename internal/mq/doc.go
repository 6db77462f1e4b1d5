// Package mq транслирует события шины во внешний RabbitMQ для
// сторонних наблюдателей (дашборды, аудит, интеграции).
//
// Структура:
//   - connection.go — соединение с автоматическим reconnect
//   - topology.go   — объявление обменника и очереди наблюдателей
//   - publisher.go  — публикация событий
//   - relay.go      — подписчик шины, пересылающий события в AMQP
//
// Трансляция односторонняя: демон никогда не потребляет из AMQP,
// пробуждение планировщика идёт только через IPC.
package mq
