// Package telemetry обеспечивает наблюдаемость системы.
//
// Структура:
//   - logging.go — настройка structured logging (slog) и хелперы контекста
//   - metrics.go — Prometheus метрики ядра оркестрации
//
// Конфигурация через переменные окружения:
//   - LOG_LEVEL  — DEBUG | INFO | WARN | ERROR (default: INFO)
//   - LOG_FORMAT — json | text (default: json)
package telemetry
