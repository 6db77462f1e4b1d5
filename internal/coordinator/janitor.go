package coordinator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Настройки Janitor по умолчанию.
const (
	// defaultSchedule — раз в час, в начале часа.
	defaultSchedule = "0 * * * *"

	// defaultRetention — разрешённые сообщения хранятся 72 часа.
	defaultRetention = 72 * time.Hour
)

// Janitor периодически удаляет разрешённые устаревшие сообщения
// из журнала координатора.
type Janitor struct {
	coord     *Coordinator
	cron      *cron.Cron
	retention time.Duration
	logger    *slog.Logger
}

// JanitorConfig — конфигурация Janitor.
type JanitorConfig struct {
	// Schedule — cron-выражение запуска очистки (default: "0 * * * *").
	Schedule string

	// Retention — минимальный возраст разрешённого сообщения
	// для удаления (default: 72h).
	Retention time.Duration

	// Logger — логгер.
	Logger *slog.Logger
}

// NewJanitor создаёт Janitor для координатора.
func NewJanitor(coord *Coordinator, cfg JanitorConfig) (*Janitor, error) {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRetention
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	j := &Janitor{
		coord:     coord,
		cron:      cron.New(),
		retention: retention,
		logger:    logger,
	}

	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return nil, fmt.Errorf("parse janitor schedule %q: %w", schedule, err)
	}

	return j, nil
}

// Start запускает расписание очистки.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("coordination janitor started", "retention", j.retention)
}

// Stop останавливает расписание и дожидается текущего запуска.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("coordination janitor stopped")
}

// run выполняет один проход очистки.
func (j *Janitor) run() {
	removed, err := j.coord.CleanupOlderThan(j.retention)
	if err != nil {
		j.logger.Error("coordination cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		j.logger.Info("coordination cleanup completed", "removed", removed)
	}
}
