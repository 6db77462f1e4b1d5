package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Overseer/internal/bus"
	"github.com/shaiso/Overseer/internal/domain"
)

// fileName — имя журнала событий внутри каталога execution'а.
const fileName = "events.jsonl"

// envelope — обёртка события с меткой времени записи.
type envelope struct {
	WrittenAt time.Time    `json:"written_at"`
	Event     domain.Event `json:"event"`
}

// logFile — открытый журнал одного execution.
type logFile struct {
	f *os.File
	w *bufio.Writer
}

// Writer пишет события в файлы журналов, по одному на execution.
type Writer struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	files map[uuid.UUID]*logFile
}

// NewWriter создаёт Writer с журналами под <root>/runs/.
func NewWriter(root string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		root:   root,
		logger: logger,
		files:  make(map[uuid.UUID]*logFile),
	}
}

// Run потребляет события подписчика до отмены контекста.
//
// Ошибка записи фатальна и возвращается вызывающему: журнал событий —
// durable-поверхность, тихая потеря недопустима. Отставание подписчика
// фиксируется предупреждением "lagged by N".
func (w *Writer) Run(ctx context.Context, sub *bus.Subscriber) error {
	defer w.Close()

	for {
		e, lagged, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, bus.ErrSubscriberClosed) {
				return nil
			}
			return err
		}

		if lagged > 0 {
			w.logger.Warn("event log subscriber lagged",
				"lagged_by", lagged,
			)
		}

		if err := w.Write(e); err != nil {
			return err
		}
	}
}

// Write сохраняет одно событие в журнал его execution'а.
// По терминальному событию журнал закрывается.
func (w *Writer) Write(e domain.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	lf, err := w.fileFor(e.ExecID)
	if err != nil {
		return err
	}

	line, err := json.Marshal(envelope{WrittenAt: time.Now(), Event: e})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := lf.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write event log: %w", err)
	}
	if err := lf.w.Flush(); err != nil {
		return fmt.Errorf("flush event log: %w", err)
	}

	if e.IsTerminal() {
		if err := w.closeLocked(e.ExecID); err != nil {
			return err
		}
	}
	return nil
}

// fileFor возвращает журнал execution'а, открывая его при первом событии.
// Вызывается под мьютексом.
func (w *Writer) fileFor(execID uuid.UUID) (*logFile, error) {
	if lf, ok := w.files[execID]; ok {
		return lf, nil
	}

	dir := filepath.Join(w.root, "runs", execID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	lf := &logFile{f: f, w: bufio.NewWriter(f)}
	w.files[execID] = lf

	w.logger.Debug("event log opened", "exec_id", execID)
	return lf, nil
}

// closeLocked закрывает журнал execution'а. Вызывается под мьютексом.
func (w *Writer) closeLocked(execID uuid.UUID) error {
	lf, ok := w.files[execID]
	if !ok {
		return nil
	}
	delete(w.files, execID)

	if err := lf.w.Flush(); err != nil {
		lf.f.Close()
		return fmt.Errorf("flush event log: %w", err)
	}
	if err := lf.f.Close(); err != nil {
		return fmt.Errorf("close event log: %w", err)
	}

	w.logger.Debug("event log closed", "exec_id", execID)
	return nil
}

// OpenCount возвращает количество открытых журналов.
func (w *Writer) OpenCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.files)
}

// Close сбрасывает и закрывает все открытые журналы.
// Гарантирует flush на каждом пути завершения процесса.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for id := range w.files {
		if err := w.closeLocked(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
