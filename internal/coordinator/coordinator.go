package coordinator

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Overseer/internal/domain"
	"github.com/shaiso/Overseer/internal/telemetry"
)

// logFileName — имя файла журнала под корнем хранилища.
const logFileName = "coordination.jsonl"

// maxLineSize — максимальный размер одной строки журнала при чтении.
const maxLineSize = 1 << 20

// Coordinator — durable-почта координационных сообщений.
//
// У журнала ровно один владеющий писатель: все мутации
// сериализуются мьютексом.
type Coordinator struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// New создаёт Coordinator с журналом под указанным корнем хранилища.
func New(root string, logger *slog.Logger) (*Coordinator, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		path:   filepath.Join(root, logFileName),
		logger: logger,
	}, nil
}

// Persist дописывает сообщение в журнал.
//
// Только после успешного возврата сообщение считается доставленным.
// Ошибка I/O фатальна и возвращается вызывающему.
func (c *Coordinator) Persist(msg *domain.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open coordination log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync coordination log: %w", err)
	}

	telemetry.MessagesPersisted.WithLabelValues(string(msg.Kind)).Inc()

	c.logger.Debug("message persisted",
		"message_id", msg.ID,
		"kind", msg.Kind,
		"from", msg.From,
	)

	return nil
}

// SendAlert записывает широковещательное оповещение.
func (c *Coordinator) SendAlert(from uuid.UUID, payload map[string]any) (*domain.Message, error) {
	msg := &domain.Message{
		Kind:    domain.KindAlert,
		From:    from,
		Payload: payload,
	}
	if err := c.Persist(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// SendQuery записывает точечный запрос от from к to.
func (c *Coordinator) SendQuery(from, to uuid.UUID, payload map[string]any) (*domain.Message, error) {
	return c.sendTargeted(domain.KindQuery, from, to, payload)
}

// SendShare записывает точечную передачу данных от from к to.
func (c *Coordinator) SendShare(from, to uuid.UUID, payload map[string]any) (*domain.Message, error) {
	return c.sendTargeted(domain.KindShare, from, to, payload)
}

func (c *Coordinator) sendTargeted(kind domain.MessageKind, from, to uuid.UUID, payload map[string]any) (*domain.Message, error) {
	if to == uuid.Nil {
		return nil, ErrMissingTarget
	}
	msg := &domain.Message{
		Kind:    kind,
		From:    from,
		To:      &to,
		Payload: payload,
	}
	if err := c.Persist(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Resolve устанавливает resolved_at у сообщения.
//
// Возвращает true, если разрешение произошло сейчас; false без ошибки,
// если сообщение уже было разрешено (идемпотентность). Неизвестный id —
// ошибка ErrUnknownMessage.
//
// Журнал перезаписывается целиком: записи мутируют ровно один раз,
// настоящий append здесь невозможен.
func (c *Coordinator) Resolve(id uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, err := c.readAll()
	if err != nil {
		return false, err
	}

	found := false
	updated := false
	now := time.Now()

	for i := range msgs {
		if msgs[i].ID != id {
			continue
		}
		found = true
		if msgs[i].ResolvedAt == nil {
			msgs[i].ResolvedAt = &now
			updated = true
		}
		break
	}

	if !found {
		return false, fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	if !updated {
		// Уже разрешено — повторный вызов ничего не меняет
		return false, nil
	}

	if err := c.rewrite(msgs); err != nil {
		return false, err
	}

	telemetry.MessagesResolved.Inc()

	c.logger.Debug("message resolved", "message_id", id)
	return true, nil
}

// Unresolved возвращает все сообщения без resolved_at.
//
// Это поверхность восстановления после краха: при рестарте демона
// здесь ровно та координационная работа, что была незавершена.
func (c *Coordinator) Unresolved() ([]domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, err := c.readAll()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsResolved() {
			out = append(out, m)
		}
	}
	return out, nil
}

// ForExecution возвращает все сообщения, где execution —
// отправитель или адресованный получатель.
func (c *Coordinator) ForExecution(execID uuid.UUID) ([]domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, err := c.readAll()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0)
	for _, m := range msgs {
		if m.Concerns(execID) {
			out = append(out, m)
		}
	}
	return out, nil
}

// CleanupOlderThan удаляет разрешённые сообщения старше maxAge.
//
// Неразрешённые записи сохраняются независимо от возраста.
// Возвращает количество удалённых записей.
func (c *Coordinator) CleanupOlderThan(maxAge time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, err := c.readAll()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	kept := make([]domain.Message, 0, len(msgs))
	removed := 0

	for _, m := range msgs {
		if m.IsResolved() && m.ResolvedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, m)
	}

	if removed == 0 {
		return 0, nil
	}

	if err := c.rewrite(kept); err != nil {
		return 0, err
	}

	c.logger.Info("coordination log cleaned",
		"removed", removed,
		"kept", len(kept),
	)
	return removed, nil
}

// readAll читает журнал целиком. Вызывается под мьютексом.
// Повреждённые строки пропускаются с предупреждением.
func (c *Coordinator) readAll() ([]domain.Message, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open coordination log: %w", err)
	}
	defer f.Close()

	var msgs []domain.Message

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var m domain.Message
		if err := json.Unmarshal(line, &m); err != nil {
			c.logger.Warn("skipping malformed coordination log line",
				"line", lineNo,
				"error", err,
			)
			continue
		}
		msgs = append(msgs, m)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read coordination log: %w", err)
	}
	return msgs, nil
}

// rewrite атомарно заменяет журнал новым содержимым
// (временный файл + rename). Вызывается под мьютексом.
func (c *Coordinator) rewrite(msgs []domain.Message) error {
	tmp, err := os.CreateTemp(filepath.Dir(c.path), logFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	for i := range msgs {
		line, err := json.Marshal(&msgs[i])
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("marshal message: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("write temp log: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flush temp log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp log: %w", err)
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace coordination log: %w", err)
	}
	return nil
}
