package coordinator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Overseer/internal/domain"
)

func newTestCoordinator(t *testing.T) (*Coordinator, string) {
	t.Helper()
	root := t.TempDir()
	c, err := New(root, nil)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c, root
}

func TestCoordinator_SendAndList(t *testing.T) {
	c, _ := newTestCoordinator(t)
	e1, e2 := uuid.New(), uuid.New()

	// e1: один alert и один query к e2; e2: один share к e1
	if _, err := c.SendAlert(e1, map[string]any{"disk": "full"}); err != nil {
		t.Fatalf("alert: %v", err)
	}
	if _, err := c.SendQuery(e1, e2, map[string]any{"question": "schema?"}); err != nil {
		t.Fatalf("query: %v", err)
	}
	if _, err := c.SendShare(e2, e1, map[string]any{"schema": "v2"}); err != nil {
		t.Fatalf("share: %v", err)
	}

	unresolved, err := c.Unresolved()
	if err != nil {
		t.Fatalf("unresolved: %v", err)
	}
	if len(unresolved) != 3 {
		t.Errorf("unresolved = %d, want 3", len(unresolved))
	}

	// e1 касаются все три, e2 — только два адресных
	forE1, _ := c.ForExecution(e1)
	if len(forE1) != 3 {
		t.Errorf("messages for e1 = %d, want 3", len(forE1))
	}
	forE2, _ := c.ForExecution(e2)
	if len(forE2) != 2 {
		t.Errorf("messages for e2 = %d, want 2", len(forE2))
	}
}

func TestCoordinator_TargetedRequiresRecipient(t *testing.T) {
	c, _ := newTestCoordinator(t)

	if _, err := c.SendQuery(uuid.New(), uuid.Nil, nil); !errors.Is(err, ErrMissingTarget) {
		t.Errorf("expected ErrMissingTarget, got %v", err)
	}
	if _, err := c.SendShare(uuid.New(), uuid.Nil, nil); !errors.Is(err, ErrMissingTarget) {
		t.Errorf("expected ErrMissingTarget, got %v", err)
	}
}

func TestCoordinator_ResolveIdempotent(t *testing.T) {
	c, _ := newTestCoordinator(t)

	msg, err := c.SendAlert(uuid.New(), nil)
	if err != nil {
		t.Fatalf("alert: %v", err)
	}

	changed, err := c.Resolve(msg.ID)
	if err != nil || !changed {
		t.Fatalf("first resolve: changed=%v err=%v", changed, err)
	}

	// Повторное разрешение — no-op без ошибки
	changed, err = c.Resolve(msg.ID)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if changed {
		t.Error("second resolve should report false")
	}

	if _, err := c.Resolve(uuid.New()); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestCoordinator_RestartRecovery(t *testing.T) {
	c1, root := newTestCoordinator(t)
	from := uuid.New()

	resolved, _ := c1.SendAlert(from, map[string]any{"n": 1.0})
	c1.SendAlert(from, map[string]any{"n": 2.0})
	c1.Resolve(resolved.ID)

	// Новый Coordinator над тем же каталогом видит ровно
	// незавершённую координационную работу
	c2, err := New(root, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	unresolved, err := c2.Unresolved()
	if err != nil {
		t.Fatalf("unresolved: %v", err)
	}
	if len(unresolved) != 1 {
		t.Fatalf("unresolved after restart = %d, want 1", len(unresolved))
	}
	if unresolved[0].ID == resolved.ID {
		t.Error("resolved message leaked into unresolved set")
	}
}

func TestCoordinator_CleanupKeepsUnresolved(t *testing.T) {
	c, _ := newTestCoordinator(t)
	from := uuid.New()

	old := &domain.Message{
		ID:        uuid.New(),
		Kind:      domain.KindAlert,
		From:      from,
		CreatedAt: time.Now().Add(-100 * time.Hour),
	}
	if err := c.Persist(old); err != nil {
		t.Fatalf("persist: %v", err)
	}

	resolvedOld := time.Now().Add(-90 * time.Hour)
	done := &domain.Message{
		ID:         uuid.New(),
		Kind:       domain.KindAlert,
		From:       from,
		CreatedAt:  time.Now().Add(-100 * time.Hour),
		ResolvedAt: &resolvedOld,
	}
	if err := c.Persist(done); err != nil {
		t.Fatalf("persist: %v", err)
	}

	removed, err := c.CleanupOlderThan(72 * time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	// Неразрешённое сообщение переживает любую чистку
	unresolved, _ := c.Unresolved()
	if len(unresolved) != 1 || unresolved[0].ID != old.ID {
		t.Errorf("unresolved message must survive cleanup: %v", unresolved)
	}
}

func TestCoordinator_CleanupKeepsFreshResolved(t *testing.T) {
	c, _ := newTestCoordinator(t)

	msg, _ := c.SendAlert(uuid.New(), nil)
	c.Resolve(msg.ID)

	removed, err := c.CleanupOlderThan(72 * time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 0 {
		t.Errorf("freshly resolved message removed: %d", removed)
	}
}

func TestCoordinator_SkipsMalformedLines(t *testing.T) {
	c, root := newTestCoordinator(t)

	c.SendAlert(uuid.New(), nil)

	// Дописываем мусорную строку прямо в журнал
	f, err := os.OpenFile(filepath.Join(root, logFileName), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	f.WriteString("{not json\n")
	f.Close()

	c.SendAlert(uuid.New(), nil)

	msgs, err := c.Unresolved()
	if err != nil {
		t.Fatalf("unresolved: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("messages = %d, want 2 (malformed line skipped)", len(msgs))
	}
}
