package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Overseer/internal/bus"
	"github.com/shaiso/Overseer/internal/domain"
)

func readLog(t *testing.T, root string, execID uuid.UUID) []envelope {
	t.Helper()

	f, err := os.Open(filepath.Join(root, "runs", execID.String(), fileName))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var out []envelope
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var env envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			t.Fatalf("malformed log line: %v", err)
		}
		out = append(out, env)
	}
	return out
}

func TestWriter_OneLogPerExecution(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	defer w.Close()

	e1, e2 := uuid.New(), uuid.New()

	w.Write(domain.Event{Kind: domain.EventLoopStarted, ExecID: e1, At: time.Now()})
	w.Write(domain.Event{Kind: domain.EventLoopStarted, ExecID: e2, At: time.Now()})
	w.Write(domain.Event{Kind: domain.EventIterationStarted, ExecID: e1, Iteration: 1, At: time.Now()})

	log1 := readLog(t, root, e1)
	if len(log1) != 2 {
		t.Errorf("e1 log has %d lines, want 2", len(log1))
	}
	log2 := readLog(t, root, e2)
	if len(log2) != 1 {
		t.Errorf("e2 log has %d lines, want 1", len(log2))
	}
	if log1[1].Event.Iteration != 1 {
		t.Error("event payload lost in envelope")
	}
}

func TestWriter_ClosesOnTerminalEvent(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)
	defer w.Close()

	execID := uuid.New()

	w.Write(domain.Event{Kind: domain.EventLoopStarted, ExecID: execID, At: time.Now()})
	if w.OpenCount() != 1 {
		t.Fatalf("open count = %d, want 1", w.OpenCount())
	}

	w.Write(domain.Event{Kind: domain.EventLoopCompleted, ExecID: execID, At: time.Now()})
	if w.OpenCount() != 0 {
		t.Errorf("terminal event should close the log, open count = %d", w.OpenCount())
	}

	// Терминальное событие само попадает в журнал
	lines := readLog(t, root, execID)
	if len(lines) != 2 || lines[1].Event.Kind != domain.EventLoopCompleted {
		t.Errorf("terminal event missing from log: %v", lines)
	}
}

func TestWriter_RunConsumesSubscription(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root, nil)

	b := bus.New()
	sub := b.Subscribe(16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, sub)
	}()

	execID := uuid.New()
	em := bus.NewEmitter(b, execID)
	em.LoopStarted("plan")
	em.IterationStarted(1)
	em.LoopFailed("iterations exhausted")

	// Ждём, пока все три события окажутся на диске
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(filepath.Join(root, "runs", execID.String(), fileName)); err == nil {
			if len(readLog(t, root, execID)) == 3 {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := readLog(t, root, execID)
	if len(lines) != 3 {
		t.Fatalf("log has %d lines, want 3", len(lines))
	}
	if lines[2].Event.Kind != domain.EventLoopFailed {
		t.Errorf("last event = %s, want loop.failed", lines[2].Event.Kind)
	}
	if w.OpenCount() != 0 {
		t.Error("all logs should be closed after terminal event and shutdown")
	}
}
