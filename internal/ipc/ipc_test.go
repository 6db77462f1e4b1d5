package ipc

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func startTestServer(t *testing.T, cfg ServerConfig) (*Server, string) {
	t.Helper()

	socket := filepath.Join(t.TempDir(), "overseer.sock")
	cfg.SocketPath = socket
	if cfg.Version == "" {
		cfg.Version = "test"
	}

	srv := NewServer(cfg)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(srv.Stop)

	return srv, socket
}

func TestIPC_PingPong(t *testing.T) {
	_, socket := startTestServer(t, ServerConfig{Version: "1.2.3"})

	client := NewClient(socket, time.Second)
	version, err := client.Ping()
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", version)
	}
}

func TestIPC_PendingNotificationReachesHandler(t *testing.T) {
	var mu sync.Mutex
	var got []uuid.UUID

	_, socket := startTestServer(t, ServerConfig{
		OnPending: func(id uuid.UUID) {
			mu.Lock()
			got = append(got, id)
			mu.Unlock()
		},
	})

	client := NewClient(socket, time.Second)
	id := uuid.New()
	if err := client.NotifyPending(id); err != nil {
		t.Fatalf("notify: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != id {
		t.Errorf("handler got %v, want [%s]", got, id)
	}
}

func TestIPC_PendingRequiresID(t *testing.T) {
	_, socket := startTestServer(t, ServerConfig{})

	client := NewClient(socket, time.Second)
	_, err := client.Call(Request{Kind: ReqExecutionPending})
	if !errors.Is(err, ErrDaemon) {
		t.Errorf("expected ErrDaemon for missing id, got %v", err)
	}
}

func TestIPC_ResumedErrorPropagates(t *testing.T) {
	_, socket := startTestServer(t, ServerConfig{
		OnResumed: func(id uuid.UUID) error {
			return errors.New("execution is RUNNING")
		},
	})

	client := NewClient(socket, time.Second)
	_, err := client.Call(Request{Kind: ReqExecutionResumed, ID: uuid.New()})
	if !errors.Is(err, ErrDaemon) {
		t.Fatalf("expected ErrDaemon, got %v", err)
	}
	if !strings.Contains(err.Error(), "RUNNING") {
		t.Errorf("daemon error text lost: %v", err)
	}
}

func TestIPC_UnknownKindRejected(t *testing.T) {
	_, socket := startTestServer(t, ServerConfig{})

	client := NewClient(socket, time.Second)
	_, err := client.Call(Request{Kind: "bogus"})
	if !errors.Is(err, ErrDaemon) {
		t.Errorf("expected ErrDaemon, got %v", err)
	}
}

func TestIPC_NotifyUnreachableDaemonIsSilent(t *testing.T) {
	// Сокета нет: fire-and-forget возвращается быстро и без ошибки
	client := NewClient(filepath.Join(t.TempDir(), "nope.sock"), 200*time.Millisecond)

	start := time.Now()
	if err := client.NotifyPending(uuid.New()); err != nil {
		t.Errorf("notify against dead daemon should be silent, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("notify should return promptly when the daemon is unreachable")
	}

	// Обычный вызов, напротив, различимо сообщает о недоступности
	if _, err := client.Call(Request{Kind: ReqPing}); !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
}

func TestIPC_OversizedRequestRejected(t *testing.T) {
	_, socket := startTestServer(t, ServerConfig{})
	client := NewClient(socket, time.Second)

	// Запрос больше лимита отклоняется ещё на клиенте
	big := Request{Kind: RequestKind(strings.Repeat("x", MaxMessageSize))}
	if _, err := client.Call(big); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestIPC_ShutdownInvokesCallback(t *testing.T) {
	done := make(chan struct{})
	_, socket := startTestServer(t, ServerConfig{
		OnShutdown: func() { close(done) },
	})

	client := NewClient(socket, time.Second)
	if err := client.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("shutdown callback not invoked")
	}
}
