package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Overseer/internal/domain"
)

func TestBus_PostSubscriptionDelivery(t *testing.T) {
	b := New()
	execID := uuid.New()

	// События до подписки не доставляются
	b.Emit(domain.Event{Kind: domain.EventLoopStarted, ExecID: execID})

	sub := b.Subscribe(8)
	defer sub.Close()

	b.Emit(domain.Event{Kind: domain.EventIterationStarted, ExecID: execID, Iteration: 1})
	b.Emit(domain.Event{Kind: domain.EventIterationCompleted, ExecID: execID, Iteration: 1})

	ctx := context.Background()

	e1, lagged, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if lagged != 0 {
		t.Errorf("lagged = %d, want 0", lagged)
	}
	if e1.Kind != domain.EventIterationStarted {
		t.Errorf("first event = %s, pre-subscription event leaked", e1.Kind)
	}

	e2, _, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if e2.Kind != domain.EventIterationCompleted {
		t.Errorf("events out of order: %s", e2.Kind)
	}
}

func TestBus_LaggedSubscriberDropsOldest(t *testing.T) {
	b := New()
	sub := b.Subscribe(3)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		b.Emit(domain.Event{
			Kind:    domain.EventToolCall,
			Message: fmt.Sprintf("call-%d", i),
		})
	}

	// Ёмкость 3, опубликовано 5: два старейших вытеснены
	e, lagged, err := sub.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if lagged != 2 {
		t.Errorf("lagged = %d, want 2", lagged)
	}
	if e.Message != "call-2" {
		t.Errorf("oldest surviving event = %q, want call-2", e.Message)
	}

	// Счётчик потерь отдаётся один раз
	_, lagged, _ = sub.Next(context.Background())
	if lagged != 0 {
		t.Errorf("lagged reported twice: %d", lagged)
	}
}

func TestBus_EmitWithoutSubscribers(t *testing.T) {
	b := New()

	// Не должно паниковать и блокироваться
	b.Emit(domain.Event{Kind: domain.EventWarning, Message: "no one listens"})

	if b.SubscriberCount() != 0 {
		t.Errorf("subscriber count = %d, want 0", b.SubscriberCount())
	}
}

func TestBus_EmitSetsTimestamp(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)
	defer sub.Close()

	b.Emit(domain.Event{Kind: domain.EventError})

	e, _, ok := sub.TryNext()
	if !ok {
		t.Fatal("event not delivered")
	}
	if e.At.IsZero() {
		t.Error("Emit should stamp events missing a timestamp")
	}
}

func TestBus_NextAfterClose(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)
	sub.Close()

	if _, _, err := sub.Next(context.Background()); err != ErrSubscriberClosed {
		t.Errorf("expected ErrSubscriberClosed, got %v", err)
	}
	if b.SubscriberCount() != 0 {
		t.Error("closed subscriber still registered")
	}
}

func TestBus_NextHonorsContext(t *testing.T) {
	b := New()
	sub := b.Subscribe(1)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, _, err := sub.Next(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestEmitter_AttributesEvents(t *testing.T) {
	b := New()
	sub := b.Subscribe(8)
	defer sub.Close()

	execID := uuid.New()
	em := NewEmitter(b, execID)

	em.LoopStarted("implement")
	em.LLMResponse("model-x", 1500, 2*time.Second)
	em.LoopCompleted()

	kinds := []domain.EventKind{
		domain.EventLoopStarted,
		domain.EventLLMResponse,
		domain.EventLoopCompleted,
	}
	for _, want := range kinds {
		e, _, err := sub.Next(context.Background())
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if e.Kind != want {
			t.Errorf("kind = %s, want %s", e.Kind, want)
		}
		if e.ExecID != execID {
			t.Errorf("event %s not attributed to execution", e.Kind)
		}
	}
}
