package scheduler

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGraph_AddAndQuery(t *testing.T) {
	g := NewGraph()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	// A ← B ← C (C зависит от B, B от A)
	if err := g.Add(a, nil); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := g.Add(b, []uuid.UUID{a}); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if err := g.Add(c, []uuid.UUID{b}); err != nil {
		t.Fatalf("add c: %v", err)
	}

	if g.Size() != 3 {
		t.Errorf("size = %d, want 3", g.Size())
	}
	if deps := g.Dependencies(c); len(deps) != 1 || deps[0] != b {
		t.Errorf("c should depend on b, got %v", deps)
	}
	if deps := g.Dependents(a); len(deps) != 1 || deps[0] != b {
		t.Errorf("a should have dependent b, got %v", deps)
	}
}

func TestGraph_TransitiveDependents(t *testing.T) {
	g := NewGraph()
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	// Ромб: B и C зависят от A, D от обоих
	g.Add(a, nil)
	g.Add(b, []uuid.UUID{a})
	g.Add(c, []uuid.UUID{a})
	g.Add(d, []uuid.UUID{b, c})

	got := g.TransitiveDependents(a)
	if len(got) != 3 {
		t.Fatalf("expected 3 transitive dependents, got %d: %v", len(got), got)
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range got {
		seen[id] = true
	}
	if !seen[b] || !seen[c] || !seen[d] {
		t.Errorf("missing dependents in %v", got)
	}
	if seen[a] {
		t.Error("node must not be its own transitive dependent")
	}
}

func TestGraph_UnknownDependency(t *testing.T) {
	g := NewGraph()

	err := g.Add(uuid.New(), []uuid.UUID{uuid.New()})
	if !errors.Is(err, ErrUnknownExecution) {
		t.Errorf("expected ErrUnknownExecution, got %v", err)
	}
}

func TestGraph_SelfDependency(t *testing.T) {
	g := NewGraph()
	a := uuid.New()

	err := g.Add(a, []uuid.UUID{a})
	if !errors.Is(err, ErrDependencyCycle) {
		t.Errorf("expected ErrDependencyCycle, got %v", err)
	}
}

func TestGraph_CycleNamesParticipants(t *testing.T) {
	g := NewGraph()
	a, b := uuid.New(), uuid.New()

	g.Add(a, nil)
	g.Add(b, []uuid.UUID{a})

	// Замыкание a → b через Relink образует цикл
	err := g.Relink(a, []uuid.UUID{b})
	if !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("expected ErrDependencyCycle, got %v", err)
	}

	// Ошибка перечисляет участников цикла
	msg := err.Error()
	if !strings.Contains(msg, a.String()) || !strings.Contains(msg, b.String()) {
		t.Errorf("cycle error should name participants: %s", msg)
	}
}

func TestGraph_RelinkLeafToFullDeps(t *testing.T) {
	g := NewGraph()
	dep, exec := uuid.New(), uuid.New()

	// dep был зарегистрирован листом до собственной постановки в очередь
	g.Add(exec, nil)
	g.Add(dep, nil)

	if err := g.Relink(exec, []uuid.UUID{dep}); err != nil {
		t.Fatalf("relink: %v", err)
	}
	if deps := g.Dependencies(exec); len(deps) != 1 || deps[0] != dep {
		t.Errorf("relink did not take effect: %v", deps)
	}
}

func TestGraph_Remove(t *testing.T) {
	g := NewGraph()
	a, b := uuid.New(), uuid.New()

	g.Add(a, nil)
	g.Add(b, []uuid.UUID{a})
	g.Remove(a)

	if g.Has(a) {
		t.Error("a should be removed")
	}
	if deps := g.Dependencies(b); len(deps) != 0 {
		t.Errorf("edge to removed node should be gone, got %v", deps)
	}
	if dependents := g.Dependents(a); len(dependents) != 0 {
		t.Errorf("removed node should have no dependents, got %v", dependents)
	}
	if g.Size() != 1 {
		t.Errorf("size = %d, want 1", g.Size())
	}
}
