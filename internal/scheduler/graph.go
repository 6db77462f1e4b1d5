package scheduler

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Graph — граф зависимостей между executions.
//
// Ребро A → B означает "B зависит от A". Граф обязан оставаться
// ациклическим: Add отклоняет нарушающие это регистрации с ошибкой,
// называющей цикл.
//
// Graph не потокобезопасен — им владеет Scheduler и мутирует
// его под собственным мьютексом.
type Graph struct {
	// deps — id → его зависимости.
	deps map[uuid.UUID][]uuid.UUID

	// dependents — id → кто от него зависит (прямые).
	dependents map[uuid.UUID][]uuid.UUID
}

// NewGraph создаёт пустой граф.
func NewGraph() *Graph {
	return &Graph{
		deps:       make(map[uuid.UUID][]uuid.UUID),
		dependents: make(map[uuid.UUID][]uuid.UUID),
	}
}

// Add регистрирует execution с его зависимостями.
//
// Каждая зависимость обязана быть уже известной графу
// (ErrUnknownExecution), а регистрация — не образовывать цикл
// (ErrDependencyCycle с перечислением цикла). Структурные ошибки
// ловятся здесь, при регистрации.
func (g *Graph) Add(id uuid.UUID, deps []uuid.UUID) error {
	if _, exists := g.deps[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	for _, dep := range deps {
		if dep == id {
			return fmt.Errorf("%w: %s -> %s", ErrDependencyCycle, id, id)
		}
		if _, known := g.deps[dep]; !known {
			return fmt.Errorf("%w: dependency %s", ErrUnknownExecution, dep)
		}
	}

	// Существующий граф ацикличен, а все зависимости уже известны —
	// цикл мог бы возникнуть только через путь из dep обратно в id.
	for _, dep := range deps {
		if path := g.pathTo(dep, id, nil); path != nil {
			cycle := append([]uuid.UUID{id}, path...)
			return fmt.Errorf("%w: %s", ErrDependencyCycle, formatCycle(cycle))
		}
	}

	g.deps[id] = append([]uuid.UUID(nil), deps...)
	for _, dep := range deps {
		g.dependents[dep] = append(g.dependents[dep], id)
	}
	return nil
}

// Relink заменяет зависимости ранее зарегистрированного execution'а.
//
// Используется, когда execution был известен графу как лист
// (зависимость, зарегистрированная до собственной постановки в очередь),
// а теперь встаёт в очередь с полным списком зависимостей.
// Проверки те же, что у Add.
func (g *Graph) Relink(id uuid.UUID, deps []uuid.UUID) error {
	old, exists := g.deps[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownExecution, id)
	}

	for _, dep := range old {
		g.dependents[dep] = removeID(g.dependents[dep], id)
	}
	delete(g.deps, id)

	if err := g.Add(id, deps); err != nil {
		// Восстанавливаем прежние рёбра
		g.deps[id] = old
		for _, dep := range old {
			g.dependents[dep] = append(g.dependents[dep], id)
		}
		return err
	}
	return nil
}

// Has возвращает true, если execution известен графу.
func (g *Graph) Has(id uuid.UUID) bool {
	_, ok := g.deps[id]
	return ok
}

// Dependencies возвращает зависимости execution'а.
func (g *Graph) Dependencies(id uuid.UUID) []uuid.UUID {
	return g.deps[id]
}

// Dependents возвращает прямых зависимых execution'а.
func (g *Graph) Dependents(id uuid.UUID) []uuid.UUID {
	return g.dependents[id]
}

// TransitiveDependents возвращает всех прямых и транзитивных
// зависимых execution'а в детерминированном BFS-порядке.
func (g *Graph) TransitiveDependents(id uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]bool{id: true}
	queue := append([]uuid.UUID(nil), g.dependents[id]...)
	var out []uuid.UUID

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		out = append(out, next)
		queue = append(queue, g.dependents[next]...)
	}
	return out
}

// Remove удаляет execution из графа вместе с рёбрами в обе стороны:
// у зависимых эта зависимость перестаёт существовать. Вызывать можно
// только после обработки терминального исхода — для FAILED/STOPPED
// каскад обязан пройти до удаления, иначе зависимые потеряют ребро
// и уйдут в диспетчеризацию.
func (g *Graph) Remove(id uuid.UUID) {
	for _, dep := range g.deps[id] {
		g.dependents[dep] = removeID(g.dependents[dep], id)
	}
	for _, dependent := range g.dependents[id] {
		g.deps[dependent] = removeID(g.deps[dependent], id)
	}
	delete(g.deps, id)
	delete(g.dependents, id)
}

// Size возвращает количество зарегистрированных executions.
func (g *Graph) Size() int {
	return len(g.deps)
}

// pathTo ищет путь от from до target по рёбрам зависимостей (DFS).
// Возвращает путь включая обе конечные точки или nil.
func (g *Graph) pathTo(from, target uuid.UUID, visited map[uuid.UUID]bool) []uuid.UUID {
	if from == target {
		return []uuid.UUID{from}
	}
	if visited == nil {
		visited = make(map[uuid.UUID]bool)
	}
	if visited[from] {
		return nil
	}
	visited[from] = true

	for _, dep := range g.deps[from] {
		if path := g.pathTo(dep, target, visited); path != nil {
			return append([]uuid.UUID{from}, path...)
		}
	}
	return nil
}

// formatCycle форматирует цикл в строку "a -> b -> a".
func formatCycle(ids []uuid.UUID) string {
	parts := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	parts = append(parts, ids[0].String())
	return strings.Join(parts, " -> ")
}

// removeID удаляет id из среза, сохраняя порядок.
func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
