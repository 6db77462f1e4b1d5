package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Overseer/internal/domain"
)

// ExecutionRepo — репозиторий для работы с executions.
//
// Статус хранится числовым кодом (domain.ExecutionStatus.Code),
// отображение версионировано на стороне domain.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

const executionColumns = `
	id, loop_type, title, parent_id, depends_on, priority, status,
	worktree_path, iteration, progress, context, last_error,
	artifact_path, artifact_status, tokens_used, duration_ms,
	created_at, updated_at
`

// Create создаёт новый execution.
func (r *ExecutionRepo) Create(ctx context.Context, e *domain.Execution) error {
	dependsJSON, err := json.Marshal(e.DependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}
	contextJSON, err := json.Marshal(e.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = r.pool.Exec(ctx, query,
		e.ID,
		e.LoopType,
		nullString(e.Title),
		e.ParentID,
		dependsJSON,
		e.Priority,
		e.Status.Code(),
		nullString(e.WorktreePath),
		e.Iteration,
		nullString(e.Progress),
		contextJSON,
		nullString(e.LastError),
		nullString(e.ArtifactPath),
		nullString(e.ArtifactStatus),
		e.TokensUsed,
		e.DurationMs,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetByID возвращает execution по ID.
func (r *ExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`
	return scanExecution(r.pool.QueryRow(ctx, query, id))
}

// Update обновляет мутируемые поля execution.
func (r *ExecutionRepo) Update(ctx context.Context, e *domain.Execution) error {
	contextJSON, err := json.Marshal(e.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	query := `
		UPDATE executions
		SET status = $2, worktree_path = $3, iteration = $4, progress = $5,
		    context = $6, last_error = $7, artifact_path = $8,
		    artifact_status = $9, tokens_used = $10, duration_ms = $11,
		    priority = $12, updated_at = $13
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		e.ID,
		e.Status.Code(),
		nullString(e.WorktreePath),
		e.Iteration,
		nullString(e.Progress),
		contextJSON,
		nullString(e.LastError),
		nullString(e.ArtifactPath),
		nullString(e.ArtifactStatus),
		e.TokensUsed,
		e.DurationMs,
		e.Priority,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByStatus возвращает executions в указанном статусе (индекс по status).
func (r *ExecutionRepo) ListByStatus(ctx context.Context, status domain.ExecutionStatus, limit int) ([]domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	return r.list(ctx, query, status.Code(), limit)
}

// ListPending возвращает executions в статусе PENDING в порядке создания.
func (r *ExecutionRepo) ListPending(ctx context.Context, limit int) ([]domain.Execution, error) {
	return r.ListByStatus(ctx, domain.StatusPending, limit)
}

// ListUnfinished возвращает все нетерминальные executions.
// Используется демоном при старте для восстановления графа зависимостей.
func (r *ExecutionRepo) ListUnfinished(ctx context.Context) ([]domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE status NOT IN ($1, $2, $3)
		ORDER BY created_at ASC
	`
	return r.list(ctx, query,
		domain.StatusComplete.Code(),
		domain.StatusFailed.Code(),
		domain.StatusStopped.Code(),
	)
}

// ListChildren возвращает дочерние executions (индекс по parent_id).
func (r *ExecutionRepo) ListChildren(ctx context.Context, parentID uuid.UUID) ([]domain.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE parent_id = $1
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, parentID)
}

// Delete удаляет execution. Ядро оркестрации Delete не вызывает —
// удаление доступно только явным внешним действием.
func (r *ExecutionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM executions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// list выполняет запрос и сканирует все строки.
func (r *ExecutionRepo) list(ctx context.Context, query string, args ...any) ([]domain.Execution, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, *e)
	}
	return execs, rows.Err()
}

// scanExecution сканирует одну строку в Execution.
func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var e domain.Execution
	var title, worktree, progress, lastError, artifactPath, artifactStatus *string
	var dependsJSON, contextJSON []byte
	var statusCode int16

	err := row.Scan(
		&e.ID,
		&e.LoopType,
		&title,
		&e.ParentID,
		&dependsJSON,
		&e.Priority,
		&statusCode,
		&worktree,
		&e.Iteration,
		&progress,
		&contextJSON,
		&lastError,
		&artifactPath,
		&artifactStatus,
		&e.TokensUsed,
		&e.DurationMs,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	status, err := domain.StatusFromCode(statusCode)
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	e.Status = status

	if dependsJSON != nil {
		if err := json.Unmarshal(dependsJSON, &e.DependsOn); err != nil {
			return nil, fmt.Errorf("unmarshal depends_on: %w", err)
		}
	}
	if contextJSON != nil {
		if err := json.Unmarshal(contextJSON, &e.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}

	e.Title = deref(title)
	e.WorktreePath = deref(worktree)
	e.Progress = deref(progress)
	e.LastError = deref(lastError)
	e.ArtifactPath = deref(artifactPath)
	e.ArtifactStatus = deref(artifactStatus)

	return &e, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// deref возвращает пустую строку для nil.
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
