package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Overseer/internal/coordinator"
	"github.com/shaiso/Overseer/internal/ipc"
	"github.com/shaiso/Overseer/internal/repo"
)

// RootDir возвращает рабочий каталог оркестратора: переменная
// окружения OVERSEER_ROOT, либо ~/.overseer, либо ./.overseer.
func RootDir() string {
	if root := os.Getenv("OVERSEER_ROOT"); root != "" {
		return root
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".overseer")
	}
	return ".overseer"
}

// Client объединяет зависимости команд: хранилище executions,
// журнал координации и IPC-клиент демона.
type Client struct {
	pool *pgxpool.Pool

	// Execs — репозиторий executions.
	Execs *repo.ExecutionRepo

	// Coord — журнал координационных сообщений.
	Coord *coordinator.Coordinator

	// IPC — клиент для пробуждения демона.
	IPC *ipc.Client
}

// NewClient подключается к Postgres и открывает журнал координации.
func NewClient(ctx context.Context) (*Client, error) {
	pool, err := repo.NewPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	coord, err := coordinator.New(RootDir(), slog.Default())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open coordination log: %w", err)
	}

	return &Client{
		pool:  pool,
		Execs: repo.NewExecutionRepo(pool),
		Coord: coord,
		IPC:   ipc.NewClient(ipc.DefaultSocketPath(), 0),
	}, nil
}

// Close освобождает ресурсы клиента.
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}
