package engine

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// ShellRunner выполняет команды валидации через sh -c.
//
// По таймауту или отмене контекста команда убивается, а исход
// отдаётся наверх как ValidationResult — ядро валидации не
// перезапускает.
type ShellRunner struct {
	// Dir — рабочий каталог команд (обычно worktree execution'а).
	Dir string
}

// Run выполняет команду и возвращает её итог.
func (r *ShellRunner) Run(ctx context.Context, command string, timeout time.Duration) (ValidationResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.Dir
	// Команда запускается в собственной группе процессов: по отмене
	// сигнал получает вся группа, иначе потомки sh переживают таймаут
	// и держат пайпы открытыми.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 3 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := ValidationResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		// Команда убита по таймауту
		result.ExitCode = -1
		result.Stderr = result.Stderr + "\nvalidation timed out"
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return result, err
		}
	}

	return result, nil
}
