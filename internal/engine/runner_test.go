package engine

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestShellRunner_Success(t *testing.T) {
	r := &ShellRunner{}

	res, err := r.Run(context.Background(), "echo validated", 5*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Passed() {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "validated") {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestShellRunner_NonZeroExit(t *testing.T) {
	r := &ShellRunner{}

	res, err := r.Run(context.Background(), "echo broken >&2; exit 3", 5*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Passed() {
		t.Error("non-zero exit should not pass")
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "broken") {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestShellRunner_KillsOnTimeout(t *testing.T) {
	r := &ShellRunner{}

	start := time.Now()
	res, err := r.Run(context.Background(), "sleep 10", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("command outlived its timeout")
	}
	if res.Passed() {
		t.Error("timed-out command must not pass")
	}
	if !strings.Contains(res.Stderr, "timed out") {
		t.Errorf("stderr should mention the timeout: %q", res.Stderr)
	}
}

func TestShellRunner_KillsBackgroundChildren(t *testing.T) {
	r := &ShellRunner{}

	// Фоновый потомок держит пайпы открытыми; без убийства всей
	// группы процессов Run висел бы все 10 секунд.
	start := time.Now()
	res, err := r.Run(context.Background(), "sleep 10 & wait", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("background child outlived the timeout: %v", elapsed)
	}
	if res.Passed() {
		t.Error("timed-out command must not pass")
	}
}

func TestShellRunner_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	r := &ShellRunner{Dir: dir}

	res, err := r.Run(context.Background(), "pwd", 5*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(res.Stdout, dir) {
		t.Errorf("pwd = %q, want it under %q", res.Stdout, dir)
	}
}
