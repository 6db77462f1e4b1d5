package domain

import (
	"testing"
	"time"
)

func TestExecution_HappyPath(t *testing.T) {
	e := NewExecution("implement")

	if e.Status != StatusDraft {
		t.Fatalf("new execution should be DRAFT, got %s", e.Status)
	}

	// DRAFT → PENDING → RUNNING → COMPLETE
	if !e.MarkReady() {
		t.Fatal("MarkReady from DRAFT should succeed")
	}
	if !e.MarkRunning() {
		t.Fatal("MarkRunning from PENDING should succeed")
	}
	if !e.MarkComplete() {
		t.Fatal("MarkComplete from RUNNING should succeed")
	}
	if !e.IsTerminal() {
		t.Error("COMPLETE should be terminal")
	}
}

func TestExecution_MarkReadyTrueThenFalse(t *testing.T) {
	e := NewExecution("plan")

	if !e.MarkReady() {
		t.Fatal("first MarkReady should return true")
	}
	if e.MarkReady() {
		t.Error("second MarkReady should return false")
	}
	if e.Status != StatusPending {
		t.Errorf("status should stay PENDING, got %s", e.Status)
	}
}

func TestExecution_PauseResume(t *testing.T) {
	e := NewExecution("review")
	e.MarkReady()
	e.MarkRunning()

	if !e.MarkPaused() {
		t.Fatal("MarkPaused from RUNNING should succeed")
	}
	if !e.IsResumable() {
		t.Error("PAUSED should be resumable")
	}
	if !e.MarkRunning() {
		t.Fatal("MarkRunning from PAUSED should succeed")
	}
}

func TestExecution_RebaseConflict(t *testing.T) {
	e := NewExecution("implement")
	e.MarkReady()
	e.MarkRunning()

	if !e.MarkRebasing() {
		t.Fatal("MarkRebasing from RUNNING should succeed")
	}
	if !e.MarkBlocked() {
		t.Fatal("MarkBlocked from REBASING should succeed")
	}
	if !e.IsResumable() {
		t.Error("BLOCKED should be resumable")
	}
	if !e.MarkRunning() {
		t.Fatal("MarkRunning from BLOCKED should succeed")
	}
}

func TestExecution_FailedFromAnyNonTerminal(t *testing.T) {
	// Каскад от упавшей зависимости переводит PENDING → FAILED,
	// минуя RUNNING
	e := NewExecution("implement")
	e.MarkReady()

	if !e.MarkFailed("dependency failed") {
		t.Fatal("MarkFailed from PENDING should succeed")
	}
	if e.LastError != "dependency failed" {
		t.Errorf("LastError not set: %q", e.LastError)
	}
}

func TestExecution_TerminalIsImmutable(t *testing.T) {
	e := NewExecution("plan")
	e.MarkReady()
	e.MarkRunning()
	e.MarkComplete()

	if e.MarkRunning() {
		t.Error("terminal execution should reject MarkRunning")
	}
	if e.MarkFailed("late failure") {
		t.Error("terminal execution should reject MarkFailed")
	}
	if e.MarkStopped() {
		t.Error("terminal execution should reject MarkStopped")
	}
	if e.IncrementIteration() {
		t.Error("terminal execution should reject IncrementIteration")
	}
	if e.Status != StatusComplete {
		t.Errorf("status mutated to %s", e.Status)
	}
}

func TestExecution_InvalidJumps(t *testing.T) {
	e := NewExecution("plan")

	// DRAFT не может сразу в RUNNING, PAUSED или COMPLETE
	if e.MarkRunning() {
		t.Error("DRAFT → RUNNING should be rejected")
	}
	if e.MarkPaused() {
		t.Error("DRAFT → PAUSED should be rejected")
	}
	if e.MarkComplete() {
		t.Error("DRAFT → COMPLETE should be rejected")
	}

	e.MarkReady()
	e.MarkRunning()
	if e.MarkBlocked() {
		t.Error("RUNNING → BLOCKED should be rejected, BLOCKED only follows REBASING")
	}
}

func TestExecution_AppendProgress(t *testing.T) {
	e := NewExecution("implement")

	e.AppendProgress("iteration 1: wrote parser")
	e.AppendProgress("iteration 2: fixed tests")
	e.AppendProgress("")

	want := "iteration 1: wrote parser\niteration 2: fixed tests"
	if e.Progress != want {
		t.Errorf("progress = %q, want %q", e.Progress, want)
	}
}

func TestExecution_AddUsage(t *testing.T) {
	e := NewExecution("review")

	e.AddUsage(1200, 3*time.Second)
	e.AddUsage(800, 500*time.Millisecond)

	if e.TokensUsed != 2000 {
		t.Errorf("tokens = %d, want 2000", e.TokensUsed)
	}
	if e.DurationMs != 3500 {
		t.Errorf("duration = %d ms, want 3500", e.DurationMs)
	}
}

func TestExecution_UpdatedAtNonDecreasing(t *testing.T) {
	e := NewExecution("plan")
	before := e.UpdatedAt

	e.MarkReady()
	if e.UpdatedAt.Before(before) {
		t.Error("UpdatedAt must be non-decreasing")
	}
}
