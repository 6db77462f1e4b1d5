package coordinator

import "testing"

func TestJanitor_RejectsBadSchedule(t *testing.T) {
	c, _ := newTestCoordinator(t)

	if _, err := NewJanitor(c, JanitorConfig{Schedule: "not a cron expr"}); err == nil {
		t.Error("invalid schedule should be rejected")
	}
}

func TestJanitor_StartStop(t *testing.T) {
	c, _ := newTestCoordinator(t)

	j, err := NewJanitor(c, JanitorConfig{})
	if err != nil {
		t.Fatalf("new janitor: %v", err)
	}

	j.Start()
	j.Stop()
}
