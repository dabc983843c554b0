package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(zerolog.Nop())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestRegisterTaskValidation(t *testing.T) {
	s := newTestScheduler(t)

	task := TaskConfig{
		ID: "poll", Name: "Poll", Interval: time.Minute,
		Func: func(ctx context.Context) error { return nil },
	}
	if err := s.RegisterTask(task); err != nil {
		t.Fatalf("RegisterTask() failed: %v", err)
	}
	if err := s.RegisterTask(task); err == nil {
		t.Error("expected error for duplicate task ID")
	}

	task.ID = "bad"
	task.Interval = 0
	if err := s.RegisterTask(task); err == nil {
		t.Error("expected error for non-positive interval")
	}
}

func TestRunNowExecutesRegisteredTask(t *testing.T) {
	s := newTestScheduler(t)

	ran := make(chan struct{}, 1)
	err := s.RegisterTask(TaskConfig{
		ID: "health-check", Name: "Service Health Check", Interval: time.Hour,
		Func: func(ctx context.Context) error {
			ran <- struct{}{}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("RegisterTask() failed: %v", err)
	}

	if err := s.RunNow("health-check"); err != nil {
		t.Fatalf("RunNow() failed: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}

	if err := s.RunNow("missing"); err == nil {
		t.Error("expected error for unknown task ID")
	}
}

func TestListTasksIncludesRegisteredTasks(t *testing.T) {
	s := newTestScheduler(t)

	ids := []string{"download-poll", "health-check"}
	for _, id := range ids {
		err := s.RegisterTask(TaskConfig{
			ID: id, Name: id, Interval: time.Hour,
			Func: func(ctx context.Context) error { return nil },
		})
		if err != nil {
			t.Fatalf("RegisterTask(%s) failed: %v", id, err)
		}
	}

	tasks := s.ListTasks()
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	seen := make(map[string]bool)
	for _, task := range tasks {
		seen[task.ID] = true
		if task.Running {
			t.Errorf("task %s should not be running", task.ID)
		}
	}
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("task %s missing from listing", id)
		}
	}
}
