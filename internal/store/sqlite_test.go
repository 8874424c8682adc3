package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/waabox/conveyor/internal/domain"
	"github.com/waabox/conveyor/internal/store"
)

func openStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "conveyor.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func terminalRun(id string, status domain.Status) *domain.Run {
	start := time.Now().Add(-time.Minute)
	return &domain.Run{
		ID:       id,
		Pipeline: "build-and-publish",
		Event:    domain.Event{Type: domain.EventPush, Branch: "main"},
		Status:   status,
		Jobs: []domain.JobResult{
			{Name: "test", Status: status, Steps: []domain.StepResult{
				{Name: "run tests", Status: status, Output: "ok"},
			}},
		},
		StartedAt:  start,
		FinishedAt: start.Add(30 * time.Second),
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := openStore(t)
	run := terminalRun("run-1", domain.StatusSucceeded)
	if err := s.SaveRun(run); err != nil {
		t.Fatalf("save run: %v", err)
	}

	loaded, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if loaded.Pipeline != run.Pipeline || loaded.Status != run.Status {
		t.Errorf("loaded run differs: %+v", loaded)
	}
	if len(loaded.Jobs) != 1 || loaded.Jobs[0].Steps[0].Output != "ok" {
		t.Errorf("step detail lost in archive: %+v", loaded.Jobs)
	}
}

func TestSaveRun_RejectsNonTerminal(t *testing.T) {
	s := openStore(t)
	run := terminalRun("run-2", domain.StatusRunning)
	if err := s.SaveRun(run); err == nil {
		t.Error("expected error archiving a non-terminal run")
	}
}

func TestGetRun_Missing(t *testing.T) {
	s := openStore(t)
	if _, err := s.GetRun("nope"); err == nil {
		t.Error("expected error for unknown run id")
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := openStore(t)

	older := terminalRun("run-old", domain.StatusFailed)
	older.StartedAt = time.Now().Add(-2 * time.Hour)
	newer := terminalRun("run-new", domain.StatusSucceeded)

	if err := s.SaveRun(older); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRun(newer); err != nil {
		t.Fatal(err)
	}

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-new" || runs[1].ID != "run-old" {
		t.Errorf("unexpected order: %s, %s", runs[0].ID, runs[1].ID)
	}
	if runs[0].Status != domain.StatusSucceeded || runs[1].Status != domain.StatusFailed {
		t.Errorf("statuses lost in listing: %+v", runs)
	}
}
