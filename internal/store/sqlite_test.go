package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/me/ossim/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRun(id string) *model.Run {
	return &model.Run{
		ID:        id,
		State:     model.RunStateRunning,
		Config:    map[string]any{"total_jobs": 5.0, "seed": 42.0},
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	// Migrate a second time; the alter step must see the column and skip it.
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	ok, err := columnExists(context.Background(), st.db, "runs", "error_kind")
	if err != nil || !ok {
		t.Errorf("error_kind column missing (err=%v)", err)
	}
}

// --- Run tests ---

func TestCreateAndGetRun(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	run := sampleRun("run_a")

	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("got nil run")
	}
	if got.State != model.RunStateRunning {
		t.Errorf("state = %q, want RUNNING", got.State)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, run.StartedAt)
	}
	if got.FinishedAt != nil {
		t.Errorf("finished_at = %v, want nil", got.FinishedAt)
	}
	cfg, ok := got.Config.(map[string]any)
	if !ok || cfg["seed"] != 42.0 {
		t.Errorf("config not preserved: %#v", got.Config)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetRun(context.Background(), "run_nonexistent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestUpdateRun(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	run := sampleRun("run_b")
	st.CreateRun(ctx, run)

	now := time.Now().UTC()
	run.State = model.RunStateTimedOut
	run.FinishedAt = &now
	run.Admitted = 5
	run.Terminated = 3
	run.Dispatches = 40
	run.Messages = 80
	run.FinalClock = model.SimTime{Seconds: 4, Nanoseconds: 100_000_000}
	run.ExitReason = "safety timer expired"
	run.ErrorKind = model.KindTimeout
	if err := st.UpdateRun(ctx, run); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := st.GetRun(ctx, run.ID)
	if got.State != model.RunStateTimedOut {
		t.Errorf("state = %q, want TIMED_OUT", got.State)
	}
	if got.FinishedAt == nil {
		t.Error("finished_at not set")
	}
	if got.Admitted != 5 || got.Terminated != 3 || got.Dispatches != 40 || got.Messages != 80 {
		t.Errorf("counters = %d/%d/%d/%d", got.Admitted, got.Terminated, got.Dispatches, got.Messages)
	}
	if got.FinalClock != run.FinalClock {
		t.Errorf("final_clock = %v, want %v", got.FinalClock, run.FinalClock)
	}
	if got.ErrorKind != model.KindTimeout {
		t.Errorf("error_kind = %q", got.ErrorKind)
	}
}

func TestUpdateRun_NotFound(t *testing.T) {
	st := testStore(t)
	if err := st.UpdateRun(context.Background(), sampleRun("run_missing")); err == nil {
		t.Error("expected error updating missing run")
	}
}

func TestListRuns_PaginationAndFilter(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		run := sampleRun(fmt.Sprintf("run_%d", i))
		run.StartedAt = base.Add(time.Duration(i) * time.Second)
		if i%2 == 0 {
			run.State = model.RunStateCompleted
		}
		if err := st.CreateRun(ctx, run); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	runs, total, err := st.ListRuns(ctx, model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d, want 2", len(runs))
	}
	if runs[0].ID != "run_4" {
		t.Errorf("first = %q, want newest run_4", runs[0].ID)
	}

	runs, total, err = st.ListRuns(ctx, model.ListOptions{Limit: 10, State: "COMPLETED"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if total != 3 || len(runs) != 3 {
		t.Errorf("completed total = %d len = %d, want 3", total, len(runs))
	}
}

// --- Event tests ---

func TestAppendAndListEvents(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	events := []model.Event{
		{RunID: "run_e", Seq: 1, Kind: model.EventAdmitted, PID: 1, Clock: model.SimTime{}},
		{RunID: "run_e", Seq: 2, Kind: model.EventDispatched, PID: 1, Quantum: 10 * time.Millisecond},
		{RunID: "run_e", Seq: 3, Kind: model.EventReported, PID: 1, Outcome: model.OutcomeContinue,
			Clock: model.SimTime{Nanoseconds: 100_000_000}},
		{RunID: "run_e", Seq: 4, Kind: model.EventDemoted, PID: 1, Level: 1, Detail: "0 -> 1"},
		{RunID: "run_other", Seq: 1, Kind: model.EventIdle},
	}
	if err := st.AppendEvents(ctx, events); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.AppendEvents(ctx, nil); err != nil {
		t.Fatalf("append empty: %v", err)
	}

	got, total, err := st.ListEvents(ctx, "run_e", model.ListOptions{Limit: 100})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 4 || len(got) != 4 {
		t.Fatalf("total = %d len = %d, want 4", total, len(got))
	}
	for i, ev := range got {
		if ev.Seq != int64(i+1) {
			t.Errorf("event %d seq = %d", i, ev.Seq)
		}
	}
	if got[1].Quantum != 10*time.Millisecond {
		t.Errorf("quantum = %v", got[1].Quantum)
	}
	if got[2].Outcome != model.OutcomeContinue || got[2].Clock.Nanoseconds != 100_000_000 {
		t.Errorf("report event not preserved: %+v", got[2])
	}

	demoted, total, err := st.ListEvents(ctx, "run_e", model.ListOptions{Limit: 10, State: string(model.EventDemoted)})
	if err != nil {
		t.Fatalf("list by kind: %v", err)
	}
	if total != 1 || demoted[0].Level != 1 || demoted[0].Detail != "0 -> 1" {
		t.Errorf("kind filter = %d %+v", total, demoted)
	}
}

func TestAppendEvents_DuplicateSeqRollsBack(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	err := st.AppendEvents(ctx, []model.Event{
		{RunID: "run_d", Seq: 1, Kind: model.EventIdle},
		{RunID: "run_d", Seq: 1, Kind: model.EventIdle},
	})
	if err == nil {
		t.Fatal("expected primary key violation")
	}
	_, total, _ := st.ListEvents(ctx, "run_d", model.DefaultListOptions())
	if total != 0 {
		t.Errorf("total = %d after failed batch, want 0", total)
	}
}

// --- Snapshot tests ---

func TestSnapshots(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	got, err := st.LatestSnapshot(ctx, "run_s")
	if err != nil || got != nil {
		t.Fatalf("empty latest = %v, %v", got, err)
	}

	first := &model.Snapshot{Clock: model.SimTime{Nanoseconds: 500_000_000}}
	second := &model.Snapshot{
		Clock:   model.SimTime{Seconds: 1},
		Table:   []model.PCB{{Occupied: true, ID: 3, Level: 2, Service: 70 * time.Millisecond}, {}},
		Blocked: []model.ProcessID{5},
	}
	second.Queues[2] = []model.ProcessID{3}

	if err := st.SaveSnapshot(ctx, "run_s", 10, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.SaveSnapshot(ctx, "run_s", 20, second); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err = st.LatestSnapshot(ctx, "run_s")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.Clock != second.Clock {
		t.Errorf("clock = %v, want %v", got.Clock, second.Clock)
	}
	if len(got.Table) != 2 || got.Table[0].ID != 3 || got.Table[0].Service != 70*time.Millisecond {
		t.Errorf("table not preserved: %+v", got.Table)
	}
	if len(got.Queues[2]) != 1 || got.Queues[2][0] != 3 {
		t.Errorf("queues = %v", got.Queues)
	}
	if len(got.Blocked) != 1 || got.Blocked[0] != 5 {
		t.Errorf("blocked = %v", got.Blocked)
	}
}
