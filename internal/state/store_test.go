package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orchestra-dev/orchestra/internal/errors"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "state.json"))
	if err := s.Load(); err != nil {
		t.Fatalf("Load() on fresh store: %v", err)
	}
	return s
}

func TestLoadAbsentFile(t *testing.T) {
	s := testStore(t)
	if got := s.All(); len(got) != 0 {
		t.Errorf("expected empty record set, got %d records", len(got))
	}
}

func TestUpsertAndGet(t *testing.T) {
	s := testStore(t)

	started := time.Now().UTC()
	rec := AgentRecord{
		TaskID:       "fix-auth-3f2a",
		Description:  "fix the auth bug",
		BranchName:   "orchestra/fix-auth-3f2a",
		WorktreePath: "/tmp/wt/fix-auth-3f2a",
		Status:       StatusRunning,
		PID:          4321,
		StartedAt:    &started,
	}
	if err := s.Upsert(rec); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	got, ok := s.Get("fix-auth-3f2a")
	if !ok {
		t.Fatal("Get() did not find upserted record")
	}
	if got.BranchName != rec.BranchName || got.PID != rec.PID || got.Status != StatusRunning {
		t.Errorf("Get() = %+v, want %+v", got, rec)
	}

	// Replacement semantics: a second upsert with the same id overwrites.
	rec.Status = StatusCompleted
	code := 0
	rec.ExitCode = &code
	if err := s.Upsert(rec); err != nil {
		t.Fatalf("Upsert() replace error: %v", err)
	}
	got, _ = s.Get("fix-auth-3f2a")
	if got.Status != StatusCompleted || got.ExitCode == nil || *got.ExitCode != 0 {
		t.Errorf("replaced record = %+v, want completed with exit code 0", got)
	}
	if len(s.All()) != 1 {
		t.Errorf("expected 1 record after replace, got %d", len(s.All()))
	}
}

func TestUpsertRejectsEmptyTaskID(t *testing.T) {
	s := testStore(t)
	err := s.Upsert(AgentRecord{Status: StatusPending})
	if err == nil {
		t.Fatal("expected error for empty task id")
	}
	var verr *errors.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %T: %v", err, err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load(): %v", err)
	}
	hb := time.Now().UTC()
	recs := []AgentRecord{
		{TaskID: "a-1111", BranchName: "orchestra/a-1111", Status: StatusPending},
		{TaskID: "b-2222", BranchName: "orchestra/b-2222", Status: StatusRunning, PID: 7, LastHeartbeatAt: &hb},
	}
	for _, r := range recs {
		if err := s.Upsert(r); err != nil {
			t.Fatalf("Upsert(%s): %v", r.TaskID, err)
		}
	}

	// Simulate a restart: a fresh store over the same file sees everything.
	reopened := NewStore(path)
	if err := reopened.Load(); err != nil {
		t.Fatalf("Load() after reopen: %v", err)
	}
	if got := len(reopened.All()); got != 2 {
		t.Fatalf("expected 2 records after reopen, got %d", got)
	}
	b, ok := reopened.Get("b-2222")
	if !ok {
		t.Fatal("record b-2222 lost across reopen")
	}
	if b.PID != 7 || b.Status != StatusRunning {
		t.Errorf("record b-2222 = %+v, want running pid 7", b)
	}
	if b.LastHeartbeatAt == nil || !b.LastHeartbeatAt.Equal(hb) {
		t.Errorf("heartbeat not preserved: %v, want %v", b.LastHeartbeatAt, hb)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := testStore(t)
	if err := s.Upsert(AgentRecord{TaskID: "x-1", Status: StatusCompleted}); err != nil {
		t.Fatalf("Upsert(): %v", err)
	}

	if err := s.Remove("x-1"); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, ok := s.Get("x-1"); ok {
		t.Error("record still present after Remove()")
	}
	// Removing again, or removing a never-existing id, is a no-op.
	if err := s.Remove("x-1"); err != nil {
		t.Errorf("second Remove() error: %v", err)
	}
	if err := s.Remove("never-existed"); err != nil {
		t.Errorf("Remove() of unknown id error: %v", err)
	}
}

func TestLoadRejectsUnknownStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	raw := `{"tasks":{"t-1":{"task_id":"t-1","status":"exploded"}},"updated_at":"2026-01-01T00:00:00Z"}`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path)
	err := s.Load()
	if err == nil {
		t.Fatal("expected error loading unknown status")
	}
	if !errors.Is(err, errors.ErrUnknownStatus) {
		t.Errorf("error should wrap ErrUnknownStatus, got %v", err)
	}
}

func TestLoadRejectsCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"tasks": {`), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path)
	err := s.Load()
	if err == nil {
		t.Fatal("expected error loading truncated file")
	}
	if !errors.Is(err, errors.ErrStateCorrupted) {
		t.Errorf("error should wrap ErrStateCorrupted, got %v", err)
	}
}

func TestLoadIgnoresAbandonedTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	durable := AgentRecord{TaskID: "solid-1", BranchName: "orchestra/solid-1", Status: StatusCompleted}
	if err := s.Upsert(durable); err != nil {
		t.Fatalf("Upsert(): %v", err)
	}

	// A crash mid-write leaves a half-written temp file next to the state
	// file; the rename never happened, so the durable content must win.
	partial := []byte(`{"tasks":{"solid-1":{"task_id":"solid-1","status":"run`)
	if err := os.WriteFile(filepath.Join(dir, ".tmp-crashed"), partial, 0644); err != nil {
		t.Fatal(err)
	}

	reopened := NewStore(path)
	if err := reopened.Load(); err != nil {
		t.Fatalf("Load() with abandoned temp file: %v", err)
	}
	got, ok := reopened.Get("solid-1")
	if !ok {
		t.Fatal("durable record lost")
	}
	if got.Status != StatusCompleted || got.BranchName != durable.BranchName {
		t.Errorf("loaded record = %+v, want the durable content untouched", got)
	}
	if n := len(reopened.All()); n != 1 {
		t.Errorf("loaded %d records, want 1", n)
	}
}

func TestFailedWriteLeavesPriorFileIntact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(AgentRecord{TaskID: "keep-1", Status: StatusCompleted}); err != nil {
		t.Fatalf("Upsert(): %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// A read-only directory makes the temp-file creation fail before any
	// byte reaches the real file.
	if err := os.Chmod(dir, 0555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0755) })
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}

	if err := s.Upsert(AgentRecord{TaskID: "lost-2", Status: StatusPending}); err == nil {
		t.Fatal("expected Upsert() to fail in a read-only directory")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Error("failed write modified the previously durable file")
	}
}

func TestAllOrderedByStartTime(t *testing.T) {
	s := testStore(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	later := base.Add(time.Minute)
	for _, r := range []AgentRecord{
		{TaskID: "late-1", Status: StatusRunning, StartedAt: &later},
		{TaskID: "early-1", Status: StatusRunning, StartedAt: &base},
		{TaskID: "queued-1", Status: StatusPending},
	} {
		if err := s.Upsert(r); err != nil {
			t.Fatalf("Upsert(%s): %v", r.TaskID, err)
		}
	}

	all := s.All()
	want := []string{"early-1", "late-1", "queued-1"}
	for i, id := range want {
		if all[i].TaskID != id {
			t.Errorf("All()[%d] = %s, want %s", i, all[i].TaskID, id)
		}
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	s := testStore(t)
	hb := time.Now().UTC()
	if err := s.Upsert(AgentRecord{TaskID: "c-1", Status: StatusRunning, LastHeartbeatAt: &hb}); err != nil {
		t.Fatalf("Upsert(): %v", err)
	}

	got, _ := s.Get("c-1")
	got.Status = StatusFailed
	*got.LastHeartbeatAt = got.LastHeartbeatAt.Add(-time.Hour)

	again, _ := s.Get("c-1")
	if again.Status != StatusRunning {
		t.Error("mutating a Get() result leaked into the store")
	}
	if !again.LastHeartbeatAt.Equal(hb) {
		t.Error("mutating a pointer field of a Get() result leaked into the store")
	}
}

func TestStateFileShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(AgentRecord{TaskID: "shape-1", Status: StatusPending, BranchName: "orchestra/shape-1"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var f struct {
		Tasks     map[string]json.RawMessage `json:"tasks"`
		UpdatedAt time.Time                  `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("state file is not valid JSON: %v", err)
	}
	if _, ok := f.Tasks["shape-1"]; !ok {
		t.Error("tasks map not keyed by task id")
	}
	if f.UpdatedAt.IsZero() {
		t.Error("updated_at not written")
	}
}
