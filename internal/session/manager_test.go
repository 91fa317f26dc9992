package session

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"cas-bridge/internal/dialect"
	"cas-bridge/internal/repl"
	"cas-bridge/internal/syntax"
)

const testProfiles = `[
	{
		"name": "echo",
		"command": "cat",
		"promptCommand": "→",
		"initialText": "{prompt}",
		"classifier": "singular",
		"template": "{code}\n{prompt}"
	},
	{
		"name": "sh",
		"command": "sh",
		"promptCommand": "printf '→'",
		"initialText": "{prompt}\n",
		"template": "{code}\n{prompt}\n"
	}
]`

func newTestManager(t *testing.T, maxSessions int) *Manager {
	t.Helper()
	for _, bin := range []string{"cat", "sh"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not available: %v", bin, err)
		}
	}

	path := filepath.Join(t.TempDir(), "profiles.json")
	if err := os.WriteFile(path, []byte(testProfiles), 0644); err != nil {
		t.Fatal(err)
	}
	reg := dialect.NewRegistry()
	if err := reg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	mgr := NewManager(reg, maxSessions, repl.Options{
		ScratchDir:  t.TempDir(),
		GracePeriod: time.Second,
	})
	t.Cleanup(mgr.Shutdown)
	return mgr
}

func waitForEvent(t *testing.T, ch <-chan Event, typ EventType) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed before %s event", typ)
			}
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func TestManager_CreateUnknownDialect(t *testing.T) {
	mgr := newTestManager(t, 10)
	_, err := mgr.Create("cobol", "test")
	if !errors.Is(err, dialect.ErrUnknownDialect) {
		t.Fatalf("expected ErrUnknownDialect, got %v", err)
	}
}

func TestManager_MaxSessionsLimit(t *testing.T) {
	mgr := newTestManager(t, 1)
	if _, err := mgr.Create("echo", "first"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err := mgr.Create("echo", "second")
	if !errors.Is(err, ErrMaxSessions) {
		t.Fatalf("expected ErrMaxSessions, got %v", err)
	}
}

func TestManager_NotFound(t *testing.T) {
	mgr := newTestManager(t, 10)

	if _, err := mgr.Get("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := mgr.Execute(context.Background(), "nonexistent", 1, "1;"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Execute: expected ErrNotFound, got %v", err)
	}
	if _, err := mgr.IsComplete("nonexistent", "1;"); !errors.Is(err, ErrNotFound) {
		t.Errorf("IsComplete: expected ErrNotFound, got %v", err)
	}
	if err := mgr.Kill("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Kill: expected ErrNotFound, got %v", err)
	}
	if _, _, _, err := mgr.Subscribe("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Subscribe: expected ErrNotFound, got %v", err)
	}
	// Unsubscribing from an unknown kernel is a no-op.
	mgr.Unsubscribe("nonexistent", "sub")
}

func TestManager_ListEmpty(t *testing.T) {
	mgr := newTestManager(t, 10)
	if kernels := mgr.List(); len(kernels) != 0 {
		t.Errorf("expected empty list, got %d kernels", len(kernels))
	}
}

func TestManager_ExecuteAndHistory(t *testing.T) {
	mgr := newTestManager(t, 10)
	k, err := mgr.Create("echo", "algebra")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if k.Dialect != "echo" || k.Label != "algebra" {
		t.Errorf("unexpected kernel %+v", k)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := mgr.Execute(ctx, k.ID, 0, "f(1);")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !r.OK || r.Seq != 1 {
		t.Fatalf("unexpected response %+v", r)
	}
	if !reflect.DeepEqual(r.Segments, []string{"f(1);\n"}) {
		t.Errorf("unexpected segments %q", r.Segments)
	}

	// An incomplete cell is answered without reaching the engine.
	r, err = mgr.Execute(ctx, k.ID, 0, "f(1")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if r.OK || r.Seq != 2 {
		t.Errorf("expected failed response for seq 2, got %+v", r)
	}

	_, _, history, err := mgr.Subscribe(k.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if len(history) != 2 || history[0].Seq != 1 || history[1].Seq != 2 {
		t.Errorf("unexpected history %+v", history)
	}

	got, err := mgr.Get(k.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != repl.StatusAwaitingInput.String() && got.State != repl.StatusReadingOutput.String() {
		t.Errorf("unexpected state %s", got.State)
	}
}

func TestManager_ExplicitSeq(t *testing.T) {
	mgr := newTestManager(t, 10)
	k, err := mgr.Create("echo", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := mgr.Execute(ctx, k.ID, 10, "a;")
	if err != nil || r.Seq != 10 {
		t.Fatalf("unexpected response %+v, %v", r, err)
	}
	r, err = mgr.Execute(ctx, k.ID, 0, "b;")
	if err != nil || r.Seq != 11 {
		t.Fatalf("expected next seq 11, got %+v, %v", r, err)
	}

	// A lower explicit seq does not rewind the counter.
	if _, err := mgr.Execute(ctx, k.ID, 3, "c;"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	r, err = mgr.Execute(ctx, k.ID, 0, "d;")
	if err != nil || r.Seq != 12 {
		t.Fatalf("expected next seq 12, got %+v, %v", r, err)
	}
}

func TestManager_SubscribeReceivesResults(t *testing.T) {
	mgr := newTestManager(t, 10)
	k, err := mgr.Create("echo", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	subID, ch, _, err := mgr.Subscribe(k.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := mgr.Execute(ctx, k.ID, 1, "g(2);"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	e := waitForEvent(t, ch, EventResult)
	if e.KernelID != k.ID || e.Seq != 1 || !e.OK {
		t.Errorf("unexpected event %+v", e)
	}

	mgr.Unsubscribe(k.ID, subID)
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after Unsubscribe")
	}
}

func TestManager_ExitEvent(t *testing.T) {
	mgr := newTestManager(t, 1)
	k, err := mgr.Create("sh", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, ch, _, err := mgr.Subscribe(k.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := mgr.Execute(ctx, k.ID, 1, "exit 4")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if r.OK {
		t.Errorf("expected failed response, got %+v", r)
	}

	e := waitForEvent(t, ch, EventExit)
	if e.ExitCode != 4 {
		t.Errorf("expected exit code 4, got %d", e.ExitCode)
	}

	got, _ := mgr.Get(k.ID)
	if got.State != repl.StatusExited.String() {
		t.Errorf("expected exited state, got %s", got.State)
	}

	// An exited kernel no longer counts against the limit.
	if _, err := mgr.Create("echo", ""); err != nil {
		t.Errorf("expected room for a new kernel, got %v", err)
	}
}

func TestManager_IdleExitEvent(t *testing.T) {
	mgr := newTestManager(t, 1)
	k, err := mgr.Create("sh", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, ch, _, err := mgr.Subscribe(k.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// The shell answers the cell, then dies while no cell is running.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := mgr.Execute(ctx, k.ID, 1, "(sleep 0.2; kill -9 $$) >/dev/null 2>&1 &")
	if err != nil || !r.OK {
		t.Fatalf("unexpected response %+v, %v", r, err)
	}

	waitForEvent(t, ch, EventExit)

	got, _ := mgr.Get(k.ID)
	if got.State != repl.StatusExited.String() {
		t.Errorf("expected exited state, got %s", got.State)
	}
	if _, err := mgr.Create("echo", ""); err != nil {
		t.Errorf("expected room for a new kernel, got %v", err)
	}
}

func TestManager_Kill(t *testing.T) {
	mgr := newTestManager(t, 10)
	k, err := mgr.Create("echo", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, ch, _, err := mgr.Subscribe(k.ID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := mgr.Kill(k.ID); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	waitForEvent(t, ch, EventExit)

	// Killing twice is harmless.
	if err := mgr.Kill(k.ID); err != nil {
		t.Errorf("second Kill failed: %v", err)
	}
}

func TestManager_Classify(t *testing.T) {
	mgr := newTestManager(t, 10)

	v, err := mgr.Classify("gap", "if true then")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if v.Status != syntax.Incomplete {
		t.Errorf("expected incomplete, got %s", v.Status)
	}

	if _, err := mgr.Classify("cobol", "x"); !errors.Is(err, dialect.ErrUnknownDialect) {
		t.Errorf("expected ErrUnknownDialect, got %v", err)
	}

	k, err := mgr.Create("echo", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	v, err = mgr.IsComplete(k.ID, "f(x,y));")
	if err != nil {
		t.Fatalf("IsComplete failed: %v", err)
	}
	if v.Status != syntax.Invalid {
		t.Errorf("expected invalid, got %s", v.Status)
	}
}

func TestManager_Dialects(t *testing.T) {
	mgr := newTestManager(t, 10)
	names := make(map[string]bool)
	for _, p := range mgr.Dialects() {
		names[p.Name] = true
	}
	for _, want := range []string{"gap", "singular", "echo", "sh"} {
		if !names[want] {
			t.Errorf("expected dialect %s", want)
		}
	}
}
