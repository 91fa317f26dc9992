package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"cas-bridge/internal/syntax"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), err
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadConfig()
	if cfg.Port != 8420 || cfg.MaxSessions != 10 || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.ScratchDir == "" {
		t.Error("expected a default scratch dir")
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("CASBRIDGE_PORT", "9000")
	t.Setenv("CASBRIDGE_MAX_SESSIONS", "3")
	t.Setenv("CASBRIDGE_SCRATCH_DIR", "/var/tmp/cells")
	t.Setenv("CASBRIDGE_PROFILES", "/etc/casbridge.json")
	t.Setenv("CASBRIDGE_LOG_LEVEL", "debug")

	cfg := loadConfig()
	if cfg.Port != 9000 || cfg.MaxSessions != 3 {
		t.Errorf("unexpected numeric config %+v", cfg)
	}
	if cfg.ScratchDir != "/var/tmp/cells" || cfg.Profiles != "/etc/casbridge.json" || cfg.LogLevel != "debug" {
		t.Errorf("unexpected string config %+v", cfg)
	}

	// Malformed numbers keep the defaults.
	t.Setenv("CASBRIDGE_PORT", "eighty")
	if cfg := loadConfig(); cfg.Port != 8420 {
		t.Errorf("expected default port, got %d", cfg.Port)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "WARN")
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected log output %q", buf.String())
	}

	if _, err := newLogger(&buf, "chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestCheckCmd(t *testing.T) {
	out, err := execute(t, "x := 1; y := 2;;", "check", "--dialect", "gap")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !strings.Contains(out, "complete") || !strings.Contains(out, "y := 2;;") {
		t.Errorf("unexpected output %q", out)
	}

	_, err = execute(t, "if true then", "check", "--dialect", "gap")
	if err == nil || err.Error() != string(syntax.Incomplete) {
		t.Errorf("expected incomplete error, got %v", err)
	}

	_, err = execute(t, "1;", "check", "--dialect", "cobol")
	if err == nil {
		t.Error("expected error for unknown dialect")
	}
}

func TestCheckCmd_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cell.sing")
	os.WriteFile(path, []byte("f(x,y));"), 0644)

	out, err := execute(t, "", "check", "--dialect", "singular", "--json", path)
	if err == nil {
		t.Fatal("expected error for invalid code")
	}
	var v syntax.Verdict
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode verdict %q: %v", out, err)
	}
	if v.Status != syntax.Invalid {
		t.Errorf("expected invalid, got %s", v.Status)
	}
}

func TestDialectsCmd(t *testing.T) {
	out, err := execute(t, "", "dialects")
	if err != nil {
		t.Fatalf("dialects failed: %v", err)
	}
	for _, name := range []string{"NAME", "bc", "gap", "singular", "macaulay2"} {
		if !strings.Contains(out, name) {
			t.Errorf("expected %s in output %q", name, out)
		}
	}
}

func TestRunCmd(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skipf("cat not available: %v", err)
	}
	dir := t.TempDir()
	profiles := filepath.Join(dir, "profiles.json")
	os.WriteFile(profiles, []byte(`[{
		"name": "echo",
		"command": "cat",
		"promptCommand": "→",
		"initialText": "{prompt}",
		"classifier": "singular",
		"template": "{code}\n{prompt}"
	}]`), 0644)

	first := filepath.Join(dir, "a.sing")
	second := filepath.Join(dir, "b.sing")
	os.WriteFile(first, []byte("f(1);"), 0644)
	os.WriteFile(second, []byte("g(2);"), 0644)

	out, err := execute(t, "", "--profiles", profiles, "run", "--dialect", "echo",
		"--scratch-dir", filepath.Join(dir, "scratch"), first, second)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, want := range []string{"[1]", "f(1);", "[2]", "g(2);", "all ok"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output %q", want, out)
		}
	}

	out, err = execute(t, "f(1", "--profiles", profiles, "run", "--dialect", "echo",
		"--scratch-dir", filepath.Join(dir, "scratch"))
	if err == nil || !strings.Contains(err.Error(), "1 of 1 cells failed") {
		t.Errorf("expected failed cell error, got %v", err)
	}
	if !strings.Contains(out, "incomplete") {
		t.Errorf("expected diagnostic in output %q", out)
	}
}
