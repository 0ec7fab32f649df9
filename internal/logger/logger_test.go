package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveLogFilePathDefaultDir(t *testing.T) {
	tmpDir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("get wd failed: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}

	got, err := resolveLogFilePath(Options{})
	if err != nil {
		t.Fatalf("resolve default log path failed: %v", err)
	}
	realTmpDir, err := filepath.EvalSymlinks(tmpDir)
	if err != nil {
		t.Fatalf("resolve tmp dir symlink failed: %v", err)
	}
	realGot, err := filepath.EvalSymlinks(filepath.Dir(got))
	if err != nil {
		t.Fatalf("resolve got dir symlink failed: %v", err)
	}
	if expected := filepath.Join(realTmpDir, defaultLogDirName); realGot != expected {
		t.Fatalf("unexpected log dir: got=%s expected=%s", realGot, expected)
	}
	if filepath.Base(got) != defaultLogFilename {
		t.Fatalf("unexpected log filename: %s", filepath.Base(got))
	}
}

func TestNewReleaseWritesServiceField(t *testing.T) {
	tmpDir := t.TempDir()
	log := New("release", Options{Dir: tmpDir, Filename: "release.log"})
	log.Info("settlement_completed")
	_ = log.Sync()

	content, err := os.ReadFile(filepath.Join(tmpDir, "release.log"))
	if err != nil {
		t.Fatalf("read release log failed: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "settlement_completed") {
		t.Fatalf("expected log content to contain message, got=%s", text)
	}
	if !strings.Contains(text, `"service":"affiliate-settlement"`) {
		t.Fatalf("expected service field, got=%s", text)
	}
}

func TestNewDebugDoesNotWriteFile(t *testing.T) {
	tmpDir := t.TempDir()
	log := New("debug", Options{Dir: tmpDir, Filename: "debug.log"})
	log.Info("debug-log-test")
	_ = log.Sync()

	if _, err := os.Stat(filepath.Join(tmpDir, "debug.log")); !os.IsNotExist(err) {
		t.Fatalf("debug mode should not create log file")
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatalf("expected fallback logger")
	}
	ctx := WithContext(context.Background(), "request_id", "req-1")
	if FromContext(ctx) == S() {
		t.Fatalf("expected context scoped logger")
	}
	if WithContext(ctx) != ctx {
		t.Fatalf("empty fields should keep context unchanged")
	}
}

func TestNewHonorsConfiguredLevel(t *testing.T) {
	tmpDir := t.TempDir()
	log := New("release", Options{Dir: tmpDir, Filename: "warn.log", Level: "WARN"})
	log.Info("info_should_be_dropped")
	log.Warn("reconcile_task_opened")
	_ = log.Sync()

	content, err := os.ReadFile(filepath.Join(tmpDir, "warn.log"))
	if err != nil {
		t.Fatalf("read log failed: %v", err)
	}
	text := string(content)
	if strings.Contains(text, "info_should_be_dropped") {
		t.Fatalf("info entry should be filtered at warn level, got=%s", text)
	}
	if !strings.Contains(text, "reconcile_task_opened") {
		t.Fatalf("warn entry missing, got=%s", text)
	}
}

func TestResolveLevelFallsBackOnInvalidValue(t *testing.T) {
	if got := resolveLevel("verbose", false).Level(); got.String() != "info" {
		t.Fatalf("invalid level should fall back to info, got %s", got)
	}
	if got := resolveLevel("", true).Level(); got.String() != "debug" {
		t.Fatalf("debug mode should default to debug, got %s", got)
	}
}
