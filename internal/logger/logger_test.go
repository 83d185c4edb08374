package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
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
	if filepath.Base(got) != defaultLogFilename {
		t.Fatalf("unexpected log filename: %s", filepath.Base(got))
	}
	if filepath.Base(filepath.Dir(got)) != defaultLogDirName {
		t.Fatalf("unexpected log dir: %s", filepath.Dir(got))
	}
	if _, err := os.Stat(got); err != nil {
		t.Fatalf("log file should be created: %v", err)
	}
}

func TestReleaseModeWritesJSONFile(t *testing.T) {
	tmpDir := t.TempDir()
	log := New("release", Options{Dir: tmpDir, Filename: "gateway.log"})
	log.Sugar().Infow("order_state_toggled", "order_id", 7)
	_ = log.Sync()

	content, err := os.ReadFile(filepath.Join(tmpDir, "gateway.log"))
	if err != nil {
		t.Fatalf("read log failed: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, `"message":"order_state_toggled"`) || !strings.Contains(text, `"order_id":7`) {
		t.Fatalf("unexpected log content: %s", text)
	}
}

func TestDebugModeSkipsFile(t *testing.T) {
	tmpDir := t.TempDir()
	log := New("debug", Options{Dir: tmpDir, Filename: "debug.log"})
	log.Info("debug-line")
	_ = log.Sync()

	if _, err := os.Stat(filepath.Join(tmpDir, "debug.log")); !os.IsNotExist(err) {
		t.Fatalf("debug mode should not create a log file")
	}
}

func TestCallerPointsAtCallSite(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	previous := L
	L = zap.New(core, zap.AddCaller())
	t.Cleanup(func() { L = previous })

	SW("notification_id", 3).Infow("notification_recorded")
	S().Warnw("order_cache_read_failed")
	Infow("app_start")
	Z().Info("service_start")

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("want 4 entries got %d", len(entries))
	}
	for _, entry := range entries {
		if !entry.Caller.Defined || filepath.Base(entry.Caller.File) != "logger_test.go" {
			t.Fatalf("%s attributed to %s", entry.Message, entry.Caller.File)
		}
	}
}
