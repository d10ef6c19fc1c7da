package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if err != nil || got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("unknown level should be rejected")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Level != "info" {
		t.Errorf("level = %q, want info", cfg.Level)
	}
	if cfg.File != "" {
		t.Errorf("file sink should start disabled, got %q", cfg.File)
	}
	if cfg.MaxSizeMB != 10 || cfg.MaxBackups != 3 || cfg.MaxAgeDays != 28 {
		t.Errorf("rotation defaults = %d/%d/%d", cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	}
	if !cfg.Compress {
		t.Error("compression should default on")
	}
}

func TestNewConsoleOnly(t *testing.T) {
	log, err := New(Default())
	if err != nil {
		t.Fatal(err)
	}
	if log == nil {
		t.Fatal("expected a logger")
	}
	log.Info("console message")
}

func TestNewRejectsBadLevel(t *testing.T) {
	cfg := Default()
	cfg.Level = "chatty"
	if _, err := New(cfg); err == nil {
		t.Error("bad level should fail construction")
	}
}

func TestFileSinkFilters(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Level = "warn"
	cfg.File = filepath.Join(dir, "cortexmap.log")
	cfg.Compress = false

	log, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("should be filtered")
	log.Warn("warn line")
	log.Error("error line")
	_ = log.Sync()

	content, err := os.ReadFile(cfg.File)
	if err != nil {
		t.Fatal(err)
	}
	body := string(content)
	if strings.Contains(body, "should be filtered") {
		t.Error("info should not pass a warn-level sink")
	}
	for _, want := range []string{"warn line", "error line", `"level":"warn"`} {
		if !strings.Contains(body, want) {
			t.Errorf("file sink missing %q in:\n%s", want, body)
		}
	}
}

func TestNamedLoggerInFile(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.File = filepath.Join(dir, "named.log")
	cfg.Compress = false

	log, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	log.Named("projection").Info("named line")
	_ = log.Sync()

	content, err := os.ReadFile(cfg.File)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), `"logger":"projection"`) {
		t.Errorf("file sink should carry the component name, got:\n%s", content)
	}
}
