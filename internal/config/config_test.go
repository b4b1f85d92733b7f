package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir string, content string) string {
	t.Helper()
	path := filepath.Join(dir, "conf.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write conf.yaml: %v", err)
	}
	return path
}

func TestLoadConfigAppliesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
system_config:
  host: 127.0.0.1
  port: 9100
vlm:
  model: llava:13b
  timeout_seconds: 5
scheduler:
  frame_process_interval_seconds: 3
  trigger_words:
    - door
    - bottle
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9100" {
		t.Fatalf("HTTPAddr=%q, want 127.0.0.1:9100", cfg.HTTPAddr)
	}
	if cfg.VLM.Model != "llava:13b" {
		t.Fatalf("VLM.Model=%q, want llava:13b", cfg.VLM.Model)
	}
	if got := cfg.VLMTimeout(); got != 5*time.Second {
		t.Fatalf("VLMTimeout=%v, want 5s", got)
	}
	if got := cfg.FrameProcessInterval(); got != 3*time.Second {
		t.Fatalf("FrameProcessInterval=%v, want 3s", got)
	}
	if len(cfg.Scheduler.TriggerWords) != 2 || cfg.Scheduler.TriggerWords[1] != "bottle" {
		t.Fatalf("TriggerWords=%v, want [door bottle]", cfg.Scheduler.TriggerWords)
	}
}

func TestLoadConfigDefaultsSurvive(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "system_config:\n  port: 9000\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Faces.Tolerance != 0.6 {
		t.Fatalf("Faces.Tolerance=%v, want 0.6", cfg.Faces.Tolerance)
	}
	if cfg.VLM.IdlePrompt == "" {
		t.Fatal("VLM.IdlePrompt empty, want embedded default")
	}
	if got := cfg.TickInterval(); got != 100*time.Millisecond {
		t.Fatalf("TickInterval=%v, want 100ms", got)
	}
	if got := cfg.ForwardTimeout(); got != 2*time.Second {
		t.Fatalf("ForwardTimeout=%v, want 2s", got)
	}
}

func TestLoadConfigMissingFileFails(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadConfig error=nil, want missing file error")
	}
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "vlm:\n  model: llava\n")
	t.Setenv("MEMORYLINK_VLM_MODEL", "bakllava")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.VLM.Model != "bakllava" {
		t.Fatalf("VLM.Model=%q, want env override bakllava", cfg.VLM.Model)
	}
}

func TestDerivedPathsAnchoredAtRoot(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "history_dir: sessions\nfaces:\n  known_faces_dir: gallery\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RootDir != dir {
		t.Fatalf("RootDir=%q, want %q", cfg.RootDir, dir)
	}
	if want := filepath.Join(dir, "sessions"); cfg.HistoryDir != want {
		t.Fatalf("HistoryDir=%q, want %q", cfg.HistoryDir, want)
	}
	if want := filepath.Join(dir, "gallery"); cfg.Faces.KnownFacesDir != want {
		t.Fatalf("KnownFacesDir=%q, want %q", cfg.Faces.KnownFacesDir, want)
	}
}

func TestVLMTimeoutZeroMeansNoDeadline(t *testing.T) {
	cfg := Config{VLM: VLMConfig{TimeoutSeconds: 0}}
	if got := cfg.VLMTimeout(); got != 0 {
		t.Fatalf("VLMTimeout=%v, want 0", got)
	}
}
