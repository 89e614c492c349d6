package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromReaderDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("gemini_api_key: g-key\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.DefaultLLM != "gemini" {
		t.Errorf("DefaultLLM = %q", cfg.DefaultLLM)
	}
	if cfg.MaxCorrections != 20 {
		t.Errorf("MaxCorrections = %d", cfg.MaxCorrections)
	}
	if cfg.MaxUploadBytes != 5<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if cfg.RetryBaseDelay() != 500*time.Millisecond {
		t.Errorf("RetryBaseDelay = %v", cfg.RetryBaseDelay())
	}
	if cfg.Tester.Enabled {
		t.Error("tester must be disabled by default")
	}
}

func TestLoadFromReaderOpenAIOnlyPicksGPT(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("openai_api_key: o-key\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.DefaultLLM != "gpt" {
		t.Fatalf("DefaultLLM = %q, want gpt", cfg.DefaultLLM)
	}
}

func TestLoadFromReaderRejectsUnknownKeys(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("gemini_api_key: k\nsecret_phrase: x\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := &Config{DefaultLLM: "claude", MaxCorrections: -1, MaxUploadBytes: 1, RequestTimeoutSeconds: 1,
		SessionTTLMinutes: 1, Retry: Retry{MaxAttempts: 1}, Tester: Tester{TimeoutSeconds: 1}}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"at least one of", "default_llm", "max_corrections"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "gemini_api_key: from-file\nport: \"9000\"\nretry:\n  max_attempts: 5\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("TESTER_ENABLED", "true")
	t.Setenv("MAX_CORRECTIONS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GeminiAPIKey != "from-env" {
		t.Errorf("GeminiAPIKey = %q", cfg.GeminiAPIKey)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("Retry.MaxAttempts = %d", cfg.Retry.MaxAttempts)
	}
	if !cfg.Tester.Enabled {
		t.Error("Tester.Enabled should follow env")
	}
	if cfg.MaxCorrections != 7 {
		t.Errorf("MaxCorrections = %d", cfg.MaxCorrections)
	}
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "o-key")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAIAPIKey != "o-key" || cfg.DefaultLLM != "gpt" {
		t.Fatalf("cfg = %+v", cfg)
	}
}
