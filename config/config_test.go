package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Transcription.Language != "en" || cfg.Transcription.BeamSize != 1 {
		t.Errorf("transcription defaults = %+v", cfg.Transcription)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hark.yaml")
	data := `
audio:
  block_duration: 250ms
  device: USB
transcription:
  provider: groq
  beam_size: 5
server:
  enabled: true
silence:
  auto_mute_after: 0s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Audio.BlockDuration != 250*time.Millisecond || cfg.Audio.Device != "USB" {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("sample_rate default lost: %d", cfg.Audio.SampleRate)
	}
	if cfg.Transcription.Provider != "groq" || cfg.Transcription.BeamSize != 5 {
		t.Errorf("transcription = %+v", cfg.Transcription)
	}
	if !cfg.Server.Enabled || cfg.Server.Address != ":8789" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Silence.AutoMuteAfter != 0 || cfg.Silence.WarnAfter != 8*time.Second {
		t.Errorf("silence = %+v", cfg.Silence)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Audio.BlockDuration != Default().Audio.BlockDuration {
		t.Errorf("block_duration = %v", cfg.Audio.BlockDuration)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse([]byte("audio:\n  sample_rte: 16000\n")); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"sample rate", func(c *Config) { c.Audio.SampleRate = 100 }, "sample_rate"},
		{"channels", func(c *Config) { c.Audio.Channels = 6 }, "channels"},
		{"poll too slow", func(c *Config) { c.Audio.PollInterval = time.Second }, "poll_interval"},
		{"provider", func(c *Config) { c.Transcription.Provider = "vosk" }, "provider"},
		{"beam", func(c *Config) { c.Transcription.BeamSize = 0 }, "beam_size"},
		{"format", func(c *Config) { c.Transcription.Format = "mp3" }, "format"},
		{"concurrency", func(c *Config) { c.Transcription.MaxConcurrent = 0 }, "max_concurrent"},
		{"actions model", func(c *Config) { c.Actions.Enabled = true; c.Actions.Model = "" }, "model"},
		{"server address", func(c *Config) { c.Server.Enabled = true; c.Server.Address = "" }, "address"},
		{"auto mute before warn", func(c *Config) { c.Silence.AutoMuteAfter = time.Second }, "auto_mute_after"},
		{"silence disabled", func(c *Config) { c.Silence.Disabled = true; c.Silence.WarnAfter = 0 }, ""},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Fatalf("error = %v, want mention of %q", err, tt.errorMsg)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("HARK_TEST_KEY=from-file\nHARK_TEST_KEPT=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HARK_TEST_KEY", "")
	os.Unsetenv("HARK_TEST_KEY")
	t.Setenv("HARK_TEST_KEPT", "from-env")

	if err := LoadEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("HARK_TEST_KEY"); got != "from-file" {
		t.Errorf("HARK_TEST_KEY = %q", got)
	}
	if got := os.Getenv("HARK_TEST_KEPT"); got != "from-env" {
		t.Errorf("HARK_TEST_KEPT = %q", got)
	}
}
