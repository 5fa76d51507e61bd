// Package config holds the hark configuration file format. Command line
// flags are applied on top in main.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Actions       ActionsConfig       `yaml:"actions"`
	Sink          SinkConfig          `yaml:"sink"`
	Server        ServerConfig        `yaml:"server"`
	Silence       SilenceConfig       `yaml:"silence"`
	Log           LogConfig           `yaml:"log"`
}

type AudioConfig struct {
	SampleRate    int           `yaml:"sample_rate"`
	Channels      int           `yaml:"channels"`
	BlockDuration time.Duration `yaml:"block_duration"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Device        string        `yaml:"device"`
}

type TranscriptionConfig struct {
	Provider string `yaml:"provider"`
	// Language is an ISO 639-1 code; empty lets the provider detect it.
	Language      string        `yaml:"language"`
	BeamSize      int           `yaml:"beam_size"`
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url"`
	Format        string        `yaml:"format"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	// WhisperModel is the ggml model path for the local backend.
	WhisperModel string `yaml:"whisper_model"`
}

type ActionsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type SinkConfig struct {
	// File is rewritten with the latest record; empty disables it.
	File      string `yaml:"file"`
	Clipboard bool   `yaml:"clipboard"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type SilenceConfig struct {
	Disabled      bool          `yaml:"disabled"`
	WarnAfter     time.Duration `yaml:"warn_after"`
	AutoMuteAfter time.Duration `yaml:"auto_mute_after"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
	Path    string `yaml:"path"`
}

func Default() Config {
	return Config{
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			BlockDuration: 500 * time.Millisecond,
			PollInterval:  10 * time.Millisecond,
		},
		Transcription: TranscriptionConfig{
			Provider:      "auto",
			Language:      "en",
			BeamSize:      1,
			Format:        "flac",
			Timeout:       30 * time.Second,
			MaxConcurrent: 1,
		},
		Actions: ActionsConfig{Model: "gpt-4o-mini"},
		Sink:    SinkConfig{File: "actions.json"},
		Server:  ServerConfig{Address: ":8789"},
		Silence: SilenceConfig{
			WarnAfter:     8 * time.Second,
			AutoMuteAfter: 30 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value; unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadEnv loads API keys from dotenv files into the environment. Missing
// files are skipped and variables already set are kept.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}
	if err := c.Actions.Validate(); err != nil {
		return fmt.Errorf("actions config: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Silence.Validate(); err != nil {
		return fmt.Errorf("silence config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}
	if a.Channels != 1 && a.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}
	if a.BlockDuration < 10*time.Millisecond {
		return fmt.Errorf("block_duration must be at least 10ms, got %v", a.BlockDuration)
	}
	if a.PollInterval <= 0 || a.PollInterval >= a.BlockDuration {
		return fmt.Errorf("poll_interval must be positive and shorter than block_duration (%v), got %v", a.BlockDuration, a.PollInterval)
	}
	return nil
}

var providers = map[string]bool{
	"auto": true, "groq": true, "openai": true, "deepgram": true, "whisper": true, "fake": true,
}

func (t *TranscriptionConfig) Validate() error {
	if !providers[t.Provider] {
		return fmt.Errorf("provider must be one of [auto, groq, openai, deepgram, whisper, fake], got '%s'", t.Provider)
	}
	if t.BeamSize < 1 {
		return fmt.Errorf("beam_size must be at least 1, got %d", t.BeamSize)
	}
	if t.Format != "flac" && t.Format != "wav" {
		return fmt.Errorf("format must be 'flac' or 'wav', got '%s'", t.Format)
	}
	if t.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %v", t.Timeout)
	}
	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}
	return nil
}

func (a *ActionsConfig) Validate() error {
	if a.Enabled && a.Model == "" {
		return fmt.Errorf("model cannot be empty when actions are enabled")
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Enabled && s.Address == "" {
		return fmt.Errorf("address cannot be empty when the server is enabled")
	}
	return nil
}

func (s *SilenceConfig) Validate() error {
	if s.Disabled {
		return nil
	}
	if s.WarnAfter <= 0 {
		return fmt.Errorf("warn_after must be positive, got %v", s.WarnAfter)
	}
	if s.AutoMuteAfter != 0 && s.AutoMuteAfter < s.WarnAfter {
		return fmt.Errorf("auto_mute_after (%v) must be 0 or at least warn_after (%v)", s.AutoMuteAfter, s.WarnAfter)
	}
	return nil
}

func (l *LogConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
}
