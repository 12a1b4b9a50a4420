package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nivara-ai/glasswing/internal/prompt"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("audio.silence_threshold %.1f must not be negative", cfg.Audio.SilenceThreshold))
	}
	for _, d := range []struct {
		name  string
		value int
	}{
		{"audio.silence_duration_ms", cfg.Audio.SilenceDurationMS},
		{"audio.min_utterance_ms", cfg.Audio.MinUtteranceMS},
		{"audio.max_buffer_ms", cfg.Audio.MaxBufferMS},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s %d must not be negative", d.name, d.value))
		}
	}
	if cfg.Audio.MaxBufferMS != 0 && cfg.Audio.MinUtteranceMS > cfg.Audio.MaxBufferMS {
		errs = append(errs, fmt.Errorf("audio.min_utterance_ms %d exceeds audio.max_buffer_ms %d", cfg.Audio.MinUtteranceMS, cfg.Audio.MaxBufferMS))
	}

	if cfg.Session.Profile != "" && !prompt.Profile(cfg.Session.Profile).IsValid() {
		errs = append(errs, fmt.Errorf("session.profile %q is invalid; valid values: general, coding, interview, sales, meeting", cfg.Session.Profile))
	}

	if cfg.License.LimitedQuota < 0 {
		errs = append(errs, fmt.Errorf("license.limited_quota %d must not be negative", cfg.License.LimitedQuota))
	}
	if cfg.License.Key != "" && cfg.License.DeviceID == "" {
		errs = append(errs, errors.New("license.device_id is required when license.key is set"))
	}

	if cfg.Providers.STT.APIKey == "" {
		slog.Warn("providers.stt.api_key is empty; falling back to the GROQ_API_KEY environment variable")
	}
	if cfg.Archive.PostgresDSN == "" {
		slog.Warn("archive.postgres_dsn is empty; turns are archived in memory only")
	}

	return errors.Join(errs...)
}
