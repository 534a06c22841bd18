// Package config holds the orchestrator's tunable knobs, loaded from YAML
// over a set of hard-coded defaults in the same style as the scheduler
// configuration this module's worker pool is modeled on.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GenerationMode selects the chapter-stage strategy.
type GenerationMode string

const (
	GenerationConcurrent GenerationMode = "concurrent"
	GenerationSequential GenerationMode = "sequential"
)

// ModeProfile is one of the deep/ultra generation presets.
type ModeProfile struct {
	ChapterCountMin  int `yaml:"ChapterCountMin"`
	ChapterCountMax  int `yaml:"ChapterCountMax"`
	TargetWordsMin   int `yaml:"TargetWordsMin"`
	TargetWordsMax   int `yaml:"TargetWordsMax"`
	OutlineThinking  string `yaml:"OutlineThinking"`
	ChapterThinking  string `yaml:"ChapterThinking"`
	ConclusionThinking string `yaml:"ConclusionThinking"`
}

// Config is the complete set of recognized options from spec §6 plus the
// mode profile table. YAML keys for the knobs spec §6 names use that exact
// spelling (N_WORKERS, rate_limit_interval, ...); keys this module
// introduces are snake_case, and ModeProfile's fields use CamelCase keys.
type Config struct {
	NWorkers           int            `yaml:"N_WORKERS"`
	QueueMax           int            `yaml:"QUEUE_MAX"`
	TaskTimeout        time.Duration  `yaml:"TASK_TIMEOUT"`
	RateLimitInterval  time.Duration  `yaml:"rate_limit_interval"`
	ConcurrentDelay    time.Duration  `yaml:"concurrent_delay"`
	MaxRetries         int            `yaml:"max_retries"`
	RetryBackoffBase   time.Duration  `yaml:"retry_backoff_base"`
	GenerationMode     GenerationMode `yaml:"generation_mode"`
	MaxTextFileSize    int64          `yaml:"max_text_file_size"`
	MaxBinaryFileSize  int64          `yaml:"max_binary_file_size"`

	Modes map[string]ModeProfile `yaml:"modes"`

	DocumentsDir string `yaml:"documents_dir"`
	TasksDir     string `yaml:"tasks_dir"`

	LogRingSize int `yaml:"log_ring_size"`
}

// Default returns the hard-coded defaults spec §6 and the mode profile
// table call for. Callers overlay a YAML file on top of this with Load.
func Default() *Config {
	return &Config{
		NWorkers:          4,
		QueueMax:          64,
		TaskTimeout:       time.Hour,
		RateLimitInterval: 2 * time.Second,
		ConcurrentDelay:   500 * time.Millisecond,
		MaxRetries:        2,
		RetryBackoffBase:  2 * time.Second,
		GenerationMode:    GenerationConcurrent,
		MaxTextFileSize:   5 * 1024 * 1024,
		MaxBinaryFileSize: 50 * 1024 * 1024,
		Modes: map[string]ModeProfile{
			"deep": {
				ChapterCountMin: 6, ChapterCountMax: 15,
				TargetWordsMin: 800, TargetWordsMax: 1500,
				OutlineThinking: "medium", ChapterThinking: "low", ConclusionThinking: "medium",
			},
			"ultra": {
				ChapterCountMin: 12, ChapterCountMax: 20,
				TargetWordsMin: 1200, TargetWordsMax: 2200,
				OutlineThinking: "high", ChapterThinking: "low", ConclusionThinking: "high",
			},
		},
		DocumentsDir: "documents",
		TasksDir:     "tasks",
		LogRingSize:  500,
	}
}

// Load overlays the YAML file at path onto Default(). Missing keys in the
// file keep their default value because yaml.Unmarshal decodes onto an
// already-populated struct rather than a zero value.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would violate an invariant the rest
// of the module assumes holds (a positive worker count, a sane queue
// capacity, at least a deep and ultra mode profile present).
func (c *Config) Validate() error {
	if c.NWorkers <= 0 {
		return fmt.Errorf("config: N_WORKERS must be positive, got %d", c.NWorkers)
	}
	if c.QueueMax <= 0 {
		return fmt.Errorf("config: QUEUE_MAX must be positive, got %d", c.QueueMax)
	}
	for _, mode := range []string{"deep", "ultra"} {
		if _, ok := c.Modes[mode]; !ok {
			return fmt.Errorf("config: missing mode profile %q", mode)
		}
	}
	return nil
}

// ModeProfile looks up a mode by name, falling back to "deep" if unknown
// rather than failing a whole task over a typo'd mode string.
func (c *Config) ModeProfile(mode string) ModeProfile {
	if p, ok := c.Modes[mode]; ok {
		return p
	}
	return c.Modes["deep"]
}
