package engine

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Policy constants for the orchestration engine. Fixed policy, not user
// input; tests override them through Options.
const (
	// DefaultConcurrencyCap is the max simultaneous runs per domain.
	DefaultConcurrencyCap = 2
	// DefaultTimeoutThreshold is the timeout count at which a domain
	// switches to the fallback model set.
	DefaultTimeoutThreshold = 3
	// DefaultTrackerReset is the timeout-counter sweep interval.
	DefaultTrackerReset = 5 * time.Minute
	// DefaultQueryTimeout bounds one provider query call.
	DefaultQueryTimeout = 20 * time.Second
	// DefaultScoreTimeout bounds one scoring call.
	DefaultScoreTimeout = 60 * time.Second
	// DefaultBatchPause is the pacing delay between batches.
	DefaultBatchPause = 500 * time.Millisecond
	// DefaultMaxUnits caps phrases × models for one run.
	DefaultMaxUnits = 1000
)

// ModelSetConfig defines the full and fallback model sets. The fallback
// set must be a subset of the full set.
type ModelSetConfig struct {
	Full     []string `yaml:"full"`
	Fallback []string `yaml:"fallback"`
}

// DefaultModelSets returns the built-in model configuration.
func DefaultModelSets() ModelSetConfig {
	return ModelSetConfig{
		Full:     []string{"ChatGPT", "Claude", "Perplexity", "Gemini"},
		Fallback: []string{"ChatGPT", "Claude"},
	}
}

// LoadModelSets reads model set configuration from a YAML file.
func LoadModelSets(path string) (ModelSetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModelSetConfig{}, eris.Wrapf(err, "engine: read model config %s", path)
	}

	var wrapper struct {
		Models ModelSetConfig `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return ModelSetConfig{}, eris.Wrap(err, "engine: parse model config")
	}

	cfg := wrapper.Models
	if len(cfg.Full) == 0 {
		return ModelSetConfig{}, eris.New("engine: model config has empty full set")
	}
	if len(cfg.Fallback) == 0 {
		cfg.Fallback = cfg.Full
	}
	full := make(map[string]bool, len(cfg.Full))
	for _, m := range cfg.Full {
		full[m] = true
	}
	for _, m := range cfg.Fallback {
		if !full[m] {
			return ModelSetConfig{}, eris.Errorf("engine: fallback model %q not in full set", m)
		}
	}
	return cfg, nil
}

// ModelSelector chooses the model set for a domain based on its recent
// timeout count. It is a pure read against the tracker and is evaluated
// per work unit so mid-run escalation takes effect immediately.
type ModelSelector struct {
	sets      ModelSetConfig
	tracker   *TimeoutTracker
	threshold int
}

// NewModelSelector creates a selector over the given sets and tracker.
func NewModelSelector(sets ModelSetConfig, tracker *TimeoutTracker, threshold int) *ModelSelector {
	if threshold <= 0 {
		threshold = DefaultTimeoutThreshold
	}
	return &ModelSelector{sets: sets, tracker: tracker, threshold: threshold}
}

// Select returns the fallback set once the domain has reached the
// timeout threshold in the current window, else the full set.
func (s *ModelSelector) Select(domainID int64) []string {
	if s.tracker.Count(domainID) >= s.threshold {
		return s.sets.Fallback
	}
	return s.sets.Full
}

// FullSet returns the configured full model set.
func (s *ModelSelector) FullSet() []string { return s.sets.Full }
