package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileOverrides mirrors the policy YAML file. Absent keys leave the base
// value untouched.
//
//	min_word_count: 5
//	debounce: 5s
//	confidence_threshold: 0.7
//	daily_quota: 50
//	evidence_k: 3
//	suggestion_ttl: 0s
//	query_max_words: 32
type FileOverrides struct {
	MinWordCount        *int     `yaml:"min_word_count"`
	Debounce            *string  `yaml:"debounce"`
	ConfidenceThreshold *float64 `yaml:"confidence_threshold"`
	DailyQuota          *int     `yaml:"daily_quota"`
	EvidenceK           *int     `yaml:"evidence_k"`
	SuggestionTTL       *string  `yaml:"suggestion_ttl"`
	QueryMaxWords       *int     `yaml:"query_max_words"`
}

// Loader reads policy overrides from a YAML file.
type Loader struct {
	filePath string
}

// NewLoader creates a loader for path.
func NewLoader(path string) *Loader {
	return &Loader{filePath: path}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string { return l.filePath }

// Load reads the file and applies it on top of base. The result is
// validated before being returned.
func (l *Loader) Load(base Policy) (Policy, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return base, fmt.Errorf("failed to read policy file: %w", err)
	}

	var ov FileOverrides
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return base, fmt.Errorf("failed to parse policy yaml: %w", err)
	}

	p, err := ov.Apply(base)
	if err != nil {
		return base, err
	}
	if err := p.Validate(); err != nil {
		return base, fmt.Errorf("invalid policy file %s: %w", l.filePath, err)
	}
	return p, nil
}

// Apply returns base with every present override set.
func (ov FileOverrides) Apply(base Policy) (Policy, error) {
	p := base
	if ov.MinWordCount != nil {
		p.MinWordCount = *ov.MinWordCount
	}
	if ov.Debounce != nil {
		d, err := time.ParseDuration(*ov.Debounce)
		if err != nil {
			return base, fmt.Errorf("invalid debounce %q: %w", *ov.Debounce, err)
		}
		p.Debounce = d
	}
	if ov.ConfidenceThreshold != nil {
		p.ConfidenceThreshold = *ov.ConfidenceThreshold
	}
	if ov.DailyQuota != nil {
		p.DailyQuota = *ov.DailyQuota
	}
	if ov.EvidenceK != nil {
		p.EvidenceK = *ov.EvidenceK
	}
	if ov.SuggestionTTL != nil {
		d, err := time.ParseDuration(*ov.SuggestionTTL)
		if err != nil {
			return base, fmt.Errorf("invalid suggestion_ttl %q: %w", *ov.SuggestionTTL, err)
		}
		p.SuggestionTTL = d
	}
	if ov.QueryMaxWords != nil {
		p.QueryMaxWords = *ov.QueryMaxWords
	}
	return p, nil
}
