package config

import (
	"testing"
	"time"
)

func TestRequireEnv(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		wantPanic bool
	}{
		{name: "variable set", key: "TEST_VAR", value: "test_value"},
		{name: "variable not set", key: "TEST_VAR_MISSING", wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnv() should have panicked")
					}
				}()
			}

			result := requireEnv(tt.key)
			if !tt.wantPanic && result != tt.value {
				t.Errorf("requireEnv() = %v, want %v", result, tt.value)
			}
		})
	}
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{"valid duration", "5s", time.Second, 5 * time.Second},
		{"invalid duration uses default", "invalid", 10 * time.Second, 10 * time.Second},
		{"missing variable uses default", "", 15 * time.Second, 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if result := mustDuration("TEST_DURATION", tt.def); result != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestGetenvFloat(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      float64
		expected float64
	}{
		{"valid float", "0.85", 0.7, 0.85},
		{"integer", "1", 0.7, 1},
		{"invalid uses default", "high", 0.7, 0.7},
		{"missing uses default", "", 0.7, 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_FLOAT", tt.value)
			if result := getenvFloat("TEST_FLOAT", tt.def); result != tt.expected {
				t.Errorf("getenvFloat() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{"true value", "true", false, true},
		{"false value", "false", true, false},
		{"invalid value uses default", "invalid", true, true},
		{"missing variable uses default", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if result := mustBool("TEST_BOOL", tt.def); result != tt.expected {
				t.Errorf("mustBool() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(` "https://a.example" , ,'https://b.example' `)
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("splitAndTrim() = %v", got)
	}
	if splitAndTrim("") != nil {
		t.Error("splitAndTrim(\"\") should be nil")
	}
}

func TestMustLocation(t *testing.T) {
	t.Setenv("TEST_TZ", "Europe/Paris")
	if loc := mustLocation("TEST_TZ", "UTC"); loc.String() != "Europe/Paris" {
		t.Errorf("mustLocation() = %v", loc)
	}

	t.Setenv("TEST_TZ", "Mars/Olympus")
	defer func() {
		if r := recover(); r == nil {
			t.Error("mustLocation() should panic on an unknown zone")
		}
	}()
	mustLocation("TEST_TZ", "UTC")
}

func TestLoadPolicyFromEnv(t *testing.T) {
	t.Setenv("COWRITE_STORE", "memory")
	t.Setenv("COWRITE_MIN_WORD_COUNT", "8")
	t.Setenv("COWRITE_DEBOUNCE", "3s")
	t.Setenv("COWRITE_CONFIDENCE_THRESHOLD", "0.8")
	t.Setenv("COWRITE_DAILY_QUOTA", "20")

	cfg := Load()

	if cfg.StoreBackend != StoreMemory {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	p := cfg.Policy
	if p.MinWordCount != 8 || p.Debounce != 3*time.Second || p.ConfidenceThreshold != 0.8 || p.DailyQuota != 20 {
		t.Errorf("unexpected policy: %+v", p)
	}
	if p.EvidenceK != 3 || p.QueryMaxWords != 32 || p.SuggestionTTL != 0 {
		t.Errorf("defaults not applied: %+v", p)
	}
	if cfg.QuotaLocation != time.UTC {
		t.Errorf("QuotaLocation = %v, want UTC", cfg.QuotaLocation)
	}
	if cfg.UserHeader != "X-User-ID" {
		t.Errorf("UserHeader = %q", cfg.UserHeader)
	}
}

func TestLoadGeneratorModel(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		expected string
	}{
		{"openai default", "openai", "", "gpt-4o-mini"},
		{"gemini default", "gemini", "", "gemini-2.5-flash"},
		{"provider is case insensitive", "Gemini", "", "gemini-2.5-flash"},
		{"explicit model wins", "gemini", "gemini-2.5-pro", "gemini-2.5-pro"},
		{"mock has no model", "mock", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("COWRITE_STORE", "memory")
			t.Setenv("COWRITE_GENERATOR", tt.provider)
			t.Setenv("COWRITE_GENERATOR_MODEL", tt.model)

			if got := Load().GeneratorModel; got != tt.expected {
				t.Errorf("GeneratorModel = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestLoadPanics(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"redis without address", map[string]string{"COWRITE_STORE": "redis", "COWRITE_REDIS_ADDR": ""}},
		{"redis without password", map[string]string{"COWRITE_STORE": "redis", "COWRITE_REDIS_ADDR": "localhost:6379", "COWRITE_REDIS_PASSWORD": ""}},
		{"unknown store", map[string]string{"COWRITE_STORE": "postgres"}},
		{"invalid policy", map[string]string{"COWRITE_STORE": "memory", "COWRITE_CONFIDENCE_THRESHOLD": "1.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			defer func() {
				if r := recover(); r == nil {
					t.Error("Load() should have panicked")
				}
			}()
			Load()
		})
	}
}
