package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/mcncl/river-ls/internal/snippet"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s.SchemaVersion != "release-v0.40" {
		t.Errorf("Expected release-v0.40, got %s", s.SchemaVersion)
	}
	if s.Verbosity != snippet.Detailed {
		t.Errorf("Expected detailed verbosity, got %v", s.Verbosity)
	}
}

func TestSettings_Apply(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Settings
	}{
		{"empty", "", DefaultSettings()},
		{"null", "null", DefaultSettings()},
		{"empty object", "{}", DefaultSettings()},
		{
			name:     "version only",
			raw:      `{"agentVersion": "release-v0.39"}`,
			expected: Settings{SchemaVersion: "release-v0.39", Verbosity: snippet.Detailed},
		},
		{
			name:     "both",
			raw:      `{"agentVersion": "main", "verbosity": 1}`,
			expected: Settings{SchemaVersion: "main", Verbosity: snippet.Minimal},
		},
		{
			name:     "trace is tolerated",
			raw:      `{"verbosity": 2, "trace": {"server": "off"}}`,
			expected: Settings{SchemaVersion: DefaultSchemaVersion, Verbosity: snippet.Normal},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultSettings().Apply([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestSettings_ApplyRejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		message string
	}{
		{"verbosity too low", `{"verbosity": 0}`, "Setting 'verbosity' must be at least"},
		{"verbosity too high", `{"verbosity": 4}`, "Setting 'verbosity' must be at most"},
		{"verbosity wrong type", `{"verbosity": "high"}`, "Setting 'verbosity' has wrong type"},
		{"empty version", `{"agentVersion": ""}`, "Setting 'agentVersion' must not be empty"},
		{"version with spaces", `{"agentVersion": "release v1"}`, "Setting 'agentVersion' is not a valid version name"},
		{"unknown setting", `{"agentVersion": "main", "colour": "blue"}`, "Unknown setting 'colour' is not allowed"},
		{"not an object", `[1, 2]`, "wrong type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			previous := Settings{SchemaVersion: "release-v0.39", Verbosity: snippet.Normal}

			got, err := previous.Apply([]byte(tt.raw))
			if !errors.Is(err, ErrInvalidSettings) {
				t.Fatalf("Expected ErrInvalidSettings, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("Expected message containing %q, got %q", tt.message, err.Error())
			}
			if got != previous {
				t.Errorf("Rejected payload must not change settings, got %+v", got)
			}
		})
	}
}

func TestExtractFieldName(t *testing.T) {
	tests := map[string]string{
		"verbosity":               "verbosity",
		"riverLanguageServer.1.x": "x",
		"0":                       "0",
	}
	for input, expected := range tests {
		if got := extractFieldName(input); got != expected {
			t.Errorf("extractFieldName(%q) = %q, expected %q", input, got, expected)
		}
	}
}
