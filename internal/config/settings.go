// Package config holds host settings (schema version, verbosity) and the
// process options of the server.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/mcncl/river-ls/internal/snippet"
)

// DefaultSchemaVersion is the documentation ref used when the host sets none.
const DefaultSchemaVersion = "release-v0.40"

// ErrInvalidSettings is returned when a settings payload fails validation.
var ErrInvalidSettings = errors.New("invalid settings")

//go:embed settings.schema.json
var settingsSchema []byte

var settingsSchemaLoader = gojsonschema.NewBytesLoader(settingsSchema)

// Settings are the values a host may change at runtime.
type Settings struct {
	SchemaVersion string
	Verbosity     snippet.Verbosity
}

// DefaultSettings returns the settings used before the host sends any.
func DefaultSettings() Settings {
	return Settings{
		SchemaVersion: DefaultSchemaVersion,
		Verbosity:     snippet.DefaultVerbosity,
	}
}

// payload mirrors the JSON the host sends. Absent fields keep their value.
type payload struct {
	AgentVersion *string `json:"agentVersion"`
	Verbosity    *int    `json:"verbosity"`
}

// ValidationError describes the most relevant problem of a rejected payload.
type ValidationError struct {
	Message string
	Field   string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidSettings
}

// Apply validates raw and returns s updated with the fields it carries.
// Empty and null payloads change nothing. On error s is returned unchanged.
func (s Settings) Apply(raw []byte) (Settings, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return s, nil
	}

	if err := validate(raw); err != nil {
		return s, err
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	next := s
	if p.AgentVersion != nil {
		next.SchemaVersion = *p.AgentVersion
	}
	if p.Verbosity != nil {
		v, err := snippet.ParseVerbosity(*p.Verbosity)
		if err != nil {
			return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
		next.Verbosity = v
	}
	return next, nil
}

func validate(raw []byte) error {
	result, err := gojsonschema.Validate(settingsSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if result.Valid() || len(result.Errors()) == 0 {
		return nil
	}

	// Report the most specific error.
	errorPriority := map[string]int{
		"additional_property_not_allowed": 1,
		"invalid_type":                    2,
		"number_gte":                      3,
		"number_lte":                      4,
		"string_gte":                      5,
		"pattern":                         6,
	}

	best := result.Errors()[0]
	highestPriority := 999
	for _, resultErr := range result.Errors() {
		if priority, exists := errorPriority[resultErr.Type()]; exists && priority < highestPriority {
			best = resultErr
			highestPriority = priority
		}
	}

	return &ValidationError{
		Message: friendlyErrorMessage(best),
		Field:   best.Field(),
	}
}

func friendlyErrorMessage(err gojsonschema.ResultError) string {
	field := extractFieldName(err.Field())
	switch err.Type() {
	case "additional_property_not_allowed":
		if propertyName := extractPropertyFromDescription(err.Description()); propertyName != "" {
			return fmt.Sprintf("Unknown setting '%s' is not allowed", propertyName)
		}
		return err.Description()
	case "invalid_type":
		return fmt.Sprintf("Setting '%s' has wrong type (expected %s)", field, err.Details()["expected"])
	case "number_gte":
		return fmt.Sprintf("Setting '%s' must be at least %v", field, err.Details()["min"])
	case "number_lte":
		return fmt.Sprintf("Setting '%s' must be at most %v", field, err.Details()["max"])
	case "string_gte":
		return fmt.Sprintf("Setting '%s' must not be empty", field)
	case "pattern":
		return fmt.Sprintf("Setting '%s' is not a valid version name", field)
	default:
		return err.Description()
	}
}

// extractFieldName returns the last non-index segment of a field path,
// e.g. "a.1.verbosity" -> "verbosity".
func extractFieldName(fieldPath string) string {
	parts := strings.Split(fieldPath, ".")
	for i := len(parts) - 1; i >= 0; i-- {
		if !isNumeric(parts[i]) {
			return parts[i]
		}
	}
	return fieldPath
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, char := range s {
		if char < '0' || char > '9' {
			return false
		}
	}
	return true
}

// extractPropertyFromDescription pulls the name out of
// "Additional property foo is not allowed".
func extractPropertyFromDescription(description string) string {
	const prefix, suffix = "Additional property ", " is not allowed"
	start := strings.Index(description, prefix)
	end := strings.Index(description, suffix)
	if start < 0 || end < 0 {
		return ""
	}
	start += len(prefix)
	if start >= end {
		return ""
	}
	return description[start:end]
}
