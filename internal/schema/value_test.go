package schema

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw      string
		expected Value
	}{
		{"", Null()},
		{"  ", Null()},
		{"null", Null()},
		{"true", Bool(true)},
		{"false", Bool(false)},
		{"10000", Number(10000)},
		{"0.5", Number(0.5)},
		{`"5s"`, String("5s")},
		{`"/proc"`, String("/proc")},
		{`""`, String("")},
		{"[]", Expr("[]")},
		{"{}", Expr("{}")},
		{"30s", Expr("30s")},
		{"See below", Expr("See below")},
		{"inf", Expr("inf")},
		{"-Infinity", Expr("-Infinity")},
		{"NaN", Expr("NaN")},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseValue(tt.raw)
			if got != tt.expected {
				t.Errorf("ParseValue(%q) = %#v, expected %#v", tt.raw, got, tt.expected)
			}
		})
	}
}

func TestValue_Literal(t *testing.T) {
	tests := []struct {
		value    Value
		expected string
	}{
		{Null(), "null"},
		{Bool(true), "true"},
		{Number(10000), "10000"},
		{Number(0.25), "0.25"},
		{String("5s"), `"5s"`},
		{String(`say "hi"`), `"say \"hi\""`},
		{Expr("[]"), "[]"},
		{Expr("{}"), "{}"},
		{Expr("30s"), "30s"},
	}

	for _, tt := range tests {
		if got := tt.value.Literal(); got != tt.expected {
			t.Errorf("Literal() = %s, expected %s", got, tt.expected)
		}
	}
}

func TestValue_JSON(t *testing.T) {
	tests := []struct {
		value Value
		json  string
	}{
		{Null(), "null"},
		{Bool(false), "false"},
		{Number(1.5), "1.5"},
		{String("gzip"), `"gzip"`},
		{Expr("[]"), `{"expr":"[]"}`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.value)
		if err != nil {
			t.Fatalf("Marshal(%v) failed: %v", tt.value, err)
		}
		if string(data) != tt.json {
			t.Errorf("Marshal(%v) = %s, expected %s", tt.value, data, tt.json)
		}

		var decoded Value
		if err := json.Unmarshal([]byte(tt.json), &decoded); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", tt.json, err)
		}
		if decoded != tt.value {
			t.Errorf("Unmarshal(%s) = %#v, expected %#v", tt.json, decoded, tt.value)
		}
	}
}

func TestValue_UnmarshalRejectsObjects(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"a":1}`), &v); err == nil {
		t.Error("Expected error for object value")
	}
	if err := json.Unmarshal([]byte(`{"expr":1}`), &v); err == nil {
		t.Error("Expected error for non-string expression")
	}
}

func TestParseValue_NonFiniteNumbersStayEncodable(t *testing.T) {
	for _, raw := range []string{"inf", "+Inf", "-Infinity", "NaN", "1e999"} {
		v := ParseValue(raw)
		if v.Kind == KindNumber {
			t.Errorf("ParseValue(%q) should not be a number, got %v", raw, v.Num)
		}
		if _, err := json.Marshal(v); err != nil {
			t.Errorf("Marshal(ParseValue(%q)) failed: %v", raw, err)
		}
	}
}
