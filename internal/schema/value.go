package schema

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindExpr
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindExpr:
		return "expr"
	default:
		return "null"
	}
}

// Value is a default value: a string, a number, a boolean, null, or an
// expression kept as written (`[]`, `{}`). The zero Value is null.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
}

func Null() Value { return Value{} }

func String(s string) Value { return Value{Kind: KindString, Str: s} }

func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Expr holds default text that is inserted verbatim.
func Expr(s string) Value { return Value{Kind: KindExpr, Str: s} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// ParseValue interprets the default column of a documentation table.
func ParseValue(raw string) Value {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return Null()
	case raw == "null":
		return Null()
	case raw == "true":
		return Bool(true)
	case raw == "false":
		return Bool(false)
	}

	if n, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
		return Number(n)
	}

	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		if unquoted, err := strconv.Unquote(raw); err == nil {
			return String(unquoted)
		}
		return String(raw[1 : len(raw)-1])
	}

	return Expr(raw)
}

// Literal renders the value the way it would be written in a document.
func (v Value) Literal() string {
	switch v.Kind {
	case KindString:
		return strconv.Quote(v.Str)
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindExpr:
		return v.Str
	default:
		return "null"
	}
}

func (v Value) String() string {
	return v.Literal()
}

// exprJSON is the JSON form of an expression value.
type exprJSON struct {
	Expr *string `json:"expr"`
}

// MarshalJSON encodes the value as the matching JSON scalar. Expressions
// are encoded as {"expr": text}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindExpr:
		return json.Marshal(exprJSON{Expr: &v.Str})
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar into the matching variant.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("schema: empty value")
	}

	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case '{':
		var e exprJSON
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("schema: invalid expression value: %w", err)
		}
		if e.Expr == nil {
			return fmt.Errorf("schema: unsupported value %s", data)
		}
		*v = Expr(*e.Expr)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("schema: invalid bool value: %w", err)
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("schema: invalid string value: %w", err)
		}
		*v = String(s)
		return nil
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("schema: unsupported value %s: %w", data, err)
		}
		*v = Number(n)
		return nil
	}
}
