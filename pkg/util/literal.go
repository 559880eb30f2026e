package util

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pingcap/errors"
)

// ArrayLiteral renders values in the array input syntax of the engine, like
// {"A","B",NULL,3}. Strings are always double-quoted so that words like NULL
// stay strings, and inside quotes a backslash is escaped before a double quote
// in a single pass, so nothing is escaped twice. Numbers (float64 or
// json.Number) and booleans keep their natural token, nested slices become
// nested braces and objects are rendered as quoted JSON text.
func ArrayLiteral(values []any) (string, error) {
	var b strings.Builder
	if err := writeArray(&b, values); err != nil {
		return "", errors.Trace(err)
	}
	return b.String(), nil
}

// StringArrayLiteral is ArrayLiteral for a string slice.
func StringArrayLiteral(values []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		writeQuotedElement(&b, v)
	}
	b.WriteByte('}')
	return b.String()
}

// FloatArrayLiteral renders a float array, with the shortest representation
// that reads back to the same value.
func FloatArrayLiteral(values []float64) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(formatFloat(v))
	}
	b.WriteByte('}')
	return b.String()
}

func writeArray(b *strings.Builder, values []any) error {
	b.WriteByte('{')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := writeElement(b, v); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func writeElement(b *strings.Builder, v any) error {
	switch e := v.(type) {
	case nil:
		b.WriteString("NULL")
	case string:
		writeQuotedElement(b, e)
	case json.Number:
		b.WriteString(e.String())
	case float64:
		b.WriteString(formatFloat(e))
	case float32:
		b.WriteString(formatFloat(float64(e)))
	case int:
		b.WriteString(strconv.Itoa(e))
	case int64:
		b.WriteString(strconv.FormatInt(e, 10))
	case bool:
		b.WriteString(strconv.FormatBool(e))
	case []any:
		return writeArray(b, e)
	case map[string]any:
		text, err := json.Marshal(e)
		if err != nil {
			return errors.Trace(err)
		}
		writeQuotedElement(b, string(text))
	default:
		return errors.Errorf("unsupported array element %v of type %T", v, v)
	}
	return nil
}

func writeQuotedElement(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		if r == '\\' || r == '"' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// QuoteLiteral quotes s as a SQL string literal.
func QuoteLiteral(s string) string {
	if strings.Contains(s, `\`) {
		return "E'" + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "'", "''") + "'"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdentifier quotes s as a SQL identifier.
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
