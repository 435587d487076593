// Package jsondict builds the small JSON documents sent to REST devices.
//
// Output keeps the layout devices have historically been sent, with ": "
// between keys and values and ", " between members:
//
//	jsondict.String("key", "value").String() // {"key": "value"}
//	jsondict.Nested("key", jsondict.Int("sub", 1)).String() // {"key": {"sub": 1}}
package jsondict

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Dict is a JSON object under construction. A Dict with an empty key is a
// bare list of members, as produced by Merge.
type Dict struct {
	key   string
	value string
}

// String creates {"key": "value"}.
func String(key, value string) Dict {
	return Dict{key: Quote(key), value: Quote(value)}
}

// Bool creates {"key": true|false}.
func Bool(key string, value bool) Dict {
	return Dict{key: Quote(key), value: strconv.FormatBool(value)}
}

// Int creates {"key": 10}.
func Int(key string, value int) Dict {
	return Dict{key: Quote(key), value: strconv.Itoa(value)}
}

// Float creates {"key": 2.5}.
func Float(key string, value float64) Dict {
	return Dict{key: Quote(key), value: FormatFloat(value)}
}

// Raw creates {"key": raw} where raw is already valid JSON.
func Raw(key, raw string) Dict {
	return Dict{key: Quote(key), value: raw}
}

// Nested creates {"key": {...}}.
func Nested(key string, value Dict) Dict {
	return Dict{key: Quote(key), value: value.String()}
}

// Merge joins several dictionaries into one object. Members of keyless
// dictionaries are spliced in as they are.
func Merge(items ...Dict) Dict {
	var b strings.Builder

	for i, item := range items {
		if item.key == "" {
			b.WriteString(item.value)
		} else {
			b.WriteString(item.key)
			b.WriteString(": ")
			b.WriteString(item.value)
		}

		if i < len(items)-1 {
			b.WriteString(", ")
		}
	}

	return Dict{value: b.String()}
}

func (d Dict) String() string {
	if d.key == "" {
		return "{" + d.value + "}"
	}

	return "{" + d.key + ": " + d.value + "}"
}

// Quote returns s as a JSON string literal.
func Quote(s string) string {
	b, err := json.MarshalNoEscape(s)
	if err != nil {
		// strings always encode
		panic(err)
	}

	return string(b)
}

// FormatFloat renders v with six significant digits, dropping trailing zeros.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
