package correction

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// truthyStrings and falsyStrings are the fixed word lists recognized when
// coercing a string to a boolean.
var (
	truthyStrings = map[string]bool{"true": true, "1": true, "yes": true, "on": true, "success": true}
	falsyStrings  = map[string]bool{"false": true, "0": true, "no": true, "off": true, "fail": true, "failed": true}
)

// ConvertValue coerces v to the declared schema type. The second return is
// false when no sensible conversion exists (for numbers, the NaN case).
func ConvertValue(v interface{}, declaredType string) (interface{}, bool) {
	switch declaredType {
	case "number", "integer":
		return convertToNumber(v)
	case "boolean":
		return convertToBoolean(v), true
	case "object":
		return convertToObject(v), true
	case "array":
		return convertToArray(v)
	case "string":
		return convertToString(v), true
	default:
		return v, false
	}
}

// convertToNumber follows loose numeric coercion: booleans become 0/1,
// blank strings become 0, unparsable values fail.
func convertToNumber(v interface{}) (interface{}, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return float64(1), true
		}
		return float64(0), true
	case string:
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			return float64(0), true
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, false
		}
		return parsed, true
	case nil:
		return float64(0), true
	default:
		return nil, false
	}
}

// convertToBoolean never fails: recognized strings map to their boolean,
// other strings are truthy when non-empty, numbers are true unless zero,
// and any other non-nil value is truthy.
func convertToBoolean(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		lowered := strings.ToLower(strings.TrimSpace(b))
		if truthyStrings[lowered] {
			return true
		}
		if falsyStrings[lowered] {
			return false
		}
		return lowered != ""
	case float64:
		return b != 0
	case float32:
		return b != 0
	case int:
		return b != 0
	case int64:
		return b != 0
	case nil:
		return false
	default:
		return true
	}
}

// convertToObject tries JSON first, then key=value&key=value query-string
// form, and finally wraps the value so the result is always usable.
func convertToObject(v interface{}) interface{} {
	switch o := v.(type) {
	case map[string]interface{}:
		return o
	case string:
		trimmed := strings.TrimSpace(o)
		var parsed interface{}
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
		if strings.Contains(trimmed, "=") {
			if values, err := url.ParseQuery(trimmed); err == nil && len(values) > 0 {
				obj := make(map[string]interface{}, len(values))
				for key, vals := range values {
					if len(vals) == 1 {
						obj[key] = vals[0]
					} else {
						obj[key] = vals
					}
				}
				return obj
			}
		}
		return map[string]interface{}{"value": o}
	default:
		return map[string]interface{}{"value": v}
	}
}

func convertToArray(v interface{}) (interface{}, bool) {
	switch a := v.(type) {
	case []interface{}:
		return a, true
	case string:
		trimmed := strings.TrimSpace(a)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			var parsed []interface{}
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return parsed, true
			}
		}
		return nil, false
	default:
		return []interface{}{v}, true
	}
}

// convertToString renders scalars the way a user would write them and
// falls back to JSON for structured values.
func convertToString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case nil:
		return "null"
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return ""
	}
}

// runtimeType maps a Go value decoded from JSON onto a schema type name
func runtimeType(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, float32, int, int64:
		return "number"
	case bool:
		return "boolean"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	case nil:
		return "null"
	default:
		return "object"
	}
}

// typeMatches reports whether a runtime type satisfies a declared schema
// type. integer is treated as number; a declared type of empty string
// matches anything.
func typeMatches(declared, runtime string) bool {
	if declared == "" {
		return true
	}
	if declared == "integer" {
		declared = "number"
	}
	return declared == runtime
}
