package recovery

import "strings"

// ErrorCategory buckets an error message into a coarse validation-failure
// class. Categories drive both workflow selection and learned-pattern keys;
// they are classificatory only and never returned as errors themselves.
type ErrorCategory string

const (
	CategoryMissingRequired   ErrorCategory = "missing_required"
	CategoryUnknownProperties ErrorCategory = "unknown_properties"
	CategoryTypeMismatch      ErrorCategory = "type_mismatch"
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryPermission        ErrorCategory = "permission"
	CategoryOther             ErrorCategory = "other"
)

// CategorizeError buckets lower-cased error text. Order matters: the first
// matching bucket wins.
func CategorizeError(errorMessage string) ErrorCategory {
	lowered := strings.ToLower(errorMessage)

	switch {
	case strings.Contains(lowered, "required") || strings.Contains(lowered, "missing"):
		return CategoryMissingRequired
	case strings.Contains(lowered, "unknown") || strings.Contains(lowered, "additional propert"):
		return CategoryUnknownProperties
	case strings.Contains(lowered, "type") || strings.Contains(lowered, "expected") || strings.Contains(lowered, "must be"):
		return CategoryTypeMismatch
	case strings.Contains(lowered, "timeout") || strings.Contains(lowered, "timed out") || strings.Contains(lowered, "deadline"):
		return CategoryTimeout
	case strings.Contains(lowered, "permission") || strings.Contains(lowered, "forbidden") || strings.Contains(lowered, "unauthorized"):
		return CategoryPermission
	default:
		return CategoryOther
	}
}

// validationKeywords flag error text as repairable by the auto-retry
// workflow.
var validationKeywords = []string{
	"required", "missing", "invalid", "validation", "schema",
	"unknown properties", "unknown property", "type", "expected",
}

// looksLikeValidationError reports whether the error text suggests a
// parameter-level failure a correction strategy might repair.
func looksLikeValidationError(errorMessage string) bool {
	lowered := strings.ToLower(errorMessage)
	for _, keyword := range validationKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}
