package textutil

import "strings"

// NormalizeStringMap canonicalises client-supplied key/value attachments
// before they are validated against the bounded metadata key set: keys are
// trimmed and lower-cased, values trimmed, entries with empty keys dropped.
// Returns nil when nothing survives so callers can treat the result as
// absent.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		normalized := strings.ToLower(strings.TrimSpace(key))
		if normalized == "" {
			continue
		}
		result[normalized] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
