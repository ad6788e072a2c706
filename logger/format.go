package logger

import (
	"fmt"
	"net/url"
)

// maxLoggableString is the longest string stored verbatim in a log payload.
const maxLoggableString = 80

// FormatValue normalizes a value for audit-log storage. Strings longer than
// 80 bytes are replaced by a placeholder carrying only the original length,
// booleans become the literal tokens "true"/"false", URLs become their
// canonical string form, and containers are walked recursively. There is no
// depth limit; callers must not feed cyclic structures.
func FormatValue(value any) any {
	switch v := value.(type) {
	case string:
		if len(v) > maxLoggableString {
			return fmt.Sprintf("...(%d)...", len(v))
		}
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case *url.URL:
		if v == nil {
			return ""
		}
		return v.String()
	case url.URL:
		return v.String()
	case map[string]any:
		formatted := make(map[string]any, len(v))
		for key, item := range v {
			formatted[key] = FormatValue(item)
		}
		return formatted
	case []any:
		formatted := make([]any, len(v))
		for i, item := range v {
			formatted[i] = FormatValue(item)
		}
		return formatted
	default:
		return value
	}
}
