package logx

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Formatter renders a log entry.
type Formatter interface {
	Format(entry *LogEntry) ([]byte, error)
}

// LogEntry is a single record handed to a Formatter.
type LogEntry struct {
	Level     Level
	Message   string
	Fields    Fields
	Data      any
	Error     error
	Timestamp time.Time
	Caller    string
}

// Fields is a map of structured data
type Fields map[string]any

const redacted = "[REDACTED]"

// sensitiveKeys are masked by every formatter.
var sensitiveKeys = []string{"password", "secret", "token", "authorization", "signature"}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// safeFields returns a copy of f with sensitive values masked.
func safeFields(f Fields) Fields {
	if len(f) == 0 {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		if isSensitive(k) {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}

func sortedKeys(f Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatTimestamp(t time.Time, format string) string {
	switch format {
	case "unix":
		return fmt.Sprintf("%d", t.Unix())
	case "unixmilli":
		return fmt.Sprintf("%d", t.UnixMilli())
	default:
		return t.Format(format)
	}
}

func prettyJSON(data any) string {
	if data == nil {
		return ""
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", data)
	}
	return string(b)
}
