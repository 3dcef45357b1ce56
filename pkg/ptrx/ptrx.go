// Package ptrx converts between values and pointers for optional JSON fields.
package ptrx

func Bool(v bool) *bool { return &v }

func String(v string) *string { return &v }

// BoolValue dereferences v, returning false for nil.
func BoolValue(v *bool) bool {
	if v == nil {
		return false
	}
	return *v
}

// StringValue dereferences v, returning "" for nil.
func StringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// StringOrNil returns nil for the empty string.
func StringOrNil(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
