// file: internal/schema/helpers.go
package schema

import (
	"bytes"
)

const maxPreviewLen = 100

// calculatePreview returns a printable prefix of data for error context.
// Control characters are replaced with '.'.
func calculatePreview(data []byte) string {
	suffix := ""
	if len(data) > maxPreviewLen {
		data = data[:maxPreviewLen]
		suffix = "..."
	}
	return string(bytes.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return '.'
		}
		return r
	}, data)) + suffix
}
