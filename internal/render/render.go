// Package render produces the "compact, indented, truncated rendering
// suitable for an LLM context" get_workflow_data requires, using
// tidwall/pretty — a dependency the teacher already pulls in
// transitively through gjson, wired here directly for the one place
// spec.md calls for pretty-printed, length-bounded JSON.
package render

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/pretty"
)

// DefaultMaxBytes bounds how much rendered JSON get_workflow_data will
// hand back before truncating, keeping the payload LLM-context-sized.
const DefaultMaxBytes = 8000

// ForContext marshals value to indented JSON and truncates it to
// maxBytes (DefaultMaxBytes if <= 0), appending a marker so callers can
// tell truncated output from complete output.
func ForContext(value any, maxBytes int) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal for rendering: %w", err)
	}
	styled := pretty.Pretty(raw)
	if len(styled) <= maxBytes {
		return string(styled), nil
	}
	return string(styled[:maxBytes]) + "\n... (truncated)", nil
}
