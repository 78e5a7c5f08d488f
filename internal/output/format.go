package output

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/crimson-sun/winnow/internal/model"
)

// Format selects the wire shape of written events.
type Format int

const (
	// FormatJSON renders each event as one compact JSON object (NDJSON).
	FormatJSON Format = iota
	// FormatText renders each event as a human-readable line.
	FormatText
)

func (f Format) String() string {
	if f == FormatText {
		return "text"
	}
	return "json"
}

// ParseFormat maps a config string to a Format. Matching is
// case-insensitive; unknown names come back as FormatJSON with ok=false.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, true
	case "text":
		return FormatText, true
	}
	return FormatJSON, false
}

// EncodeEvent renders one event as a single line in the given format,
// without the trailing newline.
func EncodeEvent(e model.LogEvent, f Format) ([]byte, error) {
	if f == FormatText {
		return appendText(nil, e), nil
	}
	return json.Marshal(e)
}

// appendText renders "<ts> <SEVERITY> [service] message k=v ...". Attrs are
// sorted by key so the line is deterministic.
func appendText(buf []byte, e model.LogEvent) []byte {
	buf = e.Timestamp.UTC().AppendFormat(buf, time.RFC3339)
	buf = append(buf, ' ')
	buf = append(buf, e.Severity.String()...)
	if e.Service != "" {
		buf = append(buf, " ["...)
		buf = append(buf, e.Service...)
		buf = append(buf, ']')
	}
	buf = append(buf, ' ')
	buf = append(buf, e.Message...)
	if len(e.Attrs) > 0 {
		keys := make([]string, 0, len(e.Attrs))
		for k := range e.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			buf = append(buf, ' ')
			buf = append(buf, k...)
			buf = append(buf, '=')
			buf = append(buf, e.Attrs[k]...)
		}
	}
	return buf
}
