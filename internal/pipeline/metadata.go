package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RecordMetadata is the JSON blob trailing each CDX line. Fields are read
// through tolerant accessors; unknown keys are carried through untouched.
type RecordMetadata map[string]any

// String returns the value at key when it is a JSON string.
func (m RecordMetadata) String(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}

// Int reads key as an integer. CDX encodes numbers as strings, so both
// string and numeric JSON values are accepted.
func (m RecordMetadata) Int(key string) (int64, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return 0, fmt.Errorf("metadata field %q missing", key)
	}
	switch v := raw.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("metadata field %q: %w", key, err)
		}
		return n, nil
	case float64:
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("metadata field %q: %w", key, err)
		}
		return n, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("metadata field %q has unsupported type %T", key, raw)
	}
}

// Status returns the HTTP status recorded for the capture, if present.
func (m RecordMetadata) Status() (string, bool) {
	return m.String("status")
}

// Languages returns the comma separated language codes detected by the crawler.
func (m RecordMetadata) Languages() []string {
	raw, ok := m.String("languages")
	if !ok {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasLanguage reports whether code appears in the languages field.
func (m RecordMetadata) HasLanguage(code string) bool {
	for _, l := range m.Languages() {
		if l == code {
			return true
		}
	}
	return false
}

// Location is the archive range a worker has to re-fetch for a candidate.
type Location struct {
	Filename string
	Offset   int64
	Length   int64
}

// Location extracts filename/offset/length from the metadata.
func (m RecordMetadata) Location() (Location, error) {
	filename, ok := m.String("filename")
	if !ok || filename == "" {
		return Location{}, fmt.Errorf("metadata field %q missing", "filename")
	}
	offset, err := m.Int("offset")
	if err != nil {
		return Location{}, err
	}
	length, err := m.Int("length")
	if err != nil {
		return Location{}, err
	}
	if length <= 0 {
		return Location{}, fmt.Errorf("metadata length must be > 0, got %d", length)
	}
	return Location{Filename: filename, Offset: offset, Length: length}, nil
}
