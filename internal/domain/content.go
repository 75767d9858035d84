package domain

import (
	"encoding/json"
	"fmt"
)

// ContentRecord is the structured metadata stored in the content-addressed
// store under an item's ContentHash. Records are immutable: a hash always
// resolves to the same bytes.
type ContentRecord struct {
	Hash string
	Raw  json.RawMessage
}

// NewContentRecord validates that blob is a JSON document and wraps it.
func NewContentRecord(hash string, blob []byte) (*ContentRecord, error) {
	if !json.Valid(blob) {
		return nil, fmt.Errorf("content %s is not valid JSON", hash)
	}
	raw := make(json.RawMessage, len(blob))
	copy(raw, blob)
	return &ContentRecord{Hash: hash, Raw: raw}, nil
}

// Decode unmarshals the record into v.
func (c *ContentRecord) Decode(v any) error {
	return json.Unmarshal(c.Raw, v)
}

// Field returns a top-level string field, or "" when absent or not a string.
func (c *ContentRecord) Field(name string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(c.Raw, &fields); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(fields[name], &s); err != nil {
		return ""
	}
	return s
}
