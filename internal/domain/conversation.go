package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ConversationRecord is one append-only snapshot of the structured data a
// user has supplied so far. The newest record is the active context.
type ConversationRecord struct {
	UserID    string
	Data      map[string]any
	CreatedAt time.Time
}

// EncodeData serializes a conversation payload for storage.
func EncodeData(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("domain: encode data: %w", err)
	}
	return string(buf), nil
}

// DecodeData parses a JSON object into a map. Integral numbers become int64
// and the rest float64, so values survive a store round trip unchanged.
func DecodeData(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewBufferString(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("domain: decode data: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("domain: decode data: trailing data")
	}
	if out == nil {
		return map[string]any{}, nil
	}
	for k, v := range out {
		out[k] = normalizeNumber(v)
	}
	return out, nil
}

func normalizeNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = normalizeNumber(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeNumber(t[k])
		}
		return t
	default:
		return v
	}
}
