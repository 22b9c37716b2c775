// ABOUTME: Uniform response shape and record normalization for the remote CRM
// ABOUTME: Accepts {items:[...]}, bare arrays, single objects and empty bodies
package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Response is the tagged result of every request. Ordinary failures are reported
// here rather than as a returned error; callers check Success.
type Response struct {
	Success    bool
	HTTPStatus int
	Data       json.RawMessage
	Err        error
	Cached     bool
}

func failed(status int, err error) *Response {
	return &Response{Success: false, HTTPStatus: status, Err: err}
}

// Error returns nil for successful responses.
func (r *Response) Error() error {
	if r.Success {
		return nil
	}
	if r.Err == nil {
		return fmt.Errorf("request failed with status %d", r.HTTPStatus)
	}
	return r.Err
}

// Records normalizes the body into an ordered record list.
func (r *Response) Records() ([]json.RawMessage, error) {
	return NormalizeRecords(r.Data)
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// NormalizeRecords converts every observed response shape into an ordered slice:
// {"items":[...]} and bare arrays yield their elements, a single object yields
// itself, and null or empty input yields an empty slice.
func NormalizeRecords(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []json.RawMessage{}, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to decode record array: %w", err)
		}
		return compact(items), nil

	case '{':
		var envelope struct {
			Items *[]json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("failed to decode record object: %w", err)
		}
		if envelope.Items != nil {
			return compact(*envelope.Items), nil
		}
		return []json.RawMessage{json.RawMessage(trimmed)}, nil

	default:
		return nil, fmt.Errorf("unexpected response shape starting with %q", trimmed[0])
	}
}

func compact(items []json.RawMessage) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		if t := bytes.TrimSpace(item); len(t) > 0 && !bytes.Equal(t, []byte("null")) {
			out = append(out, item)
		}
	}
	return out
}

// DecodeRecords normalizes a response and decodes every record into T.
func DecodeRecords[T any](resp *Response) ([]T, error) {
	if err := resp.Error(); err != nil {
		return nil, err
	}

	raws, err := resp.Records()
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}
