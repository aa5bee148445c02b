package channel

import (
	"encoding/json"
	"fmt"

	"github.com/grovetools/storymap/errors"
)

// Response is the JSON object a worker writes for one command.
type Response map[string]interface{}

// Status returns the "status" field, or "" when absent.
func (r Response) Status() string {
	return r.str("status")
}

// IsError reports whether the worker flagged an application-level failure.
func (r Response) IsError() bool {
	return r.Status() == "error"
}

// ErrorMessage returns the worker's error text, preferring "error" over
// "message".
func (r Response) ErrorMessage() string {
	if msg := r.str("error"); msg != "" {
		return msg
	}
	return r.str("message")
}

// ErrorType returns the worker's error classification if it sent one.
func (r Response) ErrorType() string {
	if t := r.str("error_type"); t != "" {
		return t
	}
	return r.str("errorType")
}

func (r Response) str(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ExtractObject returns the first top-level JSON object in payload. Text
// before the object (progress lines, banners) is ignored, as is anything
// after it. A payload without a decodable object is a protocol error.
func ExtractObject(payload []byte) (Response, error) {
	for start := 0; start < len(payload); start++ {
		if payload[start] != '{' {
			continue
		}
		end := matchBrace(payload, start)
		if end < 0 {
			break
		}
		var resp Response
		if err := json.Unmarshal(payload[start:end+1], &resp); err == nil {
			return resp, nil
		}
	}
	return nil, errors.MalformedResponse(string(payload))
}

// matchBrace returns the index of the brace closing the object opened at
// start, skipping braces inside JSON strings, or -1 if it never closes.
func matchBrace(b []byte, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(b); i++ {
		c := b[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
