// Package partialjson repairs truncated JSON produced by incremental
// argument streaming. A model streams tool arguments token by token, so at
// any point the buffer is a prefix of some valid JSON document. Repair turns
// that prefix into the most specific complete value it can represent.
package partialjson

import (
	"encoding/json"
	"fmt"
	"strings"
)

// scanState describes the structural state at the end of a buffer.
type scanState struct {
	stack       []byte // open containers, '{' or '['
	inString    bool
	stringStart int // index of the opening quote when inString
}

// scan walks the buffer tracking open containers and string state.
// Escape sequences are honored so an escaped quote never closes a string.
func scan(s string) scanState {
	st := scanState{stringStart: -1}
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				st.inString = false
				st.stringStart = -1
			}
			continue
		}
		switch c {
		case '"':
			st.inString = true
			st.stringStart = i
		case '{', '[':
			st.stack = append(st.stack, c)
		case '}', ']':
			if len(st.stack) > 0 {
				st.stack = st.stack[:len(st.stack)-1]
			}
		}
	}
	return st
}

// lastNonSpace returns the index of the last non-whitespace byte before end,
// or -1 if there is none.
func lastNonSpace(s string, end int) int {
	for i := end - 1; i >= 0; i-- {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return i
	}
	return -1
}

// stringStartBefore finds the opening quote of the string literal whose
// closing quote sits at index end. It walks backwards counting backslashes
// so escaped quotes inside the literal are skipped.
func stringStartBefore(s string, end int) int {
	for i := end - 1; i >= 0; i-- {
		if s[i] != '"' {
			continue
		}
		// A quote preceded by an odd number of backslashes is escaped.
		backslashes := 0
		for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			return i
		}
	}
	return -1
}

// isTokenByte reports whether c can appear in a number or literal token.
func isTokenByte(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'a' && c <= 'z':
		return true
	case c == '.', c == '-', c == '+', c == 'E':
		return true
	}
	return false
}

// completeToken reports whether a bare token is a complete JSON value on its
// own. Numbers ending mid-token (trailing '.', sign, or exponent marker) and
// literal prefixes like "fal" are not.
func completeToken(tok string) bool {
	if tok == "true" || tok == "false" || tok == "null" {
		return true
	}
	var v any
	return json.Unmarshal([]byte(tok), &v) == nil
}

// Repair completes a truncated JSON buffer. Unterminated strings, incomplete
// numbers, and dangling keys or separators are dropped along with their
// slot, then every still-open container is closed innermost-first. The
// result is not guaranteed to parse; callers use Parse or ParseComplete.
func Repair(buf string) string {
	s := strings.TrimRight(buf, " \t\r\n")
	if s == "" {
		return s
	}

	st := scan(s)

	// Unterminated string: drop it entirely.
	if st.inString {
		s = strings.TrimRight(s[:st.stringStart], " \t\r\n")
		st = scan(s)
	}

	// Trailing bare token (number or literal). An incomplete one is always
	// dropped. A complete number directly at end of input inside an array is
	// dropped too: more digits may still have been coming, so a trailing
	// array element is only kept once a separator or closer follows it.
	end := len(s)
	start := end
	for start > 0 && isTokenByte(s[start-1]) {
		start--
	}
	if start < end {
		tok := s[start:end]
		inArray := len(st.stack) > 0 && st.stack[len(st.stack)-1] == '['
		if !completeToken(tok) || (inArray && tok != "true" && tok != "false" && tok != "null") {
			s = strings.TrimRight(s[:start], " \t\r\n")
		}
	}

	// Dangling key in an object ("{\"a\"" or "{\"a\":\"b\", \"c\"") with no
	// colon yet: drop the key string. Only when the innermost open container
	// is an object; a trailing string in an array is a complete element.
	inObject := len(st.stack) > 0 && st.stack[len(st.stack)-1] == '{'
	if i := lastNonSpace(s, len(s)); inObject && i >= 0 && s[i] == '"' {
		if open := stringStartBefore(s, i); open >= 0 {
			if p := lastNonSpace(s, open); p >= 0 && (s[p] == '{' || s[p] == ',') {
				s = strings.TrimRight(s[:open], " \t\r\n")
			}
		}
	}

	// Dangling colon: drop it and the key string before it.
	if i := lastNonSpace(s, len(s)); i >= 0 && s[i] == ':' {
		s = strings.TrimRight(s[:i], " \t\r\n")
		if j := lastNonSpace(s, len(s)); j >= 0 && s[j] == '"' {
			if open := stringStartBefore(s, j); open >= 0 {
				s = strings.TrimRight(s[:open], " \t\r\n")
			}
		}
	}

	// Dangling comma: drop it.
	if i := lastNonSpace(s, len(s)); i >= 0 && s[i] == ',' {
		s = strings.TrimRight(s[:i], " \t\r\n")
	}

	// Close every still-open container, innermost first.
	st = scan(s)
	var b strings.Builder
	b.WriteString(s)
	for i := len(st.stack) - 1; i >= 0; i-- {
		if st.stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Parse repairs buf and parses the result. If the repaired buffer still does
// not parse, it retries on successively shorter prefixes until a valid value
// emerges; an empty buffer yields an empty object.
func Parse(buf string) any {
	for b := buf; b != ""; b = b[:len(b)-1] {
		var v any
		if err := json.Unmarshal([]byte(Repair(b)), &v); err == nil && v != nil {
			return v
		}
	}
	return map[string]any{}
}

// ParseComplete repairs buf and parses the result, returning an error that
// includes the offending buffer if it still fails. Used once a caller has
// asserted the stream for this buffer is finished.
func ParseComplete(buf string) (any, error) {
	repaired := Repair(buf)
	if strings.TrimSpace(repaired) == "" {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, fmt.Errorf("unrepairable tool input %q: %w", buf, err)
	}
	return v, nil
}

// Arguments returns the object form of a streamed argument buffer. Non-object
// values (and unrecoverable buffers) degrade to an empty argument map.
func Arguments(buf string) map[string]any {
	if obj, ok := Parse(buf).(map[string]any); ok {
		return obj
	}
	return map[string]any{}
}
