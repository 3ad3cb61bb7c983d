package events

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/casualjim/strix/namespace"
	"github.com/casualjim/strix/pkg/stdx"
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Target names an event to emit and optionally the extra key/values to merge into
// the payload for that emission.
type Target struct {
	Name  string
	Extra map[string]any
}

// Bare returns a target that emits name with the payload unchanged.
func Bare(name string) Target {
	return Target{Name: name}
}

// With returns a target that emits name with extra merged into the payload.
func With(name string, extra map[string]any) Target {
	return Target{Name: name, Extra: extra}
}

// String renders the target in its literal form.
func (t Target) String() string {
	if len(t.Extra) == 0 {
		return t.Name
	}
	b, err := json.Marshal(t.Extra)
	if err != nil {
		return t.Name + " {?}"
	}
	return t.Name + " " + string(b)
}

// Expand produces one event per target, in declared order. A bare target carries
// a copy of payload. A target with extra carries payload merged with extra, extra
// winning on key conflicts. Duplicate targets produce duplicate events. Expand
// never dispatches anything.
func Expand(payload map[string]any, targets []Target) []Event {
	if len(targets) == 0 {
		return nil
	}
	out := make([]Event, 0, len(targets))
	for _, t := range targets {
		var p Payload
		if len(t.Extra) == 0 {
			p = Payload(payload).Clone()
		} else {
			p = Payload(payload).Merge(t.Extra)
		}
		out = append(out, New(t.Name, p))
	}
	return out
}

// ErrInvalidTarget is wrapped by every target literal parse error.
var ErrInvalidTarget = errors.New("invalid handler target")

// ParseTarget parses a target literal: either a bare event name ("c.d") or a
// name followed by an object of extra values ("c.d { x: 1, mode: fast }").
// Keys may be bare or quoted. Values may be JSON literals, nested objects and
// lists in the same syntax, or bare words which are taken as strings.
func ParseTarget(literal string) (Target, error) {
	s := strings.TrimSpace(literal)
	idx := strings.IndexByte(s, '{')
	name := s
	if idx >= 0 {
		name = strings.TrimSpace(s[:idx])
	}
	if _, err := namespace.ParsePath(name); err != nil {
		return Target{}, fmt.Errorf("%w %q: %w", ErrInvalidTarget, literal, err)
	}
	if idx < 0 {
		return Target{Name: name}, nil
	}

	v, err := parseValue(s[idx:])
	if err != nil {
		return Target{}, fmt.Errorf("%w %q: %w", ErrInvalidTarget, literal, err)
	}
	extra, ok := v.(map[string]any)
	if !ok {
		return Target{}, fmt.Errorf("%w %q: extra values must be an object", ErrInvalidTarget, literal)
	}
	if len(extra) == 0 {
		extra = nil
	}
	return Target{Name: name, Extra: extra}, nil
}

// ParseTargets parses every literal, stopping at the first error.
func ParseTargets(literals []string) ([]Target, error) {
	out := make([]Target, 0, len(literals))
	for _, l := range literals {
		t, err := ParseTarget(l)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// MustParseTargets is like ParseTargets but panics on error.
func MustParseTargets(literals ...string) []Target {
	return stdx.Must(ParseTargets(literals))
}

func parseValue(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("missing value")
	}

	switch s[0] {
	case '{':
		if s[len(s)-1] != '}' {
			return nil, fmt.Errorf("unterminated object %q", s)
		}
		return parseObject(s[1 : len(s)-1])
	case '[':
		if s[len(s)-1] != ']' {
			return nil, fmt.Errorf("unterminated list %q", s)
		}
		return parseList(s[1 : len(s)-1])
	case '\'':
		if len(s) < 2 || s[len(s)-1] != '\'' {
			return nil, fmt.Errorf("unterminated string %q", s)
		}
		return s[1 : len(s)-1], nil
	}

	if gjson.Valid(s) {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("invalid literal %q: %w", s, err)
		}
		return v, nil
	}
	if s[0] == '"' {
		return nil, fmt.Errorf("invalid string %q", s)
	}
	return s, nil
}

func parseObject(body string) (map[string]any, error) {
	entries, err := splitTopLevel(body, ',')
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(entries))
	for i, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			if i == len(entries)-1 && i > 0 {
				continue
			}
			if len(entries) == 1 {
				return out, nil
			}
			return nil, errors.New("empty entry")
		}
		kv, err := splitTopLevel(entry, ':')
		if err != nil {
			return nil, err
		}
		if len(kv) < 2 {
			return nil, fmt.Errorf("entry %q is missing ':'", strings.TrimSpace(entry))
		}
		key, err := parseKey(kv[0])
		if err != nil {
			return nil, err
		}
		// values may contain ':' inside bare words, e.g. urls
		val, err := parseValue(strings.Join(kv[1:], ":"))
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = val
	}
	return out, nil
}

func parseList(body string) ([]any, error) {
	if strings.TrimSpace(body) == "" {
		return []any{}, nil
	}
	items, err := splitTopLevel(body, ',')
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := parseValue(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseKey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("empty key")
	}
	switch s[0] {
	case '"':
		k, err := strconv.Unquote(s)
		if err != nil {
			return "", fmt.Errorf("invalid key %s: %w", s, err)
		}
		return k, nil
	case '\'':
		if len(s) < 2 || s[len(s)-1] != '\'' {
			return "", fmt.Errorf("invalid key %s", s)
		}
		return s[1 : len(s)-1], nil
	}
	if strings.ContainsAny(s, " \t\n{}[]\"'") {
		return "", fmt.Errorf("invalid key %q", s)
	}
	return s, nil
}

// splitTopLevel splits s on sep, ignoring separators nested inside brackets or
// quoted strings.
func splitTopLevel(s string, sep byte) ([]string, error) {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced %q", c)
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if quote != 0 {
		return nil, errors.New("unterminated string")
	}
	if depth != 0 {
		return nil, errors.New("unbalanced brackets")
	}
	return append(parts, s[start:]), nil
}
