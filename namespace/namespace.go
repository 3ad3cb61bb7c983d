// Package namespace parses dot-segmented event names and subscription patterns
// and decides whether a pattern matches a name.
//
// A name such as "user.login.input" is split on "." into segments. A pattern has
// the same shape, and any of its segments may be the wildcard token "any", which
// matches exactly one literal segment. Matching requires identical arity: the
// pattern "user.any" never matches "user.login.input".
package namespace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/casualjim/strix/pkg/stdx"
)

const (
	// Separator splits a name into segments.
	Separator = "."
	// Wildcard matches any single segment at its position.
	Wildcard = "any"
)

// ErrInvalidPattern is wrapped by every PatternError.
var ErrInvalidPattern = errors.New("invalid namespace pattern")

// PatternError reports a name or pattern that cannot be parsed.
type PatternError struct {
	Input  string
	Reason string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrInvalidPattern, e.Input, e.Reason)
}

func (e *PatternError) Unwrap() error {
	return ErrInvalidPattern
}

// Path is a parsed event name. The zero value is not a valid path.
type Path struct {
	raw      string
	segments []string
}

// ParsePath parses an event name. Names may not contain wildcard semantics;
// a literal "any" segment in a name is just a literal.
func ParsePath(name string) (Path, error) {
	segs, err := split(name)
	if err != nil {
		return Path{}, err
	}
	return Path{raw: name, segments: segs}, nil
}

// MustPath is like ParsePath but panics on error.
func MustPath(name string) Path {
	return stdx.Must(ParsePath(name))
}

// String returns the name the path was parsed from.
func (p Path) String() string { return p.raw }

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segments) }

// Segment returns the i-th segment.
func (p Path) Segment(i int) string { return p.segments[i] }

// Segments returns a copy of the segments.
func (p Path) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

// Pattern is a parsed subscription pattern.
type Pattern struct {
	raw       string
	segments  []string
	wildcards int
}

// ParsePattern parses a subscription pattern.
func ParsePattern(pattern string) (Pattern, error) {
	segs, err := split(pattern)
	if err != nil {
		return Pattern{}, err
	}
	p := Pattern{raw: pattern, segments: segs}
	for _, s := range segs {
		if s == Wildcard {
			p.wildcards++
		}
	}
	return p, nil
}

// MustPattern is like ParsePattern but panics on error.
func MustPattern(pattern string) Pattern {
	return stdx.Must(ParsePattern(pattern))
}

// String returns the pattern text.
func (p Pattern) String() string { return p.raw }

// Arity returns the number of segments a matching name must have.
func (p Pattern) Arity() int { return len(p.segments) }

// IsExact reports whether the pattern contains no wildcard.
func (p Pattern) IsExact() bool { return p.wildcards == 0 }

// Matches reports whether the pattern matches the name.
func (p Pattern) Matches(name Path) bool {
	return Match(p, name)
}

// Match reports whether pattern matches name. Arity must be equal, and every
// pattern segment must either be the wildcard or equal the name segment
// exactly (case-sensitive).
func Match(pattern Pattern, name Path) bool {
	if len(pattern.segments) != len(name.segments) || len(pattern.segments) == 0 {
		return false
	}
	for i, seg := range pattern.segments {
		if seg != Wildcard && seg != name.segments[i] {
			return false
		}
	}
	return true
}

// MatchString parses both arguments and matches them. Unparseable input never matches.
func MatchString(pattern, name string) bool {
	p, err := ParsePattern(pattern)
	if err != nil {
		return false
	}
	n, err := ParsePath(name)
	if err != nil {
		return false
	}
	return Match(p, n)
}

func split(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, &PatternError{Input: s, Reason: "zero segments"}
	}
	segs := strings.Split(s, Separator)
	for i, seg := range segs {
		if seg == "" {
			return nil, &PatternError{Input: s, Reason: fmt.Sprintf("empty segment at position %d", i)}
		}
		if strings.TrimSpace(seg) != seg {
			return nil, &PatternError{Input: s, Reason: fmt.Sprintf("segment %d has surrounding whitespace", i)}
		}
	}
	return segs, nil
}
