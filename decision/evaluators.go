package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Static always returns the same verdict.
type Static bool

func (s Static) Evaluate(context.Context, Query) (bool, error) {
	return bool(s), nil
}

// ErrScriptExhausted is returned by a Scripted evaluator with no answers left.
var ErrScriptExhausted = errors.New("scripted evaluator has no answers left")

// Answer is one scripted evaluator response.
type Answer struct {
	Verdict bool
	Err     error
}

// Scripted returns pre-recorded answers in order and records every query it saw.
type Scripted struct {
	mu      sync.Mutex
	answers []Answer
	queries []Query
}

// NewScripted creates an evaluator that answers with the given verdicts in order.
func NewScripted(verdicts ...bool) *Scripted {
	s := &Scripted{}
	for _, v := range verdicts {
		s.answers = append(s.answers, Answer{Verdict: v})
	}
	return s
}

// Then appends an answer.
func (s *Scripted) Then(a Answer) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, a)
	return s
}

func (s *Scripted) Evaluate(_ context.Context, q Query) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if len(s.answers) == 0 {
		return false, ErrScriptExhausted
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a.Verdict, a.Err
}

// Queries returns the queries evaluated so far.
func (s *Scripted) Queries() []Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Query, len(s.queries))
	copy(out, s.queries)
	return out
}

// Lookup treats the question as a gjson path over the query data. The verdict is
// the truthiness of the value found: booleans as is, numbers when non-zero,
// strings when they parse as true or are non-empty and not "false" or "0",
// arrays and objects when non-empty. A missing value is false.
//
//	Evaluate: "order.total"                  // true when total != 0
//	Evaluate: "items.#(status==\"open\")"   // true when any item is open
//	Evaluate: "flags.urgent"
type Lookup struct{}

func (Lookup) Evaluate(_ context.Context, q Query) (bool, error) {
	path := strings.TrimSpace(q.Evaluate)
	if path == "" {
		return false, errors.New("lookup evaluator needs a path")
	}
	data, err := json.Marshal(q.Data)
	if err != nil {
		return false, fmt.Errorf("encode data: %w", err)
	}
	return truthy(gjson.GetBytes(data, path)), nil
}

func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.False, gjson.Null:
		return false
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		s := strings.TrimSpace(strings.ToLower(r.Str))
		return s != "" && s != "false" && s != "0" && s != "no"
	case gjson.JSON:
		if r.IsArray() {
			return len(r.Array()) > 0
		}
		return len(r.Map()) > 0
	}
	return false
}
