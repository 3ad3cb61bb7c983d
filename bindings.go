package strix

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/casualjim/strix/events"
	"github.com/casualjim/strix/namespace"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Binding is one declared handler: a name unique within its table, the pattern
// it subscribes to and the callback.
type Binding struct {
	Name    string
	Pattern string
	Handler events.HandlerFunc
}

// On declares a binding. An empty name is derived from the pattern when the
// binding is added to a table.
func On(name, pattern string, handler events.HandlerFunc) Binding {
	return Binding{Name: name, Pattern: pattern, Handler: handler}
}

// Bindable is implemented by types that expose a binding table, typically
// generated by strix-bindgen.
type Bindable interface {
	Bindings() *Bindings
}

// Bindings is an ordered table of bindings keyed by name. Registration follows
// declaration order. Unnamed bindings are named after their pattern, suffixed
// with #2, #3 and so on when that name is taken. A second binding with an
// explicit name already in the table is not added and fails Validate.
type Bindings struct {
	entries    *orderedmap.OrderedMap[string, Binding]
	duplicates []string
}

// NewBindings creates a table from the given bindings.
func NewBindings(bindings ...Binding) *Bindings {
	b := &Bindings{entries: orderedmap.New[string, Binding]()}
	return b.Add(bindings...)
}

// Add appends bindings to the table.
func (b *Bindings) Add(bindings ...Binding) *Bindings {
	for _, binding := range bindings {
		if binding.Name == "" {
			binding.Name = b.derivedName(binding.Pattern)
		} else if _, taken := b.entries.Get(binding.Name); taken {
			b.duplicates = append(b.duplicates, binding.Name)
			continue
		}
		b.entries.Set(binding.Name, binding)
	}
	return b
}

func (b *Bindings) derivedName(pattern string) string {
	name := pattern
	for i := 2; ; i++ {
		if _, taken := b.entries.Get(name); !taken {
			return name
		}
		name = pattern + "#" + strconv.Itoa(i)
	}
}

// Merge adds every binding of other to the table. Names other already rejected
// stay rejected.
func (b *Bindings) Merge(other *Bindings) *Bindings {
	if other == nil {
		return b
	}
	b.duplicates = append(b.duplicates, other.duplicates...)
	return b.Add(other.List()...)
}

// Get returns the binding with the given name.
func (b *Bindings) Get(name string) (Binding, bool) {
	return b.entries.Get(name)
}

// Len returns the number of bindings.
func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	return b.entries.Len()
}

// List returns the bindings in declaration order.
func (b *Bindings) List() []Binding {
	if b == nil {
		return nil
	}
	out := make([]Binding, 0, b.entries.Len())
	for pair := b.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Names returns the binding names in declaration order.
func (b *Bindings) Names() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, b.entries.Len())
	for pair := b.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Validate checks every pattern, handler and name, reporting all problems at once.
func (b *Bindings) Validate() error {
	if b == nil {
		return nil
	}
	var errs []error
	for _, name := range b.duplicates {
		errs = append(errs, fmt.Errorf("binding %q: %w", name, ErrDuplicateBinding))
	}
	for _, binding := range b.List() {
		if _, err := namespace.ParsePattern(binding.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("binding %q: %w", binding.Name, err))
		}
		if binding.Handler == nil {
			errs = append(errs, fmt.Errorf("binding %q: handler is required", binding.Name))
		}
	}
	return errors.Join(errs...)
}
