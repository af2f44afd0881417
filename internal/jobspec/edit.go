// internal/jobspec/edit.go
package jobspec

import (
	"errors"
	"fmt"
)

var (
	// ErrAddressNotFound is returned when an edit targets a container that does
	// not exist in the specification.
	ErrAddressNotFound = errors.New("specification address not found")
	// ErrInvalidEdit is returned for structurally malformed edits.
	ErrInvalidEdit = errors.New("invalid specification edit")
)

// Op names an edit operation.
type Op string

const (
	// OpSetKeyword adds the keyword under Address, replacing same-named ones.
	OpSetKeyword Op = "set_keyword"
	// OpRemoveKeyword removes the keyword at Address.
	OpRemoveKeyword Op = "remove_keyword"
	// OpAddDirective appends a directive subtree under Address.
	OpAddDirective Op = "add_directive"
	// OpRemoveDirective removes the directive at Address.
	OpRemoveDirective Op = "remove_directive"
	// OpSetData adds the data block under Address, replacing same-named ones.
	OpSetData Op = "set_data"
	// OpRemoveData removes the data block at Address.
	OpRemoveData Op = "remove_data"
)

// Edit is one modification of a specification. For set/add operations Address
// names the parent directive (empty means the root, which only accepts
// directives). For remove operations Address names the node itself.
type Edit struct {
	Op        Op         `yaml:"op" json:"op"`
	Address   Address    `yaml:"address" json:"address"`
	Keyword   *Keyword   `yaml:"keyword,omitempty" json:"keyword,omitempty"`
	Directive *Directive `yaml:"directive,omitempty" json:"directive,omitempty"`
	Data      *DataBlock `yaml:"data,omitempty" json:"data,omitempty"`
}

// Validate checks that the edit carries the payload its operation needs.
func (e Edit) Validate() error {
	switch e.Op {
	case OpSetKeyword:
		if e.Keyword == nil || e.Keyword.Name == "" {
			return fmt.Errorf("%w: %s requires a named keyword", ErrInvalidEdit, e.Op)
		}
		if len(e.Address) == 0 {
			return fmt.Errorf("%w: keywords cannot be set on the root", ErrInvalidEdit)
		}
	case OpSetData:
		if e.Data == nil || e.Data.Name == "" {
			return fmt.Errorf("%w: %s requires a named data block", ErrInvalidEdit, e.Op)
		}
		if len(e.Address) == 0 {
			return fmt.Errorf("%w: data blocks cannot be set on the root", ErrInvalidEdit)
		}
	case OpAddDirective:
		if e.Directive == nil || e.Directive.Name == "" {
			return fmt.Errorf("%w: %s requires a named directive", ErrInvalidEdit, e.Op)
		}
	case OpRemoveKeyword, OpRemoveDirective, OpRemoveData:
		last, ok := e.Address.Last()
		if !ok {
			return fmt.Errorf("%w: %s requires a non-empty address", ErrInvalidEdit, e.Op)
		}
		if last.Kind != removeKind(e.Op) {
			return fmt.Errorf("%w: %s cannot target a %s", ErrInvalidEdit, e.Op, last.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidEdit, e.Op)
	}

	if isSetOp(e.Op) {
		for _, step := range e.Address {
			if step.Kind != KindDirective {
				return fmt.Errorf("%w: parent address %s must only contain directives", ErrInvalidEdit, e.Address)
			}
		}
	}
	return nil
}

// Apply returns a modified clone of s with every edit applied in order. The
// input tree is left untouched, including when an edit fails.
func Apply(s *Spec, edits []Edit) (*Spec, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil specification", ErrInvalidEdit)
	}
	out := s.Clone()
	root := &Directive{Directives: out.Directives}

	for i, e := range edits {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("edit %d: %w", i, err)
		}
		if err := applyOne(root, e); err != nil {
			return nil, fmt.Errorf("edit %d (%s %s): %w", i, e.Op, e.Address, err)
		}
	}
	out.Directives = root.Directives
	return out, nil
}

func applyOne(root *Directive, e Edit) error {
	if isSetOp(e.Op) {
		parents := resolveContainers(root, e.Address)
		if len(parents) == 0 {
			return ErrAddressNotFound
		}
		for _, p := range parents {
			switch e.Op {
			case OpSetKeyword:
				p.Keywords = setKeyword(p.Keywords, e.Keyword)
			case OpSetData:
				p.Data = setData(p.Data, e.Data)
			case OpAddDirective:
				p.Directives = append(p.Directives, e.Directive.Clone())
			}
		}
		return nil
	}

	// Removing an absent node is a no-op; only a missing parent is an error.
	last, _ := e.Address.Last()
	parents := resolveContainers(root, e.Address.Parent())
	if len(parents) == 0 {
		return ErrAddressNotFound
	}
	for _, p := range parents {
		switch e.Op {
		case OpRemoveKeyword:
			p.Keywords = filter(p.Keywords, func(k *Keyword) bool { return !last.matches(k.Name) })
		case OpRemoveData:
			p.Data = filter(p.Data, func(b *DataBlock) bool { return !last.matches(b.Name) })
		case OpRemoveDirective:
			p.Directives = filter(p.Directives, func(d *Directive) bool { return !last.matches(d.Name) })
		}
	}
	return nil
}

func setKeyword(in []*Keyword, k *Keyword) []*Keyword {
	replaced := false
	out := in[:0:0]
	for _, existing := range in {
		if existing.Name != k.Name {
			out = append(out, existing)
			continue
		}
		if !replaced {
			out = append(out, k.Clone())
			replaced = true
		}
	}
	if !replaced {
		out = append(out, k.Clone())
	}
	return out
}

func setData(in []*DataBlock, b *DataBlock) []*DataBlock {
	replaced := false
	out := in[:0:0]
	for _, existing := range in {
		if existing.Name != b.Name {
			out = append(out, existing)
			continue
		}
		if !replaced {
			out = append(out, b.Clone())
			replaced = true
		}
	}
	if !replaced {
		out = append(out, b.Clone())
	}
	return out
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func isSetOp(op Op) bool {
	return op == OpSetKeyword || op == OpSetData || op == OpAddDirective
}

func removeKind(op Op) Kind {
	switch op {
	case OpRemoveKeyword:
		return KindKeyword
	case OpRemoveData:
		return KindData
	default:
		return KindDirective
	}
}
