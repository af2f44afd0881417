// internal/jobspec/spec.go
package jobspec

import (
	"strings"
)

// Spec is the structured, tree-shaped specification of a job. The engine never
// interprets domain semantics; it only addresses, renders and edits the tree.
type Spec struct {
	Name       string       `yaml:"name" json:"name"`
	Directives []*Directive `yaml:"directives" json:"directives"`
}

// Directive is an interior node. Children are kept in declaration order.
type Directive struct {
	Name       string       `yaml:"name" json:"name"`
	Directives []*Directive `yaml:"directives,omitempty" json:"directives,omitempty"`
	Keywords   []*Keyword   `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Data       []*DataBlock `yaml:"data,omitempty" json:"data,omitempty"`
}

// Keyword is a leaf carrying either a scalar Value or a list of Values.
type Keyword struct {
	Name   string   `yaml:"name" json:"name"`
	Value  string   `yaml:"value,omitempty" json:"value,omitempty"`
	Values []string `yaml:"values,omitempty" json:"values,omitempty"`
}

// DataBlock is a leaf holding verbatim lines.
type DataBlock struct {
	Name  string   `yaml:"name" json:"name"`
	Lines []string `yaml:"lines,omitempty" json:"lines,omitempty"`
}

// Text returns the rendered value of the keyword. List values are joined with
// a comma.
func (k *Keyword) Text() string {
	if k.Values != nil {
		return strings.Join(k.Values, ",")
	}
	return k.Value
}

// Text returns the data block lines joined by newlines.
func (d *DataBlock) Text() string {
	return strings.Join(d.Lines, "\n")
}

// Clone returns a deep copy of the specification. Edits are always applied to
// a clone so a failed attempt's tree is never mutated.
func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	return &Spec{Name: s.Name, Directives: cloneDirectives(s.Directives)}
}

// Clone returns a deep copy of the directive subtree.
func (d *Directive) Clone() *Directive {
	if d == nil {
		return nil
	}
	out := &Directive{
		Name:       d.Name,
		Directives: cloneDirectives(d.Directives),
	}
	if d.Keywords != nil {
		out.Keywords = make([]*Keyword, len(d.Keywords))
		for i, k := range d.Keywords {
			out.Keywords[i] = k.Clone()
		}
	}
	if d.Data != nil {
		out.Data = make([]*DataBlock, len(d.Data))
		for i, b := range d.Data {
			out.Data[i] = b.Clone()
		}
	}
	return out
}

func (k *Keyword) Clone() *Keyword {
	if k == nil {
		return nil
	}
	out := &Keyword{Name: k.Name, Value: k.Value}
	if k.Values != nil {
		out.Values = append([]string{}, k.Values...)
	}
	return out
}

func (d *DataBlock) Clone() *DataBlock {
	if d == nil {
		return nil
	}
	out := &DataBlock{Name: d.Name}
	if d.Lines != nil {
		out.Lines = append([]string{}, d.Lines...)
	}
	return out
}

func cloneDirectives(in []*Directive) []*Directive {
	if in == nil {
		return nil
	}
	out := make([]*Directive, len(in))
	for i, d := range in {
		out[i] = d.Clone()
	}
	return out
}
