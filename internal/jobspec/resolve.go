// internal/jobspec/resolve.go
package jobspec

// Node is a resolved element of a specification tree. Exactly one of the
// pointers is set, according to Kind.
type Node struct {
	Kind      Kind
	Directive *Directive
	Keyword   *Keyword
	Data      *DataBlock
}

// Name returns the node's name.
func (n Node) Name() string {
	switch n.Kind {
	case KindKeyword:
		return n.Keyword.Name
	case KindData:
		return n.Data.Name
	default:
		return n.Directive.Name
	}
}

// Value returns the rendered value of a value-carrying node. Directives carry
// no value and report ok=false.
func (n Node) Value() (value string, ok bool) {
	switch n.Kind {
	case KindKeyword:
		return n.Keyword.Text(), true
	case KindData:
		return n.Data.Text(), true
	default:
		return "", false
	}
}

// Resolve returns every node addressed by addr, in document order. Sibling
// directives may share a name, so one address can select several nodes.
// Descent stops as soon as a level yields no candidates. The empty address
// selects nothing.
func Resolve(s *Spec, addr Address) []Node {
	if s == nil || len(addr) == 0 {
		return nil
	}

	parents := []*Directive{{Directives: s.Directives}}
	for i, step := range addr {
		if i < len(addr)-1 {
			if step.Kind != KindDirective {
				return nil
			}
			parents = childDirectives(parents, step)
			if len(parents) == 0 {
				return nil
			}
			continue
		}
		return leafNodes(parents, step)
	}
	return nil
}

// Exists reports whether addr resolves to at least one node.
func Exists(s *Spec, addr Address) bool {
	return len(Resolve(s, addr)) > 0
}

func childDirectives(parents []*Directive, step Step) []*Directive {
	var next []*Directive
	for _, p := range parents {
		for _, d := range p.Directives {
			if step.matches(d.Name) {
				next = append(next, d)
			}
		}
	}
	return next
}

func leafNodes(parents []*Directive, step Step) []Node {
	var out []Node
	for _, p := range parents {
		switch step.Kind {
		case KindDirective:
			for _, d := range p.Directives {
				if step.matches(d.Name) {
					out = append(out, Node{Kind: KindDirective, Directive: d})
				}
			}
		case KindKeyword:
			for _, k := range p.Keywords {
				if step.matches(k.Name) {
					out = append(out, Node{Kind: KindKeyword, Keyword: k})
				}
			}
		case KindData:
			for _, b := range p.Data {
				if step.matches(b.Name) {
					out = append(out, Node{Kind: KindData, Data: b})
				}
			}
		}
	}
	return out
}

// resolveContainers returns the directives addressed by a directive-only
// address. The empty address yields the synthetic root.
func resolveContainers(root *Directive, addr Address) []*Directive {
	parents := []*Directive{root}
	for _, step := range addr {
		if step.Kind != KindDirective {
			return nil
		}
		parents = childDirectives(parents, step)
		if len(parents) == 0 {
			return nil
		}
	}
	return parents
}
