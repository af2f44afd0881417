// internal/jobspec/render.go
package jobspec

// Lines renders the specification in its canonical line form. Each node
// produces one line prefixed by its address:
//
//	Dir:scf
//	Dir:scf|Key:maxiter = 100
//	Dir:geom|Dat:atoms
//	Dir:geom|Dat:atoms> O 0.0 0.0 0.0
//
// Children are emitted depth first, keywords before data blocks before
// nested directives. The output is stable for equal trees.
func Lines(s *Spec) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, d := range s.Directives {
		out = renderDirective(out, Address{}, d)
	}
	return out
}

func renderDirective(out []string, parent Address, d *Directive) []string {
	here := parent.Child(d.Name, KindDirective)
	prefix := here.String()
	out = append(out, prefix)

	for _, k := range d.Keywords {
		out = append(out, prefix+stepSeparator+prefixKey+":"+k.Name+" = "+k.Text())
	}
	for _, b := range d.Data {
		header := prefix + stepSeparator + prefixData + ":" + b.Name
		out = append(out, header)
		for _, line := range b.Lines {
			out = append(out, header+"> "+line)
		}
	}
	for _, child := range d.Directives {
		out = renderDirective(out, here, child)
	}
	return out
}
