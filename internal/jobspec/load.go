// internal/jobspec/load.go
package jobspec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse decodes a YAML (or JSON) document into a specification.
func Parse(data []byte) (*Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode job specification: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads and parses a specification file.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job specification %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate rejects nameless nodes, which could never be addressed.
func (s *Spec) Validate() error {
	for _, d := range s.Directives {
		if err := validateDirective(d, Address{}); err != nil {
			return err
		}
	}
	return nil
}

func validateDirective(d *Directive, parent Address) error {
	if d == nil || d.Name == "" {
		return fmt.Errorf("unnamed directive under %s", parent)
	}
	here := parent.Child(d.Name, KindDirective)
	for _, k := range d.Keywords {
		if k == nil || k.Name == "" {
			return fmt.Errorf("unnamed keyword under %s", here)
		}
	}
	for _, b := range d.Data {
		if b == nil || b.Name == "" {
			return fmt.Errorf("unnamed data block under %s", here)
		}
	}
	for _, child := range d.Directives {
		if err := validateDirective(child, here); err != nil {
			return err
		}
	}
	return nil
}
