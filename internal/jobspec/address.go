// internal/jobspec/address.go
package jobspec

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidAddress is returned when an address string cannot be parsed.
var ErrInvalidAddress = errors.New("invalid specification address")

// Kind identifies the node class an address step selects.
type Kind int

const (
	KindDirective Kind = iota
	KindKeyword
	KindData
)

// AnyName matches every child name at its step.
const AnyName = "*"

// -- String form --
// Steps are separated by '|', each step is '<prefix>:<name>'. An empty address
// is written as "." (the empty string parses as well).
const (
	stepSeparator = "|"
	prefixDir     = "Dir"
	prefixKey     = "Key"
	prefixData    = "Dat"
	emptyAddress  = "."
)

func (k Kind) String() string {
	switch k {
	case KindDirective:
		return "DIRECTIVE"
	case KindKeyword:
		return "KEYWORD"
	case KindData:
		return "DATA"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) prefix() string {
	switch k {
	case KindKeyword:
		return prefixKey
	case KindData:
		return prefixData
	default:
		return prefixDir
	}
}

// Step is one (name, kind) hop of an address.
type Step struct {
	Name string
	Kind Kind
}

func (s Step) matches(name string) bool {
	return s.Name == AnyName || s.Name == name
}

// Address is an ordered path from a specification root to a node. Only the
// last step may select a keyword or a data block.
type Address []Step

// ParseAddress parses the '|' separated string form, e.g. "Dir:scf|Key:maxiter".
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == emptyAddress {
		return Address{}, nil
	}

	parts := strings.Split(s, stepSeparator)
	addr := make(Address, 0, len(parts))
	for i, part := range parts {
		prefix, name, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("%w: step %d %q lacks a kind prefix", ErrInvalidAddress, i, part)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: step %d has an empty name", ErrInvalidAddress, i)
		}

		var kind Kind
		switch strings.TrimSpace(prefix) {
		case prefixDir:
			kind = KindDirective
		case prefixKey:
			kind = KindKeyword
		case prefixData:
			kind = KindData
		default:
			return nil, fmt.Errorf("%w: step %d has unknown kind %q", ErrInvalidAddress, i, prefix)
		}
		if kind != KindDirective && i != len(parts)-1 {
			return nil, fmt.Errorf("%w: %s step %q must be last", ErrInvalidAddress, kind, name)
		}
		addr = append(addr, Step{Name: name, Kind: kind})
	}
	return addr, nil
}

// MustParseAddress is ParseAddress for literals known to be valid.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	if len(a) == 0 {
		return emptyAddress
	}
	parts := make([]string, len(a))
	for i, step := range a {
		parts[i] = step.Kind.prefix() + ":" + step.Name
	}
	return strings.Join(parts, stepSeparator)
}

// Equal reports structural equality.
func (a Address) Equal(b Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Parent returns the address without its last step.
func (a Address) Parent() Address {
	if len(a) == 0 {
		return Address{}
	}
	return a[:len(a)-1]
}

// Last returns the final step. ok is false for the empty address.
func (a Address) Last() (step Step, ok bool) {
	if len(a) == 0 {
		return Step{}, false
	}
	return a[len(a)-1], true
}

// Child returns a new address extended by one step.
func (a Address) Child(name string, kind Kind) Address {
	out := make(Address, len(a), len(a)+1)
	copy(out, a)
	return append(out, Step{Name: name, Kind: kind})
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Address) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}

func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("%w: expected a string: %v", ErrInvalidAddress, err)
	}
	return a.UnmarshalText([]byte(raw))
}
