package circumstance

import (
	"fmt"
)

// CountMode selects how a match count is compared.
type CountMode int

const (
	CountExact CountMode = iota
	CountRange
	CountMin
	CountMax
)

func (m CountMode) String() string {
	switch m {
	case CountExact:
		return "EXACT"
	case CountRange:
		return "RANGE"
	case CountMin:
		return "MIN"
	case CountMax:
		return "MAX"
	default:
		return fmt.Sprintf("CountMode(%d)", int(m))
	}
}

// Constraint is a count comparison. Exact, Min and Max use N; Range uses the
// inclusive bounds Lo and Hi.
type Constraint struct {
	Mode CountMode
	N    int
	Lo   int
	Hi   int
}

func Exactly(n int) Constraint { return Constraint{Mode: CountExact, N: n} }
func AtLeast(n int) Constraint { return Constraint{Mode: CountMin, N: n} }
func AtMost(n int) Constraint { return Constraint{Mode: CountMax, N: n} }
func Between(lo, hi int) Constraint { return Constraint{Mode: CountRange, Lo: lo, Hi: hi} }

// Validate rejects negative counts and inverted ranges.
func (c Constraint) Validate() error {
	switch c.Mode {
	case CountExact, CountMin, CountMax:
		if c.N < 0 {
			return fmt.Errorf("%w: negative count %d", ErrInvalidCondition, c.N)
		}
	case CountRange:
		if c.Lo < 0 || c.Hi < 0 {
			return fmt.Errorf("%w: negative range bound in [%d, %d]", ErrInvalidCondition, c.Lo, c.Hi)
		}
		if c.Lo > c.Hi {
			return fmt.Errorf("%w: range lower bound %d exceeds upper bound %d", ErrInvalidCondition, c.Lo, c.Hi)
		}
	default:
		return fmt.Errorf("%w: unknown count mode %d", ErrInvalidCondition, int(c.Mode))
	}
	return nil
}

// Satisfied reports whether count meets the constraint.
func (c Constraint) Satisfied(count int) bool {
	switch c.Mode {
	case CountExact:
		return count == c.N
	case CountRange:
		return count >= c.Lo && count <= c.Hi
	case CountMin:
		return count >= c.N
	case CountMax:
		return count <= c.N
	default:
		return false
	}
}

// String renders the constraint in condition-line form.
func (c Constraint) String() string {
	switch c.Mode {
	case CountRange:
		return fmt.Sprintf("%d %d", c.Lo, c.Hi)
	case CountMin:
		return fmt.Sprintf("%d %s", c.N, keywordMin)
	case CountMax:
		return fmt.Sprintf("%d %s", c.N, keywordMax)
	default:
		return fmt.Sprintf("%d", c.N)
	}
}
