// internal/circumstance/parse.go
package circumstance

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/xkilldash9x/triage/internal/infochannel"
	"github.com/xkilldash9x/triage/internal/jobspec"
)

// -- Condition grammar --
//
//	<CHANNEL> MATCHES <regex>
//	<CHANNEL> NOMATCH <regex>
//	<CHANNEL> MATCHESCOUNT <pattern> <n> [MIN|MAX] [NOT]
//	<CHANNEL> MATCHESCOUNT <pattern> <lo> <hi> [NOT]
//	<CHANNEL> MATCHDIR <address> [STEP <n>] [VALUE <value>]
//	<CHANNEL> NOMATCHDIR <address> [STEP <n>] [VALUE <value>]
//
// MATCHES takes the rest of the line as the regex. The MATCHESCOUNT pattern
// is one word or a Go quoted string. A VALUE may be quoted to keep
// surrounding whitespace.
const (
	verbMatches    = "MATCHES"
	verbNoMatch    = "NOMATCH"
	verbCount      = "MATCHESCOUNT"
	verbMatchDir   = "MATCHDIR"
	verbNoMatchDir = "NOMATCHDIR"

	keywordNot   = "NOT"
	keywordMin   = "MIN"
	keywordMax   = "MAX"
	keywordStep  = "STEP"
	keywordValue = "VALUE"
)

// Parse converts one condition line into a circumstance.
func Parse(line string) (Circumstance, error) {
	typeTok, rest := cutField(line)
	verbTok, rest := cutField(rest)
	if typeTok == "" || verbTok == "" {
		return nil, fmt.Errorf("%w: %q: expected '<CHANNEL> <VERB> ...'", ErrInvalidCondition, line)
	}

	typ, err := infochannel.ParseType(typeTok)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidCondition, line, err)
	}

	var c Circumstance
	switch verb := strings.ToUpper(verbTok); verb {
	case verbMatches, verbNoMatch:
		if rest == "" {
			return nil, fmt.Errorf("%w: %q: missing pattern", ErrInvalidCondition, line)
		}
		c, err = NewMatchText(rest, typ, verb == verbNoMatch)
	case verbCount:
		c, err = parseCount(rest, typ)
	case verbMatchDir, verbNoMatchDir:
		c, err = parseDir(rest, typ, verb == verbNoMatchDir)
	default:
		return nil, fmt.Errorf("%w: %q: unknown verb %q", ErrInvalidCondition, line, verbTok)
	}
	if err != nil {
		return nil, fmt.Errorf("%q: %w", line, err)
	}
	return c, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(line string) Circumstance {
	c, err := Parse(line)
	if err != nil {
		panic(err)
	}
	return c
}

func parseCount(rest string, typ infochannel.Type) (Circumstance, error) {
	var pattern string
	if strings.HasPrefix(rest, `"`) {
		quoted, err := strconv.QuotedPrefix(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: unterminated quoted pattern", ErrInvalidCondition)
		}
		pattern, _ = strconv.Unquote(quoted)
		rest = rest[len(quoted):]
	} else {
		pattern, rest = cutField(rest)
	}
	if pattern == "" && rest == "" {
		return nil, fmt.Errorf("%w: missing pattern", ErrInvalidCondition)
	}

	fields := strings.Fields(rest)
	negate := false
	if n := len(fields); n > 0 && strings.EqualFold(fields[n-1], keywordNot) {
		negate = true
		fields = fields[:n-1]
	}

	var constraint Constraint
	switch len(fields) {
	case 1:
		n, err := atoi(fields[0])
		if err != nil {
			return nil, err
		}
		constraint = Exactly(n)
	case 2:
		n, err := atoi(fields[0])
		if err != nil {
			return nil, err
		}
		switch strings.ToUpper(fields[1]) {
		case keywordMin:
			constraint = AtLeast(n)
		case keywordMax:
			constraint = AtMost(n)
		default:
			hi, err := atoi(fields[1])
			if err != nil {
				return nil, err
			}
			constraint = Between(n, hi)
		}
	default:
		return nil, fmt.Errorf("%w: expected '<n> [MIN|MAX]' or '<lo> <hi>' after the pattern", ErrInvalidCondition)
	}
	return NewCountTextMatches(pattern, constraint, typ, negate)
}

func parseDir(rest string, typ infochannel.Type, negate bool) (Circumstance, error) {
	addrTok, rest := cutField(rest)
	if addrTok == "" {
		return nil, fmt.Errorf("%w: missing address", ErrInvalidCondition)
	}
	addr, err := jobspec.ParseAddress(addrTok)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}

	step := 0
	var value *string
	for rest != "" {
		kw, after := cutField(rest)
		switch strings.ToUpper(kw) {
		case keywordStep:
			var nTok string
			nTok, rest = cutField(after)
			if step, err = atoi(nTok); err != nil {
				return nil, err
			}
		case keywordValue:
			v := after
			if strings.HasPrefix(v, `"`) {
				if v, err = strconv.Unquote(v); err != nil {
					return nil, fmt.Errorf("%w: malformed quoted value %s", ErrInvalidCondition, after)
				}
			}
			value = &v
			rest = ""
		default:
			return nil, fmt.Errorf("%w: unexpected %q, want %s or %s", ErrInvalidCondition, kw, keywordStep, keywordValue)
		}
	}
	return NewMatchDirComponent(addr, value, step, typ, negate)
}

// cutField splits off the first whitespace delimited token and trims the rest.
func cutField(s string) (field, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidCondition, s)
	}
	return n, nil
}

func quoteWord(p string) string {
	if p == "" || strings.HasPrefix(p, `"`) || strings.IndexFunc(p, unicode.IsSpace) >= 0 {
		return strconv.Quote(p)
	}
	return p
}

func quoteValue(v string) string {
	return strconv.Quote(v)
}
