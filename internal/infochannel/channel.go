// internal/infochannel/channel.go
package infochannel

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xkilldash9x/triage/internal/jobspec"
)

// ErrSourceUnavailable is returned by Open when the backing source cannot be
// read. Scoring treats it as absent evidence for that channel only.
var ErrSourceUnavailable = errors.New("information source unavailable")

// Type classifies channels. A circumstance declares the Type it needs and is
// only scored against compatible channels.
type Type string

const (
	TypeOutputFile  Type = "OUTPUT_FILE"
	TypeInputFile   Type = "INPUT_FILE"
	TypeLogFeed     Type = "LOG_FEED"
	TypeEnvironment Type = "ENVIRONMENT"
	TypeJobSpec     Type = "JOB_SPEC"
	TypeAny         Type = "ANY"
	TypeUndefined   Type = "UNDEFINED"
)

// Types lists every channel type in declaration order.
var Types = []Type{TypeOutputFile, TypeInputFile, TypeLogFeed, TypeEnvironment, TypeJobSpec, TypeAny, TypeUndefined}

// ParseType converts a case-insensitive name into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return TypeUndefined, fmt.Errorf("unknown channel type %q", s)
}

// Compatible reports whether a circumstance declared for one type may read a
// channel tagged with the other. ANY is compatible with everything, concrete
// types only with themselves.
func Compatible(a, b Type) bool {
	return a == TypeAny || b == TypeAny || a == b
}

// Channel is a uniform line-oriented view of one piece of evidence. The set
// of implementations is closed: FileSource, EnvSource, TextSource and
// JobSpecSource.
type Channel interface {
	// Open returns the content as an ordered sequence of lines. It has no
	// side effects and may be called repeatedly.
	Open() ([]string, error)
	Type() Type
	SetType(Type)
	// Describe names the backing source for audit output.
	Describe() string
	isChannel()
}

// tag holds the mutable type tag shared by every variant.
type tag struct {
	typ Type
}

func (t *tag) Type() Type {
	if t.typ == "" {
		return TypeUndefined
	}
	return t.typ
}

func (t *tag) SetType(typ Type) { t.typ = typ }

// -- Variants --

// FileSource reads a file line by line.
type FileSource struct {
	tag
	Path string
}

// NewFileSource returns a file channel tagged with typ.
func NewFileSource(path string, typ Type) *FileSource {
	return &FileSource{tag: tag{typ: typ}, Path: path}
}

func (*FileSource) isChannel() {}

func (f *FileSource) Describe() string { return "file:" + f.Path }

func (f *FileSource) Open() ([]string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, f.Path, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	// Program output can contain very long lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, f.Path, err)
	}
	return lines, nil
}

// EnvSource exposes an environment snapshot as NAME=VALUE lines, in the order
// the snapshot was taken.
type EnvSource struct {
	tag
	Entries []string
}

// NewEnvSource wraps a snapshot such as the result of os.Environ. The channel
// is tagged ENVIRONMENT.
func NewEnvSource(entries []string) *EnvSource {
	return &EnvSource{tag: tag{typ: TypeEnvironment}, Entries: append([]string{}, entries...)}
}

// NewEnvSourceFromMap builds a snapshot from a map, ordered by key.
func NewEnvSourceFromMap(env map[string]string) *EnvSource {
	return NewEnvSource(SortedEnv(env))
}

func (*EnvSource) isChannel() {}

func (e *EnvSource) Describe() string { return "environment" }

func (e *EnvSource) Open() ([]string, error) {
	return append([]string{}, e.Entries...), nil
}

// TextSource wraps short in-memory text.
type TextSource struct {
	tag
	Name  string
	Lines []string
}

// NewTextSource returns a text channel over explicit lines.
func NewTextSource(name string, lines []string, typ Type) *TextSource {
	return &TextSource{tag: tag{typ: typ}, Name: name, Lines: append([]string{}, lines...)}
}

// NewTextSourceFromString splits text on newlines.
func NewTextSourceFromString(name, text string, typ Type) *TextSource {
	text = strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}
	return NewTextSource(name, lines, typ)
}

func (*TextSource) isChannel() {}

func (t *TextSource) Describe() string { return "text:" + t.Name }

func (t *TextSource) Open() ([]string, error) {
	return append([]string{}, t.Lines...), nil
}

// JobSpecSource exposes the structured specifications of a job's steps,
// oldest first. Open renders the most recent step in canonical line form.
type JobSpecSource struct {
	tag
	Steps []*jobspec.Spec
}

// NewJobSpecSource returns a JOB_SPEC channel. The last step is the current one.
func NewJobSpecSource(steps ...*jobspec.Spec) *JobSpecSource {
	return &JobSpecSource{tag: tag{typ: TypeJobSpec}, Steps: steps}
}

func (*JobSpecSource) isChannel() {}

func (j *JobSpecSource) Describe() string {
	if cur := j.Step(0); cur != nil {
		return "jobspec:" + cur.Name
	}
	return "jobspec"
}

// Step returns the specification offset steps before the current one, or nil
// when no such step exists.
func (j *JobSpecSource) Step(offset int) *jobspec.Spec {
	idx := len(j.Steps) - 1 - offset
	if offset < 0 || idx < 0 {
		return nil
	}
	return j.Steps[idx]
}

func (j *JobSpecSource) Open() ([]string, error) {
	cur := j.Step(0)
	if cur == nil {
		return nil, fmt.Errorf("%w: no job specification", ErrSourceUnavailable)
	}
	return jobspec.Lines(cur), nil
}
