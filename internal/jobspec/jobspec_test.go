// internal/jobspec/jobspec_test.go
package jobspec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleSpec builds a small tree used across the package tests.
func sampleSpec() *Spec {
	return &Spec{
		Name: "sample",
		Directives: []*Directive{
			{
				Name: "A",
				Directives: []*Directive{
					{
						Name:     "AA",
						Keywords: []*Keyword{{Name: "kA", Value: "My value"}},
					},
				},
				Keywords: []*Keyword{{Name: "basis", Values: []string{"def2-svp", "def2-tzvp"}}},
			},
			{
				Name: "geom",
				Data: []*DataBlock{{Name: "atoms", Lines: []string{"O 0.0 0.0 0.0", "H 0.0 0.0 0.96"}}},
			},
			{
				Name:     "scf",
				Keywords: []*Keyword{{Name: "maxiter", Value: "100"}},
			},
		},
	}
}

const sampleYAML = `
name: sample
directives:
  - name: A
    keywords:
      - name: basis
        values: [def2-svp, def2-tzvp]
    directives:
      - name: AA
        keywords:
          - {name: kA, value: My value}
  - name: geom
    data:
      - name: atoms
        lines: ["O 0.0 0.0 0.0", "H 0.0 0.0 0.96"]
  - name: scf
    keywords:
      - {name: maxiter, value: "100"}
`

func TestParseAddress(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		want    Address
		wantErr bool
	}{
		{name: "Directive chain to keyword", input: "Dir:A|Dir:AA|Key:kA", want: Address{{"A", KindDirective}, {"AA", KindDirective}, {"kA", KindKeyword}}},
		{name: "Data block", input: "Dir:geom|Dat:atoms", want: Address{{"geom", KindDirective}, {"atoms", KindData}}},
		{name: "Dot is empty", input: ".", want: Address{}},
		{name: "Blank is empty", input: "  ", want: Address{}},
		{name: "Surrounding whitespace", input: " Dir:A | Key:k ", want: Address{{"A", KindDirective}, {"k", KindKeyword}}},
		{name: "Wildcard", input: "Dir:*|Key:maxiter", want: Address{{AnyName, KindDirective}, {"maxiter", KindKeyword}}},
		{name: "Missing prefix", input: "A|Key:k", wantErr: true},
		{name: "Unknown prefix", input: "Foo:A", wantErr: true},
		{name: "Empty name", input: "Dir:", wantErr: true},
		{name: "Keyword not last", input: "Key:k|Dir:A", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAddress(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestAddressString(t *testing.T) {
	t.Parallel()
	addr := MustParseAddress("Dir:A|Dir:AA|Key:kA")
	assert.Equal(t, "Dir:A|Dir:AA|Key:kA", addr.String())
	assert.Equal(t, ".", Address{}.String())
	assert.Equal(t, "Dir:A|Dir:AA", addr.Parent().String())

	last, ok := addr.Last()
	require.True(t, ok)
	assert.Equal(t, Step{Name: "kA", Kind: KindKeyword}, last)

	_, ok = Address{}.Last()
	assert.False(t, ok)

	// Child must not alias the receiver's backing array.
	base := MustParseAddress("Dir:A|Dir:AA")
	one := base.Child("x", KindKeyword)
	two := base.Child("y", KindKeyword)
	assert.Equal(t, "Dir:A|Dir:AA|Key:x", one.String())
	assert.Equal(t, "Dir:A|Dir:AA|Key:y", two.String())
}

func TestAddressYAML(t *testing.T) {
	t.Parallel()
	var e Edit
	err := yamlUnmarshal(`{op: set_keyword, address: "Dir:scf", keyword: {name: maxiter, value: "500"}}`, &e)
	require.NoError(t, err)
	assert.Equal(t, OpSetKeyword, e.Op)
	assert.Equal(t, "Dir:scf", e.Address.String())

	err = yamlUnmarshal(`{op: set_keyword, address: "Bogus"}`, &e)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestResolve(t *testing.T) {
	t.Parallel()
	spec := sampleSpec()

	t.Run("Keyword value", func(t *testing.T) {
		nodes := Resolve(spec, MustParseAddress("Dir:A|Dir:AA|Key:kA"))
		require.Len(t, nodes, 1)
		v, ok := nodes[0].Value()
		assert.True(t, ok)
		assert.Equal(t, "My value", v)
		assert.Equal(t, "kA", nodes[0].Name())
	})

	t.Run("List keyword joins values", func(t *testing.T) {
		nodes := Resolve(spec, MustParseAddress("Dir:A|Key:basis"))
		require.Len(t, nodes, 1)
		v, _ := nodes[0].Value()
		assert.Equal(t, "def2-svp,def2-tzvp", v)
	})

	t.Run("Data block value", func(t *testing.T) {
		nodes := Resolve(spec, MustParseAddress("Dir:geom|Dat:atoms"))
		require.Len(t, nodes, 1)
		v, ok := nodes[0].Value()
		assert.True(t, ok)
		assert.Equal(t, "O 0.0 0.0 0.0\nH 0.0 0.0 0.96", v)
	})

	t.Run("Directive has no value", func(t *testing.T) {
		nodes := Resolve(spec, MustParseAddress("Dir:A|Dir:AA"))
		require.Len(t, nodes, 1)
		_, ok := nodes[0].Value()
		assert.False(t, ok)
	})

	t.Run("Missing intermediate exits early", func(t *testing.T) {
		assert.Empty(t, Resolve(spec, MustParseAddress("Dir:B|Dir:AA|Key:kA")))
		assert.False(t, Exists(spec, MustParseAddress("Dir:A|Dir:AB")))
	})

	t.Run("Wildcard spans siblings", func(t *testing.T) {
		nodes := Resolve(spec, MustParseAddress("Dir:*|Key:maxiter"))
		require.Len(t, nodes, 1)
		assert.Equal(t, "maxiter", nodes[0].Name())
	})

	t.Run("Empty address and nil spec", func(t *testing.T) {
		assert.Empty(t, Resolve(spec, Address{}))
		assert.Empty(t, Resolve(nil, MustParseAddress("Dir:A")))
	})
}

func TestLines(t *testing.T) {
	t.Parallel()
	want := []string{
		"Dir:A",
		"Dir:A|Key:basis = def2-svp,def2-tzvp",
		"Dir:A|Dir:AA",
		"Dir:A|Dir:AA|Key:kA = My value",
		"Dir:geom",
		"Dir:geom|Dat:atoms",
		"Dir:geom|Dat:atoms> O 0.0 0.0 0.0",
		"Dir:geom|Dat:atoms> H 0.0 0.0 0.96",
		"Dir:scf",
		"Dir:scf|Key:maxiter = 100",
	}
	if diff := cmp.Diff(want, Lines(sampleSpec())); diff != "" {
		t.Errorf("Lines() mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, Lines(nil))
}

func TestParse(t *testing.T) {
	t.Parallel()
	got, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	if diff := cmp.Diff(sampleSpec(), got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}

	_, err = Parse([]byte("name: x\ndirectives:\n  - keywords: [{name: k}]\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("directives: [unterminated"))
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	t.Parallel()
	orig := sampleSpec()
	c := orig.Clone()
	require.Empty(t, cmp.Diff(orig, c))

	c.Directives[0].Directives[0].Keywords[0].Value = "changed"
	c.Directives[0].Keywords[0].Values[0] = "changed"
	c.Directives[1].Data[0].Lines[0] = "changed"

	assert.Equal(t, "My value", orig.Directives[0].Directives[0].Keywords[0].Value)
	assert.Equal(t, "def2-svp", orig.Directives[0].Keywords[0].Values[0])
	assert.Equal(t, "O 0.0 0.0 0.0", orig.Directives[1].Data[0].Lines[0])
	assert.Nil(t, (*Spec)(nil).Clone())
}
