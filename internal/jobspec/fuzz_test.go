// internal/jobspec/fuzz_test.go
package jobspec

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
)

// FuzzAddress checks that parsing never panics, that parsed addresses
// round-trip through their string form, and that resolution and edits on
// arbitrary addresses stay panic free.
func FuzzAddress(f *testing.F) {
	f.Add([]byte("Dir:A|Dir:AA|Key:kA"))
	f.Add([]byte("Dir:*|Dat:atoms"))
	f.Add([]byte("."))
	f.Add([]byte("Key:|Dir"))

	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		raw, err := c.GetString()
		if err != nil {
			return
		}

		addr, err := ParseAddress(raw)
		if err != nil {
			return
		}
		again, err := ParseAddress(addr.String())
		if err != nil {
			t.Fatalf("re-parse of %q failed: %v", addr.String(), err)
		}
		if !addr.Equal(again) {
			t.Fatalf("round trip mismatch: %s != %s", addr, again)
		}

		spec := sampleSpec()
		_ = Resolve(spec, addr)

		name, err := c.GetString()
		if err != nil {
			name = "k"
		}
		_, _ = Apply(spec, []Edit{
			{Op: OpSetKeyword, Address: addr, Keyword: &Keyword{Name: name, Value: "v"}},
			{Op: OpRemoveDirective, Address: addr},
		})
	})
}
