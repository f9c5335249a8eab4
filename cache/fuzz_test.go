package cache

import (
	"strings"
	"testing"
)

// Fuzz SetQueryData/GetQueryData/InvalidateQuery under arbitrary string inputs.
// Guards against panics and ensures the entry invariants hold.
// NOTE: key/value lengths are capped to keep memory bounded.
func FuzzCache_SetGetInvalidate(f *testing.F) {
	f.Add("", "")
	f.Add("a", "1")
	f.Add("αβγ", "δ")
	f.Add("emoji🙂", "🙂🙂")
	f.Add("long", strings.Repeat("x", 1024))

	f.Fuzz(func(t *testing.T, k, v string) {
		const limit = 1 << 12
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		env := newEnv(t)

		// Set -> Get must return the same value, Loaded.
		SetQueryData(env.c, k, v)
		st, ok := GetQueryData[string, string](env.c, k)
		if !ok || st.Phase != Loaded || st.Data != v {
			t.Fatalf("after Set/Get: want loaded %q, got %v %q ok=%v", v, st.Phase, st.Data, ok)
		}

		// Invalidate keeps data and UpdatedAt.
		if !InvalidateQuery[string, string](env.c, k) {
			t.Fatalf("InvalidateQuery must report a present key")
		}
		inv, _ := GetQueryData[string, string](env.c, k)
		if inv.Phase != Invalid || inv.Data != v || !inv.UpdatedAt.Equal(st.UpdatedAt) {
			t.Fatalf("after Invalidate: got %v %q at %v", inv.Phase, inv.Data, inv.UpdatedAt)
		}

		// A new write makes it Loaded again.
		SetQueryData(env.c, k, v+v)
		st, _ = GetQueryData[string, string](env.c, k)
		if st.Phase != Loaded || st.Data != v+v {
			t.Fatalf("after second Set: got %v %q", st.Phase, st.Data)
		}
		if env.c.Size() != 1 {
			t.Fatalf("one key must map to one entry, size=%d", env.c.Size())
		}
	})
}
