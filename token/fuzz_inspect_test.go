package token

import (
	"testing"
	"time"
)

// FuzzInspect feeds arbitrary strings through the unverified parser.
// Goal: no panics; errors are expected for malformed input.
func FuzzInspect(f *testing.F) {
	f.Add("")
	f.Add("opaque")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJhQGIuY29tIn0.sig")
	f.Add("....")

	f.Fuzz(func(t *testing.T, raw string) {
		c, err := Inspect(raw)
		if err != nil {
			return
		}
		_ = c.Expired(time.Now(), time.Second)
	})
}
