//go:build go1.18

package domain

import (
	"testing"
)

// FuzzParseParty checks that party parsing never panics and that every
// accepted value round-trips through its string form.
func FuzzParseParty(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		p, err := ParseParty(input)
		if err != nil {
			return
		}
		roundTrip, err2 := ParseParty(p.String())
		if err2 != nil {
			t.Errorf("accepted party failed round-trip: %v", err2)
		}
		if roundTrip != p {
			t.Error("round-trip changed the party value")
		}
	})
}

// FuzzParseHash256 checks the hex parser on arbitrary input: never panic,
// and every accepted value renders back to a parseable form.
func FuzzParseHash256(f *testing.F) {
	f.Add("")
	f.Add("0x" + "ab00cd00ef00ab00cd00ef00ab00cd00ef00ab00cd00ef00ab00cd00ef00ab00")
	f.Add("ab00cd00ef00ab00cd00ef00ab00cd00ef00ab00cd00ef00ab00cd00ef00ab00")
	f.Add("0xzz")
	f.Add("0x")

	f.Fuzz(func(t *testing.T, input string) {
		h, err := ParseHash256(input)
		if err != nil {
			return
		}
		roundTrip, err2 := ParseHash256(h.String())
		if err2 != nil {
			t.Errorf("accepted hash failed round-trip: %v", err2)
		}
		if roundTrip != h {
			t.Error("round-trip changed the hash value")
		}
	})
}
