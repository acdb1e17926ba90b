package credentials

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestGenerator_NewMemberID_PrefixAndTimeComponent(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1700000000000).UTC()
	g := NewWithOptions(func() time.Time { return now }, nil)

	id := g.NewMemberID(MemberIDPrefix)
	if !strings.HasPrefix(id, "DMA-") {
		t.Fatalf("id=%q, want DMA- prefix", id)
	}
	wantTime := "loyw3v28"
	if !strings.HasPrefix(strings.TrimPrefix(id, "DMA-"), wantTime) {
		t.Fatalf("id=%q, want time component %q", id, wantTime)
	}
	if got := len(id) - len("DMA-") - len(wantTime); got != idSuffixLength {
		t.Fatalf("suffix length=%d, want %d (id=%q)", got, idSuffixLength, id)
	}
}

func TestGenerator_NewMemberID_DistinctWithinSameMillisecond(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1700000000000).UTC()
	g := NewWithOptions(func() time.Time { return now }, nil)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := g.NewMemberID(MemberIDPrefix)
		if seen[id] {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = true
	}
}

func TestGenerator_NewPassword_Alphanumeric(t *testing.T) {
	t.Parallel()

	g := New()
	for i := 0; i < 50; i++ {
		p := g.NewPassword()
		if len(p) != PasswordLength {
			t.Fatalf("len(%q)=%d, want %d", p, len(p), PasswordLength)
		}
		for _, r := range p {
			if !strings.ContainsRune(alphanumericAlphabet, r) {
				t.Fatalf("password %q contains non-alphanumeric %q", p, r)
			}
		}
	}
}

func TestGenerator_RejectsBiasedBytes(t *testing.T) {
	t.Parallel()

	// 0xff is above the rejection limit for a 62 character alphabet and must be skipped.
	src := bytes.NewReader(append(bytes.Repeat([]byte{0xff}, 16), bytes.Repeat([]byte{1}, 16)...))
	g := NewWithOptions(nil, src)

	if got := g.NewPassword(); got != "11111111" {
		t.Fatalf("NewPassword()=%q, want %q", got, "11111111")
	}
}
