// Package credentials generates member identifiers and initial passwords.
package credentials

import (
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	// MemberIDPrefix is the prefix of generated member ids.
	MemberIDPrefix = "DMA-"

	// PasswordLength is the length of generated passwords.
	PasswordLength = 8

	idSuffixLength = 5

	base36Alphabet       = "0123456789abcdefghijklmnopqrstuvwxyz"
	alphanumericAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Generator produces member ids and passwords from a cryptographically secure source.
// The zero value is not usable; use New.
type Generator struct {
	now    func() time.Time
	random io.Reader
}

func New() *Generator {
	return NewWithOptions(nil, nil)
}

// NewWithOptions allows tests to pin the clock and the random source.
func NewWithOptions(now func() time.Time, random io.Reader) *Generator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if random == nil {
		random = rand.Reader
	}
	return &Generator{now: now, random: random}
}

// NewMemberID returns prefix + base36 millisecond timestamp + a short random suffix.
//
// Uniqueness is best-effort; the member repository's uniqueness constraint is final.
func (g *Generator) NewMemberID(prefix string) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString(strconv.FormatInt(g.now().UnixMilli(), 36))
	sb.WriteString(g.randomString(idSuffixLength, base36Alphabet))
	return sb.String()
}

// NewPassword returns a fixed-length random alphanumeric password.
func (g *Generator) NewPassword() string {
	return g.randomString(PasswordLength, alphanumericAlphabet)
}

// randomString draws n characters from alphabet with rejection sampling so every
// character is equally likely.
func (g *Generator) randomString(n int, alphabet string) string {
	limit := byte(256 - 256%len(alphabet))
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			// crypto/rand does not fail on supported platforms; a broken source is not recoverable.
			panic(fmt.Sprintf("credentials: random source failed: %v", err))
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
