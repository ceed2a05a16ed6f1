package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHexKnownVector(t *testing.T) {
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", Hex([]byte("hello")))
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Hex(nil))
}

func TestHexIsDeterministicAndWellFormed(t *testing.T) {
	in := []byte("offer letter v1")
	a, b := Hex(in), Hex(in)
	assert.Equal(t, a, b)
	assert.Len(t, a, Size)
	assert.True(t, Valid(a))
	assert.Equal(t, strings.ToLower(a), a)
}

func TestAvalanche(t *testing.T) {
	fixtures := [][2]string{
		{"hello", "hellp"},
		{"resume.pdf contents", "resume.pdf Contents"},
		{"\x00\x00\x00\x00", "\x00\x00\x00\x01"},
		{strings.Repeat("a", 1024), strings.Repeat("a", 1023) + "b"},
	}
	for _, f := range fixtures {
		da, db := Hex([]byte(f[0])), Hex([]byte(f[1]))
		assert.NotEqual(t, da, db)

		differing := 0
		for i := range da {
			if da[i] != db[i] {
				differing++
			}
		}
		assert.Greater(t, differing, Size/2, "one-byte change should alter most hex characters")
	}
}

func TestEqualAndValid(t *testing.T) {
	d := Hex([]byte("x"))
	assert.True(t, Equal(d, d))
	assert.False(t, Equal(d, Hex([]byte("y"))))
	assert.False(t, Equal(d, d[:10]))

	assert.False(t, Valid(strings.ToUpper(d)))
	assert.False(t, Valid(d[:63]))
	assert.False(t, Valid(strings.Repeat("g", Size)))
}
