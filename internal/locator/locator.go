// Package locator mints the 6-character booking references (PNR) shown to passengers.
package locator

import (
	"math/rand/v2"
	"strings"
)

const (
	// Alphabet omits I, O, 0 and 1.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	Length   = 6
)

// Source picks an index in [0, n). *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

type Generator struct {
	src Source
}

// NewGenerator uses src for randomness; nil falls back to the runtime's global source.
func NewGenerator(src Source) *Generator {
	if src == nil {
		src = globalSource{}
	}
	return &Generator{src: src}
}

func (g *Generator) Next() string {
	var sb strings.Builder
	sb.Grow(Length)
	for range Length {
		sb.WriteByte(Alphabet[g.src.IntN(len(Alphabet))])
	}
	return sb.String()
}

// Valid reports whether s has the shape of a generated locator.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(Alphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
