package domain

import (
	"strings"
)

// Pair identifies a market and a liquidity bucket as an ordered token tuple.
// "A-B" and "B-A" are distinct pairs.
type Pair struct {
	Base  string // tokenA
	Quote string // tokenB
}

// NewPair builds a pair from two token symbols.
func NewPair(base, quote string) (Pair, error) {
	base = strings.TrimSpace(base)
	quote = strings.TrimSpace(quote)
	if !validToken(base) || !validToken(quote) || base == quote {
		return Pair{}, NewValidationError("pair", ErrInvalidPair)
	}
	return Pair{Base: base, Quote: quote}, nil
}

// ParsePair parses "TOKENA-TOKENB".
func ParsePair(s string) (Pair, error) {
	base, quote, ok := strings.Cut(s, "-")
	if !ok || strings.Contains(quote, "-") {
		return Pair{}, NewValidationError("pair", ErrInvalidPair)
	}
	return NewPair(base, quote)
}

// String returns the "A-B" form used as the product key.
func (p Pair) String() string {
	return p.Base + "-" + p.Quote
}

// Reverse returns "B-A".
func (p Pair) Reverse() Pair {
	return Pair{Base: p.Quote, Quote: p.Base}
}

// MarshalText lets a Pair be used as a JSON map key.
func (p Pair) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses the "A-B" form.
func (p *Pair) UnmarshalText(text []byte) error {
	parsed, err := ParsePair(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func validToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r == '-' || r == ' ' {
			return false
		}
	}
	return true
}
