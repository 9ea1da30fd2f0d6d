package embedding

import (
	"fmt"
	"strings"
)

// Policy decides what happens to a source when one of its embedding batches fails.
type Policy string

const (
	// PolicyStrict fails the whole source on the first failed batch.
	PolicyStrict Policy = "strict"
	// PolicyZeroFill substitutes zero vectors for the failed batch and continues.
	PolicyZeroFill Policy = "zero-fill"
)

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PolicyStrict, nil
	}
	if !p.valid() {
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidPolicy, s, PolicyStrict, PolicyZeroFill)
	}
	return p, nil
}

func (p Policy) valid() bool {
	return p == PolicyStrict || p == PolicyZeroFill
}
