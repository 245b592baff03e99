// Package normalize implements the address and signature normalization
// rules that both the filter engine and the expression DSL rely on for
// equality, so "0xABC" and "abc" (or "Transfer(address , uint256)" and
// "Transfer(Address,Uint256)") compare equal everywhere in the system.
package normalize

import (
	"strings"
	"unicode"
)

// Address trims whitespace and lowercases, stripping a leading "0x" so EVM
// hex addresses compare independent of case and prefix. Stellar strkey
// addresses have no "0x" prefix to strip, so the same trim/lowercase
// treatment is safe for them too.
func Address(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	return strings.ToLower(s)
}

// SameAddress reports whether two address strings refer to the same
// normalized address. Reflexive, symmetric, transitive by construction.
func SameAddress(a, b string) bool {
	return Address(a) == Address(b)
}

// Signature drops all whitespace and lowercases the canonical parameter-type
// list while keeping the function/event name's case: names match
// case-sensitively, parameter types match case-insensitively, and parameter
// counts must match exactly.
func Signature(sig string) string {
	sig = stripWhitespace(sig)
	name, params, ok := splitSignature(sig)
	if !ok {
		return sig
	}
	lowered := make([]string, len(params))
	for i, p := range params {
		lowered[i] = strings.ToLower(p)
	}
	return name + "(" + strings.Join(lowered, ",") + ")"
}

// SameSignature reports whether two signatures are equivalent under
// normalization (equal names, equal parameter count, case-insensitively
// equal parameter types).
func SameSignature(a, b string) bool {
	return Signature(a) == Signature(b)
}

func stripWhitespace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func splitSignature(sig string) (name string, params []string, ok bool) {
	open := strings.IndexByte(sig, '(')
	if open < 0 || !strings.HasSuffix(sig, ")") {
		return "", nil, false
	}
	name = sig[:open]
	inner := sig[open+1 : len(sig)-1]
	if inner == "" {
		return name, nil, true
	}
	return name, splitTopLevelCommas(inner), true
}

// splitTopLevelCommas splits on commas that are not nested inside a tuple
// type's own parentheses, e.g. "(uint256,address)[],bool".
func splitTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
