// Package selector derives the 4-byte method identifiers that a pool uses to read an external
// exchange rate from a token or oracle contract.
package selector

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/crypto"
)

// Size is the length of a method identifier in bytes.
const Size = 4

// ID is a 4-byte method identifier. The zero value means "no external rate call".
type ID [Size]byte

var (
	// ErrInvalidSignature is returned when a signature is not of the form name(type,...).
	ErrInvalidSignature = errors.New("invalid function signature")

	signatureRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*\((.*)\)$`)

	// Solidity accepts the bare aliases, the hash only accepts the sized form.
	aliasRes = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`\buint\b`), "uint256"},
		{regexp.MustCompile(`\bint\b`), "int256"},
		{regexp.MustCompile(`\bbyte\b`), "bytes1"},
	}
)

// Canonical returns the canonical form of signature: whitespace removed and integer aliases
// expanded, e.g. "transfer(address, uint)" becomes "transfer(address,uint256)".
func Canonical(signature string) (string, error) {
	sig := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}

		return r
	}, signature)

	m := signatureRe.FindStringSubmatch(sig)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidSignature, signature)
	}
	if strings.Count(sig, "(") != strings.Count(sig, ")") {
		return "", fmt.Errorf("%w: unbalanced parentheses in %q", ErrInvalidSignature, signature)
	}
	if strings.Contains(m[1], ",,") || strings.HasPrefix(m[1], ",") || strings.HasSuffix(m[1], ",") {
		return "", fmt.Errorf("%w: empty parameter type in %q", ErrInvalidSignature, signature)
	}

	params := m[1]
	for _, a := range aliasRes {
		params = a.re.ReplaceAllString(params, a.repl)
	}

	return sig[:strings.IndexByte(sig, '(')] + "(" + params + ")", nil
}

// For returns the first 4 bytes of the keccak256 digest of the canonical signature.
func For(signature string) (ID, error) {
	sig, err := Canonical(signature)
	if err != nil {
		return ID{}, err
	}

	var id ID
	copy(id[:], crypto.Keccak256([]byte(sig))[:Size])

	return id, nil
}

// MustFor is like For but panics on an invalid signature. It is meant for package level
// constants.
func MustFor(signature string) ID {
	id, err := For(signature)
	if err != nil {
		panic(err)
	}

	return id
}

// Parse accepts either a 0x-prefixed 8 hex digit identifier, a human readable signature such as
// "getRate()", or the empty string which yields the zero ID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "", s == "0x":
		return ID{}, nil
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		raw, err := hex.DecodeString(s[2:])
		if err != nil {
			return ID{}, fmt.Errorf("method id %q: %w", s, err)
		}
		if len(raw) != Size {
			return ID{}, fmt.Errorf("method id %q: want %d bytes, got %d", s, Size, len(raw))
		}

		var id ID
		copy(id[:], raw)

		return id, nil
	default:
		return For(s)
	}
}

// IsZero reports whether id is the empty identifier.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Bytes returns a copy of the identifier bytes.
func (id ID) Bytes() []byte {
	return append([]byte(nil), id[:]...)
}

// String returns the 0x-prefixed hex form, or "" for the zero ID.
func (id ID) String() string {
	if id.IsZero() {
		return ""
	}

	return "0x" + hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using Parse, so configuration files may hold
// either the hex identifier or the signature it is derived from.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed

	return nil
}
