// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

// Package shortcode implements the three small ID codecs embedfix's
// dispatch glue needs (spec.md §6): the base64-like short-code alphabet
// shared by posts and shares, numeric story-ID re-encoding into that
// alphabet, and the big-endian 24-byte integer round trip that lets a
// short-code masquerade as a Mastodon status ID for /api/v1/statuses/{id}
// clients. The alphabet and the digit-by-digit re-encoding loop are
// grounded directly on original_source/src/main.py's inline
// numeric-story-id conversion.
package shortcode

import (
	"fmt"
	"math/big"
	"strings"
)

// Alphabet is the 64-character URL-safe alphabet short-codes are drawn
// from, matching original_source/src/main.py verbatim.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

const base = 64

var reverseAlphabet = buildReverseAlphabet()

func buildReverseAlphabet() map[byte]int64 {
	m := make(map[byte]int64, len(Alphabet))
	for i := 0; i < len(Alphabet); i++ {
		m[Alphabet[i]] = int64(i)
	}
	return m
}

// EncodeNumeric re-encodes a purely-decimal numeric story ID into the
// short-code alphabet, one base-64 digit at a time, matching the original
// site's own numeric-to-shortcode conversion so numeric story IDs resolve
// the same way a native short-code would. It is Encode with minLen 0, the
// shortest representation (no leading padding), since a numeric story ID
// has no existing short-code length to preserve.
func EncodeNumeric(n *big.Int) string {
	if n.Sign() <= 0 {
		return string(Alphabet[0])
	}
	return Encode(n, 0)
}

// DecodeToInt reverses EncodeNumeric / a native short-code, returning the
// value the alphabet digits represent. Returns an error if code contains a
// character outside Alphabet.
func DecodeToInt(code string) (*big.Int, error) {
	v, _, err := Decode(code)
	return v, err
}

// Decode converts a short-code into the integer it represents and the
// code's length, so Encode can reconstruct the exact original string
// (including any leading digits that encode the value 0) rather than just
// its numeric value.
func Decode(code string) (*big.Int, int, error) {
	v := big.NewInt(0)
	b := big.NewInt(base)
	for i := 0; i < len(code); i++ {
		digit, ok := reverseAlphabet[code[i]]
		if !ok {
			return nil, 0, fmt.Errorf("shortcode: invalid character %q in %q", code[i], code)
		}
		v.Mul(v, b)
		v.Add(v, big.NewInt(digit))
	}
	return v, len(code), nil
}

// Encode renders v in the short-code alphabet, left-padding with the
// alphabet's zero digit to reach minLen. minLen of 0 produces the shortest
// representation. Encode(Decode(s)) reconstructs s exactly, satisfying the
// round-trip property in spec.md §8.
func Encode(v *big.Int, minLen int) string {
	n := new(big.Int).Set(v)
	b := big.NewInt(base)
	rem := new(big.Int)
	var digits []byte
	for n.Sign() > 0 {
		n.DivMod(n, b, rem)
		digits = append([]byte{Alphabet[rem.Int64()]}, digits...)
	}
	for len(digits) < minLen {
		digits = append([]byte{Alphabet[0]}, digits...)
	}
	if len(digits) == 0 {
		digits = []byte{Alphabet[0]}
	}
	return string(digits)
}

// IsNumeric reports whether s consists entirely of decimal digits, the
// condition spec.md §6 uses to decide whether a post_id needs re-encoding
// before resolution.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// mastodonIDWidth is the fixed byte width of the Mastodon status-ID round
// trip per spec.md §6.
const mastodonIDWidth = 24

// ToMastodonID converts a short-code into the decimal string a Mastodon
// client expects at /api/v1/statuses/{id}: the short-code is decoded to an
// integer, left-padded to a fixed 24-byte big-endian representation (an
// error if it needs more than 24 bytes), and that representation is read
// back as a big integer and formatted in base 10.
func ToMastodonID(code string) (string, error) {
	v, err := DecodeToInt(code)
	if err != nil {
		return "", err
	}
	buf, err := toFixedBigEndian(v, mastodonIDWidth)
	if err != nil {
		return "", err
	}
	return new(big.Int).SetBytes(buf).String(), nil
}

// FromMastodonID reverses ToMastodonID: parse the decimal Mastodon ID,
// round it through the same fixed-width big-endian representation, and
// re-encode it in the short-code alphabet.
func FromMastodonID(id string) (string, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(id), 10)
	if !ok {
		return "", fmt.Errorf("shortcode: invalid mastodon id %q", id)
	}
	buf, err := toFixedBigEndian(v, mastodonIDWidth)
	if err != nil {
		return "", err
	}
	return EncodeNumeric(new(big.Int).SetBytes(buf)), nil
}

// toFixedBigEndian renders v as a big-endian byte slice of exactly width
// bytes, erroring if v doesn't fit.
func toFixedBigEndian(v *big.Int, width int) ([]byte, error) {
	raw := v.Bytes()
	if len(raw) > width {
		return nil, fmt.Errorf("shortcode: value does not fit in %d bytes", width)
	}
	buf := make([]byte, width)
	copy(buf[width-len(raw):], raw)
	return buf, nil
}
