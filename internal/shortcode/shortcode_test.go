// embedfix - Embed-Fixing Gateway for Instagram Media
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/embedfix

package shortcode

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []string{
		"ABC123",
		"AAAA",
		"a",
		string(Alphabet[0]),
		"zZ09-_",
		"CUxLUjZFMQ",
	}
	for _, s := range cases {
		s := s
		t.Run(s, func(t *testing.T) {
			t.Parallel()
			v, length, err := Decode(s)
			require.NoError(t, err)
			assert.Equal(t, s, Encode(v, length))
		})
	}
}

func TestDecodeRejectsInvalidCharacter(t *testing.T) {
	t.Parallel()
	_, _, err := Decode("abc!def")
	assert.Error(t, err)
}

func TestEncodeNumeric(t *testing.T) {
	t.Parallel()
	got := EncodeNumeric(big.NewInt(64))
	v, err := DecodeToInt(got)
	require.NoError(t, err)
	assert.Equal(t, int64(64), v.Int64())
}

func TestIsNumeric(t *testing.T) {
	t.Parallel()
	assert.True(t, IsNumeric("1234567890"))
	assert.False(t, IsNumeric("123abc"))
	assert.False(t, IsNumeric(""))
}

func TestMastodonIDRoundTrip(t *testing.T) {
	t.Parallel()

	code := "ABC123xyz"
	id, err := ToMastodonID(code)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	back, err := FromMastodonID(id)
	require.NoError(t, err)

	v1, _, err := Decode(code)
	require.NoError(t, err)
	v2, _, err := Decode(back)
	require.NoError(t, err)
	assert.Equal(t, 0, v1.Cmp(v2), "decoded values should match across the mastodon id round trip")
}

func TestFromMastodonIDRejectsNonNumeric(t *testing.T) {
	t.Parallel()
	_, err := FromMastodonID("not-a-number")
	assert.Error(t, err)
}
