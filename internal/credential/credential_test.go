package credential

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		password []byte
		salt     []byte
		key      []byte
	}{
		{name: "simple", password: []byte("password"), salt: []byte("salt")},
		{name: "empty password", password: []byte{}, salt: []byte("salt")},
		{name: "single space", password: []byte(" "), salt: []byte("salt")},
		{name: "long password", password: []byte(strings.Repeat("HezyfR4BdO2CcGNsaaDsIYHVYFIJn9Fp", 8)), salt: []byte("salt")},
		{name: "with key", password: []byte("password"), salt: []byte("salt"), key: []byte("key")},
		{name: "generated salt", password: []byte("password")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := HashPassword(tt.password, tt.salt, tt.key)
			require.NoError(t, err)

			assert.Len(t, cred.Hash, DigestSize*2, "hash is hex text of the digest")
			if tt.salt == nil {
				assert.Len(t, cred.Salt, SaltSize)
			} else {
				assert.Equal(t, tt.salt, cred.Salt)
			}

			assert.True(t, CheckPassword(cred.Hash, tt.password, cred.Salt, cred.Key))
		})
	}
}

func TestHashPasswordDeterministic(t *testing.T) {
	first, err := HashPassword([]byte("password"), []byte("salt"), []byte("key"))
	require.NoError(t, err)
	second, err := HashPassword([]byte("password"), []byte("salt"), []byte("key"))
	require.NoError(t, err)

	assert.Equal(t, first.Hash, second.Hash)
}

func TestHashPasswordNilKeyEqualsEmptyKey(t *testing.T) {
	withNil, err := HashPassword([]byte("password"), []byte("salt"), nil)
	require.NoError(t, err)
	withEmpty, err := HashPassword([]byte("password"), []byte("salt"), []byte{})
	require.NoError(t, err)

	assert.Equal(t, withNil.Hash, withEmpty.Hash)
}

func TestHashPasswordDistinctInputsDiffer(t *testing.T) {
	a, err := HashPassword([]byte("password-a"), []byte("salt"), nil)
	require.NoError(t, err)
	b, err := HashPassword([]byte("password-b"), []byte("salt"), nil)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(a.Hash, b.Hash))
}

func TestHashPasswordRejectsOversizedMaterial(t *testing.T) {
	_, err := HashPassword([]byte("password"), bytes.Repeat([]byte{0x01}, SaltSize+1), nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = HashPassword([]byte("password"), []byte("salt"), bytes.Repeat([]byte{0x01}, maxKeySize+1))
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestCheckPasswordWrongMaterial(t *testing.T) {
	cred, err := HashPassword([]byte("password"), []byte("salt"), []byte("key"))
	require.NoError(t, err)

	assert.False(t, CheckPassword(cred.Hash, []byte("not-the-password"), cred.Salt, cred.Key))
	assert.False(t, CheckPassword(cred.Hash, cred.Password, []byte("other-salt"), cred.Key))
	assert.False(t, CheckPassword(cred.Hash, cred.Password, cred.Salt, []byte("other-key")))

	// Unusable parameters fail the check instead of erroring.
	assert.False(t, CheckPassword(cred.Hash, cred.Password, cred.Salt, bytes.Repeat([]byte{0x01}, maxKeySize+1)))
}

func TestDeriveAuthIDDeterministic(t *testing.T) {
	cred, err := HashPassword([]byte("password"), []byte("salt"), nil)
	require.NoError(t, err)

	first, err := DeriveAuthID(1234, cred)
	require.NoError(t, err)
	second, err := DeriveAuthID(1234, cred)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, DigestSize*2)
}

func TestDeriveAuthIDDistinguishesUsers(t *testing.T) {
	cred, err := HashPassword([]byte("password"), []byte("salt"), nil)
	require.NoError(t, err)

	seen := make(map[string]uint64)
	for _, uuid := range []uint64{0, 1, 1234, 1 << 40, 1<<64 - 1} {
		id, err := DeriveAuthID(uuid, cred)
		require.NoError(t, err)
		if prev, dup := seen[id]; dup {
			t.Fatalf("auth id collision between uuid %d and %d", prev, uuid)
		}
		seen[id] = uuid
	}
}
