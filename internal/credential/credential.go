package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
)

const (
	// DigestSize is the BLAKE2b output length in bytes. The persisted hash
	// is the hex text of this digest, so it is twice as long on the wire.
	DigestSize = 32
	// SaltSize is the number of random bytes generated when no salt is supplied.
	SaltSize = 16
	// maxKeySize is the BLAKE2b keyed-mode limit.
	maxKeySize = 64
)

// ErrTypeMismatch indicates password material whose shape the hash function
// cannot accept. It is returned before any digest work happens.
var ErrTypeMismatch = errors.New("credential: type mismatch")

// Credential bundles a password with the salt, optional key and hex-encoded
// digest needed to verify it later. Instances are created once at
// registration time and never mutated.
type Credential struct {
	Password []byte
	Salt     []byte
	Key      []byte
	Hash     []byte
}

// HashPassword computes the salted, keyed digest of password. A nil salt is
// replaced by SaltSize random bytes from the OS CSPRNG; a nil key behaves
// exactly like an explicit empty key. The returned Credential carries the
// salt and key actually used and the digest as lowercase hex text.
func HashPassword(password, salt, key []byte) (Credential, error) {
	if err := checkParams(salt, key); err != nil {
		return Credential{}, err
	}

	if salt == nil {
		salt = make([]byte, SaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return Credential{}, fmt.Errorf("generate salt: %w", err)
		}
	}
	if key == nil {
		key = []byte{}
	}

	hash, err := digest(password, salt, key)
	if err != nil {
		return Credential{}, err
	}

	return Credential{
		Password: password,
		Salt:     salt,
		Key:      key,
		Hash:     hash,
	}, nil
}

// CheckPassword recomputes the digest of password with the given salt and
// key and compares it to storedHash in constant time. It never returns an
// error: unusable parameters simply fail the check.
func CheckPassword(storedHash, password, salt, key []byte) bool {
	if checkParams(salt, key) != nil {
		return false
	}
	computed, err := digest(password, salt, key)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(storedHash, computed) == 1
}

// DeriveAuthID produces a stable printable identifier for the (uuid,
// credential) pair. It reuses the keyed digest primitive, so distinct inputs
// map to distinct identifiers with the same collision resistance as the
// password hash. The result is recomputed on demand and never stored.
func DeriveAuthID(uuid uint64, cred Credential) (string, error) {
	if err := checkParams(cred.Salt, cred.Key); err != nil {
		return "", err
	}

	h, err := blake2b.New(DigestSize, cred.Key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}

	var id [8]byte
	binary.BigEndian.PutUint64(id[:], uuid)

	h.Write(cred.Salt)
	h.Write(id[:])
	h.Write(cred.Hash)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// digest returns the hex text of the keyed BLAKE2b-256 digest over
// salt ‖ password.
func digest(password, salt, key []byte) ([]byte, error) {
	h, err := blake2b.New(DigestSize, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	h.Write(salt)
	h.Write(password)
	return []byte(hex.EncodeToString(h.Sum(nil))), nil
}

// checkParams rejects salt or key material outside the BLAKE2b native
// limits. Passwords of any length, including empty, are acceptable.
func checkParams(salt, key []byte) error {
	if len(salt) > SaltSize {
		return fmt.Errorf("%w: salt exceeds %d bytes", ErrTypeMismatch, SaltSize)
	}
	if len(key) > maxKeySize {
		return fmt.Errorf("%w: key exceeds %d bytes", ErrTypeMismatch, maxKeySize)
	}
	return nil
}
