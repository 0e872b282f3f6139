package devauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/oklog/ulid/v2"
)

const (
	refreshSecretSize   = 32
	refreshTokenRawSize = 16 + refreshSecretSize
)

var errMalformedRefresh = errors.New("malformed refresh token")

func newRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func hashRefreshSecret(secret [refreshSecretSize]byte) string {
	sum := sha256.Sum256(secret[:])
	return hex.EncodeToString(sum[:])
}

// encodeRefreshToken packs the session id and secret as base64url(sid || secret). Only
// the secret's hash is stored server side.
func encodeRefreshToken(sid ulid.ULID, secret [refreshSecretSize]byte) string {
	var raw [refreshTokenRawSize]byte
	copy(raw[:16], sid[:])
	copy(raw[16:], secret[:])
	return base64.RawURLEncoding.EncodeToString(raw[:])
}

func decodeRefreshToken(token string) (ulid.ULID, [refreshSecretSize]byte, error) {
	var (
		sid    ulid.ULID
		secret [refreshSecretSize]byte
	)
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != refreshTokenRawSize {
		return sid, secret, errMalformedRefresh
	}
	copy(sid[:], raw[:16])
	copy(secret[:], raw[16:])
	return sid, secret, nil
}
