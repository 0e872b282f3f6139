package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned when a token is not a three-part compact JWT or its exp
// claim is absent or non-numeric.
var ErrMalformedToken = errors.New("malformed token")

var unverifiedParser = jwt.NewParser()

// ExpiresAt decodes the exp claim of token without verifying the signature.
func ExpiresAt(token string) (time.Time, error) {
	if token == "" || strings.Count(token, ".") != 2 {
		return time.Time{}, fmt.Errorf("%w: expected three dot-separated segments", ErrMalformedToken)
	}

	claims := jwt.MapClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: exp claim: %v", ErrMalformedToken, err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("%w: exp claim missing", ErrMalformedToken)
	}

	return exp.Time, nil
}

// ExpiresAtMillis is [ExpiresAt] expressed in Unix milliseconds.
func ExpiresAtMillis(token string) (int64, error) {
	exp, err := ExpiresAt(token)
	if err != nil {
		return 0, err
	}
	return exp.UnixMilli(), nil
}
