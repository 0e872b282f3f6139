package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	secretBytes     = 20
	backupCodeBytes = 4
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config describes an RFC 6238 profile.
type Config struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	// Skew is how many periods either side of now are accepted.
	Skew int
}

// DefaultConfig is six SHA1 digits every 30s with a two-step window, the profile common
// authenticator apps expect.
func DefaultConfig() Config {
	return Config{Issuer: "goSession", Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 2}
}

// Generator creates and verifies time-based codes.
type Generator struct {
	cfg Config
}

func New(cfg Config) (*Generator, error) {
	if cfg.Digits < 6 || cfg.Digits > 8 {
		return nil, errors.New("totp digits must be in [6,8]")
	}
	if cfg.Period <= 0 {
		return nil, errors.New("totp period must be > 0")
	}
	if cfg.Skew < 0 {
		return nil, errors.New("totp skew must be >= 0")
	}
	if _, err := hmacFunc(cfg.Algorithm); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg}, nil
}

// GenerateSecret returns a random secret and its base32 form.
func (g *Generator) GenerateSecret() ([]byte, string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, b32.EncodeToString(raw), nil
}

// DecodeSecret parses a base32 secret as shown to users.
func DecodeSecret(s string) ([]byte, error) {
	return b32.DecodeString(strings.ToUpper(strings.TrimRight(s, "=")))
}

// ProvisionURI returns the otpauth:// URI encoded in setup QR codes.
func (g *Generator) ProvisionURI(secretBase32, account string) string {
	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", g.cfg.Issuer)
	v.Set("period", strconv.Itoa(g.cfg.Period))
	v.Set("digits", strconv.Itoa(g.cfg.Digits))
	v.Set("algorithm", strings.ToUpper(g.cfg.Algorithm))
	return "otpauth://totp/" + url.PathEscape(g.cfg.Issuer+":"+account) + "?" + v.Encode()
}

// Code returns the code for the period containing at.
func (g *Generator) Code(secret []byte, at time.Time) (string, error) {
	return hotp(secret, at.Unix()/int64(g.cfg.Period), g.cfg.Digits, g.cfg.Algorithm)
}

// Verify checks code against the periods within Skew of now and returns the matching
// counter, so callers can refuse replays of the same counter.
func (g *Generator) Verify(secret []byte, code string, now time.Time) (bool, int64, error) {
	code = strings.TrimSpace(code)
	if len(code) != g.cfg.Digits || !digitsOnly(code) {
		return false, 0, nil
	}
	if len(secret) == 0 {
		return false, 0, errors.New("empty totp secret")
	}

	base := now.Unix() / int64(g.cfg.Period)
	for step := -g.cfg.Skew; step <= g.cfg.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		want, err := hotp(secret, counter, g.cfg.Digits, g.cfg.Algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

// BackupCodes returns n single-use recovery codes of eight upper-case hex characters.
func BackupCodes(n int) ([]string, error) {
	out := make([]string, 0, n)
	buf := make([]byte, backupCodeBytes)
	for i := 0; i < n; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		out = append(out, strings.ToUpper(hex.EncodeToString(buf)))
	}
	return out, nil
}

func hotp(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unsupported totp algorithm %q", algorithm)
	}
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
