package session

import (
	"regexp"
	"strings"
	"time"
)

// MFAMethod is the second factor kind submitted with an MFA code.
type MFAMethod string

const (
	// MFAMethodTOTP is a time-based one-time password from an authenticator app.
	MFAMethodTOTP MFAMethod = "totp"
	// MFAMethodBackup is a single-use recovery code.
	MFAMethodBackup MFAMethod = "backup"
)

// MFAChallengeKind tells the UI which MFA step the server asked for.
type MFAChallengeKind string

const (
	ChallengeSetupRequired      MFAChallengeKind = "setup_required"
	ChallengeCompletionRequired MFAChallengeKind = "completion_required"
	ChallengeTokenRequired      MFAChallengeKind = "token_required"
)

// MFAChallenge is present only while a multi-factor exchange is in progress.
type MFAChallenge struct {
	Required      bool
	Kind          MFAChallengeKind
	Method        MFAMethod
	CorrelationID string
	Message       string
}

// Pair is an access/refresh token pair as it is persisted.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether neither token is present.
func (p Pair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Complete reports whether both tokens are present.
func (p Pair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// Session is a point-in-time snapshot of the store. Values returned by [Store.Get] are
// copies; mutating them has no effect on the store.
type Session struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAtEpochMillis is decoded from the access token's exp claim. Zero when the
	// token carries no decodable expiry.
	ExpiresAtEpochMillis int64
	MFAChallenge         *MFAChallenge
	// Version increases on every Set and Clear.
	Version uint64
}

// Established reports whether the session holds a token pair.
func (s Session) Established() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// ExpiresAt returns the decoded access-token expiry, or the zero time.
func (s Session) ExpiresAt() time.Time {
	if s.ExpiresAtEpochMillis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.ExpiresAtEpochMillis)
}

// Pair returns the token pair held by the session.
func (s Session) Pair() Pair {
	return Pair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

var totpCodePattern = regexp.MustCompile(`^\d{6}$`)

// ClassifyMFACode picks the MFA method for a user-entered code: exactly six digits is a
// TOTP code, any other non-empty value is a backup code. The heuristic mirrors what the
// portals have always sent; the server remains the validator. ok is false for blank input.
func ClassifyMFACode(code string) (method MFAMethod, ok bool) {
	if strings.TrimSpace(code) == "" {
		return "", false
	}
	if totpCodePattern.MatchString(code) {
		return MFAMethodTOTP, true
	}
	return MFAMethodBackup, true
}
