package authapi

import (
	"time"

	"github.com/MrEthical07/goSession/session"
)

type Vendor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type Security struct {
	RiskScore          float64    `json:"riskScore"`
	SuspiciousActivity bool       `json:"suspiciousActivity"`
	MFAEnabled         bool       `json:"mfaEnabled"`
	PasswordExpiresAt  *time.Time `json:"passwordExpiresAt,omitempty"`
}

// User is the profile returned by login and /me.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Role           string    `json:"role"`
	Permissions    []string  `json:"permissions,omitempty"`
	IsSuperAccount bool      `json:"isSuperAccount"`
	Vendor         *Vendor   `json:"vendor,omitempty"`
	PortalType     string    `json:"portalType,omitempty"`
	Security       *Security `json:"security,omitempty"`
}

// Tokens is the wire form of a token pair.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (t Tokens) Pair() session.Pair {
	return session.Pair{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
}

type SessionInfo struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type MFAInfo struct {
	Required bool `json:"required"`
	Enabled  bool `json:"enabled"`
	Verified bool `json:"verified"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	PortalType   string `json:"portalType"`
	VendorDomain string `json:"vendorDomain,omitempty"`
	MFAToken     string `json:"mfaToken,omitempty"`
	MFAMethod    string `json:"mfaMethod,omitempty"`
}

// LoginResult is the data of a successful login.
type LoginResult struct {
	User    User         `json:"user"`
	Tokens  Tokens       `json:"tokens"`
	Session *SessionInfo `json:"session,omitempty"`
	MFA     *MFAInfo     `json:"mfa,omitempty"`
}

type meResult struct {
	User User `json:"user"`
}
