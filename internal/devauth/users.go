package devauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/authapi"
)

// MFAState is where a user is in MFA enrolment.
type MFAState string

const (
	MFANotConfigured        MFAState = "not_configured"
	MFAConfiguredNotEnabled MFAState = "configured_not_enabled"
	MFAEnabled              MFAState = "enabled"
)

// User is a stored account.
type User struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	FirstName    string   `json:"firstName"`
	LastName     string   `json:"lastName"`
	Role         string   `json:"role"`
	Permissions  []string `json:"permissions,omitempty"`
	Portals      []string `json:"portals"`
	PasswordHash string   `json:"passwordHash"`
	Active       bool     `json:"active"`

	VendorID     string `json:"vendorId,omitempty"`
	VendorName   string `json:"vendorName,omitempty"`
	VendorDomain string `json:"vendorDomain,omitempty"`

	MFASecret       string   `json:"mfaSecret,omitempty"`
	MFAEnabled      bool     `json:"mfaEnabled"`
	BackupCodes     []string `json:"backupCodes,omitempty"`
	LastTOTPCounter int64    `json:"lastTotpCounter,omitempty"`
}

// MFAState derives the enrolment state from the stored secret and flag.
func (u *User) MFAState() MFAState {
	switch {
	case u.MFAEnabled:
		return MFAEnabled
	case u.MFASecret != "":
		return MFAConfiguredNotEnabled
	default:
		return MFANotConfigured
	}
}

// mfaRequired: admins always, anyone who enabled MFA, and every login to the admin or
// super admin portals.
func (u *User) mfaRequired(portal string) bool {
	if u.Role == "admin" || u.Role == "super_admin" || u.MFAEnabled {
		return true
	}
	return portal == "admin" || portal == "super_admin"
}

func (u *User) canUse(portal string) bool {
	return len(u.Portals) == 0 || slices.Contains(u.Portals, portal)
}

func (u *User) profile(portal string) authapi.User {
	out := authapi.User{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		Permissions: u.Permissions,
		PortalType:  portal,
		Security:    &authapi.Security{MFAEnabled: u.MFAEnabled},
	}
	if u.VendorID != "" {
		out.Vendor = &authapi.Vendor{ID: u.VendorID, Name: u.VendorName, Domain: u.VendorDomain}
	}
	return out
}

// UserSpec seeds an account.
type UserSpec struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Role        string
	Permissions []string
	// Portals limits which portal types the user may log in to. Empty allows all.
	Portals []string
	Inactive bool

	VendorName   string
	VendorDomain string

	// MFASecret is a base32 TOTP secret. With MFAEnabled false the user is in
	// configured_not_enabled.
	MFASecret   string
	MFAEnabled  bool
	BackupCodes []string
}

// AddUser hashes the password and stores the account, replacing any user with the
// same email.
func (s *Server) AddUser(ctx context.Context, spec UserSpec) (*User, error) {
	email := normalizeEmail(spec.Email)
	if email == "" || spec.Password == "" {
		return nil, errors.New("email and password required")
	}
	if spec.MFAEnabled && spec.MFASecret == "" {
		return nil, errors.New("mfa enabled without secret")
	}
	hash, err := s.hasher.Hash(spec.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		FirstName:    spec.FirstName,
		LastName:     spec.LastName,
		Role:         spec.Role,
		Permissions:  spec.Permissions,
		Portals:      spec.Portals,
		PasswordHash: hash,
		Active:       !spec.Inactive,
		VendorName:   spec.VendorName,
		VendorDomain: spec.VendorDomain,
		MFASecret:    spec.MFASecret,
		MFAEnabled:   spec.MFAEnabled,
		BackupCodes:  normalizeCodes(spec.BackupCodes),
	}
	if u.Role == "" {
		u.Role = "user"
	}
	if spec.VendorDomain != "" {
		u.VendorID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// User returns the stored account for email, or nil.
func (s *Server) User(ctx context.Context, email string) (*User, error) {
	return s.loadUser(ctx, email)
}

func (s *Server) userKey(email string) string {
	return s.cfg.KeyPrefix + "user:" + normalizeEmail(email)
}

func (s *Server) loadUser(ctx context.Context, email string) (*User, error) {
	raw, err := s.redis.Get(ctx, s.userKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// saveUser must be called with s.mu held.
func (s *Server) saveUser(ctx context.Context, u *User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.userKey(u.Email), raw, 0).Err(); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			out = append(out, c)
		}
	}
	return out
}
