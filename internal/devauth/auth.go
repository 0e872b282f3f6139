package devauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/internal/totp"
	"github.com/MrEthical07/goSession/session"
)

var (
	errInvalidCredentials = errors.New("Invalid credentials.")
	errAccountInactive    = errors.New("Account is inactive.")
	errInvalidMFA         = errors.New("Invalid MFA token")
)

type outcomeKind uint8

const (
	outcomeError outcomeKind = iota
	outcomeSuccess
	outcomeMFASetup
	outcomeMFACompletion
	outcomeMFAToken
)

// loginOutcome is transport neutral; HTTP and WebSocket handlers render it.
type loginOutcome struct {
	kind      outcomeKind
	status    int
	message   string
	mfaMethod string
	result    *authapi.LoginResult
}

func failure(status int, message string) loginOutcome {
	return loginOutcome{kind: outcomeError, status: status, message: message}
}

// authenticate runs the portal login: credentials, account state, portal access, MFA,
// then a new session.
func (s *Server) authenticate(ctx context.Context, req authapi.LoginRequest, ip string) loginOutcome {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return failure(http.StatusBadRequest, "Email and password are required.")
	}
	portal := req.PortalType
	if portal == "" {
		portal = "client"
	}

	if err := s.rate.CheckLogin(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return failure(http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
		}
		s.logger.Error("devauth.login.rate", "err", err)
		return failure(http.StatusInternalServerError, "Server error during authentication.")
	}

	u, err := s.verifyCredentials(ctx, email, req.Password)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			if ferr := s.rate.FailLogin(ctx, email, ip); ferr != nil {
				s.logger.Warn("devauth.login.rate_record", "err", ferr)
			}
			return failure(http.StatusUnauthorized, err.Error())
		}
		s.logger.Error("devauth.login.lookup", "err", err)
		return failure(http.StatusInternalServerError, "Server error during authentication.")
	}
	if !u.Active {
		return failure(http.StatusUnauthorized, errAccountInactive.Error())
	}
	if !u.canUse(portal) {
		return failure(http.StatusForbidden, fmt.Sprintf("Access denied. You don't have permission to access the %s portal.", portal))
	}
	if req.VendorDomain != "" && u.VendorDomain != "" && !strings.EqualFold(req.VendorDomain, u.VendorDomain) {
		return failure(http.StatusUnauthorized, "Access denied. You can only access your assigned vendor.")
	}

	required := u.mfaRequired(portal)
	switch state := u.MFAState(); {
	case state == MFANotConfigured && required:
		return loginOutcome{kind: outcomeMFASetup, status: http.StatusUnauthorized,
			message: "MFA is required for this account. Please setup MFA first."}
	case state == MFAConfiguredNotEnabled:
		return loginOutcome{kind: outcomeMFACompletion, status: http.StatusUnauthorized,
			message: "MFA setup is incomplete. Please complete MFA setup."}
	case state == MFAEnabled && required:
		if req.MFAToken == "" {
			return loginOutcome{kind: outcomeMFAToken, status: http.StatusUnauthorized,
				message: "MFA token is required for this account.", mfaMethod: string(session.MFAMethodTOTP)}
		}
		method := session.MFAMethod(req.MFAMethod)
		if method == "" {
			method, _ = session.ClassifyMFACode(req.MFAToken)
		}
		if err := s.verifyMFA(ctx, email, req.MFAToken, method); err != nil {
			if !errors.Is(err, errInvalidMFA) {
				s.logger.Error("devauth.login.mfa", "err", err)
			}
			return loginOutcome{kind: outcomeMFAToken, status: http.StatusUnauthorized,
				message: errInvalidMFA.Error(), mfaMethod: string(method)}
		}
	}

	if err := s.rate.ResetLogin(ctx, email); err != nil {
		s.logger.Warn("devauth.login.rate_reset", "err", err)
	}

	sid, tokens, err := s.createSession(ctx, u, portal)
	if err != nil {
		s.logger.Error("devauth.login.session", "err", err)
		return failure(http.StatusInternalServerError, "Server error during authentication.")
	}
	s.logger.Info("devauth.login.success", "user_id", u.ID, "portal", portal, "session_id", sid)

	return loginOutcome{
		kind:    outcomeSuccess,
		status:  http.StatusOK,
		message: "Login successful.",
		result: &authapi.LoginResult{
			User:    u.profile(portal),
			Tokens:  tokens,
			Session: &authapi.SessionInfo{ID: sid, ExpiresAt: s.now().Add(s.cfg.RefreshTTL)},
			MFA:     &authapi.MFAInfo{Required: required, Enabled: u.MFAEnabled, Verified: true},
		},
	}
}

func (s *Server) verifyCredentials(ctx context.Context, email, pw string) (*User, error) {
	u, err := s.loadUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errInvalidCredentials
	}
	ok, err := s.hasher.Verify(pw, u.PasswordHash)
	if err != nil || !ok {
		return nil, errInvalidCredentials
	}
	return u, nil
}

// verifyMFA checks a TOTP or backup code and records its use. TOTP counters cannot be
// replayed and backup codes are single use.
func (s *Server) verifyMFA(ctx context.Context, email, code string, method session.MFAMethod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.loadUser(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return errInvalidMFA
	}

	switch method {
	case session.MFAMethodTOTP:
		secret, err := totp.DecodeSecret(u.MFASecret)
		if err != nil {
			return fmt.Errorf("decode mfa secret: %w", err)
		}
		ok, counter, err := s.totp.Verify(secret, code, s.now())
		if err != nil {
			return err
		}
		if !ok || counter <= u.LastTOTPCounter {
			return errInvalidMFA
		}
		u.LastTOTPCounter = counter
	case session.MFAMethodBackup:
		idx := slices.Index(u.BackupCodes, strings.ToUpper(strings.TrimSpace(code)))
		if idx < 0 {
			return errInvalidMFA
		}
		u.BackupCodes = slices.Delete(u.BackupCodes, idx, idx+1)
	default:
		return errInvalidMFA
	}
	return s.saveUser(ctx, u)
}

// setupMFA stores a fresh secret and backup codes for a user who has not enabled MFA.
func (s *Server) setupMFA(ctx context.Context, email, pw string) (secret, uri string, codes []string, err error) {
	if _, err := s.verifyCredentials(ctx, email, pw); err != nil {
		return "", "", nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.loadUser(ctx, email)
	if err != nil {
		return "", "", nil, err
	}
	if u.MFAEnabled {
		return "", "", nil, errors.New("MFA is already enabled for this account")
	}

	_, secret, err = s.totp.GenerateSecret()
	if err != nil {
		return "", "", nil, err
	}
	codes, err = totp.BackupCodes(backupCodeCount)
	if err != nil {
		return "", "", nil, err
	}
	u.MFASecret = secret
	u.BackupCodes = codes
	u.LastTOTPCounter = 0
	if err := s.saveUser(ctx, u); err != nil {
		return "", "", nil, err
	}
	return secret, s.totp.ProvisionURI(secret, u.Email), slices.Clone(codes), nil
}

// enableMFA turns on MFA once the user proves the authenticator produces valid codes.
func (s *Server) enableMFA(ctx context.Context, email, pw, token string) (int, error) {
	if _, err := s.verifyCredentials(ctx, email, pw); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.loadUser(ctx, email)
	if err != nil {
		return 0, err
	}
	if u.MFAEnabled {
		return 0, errors.New("MFA is already enabled for this account")
	}
	if u.MFASecret == "" {
		return 0, errors.New("MFA is not configured. Please setup MFA first.")
	}
	secret, err := totp.DecodeSecret(u.MFASecret)
	if err != nil {
		return 0, err
	}
	ok, counter, err := s.totp.Verify(secret, token, s.now())
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New("Invalid TOTP token")
	}
	u.MFAEnabled = true
	u.LastTOTPCounter = counter
	if err := s.saveUser(ctx, u); err != nil {
		return 0, err
	}
	return len(u.BackupCodes), nil
}
