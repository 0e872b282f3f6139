package devauth

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/middleware"
)

const maxBodyBytes = 64 << 10

type reply struct {
	Success               bool   `json:"success"`
	Message               string `json:"message,omitempty"`
	Data                  any    `json:"data,omitempty"`
	RequiresMFASetup      bool   `json:"requiresMFASetup,omitempty"`
	RequiresMFACompletion bool   `json:"requiresMFACompletion,omitempty"`
	RequiresMFA           bool   `json:"requiresMFA,omitempty"`
	MFAMethod             string `json:"mfaMethod,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)

	var req authapi.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, reply{Message: "Invalid request body."})
		return
	}

	out := s.authenticate(r.Context(), req, clientIP(r))
	body := reply{Message: out.message, MFAMethod: out.mfaMethod}
	switch out.kind {
	case outcomeSuccess:
		body.Success = true
		body.Data = out.result
	case outcomeMFASetup:
		body.RequiresMFASetup = true
	case outcomeMFACompletion:
		body.RequiresMFACompletion = true
	case outcomeMFAToken:
		body.RequiresMFA = true
	}
	writeJSON(w, out.status, body)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	if d := time.Duration(s.refreshDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil || body.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, reply{Message: "Refresh token is required."})
		return
	}
	if s.failRefresh.Load() {
		writeJSON(w, http.StatusUnauthorized, reply{Message: "Invalid refresh token."})
		return
	}

	if sid, _, err := decodeRefreshToken(body.RefreshToken); err == nil {
		if err := s.rate.AllowRefresh(r.Context(), sid.String()); errors.Is(err, rate.ErrRateLimited) {
			writeJSON(w, http.StatusTooManyRequests, reply{Message: "Too many refresh attempts."})
			return
		}
	}

	_, tokens, err := s.rotateSession(r.Context(), body.RefreshToken)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reply{Success: true, Data: tokens})
	case errors.Is(err, errAccountInactive):
		writeJSON(w, http.StatusUnauthorized, reply{Message: "Account is deactivated."})
	case errors.Is(err, errSessionNotFound), errors.Is(err, errRefreshReused), errors.Is(err, errMalformedRefresh):
		writeJSON(w, http.StatusUnauthorized, reply{Message: "Invalid refresh token."})
	default:
		s.logger.Error("devauth.refresh.fail", "err", err)
		writeJSON(w, http.StatusInternalServerError, reply{Message: "Server error during refresh."})
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.logoutCalls.Add(1)

	var body struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	if body.AccessToken == "" {
		if token, ok := bearer(r); ok {
			body.AccessToken = token
		}
	}
	if err := s.revokeSession(r.Context(), body.AccessToken, body.RefreshToken); err != nil {
		s.logger.Error("devauth.logout.fail", "err", err)
		writeJSON(w, http.StatusInternalServerError, reply{Message: "Server error during logout."})
		return
	}
	writeJSON(w, http.StatusOK, reply{Success: true, Message: "Logout successful."})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.meCalls.Add(1)

	claims, _ := middleware.ClaimsFromContext(r.Context())
	rec, err := s.loadSession(r.Context(), claims.SessionID)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, reply{Message: "Invalid token."})
		return
	}
	u, err := s.loadUser(r.Context(), rec.Email)
	if err != nil || u == nil {
		writeJSON(w, http.StatusUnauthorized, reply{Message: "Invalid token. User not found."})
		return
	}
	if !u.Active {
		writeJSON(w, http.StatusUnauthorized, reply{Message: "Account is deactivated."})
		return
	}
	writeJSON(w, http.StatusOK, reply{Success: true, Data: map[string]any{"user": u.profile(rec.PortalType)}})
}

func bearer(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	v := r.Header.Get("Authorization")
	if len(v) <= len(prefix) || v[:len(prefix)] != prefix {
		return "", false
	}
	return v[len(prefix):], true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
