package devauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/jwt"
)

const rotateRefreshScript = `
local cur = redis.call("HGET", KEYS[1], "refresh_hash")
if not cur then
  return 0
end
if cur ~= ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 2
end
redis.call("HSET", KEYS[1], "refresh_hash", ARGV[2], "last_seen", ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

const (
	rotateNotFound = 0
	rotateOK       = 1
	rotateReused   = 2
)

var (
	errSessionNotFound = errors.New("session not found")
	errRefreshReused   = errors.New("refresh token reuse detected")
)

type sessionRecord struct {
	ID         string
	Email      string
	PortalType string
}

func (s *Server) sessionKey(sid string) string {
	return s.cfg.KeyPrefix + "session:" + sid
}

// createSession stores a new session and returns its id and first token pair.
func (s *Server) createSession(ctx context.Context, u *User, portal string) (string, authapi.Tokens, error) {
	sid := ulid.Make()
	secret, err := newRefreshSecret()
	if err != nil {
		return "", authapi.Tokens{}, err
	}

	access, err := s.issueAccess(u, portal, sid.String())
	if err != nil {
		return "", authapi.Tokens{}, err
	}

	key := s.sessionKey(sid.String())
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key,
		"email", u.Email,
		"user_id", u.ID,
		"portal_type", portal,
		"refresh_hash", hashRefreshSecret(secret),
		"created_at", s.now().Unix(),
	)
	pipe.Expire(ctx, key, s.cfg.RefreshTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", authapi.Tokens{}, fmt.Errorf("create session: %w", err)
	}

	return sid.String(), authapi.Tokens{AccessToken: access, RefreshToken: encodeRefreshToken(sid, secret)}, nil
}

// rotateSession swaps the refresh secret of the session named by token. Presenting an
// already rotated token revokes the session.
func (s *Server) rotateSession(ctx context.Context, token string) (sessionRecord, authapi.Tokens, error) {
	sid, secret, err := decodeRefreshToken(token)
	if err != nil {
		return sessionRecord{}, authapi.Tokens{}, err
	}
	next, err := newRefreshSecret()
	if err != nil {
		return sessionRecord{}, authapi.Tokens{}, err
	}

	key := s.sessionKey(sid.String())
	code, err := rotateRefreshLua.Run(ctx, s.redis, []string{key},
		hashRefreshSecret(secret),
		hashRefreshSecret(next),
		s.cfg.RefreshTTL.Milliseconds(),
		s.now().Unix(),
	).Int()
	if err != nil {
		return sessionRecord{}, authapi.Tokens{}, fmt.Errorf("rotate session: %w", err)
	}
	switch code {
	case rotateNotFound:
		return sessionRecord{}, authapi.Tokens{}, errSessionNotFound
	case rotateReused:
		s.logger.Warn("devauth.refresh.reuse", "session_id", sid.String())
		return sessionRecord{}, authapi.Tokens{}, errRefreshReused
	}

	rec, err := s.loadSession(ctx, sid.String())
	if err != nil {
		return sessionRecord{}, authapi.Tokens{}, err
	}
	u, err := s.loadUser(ctx, rec.Email)
	if err != nil {
		return sessionRecord{}, authapi.Tokens{}, err
	}
	if u == nil || !u.Active {
		_ = s.redis.Del(ctx, key).Err()
		return sessionRecord{}, authapi.Tokens{}, errAccountInactive
	}

	access, err := s.issueAccess(u, rec.PortalType, rec.ID)
	if err != nil {
		return sessionRecord{}, authapi.Tokens{}, err
	}
	return rec, authapi.Tokens{AccessToken: access, RefreshToken: encodeRefreshToken(sid, next)}, nil
}

func (s *Server) loadSession(ctx context.Context, sid string) (sessionRecord, error) {
	vals, err := s.redis.HMGet(ctx, s.sessionKey(sid), "email", "portal_type").Result()
	if err != nil {
		return sessionRecord{}, fmt.Errorf("load session: %w", err)
	}
	email, _ := vals[0].(string)
	portal, _ := vals[1].(string)
	if email == "" {
		return sessionRecord{}, errSessionNotFound
	}
	return sessionRecord{ID: sid, Email: email, PortalType: portal}, nil
}

// revokeSession deletes the session named by either token. Unknown tokens are ignored.
func (s *Server) revokeSession(ctx context.Context, access, refresh string) error {
	var sid string
	if refresh != "" {
		if id, _, err := decodeRefreshToken(refresh); err == nil {
			sid = id.String()
		}
	}
	if sid == "" && access != "" {
		if claims, err := s.jwt.ParseAccess(access); err == nil {
			sid = claims.SessionID
		}
	}
	if sid == "" {
		return nil
	}
	return s.redis.Del(ctx, s.sessionKey(sid)).Err()
}

// SessionActive reports whether the session named by claims still exists, so a logout
// takes effect before the access token expires.
func (s *Server) SessionActive(ctx context.Context, claims *jwt.AccessClaims) (bool, error) {
	if claims == nil || claims.SessionID == "" {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, s.sessionKey(claims.SessionID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Server) issueAccess(u *User, portal, sid string) (string, error) {
	return s.jwt.CreateAccessWithTTL(jwt.Subject{
		UserID:     u.ID,
		VendorID:   u.VendorID,
		PortalType: portal,
		SessionID:  sid,
	}, time.Duration(s.accessTTL.Load()))
}
