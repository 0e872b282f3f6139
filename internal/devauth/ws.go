package devauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	xrate "golang.org/x/time/rate"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/wsauth"
)

const (
	wsReadLimit    = 1 << 20
	wsWriteTimeout = 5 * time.Second
)

var mfaInstructions = []string{
	"1. Scan the QR code with your authenticator app",
	"2. Enter the 6-digit code from your app to verify setup",
	"3. Save your backup codes in a secure location",
	"4. Complete the setup by sending auth:mfa-enable",
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.OriginPatterns})
	if err != nil {
		s.logger.Info("devauth.ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
	conn.SetReadLimit(wsReadLimit)

	ctx := r.Context()
	ip := clientIP(r)
	limiter := xrate.NewLimiter(xrate.Limit(s.cfg.WSRate), s.cfg.WSBurst)

	for {
		var in wsauth.Envelope
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.logger.Info("devauth.ws.read.fail", "err", err)
			}
			return
		}
		s.wsFrames.Add(1)

		var out wsauth.Envelope
		if !limiter.Allow() {
			out = wsReply(wsauth.EventError, wsauth.Reply{Message: "Too many requests"})
		} else {
			out = s.dispatchWS(ctx, in, ip)
		}
		if s.dropWSReplies.Load() {
			continue
		}

		wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		err := wsjson.Write(wctx, conn, out)
		cancel()
		if err != nil {
			s.logger.Info("devauth.ws.write.fail", "err", err)
			return
		}
	}
}

func (s *Server) dispatchWS(ctx context.Context, in wsauth.Envelope, ip string) wsauth.Envelope {
	switch in.Event {
	case wsauth.EventLogin:
		var p wsauth.LoginPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return wsError("Email and password are required")
		}
		if p.PortalType == "" {
			p.PortalType = "admin"
		}
		return s.renderWSLogin(s.authenticate(ctx, authapi.LoginRequest{
			Email: p.Email, Password: p.Password, PortalType: p.PortalType,
		}, ip))

	case wsauth.EventMFAToken:
		var p wsauth.MFATokenPayload
		if err := json.Unmarshal(in.Data, &p); err != nil || p.MFAToken == "" {
			return wsError("MFA token is required")
		}
		if p.PortalType == "" {
			p.PortalType = "admin"
		}
		out := s.authenticate(ctx, authapi.LoginRequest{
			Email: p.Email, Password: p.Password, PortalType: p.PortalType,
			MFAToken: p.MFAToken, MFAMethod: p.MFAMethod,
		}, ip)
		if out.kind == outcomeMFAToken {
			return wsError(out.message)
		}
		return s.renderWSLogin(out)

	case wsauth.EventMFASetup:
		var p wsauth.MFASetupPayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return wsError(errInvalidCredentials.Error())
		}
		secret, uri, codes, err := s.setupMFA(ctx, p.Email, p.Password)
		if err != nil {
			return wsError(err.Error())
		}
		return wsReplyData(wsauth.EventMFASetupSuccess, "MFA setup initiated successfully", wsauth.MFASetup{
			Secret:       secret,
			BackupCodes:  codes,
			OTPAuthURL:   uri,
			Instructions: mfaInstructions,
		})

	case wsauth.EventMFAEnable:
		var p wsauth.MFAEnablePayload
		if err := json.Unmarshal(in.Data, &p); err != nil {
			return wsError(errInvalidCredentials.Error())
		}
		n, err := s.enableMFA(ctx, p.Email, p.Password, p.Token)
		if err != nil {
			return wsError(err.Error())
		}
		return wsReplyData(wsauth.EventMFAEnableSuccess, "MFA enabled successfully", wsauth.MFAEnabled{Enabled: true, BackupCodesCount: n})

	case wsauth.EventLogout:
		s.logoutCalls.Add(1)
		var p wsauth.LogoutPayload
		_ = json.Unmarshal(in.Data, &p)
		if err := s.revokeSession(ctx, p.AccessToken, p.RefreshToken); err != nil {
			s.logger.Error("devauth.ws.logout.fail", "err", err)
			return wsError("Failed to logout")
		}
		return wsReply(wsauth.EventLogoutSuccess, wsauth.Reply{Success: true, Message: "Logout successful"})
	}
	return wsError("Unsupported event")
}

func (s *Server) renderWSLogin(out loginOutcome) wsauth.Envelope {
	switch out.kind {
	case outcomeSuccess:
		return wsReplyData(wsauth.EventSuccess, out.message, wsauth.SuccessData{
			User:      out.result.User,
			Tokens:    out.result.Tokens,
			SessionID: out.result.Session.ID,
		})
	case outcomeMFASetup:
		return wsReply(wsauth.EventMFASetupRequired, wsauth.Reply{Message: out.message})
	case outcomeMFACompletion:
		return wsReply(wsauth.EventMFACompletionRequired, wsauth.Reply{Message: out.message})
	case outcomeMFAToken:
		return wsReply(wsauth.EventMFATokenRequired, wsauth.Reply{Message: out.message, MFAMethod: out.mfaMethod})
	}
	return wsError(out.message)
}

func wsError(message string) wsauth.Envelope {
	return wsReply(wsauth.EventError, wsauth.Reply{Message: message})
}

func wsReplyData(event, message string, data any) wsauth.Envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		return wsError("Server error")
	}
	return wsReply(event, wsauth.Reply{Success: true, Message: message, Data: raw})
}

func wsReply(event string, r wsauth.Reply) wsauth.Envelope {
	env, err := wsauth.NewEnvelope(event, r)
	if err != nil {
		return wsauth.Envelope{Event: wsauth.EventError}
	}
	return env
}
