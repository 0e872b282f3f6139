package wsauth

import (
	"encoding/json"
	"fmt"

	"github.com/MrEthical07/goSession/authapi"
	"github.com/MrEthical07/goSession/session"
)

// Client to server events.
const (
	EventLogin     = "auth:login"
	EventMFAToken  = "auth:mfa-token"
	EventMFASetup  = "auth:mfa-setup"
	EventMFAEnable = "auth:mfa-enable"
	EventLogout    = "auth:logout"
)

// Server to client events.
const (
	EventSuccess               = "auth:success"
	EventError                 = "auth:error"
	EventMFAError              = "auth:mfa-error"
	EventMFASetupRequired      = "auth:mfa-setup-required"
	EventMFACompletionRequired = "auth:mfa-completion-required"
	EventMFATokenRequired      = "auth:mfa-token-required"
	EventMFASetupSuccess       = "auth:mfa-setup-success"
	EventMFAEnableSuccess      = "auth:mfa-enable-success"
	EventLogoutSuccess         = "auth:logout-success"
)

// Envelope is one text frame: {"event": ..., "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data under event.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

type LoginPayload struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	PortalType string `json:"portalType,omitempty"`
}

type MFATokenPayload struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	MFAToken   string `json:"mfaToken"`
	MFAMethod  string `json:"mfaMethod"`
	PortalType string `json:"portalType,omitempty"`
}

type MFASetupPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type MFAEnablePayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

type LogoutPayload struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Reply is the body every server event carries.
type Reply struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	MFAMethod string          `json:"mfaMethod,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SuccessData is the data of auth:success.
type SuccessData struct {
	User      authapi.User   `json:"user"`
	Tokens    authapi.Tokens `json:"tokens"`
	SessionID string         `json:"sessionId,omitempty"`
}

// MFASetup is the data of auth:mfa-setup-success.
type MFASetup struct {
	Secret       string   `json:"secret"`
	QRCode       string   `json:"qrCode,omitempty"`
	BackupCodes  []string `json:"backupCodes"`
	OTPAuthURL   string   `json:"otpauthUrl"`
	Instructions []string `json:"instructions,omitempty"`
}

// MFAEnabled is the data of auth:mfa-enable-success.
type MFAEnabled struct {
	Enabled          bool `json:"enabled"`
	BackupCodesCount int  `json:"backupCodesCount"`
}

// decodeServerEvent turns a frame into a machine event. correlationID tags MFA challenges.
func decodeServerEvent(env Envelope, correlationID func() string) (Event, error) {
	var reply Reply
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &reply); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
	}

	switch env.Event {
	case EventSuccess:
		var data SuccessData
		if err := json.Unmarshal(reply.Data, &data); err != nil {
			return AuthFailed{Event: env.Event, Message: "malformed auth:success payload"}, nil
		}
		return AuthSucceeded{User: data.User, Pair: data.Tokens.Pair(), SessionID: data.SessionID}, nil

	case EventError, EventMFAError:
		return AuthFailed{Event: env.Event, Message: reply.Message}, nil

	case EventMFASetupRequired, EventMFACompletionRequired, EventMFATokenRequired:
		kind := session.ChallengeTokenRequired
		switch env.Event {
		case EventMFASetupRequired:
			kind = session.ChallengeSetupRequired
		case EventMFACompletionRequired:
			kind = session.ChallengeCompletionRequired
		}
		return MFARequired{Challenge: session.MFAChallenge{
			Required:      true,
			Kind:          kind,
			Method:        session.MFAMethod(reply.MFAMethod),
			CorrelationID: correlationID(),
			Message:       reply.Message,
		}}, nil

	case EventMFASetupSuccess:
		var setup MFASetup
		if err := json.Unmarshal(reply.Data, &setup); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return MFASetupReady{Setup: setup}, nil

	case EventMFAEnableSuccess:
		var enabled MFAEnabled
		if err := json.Unmarshal(reply.Data, &enabled); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return MFAEnableDone{Enabled: enabled}, nil

	case EventLogoutSuccess:
		return LoggedOut{}, nil
	}
	return nil, fmt.Errorf("unsupported server event %q", env.Event)
}
