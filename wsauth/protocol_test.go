package wsauth

import (
	"encoding/json"
	"testing"

	"github.com/MrEthical07/goSession/session"
)

func fixedID() string { return "corr-1" }

func TestDecodeServerEvents(t *testing.T) {
	cases := []struct {
		raw  string
		want func(Event) bool
	}{
		{`{"event":"auth:mfa-setup-required","data":{"success":false,"message":"setup first"}}`, func(ev Event) bool {
			e, ok := ev.(MFARequired)
			return ok && e.Challenge.Kind == session.ChallengeSetupRequired && e.Challenge.CorrelationID == "corr-1"
		}},
		{`{"event":"auth:mfa-completion-required","data":{"success":false}}`, func(ev Event) bool {
			e, ok := ev.(MFARequired)
			return ok && e.Challenge.Kind == session.ChallengeCompletionRequired
		}},
		{`{"event":"auth:mfa-token-required","data":{"success":false,"mfaMethod":"totp"}}`, func(ev Event) bool {
			e, ok := ev.(MFARequired)
			return ok && e.Challenge.Method == session.MFAMethodTOTP
		}},
		{`{"event":"auth:mfa-error","data":{"success":false,"message":"bad code"}}`, func(ev Event) bool {
			e, ok := ev.(AuthFailed)
			return ok && e.Message == "bad code"
		}},
		{`{"event":"auth:success","data":{"success":true,"data":{"user":{"id":"u1"},"tokens":{"accessToken":"a","refreshToken":"r"}}}}`, func(ev Event) bool {
			e, ok := ev.(AuthSucceeded)
			return ok && e.User.ID == "u1" && e.Pair.Complete()
		}},
		{`{"event":"auth:mfa-setup-success","data":{"success":true,"data":{"secret":"JBSWY3DP","backupCodes":["a","b"],"otpauthUrl":"otpauth://totp/x"}}}`, func(ev Event) bool {
			e, ok := ev.(MFASetupReady)
			return ok && e.Setup.Secret == "JBSWY3DP" && len(e.Setup.BackupCodes) == 2
		}},
		{`{"event":"auth:mfa-enable-success","data":{"success":true,"data":{"enabled":true,"backupCodesCount":10}}}`, func(ev Event) bool {
			e, ok := ev.(MFAEnableDone)
			return ok && e.Enabled.Enabled && e.Enabled.BackupCodesCount == 10
		}},
		{`{"event":"auth:logout-success","data":{"success":true}}`, func(ev Event) bool {
			_, ok := ev.(LoggedOut)
			return ok
		}},
	}

	for _, tc := range cases {
		var env Envelope
		if err := json.Unmarshal([]byte(tc.raw), &env); err != nil {
			t.Fatalf("bad fixture %s: %v", tc.raw, err)
		}
		ev, err := decodeServerEvent(env, fixedID)
		if err != nil {
			t.Fatalf("decode %s: %v", env.Event, err)
		}
		if !tc.want(ev) {
			t.Fatalf("decode %s: unexpected event %#v", env.Event, ev)
		}
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	if _, err := decodeServerEvent(Envelope{Event: "chat:message"}, fixedID); err == nil {
		t.Fatal("expected unknown event to be rejected")
	}
}

func TestDecodeSuccessWithoutDataIsFailure(t *testing.T) {
	ev, err := decodeServerEvent(Envelope{Event: EventSuccess, Data: []byte(`{"success":true}`)}, fixedID)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := ev.(AuthFailed); !ok {
		t.Fatalf("expected AuthFailed, got %#v", ev)
	}
}
