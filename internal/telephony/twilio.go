// Package telephony wraps Twilio for outbound calls, SMS and browser-calling
// tokens.
//
// In debug mode no request leaves the process: calls and messages are logged
// and a synthetic call id is returned.
package telephony

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client/jwt"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	apperrors "grievance/internal/errors"
	"grievance/internal/logging"
)

// Identity used by the dashboard's browser phone.
const (
	BrowserIdentity = "citizen"
	TokenTTL        = time.Hour
)

// Credentials are the Twilio settings the adapter needs.
type Credentials struct {
	AccountSID   string
	AuthToken    string
	APIKeySID    string
	APIKeySecret string
	FromNumber   string
}

// Twilio implements calls, SMS and token minting.
type Twilio struct {
	rest  *twilio.RestClient
	creds Credentials
	debug bool
	log   logging.Logger
}

// New creates a Twilio adapter.
func New(creds Credentials, debug bool, log logging.Logger) *Twilio {
	return &Twilio{
		rest: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: creds.AccountSID,
			Password: creds.AuthToken,
		}),
		creds: creds,
		debug: debug,
		log:   log.With(logging.F("component", "twilio")),
	}
}

// CallWithScript places a call that plays an inline TwiML document.
func (t *Twilio) CallWithScript(_ context.Context, to, twimlDoc string) (string, error) {
	params := &twilioapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(t.creds.FromNumber)
	params.SetTwiml(twimlDoc)
	return t.createCall(to, params)
}

// CallWithURL places a call whose TwiML is fetched from url.
func (t *Twilio) CallWithURL(_ context.Context, to, url string) (string, error) {
	params := &twilioapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(t.creds.FromNumber)
	params.SetUrl(url)
	params.SetMethod("GET")
	return t.createCall(to, params)
}

func (t *Twilio) createCall(to string, params *twilioapi.CreateCallParams) (string, error) {
	if t.debug {
		sid := "CA-debug-" + uuid.NewString()
		t.log.Info("debug mode: call not placed", logging.F("to", to), logging.F("call_sid", sid))
		return sid, nil
	}
	resp, err := t.rest.Api.CreateCall(params)
	if err != nil {
		return "", apperrors.NewCollaboratorError("twilio", "create call", err)
	}
	if resp.Sid == nil {
		return "", apperrors.NewCollaboratorError("twilio", "create call returned no sid", nil)
	}
	t.log.Info("call initiated", logging.F("to", to), logging.F("call_sid", *resp.Sid))
	return *resp.Sid, nil
}

// SendSMS sends body to an already normalized E.164 number.
func (t *Twilio) SendSMS(_ context.Context, to, body string) error {
	if t.debug {
		t.log.Info("debug mode: sms not sent", logging.F("to", to))
		return nil
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.creds.FromNumber)
	params.SetBody(body)
	if _, err := t.rest.Api.CreateMessage(params); err != nil {
		return apperrors.NewCollaboratorError("twilio", "send sms", err)
	}
	return nil
}

// VoiceToken mints a browser-calling access token that may receive calls.
func (t *Twilio) VoiceToken(identity string) (string, error) {
	token := jwt.CreateAccessToken(jwt.AccessTokenParams{
		AccountSid:    t.creds.AccountSID,
		SigningKeySid: t.creds.APIKeySID,
		Secret:        t.creds.APIKeySecret,
		Identity:      identity,
		Ttl:           TokenTTL.Seconds(),
	})
	grant := &jwt.VoiceGrant{}
	grant.Incoming.Allow = true
	token.AddGrant(grant)

	signed, err := token.ToJwt()
	if err != nil {
		return "", apperrors.NewCollaboratorError("twilio", "sign access token", err)
	}
	return signed, nil
}
