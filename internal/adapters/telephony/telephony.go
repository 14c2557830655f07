// Package telephony places outbound PSTN calls via Twilio, pointing each
// call at the configured voice webhook URL. It only dials: nothing in this
// package serves that webhook or carries call audio into a session.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/orbtalk/orb/internal/errorsx"
	"github.com/orbtalk/orb/internal/resilience"
)

// Config is Twilio account and webhook configuration.
type Config struct {
	AccountSID string
	AuthToken  string
	PublicURL  string
	VoicePath  string
}

func (c Config) withDefaults() Config {
	if c.VoicePath == "" {
		c.VoicePath = "/twilio/voice"
	}
	return c
}

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// DialOptions carries optional outbound dial settings.
type DialOptions struct {
	SendDigits string
}

// Dialer places outbound calls to the configured voice webhook; it does not
// attach the callee to a session.
type Dialer struct {
	cfg   Config
	retry resilience.RetryPolicy

	client callCreator
}

// NewDialer constructs a Dialer. Outbound call creation retries transient
// Twilio API failures twice with a 200ms backoff before giving up.
func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg.withDefaults(), retry: resilience.NewRetryPolicy(2, 200*time.Millisecond)}
}

// Dial places an outbound call, returning the provider call SID that the
// eventual webhook callback will use to bind the call to a session.
func (d *Dialer) Dial(ctx context.Context, to, from string, opts DialOptions) (string, error) {
	_ = ctx
	if to == "" || from == "" {
		return "", errorsx.Wrap(errors.New("telephony: to/from required"), errorsx.ReasonTelephonyDial)
	}
	if d.cfg.AccountSID == "" || d.cfg.AuthToken == "" {
		return "", errorsx.Wrap(errors.New("telephony: missing twilio credentials"), errorsx.ReasonTelephonyDial)
	}

	client := d.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: d.cfg.AccountSID,
			Password: d.cfg.AuthToken,
		})
		client = rest.Api
	}

	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(d.voiceWebhookURL())
	if strings.TrimSpace(opts.SendDigits) != "" {
		params.SetSendDigits(opts.SendDigits)
	}

	var resp *api.ApiV2010Call
	err := d.retry.Do(func() error {
		var callErr error
		resp, callErr = client.CreateCall(params)
		return callErr
	})
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTelephonyDial)
	}
	if resp == nil || resp.Sid == nil {
		return "", errorsx.Wrap(fmt.Errorf("telephony: missing call sid"), errorsx.ReasonTelephonyDial)
	}
	return *resp.Sid, nil
}

func (d *Dialer) voiceWebhookURL() string {
	if d.cfg.PublicURL != "" {
		return "https://" + strings.TrimSuffix(d.cfg.PublicURL, "/") + d.cfg.VoicePath
	}
	return "http://localhost:8080" + d.cfg.VoicePath
}
