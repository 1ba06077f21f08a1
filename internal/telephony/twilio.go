package telephony

import (
	"context"
	"errors"
	"fmt"

	twiliocs "github.com/agentplexus/omnivoice-twilio/callsystem"
	"github.com/agentplexus/omnivoice/callsystem"

	"voicebot/internal/config"
)

// TwilioDialer places outbound calls through Twilio. Answered calls are bridged
// to the media stream URL with inline TwiML.
type TwilioDialer struct {
	cs             CallSystem
	statusCallback string
}

func NewTwilioCallSystem(cfg config.Config) (*twiliocs.Provider, error) {
	return twiliocs.New(
		twiliocs.WithAccountSID(cfg.Twilio.AccountSID),
		twiliocs.WithAuthToken(cfg.Twilio.AuthToken),
		twiliocs.WithPhoneNumber(cfg.Twilio.FromNumber),
		twiliocs.WithWebhookURL(cfg.StreamURL()),
	)
}

func NewTwilioDialer(cs CallSystem, statusCallbackURL string) *TwilioDialer {
	return &TwilioDialer{cs: cs, statusCallback: statusCallbackURL}
}

func (d *TwilioDialer) Dial(ctx context.Context, to, from string) (string, error) {
	if d.cs == nil {
		return "", errors.New("telephony: call system not configured")
	}
	opts := []callsystem.CallOption{
		func(o *callsystem.CallOptions) { o.From = from },
	}
	if d.statusCallback != "" {
		opts = append(opts, func(o *callsystem.CallOptions) { o.StatusCallback = d.statusCallback })
	}
	call, err := d.cs.MakeCall(ctx, to, opts...)
	if err != nil {
		return "", fmt.Errorf("telephony: dial %s: %w", to, err)
	}
	return call.ID(), nil
}

// ForwardStatus keeps the call system's in-memory call table in step with callbacks.
func (d *TwilioDialer) ForwardStatus(callSID, status string) {
	if d.cs != nil {
		d.cs.HandleStatusCallback(callSID, status)
	}
}
