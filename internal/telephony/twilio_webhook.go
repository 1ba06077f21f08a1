package telephony

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"voicebot/internal/calls"
)

// TwilioVoiceForm captures the subset of voice webhook fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
type TwilioVoiceForm struct {
	CallSid     string
	AccountSid  string
	From        string
	To          string
	Direction   string
	CallStatus  string
	CallerName  string
	FromCountry string
	ToCountry   string
}

func ParseTwilioVoice(r *http.Request) (TwilioVoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioVoiceForm{}, err
	}
	return TwilioVoiceForm{
		CallSid:     r.PostFormValue("CallSid"),
		AccountSid:  r.PostFormValue("AccountSid"),
		From:        normalizePhone(r.PostFormValue("From")),
		To:          normalizePhone(r.PostFormValue("To")),
		Direction:   r.PostFormValue("Direction"),
		CallStatus:  r.PostFormValue("CallStatus"),
		CallerName:  strings.TrimSpace(r.PostFormValue("CallerName")),
		FromCountry: r.PostFormValue("FromCountry"),
		ToCountry:   r.PostFormValue("ToCountry"),
	}, nil
}

// TwilioStatusForm is the status callback payload.
type TwilioStatusForm struct {
	CallSid       string
	CallStatus    string
	CallDuration  string
	CallerCountry string
	CallerZip     string
	FromCountry   string
	ToCountry     string
}

func ParseTwilioStatus(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	return TwilioStatusForm{
		CallSid:       strings.TrimSpace(r.PostFormValue("CallSid")),
		CallStatus:    r.PostFormValue("CallStatus"),
		CallDuration:  r.PostFormValue("CallDuration"),
		CallerCountry: r.PostFormValue("CallerCountry"),
		CallerZip:     r.PostFormValue("CallerZip"),
		FromCountry:   r.PostFormValue("FromCountry"),
		ToCountry:     r.PostFormValue("ToCountry"),
	}, nil
}

// CarrierUpdate maps the callback onto the record fields it may change.
// An unknown status is an error; an unparseable duration is dropped.
func (f TwilioStatusForm) CarrierUpdate() (calls.CarrierUpdate, error) {
	st, ok := calls.ParseStatus(f.CallStatus)
	if !ok {
		return calls.CarrierUpdate{}, fmt.Errorf("telephony: unknown call status %q", f.CallStatus)
	}
	u := calls.CarrierUpdate{
		Status:        st,
		CallerCountry: f.CallerCountry,
		CallerZip:     f.CallerZip,
		ToCountry:     f.ToCountry,
		FromCountry:   f.FromCountry,
	}
	if d, err := strconv.Atoi(strings.TrimSpace(f.CallDuration)); err == nil && d >= 0 {
		u.DurationSeconds = &d
	}
	return u, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}
