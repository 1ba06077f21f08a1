// Package dialout places outbound calls for single requests, uploaded batches and redials.
package dialout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"voicebot/internal/audit"
	"voicebot/internal/calls"
	"voicebot/internal/contacts"
	"voicebot/pkg/logger"
)

// Dialer asks the carrier to place a call and returns its call SID.
type Dialer interface {
	Dial(ctx context.Context, to, from string) (string, error)
}

// Store is the slice of the call record store dial-out writes to.
type Store interface {
	Create(ctx context.Context, r calls.CallRecord) error
	Get(ctx context.Context, id string) (calls.CallRecord, error)
}

// Events receives best-effort call events.
type Events interface {
	Record(ctx context.Context, callSID string, typ audit.EventType, message string, metadata map[string]any)
}

type OutcomeStatus string

const (
	OutcomeInitiated OutcomeStatus = "initiated"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// Outcome reports what happened for one contact.
type Outcome struct {
	Name    string        `json:"name"`
	Phone   *string       `json:"phoneno"`
	Status  OutcomeStatus `json:"status"`
	CallSID string        `json:"call_sid,omitempty"`
	Error   string        `json:"error,omitempty"`

	// RecordID is set when a call record was persisted.
	RecordID string `json:"-"`
}

const reasonNoPhone = "No phone number"

var (
	ErrNoFromNumber  = errors.New("dialout: no sender number configured")
	ErrNoPhoneNumber = errors.New("dialout: no phone number")
)

type Config struct {
	FromNumber  string
	CountryCode string
}

type Service struct {
	dialer Dialer
	store  Store
	events Events
	cfg    Config
	newID  func() string
}

func NewService(d Dialer, s Store, ev Events, cfg Config) *Service {
	if cfg.CountryCode == "" {
		cfg.CountryCode = "+91"
	}
	return &Service{dialer: d, store: s, events: ev, cfg: cfg, newID: uuid.NewString}
}

// NormalizePhone trims the number and prepends countryCode unless it already starts with '+'.
func NormalizePhone(raw, countryCode string) string {
	p := strings.TrimSpace(raw)
	if p == "" || strings.HasPrefix(p, "+") {
		return p
	}
	if !strings.HasPrefix(countryCode, "+") {
		countryCode = "+" + countryCode
	}
	return countryCode + p
}

// Ready reports whether batch dialing has a sender number.
func (s *Service) Ready() error {
	if s.cfg.FromNumber == "" {
		return ErrNoFromNumber
	}
	return nil
}

// Single dials one number for POST /start. from overrides the configured sender.
func (s *Service) Single(ctx context.Context, to, from string) (Outcome, error) {
	if from == "" {
		from = s.cfg.FromNumber
	}
	if from == "" {
		return Outcome{}, ErrNoFromNumber
	}
	if strings.TrimSpace(to) == "" {
		return Outcome{}, ErrNoPhoneNumber
	}
	o := s.dial(ctx, contacts.Contact{Phone: &to}, from)
	if o.Status == OutcomeFailed {
		return o, errors.New(o.Error)
	}
	return o, nil
}

// Batch dials every contact in order. One failure never stops the batch.
func (s *Service) Batch(ctx context.Context, list []contacts.Contact) []Outcome {
	out := make([]Outcome, 0, len(list))
	for _, c := range list {
		if c.Phone == nil || strings.TrimSpace(*c.Phone) == "" {
			out = append(out, Outcome{Name: c.Name, Phone: c.Phone, Status: OutcomeSkipped, Error: reasonNoPhone})
			continue
		}
		if s.cfg.FromNumber == "" {
			out = append(out, Outcome{Name: c.Name, Phone: c.Phone, Status: OutcomeFailed, Error: ErrNoFromNumber.Error()})
			continue
		}
		out = append(out, s.dial(ctx, c, s.cfg.FromNumber))
	}
	return out
}

// Redial calls an existing record's number again. The original record is left untouched;
// a new record is created for the new carrier call.
func (s *Service) Redial(ctx context.Context, id string) (Outcome, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if s.cfg.FromNumber == "" {
		return Outcome{}, ErrNoFromNumber
	}
	phone := rec.Phone
	o := s.dial(ctx, contacts.Contact{Name: rec.Name, Phone: &phone, Email: rec.Email}, s.cfg.FromNumber)
	if o.Status == OutcomeFailed {
		return o, errors.New(o.Error)
	}
	s.event(ctx, o.CallSID, "redial", map[string]any{"redial_of": rec.ID, "previous_call_sid": rec.CallSID})
	return o, nil
}

// pendingSID stands in for the carrier SID while a record is checked before dialing.
const pendingSID = "pending"

func (s *Service) dial(ctx context.Context, c contacts.Contact, from string) Outcome {
	to := NormalizePhone(*c.Phone, s.cfg.CountryCode)
	o := Outcome{Name: c.Name, Phone: &to}

	rec := calls.CallRecord{
		ID:      s.newID(),
		Name:    c.Name,
		Email:   c.Email,
		Phone:   to,
		CallSID: pendingSID,
		Status:  calls.CallStatusRinging,
	}
	if err := rec.Validate(); err != nil {
		logger.From(ctx).Warn("contact rejected before dialing", "to", to, "err", err)
		o.Status = OutcomeFailed
		o.Error = err.Error()
		return o
	}

	sid, err := s.dialer.Dial(ctx, to, from)
	if err != nil {
		logger.From(ctx).Warn("dial failed", "to", to, "err", err)
		o.Status = OutcomeFailed
		o.Error = err.Error()
		return o
	}
	o.CallSID = sid
	s.event(ctx, sid, "dialed", map[string]any{"to": to, "from": from})

	rec.CallSID = sid
	if err := s.store.Create(ctx, rec); err != nil {
		// The carrier call exists; status callbacks for it will find no record.
		logger.From(ctx).Error("call record not persisted", "call_sid", sid, "err", err)
		o.Status = OutcomeFailed
		o.Error = "call placed but record not saved: " + err.Error()
		return o
	}
	o.Status = OutcomeInitiated
	o.RecordID = rec.ID
	return o
}

func (s *Service) event(ctx context.Context, callSID, message string, md map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Record(ctx, callSID, audit.EventTypeDial, message, md)
}

// ScheduleTime parses an operator-supplied callback time.
func ScheduleTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("time_to_call must be RFC3339: %w", err)
	}
	return t.UTC(), nil
}
