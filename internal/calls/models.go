package calls

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// CallRecord is the persisted state of one telephony call, keyed by the carrier call SID.
//
// JSON field names are consumed by the operator dashboard as-is; do not rename them.
type CallRecord struct {
	ID      string `json:"_id" db:"id"`
	Name    string `json:"name" db:"name"`
	Email   string `json:"email" db:"email" validate:"omitempty,email"`
	Phone   string `json:"phonenumber" db:"phone" validate:"required,e164"`
	CallSID string `json:"call_sid" db:"call_sid" validate:"required"`

	Status CallStatus `json:"status" db:"status" validate:"required"`

	Transcript      *string  `json:"Transcript,omitempty" db:"transcript"`
	DurationSeconds *int     `json:"Duration,omitempty" db:"duration_seconds"`
	QualityScore    *float64 `json:"Quality_Score,omitempty" db:"quality_score"`
	Analysis        *string  `json:"Analysis,omitempty" db:"analysis"`
	Intent          *string  `json:"Intent,omitempty" db:"intent"`
	Outcome         *string  `json:"Outcome,omitempty" db:"outcome"`
	CallbackTime    *string  `json:"Callback_Time,omitempty" db:"callback_time"`
	AppointmentTime *string  `json:"Appointment_Time,omitempty" db:"appointment_time"`
	AnalysisVersion *string  `json:"analysis_version,omitempty" db:"analysis_version"`
	RecordingURL    *string  `json:"Recording_URL,omitempty" db:"recording_url"`

	CallerCountry *string `json:"CallerCountry,omitempty" db:"caller_country"`
	CallerZip     *string `json:"CallerZip,omitempty" db:"caller_zip"`
	ToCountry     *string `json:"ToCountry,omitempty" db:"to_country"`
	FromCountry   *string `json:"FromCountry,omitempty" db:"from_country"`

	// TimeToCall is set only while a callback is scheduled.
	TimeToCall *time.Time `json:"time_to_call,omitempty" db:"time_to_call"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

type CallStatus string

// Status spellings match the carrier's CallStatus values so callbacks map 1:1.
const (
	CallStatusPending    CallStatus = "pending"
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusConnected  CallStatus = "connected"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusCanceled   CallStatus = "canceled"
	CallStatusScheduled  CallStatus = "scheduled"
)

var allStatuses = []CallStatus{
	CallStatusPending,
	CallStatusQueued,
	CallStatusRinging,
	CallStatusConnected,
	CallStatusInProgress,
	CallStatusCompleted,
	CallStatusFailed,
	CallStatusNoAnswer,
	CallStatusBusy,
	CallStatusCanceled,
	CallStatusScheduled,
}

// ParseStatus accepts any casing and the underscore variants some carriers emit.
func ParseStatus(s string) (CallStatus, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	for _, st := range allStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s CallStatus) Valid() bool {
	for _, st := range allStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// StickyAgainstCarrier reports whether carrier status callbacks must leave this status alone.
func (s CallStatus) StickyAgainstCarrier() bool {
	return s == CallStatusScheduled
}

// CarrierUpdate carries the fields a status callback may set.
type CarrierUpdate struct {
	Status          CallStatus
	DurationSeconds *int
	CallerCountry   string
	CallerZip       string
	ToCountry       string
	FromCountry     string
}

// Completion is the single post-call write: transcript, analysis and final status together.
type Completion struct {
	Transcript      string
	Summary         string
	QualityScore    float64
	Intent          string
	Outcome         string
	CallbackTime    string
	AppointmentTime string
	AnalysisVersion string
	Status          CallStatus
}

// ListFilter narrows List results. Zero values mean no filter.
type ListFilter struct {
	Status CallStatus
	Email  string
	From   time.Time
	To     time.Time
	Limit  int
}

var (
	ErrNotFound      = errors.New("calls: record not found")
	ErrInvalidRecord = errors.New("calls: invalid record")
	ErrDuplicateSID  = errors.New("calls: call_sid already exists")
)

var validate = validator.New()

// Validate enforces the record invariants shared by every writer.
func (r CallRecord) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, r.Status)
	}
	if r.QualityScore != nil && (*r.QualityScore < 0 || *r.QualityScore > 100) {
		return fmt.Errorf("%w: quality score %v out of range", ErrInvalidRecord, *r.QualityScore)
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
