package calls

import (
	"context"
	"time"
)

// Repository is the Call Record Store contract.
//
// Writers are identified by call SID except for operator edits, which address the record id.
// Methods that target a missing record return ErrNotFound; callers decide whether that is fatal.
type Repository interface {
	Create(ctx context.Context, r CallRecord) error
	Get(ctx context.Context, id string) (CallRecord, error)
	FindByCallSID(ctx context.Context, callSID string) (CallRecord, error)
	List(ctx context.Context, f ListFilter) ([]CallRecord, error)

	// ApplyCarrierUpdate records a status callback. Sticky statuses are preserved.
	ApplyCarrierUpdate(ctx context.Context, callSID string, u CarrierUpdate) error

	// ScheduleCallback sets status scheduled and time_to_call in one write.
	ScheduleCallback(ctx context.Context, callSID string, at time.Time) error

	// SetTimeToCall is the operator edit of a record's callback time.
	SetTimeToCall(ctx context.Context, id string, at time.Time) error

	// Complete writes transcript, analysis fields and status in one update.
	Complete(ctx context.Context, callSID string, c Completion) error

	SetRecordingURL(ctx context.Context, callSID, url string) error

	// ListDueCallbacks returns scheduled records whose time_to_call is at or before now.
	ListDueCallbacks(ctx context.Context, now time.Time, limit int) ([]CallRecord, error)

	// ClearCallback marks a scheduled record as handled once its callback was dialed.
	ClearCallback(ctx context.Context, id string) error
}
