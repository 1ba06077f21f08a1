package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"voicebot/pkg/logger"
)

// Repository is the persistence contract for call events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Lister reads back a call's events in creation order.
type Lister interface {
	ListByCallSID(ctx context.Context, callSID string) ([]Event, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CallSID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event and only logs failures.
func (s *Service) Record(ctx context.Context, callSID string, typ EventType, message string, metadata map[string]any) {
	if s == nil {
		return
	}
	e := Event{CallSID: callSID, Type: typ, Message: message}
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			e.Metadata = string(b)
		}
	}
	if err := s.Append(ctx, e); err != nil {
		logger.From(ctx).Warn("call event not recorded", "call_sid", callSID, "type", string(typ), "err", err)
	}
}

// LogOperatorAction records an authenticated operator changing a call.
func (s *Service) LogOperatorAction(ctx context.Context, callSID, actorUserID, message string) error {
	return s.Append(ctx, Event{
		CallSID: callSID,
		Type:    EventTypeOperator,
		Actor:   actorUserID,
		Message: message,
	})
}

// List returns the events for one call when the repository supports reads.
func (s *Service) List(ctx context.Context, callSID string) ([]Event, error) {
	l, ok := s.repo.(Lister)
	if !ok {
		return nil, errors.New("audit: repository does not support reads")
	}
	return l.ListByCallSID(ctx, callSID)
}
