package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"voicebot/pkg/logger"
)

// SubjectPrefix roots every published call event subject.
const SubjectPrefix = "voicebot.calls"

// Publisher sends an event to live consumers.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NatsPublisher decorates a Repository: events are stored first, then published
// on voicebot.calls.<call_sid>.events. Publish failures are logged, never returned.
type NatsPublisher struct {
	next Repository
	pub  Publisher
}

func NewNatsPublisher(next Repository, nc *nats.Conn) *NatsPublisher {
	return &NatsPublisher{next: next, pub: nc}
}

func (p *NatsPublisher) Append(ctx context.Context, e Event) error {
	if err := p.next.Append(ctx, e); err != nil {
		return err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	if err := p.pub.Publish(Subject(e.CallSID), b); err != nil {
		logger.From(ctx).Warn("call event publish failed", "call_sid", e.CallSID, "err", err)
	}
	return nil
}

// ListByCallSID passes reads through to the wrapped repository.
func (p *NatsPublisher) ListByCallSID(ctx context.Context, callSID string) ([]Event, error) {
	l, ok := p.next.(Lister)
	if !ok {
		return nil, fmt.Errorf("audit: repository does not support reads")
	}
	return l.ListByCallSID(ctx, callSID)
}

// Subject maps a call SID to its NATS subject. Tokens may not contain '.', '*', '>' or spaces.
func Subject(callSID string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n':
			return '_'
		}
		return r
	}, callSID)
	return SubjectPrefix + "." + token + ".events"
}
