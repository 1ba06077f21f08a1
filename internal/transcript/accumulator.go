// Package transcript accumulates the ordered conversation of a single call.
package transcript

import (
	"errors"
	"strings"
	"sync"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Entry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

var (
	ErrClosed      = errors.New("transcript: closed")
	ErrInvalidRole = errors.New("transcript: invalid role")
)

// Accumulator is append-only while open. Close freezes it; later appends are rejected.
// Entries are kept in arrival order without deduplication.
type Accumulator struct {
	mu      sync.Mutex
	entries []Entry
	closed  bool
}

func New() *Accumulator { return &Accumulator{} }

func (a *Accumulator) Append(role Role, text string) error {
	if role != RoleUser && role != RoleAssistant {
		return ErrInvalidRole
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.entries = append(a.entries, Entry{Role: role, Text: text})
	return nil
}

// Close freezes the transcript and returns its joined text.
// Calling Close again returns the same text.
func (a *Accumulator) Close() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return join(a.entries)
}

func (a *Accumulator) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Accumulator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func (a *Accumulator) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return join(a.entries)
}

// join renders one "role: text" line per entry.
func join(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(e.Role))
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	return b.String()
}
