package telephony

import (
	"context"

	"github.com/agentplexus/omnivoice/callsystem"
)

// CallSystem is the carrier call-control surface used by the adapters here.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Business logic (who to call, what to persist) stays in dialout and calls.
type CallSystem interface {
	MakeCall(ctx context.Context, to string, opts ...callsystem.CallOption) (callsystem.Call, error)
	HandleStatusCallback(callSID, status string)
}

// StreamTarget is where the carrier should bridge call audio.
type StreamTarget struct {
	URL string

	// Params are passed to the media stream as custom parameters.
	Params map[string]string
}
