package functions

import (
	"encoding/json"
	"fmt"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is returned to the conversation model after an invocation.
// Speech and EndCall drive the agent and are never serialized.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`

	Speech  string `json:"-"`
	EndCall bool   `json:"-"`
}

func Success(message string) Result {
	return Result{Status: StatusSuccess, Message: message}
}

func Failure(err error) Result {
	return Result{Status: StatusError, Error: err.Error()}
}

// JSON renders the model-facing payload.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"status":"error","error":%q}`, err.Error())
	}
	return string(b)
}

const GoodbyeMessage = "Thank you for your time. Have a great day, goodbye!"

// CallbackAck is spoken after a callback has been scheduled.
func CallbackAck(minutes int) string {
	if minutes <= 0 {
		return "Sure, I'll call you back shortly. Thank you for your time, goodbye!"
	}
	return fmt.Sprintf("Sure, I'll call you back in %s. Thank you for your time, goodbye!", HumanizeDelay(minutes))
}

// HumanizeDelay phrases a delay in the largest whole unit: days from 1440 minutes,
// hours from 60, minutes otherwise.
func HumanizeDelay(minutes int) string {
	switch {
	case minutes >= 1440:
		return plural(minutes/1440, "day")
	case minutes >= 60:
		return plural(minutes/60, "hour")
	default:
		return plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
