package analysis

// SchemaVersion identifies the Result shape persisted with each record.
const SchemaVersion = "v1"

// Result is the structured outcome of a finished call.
type Result struct {
	Summary         string  `json:"summary" validate:"required"`
	QualityScore    float64 `json:"quality_score" validate:"gte=0,lte=100"`
	Intent          string  `json:"intent" validate:"required"`
	Outcome         string  `json:"outcome" validate:"required"`
	CallbackTime    string  `json:"callback_time,omitempty"`
	AppointmentTime string  `json:"appointment_time,omitempty"`
}

// NoConversation is returned for empty transcripts without calling the model.
func NoConversation() Result {
	return Result{Summary: "No conversation occurred", QualityScore: 0, Intent: "Unknown", Outcome: "unknown"}
}

// Failed is returned when the model call or its output cannot be used.
func Failed() Result {
	return Result{Summary: "Analysis failed", QualityScore: 0, Intent: "Unknown", Outcome: "unknown"}
}
