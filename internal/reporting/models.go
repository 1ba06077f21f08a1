package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics. A zero range means all time.
type CallsSummaryRequest struct {
	Range TimeRange `json:"range"`
	// Now anchors "today" for CallsToday; zero means time.Now.
	Now time.Time `json:"-"`
}

type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalCalls      int            `json:"total_calls"`
	ByStatus        map[string]int `json:"by_status"`
	CompletedCalls  int            `json:"completed_calls"`
	FailedCalls     int            `json:"failed_calls"`
	NoAnswerCalls   int            `json:"no_answer_calls"`
	BusyCalls       int            `json:"busy_calls"`
	CanceledCalls   int            `json:"canceled_calls"`
	ScheduledCalls  int            `json:"scheduled_calls"`
	InProgressCalls int            `json:"in_progress_calls"`

	// SuccessRate is completed + scheduled over calls that reached a terminal state.
	SuccessRate float64 `json:"success_rate"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls int `json:"recorded_calls"`

	AnalyzedCalls       int     `json:"analyzed_calls"`
	AverageQualityScore float64 `json:"average_quality_score"`

	CallsToday int           `json:"calls_today"`
	PerDay     []DailyVolume `json:"per_day"`
}

type DailyVolume struct {
	Date  string `json:"date"` // YYYY-MM-DD, UTC
	Calls int    `json:"calls"`
}
