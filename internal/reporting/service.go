package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"voicebot/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. calls.Repository satisfies it.
type Repository interface {
	List(ctx context.Context, f calls.ListFilter) ([]calls.CallRecord, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if !req.Range.From.IsZero() && !req.Range.To.IsZero() && !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.List(ctx, calls.ListFilter{From: req.Range.From, To: req.Range.To})
	if err != nil {
		return CallsSummary{}, err
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := now.UTC().Format(time.DateOnly)

	out := CallsSummary{Range: req.Range, ByStatus: map[string]int{}}
	var (
		terminal   int
		durations  int
		scoreTotal float64
		perDay     = map[string]int{}
	)
	for _, c := range rows {
		out.TotalCalls++
		out.ByStatus[string(c.Status)]++

		day := c.CreatedAt.UTC().Format(time.DateOnly)
		perDay[day]++
		if day == today {
			out.CallsToday++
		}

		if c.DurationSeconds != nil {
			out.TotalDurationSeconds += *c.DurationSeconds
			durations++
		}
		if c.RecordingURL != nil {
			out.RecordedCalls++
		}
		if c.QualityScore != nil {
			out.AnalyzedCalls++
			scoreTotal += *c.QualityScore
		}

		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
			terminal++
		case calls.CallStatusScheduled:
			out.ScheduledCalls++
			terminal++
		case calls.CallStatusFailed:
			out.FailedCalls++
			terminal++
		case calls.CallStatusNoAnswer:
			out.NoAnswerCalls++
			terminal++
		case calls.CallStatusBusy:
			out.BusyCalls++
			terminal++
		case calls.CallStatusCanceled:
			out.CanceledCalls++
			terminal++
		case calls.CallStatusInProgress, calls.CallStatusConnected:
			out.InProgressCalls++
		case calls.CallStatusPending, calls.CallStatusRinging, calls.CallStatusQueued:
			// not counted separately
		}
	}
	if durations > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / durations
	}
	if terminal > 0 {
		out.SuccessRate = float64(out.CompletedCalls+out.ScheduledCalls) / float64(terminal)
	}
	if out.AnalyzedCalls > 0 {
		out.AverageQualityScore = scoreTotal / float64(out.AnalyzedCalls)
	}

	out.PerDay = make([]DailyVolume, 0, len(perDay))
	for d, n := range perDay {
		out.PerDay = append(out.PerDay, DailyVolume{Date: d, Calls: n})
	}
	sort.Slice(out.PerDay, func(i, j int) bool { return out.PerDay[i].Date < out.PerDay[j].Date })
	return out, nil
}
