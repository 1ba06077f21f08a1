package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"voicebot/pkg/utils"
)

// PostgresRepo stores call records in the call_records table.
// Schema lives in internal/migrations.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const recordColumns = `
id, name, email, phone, call_sid, status,
transcript, duration_seconds, quality_score, analysis, intent, outcome,
callback_time, appointment_time, analysis_version, recording_url,
caller_country, caller_zip, to_country, from_country,
time_to_call, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (CallRecord, error) {
	var (
		r                                              CallRecord
		status                                         string
		transcript, analysis, intent, outcome          sql.NullString
		callbackTime, appointmentTime, version, recURL sql.NullString
		callerCountry, callerZip, toCountry, fromCtry  sql.NullString
		duration                                       sql.NullInt64
		score                                          sql.NullFloat64
		timeToCall                                     sql.NullTime
	)
	if err := s.Scan(
		&r.ID, &r.Name, &r.Email, &r.Phone, &r.CallSID, &status,
		&transcript, &duration, &score, &analysis, &intent, &outcome,
		&callbackTime, &appointmentTime, &version, &recURL,
		&callerCountry, &callerZip, &toCountry, &fromCtry,
		&timeToCall, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	r.Status = CallStatus(status)
	r.Transcript = nullString(transcript)
	r.Analysis = nullString(analysis)
	r.Intent = nullString(intent)
	r.Outcome = nullString(outcome)
	r.CallbackTime = nullString(callbackTime)
	r.AppointmentTime = nullString(appointmentTime)
	r.AnalysisVersion = nullString(version)
	r.RecordingURL = nullString(recURL)
	r.CallerCountry = nullString(callerCountry)
	r.CallerZip = nullString(callerZip)
	r.ToCountry = nullString(toCountry)
	r.FromCountry = nullString(fromCtry)
	if duration.Valid {
		d := int(duration.Int64)
		r.DurationSeconds = &d
	}
	if score.Valid {
		v := score.Float64
		r.QualityScore = &v
	}
	if timeToCall.Valid {
		t := timeToCall.Time.UTC()
		r.TimeToCall = &t
	}
	return r, nil
}

func (p *PostgresRepo) Create(ctx context.Context, r CallRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	const q = `
INSERT INTO call_records (id, name, email, phone, call_sid, status, time_to_call, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()), now())
`
	var createdAt any
	if !r.CreatedAt.IsZero() {
		createdAt = r.CreatedAt
	}
	_, err := p.db.ExecContext(ctx, q, r.ID, r.Name, r.Email, r.Phone, r.CallSID, string(r.Status), r.TimeToCall, createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSID
		}
		return fmt.Errorf("calls: insert: %w", err)
	}
	return nil
}

func (p *PostgresRepo) Get(ctx context.Context, id string) (CallRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM call_records WHERE id = $1`
	return scanRecord(p.db.QueryRowContext(ctx, q, id))
}

func (p *PostgresRepo) FindByCallSID(ctx context.Context, callSID string) (CallRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM call_records WHERE call_sid = $1`
	return scanRecord(p.db.QueryRowContext(ctx, q, callSID))
}

func (p *PostgresRepo) List(ctx context.Context, f ListFilter) ([]CallRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Email != "" {
		add("email = $%d", f.Email)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at < $%d", f.To)
	}

	q := `SELECT ` + recordColumns + ` FROM call_records`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return p.query(ctx, q, args...)
}

// ApplyCarrierUpdate locks the row while it decides the status, so a callback
// scheduled by the live call in between is never overwritten.
func (p *PostgresRepo) ApplyCarrierUpdate(ctx context.Context, callSID string, u CarrierUpdate) error {
	const q = `
UPDATE call_records SET
    status = $2,
    duration_seconds = COALESCE($3, duration_seconds),
    caller_country = COALESCE(NULLIF($4, ''), caller_country),
    caller_zip = COALESCE(NULLIF($5, ''), caller_zip),
    to_country = COALESCE(NULLIF($6, ''), to_country),
    from_country = COALESCE(NULLIF($7, ''), from_country),
    updated_at = now()
WHERE call_sid = $1
`
	var duration any
	if u.DurationSeconds != nil {
		duration = *u.DurationSeconds
	}
	return utils.WithTx(ctx, p.db, nil, func(tx *sql.Tx) error {
		var current CallStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM call_records WHERE call_sid = $1 FOR UPDATE`, callSID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("calls: lock: %w", err)
		}

		status := current
		if u.Status != "" && !current.StickyAgainstCarrier() {
			status = u.Status
		}
		if _, err := tx.ExecContext(ctx, q, callSID, string(status), duration, u.CallerCountry, u.CallerZip, u.ToCountry, u.FromCountry); err != nil {
			return fmt.Errorf("calls: update: %w", err)
		}
		return nil
	})
}

func (p *PostgresRepo) ScheduleCallback(ctx context.Context, callSID string, at time.Time) error {
	const q = `
UPDATE call_records SET status = 'scheduled', time_to_call = $2, updated_at = now()
WHERE call_sid = $1
`
	return p.execOne(ctx, q, callSID, at.UTC())
}

func (p *PostgresRepo) SetTimeToCall(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE call_records SET time_to_call = $2, updated_at = now() WHERE id = $1`
	return p.execOne(ctx, q, id, at.UTC())
}

func (p *PostgresRepo) Complete(ctx context.Context, callSID string, c Completion) error {
	const q = `
UPDATE call_records SET
    transcript = $2,
    analysis = $3,
    quality_score = $4,
    intent = $5,
    outcome = $6,
    callback_time = NULLIF($7, ''),
    appointment_time = NULLIF($8, ''),
    analysis_version = NULLIF($9, ''),
    status = COALESCE(NULLIF($10, ''), status),
    updated_at = now()
WHERE call_sid = $1
`
	return p.execOne(ctx, q, callSID,
		c.Transcript, c.Summary, c.QualityScore, c.Intent, c.Outcome,
		c.CallbackTime, c.AppointmentTime, c.AnalysisVersion, string(c.Status),
	)
}

func (p *PostgresRepo) SetRecordingURL(ctx context.Context, callSID, url string) error {
	const q = `UPDATE call_records SET recording_url = $2, updated_at = now() WHERE call_sid = $1`
	return p.execOne(ctx, q, callSID, url)
}

func (p *PostgresRepo) ListDueCallbacks(ctx context.Context, now time.Time, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + recordColumns + `
FROM call_records
WHERE status = 'scheduled' AND time_to_call IS NOT NULL AND time_to_call <= $1
ORDER BY time_to_call
LIMIT $2`
	return p.query(ctx, q, now.UTC(), limit)
}

func (p *PostgresRepo) ClearCallback(ctx context.Context, id string) error {
	const q = `
UPDATE call_records SET status = 'completed', time_to_call = NULL, updated_at = now()
WHERE id = $1
`
	return p.execOne(ctx, q, id)
}

func (p *PostgresRepo) query(ctx context.Context, q string, args ...any) ([]CallRecord, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("calls: query: %w", err)
	}
	defer rows.Close()

	out := make([]CallRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("calls: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
