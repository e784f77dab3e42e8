package sqlite

import (
	"database/sql"
	"time"

	"log/slog"

	"github.com/garnizeh/outreach/internal/db"
	"github.com/garnizeh/outreach/pkg/repository"
)

// SQLiteRepo implements repository interfaces using the internal DB wrapper.
type SQLiteRepo struct {
	conn   *db.DB
	logger *slog.Logger

	// jobLease is how long a running job may go without an update before
	// FetchNext hands it out again.
	jobLease time.Duration
}

// DefaultJobLease is the running-job lease used unless SetJobLease is called.
const DefaultJobLease = 10 * time.Minute

// Ensure SQLiteRepo implements the public interfaces.
var _ repository.LeadRepo = (*SQLiteRepo)(nil)
var _ repository.DraftRepo = (*SQLiteRepo)(nil)
var _ repository.DispatchRepo = (*SQLiteRepo)(nil)
var _ repository.FollowUpRepo = (*SQLiteRepo)(nil)
var _ repository.EventRepo = (*SQLiteRepo)(nil)
var _ repository.CadenceRepo = (*SQLiteRepo)(nil)
var _ repository.AnalyticsRepo = (*SQLiteRepo)(nil)
var _ repository.SchemaRepo = (*SQLiteRepo)(nil)
var _ repository.TemplateRepo = (*SQLiteRepo)(nil)
var _ repository.JobRepo = (*SQLiteRepo)(nil)

func New(conn *db.DB, logger *slog.Logger) *SQLiteRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteRepo{conn: conn, logger: logger, jobLease: DefaultJobLease}
}

// SetJobLease changes the running-job lease. Non-positive values are ignored.
func (r *SQLiteRepo) SetJobLease(d time.Duration) {
	if d > 0 {
		r.jobLease = d
	}
}

func now() int64 {
	return time.Now().UTC().UnixMilli()
}

// millis converts t to the unix millisecond representation used by every
// timestamp column.
func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return millis(*t)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
