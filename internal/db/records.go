package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrDuplicateRecord reports that a non-deleted record already exists for
// the same student, day and period.
var ErrDuplicateRecord = errors.New("attendance record already exists")

type Record struct {
	ID         string
	StudentID  string
	SchoolID   string
	Day        time.Time
	PeriodID   string
	PeriodName string
	Method     string
	MarkedAt   time.Time
	DeletedAt  *time.Time
}

type PeriodCount struct {
	PeriodID   string
	PeriodName string
	Total      int64
}

func (s *Store) CreateRecord(ctx context.Context, record Record) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO attendance_records (id, student_id, school_id, day, period_id, period_name, method, marked_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8)
		ON CONFLICT (student_id, day, period_id) WHERE deleted_at IS NULL DO NOTHING
	`, record.ID, record.StudentID, record.SchoolID, record.Day, record.PeriodID, record.PeriodName, record.Method, record.MarkedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateRecord
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, id string) (Record, error) {
	var record Record
	row := s.pool.QueryRow(ctx, `
		SELECT id, student_id, school_id, day, period_id, period_name, method, marked_at, deleted_at
		FROM attendance_records
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	err := row.Scan(
		&record.ID,
		&record.StudentID,
		&record.SchoolID,
		&record.Day,
		&record.PeriodID,
		&record.PeriodName,
		&record.Method,
		&record.MarkedAt,
		&record.DeletedAt,
	)
	return record, err
}

func (s *Store) ListRecordsByStudent(ctx context.Context, studentID, schoolID string, from, to *time.Time, limit int32) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, school_id, day, period_id, period_name, method, marked_at, deleted_at
		FROM attendance_records
		WHERE student_id = $1 AND school_id = $2 AND deleted_at IS NULL
		  AND ($3::date IS NULL OR day >= $3::date)
		  AND ($4::date IS NULL OR day <= $4::date)
		ORDER BY day DESC, marked_at DESC
		LIMIT $5
	`, studentID, schoolID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) ListRecordsBySchool(ctx context.Context, schoolID string, from, to *time.Time, limit int32) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, school_id, day, period_id, period_name, method, marked_at, deleted_at
		FROM attendance_records
		WHERE school_id = $1 AND deleted_at IS NULL
		  AND ($2::date IS NULL OR day >= $2::date)
		  AND ($3::date IS NULL OR day <= $3::date)
		ORDER BY day DESC, marked_at DESC
		LIMIT $4
	`, schoolID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) CountRecordsByPeriod(ctx context.Context, schoolID string, day time.Time) ([]PeriodCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT period_id, period_name, COUNT(*) AS total
		FROM attendance_records
		WHERE school_id = $1 AND day = $2::date AND deleted_at IS NULL
		GROUP BY period_id, period_name
		ORDER BY period_id
	`, schoolID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]PeriodCount, 0)
	for rows.Next() {
		var count PeriodCount
		if err := rows.Scan(&count.PeriodID, &count.PeriodName, &count.Total); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}
	return counts, rows.Err()
}

func (s *Store) SoftDeleteRecord(ctx context.Context, id string, deletedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE attendance_records
		SET deleted_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`, deletedAt, id)
	return err
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	records := make([]Record, 0)
	for rows.Next() {
		var record Record
		if err := rows.Scan(
			&record.ID,
			&record.StudentID,
			&record.SchoolID,
			&record.Day,
			&record.PeriodID,
			&record.PeriodName,
			&record.Method,
			&record.MarkedAt,
			&record.DeletedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
