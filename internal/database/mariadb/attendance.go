package mariadb

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// RecordAttendance appends an event for the named student.
func (p *Pool) RecordAttendance(ctx context.Context, name string, at time.Time) (bool, error) {
	if name == constants.UnknownIdentity {
		return false, nil
	}

	result, err := p.db.ExecContext(ctx, "INSERT INTO attendance (student_id, `timestamp`) SELECT id, ? FROM students WHERE name = ?", at.UTC(), name)
	if err != nil {
		return false, fmt.Errorf("insert attendance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListAttendance returns all records, most recent first.
func (p *Pool) ListAttendance(ctx context.Context) ([]database.AttendanceRecord, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT a.id, a.student_id, s.name, a.`timestamp` FROM attendance a JOIN students s ON a.student_id = s.id ORDER BY a.`timestamp` DESC, a.id DESC")
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []database.AttendanceRecord
	for rows.Next() {
		var rec database.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.StudentName, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return records, nil
}

// CountAttendance returns the number of logged events.
func (p *Pool) CountAttendance(ctx context.Context) (int, error) {
	var count int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM attendance").Scan(&count); err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return count, nil
}
