package prediction

import (
	"context"

	"github.com/trezcool/shule/core"
)

type Repository interface {
	// UpsertRecord inserts the record or overwrites the one with the same (student, subject, year, term).
	UpsertRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
	// QueryRecords returns the student's records, latest first; academicYear is optional.
	QueryRecords(ctx context.Context, studentID int, academicYear string, exec ...core.DBExecutor) ([]Record, error)
}
