package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/prediction"
)

type predictionRow struct {
	ID                   int       `db:"id"`
	StudentID            int       `db:"student_id"`
	SubjectID            int       `db:"subject_id"`
	SubjectName          string    `db:"subject_name"`
	AcademicYear         string    `db:"academic_year"`
	Term                 int       `db:"term"`
	CurrentPerformance   float64   `db:"current_performance"`
	CurrentAttendance    float64   `db:"current_attendance"`
	PredictedPerformance float64   `db:"predicted_performance"`
	Trend                string    `db:"prediction_trend"`
	Confidence           float64   `db:"confidence"`
	Recommendations      string    `db:"recommendations"`
	PredictedAt          time.Time `db:"predicted_at"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

func toPredictionRow(rec prediction.Record) predictionRow {
	return predictionRow{
		ID:                   rec.ID,
		StudentID:            rec.StudentID,
		SubjectID:            rec.SubjectID,
		SubjectName:          rec.SubjectName,
		AcademicYear:         rec.AcademicYear,
		Term:                 rec.Term,
		CurrentPerformance:   rec.CurrentPerformance,
		CurrentAttendance:    rec.CurrentAttendance,
		PredictedPerformance: rec.PredictedPerformance,
		Trend:                string(rec.Trend),
		Confidence:           rec.Confidence,
		Recommendations:      rec.Recommendations,
		PredictedAt:          rec.PredictedAt.UTC(),
		CreatedAt:            rec.CreatedAt.UTC(),
		UpdatedAt:            rec.UpdatedAt.UTC(),
	}
}

func (r predictionRow) record() prediction.Record {
	return prediction.Record{
		ID:                   r.ID,
		StudentID:            r.StudentID,
		SubjectID:            r.SubjectID,
		SubjectName:          r.SubjectName,
		AcademicYear:         r.AcademicYear,
		Term:                 r.Term,
		CurrentPerformance:   r.CurrentPerformance,
		CurrentAttendance:    r.CurrentAttendance,
		PredictedPerformance: r.PredictedPerformance,
		Trend:                prediction.Trend(r.Trend),
		Confidence:           r.Confidence,
		Recommendations:      r.Recommendations,
		PredictedAt:          r.PredictedAt.UTC(),
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
}

type predictionRepository struct {
	repository
}

var _ prediction.Repository = (*predictionRepository)(nil) // interface compliance check

func NewPredictionRepository(exec core.DBExecutor) *predictionRepository {
	return &predictionRepository{repository{exec: exec}}
}

// UpsertRecord inserts rec or overwrites the prediction of the same student, subject, year & term.
// An overwrite keeps the original created_at.
func (repo predictionRepository) UpsertRecord(ctx context.Context, rec prediction.Record, exec ...core.DBExecutor) (prediction.Record, error) {
	exe := repo.getExec(exec)
	row := toPredictionRow(rec)
	q := `INSERT INTO student_performance_predictions (student_id, subject_id, academic_year, term, current_performance,
			current_attendance, predicted_performance, prediction_trend, confidence, recommendations, predicted_at, created_at, updated_at)
		VALUES (:student_id, :subject_id, :academic_year, :term, :current_performance,
			:current_attendance, :predicted_performance, :prediction_trend, :confidence, :recommendations, :predicted_at,
			:created_at, :updated_at)
		ON CONFLICT (student_id, subject_id, academic_year, term) DO UPDATE SET
			current_performance = excluded.current_performance,
			current_attendance = excluded.current_attendance,
			predicted_performance = excluded.predicted_performance,
			prediction_trend = excluded.prediction_trend,
			confidence = excluded.confidence,
			recommendations = excluded.recommendations,
			predicted_at = excluded.predicted_at,
			updated_at = excluded.updated_at
		RETURNING id`
	q, args, err := sqlx.Named(q, row)
	if err != nil {
		return prediction.Record{}, errors.Wrap(err, "upserting prediction")
	}
	if err = sqlx.GetContext(ctx, exe, &row.ID, exe.Rebind(q), args...); err != nil {
		return prediction.Record{}, errors.Wrap(err, "upserting prediction")
	}
	q = exe.Rebind("SELECT created_at FROM student_performance_predictions WHERE id = ?")
	if err = sqlx.GetContext(ctx, exe, &row.CreatedAt, q, row.ID); err != nil {
		return prediction.Record{}, errors.Wrap(err, "upserting prediction")
	}
	return row.record(), nil
}

func (repo predictionRepository) QueryRecords(ctx context.Context, studentID int, academicYear string, exec ...core.DBExecutor) ([]prediction.Record, error) {
	exe := repo.getExec(exec)
	q := `SELECT p.id, p.student_id, p.subject_id, sub.name AS subject_name, p.academic_year, p.term, p.current_performance,
			p.current_attendance, p.predicted_performance, p.prediction_trend, p.confidence, p.recommendations, p.predicted_at,
			p.created_at, p.updated_at
		FROM student_performance_predictions p
		JOIN subjects sub ON sub.id = p.subject_id
		WHERE p.student_id = ?`
	args := []interface{}{studentID}
	if academicYear != "" {
		q += " AND p.academic_year = ?"
		args = append(args, academicYear)
	}
	q += " ORDER BY p.predicted_at DESC, p.term DESC, sub.name"

	var rows []predictionRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying predictions")
	}
	recs := make([]prediction.Record, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, r.record())
	}
	return recs, nil
}
