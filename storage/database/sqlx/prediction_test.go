package sqlxrepos_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/prediction"
	"github.com/trezcool/shule/core/student"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
	"github.com/trezcool/shule/testutil"
)

func TestPredictionRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	repo := sqlxrepos.NewPredictionRepository(db)
	ctx := context.Background()

	math := testutil.CreateSubject(t, db, "Mathematics")
	art := testutil.CreateSubject(t, db, "Art")
	s := testutil.CreateStudent(t, db, student.Student{FirstName: "Amani", GradeLevel: "10", IsActive: true})

	newRecord := func(subjectID int, yr string, term int, predicted float64, at time.Time) prediction.Record {
		return prediction.Record{
			StudentID:            s.ID,
			SubjectID:            subjectID,
			AcademicYear:         yr,
			Term:                 term,
			CurrentPerformance:   70,
			CurrentAttendance:    90,
			PredictedPerformance: predicted,
			Trend:                prediction.TrendImproving,
			Confidence:           0.8,
			PredictedAt:          at,
		}
	}

	first, err := repo.UpsertRecord(ctx, newRecord(math, year, 1, 75, epoch))
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, epoch, first.CreatedAt)

	t.Run("upsert overwrites the same student, subject, year & term", func(t *testing.T) {
		rec := newRecord(math, year, 1, 62, epoch.Add(time.Hour))
		rec.Trend = prediction.TrendDeclining
		rec.Recommendations = "More practice"
		got, err := repo.UpsertRecord(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, epoch, got.CreatedAt)
		assert.Equal(t, 1, testutil.Count(t, db, "student_performance_predictions", ""))

		recs, err := repo.QueryRecords(ctx, s.ID, year)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, 62.0, recs[0].PredictedPerformance)
		assert.Equal(t, prediction.TrendDeclining, recs[0].Trend)
		assert.Equal(t, "More practice", recs[0].Recommendations)
		assert.Equal(t, "Mathematics", recs[0].SubjectName)
		assert.Equal(t, epoch, recs[0].CreatedAt)
		assert.Equal(t, epoch.Add(time.Hour), recs[0].UpdatedAt)
	})

	t.Run("confidence on the 0-100 scale", func(t *testing.T) {
		rec := newRecord(math, year, 2, 80, epoch)
		rec.Confidence = 87.25
		got, err := repo.UpsertRecord(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, 87.25, got.Confidence)

		rec.Confidence = 100.01
		_, err = repo.UpsertRecord(ctx, rec)
		assert.Error(t, err)
		_, err = db.Exec("DELETE FROM student_performance_predictions WHERE id = ?", got.ID)
		require.NoError(t, err)
	})

	_, err = repo.UpsertRecord(ctx, newRecord(art, year, 2, 80, epoch.Add(2*time.Hour)))
	require.NoError(t, err)
	_, err = repo.UpsertRecord(ctx, newRecord(art, "2024-2025", 3, 55, epoch.Add(-time.Hour)))
	require.NoError(t, err)

	tests := []struct {
		name string
		yr   string
		want []string
	}{
		{name: "any year, latest first", want: []string{"Art/2", "Mathematics/1", "Art/3"}},
		{name: "one year", yr: year, want: []string{"Art/2", "Mathematics/1"}},
		{name: "no predictions", yr: "2020-2021", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := repo.QueryRecords(ctx, s.ID, tt.yr)
			require.NoError(t, err)
			got := make([]string, 0, len(recs))
			for _, rec := range recs {
				got = append(got, fmt.Sprintf("%s/%d", rec.SubjectName, rec.Term))
			}
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("writes inside a transaction", func(t *testing.T) {
		errAbort := errors.New("abort")
		err := core.RunInTx(ctx, db, func(tx core.DBTransactor) error {
			_, err := repo.UpsertRecord(ctx, newRecord(math, year, 3, 50, epoch), tx)
			require.NoError(t, err)
			return errAbort
		})
		assert.ErrorIs(t, err, errAbort)
		assert.Zero(t, testutil.Count(t, db, "student_performance_predictions", "academic_year = ? AND term = ?", year, 3))
	})
}
