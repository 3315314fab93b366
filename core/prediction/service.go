package prediction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

type (
	// StudentSource is the student query layer as seen by the prediction service.
	StudentSource interface {
		Get(ctx context.Context, id int) (student.Student, error)
		GetByUserID(ctx context.Context, userID int) (student.Student, error)
		SubjectPerformance(ctx context.Context, studentID int, academicYear string, term int) ([]student.SubjectPerformance, error)
		AttendancePercentage(ctx context.Context, studentID int, academicYear string) (float64, error)
	}

	ServiceInterface interface {
		Predict(ctx context.Context, auth core.AuthContext, req PredictRequest) (Result, error)
		PredictBatch(ctx context.Context, auth core.AuthContext, req BatchRequest) (BatchResult, error)
		PredictTrack(ctx context.Context, auth core.AuthContext, req TrackRequest) (TrackPrediction, error)
		Query(ctx context.Context, auth core.AuthContext, studentID int, academicYear string) ([]Record, error)
		ServiceHealthy(ctx context.Context, auth core.AuthContext) (bool, error)
	}

	Service struct {
		db         core.DB
		repo       Repository
		students   StudentSource
		client     Client
		validate   *validator.Validate
		logger     core.Logger
		batchLimit int
		nowFunc    func() time.Time
	}

	// preparedStudent is the request data of a student along with its subjects indexed by lowered name.
	preparedStudent struct {
		data     StudentData
		subjects map[string]student.SubjectPerformance
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	students StudentSource,
	client Client,
	validate *validator.Validate,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		db:         db,
		repo:       repo,
		students:   students,
		client:     client,
		validate:   validate,
		logger:     logger,
		batchLimit: conf.Prediction.BatchLimit,
		nowFunc:    time.Now,
	}
}

func (svc *Service) prepare(ctx context.Context, studentID int, academicYear string, term int) (preparedStudent, error) {
	stdnt, err := svc.students.Get(ctx, studentID)
	if err != nil {
		return preparedStudent{}, err
	}
	perfs, err := svc.students.SubjectPerformance(ctx, stdnt.ID, academicYear, term)
	if err != nil {
		return preparedStudent{}, err
	}
	attendance, err := svc.students.AttendancePercentage(ctx, stdnt.ID, academicYear)
	if err != nil {
		return preparedStudent{}, err
	}

	prep := preparedStudent{
		data: StudentData{
			StudentID: stdnt.ID,
			Age:       stdnt.Age(svc.nowFunc()),
			Grade:     stdnt.GradeLevel,
			Subjects:  make([]SubjectData, 0, len(perfs)),
		},
		subjects: make(map[string]student.SubjectPerformance, len(perfs)),
	}
	for _, perf := range perfs {
		prep.subjects[strings.ToLower(perf.SubjectName)] = perf
		if !perf.HasMarks {
			continue
		}
		prep.data.Subjects = append(prep.data.Subjects, SubjectData{
			SubjectName: perf.SubjectName,
			SubjectID:   perf.SubjectID,
			Attendance:  attendance,
			Marks:       perf.Marks,
		})
	}
	if len(prep.data.Subjects) == 0 {
		return preparedStudent{}, errors.Wrapf(core.ErrNoSubjectMarks, "student %d", stdnt.ID)
	}
	return prep, nil
}

// records maps the forecasts to records of the student's subjects; unknown subjects, trends and
// confidences outside 0-100 are skipped.
func (svc *Service) records(prep preparedStudent, academicYear string, term int, forecasts []SubjectForecast) ([]Record, []string) {
	now := svc.nowFunc().UTC()
	recs := make([]Record, 0, len(forecasts))
	var skipped []string
	for _, fc := range forecasts {
		subject, ok := prep.subjects[strings.ToLower(strings.TrimSpace(fc.Subject))]
		if !ok {
			svc.logger.Warn(fmt.Sprintf("prediction: unknown subject %q for student %d", fc.Subject, prep.data.StudentID))
			skipped = append(skipped, fc.Subject)
			continue
		}
		trend := fc.Trend
		if trend == "" {
			trend = TrendStable
		}
		if !trend.Valid() {
			svc.logger.Warn(fmt.Sprintf("prediction: invalid trend %q for student %d in %s", fc.Trend, prep.data.StudentID, fc.Subject))
			skipped = append(skipped, fc.Subject)
			continue
		}
		if fc.Confidence < 0 || fc.Confidence > 100 {
			svc.logger.Warn(fmt.Sprintf("prediction: confidence %v out of range for student %d in %s", fc.Confidence, prep.data.StudentID, fc.Subject))
			skipped = append(skipped, fc.Subject)
			continue
		}
		recs = append(recs, Record{
			StudentID:            prep.data.StudentID,
			SubjectID:            subject.SubjectID,
			SubjectName:          subject.SubjectName,
			AcademicYear:         academicYear,
			Term:                 term,
			CurrentPerformance:   core.Round2(fc.CurrentPerformance),
			CurrentAttendance:    core.Round2(fc.CurrentAttendance),
			PredictedPerformance: core.Round2(fc.PredictedPerformance),
			Trend:                trend,
			Confidence:           core.Round2(fc.Confidence),
			Recommendations:      strings.TrimSpace(fc.Recommendation),
			PredictedAt:          now,
			CreatedAt:            now,
			UpdatedAt:            now,
		})
	}
	return recs, skipped
}

// store upserts the records of a single student in one transaction.
func (svc *Service) store(ctx context.Context, recs []Record) ([]Record, error) {
	stored := make([]Record, 0, len(recs))
	err := core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		for _, rec := range recs {
			saved, err := svc.repo.UpsertRecord(ctx, rec, tx)
			if err != nil {
				return errors.Wrapf(err, "upserting prediction of subject %d", rec.SubjectID)
			}
			saved.SubjectName = rec.SubjectName
			stored = append(stored, saved)
		}
		return nil
	})
	if err != nil {
		return nil, core.NewPersistenceError("storing predictions", err)
	}
	return stored, nil
}

// Predict forecasts a student's performance in each subject with marks for the academic year & term,
// and upserts one record per subject.
func (svc *Service) Predict(ctx context.Context, auth core.AuthContext, req PredictRequest) (Result, error) {
	if !auth.CanPerform(core.ActionRunPrediction) {
		return Result{}, core.ErrPermissionDenied
	}
	req.AcademicYear = core.CleanString(req.AcademicYear)
	if err := svc.validate.Struct(req); err != nil {
		return Result{}, err
	}

	prep, err := svc.prepare(ctx, req.StudentID, req.AcademicYear, req.Term)
	if err != nil {
		return Result{}, errors.Wrap(err, "preparing student data")
	}
	if !svc.client.CheckHealth(ctx) {
		svc.logger.Warn("prediction service is not healthy", map[string]interface{}{"student_id": req.StudentID})
		return Result{}, core.ErrServiceUnavailable
	}

	forecast, err := svc.client.Predict(ctx, prep.data)
	if err != nil {
		svc.logger.Error("prediction request failed", err, map[string]interface{}{"student_id": req.StudentID})
		return Result{}, errors.Wrap(err, "requesting prediction")
	}

	recs, skipped := svc.records(prep, req.AcademicYear, req.Term, forecast.Predictions)
	stored, err := svc.store(ctx, recs)
	if err != nil {
		svc.logger.Error("storing predictions failed", err, map[string]interface{}{"student_id": req.StudentID})
		return Result{}, err
	}
	return Result{StudentID: prep.data.StudentID, Records: stored, Skipped: skipped}, nil
}

func batchErrorMessage(err error) string {
	if errors.Is(err, student.ErrNotFound) {
		return student.ErrNotFound.Error()
	}
	return core.PublicMessage(err)
}

// PredictBatch runs the predictions of up to batchLimit students in a single service call.
// A failing student is reported in its result and does not abort the others.
func (svc *Service) PredictBatch(ctx context.Context, auth core.AuthContext, req BatchRequest) (BatchResult, error) {
	if !auth.CanPerform(core.ActionRunPrediction) {
		return BatchResult{}, core.ErrPermissionDenied
	}
	req.Clean()
	if err := svc.validate.Struct(req); err != nil {
		return BatchResult{}, err
	}
	if len(req.StudentIDs) > svc.batchLimit {
		return BatchResult{}, core.NewValidationError(nil, core.FieldError{
			Field: "student_ids",
			Error: fmt.Sprintf("at most %d students may be predicted at once", svc.batchLimit),
		})
	}

	results := make(map[int]*StudentResult, len(req.StudentIDs))
	fail := func(id int, msg string) {
		results[id] = &StudentResult{Result: Result{StudentID: id}, Status: StatusFailed, Error: msg}
	}

	prepared := make(map[int]preparedStudent, len(req.StudentIDs))
	data := make([]StudentData, 0, len(req.StudentIDs))
	for _, id := range req.StudentIDs {
		prep, err := svc.prepare(ctx, id, req.AcademicYear, req.Term)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("prediction batch: skipping student %d", id), err)
			fail(id, batchErrorMessage(err))
			continue
		}
		prepared[id] = prep
		data = append(data, prep.data)
	}

	if len(data) > 0 {
		if !svc.client.CheckHealth(ctx) {
			svc.logger.Warn("prediction service is not healthy", map[string]interface{}{"students": len(data)})
			return BatchResult{}, core.ErrServiceUnavailable
		}
		forecast, err := svc.client.PredictBatch(ctx, data)
		if err != nil {
			svc.logger.Error("batch prediction request failed", err, map[string]interface{}{"students": len(data)})
			return BatchResult{}, errors.Wrap(err, "requesting batch prediction")
		}

		for _, fc := range forecast.Results {
			prep, ok := prepared[fc.StudentID]
			if !ok || results[fc.StudentID] != nil {
				svc.logger.Warn(fmt.Sprintf("prediction batch: unexpected result for student %d", fc.StudentID))
				continue
			}
			if fc.Status != StatusSuccess {
				fail(fc.StudentID, "prediction failed: "+fc.Error)
				continue
			}
			recs, skipped := svc.records(prep, req.AcademicYear, req.Term, fc.Predictions)
			stored, err := svc.store(ctx, recs)
			if err != nil {
				svc.logger.Error("storing batch predictions failed", err, map[string]interface{}{"student_id": fc.StudentID})
				fail(fc.StudentID, core.PublicMessage(err))
				continue
			}
			results[fc.StudentID] = &StudentResult{
				Result: Result{StudentID: fc.StudentID, Records: stored, Skipped: skipped},
				Status: StatusSuccess,
			}
		}
	}

	batch := BatchResult{Results: make([]StudentResult, 0, len(req.StudentIDs))}
	for _, id := range req.StudentIDs {
		res := results[id]
		if res == nil {
			res = &StudentResult{Result: Result{StudentID: id}, Status: StatusFailed, Error: "no result returned by the prediction service"}
		}
		if res.Status == StatusSuccess {
			batch.TotalProcessed++
		} else {
			batch.TotalErrors++
		}
		batch.Results = append(batch.Results, *res)
	}
	return batch, nil
}

// PredictTrack predicts the academic track of a student. Nothing is stored.
func (svc *Service) PredictTrack(ctx context.Context, auth core.AuthContext, req TrackRequest) (TrackPrediction, error) {
	if !auth.CanPerform(core.ActionRunPrediction) {
		return TrackPrediction{}, core.ErrPermissionDenied
	}
	req.AcademicYear = core.CleanString(req.AcademicYear)
	if err := svc.validate.Struct(req); err != nil {
		return TrackPrediction{}, err
	}

	stdnt, err := svc.students.Get(ctx, req.StudentID)
	if err != nil {
		return TrackPrediction{}, err
	}
	perfs, err := svc.students.SubjectPerformance(ctx, stdnt.ID, req.AcademicYear, 0 /* all terms */)
	if err != nil {
		return TrackPrediction{}, errors.Wrap(err, "querying subject performance")
	}
	attendance, err := svc.students.AttendancePercentage(ctx, stdnt.ID, req.AcademicYear)
	if err != nil {
		return TrackPrediction{}, errors.Wrap(err, "computing attendance")
	}

	schoolData := make(map[string]interface{}, len(req.SchoolData)+3)
	for k, v := range req.SchoolData {
		schoolData[k] = v
	}
	var total float64
	var count int
	subjectMarks := make(map[string]float64, len(perfs))
	for _, perf := range perfs {
		if perf.HasMarks {
			subjectMarks[perf.SubjectName] = perf.Marks
			total += perf.Marks
			count++
		}
	}
	if count > 0 {
		schoolData["average_marks"] = core.Round2(total / float64(count))
	}
	schoolData["subject_marks"] = subjectMarks
	schoolData["attendance_percentage"] = attendance

	var dob string
	if !stdnt.DateOfBirth.IsZero() {
		dob = stdnt.DateOfBirth.Format("2006-01-02")
	}
	data := TrackData{
		StudentData: map[string]interface{}{
			"student_id":    stdnt.ID,
			"first_name":    stdnt.FirstName,
			"last_name":     stdnt.LastName,
			"date_of_birth": dob,
			"grade_level":   stdnt.GradeLevel,
		},
		SchoolData: schoolData,
	}

	if !svc.client.CheckHealth(ctx) {
		svc.logger.Warn("prediction service is not healthy", map[string]interface{}{"student_id": stdnt.ID})
		return TrackPrediction{}, core.ErrServiceUnavailable
	}
	track, err := svc.client.PredictTrack(ctx, data)
	if err != nil {
		svc.logger.Error("track prediction request failed", err, map[string]interface{}{"student_id": stdnt.ID})
		return TrackPrediction{}, errors.Wrap(err, "requesting track prediction")
	}
	return track, nil
}

// Query returns the stored predictions of a student. Students may only see their own.
func (svc *Service) Query(ctx context.Context, auth core.AuthContext, studentID int, academicYear string) ([]Record, error) {
	if !auth.CanPerform(core.ActionViewPrediction) {
		if !auth.CanPerform(core.ActionViewOwnPrediction) {
			return nil, core.ErrPermissionDenied
		}
		stdnt, err := svc.students.GetByUserID(ctx, auth.ActorID())
		if err != nil || stdnt.ID != studentID {
			return nil, core.ErrPermissionDenied
		}
	}
	return svc.repo.QueryRecords(ctx, studentID, core.CleanString(academicYear))
}

// ServiceHealthy probes the prediction service.
func (svc *Service) ServiceHealthy(ctx context.Context, auth core.AuthContext) (bool, error) {
	if !auth.CanPerform(core.ActionViewPrediction) {
		return false, core.ErrPermissionDenied
	}
	return svc.client.CheckHealth(ctx), nil
}
