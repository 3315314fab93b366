package sqlxrepos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/seating"
)

const arrangementColumns = `a.id, a.grade_level, a.section, a.class_id, a.academic_year, a.term, a.total_rows, a.seats_per_row,
	a.arrangement_data, a.generated_by, a.generated_at, a.is_active, a.created_at, a.updated_at`

const seatColumns = `sa.id, sa.seating_arrangement_id, sa.student_id, sa.row_number, sa.seat_number, sa.seat_position,
	TRIM(s.first_name || ' ' || s.last_name) AS student_name`

type arrangementRow struct {
	ID              int            `db:"id"`
	GradeLevel      string         `db:"grade_level"`
	Section         null.String    `db:"section"`
	ClassID         null.Int       `db:"class_id"`
	AcademicYear    string         `db:"academic_year"`
	Term            int            `db:"term"`
	TotalRows       int            `db:"total_rows"`
	SeatsPerRow     int            `db:"seats_per_row"`
	ArrangementData types.JSONText `db:"arrangement_data"`
	GeneratedBy     null.Int       `db:"generated_by"`
	GeneratedAt     time.Time      `db:"generated_at"`
	IsActive        bool           `db:"is_active"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func toArrangementRow(arr seating.Arrangement) arrangementRow {
	data := types.JSONText(arr.Layout)
	if len(data) == 0 {
		data = types.JSONText("{}")
	}
	return arrangementRow{
		ID:              arr.ID,
		GradeLevel:      arr.GradeLevel,
		Section:         null.NewString(arr.Section, arr.Section != ""),
		ClassID:         null.NewInt(arr.ClassID, arr.ClassID != 0),
		AcademicYear:    arr.AcademicYear,
		Term:            arr.Term,
		TotalRows:       arr.TotalRows,
		SeatsPerRow:     arr.SeatsPerRow,
		ArrangementData: data,
		GeneratedBy:     null.NewInt(arr.GeneratedBy, arr.GeneratedBy != 0),
		GeneratedAt:     arr.GeneratedAt.UTC(),
		IsActive:        arr.IsActive,
		CreatedAt:       arr.CreatedAt.UTC(),
		UpdatedAt:       arr.UpdatedAt.UTC(),
	}
}

func (r arrangementRow) arrangement() seating.Arrangement {
	return seating.Arrangement{
		ID:           r.ID,
		GradeLevel:   r.GradeLevel,
		Section:      r.Section.String,
		ClassID:      r.ClassID.Int,
		AcademicYear: r.AcademicYear,
		Term:         r.Term,
		TotalRows:    r.TotalRows,
		SeatsPerRow:  r.SeatsPerRow,
		Layout:       json.RawMessage(r.ArrangementData),
		GeneratedBy:  r.GeneratedBy.Int,
		GeneratedAt:  r.GeneratedAt.UTC(),
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type seatRow struct {
	ID            int    `db:"id"`
	ArrangementID int    `db:"seating_arrangement_id"`
	StudentID     int    `db:"student_id"`
	StudentName   string `db:"student_name"`
	RowNumber     int    `db:"row_number"`
	SeatNumber    int    `db:"seat_number"`
	SeatPosition  string `db:"seat_position"`
}

func (r seatRow) seat() seating.SeatAssignment {
	return seating.SeatAssignment(r)
}

type seatingRepository struct {
	repository
}

var _ seating.Repository = (*seatingRepository)(nil) // interface compliance check

func NewSeatingRepository(exec core.DBExecutor) *seatingRepository {
	return &seatingRepository{repository{exec: exec}}
}

func (repo seatingRepository) DeactivateArrangements(ctx context.Context, key seating.Key, exec ...core.DBExecutor) (int64, error) {
	exe := repo.getExec(exec)
	q := `UPDATE seating_arrangements SET is_active = ?, updated_at = ?
		WHERE is_active AND grade_level = ? AND COALESCE(section, '') = ? AND academic_year = ? AND term = ?`
	res, err := exe.ExecContext(ctx, exe.Rebind(q),
		false, time.Now().UTC(), key.GradeLevel, key.Section, key.AcademicYear, key.Term)
	if err != nil {
		return 0, errors.Wrap(err, "deactivating arrangements")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deactivating arrangements")
	}
	return n, nil
}

func (repo seatingRepository) CreateArrangement(ctx context.Context, arr seating.Arrangement, exec ...core.DBExecutor) (seating.Arrangement, error) {
	exe := repo.getExec(exec)
	row := toArrangementRow(arr)
	q := `INSERT INTO seating_arrangements (grade_level, section, class_id, academic_year, term, total_rows, seats_per_row,
			arrangement_data, generated_by, generated_at, is_active, created_at, updated_at)
		VALUES (:grade_level, :section, :class_id, :academic_year, :term, :total_rows, :seats_per_row,
			:arrangement_data, :generated_by, :generated_at, :is_active, :created_at, :updated_at)
		RETURNING id`
	q, args, err := sqlx.Named(q, row)
	if err != nil {
		return seating.Arrangement{}, errors.Wrap(err, "inserting arrangement")
	}
	if err = sqlx.GetContext(ctx, exe, &row.ID, exe.Rebind(q), args...); err != nil {
		if isUniqueViolation(err) {
			return seating.Arrangement{}, errors.Wrapf(err, "another arrangement is active for %s", arr.Key())
		}
		return seating.Arrangement{}, errors.Wrap(err, "inserting arrangement")
	}
	return row.arrangement(), nil
}

func (repo seatingRepository) CreateSeatAssignments(ctx context.Context, seats []seating.SeatAssignment, exec ...core.DBExecutor) error {
	if len(seats) == 0 {
		return nil
	}
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO student_seat_assignments
		(seating_arrangement_id, student_id, row_number, seat_number, seat_position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	now := time.Now().UTC()
	for _, s := range seats {
		if _, err := exe.ExecContext(ctx, q, s.ArrangementID, s.StudentID, s.RowNumber, s.SeatNumber, s.SeatPosition, now, now); err != nil {
			if isUniqueViolation(err) {
				return errors.Wrapf(err, "seat (%d, %d) assigned twice", s.RowNumber, s.SeatNumber)
			}
			return errors.Wrapf(err, "inserting seat of student %d", s.StudentID)
		}
	}
	return nil
}

func (repo seatingRepository) GetArrangement(ctx context.Context, id int, exec ...core.DBExecutor) (seating.Arrangement, error) {
	exe := repo.getExec(exec)
	var row arrangementRow
	q := "SELECT " + arrangementColumns + " FROM seating_arrangements a WHERE a.id = ?"
	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q), id); err != nil {
		return seating.Arrangement{}, trapNoRowsErr(err, seating.ErrNotFound, "getting arrangement")
	}
	return row.arrangement(), nil
}

func (repo seatingRepository) GetActiveArrangement(ctx context.Context, gradeLevel, section string, exec ...core.DBExecutor) (seating.Arrangement, error) {
	exe := repo.getExec(exec)
	q := "SELECT " + arrangementColumns + " FROM seating_arrangements a WHERE a.is_active AND a.grade_level = ?"
	args := []interface{}{gradeLevel}
	if section != "" {
		q += " AND a.section = ?"
		args = append(args, section)
	}
	q += " ORDER BY a.created_at DESC, a.id DESC LIMIT 1"

	var row arrangementRow
	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q), args...); err != nil {
		return seating.Arrangement{}, trapNoRowsErr(err, seating.ErrNotFound, "getting active arrangement")
	}
	return row.arrangement(), nil
}

func (repo seatingRepository) QueryArrangements(ctx context.Context, filter *seating.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]seating.Arrangement, error) {
	exe := repo.getExec(exec)
	var conds []string
	var args []interface{}

	if filter != nil {
		if filter.GradeLevel != "" {
			conds = append(conds, "a.grade_level = ?")
			args = append(args, filter.GradeLevel)
		}
		if filter.Section != "" {
			conds = append(conds, "a.section = ?")
			args = append(args, filter.Section)
		}
		if filter.AcademicYear != "" {
			conds = append(conds, "a.academic_year = ?")
			args = append(args, filter.AcademicYear)
		}
		if filter.Term != 0 {
			conds = append(conds, "a.term = ?")
			args = append(args, filter.Term)
		}
		if filter.IsActive != nil {
			conds = append(conds, "a.is_active = ?")
			args = append(args, *filter.IsActive)
		}
	}

	q := "SELECT " + arrangementColumns + " FROM seating_arrangements a"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	ords := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		ords = append(ords, core.DBOrdering{Field: "a." + ord.Field, Ascending: ord.Ascending})
	}
	q += orderBy(ords, "a.created_at DESC, a.id DESC")

	var rows []arrangementRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying arrangements")
	}
	arrs := make([]seating.Arrangement, 0, len(rows))
	for _, r := range rows {
		arrs = append(arrs, r.arrangement())
	}
	return arrs, nil
}

func (repo seatingRepository) QuerySeatAssignments(ctx context.Context, arrangementID int, exec ...core.DBExecutor) ([]seating.SeatAssignment, error) {
	exe := repo.getExec(exec)
	q := "SELECT " + seatColumns + ` FROM student_seat_assignments sa
		JOIN students s ON s.id = sa.student_id
		WHERE sa.seating_arrangement_id = ?
		ORDER BY sa.row_number, sa.seat_number`

	var rows []seatRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), arrangementID); err != nil {
		return nil, errors.Wrap(err, "querying seat assignments")
	}
	seats := make([]seating.SeatAssignment, 0, len(rows))
	for _, r := range rows {
		seats = append(seats, r.seat())
	}
	return seats, nil
}

func (repo seatingRepository) GetStudentSeat(ctx context.Context, studentID int, academicYear string, exec ...core.DBExecutor) (seating.StudentSeat, error) {
	exe := repo.getExec(exec)
	q := "SELECT " + seatColumns + ` FROM student_seat_assignments sa
		JOIN students s ON s.id = sa.student_id
		JOIN seating_arrangements a ON a.id = sa.seating_arrangement_id
		WHERE sa.student_id = ? AND a.is_active`
	args := []interface{}{studentID}
	if academicYear != "" {
		q += " AND a.academic_year = ?"
		args = append(args, academicYear)
	}
	q += " ORDER BY sa.created_at DESC, sa.id DESC LIMIT 1"

	var row seatRow
	if err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(q), args...); err != nil {
		return seating.StudentSeat{}, trapNoRowsErr(err, seating.ErrNotFound, "getting student seat")
	}
	arr, err := repo.GetArrangement(ctx, row.ArrangementID, exe)
	if err != nil {
		return seating.StudentSeat{}, err
	}
	return seating.StudentSeat{Arrangement: arr, Seat: row.seat()}, nil
}

func (repo seatingRepository) SetArrangementActive(ctx context.Context, id int, active bool, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := "UPDATE seating_arrangements SET is_active = ?, updated_at = ? WHERE id = ?"
	res, err := exe.ExecContext(ctx, exe.Rebind(q), active, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "updating arrangement")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return seating.ErrNotFound
	}
	return nil
}

func (repo seatingRepository) DeleteArrangement(ctx context.Context, id int, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM seating_arrangements WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting arrangement")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return seating.ErrNotFound
	}
	return nil
}
