package seating

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

// State of a generation run.
type State string

const (
	StateIdle             State = "idle"
	StateFetchingRoster   State = "fetching_roster"
	StateCheckingService  State = "checking_service"
	StateRequestingLayout State = "requesting_layout"
	StatePersisting       State = "persisting"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

type (
	// StudentSource is the student query layer as seen by the seating service.
	StudentSource interface {
		Roster(ctx context.Context, filter student.RosterFilter) ([]student.RosterEntry, error)
		GetByUserID(ctx context.Context, userID int) (student.Student, error)
		Sections(ctx context.Context, gradeLevel string) ([]string, error)
	}

	GenerationResult struct {
		Arrangement Arrangement      `json:"arrangement"`
		Seats       []SeatAssignment `json:"seats"`
		Skipped     int              `json:"skipped"`
		State       State            `json:"state"`
	}

	ArrangementDetail struct {
		Arrangement
		TotalSeats int                 `json:"total_seats"`
		Seats      []SeatAssignment    `json:"seats"`
		Grid       [][]*SeatAssignment `json:"grid"`
	}

	ServiceInterface interface {
		Generate(ctx context.Context, auth core.AuthContext, req GenerateRequest) (GenerationResult, error)
		Query(ctx context.Context, auth core.AuthContext, filter *QueryFilter, ordering []core.DBOrdering) ([]Arrangement, error)
		Get(ctx context.Context, auth core.AuthContext, id int) (ArrangementDetail, error)
		Active(ctx context.Context, auth core.AuthContext, gradeLevel, section string) (ArrangementDetail, error)
		Delete(ctx context.Context, auth core.AuthContext, id int) error
		ToggleActive(ctx context.Context, auth core.AuthContext, id int) (Arrangement, error)
		Sections(ctx context.Context, auth core.AuthContext, gradeLevel string) ([]string, error)
		MySeat(ctx context.Context, auth core.AuthContext, academicYear string) (StudentSeat, error)
		ServiceHealthy(ctx context.Context, auth core.AuthContext) (bool, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		students StudentSource
		layout   LayoutClient
		validate *validator.Validate
		logger   core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	db core.DB,
	repo Repository,
	students StudentSource,
	layout LayoutClient,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		students: students,
		layout:   layout,
		validate: validate,
		logger:   logger,
	}
}

// generation tracks the state of a single Generate run.
type generation struct {
	state  State
	key    Key
	logger core.Logger
}

func (g *generation) transition(to State) {
	g.logger.Debug(fmt.Sprintf("seating generation [%s]: %s -> %s", g.key, g.state, to))
	g.state = to
}

// fail moves the run to StateFailed and returns the result reporting it.
func (g *generation) fail(err error) (GenerationResult, error) {
	from := g.state
	g.state = StateFailed
	extras := map[string]interface{}{"key": g.key.String(), "state": string(from)}
	msg := fmt.Sprintf("seating generation failed while %s", from)

	var (
		upstreamErr    *core.UpstreamRequestError
		persistenceErr *core.PersistenceError
	)
	if errors.As(err, &upstreamErr) || errors.As(err, &persistenceErr) {
		g.logger.Error(msg, err, extras)
	} else {
		g.logger.Warn(msg, err, extras)
	}
	return GenerationResult{State: g.state}, err
}

// Generate runs a whole generation: roster fetch, service health probe, layout request and a single
// persistence transaction deactivating the previous arrangements of the same key.
// Nothing is written unless every step succeeds.
func (svc *Service) Generate(ctx context.Context, auth core.AuthContext, req GenerateRequest) (GenerationResult, error) {
	req.Clean()
	gen := &generation{state: StateIdle, key: req.Key(), logger: svc.logger}

	if !auth.CanPerform(core.ActionGenerateSeating) {
		return gen.fail(core.ErrPermissionDenied)
	}
	if err := svc.validate.Struct(req); err != nil {
		return gen.fail(err)
	}

	gen.transition(StateFetchingRoster)
	roster, err := svc.students.Roster(ctx, student.RosterFilter{
		GradeLevel: req.GradeLevel,
		Section:    req.Section,
		ClassID:    req.ClassID,
	})
	if err != nil {
		return gen.fail(errors.Wrap(err, "fetching roster"))
	}
	if len(roster) == 0 {
		return gen.fail(errors.Wrap(core.ErrEmptyRoster, "fetching roster"))
	}
	if capacity := req.TotalRows * req.SeatsPerRow; len(roster) > capacity {
		return gen.fail(core.NewValidationError(errors.Errorf(
			"%d students do not fit in %d rows of %d seats (%d seats)", len(roster), req.TotalRows, req.SeatsPerRow, capacity,
		)))
	}
	var unmarked int
	for _, entry := range roster {
		if !entry.HasMarks {
			unmarked++
		}
	}
	if unmarked > 0 {
		svc.logger.Info(
			fmt.Sprintf("seating generation [%s]: %d student(s) without marks use the default average", gen.key, unmarked),
			map[string]interface{}{"students": len(roster)},
		)
	}

	gen.transition(StateCheckingService)
	if !svc.layout.CheckHealth(ctx) {
		return gen.fail(core.ErrServiceUnavailable)
	}

	gen.transition(StateRequestingLayout)
	payload, err := svc.layout.RequestLayout(ctx, newLayoutRequest(req, roster))
	if err != nil {
		return gen.fail(errors.Wrap(err, "requesting layout"))
	}

	gen.transition(StatePersisting)
	seats, skipped := svc.seatsFromLayout(gen.key, payload, roster)
	now := time.Now().UTC()
	arr := Arrangement{
		GradeLevel:   req.GradeLevel,
		Section:      req.Section,
		ClassID:      req.ClassID,
		AcademicYear: req.AcademicYear,
		Term:         req.Term,
		TotalRows:    req.TotalRows,
		SeatsPerRow:  req.SeatsPerRow,
		Layout:       payload.Raw,
		GeneratedBy:  auth.ActorID(),
		GeneratedAt:  now,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		if _, err := svc.repo.DeactivateArrangements(ctx, gen.key, tx); err != nil {
			return errors.Wrap(err, "deactivating previous arrangements")
		}
		created, err := svc.repo.CreateArrangement(ctx, arr, tx)
		if err != nil {
			return errors.Wrap(err, "creating arrangement")
		}
		arr = created
		for i := range seats {
			seats[i].ArrangementID = arr.ID
		}
		return errors.Wrap(svc.repo.CreateSeatAssignments(ctx, seats, tx), "creating seat assignments")
	})
	if err != nil {
		return gen.fail(core.NewPersistenceError("persisting seating arrangement", err))
	}

	gen.transition(StateDone)
	svc.logger.Info(
		fmt.Sprintf("seating arrangement %d generated with %d seats", arr.ID, len(seats)),
		map[string]interface{}{"key": gen.key.String(), "skipped": skipped},
	)
	return GenerationResult{Arrangement: arr, Seats: seats, Skipped: skipped, State: gen.state}, nil
}

// seatsFromLayout maps the layout entries to seats of roster members.
// Entries without a student, of students outside the roster or repeating a student are skipped.
func (svc *Service) seatsFromLayout(key Key, payload LayoutPayload, roster []student.RosterEntry) ([]SeatAssignment, int) {
	members := make(map[int]student.RosterEntry, len(roster))
	for _, entry := range roster {
		members[entry.ID] = entry
	}

	var skipped int
	seated := make(map[int]bool, len(roster))
	seats := make([]SeatAssignment, 0, len(payload.Arrangement))
	for _, entry := range payload.Arrangement {
		if entry.StudentID == 0 {
			skipped++
			continue
		}
		member, ok := members[entry.StudentID]
		if !ok || seated[entry.StudentID] {
			svc.logger.Warn(
				fmt.Sprintf("seating generation [%s]: skipping layout entry of student %d", key, entry.StudentID),
				map[string]interface{}{"in_roster": ok, "row": entry.Row, "column": entry.Column},
			)
			skipped++
			continue
		}
		seated[entry.StudentID] = true

		label := entry.SeatLabel
		if label == "" {
			label = SeatLabel(entry.Row, entry.Column)
		}
		seats = append(seats, SeatAssignment{
			StudentID:    entry.StudentID,
			StudentName:  member.FullName(),
			RowNumber:    entry.Row,
			SeatNumber:   entry.Column,
			SeatPosition: label,
		})
	}
	return seats, skipped
}

func (svc *Service) Query(ctx context.Context, auth core.AuthContext, filter *QueryFilter, ordering []core.DBOrdering) ([]Arrangement, error) {
	if !auth.CanPerform(core.ActionViewSeating) {
		return nil, core.ErrPermissionDenied
	}
	if filter != nil {
		filter.Clean()
	}
	for _, ord := range ordering {
		if !OrderingFields[ord.Field] {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "ordering", Error: "unknown field " + ord.Field})
		}
	}
	return svc.repo.QueryArrangements(ctx, filter, ordering)
}

func (svc *Service) detail(ctx context.Context, arr Arrangement) (ArrangementDetail, error) {
	seats, err := svc.repo.QuerySeatAssignments(ctx, arr.ID)
	if err != nil {
		return ArrangementDetail{}, errors.Wrap(err, "querying seat assignments")
	}
	return ArrangementDetail{
		Arrangement: arr,
		TotalSeats:  arr.TotalSeats(),
		Seats:       seats,
		Grid:        Grid(arr, seats),
	}, nil
}

// Get returns an arrangement with its seats.
func (svc *Service) Get(ctx context.Context, auth core.AuthContext, id int) (ArrangementDetail, error) {
	if !auth.CanPerform(core.ActionViewSeating) {
		return ArrangementDetail{}, core.ErrPermissionDenied
	}
	arr, err := svc.repo.GetArrangement(ctx, id)
	if err != nil {
		return ArrangementDetail{}, err
	}
	return svc.detail(ctx, arr)
}

// Active returns the latest active arrangement of a grade & section, with its seats.
func (svc *Service) Active(ctx context.Context, auth core.AuthContext, gradeLevel, section string) (ArrangementDetail, error) {
	if !auth.CanPerform(core.ActionViewSeating) {
		return ArrangementDetail{}, core.ErrPermissionDenied
	}
	arr, err := svc.repo.GetActiveArrangement(ctx, core.CleanString(gradeLevel), core.CleanString(section))
	if err != nil {
		return ArrangementDetail{}, err
	}
	return svc.detail(ctx, arr)
}

func (svc *Service) Delete(ctx context.Context, auth core.AuthContext, id int) error {
	if !auth.CanPerform(core.ActionManageSeating) {
		return core.ErrPermissionDenied
	}
	if _, err := svc.repo.GetArrangement(ctx, id); err != nil {
		return err
	}
	if err := svc.repo.DeleteArrangement(ctx, id); err != nil {
		return core.NewPersistenceError("deleting seating arrangement", err)
	}
	svc.logger.Info(fmt.Sprintf("seating arrangement %d deleted", id), map[string]interface{}{"by": auth.ActorID()})
	return nil
}

// ToggleActive flips the active state of an arrangement.
// Activating it deactivates the other arrangements of the same key.
func (svc *Service) ToggleActive(ctx context.Context, auth core.AuthContext, id int) (Arrangement, error) {
	if !auth.CanPerform(core.ActionManageSeating) {
		return Arrangement{}, core.ErrPermissionDenied
	}
	arr, err := svc.repo.GetArrangement(ctx, id)
	if err != nil {
		return Arrangement{}, err
	}

	activate := !arr.IsActive
	err = core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		if activate {
			if _, err := svc.repo.DeactivateArrangements(ctx, arr.Key(), tx); err != nil {
				return errors.Wrap(err, "deactivating arrangements")
			}
		}
		return errors.Wrap(svc.repo.SetArrangementActive(ctx, arr.ID, activate, tx), "setting arrangement active")
	})
	if err != nil {
		return Arrangement{}, core.NewPersistenceError("toggling seating arrangement", err)
	}
	return svc.repo.GetArrangement(ctx, id)
}

// Sections lists the sections of a grade level.
func (svc *Service) Sections(ctx context.Context, auth core.AuthContext, gradeLevel string) ([]string, error) {
	if !auth.CanPerform(core.ActionViewSeating) {
		return nil, core.ErrPermissionDenied
	}
	return svc.students.Sections(ctx, gradeLevel)
}

// MySeat returns the seat of the student linked to the acting user.
func (svc *Service) MySeat(ctx context.Context, auth core.AuthContext, academicYear string) (StudentSeat, error) {
	if !auth.CanPerform(core.ActionViewOwnSeat) {
		return StudentSeat{}, core.ErrPermissionDenied
	}
	stdnt, err := svc.students.GetByUserID(ctx, auth.ActorID())
	if err != nil {
		return StudentSeat{}, err
	}
	return svc.repo.GetStudentSeat(ctx, stdnt.ID, core.CleanString(academicYear))
}

// ServiceHealthy probes the layout service.
func (svc *Service) ServiceHealthy(ctx context.Context, auth core.AuthContext) (bool, error) {
	if !auth.CanPerform(core.ActionViewSeating) {
		return false, core.ErrPermissionDenied
	}
	return svc.layout.CheckHealth(ctx), nil
}
