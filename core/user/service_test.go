package user_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
	"github.com/trezcool/shule/testutil"
)

func setup(t *testing.T) (*user.Service, user.Repository) {
	db := testutil.PrepareDB(t)
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	repo := sqlxrepos.NewUserRepository(db)
	return user.NewService(repo, validate), repo
}

// invalidFields lists the fields reported by a validation error.
func invalidFields(err error) []string {
	var fields []string
	var vErrs validator.ValidationErrors
	var vErr *core.ValidationError
	switch {
	case errors.As(err, &vErrs):
		for _, fe := range vErrs {
			fields = append(fields, fe.Field())
		}
	case errors.As(err, &vErr):
		for _, fe := range vErr.Fields {
			fields = append(fields, fe.Field)
		}
	}
	return fields
}

func TestService_Create(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()
	testutil.CreateUser(t, repo, "Taken", "taken", "taken@test.cd", "", nil, true)

	pwd := "Sup3r-Secret"
	newUser := func(name, uname, email, pwd string, roles ...string) user.NewUser {
		return user.NewUser{Name: name, Username: uname, Email: email, Password: pwd, PasswordConfirm: pwd, Roles: roles}
	}

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string // invalid field
	}{
		{name: "no name", nu: newUser("", "jane", "", pwd), wantField: "name"},
		{name: "no username nor email", nu: newUser("Jane", "", "", pwd), wantField: "username"},
		{name: "bad email", nu: newUser("Jane", "", "jane@", pwd), wantField: "email"},
		{name: "bad username", nu: newUser("Jane", "ja-ne", "", pwd), wantField: "username"},
		{name: "unknown role", nu: newUser("Jane", "jane", "", pwd, "janitor:"), wantField: "roles"},
		{name: "password mismatch", nu: user.NewUser{Name: "Jane", Username: "jane", Password: pwd, PasswordConfirm: pwd + "!"}, wantField: "password_confirm"},
		{name: "short password", nu: newUser("Jane", "jane", "", "S3c-r"), wantField: "password"},
		{name: "password with space", nu: newUser("Jane", "jane", "", "Sup3r Secret"), wantField: "password"},
		{name: "numeric password", nu: newUser("Jane", "jane", "", "1234567890"), wantField: "password"},
		{name: "simple password", nu: newUser("Jane", "jane", "", "password1"), wantField: "password"},
		{name: "password like name", nu: newUser("Jane Doe", "jdoe", "", "Jane-Doe1"), wantField: "password"},
		{name: "username taken", nu: newUser("Jane", " TAKEN ", "", pwd), wantField: "username"},
		{name: "email taken", nu: newUser("Jane", "", "Taken@test.cd", pwd), wantField: "email"},
		{name: "created", nu: newUser(" Jane ", " Jane ", " Jane@Test.cd ", pwd, user.RoleTeacher)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := svc.Create(ctx, tt.nu)
			if tt.wantField != "" {
				require.True(t, core.IsValidationError(err), "want validation error, got %v", err)
				assert.Contains(t, invalidFields(err), tt.wantField)
				return
			}

			require.NoError(t, err)
			assert.NotZero(t, usr.ID)
			assert.Equal(t, "Jane", usr.Name)
			assert.Equal(t, "jane", usr.Username)
			assert.Equal(t, "jane@test.cd", usr.Email)
			assert.True(t, usr.IsActive)
			assert.True(t, usr.IsTeacher())
			assert.NoError(t, usr.CheckPassword(pwd))
		})
	}
}

func TestService_SetPassword(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()
	jane := testutil.CreateUser(t, repo, "Jane Doe", "jane", "jane@test.cd", "Old-Passw0rd", nil, true)

	_, err := svc.SetPassword(ctx, "nobody", "N3w-Passw0rd")
	assert.ErrorIs(t, err, user.ErrNotFound)

	_, err = svc.SetPassword(ctx, "jane", "Jane-Doe1")
	assert.True(t, core.IsValidationError(err), "want validation error, got %v", err)

	usr, err := svc.SetPassword(ctx, "JANE@test.cd", "N3w-Passw0rd")
	require.NoError(t, err)
	assert.Equal(t, jane.ID, usr.ID)

	stored, err := svc.GetByID(ctx, jane.ID)
	require.NoError(t, err)
	assert.NoError(t, stored.CheckPassword("N3w-Passw0rd"))
	assert.Error(t, stored.CheckPassword("Old-Passw0rd"))
}

func TestAuthContext_CanPerform(t *testing.T) {
	newAuth := func(active bool, roles ...string) user.AuthContext {
		return user.NewAuthContext(user.User{ID: 7, IsActive: active, Roles: roles})
	}
	admin := newAuth(true, user.RoleAdminPrincipal)
	teacher := newAuth(true, user.RoleTeacher)
	student := newAuth(true, user.RoleStudent)
	inactiveAdmin := newAuth(false, user.RoleAdminOwner)
	nobody := newAuth(true)

	tests := []struct {
		action                                   core.Action
		admin, teacher, student, inactive, other bool
	}{
		{action: core.ActionGenerateSeating, admin: true},
		{action: core.ActionManageSeating, admin: true},
		{action: core.ActionViewSeating, admin: true, teacher: true},
		{action: core.ActionViewOwnSeat, admin: true, student: true},
		{action: core.ActionRunPrediction, admin: true, teacher: true},
		{action: core.ActionViewPrediction, admin: true, teacher: true},
		{action: core.ActionViewOwnPrediction, admin: true, student: true},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.admin, admin.CanPerform(tt.action), "admin")
			assert.Equal(t, tt.teacher, teacher.CanPerform(tt.action), "teacher")
			assert.Equal(t, tt.student, student.CanPerform(tt.action), "student")
			assert.Equal(t, tt.inactive, inactiveAdmin.CanPerform(tt.action), "inactive")
			assert.Equal(t, tt.other, nobody.CanPerform(tt.action), "no role")
		})
	}

	assert.Equal(t, 7, admin.ActorID())
	assert.True(t, core.SystemAuth().CanPerform(core.ActionGenerateSeating))
	assert.Zero(t, core.SystemAuth().ActorID())
}
