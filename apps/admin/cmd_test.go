package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/user"
	sqlxrepos "github.com/trezcool/elimu/storage/database/sqlx"
	testutil "github.com/trezcool/elimu/tests"
)

const strongPwd = "Kx9#mQ2$vLp7"

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo = sqlxrepos.NewUserRepository(db)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// start CLI
	return &commandLine{
		db:       db,
		usrSvc:   user.NewService(usrRepo),
		validate: validate,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	origRun := gooseRunFunc
	defer func() { gooseRunFunc = origRun }()

	var gotDir string
	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		gotDir = dir
		switch command {
		case "up", "up-by-one", "down", "redo", "version": // pass
		case "up-to", "down-to":
			_, err := versionArg(command, args)
			return err
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: admin migrate up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: admin migrate down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
				assert.Equal(t, "migrations/sqlite3", gotDir)
			}
		})
	}
}

func Test_runGoose(t *testing.T) {
	cli := setup(t) // migrated up

	ctx := context.Background()
	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "", user.RoleStudent, true)

	require.NoError(t, cli.run([]string{"admin", "migrate", "version"}))

	// redo drops every table, so the user is gone
	require.NoError(t, cli.run([]string{"admin", "migrate", "redo"}))
	_, err := usrRepo.GetUser(ctx, user.GetFilter{ID: usr.ID})
	assert.Equal(t, user.ErrNotFound, err)

	require.NoError(t, cli.run([]string{"admin", "migrate", "down"}))
	_, err = usrRepo.GetUser(ctx, user.GetFilter{ID: usr.ID})
	assert.Error(t, err, "users table should be gone")

	require.NoError(t, cli.run([]string{"admin", "migrate", "up-to", "1"}))
	testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "", user.RoleStudent, true)
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	defer func() { mockPassword("") }()

	testutil.CreateUser(t, usrRepo, "Taken", "taken", "taken@test.cd", "", user.RoleStudent, true)

	type extra struct {
		pwd       string
		wantRole  string
		wantStaff bool
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-username", "jdoe"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-username", "jdoe", "-email", "jdoe@test.cd"}, wantErr: errHelp},
		{
			name:       "weak password",
			args:       []string{"adduser", "-username", "jdoe", "-email", "jdoe@test.cd"},
			extra:      extra{pwd: "password"},
			wantErrStr: "pwdcplx",
		},
		{
			name:       "username taken",
			args:       []string{"adduser", "-username", "taken", "-email", "jdoe@test.cd"},
			extra:      extra{pwd: strongPwd},
			wantErrStr: user.ErrUsernameExists.Error(),
		},
		{
			name:  "student",
			args:  []string{"adduser", "-username", "jdoe", "-email", "jdoe@test.cd"},
			extra: extra{pwd: strongPwd, wantRole: user.RoleStudent},
		},
		{
			name:  "staff teacher",
			args:  []string{"adduser", "-username", "Prof", "-email", "prof@test.cd", "-teacher", "-staff"},
			extra: extra{pwd: strongPwd, wantRole: user.RoleTeacher, wantStaff: true},
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		ex, _ := tt.extra.(extra)
		mockPassword(ex.pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), tt.wantErrStr)
				}
			default:
				require.NoError(t, err)
				usr, err := cli.usrSvc.GetByUsernameOrEmail(context.Background(), tt.args[2])
				require.NoError(t, err)
				assert.Equal(t, ex.wantRole, usr.Role)
				assert.Equal(t, ex.wantStaff, usr.IsStaff)
				assert.True(t, usr.IsActive)
				assert.NoError(t, usr.CheckPassword(ex.pwd))
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	defer func() { mockPassword("") }()

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", user.RoleStudent, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for i, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		ex, _ := tt.extra.(extra)
		mockPassword(ex.pwd)

		t.Run(tt.name+"#"+strconv.Itoa(i), func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.False(t, bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash), "failed to update new password")
			assert.NoError(t, refreshedUsr.CheckPassword(ex.pwd))
		})
	}
}
